package servehttp

import (
	"context"
	"net"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/travisdoesmath/fakezeug"
	"github.com/travisdoesmath/fakezeug/servetls"
	"github.com/xmidt-org/httpaux"
	"go.uber.org/fx"
	"go.uber.org/multierr"
)

// Module is the module label under which code in this package emits
// informational output.
const Module = "Servehttp"

// ServerFactory is the creation strategy for both an http.Server and the
// particular listener used for the accept loop.  This interface is implemented
// by any unmarshaled struct which holds server configuration fields.
//
// An implementation may optionally implement ListenerFactory to allow control
// over how the net.Listener for a server is created.
type ServerFactory interface {
	// NewServer is responsible for creating an http.Server using whatever
	// information was unmarshaled into this instance.  The supplied http.Handler
	// is used as http.Server.Handler, though implementations are free to
	// decorate it arbitrarily.
	NewServer(http.Handler) (*http.Server, error)
}

// ServerConfig is the built-in ServerFactory implementation for this package.
// This struct can be unmarshaled via Viper, thus allowing an http.Server to
// be bootstrapped from external configuration.
type ServerConfig struct {
	// Network is the tcp network to listen on.  The default is "tcp".
	// This field is ignored when Address carries the "unix://" prefix.
	Network string

	// Address is the bind address of the server.  The "unix://" prefix binds
	// a unix domain socket.  If unset, the server binds to the first loopback
	// port available; in that case CaptureListenAddress can be used to obtain
	// the actual bind address.
	Address string

	// ReadTimeout corresponds to http.Server.ReadTimeout
	ReadTimeout time.Duration

	// ReadHeaderTimeout corresponds to http.Server.ReadHeaderTimeout
	ReadHeaderTimeout time.Duration

	// WriteTimeout corresponds to http.Server.WriteTimeout
	WriteTimeout time.Duration

	// IdleTimeout corresponds to http.Server.IdleTimeout
	IdleTimeout time.Duration

	// MaxHeaderBytes corresponds to http.Server.MaxHeaderBytes
	MaxHeaderBytes int

	// KeepAlive corresponds to net.ListenConfig.KeepAlive.  This value is
	// only used for listeners created via Listen.
	KeepAlive time.Duration

	// Header supplies HTTP headers to emit on every response from this server
	Header http.Header

	// TLS is the optional unmarshaled TLS configuration.  If set, the resulting
	// server will use HTTPS.
	TLS *servetls.Config
}

// NewServer is the built-in implementation of ServerFactory in this package.
// This should serve most needs.  Nothing needs to be done to use this implementation.
// By default, a Fluent Builder chain begun with Server() will use ServerConfig.
func (sc ServerConfig) NewServer(h http.Handler) (server *http.Server, err error) {
	header := httpaux.NewHeader(sc.Header)

	server = &http.Server{
		Addr:              sc.Address,
		Handler:           header.Then(h),
		ReadTimeout:       sc.ReadTimeout,
		ReadHeaderTimeout: sc.ReadHeaderTimeout,
		WriteTimeout:      sc.WriteTimeout,
		IdleTimeout:       sc.IdleTimeout,
		MaxHeaderBytes:    sc.MaxHeaderBytes,
	}

	server.TLSConfig, err = sc.TLS.New()
	return
}

// Listen is the ListenerFactory implementation driven by ServerConfig
func (sc ServerConfig) Listen(ctx context.Context, s *http.Server) (net.Listener, error) {
	return DefaultListenerFactory{
		ListenConfig: net.ListenConfig{
			KeepAlive: sc.KeepAlive,
		},
		Network: sc.Network,
	}.Listen(ctx, s)
}

// ServerIn describes the set of dependencies for creating a mux.Router and,
// by extension, an http.Server.
type ServerIn struct {
	fx.In

	// Unmarshaler is the required Unmarshaler component used to unmarshal
	// a ServerFactory
	Unmarshaler fakezeug.Unmarshaler

	// Printer is the optional fx.Printer used to output informational messages about
	// server unmarshaling and configuration.  If unset, fakezeug.DefaultPrinter() is used.
	Printer fx.Printer `optional:"true"`

	// Lifecycle is the required uber/fx Lifecycle to which the server will be bound.
	// The server will start when the app starts and will gracefully shutdown when
	// the app is stopped.
	Lifecycle fx.Lifecycle

	// Shutdowner is used to guarantee that any server which aborts its accept loop
	// will stop the entire app.
	Shutdowner fx.Shutdowner
}

// S is a Fluent Builder for unmarshaling an http.Server.  This type must be
// created with the Server function.
type S struct {
	errs      []error
	options   []sOption
	prototype ServerFactory
}

// Server starts a Fluent Builder method chain for creating an http.Server,
// binding its lifecycle to the fx.App lifecycle, and producing a *mux.Router
// as a component for use in dependency injection.
func Server() *S {
	return new(S).
		ServerFactory(ServerConfig{})
}

// ServerFactory sets a custom prototype object that will be unmarshaled
// and used to construct the http.Server and associated listen strategy.
// By default, ServerConfig{} is used as the factory.  This prototype is
// cloned and unmarshaled using fakezeug.NewTarget.
//
// The prototype may optionally implement ListenerFactory, which will allow
// custom listen behavior.  If the prototype doesn't implement ListenerFactory,
// then DefaultListenerFactory is used to create the server's net.Listener.
func (s *S) ServerFactory(prototype ServerFactory) *S {
	s.prototype = prototype
	return s
}

// With adds functional options that tailor the *http.Server supplied by
// this builder chain.
func (s *S) With(o ...ServerOption) *S {
	s.options = append(
		s.options,
		ServerOptions(o...).sOption,
	)

	return s
}

// WithRouter adds functional options that tailor the *mux.Router supplied
// by this builder chain.
func (s *S) WithRouter(o ...RouterOption) *S {
	s.options = append(
		s.options,
		RouterOptions(o...).sOption,
	)

	return s
}

// Middleware is a shorthand for a RouterOption that adds several middlewares
// to the *mux.Router being built.
func (s *S) Middleware(m ...func(http.Handler) http.Handler) *S {
	return s.WithRouter(func(router *mux.Router) error {
		for _, f := range m {
			router.Use(f)
		}

		return nil
	})
}

// MiddlewareChain is a shorthand for a RouterOption that adds a chain
// of server middlewares.  Various packages can be used here, such as justinas/alice.
func (s *S) MiddlewareChain(smc ServerMiddlewareChain) *S {
	return s.WithRouter(func(router *mux.Router) error {
		router.Use(smc.Then)
		return nil
	})
}

// ListenerChain adds a ListenerChain that decorates the listener used to accept
// traffic for this server.
func (s *S) ListenerChain(lc ListenerChain) *S {
	s.options = append(
		s.options,
		func(_ *http.Server, _ *mux.Router, chain ListenerChain) (ListenerChain, error) {
			return chain.Extend(lc), nil
		},
	)

	return s
}

// ListenerConstructors adds several decorators for the listener used to accept
// traffic for this server.
func (s *S) ListenerConstructors(l ...ListenerConstructor) *S {
	s.options = append(
		s.options,
		func(_ *http.Server, _ *mux.Router, chain ListenerChain) (ListenerChain, error) {
			return chain.Append(l...), nil
		},
	)

	return s
}

// CaptureListenAddress decorates the server's listener so that the actual address the
// server listens on is sent to a channel when the fx.App is started.
//
// This method is primarily useful during testing or examples when the bind address
// of the server is such that it will bind to an available port, e.g. "", ":0", "[::1]:0", etc.
func (s *S) CaptureListenAddress(ch chan<- net.Addr) *S {
	return s.ListenerConstructors(
		CaptureListenAddress(ch),
	)
}

// unmarshal does all the heavy lifting of unmarshaling a ServerFactory, creating a server
// and router, and binding a listener to the fx.App lifecycle.
//
// If this method does not return an error, it will have bound the listener to the fx.App's Lifecycle.
func (s *S) unmarshal(u func(fakezeug.Unmarshaler, interface{}) error, in ServerIn) (router *mux.Router, err error) {
	if len(s.errs) > 0 {
		err = multierr.Combine(s.errs...)
		return
	}

	var (
		target = fakezeug.NewTarget(s.prototype)
		p      = fakezeug.NewModulePrinter(Module, in.Printer)
	)

	if err = u(in.Unmarshaler, target.UnmarshalTo.Interface()); err != nil {
		return
	}

	var server *http.Server
	router = mux.NewRouter()
	factory := target.Component.Interface().(ServerFactory)
	if server, err = factory.NewServer(router); err != nil {
		router = nil
		return
	}

	// if the factory did not set a handler, use the router
	if server.Handler == nil {
		server.Handler = router
	}

	var lc ListenerChain
	var optionErrs []error
	for _, o := range s.options {
		if lc, err = o(server, router, lc); err != nil {
			optionErrs = append(optionErrs, err)
		}
	}

	if len(optionErrs) > 0 {
		err = multierr.Combine(optionErrs...)
		router = nil
		return
	}

	lf, ok := factory.(ListenerFactory)
	if !ok {
		lf = DefaultListenerFactory{}
	}

	p.Printf("SERVER => %s", server.Addr)
	in.Lifecycle.Append(fx.Hook{
		OnStart: ServerOnStart(
			server,
			lc.Factory(lf),
			// ensure that if this server exits for any reason,
			// the enclosing fx.App is shutdown
			ShutdownOnExit(in.Shutdowner),
		),
		OnStop: server.Shutdown,
	})

	return
}

// Unmarshal terminates the builder chain and returns a constructor that produces
// a *mux.Router.  The *http.Server and net.Listener objects built by this constructor
// are not exposed.  However, both the server and listener will be bound to the
// lifecycle of the enclosing fx.App.
func (s *S) Unmarshal() func(ServerIn) (*mux.Router, error) {
	return func(in ServerIn) (*mux.Router, error) {
		return s.unmarshal(
			func(u fakezeug.Unmarshaler, v interface{}) error {
				return u.Unmarshal(v)
			},
			in,
		)
	}
}

// UnmarshalKey is like Unmarshal, except that it unmarshals from a particular
// configuration key.
func (s *S) UnmarshalKey(key string) func(ServerIn) (*mux.Router, error) {
	return func(in ServerIn) (*mux.Router, error) {
		return s.unmarshal(
			func(u fakezeug.Unmarshaler, v interface{}) error {
				return u.UnmarshalKey(key, v)
			},
			in,
		)
	}
}

// Provide produces an fx.Provide that does the same thing as Unmarshal.  This
// is the typical way to leverage this package to create an http.Server.
func (s *S) Provide() fx.Option {
	return fx.Provide(
		s.Unmarshal(),
	)
}

// ProvideKey handles the simple case where a router is built from a given configuration key
// and is exposed as a component of the same name as the key.
func (s *S) ProvideKey(key string) fx.Option {
	return fx.Provide(
		fx.Annotated{
			Name:   key,
			Target: s.UnmarshalKey(key),
		},
	)
}

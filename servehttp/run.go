package servehttp

import (
	"context"
	"crypto/tls"
	"errors"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/travisdoesmath/fakezeug"
	"github.com/travisdoesmath/fakezeug/reload"
	"github.com/travisdoesmath/fakezeug/servetls"
	"go.uber.org/fx"
	"go.uber.org/multierr"
)

// shutdownTimeout bounds the graceful drain when a Run context is canceled.
const shutdownTimeout = 5 * time.Second

// RunOption is a functional option for Run and RunContext.
type RunOption func(*runOptions) error

// runOptions collects the configuration assembled from RunOptions.
type runOptions struct {
	reloader   bool
	backend    string
	interval   time.Duration
	extraFiles []string
	excludes   []string

	tls        *servetls.Config
	rawTLS     *tls.Config
	adhoc      bool
	adhocHosts []string

	printer    fx.Printer
	serverOpts []ServerOption
	listeners  ListenerChain
}

// WithReloader enables the reloader: the process supervises a re-exec of
// itself and restarts it whenever a watched file changes.
func WithReloader() RunOption {
	return func(ro *runOptions) error {
		ro.reloader = true
		return nil
	}
}

// WithReloaderBackend selects how the reloader observes the filesystem:
// "stat" polls modification times on an interval, "notify" uses OS
// filesystem events and reacts faster, and "auto" (the default) prefers
// notify with a stat fallback.
func WithReloaderBackend(name string) RunOption {
	return func(ro *runOptions) error {
		ro.backend = name
		return nil
	}
}

// WithReloaderInterval sets the polling interval used by the stat backend.
// Other backends ignore this value.
func WithReloaderInterval(d time.Duration) RunOption {
	return func(ro *runOptions) error {
		ro.interval = d
		return nil
	}
}

// WithExtraFiles adds individual files to the reloader's watch set, e.g.
// configuration files outside the working tree.
func WithExtraFiles(files ...string) RunOption {
	return func(ro *runOptions) error {
		ro.extraFiles = append(ro.extraFiles, files...)
		return nil
	}
}

// WithExcludePatterns removes files whose base names match any of the given
// filepath.Match patterns from the reloader's watch set.
func WithExcludePatterns(patterns ...string) RunOption {
	return func(ro *runOptions) error {
		ro.excludes = append(ro.excludes, patterns...)
		return nil
	}
}

// WithTLS serves HTTPS using an unmarshaled servetls.Config, typically
// carrying certificate and key file paths.
func WithTLS(c *servetls.Config) RunOption {
	return func(ro *runOptions) error {
		ro.tls = c
		return nil
	}
}

// WithCertFiles serves HTTPS using the given certificate and key files.
// This is shorthand for WithTLS with a single external certificate.
func WithCertFiles(certificateFile, keyFile string) RunOption {
	return WithTLS(&servetls.Config{
		Certificates: servetls.ExternalCertificates{
			{CertificateFile: certificateFile, KeyFile: keyFile},
		},
	})
}

// WithAdhocTLS serves HTTPS using a freshly generated self-signed
// certificate.  The given hosts become subject alternative names; when none
// are supplied, the Run hostname is used.  Browsers will warn about the
// certificate, which is expected for local testing.
func WithAdhocTLS(hosts ...string) RunOption {
	return func(ro *runOptions) error {
		ro.adhoc = true
		ro.adhocHosts = append(ro.adhocHosts, hosts...)
		return nil
	}
}

// WithTLSConfig serves HTTPS using a fully configured *tls.Config.  This
// takes precedence over WithTLS, WithCertFiles, and WithAdhocTLS.
func WithTLSConfig(tc *tls.Config) RunOption {
	return func(ro *runOptions) error {
		ro.rawTLS = tc
		return nil
	}
}

// WithPrinter routes informational output, such as the startup banner, to
// the given printer instead of stderr.
func WithPrinter(p fx.Printer) RunOption {
	return func(ro *runOptions) error {
		ro.printer = p
		return nil
	}
}

// WithServerOptions applies functional options to the underlying
// *http.Server before it starts.
func WithServerOptions(o ...ServerOption) RunOption {
	return func(ro *runOptions) error {
		ro.serverOpts = append(ro.serverOpts, o...)
		return nil
	}
}

// WithListenerConstructors decorates the listener used to accept traffic.
// Most useful with CaptureListenAddress when binding port zero (0).
func WithListenerConstructors(l ...ListenerConstructor) RunOption {
	return func(ro *runOptions) error {
		ro.listeners = ro.listeners.Append(l...)
		return nil
	}
}

// Run starts the development server and blocks until its accept loop exits.
//
// The hostname is either a host to bind, the empty string for the IPv4
// loopback, or a "unix://" socket path, in which case port is ignored.
// With WithReloader, the process instead supervises a re-exec of itself and
// Run blocks for the lifetime of the supervision loop.
func Run(hostname string, port int, handler http.Handler, opts ...RunOption) error {
	return RunContext(context.Background(), hostname, port, handler, opts...)
}

// RunContext is Run with a context.  Canceling the context gracefully drains
// the server and returns ctx.Err().
func RunContext(ctx context.Context, hostname string, port int, handler http.Handler, opts ...RunOption) error {
	var (
		ro         runOptions
		optionErrs []error
	)

	for _, o := range opts {
		if err := o(&ro); err != nil {
			optionErrs = append(optionErrs, err)
		}
	}

	if len(optionErrs) > 0 {
		return multierr.Combine(optionErrs...)
	}

	p := fakezeug.NewModulePrinter(Module, ro.printer)

	if ro.reloader && !reload.IsWorker() {
		return supervise(ctx, p, ro)
	}

	server, err := buildServer(hostname, port, handler, ro)
	if err != nil {
		return err
	}

	listener, err := ro.listeners.Factory(DefaultListenerFactory{}).Listen(ctx, server)
	if err != nil {
		return err
	}

	p.Printf("running on %s (press CTRL+C to quit)", displayURL(server, listener))

	if ro.reloader {
		watcher, err := newReloader(p, ro)
		if err != nil {
			listener.Close()
			return err
		}

		go watcher.Watch(ctx)
	}

	serveErr := make(chan error, 1)
	go func() {
		serveErr <- server.Serve(listener)
	}()

	select {
	case <-ctx.Done():
		drainCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()

		server.Shutdown(drainCtx) //nolint:errcheck // the context error is what matters here
		<-serveErr
		return ctx.Err()

	case err := <-serveErr:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}

		return err
	}
}

// supervise runs the reloader's supervisor loop in place of a server.
func supervise(ctx context.Context, p fx.Printer, ro runOptions) error {
	r, err := newReloader(p, ro)
	if err != nil {
		return err
	}

	return r.Supervise(ctx)
}

// newReloader assembles a reloader from the Run options.
func newReloader(p fx.Printer, ro runOptions) (*reload.Reloader, error) {
	backend, err := reload.BackendFor(ro.backend, ro.interval)
	if err != nil {
		return nil, err
	}

	return &reload.Reloader{
		Backend: backend,
		Set: reload.WatchSet{
			ExtraFiles:      ro.extraFiles,
			ExcludePatterns: ro.excludes,
		},
		Printer: p,
	}, nil
}

// buildServer constructs the *http.Server for the given bind parameters,
// resolving the TLS options in precedence order.
func buildServer(hostname string, port int, handler http.Handler, ro runOptions) (*http.Server, error) {
	sc := ServerConfig{
		Address: resolveAddress(hostname, port),
		TLS:     ro.tls,
	}

	if ro.adhoc && sc.TLS == nil {
		hosts := ro.adhocHosts
		if len(hosts) == 0 {
			if host := adhocHost(hostname); host != "" {
				hosts = []string{host}
			} else {
				hosts = []string{"localhost"}
			}
		}

		sc.TLS = &servetls.Config{Adhoc: hosts}
	}

	server, err := sc.NewServer(handler)
	if err != nil {
		return nil, err
	}

	if ro.rawTLS != nil {
		server.TLSConfig = ro.rawTLS
	}

	if err := ServerOptions(ro.serverOpts...)(server); err != nil {
		return nil, err
	}

	return server, nil
}

// resolveAddress maps the hostname/port convention onto an http.Server.Addr.
// A "unix://" hostname passes through untouched, an empty hostname binds the
// IPv4 loopback, and anything else joins host and port.
func resolveAddress(hostname string, port int) string {
	if strings.HasPrefix(hostname, UnixPrefix) {
		return hostname
	}

	if hostname == "" {
		hostname = "127.0.0.1"
	}

	return net.JoinHostPort(hostname, strconv.Itoa(port))
}

// adhocHost extracts a usable certificate host from the Run hostname.
func adhocHost(hostname string) string {
	if strings.HasPrefix(hostname, UnixPrefix) {
		return ""
	}

	return hostname
}

// displayURL renders the banner address for a started listener.
func displayURL(server *http.Server, listener net.Listener) string {
	if strings.HasPrefix(server.Addr, UnixPrefix) {
		return server.Addr
	}

	scheme := "http"
	if server.TLSConfig != nil {
		scheme = "https"
	}

	return scheme + "://" + listener.Addr().String()
}

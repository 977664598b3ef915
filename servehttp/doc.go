// Package servehttp implements the development HTTP server.
//
// The simplest entry point is Run, which binds a handler to a host and port
// and blocks, in the spirit of a framework's built-in development server:
//
//	servehttp.Run("127.0.0.1", 8080, handler,
//		servehttp.WithReloader(),
//		servehttp.WithAdhocTLS(),
//	)
//
// A host of the form "unix:///tmp/app.sock" binds a unix domain socket
// instead of a TCP port, in which case the port argument is ignored.
//
// For applications built on uber/fx, the Server builder unmarshals a
// ServerConfig from viper configuration, binds the server to the fx.App
// lifecycle, and produces a *mux.Router component:
//
//	fx.New(
//		fakezeug.ForViper(v),
//		servehttp.Server().Provide(),
//		fx.Invoke(func(r *mux.Router) {
//			r.HandleFunc("/", handler)
//		}),
//	)
package servehttp

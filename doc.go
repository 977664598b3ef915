// Package fakezeug provides the configuration plumbing shared by the rest
// of this module: an Unmarshaler abstraction over spf13/viper, mapstructure
// decode options, and fx.Printer helpers for informational output.
//
// The subpackages build a development HTTP server on top of this plumbing:
//
//   - servehttp contains the server itself, including the Run entry point
//     and an uber/fx fluent builder
//   - servetls handles TLS configuration, including adhoc self-signed
//     certificates for local HTTPS testing
//   - reload restarts the server process when watched files change
//   - servetest contains stretchr/testify helpers for testing code that
//     uses this module
//
// None of this is intended for production traffic.  The server exists for
// local iteration: bind a handler, watch the working tree, restart on change.
package fakezeug

// Package servetls handles TLS configuration for the development server.
//
// A Config can be unmarshaled from external configuration and turned into a
// *crypto/tls.Config with New.  For local HTTPS testing without any files on
// disk, NewAdhoc generates a throwaway self-signed certificate, and
// WriteDevCert persists one for reuse across runs.
package servetls

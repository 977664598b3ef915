// Package servetest contains stretchr/testify helpers for testing code
// built on this module: fx.App construction bound to the enclosing test,
// viper bootstrapping, on-disk test certificates, and listen-address capture
// for servers bound to ephemeral ports.
package servetest

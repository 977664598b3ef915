package servetls

import (
	"crypto/tls"
	"fmt"
	"reflect"
	"strings"
)

// tlsVersions maps the accepted configuration spellings of a TLS version
// onto the crypto/tls constants.
var tlsVersions = map[string]uint16{
	"1.0": tls.VersionTLS10,
	"1.1": tls.VersionTLS11,
	"1.2": tls.VersionTLS12,
	"1.3": tls.VersionTLS13,
}

// ParseVersion converts a human-readable TLS version, e.g. "1.2" or "tls1.3",
// into the corresponding crypto/tls constant.  Parsing is case insensitive,
// and an optional "tls" or "tlsv" prefix is allowed.
func ParseVersion(v string) (uint16, error) {
	normalized := strings.ToLower(strings.TrimSpace(v))
	normalized = strings.TrimPrefix(normalized, "tlsv")
	normalized = strings.TrimPrefix(normalized, "tls")

	if version, ok := tlsVersions[normalized]; ok {
		return version, nil
	}

	return 0, fmt.Errorf("unrecognized TLS version: %q", v)
}

// VersionHookFunc is a mapstructure.DecodeHookFunc that converts strings
// such as "1.2" or "tls1.3" into the uint16 values crypto/tls expects.
// Compose this with fakezeug.ComposeDecodeHooks when unmarshaling a Config
// whose MinVersion or MaxVersion fields are spelled out in configuration.
//
// If src is not a string or the destination is not a uint16, no conversion
// is attempted and src is returned with a nil error.
func VersionHookFunc(_, to reflect.Type, src interface{}) (interface{}, error) {
	if text, ok := src.(string); ok && to.Kind() == reflect.Uint16 {
		return ParseVersion(text)
	}

	return src, nil
}

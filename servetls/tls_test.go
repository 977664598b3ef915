package servetls

import (
	"crypto/tls"
	"crypto/x509"
	"crypto/x509/pkix"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// devCert writes a throwaway certificate pair for the enclosing test.
func devCert(t *testing.T) (certificateFile, keyFile string) {
	certificateFile, keyFile, err := WriteDevCert(
		filepath.Join(t.TempDir(), "test"),
		"localhost",
	)

	require.NoError(t, err)
	return
}

func testConfigNil(t *testing.T) {
	var (
		assert = assert.New(t)

		c *Config
	)

	tc, err := c.New()
	assert.NoError(err)
	assert.Nil(tc)
}

func testConfigNoCertificate(t *testing.T) {
	assert := assert.New(t)

	tc, err := (&Config{
		Certificates: ExternalCertificates{
			{}, // empty, so loading must fail
		},
	}).New()

	assert.ErrorIs(err, ErrCertificateRequired)
	assert.Nil(tc)
}

func testConfigBasic(t *testing.T) {
	var (
		assert  = assert.New(t)
		require = require.New(t)

		certificateFile, keyFile = devCert(t)
	)

	tc, err := (&Config{
		Certificates: ExternalCertificates{
			{
				CertificateFile: certificateFile,
				KeyFile:         keyFile,
			},
		},
	}).New()

	require.NoError(err)
	require.NotNil(tc)

	assert.Len(tc.Certificates, 1)
	assert.Equal(uint16(tls.VersionTLS13), tc.MinVersion)
	assert.Equal([]string{"http/1.1"}, tc.NextProtos)
}

func testConfigAdhoc(t *testing.T) {
	var (
		assert  = assert.New(t)
		require = require.New(t)
	)

	tc, err := (&Config{
		Adhoc:      []string{"localhost"},
		NextProtos: []string{"h2", "http/1.1"},
	}).New()

	require.NoError(err)
	require.NotNil(tc)

	assert.Len(tc.Certificates, 1)
	assert.Equal([]string{"h2", "http/1.1"}, tc.NextProtos)
}

func testConfigVersionConstraints(t *testing.T) {
	assert := assert.New(t)

	tc, err := (&Config{
		MinVersion: tls.VersionTLS12,
		MaxVersion: tls.VersionTLS10,
	}).New()

	assert.NoError(err)
	assert.Equal(uint16(tls.VersionTLS12), tc.MinVersion)
	assert.Equal(uint16(tls.VersionTLS12), tc.MaxVersion)
}

func testConfigClientCAs(t *testing.T) {
	var (
		assert  = assert.New(t)
		require = require.New(t)

		certificateFile, keyFile = devCert(t)
	)

	tc, err := (&Config{
		Certificates: ExternalCertificates{
			{
				CertificateFile: certificateFile,
				KeyFile:         keyFile,
			},
		},
		ClientCAs: ExternalCertPool{certificateFile},
	}).New()

	require.NoError(err)
	require.NotNil(tc)

	assert.NotNil(tc.ClientCAs)
	assert.Equal(tls.RequireAndVerifyClientCert, tc.ClientAuth)
}

func testConfigMissingClientCA(t *testing.T) {
	var (
		assert = assert.New(t)

		certificateFile, keyFile = devCert(t)
	)

	tc, err := (&Config{
		Certificates: ExternalCertificates{
			{
				CertificateFile: certificateFile,
				KeyFile:         keyFile,
			},
		},
		ClientCAs: ExternalCertPool{"nosuch.pem"},
	}).New()

	assert.Error(err)
	assert.Nil(tc)
}

func TestConfig(t *testing.T) {
	t.Run("Nil", testConfigNil)
	t.Run("NoCertificate", testConfigNoCertificate)
	t.Run("Basic", testConfigBasic)
	t.Run("Adhoc", testConfigAdhoc)
	t.Run("VersionConstraints", testConfigVersionConstraints)
	t.Run("ClientCAs", testConfigClientCAs)
	t.Run("MissingClientCA", testConfigMissingClientCA)
}

func peerCert(t *testing.T, commonName string, dnsNames []string) *x509.Certificate {
	return &x509.Certificate{
		Subject: pkix.Name{
			CommonName: commonName,
		},
		DNSNames: dnsNames,
	}
}

func testPeerVerifyConfigEmpty(t *testing.T) {
	var (
		assert = assert.New(t)

		pvc PeerVerifyConfig
	)

	assert.Nil(pvc.Verifier())
}

func testPeerVerifyConfigDNSSuffix(t *testing.T) {
	var (
		assert  = assert.New(t)
		require = require.New(t)

		pvc = PeerVerifyConfig{
			DNSSuffixes: []string{".example.com"},
		}
	)

	v := pvc.Verifier()
	require.NotNil(v)

	assert.NoError(v(peerCert(t, "", []string{"host.example.com"}), nil))
	assert.NoError(v(peerCert(t, "host.example.com", nil), nil))
	assert.Error(v(peerCert(t, "elsewhere.net", []string{"elsewhere.net"}), nil))
}

func testPeerVerifyConfigCommonName(t *testing.T) {
	var (
		assert  = assert.New(t)
		require = require.New(t)

		pvc = PeerVerifyConfig{
			CommonNames: []string{"trusted.client"},
		}
	)

	v := pvc.Verifier()
	require.NotNil(v)

	assert.NoError(v(peerCert(t, "trusted.client", nil), nil))

	err := v(peerCert(t, "untrusted.client", nil), nil)
	require.Error(err)

	var pve *PeerVerifyError
	require.ErrorAs(err, &pve)
	assert.NotEmpty(pve.Error())
}

func TestPeerVerifyConfig(t *testing.T) {
	t.Run("Empty", testPeerVerifyConfigEmpty)
	t.Run("DNSSuffix", testPeerVerifyConfigDNSSuffix)
	t.Run("CommonName", testPeerVerifyConfigCommonName)
}

func TestPeerVerifiers(t *testing.T) {
	var (
		assert = assert.New(t)

		order []int
		pvs   = NewPeerVerifiers(
			func(*x509.Certificate, [][]*x509.Certificate) error {
				order = append(order, 1)
				return nil
			},
		).Append(
			func(*x509.Certificate, [][]*x509.Certificate) error {
				order = append(order, 2)
				return nil
			},
		)
	)

	cert, err := GenerateAdhoc("localhost")
	assert.NoError(err)

	assert.NoError(pvs.VerifyPeerCertificate(cert.Certificate, nil))
	assert.Equal([]int{1, 2}, order)

	var tc tls.Config
	pvs.SetTo(&tc)
	assert.NotNil(tc.VerifyPeerCertificate)
}

package servetls

import (
	"crypto/rand"
	"crypto/rsa"
	"crypto/tls"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/pem"
	"errors"
	"math/big"
	"net"
	"os"
	"time"
)

// AdhocValidity is how long an adhoc certificate remains valid.
const AdhocValidity = 365 * 24 * time.Hour

// ErrNoAdhocCertificate indicates that a generated certificate had no
// DER bytes, which should never happen with a functioning crypto/rand.
var ErrNoAdhocCertificate = errors.New("adhoc certificate generation produced no certificate")

// adhocTemplate builds the x509 template for an adhoc certificate.  The
// subject common name is the wildcard "*" so that local clients configured
// to skip hostname checks are never tripped up, and each requested host
// becomes a DNS or IP subject alternative name.
func adhocTemplate(hosts []string) (*x509.Certificate, error) {
	serialNumberLimit := new(big.Int).Lsh(big.NewInt(1), 128)
	serialNumber, err := rand.Int(rand.Reader, serialNumberLimit)
	if err != nil {
		return nil, err
	}

	now := time.Now()
	template := &x509.Certificate{
		SerialNumber: serialNumber,
		Subject: pkix.Name{
			CommonName:   "*",
			Organization: []string{"Dummy Certificate"},
		},
		NotBefore:             now,
		NotAfter:              now.Add(AdhocValidity),
		KeyUsage:              x509.KeyUsageKeyEncipherment | x509.KeyUsageDigitalSignature,
		ExtKeyUsage:           []x509.ExtKeyUsage{x509.ExtKeyUsageServerAuth},
		BasicConstraintsValid: true,
	}

	for _, host := range hosts {
		if ip := net.ParseIP(host); ip != nil {
			template.IPAddresses = append(template.IPAddresses, ip)
		} else if len(host) > 0 {
			template.DNSNames = append(template.DNSNames, host)
		}
	}

	if len(template.DNSNames) == 0 && len(template.IPAddresses) == 0 {
		template.DNSNames = []string{"localhost"}
		template.IPAddresses = []net.IP{net.IPv4(127, 0, 0, 1), net.IPv6loopback}
	}

	return template, nil
}

// GenerateAdhoc creates a self-signed certificate for the given hosts,
// suitable only for local HTTPS testing.  Each host may be a DNS name or an
// IP address.  If no hosts are supplied, the certificate covers localhost
// and the loopback addresses.
func GenerateAdhoc(hosts ...string) (*tls.Certificate, error) {
	template, err := adhocTemplate(hosts)
	if err != nil {
		return nil, err
	}

	key, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		return nil, err
	}

	derBytes, err := x509.CreateCertificate(
		rand.Reader,
		template,
		template,
		&key.PublicKey,
		key,
	)
	if err != nil {
		return nil, err
	}

	if len(derBytes) == 0 {
		return nil, ErrNoAdhocCertificate
	}

	leaf, err := x509.ParseCertificate(derBytes)
	if err != nil {
		return nil, err
	}

	return &tls.Certificate{
		Certificate: [][]byte{derBytes},
		PrivateKey:  key,
		Leaf:        leaf,
	}, nil
}

// NewAdhoc is a convenience for building a server-ready *tls.Config around a
// freshly generated adhoc certificate.  The result uses the same protocol and
// version defaults as Config.New.
func NewAdhoc(hosts ...string) (*tls.Config, error) {
	return (&Config{Adhoc: hosts}).New()
}

// WriteDevCert generates an adhoc certificate for the given host and writes
// it to basePath + ".crt" and basePath + ".key" as PEM files.  The resulting
// pair is loadable with tls.LoadX509KeyPair and can be reused across server
// runs, unlike a purely in-memory adhoc certificate.
func WriteDevCert(basePath, host string) (certificateFile, keyFile string, err error) {
	cert, err := GenerateAdhoc(host)
	if err != nil {
		return "", "", err
	}

	keyBytes, err := x509.MarshalPKCS8PrivateKey(cert.PrivateKey)
	if err != nil {
		return "", "", err
	}

	certificateFile = basePath + ".crt"
	keyFile = basePath + ".key"

	if err = writePEM(certificateFile, "CERTIFICATE", cert.Certificate[0]); err != nil {
		return "", "", err
	}

	if err = writePEM(keyFile, "PRIVATE KEY", keyBytes); err != nil {
		return "", "", err
	}

	return certificateFile, keyFile, nil
}

func writePEM(path, blockType string, der []byte) error {
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o600)
	if err != nil {
		return err
	}

	err = pem.Encode(f, &pem.Block{
		Type:  blockType,
		Bytes: der,
	})

	if closeErr := f.Close(); err == nil {
		err = closeErr
	}

	return err
}

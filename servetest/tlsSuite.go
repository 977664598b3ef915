package servetest

import (
	"path/filepath"

	"github.com/stretchr/testify/suite"
	"github.com/travisdoesmath/fakezeug/servetls"
)

// TLSSuite is a stretchr/testify suite that manages the lifecycle of a
// testing certificate on disk.  Useful primarily for testing TLS code.
//
// The certificate covers localhost and the loopback addresses, and lives in
// a per-test temporary directory so no cleanup is required.
type TLSSuite struct {
	suite.Suite

	certificateFile string
	keyFile         string
}

var _ suite.SetupTestSuite = (*TLSSuite)(nil)

// SetupTest generates a fresh certificate and key file pair for each test.
func (suite *TLSSuite) SetupTest() {
	var err error
	suite.certificateFile, suite.keyFile, err = servetls.WriteDevCert(
		filepath.Join(suite.T().TempDir(), "test"),
		"localhost",
	)

	suite.Require().NoError(err)
}

// CertificateFile returns the PEM certificate file for the current test.
func (suite *TLSSuite) CertificateFile() string {
	return suite.certificateFile
}

// KeyFile returns the PEM key file for the current test.
func (suite *TLSSuite) KeyFile() string {
	return suite.keyFile
}

// Config returns a configuration object using this suite's certificate.
func (suite *TLSSuite) Config() *servetls.Config {
	return &servetls.Config{
		Certificates: servetls.ExternalCertificates{
			{
				CertificateFile: suite.certificateFile,
				KeyFile:         suite.keyFile,
			},
		},
	}
}

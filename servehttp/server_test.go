package servehttp

import (
	"net"
	"net/http"
	"testing"
	"time"

	"github.com/gorilla/mux"
	"github.com/justinas/alice"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"
	"github.com/travisdoesmath/fakezeug"
	"github.com/travisdoesmath/fakezeug/servetest"
	"github.com/travisdoesmath/fakezeug/servetls"
	"go.uber.org/fx"
	"go.uber.org/fx/fxtest"
)

func testServerConfigBasic(t *testing.T) {
	var (
		assert  = assert.New(t)
		require = require.New(t)

		sc = ServerConfig{
			Address:           ":123",
			ReadTimeout:       7 * time.Hour,
			ReadHeaderTimeout: 27 * time.Minute,
			WriteTimeout:      38 * time.Second,
			IdleTimeout:       89 * time.Minute,
			MaxHeaderBytes:    478934,
			Header: http.Header{
				"X-Served-By": {"fakezeug"},
			},
		}
	)

	server, err := sc.NewServer(http.NotFoundHandler())
	require.NoError(err)
	require.NotNil(server)

	assert.Equal(":123", server.Addr)
	assert.Equal(7*time.Hour, server.ReadTimeout)
	assert.Equal(27*time.Minute, server.ReadHeaderTimeout)
	assert.Equal(38*time.Second, server.WriteTimeout)
	assert.Equal(89*time.Minute, server.IdleTimeout)
	assert.Equal(478934, server.MaxHeaderBytes)
	assert.Nil(server.TLSConfig)
	require.NotNil(server.Handler)
}

func testServerConfigTLS(t *testing.T) {
	var (
		assert  = assert.New(t)
		require = require.New(t)

		sc = ServerConfig{
			TLS: &servetls.Config{
				Adhoc: []string{"localhost"},
			},
		}
	)

	server, err := sc.NewServer(http.NotFoundHandler())
	require.NoError(err)
	assert.NotNil(server.TLSConfig)
}

func testServerConfigTLSError(t *testing.T) {
	var (
		assert = assert.New(t)

		sc = ServerConfig{
			TLS: &servetls.Config{
				Certificates: servetls.ExternalCertificates{
					{}, // missing file names
				},
			},
		}
	)

	_, err := sc.NewServer(http.NotFoundHandler())
	assert.Error(err)
}

func TestServerConfig(t *testing.T) {
	t.Run("Basic", testServerConfigBasic)
	t.Run("TLS", testServerConfigTLS)
	t.Run("TLSError", testServerConfigTLSError)
}

type ServerSuite struct {
	servetest.Suite
}

// serve starts an fx.App around the given builder, registers a trivial
// handler on the produced router, and returns the captured bind address
// together with the app.
func (suite *ServerSuite) serve(s *S) (net.Addr, *fxtest.App) {
	var (
		address = make(chan net.Addr, 1)
		router  *mux.Router
	)

	app := suite.Fxtest(
		s.CaptureListenAddress(address).Provide(),
		fx.Populate(&router),
	)

	app.RequireStart()

	router.HandleFunc("/test", func(response http.ResponseWriter, _ *http.Request) {
		response.WriteHeader(http.StatusOK)
	})

	addr, ok := AwaitListenAddress(suite.T().Fatalf, address, 5*time.Second)
	suite.Require().True(ok)
	return addr, app
}

func (suite *ServerSuite) TestUnmarshal() {
	suite.YAML(`
address: "127.0.0.1:0"
readTimeout: "30s"
`)

	addr, app := suite.serve(Server())
	defer app.RequireStop()

	response, err := http.Get("http://" + addr.String() + "/test")
	suite.Require().NoError(err)
	defer response.Body.Close()
	suite.Equal(http.StatusOK, response.StatusCode)
}

func (suite *ServerSuite) TestUnmarshalKey() {
	suite.YAML(`
servers:
  main:
    address: "127.0.0.1:0"
`)

	var (
		address = make(chan net.Addr, 1)
		router  *mux.Router
	)

	app := suite.Fxtest(
		fx.Provide(
			Server().
				CaptureListenAddress(address).
				UnmarshalKey("servers.main"),
		),
		fx.Populate(&router),
	)

	app.RequireStart()
	defer app.RequireStop()

	_, ok := AwaitListenAddress(suite.T().Fatalf, address, 5*time.Second)
	suite.Require().True(ok)
	suite.Require().NotNil(router)
}

func (suite *ServerSuite) TestResponseHeader() {
	suite.YAML(`
address: "127.0.0.1:0"
header:
  X-Served-By:
    - "fakezeug"
`)

	addr, app := suite.serve(Server())
	defer app.RequireStop()

	response, err := http.Get("http://" + addr.String() + "/test")
	suite.Require().NoError(err)
	defer response.Body.Close()
	suite.Equal("fakezeug", response.Header.Get("X-Served-By"))
}

func (suite *ServerSuite) TestMiddleware() {
	suite.YAML(`
address: "127.0.0.1:0"
`)

	chain := alice.New(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(response http.ResponseWriter, request *http.Request) {
			response.Header().Set("X-Middleware", "true")
			next.ServeHTTP(response, request)
		})
	})

	addr, app := suite.serve(
		Server().MiddlewareChain(chain),
	)

	defer app.RequireStop()

	response, err := http.Get("http://" + addr.String() + "/test")
	suite.Require().NoError(err)
	defer response.Body.Close()
	suite.Equal("true", response.Header.Get("X-Middleware"))
}

func (suite *ServerSuite) TestUnmarshalError() {
	suite.YAML(`
address: [123, "this is not an address"]
`)

	servetest.NewErrApp(
		suite,
		fakezeug.ForViper(suite.Viper()),
		Server().Provide(),
		fx.Invoke(func(*mux.Router) {}),
	)
}

func TestServer(t *testing.T) {
	suite.Run(t, new(ServerSuite))
}

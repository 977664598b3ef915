package servehttp

import (
	"context"
	"crypto/tls"
	"errors"
	"net"
	"net/http"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/travisdoesmath/fakezeug/servetls"
)

// runAsync invokes RunContext on a goroutine and returns the channel its
// result will be sent on.
func runAsync(ctx context.Context, hostname string, port int, handler http.Handler, opts ...RunOption) <-chan error {
	result := make(chan error, 1)
	go func() {
		result <- RunContext(ctx, hostname, port, handler, opts...)
	}()

	return result
}

func awaitRun(t *testing.T, address <-chan net.Addr) net.Addr {
	addr, ok := AwaitListenAddress(t.Fatalf, address, 5*time.Second)
	require.True(t, ok)
	return addr
}

func testRunContextBasic(t *testing.T) {
	var (
		assert  = assert.New(t)
		require = require.New(t)

		ctx, cancel = context.WithCancel(context.Background())
		address     = make(chan net.Addr, 1)
	)

	defer cancel()
	result := runAsync(
		ctx,
		"127.0.0.1",
		0,
		http.HandlerFunc(func(response http.ResponseWriter, _ *http.Request) {
			response.WriteHeader(http.StatusNoContent)
		}),
		WithListenerConstructors(CaptureListenAddress(address)),
	)

	addr := awaitRun(t, address)
	response, err := http.Get("http://" + addr.String())
	require.NoError(err)
	response.Body.Close()
	assert.Equal(http.StatusNoContent, response.StatusCode)

	cancel()
	select {
	case err := <-result:
		assert.ErrorIs(err, context.Canceled)
	case <-time.After(5 * time.Second):
		assert.Fail("RunContext did not return after cancellation")
	}
}

func testRunContextEmptyHostname(t *testing.T) {
	var (
		assert  = assert.New(t)
		require = require.New(t)

		ctx, cancel = context.WithCancel(context.Background())
		address     = make(chan net.Addr, 1)
	)

	defer cancel()
	result := runAsync(
		ctx,
		"",
		0,
		http.NotFoundHandler(),
		WithListenerConstructors(CaptureListenAddress(address)),
	)

	addr := awaitRun(t, address)
	host, _, err := net.SplitHostPort(addr.String())
	require.NoError(err)
	assert.True(net.ParseIP(host).IsLoopback())

	cancel()
	assert.ErrorIs(<-result, context.Canceled)
}

func testRunContextUnix(t *testing.T) {
	var (
		assert  = assert.New(t)
		require = require.New(t)

		ctx, cancel = context.WithCancel(context.Background())
		address     = make(chan net.Addr, 1)
		socketPath  = filepath.Join(t.TempDir(), "run.sock")
	)

	defer cancel()
	result := runAsync(
		ctx,
		UnixPrefix+socketPath,
		0, // ignored for unix sockets
		http.HandlerFunc(func(response http.ResponseWriter, _ *http.Request) {
			response.WriteHeader(http.StatusOK)
		}),
		WithListenerConstructors(CaptureListenAddress(address)),
	)

	addr := awaitRun(t, address)
	assert.Equal("unix", addr.Network())

	client := &http.Client{
		Transport: &http.Transport{
			DialContext: func(ctx context.Context, _, _ string) (net.Conn, error) {
				var d net.Dialer
				return d.DialContext(ctx, "unix", socketPath)
			},
		},
	}

	response, err := client.Get("http://unix/")
	require.NoError(err)
	response.Body.Close()
	assert.Equal(http.StatusOK, response.StatusCode)

	cancel()
	assert.ErrorIs(<-result, context.Canceled)
}

func testRunContextAdhocTLS(t *testing.T) {
	var (
		assert  = assert.New(t)
		require = require.New(t)

		ctx, cancel = context.WithCancel(context.Background())
		address     = make(chan net.Addr, 1)
	)

	defer cancel()
	result := runAsync(
		ctx,
		"127.0.0.1",
		0,
		http.HandlerFunc(func(response http.ResponseWriter, _ *http.Request) {
			response.WriteHeader(http.StatusOK)
		}),
		WithAdhocTLS("localhost"),
		WithListenerConstructors(CaptureListenAddress(address)),
	)

	addr := awaitRun(t, address)
	client := &http.Client{
		Transport: &http.Transport{
			TLSClientConfig: &tls.Config{
				InsecureSkipVerify: true, //nolint:gosec // self-signed test certificate
			},
		},
	}

	response, err := client.Get("https://" + addr.String())
	require.NoError(err)
	response.Body.Close()
	assert.Equal(http.StatusOK, response.StatusCode)

	cancel()
	assert.ErrorIs(<-result, context.Canceled)
}

func testRunContextCertFiles(t *testing.T) {
	var (
		assert  = assert.New(t)
		require = require.New(t)

		ctx, cancel = context.WithCancel(context.Background())
		address     = make(chan net.Addr, 1)
		base        = filepath.Join(t.TempDir(), "run")
	)

	defer cancel()
	certificateFile, keyFile, err := servetls.WriteDevCert(base, "localhost")
	require.NoError(err)

	result := runAsync(
		ctx,
		"127.0.0.1",
		0,
		http.NotFoundHandler(),
		WithCertFiles(certificateFile, keyFile),
		WithListenerConstructors(CaptureListenAddress(address)),
	)

	addr := awaitRun(t, address)
	client := &http.Client{
		Transport: &http.Transport{
			TLSClientConfig: &tls.Config{
				InsecureSkipVerify: true, //nolint:gosec // self-signed test certificate
			},
		},
	}

	response, err := client.Get("https://" + addr.String())
	require.NoError(err)
	response.Body.Close()

	cancel()
	assert.ErrorIs(<-result, context.Canceled)
}

func testRunContextTLSConfig(t *testing.T) {
	var (
		assert  = assert.New(t)
		require = require.New(t)

		ctx, cancel = context.WithCancel(context.Background())
		address     = make(chan net.Addr, 1)
	)

	defer cancel()
	tc, err := servetls.NewAdhoc("localhost")
	require.NoError(err)

	result := runAsync(
		ctx,
		"127.0.0.1",
		0,
		http.NotFoundHandler(),
		WithTLSConfig(tc),
		WithListenerConstructors(CaptureListenAddress(address)),
	)

	addr := awaitRun(t, address)
	conn, err := tls.Dial("tcp", addr.String(), &tls.Config{
		InsecureSkipVerify: true, //nolint:gosec // self-signed test certificate
	})

	require.NoError(err)
	assert.NoError(conn.Handshake())
	conn.Close()

	cancel()
	assert.ErrorIs(<-result, context.Canceled)
}

func testRunContextServerOptions(t *testing.T) {
	var (
		assert = assert.New(t)

		ctx, cancel = context.WithCancel(context.Background())
		address     = make(chan net.Addr, 1)
		optionRan   = false
	)

	defer cancel()
	result := runAsync(
		ctx,
		"127.0.0.1",
		0,
		http.NotFoundHandler(),
		WithServerOptions(func(server *http.Server) error {
			optionRan = true
			server.ReadTimeout = 17 * time.Second
			return nil
		}),
		WithListenerConstructors(CaptureListenAddress(address)),
	)

	awaitRun(t, address)
	assert.True(optionRan)

	cancel()
	assert.ErrorIs(<-result, context.Canceled)
}

func testRunContextOptionError(t *testing.T) {
	assert := assert.New(t)
	expectedErr := errors.New("expected option error")

	err := RunContext(
		context.Background(),
		"127.0.0.1",
		0,
		http.NotFoundHandler(),
		func(*runOptions) error { return expectedErr },
	)

	assert.ErrorIs(err, expectedErr)
}

func testRunContextBadBackend(t *testing.T) {
	assert := assert.New(t)
	t.Setenv("FAKEZEUG_RUN_MAIN", "true")

	err := RunContext(
		context.Background(),
		"127.0.0.1",
		0,
		http.NotFoundHandler(),
		WithReloader(),
		WithReloaderBackend("watchdog"),
	)

	assert.Error(err)
}

func testRunContextListenError(t *testing.T) {
	assert := assert.New(t)

	err := RunContext(
		context.Background(),
		"this is not a valid hostname",
		-1,
		http.NotFoundHandler(),
	)

	assert.Error(err)
}

func TestRunContext(t *testing.T) {
	t.Run("Basic", testRunContextBasic)
	t.Run("EmptyHostname", testRunContextEmptyHostname)
	t.Run("Unix", testRunContextUnix)
	t.Run("AdhocTLS", testRunContextAdhocTLS)
	t.Run("CertFiles", testRunContextCertFiles)
	t.Run("TLSConfig", testRunContextTLSConfig)
	t.Run("ServerOptions", testRunContextServerOptions)
	t.Run("OptionError", testRunContextOptionError)
	t.Run("BadBackend", testRunContextBadBackend)
	t.Run("ListenError", testRunContextListenError)
}

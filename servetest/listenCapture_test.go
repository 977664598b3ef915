package servetest

import (
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testListenCaptureSuccess(t *testing.T) {
	var (
		assert  = assert.New(t)
		require = require.New(t)

		ch = make(chan net.Addr, 1)
	)

	original, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(err)
	defer original.Close()

	decorated := ListenCapture(ch)(original)
	assert.Equal(original, decorated)

	addr, ok := ListenReceive(ch, 5*time.Second)
	require.True(ok)
	assert.Equal(original.Addr(), addr)
}

func testListenCaptureTimeout(t *testing.T) {
	var (
		assert = assert.New(t)

		ch = make(chan net.Addr, 1)
	)

	addr, ok := ListenReceive(ch, 10*time.Millisecond)
	assert.False(ok)
	assert.Nil(addr)
}

func TestListenCapture(t *testing.T) {
	t.Run("Success", testListenCaptureSuccess)
	t.Run("Timeout", testListenCaptureTimeout)
}

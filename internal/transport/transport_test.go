package transport

import (
	"net"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConnClassifiesIdleTimeout(t *testing.T) {
	server, client := net.Pipe()
	defer client.Close()
	conn := &Conn{raw: server, readTimeout: 10 * time.Millisecond}

	buf := make([]byte, 4)
	_, err := conn.Read(buf)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrIdleTimeout)
}

func TestConnSurfacesAbruptDisconnect(t *testing.T) {
	server, client := net.Pipe()
	conn := &Conn{raw: server, readTimeout: time.Second}
	require.NoError(t, client.Close())

	buf := make([]byte, 4)
	_, err := conn.Read(buf)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrAbruptDisconnect)
}

func freePort(t *testing.T) int {
	t.Helper()
	raw, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	_, portStr, err := net.SplitHostPort(raw.Addr().String())
	require.NoError(t, err)
	require.NoError(t, raw.Close())
	port, err := strconv.Atoi(portStr)
	require.NoError(t, err)
	return port
}

func TestListenerAcceptsConnectionsAndShutsDownGracefully(t *testing.T) {
	port := freePort(t)
	l, err := New(Config{BindAddress: "127.0.0.1", Port: port, ReadTimeout: time.Second})
	require.NoError(t, err)

	accepted := make(chan *Conn, 1)
	go func() {
		_ = l.Listen(func(c *Conn) {
			accepted <- c
			buf := make([]byte, 1)
			_, _ = c.Read(buf)
		})
	}()

	var clientConn net.Conn
	require.Eventually(t, func() bool {
		c, dialErr := net.Dial("tcp", net.JoinHostPort("127.0.0.1", strconv.Itoa(port)))
		if dialErr != nil {
			return false
		}
		clientConn = c
		return true
	}, time.Second, 10*time.Millisecond)
	defer clientConn.Close()

	select {
	case <-accepted:
	case <-time.After(time.Second):
		t.Fatal("listener never accepted connection")
	}

	assert.Equal(t, int32(1), l.ActiveConnections())
	require.NoError(t, l.Close(time.Second))
}

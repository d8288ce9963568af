package transport

import (
	"encoding/binary"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func pipeConn(t *testing.T) (*Conn, net.Conn) {
	t.Helper()
	server, client := net.Pipe()
	return &Conn{raw: server, readTimeout: time.Second}, client
}

func TestHandshakeFilterSwallowsPreambleThenReplaysHeader(t *testing.T) {
	conn, client := pipeConn(t)
	defer client.Close()

	header := make([]byte, 6)
	binary.BigEndian.PutUint32(header[0:4], 8)
	header[4] = 1 // KindConnect.Phase
	header[5] = 1 // KindConnect.Type

	go func() {
		_, _ = client.Write([]byte{0xFF, 0xFE, 0xFD}) // garbage EBCDIC-ish preamble
		_, _ = client.Write(header)
		_, _ = client.Write([]byte("rest"))
	}()

	require.NoError(t, applyHandshakeFilter(conn))
	assert.Equal(t, header, conn.pending)

	buf := make([]byte, 10)
	n, err := conn.Read(buf)
	require.NoError(t, err)
	assert.Equal(t, header, buf[:n])
	assert.Empty(t, conn.pending)
}

func TestHandshakeFilterGivesUpWithoutMatch(t *testing.T) {
	conn, client := pipeConn(t)
	defer client.Close()

	go func() {
		for i := 0; i < maxPreambleBytes+10; i++ {
			if _, err := client.Write([]byte{0x00}); err != nil {
				return
			}
		}
	}()

	err := applyHandshakeFilter(conn)
	assert.Error(t, err)
}

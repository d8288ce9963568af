package transport

import (
	"encoding/binary"
	"fmt"

	"github.com/horssit/pesitd/internal/pesit/wire"
)

// maxPreambleBytes bounds how many leading bytes the handshake filter will
// swallow before giving up — a legitimate IBM/EBCDIC preamble is a handful
// of bytes, not a sustained stream.
const maxPreambleBytes = 256

// applyHandshakeFilter consumes leading bytes on conn until it recognizes a
// CONNECT FPDU header (frame length + phase/type = KindConnect), per the
// source's "pre-connection handshake" compatibility flag (§9 open
// question). It is disabled by default and toggled per listener. Matched
// header bytes are buffered back onto conn so the codec sees them.
func applyHandshakeFilter(conn *Conn) error {
	window := make([]byte, 0, 6)
	one := make([]byte, 1)

	for swallowed := 0; swallowed < maxPreambleBytes; swallowed++ {
		n, err := conn.raw.Read(one)
		if n == 0 || err != nil {
			if err != nil {
				return classify(err)
			}
			continue
		}

		window = append(window, one[0])
		if len(window) > 6 {
			window = window[len(window)-6:]
		}
		if len(window) == 6 && looksLikeConnectHeader(window) {
			conn.pending = append([]byte(nil), window...)
			return nil
		}
	}
	return fmt.Errorf("transport: no recognizable CONNECT header within %d preamble bytes", maxPreambleBytes)
}

func looksLikeConnectHeader(window []byte) bool {
	frameLen := binary.BigEndian.Uint32(window[0:4])
	phase, typ := window[4], window[5]
	if phase != wire.KindConnect.Phase || typ != wire.KindConnect.Type {
		return false
	}
	return frameLen >= 4 && uint64(frameLen) <= wire.MaxFrameSize
}

// Package engine runs the per-connection PeSIT-E session loop: decode an
// FPDU, validate the transition against the state machine, dispatch to the
// matching handler, encode and write the response. It is the glue between
// the listener's accept loop and the handlers package's per-phase logic.
package engine

import (
	"github.com/horssit/pesitd/internal/pesit/wire"
	"github.com/horssit/pesitd/internal/transport"
)

// wireConn adapts a *transport.Conn to handlers.Conn by framing reads and
// writes through the wire codec.
type wireConn struct {
	raw *transport.Conn
}

func (w *wireConn) ReadFPDU() (*wire.FPDU, error) {
	return wire.Decode(w.raw)
}

func (w *wireConn) WriteFPDU(f *wire.FPDU) error {
	b, err := wire.Encode(f)
	if err != nil {
		return err
	}
	_, err = w.raw.Write(b)
	return err
}

package handlers

import (
	"fmt"

	"github.com/horssit/pesitd/internal/pesit/diag"
)

// ProtocolError signals that a handler could not proceed because the
// session is missing state that has to be established by this point (no
// open receiver at DTF/SYN/DTF_END/TRANS_END time, no Transfer context at
// READ time), or because a DTF exceeds the maximum entity size, or an
// unexpected acknowledgement arrives while sending. The engine maps it to
// an ABORT carrying Code.
type ProtocolError struct {
	Code diag.Code
}

func (e *ProtocolError) Error() string {
	return fmt.Sprintf("handlers: %s: %s", e.Code, diag.Reason(e.Code))
}

func protocolError(code diag.Code) error {
	return &ProtocolError{Code: code}
}

package wire

import "errors"

// ErrMalformedFrame is returned when the frame's declared length does not
// match the bytes actually available, or a length field is otherwise
// impossible (e.g. implies reading past the frame's own declared size).
// This is fatal for the session per spec: the caller must ABORT and close.
var ErrMalformedFrame = errors.New("wire: malformed FPDU frame")

// ErrUnknownKind is returned when the phase/type byte pair does not match
// any recognized FPDU kind. This triggers a protocol-level ABORT with a
// defined diagnostic, but the session may continue reading afterward.
var ErrUnknownKind = errors.New("wire: unrecognized FPDU kind")

// ErrFrameTooLarge is returned when a frame's declared length exceeds
// MaxFrameSize, guarding against a malicious or corrupt length field
// causing an unbounded allocation.
var ErrFrameTooLarge = errors.New("wire: frame exceeds maximum size")

// MaxFrameSize bounds the total size of a single FPDU frame (header +
// parameters + payload). A conformant PeSIT-E peer never needs a frame
// this large; anything bigger is treated as malformed rather than decoded.
const MaxFrameSize = 64 * 1024 * 1024

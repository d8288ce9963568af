package wire

import (
	"encoding/binary"
	"fmt"
	"io"
)

// frameHeaderSize is the number of bytes preceding the parameter section:
// 4 (frame length) + 1 (phase) + 1 (type) + 2 (dest conn id) + 2 (source
// conn id) + 2 (params length).
const frameHeaderSize = 12

// Decode reads exactly one FPDU from r. It returns ErrMalformedFrame for
// any length mismatch or truncation, and ErrUnknownKind if the phase/type
// pair is not recognized — the latter still yields a non-nil FPDU with the
// raw Kind populated, so the caller can map it to a protocol ABORT.
func Decode(r io.Reader) (*FPDU, error) {
	var frameLenBuf [4]byte
	if _, err := io.ReadFull(r, frameLenBuf[:]); err != nil {
		if err == io.EOF {
			return nil, err
		}
		return nil, fmt.Errorf("%w: reading frame length: %w", ErrMalformedFrame, err)
	}
	frameLen := binary.BigEndian.Uint32(frameLenBuf[:])
	if frameLen > MaxFrameSize {
		return nil, ErrFrameTooLarge
	}
	if frameLen < frameHeaderSize-4 {
		return nil, fmt.Errorf("%w: frame length %d shorter than header", ErrMalformedFrame, frameLen)
	}

	body := make([]byte, frameLen)
	if _, err := io.ReadFull(r, body); err != nil {
		return nil, fmt.Errorf("%w: reading frame body: %w", ErrMalformedFrame, err)
	}
	return decodeBody(body)
}

func decodeBody(body []byte) (*FPDU, error) {
	if len(body) < frameHeaderSize-4 {
		return nil, fmt.Errorf("%w: body too short for header", ErrMalformedFrame)
	}
	phase := body[0]
	typ := body[1]
	dest := binary.BigEndian.Uint16(body[2:4])
	src := binary.BigEndian.Uint16(body[4:6])
	paramsLen := binary.BigEndian.Uint16(body[6:8])
	rest := body[8:]

	if int(paramsLen) > len(rest) {
		return nil, fmt.Errorf("%w: declared params length %d exceeds available %d", ErrMalformedFrame, paramsLen, len(rest))
	}
	paramBytes := rest[:paramsLen]
	afterParams := rest[paramsLen:]

	params, err := decodeParams(paramBytes)
	if err != nil {
		return nil, err
	}

	f := &FPDU{
		Kind:        Kind{phase, typ},
		Destination: dest,
		Source:      src,
		Params:      params,
	}

	if f.Kind.DataBearing() {
		if len(afterParams) < 4 {
			return nil, fmt.Errorf("%w: missing payload length", ErrMalformedFrame)
		}
		payloadLen := binary.BigEndian.Uint32(afterParams[:4])
		payload := afterParams[4:]
		if uint64(payloadLen) != uint64(len(payload)) {
			return nil, fmt.Errorf("%w: declared payload length %d does not match available %d", ErrMalformedFrame, payloadLen, len(payload))
		}
		f.Payload = payload
	} else if len(afterParams) != 0 {
		return nil, fmt.Errorf("%w: unexpected trailing bytes for non-data kind", ErrMalformedFrame)
	}

	if _, known := kindNames[f.Kind]; !known {
		return f, ErrUnknownKind
	}
	return f, nil
}

// decodeParams parses the flat parameter-section bytes into an ordered
// list of Param values, recursing into nested groups. It never panics: any
// inconsistency in a length field yields ErrMalformedFrame.
func decodeParams(b []byte) ([]Param, error) {
	var params []Param
	for len(b) > 0 {
		if len(b) < 4 {
			return nil, fmt.Errorf("%w: truncated parameter header", ErrMalformedFrame)
		}
		id := b[0]
		isGroup := b[1] != 0
		length := binary.BigEndian.Uint16(b[2:4])
		b = b[4:]
		if int(length) > len(b) {
			return nil, fmt.Errorf("%w: parameter %d declares length %d beyond remaining %d", ErrMalformedFrame, id, length, len(b))
		}
		value := b[:length]
		b = b[length:]

		if isGroup {
			nested, err := decodeParams(value)
			if err != nil {
				return nil, err
			}
			params = append(params, Param{ID: id, isGroup: true, Group: Group{Params: nested}})
		} else {
			// Copy to avoid aliasing the caller's buffer beyond this decode.
			bytesCopy := make([]byte, len(value))
			copy(bytesCopy, value)
			params = append(params, Param{ID: id, Primitive: Primitive{Bytes: bytesCopy}})
		}
	}
	return params, nil
}

package wire

import (
	"encoding/binary"
	"fmt"
)

// Encode serializes an FPDU to its exact wire representation. Parameter
// order in f.Params is preserved verbatim, including any unknown parameter
// identifiers the caller chose to carry through unchanged.
func Encode(f *FPDU) ([]byte, error) {
	paramBytes, err := encodeParams(f.Params)
	if err != nil {
		return nil, err
	}
	if len(paramBytes) > 0xFFFF {
		return nil, fmt.Errorf("wire: encoded parameters exceed %d bytes", 0xFFFF)
	}

	body := make([]byte, 8, 8+len(paramBytes)+4+len(f.Payload))
	body[0] = f.Kind.Phase
	body[1] = f.Kind.Type
	binary.BigEndian.PutUint16(body[2:4], f.Destination)
	binary.BigEndian.PutUint16(body[4:6], f.Source)
	binary.BigEndian.PutUint16(body[6:8], uint16(len(paramBytes)))
	body = append(body, paramBytes...)

	if f.Kind.DataBearing() {
		var payloadLen [4]byte
		binary.BigEndian.PutUint32(payloadLen[:], uint32(len(f.Payload)))
		body = append(body, payloadLen[:]...)
		body = append(body, f.Payload...)
	}

	if uint64(len(body)) > MaxFrameSize {
		return nil, ErrFrameTooLarge
	}

	out := make([]byte, 4, 4+len(body))
	binary.BigEndian.PutUint32(out[0:4], uint32(len(body)))
	out = append(out, body...)
	return out, nil
}

func encodeParams(params []Param) ([]byte, error) {
	var out []byte
	for _, p := range params {
		var value []byte
		if p.IsPrimitive() {
			value = p.Primitive.Bytes
		} else {
			nested, err := encodeParams(p.Group.Params)
			if err != nil {
				return nil, err
			}
			value = nested
		}
		if len(value) > 0xFFFF {
			return nil, fmt.Errorf("wire: parameter %d value exceeds %d bytes", p.ID, 0xFFFF)
		}
		var header [4]byte
		header[0] = p.ID
		if !p.IsPrimitive() {
			header[1] = 1
		}
		binary.BigEndian.PutUint16(header[2:4], uint16(len(value)))
		out = append(out, header[:]...)
		out = append(out, value...)
	}
	return out, nil
}

package wire

import (
	"bytes"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleFPDU() *FPDU {
	return &FPDU{
		Kind:        KindConnect,
		Destination: 7,
		Source:      42,
		Params: []Param{
			NewStringPrimitive(0x03, "PART01"),
			NewUint32Primitive(0x06, 2),
			NewGroup(0x09,
				NewStringPrimitive(0x12, "TESTFILE"),
				NewUint32Primitive(0x13, 99),
			),
		},
	}
}

func TestRoundTrip(t *testing.T) {
	f := sampleFPDU()
	encoded, err := Encode(f)
	require.NoError(t, err)

	decoded, err := Decode(bytes.NewReader(encoded))
	require.NoError(t, err)

	assert.Equal(t, f.Kind, decoded.Kind)
	assert.Equal(t, f.Destination, decoded.Destination)
	assert.Equal(t, f.Source, decoded.Source)
	require.Len(t, decoded.Params, len(f.Params))

	for i, p := range f.Params {
		assert.Equal(t, p.ID, decoded.Params[i].ID)
		assert.Equal(t, p.IsPrimitive(), decoded.Params[i].IsPrimitive())
	}

	reencoded, err := Encode(decoded)
	require.NoError(t, err)
	assert.True(t, bytes.Equal(encoded, reencoded), "encode(decode(bytes)) must equal bytes")
}

func TestDataBearingFPDU(t *testing.T) {
	f := &FPDU{
		Kind:        KindDTF,
		Destination: 1,
		Source:      2,
		Payload:     []byte("hello world"),
	}
	encoded, err := Encode(f)
	require.NoError(t, err)

	decoded, err := Decode(bytes.NewReader(encoded))
	require.NoError(t, err)
	assert.Equal(t, f.Payload, decoded.Payload)
}

func TestUnknownParameterPreservedInPosition(t *testing.T) {
	f := &FPDU{
		Kind: KindAckSelect,
		Params: []Param{
			NewUint32Primitive(0x02, 0), // diagnostic, known
			NewPrimitive(0xF0, []byte{1, 2, 3}), // unknown to any handler
			NewStringPrimitive(0x12, "NAME"),
		},
	}
	encoded, err := Encode(f)
	require.NoError(t, err)

	decoded, err := Decode(bytes.NewReader(encoded))
	require.NoError(t, err)
	require.Len(t, decoded.Params, 3)
	assert.Equal(t, byte(0xF0), decoded.Params[1].ID)
	assert.Equal(t, []byte{1, 2, 3}, decoded.Params[1].Primitive.Bytes)
}

func TestUnknownKindYieldsErrUnknownKindButParses(t *testing.T) {
	f := &FPDU{Kind: Kind{0x7F, 0x7F}, Destination: 1, Source: 1}
	encoded, err := Encode(f)
	require.NoError(t, err)

	decoded, err := Decode(bytes.NewReader(encoded))
	require.ErrorIs(t, err, ErrUnknownKind)
	require.NotNil(t, decoded)
	assert.Equal(t, Kind{0x7F, 0x7F}, decoded.Kind)
}

func TestTruncatedFrameIsMalformedNotPanic(t *testing.T) {
	f := sampleFPDU()
	encoded, err := Encode(f)
	require.NoError(t, err)

	for cut := 1; cut < len(encoded); cut++ {
		truncated := encoded[:cut]
		assert.NotPanics(t, func() {
			_, err := Decode(bytes.NewReader(truncated))
			if err != nil {
				assert.ErrorIs(t, err, ErrMalformedFrame)
			}
		})
	}
}

func TestGroupMustContainOnlyNestedParams(t *testing.T) {
	// A group whose declared length doesn't align on a nested-param
	// boundary must be reported as malformed, not silently accepted.
	raw := []byte{
		0, 0, 0, 13, // frame length
		0x02, 0x04, // phase, type = ACK_SELECT
		0, 0, 0, 0, // dest, src
		0, 5, // params length = 5
		0x09, 1, 0, 1, // group id 9, length 1 byte -- but no param fits in 1 byte
		0x00, // the group's single content byte
	}
	_, err := Decode(bytes.NewReader(raw))
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrMalformedFrame)
}

func TestRandomizedRoundTrip(t *testing.T) {
	rng := rand.New(rand.NewSource(1))
	for i := 0; i < 200; i++ {
		n := rng.Intn(6)
		params := make([]Param, 0, n)
		for j := 0; j < n; j++ {
			id := byte(rng.Intn(256))
			if rng.Intn(2) == 0 {
				buf := make([]byte, rng.Intn(32))
				rng.Read(buf)
				params = append(params, NewPrimitive(id, buf))
			} else {
				params = append(params, NewGroup(id, NewUint32Primitive(byte(rng.Intn(256)), uint32(rng.Int31()))))
			}
		}
		f := &FPDU{
			Kind:        KindMsg,
			Destination: uint16(rng.Intn(65536)),
			Source:      uint16(rng.Intn(65536)),
			Params:      params,
		}
		encoded, err := Encode(f)
		require.NoError(t, err)
		decoded, err := Decode(bytes.NewReader(encoded))
		require.NoError(t, err)
		reencoded, err := Encode(decoded)
		require.NoError(t, err)
		require.True(t, bytes.Equal(encoded, reencoded), "iteration %d: byte mismatch", i)
	}
}

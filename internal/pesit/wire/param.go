package wire

// Primitive is a single typed parameter value: either a variable-length
// byte string or a fixed-width integer, tagged by an 8-bit parameter
// identifier at the Param level. The codec does not interpret the meaning
// of a parameter id; callers (the handlers) know which PI_nn they expect
// and how to interpret Bytes.
type Primitive struct {
	Bytes []byte
}

// Uint32 interprets the primitive as a big-endian unsigned integer,
// zero-extending if fewer than 4 bytes were carried on the wire (PeSIT
// encodes integers in the minimal number of bytes that fit the value).
func (p Primitive) Uint32() uint32 {
	var v uint32
	for _, b := range p.Bytes {
		v = v<<8 | uint32(b)
	}
	return v
}

// String interprets the primitive as an ASCII/opaque string.
func (p Primitive) String() string { return string(p.Bytes) }

// Group is an ordered, nested sequence of parameter values carried under a
// parameter group identifier (PGI_nn). Groups may not contain arbitrary
// bytes — every member must itself decode as a Param.
type Group struct {
	Params []Param
}

// Param returns the first primitive with the given id in this group.
func (g Group) Param(id byte) (Primitive, bool) {
	for _, p := range g.Params {
		if p.IsPrimitive() && p.ID == id {
			return p.Primitive, true
		}
	}
	return Primitive{}, false
}

// Param is one ordered entry in an FPDU's parameter list or a group's
// nested parameter list: either a primitive or a nested group, tagged by
// an 8-bit identifier. Exactly one of Primitive/Group is meaningful,
// selected by isGroup.
type Param struct {
	ID        byte
	isGroup   bool
	Primitive Primitive
	Group     Group
}

// IsPrimitive reports whether this Param carries a primitive value (as
// opposed to a nested group).
func (p Param) IsPrimitive() bool { return !p.isGroup }

// NewPrimitive builds a primitive parameter with the given identifier and
// raw bytes.
func NewPrimitive(id byte, b []byte) Param {
	return Param{ID: id, Primitive: Primitive{Bytes: b}}
}

// NewUint32Primitive builds a primitive parameter carrying a big-endian
// unsigned integer in the minimal number of bytes (matching how
// conformant PeSIT peers encode small integers).
func NewUint32Primitive(id byte, v uint32) Param {
	var b []byte
	switch {
	case v <= 0xFF:
		b = []byte{byte(v)}
	case v <= 0xFFFF:
		b = []byte{byte(v >> 8), byte(v)}
	case v <= 0xFFFFFF:
		b = []byte{byte(v >> 16), byte(v >> 8), byte(v)}
	default:
		b = []byte{byte(v >> 24), byte(v >> 16), byte(v >> 8), byte(v)}
	}
	return NewPrimitive(id, b)
}

// NewStringPrimitive builds a primitive parameter carrying an ASCII string.
func NewStringPrimitive(id byte, s string) Param {
	return NewPrimitive(id, []byte(s))
}

// NewGroup builds a nested parameter group with the given identifier.
func NewGroup(id byte, params ...Param) Param {
	return Param{ID: id, isGroup: true, Group: Group{Params: params}}
}

package header

import "encoding/binary"

// Envelope layout:
//
//	 0                   1                   2                   3
//	+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+
//	|                        Interface Index                        |
//	+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+
//	|                      Sub-Interface Index                      |
//	+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+
//	|   Direction   |   Reserved    |            Length             |
//	+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+
const (
	envIfIdx     = 0
	envSubIfIdx  = 4
	envDirection = 8
	envLength    = 10

	// EnvelopeSize is the size of the diversion envelope.
	EnvelopeSize = 12
)

// EnvelopeFields describes a diversion envelope to encode.
type EnvelopeFields struct {
	IfIdx     uint32
	SubIfIdx  uint32
	Direction uint8
	// Length is the length of the IP packet following the envelope.
	Length uint16
}

// Envelope is the out-of-band metadata prefix of a diverted packet.
type Envelope []byte

// IsValid reports whether the slice can hold an envelope.
func (e Envelope) IsValid() bool {
	return len(e) >= EnvelopeSize
}

// IfIdx returns the interface index.
func (e Envelope) IfIdx() uint32 {
	return binary.BigEndian.Uint32(e[envIfIdx:])
}

// SubIfIdx returns the sub-interface index.
func (e Envelope) SubIfIdx() uint32 {
	return binary.BigEndian.Uint32(e[envSubIfIdx:])
}

// Direction returns the raw direction byte.
func (e Envelope) Direction() uint8 {
	return e[envDirection]
}

// Length returns the length of the packet following the envelope.
func (e Envelope) Length() uint16 {
	return binary.BigEndian.Uint16(e[envLength:])
}

// Payload returns the bytes following the envelope.
func (e Envelope) Payload() []byte {
	return e[EnvelopeSize:]
}

// SetIfIdx sets the interface index.
func (e Envelope) SetIfIdx(v uint32) {
	binary.BigEndian.PutUint32(e[envIfIdx:], v)
}

// SetSubIfIdx sets the sub-interface index.
func (e Envelope) SetSubIfIdx(v uint32) {
	binary.BigEndian.PutUint32(e[envSubIfIdx:], v)
}

// SetDirection sets the raw direction byte.
func (e Envelope) SetDirection(v uint8) {
	e[envDirection] = v
}

// SetLength sets the packet length field.
func (e Envelope) SetLength(v uint16) {
	binary.BigEndian.PutUint16(e[envLength:], v)
}

// Encode writes all envelope fields, clearing the reserved byte.
func (e Envelope) Encode(f *EnvelopeFields) {
	e.SetIfIdx(f.IfIdx)
	e.SetSubIfIdx(f.SubIfIdx)
	e[envDirection] = f.Direction
	e[envDirection+1] = 0
	e.SetLength(f.Length)
}

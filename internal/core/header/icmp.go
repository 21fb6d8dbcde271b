package header

import "encoding/binary"

// ICMPv4 and ICMPv6 share the same leading layout:
//
//	+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+
//	|     Type      |     Code      |          Checksum             |
//	+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+
//	|                     Rest of header (body)                     |
//	+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+
//	|                         Data ...
const (
	icmpType     = 0
	icmpCode     = 1
	icmpChecksum = 2
	icmpBody     = 4

	// ICMPv4MinimumSize is the size of the ICMPv4 header including the
	// 4-byte body that precedes the data.
	ICMPv4MinimumSize = 8

	// ICMPv6MinimumSize is the size of the ICMPv6 header including the
	// 4-byte body that precedes the data.
	ICMPv6MinimumSize = 8
)

// ICMPv4 message types and codes used by nfreject.
const (
	ICMPv4DstUnreachable  uint8 = 3
	ICMPv4PortUnreachable uint8 = 3
)

// ICMPv6 message types and codes used by nfreject.
const (
	ICMPv6DstUnreachable  uint8 = 1
	ICMPv6PortUnreachable uint8 = 4
)

// ICMPFields describes an ICMPv4 or ICMPv6 header to encode.
type ICMPFields struct {
	Type     uint8
	Code     uint8
	Checksum uint16
	Body     uint32
}

// ICMPv4 is a view over an ICMPv4 message.
type ICMPv4 []byte

// IsValid reports whether b holds a complete header.
func (b ICMPv4) IsValid() bool {
	return len(b) >= ICMPv4MinimumSize
}

// Type returns the message type.
func (b ICMPv4) Type() uint8 {
	return b[icmpType]
}

// Code returns the message code.
func (b ICMPv4) Code() uint8 {
	return b[icmpCode]
}

// Checksum returns the checksum field.
func (b ICMPv4) Checksum() uint16 {
	return binary.BigEndian.Uint16(b[icmpChecksum:])
}

// Body returns the 4 bytes following the checksum.
func (b ICMPv4) Body() uint32 {
	return binary.BigEndian.Uint32(b[icmpBody:])
}

// Payload returns the message data.
func (b ICMPv4) Payload() []byte {
	return b[ICMPv4MinimumSize:]
}

// SetChecksum sets the checksum field.
func (b ICMPv4) SetChecksum(v uint16) {
	binary.BigEndian.PutUint16(b[icmpChecksum:], v)
}

// Encode writes the header from f.
func (b ICMPv4) Encode(f *ICMPFields) {
	encodeICMP(b, f)
}

// ICMPv6 is a view over an ICMPv6 message.
type ICMPv6 []byte

// IsValid reports whether b holds a complete header.
func (b ICMPv6) IsValid() bool {
	return len(b) >= ICMPv6MinimumSize
}

// Type returns the message type.
func (b ICMPv6) Type() uint8 {
	return b[icmpType]
}

// Code returns the message code.
func (b ICMPv6) Code() uint8 {
	return b[icmpCode]
}

// Checksum returns the checksum field.
func (b ICMPv6) Checksum() uint16 {
	return binary.BigEndian.Uint16(b[icmpChecksum:])
}

// Body returns the 4 bytes following the checksum.
func (b ICMPv6) Body() uint32 {
	return binary.BigEndian.Uint32(b[icmpBody:])
}

// Payload returns the message data.
func (b ICMPv6) Payload() []byte {
	return b[ICMPv6MinimumSize:]
}

// SetChecksum sets the checksum field.
func (b ICMPv6) SetChecksum(v uint16) {
	binary.BigEndian.PutUint16(b[icmpChecksum:], v)
}

// Encode writes the header from f.
func (b ICMPv6) Encode(f *ICMPFields) {
	encodeICMP(b, f)
}

func encodeICMP(b []byte, f *ICMPFields) {
	b[icmpType] = f.Type
	b[icmpCode] = f.Code
	binary.BigEndian.PutUint16(b[icmpChecksum:], f.Checksum)
	binary.BigEndian.PutUint32(b[icmpBody:], f.Body)
}

package header

import "encoding/binary"

const (
	udpSrcPort  = 0
	udpDstPort  = 2
	udpLength   = 4
	udpChecksum = 6

	// UDPMinimumSize is the size of the UDP header.
	UDPMinimumSize = 8
)

// UDPFields describes a UDP header to encode.
type UDPFields struct {
	SrcPort  uint16
	DstPort  uint16
	Length   uint16
	Checksum uint16
}

// UDP is a view over a UDP header and its payload.
type UDP []byte

// IsValid reports whether b holds a complete header.
func (b UDP) IsValid() bool {
	return len(b) >= UDPMinimumSize
}

// SourcePort returns the source port.
func (b UDP) SourcePort() uint16 {
	return binary.BigEndian.Uint16(b[udpSrcPort:])
}

// DestinationPort returns the destination port.
func (b UDP) DestinationPort() uint16 {
	return binary.BigEndian.Uint16(b[udpDstPort:])
}

// Length returns the length field, header included.
func (b UDP) Length() uint16 {
	return binary.BigEndian.Uint16(b[udpLength:])
}

// Checksum returns the checksum field.
func (b UDP) Checksum() uint16 {
	return binary.BigEndian.Uint16(b[udpChecksum:])
}

// Payload returns the bytes after the header.
func (b UDP) Payload() []byte {
	return b[UDPMinimumSize:]
}

// SetLength sets the length field.
func (b UDP) SetLength(v uint16) {
	binary.BigEndian.PutUint16(b[udpLength:], v)
}

// SetChecksum sets the checksum field.
func (b UDP) SetChecksum(v uint16) {
	binary.BigEndian.PutUint16(b[udpChecksum:], v)
}

// Encode writes the header from f.
func (b UDP) Encode(f *UDPFields) {
	binary.BigEndian.PutUint16(b[udpSrcPort:], f.SrcPort)
	binary.BigEndian.PutUint16(b[udpDstPort:], f.DstPort)
	b.SetLength(f.Length)
	b.SetChecksum(f.Checksum)
}

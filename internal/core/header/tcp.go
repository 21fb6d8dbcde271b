package header

import (
	"encoding/binary"
	"strings"
)

const (
	tcpSrcPort    = 0
	tcpDstPort    = 2
	tcpSeqNum     = 4
	tcpAckNum     = 8
	tcpDataOffset = 12
	tcpFlags      = 13
	tcpWinSize    = 14
	tcpChecksum   = 16
	tcpUrgentPtr  = 18

	// TCPMinimumSize is the size of a TCP header without options.
	TCPMinimumSize = 20
)

// TCPFlags is the set of control bits in byte 13 of the TCP header.
type TCPFlags uint8

// TCP control bits.
const (
	TCPFlagFin TCPFlags = 1 << iota
	TCPFlagSyn
	TCPFlagRst
	TCPFlagPsh
	TCPFlagAck
	TCPFlagUrg
)

// Contains reports whether all bits of o are set in f.
func (f TCPFlags) Contains(o TCPFlags) bool {
	return f&o == o
}

// String renders the flags as "[FIN][RST][URG][SYN][PSH][ACK]", listing
// only the bits that are set.
func (f TCPFlags) String() string {
	var sb strings.Builder
	for _, fl := range []struct {
		bit  TCPFlags
		name string
	}{
		{TCPFlagFin, "[FIN]"},
		{TCPFlagRst, "[RST]"},
		{TCPFlagUrg, "[URG]"},
		{TCPFlagSyn, "[SYN]"},
		{TCPFlagPsh, "[PSH]"},
		{TCPFlagAck, "[ACK]"},
	} {
		if f&fl.bit != 0 {
			sb.WriteString(fl.name)
		}
	}
	return sb.String()
}

// TCPFields describes a TCP header to encode.
type TCPFields struct {
	SrcPort    uint16
	DstPort    uint16
	SeqNum     uint32
	AckNum     uint32
	DataOffset uint8 // in bytes, multiple of 4
	Flags      TCPFlags
	WindowSize uint16
	Checksum   uint16
	UrgentPtr  uint16
}

// TCP is a view over a TCP header and its payload.
type TCP []byte

// IsValid reports whether b holds the header its data offset describes.
func (b TCP) IsValid() bool {
	if len(b) < TCPMinimumSize {
		return false
	}
	off := int(b.DataOffset())
	return off >= TCPMinimumSize && off <= len(b)
}

// SourcePort returns the source port.
func (b TCP) SourcePort() uint16 {
	return binary.BigEndian.Uint16(b[tcpSrcPort:])
}

// DestinationPort returns the destination port.
func (b TCP) DestinationPort() uint16 {
	return binary.BigEndian.Uint16(b[tcpDstPort:])
}

// SequenceNumber returns the sequence number.
func (b TCP) SequenceNumber() uint32 {
	return binary.BigEndian.Uint32(b[tcpSeqNum:])
}

// AckNumber returns the acknowledgment number.
func (b TCP) AckNumber() uint32 {
	return binary.BigEndian.Uint32(b[tcpAckNum:])
}

// DataOffset returns the header length in bytes.
func (b TCP) DataOffset() uint8 {
	return (b[tcpDataOffset] >> 4) * 4
}

// Flags returns the control bits.
func (b TCP) Flags() TCPFlags {
	return TCPFlags(b[tcpFlags] & 0x3F)
}

// WindowSize returns the window.
func (b TCP) WindowSize() uint16 {
	return binary.BigEndian.Uint16(b[tcpWinSize:])
}

// Checksum returns the checksum field.
func (b TCP) Checksum() uint16 {
	return binary.BigEndian.Uint16(b[tcpChecksum:])
}

// UrgentPointer returns the urgent pointer.
func (b TCP) UrgentPointer() uint16 {
	return binary.BigEndian.Uint16(b[tcpUrgentPtr:])
}

// Payload returns the bytes after the header and its options.
func (b TCP) Payload() []byte {
	return b[b.DataOffset():]
}

// SetSourcePort sets the source port.
func (b TCP) SetSourcePort(v uint16) {
	binary.BigEndian.PutUint16(b[tcpSrcPort:], v)
}

// SetDestinationPort sets the destination port.
func (b TCP) SetDestinationPort(v uint16) {
	binary.BigEndian.PutUint16(b[tcpDstPort:], v)
}

// SetSequenceNumber sets the sequence number.
func (b TCP) SetSequenceNumber(v uint32) {
	binary.BigEndian.PutUint32(b[tcpSeqNum:], v)
}

// SetAckNumber sets the acknowledgment number.
func (b TCP) SetAckNumber(v uint32) {
	binary.BigEndian.PutUint32(b[tcpAckNum:], v)
}

// SetFlags replaces the control bits.
func (b TCP) SetFlags(f TCPFlags) {
	b[tcpFlags] = b[tcpFlags]&0xC0 | uint8(f)&0x3F
}

// SetChecksum sets the checksum field.
func (b TCP) SetChecksum(v uint16) {
	binary.BigEndian.PutUint16(b[tcpChecksum:], v)
}

// Encode writes the header from f. A zero DataOffset encodes the minimum
// header size.
func (b TCP) Encode(f *TCPFields) {
	off := f.DataOffset
	if off == 0 {
		off = TCPMinimumSize
	}
	b.SetSourcePort(f.SrcPort)
	b.SetDestinationPort(f.DstPort)
	b.SetSequenceNumber(f.SeqNum)
	b.SetAckNumber(f.AckNum)
	b[tcpDataOffset] = (off / 4) << 4
	b[tcpFlags] = uint8(f.Flags) & 0x3F
	binary.BigEndian.PutUint16(b[tcpWinSize:], f.WindowSize)
	b.SetChecksum(f.Checksum)
	binary.BigEndian.PutUint16(b[tcpUrgentPtr:], f.UrgentPtr)
}

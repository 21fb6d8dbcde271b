package header

import (
	"encoding/binary"
	"net/netip"
)

// IPv4 header layout (RFC 791):
//
//	 0                   1                   2                   3
//	 0 1 2 3 4 5 6 7 8 9 0 1 2 3 4 5 6 7 8 9 0 1 2 3 4 5 6 7 8 9 0 1
//	+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+
//	|Version|  IHL  |Type of Service|          Total Length         |
//	+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+
//	|         Identification        |Flags|      Fragment Offset    |
//	+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+
//	|  Time to Live |    Protocol   |         Header Checksum       |
//	+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+
//	|                       Source Address                          |
//	+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+
//	|                    Destination Address                        |
//	+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+
const (
	ip4VersIHL  = 0
	ip4TOS      = 1
	ip4TotalLen = 2
	ip4ID       = 4
	ip4FlagsFO  = 6
	ip4TTL      = 8
	ip4Protocol = 9
	ip4Checksum = 10
	ip4SrcAddr  = 12
	ip4DstAddr  = 16
)

const (
	// IPv4MinimumSize is the size of an IPv4 header without options.
	IPv4MinimumSize = 20

	// IPv4MaximumHeaderSize is the largest header the 4-bit IHL field can
	// describe: 15 words of 4 bytes.
	IPv4MaximumHeaderSize = 0x0F * 4

	// IPv4Version is the value of the version nibble.
	IPv4Version = 4

	// IPv4AddressSize is the size of an IPv4 address.
	IPv4AddressSize = 4
)

// IPv4Fields describes an IPv4 header to encode. Options are never
// encoded, so the IHL is always 5.
type IPv4Fields struct {
	TOS            uint8
	TotalLength    uint16
	ID             uint16
	Flags          uint8
	FragmentOffset uint16
	TTL            uint8
	Protocol       uint8
	Checksum       uint16
	SrcAddr        netip.Addr
	DstAddr        netip.Addr
}

// IPv4 is a view over an IPv4 header and everything that follows it.
type IPv4 []byte

// IsValid reports whether b holds a complete IPv4 header whose IHL and total
// length are consistent with the slice.
func (b IPv4) IsValid() bool {
	if len(b) < IPv4MinimumSize {
		return false
	}
	if b.Version() != IPv4Version {
		return false
	}
	hlen := b.HeaderLength()
	if hlen < IPv4MinimumSize || hlen > len(b) {
		return false
	}
	return int(b.TotalLength()) >= hlen
}

// Version returns the version nibble.
func (b IPv4) Version() uint8 {
	return b[ip4VersIHL] >> 4
}

// IHL returns the header length in 32-bit words.
func (b IPv4) IHL() uint8 {
	return b[ip4VersIHL] & 0x0F
}

// HeaderLength returns the header length in bytes, options included.
func (b IPv4) HeaderLength() int {
	return int(b.IHL()) * 4
}

// TOS returns the type of service byte.
func (b IPv4) TOS() uint8 {
	return b[ip4TOS]
}

// TotalLength returns the total length field.
func (b IPv4) TotalLength() uint16 {
	return binary.BigEndian.Uint16(b[ip4TotalLen:])
}

// ID returns the identification field.
func (b IPv4) ID() uint16 {
	return binary.BigEndian.Uint16(b[ip4ID:])
}

// IPv4 flag bits as returned by Flags.
const (
	IPv4FlagMoreFragments uint8 = 1 << iota
	IPv4FlagDontFragment
)

// Flags returns the three flag bits.
func (b IPv4) Flags() uint8 {
	return b[ip4FlagsFO] >> 5
}

// FragmentOffset returns the fragment offset in bytes.
func (b IPv4) FragmentOffset() uint16 {
	return (binary.BigEndian.Uint16(b[ip4FlagsFO:]) & 0x1FFF) << 3
}

// TTL returns the time to live.
func (b IPv4) TTL() uint8 {
	return b[ip4TTL]
}

// Protocol returns the transport protocol number.
func (b IPv4) Protocol() uint8 {
	return b[ip4Protocol]
}

// Checksum returns the header checksum.
func (b IPv4) Checksum() uint16 {
	return binary.BigEndian.Uint16(b[ip4Checksum:])
}

// SourceAddress returns the source address.
func (b IPv4) SourceAddress() netip.Addr {
	return netip.AddrFrom4([4]byte(b[ip4SrcAddr : ip4SrcAddr+IPv4AddressSize]))
}

// DestinationAddress returns the destination address.
func (b IPv4) DestinationAddress() netip.Addr {
	return netip.AddrFrom4([4]byte(b[ip4DstAddr : ip4DstAddr+IPv4AddressSize]))
}

// Header returns the header bytes, options included.
func (b IPv4) Header() []byte {
	return b[:b.HeaderLength()]
}

// Payload returns the bytes after the header, bounded by the total length
// when the slice is longer than the datagram.
func (b IPv4) Payload() []byte {
	end := int(b.TotalLength())
	if end > len(b) || end < b.HeaderLength() {
		end = len(b)
	}
	return b[b.HeaderLength():end]
}

// SetTotalLength sets the total length field.
func (b IPv4) SetTotalLength(v uint16) {
	binary.BigEndian.PutUint16(b[ip4TotalLen:], v)
}

// SetID sets the identification field.
func (b IPv4) SetID(v uint16) {
	binary.BigEndian.PutUint16(b[ip4ID:], v)
}

// SetTTL sets the time to live.
func (b IPv4) SetTTL(v uint8) {
	b[ip4TTL] = v
}

// SetChecksum sets the header checksum.
func (b IPv4) SetChecksum(v uint16) {
	binary.BigEndian.PutUint16(b[ip4Checksum:], v)
}

// SetSourceAddress sets the source address. addr must be an IPv4 address.
func (b IPv4) SetSourceAddress(addr netip.Addr) {
	a := addr.As4()
	copy(b[ip4SrcAddr:ip4SrcAddr+IPv4AddressSize], a[:])
}

// SetDestinationAddress sets the destination address. addr must be an IPv4
// address.
func (b IPv4) SetDestinationAddress(addr netip.Addr) {
	a := addr.As4()
	copy(b[ip4DstAddr:ip4DstAddr+IPv4AddressSize], a[:])
}

// Encode writes a 20-byte header from f.
func (b IPv4) Encode(f *IPv4Fields) {
	b[ip4VersIHL] = IPv4Version<<4 | IPv4MinimumSize/4
	b[ip4TOS] = f.TOS
	b.SetTotalLength(f.TotalLength)
	b.SetID(f.ID)
	binary.BigEndian.PutUint16(b[ip4FlagsFO:], uint16(f.Flags)<<13|(f.FragmentOffset>>3)&0x1FFF)
	b[ip4TTL] = f.TTL
	b[ip4Protocol] = f.Protocol
	b.SetChecksum(f.Checksum)
	if f.SrcAddr.Is4() {
		b.SetSourceAddress(f.SrcAddr)
	} else {
		clear(b[ip4SrcAddr : ip4SrcAddr+IPv4AddressSize])
	}
	if f.DstAddr.Is4() {
		b.SetDestinationAddress(f.DstAddr)
	} else {
		clear(b[ip4DstAddr : ip4DstAddr+IPv4AddressSize])
	}
}

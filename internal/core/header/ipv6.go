package header

import (
	"encoding/binary"
	"net/netip"
)

// IPv6 fixed header layout (RFC 8200):
//
//	+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+
//	|Version| Traffic Class |           Flow Label                  |
//	+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+
//	|         Payload Length        |  Next Header  |   Hop Limit   |
//	+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+
//	|                     Source Address (128)                      |
//	+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+
//	|                  Destination Address (128)                    |
//	+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+
const (
	ip6VersTCFL     = 0
	ip6PayloadLen   = 4
	ip6NextHeader   = 6
	ip6HopLimit     = 7
	ip6SrcAddr      = 8
	ip6DstAddr      = 24
	ip6AddressLimit = 40
)

const (
	// IPv6MinimumSize is the size of the fixed IPv6 header.
	IPv6MinimumSize = 40

	// IPv6Version is the value of the version nibble.
	IPv6Version = 6

	// IPv6AddressSize is the size of an IPv6 address.
	IPv6AddressSize = 16

	// IPv6MinimumMTU is the link MTU every IPv6 path must support.
	IPv6MinimumMTU = 1280
)

// IPv6Fields describes an IPv6 fixed header to encode.
type IPv6Fields struct {
	TrafficClass  uint8
	FlowLabel     uint32
	PayloadLength uint16
	NextHeader    uint8
	HopLimit      uint8
	SrcAddr       netip.Addr
	DstAddr       netip.Addr
}

// IPv6 is a view over an IPv6 fixed header and everything that follows it.
type IPv6 []byte

// IsValid reports whether b holds a complete fixed header.
func (b IPv6) IsValid() bool {
	return len(b) >= IPv6MinimumSize && b.Version() == IPv6Version
}

// Version returns the version nibble.
func (b IPv6) Version() uint8 {
	return b[ip6VersTCFL] >> 4
}

// TrafficClass returns the traffic class.
func (b IPv6) TrafficClass() uint8 {
	return uint8(binary.BigEndian.Uint16(b[ip6VersTCFL:]) >> 4)
}

// FlowLabel returns the 20-bit flow label.
func (b IPv6) FlowLabel() uint32 {
	return binary.BigEndian.Uint32(b[ip6VersTCFL:]) & 0x000FFFFF
}

// PayloadLength returns the payload length field.
func (b IPv6) PayloadLength() uint16 {
	return binary.BigEndian.Uint16(b[ip6PayloadLen:])
}

// NextHeader returns the next header field.
func (b IPv6) NextHeader() uint8 {
	return b[ip6NextHeader]
}

// HopLimit returns the hop limit.
func (b IPv6) HopLimit() uint8 {
	return b[ip6HopLimit]
}

// SourceAddress returns the source address.
func (b IPv6) SourceAddress() netip.Addr {
	return netip.AddrFrom16([16]byte(b[ip6SrcAddr:ip6DstAddr]))
}

// DestinationAddress returns the destination address.
func (b IPv6) DestinationAddress() netip.Addr {
	return netip.AddrFrom16([16]byte(b[ip6DstAddr:ip6AddressLimit]))
}

// Payload returns the bytes after the fixed header.
func (b IPv6) Payload() []byte {
	return b[IPv6MinimumSize:]
}

// SetPayloadLength sets the payload length field.
func (b IPv6) SetPayloadLength(v uint16) {
	binary.BigEndian.PutUint16(b[ip6PayloadLen:], v)
}

// SetNextHeader sets the next header field.
func (b IPv6) SetNextHeader(v uint8) {
	b[ip6NextHeader] = v
}

// SetHopLimit sets the hop limit.
func (b IPv6) SetHopLimit(v uint8) {
	b[ip6HopLimit] = v
}

// SetSourceAddress sets the source address. addr must be an IPv6 address.
func (b IPv6) SetSourceAddress(addr netip.Addr) {
	a := addr.As16()
	copy(b[ip6SrcAddr:ip6DstAddr], a[:])
}

// SetDestinationAddress sets the destination address. addr must be an IPv6
// address.
func (b IPv6) SetDestinationAddress(addr netip.Addr) {
	a := addr.As16()
	copy(b[ip6DstAddr:ip6AddressLimit], a[:])
}

// Encode writes the fixed header from f.
func (b IPv6) Encode(f *IPv6Fields) {
	v := uint32(IPv6Version)<<28 | uint32(f.TrafficClass)<<20 | f.FlowLabel&0x000FFFFF
	binary.BigEndian.PutUint32(b[ip6VersTCFL:], v)
	b.SetPayloadLength(f.PayloadLength)
	b[ip6NextHeader] = f.NextHeader
	b[ip6HopLimit] = f.HopLimit
	if f.SrcAddr.Is6() {
		b.SetSourceAddress(f.SrcAddr)
	} else {
		clear(b[ip6SrcAddr:ip6DstAddr])
	}
	if f.DstAddr.Is6() {
		b.SetDestinationAddress(f.DstAddr)
	} else {
		clear(b[ip6DstAddr:ip6AddressLimit])
	}
}

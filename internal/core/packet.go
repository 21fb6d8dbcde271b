// Package core defines core data structures.
package core

import (
	"time"

	"firestige.xyz/nfreject/internal/core/header"
)

// Envelope is the diversion metadata carried with every intercepted or
// injected packet, separate from the packet's own headers.
type Envelope struct {
	IfIdx     uint32    // Interface index the packet was seen on
	SubIfIdx  uint32    // Sub-interface (bridge port) index, 0 if none
	Direction Direction // Inbound or outbound
	Length    uint16    // Length of the IP packet
}

// Fields converts the envelope to its wire description.
func (e Envelope) Fields() header.EnvelopeFields {
	return header.EnvelopeFields{
		IfIdx:     e.IfIdx,
		SubIfIdx:  e.SubIfIdx,
		Direction: uint8(e.Direction),
		Length:    e.Length,
	}
}

// EnvelopeFrom decodes an envelope view.
func EnvelopeFrom(b header.Envelope) Envelope {
	return Envelope{
		IfIdx:     b.IfIdx(),
		SubIfIdx:  b.SubIfIdx(),
		Direction: Direction(b.Direction()),
		Length:    b.Length(),
	}
}

// InterceptedPacket is one packet handed over by the divert device. It is
// owned by the main loop for one iteration and never modified.
type InterceptedPacket struct {
	Envelope  Envelope
	Data      []byte // Raw IP packet, starts at the IPv4/IPv6 header
	Timestamp time.Time
}

// Classified holds optional header views into an InterceptedPacket. At most
// one of IPv4/IPv6 is set, and at most one of ICMPv4/ICMPv6/TCP/UDP. Each
// view starts at its header and runs to the end of the packet.
type Classified struct {
	IPv4   header.IPv4
	IPv6   header.IPv6
	ICMPv4 header.ICMPv4
	ICMPv6 header.ICMPv6
	TCP    header.TCP
	UDP    header.UDP

	// PayloadLen is the number of bytes after the transport header.
	PayloadLen int
}

// HasNetwork reports whether an IPv4 or IPv6 header was found. Packets
// without one carry nothing to act on.
func (c *Classified) HasNetwork() bool {
	return c.IPv4 != nil || c.IPv6 != nil
}

// HasTransport reports whether a TCP, UDP, ICMPv4 or ICMPv6 header was found.
func (c *Classified) HasTransport() bool {
	return c.TCP != nil || c.UDP != nil || c.ICMPv4 != nil || c.ICMPv6 != nil
}

// Reset clears all views so the value can be reused.
func (c *Classified) Reset() {
	*c = Classified{}
}

package reject

import (
	"firestige.xyz/nfreject/internal/config"
	"firestige.xyz/nfreject/internal/core/header"
)

const (
	// embedV4Capacity holds the largest IPv4 header plus 8 bytes of its
	// payload, with one byte of slack.
	embedV4Capacity = header.IPv4MaximumHeaderSize + 8 + 1

	// embedV6Fixed is the IPv6 header plus a TCP-header-sized block.
	embedV6Fixed = header.IPv6MinimumSize + header.TCPMinimumSize

	// embedV6Max fills an ICMPv6 error message up to the IPv6 minimum MTU.
	embedV6Max = header.IPv6MinimumMTU - header.IPv6MinimumSize - header.ICMPv6MinimumSize
)

// Template is a response packet prefixed with its diversion envelope. The
// protocol-invariant fields are written once by BuildTemplates; the
// Synthesizer fills in the rest on every use. The buffer has a fixed
// capacity, and only the first used bytes belong to the current response.
type Template struct {
	buf       []byte
	used      int
	transport int // offset of the transport or ICMP header
	data      int // offset of the embedded region, 0 if the template has none
}

func newTemplate(netLen, transportLen, dataCap int) *Template {
	t := &Template{
		buf:       make([]byte, header.EnvelopeSize+netLen+transportLen+dataCap),
		transport: header.EnvelopeSize + netLen,
	}
	t.used = t.transport + transportLen
	if dataCap > 0 {
		t.data = t.used
	}
	return t
}

// Bytes returns the envelope and the packet.
func (t *Template) Bytes() []byte {
	return t.buf[:t.used]
}

// Packet returns the packet without the envelope.
func (t *Template) Packet() []byte {
	return t.buf[header.EnvelopeSize:t.used]
}

// Len returns the number of bytes in use, envelope included.
func (t *Template) Len() int {
	return t.used
}

// DataCapacity returns the size of the embedded region.
func (t *Template) DataCapacity() int {
	if t.data == 0 {
		return 0
	}
	return len(t.buf) - t.data
}

func (t *Template) envelope() header.Envelope {
	return header.Envelope(t.buf[:header.EnvelopeSize])
}

func (t *Template) ipv4() header.IPv4 {
	return header.IPv4(t.buf[header.EnvelopeSize:t.used])
}

func (t *Template) ipv6() header.IPv6 {
	return header.IPv6(t.buf[header.EnvelopeSize:t.used])
}

func (t *Template) tcp() header.TCP {
	return header.TCP(t.buf[t.transport:t.used])
}

func (t *Template) icmp() []byte {
	return t.buf[t.transport:t.used]
}

// setDataLen resizes the embedded region to n bytes.
func (t *Template) setDataLen(n int) {
	t.used = t.data + n
}

// Templates are the four response skeletons.
type Templates struct {
	TCPResetV4    *Template
	TCPResetV6    *Template
	UnreachableV4 *Template
	UnreachableV6 *Template
}

// BuildTemplates constructs the response skeletons. It cannot fail.
func BuildTemplates(cfg config.RejectConfig) *Templates {
	ttl := cfg.TTL
	if ttl == 0 {
		ttl = 64
	}
	embedV6 := embedV6Fixed
	if cfg.ICMPv6Embed == config.EmbedRFC4443 {
		embedV6 = embedV6Max
	}

	rst4 := newTemplate(header.IPv4MinimumSize, header.TCPMinimumSize, 0)
	rst4.ipv4().Encode(&header.IPv4Fields{
		TotalLength: header.IPv4MinimumSize + header.TCPMinimumSize,
		ID:          cfg.IPv4ID,
		TTL:         ttl,
		Protocol:    header.ProtocolTCP,
	})
	encodeReset(rst4.tcp())

	rst6 := newTemplate(header.IPv6MinimumSize, header.TCPMinimumSize, 0)
	rst6.ipv6().Encode(&header.IPv6Fields{
		PayloadLength: header.TCPMinimumSize,
		NextHeader:    header.ProtocolTCP,
		HopLimit:      ttl,
	})
	encodeReset(rst6.tcp())

	unreach4 := newTemplate(header.IPv4MinimumSize, header.ICMPv4MinimumSize, embedV4Capacity)
	unreach4.ipv4().Encode(&header.IPv4Fields{
		TotalLength: header.IPv4MinimumSize + header.ICMPv4MinimumSize,
		ID:          cfg.IPv4ID,
		TTL:         ttl,
		Protocol:    header.ProtocolICMPv4,
	})
	header.ICMPv4(unreach4.icmp()).Encode(&header.ICMPFields{
		Type: header.ICMPv4DstUnreachable,
		Code: header.ICMPv4PortUnreachable,
	})

	unreach6 := newTemplate(header.IPv6MinimumSize, header.ICMPv6MinimumSize, embedV6)
	unreach6.ipv6().Encode(&header.IPv6Fields{
		PayloadLength: header.ICMPv6MinimumSize + embedV6Fixed,
		NextHeader:    header.ProtocolICMPv6,
		HopLimit:      ttl,
	})
	header.ICMPv6(unreach6.icmp()).Encode(&header.ICMPFields{
		Type: header.ICMPv6DstUnreachable,
		Code: header.ICMPv6PortUnreachable,
	})

	return &Templates{
		TCPResetV4:    rst4,
		TCPResetV6:    rst6,
		UnreachableV4: unreach4,
		UnreachableV6: unreach6,
	}
}

func encodeReset(tcp header.TCP) {
	tcp.Encode(&header.TCPFields{
		DataOffset: header.TCPMinimumSize,
		Flags:      header.TCPFlagRst | header.TCPFlagAck,
	})
}

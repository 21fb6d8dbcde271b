// Package reject turns intercepted packets into TCP resets and ICMP
// unreachable messages and runs the receive/dispatch loop.
package reject

import (
	"fmt"

	"firestige.xyz/nfreject/internal/config"
	"firestige.xyz/nfreject/internal/core"
	"firestige.xyz/nfreject/internal/core/checksum"
	"firestige.xyz/nfreject/internal/core/header"
)

// Synthesizer fills the response templates from classified packets.
//
// A Synthesizer owns its templates and rewrites them in place, so the slice
// returned by one call is only valid until the next call on the same
// Synthesizer. It is not safe for concurrent use; parallel dispatch needs one
// Synthesizer per worker.
type Synthesizer struct {
	tmpl  *Templates
	embed config.EmbedPolicy
}

// NewSynthesizer builds the templates for cfg.
func NewSynthesizer(cfg config.RejectConfig) *Synthesizer {
	embed := cfg.ICMPv6Embed
	if embed == "" {
		embed = config.EmbedFixed
	}
	return &Synthesizer{
		tmpl:  BuildTemplates(cfg),
		embed: embed,
	}
}

// TCPResetV4 builds a RST answering the IPv4 TCP segment in c. The result
// starts with the envelope and has its checksums finalized.
func (s *Synthesizer) TCPResetV4(env core.Envelope, c *core.Classified) ([]byte, error) {
	if c.IPv4 == nil || c.TCP == nil {
		return nil, fmt.Errorf("tcp reset v4: %w", core.ErrPacketTooShort)
	}
	t := s.tmpl.TCPResetV4
	writeEnvelope(t, env.IfIdx, env.SubIfIdx, env.Direction.Invert())

	ip := t.ipv4()
	ip.SetSourceAddress(c.IPv4.DestinationAddress())
	ip.SetDestinationAddress(c.IPv4.SourceAddress())
	fillReset(t.tcp(), c.TCP, c.PayloadLen)

	return finalize(t)
}

// TCPResetV6 builds a RST answering the IPv6 TCP segment in c.
func (s *Synthesizer) TCPResetV6(env core.Envelope, c *core.Classified) ([]byte, error) {
	if c.IPv6 == nil || c.TCP == nil {
		return nil, fmt.Errorf("tcp reset v6: %w", core.ErrPacketTooShort)
	}
	t := s.tmpl.TCPResetV6
	writeEnvelope(t, env.IfIdx, env.SubIfIdx, env.Direction.Invert())

	ip := t.ipv6()
	ip.SetSourceAddress(c.IPv6.DestinationAddress())
	ip.SetDestinationAddress(c.IPv6.SourceAddress())
	fillReset(t.tcp(), c.TCP, c.PayloadLen)

	return finalize(t)
}

// fillReset swaps the ports and places the RST at the next byte the peer
// expects.
func fillReset(rst, orig header.TCP, payloadLen int) {
	rst.SetSourcePort(orig.DestinationPort())
	rst.SetDestinationPort(orig.SourcePort())

	flags := orig.Flags()
	if flags.Contains(header.TCPFlagAck) {
		rst.SetSequenceNumber(orig.AckNumber())
	} else {
		rst.SetSequenceNumber(0)
	}
	if flags.Contains(header.TCPFlagSyn) {
		rst.SetAckNumber(orig.SequenceNumber() + 1)
	} else {
		rst.SetAckNumber(orig.SequenceNumber() + uint32(payloadLen))
	}
}

// UnreachableV4 builds an ICMP port unreachable message carrying the
// original IPv4 header and the first 8 bytes of its payload. The response is
// always injected outbound.
func (s *Synthesizer) UnreachableV4(env core.Envelope, c *core.Classified) ([]byte, error) {
	if c.IPv4 == nil {
		return nil, fmt.Errorf("unreachable v4: %w", core.ErrPacketTooShort)
	}
	t := s.tmpl.UnreachableV4
	orig := c.IPv4

	embed := orig.HeaderLength() + 8
	t.setDataLen(embed)
	copyEmbed(t.buf[t.data:t.used], orig)

	total := header.IPv4MinimumSize + header.ICMPv4MinimumSize + embed
	writeEnvelope(t, env.IfIdx, env.SubIfIdx, core.DirectionOutbound)

	ip := t.ipv4()
	ip.SetTotalLength(uint16(total))
	ip.SetSourceAddress(orig.DestinationAddress())
	ip.SetDestinationAddress(orig.SourceAddress())

	return finalize(t)
}

// UnreachableV6 builds an ICMPv6 port unreachable message. With the fixed
// embed policy it carries the IPv6 header and the next 20 bytes, zero filled
// past the end of the capture. With the rfc4443 policy it carries as much of
// the original packet as fits the IPv6 minimum MTU. The response is always
// injected outbound.
func (s *Synthesizer) UnreachableV6(env core.Envelope, c *core.Classified) ([]byte, error) {
	if c.IPv6 == nil {
		return nil, fmt.Errorf("unreachable v6: %w", core.ErrPacketTooShort)
	}
	t := s.tmpl.UnreachableV6
	orig := c.IPv6

	embed := embedV6Fixed
	if s.embed == config.EmbedRFC4443 {
		embed = len(orig)
		if n := header.IPv6MinimumSize + int(orig.PayloadLength()); n < embed {
			embed = n
		}
		embed = min(embed, embedV6Max)
	}
	t.setDataLen(embed)
	copyEmbed(t.buf[t.data:t.used], orig)

	writeEnvelope(t, env.IfIdx, env.SubIfIdx, core.DirectionOutbound)

	ip := t.ipv6()
	ip.SetPayloadLength(uint16(header.ICMPv6MinimumSize + embed))
	ip.SetSourceAddress(orig.DestinationAddress())
	ip.SetDestinationAddress(orig.SourceAddress())

	return finalize(t)
}

// copyEmbed copies src into dst and zero fills what src does not cover.
func copyEmbed(dst, src []byte) {
	n := copy(dst, src)
	clear(dst[n:])
}

func writeEnvelope(t *Template, ifIdx, subIfIdx uint32, dir core.Direction) {
	t.envelope().Encode(&header.EnvelopeFields{
		IfIdx:     ifIdx,
		SubIfIdx:  subIfIdx,
		Direction: uint8(dir),
		Length:    uint16(t.used - header.EnvelopeSize),
	})
}

func finalize(t *Template) ([]byte, error) {
	if err := checksum.Finalize(t.Packet(), 0); err != nil {
		return nil, err
	}
	return t.Bytes(), nil
}

// Package decoder classifies intercepted IP packets into header views.
package decoder

import (
	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"

	"firestige.xyz/nfreject/internal/core"
	"firestige.xyz/nfreject/internal/core/header"
)

// Classifier turns a raw IP packet into core.Classified views. The layer
// structs and parsers are reused across calls, so a Classifier must not be
// shared between goroutines.
type Classifier struct {
	ip4     layers.IPv4
	ip6     layers.IPv6
	tcp     layers.TCP
	udp     layers.UDP
	icmp4   layers.ICMPv4
	icmp6   layers.ICMPv6
	payload gopacket.Payload

	parser4 *gopacket.DecodingLayerParser
	parser6 *gopacket.DecodingLayerParser
	decoded []gopacket.LayerType
}

// NewClassifier creates a Classifier.
func NewClassifier() *Classifier {
	c := &Classifier{decoded: make([]gopacket.LayerType, 0, 4)}
	// One parser per address family, so an inner header of a tunnelled
	// packet can never overwrite the outer one. IPv6 consumes a hop-by-hop
	// header itself.
	c.parser4 = gopacket.NewDecodingLayerParser(layers.LayerTypeIPv4,
		&c.ip4, &c.tcp, &c.udp, &c.icmp4, &c.payload)
	c.parser6 = gopacket.NewDecodingLayerParser(layers.LayerTypeIPv6,
		&c.ip6, &c.tcp, &c.udp, &c.icmp6, &c.payload)
	c.parser4.IgnoreUnsupported = true
	c.parser6.IgnoreUnsupported = true
	return c
}

// Classify decodes data, which must start at the IP header. It never fails:
// headers that are absent, truncated or malformed are left nil, and a packet
// without a usable IPv4 or IPv6 header yields a Classified with
// HasNetwork() == false.
func (c *Classifier) Classify(data []byte) core.Classified {
	var out core.Classified
	if len(data) < 1 {
		return out
	}

	var parser *gopacket.DecodingLayerParser
	switch data[0] >> 4 {
	case header.IPv4Version:
		parser = c.parser4
	case header.IPv6Version:
		parser = c.parser6
	default:
		return out
	}

	// A decode error only ends the walk; every layer listed in c.decoded
	// was decoded completely.
	_ = parser.DecodeLayers(data, &c.decoded)

	for _, lt := range c.decoded {
		switch lt {
		case layers.LayerTypeIPv4:
			if v := header.IPv4(data); v.IsValid() {
				out.IPv4 = v
			}
		case layers.LayerTypeIPv6:
			if v := header.IPv6(data); v.IsValid() {
				out.IPv6 = v
			}
		case layers.LayerTypeTCP:
			if v := header.TCP(view(data, &c.tcp.BaseLayer)); v.IsValid() {
				out.TCP = v
				out.PayloadLen = len(c.tcp.Payload)
			}
		case layers.LayerTypeUDP:
			if v := header.UDP(view(data, &c.udp.BaseLayer)); v.IsValid() {
				out.UDP = v
				out.PayloadLen = len(c.udp.Payload)
			}
		case layers.LayerTypeICMPv4:
			if v := header.ICMPv4(view(data, &c.icmp4.BaseLayer)); v.IsValid() {
				out.ICMPv4 = v
				out.PayloadLen = len(v.Payload())
			}
		case layers.LayerTypeICMPv6:
			if v := header.ICMPv6(view(data, &c.icmp6.BaseLayer)); v.IsValid() {
				out.ICMPv6 = v
				out.PayloadLen = len(v.Payload())
			}
		}
	}

	if !out.HasNetwork() {
		// Transport views without a network header are meaningless.
		return core.Classified{}
	}
	if ip := out.IPv4; ip != nil && !out.HasTransport() &&
		ip.Flags()&header.IPv4FlagMoreFragments != 0 && ip.FragmentOffset() == 0 {
		// First fragment: the decoder stops at the fragment, but the
		// transport header is all there.
		firstFragment(&out, ip.Protocol(), ip.Payload())
	}
	if out.TCP != nil {
		out.PayloadLen = max(out.PayloadLen, declaredTCPPayload(data, &out))
	}
	return out
}

func firstFragment(out *core.Classified, proto uint8, seg []byte) {
	switch proto {
	case header.ProtocolTCP:
		if v := header.TCP(seg); v.IsValid() {
			out.TCP = v
			out.PayloadLen = len(v.Payload())
		}
	case header.ProtocolUDP:
		if v := header.UDP(seg); v.IsValid() {
			out.UDP = v
			out.PayloadLen = len(v.Payload())
		}
	case header.ProtocolICMPv4:
		if v := header.ICMPv4(seg); v.IsValid() {
			out.ICMPv4 = v
			out.PayloadLen = len(v.Payload())
		}
	}
}

// declaredTCPPayload returns the segment length the IP header announces,
// which exceeds the captured bytes when the queue truncated the packet.
func declaredTCPPayload(data []byte, out *core.Classified) int {
	end := len(data)
	switch {
	case out.IPv4 != nil:
		end = int(out.IPv4.TotalLength())
	case out.IPv6 != nil && out.IPv6.PayloadLength() != 0:
		end = header.IPv6MinimumSize + int(out.IPv6.PayloadLength())
	}
	off := cap(data) - cap(out.TCP)
	return end - off - int(out.TCP.DataOffset())
}

// view returns the part of data covered by a decoded layer, header and
// payload. Decoded layers hold sub-slices of data, so the layer offset is
// the difference of the capacities.
func view(data []byte, l *layers.BaseLayer) []byte {
	off := cap(data) - cap(l.Contents)
	if off < 0 || off > len(data) {
		return nil
	}
	end := off + len(l.Contents) + len(l.Payload)
	if end > len(data) {
		end = len(data)
	}
	return data[off:end]
}

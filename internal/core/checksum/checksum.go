// Package checksum fills in the IP, TCP, UDP, ICMPv4 and ICMPv6 checksums of
// an assembled packet. The one's complement arithmetic itself comes from
// gVisor's tcpip/checksum package; this package only knows where each
// checksum lives and what it covers.
package checksum

import (
	"fmt"

	"gvisor.dev/gvisor/pkg/tcpip"
	"gvisor.dev/gvisor/pkg/tcpip/checksum"
	gheader "gvisor.dev/gvisor/pkg/tcpip/header"

	"firestige.xyz/nfreject/internal/core"
	"firestige.xyz/nfreject/internal/core/header"
)

// Flags selects checksums to leave untouched.
type Flags uint8

const (
	NoIPChecksum Flags = 1 << iota
	NoICMPv4Checksum
	NoICMPv6Checksum
	NoTCPChecksum
	NoUDPChecksum
)

// Finalize computes and writes every checksum of pkt in place. pkt starts at
// the IPv4 or IPv6 header and must not carry IPv6 extension headers. Bytes
// beyond the length the IP header declares are ignored.
func Finalize(pkt []byte, flags Flags) error {
	if len(pkt) < 1 {
		return core.ErrPacketTooShort
	}
	switch pkt[0] >> 4 {
	case header.IPv4Version:
		return finalizeIPv4(header.IPv4(pkt), flags)
	case header.IPv6Version:
		return finalizeIPv6(header.IPv6(pkt), flags)
	default:
		return fmt.Errorf("checksum: unknown IP version %d", pkt[0]>>4)
	}
}

func finalizeIPv4(ip header.IPv4, flags Flags) error {
	if !ip.IsValid() {
		return core.ErrPacketTooShort
	}
	if flags&NoIPChecksum == 0 {
		ip.SetChecksum(0)
		ip.SetChecksum(^checksum.Checksum(ip.Header(), 0))
	}
	src := tcpip.AddrFromSlice(ip[12:16])
	dst := tcpip.AddrFromSlice(ip[16:20])
	return finalizeTransport(ip.Protocol(), ip.Payload(), src, dst, flags)
}

func finalizeIPv6(ip header.IPv6, flags Flags) error {
	if !ip.IsValid() {
		return core.ErrPacketTooShort
	}
	payload := ip.Payload()
	if n := int(ip.PayloadLength()); n < len(payload) {
		payload = payload[:n]
	}
	src := tcpip.AddrFromSlice(ip[8:24])
	dst := tcpip.AddrFromSlice(ip[24:40])
	return finalizeTransport(ip.NextHeader(), payload, src, dst, flags)
}

func finalizeTransport(proto uint8, seg []byte, src, dst tcpip.Address, flags Flags) error {
	switch proto {
	case header.ProtocolTCP:
		tcp := header.TCP(seg)
		if !tcp.IsValid() {
			return core.ErrPacketTooShort
		}
		if flags&NoTCPChecksum == 0 {
			tcp.SetChecksum(0)
			xsum := gheader.PseudoHeaderChecksum(gheader.TCPProtocolNumber, src, dst, uint16(len(seg)))
			tcp.SetChecksum(^checksum.Checksum(seg, xsum))
		}
	case header.ProtocolUDP:
		udp := header.UDP(seg)
		if !udp.IsValid() {
			return core.ErrPacketTooShort
		}
		if flags&NoUDPChecksum == 0 {
			udp.SetChecksum(0)
			xsum := gheader.PseudoHeaderChecksum(gheader.UDPProtocolNumber, src, dst, uint16(len(seg)))
			c := ^checksum.Checksum(seg, xsum)
			if c == 0 {
				// Zero means "no checksum" in UDP.
				c = 0xFFFF
			}
			udp.SetChecksum(c)
		}
	case header.ProtocolICMPv4:
		icmp := header.ICMPv4(seg)
		if !icmp.IsValid() {
			return core.ErrPacketTooShort
		}
		if flags&NoICMPv4Checksum == 0 {
			icmp.SetChecksum(0)
			icmp.SetChecksum(^checksum.Checksum(seg, 0))
		}
	case header.ProtocolICMPv6:
		icmp := header.ICMPv6(seg)
		if !icmp.IsValid() {
			return core.ErrPacketTooShort
		}
		if flags&NoICMPv6Checksum == 0 {
			icmp.SetChecksum(0)
			xsum := gheader.PseudoHeaderChecksum(gheader.ICMPv6ProtocolNumber, src, dst, uint16(len(seg)))
			icmp.SetChecksum(^checksum.Checksum(seg, xsum))
		}
	}
	return nil
}

// Verify reports whether every checksum Finalize would write is correct.
func Verify(pkt []byte) bool {
	if len(pkt) < 1 {
		return false
	}
	var (
		proto    uint8
		seg      []byte
		src, dst tcpip.Address
	)
	switch pkt[0] >> 4 {
	case header.IPv4Version:
		ip := header.IPv4(pkt)
		if !ip.IsValid() || checksum.Checksum(ip.Header(), 0) != 0xFFFF {
			return false
		}
		proto, seg = ip.Protocol(), ip.Payload()
		src, dst = tcpip.AddrFromSlice(ip[12:16]), tcpip.AddrFromSlice(ip[16:20])
	case header.IPv6Version:
		ip := header.IPv6(pkt)
		if !ip.IsValid() {
			return false
		}
		seg = ip.Payload()
		if n := int(ip.PayloadLength()); n < len(seg) {
			seg = seg[:n]
		}
		proto = ip.NextHeader()
		src, dst = tcpip.AddrFromSlice(ip[8:24]), tcpip.AddrFromSlice(ip[24:40])
	default:
		return false
	}

	var xsum uint16
	switch proto {
	case header.ProtocolTCP:
		xsum = gheader.PseudoHeaderChecksum(gheader.TCPProtocolNumber, src, dst, uint16(len(seg)))
	case header.ProtocolUDP:
		if header.UDP(seg).IsValid() && header.UDP(seg).Checksum() == 0 {
			return true
		}
		xsum = gheader.PseudoHeaderChecksum(gheader.UDPProtocolNumber, src, dst, uint16(len(seg)))
	case header.ProtocolICMPv6:
		xsum = gheader.PseudoHeaderChecksum(gheader.ICMPv6ProtocolNumber, src, dst, uint16(len(seg)))
	case header.ProtocolICMPv4:
	default:
		return true
	}
	return checksum.Checksum(seg, xsum) == 0xFFFF
}

package filter

import (
	"errors"
	"net"
	"strings"
	"testing"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"firestige.xyz/nfreject/internal/core"
)

func TestJoin(t *testing.T) {
	tests := []struct {
		name    string
		args    []string
		max     int
		want    string
		wantErr bool
	}{
		{"single", []string{"tcp"}, 2048, "tcp", false},
		{"multiple", []string{"tcp", "and", "dst", "port", "22"}, 2048, "tcp and dst port 22", false},
		{"empty", nil, 2048, "", false},
		// "ab" needs 2 bytes plus a separator, which must stay below max.
		{"fits", []string{"ab"}, 4, "ab", false},
		{"exactly at bound", []string{"abc"}, 4, "", true},
		{"second arg overflows", []string{"a", "b"}, 4, "", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Join(tt.args, tt.max)
			if tt.wantErr {
				assert.True(t, errors.Is(err, core.ErrFilterTooLong), "got %v", err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestJoinDefaultBound(t *testing.T) {
	_, err := Join([]string{strings.Repeat("x", 2046)}, 2048)
	assert.NoError(t, err)
	_, err = Join([]string{strings.Repeat("x", 2047)}, 2048)
	assert.ErrorIs(t, err, core.ErrFilterTooLong)
}

func packet(t *testing.T, ls ...gopacket.SerializableLayer) []byte {
	t.Helper()
	buf := gopacket.NewSerializeBuffer()
	opts := gopacket.SerializeOptions{FixLengths: true, ComputeChecksums: true}
	require.NoError(t, gopacket.SerializeLayers(buf, opts, ls...))
	return buf.Bytes()
}

func TestCompileAndMatch(t *testing.T) {
	ip4 := &layers.IPv4{Version: 4, IHL: 5, TTL: 64, Protocol: layers.IPProtocolTCP,
		SrcIP: net.IPv4(10, 0, 0, 1), DstIP: net.IPv4(10, 0, 0, 2)}
	ssh := &layers.TCP{SrcPort: 40000, DstPort: 22, SYN: true}
	_ = ssh.SetNetworkLayerForChecksum(ip4)
	sshPkt := packet(t, ip4, ssh)

	ip4.Protocol = layers.IPProtocolUDP
	dns := &layers.UDP{SrcPort: 40000, DstPort: 53}
	_ = dns.SetNetworkLayerForChecksum(ip4)
	dnsPkt := packet(t, ip4, dns)

	ip6 := &layers.IPv6{Version: 6, HopLimit: 64, NextHeader: layers.IPProtocolTCP,
		SrcIP: net.ParseIP("2001:db8::1"), DstIP: net.ParseIP("2001:db8::2")}
	ssh6 := &layers.TCP{SrcPort: 40000, DstPort: 22, SYN: true}
	_ = ssh6.SetNetworkLayerForChecksum(ip6)
	ssh6Pkt := packet(t, ip6, ssh6)

	tests := []struct {
		expr string
		pkt  []byte
		want bool
	}{
		{"tcp dst port 22", sshPkt, true},
		{"tcp dst port 22", dnsPkt, false},
		{"tcp dst port 22", ssh6Pkt, true},
		{"udp", dnsPkt, true},
		{"ip6", sshPkt, false},
		{"ip6", ssh6Pkt, true},
		{"host 10.0.0.2", sshPkt, true},
	}
	for _, tt := range tests {
		t.Run(tt.expr, func(t *testing.T) {
			p, err := Compile(tt.expr, 65535)
			require.NoError(t, err)
			assert.Equal(t, tt.expr, p.String())
			assert.Equal(t, tt.want, p.Matches(tt.pkt))
		})
	}
}

func TestCompileSyntaxError(t *testing.T) {
	_, err := Compile("tcp and and port", 65535)
	require.Error(t, err)
	assert.ErrorIs(t, err, core.ErrInvalidFilterSyntax)
}

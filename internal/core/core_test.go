package core

import (
	"errors"
	"fmt"
	"testing"

	"firestige.xyz/nfreject/internal/core/header"
)

func TestDirectionInvert(t *testing.T) {
	tests := []struct {
		in   Direction
		want Direction
	}{
		{DirectionOutbound, DirectionInbound},
		{DirectionInbound, DirectionOutbound},
	}
	for _, tt := range tests {
		t.Run(tt.in.String(), func(t *testing.T) {
			if got := tt.in.Invert(); got != tt.want {
				t.Errorf("Invert(%v) = %v, expected %v", tt.in, got, tt.want)
			}
			if got := tt.in.Invert().Invert(); got != tt.in {
				t.Errorf("double Invert(%v) = %v", tt.in, got)
			}
		})
	}
}

func TestDirectionString(t *testing.T) {
	if DirectionInbound.String() != "inbound" {
		t.Errorf("expected inbound, got %s", DirectionInbound)
	}
	if Direction(7).String() != "unknown" {
		t.Errorf("expected unknown, got %s", Direction(7))
	}
}

func TestEnvelopeRoundTripThroughWire(t *testing.T) {
	env := Envelope{IfIdx: 3, SubIfIdx: 9, Direction: DirectionInbound, Length: 60}
	buf := make(header.Envelope, header.EnvelopeSize)
	f := env.Fields()
	buf.Encode(&f)

	if got := EnvelopeFrom(buf); got != env {
		t.Errorf("EnvelopeFrom = %+v, expected %+v", got, env)
	}
}

func TestClassifiedHasNetwork(t *testing.T) {
	var c Classified
	if c.HasNetwork() {
		t.Error("zero value should have no network header")
	}
	c.IPv6 = make(header.IPv6, header.IPv6MinimumSize)
	if !c.HasNetwork() {
		t.Error("expected network header after setting IPv6")
	}
	c.Reset()
	if c.HasNetwork() || c.IPv6 != nil {
		t.Error("Reset should clear views")
	}
}

func TestClassifiedHasTransport(t *testing.T) {
	c := Classified{IPv4: make(header.IPv4, header.IPv4MinimumSize)}
	if c.HasTransport() {
		t.Error("network header alone is not a transport header")
	}
	c.UDP = make(header.UDP, header.UDPMinimumSize)
	if !c.HasTransport() {
		t.Error("expected transport header after setting UDP")
	}
}

func TestSentinelErrorsWrap(t *testing.T) {
	sentinels := []error{
		ErrFilterTooLong,
		ErrInvalidFilterSyntax,
		ErrDeviceOpenFailed,
		ErrReadFailed,
		ErrSendFailed,
		ErrPacketTooShort,
		ErrDeviceClosed,
		ErrConfigInvalid,
	}
	for _, s := range sentinels {
		wrapped := fmt.Errorf("context: %w", s)
		if !errors.Is(wrapped, s) {
			t.Errorf("errors.Is failed for %v", s)
		}
		for _, other := range sentinels {
			if other != s && errors.Is(wrapped, other) {
				t.Errorf("%v unexpectedly matches %v", s, other)
			}
		}
	}
}

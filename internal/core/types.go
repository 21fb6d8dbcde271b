// Package core defines core types with no dependencies outside the module.
package core

// Direction tells whether a packet was received from the network or sent by
// the local stack. The numeric values are the envelope wire values.
type Direction uint8

const (
	DirectionOutbound Direction = 0
	DirectionInbound  Direction = 1
)

// Invert returns the opposite direction.
func (d Direction) Invert() Direction {
	if d == DirectionInbound {
		return DirectionOutbound
	}
	return DirectionInbound
}

func (d Direction) String() string {
	switch d {
	case DirectionOutbound:
		return "outbound"
	case DirectionInbound:
		return "inbound"
	default:
		return "unknown"
	}
}

// Verdict is what nfreject did with an intercepted packet.
type Verdict string

const (
	VerdictReset       Verdict = "rst"
	VerdictUnreachable Verdict = "unreachable"
	VerdictDrop        Verdict = "drop"
)

// Package header implements the wire layout of the headers nfreject reads
// and writes: IPv4, IPv6, TCP, UDP, ICMPv4, ICMPv6 and the diversion envelope
// that prefixes every packet handed to the injector.
//
// Every header type is a view over a byte slice. Multi-byte fields are
// always read and written with encoding/binary.BigEndian; nothing here
// depends on host byte order or on Go struct layout. Accessors do not check
// bounds, call IsValid first when the slice comes from the network.
package header

// IP protocol numbers used by the codec.
const (
	ProtocolICMPv4 uint8 = 1
	ProtocolTCP    uint8 = 6
	ProtocolUDP    uint8 = 17
	ProtocolICMPv6 uint8 = 58
)

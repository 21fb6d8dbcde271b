// Package core defines sentinel errors.
package core

import "errors"

// Sentinel errors. Callers wrap them with fmt.Errorf("...: %w", err) and
// test with errors.Is.
var (
	// Startup errors, fatal before the main loop is entered
	ErrFilterTooLong       = errors.New("nfreject: filter too long")
	ErrInvalidFilterSyntax = errors.New("nfreject: filter syntax error")
	ErrDeviceOpenFailed    = errors.New("nfreject: failed to open divert device")

	// Per-packet errors, reported and skipped
	ErrReadFailed = errors.New("nfreject: failed to read packet")
	ErrSendFailed = errors.New("nfreject: failed to send packet")

	// Packet decoding errors
	ErrPacketTooShort = errors.New("nfreject: packet too short")

	// ErrDeviceClosed is returned by a receive on a closed device.
	ErrDeviceClosed = errors.New("nfreject: divert device closed")

	// Configuration errors
	ErrConfigInvalid = errors.New("nfreject: invalid configuration")
)

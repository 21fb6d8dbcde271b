package cmd

import (
	"firestige.xyz/nfreject/internal/config"
	"firestige.xyz/nfreject/internal/divert"
	"firestige.xyz/nfreject/internal/reject"
)

// Device is what the main loop needs from an open divert device.
type Device interface {
	reject.Device
	reject.LinkNamer
	Close() error
}

// Opener opens the divert device for a filter expression.
type Opener interface {
	Open(expr string, cfg config.QueueConfig, opts ...divert.Option) (Device, error)
}

type divertOpener struct{}

func (divertOpener) Open(expr string, cfg config.QueueConfig, opts ...divert.Option) (Device, error) {
	h, err := divert.Open(expr, cfg, opts...)
	if err != nil {
		return nil, err
	}
	return h, nil
}

var opener Opener = divertOpener{}

// SetOpener replaces the device opener, used by tests.
func SetOpener(o Opener) {
	opener = o
}

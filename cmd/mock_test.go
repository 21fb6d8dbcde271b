package cmd

import (
	"sync"

	"github.com/stretchr/testify/mock"

	"firestige.xyz/nfreject/internal/config"
	"firestige.xyz/nfreject/internal/core"
	"firestige.xyz/nfreject/internal/divert"
)

// MockOpener is a mock implementation of Opener.
type MockOpener struct {
	mock.Mock
}

func (m *MockOpener) Open(expr string, cfg config.QueueConfig, opts ...divert.Option) (Device, error) {
	args := m.Called(expr, cfg)
	dev, _ := args.Get(0).(Device)
	return dev, args.Error(1)
}

// fakeDevice hands out queued packets and blocks in Recv until closed.
type fakeDevice struct {
	packets chan []byte
	done    chan struct{}
	once    sync.Once

	mu   sync.Mutex
	sent [][]byte
}

func newFakeDevice(pkts ...[]byte) *fakeDevice {
	d := &fakeDevice{
		packets: make(chan []byte, len(pkts)),
		done:    make(chan struct{}),
	}
	for _, p := range pkts {
		d.packets <- p
	}
	return d
}

func (d *fakeDevice) Recv(buf []byte) (core.Envelope, int, error) {
	select {
	case p := <-d.packets:
		n := copy(buf, p)
		return core.Envelope{IfIdx: 1, Direction: core.DirectionInbound, Length: uint16(n)}, n, nil
	case <-d.done:
		return core.Envelope{}, 0, core.ErrDeviceClosed
	}
}

func (d *fakeDevice) Send(buf []byte) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.sent = append(d.sent, append([]byte(nil), buf...))
	return nil
}

func (d *fakeDevice) sentCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.sent)
}

func (d *fakeDevice) LinkName(ifIdx uint32) string {
	return "eth0"
}

func (d *fakeDevice) Close() error {
	d.once.Do(func() { close(d.done) })
	return nil
}

func (d *fakeDevice) closed() bool {
	select {
	case <-d.done:
		return true
	default:
		return false
	}
}

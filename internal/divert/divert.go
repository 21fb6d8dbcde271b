// Package divert intercepts packets from a netfilter queue and injects
// responses through raw sockets.
//
// Packets reach the queue through a user supplied rule, for example
//
//	iptables -I INPUT -p tcp --dport 22 -j NFQUEUE --queue-num 0
//
// Every queued packet is evaluated against the compiled filter expression.
// Packets that match are dropped and handed to Recv; all others are
// accepted unchanged. Packets carrying the configured mark were injected by
// this process and are always accepted.
package divert

import (
	"fmt"
	"log/slog"
	"sync"

	"firestige.xyz/nfreject/internal/config"
	"firestige.xyz/nfreject/internal/core"
	"firestige.xyz/nfreject/internal/core/header"
	"firestige.xyz/nfreject/internal/filter"
	"firestige.xyz/nfreject/internal/metrics"
)

// Netfilter hook numbers.
const (
	hookPreRouting  = 0
	hookLocalIn     = 1
	hookForward     = 2
	hookLocalOut    = 3
	hookPostRouting = 4
)

// Option configures Open.
type Option func(*options)

type options struct {
	snapLen int
	logger  *slog.Logger
}

// WithSnapLen sets the snapshot length the filter is compiled for.
func WithSnapLen(n int) Option {
	return func(o *options) {
		o.snapLen = n
	}
}

// WithLogger sets the logger. The default is slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(o *options) {
		o.logger = l
	}
}

func buildOptions(opts []Option) options {
	o := options{snapLen: 65535, logger: slog.Default()}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// injector transmits finished IP packets.
type injector interface {
	Inject(pkt []byte, ifIdx uint32, dir core.Direction) error
	Close() error
}

// packetInfo is the part of a queued packet the device looks at.
type packetInfo struct {
	hook    uint8
	hasHook bool
	mark    uint32
	inDev   uint32
	outDev  uint32
	physIn  uint32
	physOut uint32
	payload []byte
}

type queued struct {
	env  core.Envelope
	data []byte
}

// Handle is an open divert device. Recv must be called from a single
// goroutine; Send and Close may be called from any goroutine.
type Handle struct {
	prog    *filter.Program
	cfg     config.QueueConfig
	logger  *slog.Logger
	inject  injector
	packets chan queued
	done    chan struct{}

	// mu keeps the injector open while a Send is in flight.
	mu        sync.RWMutex
	closeOnce sync.Once
	closeFn   func() error

	linksMu sync.Mutex
	links   map[uint32]string
}

func newHandle(prog *filter.Program, cfg config.QueueConfig, logger *slog.Logger) *Handle {
	backlog := cfg.Backlog
	if backlog <= 0 {
		backlog = 1
	}
	return &Handle{
		prog:    prog,
		cfg:     cfg,
		logger:  logger,
		packets: make(chan queued, backlog),
		done:    make(chan struct{}),
		links:   make(map[uint32]string),
	}
}

// Filter returns the compiled filter expression.
func (h *Handle) Filter() string {
	return h.prog.String()
}

// dispatch decides the verdict for a queued packet and reports whether it
// is accepted. Matching packets are queued for Recv.
func (h *Handle) dispatch(p packetInfo) bool {
	if h.cfg.Mark != 0 && p.mark == h.cfg.Mark {
		return true
	}
	if len(p.payload) == 0 || !h.prog.Matches(p.payload) {
		return true
	}

	q := queued{
		env:  envelope(p),
		data: append([]byte(nil), p.payload...),
	}
	select {
	case <-h.done:
		return true
	default:
	}
	select {
	case h.packets <- q:
		return false
	default:
		metrics.BacklogDropsTotal.Inc()
		h.logger.Debug("backlog full, packet not answered", "fail_open", h.cfg.FailOpen)
		return h.cfg.FailOpen
	}
}

// envelope derives the diversion metadata from the netfilter attributes.
func envelope(p packetInfo) core.Envelope {
	dir := core.DirectionOutbound
	if p.hasHook {
		switch p.hook {
		case hookPreRouting, hookLocalIn, hookForward:
			dir = core.DirectionInbound
		}
	} else if p.inDev != 0 {
		dir = core.DirectionInbound
	}

	env := core.Envelope{
		Direction: dir,
		Length:    uint16(min(len(p.payload), 0xFFFF)),
	}
	if dir == core.DirectionInbound {
		env.IfIdx, env.SubIfIdx = p.inDev, p.physIn
	} else {
		env.IfIdx, env.SubIfIdx = p.outDev, p.physOut
	}
	return env
}

// Recv blocks until a matching packet is available and copies it into buf.
// It returns core.ErrDeviceClosed once the handle is closed.
func (h *Handle) Recv(buf []byte) (core.Envelope, int, error) {
	select {
	case q := <-h.packets:
		n := copy(buf, q.data)
		if n < len(q.data) {
			return q.env, n, fmt.Errorf("%w: %d byte packet exceeds %d byte buffer", core.ErrReadFailed, len(q.data), len(buf))
		}
		return q.env, n, nil
	case <-h.done:
		return core.Envelope{}, 0, core.ErrDeviceClosed
	}
}

// Send injects an envelope-prefixed packet.
func (h *Handle) Send(buf []byte) error {
	env := header.Envelope(buf)
	if !env.IsValid() {
		return fmt.Errorf("%w: %v", core.ErrSendFailed, core.ErrPacketTooShort)
	}
	pkt := env.Payload()
	if n := int(env.Length()); n < len(pkt) {
		pkt = pkt[:n]
	}
	h.mu.RLock()
	defer h.mu.RUnlock()
	select {
	case <-h.done:
		return fmt.Errorf("%w: %v", core.ErrSendFailed, core.ErrDeviceClosed)
	default:
	}
	if err := h.inject.Inject(pkt, env.IfIdx(), core.Direction(env.Direction())); err != nil {
		return fmt.Errorf("%w: %v", core.ErrSendFailed, err)
	}
	return nil
}

// Close stops interception and releases the sockets. A Recv blocked on the
// handle returns core.ErrDeviceClosed.
func (h *Handle) Close() error {
	var err error
	h.closeOnce.Do(func() {
		close(h.done)
		h.mu.Lock()
		defer h.mu.Unlock()
		if h.closeFn != nil {
			err = h.closeFn()
		}
	})
	return err
}

// LinkName returns the name of the interface with index ifIdx, or the index
// itself when it cannot be resolved.
func (h *Handle) LinkName(ifIdx uint32) string {
	h.linksMu.Lock()
	defer h.linksMu.Unlock()
	if name, ok := h.links[ifIdx]; ok {
		return name
	}
	name := lookupLinkName(ifIdx)
	h.links[ifIdx] = name
	return name
}

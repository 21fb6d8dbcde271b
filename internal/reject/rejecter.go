package reject

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"firestige.xyz/nfreject/internal/config"
	"firestige.xyz/nfreject/internal/core"
	"firestige.xyz/nfreject/internal/core/decoder"
	"firestige.xyz/nfreject/internal/metrics"
)

// Device receives intercepted packets and injects responses.
type Device interface {
	// Recv blocks until a packet is available and copies it into buf.
	Recv(buf []byte) (core.Envelope, int, error)
	// Send injects an envelope-prefixed packet.
	Send(buf []byte) error
}

// LinkNamer resolves interface indexes for the block trace.
type LinkNamer interface {
	LinkName(ifIdx uint32) string
}

// Option configures a Rejecter.
type Option func(*Rejecter)

// WithLogger sets the logger. The default is slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(r *Rejecter) {
		r.logger = l
	}
}

// WithLinkNamer adds interface names to the block trace.
func WithLinkNamer(n LinkNamer) Option {
	return func(r *Rejecter) {
		r.links = n
	}
}

// WithBufferSize sets the receive buffer size.
func WithBufferSize(n int) Option {
	return func(r *Rejecter) {
		r.buf = make([]byte, n)
	}
}

// DefaultBufferSize is the receive buffer size used without WithBufferSize.
const DefaultBufferSize = 2048

// Rejecter is the main loop: it receives one packet, answers it, and
// waits for the next. All state is owned by the goroutine calling Run.
type Rejecter struct {
	dev        Device
	classifier *decoder.Classifier
	synth      *Synthesizer
	logger     *slog.Logger
	links      LinkNamer
	buf        []byte
	attrs      []slog.Attr
}

// New creates a Rejecter reading from dev.
func New(dev Device, cfg config.RejectConfig, opts ...Option) *Rejecter {
	r := &Rejecter{
		dev:        dev,
		classifier: decoder.NewClassifier(),
		synth:      NewSynthesizer(cfg),
		logger:     slog.Default(),
		attrs:      make([]slog.Attr, 0, 12),
	}
	for _, opt := range opts {
		opt(r)
	}
	if r.buf == nil {
		r.buf = make([]byte, DefaultBufferSize)
	}
	return r
}

// Run receives and answers packets until ctx is cancelled or the device is
// closed. Read failures are logged and the loop continues with the next
// receive. Recv is not interruptible, so callers cancel a blocked Run by
// closing the device.
func (r *Rejecter) Run(ctx context.Context) error {
	for {
		if ctx.Err() != nil {
			return nil
		}

		env, n, err := r.dev.Recv(r.buf)
		if err != nil {
			if errors.Is(err, core.ErrDeviceClosed) || ctx.Err() != nil {
				return nil
			}
			metrics.ReadErrorsTotal.Inc()
			r.logger.Warn("failed to read packet", "error", err)
			continue
		}

		r.ProcessPacket(ctx, core.InterceptedPacket{
			Envelope:  env,
			Data:      r.buf[:n],
			Timestamp: time.Now(),
		})
	}
}

// ProcessPacket answers one intercepted packet and returns what was done
// with it. Packets without a network header are skipped and yield an empty
// verdict.
func (r *Rejecter) ProcessPacket(ctx context.Context, pkt core.InterceptedPacket) core.Verdict {
	metrics.PacketsReceivedTotal.WithLabelValues(pkt.Envelope.Direction.String()).Inc()

	c := r.classifier.Classify(pkt.Data)
	if !c.HasNetwork() {
		metrics.PacketsUnclassifiableTotal.Inc()
		return ""
	}

	verdict := core.VerdictDrop
	switch {
	case c.TCP != nil:
		verdict = core.VerdictReset
	case c.UDP != nil:
		verdict = core.VerdictUnreachable
	}
	r.trace(ctx, &pkt, &c, verdict)
	metrics.BlockedPacketsTotal.WithLabelValues(string(verdict)).Inc()

	env := pkt.Envelope
	if c.TCP != nil {
		if c.IPv4 != nil {
			buf, err := r.synth.TCPResetV4(env, &c)
			r.send(metrics.KindTCPResetV4, buf, err)
		}
		if c.IPv6 != nil {
			buf, err := r.synth.TCPResetV6(env, &c)
			r.send(metrics.KindTCPResetV6, buf, err)
		}
	}
	if c.UDP != nil {
		if c.IPv4 != nil {
			buf, err := r.synth.UnreachableV4(env, &c)
			r.send(metrics.KindUnreachableV4, buf, err)
		}
		if c.IPv6 != nil {
			buf, err := r.synth.UnreachableV6(env, &c)
			r.send(metrics.KindUnreachableV6, buf, err)
		}
	}
	return verdict
}

func (r *Rejecter) send(kind string, buf []byte, err error) {
	if err == nil {
		err = r.dev.Send(buf)
	}
	if err != nil {
		metrics.SendErrorsTotal.WithLabelValues(kind).Inc()
		r.logger.Warn("failed to send response", "kind", kind, "error", err)
		return
	}
	metrics.ResponsesSentTotal.WithLabelValues(kind).Inc()
}

// trace emits one "block" record describing the packet and the verdict.
func (r *Rejecter) trace(ctx context.Context, pkt *core.InterceptedPacket, c *core.Classified, verdict core.Verdict) {
	if !r.logger.Enabled(ctx, slog.LevelInfo) {
		return
	}

	a := r.attrs[:0]
	a = append(a, slog.String("direction", pkt.Envelope.Direction.String()))
	if r.links != nil {
		a = append(a, slog.String("if", r.links.LinkName(pkt.Envelope.IfIdx)))
	}
	switch {
	case c.IPv4 != nil:
		a = append(a,
			slog.String("ip.src", c.IPv4.SourceAddress().String()),
			slog.String("ip.dst", c.IPv4.DestinationAddress().String()))
	case c.IPv6 != nil:
		a = append(a,
			slog.String("ipv6.src", c.IPv6.SourceAddress().String()),
			slog.String("ipv6.dst", c.IPv6.DestinationAddress().String()))
	}
	switch {
	case c.ICMPv4 != nil:
		a = append(a,
			slog.Int("icmp.type", int(c.ICMPv4.Type())),
			slog.Int("icmp.code", int(c.ICMPv4.Code())))
	case c.ICMPv6 != nil:
		a = append(a,
			slog.Int("icmpv6.type", int(c.ICMPv6.Type())),
			slog.Int("icmpv6.code", int(c.ICMPv6.Code())))
	case c.TCP != nil:
		a = append(a,
			slog.Int("tcp.src_port", int(c.TCP.SourcePort())),
			slog.Int("tcp.dst_port", int(c.TCP.DestinationPort())),
			slog.String("tcp.flags", c.TCP.Flags().String()))
	case c.UDP != nil:
		a = append(a,
			slog.Int("udp.src_port", int(c.UDP.SourcePort())),
			slog.Int("udp.dst_port", int(c.UDP.DestinationPort())))
	}
	a = append(a, slog.String("verdict", string(verdict)))
	r.attrs = a

	r.logger.LogAttrs(ctx, slog.LevelInfo, "block", a...)
}

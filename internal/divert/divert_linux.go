//go:build linux

package divert

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"strconv"

	"github.com/florianl/go-nfqueue"
	"github.com/vishvananda/netlink"
	"golang.org/x/sys/unix"

	"firestige.xyz/nfreject/internal/config"
	"firestige.xyz/nfreject/internal/core"
	"firestige.xyz/nfreject/internal/filter"
	"firestige.xyz/nfreject/internal/metrics"
)

// Open compiles expr, binds the netfilter queue cfg.Num and opens the raw
// injection sockets. Filter errors wrap core.ErrInvalidFilterSyntax; every
// other failure wraps core.ErrDeviceOpenFailed.
func Open(expr string, cfg config.QueueConfig, opts ...Option) (*Handle, error) {
	o := buildOptions(opts)

	prog, err := filter.Compile(expr, o.snapLen)
	if err != nil {
		return nil, err
	}
	h := newHandle(prog, cfg, o.logger)

	inj, err := newRawInjector(cfg.Mark)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", core.ErrDeviceOpenFailed, err)
	}

	var flags uint32
	if cfg.FailOpen {
		flags |= nfqueue.NfQaCfgFlagFailOpen
	}
	q, err := nfqueue.Open(&nfqueue.Config{
		NfQueue:      cfg.Num,
		MaxPacketLen: uint32(cfg.MaxPacketLen.Bytes()),
		MaxQueueLen:  cfg.MaxLen,
		Copymode:     nfqueue.NfQnlCopyPacket,
		Flags:        flags,
	})
	if err != nil {
		_ = inj.Close()
		return nil, fmt.Errorf("%w: queue %d: %v", core.ErrDeviceOpenFailed, cfg.Num, err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	if err := q.RegisterWithErrorFunc(ctx, h.hookFunc(q), h.errorFunc(ctx)); err != nil {
		cancel()
		_ = q.Close()
		_ = inj.Close()
		return nil, fmt.Errorf("%w: queue %d: %v", core.ErrDeviceOpenFailed, cfg.Num, err)
	}

	h.inject = inj
	h.closeFn = func() error {
		cancel()
		qerr := q.Close()
		if isClosed(qerr) {
			qerr = nil
		}
		return errors.Join(qerr, inj.Close())
	}

	o.logger.Info("divert device opened", "queue", cfg.Num, "filter", expr, "mark", cfg.Mark)
	return h, nil
}

func (h *Handle) hookFunc(q *nfqueue.Nfqueue) nfqueue.HookFunc {
	return func(a nfqueue.Attribute) int {
		if a.PacketID == nil {
			return 0
		}
		p := packetInfo{}
		if a.Hook != nil {
			p.hook, p.hasHook = *a.Hook, true
		}
		if a.Mark != nil {
			p.mark = *a.Mark
		}
		if a.InDev != nil {
			p.inDev = *a.InDev
		}
		if a.OutDev != nil {
			p.outDev = *a.OutDev
		}
		if a.PhysInDev != nil {
			p.physIn = *a.PhysInDev
		}
		if a.PhysOutDev != nil {
			p.physOut = *a.PhysOutDev
		}
		if a.Payload != nil {
			p.payload = *a.Payload
		}

		verdict, label := nfqueue.NfDrop, "drop"
		if h.dispatch(p) {
			verdict, label = nfqueue.NfAccept, "accept"
		}
		if err := q.SetVerdict(*a.PacketID, verdict); err != nil {
			h.logger.Warn("failed to set verdict", "id", *a.PacketID, "verdict", label, "error", err)
			return 0
		}
		metrics.QueueVerdictsTotal.WithLabelValues(label).Inc()
		return 0
	}
}

func (h *Handle) errorFunc(ctx context.Context) nfqueue.ErrorFunc {
	return func(e error) int {
		if ctx.Err() != nil || isClosed(e) {
			return 1
		}
		if ne, ok := e.(net.Error); ok && ne.Timeout() {
			return 0
		}
		metrics.ReadErrorsTotal.Inc()
		h.logger.Warn("queue receive error", "error", e)
		return 0
	}
}

func isClosed(err error) bool {
	return err != nil && (errors.Is(err, os.ErrClosed) || errors.Is(err, net.ErrClosed) || errors.Is(err, unix.EBADF))
}

// rawInjector sends complete IP packets through IPPROTO_RAW sockets, which
// imply IP_HDRINCL. Both sockets carry SO_MARK so the queue rule can skip
// them. Inject and Close must not overlap; Handle serializes them.
type rawInjector struct {
	fd4 int
	fd6 int
}

func newRawInjector(mark uint32) (*rawInjector, error) {
	inj := &rawInjector{fd4: -1, fd6: -1}

	fd4, err4 := rawSocket(unix.AF_INET, mark)
	if err4 == nil {
		inj.fd4 = fd4
	}
	fd6, err6 := rawSocket(unix.AF_INET6, mark)
	if err6 == nil {
		inj.fd6 = fd6
	}
	if inj.fd4 < 0 && inj.fd6 < 0 {
		return nil, fmt.Errorf("no raw sockets: %w", errors.Join(err4, err6))
	}
	return inj, nil
}

func rawSocket(family int, mark uint32) (int, error) {
	fd, err := unix.Socket(family, unix.SOCK_RAW|unix.SOCK_CLOEXEC, unix.IPPROTO_RAW)
	if err != nil {
		return -1, fmt.Errorf("raw socket: %w", err)
	}
	if mark != 0 {
		if err := unix.SetsockoptInt(fd, unix.SOL_SOCKET, unix.SO_MARK, int(mark)); err != nil {
			_ = unix.Close(fd)
			return -1, fmt.Errorf("set SO_MARK: %w", err)
		}
	}
	return fd, nil
}

// Inject sends pkt. Outbound packets are pinned to interface ifIdx; inbound
// packets are addressed to this host and routed locally.
func (r *rawInjector) Inject(pkt []byte, ifIdx uint32, dir core.Direction) error {
	if len(pkt) < 1 {
		return core.ErrPacketTooShort
	}
	pin := dir == core.DirectionOutbound && ifIdx != 0

	switch pkt[0] >> 4 {
	case 4:
		if r.fd4 < 0 {
			return errors.New("no IPv4 raw socket")
		}
		if len(pkt) < 20 {
			return core.ErrPacketTooShort
		}
		sa := &unix.SockaddrInet4{}
		copy(sa.Addr[:], pkt[16:20])
		var oob []byte
		if pin {
			oob = unix.PktInfo4(&unix.Inet4Pktinfo{Ifindex: int32(ifIdx)})
		}
		return unix.Sendmsg(r.fd4, pkt, oob, sa, unix.MSG_DONTWAIT)
	case 6:
		if r.fd6 < 0 {
			return errors.New("no IPv6 raw socket")
		}
		if len(pkt) < 40 {
			return core.ErrPacketTooShort
		}
		sa := &unix.SockaddrInet6{}
		copy(sa.Addr[:], pkt[24:40])
		var oob []byte
		if pin {
			oob = unix.PktInfo6(&unix.Inet6Pktinfo{Ifindex: ifIdx})
		}
		return unix.Sendmsg(r.fd6, pkt, oob, sa, unix.MSG_DONTWAIT)
	default:
		return fmt.Errorf("unknown IP version %d", pkt[0]>>4)
	}
}

func (r *rawInjector) Close() error {
	var errs []error
	if r.fd4 >= 0 {
		errs = append(errs, unix.Close(r.fd4))
		r.fd4 = -1
	}
	if r.fd6 >= 0 {
		errs = append(errs, unix.Close(r.fd6))
		r.fd6 = -1
	}
	return errors.Join(errs...)
}

func lookupLinkName(ifIdx uint32) string {
	if ifIdx == 0 {
		return ""
	}
	link, err := netlink.LinkByIndex(int(ifIdx))
	if err != nil {
		return strconv.FormatUint(uint64(ifIdx), 10)
	}
	return link.Attrs().Name
}

// Package metrics implements Prometheus metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Response kinds used as the "kind" label.
const (
	KindTCPResetV4    = "tcp_rst_v4"
	KindTCPResetV6    = "tcp_rst_v6"
	KindUnreachableV4 = "icmp_unreachable_v4"
	KindUnreachableV6 = "icmpv6_unreachable_v6"
)

var (
	// PacketsReceivedTotal counts intercepted packets handed to the main loop
	PacketsReceivedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "nfreject_packets_received_total",
			Help: "Total number of intercepted packets received",
		},
		[]string{"direction"},
	)

	// PacketsUnclassifiableTotal counts packets without an IPv4 or IPv6 header
	PacketsUnclassifiableTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "nfreject_packets_unclassifiable_total",
			Help: "Total number of received packets without a usable network header",
		},
	)

	// BlockedPacketsTotal counts handled packets by verdict
	BlockedPacketsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "nfreject_blocked_packets_total",
			Help: "Total number of blocked packets by verdict",
		},
		[]string{"verdict"},
	)

	// ReadErrorsTotal counts failed receive calls
	ReadErrorsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "nfreject_read_errors_total",
			Help: "Total number of failed packet reads",
		},
	)

	// ResponsesSentTotal counts injected responses by kind
	ResponsesSentTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "nfreject_responses_sent_total",
			Help: "Total number of rejection responses injected",
		},
		[]string{"kind"},
	)

	// SendErrorsTotal counts responses that could not be injected
	SendErrorsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "nfreject_send_errors_total",
			Help: "Total number of rejection responses that failed to inject",
		},
		[]string{"kind"},
	)

	// QueueVerdictsTotal counts NFQUEUE verdicts issued by the divert device
	QueueVerdictsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "nfreject_queue_verdicts_total",
			Help: "Total number of NFQUEUE verdicts by verdict",
		},
		[]string{"verdict"},
	)

	// BacklogDropsTotal counts matched packets dropped because the backlog was full
	BacklogDropsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "nfreject_backlog_drops_total",
			Help: "Total number of matched packets dropped without a response because the backlog was full",
		},
	)
)

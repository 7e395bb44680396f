// Package instrument exposes the prometheus metrics surfaced by the core:
// submessage drops, retransmits, NACK/HEARTBEAT traffic, and liveliness
// transitions. One package-level function per metric, mirroring the
// teacher's server/internal/instrument call convention
// (instrument.PacketsDropped(), instrument.PKIDocs(...)).
package instrument

import "github.com/prometheus/client_golang/prometheus"

var (
	submessagesDropped = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "rtps",
		Name:      "submessages_dropped_total",
		Help:      "Submessages dropped by the receiver or codec, by reason.",
	}, []string{"reason"})

	retransmits = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "rtps",
		Name:      "retransmits_total",
		Help:      "DATA submessages retransmitted by a stateful writer, by reader GUID.",
	}, []string{"reader"})

	heartbeatsSent = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "rtps",
		Name:      "heartbeats_sent_total",
		Help:      "HEARTBEAT submessages sent by stateful writers.",
	})

	acknacksReceived = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "rtps",
		Name:      "acknacks_received_total",
		Help:      "ACKNACK submessages received by stateful writers.",
	})

	staleProtocolCounts = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "rtps",
		Name:      "stale_protocol_counts_total",
		Help:      "ACKNACK/HEARTBEAT messages discarded for non-increasing counts, by kind.",
	}, []string{"kind"})

	livelinessChanged = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "rtps",
		Name:      "liveliness_changed_total",
		Help:      "Writer proxy liveliness transitions, by new state.",
	}, []string{"state"})

	matchedProxies = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "rtps",
		Name:      "matched_proxies",
		Help:      "Currently matched reader/writer proxies per endpoint.",
	}, []string{"endpoint", "kind"})
)

func init() {
	prometheus.MustRegister(
		submessagesDropped,
		retransmits,
		heartbeatsSent,
		acknacksReceived,
		staleProtocolCounts,
		livelinessChanged,
		matchedProxies,
	)
}

// SubmessageDropped records a dropped submessage/datagram by reason
// ("bad-magic", "truncated", "unknown-entity", "parse-error", ...).
func SubmessageDropped(reason string) {
	submessagesDropped.WithLabelValues(reason).Inc()
}

// Retransmit records a DATA resend to the given reader GUID string.
func Retransmit(reader string) {
	retransmits.WithLabelValues(reader).Inc()
}

// HeartbeatSent records one HEARTBEAT submessage sent.
func HeartbeatSent() {
	heartbeatsSent.Inc()
}

// AcknackReceived records one ACKNACK submessage received.
func AcknackReceived() {
	acknacksReceived.Inc()
}

// StaleProtocolCount records a discarded stale-count ACKNACK or HEARTBEAT.
func StaleProtocolCount(kind string) {
	staleProtocolCounts.WithLabelValues(kind).Inc()
}

// LivelinessChanged records a writer-proxy liveliness transition to state
// ("alive" or "not-alive").
func LivelinessChanged(state string) {
	livelinessChanged.WithLabelValues(state).Inc()
}

// SetMatchedProxies reports the current number of matched proxies of the
// given kind ("reader" or "writer") for the named endpoint.
func SetMatchedProxies(endpoint, kind string, count int) {
	matchedProxies.WithLabelValues(endpoint, kind).Set(float64(count))
}

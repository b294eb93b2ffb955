package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "invite_tracker"

var (
	// JoinsTotal counts processed member joins by outcome: credited, uncredited, failed.
	JoinsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "joins_total",
		Help:      "Member joins processed, by attribution outcome.",
	}, []string{"outcome"})

	InviteFetchErrors = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "invite_fetch_errors_total",
		Help:      "Failed guild invite list fetches.",
	})

	InviteEventsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "invite_code_events_total",
		Help:      "Invite create/delete gateway events.",
	}, []string{"type"})

	LedgerWriteSeconds = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "ledger_write_seconds",
		Help:      "Latency of ledger record transactions.",
		Buckets:   prometheus.ExponentialBuckets(0.0005, 2, 14),
	})

	CommandsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "commands_total",
		Help:      "Chat and slash commands handled.",
	}, []string{"command"})

	CacheResults = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "cache_lookups_total",
		Help:      "Read cache lookups by layer and result.",
	}, []string{"layer", "result"})

	RESTLatency = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "discord_rest_seconds",
		Help:      "Discord REST round-trip latency.",
		Buckets:   prometheus.DefBuckets,
	})

	GatewayLatency = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "gateway_heartbeat_seconds",
		Help:      "Last observed gateway heartbeat latency.",
	})
)

func ObserveLedgerWrite(start time.Time) {
	LedgerWriteSeconds.Observe(time.Since(start).Seconds())
}

// Handler exposes the default registry.
func Handler() http.Handler {
	return promhttp.Handler()
}

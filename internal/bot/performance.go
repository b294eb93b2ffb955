package bot

import (
	"context"
	"net/http"
	"runtime"
	"sync/atomic"
	"time"

	"discord-invite-tracker/internal/metrics"

	"go.uber.org/zap"
)

// PerformanceMonitor keeps the latest latency figures for the botinfo command and the
// periodic log line. Histograms live in the metrics package.
type PerformanceMonitor struct {
	commandCount   atomic.Uint64
	commandLatency atomic.Int64 // nanoseconds

	eventCount   atomic.Uint64
	eventLatency atomic.Int64 // nanoseconds

	restCallCount atomic.Uint64
	restLatency   atomic.Int64 // nanoseconds

	wsLatency atomic.Int64 // milliseconds

	startTime time.Time
}

func NewPerformanceMonitor() *PerformanceMonitor {
	return &PerformanceMonitor{
		startTime: time.Now(),
	}
}

func (pm *PerformanceMonitor) TrackCommand(duration time.Duration) {
	pm.commandCount.Add(1)
	pm.commandLatency.Store(duration.Nanoseconds())
}

func (pm *PerformanceMonitor) TrackEvent(duration time.Duration) {
	pm.eventCount.Add(1)
	pm.eventLatency.Store(duration.Nanoseconds())
}

func (pm *PerformanceMonitor) TrackREST(duration time.Duration) {
	pm.restCallCount.Add(1)
	pm.restLatency.Store(duration.Nanoseconds())
	metrics.RESTLatency.Observe(duration.Seconds())
}

func (pm *PerformanceMonitor) UpdateWSLatency(latency time.Duration) {
	pm.wsLatency.Store(latency.Milliseconds())
}

// CommandLatency is the last command's handling time in milliseconds.
func (pm *PerformanceMonitor) CommandLatency() float64 {
	return float64(pm.commandLatency.Load()) / 1e6
}

// RESTLatency is the last REST round trip in milliseconds.
func (pm *PerformanceMonitor) RESTLatency() float64 {
	return float64(pm.restLatency.Load()) / 1e6
}

func (pm *PerformanceMonitor) EventCount() uint64 {
	return pm.eventCount.Load()
}

// Fields renders the current figures as zap fields.
func (pm *PerformanceMonitor) Fields() []zap.Field {
	var m runtime.MemStats
	runtime.ReadMemStats(&m)

	return []zap.Field{
		zap.Duration("uptime", time.Since(pm.startTime).Truncate(time.Second)),
		zap.Uint64("commands", pm.commandCount.Load()),
		zap.Float64("command_latency_ms", pm.CommandLatency()),
		zap.Uint64("events", pm.eventCount.Load()),
		zap.Float64("event_latency_ms", float64(pm.eventLatency.Load())/1e6),
		zap.Uint64("rest_calls", pm.restCallCount.Load()),
		zap.Float64("rest_latency_ms", pm.RESTLatency()),
		zap.Int64("ws_latency_ms", pm.wsLatency.Load()),
		zap.Int("goroutines", runtime.NumGoroutine()),
		zap.Uint64("memory_alloc_mb", m.Alloc/1024/1024),
		zap.Uint32("gc_count", m.NumGC),
	}
}

// PerfTransport wraps http.RoundTripper to track REST latency
type PerfTransport struct {
	Base    http.RoundTripper
	Monitor *PerformanceMonitor
}

func (t *PerfTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	start := time.Now()
	resp, err := t.Base.RoundTrip(req)
	t.Monitor.TrackREST(time.Since(start))
	return resp, err
}

// StartMonitoring logs a performance summary every interval until ctx is done.
func (b *Bot) StartMonitoring(ctx context.Context, interval time.Duration) {
	if b.PerfMonitor == nil {
		b.PerfMonitor = NewPerformanceMonitor()
	}

	ticker := time.NewTicker(interval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
			}

			b.Logger.Info("performance", b.PerfMonitor.Fields()...)
			if rest := b.PerfMonitor.RESTLatency(); rest > 2000 {
				b.Logger.Warn("slow Discord REST calls", zap.Float64("rest_latency_ms", rest))
			}
		}
	}()
}

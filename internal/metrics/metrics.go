package metrics

import (
	"context"
	"errors"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/leadfunnel/leadfunnel/internal/store"
)

var (
	// Transitions counts resolved step transitions by the routing rule that fired.
	Transitions = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "leadfunnel_transitions_total",
		Help: "Resolved step transitions by routing rule",
	}, []string{"funnel", "rule"})

	// SessionEvents counts tracking events by kind.
	SessionEvents = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "leadfunnel_session_events_total",
		Help: "Session lifecycle events",
	}, []string{"event"})

	// WriteFailures counts swallowed persistence failures by operation.
	WriteFailures = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "leadfunnel_tracking_write_failures_total",
		Help: "Tracking and submission writes that failed and were dropped",
	}, []string{"op"})

	// Abandoned counts sessions flagged by the reaper.
	Abandoned = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "leadfunnel_sessions_abandoned_total",
		Help: "Sessions marked abandoned by the idle reaper",
	})
)

var sessionsDesc = prometheus.NewDesc(
	"leadfunnel_sessions",
	"Stored sessions by funnel and status",
	[]string{"funnel", "status"},
	nil,
)

// SessionCollector reads session counts from the store on each scrape.
type SessionCollector struct {
	store  *store.SQLiteStore
	logger *zap.Logger
}

func (c *SessionCollector) Describe(ch chan<- *prometheus.Desc) {
	ch <- sessionsDesc
}

func (c *SessionCollector) Collect(ch chan<- prometheus.Metric) {
	counts, err := c.store.CountByStatus(context.Background())
	if err != nil {
		c.logger.Error("failed to collect session metrics", zap.Error(err))
		return
	}
	for funnelID, byStatus := range counts {
		for status, n := range byStatus {
			ch <- prometheus.MustNewConstMetric(sessionsDesc, prometheus.GaugeValue, float64(n), funnelID, string(status))
		}
	}
}

// Register adds the engine's collectors to reg. Collectors already present
// in reg are left alone.
func Register(reg prometheus.Registerer, s *store.SQLiteStore, logger *zap.Logger) {
	collectors := []prometheus.Collector{Transitions, SessionEvents, WriteFailures, Abandoned}
	if s != nil {
		collectors = append(collectors, &SessionCollector{store: s, logger: logger})
	}
	for _, c := range collectors {
		if err := reg.Register(c); err != nil {
			var are prometheus.AlreadyRegisteredError
			if !errors.As(err, &are) {
				logger.Warn("failed to register collector", zap.Error(err))
			}
		}
	}
}

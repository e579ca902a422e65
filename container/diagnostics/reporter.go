// Package diagnostics adds observability on top of the container core: a
// scheduled removal-pending/wiring-health report and Prometheus counters
// for resolve/refresh/start-level activity. Nothing in the container core
// depends on this package; it observes events published through the
// standard Observer/Subject contract.
package diagnostics

import (
	"context"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/robfig/cron/v3"

	"github.com/GoCodeAlone/containerkit/container"
	"github.com/GoCodeAlone/containerkit/internal/observability"
)

// Metrics is the set of Prometheus collectors this package registers.
type Metrics struct {
	ResolveTotal      *prometheus.CounterVec
	RefreshTotal      *prometheus.CounterVec
	ResolveDuration   prometheus.Histogram
	ActiveStartLevel  prometheus.Gauge
	RemovalPendingLen prometheus.Gauge
}

// NewMetrics constructs and registers Metrics against reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		ResolveTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "container_resolve_total",
			Help: "Count of resolve attempts by result.",
		}, []string{"result"}),
		RefreshTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "container_refresh_total",
			Help: "Count of refresh attempts by result.",
		}, []string{"result"}),
		ResolveDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name: "container_resolve_duration_seconds",
			Help: "Duration of resolve operations.",
		}),
		ActiveStartLevel: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "container_active_start_level",
			Help: "The framework's current active start level.",
		}),
		RemovalPendingLen: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "container_removal_pending_count",
			Help: "Number of revisions currently removal-pending.",
		}),
	}
	reg.MustRegister(m.ResolveTotal, m.RefreshTotal, m.ResolveDuration, m.ActiveStartLevel, m.RemovalPendingLen)
	return m
}

// EventObserver turns published container events into metric increments.
// Register it on the Adaptor's Subject to wire this package in without any
// import from container back into diagnostics.
type EventObserver struct {
	id      string
	metrics *Metrics
}

func NewEventObserver(metrics *Metrics) *EventObserver {
	return &EventObserver{id: "diagnostics-metrics", metrics: metrics}
}

func (o *EventObserver) ObserverID() string { return o.id }

func (o *EventObserver) OnEvent(ctx context.Context, event container.Event) error {
	switch event.Kind() {
	case container.EventResolved:
		o.metrics.ResolveTotal.WithLabelValues("resolved").Inc()
	case container.EventUnresolved:
		o.metrics.RefreshTotal.WithLabelValues("unresolved").Inc()
	case container.EventStartLevel:
		// value is refreshed by Reporter's polling loop, not per-event,
		// since the event itself doesn't carry the new level.
	case container.EventError:
		o.metrics.ResolveTotal.WithLabelValues("error").Inc()
	}
	return nil
}

// Reporter runs a robfig/cron job that periodically logs and updates
// gauges for removal-pending count and the active start level. Disabled
// until Start is called.
type Reporter struct {
	wiring  *container.ContainerWiring
	c       *container.Container
	metrics *Metrics
	logger  observability.Logger

	cron *cron.Cron
}

// NewReporter constructs a Reporter over the given container and wiring
// façade.
func NewReporter(c *container.Container, wiring *container.ContainerWiring, metrics *Metrics, logger observability.Logger) *Reporter {
	if logger == nil {
		logger = observability.NewNopLogger()
	}
	return &Reporter{c: c, wiring: wiring, metrics: metrics, logger: logger}
}

// Start schedules the periodic report using the given cron spec (e.g.
// "@every 30s") and begins running it. Call Stop to end it.
func (r *Reporter) Start(spec string) error {
	r.cron = cron.New()
	_, err := r.cron.AddFunc(spec, r.report)
	if err != nil {
		return err
	}
	r.cron.Start()
	return nil
}

func (r *Reporter) Stop() {
	if r.cron == nil {
		return
	}
	ctx := r.cron.Stop()
	select {
	case <-ctx.Done():
	case <-time.After(5 * time.Second):
	}
}

func (r *Reporter) report() {
	pending := r.wiring.GetRemovalPendingBundles()
	level := r.c.ActiveStartLevel()

	if r.metrics != nil {
		r.metrics.RemovalPendingLen.Set(float64(len(pending)))
		r.metrics.ActiveStartLevel.Set(float64(level))
	}
	r.logger.Info("container diagnostics", "removalPending", len(pending), "activeStartLevel", level)
}

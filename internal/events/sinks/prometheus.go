package sinks

import (
	"context"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/RandyNorthrup/Clone-Website-to-Docker-Tool/internal/events"
)

// PrometheusSink exports run progress as Prometheus metrics. It owns every
// collector it registers; the serve command exposes them on /metrics.
type PrometheusSink struct {
	eventsTotal   *prometheus.CounterVec
	pagesRendered prometheus.Counter
	capturesTotal *prometheus.CounterVec
	pluginErrors  *prometheus.CounterVec
	adjustments   prometheus.Counter
	runsCompleted *prometheus.CounterVec
}

// NewPrometheusSink registers the collectors against the provided registry.
func NewPrometheusSink(reg prometheus.Registerer) (*PrometheusSink, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	s := &PrometheusSink{
		eventsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "cw2dt_events_total",
			Help: "Events emitted partitioned by event name.",
		}, []string{"event"}),
		pagesRendered: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "cw2dt_pages_rendered_total",
			Help: "Pages rendered by the dynamic crawl.",
		}),
		capturesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "cw2dt_captures_total",
			Help: "Side artifacts persisted partitioned by capture category.",
		}, []string{"category"}),
		pluginErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "cw2dt_plugin_errors_total",
			Help: "Contained plugin hook failures partitioned by plugin.",
		}, []string{"plugin"}),
		adjustments: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "cw2dt_mirror_adjustments_total",
			Help: "Adaptive concurrency reductions applied to the mirror transfer.",
		}),
		runsCompleted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "cw2dt_runs_completed_total",
			Help: "Completed runs partitioned by result.",
		}, []string{"result"}),
	}
	for _, collector := range []prometheus.Collector{
		s.eventsTotal,
		s.pagesRendered,
		s.capturesTotal,
		s.pluginErrors,
		s.adjustments,
		s.runsCompleted,
	} {
		if err := reg.Register(collector); err != nil {
			return nil, fmt.Errorf("register event collector: %w", err)
		}
	}
	return s, nil
}

// Write updates the collectors from one event.
func (s *PrometheusSink) Write(evt events.Event) error {
	s.eventsTotal.WithLabelValues(evt.Name).Inc()
	switch evt.Name {
	case events.NamePageRendered:
		s.pagesRendered.Inc()
	case events.NameCapture:
		category, _ := evt.Fields["category"].(string)
		if category == "" {
			category = "unknown"
		}
		s.capturesTotal.WithLabelValues(category).Inc()
	case events.NamePluginError:
		plugin, _ := evt.Fields["plugin"].(string)
		if plugin == "" {
			plugin = "unknown"
		}
		s.pluginErrors.WithLabelValues(plugin).Inc()
	case events.NameMirrorAdjustment:
		s.adjustments.Inc()
	case events.NameSummary:
		result := "error"
		if ok, _ := evt.Fields["success"].(bool); ok {
			result = "success"
		}
		s.runsCompleted.WithLabelValues(result).Inc()
	}
	return nil
}

// Close implements the Sink interface; it performs no action.
func (s *PrometheusSink) Close(context.Context) error {
	return nil
}

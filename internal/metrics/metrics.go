// Package metrics exposes prometheus instrumentation for the conversation
// engine, wired in through lifecycle hooks so the core stays metric-free.
package metrics

import (
	"context"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/agrivaani/agrivaani/pkg/domain"
)

// Metrics holds the engine's prometheus collectors.
type Metrics struct {
	turns             *prometheus.CounterVec
	duplicateTurns    prometheus.Counter
	externalCalls     *prometheus.HistogramVec
	externalFallbacks *prometheus.CounterVec
}

// New creates the collectors and registers them on reg.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		turns: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "agrivaani_turns_total",
				Help: "Total turns processed, by flow and channel",
			},
			[]string{"flow", "channel"},
		),
		duplicateTurns: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "agrivaani_duplicate_turns_total",
				Help: "Redelivered turns absorbed by the idempotency cache",
			},
		),
		externalCalls: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name: "agrivaani_external_call_duration_seconds",
				Help: "Duration of external service calls",
			},
			[]string{"service"},
		),
		externalFallbacks: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "agrivaani_external_fallbacks_total",
				Help: "External call failures absorbed by a local fallback",
			},
			[]string{"service"},
		),
	}
	reg.MustRegister(m.turns, m.duplicateTurns, m.externalCalls, m.externalFallbacks)
	return m
}

// Hooks returns lifecycle hooks feeding these collectors.
func (m *Metrics) Hooks() domain.LifecycleHooks {
	return domain.LifecycleHooks{
		OnTurn: func(ctx context.Context, e *domain.TurnEvent) {
			m.turns.WithLabelValues(e.FlowID, e.Channel).Inc()
			if e.Duplicate {
				m.duplicateTurns.Inc()
			}
		},
		OnExternalCall: func(ctx context.Context, e *domain.ExternalCallEvent) {
			m.externalCalls.WithLabelValues(e.Service).Observe(e.Duration.Seconds())
			if e.Fallback {
				m.externalFallbacks.WithLabelValues(e.Service).Inc()
			}
		},
	}
}

// Casewise
// Copyright (C) 2025 Casewise (engineering@casewise.dev)
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package observability provides Prometheus metrics for the chat
// orchestrator.
//
// # Description
//
// Metrics cover the streaming chat pipeline:
//   - Request counters by mode and status
//   - Short-circuit counters by rule
//   - Latency histograms (time to first token, total stream duration)
//   - Active stream gauge
//   - Error counters by categorized error code
//
// # Integration
//
// Metrics are exposed via the /metrics endpoint for Prometheus scraping.
//
// # Thread Safety
//
// All metric operations are thread-safe via Prometheus's internal locking.
package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const (
	metricsNamespace = "casewise"
	chatSubsystem    = "chat"
)

// ChatMetrics holds all Prometheus metrics for chat turn processing.
// Initialize once at startup via InitMetrics().
type ChatMetrics struct {
	// RequestsTotal counts chat turns by mode and outcome.
	// Labels: mode (general_qa, request_consultation, practice_onboarding),
	// status (success, error)
	RequestsTotal *prometheus.CounterVec

	// ShortCircuitsTotal counts turns answered by the deterministic rule
	// engine without calling the model.
	// Labels: rule
	ShortCircuitsTotal *prometheus.CounterVec

	// TokensTotal counts streamed output tokens by model.
	// Labels: model
	TokensTotal *prometheus.CounterVec

	// TimeToFirstTokenSeconds measures latency from request to first
	// streamed token.
	// Labels: mode
	TimeToFirstTokenSeconds *prometheus.HistogramVec

	// StreamDurationSeconds measures total turn duration.
	// Labels: mode, status
	StreamDurationSeconds *prometheus.HistogramVec

	// ActiveStreams tracks currently open SSE connections.
	// Labels: mode
	ActiveStreams *prometheus.GaugeVec

	// ErrorsTotal counts errors by categorized code.
	// Labels: mode, error_code
	ErrorsTotal *prometheus.CounterVec

	// FallbacksTotal counts turns where the model output was replaced by
	// a canned fallback (empty stream, contract violation).
	// Labels: mode, reason
	FallbacksTotal *prometheus.CounterVec

	// ClientDisconnectsTotal counts clients that dropped mid-stream.
	// Labels: mode
	ClientDisconnectsTotal *prometheus.CounterVec
}

// DefaultMetrics is the singleton instance, set by InitMetrics().
var DefaultMetrics *ChatMetrics

// InitMetrics creates and registers all metrics on the default registry.
// Call once at startup; calling twice panics on duplicate registration.
func InitMetrics() *ChatMetrics {
	DefaultMetrics = &ChatMetrics{
		RequestsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Subsystem: chatSubsystem,
				Name:      "requests_total",
				Help:      "Total chat turns by mode and status",
			},
			[]string{"mode", "status"},
		),

		ShortCircuitsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Subsystem: chatSubsystem,
				Name:      "short_circuits_total",
				Help:      "Turns answered deterministically without a model call",
			},
			[]string{"rule"},
		),

		TokensTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Subsystem: chatSubsystem,
				Name:      "tokens_total",
				Help:      "Streamed output tokens by model",
			},
			[]string{"model"},
		),

		TimeToFirstTokenSeconds: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: metricsNamespace,
				Subsystem: chatSubsystem,
				Name:      "time_to_first_token_seconds",
				Help:      "Time from request to first token in seconds",
				Buckets:   []float64{0.1, 0.25, 0.5, 1.0, 2.5, 5.0, 10.0, 30.0},
			},
			[]string{"mode"},
		),

		StreamDurationSeconds: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: metricsNamespace,
				Subsystem: chatSubsystem,
				Name:      "stream_duration_seconds",
				Help:      "Total chat turn duration in seconds",
				Buckets:   []float64{1, 5, 10, 30, 60, 120, 300},
			},
			[]string{"mode", "status"},
		),

		ActiveStreams: promauto.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: metricsNamespace,
				Subsystem: chatSubsystem,
				Name:      "active_streams",
				Help:      "Currently open SSE connections",
			},
			[]string{"mode"},
		),

		ErrorsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Subsystem: chatSubsystem,
				Name:      "errors_total",
				Help:      "Chat turn errors by mode and error code",
			},
			[]string{"mode", "error_code"},
		),

		FallbacksTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Subsystem: chatSubsystem,
				Name:      "fallbacks_total",
				Help:      "Turns where model output was replaced by a canned fallback",
			},
			[]string{"mode", "reason"},
		),

		ClientDisconnectsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Subsystem: chatSubsystem,
				Name:      "client_disconnects_total",
				Help:      "Clients that dropped mid-stream",
			},
			[]string{"mode"},
		),
	}

	return DefaultMetrics
}

// ErrorCode represents a categorized error type for metrics.
type ErrorCode string

const (
	// ErrorCodeValidation indicates request validation failure.
	ErrorCodeValidation ErrorCode = "validation"

	// ErrorCodeForbidden indicates a participant check failure.
	ErrorCodeForbidden ErrorCode = "forbidden"

	// ErrorCodeUpstream indicates a model API failure.
	ErrorCodeUpstream ErrorCode = "upstream_error"

	// ErrorCodeTimeout indicates the upstream connect deadline expired.
	ErrorCodeTimeout ErrorCode = "timeout"

	// ErrorCodeStall indicates the per-read stall deadline expired
	// mid-stream.
	ErrorCodeStall ErrorCode = "stall"

	// ErrorCodePersistence indicates the final store write failed.
	ErrorCodePersistence ErrorCode = "persistence"

	// ErrorCodeInternal indicates an internal server error.
	ErrorCodeInternal ErrorCode = "internal"

	// ErrorCodeClientDisconnect indicates the client went away.
	ErrorCodeClientDisconnect ErrorCode = "client_disconnect"
)

// RecordRequest records a completed chat turn.
func (m *ChatMetrics) RecordRequest(mode string, success bool) {
	status := "success"
	if !success {
		status = "error"
	}
	m.RequestsTotal.WithLabelValues(mode, status).Inc()
}

// RecordShortCircuit records a turn answered by the rule engine.
func (m *ChatMetrics) RecordShortCircuit(rule string) {
	m.ShortCircuitsTotal.WithLabelValues(rule).Inc()
}

// RecordError records a categorized turn error.
func (m *ChatMetrics) RecordError(mode string, code ErrorCode) {
	m.ErrorsTotal.WithLabelValues(mode, string(code)).Inc()
}

// RecordTokens adds streamed output tokens for model.
func (m *ChatMetrics) RecordTokens(count int, model string) {
	m.TokensTotal.WithLabelValues(model).Add(float64(count))
}

// StreamStarted increments the active streams gauge.
func (m *ChatMetrics) StreamStarted(mode string) {
	m.ActiveStreams.WithLabelValues(mode).Inc()
}

// StreamEnded decrements the active streams gauge.
func (m *ChatMetrics) StreamEnded(mode string) {
	m.ActiveStreams.WithLabelValues(mode).Dec()
}

// RecordTimeToFirstToken records first-token latency.
func (m *ChatMetrics) RecordTimeToFirstToken(mode string, seconds float64) {
	m.TimeToFirstTokenSeconds.WithLabelValues(mode).Observe(seconds)
}

// RecordStreamDuration records total turn duration.
func (m *ChatMetrics) RecordStreamDuration(mode string, seconds float64, success bool) {
	status := "success"
	if !success {
		status = "error"
	}
	m.StreamDurationSeconds.WithLabelValues(mode, status).Observe(seconds)
}

// RecordFallback records a canned-fallback substitution.
func (m *ChatMetrics) RecordFallback(mode, reason string) {
	m.FallbacksTotal.WithLabelValues(mode, reason).Inc()
}

// RecordClientDisconnect records a client that dropped mid-stream.
func (m *ChatMetrics) RecordClientDisconnect(mode string) {
	m.ClientDisconnectsTotal.WithLabelValues(mode).Inc()
}

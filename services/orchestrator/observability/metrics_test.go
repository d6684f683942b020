// Casewise
// Copyright (C) 2025 Casewise (engineering@casewise.dev)
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package observability

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

// newTestMetrics builds a ChatMetrics on a private registry so tests do
// not collide with the global registry or each other.
func newTestMetrics(t *testing.T) *ChatMetrics {
	t.Helper()

	m := &ChatMetrics{
		RequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{Name: "requests_total"},
			[]string{"mode", "status"},
		),
		ShortCircuitsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{Name: "short_circuits_total"},
			[]string{"rule"},
		),
		TokensTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{Name: "tokens_total"},
			[]string{"model"},
		),
		TimeToFirstTokenSeconds: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{Name: "time_to_first_token_seconds"},
			[]string{"mode"},
		),
		StreamDurationSeconds: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{Name: "stream_duration_seconds"},
			[]string{"mode", "status"},
		),
		ActiveStreams: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{Name: "active_streams"},
			[]string{"mode"},
		),
		ErrorsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{Name: "errors_total"},
			[]string{"mode", "error_code"},
		),
		FallbacksTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{Name: "fallbacks_total"},
			[]string{"mode", "reason"},
		),
		ClientDisconnectsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{Name: "client_disconnects_total"},
			[]string{"mode"},
		),
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		m.RequestsTotal, m.ShortCircuitsTotal, m.TokensTotal,
		m.TimeToFirstTokenSeconds, m.StreamDurationSeconds,
		m.ActiveStreams, m.ErrorsTotal, m.FallbacksTotal,
		m.ClientDisconnectsTotal,
	)
	return m
}

func TestRecordRequest(t *testing.T) {
	m := newTestMetrics(t)

	m.RecordRequest("general_qa", true)
	m.RecordRequest("general_qa", true)
	m.RecordRequest("general_qa", false)

	assert.Equal(t, float64(2), testutil.ToFloat64(m.RequestsTotal.WithLabelValues("general_qa", "success")))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.RequestsTotal.WithLabelValues("general_qa", "error")))
}

func TestRecordShortCircuit(t *testing.T) {
	m := newTestMetrics(t)

	m.RecordShortCircuit("intake_already_submitted")
	m.RecordShortCircuit("intake_already_submitted")

	assert.Equal(t, float64(2), testutil.ToFloat64(m.ShortCircuitsTotal.WithLabelValues("intake_already_submitted")))
}

func TestActiveStreamsGauge(t *testing.T) {
	m := newTestMetrics(t)

	m.StreamStarted("request_consultation")
	m.StreamStarted("request_consultation")
	m.StreamEnded("request_consultation")

	assert.Equal(t, float64(1), testutil.ToFloat64(m.ActiveStreams.WithLabelValues("request_consultation")))
}

func TestRecordErrorAndFallback(t *testing.T) {
	m := newTestMetrics(t)

	m.RecordError("general_qa", ErrorCodeStall)
	m.RecordFallback("general_qa", "empty_stream")
	m.RecordClientDisconnect("general_qa")
	m.RecordTokens(42, "gpt-4o-mini")

	assert.Equal(t, float64(1), testutil.ToFloat64(m.ErrorsTotal.WithLabelValues("general_qa", "stall")))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.FallbacksTotal.WithLabelValues("general_qa", "empty_stream")))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.ClientDisconnectsTotal.WithLabelValues("general_qa")))
	assert.Equal(t, float64(42), testutil.ToFloat64(m.TokensTotal.WithLabelValues("gpt-4o-mini")))
}

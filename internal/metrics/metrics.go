// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package metrics holds the Prometheus collectors for review runs. The
// collectors are package-level so any component can record into them;
// Init registers them with the default registry once.
package metrics

import (
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Run metrics
	Runs = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "litrev_runs_total",
			Help: "Total number of finished review runs",
		},
		[]string{"state"}, // state: done|failed
	)

	RunDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "litrev_run_duration_seconds",
			Help:    "Wall time of a review run in seconds",
			Buckets: []float64{1, 5, 10, 30, 60, 120, 300, 600},
		},
	)

	RunsInFlight = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "litrev_runs_in_flight",
			Help: "Number of review runs currently iterating",
		},
	)

	// Conversation metrics
	Turns = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "litrev_turns_total",
			Help: "Total number of role turns",
		},
		[]string{"role", "status"}, // status: success|error
	)

	Messages = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "litrev_messages_total",
			Help: "Total number of conversation messages emitted",
		},
		[]string{"sender", "kind"},
	)

	ProtocolViolations = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "litrev_protocol_violations_total",
			Help: "Total number of protocol violations by role",
		},
		[]string{"role"},
	)

	// Tool metrics
	ToolCalls = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "litrev_tool_calls_total",
			Help: "Total number of search tool calls",
		},
		[]string{"tool", "status"},
	)

	ToolLatency = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "litrev_tool_latency_seconds",
			Help:    "Search tool latency in seconds",
			Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30},
		},
		[]string{"tool"},
	)

	// Model metrics
	ModelCalls = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "litrev_model_calls_total",
			Help: "Total number of chat completion calls",
		},
		[]string{"role", "model", "status"},
	)

	ModelLatency = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "litrev_model_latency_seconds",
			Help:    "Chat completion latency in seconds",
			Buckets: []float64{0.5, 1, 2, 5, 10, 20, 30, 60, 120},
		},
		[]string{"role", "model"},
	)

	ModelTokens = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "litrev_model_tokens_total",
			Help: "Total tokens reported by the chat host",
		},
		[]string{"role", "model", "type"}, // type: input|output
	)
)

var registerOnce sync.Once

// Init registers all collectors with the default Prometheus registry. It
// is safe to call more than once.
func Init() {
	registerOnce.Do(func() {
		prometheus.MustRegister(
			Runs, RunDuration, RunsInFlight,
			Turns, Messages, ProtocolViolations,
			ToolCalls, ToolLatency,
			ModelCalls, ModelLatency, ModelTokens,
		)
	})
}

// Handler returns the Prometheus HTTP handler.
func Handler() http.Handler {
	return promhttp.Handler()
}

func status(err error) string {
	if err != nil {
		return "error"
	}
	return "success"
}

// RecordRun records a finished run.
func RecordRun(state string, duration time.Duration) {
	Runs.WithLabelValues(state).Inc()
	RunDuration.Observe(duration.Seconds())
}

// RecordTurn records the outcome of one role's turn.
func RecordTurn(role string, err error) {
	Turns.WithLabelValues(role, status(err)).Inc()
}

// RecordMessage counts an emitted conversation message.
func RecordMessage(sender, kind string) {
	Messages.WithLabelValues(sender, kind).Inc()
}

// RecordProtocolViolation counts a violation raised against role.
func RecordProtocolViolation(role string) {
	ProtocolViolations.WithLabelValues(role).Inc()
}

// RecordToolCall records a search tool invocation.
func RecordToolCall(tool string, latency time.Duration, err error) {
	ToolCalls.WithLabelValues(tool, status(err)).Inc()
	ToolLatency.WithLabelValues(tool).Observe(latency.Seconds())
}

// RecordModelCall records a chat completion call made on behalf of role.
func RecordModelCall(role, model string, latency time.Duration, inputTokens, outputTokens int64, err error) {
	ModelCalls.WithLabelValues(role, model, status(err)).Inc()
	ModelLatency.WithLabelValues(role, model).Observe(latency.Seconds())

	if inputTokens > 0 {
		ModelTokens.WithLabelValues(role, model, "input").Add(float64(inputTokens))
	}
	if outputTokens > 0 {
		ModelTokens.WithLabelValues(role, model, "output").Add(float64(outputTokens))
	}
}

package observability

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/trace"
)

func TestParseLevel(t *testing.T) {
	assert.Equal(t, slog.LevelDebug, ParseLevel("DEBUG"))
	assert.Equal(t, slog.LevelWarn, ParseLevel("warning"))
	assert.Equal(t, slog.LevelError, ParseLevel("error"))
	assert.Equal(t, slog.LevelInfo, ParseLevel(""))
}

func TestLoggerInjectsTraceIDs(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(&buf, "info")

	traceID, _ := trace.TraceIDFromHex("4bf92f3577b34da6a3ce929d0e0e4736")
	spanID, _ := trace.SpanIDFromHex("00f067aa0ba902b7")
	sc := trace.NewSpanContext(trace.SpanContextConfig{TraceID: traceID, SpanID: spanID, TraceFlags: trace.FlagsSampled})
	ctx := trace.ContextWithSpanContext(context.Background(), sc)

	logger.InfoContext(ctx, "turn applied", "session_id", "S1")
	logger.DebugContext(ctx, "hidden")

	var line map[string]any
	require.NoError(t, json.Unmarshal(bytes.TrimSpace(buf.Bytes()), &line))
	assert.Equal(t, "turn applied", line["msg"])
	assert.Equal(t, "4bf92f3577b34da6a3ce929d0e0e4736", line["trace_id"])
	assert.Equal(t, "00f067aa0ba902b7", line["span_id"])
}

func TestDetachTraceContext(t *testing.T) {
	assert.Equal(t, context.Background(), DetachTraceContext(context.Background()))

	traceID, _ := trace.TraceIDFromHex("4bf92f3577b34da6a3ce929d0e0e4736")
	spanID, _ := trace.SpanIDFromHex("00f067aa0ba902b7")
	sc := trace.NewSpanContext(trace.SpanContextConfig{TraceID: traceID, SpanID: spanID})
	parent, cancel := context.WithCancel(trace.ContextWithSpanContext(context.Background(), sc))
	cancel()

	detached := DetachTraceContext(parent)
	assert.NoError(t, detached.Err())
	assert.Equal(t, traceID, trace.SpanContextFromContext(detached).TraceID())
}

func TestMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetrics(reg)

	m.RecordTurn("openai", "parsed")
	m.RecordTurn("openai", "parsed")
	m.RecordTurn("claude", "degraded")
	m.ObserveGenerator("openai", 200*time.Millisecond, true)
	m.RecordSessionStarted()
	m.RecordSessionFinished("won")

	assert.Equal(t, 2.0, testutil.ToFloat64(m.turns.WithLabelValues("openai", "parsed")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.turns.WithLabelValues("claude", "degraded")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.generatorFailures.WithLabelValues("openai")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.sessionsStarted))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.sessionsFinished.WithLabelValues("won")))
}

func TestNilMetricsIsNoop(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.RecordTurn("openai", "parsed")
		m.ObserveGenerator("openai", time.Second, false)
		m.RecordSessionStarted()
		m.RecordSessionFinished("lost")
	})
}

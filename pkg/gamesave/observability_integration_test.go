package gamesave

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"os"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/codes"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"github.com/randalmurphal/gamesave/pkg/gamesave/observability"
)

// testLogHandler captures log records for testing.
type testLogHandler struct {
	mu    sync.Mutex
	buf   *bytes.Buffer
	level slog.Level
}

func newTestLogHandler() *testLogHandler {
	return &testLogHandler{
		buf:   &bytes.Buffer{},
		level: slog.LevelDebug,
	}
}

func (h *testLogHandler) Enabled(_ context.Context, level slog.Level) bool {
	return level >= h.level
}

func (h *testLogHandler) Handle(_ context.Context, r slog.Record) error {
	data := map[string]any{
		"level": r.Level.String(),
		"msg":   r.Message,
	}
	r.Attrs(func(a slog.Attr) bool {
		data[a.Key] = a.Value.Any()
		return true
	})
	h.mu.Lock()
	defer h.mu.Unlock()
	return json.NewEncoder(h.buf).Encode(data)
}

func (h *testLogHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return h
}

func (h *testLogHandler) WithGroup(name string) slog.Handler {
	return h
}

func (h *testLogHandler) getRecords() []map[string]any {
	h.mu.Lock()
	defer h.mu.Unlock()
	var records []map[string]any
	for _, line := range bytes.Split(h.buf.Bytes(), []byte("\n")) {
		if len(line) == 0 {
			continue
		}
		var m map[string]any
		if err := json.Unmarshal(line, &m); err == nil {
			records = append(records, m)
		}
	}
	return records
}

func (h *testLogHandler) find(msg string) []map[string]any {
	var out []map[string]any
	for _, r := range h.getRecords() {
		if r["msg"] == msg {
			out = append(out, r)
		}
	}
	return out
}

func TestSave_LogsLifecycle(t *testing.T) {
	h := newTestLogHandler()
	mgr := newTestManager(t, WithLogger(slog.New(h)), WithMaxCheckpoints(1))

	game := newFakeGame()
	game.screen = nil
	first := saveStep(t, mgr, game, "e1", 1)
	second := saveStep(t, mgr, game, "e1", 2)

	saved := h.find("checkpoint saved")
	require.Len(t, saved, 2)
	assert.Equal(t, second, saved[1]["checkpoint_id"])
	assert.Equal(t, "INFO", saved[1]["level"])

	degraded := h.find("capture degraded")
	require.Len(t, degraded, 2)
	assert.Equal(t, "WARN", degraded[0]["level"])
	assert.Equal(t, "screen", degraded[0]["capability"])

	evicted := h.find("checkpoint evicted")
	require.Len(t, evicted, 1)
	assert.Equal(t, first, evicted[0]["checkpoint_id"])
}

func TestLoad_LogsFailure(t *testing.T) {
	h := newTestLogHandler()
	mgr := newTestManager(t, WithLogger(slog.New(h)))
	id := saveStep(t, mgr, newFakeGame(), "e1", 1)

	entry, err := mgr.Latest(context.Background(), "e1")
	require.NoError(t, err)
	require.NoError(t, os.Remove(entry.FilePath))

	_, err = mgr.Load(context.Background(), id, nil)
	require.Error(t, err)

	failed := h.find("checkpoint load failed")
	require.Len(t, failed, 1)
	assert.Equal(t, "ERROR", failed[0]["level"])
	assert.Equal(t, id, failed[0]["checkpoint_id"])
}

func TestManager_Metrics(t *testing.T) {
	reader := sdkmetric.NewManualReader()
	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	t.Cleanup(func() { provider.Shutdown(context.Background()) })

	recorder, err := observability.NewMetricsRecorderWithProvider(provider)
	require.NoError(t, err)

	mgr := newTestManager(t, WithMetricsRecorder(recorder), WithMaxCheckpoints(1))
	game := newFakeGame()
	saveStep(t, mgr, game, "e1", 1)
	id := saveStep(t, mgr, game, "e1", 2)
	_, err = mgr.Load(context.Background(), id, game)
	require.NoError(t, err)
	_, err = mgr.Save(context.Background(), unknownGame{}, SaveRequest{EpisodeID: "e1", StepNumber: 3})
	require.Error(t, err)

	var rm metricdata.ResourceMetrics
	require.NoError(t, reader.Collect(context.Background(), &rm))

	assert.Equal(t, int64(3), sumCounter(t, &rm, "gamesave.save.count"))
	assert.Equal(t, int64(1), sumCounter(t, &rm, "gamesave.save.errors"))
	assert.Equal(t, int64(1), sumCounter(t, &rm, "gamesave.load.count"))
	assert.Equal(t, int64(1), sumCounter(t, &rm, "gamesave.retention.evictions"))
}

func TestManager_Spans(t *testing.T) {
	exporter := tracetest.NewInMemoryExporter()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSyncer(exporter))
	t.Cleanup(func() { tp.Shutdown(context.Background()) })

	mgr := newTestManager(t, WithSpanManager(observability.NewSpanManagerWithProvider(tp)))
	id := saveStep(t, mgr, newFakeGame(), "e1", 1)
	_, err := mgr.Load(context.Background(), "missing", nil)
	require.Error(t, err)
	_, err = mgr.Load(context.Background(), id, nil)
	require.NoError(t, err)

	byName := map[string][]tracetest.SpanStub{}
	for _, s := range exporter.GetSpans() {
		byName[s.Name] = append(byName[s.Name], s)
	}

	require.Len(t, byName["gamesave.save"], 1)
	assert.Equal(t, codes.Ok, byName["gamesave.save"][0].Status.Code)
	require.Len(t, byName["gamesave.load"], 2)
	assert.Equal(t, codes.Error, byName["gamesave.load"][0].Status.Code)
	assert.Equal(t, codes.Ok, byName["gamesave.load"][1].Status.Code)
	assert.Len(t, byName["gamesave.cleanup"], 1)
}

func sumCounter(t *testing.T, rm *metricdata.ResourceMetrics, name string) int64 {
	t.Helper()
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			if m.Name != name {
				continue
			}
			sum, ok := m.Data.(metricdata.Sum[int64])
			require.True(t, ok, "Expected Sum type for %s", name)
			var total int64
			for _, dp := range sum.DataPoints {
				total += dp.Value
			}
			return total
		}
	}
	t.Fatalf("metric %s not found", name)
	return 0
}

package profiler

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestProfiler(buf *bytes.Buffer, clock *time.Time) *Profiler {
	p := NewProfiler(slog.New(slog.NewJSONHandler(buf, nil)))
	p.now = func() time.Time { return *clock }
	p.lastTime = *clock
	return p
}

func TestTickReportsOncePerInterval(t *testing.T) {
	var buf bytes.Buffer
	clock := time.Unix(0, 0)
	p := newTestProfiler(&buf, &clock)

	for range 9 {
		clock = clock.Add(100 * time.Millisecond)
		assert.False(t, p.Tick())
	}
	assert.Empty(t, buf.String())

	clock = clock.Add(100 * time.Millisecond)
	require.True(t, p.Tick(slog.Uint64("dispatches", 42)))

	var record map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &record))
	assert.Equal(t, "profiler", record["msg"])
	assert.InDelta(t, 10.0, record["fps"], 0.001)
	assert.Equal(t, float64(42), record["dispatches"])
	assert.Contains(t, record, "heap_mb")

	clock = clock.Add(100 * time.Millisecond)
	assert.False(t, p.Tick(), "frame count and clock reset after a report")
}

func TestSetInterval(t *testing.T) {
	var buf bytes.Buffer
	clock := time.Unix(0, 0)
	p := newTestProfiler(&buf, &clock)

	p.SetInterval(0)
	assert.Equal(t, time.Second, p.updateInterval)

	p.SetInterval(10 * time.Millisecond)
	clock = clock.Add(10 * time.Millisecond)
	assert.True(t, p.Tick())
}

func TestNilLoggerFallsBackToDefault(t *testing.T) {
	p := NewProfiler(nil)
	assert.Same(t, slog.Default(), p.logger)
}

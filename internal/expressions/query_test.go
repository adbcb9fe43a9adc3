package expressions

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rendis/nexus/pkg/schema"
)

func sampleEntries() []schema.LogEntry {
	ts := time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC)
	return []schema.LogEntry{
		{ID: "a1", Timestamp: ts, Level: schema.LevelInfo, Source: "Planner", Message: "Processing DAG node: n_492a"},
		{ID: "b2", Timestamp: ts, Level: schema.LevelWarn, Source: "RAGService", Message: "Latency spike detected in embedding service (250ms)"},
		{ID: "c3", Timestamp: ts, Level: schema.LevelDebug, Source: "KafkaConsumer", Message: "Throughput: 1540 tpm (tokens per minute)"},
		{ID: "d4", Timestamp: ts, Level: schema.LevelWarn, Source: "Planner", Message: "Agent State transition: THINKING -> EXECUTING"},
	}
}

func newTestRegistry(t *testing.T) *Registry {
	t.Helper()
	r, err := NewRegistry()
	require.NoError(t, err)
	return r
}

func ids(entries []schema.LogEntry) []string {
	out := make([]string, len(entries))
	for i, e := range entries {
		out[i] = e.ID
	}
	return out
}

func TestRegistry_Names(t *testing.T) {
	r := newTestRegistry(t)
	assert.Equal(t, []string{"cel", "expr", "jq"}, r.Names())

	_, err := r.Engine("lua")
	assert.True(t, schema.HasCode(err, schema.ErrCodeValidation))
}

func TestFilter_AllEnginesAgree(t *testing.T) {
	r := newTestRegistry(t)
	ctx := context.Background()

	queries := map[string]string{
		"cel":  `entry.level == "WARN" && entry.source == "Planner"`,
		"expr": `level == "WARN" && source == "Planner"`,
		"jq":   `select(.level == "WARN" and .source == "Planner")`,
	}
	for engine, q := range queries {
		t.Run(engine, func(t *testing.T) {
			got, err := r.Filter(ctx, engine, q, sampleEntries())
			require.NoError(t, err)
			assert.Equal(t, []string{"d4"}, ids(got))
		})
	}
}

func TestFilter_PreservesOrder(t *testing.T) {
	r := newTestRegistry(t)
	got, err := r.Filter(context.Background(), "expr", `level != "DEBUG"`, sampleEntries())
	require.NoError(t, err)
	assert.Equal(t, []string{"a1", "b2", "d4"}, ids(got))
}

func TestFilter_JQFalseAndNullDrop(t *testing.T) {
	r := newTestRegistry(t)
	got, err := r.Filter(context.Background(), "jq", `.level == "INFO"`, sampleEntries())
	require.NoError(t, err)
	assert.Equal(t, []string{"a1"}, ids(got))
}

func TestFilter_NonBoolResult(t *testing.T) {
	r := newTestRegistry(t)
	_, err := r.Filter(context.Background(), "expr", `source`, sampleEntries())
	require.Error(t, err)
	assert.True(t, schema.HasCode(err, schema.ErrCodeValidation))
}

func TestFilter_Cancelled(t *testing.T) {
	r := newTestRegistry(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := r.Filter(ctx, "expr", `true`, sampleEntries())
	assert.True(t, schema.HasCode(err, schema.ErrCodeCancelled))
}

func TestEntryData(t *testing.T) {
	e := sampleEntries()[0]
	data := EntryData("expr", e)
	assert.Equal(t, "INFO", data["level"])
	assert.Equal(t, "2025-01-02T03:04:05Z", data["timestamp"])
	assert.InDelta(t, float64(e.Timestamp.Unix()), data["unix"], 0.001)

	wrapped := EntryData("cel", e)
	assert.Contains(t, wrapped, "entry")
}

func TestRegistry_EvaluateSnapshot(t *testing.T) {
	r := newTestRegistry(t)
	data := map[string]any{"snapshot": map[string]any{"tick": 3, "cycle": 0}}
	out, err := r.Evaluate(context.Background(), "cel", `snapshot.tick > 2`, data)
	require.NoError(t, err)
	assert.Equal(t, true, out)
}

package expressions

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rendis/nexus/pkg/schema"
)

// --- CEL ---

func TestCEL_EntryField(t *testing.T) {
	e, err := NewCELEngine()
	require.NoError(t, err)
	assert.Equal(t, "cel", e.Name())

	out, err := e.Evaluate(context.Background(), `entry.level == "WARN"`, map[string]any{
		"entry": map[string]any{"level": "WARN"},
	})
	require.NoError(t, err)
	assert.Equal(t, true, out)
}

func TestCEL_StringFunctions(t *testing.T) {
	e, err := NewCELEngine()
	require.NoError(t, err)

	out, err := e.Evaluate(context.Background(), `entry.message.contains("VectorDB") && entry.source.startsWith("RAG")`, map[string]any{
		"entry": map[string]any{"message": "Retrieving context from VectorDB", "source": "RAGService"},
	})
	require.NoError(t, err)
	assert.Equal(t, true, out)
}

func TestCEL_MissingVariableDefaultsToEmptyMap(t *testing.T) {
	e, err := NewCELEngine()
	require.NoError(t, err)

	out, err := e.Evaluate(context.Background(), `size(snapshot) == 0`, nil)
	require.NoError(t, err)
	assert.Equal(t, true, out)
}

func TestCEL_CompileError(t *testing.T) {
	e, err := NewCELEngine()
	require.NoError(t, err)

	_, err = e.Evaluate(context.Background(), `entry.level ==`, nil)
	require.Error(t, err)
	assert.True(t, schema.HasCode(err, schema.ErrCodeValidation))

	_, err = e.Evaluate(context.Background(), `unknown_var == 1`, nil)
	assert.True(t, schema.HasCode(err, schema.ErrCodeValidation))
}

func TestCEL_RuntimeError(t *testing.T) {
	e, err := NewCELEngine()
	require.NoError(t, err)

	_, err = e.Evaluate(context.Background(), `entry.missing == "x"`, map[string]any{"entry": map[string]any{}})
	require.Error(t, err)
	assert.True(t, schema.HasCode(err, schema.ErrCodeExpression))
}

func TestCEL_Empty(t *testing.T) {
	e, err := NewCELEngine()
	require.NoError(t, err)
	_, err = e.Evaluate(context.Background(), "", nil)
	assert.True(t, schema.HasCode(err, schema.ErrCodeValidation))
}

// --- Expr ---

func TestExpr_TopLevelFields(t *testing.T) {
	e := NewExprEngine()
	assert.Equal(t, "expr", e.Name())

	out, err := e.Evaluate(context.Background(), `level in ["WARN", "ERROR"] && source startsWith "Kafka"`, map[string]any{
		"level": "WARN", "source": "KafkaConsumer",
	})
	require.NoError(t, err)
	assert.Equal(t, true, out)
}

func TestExpr_UndefinedVariableIsNil(t *testing.T) {
	e := NewExprEngine()
	out, err := e.Evaluate(context.Background(), `missing ?? "fallback"`, nil)
	require.NoError(t, err)
	assert.Equal(t, "fallback", out)
}

func TestExpr_Errors(t *testing.T) {
	e := NewExprEngine()

	_, err := e.Evaluate(context.Background(), `level ==`, nil)
	assert.True(t, schema.HasCode(err, schema.ErrCodeValidation))

	_, err = e.Evaluate(context.Background(), `int(s)`, map[string]any{"s": "abc"})
	require.Error(t, err)

	_, err = e.Evaluate(context.Background(), "", nil)
	assert.True(t, schema.HasCode(err, schema.ErrCodeValidation))
}

// --- jq ---

func TestJQ_SelectField(t *testing.T) {
	e := NewGoJQEngine()
	assert.Equal(t, "jq", e.Name())

	out, err := e.Evaluate(context.Background(), ".source", map[string]any{"source": "Planner"})
	require.NoError(t, err)
	assert.Equal(t, "Planner", out)
}

func TestJQ_MultipleOutputs(t *testing.T) {
	e := NewGoJQEngine()
	out, err := e.Evaluate(context.Background(), ".nodes[] | .id", map[string]any{
		"nodes": []any{map[string]any{"id": "start"}, map[string]any{"id": "end"}},
	})
	require.NoError(t, err)
	assert.Equal(t, []any{"start", "end"}, out)

	none, err := e.Evaluate(context.Background(), "empty", map[string]any{})
	require.NoError(t, err)
	assert.Nil(t, none)
}

func TestJQ_NormalizesIntegers(t *testing.T) {
	e := NewGoJQEngine()
	out, err := e.Evaluate(context.Background(), ".tick + 1", map[string]any{"tick": uint64(4)})
	require.NoError(t, err)
	assert.Equal(t, 5.0, out)
}

func TestJQ_EnvIsSandboxed(t *testing.T) {
	e := NewGoJQEngine()
	out, err := e.Evaluate(context.Background(), "$ENV | length", map[string]any{})
	require.NoError(t, err)
	assert.Equal(t, 0, out)
}

func TestJQ_Errors(t *testing.T) {
	e := NewGoJQEngine()

	_, err := e.Evaluate(context.Background(), ".[", nil)
	assert.True(t, schema.HasCode(err, schema.ErrCodeValidation))

	_, err = e.Evaluate(context.Background(), `error("boom")`, map[string]any{})
	assert.True(t, schema.HasCode(err, schema.ErrCodeExpression))
}

// --- cache ---

func TestProgramCache_ReusesAndBounds(t *testing.T) {
	c := newProgramCache[int]()
	calls := 0
	compile := func(string) (int, error) { calls++; return calls, nil }

	v1, err := c.getOrCompile("a", compile)
	require.NoError(t, err)
	v2, err := c.getOrCompile("a", compile)
	require.NoError(t, err)
	assert.Equal(t, v1, v2)
	assert.Equal(t, 1, calls)

	for i := 0; i < maxCachedPrograms+5; i++ {
		_, _ = c.getOrCompile(fmt.Sprintf("k%d", i), compile)
	}
	assert.LessOrEqual(t, c.len(), maxCachedPrograms)
}

func TestProgramCache_CompileErrorNotCached(t *testing.T) {
	c := newProgramCache[int]()
	_, err := c.getOrCompile("bad", func(string) (int, error) { return 0, fmt.Errorf("nope") })
	require.Error(t, err)
	assert.Zero(t, c.len())
}

func TestEngines_ConcurrentUse(t *testing.T) {
	e := NewExprEngine()
	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			out, err := e.Evaluate(context.Background(), "n * 2", map[string]any{"n": i})
			assert.NoError(t, err)
			assert.Equal(t, i*2, out)
		}(i)
	}
	wg.Wait()
}

package diagram

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/rendis/nexus/pkg/schema"
)

func TestRenderASCIIPipeline(t *testing.T) {
	out := RenderASCII(Build(firstTick(t), schema.LangEN))

	assert.True(t, strings.HasPrefix(out, "=== Pipeline tick 1 cycle 0 (eager) ===\n"))
	assert.Contains(t, out, "Input Trigger")
	assert.Contains(t, out, "[RUN] *")
	assert.Contains(t, out, "[IDLE]")
	assert.Contains(t, out, "end ─→ planner (reset)")
	assert.Equal(t, 4, strings.Count(out, "▼"))

	// Both executors share one row.
	for _, line := range strings.Split(out, "\n") {
		if strings.Contains(line, "Text2SQL Agent") {
			assert.Contains(t, line, "RAG Retriever")
		}
	}
}

func TestRenderASCIIWideLabels(t *testing.T) {
	model := &DiagramModel{
		Nodes:  []*Node{{ID: "p", Label: "规划智能体", Kind: NodeKindPlanner}},
		Levels: [][]string{{"p"}},
	}
	lines := strings.Split(strings.TrimRight(RenderASCII(model), "\n"), "\n")
	assert.Len(t, lines, 3)
	assert.Equal(t, "┌───────┐", lines[0])
	assert.Equal(t, "│ 规划智能体 │", lines[1])
}

func TestStatusTag(t *testing.T) {
	assert.Equal(t, "[OK]", statusTag(schema.StatusCompleted))
	assert.Equal(t, "[FAIL]", statusTag(schema.StatusError))
	assert.Equal(t, "[THINK]", statusTag(schema.StatusThinking))
	assert.Equal(t, "", statusTag("other"))
}

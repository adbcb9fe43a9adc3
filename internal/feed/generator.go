package feed

import (
	"math/rand/v2"
	"strconv"
	"time"

	"github.com/rendis/nexus/pkg/schema"
)

// Sources, levels and messages of the simulated stream. Levels repeat to
// weight INFO at 3/5.
var (
	Sources = []string{"Planner", "Reviewer", "ToolExecutor", "KafkaConsumer", "RAGService"}
	Levels  = []schema.LogLevel{schema.LevelInfo, schema.LevelInfo, schema.LevelInfo, schema.LevelDebug, schema.LevelWarn}

	Messages = []string{
		"Processing DAG node: n_492a",
		"Retrieving context from VectorDB (Milvus) collection: knowledge_base_v2",
		"Function Call detected: get_sql_schema(table='users')",
		"Ontology mapped: Entity 'User' -> 'orders' relation validated",
		"Latency spike detected in embedding service (250ms)",
		"Agent State transition: THINKING -> EXECUTING",
		"Throughput: 1540 tpm (tokens per minute)",
	}
)

const idLength = 6

// Generator produces random log entries. Two generators with the same seed
// and clock produce the same sequence. Not safe for concurrent use.
type Generator struct {
	rng *rand.Rand
	now func() time.Time
}

// NewGenerator creates a generator. A zero seed picks one from the clock.
func NewGenerator(seed uint64, now func() time.Time) *Generator {
	if now == nil {
		now = time.Now
	}
	if seed == 0 {
		seed = uint64(time.Now().UnixNano())
	}
	return &Generator{
		rng: rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15)),
		now: now,
	}
}

// Next returns a new entry.
func (g *Generator) Next() schema.LogEntry {
	return schema.LogEntry{
		ID:        g.id(),
		Timestamp: g.now().UTC(),
		Level:     Levels[g.rng.IntN(len(Levels))],
		Source:    Sources[g.rng.IntN(len(Sources))],
		Message:   Messages[g.rng.IntN(len(Messages))],
	}
}

func (g *Generator) id() string {
	b := make([]byte, 0, idLength)
	for len(b) < idLength {
		b = strconv.AppendUint(b, g.rng.Uint64N(36), 36)
	}
	return string(b)
}

// Package metrics serves the dashboard figures: the daily throughput/latency
// series and the headline stat cards.
package metrics

import (
	"math"
	"math/rand/v2"
	"time"

	"github.com/rendis/nexus/pkg/schema"
)

// DefaultJitter is the relative variation Jitter applies when asked for 0.
const DefaultJitter = 0.05

// LogSnapshot is the system snapshot handed to the insight service when the
// caller does not supply one.
const LogSnapshot = "System Throughput: 2450 req/sec. Average Latency: 145ms. VectorDB Cache Hit Rate: 92%. Active Agents: 342. Error Rate: 0.4%."

// Point is one sample of the throughput/latency chart.
type Point struct {
	Time       string  `json:"time"`
	Throughput float64 `json:"throughput"`
	Latency    float64 `json:"latency"`
}

// StatCard is a headline figure with its change versus the previous hour.
type StatCard struct {
	Key        string `json:"key"`
	Title      string `json:"title"`
	Value      string `json:"value"`
	Change     string `json:"change"`
	Comparison string `json:"comparison"`
}

// Dashboard bundles everything the metrics panel renders.
type Dashboard struct {
	Series      []Point    `json:"series"`
	Cards       []StatCard `json:"cards"`
	GeneratedAt time.Time  `json:"generated_at"`
}

var series = []Point{
	{"00:00", 4000, 240},
	{"04:00", 3000, 139},
	{"08:00", 2000, 980},
	{"12:00", 2780, 390},
	{"16:00", 1890, 480},
	{"20:00", 2390, 380},
	{"24:00", 3490, 430},
}

type card struct {
	key, value, change string
}

var cards = []card{
	{"throughput", "1.2M req/day", "+12.5%"},
	{"active_agents", "342", "+4"},
	{"latency", "145ms", "-12ms"},
	{"entities", "1,402", "+24"},
}

var cardTitles = map[schema.Lang]map[string]string{
	schema.LangEN: {
		"throughput":    "Total Pipeline Throughput",
		"active_agents": "Active Agents",
		"latency":       "VectorDB Latency (P99)",
		"entities":      "Ontology Entities",
		"comparison":    "vs last hour",
	},
	schema.LangZH: {
		"throughput":    "全链路吞吐量",
		"active_agents": "活跃智能体",
		"latency":       "向量库延迟 (P99)",
		"entities":      "本体实体数",
		"comparison":    "环比上小时",
	},
}

// Series returns a copy of the fixed seven-point chart.
func Series() []Point {
	return append([]Point(nil), series...)
}

// Cards returns the stat cards titled in lang; unknown tags fall back to English.
func Cards(lang schema.Lang) []StatCard {
	titles, ok := cardTitles[lang]
	if !ok {
		titles = cardTitles[schema.LangEN]
	}
	out := make([]StatCard, len(cards))
	for i, c := range cards {
		out[i] = StatCard{
			Key:        c.key,
			Title:      titles[c.key],
			Value:      c.value,
			Change:     c.change,
			Comparison: titles["comparison"],
		}
	}
	return out
}

// Jitter returns a copy of points where every value moves by at most
// ±ratio of itself, rounded to whole units. A ratio <= 0 uses DefaultJitter.
func Jitter(points []Point, rng *rand.Rand, ratio float64) []Point {
	if ratio <= 0 {
		ratio = DefaultJitter
	}
	out := make([]Point, len(points))
	for i, p := range points {
		out[i] = Point{
			Time:       p.Time,
			Throughput: wobble(p.Throughput, rng, ratio),
			Latency:    wobble(p.Latency, rng, ratio),
		}
	}
	return out
}

func wobble(v float64, rng *rand.Rand, ratio float64) float64 {
	delta := (rng.Float64()*2 - 1) * ratio * v
	// Floor toward the original so rounding never escapes the band.
	if delta >= 0 {
		return v + math.Floor(delta)
	}
	return v - math.Floor(-delta)
}

// Live builds a dashboard with jittered series drawn from rng.
func Live(lang schema.Lang, rng *rand.Rand, now time.Time) Dashboard {
	return Dashboard{
		Series:      Jitter(series, rng, DefaultJitter),
		Cards:       Cards(lang),
		GeneratedAt: now.UTC(),
	}
}

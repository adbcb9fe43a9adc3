package metrics

import (
	"math/rand/v2"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rendis/nexus/pkg/schema"
)

func TestSeries(t *testing.T) {
	s := Series()
	require.Len(t, s, 7)
	assert.Equal(t, Point{"00:00", 4000, 240}, s[0])
	assert.Equal(t, Point{"08:00", 2000, 980}, s[2])
	assert.Equal(t, Point{"24:00", 3490, 430}, s[6])

	s[0].Throughput = 1
	assert.Equal(t, 4000.0, Series()[0].Throughput)
}

func TestCards(t *testing.T) {
	en := Cards(schema.LangEN)
	require.Len(t, en, 4)
	assert.Equal(t, StatCard{
		Key: "throughput", Title: "Total Pipeline Throughput",
		Value: "1.2M req/day", Change: "+12.5%", Comparison: "vs last hour",
	}, en[0])
	assert.Equal(t, "-12ms", en[2].Change)
	assert.Equal(t, "1,402", en[3].Value)

	zh := Cards(schema.LangZH)
	assert.Equal(t, "活跃智能体", zh[1].Title)
	assert.Equal(t, "环比上小时", zh[1].Comparison)

	assert.Equal(t, en, Cards("de"))
}

func TestJitterStaysInBand(t *testing.T) {
	rng := rand.New(rand.NewPCG(1, 2))
	for round := 0; round < 200; round++ {
		out := Jitter(series, rng, 0)
		require.Len(t, out, len(series))
		for i, p := range out {
			base := series[i]
			assert.Equal(t, base.Time, p.Time)
			assert.InDelta(t, base.Throughput, p.Throughput, base.Throughput*DefaultJitter)
			assert.InDelta(t, base.Latency, p.Latency, base.Latency*DefaultJitter)
			assert.Equal(t, p.Throughput, float64(int(p.Throughput)))
		}
	}
}

func TestJitterDeterministic(t *testing.T) {
	a := Jitter(series, rand.New(rand.NewPCG(9, 9)), 0.1)
	b := Jitter(series, rand.New(rand.NewPCG(9, 9)), 0.1)
	assert.Equal(t, a, b)
}

func TestLive(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.FixedZone("x", 3600))
	d := Live(schema.LangZH, rand.New(rand.NewPCG(3, 4)), now)
	assert.Len(t, d.Series, 7)
	assert.Equal(t, "全链路吞吐量", d.Cards[0].Title)
	assert.Equal(t, time.UTC, d.GeneratedAt.Location())
	assert.True(t, d.GeneratedAt.Equal(now))
}

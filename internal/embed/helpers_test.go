package embed

import (
	"context"
	"math"
	"sync/atomic"
)

// countingEmbedder is a test double that counts calls.
type countingEmbedder struct {
	embedCalls atomic.Int64
	batchCalls atomic.Int64
	batchTexts atomic.Int64
	inner      *StaticEmbedder
}

func newCountingEmbedder(dims int) *countingEmbedder {
	return &countingEmbedder{inner: NewStaticEmbedder(dims)}
}

func (m *countingEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	m.embedCalls.Add(1)
	return m.inner.Embed(ctx, text)
}

func (m *countingEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	m.batchCalls.Add(1)
	m.batchTexts.Add(int64(len(texts)))
	return m.inner.EmbedBatch(ctx, texts)
}

func (m *countingEmbedder) Dimensions() int   { return m.inner.Dimensions() }
func (m *countingEmbedder) ModelName() string { return "counting" }
func (m *countingEmbedder) Close() error      { return nil }

func vectorMagnitude(v []float32) float64 {
	var sum float64
	for _, val := range v {
		sum += float64(val) * float64(val)
	}
	return math.Sqrt(sum)
}

func cosineSimilarity(a, b []float32) float64 {
	if len(a) != len(b) {
		return 0
	}
	var dot, magA, magB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		magA += float64(a[i]) * float64(a[i])
		magB += float64(b[i]) * float64(b[i])
	}
	if magA == 0 || magB == 0 {
		return 0
	}
	return dot / (math.Sqrt(magA) * math.Sqrt(magB))
}

package ai

import (
	"math"
	"sync"
)

// MetricsRecorder accumulates ModelMetrics across calls. Adapters embed it
// to satisfy the metrics half of GraphAIClient.
type MetricsRecorder struct {
	mu sync.Mutex
	m  ModelMetrics
}

// Record adds one call's usage. TokenPerSecond is recomputed over the totals.
func (r *MetricsRecorder) Record(m ModelMetrics) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.m.InputTokens += m.InputTokens
	r.m.OutputTokens += m.OutputTokens
	r.m.TotalTokens += m.TotalTokens
	r.m.DurationMs += m.DurationMs

	if r.m.DurationMs > 0 {
		tps := float64(r.m.TotalTokens) * 1000 / float64(r.m.DurationMs)
		r.m.TokenPerSecond = float32(math.Round(tps*100) / 100)
	}
}

func (r *MetricsRecorder) GetMetrics() ModelMetrics {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.m
}

func (r *MetricsRecorder) ResetMetrics() {
	r.mu.Lock()
	r.m = ModelMetrics{}
	r.mu.Unlock()
}

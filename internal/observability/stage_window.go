package observability

import (
	"math"
	"sort"
	"strings"
	"sync"
	"time"
)

// Stages observed by the exchange pipeline.
const (
	StageCompletion    = "completion"
	StageTranscription = "transcription"
	StageSynthesis     = "synthesis"
	StageExchangeTotal = "exchange_total"
)

// stageTargets are the p95 budgets reported next to each stage.
var stageTargets = map[string]float64{
	StageCompletion:    8000,
	StageTranscription: 4000,
	StageSynthesis:     3000,
	StageExchangeTotal: 15000,
}

type StageStats struct {
	Stage       string  `json:"stage"`
	Samples     int     `json:"samples"`
	LastMS      float64 `json:"last_ms"`
	AvgMS       float64 `json:"avg_ms"`
	P50MS       float64 `json:"p50_ms"`
	P95MS       float64 `json:"p95_ms"`
	P99MS       float64 `json:"p99_ms"`
	TargetP95MS float64 `json:"target_p95_ms,omitempty"`
}

type Indicator struct {
	Name  string `json:"name"`
	Count int    `json:"count"`
}

type StageSnapshot struct {
	GeneratedAt time.Time    `json:"generated_at"`
	WindowSize  int          `json:"window_size"`
	Stages      []StageStats `json:"stages"`
	Indicators  []Indicator  `json:"indicators,omitempty"`
}

// ring holds the newest samples of one stage, overwriting the oldest.
type ring struct {
	buf  []float64
	pos  int
	size int
}

func (r *ring) push(v float64) {
	r.buf[r.pos] = v
	r.pos = (r.pos + 1) % len(r.buf)
	if r.size < len(r.buf) {
		r.size++
	}
}

func (r *ring) latest() float64 {
	return r.buf[(r.pos-1+len(r.buf))%len(r.buf)]
}

func (r *ring) sorted() []float64 {
	out := append([]float64(nil), r.buf[:r.size]...)
	sort.Float64s(out)
	return out
}

// stageWindow is the rolling latency view served at /v1/perf/latency. Unlike
// the Prometheus histograms it keeps raw samples, so percentiles are exact
// over the window.
type stageWindow struct {
	mu         sync.Mutex
	capacity   int
	rings      map[string]*ring
	indicators map[string]int
}

func newStageWindow(capacity int) *stageWindow {
	if capacity <= 0 {
		capacity = 256
	}
	return &stageWindow{
		capacity:   capacity,
		rings:      make(map[string]*ring),
		indicators: make(map[string]int),
	}
}

func (w *stageWindow) Observe(stage string, ms float64) {
	if stage == "" || ms < 0 {
		return
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	r := w.rings[stage]
	if r == nil {
		r = &ring{buf: make([]float64, w.capacity)}
		w.rings[stage] = r
	}
	r.push(ms)
}

func (w *stageWindow) ObserveIndicator(name string) {
	name = strings.TrimSpace(name)
	if name == "" {
		return
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	w.indicators[name]++
}

func (w *stageWindow) Snapshot() StageSnapshot {
	w.mu.Lock()
	defer w.mu.Unlock()

	snap := StageSnapshot{
		GeneratedAt: time.Now().UTC(),
		WindowSize:  w.capacity,
		Stages:      make([]StageStats, 0, len(w.rings)),
	}
	for _, stage := range sortedKeys(w.rings) {
		r := w.rings[stage]
		if r.size == 0 {
			continue
		}
		snap.Stages = append(snap.Stages, summarize(stage, r.sorted(), r.latest()))
	}
	for _, name := range sortedKeys(w.indicators) {
		snap.Indicators = append(snap.Indicators, Indicator{Name: name, Count: w.indicators[name]})
	}
	return snap
}

func summarize(stage string, samples []float64, last float64) StageStats {
	var sum float64
	for _, v := range samples {
		sum += v
	}
	return StageStats{
		Stage:       stage,
		Samples:     len(samples),
		LastMS:      round2(last),
		AvgMS:       round2(sum / float64(len(samples))),
		P50MS:       round2(percentile(samples, 50)),
		P95MS:       round2(percentile(samples, 95)),
		P99MS:       round2(percentile(samples, 99)),
		TargetP95MS: stageTargets[stage],
	}
}

// percentile interpolates linearly between the closest ranks of sorted.
func percentile(sorted []float64, p float64) float64 {
	switch n := len(sorted); {
	case n == 0:
		return 0
	case n == 1 || p <= 0:
		return sorted[0]
	case p >= 100:
		return sorted[n-1]
	}
	rank := p / 100 * float64(len(sorted)-1)
	lo := math.Floor(rank)
	frac := rank - lo
	i := int(lo)
	if frac == 0 {
		return sorted[i]
	}
	return sorted[i] + (sorted[i+1]-sorted[i])*frac
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

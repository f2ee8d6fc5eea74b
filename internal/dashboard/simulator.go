// Package dashboard serves the project overview: status counts, a monthly
// timeline and simulated live performance gauges.
package dashboard

import (
	"context"
	"math/rand/v2"
	"sync"
	"time"
)

// SeriesLength is how many points the performance series keeps.
const SeriesLength = 20

// Point is one sample of the performance series.
type Point struct {
	Time        string  `json:"time"`
	Accuracy    float64 `json:"accuracy"`
	Latency     float64 `json:"latency"`
	Compression float64 `json:"compression"`
}

// Live holds the headline gauges.
type Live struct {
	Accuracy float64 `json:"accuracy"`
	Latency  float64 `json:"latency"`
	P95      float64 `json:"p95"`
}

// Snapshot is a consistent copy of the simulator state.
type Snapshot struct {
	Live   Live    `json:"live"`
	Series []Point `json:"series"`
}

// seedSeries is the curve shown before the first tick.
var seedSeries = []Point{
	{"00:00", 89.2, 52, 15}, {"00:15", 88.8, 48, 25}, {"00:30", 88.5, 45, 35}, {"00:45", 87.9, 43, 45},
	{"01:00", 87.6, 41, 55}, {"01:15", 87.2, 39, 65}, {"01:30", 86.8, 37, 72}, {"01:45", 86.5, 35, 78},
	{"02:00", 86.1, 34, 82}, {"02:15", 85.9, 33, 85}, {"02:30", 85.6, 32, 87}, {"02:45", 85.4, 31, 89},
	{"03:00", 85.2, 30, 91}, {"03:15", 85.0, 29, 92}, {"03:30", 84.8, 28, 93}, {"03:45", 84.6, 27, 94},
	{"04:00", 84.5, 26, 95}, {"04:15", 84.4, 25, 95}, {"04:30", 84.3, 25, 95}, {"04:45", 84.2, 24, 95},
}

// Simulator produces demo metrics. Nothing here reflects real model runs.
type Simulator struct {
	mu     sync.Mutex
	rnd    *rand.Rand
	now    func() time.Time
	live   Live
	series []Point
}

// NewSimulator returns a simulator drawing from rnd. A nil rnd is seeded
// from the runtime source.
func NewSimulator(rnd *rand.Rand) *Simulator {
	if rnd == nil {
		rnd = rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64()))
	}
	return &Simulator{
		rnd:    rnd,
		now:    time.Now,
		live:   Live{Accuracy: 87.2, Latency: 45, P95: 123},
		series: append([]Point(nil), seedSeries...),
	}
}

// Bounds of the live accuracy gauge.
const (
	LiveAccuracyMin = 80.0
	LiveAccuracyMax = 95.0
)

// Step advances every gauge by one tick.
func (s *Simulator) Step() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.live.Accuracy = clamp(s.live.Accuracy+s.jitter(0.5), LiveAccuracyMin, LiveAccuracyMax)
	s.live.Latency = clamp(s.live.Latency+s.jitter(5), 35, 60)
	s.live.P95 = clamp(s.live.P95+s.jitter(10), 100, 150)

	last := s.series[len(s.series)-1]
	next := Point{
		Time:        s.now().Format("15:04"),
		Accuracy:    clamp(last.Accuracy+s.jitter(0.8), 80, 90),
		Latency:     clamp(last.Latency+s.jitter(3), 20, 60),
		Compression: min(95, last.Compression+s.rnd.Float64()*0.5),
	}
	s.series = append(s.series, next)
	if len(s.series) > SeriesLength {
		s.series = append([]Point(nil), s.series[len(s.series)-SeriesLength:]...)
	}
}

// jitter returns a value in [-span/2, span/2).
func (s *Simulator) jitter(span float64) float64 {
	return (s.rnd.Float64() - 0.5) * span
}

func (s *Simulator) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return Snapshot{Live: s.live, Series: append([]Point(nil), s.series...)}
}

// Run steps the simulator every interval until ctx is done.
func (s *Simulator) Run(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = 3 * time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.Step()
		}
	}
}

func clamp(v, lo, hi float64) float64 {
	return max(lo, min(hi, v))
}

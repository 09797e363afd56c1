package metrics

import (
	"sync"
	"time"

	"github.com/HdrHistogram/hdrhistogram-go"

	"github.com/torosent/fmibench/internal/bench"
)

// Collector records per-trial metrics in a thread-safe manner.
type Collector struct {
	mu        sync.Mutex
	hist      *hdrhistogram.Histogram
	trials    int64
	steps     int64
	minSteps  int64
	minTrial  time.Duration
	maxTrial  time.Duration
	sumTrial  time.Duration
	sumOfSums float64
	durations []time.Duration
	last      *bench.TrialResult
}

// Stats represents aggregated trial metrics.
type Stats struct {
	Trials      int64         `json:"trials"`
	TotalSteps  int64         `json:"total_steps"`
	MinSteps    int64         `json:"min_steps"`
	MinTrial    time.Duration `json:"-"`
	MaxTrial    time.Duration `json:"-"`
	MeanTrial   time.Duration `json:"-"`
	P50Trial    time.Duration `json:"-"`
	P90Trial    time.Duration `json:"-"`
	P95Trial    time.Duration `json:"-"`
	P99Trial    time.Duration `json:"-"`
	Stepping    time.Duration `json:"-"`
	Duration    time.Duration `json:"-"`
	StepsPerSec float64       `json:"steps_per_sec"`
	MeanSum     float64       `json:"-"`

	// JSON-friendly millisecond fields.
	MinTrialMs  float64 `json:"min_trial_ms"`
	MaxTrialMs  float64 `json:"max_trial_ms"`
	MeanTrialMs float64 `json:"mean_trial_ms"`
	P50TrialMs  float64 `json:"p50_trial_ms"`
	P90TrialMs  float64 `json:"p90_trial_ms"`
	P95TrialMs  float64 `json:"p95_trial_ms"`
	P99TrialMs  float64 `json:"p99_trial_ms"`
	SteppingMs  float64 `json:"stepping_ms"`
	DurationMs  float64 `json:"duration_ms"`

	Last *bench.TrialResult `json:"-"`
}

func NewCollector() *Collector {
	// Track trial durations from 1µs up to one hour with 3 significant figures.
	h := hdrhistogram.New(1, int64(time.Hour/time.Microsecond), 3)
	return &Collector{hist: h}
}

// RecordTrial records one completed trial.
func (c *Collector) RecordTrial(r bench.TrialResult) {
	c.mu.Lock()
	defer c.mu.Unlock()

	us := r.Elapsed.Microseconds()
	if us < c.hist.LowestTrackableValue() {
		us = c.hist.LowestTrackableValue()
	}
	if us > c.hist.HighestTrackableValue() {
		us = c.hist.HighestTrackableValue()
	}
	_ = c.hist.RecordValue(us)

	if c.trials == 0 || r.Elapsed < c.minTrial {
		c.minTrial = r.Elapsed
	}
	if r.Elapsed > c.maxTrial {
		c.maxTrial = r.Elapsed
	}
	if c.trials == 0 || int64(r.Steps) < c.minSteps {
		c.minSteps = int64(r.Steps)
	}
	c.trials++
	c.steps += int64(r.Steps)
	c.sumTrial += r.Elapsed
	c.sumOfSums += r.Sum
	c.durations = append(c.durations, r.Elapsed)
	last := r
	c.last = &last
}

// TrialStarted implements bench.Observer.
func (c *Collector) TrialStarted(int) {}

// TrialFinished implements bench.Observer by recording the trial.
func (c *Collector) TrialFinished(r bench.TrialResult) { c.RecordTrial(r) }

// Durations returns the recorded trial durations in trial order.
func (c *Collector) Durations() []time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]time.Duration(nil), c.durations...)
}

// Stats computes and returns current aggregated statistics. elapsed is the
// wall-clock duration of the whole run.
func (c *Collector) Stats(elapsed time.Duration) Stats {
	c.mu.Lock()
	defer c.mu.Unlock()

	stats := Stats{
		Trials:     c.trials,
		TotalSteps: c.steps,
		MinSteps:   c.minSteps,
		MinTrial:   c.minTrial,
		MaxTrial:   c.maxTrial,
		Stepping:   c.sumTrial,
		Duration:   elapsed,
	}
	if c.last != nil {
		last := *c.last
		stats.Last = &last
	}

	if c.trials > 0 {
		stats.MeanTrial = time.Duration(int64(c.sumTrial) / c.trials)
		stats.MeanSum = c.sumOfSums / float64(c.trials)
	}

	if c.hist.TotalCount() > 0 {
		stats.P50Trial = time.Duration(c.hist.ValueAtQuantile(50)) * time.Microsecond
		stats.P90Trial = time.Duration(c.hist.ValueAtQuantile(90)) * time.Microsecond
		stats.P95Trial = time.Duration(c.hist.ValueAtQuantile(95)) * time.Microsecond
		stats.P99Trial = time.Duration(c.hist.ValueAtQuantile(99)) * time.Microsecond
	}

	stats.MinTrialMs = toMs(stats.MinTrial)
	stats.MaxTrialMs = toMs(stats.MaxTrial)
	stats.MeanTrialMs = toMs(stats.MeanTrial)
	stats.P50TrialMs = toMs(stats.P50Trial)
	stats.P90TrialMs = toMs(stats.P90Trial)
	stats.P95TrialMs = toMs(stats.P95Trial)
	stats.P99TrialMs = toMs(stats.P99Trial)
	stats.SteppingMs = toMs(stats.Stepping)
	stats.DurationMs = toMs(elapsed)

	if c.sumTrial > 0 && c.steps > 0 {
		stats.StepsPerSec = float64(c.steps) / c.sumTrial.Seconds()
	}

	return stats
}

func toMs(d time.Duration) float64 {
	return float64(d) / float64(time.Millisecond)
}

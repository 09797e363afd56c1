package metrics_test

import (
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/torosent/fmibench/internal/bench"
	"github.com/torosent/fmibench/internal/metrics"
)

var _ bench.Observer = (*metrics.Collector)(nil)

func trial(i int, elapsed time.Duration, steps int, sum float64) bench.TrialResult {
	return bench.TrialResult{Index: i, Instance: bench.InstanceName(i), Elapsed: elapsed, Steps: steps, Sum: sum}
}

func TestCollectorTrialStats(t *testing.T) {
	c := metrics.NewCollector()

	c.RecordTrial(trial(0, 100*time.Millisecond, 1000, 1))
	c.RecordTrial(trial(1, 300*time.Millisecond, 1000, 3))
	c.RecordTrial(trial(2, 200*time.Millisecond, 999, 2))

	stats := c.Stats(time.Second)

	if stats.Trials != 3 {
		t.Errorf("expected 3 trials, got %d", stats.Trials)
	}
	if stats.TotalSteps != 2999 || stats.MinSteps != 999 {
		t.Errorf("steps total=%d min=%d", stats.TotalSteps, stats.MinSteps)
	}
	if stats.MinTrial != 100*time.Millisecond || stats.MaxTrial != 300*time.Millisecond {
		t.Errorf("min=%s max=%s", stats.MinTrial, stats.MaxTrial)
	}
	if stats.MeanTrial != 200*time.Millisecond {
		t.Errorf("expected mean 200ms, got %s", stats.MeanTrial)
	}
	if stats.MeanSum != 2 {
		t.Errorf("expected mean sum 2, got %v", stats.MeanSum)
	}
	if stats.Stepping != 600*time.Millisecond {
		t.Errorf("stepping = %s", stats.Stepping)
	}
	// 2999 steps over 0.6s of stepping.
	if want := 2999 / 0.6; stats.StepsPerSec < want-0.01 || stats.StepsPerSec > want+0.01 {
		t.Errorf("StepsPerSec = %v, want %v", stats.StepsPerSec, want)
	}
	if stats.Last == nil || stats.Last.Index != 2 {
		t.Errorf("Last = %+v", stats.Last)
	}
	if stats.DurationMs != 1000 {
		t.Errorf("DurationMs = %v", stats.DurationMs)
	}
}

func TestPercentilesCalculations(t *testing.T) {
	c := metrics.NewCollector()

	// 100 trials: 1ms, 2ms, ..., 100ms.
	for i := 1; i <= 100; i++ {
		c.RecordTrial(trial(i-1, time.Duration(i)*time.Millisecond, 1, 0))
	}

	stats := c.Stats(0)

	if stats.P50Trial < 49*time.Millisecond || stats.P50Trial > 51*time.Millisecond {
		t.Errorf("expected P50 ~50ms, got %s", stats.P50Trial)
	}
	if stats.P90Trial < 89*time.Millisecond || stats.P90Trial > 91*time.Millisecond {
		t.Errorf("expected P90 ~90ms, got %s", stats.P90Trial)
	}
	if stats.P95Trial < 94*time.Millisecond || stats.P95Trial > 96*time.Millisecond {
		t.Errorf("expected P95 ~95ms, got %s", stats.P95Trial)
	}
	if stats.P99Trial < 98*time.Millisecond || stats.P99Trial > 100*time.Millisecond {
		t.Errorf("expected P99 ~99ms, got %s", stats.P99Trial)
	}
}

func TestEmptyCollector(t *testing.T) {
	stats := metrics.NewCollector().Stats(0)
	if stats.Trials != 0 || stats.StepsPerSec != 0 || stats.P99Trial != 0 || stats.Last != nil {
		t.Errorf("unexpected stats for empty collector: %+v", stats)
	}
}

func TestZeroDurationTrial(t *testing.T) {
	c := metrics.NewCollector()
	c.RecordTrial(trial(0, 0, 0, 0))
	stats := c.Stats(0)
	if stats.Trials != 1 || stats.MinTrial != 0 {
		t.Errorf("stats = %+v", stats)
	}
	if stats.StepsPerSec != 0 {
		t.Errorf("StepsPerSec = %v, want 0 without stepping time", stats.StepsPerSec)
	}
}

func TestObserverRecordsTrials(t *testing.T) {
	c := metrics.NewCollector()
	var obs bench.Observer = c
	obs.TrialStarted(0)
	obs.TrialFinished(trial(0, 5*time.Millisecond, 10, 1.5))

	if got := c.Durations(); len(got) != 1 || got[0] != 5*time.Millisecond {
		t.Errorf("Durations() = %v", got)
	}
}

func TestJSONReportSchema(t *testing.T) {
	c := metrics.NewCollector()
	c.RecordTrial(trial(0, 15*time.Millisecond, 100, 1))
	c.RecordTrial(trial(1, 25*time.Millisecond, 100, 1))

	data, err := json.Marshal(c.Stats(100 * time.Millisecond))
	if err != nil {
		t.Fatalf("failed to marshal stats: %v", err)
	}

	var parsed map[string]interface{}
	if err := json.Unmarshal(data, &parsed); err != nil {
		t.Fatalf("failed to unmarshal: %v", err)
	}

	requiredFields := []string{"trials", "total_steps", "min_steps", "min_trial_ms", "max_trial_ms", "mean_trial_ms", "p50_trial_ms", "p90_trial_ms", "p95_trial_ms", "p99_trial_ms", "stepping_ms", "duration_ms", "steps_per_sec"}
	for _, field := range requiredFields {
		if _, ok := parsed[field]; !ok {
			t.Errorf("missing field %q in JSON output", field)
		}
	}
}

func TestConcurrentReads(t *testing.T) {
	c := metrics.NewCollector()

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		for i := 0; i < 200; i++ {
			c.RecordTrial(trial(i, time.Millisecond, 1, 1))
		}
	}()
	go func() {
		defer wg.Done()
		for i := 0; i < 200; i++ {
			_ = c.Stats(0)
			_ = c.Durations()
		}
	}()
	wg.Wait()

	if stats := c.Stats(0); stats.Trials != 200 {
		t.Errorf("expected 200 trials, got %d", stats.Trials)
	}
}

package output

import (
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/torosent/fmibench/internal/bench"
	"github.com/torosent/fmibench/internal/metrics"
	"github.com/torosent/fmibench/internal/threshold"
)

// Report is the machine-readable record of one benchmark run.
type Report struct {
	RunID      string            `json:"run_id"`
	Case       string            `json:"case"`
	FMU        string            `json:"fmu"`
	StepSize   float64           `json:"step_size"`
	StopTime   float64           `json:"stop_time"`
	VR         uint32            `json:"vr"`
	StartedAt  time.Time         `json:"started_at"`
	Trials     []TrialRecord     `json:"trials"`
	Stats      metrics.Stats     `json:"stats"`
	MeanSum    Float             `json:"mean_sum"`
	Thresholds []ThresholdRecord `json:"thresholds,omitempty"`
	Passed     bool              `json:"passed"`
}

// TrialRecord is the JSON form of a bench.TrialResult.
type TrialRecord struct {
	Index     int    `json:"index"`
	Instance  string `json:"instance"`
	Sum       Float  `json:"sum"`
	Steps     int    `json:"steps"`
	ElapsedMs int64  `json:"elapsed_ms"`
}

// ThresholdRecord is the JSON form of a threshold.Result.
type ThresholdRecord struct {
	Threshold string  `json:"threshold"`
	Metric    string  `json:"metric"`
	Aggregate string  `json:"aggregate"`
	Operator  string  `json:"operator"`
	Expected  float64 `json:"expected"`
	Actual    float64 `json:"actual"`
	Pass      bool    `json:"pass"`
}

// NewReport assembles a report with a fresh ULID run ID.
func NewReport(cfg bench.TrialConfig, startedAt time.Time, res bench.Result, stats metrics.Stats, results []threshold.Result) Report {
	r := Report{
		RunID:     ulid.MustNew(ulid.Timestamp(startedAt), ulid.DefaultEntropy()).String(),
		Case:      cfg.Name,
		FMU:       cfg.FMUPath,
		StepSize:  cfg.StepSize,
		StopTime:  cfg.StopTime,
		VR:        cfg.ValueReference,
		StartedAt: startedAt.UTC(),
		Trials:    make([]TrialRecord, 0, len(res.Trials)),
		Stats:     stats,
		MeanSum:   Float(stats.MeanSum),
		Passed:    true,
	}
	for _, t := range res.Trials {
		r.Trials = append(r.Trials, TrialRecord{
			Index:     t.Index,
			Instance:  t.Instance,
			Sum:       Float(t.Sum),
			Steps:     t.Steps,
			ElapsedMs: t.ElapsedMillis(),
		})
	}
	for _, tr := range results {
		r.Thresholds = append(r.Thresholds, ThresholdRecord{
			Threshold: tr.Threshold.Raw,
			Metric:    tr.Threshold.Metric,
			Aggregate: tr.Threshold.Aggregate,
			Operator:  tr.Threshold.Operator,
			Expected:  tr.Threshold.Value,
			Actual:    tr.Actual,
			Pass:      tr.Pass,
		})
		if !tr.Pass {
			r.Passed = false
		}
	}
	return r
}

// PrintReport outputs a human-readable summary report.
func PrintReport(w io.Writer, r Report) {
	stats := r.Stats
	fmt.Fprintln(w, "\n--- Benchmark Results ---")
	fmt.Fprintf(w, "Run:               %s\n", r.RunID)
	fmt.Fprintf(w, "Case:              %s\n", r.Case)
	fmt.Fprintf(w, "FMU:               %s\n", r.FMU)
	fmt.Fprintf(w, "Step/Stop:         %s / %s (vr %d)\n", FormatFloat(r.StepSize), FormatFloat(r.StopTime), r.VR)
	fmt.Fprintf(w, "Trials:            %d\n", stats.Trials)
	fmt.Fprintf(w, "Steps:             %d total, %d min per trial\n", stats.TotalSteps, stats.MinSteps)
	fmt.Fprintf(w, "Duration:          %s\n", stats.Duration)
	fmt.Fprintf(w, "Steps/sec:         %.0f\n", stats.StepsPerSec)
	fmt.Fprintf(w, "Mean sum:          %s\n", FormatFloat(float64(r.MeanSum)))
	fmt.Fprintln(w, "\nTrial duration:")
	fmt.Fprintf(w, "  Min:             %s\n", stats.MinTrial)
	fmt.Fprintf(w, "  Max:             %s\n", stats.MaxTrial)
	fmt.Fprintf(w, "  Mean:            %s\n", stats.MeanTrial)
	fmt.Fprintf(w, "  P50:             %s\n", stats.P50Trial)
	fmt.Fprintf(w, "  P90:             %s\n", stats.P90Trial)
	fmt.Fprintf(w, "  P99:             %s\n", stats.P99Trial)

	if len(r.Thresholds) > 0 {
		fmt.Fprintln(w, "\nThresholds:")
		for _, t := range r.Thresholds {
			mark := "✓"
			if !t.Pass {
				mark = "✗"
			}
			fmt.Fprintf(w, "  %s %s: %.2f %s %.2f\n", mark, t.Threshold, t.Actual, t.Operator, t.Expected)
		}
	}
}

// PrintJSONReport outputs a JSON-formatted report.
func PrintJSONReport(w io.Writer, r Report) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(r)
}

// Package bench drives repeated fixed-step co-simulation trials against a
// single unpacked FMU and measures how long each stepping loop takes.
package bench

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/torosent/fmibench/internal/tracing"
)

// DefaultTolerance is passed to fmi2SetupExperiment for every trial.
const DefaultTolerance = 1e-4

// StartValue is a real input applied during initialization mode.
type StartValue struct {
	ValueReference uint32
	Value          float64
}

// TrialConfig is the immutable description of one benchmark case.
type TrialConfig struct {
	Name           string
	FMUPath        string
	StepSize       float64
	StopTime       float64
	ValueReference uint32
	Tolerance      float64
	StartValues    []StartValue
}

// TrialResult is what a single trial produced.
type TrialResult struct {
	Index    int
	Instance string
	Sum      float64
	Steps    int
	Elapsed  time.Duration
}

// ElapsedMillis returns the stepping loop duration truncated to whole
// milliseconds.
func (r TrialResult) ElapsedMillis() int64 {
	return r.Elapsed.Milliseconds()
}

// Result collects every completed trial of a run.
type Result struct {
	Case     string
	Trials   []TrialResult
	Duration time.Duration
}

// ErrNoOpener is returned by Run when Options.Opener is nil.
var ErrNoOpener = errors.New("bench: opener is required")

// InstanceName returns the instance name used for trial index.
func InstanceName(index int) string {
	return fmt.Sprintf("instance%d", index)
}

// Run opens the FMU once and executes opts.Trials sequential trials. The
// model is closed on every exit path, and a close failure is reported only
// when no earlier error occurred. Cancellation is honoured between trials.
func Run(ctx context.Context, cfg TrialConfig, opts Options) (result Result, err error) {
	opts.normalize()
	if opts.Opener == nil {
		return result, ErrNoOpener
	}
	if cfg.Tolerance == 0 {
		cfg.Tolerance = DefaultTolerance
	}
	result.Case = cfg.Name

	ctx, span := tracing.StartRunSpan(ctx, opts.Tracer, cfg.Name, cfg.FMUPath, opts.Trials)
	runStart := opts.Now()
	defer func() {
		result.Duration = nonNegative(opts.Now().Sub(runStart))
		tracing.EndSpan(span, err, attribute.Int("fmibench.trials.completed", len(result.Trials)))
	}()

	model, err := opts.Opener.Open(cfg.FMUPath)
	if err != nil {
		return result, fmt.Errorf("open %s: %w", cfg.FMUPath, err)
	}
	span.AddEvent("unpacked")
	defer func() {
		if cerr := model.Close(); cerr != nil {
			opts.Logger.Warn("cleanup failed", zap.Error(cerr))
			if err == nil {
				err = fmt.Errorf("cleanup: %w", cerr)
			}
		}
	}()

	for i := 0; i < opts.Trials; i++ {
		if cerr := ctx.Err(); cerr != nil {
			return result, cerr
		}
		opts.Observer.TrialStarted(i)
		tr, terr := runTrial(ctx, model, cfg, i, &opts)
		if terr != nil {
			return result, terr
		}
		result.Trials = append(result.Trials, tr)
	}
	return result, nil
}

// runTrial owns one slave from instantiation to release. Release runs on
// every path once instantiation succeeded; terminate failures are swallowed
// and a free failure only surfaces if the trial itself succeeded.
func runTrial(ctx context.Context, model Model, cfg TrialConfig, index int, opts *Options) (tr TrialResult, err error) {
	name := InstanceName(index)
	_, span := tracing.StartTrialSpan(ctx, opts.Tracer, index, name)
	defer func() {
		attrs := []attribute.KeyValue{attribute.Int("fmibench.steps", tr.Steps)}
		tracing.EndSpan(span, err, attrs...)
	}()

	slave, err := model.Instantiate(name)
	if err != nil {
		return tr, fmt.Errorf("trial %d: instantiate %s: %w", index, name, err)
	}
	span.AddEvent("instantiated")

	initialized := false
	defer func() {
		if ferr := release(slave, initialized, name, opts.Logger, span); ferr != nil && err == nil {
			err = fmt.Errorf("trial %d: free %s: %w", index, name, ferr)
		}
	}()

	if err := initialize(slave, cfg); err != nil {
		return tr, fmt.Errorf("trial %d: %w", index, err)
	}
	initialized = true
	span.AddEvent("initialized")

	start := opts.Now()
	sum, steps, err := stepLoop(slave, cfg.StepSize, cfg.StopTime, cfg.ValueReference)
	elapsed := nonNegative(opts.Now().Sub(start))
	if err != nil {
		return tr, fmt.Errorf("trial %d: %w", index, err)
	}
	span.AddEvent("stepped", trace.WithAttributes(attribute.Int64("fmibench.elapsed_ms", elapsed.Milliseconds())))

	tr = TrialResult{
		Index:    index,
		Instance: name,
		Sum:      sum,
		Steps:    steps,
		Elapsed:  elapsed,
	}
	opts.Observer.TrialFinished(tr)
	return tr, nil
}

func initialize(s Slave, cfg TrialConfig) error {
	if err := s.SetupExperiment(cfg.Tolerance, 0, cfg.StopTime); err != nil {
		return fmt.Errorf("setup experiment: %w", err)
	}
	if err := s.EnterInitializationMode(); err != nil {
		return fmt.Errorf("enter initialization mode: %w", err)
	}
	for _, sv := range cfg.StartValues {
		if err := s.SetReal(sv.ValueReference, sv.Value); err != nil {
			return fmt.Errorf("set start value %d: %w", sv.ValueReference, err)
		}
	}
	if err := s.ExitInitializationMode(); err != nil {
		return fmt.Errorf("exit initialization mode: %w", err)
	}
	return nil
}

// release terminates an initialized slave and then frees it. Every
// Terminate error is discarded, whatever its cause: a failed
// fmi2Terminate status or an I/O failure inside the model both leave the
// trial result as it was. Only a Free error is returned.
func release(s Slave, initialized bool, name string, logger *zap.Logger, span trace.Span) error {
	if initialized {
		if err := s.Terminate(); err != nil {
			logger.Debug("terminate failed, ignoring", zap.String("instance", name), zap.Error(err))
			span.AddEvent("terminate_failed")
		} else {
			span.AddEvent("terminated")
		}
	}
	if err := s.Free(); err != nil {
		logger.Warn("free failed", zap.String("instance", name), zap.Error(err))
		return err
	}
	span.AddEvent("freed")
	return nil
}

func nonNegative(d time.Duration) time.Duration {
	if d < 0 {
		return 0
	}
	return d
}

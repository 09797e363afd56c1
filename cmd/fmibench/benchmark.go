package main

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/torosent/fmibench/internal/bench"
	"github.com/torosent/fmibench/internal/config"
	"github.com/torosent/fmibench/internal/dashboard"
	"github.com/torosent/fmibench/internal/fmi"
	"github.com/torosent/fmibench/internal/fmu"
	"github.com/torosent/fmibench/internal/logging"
	"github.com/torosent/fmibench/internal/metrics"
	"github.com/torosent/fmibench/internal/output"
	"github.com/torosent/fmibench/internal/threshold"
	"github.com/torosent/fmibench/internal/tracing"
)

const (
	progressInterval = time.Second
	shutdownTimeout  = 5 * time.Second
)

func (a *app) runBenchmark(cmd *cobra.Command, _ []string) error {
	cfg, err := config.NewLoader().Load(cmd.Flags())
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return err
	}
	thresholds, err := threshold.ParseMultiple(cfg.Thresholds)
	if err != nil {
		return err
	}

	logger, err := logging.New(cfg.LogLevel, a.stderr)
	if err != nil {
		return err
	}
	defer logging.Install(logger)()

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	provider, err := tracing.Init(ctx, cfg.Tracing)
	if err != nil {
		return err
	}
	defer func() {
		sctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := provider.Shutdown(sctx); err != nil {
			logger.Warn("tracing shutdown failed", zap.Error(err))
		}
	}()

	selected, err := cfg.SelectedCase()
	if err != nil {
		return err
	}
	md, err := fmu.ReadModelDescription(selected.FMU)
	if err != nil {
		return err
	}
	tc, err := trialConfig(selected, cfg.Tolerance, md, logger)
	if err != nil {
		return err
	}

	runCtx, cancelRun := context.WithCancel(ctx)
	defer cancelRun()

	collector := metrics.NewCollector()
	observers := []bench.Observer{collector}

	// Trial lines go to stdout unless it carries JSON or the dashboard owns
	// the terminal; in that case they are replayed once the dashboard closes.
	var trialOut io.Writer = a.stdout
	var deferred bytes.Buffer
	switch {
	case cfg.JSONOutput:
		trialOut = a.stderr
	case cfg.Dashboard:
		trialOut = &deferred
	}
	observers = append(observers, output.NewTrialPrinter(trialOut))

	var dash *dashboard.Dashboard
	if cfg.Dashboard {
		dash, err = dashboard.New(collector, dashboard.RunInfo{
			Case:       tc.Name,
			FMU:        tc.FMUPath,
			StepSize:   tc.StepSize,
			StopTime:   tc.StopTime,
			VR:         tc.ValueReference,
			Trials:     cfg.Trials,
			Steps:      bench.CountSteps(tc.StepSize, tc.StopTime),
			ConfigFile: cfg.ConfigFile,
		}, cancelRun)
		if err != nil {
			return err
		}
		observers = append(observers, dash)
	}

	var progress *output.ProgressReporter
	if cfg.Progress && !cfg.Dashboard {
		progress = output.NewProgressReporter(collector, cfg.Trials, progressInterval, a.stderr)
		observers = append(observers, progress)
	}

	logger.Info("starting benchmark",
		zap.String("case", tc.Name),
		zap.String("fmu", tc.FMUPath),
		zap.Float64("step_size", tc.StepSize),
		zap.Float64("stop_time", tc.StopTime),
		zap.Uint32("vr", tc.ValueReference),
		zap.Int("trials", cfg.Trials),
		zap.Int("steps_per_trial", bench.CountSteps(tc.StepSize, tc.StopTime)),
	)

	fmiOpts := fmi.Options{
		WorkDir:   cfg.WorkDir,
		LoggingOn: cfg.FMULogging,
		Logger:    logger.Named("fmu"),
	}
	opener := bench.OpenerFunc(func(path string) (bench.Model, error) {
		return a.open(path, fmiOpts)
	})

	if dash != nil {
		dash.Start()
	}
	if progress != nil {
		progress.Start()
	}

	startedAt := time.Now()
	res, runErr := bench.Run(runCtx, tc, bench.Options{
		Trials:   cfg.Trials,
		Opener:   opener,
		Observer: bench.Observers(observers...),
		Tracer:   provider.Tracer(),
		Logger:   logger,
	})

	if progress != nil {
		progress.Stop()
	}
	if dash != nil {
		dash.Stop()
		if _, err := deferred.WriteTo(a.stdout); err != nil {
			return err
		}
	}

	if runErr != nil {
		if errors.Is(runErr, context.Canceled) {
			runErr = fmt.Errorf("interrupted after %d of %d trials: %w", len(res.Trials), cfg.Trials, runErr)
		}
		if len(res.Trials) == 0 {
			return runErr
		}
		logger.Warn("run ended early", zap.Error(runErr))
	}

	stats := collector.Stats(res.Duration)
	results := threshold.NewEvaluator(thresholds).Evaluate(stats)
	report := output.NewReport(tc, startedAt, res, stats, results)

	if err := a.writeReport(cfg, report); err != nil {
		return errors.Join(runErr, err)
	}
	if runErr != nil {
		return runErr
	}
	if !report.Passed {
		return errThresholdsFailed
	}
	return nil
}

func (a *app) writeReport(cfg *config.Config, report output.Report) error {
	if cfg.JSONOutput {
		if err := output.PrintJSONReport(a.stdout, report); err != nil {
			return err
		}
	} else {
		output.PrintReport(a.stdout, report)
	}

	if cfg.HTMLOutput != "" {
		if err := writeHTML(cfg.HTMLOutput, report); err != nil {
			return err
		}
	}
	if cfg.HistoryFile != "" {
		if err := output.AppendHistory(cfg.HistoryFile, report); err != nil {
			return fmt.Errorf("history: %w", err)
		}
	}
	return nil
}

func writeHTML(path string, report output.Report) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("html report: %w", err)
	}
	if err := output.GenerateHTMLReport(f, report); err != nil {
		_ = f.Close()
		return fmt.Errorf("html report: %w", err)
	}
	return f.Close()
}

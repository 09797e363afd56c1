package config

import (
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
)

// RegisterFlags registers the run flags on a cobra command.
func RegisterFlags(cmd *cobra.Command) {
	configureFlags(cmd.Flags())
}

// configureFlags sets up all run flags on the provided flag set.
func configureFlags(flags *pflag.FlagSet) {
	// Case selection
	flags.String("case", DefaultCase, "Benchmark case to run (see 'fmibench cases')")
	flags.IntP("trials", "n", DefaultTrials, "Number of sequential trials")
	flags.Float64("tolerance", DefaultTolerance, "Solver tolerance passed to fmi2SetupExperiment")
	flags.String("work-dir", "", "Parent directory for the unpacked FMU (default: OS temp dir)")
	flags.String("config", "", "Path to configuration file (YAML, JSON or TOML)")

	// Ad-hoc case overrides
	flags.String("fmu", "", "Path to an FMU archive, overriding the case")
	flags.Float64("step-size", 0, "Fixed communication step size in seconds")
	flags.Float64("stop-time", 0, "Simulation stop time in seconds")
	flags.Uint32("vr", 0, "Value reference of the real output to accumulate")
	flags.String("variable", "", "Name of the real output to accumulate (resolved via modelDescription.xml)")

	// Output flags
	flags.Bool("json-output", false, "Emit a JSON report after the trials")
	flags.String("html-output", "", "Write an HTML report to this file")
	flags.Bool("dashboard", false, "Show live terminal dashboard")
	flags.Bool("progress", false, "Print a progress line to stderr while trials run")
	flags.String("history-file", "", "Append the run report as a JSON line to this file")
	flags.StringSlice("threshold", nil, "Performance thresholds (repeatable, e.g., 'trial_duration:p95 < 2000')")

	// Diagnostics
	flags.String("log-level", DefaultLogLevel, "Log level: debug, info, warn or error")
	flags.Bool("fmu-logging", false, "Enable FMU logging (messages are logged at debug level)")

	// Tracing
	flags.String("tracing-endpoint", "", "OTLP collector endpoint (enables tracing)")
	flags.String("tracing-protocol", "grpc", "OTLP protocol: 'grpc' or 'http'")
	flags.String("tracing-service-name", "", "Service name reported in spans (default: fmibench)")
	flags.Float64("tracing-sample-rate", 1.0, "Trace sampling ratio between 0.0 and 1.0")
	flags.Bool("tracing-insecure", false, "Disable TLS for the OTLP exporter")
}

// applyFlagOverrides applies command-line flag values to the config, overriding
// values from the config file.
func applyFlagOverrides(cfg *Config, fs *pflag.FlagSet) error {
	if fs.Changed("case") {
		val, err := fs.GetString("case")
		if err != nil {
			return err
		}
		cfg.Case = strings.TrimSpace(val)
	}
	if fs.Changed("trials") {
		val, err := fs.GetInt("trials")
		if err != nil {
			return err
		}
		cfg.Trials = val
	}
	if fs.Changed("tolerance") {
		val, err := fs.GetFloat64("tolerance")
		if err != nil {
			return err
		}
		cfg.Tolerance = val
	}
	if fs.Changed("work-dir") {
		val, err := fs.GetString("work-dir")
		if err != nil {
			return err
		}
		cfg.WorkDir = strings.TrimSpace(val)
	}
	if fs.Changed("fmu") {
		val, err := fs.GetString("fmu")
		if err != nil {
			return err
		}
		cfg.FMU = strings.TrimSpace(val)
	}
	if fs.Changed("step-size") {
		val, err := fs.GetFloat64("step-size")
		if err != nil {
			return err
		}
		cfg.StepSize = val
	}
	if fs.Changed("stop-time") {
		val, err := fs.GetFloat64("stop-time")
		if err != nil {
			return err
		}
		cfg.StopTime = val
	}
	if fs.Changed("vr") {
		val, err := fs.GetUint32("vr")
		if err != nil {
			return err
		}
		cfg.ValueReference = &val
		cfg.Variable = ""
	}
	if fs.Changed("variable") {
		val, err := fs.GetString("variable")
		if err != nil {
			return err
		}
		cfg.Variable = strings.TrimSpace(val)
	}
	if fs.Changed("json-output") {
		val, err := fs.GetBool("json-output")
		if err != nil {
			return err
		}
		cfg.JSONOutput = val
	}
	if fs.Changed("html-output") {
		val, err := fs.GetString("html-output")
		if err != nil {
			return err
		}
		cfg.HTMLOutput = strings.TrimSpace(val)
	}
	if fs.Changed("dashboard") {
		val, err := fs.GetBool("dashboard")
		if err != nil {
			return err
		}
		cfg.Dashboard = val
	}
	if fs.Changed("progress") {
		val, err := fs.GetBool("progress")
		if err != nil {
			return err
		}
		cfg.Progress = val
	}
	if fs.Changed("history-file") {
		val, err := fs.GetString("history-file")
		if err != nil {
			return err
		}
		cfg.HistoryFile = strings.TrimSpace(val)
	}
	if fs.Changed("threshold") {
		val, err := fs.GetStringSlice("threshold")
		if err != nil {
			return err
		}
		cfg.Thresholds = append(cfg.Thresholds, val...)
	}
	if fs.Changed("log-level") {
		val, err := fs.GetString("log-level")
		if err != nil {
			return err
		}
		cfg.LogLevel = strings.ToLower(strings.TrimSpace(val))
	}
	if fs.Changed("fmu-logging") {
		val, err := fs.GetBool("fmu-logging")
		if err != nil {
			return err
		}
		cfg.FMULogging = val
	}
	return applyTracingFlags(&cfg.Tracing, fs)
}

func applyTracingFlags(tc *TracingConfig, fs *pflag.FlagSet) error {
	if fs.Changed("tracing-endpoint") {
		val, err := fs.GetString("tracing-endpoint")
		if err != nil {
			return err
		}
		tc.Endpoint = strings.TrimSpace(val)
	}
	if fs.Changed("tracing-protocol") {
		val, err := fs.GetString("tracing-protocol")
		if err != nil {
			return err
		}
		tc.Protocol = strings.ToLower(strings.TrimSpace(val))
	}
	if fs.Changed("tracing-service-name") {
		val, err := fs.GetString("tracing-service-name")
		if err != nil {
			return err
		}
		tc.ServiceName = val
	}
	if fs.Changed("tracing-sample-rate") {
		val, err := fs.GetFloat64("tracing-sample-rate")
		if err != nil {
			return err
		}
		tc.SampleRate = val
	}
	if fs.Changed("tracing-insecure") {
		val, err := fs.GetBool("tracing-insecure")
		if err != nil {
			return err
		}
		tc.Insecure = val
	}
	return nil
}

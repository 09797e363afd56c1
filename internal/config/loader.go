package config

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// Loader handles loading configuration from files and command-line flags.
type Loader struct{}

// NewLoader creates a new configuration Loader.
func NewLoader() *Loader {
	return &Loader{}
}

// Load builds a Config from defaults, the file named by --config (if any)
// and the explicitly set flags in fs, in that order of precedence.
func (Loader) Load(fs *pflag.FlagSet) (*Config, error) {
	cfg := Defaults()

	configPath := ""
	if f := fs.Lookup("config"); f != nil {
		configPath = strings.TrimSpace(f.Value.String())
	}
	if configPath != "" {
		v := viper.New()
		v.SetConfigFile(configPath)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s: %w", configPath, err)
		}
		cfg.ConfigFile = configPath
		if err := applyConfigSettings(&cfg, v.AllSettings(), filepath.Dir(configPath)); err != nil {
			return nil, fmt.Errorf("config %s: %w", configPath, err)
		}
	}

	if err := applyFlagOverrides(&cfg, fs); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// applyConfigSettings applies settings from a config file to the Config struct.
// Relative FMU paths are resolved against baseDir.
func applyConfigSettings(cfg *Config, settings map[string]interface{}, baseDir string) error {
	if len(settings) == 0 {
		return nil
	}

	if raw, ok := lookupSetting(settings, "case"); ok {
		val, err := asString(raw)
		if err != nil {
			return fmt.Errorf("case: %w", err)
		}
		if val = strings.TrimSpace(val); val != "" {
			cfg.Case = val
		}
	}

	if raw, ok := lookupSetting(settings, "trials"); ok {
		val, err := asInt(raw)
		if err != nil {
			return fmt.Errorf("trials: %w", err)
		}
		cfg.Trials = val
	}

	if raw, ok := lookupSetting(settings, "tolerance"); ok {
		val, err := asFloat64(raw)
		if err != nil {
			return fmt.Errorf("tolerance: %w", err)
		}
		cfg.Tolerance = val
	}

	if raw, ok := lookupSetting(settings, "workdir", "work_dir", "work-dir"); ok {
		val, err := asString(raw)
		if err != nil {
			return fmt.Errorf("workDir: %w", err)
		}
		cfg.WorkDir = strings.TrimSpace(val)
	}

	if raw, ok := lookupSetting(settings, "fmu"); ok {
		val, err := asString(raw)
		if err != nil {
			return fmt.Errorf("fmu: %w", err)
		}
		cfg.FMU = resolvePath(baseDir, val)
	}

	if raw, ok := lookupSetting(settings, "stepsize", "step_size", "step-size"); ok {
		val, err := asFloat64(raw)
		if err != nil {
			return fmt.Errorf("stepSize: %w", err)
		}
		cfg.StepSize = val
	}

	if raw, ok := lookupSetting(settings, "stoptime", "stop_time", "stop-time"); ok {
		val, err := asFloat64(raw)
		if err != nil {
			return fmt.Errorf("stopTime: %w", err)
		}
		cfg.StopTime = val
	}

	if raw, ok := lookupSetting(settings, "vr", "valuereference", "value_reference"); ok {
		val, err := asUint32(raw)
		if err != nil {
			return fmt.Errorf("vr: %w", err)
		}
		cfg.ValueReference = &val
	}

	if raw, ok := lookupSetting(settings, "variable"); ok {
		val, err := asString(raw)
		if err != nil {
			return fmt.Errorf("variable: %w", err)
		}
		cfg.Variable = strings.TrimSpace(val)
	}

	if raw, ok := lookupSetting(settings, "jsonoutput", "json_output", "json-output"); ok {
		val, err := asBool(raw)
		if err != nil {
			return fmt.Errorf("jsonOutput: %w", err)
		}
		cfg.JSONOutput = val
	}

	if raw, ok := lookupSetting(settings, "htmloutput", "html_output", "html-output"); ok {
		val, err := asString(raw)
		if err != nil {
			return fmt.Errorf("htmlOutput: %w", err)
		}
		cfg.HTMLOutput = resolvePath(baseDir, val)
	}

	if raw, ok := lookupSetting(settings, "dashboard"); ok {
		val, err := asBool(raw)
		if err != nil {
			return fmt.Errorf("dashboard: %w", err)
		}
		cfg.Dashboard = val
	}

	if raw, ok := lookupSetting(settings, "progress"); ok {
		val, err := asBool(raw)
		if err != nil {
			return fmt.Errorf("progress: %w", err)
		}
		cfg.Progress = val
	}

	if raw, ok := lookupSetting(settings, "historyfile", "history_file", "history-file"); ok {
		val, err := asString(raw)
		if err != nil {
			return fmt.Errorf("historyFile: %w", err)
		}
		cfg.HistoryFile = resolvePath(baseDir, val)
	}

	if raw, ok := lookupSetting(settings, "thresholds"); ok {
		val, err := asStringSlice(raw)
		if err != nil {
			return fmt.Errorf("thresholds: %w", err)
		}
		cfg.Thresholds = val
	}

	if raw, ok := lookupSetting(settings, "loglevel", "log_level", "log-level"); ok {
		val, err := asString(raw)
		if err != nil {
			return fmt.Errorf("logLevel: %w", err)
		}
		if val = strings.ToLower(strings.TrimSpace(val)); val != "" {
			cfg.LogLevel = val
		}
	}

	if raw, ok := lookupSetting(settings, "fmulogging", "fmu_logging", "fmu-logging"); ok {
		val, err := asBool(raw)
		if err != nil {
			return fmt.Errorf("fmuLogging: %w", err)
		}
		cfg.FMULogging = val
	}

	if raw, ok := lookupSetting(settings, "tracing"); ok {
		tc, err := parseTracing(raw, cfg.Tracing)
		if err != nil {
			return fmt.Errorf("tracing: %w", err)
		}
		cfg.Tracing = tc
	}

	if raw, ok := lookupSetting(settings, "cases"); ok {
		cases, err := parseCases(raw, baseDir)
		if err != nil {
			return fmt.Errorf("cases: %w", err)
		}
		cfg.Cases = cfg.Cases.With(cases...)
	}

	return nil
}

func resolvePath(baseDir, p string) string {
	p = strings.TrimSpace(p)
	if p == "" || filepath.IsAbs(p) || baseDir == "" {
		return p
	}
	return filepath.Join(baseDir, p)
}

func parseCases(value interface{}, baseDir string) ([]Case, error) {
	if value == nil {
		return nil, nil
	}
	items, err := toInterfaceSlice(value)
	if err != nil {
		return nil, err
	}
	cases := make([]Case, 0, len(items))
	for idx, item := range items {
		entry, err := toStringKeyMap(item)
		if err != nil {
			return nil, fmt.Errorf("cases[%d]: %w", idx, err)
		}
		c, err := buildCase(entry, baseDir)
		if err != nil {
			return nil, fmt.Errorf("cases[%d]: %w", idx, err)
		}
		cases = append(cases, c)
	}
	return cases, nil
}

func buildCase(settings map[string]interface{}, baseDir string) (Case, error) {
	var c Case

	if raw, ok := lookupSetting(settings, "name"); ok {
		val, err := asString(raw)
		if err != nil {
			return c, fmt.Errorf("name: %w", err)
		}
		c.Name = strings.TrimSpace(val)
	}
	if c.Name == "" {
		return c, fmt.Errorf("name is required")
	}

	if raw, ok := lookupSetting(settings, "fmu"); ok {
		val, err := asString(raw)
		if err != nil {
			return c, fmt.Errorf("fmu: %w", err)
		}
		c.FMU = resolvePath(baseDir, val)
	}

	if raw, ok := lookupSetting(settings, "stepsize", "step_size", "step-size"); ok {
		val, err := asFloat64(raw)
		if err != nil {
			return c, fmt.Errorf("step_size: %w", err)
		}
		c.StepSize = val
	}

	if raw, ok := lookupSetting(settings, "stoptime", "stop_time", "stop-time"); ok {
		val, err := asFloat64(raw)
		if err != nil {
			return c, fmt.Errorf("stop_time: %w", err)
		}
		c.StopTime = val
	}

	if raw, ok := lookupSetting(settings, "vr", "valuereference", "value_reference"); ok {
		val, err := asUint32(raw)
		if err != nil {
			return c, fmt.Errorf("vr: %w", err)
		}
		c.ValueReference = val
	}

	if raw, ok := lookupSetting(settings, "variable"); ok {
		val, err := asString(raw)
		if err != nil {
			return c, fmt.Errorf("variable: %w", err)
		}
		c.Variable = strings.TrimSpace(val)
	}

	if raw, ok := lookupSetting(settings, "startvalues", "start_values", "start-values"); ok {
		values, err := parseStartValues(raw)
		if err != nil {
			return c, fmt.Errorf("start_values: %w", err)
		}
		c.StartValues = values
	}

	return c, nil
}

func parseStartValues(value interface{}) ([]StartValue, error) {
	items, err := toInterfaceSlice(value)
	if err != nil {
		return nil, err
	}
	values := make([]StartValue, 0, len(items))
	for idx, item := range items {
		entry, err := toStringKeyMap(item)
		if err != nil {
			return nil, fmt.Errorf("[%d]: %w", idx, err)
		}
		var sv StartValue
		if raw, ok := lookupSetting(entry, "name"); ok {
			if sv.Name, err = asString(raw); err != nil {
				return nil, fmt.Errorf("[%d].name: %w", idx, err)
			}
		}
		if sv.Name = strings.TrimSpace(sv.Name); sv.Name == "" {
			return nil, fmt.Errorf("[%d]: name is required", idx)
		}
		if raw, ok := lookupSetting(entry, "value"); ok {
			if sv.Value, err = asFloat64(raw); err != nil {
				return nil, fmt.Errorf("[%d].value: %w", idx, err)
			}
		}
		values = append(values, sv)
	}
	return values, nil
}

func parseTracing(value interface{}, base TracingConfig) (TracingConfig, error) {
	if value == nil {
		return base, nil
	}
	entry, err := toStringKeyMap(value)
	if err != nil {
		return base, err
	}
	tc := base

	if raw, ok := lookupSetting(entry, "endpoint"); ok {
		val, err := asString(raw)
		if err != nil {
			return tc, fmt.Errorf("endpoint: %w", err)
		}
		tc.Endpoint = strings.TrimSpace(val)
	}
	if raw, ok := lookupSetting(entry, "protocol"); ok {
		val, err := asString(raw)
		if err != nil {
			return tc, fmt.Errorf("protocol: %w", err)
		}
		tc.Protocol = strings.ToLower(strings.TrimSpace(val))
	}
	if raw, ok := lookupSetting(entry, "servicename", "service_name", "service-name"); ok {
		val, err := asString(raw)
		if err != nil {
			return tc, fmt.Errorf("service_name: %w", err)
		}
		tc.ServiceName = val
	}
	if raw, ok := lookupSetting(entry, "samplerate", "sample_rate", "sample-rate"); ok {
		val, err := asFloat64(raw)
		if err != nil {
			return tc, fmt.Errorf("sample_rate: %w", err)
		}
		tc.SampleRate = val
	}
	if raw, ok := lookupSetting(entry, "insecure"); ok {
		val, err := asBool(raw)
		if err != nil {
			return tc, fmt.Errorf("insecure: %w", err)
		}
		tc.Insecure = val
	}
	return tc, nil
}

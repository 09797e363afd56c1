package config

import (
	"fmt"
	"os"
	"strings"

	"go.uber.org/zap/zapcore"
)

// DefaultCase is the case run when none is selected.
const DefaultCase = "TorsionBar"

const (
	DefaultTrials    = 4
	DefaultTolerance = 1e-4
	DefaultLogLevel  = "info"
)

// Case describes one benchmark: which FMU to load, how to step it and which
// real output to accumulate.
type Case struct {
	Name           string       `mapstructure:"name" yaml:"name"`
	FMU            string       `mapstructure:"fmu" yaml:"fmu"`
	StepSize       float64      `mapstructure:"step_size" yaml:"step_size"`
	StopTime       float64      `mapstructure:"stop_time" yaml:"stop_time"`
	ValueReference uint32       `mapstructure:"vr" yaml:"vr"`
	Variable       string       `mapstructure:"variable" yaml:"variable,omitempty"` // resolved to a value reference when set
	StartValues    []StartValue `mapstructure:"start_values" yaml:"start_values,omitempty"`
}

// StartValue sets a named real input during initialization mode.
type StartValue struct {
	Name  string  `mapstructure:"name" yaml:"name"`
	Value float64 `mapstructure:"value" yaml:"value"`
}

func (c Case) clone() Case {
	c.StartValues = append([]StartValue(nil), c.StartValues...)
	return c
}

// Table is an ordered, immutable set of named cases. Every accessor returns
// copies; With builds a new table.
type Table struct {
	cases []Case
}

// NewTable builds a table from cases. A later case replaces an earlier one
// with the same name (case-insensitive).
func NewTable(cases ...Case) Table {
	return Table{}.With(cases...)
}

// BuiltinTable returns the cases shipped with fmibench.
func BuiltinTable() Table {
	return NewTable(
		Case{
			Name:           "ControlledTemperature",
			FMU:            "../../fmus/2.0/cs/20sim/4.6.4.8004/ControlledTemperature/ControlledTemperature.fmu",
			StepSize:       1e-4,
			StopTime:       10,
			ValueReference: 47,
		},
		Case{
			Name:           "TorsionBar",
			FMU:            "../../fmus/2.0/cs/20sim/4.6.4.8004/TorsionBar/TorsionBar.fmu",
			StepSize:       1e-5,
			StopTime:       12,
			ValueReference: 2,
		},
	)
}

// With returns a new table containing t's cases plus cases.
func (t Table) With(cases ...Case) Table {
	out := Table{cases: make([]Case, 0, len(t.cases)+len(cases))}
	for _, c := range t.cases {
		out.cases = append(out.cases, c.clone())
	}
	for _, c := range cases {
		c = c.clone()
		if idx := out.index(c.Name); idx >= 0 {
			out.cases[idx] = c
			continue
		}
		out.cases = append(out.cases, c)
	}
	return out
}

func (t Table) index(name string) int {
	for i, c := range t.cases {
		if strings.EqualFold(c.Name, name) {
			return i
		}
	}
	return -1
}

// Lookup returns a copy of the named case.
func (t Table) Lookup(name string) (Case, bool) {
	if idx := t.index(name); idx >= 0 {
		return t.cases[idx].clone(), true
	}
	return Case{}, false
}

// Cases returns copies of all cases in table order.
func (t Table) Cases() []Case {
	out := make([]Case, len(t.cases))
	for i, c := range t.cases {
		out[i] = c.clone()
	}
	return out
}

// Names returns the case names in table order.
func (t Table) Names() []string {
	names := make([]string, len(t.cases))
	for i, c := range t.cases {
		names[i] = c.Name
	}
	return names
}

// Len reports the number of cases.
func (t Table) Len() int { return len(t.cases) }

type Config struct {
	Case        string        `mapstructure:"case"`
	Cases       Table         `mapstructure:"-"`
	Trials      int           `mapstructure:"trials"`
	Tolerance   float64       `mapstructure:"tolerance"`
	WorkDir     string        `mapstructure:"work_dir"`
	JSONOutput  bool          `mapstructure:"json_output"`
	HTMLOutput  string        `mapstructure:"html_output"`
	Dashboard   bool          `mapstructure:"dashboard"`
	Progress    bool          `mapstructure:"progress"`
	HistoryFile string        `mapstructure:"history_file"`
	Thresholds  []string      `mapstructure:"thresholds"`
	LogLevel    string        `mapstructure:"log_level"`
	FMULogging  bool          `mapstructure:"fmu_logging"`
	ConfigFile  string        `mapstructure:"-"`
	Tracing     TracingConfig `mapstructure:"tracing"`

	// Ad-hoc overrides of the selected case.
	FMU            string  `mapstructure:"fmu"`
	StepSize       float64 `mapstructure:"step_size"`
	StopTime       float64 `mapstructure:"stop_time"`
	ValueReference *uint32 `mapstructure:"vr"`
	Variable       string  `mapstructure:"variable"`
}

// Defaults returns a Config with the built-in cases and default settings.
func Defaults() Config {
	return Config{
		Case:      DefaultCase,
		Cases:     BuiltinTable(),
		Trials:    DefaultTrials,
		Tolerance: DefaultTolerance,
		LogLevel:  DefaultLogLevel,
		Tracing:   TracingConfig{SampleRate: 1.0},
	}
}

// SelectedCase resolves the selected case and applies the ad-hoc overrides.
// An unknown case name is accepted only when an FMU path is given, in which
// case the overrides describe the whole case.
func (c Config) SelectedCase() (Case, error) {
	name := strings.TrimSpace(c.Case)
	if name == "" {
		name = DefaultCase
	}
	selected, ok := c.Cases.Lookup(name)
	if !ok {
		if strings.TrimSpace(c.FMU) == "" {
			return Case{}, fmt.Errorf("unknown case %q (known: %s)", name, strings.Join(c.Cases.Names(), ", "))
		}
		selected = Case{Name: name}
	}
	if fmu := strings.TrimSpace(c.FMU); fmu != "" {
		selected.FMU = fmu
	}
	if c.StepSize != 0 {
		selected.StepSize = c.StepSize
	}
	if c.StopTime != 0 {
		selected.StopTime = c.StopTime
	}
	if c.ValueReference != nil {
		selected.ValueReference = *c.ValueReference
		selected.Variable = ""
	}
	if v := strings.TrimSpace(c.Variable); v != "" {
		selected.Variable = v
	}
	return selected, nil
}

type TracingConfig struct {
	Endpoint    string  `mapstructure:"endpoint"`
	Protocol    string  `mapstructure:"protocol"` // "grpc" (default) or "http"
	ServiceName string  `mapstructure:"service_name"`
	SampleRate  float64 `mapstructure:"sample_rate"`
	Insecure    bool    `mapstructure:"insecure"`
}

// Enabled reports whether spans should be exported, either through an
// explicit endpoint or the standard OTLP environment variable.
func (t TracingConfig) Enabled() bool {
	if strings.TrimSpace(t.Endpoint) != "" {
		return true
	}
	return os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT") != ""
}

type ValidationError struct {
	issues []string
}

func (e ValidationError) Error() string {
	if len(e.issues) == 0 {
		return "validation failed"
	}
	return fmt.Sprintf("validation failed: %s", strings.Join(e.issues, "; "))
}

func (e ValidationError) Issues() []string {
	return append([]string(nil), e.issues...)
}

func (c Config) Validate() error {
	var issues []string

	if c.Trials < 1 {
		issues = append(issues, "trials must be >= 1")
	}
	if c.Tolerance <= 0 {
		issues = append(issues, "tolerance must be > 0")
	}
	if c.Dashboard && c.JSONOutput {
		issues = append(issues, "dashboard and json-output are mutually exclusive")
	}
	if _, err := zapcore.ParseLevel(c.LogLevel); err != nil {
		issues = append(issues, fmt.Sprintf("log level %q is not supported", c.LogLevel))
	}

	selected, err := c.SelectedCase()
	if err != nil {
		issues = append(issues, err.Error())
	} else {
		issues = append(issues, validateCase(selected)...)
	}

	issues = append(issues, validateTracing(c.Tracing)...)

	if len(issues) > 0 {
		return ValidationError{issues: issues}
	}
	return nil
}

func validateCase(c Case) []string {
	var issues []string
	label := c.Name
	if label == "" {
		label = "case"
	}
	if strings.TrimSpace(c.FMU) == "" {
		issues = append(issues, fmt.Sprintf("%s: fmu path is required", label))
	}
	if !(c.StepSize > 0) {
		issues = append(issues, fmt.Sprintf("%s: step_size must be > 0", label))
	}
	if !(c.StopTime > 0) {
		issues = append(issues, fmt.Sprintf("%s: stop_time must be > 0", label))
	}
	if c.StepSize > 0 && c.StopTime > 0 && c.StepSize >= c.StopTime {
		issues = append(issues, fmt.Sprintf("%s: step_size (%g) must be < stop_time (%g)", label, c.StepSize, c.StopTime))
	}
	return issues
}

func validateTracing(t TracingConfig) []string {
	var issues []string
	switch strings.ToLower(strings.TrimSpace(t.Protocol)) {
	case "", "grpc", "http":
	default:
		issues = append(issues, fmt.Sprintf("tracing: protocol must be 'grpc' or 'http', got %q", t.Protocol))
	}
	if t.SampleRate < 0 || t.SampleRate > 1 {
		issues = append(issues, fmt.Sprintf("tracing: sample_rate must be between 0.0 and 1.0, got %g", t.SampleRate))
	}
	return issues
}

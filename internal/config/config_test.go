package config_test

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/spf13/cobra"

	"github.com/torosent/fmibench/internal/config"
)

func newRunFlags(t *testing.T, args ...string) *cobra.Command {
	t.Helper()
	cmd := &cobra.Command{Use: "run"}
	config.RegisterFlags(cmd)
	if err := cmd.Flags().Parse(args); err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	return cmd
}

func TestLoadDefaults(t *testing.T) {
	cfg, err := config.NewLoader().Load(newRunFlags(t).Flags())
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Case != config.DefaultCase {
		t.Errorf("Case = %q, want %q", cfg.Case, config.DefaultCase)
	}
	if cfg.Trials != 4 {
		t.Errorf("Trials = %d, want 4", cfg.Trials)
	}
	if cfg.Tolerance != 1e-4 {
		t.Errorf("Tolerance = %g, want 1e-4", cfg.Tolerance)
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Validate() error = %v", err)
	}

	c, err := cfg.SelectedCase()
	if err != nil {
		t.Fatal(err)
	}
	if c.StepSize != 1e-5 || c.StopTime != 12 || c.ValueReference != 2 {
		t.Errorf("TorsionBar = %+v", c)
	}
	if !strings.HasSuffix(c.FMU, "TorsionBar/TorsionBar.fmu") {
		t.Errorf("FMU = %q", c.FMU)
	}
}

func TestBuiltinTable(t *testing.T) {
	table := config.BuiltinTable()
	if got := strings.Join(table.Names(), ","); got != "ControlledTemperature,TorsionBar" {
		t.Fatalf("Names() = %s", got)
	}
	ct, ok := table.Lookup("controlledtemperature")
	if !ok {
		t.Fatal("lookup must be case-insensitive")
	}
	if ct.StepSize != 1e-4 || ct.StopTime != 10 || ct.ValueReference != 47 {
		t.Errorf("ControlledTemperature = %+v", ct)
	}
	if _, ok := table.Lookup("Missing"); ok {
		t.Error("unexpected case")
	}
}

func TestTableIsImmutable(t *testing.T) {
	base := config.NewTable(config.Case{
		Name:        "A",
		FMU:         "a.fmu",
		StartValues: []config.StartValue{{Name: "x", Value: 1}},
	})

	got, _ := base.Lookup("A")
	got.FMU = "changed.fmu"
	got.StartValues[0].Value = 99

	cases := base.Cases()
	cases[0].Name = "B"

	again, _ := base.Lookup("A")
	if again.FMU != "a.fmu" || again.StartValues[0].Value != 1 {
		t.Errorf("table mutated through a copy: %+v", again)
	}

	extended := base.With(config.Case{Name: "a", FMU: "replaced.fmu"}, config.Case{Name: "C"})
	if base.Len() != 1 || extended.Len() != 2 {
		t.Fatalf("lens base=%d extended=%d", base.Len(), extended.Len())
	}
	if c, _ := extended.Lookup("A"); c.FMU != "replaced.fmu" {
		t.Errorf("same-name case must replace, got %+v", c)
	}
}

func TestSelectedCaseOverrides(t *testing.T) {
	vr := uint32(9)
	tests := []struct {
		name    string
		mutate  func(*config.Config)
		want    config.Case
		wantErr bool
	}{
		{
			name:   "override step and vr",
			mutate: func(c *config.Config) { c.StepSize = 1e-3; c.ValueReference = &vr },
			want:   config.Case{Name: "TorsionBar", StepSize: 1e-3, StopTime: 12, ValueReference: 9},
		},
		{
			name:   "variable name",
			mutate: func(c *config.Config) { c.Variable = "omega" },
			want:   config.Case{Name: "TorsionBar", StepSize: 1e-5, StopTime: 12, ValueReference: 2, Variable: "omega"},
		},
		{
			name: "ad-hoc case",
			mutate: func(c *config.Config) {
				c.Case = "Custom"
				c.FMU = "custom.fmu"
				c.StepSize = 0.1
				c.StopTime = 1
			},
			want: config.Case{Name: "Custom", FMU: "custom.fmu", StepSize: 0.1, StopTime: 1},
		},
		{
			name:    "unknown case without fmu",
			mutate:  func(c *config.Config) { c.Case = "Nope" },
			wantErr: true,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := config.Defaults()
			tt.mutate(&cfg)
			got, err := cfg.SelectedCase()
			if (err != nil) != tt.wantErr {
				t.Fatalf("SelectedCase() error = %v, wantErr %v", err, tt.wantErr)
			}
			if tt.wantErr {
				return
			}
			if tt.want.FMU == "" {
				tt.want.FMU = got.FMU
			}
			if got.Name != tt.want.Name || got.FMU != tt.want.FMU || got.StepSize != tt.want.StepSize ||
				got.StopTime != tt.want.StopTime || got.ValueReference != tt.want.ValueReference ||
				got.Variable != tt.want.Variable {
				t.Errorf("SelectedCase() = %+v, want %+v", got, tt.want)
			}
		})
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*config.Config)
		issue  string
	}{
		{"zero trials", func(c *config.Config) { c.Trials = 0 }, "trials must be >= 1"},
		{"step not below stop", func(c *config.Config) { c.StepSize = 12 }, "must be < stop_time"},
		{"negative step", func(c *config.Config) { c.StepSize = -1 }, "step_size must be > 0"},
		{"dashboard and json", func(c *config.Config) { c.Dashboard, c.JSONOutput = true, true }, "mutually exclusive"},
		{"bad log level", func(c *config.Config) { c.LogLevel = "chatty" }, "log level"},
		{"unknown case", func(c *config.Config) { c.Case = "Nope" }, "unknown case"},
		{"tracing protocol", func(c *config.Config) { c.Tracing.Protocol = "thrift" }, "tracing: protocol"},
		{"tracing sample rate", func(c *config.Config) { c.Tracing.SampleRate = 1.5 }, "sample_rate"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := config.Defaults()
			tt.mutate(&cfg)
			err := cfg.Validate()
			var verr config.ValidationError
			if !errors.As(err, &verr) {
				t.Fatalf("Validate() error = %v, want ValidationError", err)
			}
			found := false
			for _, issue := range verr.Issues() {
				if strings.Contains(issue, tt.issue) {
					found = true
				}
			}
			if !found {
				t.Errorf("issues %v lack %q", verr.Issues(), tt.issue)
			}
		})
	}
}

func TestValidateCollectsAllIssues(t *testing.T) {
	cfg := config.Defaults()
	cfg.Trials = 0
	cfg.Tolerance = 0
	cfg.StopTime = -1

	var verr config.ValidationError
	if !errors.As(cfg.Validate(), &verr) {
		t.Fatal("expected ValidationError")
	}
	if len(verr.Issues()) < 3 {
		t.Errorf("Issues() = %v, want at least 3", verr.Issues())
	}
}

func TestLoadConfigFileYAML(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "bench.yaml")
	body := `case: Pendulum
trials: 3
json_output: true
history_file: history.jsonl
html_output: out/report.html
thresholds:
  - "trial_duration:p95 < 2000"
cases:
  - name: Pendulum
    fmu: models/Pendulum.fmu
    step_size: 0.001
    stop_time: 5
    vr: 3
`
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}

	cmd := newRunFlags(t, "--config", path, "--trials", "5")
	cfg, err := config.NewLoader().Load(cmd.Flags())
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.ConfigFile != path {
		t.Errorf("ConfigFile = %q", cfg.ConfigFile)
	}
	if cfg.Trials != 5 {
		t.Errorf("Trials = %d, want flag value 5", cfg.Trials)
	}
	if !cfg.JSONOutput || len(cfg.Thresholds) != 1 {
		t.Errorf("json=%v thresholds=%v", cfg.JSONOutput, cfg.Thresholds)
	}
	if cfg.HTMLOutput != filepath.Join(dir, "out", "report.html") {
		t.Errorf("HTMLOutput = %q", cfg.HTMLOutput)
	}
	if cfg.HistoryFile != filepath.Join(dir, "history.jsonl") {
		t.Errorf("HistoryFile = %q", cfg.HistoryFile)
	}
	c, err := cfg.SelectedCase()
	if err != nil {
		t.Fatal(err)
	}
	if c.FMU != filepath.Join(dir, "models", "Pendulum.fmu") || c.ValueReference != 3 || c.StepSize != 0.001 {
		t.Errorf("Pendulum = %+v", c)
	}
	if _, ok := cfg.Cases.Lookup(config.DefaultCase); !ok {
		t.Error("built-in cases must survive a config file")
	}
}

func TestLoadConfigFileMissing(t *testing.T) {
	cmd := newRunFlags(t, "--config", filepath.Join(t.TempDir(), "missing.yaml"))
	if _, err := config.NewLoader().Load(cmd.Flags()); err == nil {
		t.Fatal("expected error for missing config file")
	}
}

func TestTracingEnabled(t *testing.T) {
	t.Setenv("OTEL_EXPORTER_OTLP_ENDPOINT", "")
	if (config.TracingConfig{}).Enabled() {
		t.Error("tracing enabled without endpoint")
	}
	if !(config.TracingConfig{Endpoint: "localhost:4317"}).Enabled() {
		t.Error("tracing disabled with endpoint")
	}
	t.Setenv("OTEL_EXPORTER_OTLP_ENDPOINT", "http://collector:4318")
	if !(config.TracingConfig{}).Enabled() {
		t.Error("tracing disabled with OTEL_EXPORTER_OTLP_ENDPOINT")
	}
}

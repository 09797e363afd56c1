package main

import (
	"bytes"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"testing"

	"github.com/klauspost/compress/zip"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/torosent/fmibench/internal/bench"
	"github.com/torosent/fmibench/internal/config"
	"github.com/torosent/fmibench/internal/fmi"
	"github.com/torosent/fmibench/internal/fmu"
)

const pendulumXML = `<?xml version="1.0" encoding="UTF-8"?>
<fmiModelDescription fmiVersion="2.0" modelName="Pendulum" guid="{8c4e810f-3df3-4a00-8276-176fa3c9f000}" generationTool="test">
  <CoSimulation modelIdentifier="Pendulum"/>
  <DefaultExperiment startTime="0" stopTime="1" stepSize="0.25"/>
  <ModelVariables>
    <ScalarVariable name="omega" valueReference="2" causality="output">
      <Real start="0.5" unit="rad/s"/>
    </ScalarVariable>
    <ScalarVariable name="damping" valueReference="5" causality="parameter" variability="fixed">
      <Real start="0.1"/>
    </ScalarVariable>
    <ScalarVariable name="counter" valueReference="7" causality="output">
      <Integer start="3"/>
    </ScalarVariable>
  </ModelVariables>
</fmiModelDescription>`

func writeFMU(t *testing.T, modelDescription string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "Pendulum.fmu")
	f, err := os.Create(path)
	if err != nil {
		t.Fatal(err)
	}
	zw := zip.NewWriter(f)
	w, err := zw.Create(fmu.ModelDescriptionFile)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := w.Write([]byte(modelDescription)); err != nil {
		t.Fatal(err)
	}
	if err := zw.Close(); err != nil {
		t.Fatal(err)
	}
	if err := f.Close(); err != nil {
		t.Fatal(err)
	}
	return path
}

type fakeModel struct {
	opened    []string
	opts      fmi.Options
	instances []string
	freed     int
	setReals  map[uint32]float64
	closed    bool
	openErr   error
}

func (m *fakeModel) open(path string, opts fmi.Options) (bench.Model, error) {
	m.opened = append(m.opened, path)
	m.opts = opts
	if m.openErr != nil {
		return nil, m.openErr
	}
	return m, nil
}

func (m *fakeModel) Instantiate(name string) (bench.Slave, error) {
	m.instances = append(m.instances, name)
	return &fakeSlave{m: m}, nil
}

func (m *fakeModel) Close() error {
	m.closed = true
	return nil
}

type fakeSlave struct {
	m *fakeModel
}

func (s *fakeSlave) SetupExperiment(float64, float64, float64) error { return nil }
func (s *fakeSlave) EnterInitializationMode() error                 { return nil }
func (s *fakeSlave) ExitInitializationMode() error                  { return nil }
func (s *fakeSlave) SetReal(vr uint32, v float64) error {
	if s.m.setReals == nil {
		s.m.setReals = map[uint32]float64{}
	}
	s.m.setReals[vr] = v
	return nil
}
func (s *fakeSlave) DoStep(float64, float64) error   { return nil }
func (s *fakeSlave) GetReal(uint32) (float64, error) { return 1, nil }
func (s *fakeSlave) Terminate() error                { return nil }
func (s *fakeSlave) Free() error {
	s.m.freed++
	return nil
}

func newTestApp() (*app, *fakeModel, *bytes.Buffer, *bytes.Buffer) {
	m := &fakeModel{}
	var stdout, stderr bytes.Buffer
	return &app{stdout: &stdout, stderr: &stderr, open: m.open}, m, &stdout, &stderr
}

var trialLines = regexp.MustCompile(`(?m)^sum=4\.0, iter=4\n\d+ms$`)

func TestRunPrintsTrialLines(t *testing.T) {
	a, m, stdout, _ := newTestApp()
	path := writeFMU(t, pendulumXML)

	err := a.run([]string{"--fmu", path, "--step-size", "0.25", "--stop-time", "1", "--vr", "2", "-n", "3", "--fmu-logging"})
	if err != nil {
		t.Fatalf("run() error = %v", err)
	}

	if got := len(trialLines.FindAllString(stdout.String(), -1)); got != 3 {
		t.Errorf("found %d trial line pairs, want 3:\n%s", got, stdout.String())
	}
	if !strings.Contains(stdout.String(), "--- Benchmark Results ---") {
		t.Error("missing summary report")
	}
	if strings.Join(m.instances, ",") != "instance0,instance1,instance2" {
		t.Errorf("instances = %v", m.instances)
	}
	if m.freed != 3 || !m.closed {
		t.Errorf("freed = %d, closed = %v", m.freed, m.closed)
	}
	if len(m.opened) != 1 || m.opened[0] != path || !m.opts.LoggingOn {
		t.Errorf("opened = %v, opts = %+v", m.opened, m.opts)
	}
}

func TestRunSubcommand(t *testing.T) {
	a, m, stdout, _ := newTestApp()
	path := writeFMU(t, pendulumXML)

	err := a.run([]string{"run", "--fmu", path, "--step-size", "0.25", "--stop-time", "1", "--variable", "omega", "--trials", "1"})
	if err != nil {
		t.Fatalf("run() error = %v", err)
	}
	if len(m.instances) != 1 || len(trialLines.FindAllString(stdout.String(), -1)) != 1 {
		t.Errorf("instances = %v, stdout:\n%s", m.instances, stdout.String())
	}
}

func TestRunJSONOutput(t *testing.T) {
	a, _, stdout, stderr := newTestApp()
	path := writeFMU(t, pendulumXML)

	err := a.run([]string{"--fmu", path, "--step-size", "0.25", "--stop-time", "1", "--vr", "2", "-n", "2", "--json-output"})
	if err != nil {
		t.Fatalf("run() error = %v", err)
	}
	var report map[string]any
	if err := json.Unmarshal(stdout.Bytes(), &report); err != nil {
		t.Fatalf("stdout is not JSON: %v\n%s", err, stdout.String())
	}
	if trials := report["trials"].([]any); len(trials) != 2 {
		t.Errorf("trials = %v", trials)
	}
	if got := len(trialLines.FindAllString(stderr.String(), -1)); got != 2 {
		t.Errorf("stderr has %d trial line pairs, want 2", got)
	}
}

func TestRunThresholdsAndArtifacts(t *testing.T) {
	a, _, stdout, _ := newTestApp()
	path := writeFMU(t, pendulumXML)
	dir := t.TempDir()
	history := filepath.Join(dir, "history.jsonl")
	html := filepath.Join(dir, "report.html")

	err := a.run([]string{
		"--fmu", path, "--step-size", "0.25", "--stop-time", "1", "--vr", "2", "-n", "2",
		"--threshold", "trials:count == 2",
		"--threshold", "steps:min > 4",
		"--history-file", history,
		"--html-output", html,
	})
	if !errors.Is(err, errThresholdsFailed) {
		t.Fatalf("run() error = %v, want errThresholdsFailed", err)
	}
	if !strings.Contains(stdout.String(), "✗ steps:min > 4") || !strings.Contains(stdout.String(), "✓ trials:count == 2") {
		t.Errorf("threshold lines missing:\n%s", stdout.String())
	}
	for _, p := range []string{history, html} {
		if info, err := os.Stat(p); err != nil || info.Size() == 0 {
			t.Errorf("%s not written: %v", p, err)
		}
	}
}

func TestRunRejectsBadInputBeforeOpening(t *testing.T) {
	path := writeFMU(t, pendulumXML)
	tests := []struct {
		name string
		args []string
		want string
	}{
		{"zero trials", []string{"--fmu", path, "--step-size", "0.25", "--stop-time", "1", "-n", "0"}, "trials must be >= 1"},
		{"step not below stop", []string{"--fmu", path, "--step-size", "1", "--stop-time", "1"}, "must be < stop_time"},
		{"bad threshold", []string{"--fmu", path, "--step-size", "0.25", "--stop-time", "1", "--threshold", "latency:p99 < 5"}, "unsupported metric"},
		{"unknown variable", []string{"--fmu", path, "--step-size", "0.25", "--stop-time", "1", "--variable", "theta"}, `"theta" is not declared`},
		{"integer variable", []string{"--fmu", path, "--step-size", "0.25", "--stop-time", "1", "--variable", "counter"}, "is Integer, want Real"},
		{"missing fmu", []string{"--fmu", filepath.Join(t.TempDir(), "nope.fmu"), "--step-size", "0.25", "--stop-time", "1"}, "nope.fmu"},
		{"positional args", []string{"extra"}, "unknown command"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a, m, _, _ := newTestApp()
			err := a.run(tt.args)
			if err == nil || !strings.Contains(err.Error(), tt.want) {
				t.Fatalf("run() error = %v, want %q", err, tt.want)
			}
			if len(m.opened) != 0 {
				t.Error("FMU opened despite invalid input")
			}
		})
	}
}

func TestRunOpenError(t *testing.T) {
	a, m, stdout, _ := newTestApp()
	m.openErr = errors.New("no binary for linux64")
	path := writeFMU(t, pendulumXML)

	err := a.run([]string{"--fmu", path, "--step-size", "0.25", "--stop-time", "1", "--vr", "2"})
	if !errors.Is(err, m.openErr) {
		t.Fatalf("run() error = %v", err)
	}
	if stdout.Len() != 0 {
		t.Errorf("nothing should be printed, got %q", stdout.String())
	}
}

func TestTrialConfigResolvesNames(t *testing.T) {
	md, err := fmu.ParseModelDescription(strings.NewReader(pendulumXML))
	if err != nil {
		t.Fatal(err)
	}
	c := config.Case{
		Name:        "Pendulum",
		FMU:         "Pendulum.fmu",
		StepSize:    0.25,
		StopTime:    1,
		Variable:    "omega",
		StartValues: []config.StartValue{{Name: "damping", Value: 0.3}},
	}
	tc, err := trialConfig(c, 1e-6, md, zap.NewNop())
	if err != nil {
		t.Fatal(err)
	}
	if tc.ValueReference != 2 || tc.Tolerance != 1e-6 || tc.StepSize != 0.25 || tc.StopTime != 1 {
		t.Errorf("trialConfig() = %+v", tc)
	}
	if len(tc.StartValues) != 1 || tc.StartValues[0] != (bench.StartValue{ValueReference: 5, Value: 0.3}) {
		t.Errorf("StartValues = %+v", tc.StartValues)
	}

	c.StartValues = []config.StartValue{{Name: "counter", Value: 1}}
	if _, err := trialConfig(c, 1e-4, md, zap.NewNop()); err == nil {
		t.Error("integer start value must be rejected")
	}

	noCS := strings.Replace(pendulumXML, `<CoSimulation modelIdentifier="Pendulum"/>`, `<ModelExchange modelIdentifier="Pendulum"/>`, 1)
	md, err = fmu.ParseModelDescription(strings.NewReader(noCS))
	if err != nil {
		t.Fatal(err)
	}
	if _, err := trialConfig(config.Case{Name: "Pendulum", ValueReference: 2}, 1e-4, md, zap.NewNop()); err == nil {
		t.Error("model exchange only FMU must be rejected")
	}
}

func TestStartValuesReachSlave(t *testing.T) {
	a, m, _, _ := newTestApp()
	path := writeFMU(t, pendulumXML)
	cfgPath := filepath.Join(t.TempDir(), "bench.yaml")
	body := "case: Pendulum\ntrials: 1\ncases:\n  - name: Pendulum\n    fmu: " + path +
		"\n    step_size: 0.25\n    stop_time: 1\n    variable: omega\n    start_values:\n      - name: damping\n        value: 0.7\n"
	if err := os.WriteFile(cfgPath, []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}

	if err := a.run([]string{"--config", cfgPath}); err != nil {
		t.Fatalf("run() error = %v", err)
	}
	if m.setReals[5] != 0.7 {
		t.Errorf("SetReal calls = %v, want vr 5 = 0.7", m.setReals)
	}
}

func TestCasesCommand(t *testing.T) {
	a, _, stdout, _ := newTestApp()
	if err := a.run([]string{"cases"}); err != nil {
		t.Fatalf("run(cases) error = %v", err)
	}

	var got []struct {
		Name     string  `yaml:"name"`
		StepSize float64 `yaml:"step_size"`
		StopTime float64 `yaml:"stop_time"`
		VR       uint32  `yaml:"vr"`
		Steps    int     `yaml:"steps"`
	}
	if err := yaml.Unmarshal(stdout.Bytes(), &got); err != nil {
		t.Fatalf("invalid YAML: %v\n%s", err, stdout.String())
	}
	if len(got) != 2 {
		t.Fatalf("cases = %+v", got)
	}
	if got[0].Name != "ControlledTemperature" || got[0].VR != 47 || got[0].Steps != 100000 {
		t.Errorf("ControlledTemperature = %+v", got[0])
	}
	if got[1].Name != "TorsionBar" || got[1].StepSize != 1e-5 || got[1].Steps != 1200000 {
		t.Errorf("TorsionBar = %+v", got[1])
	}
}

func TestInspectCommand(t *testing.T) {
	a, _, stdout, _ := newTestApp()
	path := writeFMU(t, pendulumXML)

	if err := a.run([]string{"inspect", path}); err != nil {
		t.Fatalf("run(inspect) error = %v", err)
	}
	out := stdout.String()
	for _, want := range []string{
		"Model:             Pendulum",
		"Co-simulation:     Pendulum",
		"start=0 stop=1 step=0.25 tolerance=-",
		"Variables (3):",
		"omega",
		"parameter",
		"Integer",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("inspect output lacks %q:\n%s", want, out)
		}
	}

	if err := a.run([]string{"inspect"}); err == nil {
		t.Error("inspect without a path must fail")
	}
}

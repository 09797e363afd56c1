// Package dashboard renders a live terminal view of a running benchmark.
package dashboard

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	ui "github.com/gizak/termui/v3"
	"github.com/gizak/termui/v3/widgets"

	"github.com/torosent/fmibench/internal/bench"
	"github.com/torosent/fmibench/internal/metrics"
)

// RunInfo holds the benchmark parameters shown in the header.
type RunInfo struct {
	Case       string
	FMU        string
	StepSize   float64
	StopTime   float64
	VR         uint32
	Trials     int
	Steps      int // expected steps per trial
	ConfigFile string
}

// Dashboard renders a live terminal UI for trial metrics. It implements
// bench.Observer so the driver can report which trial is running.
type Dashboard struct {
	collector    *metrics.Collector
	info         RunInfo
	ctx          context.Context
	cancel       context.CancelFunc
	shutdownFunc func()
	wg           sync.WaitGroup
	mu           sync.Mutex
	current      atomic.Int64
	startTime    time.Time

	grid       *ui.Grid
	headerPara *widgets.Paragraph
	trialGauge *widgets.Gauge
	durations  *widgets.SparklineGroup
	lastPara   *widgets.Paragraph
	statsPara  *widgets.Paragraph
	helpPara   *widgets.Paragraph
}

// New initializes the terminal and builds the widgets. shutdownFunc is
// called when the user presses q; the current trial still runs to the end.
func New(collector *metrics.Collector, info RunInfo, shutdownFunc func()) (*Dashboard, error) {
	if err := ui.Init(); err != nil {
		return nil, fmt.Errorf("failed to initialize termui: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	d := &Dashboard{
		collector:    collector,
		info:         info,
		ctx:          ctx,
		cancel:       cancel,
		shutdownFunc: shutdownFunc,
		startTime:    time.Now(),
	}
	d.initWidgets()
	d.setupGrid()
	return d, nil
}

func (d *Dashboard) initWidgets() {
	d.headerPara = widgets.NewParagraph()
	d.headerPara.Title = "Benchmark"
	d.headerPara.Text = formatHeader(d.info)
	d.headerPara.BorderStyle.Fg = ui.ColorCyan

	d.trialGauge = widgets.NewGauge()
	d.trialGauge.Title = "Trials"
	d.trialGauge.BarColor = ui.ColorBlue
	d.trialGauge.BorderStyle.Fg = ui.ColorCyan
	d.trialGauge.LabelStyle = ui.NewStyle(ui.ColorWhite)

	sparkline := widgets.NewSparkline()
	sparkline.Title = "ms per trial"
	sparkline.LineColor = ui.ColorGreen
	sparkline.Data = []float64{0}
	d.durations = widgets.NewSparklineGroup(sparkline)
	d.durations.Title = "Trial Durations"
	d.durations.BorderStyle.Fg = ui.ColorCyan

	d.lastPara = widgets.NewParagraph()
	d.lastPara.Title = "Latest Trial"
	d.lastPara.Text = "Waiting for the first trial..."
	d.lastPara.BorderStyle.Fg = ui.ColorCyan

	d.statsPara = widgets.NewParagraph()
	d.statsPara.Title = "Statistics"
	d.statsPara.Text = "Waiting for data..."
	d.statsPara.BorderStyle.Fg = ui.ColorCyan

	d.helpPara = widgets.NewParagraph()
	d.helpPara.Border = false
	d.helpPara.Text = "[q](fg:yellow) stop after the current trial"
}

func (d *Dashboard) setupGrid() {
	termWidth, termHeight := ui.TerminalDimensions()

	d.grid = ui.NewGrid()
	d.grid.SetRect(0, 0, termWidth, termHeight)
	d.grid.Set(
		ui.NewRow(0.2,
			ui.NewCol(1.0, d.headerPara),
		),
		ui.NewRow(0.15,
			ui.NewCol(1.0, d.trialGauge),
		),
		ui.NewRow(0.3,
			ui.NewCol(0.6, d.durations),
			ui.NewCol(0.4, d.lastPara),
		),
		ui.NewRow(0.3,
			ui.NewCol(1.0, d.statsPara),
		),
		ui.NewRow(0.05,
			ui.NewCol(1.0, d.helpPara),
		),
	)
}

// TrialStarted implements bench.Observer.
func (d *Dashboard) TrialStarted(index int) {
	d.current.Store(int64(index) + 1)
}

// TrialFinished implements bench.Observer; results come from the collector.
func (d *Dashboard) TrialFinished(bench.TrialResult) {}

// Start begins the dashboard update loop.
func (d *Dashboard) Start() {
	d.wg.Add(1)
	go d.run()
}

// Stop stops the dashboard and restores the terminal.
func (d *Dashboard) Stop() {
	d.cancel()
	d.wg.Wait()
	ui.Close()
	time.Sleep(100 * time.Millisecond)
}

func (d *Dashboard) run() {
	defer d.wg.Done()

	ticker := time.NewTicker(250 * time.Millisecond)
	defer ticker.Stop()

	uiEvents := ui.PollEvents()

	d.update()
	d.render()

	for {
		select {
		case <-d.ctx.Done():
			for len(uiEvents) > 0 {
				<-uiEvents
			}
			return
		case e := <-uiEvents:
			select {
			case <-d.ctx.Done():
				return
			default:
			}

			switch e.ID {
			case "q", "<C-c>":
				if d.shutdownFunc != nil {
					d.shutdownFunc()
				}
				d.mu.Lock()
				d.helpPara.Text = "[stopping after the current trial...](fg:red)"
				d.mu.Unlock()
				d.render()
			case "<Resize>":
				payload := e.Payload.(ui.Resize)
				d.mu.Lock()
				d.grid.SetRect(0, 0, payload.Width, payload.Height)
				d.mu.Unlock()
				ui.Clear()
				d.render()
			}
		case <-ticker.C:
			d.update()
			d.render()
		}
	}
}

func (d *Dashboard) update() {
	d.mu.Lock()
	defer d.mu.Unlock()

	elapsed := time.Since(d.startTime)
	stats := d.collector.Stats(elapsed)

	d.trialGauge.Percent = gaugePercent(stats.Trials, d.info.Trials)
	d.trialGauge.Label = gaugeLabel(d.current.Load(), stats.Trials, d.info.Trials)

	if series := durationSeries(d.collector.Durations(), 200); len(series) > 0 {
		d.durations.Sparklines[0].Data = series
		d.durations.Title = fmt.Sprintf("Trial Durations | Min: %.0fms | Max: %.0fms", stats.MinTrialMs, stats.MaxTrialMs)
	}

	if stats.Last != nil {
		d.lastPara.Text = formatLast(*stats.Last)
	}
	d.statsPara.Text = formatStats(stats, elapsed)
}

func (d *Dashboard) render() {
	d.mu.Lock()
	defer d.mu.Unlock()

	ui.Render(d.grid)
}

func formatHeader(info RunInfo) string {
	lines := []string{
		fmt.Sprintf("Case: [%s](fg:cyan,mod:bold)", info.Case),
		fmt.Sprintf("FMU:  %s", info.FMU),
	}
	parts := []string{
		fmt.Sprintf("Step: %g s", info.StepSize),
		fmt.Sprintf("Stop: %g s", info.StopTime),
		fmt.Sprintf("VR: %d", info.VR),
		fmt.Sprintf("Trials: %d", info.Trials),
	}
	if info.Steps > 0 {
		parts = append(parts, fmt.Sprintf("Steps/trial: %d", info.Steps))
	}
	if info.ConfigFile != "" {
		parts = append(parts, fmt.Sprintf("Config: %s", info.ConfigFile))
	}
	lines = append(lines, strings.Join(parts, " | "))
	return strings.Join(lines, "\n")
}

func gaugePercent(done int64, total int) int {
	if total <= 0 || done <= 0 {
		return 0
	}
	pct := int(done * 100 / int64(total))
	if pct > 100 {
		pct = 100
	}
	return pct
}

func gaugeLabel(current, done int64, total int) string {
	if done >= int64(total) {
		return fmt.Sprintf("%d/%d trials done", done, total)
	}
	return fmt.Sprintf("running trial %d of %d (%d done)", current, total, done)
}

// durationSeries converts durations to milliseconds, keeping at most limit
// of the most recent ones.
func durationSeries(durations []time.Duration, limit int) []float64 {
	if limit > 0 && len(durations) > limit {
		durations = durations[len(durations)-limit:]
	}
	series := make([]float64, len(durations))
	for i, d := range durations {
		series[i] = float64(d) / float64(time.Millisecond)
	}
	return series
}

func formatLast(r bench.TrialResult) string {
	return fmt.Sprintf(
		"Instance: %s\nSteps:    %d\nSum:      %g\nElapsed:  %dms",
		r.Instance,
		r.Steps,
		r.Sum,
		r.ElapsedMillis(),
	)
}

func formatStats(stats metrics.Stats, elapsed time.Duration) string {
	return fmt.Sprintf(
		"Elapsed:        %s\nCompleted:      %d trials, %d steps\nSteps/sec:      %.0f\nMin/Mean/Max:   %.1f / %.1f / %.1f ms\nP50/P90/P99:    %.1f / %.1f / %.1f ms",
		elapsed.Round(time.Second),
		stats.Trials,
		stats.TotalSteps,
		stats.StepsPerSec,
		stats.MinTrialMs,
		stats.MeanTrialMs,
		stats.MaxTrialMs,
		stats.P50TrialMs,
		stats.P90TrialMs,
		stats.P99TrialMs,
	)
}

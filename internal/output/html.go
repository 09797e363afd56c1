package output

import (
	"fmt"
	"html/template"
	"io"
	"time"
)

// HTMLReportData contains all data needed for the HTML report template.
type HTMLReportData struct {
	GeneratedAt string
	Report      Report
	Bars        []htmlBar
	ChartHeight int
	Failed      int
}

type htmlBar struct {
	X, Y, Width, Height int
	Label               string
}

const (
	chartHeight = 160
	barWidth    = 24
	barGap      = 8
)

// GenerateHTMLReport writes a standalone HTML page for r with an inline SVG
// chart of trial durations.
func GenerateHTMLReport(w io.Writer, r Report) error {
	data := HTMLReportData{
		GeneratedAt: time.Now().Format(time.RFC3339),
		Report:      r,
		Bars:        trialBars(r.Trials),
		ChartHeight: chartHeight,
	}
	for _, t := range r.Thresholds {
		if !t.Pass {
			data.Failed++
		}
	}

	tmpl, err := template.New("report").Funcs(template.FuncMap{
		"formatDuration": func(d time.Duration) string {
			return d.String()
		},
		"formatFloat": func(f float64) string {
			return fmt.Sprintf("%.2f", f)
		},
		"repr": func(f Float) string {
			return FormatFloat(float64(f))
		},
		"chartWidth": func(n int) int {
			return n*(barWidth+barGap) + barGap
		},
	}).Parse(htmlTemplate)
	if err != nil {
		return fmt.Errorf("failed to parse template: %w", err)
	}

	if err := tmpl.Execute(w, data); err != nil {
		return fmt.Errorf("failed to execute template: %w", err)
	}
	return nil
}

func trialBars(trials []TrialRecord) []htmlBar {
	var longest int64
	for _, t := range trials {
		if t.ElapsedMs > longest {
			longest = t.ElapsedMs
		}
	}
	bars := make([]htmlBar, len(trials))
	for i, t := range trials {
		h := 1
		if longest > 0 {
			h = max(1, int(t.ElapsedMs*chartHeight/longest))
		}
		bars[i] = htmlBar{
			X:      barGap + i*(barWidth+barGap),
			Y:      chartHeight - h,
			Width:  barWidth,
			Height: h,
			Label:  fmt.Sprintf("%s: %dms", t.Instance, t.ElapsedMs),
		}
	}
	return bars
}

const htmlTemplate = `<!DOCTYPE html>
<html lang="en">
<head>
    <meta charset="UTF-8">
    <meta name="viewport" content="width=device-width, initial-scale=1.0">
    <title>fmibench {{.Report.Case}} Report</title>
    <style>
        body { font-family: -apple-system, BlinkMacSystemFont, 'Segoe UI', Roboto, Arial, sans-serif; background: #f5f7fa; color: #2c3e50; padding: 20px; }
        .container { max-width: 1100px; margin: 0 auto; background: white; border-radius: 8px; box-shadow: 0 2px 8px rgba(0,0,0,0.1); }
        header { background: linear-gradient(135deg, #667eea 0%, #764ba2 100%); color: white; padding: 24px 32px; border-radius: 8px 8px 0 0; }
        header .meta { opacity: 0.9; font-size: 0.9rem; }
        .content { padding: 32px; }
        .grid { display: grid; grid-template-columns: repeat(auto-fit, minmax(200px, 1fr)); gap: 16px; margin-bottom: 32px; }
        .card { background: #f8f9fa; border-radius: 8px; padding: 16px; border-left: 4px solid #667eea; }
        .card h3 { font-size: 0.8rem; color: #6c757d; text-transform: uppercase; margin: 0 0 8px; }
        .card .value { font-size: 1.6rem; font-weight: bold; }
        .card.success { border-left-color: #10b981; }
        .card.error { border-left-color: #ef4444; }
        table { width: 100%; border-collapse: collapse; margin-bottom: 32px; }
        th, td { text-align: left; padding: 8px 12px; border-bottom: 1px solid #e5e7eb; }
        th { background: #f8f9fa; }
        .pass { color: #10b981; }
        .fail { color: #ef4444; }
        svg rect { fill: #667eea; }
    </style>
</head>
<body>
<div class="container">
    <header>
        <h1>{{.Report.Case}}</h1>
        <div class="meta">Run {{.Report.RunID}} &middot; {{.Report.FMU}} &middot; generated {{.GeneratedAt}}</div>
    </header>
    <div class="content">
        <div class="grid">
            <div class="card"><h3>Trials</h3><div class="value">{{.Report.Stats.Trials}}</div></div>
            <div class="card"><h3>Steps per trial</h3><div class="value">{{.Report.Stats.MinSteps}}</div></div>
            <div class="card"><h3>Mean trial</h3><div class="value">{{formatDuration .Report.Stats.MeanTrial}}</div></div>
            <div class="card"><h3>P99 trial</h3><div class="value">{{formatDuration .Report.Stats.P99Trial}}</div></div>
            <div class="card"><h3>Steps/sec</h3><div class="value">{{formatFloat .Report.Stats.StepsPerSec}}</div></div>
            {{if .Report.Thresholds}}
            <div class="card {{if .Failed}}error{{else}}success{{end}}"><h3>Thresholds failed</h3><div class="value">{{.Failed}}</div></div>
            {{end}}
        </div>

        <h2>Trial durations</h2>
        <svg width="{{chartWidth (len .Bars)}}" height="{{.ChartHeight}}" role="img">
            {{range .Bars}}<rect x="{{.X}}" y="{{.Y}}" width="{{.Width}}" height="{{.Height}}"><title>{{.Label}}</title></rect>
            {{end}}
        </svg>

        <h2>Trials</h2>
        <table>
            <thead><tr><th>#</th><th>Instance</th><th>Sum</th><th>Steps</th><th>Elapsed</th></tr></thead>
            <tbody>
            {{range .Report.Trials}}<tr><td>{{.Index}}</td><td>{{.Instance}}</td><td>{{repr .Sum}}</td><td>{{.Steps}}</td><td>{{.ElapsedMs}}ms</td></tr>
            {{end}}
            </tbody>
        </table>

        {{if .Report.Thresholds}}
        <h2>Thresholds</h2>
        <table>
            <thead><tr><th>Threshold</th><th>Actual</th><th>Result</th></tr></thead>
            <tbody>
            {{range .Report.Thresholds}}<tr><td>{{.Threshold}}</td><td>{{formatFloat .Actual}}</td><td class="{{if .Pass}}pass{{else}}fail{{end}}">{{if .Pass}}pass{{else}}fail{{end}}</td></tr>
            {{end}}
            </tbody>
        </table>
        {{end}}
    </div>
</div>
</body>
</html>
`

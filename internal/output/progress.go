package output

import (
	"fmt"
	"io"
	"sync/atomic"
	"time"

	"github.com/torosent/fmibench/internal/bench"
	"github.com/torosent/fmibench/internal/metrics"
)

// ProgressReporter displays real-time progress updates.
type ProgressReporter struct {
	collector *metrics.Collector
	total     int
	current   atomic.Int64
	ticker    *time.Ticker
	done      chan struct{}
	finished  chan struct{}
	writer    io.Writer
	active    int32
	start     time.Time
}

// NewProgressReporter creates a progress reporter for a run of total trials
// that updates at the given interval.
func NewProgressReporter(collector *metrics.Collector, total int, interval time.Duration, writer io.Writer) *ProgressReporter {
	if writer == nil {
		writer = io.Discard
	}
	return &ProgressReporter{
		collector: collector,
		total:     total,
		ticker:    time.NewTicker(interval),
		done:      make(chan struct{}),
		finished:  make(chan struct{}),
		writer:    writer,
		start:     time.Now(),
	}
}

// Start begins displaying progress updates in a background goroutine.
func (p *ProgressReporter) Start() {
	if !atomic.CompareAndSwapInt32(&p.active, 0, 1) {
		return // already running
	}
	go p.run()
}

// Stop halts progress updates and terminates the progress line.
func (p *ProgressReporter) Stop() {
	if atomic.CompareAndSwapInt32(&p.active, 1, 0) {
		close(p.done)
		p.ticker.Stop()
		<-p.finished
		fmt.Fprintln(p.writer)
	}
}

// TrialStarted implements bench.Observer.
func (p *ProgressReporter) TrialStarted(index int) {
	p.current.Store(int64(index) + 1)
}

// TrialFinished implements bench.Observer; results are read from the collector.
func (p *ProgressReporter) TrialFinished(bench.TrialResult) {}

func (p *ProgressReporter) run() {
	defer close(p.finished)
	for {
		select {
		case <-p.ticker.C:
			fmt.Fprint(p.writer, p.line(time.Since(p.start)))
		case <-p.done:
			return
		}
	}
}

func (p *ProgressReporter) line(elapsed time.Duration) string {
	stats := p.collector.Stats(elapsed)
	line := fmt.Sprintf("\rTrial %d/%d | Done: %d | Elapsed: %s",
		p.current.Load(), p.total, stats.Trials, elapsed.Truncate(time.Second))
	if stats.Last != nil {
		line += fmt.Sprintf(" | Last: %dms | Steps/sec: %.0f", stats.Last.ElapsedMillis(), stats.StepsPerSec)
	}
	return line
}

package bench

import (
	"time"

	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
	"go.uber.org/zap"
)

// Slave abstracts one FMI co-simulation instance as the driver uses it.
type Slave interface {
	SetupExperiment(tolerance, startTime, stopTime float64) error
	EnterInitializationMode() error
	ExitInitializationMode() error
	SetReal(vr uint32, value float64) error
	DoStep(currentTime, stepSize float64) error
	GetReal(vr uint32) (float64, error)
	Terminate() error
	Free() error
}

// Model is an opened FMU from which slaves are instantiated. Close releases
// the model and removes its unpacked working directory.
type Model interface {
	Instantiate(name string) (Slave, error)
	Close() error
}

// Opener opens the FMU archive at path, unpacking it once for the whole run.
type Opener interface {
	Open(path string) (Model, error)
}

// OpenerFunc adapts a function to Opener.
type OpenerFunc func(path string) (Model, error)

// Open calls f(path).
func (f OpenerFunc) Open(path string) (Model, error) { return f(path) }

// Observer is notified as trials progress. Calls happen on the driver's
// goroutine, in trial order.
type Observer interface {
	TrialStarted(index int)
	TrialFinished(result TrialResult)
}

// Options configure Run.
type Options struct {
	Trials   int              // number of sequential trials (default 1)
	Opener   Opener           // FMU opener (required)
	Observer Observer         // optional progress/result sink
	Tracer   trace.Tracer     // optional; no-op when nil
	Logger   *zap.Logger      // optional; no-op when nil
	Now      func() time.Time // optional clock injection for tests
}

func (o *Options) normalize() {
	if o.Trials <= 0 {
		o.Trials = 1
	}
	if o.Observer == nil {
		o.Observer = nopObserver{}
	}
	if o.Tracer == nil {
		o.Tracer = noop.NewTracerProvider().Tracer("fmibench")
	}
	if o.Logger == nil {
		o.Logger = zap.NewNop()
	}
	if o.Now == nil {
		o.Now = time.Now
	}
}

type nopObserver struct{}

func (nopObserver) TrialStarted(int)          {}
func (nopObserver) TrialFinished(TrialResult) {}

type multiObserver []Observer

// Observers fans trial notifications out to every non-nil observer in order.
func Observers(observers ...Observer) Observer {
	var m multiObserver
	for _, o := range observers {
		if o != nil {
			m = append(m, o)
		}
	}
	return m
}

func (m multiObserver) TrialStarted(index int) {
	for _, o := range m {
		o.TrialStarted(index)
	}
}

func (m multiObserver) TrialFinished(result TrialResult) {
	for _, o := range m {
		o.TrialFinished(result)
	}
}

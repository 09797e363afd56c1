package output

import (
	"fmt"
	"io"

	"github.com/torosent/fmibench/internal/bench"
)

// PrintTrial writes the two result lines of a trial:
//
//	sum=<sum>, iter=<steps>
//	<elapsed>ms
func PrintTrial(w io.Writer, r bench.TrialResult) {
	fmt.Fprintf(w, "sum=%s, iter=%d\n", FormatFloat(r.Sum), r.Steps)
	fmt.Fprintf(w, "%dms\n", r.ElapsedMillis())
}

// TrialPrinter is a bench.Observer that prints every finished trial.
type TrialPrinter struct {
	w io.Writer
}

// NewTrialPrinter returns a TrialPrinter writing to w.
func NewTrialPrinter(w io.Writer) *TrialPrinter {
	return &TrialPrinter{w: w}
}

func (p *TrialPrinter) TrialStarted(int) {}

func (p *TrialPrinter) TrialFinished(r bench.TrialResult) {
	PrintTrial(p.w, r)
}

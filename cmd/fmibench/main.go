package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/torosent/fmibench/internal/bench"
	"github.com/torosent/fmibench/internal/config"
	"github.com/torosent/fmibench/internal/fmi"
)

// errThresholdsFailed is returned after the report is printed when at least
// one threshold did not hold.
var errThresholdsFailed = errors.New("one or more thresholds failed")

// app carries the command's I/O and the FMU opener, which tests replace.
type app struct {
	stdout io.Writer
	stderr io.Writer
	open   func(path string, opts fmi.Options) (bench.Model, error)
}

func main() {
	a := &app{stdout: os.Stdout, stderr: os.Stderr, open: openUnit}
	if err := a.run(os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func (a *app) run(args []string) error {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	root := a.newRootCmd()
	root.SetArgs(args)
	return root.ExecuteContext(ctx)
}

func (a *app) newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "fmibench",
		Short: "Benchmark fixed-step co-simulation of FMI 2.0 FMUs",
		Long: `fmibench loads an FMU once and runs repeated fixed-step trials, each
with a fresh instance, printing the accumulated output and the time spent
stepping. Without a subcommand it behaves like 'fmibench run'.`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE:          a.runBenchmark,
	}
	config.RegisterFlags(root)
	root.SetOut(a.stdout)
	root.SetErr(a.stderr)

	runCmd := &cobra.Command{
		Use:   "run",
		Short: "Run the selected benchmark case",
		Args:  cobra.NoArgs,
		RunE:  a.runBenchmark,
	}
	config.RegisterFlags(runCmd)

	root.AddCommand(runCmd, a.newCasesCmd(), a.newInspectCmd())
	return root
}

package main

import (
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/torosent/fmibench/internal/fmu"
)

func (a *app) newInspectCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "inspect PATH",
		Short: "Print the model description of an FMU",
		Args:  cobra.ExactArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			md, err := fmu.ReadModelDescription(args[0])
			if err != nil {
				return err
			}
			return printModelDescription(a.stdout, md)
		},
	}
}

func printModelDescription(w io.Writer, md *fmu.ModelDescription) error {
	fmt.Fprintf(w, "Model:             %s\n", md.ModelName)
	fmt.Fprintf(w, "FMI version:       %s\n", md.FMIVersion)
	fmt.Fprintf(w, "GUID:              %s\n", md.GUID)
	if md.GenerationTool != "" {
		fmt.Fprintf(w, "Generation tool:   %s\n", md.GenerationTool)
	}
	if md.SupportsCoSimulation() {
		fmt.Fprintf(w, "Co-simulation:     %s\n", md.CoSimulation.ModelIdentifier)
	} else {
		fmt.Fprintln(w, "Co-simulation:     not supported")
	}
	if de := md.DefaultExperiment; de != nil {
		fmt.Fprintf(w, "Default experiment: start=%s stop=%s step=%s tolerance=%s\n",
			optFloat(de.StartTime), optFloat(de.StopTime), optFloat(de.StepSize), optFloat(de.Tolerance))
	}

	fmt.Fprintf(w, "\nVariables (%d):\n", len(md.ModelVariables))
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "  VR\tNAME\tTYPE\tCAUSALITY\tVARIABILITY\tSTART")
	for _, v := range md.ModelVariables {
		fmt.Fprintf(tw, "  %d\t%s\t%s\t%s\t%s\t%s\n",
			v.ValueReference, v.Name, v.Type(), v.EffectiveCausality(), v.Variability, startValue(v))
	}
	return tw.Flush()
}

func optFloat(f *float64) string {
	if f == nil {
		return "-"
	}
	return fmt.Sprintf("%g", *f)
}

func startValue(v fmu.ScalarVariable) string {
	switch {
	case v.Real != nil:
		return optFloat(v.Real.Start)
	case v.Integer != nil && v.Integer.Start != "":
		return v.Integer.Start
	case v.Boolean != nil && v.Boolean.Start != "":
		return v.Boolean.Start
	case v.String != nil && v.String.Start != "":
		return v.String.Start
	case v.Enumeration != nil && v.Enumeration.Start != "":
		return v.Enumeration.Start
	default:
		return "-"
	}
}

package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/torosent/fmibench/internal/bench"
	"github.com/torosent/fmibench/internal/config"
)

type caseView struct {
	config.Case `yaml:",inline"`
	Steps       int `yaml:"steps"`
}

func (a *app) newCasesCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "cases",
		Short: "List the known benchmark cases as YAML",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.NewLoader().Load(cmd.Flags())
			if err != nil {
				return err
			}
			return writeCases(a, cfg.Cases)
		},
	}
	cmd.Flags().String("config", "", "Path to configuration file adding cases")
	return cmd
}

func writeCases(a *app, table config.Table) error {
	views := make([]caseView, 0, table.Len())
	for _, c := range table.Cases() {
		views = append(views, caseView{Case: c, Steps: bench.CountSteps(c.StepSize, c.StopTime)})
	}
	enc := yaml.NewEncoder(a.stdout)
	enc.SetIndent(2)
	if err := enc.Encode(views); err != nil {
		return fmt.Errorf("encode cases: %w", err)
	}
	return enc.Close()
}

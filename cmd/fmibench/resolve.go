package main

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/torosent/fmibench/internal/bench"
	"github.com/torosent/fmibench/internal/config"
	"github.com/torosent/fmibench/internal/fmu"
)

// trialConfig turns a configured case into the driver's immutable trial
// description, resolving variable names through the model description.
func trialConfig(c config.Case, tolerance float64, md *fmu.ModelDescription, logger *zap.Logger) (bench.TrialConfig, error) {
	tc := bench.TrialConfig{
		Name:           c.Name,
		FMUPath:        c.FMU,
		StepSize:       c.StepSize,
		StopTime:       c.StopTime,
		ValueReference: c.ValueReference,
		Tolerance:      tolerance,
	}

	if !md.SupportsCoSimulation() {
		return tc, fmt.Errorf("%s: model %q has no co-simulation interface", c.FMU, md.ModelName)
	}

	if c.Variable != "" {
		v, err := realVariable(md, c.Variable)
		if err != nil {
			return tc, fmt.Errorf("variable: %w", err)
		}
		tc.ValueReference = v.ValueReference
	} else if _, ok := md.VariableByReference(c.ValueReference, "Real"); !ok {
		logger.Warn("value reference is not a declared Real variable",
			zap.String("case", c.Name),
			zap.Uint32("vr", c.ValueReference),
		)
	}

	for _, sv := range c.StartValues {
		v, err := realVariable(md, sv.Name)
		if err != nil {
			return tc, fmt.Errorf("start value: %w", err)
		}
		switch v.EffectiveCausality() {
		case "input", "parameter":
		default:
			logger.Warn("start value set on a variable that is neither input nor parameter",
				zap.String("variable", v.Name),
				zap.String("causality", v.EffectiveCausality()),
			)
		}
		tc.StartValues = append(tc.StartValues, bench.StartValue{ValueReference: v.ValueReference, Value: sv.Value})
	}
	return tc, nil
}

func realVariable(md *fmu.ModelDescription, name string) (fmu.ScalarVariable, error) {
	v, ok := md.Variable(name)
	if !ok {
		return v, fmt.Errorf("%q is not declared in %s", name, fmu.ModelDescriptionFile)
	}
	if v.Type() != "Real" {
		return v, fmt.Errorf("%q is %s, want Real", name, v.Type())
	}
	return v, nil
}

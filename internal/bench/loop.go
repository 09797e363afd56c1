package bench

import "fmt"

// stepLoop advances the slave from t=0 in fixed steps while
// t <= stopTime-stepSize, reading vr after every step. The comparison is
// done in float64 exactly as written so accumulated rounding decides the
// final step the same way every time.
func stepLoop(s Slave, stepSize, stopTime float64, vr uint32) (sum float64, steps int, err error) {
	if !(stepSize > 0) {
		return 0, 0, fmt.Errorf("step size must be positive, got %v", stepSize)
	}
	t := 0.0
	for t <= stopTime-stepSize {
		if err := s.DoStep(t, stepSize); err != nil {
			return sum, steps, fmt.Errorf("do step at t=%v: %w", t, err)
		}
		v, err := s.GetReal(vr)
		if err != nil {
			return sum, steps, fmt.Errorf("get real %d at t=%v: %w", vr, t, err)
		}
		sum += v
		t += stepSize
		steps++
	}
	return sum, steps, nil
}

// CountSteps reports how many steps stepLoop performs for the given step
// size and stop time. It returns 0 for a non-positive step size.
func CountSteps(stepSize, stopTime float64) int {
	if !(stepSize > 0) {
		return 0
	}
	steps := 0
	for t := 0.0; t <= stopTime-stepSize; t += stepSize {
		steps++
	}
	return steps
}

package fmi

import (
	"fmt"
	"sync"
)

// binding is the set of native FMI 2.0 co-simulation calls an Instance makes.
// The purego-backed library implements it; tests substitute a fake.
type binding interface {
	version() string
	typesPlatform() string
	instantiate(name, guid, resourceURI string, loggingOn bool) uintptr
	setupExperiment(c uintptr, toleranceDefined bool, tolerance, startTime float64, stopTimeDefined bool, stopTime float64) Status
	enterInitializationMode(c uintptr) Status
	exitInitializationMode(c uintptr) Status
	setReal(c uintptr, vr []uint32, value []float64) Status
	getReal(c uintptr, vr []uint32, value []float64) Status
	doStep(c uintptr, currentTime, stepSize float64, noSetPrior bool) Status
	terminate(c uintptr) Status
	freeInstance(c uintptr)
	close() error
}

// Instance is one co-simulation slave. It is not safe for concurrent use;
// every call must come from the goroutine that owns the trial.
type Instance struct {
	name  string
	unit  *Unit
	lib   binding
	c     uintptr
	state State
	fatal bool

	// scratch buffers keep GetReal allocation free inside the step loop
	vr  [1]uint32
	val [1]float64

	releaseOnce sync.Once
}

// Name returns the instance name passed to fmi2Instantiate.
func (i *Instance) Name() string { return i.name }

// State returns the current lifecycle state.
func (i *Instance) State() State { return i.state }

func (i *Instance) require(op string, allowed ...State) error {
	for _, s := range allowed {
		if i.state == s {
			return nil
		}
	}
	return fmt.Errorf("%w: %s called on %s instance %q", ErrInvalidState, op, i.state, i.name)
}

func (i *Instance) check(fn string, status Status) error {
	if status == StatusFatal {
		i.fatal = true
	}
	if status.Succeeded() {
		return nil
	}
	return &StatusError{Func: fn, Instance: i.name, Status: status}
}

// SetupExperiment informs the slave about the experiment. A tolerance <= 0
// leaves the tolerance undefined; a stop time <= start time leaves the stop
// time undefined.
func (i *Instance) SetupExperiment(tolerance, startTime, stopTime float64) error {
	if err := i.require("fmi2SetupExperiment", StateInstantiated); err != nil {
		return err
	}
	status := i.lib.setupExperiment(i.c, tolerance > 0, tolerance, startTime, stopTime > startTime, stopTime)
	return i.check("fmi2SetupExperiment", status)
}

// EnterInitializationMode moves the slave into initialization mode.
func (i *Instance) EnterInitializationMode() error {
	if err := i.require("fmi2EnterInitializationMode", StateInstantiated); err != nil {
		return err
	}
	if err := i.check("fmi2EnterInitializationMode", i.lib.enterInitializationMode(i.c)); err != nil {
		return err
	}
	i.state = StateInitializing
	return nil
}

// ExitInitializationMode leaves initialization mode; the slave is ready to step.
func (i *Instance) ExitInitializationMode() error {
	if err := i.require("fmi2ExitInitializationMode", StateInitializing); err != nil {
		return err
	}
	if err := i.check("fmi2ExitInitializationMode", i.lib.exitInitializationMode(i.c)); err != nil {
		return err
	}
	i.state = StateInitialized
	return nil
}

// SetReal writes one real variable.
func (i *Instance) SetReal(vr uint32, value float64) error {
	if err := i.require("fmi2SetReal", StateInstantiated, StateInitializing, StateInitialized, StateStepping); err != nil {
		return err
	}
	i.vr[0] = vr
	i.val[0] = value
	return i.check("fmi2SetReal", i.lib.setReal(i.c, i.vr[:], i.val[:]))
}

// DoStep advances the slave from currentTime by stepSize.
func (i *Instance) DoStep(currentTime, stepSize float64) error {
	if err := i.require("fmi2DoStep", StateInitialized, StateStepping); err != nil {
		return err
	}
	i.state = StateStepping
	return i.check("fmi2DoStep", i.lib.doStep(i.c, currentTime, stepSize, true))
}

// GetReal reads one real variable.
func (i *Instance) GetReal(vr uint32) (float64, error) {
	if err := i.require("fmi2GetReal", StateInitializing, StateInitialized, StateStepping, StateTerminated); err != nil {
		return 0, err
	}
	i.vr[0] = vr
	if err := i.check("fmi2GetReal", i.lib.getReal(i.c, i.vr[:], i.val[:])); err != nil {
		return 0, err
	}
	return i.val[0], nil
}

// Terminate ends the simulation run of the slave.
func (i *Instance) Terminate() error {
	if err := i.require("fmi2Terminate", StateInitialized, StateStepping); err != nil {
		return err
	}
	i.state = StateTerminated
	return i.check("fmi2Terminate", i.lib.terminate(i.c))
}

// Free releases the native instance. It is legal from every state and
// idempotent. After fmi2Fatal the native call is skipped since the FMU
// state can no longer be trusted.
//
// fmi2FreeInstance reports no status, so Free always returns nil.
func (i *Instance) Free() error {
	i.releaseOnce.Do(func() {
		if i.c != 0 && !i.fatal {
			i.lib.freeInstance(i.c)
		}
		i.c = 0
		i.state = StateReleased
		if i.unit != nil {
			i.unit.forget(i)
		}
	})
	return nil
}

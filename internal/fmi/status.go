package fmi

import (
	"errors"
	"fmt"
)

// Status mirrors fmi2Status.
type Status int32

const (
	StatusOK Status = iota
	StatusWarning
	StatusDiscard
	StatusErr
	StatusFatal
	StatusPending
)

func (s Status) String() string {
	switch s {
	case StatusOK:
		return "fmi2OK"
	case StatusWarning:
		return "fmi2Warning"
	case StatusDiscard:
		return "fmi2Discard"
	case StatusErr:
		return "fmi2Error"
	case StatusFatal:
		return "fmi2Fatal"
	case StatusPending:
		return "fmi2Pending"
	default:
		return fmt.Sprintf("fmi2Status(%d)", int32(s))
	}
}

// Succeeded reports whether a call returning s may be treated as successful.
// Warnings are logged by the FMU itself and do not fail the call.
func (s Status) Succeeded() bool {
	return s == StatusOK || s == StatusWarning
}

var (
	// ErrCallFailed matches every StatusError via errors.Is.
	ErrCallFailed = errors.New("fmi: call failed")
	// ErrInvalidState is returned when an instance operation is called out of
	// lifecycle order.
	ErrInvalidState = errors.New("fmi: invalid instance state")
	// ErrUnsupportedPlatform is returned where native FMU libraries cannot be loaded.
	ErrUnsupportedPlatform = errors.New("fmi: loading FMU binaries is not supported on this platform")
	// ErrNotCoSimulation is returned for FMUs without a co-simulation interface.
	ErrNotCoSimulation = errors.New("fmi: FMU does not support co-simulation")
	// ErrSingleInstance is returned when a model that can only be instantiated
	// once per process already has a live instance.
	ErrSingleInstance = errors.New("fmi: model can only be instantiated once per process")
	// ErrClosed is returned when instantiating from a closed unit.
	ErrClosed = errors.New("fmi: unit is closed")
)

// StatusError reports a non-successful fmi2Status returned by a native call.
type StatusError struct {
	Func     string
	Instance string
	Status   Status
}

func (e *StatusError) Error() string {
	if e.Instance == "" {
		return fmt.Sprintf("%s returned %s", e.Func, e.Status)
	}
	return fmt.Sprintf("%s(%s) returned %s", e.Func, e.Instance, e.Status)
}

func (e *StatusError) Is(target error) bool {
	return target == ErrCallFailed
}

// State is the lifecycle position of an Instance.
type State int

const (
	StateCreated State = iota
	StateInstantiated
	StateInitializing
	StateInitialized
	StateStepping
	StateTerminated
	StateReleased
)

func (s State) String() string {
	switch s {
	case StateCreated:
		return "created"
	case StateInstantiated:
		return "instantiated"
	case StateInitializing:
		return "initializing"
	case StateInitialized:
		return "initialized"
	case StateStepping:
		return "stepping"
	case StateTerminated:
		return "terminated"
	case StateReleased:
		return "released"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

//go:build darwin || linux

package fmi

import (
	"fmt"
	"runtime"
	"sync"
	"unsafe"

	"github.com/ebitengine/purego"
)

// callbackFunctions mirrors fmi2CallbackFunctions. FMUs may keep the pointer
// passed to fmi2Instantiate, so the single instance lives in a package
// variable for the life of the process.
type callbackFunctions struct {
	logger               uintptr
	allocateMemory       uintptr
	freeMemory           uintptr
	stepFinished         uintptr
	componentEnvironment uintptr
}

var (
	callbacks     callbackFunctions
	callbacksOnce sync.Once
	callbacksErr  error
)

func libcPath() string {
	if runtime.GOOS == "darwin" {
		return "/usr/lib/libSystem.B.dylib"
	}
	return "libc.so.6"
}

func initCallbacks() error {
	callbacksOnce.Do(func() {
		libc, err := purego.Dlopen(libcPath(), purego.RTLD_NOW|purego.RTLD_GLOBAL)
		if err != nil {
			callbacksErr = fmt.Errorf("open libc: %w", err)
			return
		}
		calloc, err := purego.Dlsym(libc, "calloc")
		if err != nil {
			callbacksErr = fmt.Errorf("resolve calloc: %w", err)
			return
		}
		free, err := purego.Dlsym(libc, "free")
		if err != nil {
			callbacksErr = fmt.Errorf("resolve free: %w", err)
			return
		}
		callbacks = callbackFunctions{
			// The C signature is variadic; the fixed arguments are all we read.
			logger: purego.NewCallback(func(env, instanceName, status, category, message uintptr) {
				logMessage(cString(instanceName), Status(int32(status)), cString(category), cString(message))
			}),
			allocateMemory: calloc,
			freeMemory:     free,
		}
	})
	return callbacksErr
}

// cString copies a NUL terminated C string.
func cString(p uintptr) string {
	if p == 0 {
		return ""
	}
	ptr := unsafe.Pointer(p)
	n := 0
	for *(*byte)(unsafe.Add(ptr, n)) != 0 {
		n++
	}
	return string(unsafe.Slice((*byte)(ptr), n))
}

func cBool(b bool) int32 {
	if b {
		return 1
	}
	return 0
}

// library is a dlopen'ed FMI 2.0 co-simulation binary.
type library struct {
	path   string
	handle uintptr

	fmi2GetVersion              func() string
	fmi2GetTypesPlatform        func() string
	fmi2Instantiate             func(instanceName string, fmuType int32, guid, resourceLocation string, functions *callbackFunctions, visible, loggingOn int32) uintptr
	fmi2SetupExperiment         func(c uintptr, toleranceDefined int32, tolerance, startTime float64, stopTimeDefined int32, stopTime float64) int32
	fmi2EnterInitializationMode func(c uintptr) int32
	fmi2ExitInitializationMode  func(c uintptr) int32
	fmi2SetReal                 func(c uintptr, vr *uint32, nvr uintptr, value *float64) int32
	fmi2GetReal                 func(c uintptr, vr *uint32, nvr uintptr, value *float64) int32
	fmi2DoStep                  func(c uintptr, currentCommunicationPoint, communicationStepSize float64, noSetFMUStatePriorToCurrentPoint int32) int32
	fmi2Terminate               func(c uintptr) int32
	fmi2FreeInstance            func(c uintptr)
}

func openLibrary(path string) (binding, error) {
	if err := initCallbacks(); err != nil {
		return nil, err
	}
	handle, err := purego.Dlopen(path, purego.RTLD_NOW|purego.RTLD_LOCAL)
	if err != nil {
		return nil, err
	}
	l := &library{path: path, handle: handle}

	symbols := []struct {
		fptr any
		name string
	}{
		{&l.fmi2GetVersion, "fmi2GetVersion"},
		{&l.fmi2GetTypesPlatform, "fmi2GetTypesPlatform"},
		{&l.fmi2Instantiate, "fmi2Instantiate"},
		{&l.fmi2SetupExperiment, "fmi2SetupExperiment"},
		{&l.fmi2EnterInitializationMode, "fmi2EnterInitializationMode"},
		{&l.fmi2ExitInitializationMode, "fmi2ExitInitializationMode"},
		{&l.fmi2SetReal, "fmi2SetReal"},
		{&l.fmi2GetReal, "fmi2GetReal"},
		{&l.fmi2DoStep, "fmi2DoStep"},
		{&l.fmi2Terminate, "fmi2Terminate"},
		{&l.fmi2FreeInstance, "fmi2FreeInstance"},
	}
	for _, s := range symbols {
		sym, err := purego.Dlsym(handle, s.name)
		if err != nil {
			_ = purego.Dlclose(handle)
			return nil, fmt.Errorf("resolve %s: %w", s.name, err)
		}
		purego.RegisterFunc(s.fptr, sym)
	}
	return l, nil
}

func (l *library) version() string       { return l.fmi2GetVersion() }
func (l *library) typesPlatform() string { return l.fmi2GetTypesPlatform() }

func (l *library) instantiate(name, guid, resourceURI string, loggingOn bool) uintptr {
	return l.fmi2Instantiate(name, fmi2CoSimulation, guid, resourceURI, &callbacks, 0, cBool(loggingOn))
}

func (l *library) setupExperiment(c uintptr, toleranceDefined bool, tolerance, startTime float64, stopTimeDefined bool, stopTime float64) Status {
	return Status(l.fmi2SetupExperiment(c, cBool(toleranceDefined), tolerance, startTime, cBool(stopTimeDefined), stopTime))
}

func (l *library) enterInitializationMode(c uintptr) Status {
	return Status(l.fmi2EnterInitializationMode(c))
}

func (l *library) exitInitializationMode(c uintptr) Status {
	return Status(l.fmi2ExitInitializationMode(c))
}

func (l *library) setReal(c uintptr, vr []uint32, value []float64) Status {
	if len(vr) == 0 {
		return StatusOK
	}
	return Status(l.fmi2SetReal(c, &vr[0], uintptr(len(vr)), &value[0]))
}

func (l *library) getReal(c uintptr, vr []uint32, value []float64) Status {
	if len(vr) == 0 {
		return StatusOK
	}
	return Status(l.fmi2GetReal(c, &vr[0], uintptr(len(vr)), &value[0]))
}

func (l *library) doStep(c uintptr, currentTime, stepSize float64, noSetPrior bool) Status {
	return Status(l.fmi2DoStep(c, currentTime, stepSize, cBool(noSetPrior)))
}

func (l *library) terminate(c uintptr) Status {
	return Status(l.fmi2Terminate(c))
}

func (l *library) freeInstance(c uintptr) {
	l.fmi2FreeInstance(c)
}

func (l *library) close() error {
	if l.handle == 0 {
		return nil
	}
	err := purego.Dlclose(l.handle)
	l.handle = 0
	return err
}

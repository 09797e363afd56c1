package fmi

import (
	"errors"
	"fmt"
	"os"
	"sync"

	"go.uber.org/zap"

	"github.com/torosent/fmibench/internal/fmu"
)

// fmi2CoSimulation is the fmi2Type value passed to fmi2Instantiate.
const fmi2CoSimulation = 1

// Options configure how a Unit is opened.
type Options struct {
	// WorkDir is the parent directory of the extraction directory. Empty
	// means the OS temp dir.
	WorkDir string
	// LoggingOn is passed to fmi2Instantiate.
	LoggingOn bool
	// Logger receives FMU log messages at debug level.
	Logger *zap.Logger
}

// Unit is an opened FMU: its model description, its unpacked working
// directory and its loaded shared library. Instances are created from it
// and must be released before Close.
type Unit struct {
	path      string
	md        *fmu.ModelDescription
	dir       string
	lib       binding
	logger    *zap.Logger
	loggingOn bool

	mu     sync.Mutex
	live   map[*Instance]struct{}
	closed bool
}

type libraryLoader func(path string) (binding, error)

// Open reads the model description of the FMU at path, unpacks it and loads
// the co-simulation library for the running platform.
func Open(path string, opts Options) (*Unit, error) {
	return open(path, opts, openLibrary)
}

func open(path string, opts Options, load libraryLoader) (*Unit, error) {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	md, err := fmu.ReadModelDescription(path)
	if err != nil {
		return nil, err
	}
	if !md.SupportsCoSimulation() {
		return nil, fmt.Errorf("%w: %s", ErrNotCoSimulation, path)
	}

	dir := ""
	if opts.WorkDir != "" {
		if err := os.MkdirAll(opts.WorkDir, 0o755); err != nil {
			return nil, fmt.Errorf("create work dir %s: %w", opts.WorkDir, err)
		}
		dir, err = os.MkdirTemp(opts.WorkDir, "fmibench-")
		if err != nil {
			return nil, fmt.Errorf("create extraction dir: %w", err)
		}
	}
	created := dir
	dir, err = fmu.Extract(path, dir)
	if err != nil {
		_ = fmu.Remove(created)
		return nil, err
	}
	logger.Debug("extracted fmu", zap.String("fmu", path), zap.String("dir", dir))

	libPath := fmu.LibraryPath(dir, md.CoSimulation.ModelIdentifier)
	lib, err := load(libPath)
	if err != nil {
		_ = fmu.Remove(dir)
		return nil, fmt.Errorf("load %s: %w", libPath, err)
	}
	logger.Debug("loaded fmu library", zap.String("library", libPath))

	return &Unit{
		path:      path,
		md:        md,
		dir:       dir,
		lib:       lib,
		logger:    logger,
		loggingOn: opts.LoggingOn,
		live:      make(map[*Instance]struct{}),
	}, nil
}

// ModelDescription returns the parsed model description.
func (u *Unit) ModelDescription() *fmu.ModelDescription { return u.md }

// Dir returns the extraction directory.
func (u *Unit) Dir() string { return u.dir }

// Version returns fmi2GetVersion of the loaded library.
func (u *Unit) Version() string { return u.lib.version() }

// TypesPlatform returns fmi2GetTypesPlatform of the loaded library.
func (u *Unit) TypesPlatform() string { return u.lib.typesPlatform() }

// Instantiate creates a new co-simulation slave named name.
func (u *Unit) Instantiate(name string) (*Instance, error) {
	u.mu.Lock()
	defer u.mu.Unlock()

	if u.closed {
		return nil, ErrClosed
	}
	if u.md.CoSimulation.CanBeInstantiatedOnlyOncePerProcess && len(u.live) > 0 {
		return nil, fmt.Errorf("%w: %s", ErrSingleInstance, u.md.ModelName)
	}

	registerInstanceLogger(name, u.logger)
	c := u.lib.instantiate(name, u.md.GUID, fmu.ResourcesURI(u.dir), u.loggingOn)
	if c == 0 {
		unregisterInstanceLogger(name)
		return nil, fmt.Errorf("fmi2Instantiate(%s) returned NULL", name)
	}

	inst := &Instance{
		name:  name,
		unit:  u,
		lib:   u.lib,
		c:     c,
		state: StateInstantiated,
	}
	u.live[inst] = struct{}{}
	return inst, nil
}

func (u *Unit) forget(i *Instance) {
	u.mu.Lock()
	delete(u.live, i)
	u.mu.Unlock()
	unregisterInstanceLogger(i.name)
}

// Close frees instances that are still alive, unloads the library and
// removes the extraction directory. It is safe to call more than once.
func (u *Unit) Close() error {
	u.mu.Lock()
	if u.closed {
		u.mu.Unlock()
		return nil
	}
	u.closed = true
	live := make([]*Instance, 0, len(u.live))
	for inst := range u.live {
		live = append(live, inst)
	}
	u.mu.Unlock()

	for _, inst := range live {
		u.logger.Debug("freeing leftover instance", zap.String("instance", inst.name))
		_ = inst.Free()
	}

	var errs []error
	if err := u.lib.close(); err != nil {
		errs = append(errs, fmt.Errorf("unload library: %w", err))
	}
	if err := fmu.Remove(u.dir); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

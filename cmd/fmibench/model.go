package main

import (
	"go.uber.org/zap"

	"github.com/torosent/fmibench/internal/bench"
	"github.com/torosent/fmibench/internal/fmi"
	"github.com/torosent/fmibench/internal/fmu"
)

// unitModel adapts an opened fmi.Unit to bench.Model.
type unitModel struct {
	unit *fmi.Unit
}

func openUnit(path string, opts fmi.Options) (bench.Model, error) {
	u, err := fmi.Open(path, opts)
	if err != nil {
		return nil, err
	}
	logLoaded(opts.Logger, path, u)
	return unitModel{unit: u}, nil
}

// loadedUnit is the part of fmi.Unit reported once an FMU is loaded.
type loadedUnit interface {
	ModelDescription() *fmu.ModelDescription
	Dir() string
	Version() string
	TypesPlatform() string
}

var _ loadedUnit = (*fmi.Unit)(nil)

func logLoaded(logger *zap.Logger, path string, u loadedUnit) {
	if logger == nil {
		return
	}
	md := u.ModelDescription()
	logger.Info("loaded fmu",
		zap.String("fmu", path),
		zap.String("model", md.ModelName),
		zap.String("guid", md.GUID),
		zap.String("fmiVersion", u.Version()),
		zap.String("typesPlatform", u.TypesPlatform()),
		zap.String("dir", u.Dir()))
}

func (m unitModel) Instantiate(name string) (bench.Slave, error) {
	inst, err := m.unit.Instantiate(name)
	if err != nil {
		return nil, err
	}
	return inst, nil
}

func (m unitModel) Close() error {
	return m.unit.Close()
}

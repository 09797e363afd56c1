package fmu

import (
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/klauspost/compress/zip"
)

// ModelDescriptionFile is the archive entry every FMU carries at its root.
const ModelDescriptionFile = "modelDescription.xml"

// ErrNoModelDescription is returned when an archive lacks modelDescription.xml.
var ErrNoModelDescription = errors.New("fmu: archive has no " + ModelDescriptionFile)

// ModelDescription is the subset of an FMI 2.0 model description needed to
// instantiate and drive a co-simulation slave.
type ModelDescription struct {
	XMLName                 xml.Name           `xml:"fmiModelDescription"`
	FMIVersion              string             `xml:"fmiVersion,attr"`
	ModelName               string             `xml:"modelName,attr"`
	GUID                    string             `xml:"guid,attr"`
	Description             string             `xml:"description,attr"`
	GenerationTool          string             `xml:"generationTool,attr"`
	NumberOfEventIndicators int                `xml:"numberOfEventIndicators,attr"`
	CoSimulation            *CoSimulation      `xml:"CoSimulation"`
	ModelExchange           *ModelExchange     `xml:"ModelExchange"`
	DefaultExperiment       *DefaultExperiment `xml:"DefaultExperiment"`
	ModelVariables          []ScalarVariable   `xml:"ModelVariables>ScalarVariable"`
}

// CoSimulation describes the co-simulation interface of an FMU.
type CoSimulation struct {
	ModelIdentifier                        string `xml:"modelIdentifier,attr"`
	NeedsExecutionTool                     bool   `xml:"needsExecutionTool,attr"`
	CanHandleVariableCommunicationStepSize bool   `xml:"canHandleVariableCommunicationStepSize,attr"`
	CanInterpolateInputs                   bool   `xml:"canInterpolateInputs,attr"`
	CanBeInstantiatedOnlyOncePerProcess    bool   `xml:"canBeInstantiatedOnlyOncePerProcess,attr"`
	CanGetAndSetFMUstate                   bool   `xml:"canGetAndSetFMUstate,attr"`
}

// ModelExchange is recorded for inspection only; fmibench never steps ME models.
type ModelExchange struct {
	ModelIdentifier string `xml:"modelIdentifier,attr"`
}

// DefaultExperiment holds the optional experiment defaults. Absent attributes stay nil.
type DefaultExperiment struct {
	StartTime *float64 `xml:"startTime,attr"`
	StopTime  *float64 `xml:"stopTime,attr"`
	Tolerance *float64 `xml:"tolerance,attr"`
	StepSize  *float64 `xml:"stepSize,attr"`
}

// ScalarVariable is one entry of the ModelVariables list.
type ScalarVariable struct {
	Name           string `xml:"name,attr"`
	ValueReference uint32 `xml:"valueReference,attr"`
	Description    string `xml:"description,attr"`
	Causality      string `xml:"causality,attr"`
	Variability    string `xml:"variability,attr"`
	Initial        string `xml:"initial,attr"`

	Real        *RealAttributes  `xml:"Real"`
	Integer     *StartAttributes `xml:"Integer"`
	Boolean     *StartAttributes `xml:"Boolean"`
	String      *StartAttributes `xml:"String"`
	Enumeration *StartAttributes `xml:"Enumeration"`
}

// RealAttributes carries the Real type element of a scalar variable.
type RealAttributes struct {
	Start    *float64 `xml:"start,attr"`
	Unit     string   `xml:"unit,attr"`
	Min      *float64 `xml:"min,attr"`
	Max      *float64 `xml:"max,attr"`
	Nominal  *float64 `xml:"nominal,attr"`
	Declared string   `xml:"declaredType,attr"`
}

// StartAttributes carries the start value of non-Real type elements verbatim.
type StartAttributes struct {
	Start string `xml:"start,attr"`
}

// Type reports the FMI type name of the variable.
func (v ScalarVariable) Type() string {
	switch {
	case v.Real != nil:
		return "Real"
	case v.Integer != nil:
		return "Integer"
	case v.Boolean != nil:
		return "Boolean"
	case v.String != nil:
		return "String"
	case v.Enumeration != nil:
		return "Enumeration"
	default:
		return ""
	}
}

// EffectiveCausality returns the causality, which defaults to "local" when
// the attribute is omitted.
func (v ScalarVariable) EffectiveCausality() string {
	if v.Causality == "" {
		return "local"
	}
	return v.Causality
}

// SupportsCoSimulation reports whether the model exposes a co-simulation interface.
func (m *ModelDescription) SupportsCoSimulation() bool {
	return m != nil && m.CoSimulation != nil && m.CoSimulation.ModelIdentifier != ""
}

// Variable looks up a scalar variable by its exact name.
func (m *ModelDescription) Variable(name string) (ScalarVariable, bool) {
	for _, v := range m.ModelVariables {
		if v.Name == name {
			return v, true
		}
	}
	return ScalarVariable{}, false
}

// VariableByReference returns the first variable with the given value
// reference and type. Several variables may alias one reference.
func (m *ModelDescription) VariableByReference(vr uint32, typ string) (ScalarVariable, bool) {
	for _, v := range m.ModelVariables {
		if v.ValueReference == vr && (typ == "" || v.Type() == typ) {
			return v, true
		}
	}
	return ScalarVariable{}, false
}

// ParseModelDescription decodes an FMI 2.0 modelDescription.xml document.
func ParseModelDescription(r io.Reader) (*ModelDescription, error) {
	var md ModelDescription
	if err := xml.NewDecoder(r).Decode(&md); err != nil {
		return nil, fmt.Errorf("parse %s: %w", ModelDescriptionFile, err)
	}
	if strings.TrimSpace(md.GUID) == "" {
		return nil, fmt.Errorf("parse %s: guid is required", ModelDescriptionFile)
	}
	if !strings.HasPrefix(md.FMIVersion, "2.") {
		return nil, fmt.Errorf("parse %s: unsupported fmiVersion %q", ModelDescriptionFile, md.FMIVersion)
	}
	return &md, nil
}

// ReadModelDescription reads the model description straight out of the FMU
// archive at path without unpacking anything else.
func ReadModelDescription(path string) (*ModelDescription, error) {
	zr, err := zip.OpenReader(path)
	if err != nil {
		return nil, fmt.Errorf("open fmu %s: %w", path, err)
	}
	defer zr.Close()

	for _, f := range zr.File {
		if f.Name != ModelDescriptionFile {
			continue
		}
		rc, err := f.Open()
		if err != nil {
			return nil, fmt.Errorf("open %s in %s: %w", ModelDescriptionFile, path, err)
		}
		defer rc.Close()
		return ParseModelDescription(rc)
	}
	return nil, fmt.Errorf("%w: %s", ErrNoModelDescription, path)
}

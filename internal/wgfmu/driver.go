// Package wgfmu defines the driver contract of a waveform generator / fast
// measurement unit and provides an in-memory Simulator implementing it.
//
// A caller creates a named pattern, appends timed voltage vectors to it,
// optionally tiles it into a multi-cycle sequence on a channel, and finally
// reads back the captured samples:
//
//	sim := wgfmu.NewSimulator()
//	_ = sim.CreatePattern("P1", 0)
//	_ = sim.AddVector("P1", 1.0, 5.0)
//	_ = sim.AddVector("P1", 1.0, 10.0)
//	_ = sim.AddSequence(101, "P1", 3)
//	samples, err := sim.GetMeasureValues(101)
package wgfmu

import (
	"fmt"
	"strings"
)

// Driver is the capability surface shared by the simulator and a
// hardware-backed driver. Every method reports success as a nil error.
type Driver interface {
	// Session lifecycle
	OpenSession(instrument string) error
	CloseSession() error
	Initialize() error
	Clear() error

	// Timeline authoring
	CreatePattern(pattern string, initV float64) error
	AddVector(pattern string, dTime, voltage float64) error
	SetVector(pattern string, time, voltage float64) error
	SetMeasureEvent(pattern, event string, time float64, points int, interval, average float64, mode MeasureEventMode) error

	// Sequencing
	AddSequence(chanID int, pattern string, count int) error

	// Acquisition and operation configuration
	SetOperationMode(chanID int, mode OperationMode) error
	GetOperationMode(chanID int) (OperationMode, error)
	SetMeasureMode(chanID int, mode MeasureMode) error
	GetMeasureMode(chanID int) (MeasureMode, error)

	// Run control
	Connect(chanID int) error
	Execute() error
	WaitUntilCompleted() error

	// Retrieval
	GetMeasureValues(chanID int) ([]Measurement, error)

	DoSelfCalibration() error
}

// Measurement is one captured sample. Time is the absolute elapsed time since
// the start of the pattern. Current is nil when the instrument did not
// measure it; the simulator always populates it.
type Measurement struct {
	Voltage float64  `json:"voltage"`
	Current *float64 `json:"current,omitempty"`
	Time    float64  `json:"time"`
}

// clone returns a copy that shares no memory with m.
func (m Measurement) clone() Measurement {
	out := Measurement{Voltage: m.Voltage, Time: m.Time}
	if m.Current != nil {
		c := *m.Current
		out.Current = &c
	}
	return out
}

// OperationMode selects how a channel drives its output.
type OperationMode int

const (
	OperationModeDC     OperationMode = 2000
	OperationModeFastIV OperationMode = 2001
	OperationModePG     OperationMode = 2002
	OperationModeSMU    OperationMode = 2003
)

var operationModeNames = map[OperationMode]string{
	OperationModeDC:     "dc",
	OperationModeFastIV: "fastiv",
	OperationModePG:     "pg",
	OperationModeSMU:    "smu",
}

func (m OperationMode) String() string {
	if name, ok := operationModeNames[m]; ok {
		return name
	}
	return fmt.Sprintf("OperationMode(%d)", int(m))
}

// ParseOperationMode maps "dc", "fastiv", "pg" or "smu" (case-insensitive)
// to an OperationMode.
func ParseOperationMode(s string) (OperationMode, error) {
	for mode, name := range operationModeNames {
		if strings.EqualFold(s, name) {
			return mode, nil
		}
	}
	return 0, fmt.Errorf("unknown operation mode %q (valid: dc, fastiv, pg, smu)", s)
}

// MeasureMode selects the quantity digitized by a channel.
type MeasureMode int

const (
	MeasureModeVoltage MeasureMode = 4000
	MeasureModeCurrent MeasureMode = 4001
)

func (m MeasureMode) String() string {
	switch m {
	case MeasureModeVoltage:
		return "voltage"
	case MeasureModeCurrent:
		return "current"
	default:
		return fmt.Sprintf("MeasureMode(%d)", int(m))
	}
}

// ParseMeasureMode maps "voltage" or "current" to a MeasureMode.
func ParseMeasureMode(s string) (MeasureMode, error) {
	switch strings.ToLower(s) {
	case "voltage":
		return MeasureModeVoltage, nil
	case "current":
		return MeasureModeCurrent, nil
	default:
		return 0, fmt.Errorf("unknown measure mode %q (valid: voltage, current)", s)
	}
}

// MeasureEventMode selects whether a measure event returns averaged or raw
// points.
type MeasureEventMode int

const (
	MeasureEventModeAveraged MeasureEventMode = 12000
	MeasureEventModeRaw      MeasureEventMode = 12001
)

func (m MeasureEventMode) String() string {
	switch m {
	case MeasureEventModeAveraged:
		return "averaged"
	case MeasureEventModeRaw:
		return "raw"
	default:
		return fmt.Sprintf("MeasureEventMode(%d)", int(m))
	}
}

// ParseMeasureEventMode maps "averaged" or "raw" to a MeasureEventMode.
func ParseMeasureEventMode(s string) (MeasureEventMode, error) {
	switch strings.ToLower(s) {
	case "averaged":
		return MeasureEventModeAveraged, nil
	case "raw":
		return MeasureEventModeRaw, nil
	default:
		return 0, fmt.Errorf("unknown measure event mode %q (valid: averaged, raw)", s)
	}
}

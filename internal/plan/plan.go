// Package plan describes a measurement run as a YAML document and executes
// it against a wgfmu.Driver.
package plan

import (
	"fmt"
	"os"

	"github.com/nvandessel/wgfmu-sim/internal/wgfmu"
	"gopkg.in/yaml.v3"
)

// Plan is one measurement run: the patterns to author, how to sequence them
// and how to configure the channel that executes them.
type Plan struct {
	Name string `json:"name" yaml:"name"`

	// Instrument and Channel fall back to the runner defaults when empty.
	Instrument string `json:"instrument,omitempty" yaml:"instrument,omitempty"`
	Channel    int    `json:"channel,omitempty" yaml:"channel,omitempty"`

	// OperationMode is one of dc, fastiv, pg, smu. Empty means fastiv.
	OperationMode string `json:"operation_mode,omitempty" yaml:"operation_mode,omitempty"`
	// MeasureMode is voltage or current. Empty means current.
	MeasureMode string `json:"measure_mode,omitempty" yaml:"measure_mode,omitempty"`

	Patterns  []PatternSpec  `json:"patterns" yaml:"patterns"`
	Sequences []SequenceSpec `json:"sequences,omitempty" yaml:"sequences,omitempty"`
}

// PatternSpec declares a pattern and its vectors.
type PatternSpec struct {
	Name           string       `json:"name" yaml:"name"`
	InitialVoltage float64      `json:"initial_voltage" yaml:"initial_voltage"`
	Vectors        []VectorSpec `json:"vectors" yaml:"vectors"`
	Events         []EventSpec  `json:"events,omitempty" yaml:"events,omitempty"`
}

// VectorSpec is one AddVector call: ramp to V over DT seconds.
type VectorSpec struct {
	DT float64 `json:"dt" yaml:"dt"`
	V  float64 `json:"v" yaml:"v"`
}

// EventSpec is one SetMeasureEvent call.
type EventSpec struct {
	Name     string  `json:"name" yaml:"name"`
	Time     float64 `json:"time" yaml:"time"`
	Points   int     `json:"points" yaml:"points"`
	Interval float64 `json:"interval" yaml:"interval"`
	Average  float64 `json:"average" yaml:"average"`
	Mode     string  `json:"mode,omitempty" yaml:"mode,omitempty"` // averaged | raw, default averaged
}

// SequenceSpec is one AddSequence call.
type SequenceSpec struct {
	Pattern string `json:"pattern" yaml:"pattern"`
	Count   int    `json:"count" yaml:"count"`
}

// Load reads and validates a plan file.
func Load(path string) (*Plan, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading plan file: %w", err)
	}
	return Parse(data)
}

// Parse decodes and validates a YAML plan.
func Parse(data []byte) (*Plan, error) {
	var p Plan
	if err := yaml.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("parsing plan: %w", err)
	}
	if err := p.Validate(); err != nil {
		return nil, fmt.Errorf("invalid plan %q: %w", p.Name, err)
	}
	return &p, nil
}

// Validate checks that the plan is internally consistent.
func (p *Plan) Validate() error {
	if p.Name == "" {
		return fmt.Errorf("name is required")
	}
	if p.Channel < 0 {
		return fmt.Errorf("channel must not be negative, got %d", p.Channel)
	}
	if _, err := p.operationMode(); err != nil {
		return err
	}
	if _, err := p.measureMode(); err != nil {
		return err
	}
	if len(p.Patterns) == 0 {
		return fmt.Errorf("at least one pattern is required")
	}

	declared := make(map[string]bool, len(p.Patterns))
	for i, ps := range p.Patterns {
		if ps.Name == "" {
			return fmt.Errorf("pattern %d: name is required", i)
		}
		if declared[ps.Name] {
			return fmt.Errorf("pattern %q declared twice", ps.Name)
		}
		declared[ps.Name] = true

		for j, ev := range ps.Events {
			if ev.Name == "" {
				return fmt.Errorf("pattern %q event %d: name is required", ps.Name, j)
			}
			if ev.Points < 0 {
				return fmt.Errorf("pattern %q event %q: points must not be negative", ps.Name, ev.Name)
			}
			if _, err := ev.mode(); err != nil {
				return fmt.Errorf("pattern %q event %q: %w", ps.Name, ev.Name, err)
			}
		}
	}

	for i, seq := range p.Sequences {
		if !declared[seq.Pattern] {
			return fmt.Errorf("sequence %d references unknown pattern %q", i, seq.Pattern)
		}
		if seq.Count < 0 {
			return fmt.Errorf("sequence %d: count must not be negative, got %d", i, seq.Count)
		}
	}

	return nil
}

func (p *Plan) operationMode() (wgfmu.OperationMode, error) {
	if p.OperationMode == "" {
		return wgfmu.OperationModeFastIV, nil
	}
	return wgfmu.ParseOperationMode(p.OperationMode)
}

func (p *Plan) measureMode() (wgfmu.MeasureMode, error) {
	if p.MeasureMode == "" {
		return wgfmu.MeasureModeCurrent, nil
	}
	return wgfmu.ParseMeasureMode(p.MeasureMode)
}

func (e EventSpec) mode() (wgfmu.MeasureEventMode, error) {
	if e.Mode == "" {
		return wgfmu.MeasureEventModeAveraged, nil
	}
	return wgfmu.ParseMeasureEventMode(e.Mode)
}

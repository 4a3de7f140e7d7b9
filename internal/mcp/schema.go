package mcp

import (
	"github.com/nvandessel/wgfmu-sim/internal/archive"
	"github.com/nvandessel/wgfmu-sim/internal/wgfmu"
)

// OpenSessionInput defines the input for wgfmu_open_session tool.
type OpenSessionInput struct {
	Instrument string `json:"instrument,omitempty" jsonschema:"Instrument address (default: configured address)"`
}

// SessionOutput is returned by the session lifecycle tools.
type SessionOutput struct {
	Instrument string `json:"instrument,omitempty" jsonschema:"Instrument the session was opened against"`
	Message    string `json:"message" jsonschema:"Human-readable result message"`
}

// EmptyInput is used by tools that take no arguments.
type EmptyInput struct{}

// CreatePatternInput defines the input for wgfmu_create_pattern tool.
type CreatePatternInput struct {
	Pattern        string  `json:"pattern" jsonschema:"Pattern name; re-creating an existing name resets it"`
	InitialVoltage float64 `json:"initial_voltage,omitempty" jsonschema:"Starting voltage of the pattern (recorded; produces no sample)"`
}

// CreatePatternOutput defines the output for wgfmu_create_pattern tool.
type CreatePatternOutput struct {
	Pattern string `json:"pattern"`
	Message string `json:"message"`
}

// AddVectorInput defines the input for wgfmu_add_vector tool.
type AddVectorInput struct {
	Pattern string  `json:"pattern" jsonschema:"Pattern to append to"`
	DT      float64 `json:"dt" jsonschema:"Time step in seconds since the previous point; values <= 0 are floored to 1e-8"`
	V       float64 `json:"v" jsonschema:"Voltage at the new point"`
}

// AddVectorOutput defines the output for wgfmu_add_vector tool.
type AddVectorOutput struct {
	Pattern string `json:"pattern"`
	Message string `json:"message"`
}

// AddSequenceInput defines the input for wgfmu_add_sequence tool.
type AddSequenceInput struct {
	Channel int    `json:"channel,omitempty" jsonschema:"Channel ID (default: configured channel)"`
	Pattern string `json:"pattern" jsonschema:"Pattern to tile"`
	Count   int    `json:"count" jsonschema:"Total number of cycles; 1 or less leaves the pattern unchanged"`
}

// AddSequenceOutput defines the output for wgfmu_add_sequence tool.
type AddSequenceOutput struct {
	Channel int    `json:"channel"`
	Pattern string `json:"pattern"`
	Count   int    `json:"count"`
	Message string `json:"message"`
}

// GetMeasureValuesInput defines the input for wgfmu_get_measure_values tool.
type GetMeasureValuesInput struct {
	Channel int `json:"channel,omitempty" jsonschema:"Channel ID (default: configured channel)"`
}

// GetMeasureValuesOutput defines the output for wgfmu_get_measure_values tool.
type GetMeasureValuesOutput struct {
	Channel int                 `json:"channel"`
	Count   int                 `json:"count" jsonschema:"Number of samples"`
	Samples []wgfmu.Measurement `json:"samples" jsonschema:"Captured samples in timeline order"`
}

// RunPlanInput defines the input for wgfmu_run_plan tool.
type RunPlanInput struct {
	Plan    string `json:"plan,omitempty" jsonschema:"Inline YAML plan document"`
	Path    string `json:"path,omitempty" jsonschema:"Path to a YAML plan file (used when plan is empty)"`
	Archive bool   `json:"archive,omitempty" jsonschema:"Record the capture in the run archive (default: false)"`
}

// RunPlanOutput defines the output for wgfmu_run_plan tool.
type RunPlanOutput struct {
	Plan     string              `json:"plan"`
	Channel  int                 `json:"channel"`
	Count    int                 `json:"count"`
	Duration float64             `json:"duration" jsonschema:"Time of the last sample in seconds"`
	RunID    string              `json:"run_id,omitempty" jsonschema:"Archive ID when archived"`
	Samples  []wgfmu.Measurement `json:"samples"`
}

// ListRunsInput defines the input for wgfmu_list_runs tool.
type ListRunsInput struct {
	Limit int `json:"limit,omitempty" jsonschema:"Maximum runs to return, newest first (default: 20)"`
}

// ListRunsOutput defines the output for wgfmu_list_runs tool.
type ListRunsOutput struct {
	Runs  []archive.Run `json:"runs"`
	Count int           `json:"count"`
}

package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	sdk "github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/nvandessel/wgfmu-sim/internal/archive"
	"github.com/nvandessel/wgfmu-sim/internal/pathutil"
	"github.com/nvandessel/wgfmu-sim/internal/plan"
	"github.com/nvandessel/wgfmu-sim/internal/ratelimit"
	"github.com/nvandessel/wgfmu-sim/internal/sanitize"
)

const defaultListLimit = 20

// registerTools registers all wgfmu MCP tools with the server.
func (s *Server) registerTools() error {
	sdk.AddTool(s.server, &sdk.Tool{
		Name:        "wgfmu_open_session",
		Description: "Open a session against an instrument address",
	}, s.handleOpenSession)

	sdk.AddTool(s.server, &sdk.Tool{
		Name:        "wgfmu_close_session",
		Description: "Close the session and discard all patterns",
	}, s.handleCloseSession)

	sdk.AddTool(s.server, &sdk.Tool{
		Name:        "wgfmu_clear",
		Description: "Discard all patterns and sequences",
	}, s.handleClear)

	sdk.AddTool(s.server, &sdk.Tool{
		Name:        "wgfmu_create_pattern",
		Description: "Create (or reset) a named pattern with an initial voltage",
	}, s.handleCreatePattern)

	sdk.AddTool(s.server, &sdk.Tool{
		Name:        "wgfmu_add_vector",
		Description: "Append a point dt seconds after the previous one at voltage v",
	}, s.handleAddVector)

	sdk.AddTool(s.server, &sdk.Tool{
		Name:        "wgfmu_add_sequence",
		Description: "Tile a pattern to count total cycles on a channel",
	}, s.handleAddSequence)

	sdk.AddTool(s.server, &sdk.Tool{
		Name:        "wgfmu_get_measure_values",
		Description: "Wait for the settling delay and return the captured samples",
	}, s.handleGetMeasureValues)

	sdk.AddTool(s.server, &sdk.Tool{
		Name:        "wgfmu_run_plan",
		Description: "Execute a YAML measurement plan end to end and return its capture",
	}, s.handleRunPlan)

	sdk.AddTool(s.server, &sdk.Tool{
		Name:        "wgfmu_list_runs",
		Description: "List archived runs, newest first",
	}, s.handleListRuns)

	return nil
}

// registerResources exposes archived captures when an archive is configured.
func (s *Server) registerResources() {
	if s.archive == nil {
		return
	}
	s.server.AddResourceTemplate(&sdk.ResourceTemplate{
		URITemplate: runURIPrefix + "{id}",
		Name:        "wgfmu-run",
		Description: "Summary and samples of an archived run.",
		MIMEType:    "application/json",
	}, s.handleRunResource)
}

const runURIPrefix = "wgfmu://runs/"

// handleRunResource returns one archived run as JSON.
func (s *Server) handleRunResource(ctx context.Context, req *sdk.ReadResourceRequest) (*sdk.ReadResourceResult, error) {
	uri := req.Params.URI
	if !strings.HasPrefix(uri, runURIPrefix) {
		return nil, fmt.Errorf("invalid URI format: %s", uri)
	}
	id := strings.TrimPrefix(uri, runURIPrefix)
	if id == "" {
		return nil, fmt.Errorf("run ID is required")
	}

	run, err := s.archive.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	samples, err := s.archive.Samples(ctx, id)
	if err != nil {
		return nil, err
	}

	data, err := json.MarshalIndent(struct {
		*archive.Run
		Samples any `json:"samples"`
	}{run, samples}, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to encode run: %w", err)
	}

	return &sdk.ReadResourceResult{
		Contents: []*sdk.ResourceContents{
			{
				URI:      uri,
				MIMEType: "application/json",
				Text:     string(data),
			},
		},
	}, nil
}

// handleOpenSession implements the wgfmu_open_session tool.
func (s *Server) handleOpenSession(ctx context.Context, req *sdk.CallToolRequest, args OpenSessionInput) (_ *sdk.CallToolResult, _ SessionOutput, retErr error) {
	start := time.Now()
	defer func() {
		s.auditTool("wgfmu_open_session", start, retErr, sanitizeToolParams(map[string]interface{}{
			"instrument": args.Instrument,
		}))
	}()

	if err := ratelimit.CheckLimit(s.toolLimiters, "wgfmu_open_session"); err != nil {
		return nil, SessionOutput{}, err
	}

	instrument := sanitize.Instrument(args.Instrument)
	if instrument == "" {
		instrument = s.defaults.Instrument
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.driver.OpenSession(instrument); err != nil {
		return nil, SessionOutput{}, fmt.Errorf("open_session: %w", err)
	}
	return nil, SessionOutput{
		Instrument: instrument,
		Message:    fmt.Sprintf("session open on %s", instrument),
	}, nil
}

// handleCloseSession implements the wgfmu_close_session tool.
func (s *Server) handleCloseSession(ctx context.Context, req *sdk.CallToolRequest, args EmptyInput) (_ *sdk.CallToolResult, _ SessionOutput, retErr error) {
	start := time.Now()
	defer func() {
		s.auditTool("wgfmu_close_session", start, retErr, sanitizeToolParams(map[string]interface{}{}))
	}()

	if err := ratelimit.CheckLimit(s.toolLimiters, "wgfmu_close_session"); err != nil {
		return nil, SessionOutput{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.driver.CloseSession(); err != nil {
		return nil, SessionOutput{}, fmt.Errorf("close_session: %w", err)
	}
	return nil, SessionOutput{Message: "session closed; patterns discarded"}, nil
}

// handleClear implements the wgfmu_clear tool.
func (s *Server) handleClear(ctx context.Context, req *sdk.CallToolRequest, args EmptyInput) (_ *sdk.CallToolResult, _ SessionOutput, retErr error) {
	start := time.Now()
	defer func() {
		s.auditTool("wgfmu_clear", start, retErr, sanitizeToolParams(map[string]interface{}{}))
	}()

	if err := ratelimit.CheckLimit(s.toolLimiters, "wgfmu_clear"); err != nil {
		return nil, SessionOutput{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.driver.Clear(); err != nil {
		return nil, SessionOutput{}, fmt.Errorf("clear: %w", err)
	}
	return nil, SessionOutput{Message: "patterns discarded"}, nil
}

// handleCreatePattern implements the wgfmu_create_pattern tool.
func (s *Server) handleCreatePattern(ctx context.Context, req *sdk.CallToolRequest, args CreatePatternInput) (_ *sdk.CallToolResult, _ CreatePatternOutput, retErr error) {
	start := time.Now()
	defer func() {
		s.auditTool("wgfmu_create_pattern", start, retErr, sanitizeToolParams(map[string]interface{}{
			"pattern": args.Pattern, "initial_voltage": args.InitialVoltage,
		}))
	}()

	if err := ratelimit.CheckLimit(s.toolLimiters, "wgfmu_create_pattern"); err != nil {
		return nil, CreatePatternOutput{}, err
	}
	args.Pattern = sanitize.Name(args.Pattern)
	if args.Pattern == "" {
		return nil, CreatePatternOutput{}, fmt.Errorf("'pattern' parameter is required")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.driver.CreatePattern(args.Pattern, args.InitialVoltage); err != nil {
		return nil, CreatePatternOutput{}, fmt.Errorf("create_pattern: %w", err)
	}
	return nil, CreatePatternOutput{
		Pattern: args.Pattern,
		Message: fmt.Sprintf("pattern %s created at %gV", args.Pattern, args.InitialVoltage),
	}, nil
}

// handleAddVector implements the wgfmu_add_vector tool.
func (s *Server) handleAddVector(ctx context.Context, req *sdk.CallToolRequest, args AddVectorInput) (_ *sdk.CallToolResult, _ AddVectorOutput, retErr error) {
	start := time.Now()
	defer func() {
		s.auditTool("wgfmu_add_vector", start, retErr, sanitizeToolParams(map[string]interface{}{
			"pattern": args.Pattern, "dt": args.DT, "v": args.V,
		}))
	}()

	if err := ratelimit.CheckLimit(s.toolLimiters, "wgfmu_add_vector"); err != nil {
		return nil, AddVectorOutput{}, err
	}
	args.Pattern = sanitize.Name(args.Pattern)
	if args.Pattern == "" {
		return nil, AddVectorOutput{}, fmt.Errorf("'pattern' parameter is required")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.driver.AddVector(args.Pattern, args.DT, args.V); err != nil {
		return nil, AddVectorOutput{}, fmt.Errorf("add_vector: %w", err)
	}
	return nil, AddVectorOutput{
		Pattern: args.Pattern,
		Message: fmt.Sprintf("vector appended to %s", args.Pattern),
	}, nil
}

// handleAddSequence implements the wgfmu_add_sequence tool.
func (s *Server) handleAddSequence(ctx context.Context, req *sdk.CallToolRequest, args AddSequenceInput) (_ *sdk.CallToolResult, _ AddSequenceOutput, retErr error) {
	start := time.Now()
	defer func() {
		s.auditTool("wgfmu_add_sequence", start, retErr, sanitizeToolParams(map[string]interface{}{
			"channel": args.Channel, "pattern": args.Pattern, "count": args.Count,
		}))
	}()

	if err := ratelimit.CheckLimit(s.toolLimiters, "wgfmu_add_sequence"); err != nil {
		return nil, AddSequenceOutput{}, err
	}
	args.Pattern = sanitize.Name(args.Pattern)
	if args.Pattern == "" {
		return nil, AddSequenceOutput{}, fmt.Errorf("'pattern' parameter is required")
	}

	ch := s.channel(args.Channel)

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.driver.AddSequence(ch, args.Pattern, args.Count); err != nil {
		return nil, AddSequenceOutput{}, fmt.Errorf("add_sequence: %w", err)
	}
	return nil, AddSequenceOutput{
		Channel: ch,
		Pattern: args.Pattern,
		Count:   args.Count,
		Message: fmt.Sprintf("%s tiled to %d cycles on channel %d", args.Pattern, args.Count, ch),
	}, nil
}

// handleGetMeasureValues implements the wgfmu_get_measure_values tool.
func (s *Server) handleGetMeasureValues(ctx context.Context, req *sdk.CallToolRequest, args GetMeasureValuesInput) (_ *sdk.CallToolResult, _ GetMeasureValuesOutput, retErr error) {
	start := time.Now()
	defer func() {
		s.auditTool("wgfmu_get_measure_values", start, retErr, sanitizeToolParams(map[string]interface{}{
			"channel": args.Channel,
		}))
	}()

	if err := ratelimit.CheckLimit(s.toolLimiters, "wgfmu_get_measure_values"); err != nil {
		return nil, GetMeasureValuesOutput{}, err
	}

	ch := s.channel(args.Channel)

	s.mu.Lock()
	defer s.mu.Unlock()

	samples, err := s.driver.GetMeasureValues(ch)
	if err != nil {
		return nil, GetMeasureValuesOutput{}, fmt.Errorf("get_measure_values: %w", err)
	}
	return nil, GetMeasureValuesOutput{
		Channel: ch,
		Count:   len(samples),
		Samples: samples,
	}, nil
}

// handleRunPlan implements the wgfmu_run_plan tool.
func (s *Server) handleRunPlan(ctx context.Context, req *sdk.CallToolRequest, args RunPlanInput) (_ *sdk.CallToolResult, _ RunPlanOutput, retErr error) {
	start := time.Now()
	defer func() {
		s.auditTool("wgfmu_run_plan", start, retErr, sanitizeToolParams(map[string]interface{}{
			"plan": args.Plan, "path": args.Path, "archive": args.Archive,
		}))
	}()

	if err := ratelimit.CheckLimit(s.toolLimiters, "wgfmu_run_plan"); err != nil {
		return nil, RunPlanOutput{}, err
	}

	var p *plan.Plan
	var err error
	switch {
	case args.Plan != "":
		p, err = plan.Parse([]byte(args.Plan))
	case args.Path != "":
		var path string
		path, err = pathutil.Resolve(args.Path, s.planDirs)
		if err == nil {
			p, err = plan.Load(path)
		}
	default:
		return nil, RunPlanOutput{}, fmt.Errorf("either 'plan' or 'path' is required")
	}
	if err != nil {
		return nil, RunPlanOutput{}, err
	}
	if args.Archive && s.archive == nil {
		return nil, RunPlanOutput{}, fmt.Errorf("archive is not enabled")
	}

	s.mu.Lock()
	capture, err := s.runner.Run(ctx, p)
	s.mu.Unlock()
	if err != nil {
		return nil, RunPlanOutput{}, fmt.Errorf("plan %s: %w", p.Name, err)
	}

	out := RunPlanOutput{
		Plan:     capture.Plan,
		Channel:  capture.Channel,
		Count:    len(capture.Samples),
		Duration: capture.Duration(),
		Samples:  capture.Samples,
	}

	if args.Archive {
		id, err := s.archive.Save(ctx, capture)
		if err != nil {
			return nil, RunPlanOutput{}, fmt.Errorf("archiving capture: %w", err)
		}
		out.RunID = id
		s.logger.Info("capture archived", "plan", capture.Plan, "run_id", id)
	}

	return nil, out, nil
}

// handleListRuns implements the wgfmu_list_runs tool.
func (s *Server) handleListRuns(ctx context.Context, req *sdk.CallToolRequest, args ListRunsInput) (_ *sdk.CallToolResult, _ ListRunsOutput, retErr error) {
	start := time.Now()
	defer func() {
		s.auditTool("wgfmu_list_runs", start, retErr, sanitizeToolParams(map[string]interface{}{
			"limit": args.Limit,
		}))
	}()

	if err := ratelimit.CheckLimit(s.toolLimiters, "wgfmu_list_runs"); err != nil {
		return nil, ListRunsOutput{}, err
	}
	if s.archive == nil {
		return nil, ListRunsOutput{}, fmt.Errorf("archive is not enabled")
	}

	limit := args.Limit
	if limit <= 0 {
		limit = defaultListLimit
	}

	runs, err := s.archive.List(ctx, limit)
	if err != nil {
		return nil, ListRunsOutput{}, err
	}
	return nil, ListRunsOutput{Runs: runs, Count: len(runs)}, nil
}

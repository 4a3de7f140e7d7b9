// Package mcp exposes a wgfmu.Driver to orchestration clients as MCP tools.
package mcp

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sync"

	sdk "github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/nvandessel/wgfmu-sim/internal/archive"
	"github.com/nvandessel/wgfmu-sim/internal/logging"
	"github.com/nvandessel/wgfmu-sim/internal/plan"
	"github.com/nvandessel/wgfmu-sim/internal/ratelimit"
	"github.com/nvandessel/wgfmu-sim/internal/wgfmu"
)

// Server wraps the MCP SDK server around a single driver. Driver calls are
// serialized because the driver itself is not safe for concurrent use.
type Server struct {
	server *sdk.Server

	mu      sync.Mutex
	driver  wgfmu.Driver
	runner  *plan.Runner
	archive *archive.Archive

	defaults     plan.Defaults
	planDirs     []string
	toolLimiters ratelimit.ToolLimiters
	auditLogger  *AuditLogger
	logger       *slog.Logger
}

// Config holds server configuration.
type Config struct {
	Name    string // Server name (e.g., "wgfmu-sim")
	Version string // Server version

	// Driver receives every tool call. Required.
	Driver wgfmu.Driver

	// Archive records run_plan captures on request. Optional.
	Archive *archive.Archive

	// Defaults fill in the instrument and channel when a call omits them.
	Defaults plan.Defaults

	// StateDir holds the audit log. Empty disables auditing.
	StateDir string

	// PlanDirs are the directories run_plan may read plan files from.
	// Empty restricts run_plan to inline plans.
	PlanDirs []string

	Logger *slog.Logger
}

// NewServer creates a new MCP server with the wgfmu tools registered.
func NewServer(cfg *Config) (*Server, error) {
	if cfg.Driver == nil {
		return nil, errors.New("mcp: driver is required")
	}

	logger := cfg.Logger
	if logger == nil {
		logger = logging.Discard()
	}

	mcpServer := sdk.NewServer(&sdk.Implementation{
		Name:    cfg.Name,
		Version: cfg.Version,
	}, &sdk.ServerOptions{
		InitializedHandler: func(ctx context.Context, req *sdk.InitializedRequest) {
			logger.Debug("mcp client initialized")
		},
	})

	var audit *AuditLogger
	if cfg.StateDir != "" {
		audit = NewAuditLogger(cfg.StateDir)
	}

	s := &Server{
		server:       mcpServer,
		driver:       cfg.Driver,
		runner:       plan.NewRunner(cfg.Driver, logger, cfg.Defaults),
		archive:      cfg.Archive,
		defaults:     cfg.Defaults,
		planDirs:     cfg.PlanDirs,
		toolLimiters: ratelimit.NewToolLimiters(),
		auditLogger:  audit,
		logger:       logger,
	}

	if err := s.registerTools(); err != nil {
		audit.Close()
		return nil, fmt.Errorf("failed to register tools: %w", err)
	}
	s.registerResources()

	return s, nil
}

// Run serves MCP over stdio until the client disconnects, ctx is canceled
// or the process receives an interrupt.
func (s *Server) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	notifySignals(sigChan)

	go func() {
		select {
		case <-sigChan:
			cancel()
		case <-ctx.Done():
		}
	}()

	err := s.server.Run(ctx, &sdk.StdioTransport{})

	s.Close()

	return err
}

// Close releases the audit log. The driver and archive belong to the caller.
func (s *Server) Close() error {
	return s.auditLogger.Close()
}

// channel resolves an omitted channel to the configured default.
func (s *Server) channel(c int) int {
	if c == 0 {
		return s.defaults.Channel
	}
	return c
}

package mcp

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/nvandessel/wgfmu-sim/internal/archive"
	"github.com/nvandessel/wgfmu-sim/internal/plan"
	"github.com/nvandessel/wgfmu-sim/internal/wgfmu"
)

// setupTestServer builds a server around a simulator with no settling delay.
// withArchive also opens a temporary capture archive.
func setupTestServer(t *testing.T, withArchive bool) (*Server, *wgfmu.Simulator, string) {
	t.Helper()
	tmpDir := t.TempDir()

	sim := wgfmu.NewSimulator(wgfmu.WithSleep(func(time.Duration) {}))

	cfg := &Config{
		Name:     "test-server",
		Version:  "v1.0.0",
		Driver:   sim,
		Defaults: plan.Defaults{Instrument: "GPIB0::17::INSTR", Channel: 101},
		StateDir: tmpDir,
		PlanDirs: []string{filepath.Join(tmpDir, "plans")},
	}
	if withArchive {
		a, err := archive.Open(filepath.Join(tmpDir, "captures.db"))
		if err != nil {
			t.Fatalf("archive.Open failed: %v", err)
		}
		t.Cleanup(func() { a.Close() })
		cfg.Archive = a
	}

	server, err := NewServer(cfg)
	if err != nil {
		t.Fatalf("NewServer failed: %v", err)
	}
	t.Cleanup(func() { server.Close() })

	return server, sim, tmpDir
}

func TestNewServer(t *testing.T) {
	server, sim, _ := setupTestServer(t, false)

	if server.server == nil {
		t.Error("Server.server is nil")
	}
	if server.driver != sim {
		t.Error("Server.driver is not the configured driver")
	}
	if server.runner == nil {
		t.Error("Server.runner is nil")
	}
	if server.auditLogger == nil {
		t.Error("Server.auditLogger should be set when StateDir is given")
	}
}

func TestNewServer_RequiresDriver(t *testing.T) {
	if _, err := NewServer(&Config{Name: "x"}); err == nil {
		t.Error("expected error without a driver")
	}
}

func TestNewServer_NoStateDirNoAudit(t *testing.T) {
	server, err := NewServer(&Config{Name: "x", Driver: wgfmu.NewSimulator()})
	if err != nil {
		t.Fatalf("NewServer failed: %v", err)
	}
	if server.auditLogger != nil {
		t.Error("auditLogger should be nil without StateDir")
	}
	if err := server.Close(); err != nil {
		t.Errorf("Close() error = %v", err)
	}
}

func TestClose(t *testing.T) {
	server, _, tmpDir := setupTestServer(t, false)

	if err := server.Close(); err != nil {
		t.Errorf("Close() error = %v", err)
	}
	if err := server.Close(); err != nil {
		t.Errorf("Second Close() error = %v", err)
	}
	if _, err := os.Stat(filepath.Join(tmpDir, AuditFile)); err != nil {
		t.Errorf("audit file not created: %v", err)
	}
}

func TestNewServer_HasRateLimiters(t *testing.T) {
	server, _, _ := setupTestServer(t, false)

	for _, tool := range []string{
		"wgfmu_open_session",
		"wgfmu_close_session",
		"wgfmu_clear",
		"wgfmu_create_pattern",
		"wgfmu_add_vector",
		"wgfmu_add_sequence",
		"wgfmu_get_measure_values",
		"wgfmu_run_plan",
		"wgfmu_list_runs",
	} {
		if _, ok := server.toolLimiters[tool]; !ok {
			t.Errorf("missing rate limiter for tool: %s", tool)
		}
	}
}

func TestServer_Channel(t *testing.T) {
	server, _, _ := setupTestServer(t, false)

	if got := server.channel(0); got != 101 {
		t.Errorf("channel(0) = %d, want default 101", got)
	}
	if got := server.channel(202); got != 202 {
		t.Errorf("channel(202) = %d, want 202", got)
	}
}

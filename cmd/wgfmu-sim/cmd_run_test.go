package main

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/nvandessel/wgfmu-sim/internal/config"
	"github.com/nvandessel/wgfmu-sim/internal/logging"
)

type runOutput struct {
	Plan       string `json:"plan"`
	Instrument string `json:"instrument"`
	Channel    int    `json:"channel"`
	RunID      string `json:"run_id"`
	Samples    []struct {
		Time    float64  `json:"time"`
		Voltage float64  `json:"voltage"`
		Current *float64 `json:"current"`
	} `json:"samples"`
}

func TestRunCmd_JSON(t *testing.T) {
	isolateHome(t)
	skipSettling(t)

	out, err := execute(t, "run", writePlan(t), "--json")
	if err != nil {
		t.Fatalf("run failed: %v", err)
	}

	var got runOutput
	if err := json.Unmarshal([]byte(out), &got); err != nil {
		t.Fatalf("invalid JSON: %v\n%s", err, out)
	}
	if got.Plan != "pulse-train" || got.Instrument != "SIM::7" || got.Channel != 101 {
		t.Errorf("metadata = %+v", got)
	}
	if len(got.Samples) != 6 {
		t.Fatalf("samples = %d, want 6", len(got.Samples))
	}
	for i, s := range got.Samples {
		if s.Time != float64(i+1) {
			t.Errorf("time[%d] = %v, want %d", i, s.Time, i+1)
		}
		if s.Current == nil || *s.Current != s.Voltage/2 {
			t.Errorf("current[%d] = %v, want %v", i, s.Current, s.Voltage/2)
		}
	}
	if got.RunID != "" {
		t.Errorf("run_id = %q, want empty without --archive", got.RunID)
	}
}

func TestRunCmd_Table(t *testing.T) {
	isolateHome(t)
	skipSettling(t)

	out, err := execute(t, "run", writePlan(t))
	if err != nil {
		t.Fatalf("run failed: %v", err)
	}
	for _, want := range []string{"Plan pulse-train on SIM::7 channel 101: 6 samples", "TIME", "VOLTAGE", "CURRENT"} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
}

func TestRunCmd_Errors(t *testing.T) {
	isolateHome(t)
	skipSettling(t)

	if _, err := execute(t, "run"); err == nil {
		t.Error("run without a plan should fail")
	}
	if _, err := execute(t, "run", filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Error("run with a missing plan should fail")
	}

	single := filepath.Join(t.TempDir(), "single.yaml")
	os.WriteFile(single, []byte("name: single\npatterns: [{name: p, vectors: [{dt: 1, v: 1}]}]\n"), 0600)
	_, err := execute(t, "run", single)
	if err == nil || !strings.Contains(err.Error(), "unidentified") {
		t.Errorf("err = %v, want unidentified error for a one-sample plan", err)
	}
}

func TestRunCmd_DebugWritesEventLog(t *testing.T) {
	home := isolateHome(t)
	skipSettling(t)

	if _, err := execute(t, "run", writePlan(t), "--json", "--log-level", "debug"); err != nil {
		t.Fatalf("run failed: %v", err)
	}

	data, err := os.ReadFile(filepath.Join(home, config.DirName, logging.EventsFile))
	if err != nil {
		t.Fatalf("event log not written: %v", err)
	}
	if !strings.Contains(string(data), `"op":"get_measure_values"`) {
		t.Errorf("event log missing retrieval:\n%s", data)
	}
}

func TestRunCmd_ArchiveAndRuns(t *testing.T) {
	home := isolateHome(t)
	skipSettling(t)

	out, err := execute(t, "run", writePlan(t), "--archive", "--json")
	if err != nil {
		t.Fatalf("run --archive failed: %v", err)
	}
	var run runOutput
	if err := json.Unmarshal([]byte(out), &run); err != nil {
		t.Fatalf("invalid JSON: %v", err)
	}
	if run.RunID == "" {
		t.Fatal("expected run_id with --archive")
	}
	if _, err := os.Stat(filepath.Join(home, config.DirName, "captures.db")); err != nil {
		t.Errorf("archive not created in default location: %v", err)
	}

	out, err = execute(t, "runs", "list", "--json")
	if err != nil {
		t.Fatalf("runs list failed: %v", err)
	}
	var list struct {
		Count int `json:"count"`
		Runs  []struct {
			ID          string `json:"id"`
			SampleCount int    `json:"sample_count"`
		} `json:"runs"`
	}
	if err := json.Unmarshal([]byte(out), &list); err != nil {
		t.Fatalf("invalid JSON: %v", err)
	}
	if list.Count != 1 || list.Runs[0].ID != run.RunID || list.Runs[0].SampleCount != 6 {
		t.Errorf("list = %+v", list)
	}

	out, err = execute(t, "runs", "show", run.RunID)
	if err != nil {
		t.Fatalf("runs show failed: %v", err)
	}
	if !strings.Contains(out, run.RunID) || !strings.Contains(out, "Samples:    6") {
		t.Errorf("show output:\n%s", out)
	}

	if _, err := execute(t, "runs", "delete", run.RunID); err != nil {
		t.Fatalf("runs delete failed: %v", err)
	}
	if _, err := execute(t, "runs", "show", run.RunID); err == nil {
		t.Error("show after delete should fail")
	}

	out, err = execute(t, "runs", "list")
	if err != nil {
		t.Fatalf("runs list failed: %v", err)
	}
	if !strings.Contains(out, "No archived runs.") {
		t.Errorf("list output = %q", out)
	}
}

func TestRunCmd_ArchiveEnabledByEnv(t *testing.T) {
	isolateHome(t)
	skipSettling(t)

	dbPath := filepath.Join(t.TempDir(), "env.db")
	t.Setenv("WGFMU_ARCHIVE_ENABLED", "true")
	t.Setenv("WGFMU_ARCHIVE_PATH", dbPath)

	out, err := execute(t, "run", writePlan(t), "--json")
	if err != nil {
		t.Fatalf("run failed: %v", err)
	}
	if !strings.Contains(out, `"run_id"`) {
		t.Errorf("expected run_id when archive is enabled by env:\n%s", out)
	}
	if _, err := os.Stat(dbPath); err != nil {
		t.Errorf("archive not created at env path: %v", err)
	}
}

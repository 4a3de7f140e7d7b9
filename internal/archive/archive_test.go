package archive

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/nvandessel/wgfmu-sim/internal/plan"
	"github.com/nvandessel/wgfmu-sim/internal/wgfmu"
)

func openTestArchive(t *testing.T) *Archive {
	t.Helper()
	a, err := Open(filepath.Join(t.TempDir(), "nested", "captures.db"))
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	t.Cleanup(func() { a.Close() })
	return a
}

func testCapture(name string) *plan.Capture {
	sim := wgfmu.NewSimulator(wgfmu.WithSleep(func(time.Duration) {}))
	sim.CreatePattern("P1", 0)
	sim.AddVector("P1", 1, 5)
	sim.AddVector("P1", 1, 10)
	sim.AddSequence(101, "P1", 3)
	samples, _ := sim.GetMeasureValues(101)

	started := time.Date(2026, 10, 19, 9, 0, 0, 0, time.UTC)
	return &plan.Capture{
		Plan:       name,
		Instrument: "GPIB0::17::INSTR",
		Channel:    101,
		Samples:    samples,
		StartedAt:  started,
		FinishedAt: started.Add(4 * time.Second),
	}
}

func TestSaveAndGet(t *testing.T) {
	a := openTestArchive(t)
	ctx := context.Background()

	id, err := a.Save(ctx, testCapture("pulse-train"))
	if err != nil {
		t.Fatalf("Save failed: %v", err)
	}
	if id == "" {
		t.Fatal("expected a run ID")
	}

	run, err := a.Get(ctx, id)
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if run.Plan != "pulse-train" || run.Channel != 101 || run.Instrument != "GPIB0::17::INSTR" {
		t.Errorf("run = %+v", run)
	}
	if run.SampleCount != 6 {
		t.Errorf("SampleCount = %d, want 6", run.SampleCount)
	}
	if run.Duration != 6 {
		t.Errorf("Duration = %v, want 6", run.Duration)
	}
	if !run.FinishedAt.Equal(run.StartedAt.Add(4 * time.Second)) {
		t.Errorf("timestamps = %v / %v", run.StartedAt, run.FinishedAt)
	}
	if run.CreatedAt.IsZero() {
		t.Error("expected CreatedAt to be set")
	}
}

func TestSamplesRoundTrip(t *testing.T) {
	a := openTestArchive(t)
	ctx := context.Background()

	c := testCapture("pulse-train")
	c.Samples = append(c.Samples, wgfmu.Measurement{Voltage: 1, Time: 7}) // no current
	id, err := a.Save(ctx, c)
	if err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	got, err := a.Samples(ctx, id)
	if err != nil {
		t.Fatalf("Samples failed: %v", err)
	}
	if len(got) != len(c.Samples) {
		t.Fatalf("len = %d, want %d", len(got), len(c.Samples))
	}
	for i := range c.Samples {
		if got[i].Time != c.Samples[i].Time || got[i].Voltage != c.Samples[i].Voltage {
			t.Errorf("sample %d = %+v, want %+v", i, got[i], c.Samples[i])
		}
	}
	if got[0].Current == nil || *got[0].Current != 2.5 {
		t.Errorf("sample 0 current = %v, want 2.5", got[0].Current)
	}
	if got[len(got)-1].Current != nil {
		t.Error("missing current should stay nil")
	}
}

func TestListOrderAndLimit(t *testing.T) {
	a := openTestArchive(t)
	ctx := context.Background()

	base := time.Date(2026, 10, 19, 10, 0, 0, 0, time.UTC)
	var ids []string
	for i, name := range []string{"first", "second", "third"} {
		at := base.Add(time.Duration(i) * time.Millisecond)
		a.nowFunc = func() time.Time { return at }
		id, err := a.Save(ctx, testCapture(name))
		if err != nil {
			t.Fatalf("Save(%s) failed: %v", name, err)
		}
		ids = append(ids, id)
	}

	runs, err := a.List(ctx, 0)
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if len(runs) != 3 {
		t.Fatalf("len = %d, want 3", len(runs))
	}
	if runs[0].ID != ids[2] || runs[2].ID != ids[0] {
		t.Errorf("order = %s, %s, %s; want newest first", runs[0].Plan, runs[1].Plan, runs[2].Plan)
	}

	limited, err := a.List(ctx, 2)
	if err != nil {
		t.Fatalf("List(2) failed: %v", err)
	}
	if len(limited) != 2 || limited[0].Plan != "third" {
		t.Errorf("limited = %+v, want third, second", limited)
	}
}

func TestList_Empty(t *testing.T) {
	a := openTestArchive(t)
	runs, err := a.List(context.Background(), 10)
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if runs == nil || len(runs) != 0 {
		t.Errorf("runs = %v, want empty non-nil slice", runs)
	}
}

func TestDelete(t *testing.T) {
	a := openTestArchive(t)
	ctx := context.Background()

	id, err := a.Save(ctx, testCapture("doomed"))
	if err != nil {
		t.Fatalf("Save failed: %v", err)
	}
	if err := a.Delete(ctx, id); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}

	if _, err := a.Get(ctx, id); !errors.Is(err, ErrRunNotFound) {
		t.Errorf("Get after delete = %v, want ErrRunNotFound", err)
	}
	if _, err := a.Samples(ctx, id); !errors.Is(err, ErrRunNotFound) {
		t.Errorf("Samples after delete = %v, want ErrRunNotFound", err)
	}

	var orphans int
	if err := a.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM samples WHERE run_id = ?`, id).Scan(&orphans); err != nil {
		t.Fatalf("count samples: %v", err)
	}
	if orphans != 0 {
		t.Errorf("orphan samples = %d, want 0 (cascade)", orphans)
	}

	if err := a.Delete(ctx, id); !errors.Is(err, ErrRunNotFound) {
		t.Errorf("second Delete = %v, want ErrRunNotFound", err)
	}
}

func TestOpen_Reopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "captures.db")
	ctx := context.Background()

	a, err := Open(path)
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	id, err := a.Save(ctx, testCapture("persisted"))
	if err != nil {
		t.Fatalf("Save failed: %v", err)
	}
	a.Close()

	b, err := Open(path)
	if err != nil {
		t.Fatalf("reopen failed: %v", err)
	}
	defer b.Close()

	if b.Path() != path {
		t.Errorf("Path = %q, want %q", b.Path(), path)
	}
	if _, err := b.Get(ctx, id); err != nil {
		t.Errorf("Get after reopen: %v", err)
	}

	version, err := getSchemaVersion(ctx, b.db)
	if err != nil || version != SchemaVersion {
		t.Errorf("schema version = %d, %v; want %d", version, err, SchemaVersion)
	}
}

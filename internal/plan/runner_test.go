package plan

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/nvandessel/wgfmu-sim/internal/wgfmu"
)

// recordingDriver wraps the simulator, records run-control calls and can
// fail a named call.
type recordingDriver struct {
	*wgfmu.Simulator
	calls  []string
	failOn map[string]error
}

func newRecordingDriver() *recordingDriver {
	return &recordingDriver{
		Simulator: wgfmu.NewSimulator(wgfmu.WithSleep(func(time.Duration) {})),
		failOn:    map[string]error{},
	}
}

func (d *recordingDriver) record(op string) error {
	d.calls = append(d.calls, op)
	return d.failOn[op]
}

func (d *recordingDriver) OpenSession(instrument string) error {
	if err := d.record("open_session " + instrument); err != nil {
		return err
	}
	return d.Simulator.OpenSession(instrument)
}

func (d *recordingDriver) CloseSession() error {
	if err := d.record("close_session"); err != nil {
		return err
	}
	return d.Simulator.CloseSession()
}

func (d *recordingDriver) Connect(chanID int) error {
	if err := d.record("connect"); err != nil {
		return err
	}
	return d.Simulator.Connect(chanID)
}

func (d *recordingDriver) GetMeasureValues(chanID int) ([]wgfmu.Measurement, error) {
	if err := d.record("get_measure_values"); err != nil {
		return nil, err
	}
	return d.Simulator.GetMeasureValues(chanID)
}

func loadTestPlan(t *testing.T) *Plan {
	t.Helper()
	p, err := Load(filepath.Join("testdata", "pulse-train.yaml"))
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	return p
}

func TestRunner_Run(t *testing.T) {
	d := newRecordingDriver()
	r := NewRunner(d, nil, Defaults{Instrument: "default", Channel: 202})

	started := time.Date(2026, 10, 19, 12, 0, 0, 0, time.UTC)
	r.nowFunc = func() time.Time { return started }

	capture, err := r.Run(context.Background(), loadTestPlan(t))
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	if capture.Plan != "pulse-train" || capture.Instrument != "GPIB0::17::INSTR" || capture.Channel != 101 {
		t.Errorf("capture metadata = %+v", capture)
	}
	if !capture.StartedAt.Equal(started) || !capture.FinishedAt.Equal(started) {
		t.Errorf("timestamps = %v / %v, want %v", capture.StartedAt, capture.FinishedAt, started)
	}

	wantTimes := []float64{1, 2, 3, 4, 5, 6}
	if len(capture.Samples) != len(wantTimes) {
		t.Fatalf("samples = %d, want %d", len(capture.Samples), len(wantTimes))
	}
	for i, want := range wantTimes {
		if capture.Samples[i].Time != want {
			t.Errorf("time[%d] = %v, want %v", i, capture.Samples[i].Time, want)
		}
	}
	if capture.Duration() != 6 {
		t.Errorf("Duration = %v, want 6", capture.Duration())
	}

	wantCalls := []string{"open_session GPIB0::17::INSTR", "connect", "get_measure_values", "close_session"}
	if len(d.calls) != len(wantCalls) {
		t.Fatalf("calls = %v, want %v", d.calls, wantCalls)
	}
	for i := range wantCalls {
		if d.calls[i] != wantCalls[i] {
			t.Errorf("call[%d] = %q, want %q", i, d.calls[i], wantCalls[i])
		}
	}

	// session closed: the store is empty again
	if d.Patterns().Len() != 0 {
		t.Errorf("patterns after run = %d, want 0", d.Patterns().Len())
	}
}

func TestRunner_AppliesDefaults(t *testing.T) {
	d := newRecordingDriver()
	r := NewRunner(d, nil, Defaults{Instrument: "SIM::1", Channel: 202})

	p := &Plan{
		Name:     "defaults",
		Patterns: []PatternSpec{{Name: "p", Vectors: []VectorSpec{{DT: 1, V: 1}, {DT: 1, V: 2}}}},
	}
	capture, err := r.Run(context.Background(), p)
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if capture.Instrument != "SIM::1" || capture.Channel != 202 {
		t.Errorf("capture = %s/%d, want SIM::1/202", capture.Instrument, capture.Channel)
	}
	if len(capture.Samples) != 2 {
		t.Errorf("samples = %d, want 2", len(capture.Samples))
	}
}

func TestRunner_NoDataFails(t *testing.T) {
	d := newRecordingDriver()
	r := NewRunner(d, nil, Defaults{Channel: 101})

	p := &Plan{Name: "single", Patterns: []PatternSpec{{Name: "p", Vectors: []VectorSpec{{DT: 1, V: 1}}}}}
	_, err := r.Run(context.Background(), p)
	if !errors.Is(err, wgfmu.ErrUnidentified) {
		t.Fatalf("err = %v, want ErrUnidentified", err)
	}
	if last := d.calls[len(d.calls)-1]; last != "close_session" {
		t.Errorf("last call = %q, want close_session after failure", last)
	}
}

func TestRunner_StepFailureAborts(t *testing.T) {
	d := newRecordingDriver()
	d.failOn["connect"] = wgfmu.StatusChannelNotFound
	r := NewRunner(d, nil, Defaults{Channel: 101})

	_, err := r.Run(context.Background(), loadTestPlan(t))
	if !errors.Is(err, wgfmu.StatusChannelNotFound) {
		t.Fatalf("err = %v, want channel not found", err)
	}
	for _, call := range d.calls {
		if call == "get_measure_values" {
			t.Error("retrieval should not run after a failed connect")
		}
	}
	if last := d.calls[len(d.calls)-1]; last != "close_session" {
		t.Errorf("last call = %q, want close_session", last)
	}
}

func TestRunner_OpenFailureSkipsClose(t *testing.T) {
	d := newRecordingDriver()
	d.failOn["open_session GPIB0::17::INSTR"] = wgfmu.StatusCommunication
	r := NewRunner(d, nil, Defaults{})

	_, err := r.Run(context.Background(), loadTestPlan(t))
	if !errors.Is(err, wgfmu.StatusCommunication) {
		t.Fatalf("err = %v, want communication error", err)
	}
	if len(d.calls) != 1 {
		t.Errorf("calls = %v, want only open_session", d.calls)
	}
}

func TestRunner_CloseFailureReported(t *testing.T) {
	d := newRecordingDriver()
	d.failOn["close_session"] = wgfmu.StatusLibrary
	r := NewRunner(d, nil, Defaults{})

	_, err := r.Run(context.Background(), loadTestPlan(t))
	if !errors.Is(err, wgfmu.StatusLibrary) {
		t.Fatalf("err = %v, want library error from close", err)
	}
}

func TestRunner_CanceledContext(t *testing.T) {
	d := newRecordingDriver()
	r := NewRunner(d, nil, Defaults{})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := r.Run(ctx, loadTestPlan(t))
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v, want context.Canceled", err)
	}
	if len(d.calls) != 0 {
		t.Errorf("calls = %v, want none", d.calls)
	}
}

func TestRunner_CanceledDuringSettling(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	d := newRecordingDriver()
	d.Simulator = wgfmu.NewSimulator(wgfmu.WithSleep(func(time.Duration) { cancel() }))
	r := NewRunner(d, nil, Defaults{})

	capture, err := r.Run(ctx, loadTestPlan(t))
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v, want context.Canceled", err)
	}
	if capture != nil {
		t.Errorf("capture = %+v, want nil after an interrupted settling wait", capture)
	}
	if !strings.HasPrefix(err.Error(), "get_measure_values") {
		t.Errorf("err = %q, want it attributed to get_measure_values", err)
	}
	if last := d.calls[len(d.calls)-1]; last != "close_session" {
		t.Errorf("last call = %q, want close_session", last)
	}
}

func TestRunner_InvalidPlan(t *testing.T) {
	r := NewRunner(newRecordingDriver(), nil, Defaults{})
	if _, err := r.Run(context.Background(), &Plan{}); err == nil {
		t.Error("expected validation error")
	}
}

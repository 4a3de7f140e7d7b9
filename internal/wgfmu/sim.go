package wgfmu

import (
	"context"
	"log/slog"
	"time"

	"github.com/nvandessel/wgfmu-sim/internal/logging"
)

// SettlingDelay is the acquisition latency emulated by GetMeasureValues.
const SettlingDelay = 4000 * time.Millisecond

// Simulator is an in-memory Driver. Patterns live in a PatternStore owned by
// the Simulator; run-control and configuration calls always succeed.
//
// A Simulator is not safe for concurrent use. Callers sharing one across
// goroutines must serialize access.
type Simulator struct {
	store      *PatternStore
	logger     *slog.Logger
	events     *logging.EventLog
	sleep      func(time.Duration)
	instrument string
}

var _ Driver = (*Simulator)(nil)

// Option configures a Simulator.
type Option func(*Simulator)

// WithLogger sets the operational logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Simulator) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithEventLog records every driver call to el.
func WithEventLog(el *logging.EventLog) Option {
	return func(s *Simulator) { s.events = el }
}

// WithSleep replaces the function used to wait out SettlingDelay.
func WithSleep(sleep func(time.Duration)) Option {
	return func(s *Simulator) {
		if sleep != nil {
			s.sleep = sleep
		}
	}
}

// NewSimulator returns a Simulator with an empty pattern store.
func NewSimulator(opts ...Option) *Simulator {
	s := &Simulator{
		store:  NewPatternStore(),
		logger: logging.Discard(),
		sleep:  time.Sleep,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Patterns exposes the simulator's pattern store for inspection.
func (s *Simulator) Patterns() *PatternStore {
	return s.store
}

// Instrument returns the address passed to the last OpenSession.
func (s *Simulator) Instrument() string {
	return s.instrument
}

// complete maps code to an error and records the call.
func (s *Simulator) complete(ev logging.Event, code int) error {
	err := CheckStatus(code)
	ev.Status = "ok"
	if err != nil {
		ev.Status = "error"
		ev.Error = err.Error()
	}
	s.events.Log(ev)

	level := slog.LevelDebug
	if ev.Op == "add_vector" {
		level = logging.LevelTrace
	}
	s.logger.Log(context.Background(), level, "wgfmu call",
		slog.String("op", ev.Op),
		slog.String("pattern", ev.Pattern),
		slog.Int("channel", ev.Channel),
		slog.Int("samples", ev.Samples),
		slog.String("status", ev.Status))
	return err
}

func (s *Simulator) OpenSession(instrument string) error {
	s.instrument = instrument
	return s.complete(logging.Event{Op: "open_session"}, codeOK)
}

// CloseSession discards every pattern.
func (s *Simulator) CloseSession() error {
	s.store.Clear()
	return s.complete(logging.Event{Op: "close_session"}, codeOK)
}

func (s *Simulator) Initialize() error {
	return s.complete(logging.Event{Op: "initialize"}, codeOK)
}

// Clear discards every pattern.
func (s *Simulator) Clear() error {
	s.store.Clear()
	return s.complete(logging.Event{Op: "clear"}, codeOK)
}

// CreatePattern creates an empty pattern, replacing any pattern of the same
// name.
func (s *Simulator) CreatePattern(pattern string, initV float64) error {
	s.store.Create(pattern, initV)
	return s.complete(logging.Event{Op: "create_pattern", Pattern: pattern}, codeOK)
}

// AddVector appends a sample dTime after the end of the pattern. Steps that
// are not strictly positive are replaced by MinDeltaTime. Unknown patterns
// are ignored.
func (s *Simulator) AddVector(pattern string, dTime, voltage float64) error {
	if !s.store.Append(pattern, dTime, voltage) {
		s.logger.Debug("add_vector on unknown pattern ignored", slog.String("pattern", pattern))
	}
	return s.complete(logging.Event{Op: "add_vector", Pattern: pattern, Samples: s.store.Count(pattern)}, codeOK)
}

// SetVector is accepted and has no effect on the timeline.
func (s *Simulator) SetVector(pattern string, time, voltage float64) error {
	return s.complete(logging.Event{Op: "set_vector", Pattern: pattern}, codeOK)
}

func (s *Simulator) SetMeasureEvent(pattern, event string, time float64, points int, interval, average float64, mode MeasureEventMode) error {
	return s.complete(logging.Event{Op: "set_measure_event", Pattern: pattern}, codeOK)
}

// AddSequence tiles the pattern so that it holds count cycles. The channel
// is accepted but not recorded. Unknown patterns are ignored.
func (s *Simulator) AddSequence(chanID int, pattern string, count int) error {
	if !s.store.Replicate(pattern, count) {
		s.logger.Debug("add_sequence on unknown pattern ignored", slog.String("pattern", pattern))
	}
	return s.complete(logging.Event{Op: "add_sequence", Pattern: pattern, Channel: chanID, Samples: s.store.Count(pattern)}, codeOK)
}

func (s *Simulator) SetOperationMode(chanID int, mode OperationMode) error {
	return s.complete(logging.Event{Op: "set_operation_mode", Channel: chanID}, codeOK)
}

// GetOperationMode always reports OperationModeFastIV.
func (s *Simulator) GetOperationMode(chanID int) (OperationMode, error) {
	if err := s.complete(logging.Event{Op: "get_operation_mode", Channel: chanID}, codeOK); err != nil {
		return 0, err
	}
	return OperationModeFastIV, nil
}

func (s *Simulator) SetMeasureMode(chanID int, mode MeasureMode) error {
	return s.complete(logging.Event{Op: "set_measure_mode", Channel: chanID}, codeOK)
}

// GetMeasureMode always reports MeasureModeCurrent.
func (s *Simulator) GetMeasureMode(chanID int) (MeasureMode, error) {
	if err := s.complete(logging.Event{Op: "get_measure_mode", Channel: chanID}, codeOK); err != nil {
		return 0, err
	}
	return MeasureModeCurrent, nil
}

func (s *Simulator) Connect(chanID int) error {
	return s.complete(logging.Event{Op: "connect", Channel: chanID}, codeOK)
}

func (s *Simulator) Execute() error {
	return s.complete(logging.Event{Op: "execute"}, codeOK)
}

func (s *Simulator) WaitUntilCompleted() error {
	return s.complete(logging.Event{Op: "wait_until_completed"}, codeOK)
}

// GetMeasureValues waits SettlingDelay, then returns the samples of the first
// pattern in store order holding more than one sample. chanID does not take
// part in the selection. It returns ErrUnidentified when no pattern
// qualifies.
func (s *Simulator) GetMeasureValues(chanID int) ([]Measurement, error) {
	s.sleep(SettlingDelay)

	name, samples, ok := s.store.FirstWithMoreThan(1)
	if !ok {
		s.events.Log(logging.Event{Op: "get_measure_values", Channel: chanID, Status: "error", Error: ErrUnidentified.Error()})
		s.logger.Warn("no pattern holds captured data",
			slog.Int("channel", chanID),
			slog.Any("patterns", s.store.names()))
		return nil, ErrUnidentified
	}

	s.logger.Info("measure values retrieved",
		slog.Int("channel", chanID),
		slog.String("pattern", name),
		slog.Int("samples", len(samples)))
	if err := s.complete(logging.Event{Op: "get_measure_values", Pattern: name, Channel: chanID, Samples: len(samples)}, codeOK); err != nil {
		return nil, err
	}
	return samples, nil
}

func (s *Simulator) DoSelfCalibration() error {
	return s.complete(logging.Event{Op: "do_self_calibration"}, codeOK)
}

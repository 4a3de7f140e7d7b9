package plan

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/nvandessel/wgfmu-sim/internal/logging"
	"github.com/nvandessel/wgfmu-sim/internal/wgfmu"
)

// Capture is the outcome of one executed plan.
type Capture struct {
	Plan       string              `json:"plan"`
	Instrument string              `json:"instrument"`
	Channel    int                 `json:"channel"`
	Samples    []wgfmu.Measurement `json:"samples"`
	StartedAt  time.Time           `json:"started_at"`
	FinishedAt time.Time           `json:"finished_at"`
}

// Duration returns the time of the last captured sample.
func (c *Capture) Duration() float64 {
	if len(c.Samples) == 0 {
		return 0
	}
	return c.Samples[len(c.Samples)-1].Time
}

// Defaults fill plan fields left empty.
type Defaults struct {
	Instrument string
	Channel    int
}

// Runner executes plans against a driver.
type Runner struct {
	driver   wgfmu.Driver
	logger   *slog.Logger
	defaults Defaults
	nowFunc  func() time.Time // injectable clock for testing
}

// NewRunner creates a runner. A nil logger discards output.
func NewRunner(driver wgfmu.Driver, logger *slog.Logger, defaults Defaults) *Runner {
	if logger == nil {
		logger = logging.Discard()
	}
	return &Runner{
		driver:   driver,
		logger:   logger,
		defaults: defaults,
		nowFunc:  time.Now,
	}
}

// step runs one driver call unless ctx is done, wrapping its error with name.
func step(ctx context.Context, name string, call func() error) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("%s: %w", name, err)
	}
	if err := call(); err != nil {
		return fmt.Errorf("%s: %w", name, err)
	}
	return nil
}

// Run executes p in the canonical order: open session, initialize, author
// patterns, add sequences, configure the channel, connect, execute, wait,
// retrieve, close session. The first failing step aborts the run; once the
// session is open, closing it is always attempted.
func (r *Runner) Run(ctx context.Context, p *Plan) (_ *Capture, retErr error) {
	if err := p.Validate(); err != nil {
		return nil, fmt.Errorf("invalid plan %q: %w", p.Name, err)
	}

	instrument := p.Instrument
	if instrument == "" {
		instrument = r.defaults.Instrument
	}
	channel := p.Channel
	if channel == 0 {
		channel = r.defaults.Channel
	}
	opMode, _ := p.operationMode()
	measMode, _ := p.measureMode()

	capture := &Capture{
		Plan:       p.Name,
		Instrument: instrument,
		Channel:    channel,
		StartedAt:  r.nowFunc(),
	}

	r.logger.Info("running plan",
		slog.String("plan", p.Name),
		slog.String("instrument", instrument),
		slog.Int("channel", channel),
		slog.Int("patterns", len(p.Patterns)))

	d := r.driver
	if err := step(ctx, "open_session", func() error { return d.OpenSession(instrument) }); err != nil {
		return nil, err
	}
	defer func() {
		if err := d.CloseSession(); err != nil && retErr == nil {
			retErr = fmt.Errorf("close_session: %w", err)
		}
	}()

	if err := step(ctx, "initialize", d.Initialize); err != nil {
		return nil, err
	}

	for _, ps := range p.Patterns {
		if err := r.author(ctx, ps); err != nil {
			return nil, err
		}
	}

	for _, seq := range p.Sequences {
		if err := step(ctx, "add_sequence "+seq.Pattern, func() error {
			return d.AddSequence(channel, seq.Pattern, seq.Count)
		}); err != nil {
			return nil, err
		}
	}

	configure := []struct {
		name string
		call func() error
	}{
		{"set_operation_mode", func() error { return d.SetOperationMode(channel, opMode) }},
		{"set_measure_mode", func() error { return d.SetMeasureMode(channel, measMode) }},
		{"connect", func() error { return d.Connect(channel) }},
		{"execute", d.Execute},
		{"wait_until_completed", d.WaitUntilCompleted},
	}
	for _, c := range configure {
		if err := step(ctx, c.name, c.call); err != nil {
			return nil, err
		}
	}

	// The driver's settling wait may end early on cancellation; such a
	// capture never settled and is discarded.
	if err := step(ctx, "get_measure_values", func() error {
		samples, err := d.GetMeasureValues(channel)
		if err != nil {
			return err
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		capture.Samples = samples
		return nil
	}); err != nil {
		return nil, err
	}

	capture.FinishedAt = r.nowFunc()
	r.logger.Info("plan completed",
		slog.String("plan", p.Name),
		slog.Int("samples", len(capture.Samples)),
		slog.Float64("duration", capture.Duration()))
	return capture, nil
}

// author creates one pattern with its vectors and measure events.
func (r *Runner) author(ctx context.Context, ps PatternSpec) error {
	d := r.driver
	if err := step(ctx, "create_pattern "+ps.Name, func() error {
		return d.CreatePattern(ps.Name, ps.InitialVoltage)
	}); err != nil {
		return err
	}

	for i, v := range ps.Vectors {
		if err := step(ctx, fmt.Sprintf("add_vector %s[%d]", ps.Name, i), func() error {
			return d.AddVector(ps.Name, v.DT, v.V)
		}); err != nil {
			return err
		}
	}

	for _, ev := range ps.Events {
		mode, _ := ev.mode()
		if err := step(ctx, "set_measure_event "+ev.Name, func() error {
			return d.SetMeasureEvent(ps.Name, ev.Name, ev.Time, ev.Points, ev.Interval, ev.Average, mode)
		}); err != nil {
			return err
		}
	}

	r.logger.Debug("pattern authored",
		slog.String("pattern", ps.Name),
		slog.Int("vectors", len(ps.Vectors)),
		slog.Int("events", len(ps.Events)))
	return nil
}

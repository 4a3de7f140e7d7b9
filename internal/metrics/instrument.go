package metrics

import (
	"context"
	"time"

	"github.com/nvandessel/wgfmu-sim/internal/wgfmu"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const tracerName = "github.com/nvandessel/wgfmu-sim/internal/metrics"

// Option configures Instrument.
type Option func(*instrumented)

// WithTracerProvider sets the provider spans are created from. The global
// provider is used otherwise.
func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(d *instrumented) {
		d.tracer = tp.Tracer(tracerName)
	}
}

// patternLister is implemented by drivers that can report their store size.
type patternLister interface {
	Patterns() *wgfmu.PatternStore
}

type instrumented struct {
	next   wgfmu.Driver
	stats  *Stats
	tracer trace.Tracer
}

// Instrument wraps d so that every call is counted, timed and traced.
// Results and errors from d are returned unchanged.
func Instrument(d wgfmu.Driver, stats *Stats, opts ...Option) wgfmu.Driver {
	in := &instrumented{
		next:   d,
		stats:  stats,
		tracer: otel.Tracer(tracerName),
	}
	for _, opt := range opts {
		opt(in)
	}
	return in
}

type call struct {
	op    string
	span  trace.Span
	began time.Time
}

func (d *instrumented) start(op string, attrs ...attribute.KeyValue) call {
	_, span := d.tracer.Start(context.Background(), "wgfmu."+op, trace.WithAttributes(attrs...))
	return call{op: op, span: span, began: time.Now()}
}

func (d *instrumented) end(c call, err error) error {
	status := statusLabel(err)
	d.stats.Operations.WithLabelValues(c.op, status).Inc()
	d.stats.OperationSeconds.WithLabelValues(c.op).Observe(time.Since(c.began).Seconds())

	if pl, ok := d.next.(patternLister); ok {
		d.stats.Patterns.Set(float64(pl.Patterns().Len()))
	}

	c.span.SetAttributes(attribute.String("wgfmu.status", status))
	if err != nil {
		c.span.RecordError(err)
		c.span.SetStatus(codes.Error, err.Error())
	}
	c.span.End()
	return err
}

func chanAttr(chanID int) attribute.KeyValue {
	return attribute.Int("wgfmu.channel", chanID)
}

func patternAttr(pattern string) attribute.KeyValue {
	return attribute.String("wgfmu.pattern", pattern)
}

func (d *instrumented) OpenSession(instrument string) error {
	c := d.start("open_session", attribute.String("wgfmu.instrument", instrument))
	return d.end(c, d.next.OpenSession(instrument))
}

func (d *instrumented) CloseSession() error {
	c := d.start("close_session")
	return d.end(c, d.next.CloseSession())
}

func (d *instrumented) Initialize() error {
	c := d.start("initialize")
	return d.end(c, d.next.Initialize())
}

func (d *instrumented) Clear() error {
	c := d.start("clear")
	return d.end(c, d.next.Clear())
}

func (d *instrumented) CreatePattern(pattern string, initV float64) error {
	c := d.start("create_pattern", patternAttr(pattern))
	return d.end(c, d.next.CreatePattern(pattern, initV))
}

func (d *instrumented) AddVector(pattern string, dTime, voltage float64) error {
	c := d.start("add_vector", patternAttr(pattern))
	return d.end(c, d.next.AddVector(pattern, dTime, voltage))
}

func (d *instrumented) SetVector(pattern string, time, voltage float64) error {
	c := d.start("set_vector", patternAttr(pattern))
	return d.end(c, d.next.SetVector(pattern, time, voltage))
}

func (d *instrumented) SetMeasureEvent(pattern, event string, time float64, points int, interval, average float64, mode wgfmu.MeasureEventMode) error {
	c := d.start("set_measure_event", patternAttr(pattern), attribute.String("wgfmu.event", event))
	return d.end(c, d.next.SetMeasureEvent(pattern, event, time, points, interval, average, mode))
}

func (d *instrumented) AddSequence(chanID int, pattern string, count int) error {
	c := d.start("add_sequence", chanAttr(chanID), patternAttr(pattern), attribute.Int("wgfmu.count", count))
	return d.end(c, d.next.AddSequence(chanID, pattern, count))
}

func (d *instrumented) SetOperationMode(chanID int, mode wgfmu.OperationMode) error {
	c := d.start("set_operation_mode", chanAttr(chanID), attribute.String("wgfmu.mode", mode.String()))
	return d.end(c, d.next.SetOperationMode(chanID, mode))
}

func (d *instrumented) GetOperationMode(chanID int) (wgfmu.OperationMode, error) {
	c := d.start("get_operation_mode", chanAttr(chanID))
	mode, err := d.next.GetOperationMode(chanID)
	return mode, d.end(c, err)
}

func (d *instrumented) SetMeasureMode(chanID int, mode wgfmu.MeasureMode) error {
	c := d.start("set_measure_mode", chanAttr(chanID), attribute.String("wgfmu.mode", mode.String()))
	return d.end(c, d.next.SetMeasureMode(chanID, mode))
}

func (d *instrumented) GetMeasureMode(chanID int) (wgfmu.MeasureMode, error) {
	c := d.start("get_measure_mode", chanAttr(chanID))
	mode, err := d.next.GetMeasureMode(chanID)
	return mode, d.end(c, err)
}

func (d *instrumented) Connect(chanID int) error {
	c := d.start("connect", chanAttr(chanID))
	return d.end(c, d.next.Connect(chanID))
}

func (d *instrumented) Execute() error {
	c := d.start("execute")
	return d.end(c, d.next.Execute())
}

func (d *instrumented) WaitUntilCompleted() error {
	c := d.start("wait_until_completed")
	return d.end(c, d.next.WaitUntilCompleted())
}

func (d *instrumented) GetMeasureValues(chanID int) ([]wgfmu.Measurement, error) {
	c := d.start("get_measure_values", chanAttr(chanID))
	samples, err := d.next.GetMeasureValues(chanID)
	if err == nil {
		d.stats.RetrievedSamples.Observe(float64(len(samples)))
		c.span.SetAttributes(attribute.Int("wgfmu.samples", len(samples)))
	}
	return samples, d.end(c, err)
}

func (d *instrumented) DoSelfCalibration() error {
	c := d.start("do_self_calibration")
	return d.end(c, d.next.DoSelfCalibration())
}

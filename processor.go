package apm

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
)

// State is the lifecycle state of a Processor's engine slot.
type State int

const (
	// StateUnconfigured means Configure has never been called.
	StateUnconfigured State = iota
	// StateConfigured means a configuration is staged but no engine is live.
	StateConfigured
	// StateEngineLive means an initialized engine is installed.
	StateEngineLive
)

func (s State) String() string {
	switch s {
	case StateUnconfigured:
		return "unconfigured"
	case StateConfigured:
		return "configured"
	case StateEngineLive:
		return "engine_live"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

type options struct {
	logger        *logrus.Logger
	meterProvider metric.MeterProvider
}

// Option configures a Processor.
type Option func(*options)

// WithLogger sets the logger used by the Processor. Configure adjusts its
// level from ProcessingConfig.LogVerbosity. Without this option the
// Processor logs to a private logger.
func WithLogger(logger *logrus.Logger) Option {
	return func(o *options) {
		if logger != nil {
			o.logger = logger
		}
	}
}

// WithMeterProvider sets the meter provider metrics are recorded on.
func WithMeterProvider(mp metric.MeterProvider) Option {
	return func(o *options) {
		o.meterProvider = mp
	}
}

// Processor owns one lazily constructed Engine and the configuration it is
// built from. Every exported method holds a single mutex for its entire
// body, so configuration, construction, teardown and both stream
// directions are linearized and never run concurrently against the engine.
type Processor struct {
	mu sync.Mutex

	factory    EngineFactory
	config     ProcessingConfig
	configured bool
	engine     Engine
	builds     uint64
	closed     bool

	log     *logrus.Logger
	metrics *Metrics
}

// NewProcessor creates an unconfigured Processor that builds engines with
// factory. No engine is built until the first stream or delay call after
// Configure.
func NewProcessor(factory EngineFactory, opts ...Option) (*Processor, error) {
	if factory == nil {
		return nil, ErrNilFactory
	}

	o := options{
		meterProvider: otel.GetMeterProvider(),
	}
	for _, opt := range opts {
		opt(&o)
	}
	if o.logger == nil {
		o.logger = logrus.New()
		o.logger.SetLevel(DefaultConfig().LogVerbosity.Level())
	}

	met, err := NewMetrics(o.meterProvider)
	if err != nil {
		return nil, fmt.Errorf("create metrics: %w", err)
	}

	o.logger.WithFields(logrus.Fields{
		"function": "NewProcessor",
	}).Debug("Audio processor created")

	return &Processor{
		factory: factory,
		config:  DefaultConfig(),
		log:     o.logger,
		metrics: met,
	}, nil
}

// Configure stages cfg as the configuration for the next engine
// construction. It replaces every field, marks the Processor configured and
// leaves any live engine untouched: a live engine observes cfg only after
// Teardown and the lazy rebuild that follows.
//
// Out-of-range selectors are rejected with ErrInvalidSelector and the stored
// configuration is not modified.
func (p *Processor) Configure(cfg ProcessingConfig) error {
	if err := cfg.validate(); err != nil {
		p.log.WithFields(logrus.Fields{
			"function": "Configure",
			"error":    err.Error(),
		}).Error("Configuration rejected")
		return fmt.Errorf("configure: %w", err)
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return ErrProcessorClosed
	}

	p.config = cfg
	p.configured = true
	p.log.SetLevel(cfg.LogVerbosity.Level())

	p.log.WithFields(logrus.Fields{
		"function":          "Configure",
		"processing_rate":   cfg.ProcessingRate,
		"echo_cancel":       cfg.EchoCancelEnabled,
		"noise_suppression": cfg.NoiseSuppressEnabled,
		"noise_level":       cfg.NoiseSuppressLevel.String(),
		"gain_controller":   cfg.GainControllerEnabled,
		"log_verbosity":     cfg.LogVerbosity.String(),
		"engine_live":       p.engine != nil,
	}).Info("Processing configuration staged")

	return nil
}

// Config returns a copy of the staged configuration and whether Configure
// has been called.
func (p *Processor) Config() (ProcessingConfig, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.config, p.configured
}

// State reports the current lifecycle state.
func (p *Processor) State() State {
	p.mu.Lock()
	defer p.mu.Unlock()

	switch {
	case p.engine != nil:
		return StateEngineLive
	case p.configured:
		return StateConfigured
	default:
		return StateUnconfigured
	}
}

// EngineBuilds returns the number of engines successfully constructed.
func (p *Processor) EngineBuilds() uint64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.builds
}

// ensureEngine returns the live engine, constructing it from the current
// configuration if necessary. It returns (nil, nil) before the first
// Configure. A failed construction leaves no engine installed, so the next
// call retries. The caller must hold p.mu.
func (p *Processor) ensureEngine() (Engine, error) {
	if !p.configured {
		return nil, nil
	}
	if p.engine != nil {
		return p.engine, nil
	}

	ctx := context.Background()

	eng, err := p.factory()
	if err == nil && eng == nil {
		err = fmt.Errorf("factory returned no engine")
	}
	if err != nil {
		p.metrics.EngineBuildFailures.Add(ctx, 1)
		p.log.WithFields(logrus.Fields{
			"function": "ensureEngine",
			"error":    err.Error(),
		}).Error("Failed to build audio engine")
		return nil, fmt.Errorf("build engine: %w: %w", StatusCreationFailed.Err(), err)
	}

	eng.ApplyConfig(p.config)

	if status := eng.Initialize(); status.Failed() {
		p.metrics.EngineBuildFailures.Add(ctx, 1)
		if cerr := eng.Close(); cerr != nil {
			p.log.WithFields(logrus.Fields{
				"function": "ensureEngine",
				"error":    cerr.Error(),
			}).Warn("Failed to release engine after failed initialization")
		}
		p.log.WithFields(logrus.Fields{
			"function": "ensureEngine",
			"status":   int(status),
			"message":  ErrorMessage(status),
		}).Error("Audio engine initialization failed")
		return nil, fmt.Errorf("initialize engine: %w", status.Err())
	}

	p.engine = eng
	p.builds++
	p.metrics.EngineBuilds.Add(ctx, 1)

	p.log.WithFields(logrus.Fields{
		"function":        "ensureEngine",
		"processing_rate": p.config.ProcessingRate,
		"builds":          p.builds,
	}).Info("Audio engine constructed")

	return eng, nil
}

// ProcessStream applies near-end processing to pcm in place. Before the
// first Configure it is a no-op returning nil. Engine statuses other than
// StatusOK are returned as *StatusError.
func (p *Processor) ProcessStream(desc StreamDescriptor, pcm []int16) error {
	return p.process(DirectionForward, desc, pcm)
}

// ProcessReverseStream feeds the far-end reference signal to the engine.
// Before the first Configure it is a no-op returning nil.
func (p *Processor) ProcessReverseStream(desc StreamDescriptor, pcm []int16) error {
	return p.process(DirectionReverse, desc, pcm)
}

func (p *Processor) process(direction string, desc StreamDescriptor, pcm []int16) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return ErrProcessorClosed
	}

	eng, err := p.ensureEngine()
	if err != nil {
		return err
	}
	if eng == nil {
		return nil
	}

	start := time.Now()
	var status Status
	if direction == DirectionForward {
		status = eng.ProcessStream(desc, pcm)
	} else {
		status = eng.ProcessReverseStream(desc, pcm)
	}
	p.metrics.RecordFrame(context.Background(), direction, status, time.Since(start))

	if status != StatusOK {
		p.log.WithFields(logrus.Fields{
			"function":    "process",
			"direction":   direction,
			"sample_rate": desc.SampleRate,
			"channels":    desc.Channels,
			"samples":     len(pcm),
			"status":      int(status),
			"message":     ErrorMessage(status),
		}).Debug("Engine reported non-OK status")
	}

	return status.Err()
}

// SetStreamDelay reports the render-to-capture delay to the engine.
// Delays outside [0, MaxStreamDelayMs] are clamped, the clamped value is
// forwarded and the call returns a StatusBadStreamParameterWarning error.
// Before the first Configure it is a no-op returning nil.
func (p *Processor) SetStreamDelay(delayMs int) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return ErrProcessorClosed
	}

	eng, err := p.ensureEngine()
	if err != nil {
		return err
	}
	if eng == nil {
		return nil
	}

	clamped := min(max(delayMs, 0), MaxStreamDelayMs)
	status := eng.SetStreamDelayMs(clamped)

	if clamped != delayMs {
		p.log.WithFields(logrus.Fields{
			"function":  "SetStreamDelay",
			"requested": delayMs,
			"applied":   clamped,
		}).Warn("Stream delay out of range, clamped")
		if status == StatusOK {
			status = StatusBadStreamParameterWarning
		}
	}

	return status.Err()
}

// Teardown releases the live engine, if any. It is idempotent and does not
// affect the staged configuration: the next stream call rebuilds the engine
// from the configuration current at that time.
func (p *Processor) Teardown() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.teardownLocked()
}

func (p *Processor) teardownLocked() error {
	if p.engine == nil {
		return nil
	}

	eng := p.engine
	p.engine = nil
	p.metrics.EngineTeardowns.Add(context.Background(), 1)

	if err := eng.Close(); err != nil {
		p.log.WithFields(logrus.Fields{
			"function": "Teardown",
			"error":    err.Error(),
		}).Error("Failed to close audio engine")
		return fmt.Errorf("close engine: %w", err)
	}

	p.log.WithFields(logrus.Fields{
		"function": "Teardown",
	}).Info("Audio engine released")

	return nil
}

// Close releases the engine and makes every later call fail with
// ErrProcessorClosed. Calling Close more than once is a no-op.
func (p *Processor) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return nil
	}
	p.closed = true
	return p.teardownLocked()
}

package dsp

import (
	"fmt"

	"github.com/opd-ai/apm"
	"github.com/sirupsen/logrus"
)

// Sample rates accepted by the engine.
var (
	processingRates = map[int]bool{8000: true, 16000: true, 32000: true, 48000: true}
	streamRates     = map[int]bool{8000: true, 16000: true, 32000: true, 44100: true, 48000: true}
)

// maxStreamRate bounds the far-end history size.
const maxStreamRate = 48000

// Engine is a pure-Go audio processing engine. It cancels far-end echo,
// suppresses stationary noise and applies automatic gain control to the
// near-end stream, one 10 ms frame at a time.
//
// Engine implements apm.Engine and is not safe for concurrent use.
type Engine struct {
	config      apm.ProcessingConfig
	initialized bool
	closed      bool

	taps    int
	delayMs int

	// nearRate is the rate the echo path runs at: the rate of the last
	// forward stream, or of the first reverse stream if none was seen yet.
	nearRate int
	far      *FarEnd
	farRate  int
	farConv  *Resampler

	chains  []*EffectChain
	channel []int16
	frames  uint64

	log *logrus.Logger
}

var _ apm.Engine = (*Engine)(nil)

// New returns an unconfigured Engine logging to a private logger. Its
// signature matches apm.EngineFactory.
func New() (apm.Engine, error) {
	return newEngine(options{logger: newEngineLogger()}), nil
}

// NewFactory returns an apm.EngineFactory building engines with opts. Every
// engine it builds shares the logger given by WithLogger; without one each
// engine gets a private logger.
func NewFactory(opts ...Option) apm.EngineFactory {
	return func() (apm.Engine, error) {
		o := buildOptions(nil, opts)
		if o.logger == nil {
			o.logger = newEngineLogger()
		}
		return newEngine(o), nil
	}
}

func newEngine(o options) *Engine {
	return &Engine{config: apm.DefaultConfig(), log: o.logger}
}

// ApplyConfig stores cfg and sets the engine logger's level from
// cfg.LogVerbosity. The processing settings take effect at the next
// Initialize.
func (e *Engine) ApplyConfig(cfg apm.ProcessingConfig) {
	e.config = cfg
	e.log.SetLevel(cfg.LogVerbosity.Level())
}

// Initialize validates the stored configuration and resets all processing
// state. It returns StatusBadSampleRate for an unsupported processing rate.
func (e *Engine) Initialize() apm.Status {
	if e.closed {
		return apm.StatusUnspecifiedError
	}
	if !processingRates[e.config.ProcessingRate] {
		e.log.WithFields(logrus.Fields{
			"function":        "Engine.Initialize",
			"processing_rate": e.config.ProcessingRate,
		}).Error("Unsupported processing rate")
		return apm.StatusBadSampleRate
	}
	if _, err := apm.NoiseSuppressionLevelOf(int(e.config.NoiseSuppressLevel)); err != nil {
		return apm.StatusBadParameter
	}

	e.closeChains()
	e.taps = e.config.ProcessingRate * apm.FrameDurationMs / 1000
	maxFrame := maxStreamRate * apm.FrameDurationMs / 1000
	maxDelay := maxStreamRate * apm.MaxStreamDelayMs / 1000
	e.far = NewFarEnd(maxFrame, maxDelay, e.taps)
	e.nearRate = 0
	e.farRate = 0
	e.farConv = nil
	e.initialized = true

	e.log.WithFields(logrus.Fields{
		"function":          "Engine.Initialize",
		"processing_rate":   e.config.ProcessingRate,
		"echo_cancel":       e.config.EchoCancelEnabled,
		"noise_suppression": e.config.NoiseSuppressEnabled,
		"noise_level":       e.config.NoiseSuppressLevel.String(),
		"gain_controller":   e.config.GainControllerEnabled,
		"echo_taps":         e.taps,
	}).Info("Audio engine initialized")

	return apm.StatusOK
}

// validate checks a stream call. The order matches the status precedence
// callers rely on: engine state, buffer, rate, channels, length.
func (e *Engine) validate(desc apm.StreamDescriptor, pcm []int16) apm.Status {
	switch {
	case !e.initialized || e.closed:
		return apm.StatusUnspecifiedError
	case len(pcm) == 0:
		return apm.StatusNullPointer
	case !streamRates[desc.SampleRate]:
		return apm.StatusBadSampleRate
	case desc.Channels < 1 || desc.Channels > MaxChannels:
		return apm.StatusBadNumberChannels
	case len(pcm) != desc.Samples():
		return apm.StatusBadDataLength
	}
	return apm.StatusOK
}

// ProcessReverseStream records the far-end frame as the echo reference.
// pcm is not modified.
func (e *Engine) ProcessReverseStream(desc apm.StreamDescriptor, pcm []int16) apm.Status {
	if status := e.validate(desc, pcm); status != apm.StatusOK {
		return status
	}
	e.frames++

	if !e.config.EchoCancelEnabled {
		return apm.StatusOK
	}

	if e.nearRate == 0 {
		e.setNearRate(desc.SampleRate)
	}

	if desc.SampleRate == e.nearRate {
		e.far.WriteInt16(pcm, desc.Channels)
		return apm.StatusOK
	}

	mono := downmix(pcm, desc.Channels)
	conv, err := e.farConverter(desc.SampleRate)
	if err != nil {
		e.log.WithFields(logrus.Fields{
			"function": "Engine.ProcessReverseStream",
			"error":    err.Error(),
		}).Error("Failed to create far-end resampler")
		return apm.StatusUnspecifiedError
	}
	resampled, err := conv.Resample(mono)
	if err != nil {
		return apm.StatusUnspecifiedError
	}
	e.far.WriteInt16(resampled, 1)

	return apm.StatusOK
}

// ProcessStream runs the near-end frame through the per-channel chains in
// place.
func (e *Engine) ProcessStream(desc apm.StreamDescriptor, pcm []int16) apm.Status {
	if status := e.validate(desc, pcm); status != apm.StatusOK {
		return status
	}
	e.frames++

	if desc.SampleRate != e.nearRate {
		e.setNearRate(desc.SampleRate)
	}
	if len(e.chains) != desc.Channels {
		if err := e.buildChains(desc); err != nil {
			e.log.WithFields(logrus.Fields{
				"function":    "Engine.ProcessStream",
				"sample_rate": desc.SampleRate,
				"channels":    desc.Channels,
				"error":       err.Error(),
			}).Error("Failed to build processing chains")
			return apm.StatusUnspecifiedError
		}
	}

	perChannel := desc.FramesPerChannel()
	if cap(e.channel) < perChannel {
		e.channel = make([]int16, perChannel)
	}
	buf := e.channel[:perChannel]

	for ch, chain := range e.chains {
		for i := range buf {
			buf[i] = pcm[i*desc.Channels+ch]
		}
		out, err := chain.Process(buf)
		if err != nil {
			return apm.StatusUnspecifiedError
		}
		for i, s := range out {
			pcm[i*desc.Channels+ch] = s
		}
	}

	return apm.StatusOK
}

// SetStreamDelayMs sets the render-to-capture delay used to align the echo
// reference. Out-of-range values are clamped and reported with
// StatusBadStreamParameterWarning.
func (e *Engine) SetStreamDelayMs(delayMs int) apm.Status {
	status := apm.StatusOK
	if delayMs < 0 || delayMs > apm.MaxStreamDelayMs {
		status = apm.StatusBadStreamParameterWarning
	}
	e.delayMs = min(max(delayMs, 0), apm.MaxStreamDelayMs)
	e.applyDelay()
	return status
}

// StreamDelayMs returns the stored stream delay.
func (e *Engine) StreamDelayMs() int {
	return e.delayMs
}

// Config returns the configuration the engine was last given.
func (e *Engine) Config() apm.ProcessingConfig {
	return e.config
}

// Frames returns the number of valid frames processed in both directions.
func (e *Engine) Frames() uint64 {
	return e.frames
}

// Close releases all processing state. Further calls report
// StatusUnspecifiedError.
func (e *Engine) Close() error {
	if e.closed {
		return nil
	}
	e.closed = true
	e.initialized = false
	err := e.closeChains()
	e.far = nil
	e.farConv = nil

	e.log.WithFields(logrus.Fields{
		"function": "Engine.Close",
		"frames":   e.frames,
	}).Debug("Audio engine closed")

	return err
}

// setNearRate switches the echo path to rate. The far-end history and the
// per-channel chains are rebuilt because their contents are rate specific.
func (e *Engine) setNearRate(rate int) {
	if e.nearRate != 0 {
		e.log.WithFields(logrus.Fields{
			"function": "Engine.setNearRate",
			"old_rate": e.nearRate,
			"new_rate": rate,
		}).Debug("Near-end rate changed, resetting echo path")
	}
	e.nearRate = rate
	e.far.Reset()
	e.farConv = nil
	e.closeChains()
	e.applyDelay()
}

func (e *Engine) applyDelay() {
	if e.far == nil || e.nearRate == 0 {
		return
	}
	frameLen := e.nearRate * apm.FrameDurationMs / 1000
	e.far.SetDelay(e.delayMs*e.nearRate/1000, frameLen, e.taps)
}

func (e *Engine) farConverter(rate int) (*Resampler, error) {
	if e.farConv != nil && e.farRate == rate {
		return e.farConv, nil
	}
	conv, err := NewResampler(ResamplerConfig{
		InputRate:  uint32(rate),
		OutputRate: uint32(e.nearRate),
		Channels:   1,
	}, WithLogger(e.log))
	if err != nil {
		return nil, err
	}
	e.farConv = conv
	e.farRate = rate
	return conv, nil
}

// buildChains creates one effect chain per channel for desc.
func (e *Engine) buildChains(desc apm.StreamDescriptor) error {
	e.closeChains()

	frameLen := desc.FramesPerChannel()
	for ch := 0; ch < desc.Channels; ch++ {
		chain := NewEffectChain(WithLogger(e.log))

		if e.config.EchoCancelEnabled {
			aec, err := NewEchoCanceller(e.far, e.taps, DefaultEchoStep, WithLogger(e.log))
			if err != nil {
				return fmt.Errorf("channel %d: %w", ch, err)
			}
			chain.AddEffect(aec)
		}
		if e.config.NoiseSuppressEnabled {
			ns, err := NewNoiseSuppressionEffect(e.config.NoiseSuppressLevel, frameLen, WithLogger(e.log))
			if err != nil {
				return fmt.Errorf("channel %d: %w", ch, err)
			}
			chain.AddEffect(ns)
		}
		if e.config.GainControllerEnabled {
			chain.AddEffect(NewAutoGainEffect(WithLogger(e.log)))
		}

		e.chains = append(e.chains, chain)
	}

	e.log.WithFields(logrus.Fields{
		"function":    "Engine.buildChains",
		"sample_rate": desc.SampleRate,
		"channels":    desc.Channels,
		"effects":     e.chains[0].GetEffectNames(),
	}).Debug("Processing chains built")

	return nil
}

func (e *Engine) closeChains() error {
	var first error
	for _, chain := range e.chains {
		if err := chain.Close(); err != nil && first == nil {
			first = err
		}
	}
	e.chains = nil
	return first
}

// downmix averages interleaved channels into a mono frame.
func downmix(pcm []int16, channels int) []int16 {
	if channels == 1 {
		return pcm
	}
	frames := len(pcm) / channels
	mono := make([]int16, frames)
	for i := 0; i < frames; i++ {
		var sum int
		for ch := 0; ch < channels; ch++ {
			sum += int(pcm[i*channels+ch])
		}
		mono[i] = int16(sum / channels)
	}
	return mono
}

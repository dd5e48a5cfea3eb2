package dsp

import (
	"errors"
	"fmt"
	"math"

	"github.com/sirupsen/logrus"
)

// AudioEffect is one stage of a per-channel processing chain.
//
// Effects process a single channel of 16-bit PCM. They may modify the
// input slice in place or return a new slice of the same length. Effects
// keep state across calls and are not safe for concurrent use; the Engine
// serializes every call.
type AudioEffect interface {
	// Process applies the effect to one 10 ms channel frame.
	Process(samples []int16) ([]int16, error)

	// GetName returns a human-readable name for the effect.
	GetName() string

	// Close releases any resources used by the effect.
	Close() error
}

// applyGain multiplies samples by gain in place, saturating at the int16
// range. It returns the number of clipped samples.
func applyGain(samples []int16, gain float64) int {
	clipped := 0
	for i, sample := range samples {
		v := float64(sample) * gain
		switch {
		case v > math.MaxInt16:
			samples[i] = math.MaxInt16
			clipped++
		case v < math.MinInt16:
			samples[i] = math.MinInt16
			clipped++
		default:
			samples[i] = int16(v)
		}
	}
	return clipped
}

// toInt16 converts a normalized sample back to PCM with saturation.
func toInt16(v float64) int16 {
	v *= 32768.0
	switch {
	case v > math.MaxInt16:
		return math.MaxInt16
	case v < math.MinInt16:
		return math.MinInt16
	default:
		return int16(math.Round(v))
	}
}

// AutoGainEffect implements automatic gain control (AGC).
//
// Gain follows a smoothed peak level toward a fixed target with a fast
// attack and a slower release, bounded to [minGain, maxGain].
type AutoGainEffect struct {
	targetLevel float64 // Target peak level (0.0 to 1.0)
	currentGain float64
	peakLevel   float64 // Smoothed peak level
	attackRate  float64 // Gain increase per sample
	releaseRate float64 // Gain decrease per sample
	minGain     float64
	maxGain     float64

	log *logrus.Logger
}

// NewAutoGainEffect creates an AGC tuned for voice:
// target level 0.3, gain limited to -20 dB..+12 dB.
func NewAutoGainEffect(opts ...Option) *AutoGainEffect {
	agc := &AutoGainEffect{
		log:         componentOptions(opts).logger,
		targetLevel: 0.3,
		currentGain: 1.0,
		attackRate:  0.001,
		releaseRate: 0.0001,
		minGain:     0.1,
		maxGain:     4.0,
	}

	agc.log.WithFields(logrus.Fields{
		"function":     "NewAutoGainEffect",
		"target_level": agc.targetLevel,
		"min_gain":     agc.minGain,
		"max_gain":     agc.maxGain,
	}).Debug("Auto gain control created")

	return agc
}

// Process applies automatic gain control to samples in place.
func (a *AutoGainEffect) Process(samples []int16) ([]int16, error) {
	if len(samples) == 0 {
		return samples, nil
	}

	a.smoothPeakLevel(a.calculatePeakLevel(samples))
	desired := a.limitGainToSafeRange(a.calculateDesiredGain())
	a.smoothGainChanges(desired, len(samples))

	if clipped := applyGain(samples, a.currentGain); clipped > 0 {
		a.log.WithFields(logrus.Fields{
			"function":      "AutoGainEffect.Process",
			"clipped_count": clipped,
			"total_samples": len(samples),
			"gain":          a.currentGain,
		}).Debug("Clipping during automatic gain control")
	}

	return samples, nil
}

// calculatePeakLevel returns the normalized peak magnitude of samples.
func (a *AutoGainEffect) calculatePeakLevel(samples []int16) float64 {
	var peak float64
	for _, sample := range samples {
		if v := math.Abs(float64(sample) / 32768.0); v > peak {
			peak = v
		}
	}
	return peak
}

// smoothPeakLevel tracks rising peaks quickly and falling peaks slowly.
func (a *AutoGainEffect) smoothPeakLevel(peak float64) {
	if peak > a.peakLevel {
		a.peakLevel += (peak - a.peakLevel) * 0.1
	} else {
		a.peakLevel += (peak - a.peakLevel) * 0.01
	}
}

func (a *AutoGainEffect) calculateDesiredGain() float64 {
	if a.peakLevel > 0.001 {
		return a.targetLevel / a.peakLevel
	}
	return a.maxGain
}

func (a *AutoGainEffect) limitGainToSafeRange(gain float64) float64 {
	return min(max(gain, a.minGain), a.maxGain)
}

// smoothGainChanges moves the current gain toward desired by at most the
// attack or release rate per sample.
func (a *AutoGainEffect) smoothGainChanges(desired float64, sampleCount int) {
	if desired > a.currentGain {
		a.currentGain = min(a.currentGain+a.attackRate*float64(sampleCount), desired)
	} else {
		a.currentGain = max(a.currentGain-a.releaseRate*float64(sampleCount), desired)
	}
}

// GetName returns the effect name for logging.
func (a *AutoGainEffect) GetName() string {
	return fmt.Sprintf("AutoGain(%.2f)", a.currentGain)
}

// GetCurrentGain returns the gain applied to the last frame.
func (a *AutoGainEffect) GetCurrentGain() float64 {
	return a.currentGain
}

// SetTargetLevel updates the target peak level (0.0 to 1.0).
func (a *AutoGainEffect) SetTargetLevel(level float64) error {
	if level < 0.0 || level > 1.0 {
		return fmt.Errorf("target level must be between 0.0 and 1.0: %f", level)
	}
	a.targetLevel = level
	return nil
}

// Close is a no-op; the AGC holds no resources.
func (a *AutoGainEffect) Close() error {
	return nil
}

// EffectChain runs a sequence of effects over one channel.
//
// Effects are applied in the order they were added. The first failing
// effect stops the chain and its error is returned.
type EffectChain struct {
	effects []AudioEffect
	log     *logrus.Logger
}

// NewEffectChain creates an empty chain.
func NewEffectChain(opts ...Option) *EffectChain {
	return &EffectChain{
		effects: make([]AudioEffect, 0, 3),
		log:     componentOptions(opts).logger,
	}
}

// AddEffect appends effect to the end of the chain.
func (e *EffectChain) AddEffect(effect AudioEffect) {
	e.effects = append(e.effects, effect)

	e.log.WithFields(logrus.Fields{
		"function":     "EffectChain.AddEffect",
		"effect_name":  effect.GetName(),
		"effect_count": len(e.effects),
	}).Debug("Effect added to chain")
}

// Process applies every effect in order.
//
// Parameters:
//   - samples: one channel frame
//
// Returns:
//   - []int16: processed samples, same length as the input
//   - error: the first effect failure, wrapped with its position and name
func (e *EffectChain) Process(samples []int16) ([]int16, error) {
	current := samples

	for i, effect := range e.effects {
		processed, err := effect.Process(current)
		if err != nil {
			e.log.WithFields(logrus.Fields{
				"function":     "EffectChain.Process",
				"effect_index": i,
				"effect_name":  effect.GetName(),
				"error":        err.Error(),
			}).Error("Effect processing failed")
			return nil, fmt.Errorf("effect %d (%s) failed: %w", i, effect.GetName(), err)
		}
		current = processed
	}

	return current, nil
}

// GetEffectCount returns the number of effects in the chain.
func (e *EffectChain) GetEffectCount() int {
	return len(e.effects)
}

// GetEffectNames returns the names of all effects in order.
func (e *EffectChain) GetEffectNames() []string {
	names := make([]string, len(e.effects))
	for i, effect := range e.effects {
		names[i] = effect.GetName()
	}
	return names
}

// Clear closes and removes every effect. Close errors are joined.
func (e *EffectChain) Clear() error {
	var errs []error

	for i, effect := range e.effects {
		if err := effect.Close(); err != nil {
			e.log.WithFields(logrus.Fields{
				"function":     "EffectChain.Clear",
				"effect_index": i,
				"effect_name":  effect.GetName(),
				"error":        err.Error(),
			}).Error("Failed to close effect")
			errs = append(errs, fmt.Errorf("effect %d (%s) close failed: %w", i, effect.GetName(), err))
		}
	}

	e.effects = e.effects[:0]
	return errors.Join(errs...)
}

// Close releases all effect resources.
func (e *EffectChain) Close() error {
	return e.Clear()
}

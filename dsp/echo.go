package dsp

import (
	"fmt"

	"github.com/sirupsen/logrus"
)

const (
	// DefaultEchoStep is the NLMS step size mu (0 < mu < 2).
	DefaultEchoStep = 0.3

	// powerFloor keeps the NLMS update from dividing by a silent reference.
	powerFloor = 1e-10
)

// FarEnd is the mono far-end reference history shared by the echo
// cancellers of every near-end channel.
//
// The ring is sized for one frame plus the largest stream delay plus the
// longest filter, so a reference window never overlaps the next write.
type FarEnd struct {
	buf     []float64
	head    int // next write position
	delay   int // bulk delay in samples
	written uint64
}

// NewFarEnd creates a history able to hold frameLen+maxDelay+taps samples.
func NewFarEnd(frameLen, maxDelay, taps int) *FarEnd {
	return &FarEnd{
		buf: make([]float64, frameLen+maxDelay+taps),
	}
}

// Write appends normalized mono samples to the history.
func (f *FarEnd) Write(samples []float64) {
	for _, s := range samples {
		f.buf[f.head] = s
		f.head = (f.head + 1) % len(f.buf)
	}
	f.written += uint64(len(samples))
}

// WriteInt16 downmixes an interleaved frame to mono and appends it.
func (f *FarEnd) WriteInt16(pcm []int16, channels int) {
	frames := len(pcm) / channels
	mono := make([]float64, frames)
	for i := 0; i < frames; i++ {
		var sum float64
		for ch := 0; ch < channels; ch++ {
			sum += float64(pcm[i*channels+ch])
		}
		mono[i] = sum / float64(channels) / 32768.0
	}
	f.Write(mono)
}

// SetDelay sets the bulk delay in samples, clamped to what the history can
// hold for a frame of frameLen and a filter of taps.
func (f *FarEnd) SetDelay(samples, frameLen, taps int) int {
	limit := len(f.buf) - frameLen - taps
	f.delay = min(max(samples, 0), max(limit, 0))
	return f.delay
}

// Delay returns the bulk delay in samples.
func (f *FarEnd) Delay() int {
	return f.delay
}

// Written returns the number of samples written since creation or Reset.
func (f *FarEnd) Written() uint64 {
	return f.written
}

// Reset clears the history and the write position. The delay is kept.
func (f *FarEnd) Reset() {
	clear(f.buf)
	f.head = 0
	f.written = 0
}

// window copies the reference samples needed to cancel a frame of
// frameLen samples with taps coefficients into dst. For near sample i and
// tap k the reference is dst[i+taps-1-k].
func (f *FarEnd) window(dst []float64, frameLen, taps int) []float64 {
	n := frameLen + taps - 1
	if cap(dst) < n {
		dst = make([]float64, n)
	}
	dst = dst[:n]

	size := len(f.buf)
	start := f.head - frameLen - f.delay - taps + 1
	for j := range dst {
		dst[j] = f.buf[((start+j)%size+size)%size]
	}
	return dst
}

// EchoCanceller removes the far-end echo from one near-end channel with a
// normalized least mean squares adaptive filter.
//
// The far-end frame for a period must be written to the shared FarEnd
// before the near-end frame of the same period is processed.
type EchoCanceller struct {
	far     *FarEnd
	taps    int
	step    float64
	weights []float64
	ref     []float64
	log     *logrus.Logger
}

// NewEchoCanceller creates an NLMS canceller with the given filter length
// reading its reference from far.
func NewEchoCanceller(far *FarEnd, taps int, step float64, opts ...Option) (*EchoCanceller, error) {
	if far == nil {
		return nil, fmt.Errorf("far-end history is nil")
	}
	if taps <= 0 {
		return nil, fmt.Errorf("filter length must be positive: %d", taps)
	}
	if step <= 0 || step >= 2 {
		return nil, fmt.Errorf("step size must be in (0, 2): %f", step)
	}

	log := componentOptions(opts).logger
	log.WithFields(logrus.Fields{
		"function": "NewEchoCanceller",
		"taps":     taps,
		"step":     step,
	}).Debug("Echo canceller created")

	return &EchoCanceller{
		far:     far,
		taps:    taps,
		step:    step,
		weights: make([]float64, taps),
		log:     log,
	}, nil
}

// Process subtracts the estimated echo from samples in place and adapts
// the filter toward the observed echo path.
func (a *EchoCanceller) Process(samples []int16) ([]int16, error) {
	a.ref = a.far.window(a.ref, len(samples), a.taps)

	for i := range samples {
		base := i + a.taps - 1

		var y, power float64
		for k := 0; k < a.taps; k++ {
			x := a.ref[base-k]
			y += a.weights[k] * x
			power += x * x
		}

		e := float64(samples[i])/32768.0 - y

		if power > powerFloor {
			g := a.step * e / power
			for k := 0; k < a.taps; k++ {
				a.weights[k] += g * a.ref[base-k]
			}
		}

		samples[i] = toInt16(e)
	}

	return samples, nil
}

// Reset zeroes the filter so it adapts from scratch.
func (a *EchoCanceller) Reset() {
	clear(a.weights)
}

// Weights returns a copy of the current filter coefficients.
func (a *EchoCanceller) Weights() []float64 {
	return append([]float64(nil), a.weights...)
}

// GetName returns the effect name for logging.
func (a *EchoCanceller) GetName() string {
	return fmt.Sprintf("EchoCanceller(%d)", a.taps)
}

// Close drops the filter state.
func (a *EchoCanceller) Close() error {
	a.weights = nil
	a.ref = nil
	return nil
}

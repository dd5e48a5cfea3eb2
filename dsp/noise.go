package dsp

import (
	"fmt"
	"math"

	"github.com/opd-ai/apm"
	"github.com/sirupsen/logrus"
)

const (
	// noiseLearningFrames is the number of frames averaged into the initial
	// noise floor before any suppression is applied.
	noiseLearningFrames = 10

	// overSubtraction scales the noise floor removed from each bin.
	overSubtraction = 2.0

	// noiseTrackingRate is the floor update weight for bins that look like
	// noise after the learning phase.
	noiseTrackingRate = 0.05
)

// NoiseSuppressionEffect reduces stationary background noise with spectral
// subtraction.
//
// Each call analyses the previous and current frame through a square-root
// Hann window with 50% overlap and reconstructs with weighted overlap-add,
// so output is delayed by exactly one frame. The noise floor is averaged
// over the first frames and then tracked slowly on bins whose magnitude
// stays close to it.
type NoiseSuppressionEffect struct {
	level     apm.NoiseSuppressionLevel
	strength  float64 // Subtraction strength (0.0 to 1.0)
	floorGain float64 // Minimum per-bin gain, from the level attenuation

	hopSize int // Samples per call
	fftSize int // Power of two >= 2*hopSize

	window     []float64 // sqrt Hann over 2*hopSize
	history    []float64 // Previous input frame
	overlap    []float64 // Second half of the previous synthesis block
	noiseFloor []float64 // Per-bin noise magnitude estimate
	spectrum   []complex128
	frameCount int

	log *logrus.Logger
}

// NewNoiseSuppressionEffect creates a noise suppressor for frames of
// hopSize samples.
//
// Parameters:
//   - level: suppression level; sets the subtraction strength and the
//     maximum attenuation per bin
//   - hopSize: samples per Process call (10 ms at the stream rate)
//
// Returns:
//   - *NoiseSuppressionEffect: new suppressor with an empty noise estimate
//   - error: validation error if a parameter is out of range
func NewNoiseSuppressionEffect(level apm.NoiseSuppressionLevel, hopSize int, opts ...Option) (*NoiseSuppressionEffect, error) {
	if _, err := apm.NoiseSuppressionLevelOf(int(level)); err != nil {
		return nil, err
	}

	fftSize := nextPowerOfTwo(2 * hopSize)
	if hopSize <= 0 || fftSize > 4096 {
		return nil, fmt.Errorf("frame size must be between 1 and 2048 samples: %d", hopSize)
	}

	window := make([]float64, 2*hopSize)
	for i := range window {
		window[i] = math.Sqrt(0.5 * (1.0 - math.Cos(math.Pi*float64(i)/float64(hopSize))))
	}

	ns := &NoiseSuppressionEffect{
		level:      level,
		strength:   0.25 * float64(level+1),
		floorGain:  math.Pow(10, -level.AttenuationDB()/20),
		hopSize:    hopSize,
		fftSize:    fftSize,
		window:     window,
		history:    make([]float64, hopSize),
		overlap:    make([]float64, hopSize),
		noiseFloor: make([]float64, fftSize/2+1),
		spectrum:   make([]complex128, fftSize),
		log:        componentOptions(opts).logger,
	}

	ns.log.WithFields(logrus.Fields{
		"function":   "NewNoiseSuppressionEffect",
		"level":      level.String(),
		"strength":   ns.strength,
		"floor_gain": ns.floorGain,
		"hop_size":   hopSize,
		"fft_size":   fftSize,
	}).Debug("Noise suppression effect created")

	return ns, nil
}

// Process suppresses noise in one frame. The returned slice reuses samples.
func (ns *NoiseSuppressionEffect) Process(samples []int16) ([]int16, error) {
	if len(samples) != ns.hopSize {
		return nil, fmt.Errorf("noise suppression expects %d samples, got %d", ns.hopSize, len(samples))
	}

	n := ns.hopSize
	for i := range ns.spectrum {
		var v float64
		switch {
		case i < n:
			v = ns.history[i]
		case i < 2*n:
			v = float64(samples[i-n]) / 32768.0
		}
		if i < 2*n {
			v *= ns.window[i]
		}
		ns.spectrum[i] = complex(v, 0)
	}
	for i, s := range samples {
		ns.history[i] = float64(s) / 32768.0
	}

	fft(ns.spectrum)
	magnitude := ns.magnitudeSpectrum()
	ns.updateNoiseFloor(magnitude)
	ns.applySpectralSubtraction(magnitude)
	ifft(ns.spectrum)

	for i := 0; i < n; i++ {
		out := ns.overlap[i] + real(ns.spectrum[i])*ns.window[i]
		ns.overlap[i] = real(ns.spectrum[i+n]) * ns.window[i+n]
		samples[i] = toInt16(out)
	}

	return samples, nil
}

func (ns *NoiseSuppressionEffect) magnitudeSpectrum() []float64 {
	magnitude := make([]float64, ns.fftSize/2+1)
	for i := range magnitude {
		re, im := real(ns.spectrum[i]), imag(ns.spectrum[i])
		magnitude[i] = math.Sqrt(re*re + im*im)
	}
	return magnitude
}

// updateNoiseFloor averages the first frames into the floor, then tracks
// bins that stay below twice the current estimate.
func (ns *NoiseSuppressionEffect) updateNoiseFloor(magnitude []float64) {
	if ns.frameCount < noiseLearningFrames {
		const alpha = 0.8
		for i := range ns.noiseFloor {
			if ns.frameCount == 0 {
				ns.noiseFloor[i] = magnitude[i]
			} else {
				ns.noiseFloor[i] = alpha*ns.noiseFloor[i] + (1-alpha)*magnitude[i]
			}
		}
		ns.frameCount++
		if ns.frameCount == noiseLearningFrames {
			ns.log.WithFields(logrus.Fields{
				"function": "NoiseSuppressionEffect.updateNoiseFloor",
				"level":    ns.level.String(),
			}).Debug("Noise floor estimation completed")
		}
		return
	}

	for i, m := range magnitude {
		if m < 2*ns.noiseFloor[i] {
			ns.noiseFloor[i] += noiseTrackingRate * (m - ns.noiseFloor[i])
		}
	}
}

// applySpectralSubtraction scales every bin and its mirror by the
// suppression gain. Nothing is suppressed while the floor is being learned.
func (ns *NoiseSuppressionEffect) applySpectralSubtraction(magnitude []float64) {
	if ns.frameCount < noiseLearningFrames {
		return
	}

	half := ns.fftSize / 2
	for i, m := range magnitude {
		if m <= 0 {
			continue
		}
		subtracted := max(m-overSubtraction*ns.strength*ns.noiseFloor[i], ns.floorGain*m)
		gain := complex(subtracted/m, 0)

		ns.spectrum[i] *= gain
		if i > 0 && i < half {
			ns.spectrum[ns.fftSize-i] *= gain
		}
	}
}

// GetName returns the effect name for logging.
func (ns *NoiseSuppressionEffect) GetName() string {
	return fmt.Sprintf("NoiseSuppression(%s)", ns.level)
}

// Learned reports whether the initial noise floor estimate is complete.
func (ns *NoiseSuppressionEffect) Learned() bool {
	return ns.frameCount >= noiseLearningFrames
}

// Close drops the analysis buffers.
func (ns *NoiseSuppressionEffect) Close() error {
	ns.history = nil
	ns.overlap = nil
	ns.noiseFloor = nil
	ns.spectrum = nil
	ns.window = nil
	return nil
}

func nextPowerOfTwo(n int) int {
	p := 1
	for p < n {
		p <<= 1
	}
	return p
}

// fft is an in-place radix-2 Cooley-Tukey transform. len(data) must be a
// power of two.
func fft(data []complex128) {
	n := len(data)
	if n <= 1 {
		return
	}

	for i, j := 0, 0; i < n; i++ {
		if j > i {
			data[i], data[j] = data[j], data[i]
		}
		bit := n >> 1
		for j&bit != 0 {
			j ^= bit
			bit >>= 1
		}
		j ^= bit
	}

	for size := 2; size <= n; size <<= 1 {
		halfSize := size >> 1
		step := 2 * math.Pi / float64(size)
		for i := 0; i < n; i += size {
			for j := 0; j < halfSize; j++ {
				u := data[i+j]
				v := data[i+j+halfSize] * complex(math.Cos(float64(j)*step), -math.Sin(float64(j)*step))
				data[i+j] = u + v
				data[i+j+halfSize] = u - v
			}
		}
	}
}

// ifft is the inverse of fft using the conjugate trick.
func ifft(data []complex128) {
	for i := range data {
		data[i] = complex(real(data[i]), -imag(data[i]))
	}

	fft(data)

	scale := 1.0 / float64(len(data))
	for i := range data {
		data[i] = complex(real(data[i])*scale, -imag(data[i])*scale)
	}
}

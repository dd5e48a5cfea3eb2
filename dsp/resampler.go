package dsp

import (
	"fmt"
	"math"

	"github.com/sirupsen/logrus"
)

// MaxChannels is the largest interleaved channel count the engine accepts.
const MaxChannels = 8

// Resampler converts interleaved 16-bit PCM between sample rates with
// linear interpolation.
//
// It is stateful: the last input frame is kept so that consecutive calls
// interpolate across the block boundary, and the fractional read position
// carries over. Output length per call may vary by one frame; over a
// stream it tracks the exact rate ratio.
type Resampler struct {
	inputRate   uint32
	outputRate  uint32
	channels    int
	lastSamples []int16 // Last input frame of the previous call
	position    float64 // Read position relative to the current input, in frames
	log         *logrus.Logger
}

// ResamplerConfig contains resampler configuration.
type ResamplerConfig struct {
	InputRate  uint32 // Input sample rate in Hz
	OutputRate uint32 // Output sample rate in Hz
	Channels   int    // Interleaved channels, 1 to MaxChannels
}

// NewResampler creates a resampler.
//
// Parameters:
//   - config: rates and channel count
//
// Returns:
//   - *Resampler: new resampler starting from silence
//   - error: validation error if a rate is zero or channels is out of range
func NewResampler(config ResamplerConfig, opts ...Option) (*Resampler, error) {
	if config.InputRate == 0 || config.OutputRate == 0 {
		return nil, fmt.Errorf("invalid sample rates: input=%d, output=%d", config.InputRate, config.OutputRate)
	}
	if config.Channels < 1 || config.Channels > MaxChannels {
		return nil, fmt.Errorf("unsupported channel count: %d (must be 1-%d)", config.Channels, MaxChannels)
	}

	log := componentOptions(opts).logger
	log.WithFields(logrus.Fields{
		"function":    "NewResampler",
		"input_rate":  config.InputRate,
		"output_rate": config.OutputRate,
		"channels":    config.Channels,
	}).Debug("Resampler created")

	return &Resampler{
		inputRate:   config.InputRate,
		outputRate:  config.OutputRate,
		channels:    config.Channels,
		lastSamples: make([]int16, config.Channels),
		log:         log,
	}, nil
}

// Resample converts one block of interleaved input.
func (r *Resampler) Resample(input []int16) ([]int16, error) {
	if len(input) == 0 {
		return nil, fmt.Errorf("empty input samples")
	}
	if len(input)%r.channels != 0 {
		return nil, fmt.Errorf("input samples (%d) not aligned to channel count (%d)", len(input), r.channels)
	}

	if r.inputRate == r.outputRate {
		out := make([]int16, len(input))
		copy(out, input)
		return out, nil
	}

	ratio := float64(r.inputRate) / float64(r.outputRate)
	inputFrames := len(input) / r.channels
	last := float64(inputFrames - 1)

	output := make([]int16, 0, (r.CalculateOutputSize(inputFrames)+1)*r.channels)

	// position ranges over [-1, inputFrames-1]; index -1 is the last frame
	// of the previous call.
	for ; r.position <= last; r.position += ratio {
		idx := int(math.Floor(r.position))
		frac := r.position - float64(idx)

		for ch := 0; ch < r.channels; ch++ {
			var s1 float64
			if idx < 0 {
				s1 = float64(r.lastSamples[ch])
			} else {
				s1 = float64(input[idx*r.channels+ch])
			}

			s2 := s1
			if idx+1 < inputFrames {
				s2 = float64(input[(idx+1)*r.channels+ch])
			}

			output = append(output, int16(math.Round(s1*(1.0-frac)+s2*frac)))
		}
	}

	r.position -= float64(inputFrames)
	copy(r.lastSamples, input[len(input)-r.channels:])

	return output, nil
}

// Reset returns the resampler to its initial silent state.
func (r *Resampler) Reset() {
	clear(r.lastSamples)
	r.position = 0
}

// GetInputRate returns the input sample rate.
func (r *Resampler) GetInputRate() uint32 {
	return r.inputRate
}

// GetOutputRate returns the output sample rate.
func (r *Resampler) GetOutputRate() uint32 {
	return r.outputRate
}

// GetChannels returns the channel count.
func (r *Resampler) GetChannels() int {
	return r.channels
}

// CalculateOutputSize returns the nominal number of output frames for
// inputFrames input frames.
func (r *Resampler) CalculateOutputSize(inputFrames int) int {
	if r.inputRate == r.outputRate {
		return inputFrames
	}
	return int(float64(inputFrames)*float64(r.outputRate)/float64(r.inputRate) + 0.5)
}

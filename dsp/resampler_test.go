package dsp

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewResampler(t *testing.T) {
	tests := []struct {
		name      string
		config    ResamplerConfig
		expectErr bool
	}{
		{
			name:   "valid_config",
			config: ResamplerConfig{InputRate: 44100, OutputRate: 48000, Channels: 2},
		},
		{
			name:   "max_channels",
			config: ResamplerConfig{InputRate: 16000, OutputRate: 48000, Channels: MaxChannels},
		},
		{
			name:      "zero_input_rate",
			config:    ResamplerConfig{InputRate: 0, OutputRate: 48000, Channels: 1},
			expectErr: true,
		},
		{
			name:      "zero_output_rate",
			config:    ResamplerConfig{InputRate: 44100, OutputRate: 0, Channels: 1},
			expectErr: true,
		},
		{
			name:      "invalid_channels_zero",
			config:    ResamplerConfig{InputRate: 44100, OutputRate: 48000, Channels: 0},
			expectErr: true,
		},
		{
			name:      "invalid_channels_too_many",
			config:    ResamplerConfig{InputRate: 44100, OutputRate: 48000, Channels: MaxChannels + 1},
			expectErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r, err := NewResampler(tt.config)
			if tt.expectErr {
				assert.Error(t, err)
				assert.Nil(t, r)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.config.InputRate, r.GetInputRate())
			assert.Equal(t, tt.config.OutputRate, r.GetOutputRate())
			assert.Equal(t, tt.config.Channels, r.GetChannels())
		})
	}
}

func TestResampler_SameRateCopies(t *testing.T) {
	r, err := NewResampler(ResamplerConfig{InputRate: 16000, OutputRate: 16000, Channels: 1})
	require.NoError(t, err)

	input := []int16{1, 2, 3, 4}
	output, err := r.Resample(input)
	require.NoError(t, err)
	assert.Equal(t, input, output)

	output[0] = 99
	assert.Equal(t, int16(1), input[0], "output must not alias input")
}

func TestResampler_StreamLength(t *testing.T) {
	tests := []struct {
		name     string
		in, out  uint32
		frameLen int
	}{
		{"upsample_16k_48k", 16000, 48000, 160},
		{"downsample_48k_16k", 48000, 16000, 480},
		{"44k1_to_48k", 44100, 48000, 441},
		{"48k_to_44k1", 48000, 44100, 480},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r, err := NewResampler(ResamplerConfig{InputRate: tt.in, OutputRate: tt.out, Channels: 1})
			require.NoError(t, err)

			total := 0
			for i := 0; i < 100; i++ {
				out, err := r.Resample(make([]int16, tt.frameLen))
				require.NoError(t, err)
				total += len(out)
			}

			want := r.CalculateOutputSize(100 * tt.frameLen)
			assert.InDelta(t, want, total, 4)
		})
	}
}

func TestResampler_PreservesDC(t *testing.T) {
	r, err := NewResampler(ResamplerConfig{InputRate: 44100, OutputRate: 16000, Channels: 1})
	require.NoError(t, err)

	input := make([]int16, 441)
	for i := range input {
		input[i] = 1000
	}

	for call := 0; call < 5; call++ {
		out, err := r.Resample(input)
		require.NoError(t, err)
		require.NotEmpty(t, out)
		if call == 0 {
			continue
		}
		for i, s := range out {
			require.Equal(t, int16(1000), s, "call %d sample %d", call, i)
		}
	}
}

func TestResampler_InterpolatesAcrossCalls(t *testing.T) {
	r, err := NewResampler(ResamplerConfig{InputRate: 1000, OutputRate: 2000, Channels: 1})
	require.NoError(t, err)

	out, err := r.Resample([]int16{0, 100})
	require.NoError(t, err)
	assert.Equal(t, []int16{0, 50, 100}, out)

	out, err = r.Resample([]int16{200, 300})
	require.NoError(t, err)
	assert.Equal(t, []int16{150, 200, 250, 300}, out)
}

func TestResampler_StereoChannelsIndependent(t *testing.T) {
	r, err := NewResampler(ResamplerConfig{InputRate: 16000, OutputRate: 48000, Channels: 2})
	require.NoError(t, err)

	input := make([]int16, 320)
	for i := 0; i < 160; i++ {
		input[2*i] = 1000
		input[2*i+1] = -1000
	}

	out, err := r.Resample(input)
	require.NoError(t, err)
	require.Zero(t, len(out)%2)
	for i := 0; i < len(out); i += 2 {
		assert.Equal(t, int16(1000), out[i])
		assert.Equal(t, int16(-1000), out[i+1])
	}
}

func TestResampler_InvalidInput(t *testing.T) {
	r, err := NewResampler(ResamplerConfig{InputRate: 16000, OutputRate: 48000, Channels: 2})
	require.NoError(t, err)

	_, err = r.Resample(nil)
	assert.Error(t, err)

	_, err = r.Resample([]int16{1, 2, 3})
	assert.Error(t, err)
}

func TestResampler_Reset(t *testing.T) {
	r, err := NewResampler(ResamplerConfig{InputRate: 1000, OutputRate: 2000, Channels: 1})
	require.NoError(t, err)

	_, err = r.Resample([]int16{100, 200, 300})
	require.NoError(t, err)

	r.Reset()
	out, err := r.Resample([]int16{0, 100})
	require.NoError(t, err)
	assert.Equal(t, []int16{0, 50, 100}, out)
}

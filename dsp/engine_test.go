package dsp

import (
	"bytes"
	"math/rand"
	"testing"

	"github.com/opd-ai/apm"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newInitializedEngine(t *testing.T, cfg apm.ProcessingConfig) *Engine {
	t.Helper()
	eng, err := New()
	require.NoError(t, err)
	e := eng.(*Engine)
	e.ApplyConfig(cfg)
	require.Equal(t, apm.StatusOK, e.Initialize())
	t.Cleanup(func() { _ = e.Close() })
	return e
}

func echoOnly(rate int) apm.ProcessingConfig {
	cfg := apm.DefaultConfig()
	cfg.ProcessingRate = rate
	cfg.EchoCancelEnabled = true
	return cfg
}

func TestNew_DefaultConfig(t *testing.T) {
	eng, err := New()
	require.NoError(t, err)
	e, ok := eng.(*Engine)
	require.True(t, ok)
	assert.Equal(t, apm.DefaultConfig(), e.Config())
}

func TestEngine_InitializeProcessingRate(t *testing.T) {
	tests := []struct {
		rate int
		want apm.Status
	}{
		{8000, apm.StatusOK},
		{16000, apm.StatusOK},
		{32000, apm.StatusOK},
		{48000, apm.StatusOK},
		{44100, apm.StatusBadSampleRate},
		{22050, apm.StatusBadSampleRate},
		{0, apm.StatusBadSampleRate},
	}

	for _, tt := range tests {
		eng, err := New()
		require.NoError(t, err)

		cfg := apm.DefaultConfig()
		cfg.ProcessingRate = tt.rate
		eng.ApplyConfig(cfg)
		assert.Equal(t, tt.want, eng.Initialize(), "rate %d", tt.rate)
		require.NoError(t, eng.Close())
	}
}

func TestEngine_UninitializedStream(t *testing.T) {
	eng, err := New()
	require.NoError(t, err)

	desc := apm.StreamDescriptor{SampleRate: 16000, Channels: 1}
	frame := make([]int16, desc.Samples())
	assert.Equal(t, apm.StatusUnspecifiedError, eng.ProcessStream(desc, frame))
	assert.Equal(t, apm.StatusUnspecifiedError, eng.ProcessReverseStream(desc, frame))
}

func TestEngine_StreamValidation(t *testing.T) {
	e := newInitializedEngine(t, echoOnly(16000))

	tests := []struct {
		name string
		desc apm.StreamDescriptor
		pcm  []int16
		want apm.Status
	}{
		{"nil buffer", apm.StreamDescriptor{SampleRate: 16000, Channels: 1}, nil, apm.StatusNullPointer},
		{"nil buffer wins over bad rate", apm.StreamDescriptor{SampleRate: 22050, Channels: 1}, nil, apm.StatusNullPointer},
		{"unsupported rate", apm.StreamDescriptor{SampleRate: 22050, Channels: 1}, make([]int16, 220), apm.StatusBadSampleRate},
		{"zero channels", apm.StreamDescriptor{SampleRate: 16000, Channels: 0}, make([]int16, 160), apm.StatusBadNumberChannels},
		{"too many channels", apm.StreamDescriptor{SampleRate: 16000, Channels: 9}, make([]int16, 1440), apm.StatusBadNumberChannels},
		{"short buffer", apm.StreamDescriptor{SampleRate: 16000, Channels: 1}, make([]int16, 159), apm.StatusBadDataLength},
		{"mono length for stereo", apm.StreamDescriptor{SampleRate: 16000, Channels: 2}, make([]int16, 160), apm.StatusBadDataLength},
		{"44.1 kHz stream", apm.StreamDescriptor{SampleRate: 44100, Channels: 1}, make([]int16, 441), apm.StatusOK},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, e.ProcessStream(tt.desc, tt.pcm))
			assert.Equal(t, tt.want, e.ProcessReverseStream(tt.desc, tt.pcm))
		})
	}
}

func TestEngine_ReverseStreamLeavesBufferUnchanged(t *testing.T) {
	e := newInitializedEngine(t, echoOnly(16000))
	rng := rand.New(rand.NewSource(5))

	desc := apm.StreamDescriptor{SampleRate: 16000, Channels: 2}
	frame := noiseFrame(rng, desc.Samples(), 3000)
	want := append([]int16(nil), frame...)

	require.Equal(t, apm.StatusOK, e.ProcessReverseStream(desc, frame))
	assert.Equal(t, want, frame)
}

func TestEngine_PassthroughWithNoComponents(t *testing.T) {
	cfg := apm.DefaultConfig()
	cfg.ProcessingRate = 48000
	e := newInitializedEngine(t, cfg)
	rng := rand.New(rand.NewSource(9))

	desc := apm.StreamDescriptor{SampleRate: 48000, Channels: 2}
	for i := 0; i < 5; i++ {
		frame := noiseFrame(rng, desc.Samples(), 3000)
		want := append([]int16(nil), frame...)
		require.Equal(t, apm.StatusOK, e.ProcessStream(desc, frame))
		assert.Equal(t, want, frame)
	}
}

func TestEngine_ZeroFramesStayZero(t *testing.T) {
	cfg := apm.ProcessingConfig{
		ProcessingRate:        16000,
		EchoCancelEnabled:     true,
		NoiseSuppressEnabled:  true,
		NoiseSuppressLevel:    apm.NoiseSuppressionVeryHigh,
		GainControllerEnabled: true,
	}
	e := newInitializedEngine(t, cfg)
	require.Equal(t, apm.StatusOK, e.SetStreamDelayMs(40))

	desc := apm.StreamDescriptor{SampleRate: 16000, Channels: 1}
	for i := 0; i < 20; i++ {
		far := make([]int16, desc.Samples())
		near := make([]int16, desc.Samples())
		require.Equal(t, apm.StatusOK, e.ProcessReverseStream(desc, far))
		require.Equal(t, apm.StatusOK, e.ProcessStream(desc, near))
		for _, s := range near {
			require.Zero(t, s)
		}
	}
	assert.Equal(t, uint64(40), e.Frames())
}

func TestEngine_CancelsEcho(t *testing.T) {
	tests := []struct {
		name    string
		delayMs int
	}{
		{"aligned", 0},
		{"delayed 20 ms", 20},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := newInitializedEngine(t, echoOnly(16000))
			require.Equal(t, apm.StatusOK, e.SetStreamDelayMs(tt.delayMs))

			desc := apm.StreamDescriptor{SampleRate: 16000, Channels: 1}
			frameLen := desc.Samples()
			lag := tt.delayMs * 16
			frames := 150

			rng := rand.New(rand.NewSource(21))
			farSignal := noiseFrame(rng, frameLen*frames, 4000)

			var echoEnergy, residual float64
			for f := 0; f < frames; f++ {
				far := append([]int16(nil), farSignal[f*frameLen:(f+1)*frameLen]...)
				require.Equal(t, apm.StatusOK, e.ProcessReverseStream(desc, far))

				near := make([]int16, frameLen)
				for i := range near {
					if n := f*frameLen + i - lag; n >= 0 {
						near[i] = farSignal[n]
					}
				}
				echoEnergy = energy(near)

				require.Equal(t, apm.StatusOK, e.ProcessStream(desc, near))
				residual = energy(near)
			}

			assert.Less(t, residual, 0.01*echoEnergy)
		})
	}
}

func TestEngine_FarEndResampledToNearRate(t *testing.T) {
	e := newInitializedEngine(t, echoOnly(16000))
	rng := rand.New(rand.NewSource(2))

	nearDesc := apm.StreamDescriptor{SampleRate: 16000, Channels: 1}
	farDesc := apm.StreamDescriptor{SampleRate: 48000, Channels: 2}

	require.Equal(t, apm.StatusOK, e.ProcessStream(nearDesc, make([]int16, nearDesc.Samples())))
	for i := 0; i < 10; i++ {
		require.Equal(t, apm.StatusOK, e.ProcessReverseStream(farDesc, noiseFrame(rng, farDesc.Samples(), 2000)))
		require.Equal(t, apm.StatusOK, e.ProcessStream(nearDesc, noiseFrame(rng, nearDesc.Samples(), 2000)))
	}

	assert.Equal(t, 16000, e.nearRate)
	require.NotNil(t, e.farConv)
	assert.Equal(t, uint32(48000), e.farConv.GetInputRate())
	assert.Equal(t, uint32(16000), e.farConv.GetOutputRate())
	assert.InDelta(t, 10*nearDesc.Samples(), int(e.far.Written()), 2)
}

func TestEngine_NearRateChangeRebuildsChains(t *testing.T) {
	cfg := echoOnly(48000)
	cfg.NoiseSuppressEnabled = true
	e := newInitializedEngine(t, cfg)

	for _, desc := range []apm.StreamDescriptor{
		{SampleRate: 16000, Channels: 1},
		{SampleRate: 48000, Channels: 2},
		{SampleRate: 8000, Channels: 1},
	} {
		require.Equal(t, apm.StatusOK, e.ProcessStream(desc, make([]int16, desc.Samples())))
		assert.Equal(t, desc.SampleRate, e.nearRate)
		assert.Len(t, e.chains, desc.Channels)
		assert.Equal(t, []string{"EchoCanceller(480)", "NoiseSuppression(moderate)"}, e.chains[0].GetEffectNames())
	}
}

func TestEngine_SetStreamDelayMs(t *testing.T) {
	e := newInitializedEngine(t, echoOnly(16000))

	assert.Equal(t, apm.StatusOK, e.SetStreamDelayMs(100))
	assert.Equal(t, 100, e.StreamDelayMs())

	assert.Equal(t, apm.StatusBadStreamParameterWarning, e.SetStreamDelayMs(-1))
	assert.Equal(t, 0, e.StreamDelayMs())

	assert.Equal(t, apm.StatusBadStreamParameterWarning, e.SetStreamDelayMs(501))
	assert.Equal(t, apm.MaxStreamDelayMs, e.StreamDelayMs())

	// Delay is converted once the near-end rate is known.
	desc := apm.StreamDescriptor{SampleRate: 16000, Channels: 1}
	require.Equal(t, apm.StatusOK, e.ProcessStream(desc, make([]int16, desc.Samples())))
	assert.Equal(t, apm.MaxStreamDelayMs*16, e.far.Delay())
}

func TestEngine_Close(t *testing.T) {
	eng, err := New()
	require.NoError(t, err)
	eng.ApplyConfig(echoOnly(16000))
	require.Equal(t, apm.StatusOK, eng.Initialize())

	require.NoError(t, eng.Close())
	require.NoError(t, eng.Close())

	desc := apm.StreamDescriptor{SampleRate: 16000, Channels: 1}
	assert.Equal(t, apm.StatusUnspecifiedError, eng.ProcessStream(desc, make([]int16, 160)))
	assert.Equal(t, apm.StatusUnspecifiedError, eng.Initialize())
}

func TestEngine_WithProcessor(t *testing.T) {
	proc, err := apm.NewProcessor(New)
	require.NoError(t, err)
	defer proc.Close()

	require.NoError(t, proc.Configure(echoOnly(16000)))

	desc := apm.StreamDescriptor{SampleRate: 16000, Channels: 1}
	assert.NoError(t, proc.ProcessReverseStream(desc, make([]int16, desc.Samples())))
	assert.NoError(t, proc.ProcessStream(desc, make([]int16, desc.Samples())))

	err = proc.ProcessStream(desc, make([]int16, 10))
	assert.ErrorIs(t, err, apm.ErrBadDataLength)
	assert.Equal(t, apm.StatusBadDataLength, apm.StatusOf(err))

	bad := echoOnly(22050)
	require.NoError(t, proc.Configure(bad))
	require.NoError(t, proc.Teardown())
	err = proc.ProcessStream(desc, make([]int16, desc.Samples()))
	assert.ErrorIs(t, err, apm.ErrBadSampleRate)
	assert.Equal(t, apm.StateConfigured, proc.State())
}

// runLoggedSession drives a full engine through a Processor whose engine
// factory logs to a debug-level logger writing into the returned buffer.
func runLoggedSession(t *testing.T, verbosity apm.LogSeverity) *bytes.Buffer {
	t.Helper()

	var buf bytes.Buffer
	engineLog := logrus.New()
	engineLog.SetOutput(&buf)
	engineLog.SetLevel(logrus.DebugLevel)

	procLog := logrus.New()
	procLog.SetOutput(&bytes.Buffer{})

	proc, err := apm.NewProcessor(NewFactory(WithLogger(engineLog)), apm.WithLogger(procLog))
	require.NoError(t, err)

	cfg := apm.ProcessingConfig{
		ProcessingRate:        16000,
		EchoCancelEnabled:     true,
		NoiseSuppressEnabled:  true,
		NoiseSuppressLevel:    apm.NoiseSuppressionHigh,
		GainControllerEnabled: true,
		LogVerbosity:          verbosity,
	}
	require.NoError(t, proc.Configure(cfg))

	far := apm.StreamDescriptor{SampleRate: 48000, Channels: 2}
	near := apm.StreamDescriptor{SampleRate: 16000, Channels: 1}
	rng := rand.New(rand.NewSource(11))
	for i := 0; i < 15; i++ {
		require.NoError(t, proc.ProcessReverseStream(far, noiseFrame(rng, far.Samples(), 3000)))
		require.NoError(t, proc.ProcessStream(near, noiseFrame(rng, near.Samples(), 3000)))
	}
	require.NoError(t, proc.Close())

	return &buf
}

func TestEngine_LogVerbosity(t *testing.T) {
	std := logrus.StandardLogger()
	prevLevel, prevOut := std.GetLevel(), std.Out
	t.Cleanup(func() {
		std.SetLevel(prevLevel)
		std.SetOutput(prevOut)
	})
	var global bytes.Buffer
	std.SetOutput(&global)
	std.SetLevel(logrus.DebugLevel)

	silent := runLoggedSession(t, apm.LogSeverityNone)
	assert.Empty(t, silent.String())

	verbose := runLoggedSession(t, apm.LogSeverityVerbose)
	out := verbose.String()
	assert.Contains(t, out, "Audio engine initialized")
	assert.Contains(t, out, "Resampler created")
	assert.Contains(t, out, "Noise suppression effect created")
	assert.Contains(t, out, "Effect added to chain")

	assert.Empty(t, global.String(), "engine must not log through the standard logger")
}

func TestNew_PrivateLoggerStartsSilent(t *testing.T) {
	eng, err := New()
	require.NoError(t, err)
	e := eng.(*Engine)
	assert.NotSame(t, logrus.StandardLogger(), e.log)
	assert.Equal(t, logrus.PanicLevel, e.log.GetLevel())

	cfg := echoOnly(16000)
	cfg.LogVerbosity = apm.LogSeverityWarning
	e.ApplyConfig(cfg)
	assert.Equal(t, logrus.WarnLevel, e.log.GetLevel())
}

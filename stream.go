package apm

// FrameDurationMs is the processing interval the engine expects per call.
const FrameDurationMs = 10

// MaxStreamDelayMs is the largest stream delay forwarded to an engine.
const MaxStreamDelayMs = 500

// StreamDescriptor describes the PCM buffer of a single processing call.
// It is built fresh for every call and never retained.
type StreamDescriptor struct {
	SampleRate int // Hz
	Channels   int
}

// FramesPerChannel returns the number of samples per channel in one
// 10 ms frame at the descriptor's sample rate.
func (d StreamDescriptor) FramesPerChannel() int {
	return d.SampleRate * FrameDurationMs / 1000
}

// Samples returns the interleaved buffer length the descriptor implies.
func (d StreamDescriptor) Samples() int {
	return d.FramesPerChannel() * d.Channels
}

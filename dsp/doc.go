// Package dsp provides a pure-Go audio engine for apm.Processor.
//
// The engine processes interleaved 16-bit PCM in 10 ms frames. Each
// near-end channel runs through its own effect chain:
//
//	echo canceller (NLMS) -> noise suppression -> automatic gain control
//
// Stages are included according to apm.ProcessingConfig. Far-end frames
// passed to ProcessReverseStream are downmixed to mono, resampled to the
// near-end rate when the two differ, and kept in a history the echo
// cancellers read from, offset by the stream delay.
//
// Usage:
//
//	proc, err := apm.NewProcessor(dsp.New)
//
// Supported processing rates are 8, 16, 32 and 48 kHz. Streams may also
// run at 44.1 kHz. Up to MaxChannels channels are accepted.
//
// The noise suppressor reconstructs with 50% overlap-add, so processed
// near-end audio is delayed by one frame when it is enabled.
package dsp

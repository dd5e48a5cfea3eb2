// Package apm adapts a stateful, frame-at-a-time audio processing engine
// (acoustic echo cancellation, noise suppression, gain control) to callers
// that stage configuration out of band from the real-time processing path.
//
// # Getting Started
//
// Create a Processor with an engine factory, stage a configuration, then
// feed 10 ms frames from the render and capture paths:
//
//	proc, err := apm.NewProcessor(dsp.New)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer proc.Close()
//
//	cfg := apm.DefaultConfig()
//	cfg.ProcessingRate = 16000
//	cfg.EchoCancelEnabled = true
//	if err := proc.Configure(cfg); err != nil {
//	    log.Fatal(err)
//	}
//
//	desc := apm.StreamDescriptor{SampleRate: 16000, Channels: 1}
//
//	// Render thread
//	err = proc.ProcessReverseStream(desc, farFrame)
//
//	// Capture thread
//	err = proc.SetStreamDelay(40)
//	err = proc.ProcessStream(desc, nearFrame) // nearFrame is modified in place
//
// # Lifecycle
//
// A Processor moves through three states:
//
//   - [StateUnconfigured]: stream and delay calls are silent no-ops.
//   - [StateConfigured]: a configuration is staged, no engine exists yet.
//   - [StateEngineLive]: the engine was built lazily by the first stream or
//     delay call after [Processor.Configure].
//
// [Processor.Teardown] returns to StateConfigured. Reconfiguring a live
// Processor does not rebuild its engine; the new configuration is picked up
// by the next construction after a teardown. A failed construction leaves no
// engine installed and is retried by the next call.
//
// # Thread Safety
//
// Every method holds a single mutex for its whole body. Render and capture
// threads may call into the same Processor concurrently, and Teardown may
// race with processing without observing a partially destroyed engine.
//
// # Error Handling
//
// Engine status codes are surfaced as [*StatusError], which unwraps to a
// sentinel such as [ErrBadDataLength]:
//
//	if errors.Is(err, apm.ErrBadSampleRate) {
//	    // ...
//	}
//
// [StatusOf] converts an error back to a [Status] and [ErrorMessage] maps a
// status to a fixed message.
//
// # Metrics
//
// Engine builds, teardowns, frames, stream errors and per-frame processing
// time are recorded through OpenTelemetry. Use [WithMeterProvider] to route
// them to a specific provider.
package apm

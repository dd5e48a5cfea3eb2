package apm

// Engine is the opaque native signal processor driven by a Processor.
//
// Implementations are not required to be safe for concurrent use; the
// Processor serializes every call. Buffers are interleaved 16-bit PCM,
// processed in place.
type Engine interface {
	// ApplyConfig passes the staged configuration to the engine.
	ApplyConfig(cfg ProcessingConfig)

	// Initialize prepares the engine for processing with the applied
	// configuration. A failed status means the engine must not be used.
	Initialize() Status

	// ProcessStream processes one near-end frame.
	ProcessStream(desc StreamDescriptor, pcm []int16) Status

	// ProcessReverseStream feeds one far-end reference frame.
	ProcessReverseStream(desc StreamDescriptor, pcm []int16) Status

	// SetStreamDelayMs reports the render-to-capture delay.
	SetStreamDelayMs(delayMs int) Status

	// Close releases the engine's resources.
	Close() error
}

// EngineFactory builds a fresh, unconfigured Engine.
type EngineFactory func() (Engine, error)

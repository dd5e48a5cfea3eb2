package apm

// NoiseSuppressionLevel selects how aggressively the engine suppresses noise.
type NoiseSuppressionLevel int

const (
	NoiseSuppressionLow NoiseSuppressionLevel = iota
	NoiseSuppressionModerate
	NoiseSuppressionHigh
	NoiseSuppressionVeryHigh
)

// LogSeverity selects the verbosity of processor and engine logging.
type LogSeverity int

const (
	LogSeverityNone LogSeverity = iota
	LogSeverityError
	LogSeverityWarning
	LogSeverityInfo
	LogSeverityVerbose
)

// ProcessingConfig holds the persistent engine settings staged by Configure.
// It is applied to an engine only when that engine is constructed.
type ProcessingConfig struct {
	// ProcessingRate is the maximum internal processing rate in Hz.
	ProcessingRate int

	EchoCancelEnabled     bool
	NoiseSuppressEnabled  bool
	NoiseSuppressLevel    NoiseSuppressionLevel
	GainControllerEnabled bool

	LogVerbosity LogSeverity
}

// DefaultConfig returns the engine default configuration: full-band
// processing with every component disabled and logging off.
func DefaultConfig() ProcessingConfig {
	return ProcessingConfig{
		ProcessingRate:     48000,
		NoiseSuppressLevel: NoiseSuppressionModerate,
		LogVerbosity:       LogSeverityNone,
	}
}

// validate checks that the enumerated selectors index within their tables.
func (c ProcessingConfig) validate() error {
	if _, err := NoiseSuppressionLevelOf(int(c.NoiseSuppressLevel)); err != nil {
		return err
	}
	if _, err := LogSeverityOf(int(c.LogVerbosity)); err != nil {
		return err
	}
	return nil
}

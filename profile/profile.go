// Package profile loads audio processing profiles from YAML.
//
// A profile is the file form of apm.ProcessingConfig plus the stream delay
// a host reports for its device pair:
//
//	processing_rate: 16000
//	echo_cancel: true
//	noise_suppression:
//	  enabled: true
//	  level: very_high
//	gain_controller: true
//	log_verbosity: info
//	stream_delay_ms: 40
//
// Omitted fields take the engine defaults.
package profile

import (
	"errors"
	"fmt"
	"io"
	"os"
	"slices"
	"strings"

	"github.com/opd-ai/apm"
	"gopkg.in/yaml.v3"
)

// ValidProcessingRates lists the processing rates a profile may select.
var ValidProcessingRates = []int{8000, 16000, 32000, 48000}

// Profile is a decoded processing profile.
type Profile struct {
	ProcessingRate   int              `yaml:"processing_rate"`
	EchoCancel       bool             `yaml:"echo_cancel"`
	NoiseSuppression NoiseSuppression `yaml:"noise_suppression"`
	GainController   bool             `yaml:"gain_controller"`
	LogVerbosity     string           `yaml:"log_verbosity"`
	StreamDelayMs    int              `yaml:"stream_delay_ms"`
}

// NoiseSuppression holds the noise suppression settings.
type NoiseSuppression struct {
	Enabled bool   `yaml:"enabled"`
	Level   string `yaml:"level"`
}

// Load reads the YAML profile at path and returns a validated [Profile].
// It is a convenience wrapper around [LoadFromReader].
func Load(path string) (*Profile, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("profile: open %q: %w", path, err)
	}
	defer f.Close()

	p, err := LoadFromReader(f)
	if err != nil {
		return nil, fmt.Errorf("profile: parse %q: %w", path, err)
	}
	return p, nil
}

// LoadFromReader decodes a YAML profile from r and validates the result.
// Unknown fields are rejected.
func LoadFromReader(r io.Reader) (*Profile, error) {
	p := &Profile{}
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(p); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("profile: decode yaml: %w", err)
	}
	if err := Validate(p); err != nil {
		return nil, err
	}
	return p, nil
}

// Validate checks that p contains a coherent set of values.
// It returns a joined error listing all validation failures found.
func Validate(p *Profile) error {
	var errs []error

	if p.ProcessingRate != 0 && !slices.Contains(ValidProcessingRates, p.ProcessingRate) {
		errs = append(errs, fmt.Errorf("processing_rate %d is invalid; valid values: %s",
			p.ProcessingRate, joinInts(ValidProcessingRates)))
	}

	if p.NoiseSuppression.Level != "" {
		if _, err := ParseNoiseSuppressionLevel(p.NoiseSuppression.Level); err != nil {
			errs = append(errs, fmt.Errorf("noise_suppression.level: %w", err))
		}
	}

	if p.LogVerbosity != "" {
		if _, err := ParseLogSeverity(p.LogVerbosity); err != nil {
			errs = append(errs, fmt.Errorf("log_verbosity: %w", err))
		}
	}

	if p.StreamDelayMs < 0 || p.StreamDelayMs > apm.MaxStreamDelayMs {
		errs = append(errs, fmt.Errorf("stream_delay_ms %d is out of range [0, %d]",
			p.StreamDelayMs, apm.MaxStreamDelayMs))
	}

	return errors.Join(errs...)
}

// ProcessingConfig converts p to an apm.ProcessingConfig. Unset fields
// keep the values of apm.DefaultConfig. p must have passed Validate.
func (p *Profile) ProcessingConfig() apm.ProcessingConfig {
	cfg := apm.DefaultConfig()

	if p.ProcessingRate != 0 {
		cfg.ProcessingRate = p.ProcessingRate
	}
	cfg.EchoCancelEnabled = p.EchoCancel
	cfg.NoiseSuppressEnabled = p.NoiseSuppression.Enabled
	if level, err := ParseNoiseSuppressionLevel(p.NoiseSuppression.Level); err == nil {
		cfg.NoiseSuppressLevel = level
	}
	cfg.GainControllerEnabled = p.GainController
	if severity, err := ParseLogSeverity(p.LogVerbosity); err == nil {
		cfg.LogVerbosity = severity
	}

	return cfg
}

// ParseNoiseSuppressionLevel returns the level whose name is s
// (low, moderate, high, very_high).
func ParseNoiseSuppressionLevel(s string) (apm.NoiseSuppressionLevel, error) {
	var names []string
	for i := 0; ; i++ {
		level, err := apm.NoiseSuppressionLevelOf(i)
		if err != nil {
			break
		}
		if strings.EqualFold(s, level.String()) {
			return level, nil
		}
		names = append(names, level.String())
	}
	return 0, fmt.Errorf("%q is invalid; valid values: %s", s, strings.Join(names, ", "))
}

// ParseLogSeverity returns the severity whose name is s
// (none, error, warning, info, verbose).
func ParseLogSeverity(s string) (apm.LogSeverity, error) {
	var names []string
	for i := 0; ; i++ {
		severity, err := apm.LogSeverityOf(i)
		if err != nil {
			break
		}
		if strings.EqualFold(s, severity.String()) {
			return severity, nil
		}
		names = append(names, severity.String())
	}
	return 0, fmt.Errorf("%q is invalid; valid values: %s", s, strings.Join(names, ", "))
}

func joinInts(values []int) string {
	parts := make([]string, len(values))
	for i, v := range values {
		parts[i] = fmt.Sprint(v)
	}
	return strings.Join(parts, ", ")
}

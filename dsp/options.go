package dsp

import (
	"github.com/opd-ai/apm"
	"github.com/sirupsen/logrus"
)

type options struct {
	logger *logrus.Logger
}

// Option configures an Engine or a processing component.
type Option func(*options)

// WithLogger sets the logger a component writes to. An Engine also sets
// its level from ProcessingConfig.LogVerbosity on every ApplyConfig.
func WithLogger(logger *logrus.Logger) Option {
	return func(o *options) {
		if logger != nil {
			o.logger = logger
		}
	}
}

// buildOptions applies opts over fallback.
func buildOptions(fallback *logrus.Logger, opts []Option) options {
	o := options{logger: fallback}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// componentOptions resolves options for standalone components, which log
// to the standard logger unless told otherwise.
func componentOptions(opts []Option) options {
	return buildOptions(logrus.StandardLogger(), opts)
}

// newEngineLogger returns the private logger an Engine uses when none is
// supplied. It starts at the default configuration's verbosity.
func newEngineLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetLevel(apm.DefaultConfig().LogVerbosity.Level())
	return logger
}

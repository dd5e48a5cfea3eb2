package apm

import (
	"fmt"

	"github.com/sirupsen/logrus"
)

// noiseSuppressionLevels maps the boundary selector to the engine level.
var noiseSuppressionLevels = [...]NoiseSuppressionLevel{
	NoiseSuppressionLow,
	NoiseSuppressionModerate,
	NoiseSuppressionHigh,
	NoiseSuppressionVeryHigh,
}

// logSeverities maps the boundary selector to the engine log severity.
var logSeverities = [...]LogSeverity{
	LogSeverityNone,
	LogSeverityError,
	LogSeverityWarning,
	LogSeverityInfo,
	LogSeverityVerbose,
}

// NoiseSuppressionLevelOf returns the noise suppression level at index.
// Indices outside the table are rejected with ErrInvalidSelector.
func NoiseSuppressionLevelOf(index int) (NoiseSuppressionLevel, error) {
	if index < 0 || index >= len(noiseSuppressionLevels) {
		return 0, fmt.Errorf("noise suppression level %d (valid 0-%d): %w",
			index, len(noiseSuppressionLevels)-1, ErrInvalidSelector)
	}
	return noiseSuppressionLevels[index], nil
}

// LogSeverityOf returns the log severity at index.
// Indices outside the table are rejected with ErrInvalidSelector.
func LogSeverityOf(index int) (LogSeverity, error) {
	if index < 0 || index >= len(logSeverities) {
		return 0, fmt.Errorf("log severity %d (valid 0-%d): %w",
			index, len(logSeverities)-1, ErrInvalidSelector)
	}
	return logSeverities[index], nil
}

const (
	messageOK                        = "no error"
	messageUnspecified               = "unspecified error"
	messageCreationFailed            = "creation failed"
	messageUnsupportedComponent      = "unsupported component"
	messageUnsupportedFunction       = "unsupported function"
	messageNullPointer               = "null pointer"
	messageBadParameter              = "bad parameter"
	messageBadSampleRate             = "bad sample rate"
	messageBadDataLength             = "bad data length"
	messageBadNumberChannels         = "bad number of channels"
	messageFile                      = "file input/output error"
	messageStreamParameterNotSet     = "stream parameter not set"
	messageNotEnabled                = "not enabled"
	messageBadStreamParameterWarning = "bad stream parameter warning"
)

// UnknownErrorMessage is what ErrorMessage returns for codes outside the
// engine status space.
const UnknownErrorMessage = "unknown error"


var errorMessages = map[Status]string{
	StatusOK:                        messageOK,
	StatusUnspecifiedError:          messageUnspecified,
	StatusCreationFailed:            messageCreationFailed,
	StatusUnsupportedComponent:      messageUnsupportedComponent,
	StatusUnsupportedFunction:       messageUnsupportedFunction,
	StatusNullPointer:               messageNullPointer,
	StatusBadParameter:              messageBadParameter,
	StatusBadSampleRate:             messageBadSampleRate,
	StatusBadDataLength:             messageBadDataLength,
	StatusBadNumberChannels:         messageBadNumberChannels,
	StatusFileError:                 messageFile,
	StatusStreamParameterNotSet:     messageStreamParameterNotSet,
	StatusNotEnabled:                messageNotEnabled,
	StatusBadStreamParameterWarning: messageBadStreamParameterWarning,
}

// ErrorMessage returns the fixed human-readable message for code.
// Codes outside the engine status space map to "unknown error".
func ErrorMessage(code Status) string {
	if msg, ok := errorMessages[code]; ok {
		return msg
	}
	return UnknownErrorMessage
}

// Statuses returns every defined status code in descending order.
func Statuses() []Status {
	out := make([]Status, 0, len(errorMessages))
	for code := StatusOK; code >= StatusBadStreamParameterWarning; code-- {
		out = append(out, code)
	}
	return out
}

func (l NoiseSuppressionLevel) String() string {
	switch l {
	case NoiseSuppressionLow:
		return "low"
	case NoiseSuppressionModerate:
		return "moderate"
	case NoiseSuppressionHigh:
		return "high"
	case NoiseSuppressionVeryHigh:
		return "very_high"
	default:
		return fmt.Sprintf("NoiseSuppressionLevel(%d)", int(l))
	}
}

// AttenuationDB returns the target noise attenuation for the level.
func (l NoiseSuppressionLevel) AttenuationDB() float64 {
	switch l {
	case NoiseSuppressionLow:
		return 6
	case NoiseSuppressionModerate:
		return 12
	case NoiseSuppressionHigh:
		return 18
	case NoiseSuppressionVeryHigh:
		return 21
	default:
		return 0
	}
}

func (s LogSeverity) String() string {
	switch s {
	case LogSeverityNone:
		return "none"
	case LogSeverityError:
		return "error"
	case LogSeverityWarning:
		return "warning"
	case LogSeverityInfo:
		return "info"
	case LogSeverityVerbose:
		return "verbose"
	default:
		return fmt.Sprintf("LogSeverity(%d)", int(s))
	}
}

// Level returns the logrus level for s. LogSeverityNone maps to PanicLevel,
// which nothing in this module logs at, so output is effectively off.
func (s LogSeverity) Level() logrus.Level {
	switch s {
	case LogSeverityError:
		return logrus.ErrorLevel
	case LogSeverityWarning:
		return logrus.WarnLevel
	case LogSeverityInfo:
		return logrus.InfoLevel
	case LogSeverityVerbose:
		return logrus.DebugLevel
	default:
		return logrus.PanicLevel
	}
}

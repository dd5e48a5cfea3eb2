package apm

import (
	"errors"
	"fmt"
)

// Sentinel errors for apm operations.
// These errors enable reliable error classification using errors.Is().

// Configuration errors.
var (
	// ErrInvalidSelector indicates a table selector outside the fixed table.
	ErrInvalidSelector = errors.New("selector out of range")

	// ErrNilFactory indicates a Processor was created without an engine factory.
	ErrNilFactory = errors.New("engine factory is nil")
)

// Lifecycle errors.
var (
	// ErrProcessorClosed indicates the Processor has been closed.
	ErrProcessorClosed = errors.New("processor is closed")
)

// Engine status errors, one per non-success Status.
var (
	ErrUnspecified           = errors.New(messageUnspecified)
	ErrCreationFailed        = errors.New(messageCreationFailed)
	ErrUnsupportedComponent  = errors.New(messageUnsupportedComponent)
	ErrUnsupportedFunction   = errors.New(messageUnsupportedFunction)
	ErrNullPointer           = errors.New(messageNullPointer)
	ErrBadParameter          = errors.New(messageBadParameter)
	ErrBadSampleRate         = errors.New(messageBadSampleRate)
	ErrBadDataLength         = errors.New(messageBadDataLength)
	ErrBadNumberChannels     = errors.New(messageBadNumberChannels)
	ErrFile                  = errors.New(messageFile)
	ErrStreamParameterNotSet = errors.New(messageStreamParameterNotSet)
	ErrNotEnabled            = errors.New(messageNotEnabled)
	ErrBadStreamParameter    = errors.New(messageBadStreamParameterWarning)
	errUnknownStatus         = errors.New(UnknownErrorMessage)
)

var statusSentinels = map[Status]error{
	StatusUnspecifiedError:          ErrUnspecified,
	StatusCreationFailed:            ErrCreationFailed,
	StatusUnsupportedComponent:      ErrUnsupportedComponent,
	StatusUnsupportedFunction:       ErrUnsupportedFunction,
	StatusNullPointer:               ErrNullPointer,
	StatusBadParameter:              ErrBadParameter,
	StatusBadSampleRate:             ErrBadSampleRate,
	StatusBadDataLength:             ErrBadDataLength,
	StatusBadNumberChannels:         ErrBadNumberChannels,
	StatusFileError:                 ErrFile,
	StatusStreamParameterNotSet:     ErrStreamParameterNotSet,
	StatusNotEnabled:                ErrNotEnabled,
	StatusBadStreamParameterWarning: ErrBadStreamParameter,
}

// StatusError carries an engine status code across the Go API.
type StatusError struct {
	Code Status
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("apm: %s (%d)", ErrorMessage(e.Code), int(e.Code))
}

// Unwrap returns the sentinel error for the status code.
func (e *StatusError) Unwrap() error {
	if err, ok := statusSentinels[e.Code]; ok {
		return err
	}
	return errUnknownStatus
}

// StatusOf translates err back into an engine status code. It is the
// inverse of Status.Err and is used at the C boundary.
func StatusOf(err error) Status {
	if err == nil {
		return StatusOK
	}

	var se *StatusError
	if errors.As(err, &se) {
		return se.Code
	}

	switch {
	case errors.Is(err, ErrInvalidSelector):
		return StatusBadParameter
	case errors.Is(err, ErrNilFactory):
		return StatusCreationFailed
	}

	for code, sentinel := range statusSentinels {
		if errors.Is(err, sentinel) {
			return code
		}
	}
	return StatusUnspecifiedError
}

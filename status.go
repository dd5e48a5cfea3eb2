package apm

// Status is a status code reported by an audio engine. The numbering follows
// the native engine's error space: zero is success, negative values are
// errors, and StatusBadStreamParameterWarning is a non-fatal warning.
type Status int

const (
	StatusOK                        Status = 0
	StatusUnspecifiedError          Status = -1
	StatusCreationFailed            Status = -2
	StatusUnsupportedComponent      Status = -3
	StatusUnsupportedFunction       Status = -4
	StatusNullPointer               Status = -5
	StatusBadParameter              Status = -6
	StatusBadSampleRate             Status = -7
	StatusBadDataLength             Status = -8
	StatusBadNumberChannels         Status = -9
	StatusFileError                 Status = -10
	StatusStreamParameterNotSet     Status = -11
	StatusNotEnabled                Status = -12
	StatusBadStreamParameterWarning Status = -13
)

// Failed reports whether s describes a failed operation. Success and the
// bad-stream-parameter warning are not failures.
func (s Status) Failed() bool {
	return s != StatusOK && s != StatusBadStreamParameterWarning
}

// String returns the human-readable message for s.
func (s Status) String() string {
	return ErrorMessage(s)
}

// Err converts s into an error. StatusOK yields nil; every other code
// yields a *StatusError that unwraps to the matching sentinel.
func (s Status) Err() error {
	if s == StatusOK {
		return nil
	}
	return &StatusError{Code: s}
}

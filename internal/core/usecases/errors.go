package usecases

import (
	"errors"

	"github.com/samirrijal/fleetview/internal/core/ports"
)

// ErrorKind classifies a failed fetch procedure.
type ErrorKind string

const (
	KindNetwork       ErrorKind = "network"
	KindStatus        ErrorKind = "status"
	KindMalformed     ErrorKind = "malformed"
	KindNoDevice      ErrorKind = "no_device"
	KindInvalidWindow ErrorKind = "invalid_window"
)

var (
	// ErrNoDevice is returned by GetPath when the backend lists no devices.
	ErrNoDevice = errors.New("no device available")

	// ErrSuperseded is returned by GetPath when a newer GetPath started
	// before this one could commit. State is left to the newer call.
	ErrSuperseded = errors.New("superseded by a newer path request")
)

// FetchError reports which step of a fetch procedure failed and why.
// State written by earlier steps is kept.
type FetchError struct {
	Kind ErrorKind
	Step string
	Err  error
}

func (e *FetchError) Error() string {
	return e.Step + ": " + e.Err.Error()
}

func (e *FetchError) Unwrap() error { return e.Err }

// classify maps a backend error to its kind.
func classify(err error) ErrorKind {
	switch {
	case errors.Is(err, ports.ErrUnexpectedStatus):
		return KindStatus
	case errors.Is(err, ports.ErrMalformedResponse):
		return KindMalformed
	default:
		return KindNetwork
	}
}

package session

import (
	"errors"
	"fmt"

	"github.com/AltairaLabs/livevoice/device"
	"github.com/AltairaLabs/livevoice/transport"
)

var (
	// ErrPermissionDenied is returned by Start when the microphone or speaker
	// could not be acquired because the operating system refused access.
	ErrPermissionDenied = device.ErrPermissionDenied

	// ErrStopped is returned by Start when Stop was called before the
	// session became active.
	ErrStopped = errors.New("session stopped while connecting")
)

// TransportError reports a handshake or mid-session transport failure.
type TransportError struct {
	// Op is "dial" or "receive".
	Op  string
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("transport %s failed: %v", e.Op, e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

// ResourceReleaseError reports a teardown step that failed. It is recorded
// and published, never returned to the caller.
type ResourceReleaseError struct {
	Resource string
	Err      error
}

func (e *ResourceReleaseError) Error() string {
	return fmt.Sprintf("release %s: %v", e.Resource, e.Err)
}

func (e *ResourceReleaseError) Unwrap() error {
	return e.Err
}

// Describe turns an error returned by Start into a single actionable message
// for the user.
func Describe(err error) string {
	var te *TransportError
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrPermissionDenied):
		return "Microphone access was denied. Allow access to the audio device and try again."
	case errors.Is(err, device.ErrMicrophoneBusy):
		return "The microphone is in use by another session. Stop it and try again."
	case errors.Is(err, device.ErrNoBackend):
		return "No audio backend is available. Rebuild with -tags portaudio."
	case errors.Is(err, transport.ErrUnauthorized):
		return "The live service rejected the API key. Check the key and try again."
	case errors.Is(err, ErrStopped):
		return "The session was stopped before it connected."
	case errors.As(err, &te):
		return "Could not reach the live service. Check your network connection and try again."
	default:
		return "Could not start the session: " + err.Error()
	}
}

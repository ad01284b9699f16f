// Package transport defines the contract between a live session and the
// remote conversational endpoint, independent of any wire protocol.
package transport

import (
	"context"
	"errors"

	"github.com/AltairaLabs/livevoice/transcript"
)

// ErrUnauthorized is matched by dial errors caused by rejected credentials.
var ErrUnauthorized = errors.New("unauthorized")

// Frame is one outbound audio frame. Data is the text-encoded PCM payload.
type Frame struct {
	Data     string
	MIMEType string
}

// EventKind discriminates inbound events.
type EventKind int

const (
	// EventAudio carries one synthesized audio fragment.
	EventAudio EventKind = iota
	// EventTranscription carries a transcription delta for one speaker.
	EventTranscription
	// EventInterrupted signals that the user started speaking over the output.
	EventInterrupted
	// EventClosed signals that the remote ended the session.
	EventClosed
	// EventError signals a transport failure. It is always the last event.
	EventError
)

// String returns a lower-case name for the kind.
func (k EventKind) String() string {
	switch k {
	case EventAudio:
		return "audio"
	case EventTranscription:
		return "transcription"
	case EventInterrupted:
		return "interrupted"
	case EventClosed:
		return "closed"
	case EventError:
		return "error"
	default:
		return "unknown"
	}
}

// Event is one inbound event from the remote endpoint.
type Event struct {
	Kind EventKind

	// Audio is the text-encoded PCM payload of an EventAudio, and MIMEType
	// its declared type (which may carry a rate parameter).
	Audio    string
	MIMEType string

	// Speaker and Text describe an EventTranscription.
	Speaker transcript.Speaker
	Text    string

	// Err is set on EventError.
	Err error
}

// Conn is an open bidirectional session.
type Conn interface {
	// SendAudio hands a frame to the transport without blocking. It reports
	// whether the frame was accepted; frames the transport cannot take right
	// now are dropped, never queued or retried.
	SendAudio(Frame) bool

	// Events delivers inbound events in arrival order. The channel is closed
	// after a final EventClosed or EventError.
	Events() <-chan Event

	// Close ends the session and waits for the remote to acknowledge until
	// ctx is done. It is safe to call more than once.
	Close(ctx context.Context) error
}

// Dialer opens sessions. Dial returns once the remote has confirmed the
// session is open.
type Dialer interface {
	Dial(ctx context.Context) (Conn, error)
}

package events

import "time"

// EventType identifies the type of event emitted by a live session.
type EventType string

const (
	// EventSessionStateChanged marks a lifecycle transition.
	EventSessionStateChanged EventType = "session.state_changed"
	// EventSessionStarted marks a session reaching ACTIVE.
	EventSessionStarted EventType = "session.started"
	// EventSessionEnded marks a session returning to IDLE.
	EventSessionEnded EventType = "session.ended"

	// EventFragmentScheduled marks an inbound fragment placed on the playback timeline.
	EventFragmentScheduled EventType = "audio.fragment_scheduled"
	// EventFragmentDropped marks an inbound fragment discarded before scheduling.
	EventFragmentDropped EventType = "audio.fragment_dropped"
	// EventPlaybackInterrupted marks a barge-in that stopped active playback.
	EventPlaybackInterrupted EventType = "playback.interrupted"

	// EventTranscriptAppended marks a transcription delta appended to the log.
	EventTranscriptAppended EventType = "transcript.appended"

	// EventCaptureBlockSent marks a microphone block handed to the transport.
	EventCaptureBlockSent EventType = "capture.block_sent"
	// EventCaptureBlockDropped marks a microphone block lost before sending.
	EventCaptureBlockDropped EventType = "capture.block_dropped"

	// EventResourceReleaseFailed marks a teardown step that failed.
	EventResourceReleaseFailed EventType = "resource.release_failed"
)

// EventData is a marker interface for event payloads.
type EventData interface {
	eventData()
}

// Event represents a live session event delivered to listeners.
type Event struct {
	Type      EventType
	Timestamp time.Time
	SessionID string
	Data      EventData
}

// New builds an event stamped with the current time.
func New(eventType EventType, sessionID string, data EventData) *Event {
	return &Event{
		Type:      eventType,
		Timestamp: time.Now(),
		SessionID: sessionID,
		Data:      data,
	}
}

// baseEventData provides a shared marker implementation for all event payloads.
type baseEventData struct{}

func (baseEventData) eventData() {}

// StateChangedData describes a lifecycle transition.
type StateChangedData struct {
	baseEventData
	From string
	To   string
}

// SessionStartedData is published when the session becomes ACTIVE.
type SessionStartedData struct {
	baseEventData
	Model string
	Voice string
}

// Session end reasons carried by SessionEndedData.
const (
	ReasonStopped        = "stopped"
	ReasonRemoteClosed   = "remote_closed"
	ReasonTransportError = "transport_error"
	// ReasonStartFailed ends a session that never became ACTIVE.
	ReasonStartFailed = "start_failed"
)

// SessionEndedData is published once teardown completes, and when a start
// attempt fails.
type SessionEndedData struct {
	baseEventData
	Duration time.Duration
	Reason   string
	Error    error
}

// FragmentScheduledData describes a fragment placed on the timeline.
type FragmentScheduledData struct {
	baseEventData
	StartAt    time.Duration
	Duration   time.Duration
	SampleRate int
	Channels   int
}

// FragmentDroppedData describes a fragment rejected by the codec.
type FragmentDroppedData struct {
	baseEventData
	Bytes int
	Error error
}

// PlaybackInterruptedData reports how many handles a barge-in stopped.
type PlaybackInterruptedData struct {
	baseEventData
	Stopped int
}

// TranscriptAppendedData carries one transcription delta.
type TranscriptAppendedData struct {
	baseEventData
	Speaker string
	Text    string
	// NewLine is true when the delta started a new transcript line.
	NewLine bool
}

// CaptureBlockData describes one outbound microphone block.
type CaptureBlockData struct {
	baseEventData
	Frames int
	Bytes  int
}

// ResourceReleaseData describes a failed teardown step.
type ResourceReleaseData struct {
	baseEventData
	Resource string
	Error    error
}

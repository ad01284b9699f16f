package prometheus

import (
	"github.com/AltairaLabs/livevoice/events"
)

// Capture outcome label values.
const (
	statusSent    = "sent"
	statusDropped = "dropped"
)

// MetricsListener records live session events as Prometheus metrics.
// Register it with EventBus.SubscribeAll.
type MetricsListener struct{}

// NewMetricsListener creates a new MetricsListener.
func NewMetricsListener() *MetricsListener {
	return &MetricsListener{}
}

// Handle processes an event and records relevant metrics.
func (l *MetricsListener) Handle(event *events.Event) {
	//exhaustive:ignore
	switch event.Type {
	case events.EventSessionStateChanged:
		if data, ok := event.Data.(events.StateChangedData); ok {
			RecordStateTransition(data.From, data.To)
		}
	case events.EventSessionStarted:
		RecordSessionStart()
	case events.EventSessionEnded:
		if data, ok := event.Data.(events.SessionEndedData); ok {
			if data.Reason == events.ReasonStartFailed {
				RecordStartFailure()
			} else {
				RecordSessionEnd(data.Reason, data.Duration.Seconds())
			}
		}
	case events.EventFragmentScheduled:
		if data, ok := event.Data.(events.FragmentScheduledData); ok {
			RecordFragmentScheduled(data.Duration.Seconds())
		}
	case events.EventFragmentDropped:
		RecordFragmentDropped()
	case events.EventPlaybackInterrupted:
		if data, ok := event.Data.(events.PlaybackInterruptedData); ok {
			RecordInterruption(data.Stopped)
		}
	case events.EventTranscriptAppended:
		if data, ok := event.Data.(events.TranscriptAppendedData); ok {
			RecordTranscriptDelta(data.Speaker)
		}
	case events.EventCaptureBlockSent:
		RecordCaptureBlock(statusSent)
	case events.EventCaptureBlockDropped:
		RecordCaptureBlock(statusDropped)
	case events.EventResourceReleaseFailed:
		if data, ok := event.Data.(events.ResourceReleaseData); ok {
			RecordReleaseFailure(data.Resource)
		}
	default:
		// Ignore events that don't have metrics
	}
}

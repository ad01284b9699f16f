package telemetry

import (
	"context"
	"sync"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/AltairaLabs/livevoice/events"
)

// SessionSpanName is the name of the root span covering one session.
const SessionSpanName = "livevoice.session"

// Lifecycle state names as carried by StateChangedData.
const (
	stateConnecting = "CONNECTING"
	stateIdle       = "IDLE"
)

// SessionSpanListener turns session events into one span per session that
// runs from CONNECTING back to IDLE. Transitions, interruptions and release
// failures are recorded as span events.
// It is safe for concurrent use and can be passed to EventBus.SubscribeAll.
type SessionSpanListener struct {
	tracer trace.Tracer
	parent context.Context //nolint:containedctx // parents every session span

	mu    sync.Mutex
	spans map[string]trace.Span // sessionID → root span
}

// NewSessionSpanListener creates a listener whose spans are parented under
// the span in parent, if any.
func NewSessionSpanListener(parent context.Context, tracer trace.Tracer) *SessionSpanListener {
	if parent == nil {
		parent = context.Background()
	}
	return &SessionSpanListener{
		tracer: tracer,
		parent: parent,
		spans:  make(map[string]trace.Span),
	}
}

// OnEvent handles a single session event.
func (l *SessionSpanListener) OnEvent(evt *events.Event) {
	//nolint:exhaustive // Only handling span-producing events
	switch evt.Type {
	case events.EventSessionStateChanged:
		l.handleTransition(evt)
	case events.EventSessionStarted:
		if data, ok := evt.Data.(events.SessionStartedData); ok {
			l.withSpan(evt.SessionID, func(span trace.Span) {
				span.SetAttributes(
					attribute.String("gen_ai.request.model", data.Model),
					attribute.String("livevoice.voice", data.Voice),
				)
			})
		}
	case events.EventSessionEnded:
		if data, ok := evt.Data.(events.SessionEndedData); ok {
			l.withSpan(evt.SessionID, func(span trace.Span) {
				span.SetAttributes(
					attribute.String("livevoice.end_reason", data.Reason),
					attribute.Float64("livevoice.duration_seconds", data.Duration.Seconds()),
				)
				if data.Error != nil {
					span.RecordError(data.Error)
					span.SetStatus(codes.Error, data.Error.Error())
				} else {
					span.SetStatus(codes.Ok, "")
				}
			})
		}
	case events.EventPlaybackInterrupted:
		if data, ok := evt.Data.(events.PlaybackInterruptedData); ok {
			l.withSpan(evt.SessionID, func(span trace.Span) {
				span.AddEvent("playback.interrupted", trace.WithTimestamp(evt.Timestamp),
					trace.WithAttributes(attribute.Int("livevoice.stopped", data.Stopped)))
			})
		}
	case events.EventResourceReleaseFailed:
		if data, ok := evt.Data.(events.ResourceReleaseData); ok {
			l.withSpan(evt.SessionID, func(span trace.Span) {
				attrs := []attribute.KeyValue{attribute.String("livevoice.resource", data.Resource)}
				if data.Error != nil {
					attrs = append(attrs, attribute.String("error.message", data.Error.Error()))
				}
				span.AddEvent("resource.release_failed", trace.WithTimestamp(evt.Timestamp),
					trace.WithAttributes(attrs...))
			})
		}
	}
}

func (l *SessionSpanListener) handleTransition(evt *events.Event) {
	data, ok := evt.Data.(events.StateChangedData)
	if !ok {
		return
	}

	if data.To == stateConnecting {
		_, span := l.tracer.Start(l.parent, SessionSpanName,
			trace.WithSpanKind(trace.SpanKindClient),
			trace.WithTimestamp(evt.Timestamp),
			trace.WithAttributes(attribute.String("session.id", evt.SessionID)),
		)
		l.mu.Lock()
		prev := l.spans[evt.SessionID]
		l.spans[evt.SessionID] = span
		l.mu.Unlock()
		if prev != nil {
			prev.End()
		}
	}

	l.withSpan(evt.SessionID, func(span trace.Span) {
		span.AddEvent("state."+data.To, trace.WithTimestamp(evt.Timestamp),
			trace.WithAttributes(attribute.String("livevoice.state.from", data.From)))
	})

	if data.To == stateIdle {
		l.mu.Lock()
		span, found := l.spans[evt.SessionID]
		delete(l.spans, evt.SessionID)
		l.mu.Unlock()
		if found {
			span.End(trace.WithTimestamp(evt.Timestamp))
		}
	}
}

func (l *SessionSpanListener) withSpan(sessionID string, fn func(trace.Span)) {
	l.mu.Lock()
	span, ok := l.spans[sessionID]
	l.mu.Unlock()
	if ok {
		fn(span)
	}
}

// Open returns the number of sessions with an unfinished span.
func (l *SessionSpanListener) Open() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.spans)
}

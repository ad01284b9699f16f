// Package session runs a live voice conversation: it owns the lifecycle
// state machine, wires the microphone to the transport and the transport
// to playback and the transcript, and releases every resource on every
// exit path.
package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"github.com/AltairaLabs/livevoice/capture"
	"github.com/AltairaLabs/livevoice/device"
	"github.com/AltairaLabs/livevoice/events"
	"github.com/AltairaLabs/livevoice/logger"
	"github.com/AltairaLabs/livevoice/pcm"
	"github.com/AltairaLabs/livevoice/playback"
	"github.com/AltairaLabs/livevoice/transcript"
	"github.com/AltairaLabs/livevoice/transport"
)

// DefaultCloseTimeout bounds the wait for the remote to acknowledge a close.
const DefaultCloseTimeout = 2 * time.Second

// Resource names used in release failures.
const (
	ResourceMicrophone = "microphone"
	ResourceTransport  = "transport"
	ResourceSpeaker    = "speaker"
	ResourceEventLoop  = "event_loop"
)

// Options configures a Controller.
type Options struct {
	Dialer transport.Dialer
	// Microphone should be wrapped with device.Exclusive when several
	// controllers share one device.
	Microphone device.Microphone
	Speaker    device.Speaker
	Input      device.InputConfig
	Output     device.OutputConfig

	// InboundSampleRate applies to fragments whose MIME type carries no
	// rate. Defaults to 24 kHz.
	InboundSampleRate int
	// InboundChannels is the channel count of received audio. Defaults to 1.
	InboundChannels int

	CloseTimeout time.Duration

	// Model and Voice are reported in session.started events.
	Model string
	Voice string

	// Bus receives session events. Optional.
	Bus *events.EventBus

	// OnStateChange is called for every transition with the controller lock
	// held. It must not call back into the Controller.
	OnStateChange func(from, to State)

	// OnTranscript is called for every transcription delta.
	OnTranscript transcript.AppendFunc
}

// Controller runs at most one session at a time.
type Controller struct {
	opts       Options
	log        *slog.Logger
	transcript *transcript.Aggregator
	currentID  atomic.Value // string
	dropLog    rate.Sometimes

	mu            sync.Mutex
	state         State
	sess          *live
	cancelConnect context.CancelCauseFunc
	connected     chan struct{}
	lastErr       error
}

// live holds the resources of one session. Every field is released in
// teardown.
type live struct {
	id        string
	startedAt time.Time
	conn      transport.Conn
	capture   *capture.Pipeline
	mixer     *playback.Mixer
	output    device.OutputStream
	scheduler *playback.Scheduler
	cancel    context.CancelCauseFunc

	closing  atomic.Bool
	loopDone chan struct{}
	done     chan struct{}
}

// New returns an idle controller.
func New(opts Options) (*Controller, error) {
	if opts.Dialer == nil {
		return nil, errors.New("session: dialer is required")
	}
	if opts.Microphone == nil {
		return nil, errors.New("session: microphone is required")
	}
	if opts.Speaker == nil {
		return nil, errors.New("session: speaker is required")
	}
	opts.Input = opts.Input.WithDefaults()
	opts.Output = opts.Output.WithDefaults()
	if opts.InboundSampleRate <= 0 {
		opts.InboundSampleRate = pcm.SampleRate24kHz
	}
	if opts.InboundChannels <= 0 {
		opts.InboundChannels = 1
	}
	if opts.CloseTimeout <= 0 {
		opts.CloseTimeout = DefaultCloseTimeout
	}

	c := &Controller{
		opts:    opts,
		log:     logger.Component("session"),
		dropLog: rate.Sometimes{First: 3, Interval: 5 * time.Second},
	}
	c.currentID.Store("")
	c.transcript = transcript.NewAggregator(c.onAppend)
	return c, nil
}

// State returns the current lifecycle state.
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// SessionID returns the ID of the current or most recent session.
func (c *Controller) SessionID() string {
	id, _ := c.currentID.Load().(string)
	return id
}

// Transcript returns the transcript of the current or most recent session.
// It is reset when a new session starts.
func (c *Controller) Transcript() *transcript.Aggregator {
	return c.transcript
}

// Err returns the error that ended the most recent session, if any.
func (c *Controller) Err() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastErr
}

// Done returns a channel that is closed once the running session has
// returned to IDLE. It is already closed when no session is running. Call it
// after Start has returned.
func (c *Controller) Done() <-chan struct{} {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.sess != nil {
		return c.sess.done
	}
	closed := make(chan struct{})
	close(closed)
	return closed
}

// Start acquires the speaker, opens the transport and then the microphone,
// and returns once the session is ACTIVE. ctx bounds the acquisition only;
// the session runs until Stop or until the remote ends it. On failure every
// partially acquired resource is released and the controller is IDLE again.
// Start is a no-op unless the controller is IDLE.
func (c *Controller) Start(ctx context.Context) error {
	c.mu.Lock()
	if c.state != StateIdle {
		c.mu.Unlock()
		return nil
	}
	id := uuid.NewString()
	connectCtx, cancel := context.WithCancelCause(ctx)
	connected := make(chan struct{})
	c.cancelConnect = cancel
	c.connected = connected
	c.lastErr = nil
	c.currentID.Store(id)
	c.transcript.Reset()
	c.setState(id, StateConnecting)
	c.mu.Unlock()
	defer close(connected)

	began := time.Now()
	s, err := c.connect(connectCtx, id)
	if err == nil {
		s.cancel = cancel
		c.mu.Lock()
		if connectCtx.Err() == nil {
			c.sess = s
			c.cancelConnect = nil
			c.setState(id, StateActive)
			c.publish(id, events.EventSessionStarted, events.SessionStartedData{
				Model: c.opts.Model,
				Voice: c.opts.Voice,
			})
			go c.run(s)
			c.mu.Unlock()
			c.log.Info("session active", "session_id", id, "connect_time", time.Since(began))
			return nil
		}
		c.mu.Unlock()
		c.release(s)
	}
	if errors.Is(context.Cause(connectCtx), ErrStopped) {
		err = ErrStopped
	}
	cancel(nil)

	c.mu.Lock()
	c.cancelConnect = nil
	c.lastErr = err
	c.publish(id, events.EventSessionEnded, events.SessionEndedData{
		Duration: time.Since(began),
		Reason:   events.ReasonStartFailed,
		Error:    err,
	})
	c.setState(id, StateIdle)
	c.mu.Unlock()

	c.log.Warn("session failed to start", "session_id", id, "error", err)
	return err
}

// connect acquires resources in order and releases what it holds on failure.
func (c *Controller) connect(ctx context.Context, id string) (*live, error) {
	mixer := playback.NewMixer(c.opts.Output.SampleRate)
	output, err := c.opts.Speaker.Open(ctx, c.opts.Output, mixer)
	if err != nil {
		return nil, fmt.Errorf("open speaker: %w", err)
	}

	conn, err := c.opts.Dialer.Dial(ctx)
	if err != nil {
		c.closeOutput(id, output)
		return nil, &TransportError{Op: "dial", Err: err}
	}

	s := &live{
		id:        id,
		startedAt: time.Now(),
		conn:      conn,
		mixer:     mixer,
		output:    output,
		scheduler: playback.NewScheduler(mixer),
		loopDone:  make(chan struct{}),
		done:      make(chan struct{}),
	}
	s.capture = capture.New(capture.Options{
		Microphone: c.opts.Microphone,
		Input:      c.opts.Input,
		Sink:       conn,
		Bus:        c.opts.Bus,
		SessionID:  id,
	})
	if err := s.capture.Start(ctx); err != nil {
		c.closeConn(id, conn)
		c.closeOutput(id, output)
		return nil, fmt.Errorf("open microphone: %w", err)
	}
	return s, nil
}

// release frees a fully connected session that never became ACTIVE.
func (c *Controller) release(s *live) {
	if err := s.capture.Stop(); err != nil {
		c.releaseFailed(s.id, ResourceMicrophone, err)
	}
	c.closeConn(s.id, s.conn)
	c.closeOutput(s.id, s.output)
}

// Stop ends the session and returns once it is IDLE. Called while
// CONNECTING it aborts the acquisition. ctx bounds the wait for the remote
// to acknowledge the close; teardown completes regardless. Stop is a no-op
// when IDLE.
func (c *Controller) Stop(ctx context.Context) {
	c.mu.Lock()
	switch c.state {
	case StateIdle:
		c.mu.Unlock()
		return
	case StateConnecting:
		// Cancel under the lock so Start cannot promote the session to
		// ACTIVE between here and the cancellation.
		if c.cancelConnect != nil {
			c.cancelConnect(ErrStopped)
		}
		connected := c.connected
		c.mu.Unlock()
		<-connected
		return
	case StateClosing:
		s := c.sess
		c.mu.Unlock()
		if s != nil {
			<-s.done
		}
		return
	}
	s := c.sess
	c.setState(s.id, StateClosing)
	c.mu.Unlock()

	c.teardown(ctx, s, events.ReasonStopped, nil, true)
}

// run consumes inbound events until the transport ends, then tears the
// session down unless Stop already did.
func (c *Controller) run(s *live) {
	defer close(s.loopDone)

	reason, err := c.pump(s)

	c.mu.Lock()
	if c.sess != s || c.state != StateActive {
		c.mu.Unlock()
		return
	}
	c.setState(s.id, StateClosing)
	c.mu.Unlock()

	c.teardown(context.Background(), s, reason, err, false)
}

// pump is the only caller of the scheduler's Schedule and Interrupt.
func (c *Controller) pump(s *live) (string, error) {
	reason, cause := events.ReasonRemoteClosed, error(nil)
	for ev := range s.conn.Events() {
		if s.closing.Load() {
			continue
		}
		switch ev.Kind {
		case transport.EventAudio:
			c.play(s, ev)
		case transport.EventTranscription:
			c.transcript.Append(ev.Speaker, ev.Text)
		case transport.EventInterrupted:
			n := s.scheduler.Interrupt()
			c.publish(s.id, events.EventPlaybackInterrupted, events.PlaybackInterruptedData{Stopped: n})
		case transport.EventClosed:
			reason, cause = events.ReasonRemoteClosed, nil
		case transport.EventError:
			reason, cause = events.ReasonTransportError, &TransportError{Op: "receive", Err: ev.Err}
		}
	}
	return reason, cause
}

func (c *Controller) play(s *live, ev transport.Event) {
	buf, n, err := c.decode(ev)
	if err != nil {
		c.dropLog.Do(func() {
			c.log.Warn("dropping undecodable audio fragment", "session_id", s.id, "bytes", n, "error", err)
		})
		c.publish(s.id, events.EventFragmentDropped, events.FragmentDroppedData{Bytes: n, Error: err})
		return
	}
	if buf.Frames() == 0 {
		return
	}

	startAt := s.scheduler.Schedule(playback.Fragment{Buffer: buf})
	c.publish(s.id, events.EventFragmentScheduled, events.FragmentScheduledData{
		StartAt:    startAt,
		Duration:   buf.Duration(),
		SampleRate: buf.SampleRate,
		Channels:   buf.NumChannels(),
	})
}

// decode returns the fragment and its payload size in bytes.
func (c *Controller) decode(ev transport.Event) (*pcm.Buffer, int, error) {
	data, err := pcm.FromTransportText(ev.Audio)
	if err != nil {
		return nil, len(ev.Audio), err
	}
	sampleRate := c.opts.InboundSampleRate
	if r, ok := pcm.ParseRate(ev.MIMEType); ok {
		sampleRate = r
	}
	buf, err := pcm.Decode(data, sampleRate, c.opts.InboundChannels)
	return buf, len(data), err
}

// teardown releases every resource of s and moves the controller to IDLE.
// Failures are recorded and never returned. waitLoop is false when called
// from the event loop itself.
func (c *Controller) teardown(ctx context.Context, s *live, reason string, cause error, waitLoop bool) {
	s.closing.Store(true)

	if err := s.capture.Stop(); err != nil {
		c.releaseFailed(s.id, ResourceMicrophone, err)
	}

	closeCtx, cancel := context.WithTimeout(ctx, c.opts.CloseTimeout)
	if err := s.conn.Close(closeCtx); err != nil {
		c.releaseFailed(s.id, ResourceTransport, err)
	}
	cancel()

	if waitLoop {
		select {
		case <-s.loopDone:
		case <-time.After(c.opts.CloseTimeout):
			c.releaseFailed(s.id, ResourceEventLoop, errors.New("inbound event stream did not end"))
		}
	}

	if n := s.scheduler.Interrupt(); n > 0 {
		c.log.Debug("stopped pending playback", "session_id", s.id, "fragments", n)
	}
	s.mixer.Reset()
	c.closeOutput(s.id, s.output)
	s.cancel(nil)

	duration := time.Since(s.startedAt)
	c.mu.Lock()
	c.lastErr = cause
	c.publish(s.id, events.EventSessionEnded, events.SessionEndedData{
		Duration: duration,
		Reason:   reason,
		Error:    cause,
	})
	c.sess = nil
	c.setState(s.id, StateIdle)
	c.mu.Unlock()
	close(s.done)

	c.log.Info("session ended", "session_id", s.id, "reason", reason, "duration", duration, "error", cause)
}

func (c *Controller) closeConn(id string, conn transport.Conn) {
	ctx, cancel := context.WithTimeout(context.Background(), c.opts.CloseTimeout)
	defer cancel()
	if err := conn.Close(ctx); err != nil {
		c.releaseFailed(id, ResourceTransport, err)
	}
}

func (c *Controller) closeOutput(id string, out device.OutputStream) {
	if err := out.Close(); err != nil {
		c.releaseFailed(id, ResourceSpeaker, err)
	}
}

func (c *Controller) releaseFailed(id, resource string, err error) {
	rerr := &ResourceReleaseError{Resource: resource, Err: err}
	logger.ReleaseFailed(id, resource, rerr)
	c.publish(id, events.EventResourceReleaseFailed, events.ResourceReleaseData{Resource: resource, Error: rerr})
}

// setState must be called with c.mu held.
func (c *Controller) setState(id string, to State) {
	from := c.state
	c.state = to
	logger.StateTransition(id, from.String(), to.String())
	c.publish(id, events.EventSessionStateChanged, events.StateChangedData{From: from.String(), To: to.String()})
	if c.opts.OnStateChange != nil {
		c.opts.OnStateChange(from, to)
	}
}

func (c *Controller) onAppend(speaker transcript.Speaker, delta string, newLine bool) {
	c.publish(c.SessionID(), events.EventTranscriptAppended, events.TranscriptAppendedData{
		Speaker: speaker.String(),
		Text:    delta,
		NewLine: newLine,
	})
	if c.opts.OnTranscript != nil {
		c.opts.OnTranscript(speaker, delta, newLine)
	}
}

func (c *Controller) publish(id string, t events.EventType, data events.EventData) {
	if c.opts.Bus != nil {
		c.opts.Bus.Publish(events.New(t, id, data))
	}
}

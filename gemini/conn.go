package gemini

import (
	"context"
	"encoding/json"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/time/rate"

	"github.com/AltairaLabs/livevoice/internal/wsconn"
	"github.com/AltairaLabs/livevoice/transcript"
	"github.com/AltairaLabs/livevoice/transport"
)

// Conn is an open Gemini Live session.
//
// Outbound frames go through a bounded queue drained by a writer goroutine,
// so SendAudio never blocks. A reader goroutine decodes server messages into
// transport events in arrival order.
type Conn struct {
	ws  *wsconn.Conn
	log *slog.Logger

	ctx    context.Context
	cancel context.CancelFunc

	out        chan transport.Frame
	events     chan transport.Event
	discard    chan struct{}
	stopWriter chan struct{}
	writerDone chan struct{}
	readerDone chan struct{}

	closing   atomic.Bool
	closeOnce sync.Once
	closeErr  error

	dropped atomic.Int64
	dropLog rate.Sometimes
}

func newConn(ws *wsconn.Conn, cfg *Config) *Conn {
	ctx, cancel := context.WithCancel(context.Background())
	c := &Conn{
		ws:         ws,
		log:        cfg.Logger,
		ctx:        ctx,
		cancel:     cancel,
		out:        make(chan transport.Frame, cfg.SendQueueSize),
		events:     make(chan transport.Event, cfg.EventBufferSize),
		discard:    make(chan struct{}),
		stopWriter: make(chan struct{}),
		writerDone: make(chan struct{}),
		readerDone: make(chan struct{}),
		dropLog:    rate.Sometimes{First: 1, Interval: 5 * time.Second},
	}
	go c.writeLoop()
	go c.readLoop()
	return c
}

// SendAudio queues a frame for the writer. It returns false, dropping the
// frame, when the queue is full or the session is closing.
func (c *Conn) SendAudio(f transport.Frame) bool {
	if c.closing.Load() {
		return false
	}
	select {
	case c.out <- f:
		return true
	default:
		n := c.dropped.Add(1)
		c.dropLog.Do(func() {
			c.log.Warn("outbound audio queue full, dropping frame", "dropped_total", n)
		})
		return false
	}
}

// Dropped returns the number of frames SendAudio has dropped.
func (c *Conn) Dropped() int64 {
	return c.dropped.Load()
}

// Events returns the inbound event stream.
func (c *Conn) Events() <-chan transport.Event {
	return c.events
}

// Close stops sending, performs the close handshake and waits for the
// background goroutines. Events still in flight are discarded.
func (c *Conn) Close(ctx context.Context) error {
	c.closeOnce.Do(func() {
		c.closing.Store(true)
		close(c.discard)
		close(c.stopWriter)
		<-c.writerDone

		c.closeErr = c.ws.Shutdown(ctx)
		c.cancel()
		<-c.readerDone
		c.log.Debug("live session closed", "error", c.closeErr)
	})
	return c.closeErr
}

func (c *Conn) writeLoop() {
	defer close(c.writerDone)
	for {
		select {
		case <-c.stopWriter:
			return
		case f := <-c.out:
			msg := clientRealtimeInput{RealtimeInput: realtimeInput{
				Audio: blob{Data: f.Data, MimeType: f.MIMEType},
			}}
			if err := c.ws.Send(msg); err != nil {
				// The reader observes the broken connection and reports it.
				c.log.Debug("failed to send audio frame", "error", err)
			}
		}
	}
}

func (c *Conn) readLoop() {
	defer close(c.readerDone)
	defer close(c.events)

	for {
		data, err := c.ws.Receive(c.ctx)
		if err != nil {
			c.finish(err)
			return
		}

		var msg serverMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			c.log.Warn("failed to parse server message", "error", err)
			continue
		}
		c.dispatch(&msg)
	}
}

func (c *Conn) finish(err error) {
	switch {
	case c.closing.Load():
		c.deliver(transport.Event{Kind: transport.EventClosed})
	case wsconn.IsNormalClose(err):
		c.log.Info("server closed live session")
		c.deliver(transport.Event{Kind: transport.EventClosed})
	default:
		c.log.Warn("live session receive failed", "error", err)
		c.deliver(transport.Event{Kind: transport.EventError, Err: closeError(err)})
	}
}

func (c *Conn) dispatch(msg *serverMessage) {
	if msg.GoAway != nil {
		c.log.Warn("server will end session soon", "time_left", msg.GoAway.TimeLeft)
	}

	sc := msg.ServerContent
	if sc == nil {
		return
	}

	if sc.Interrupted {
		c.deliver(transport.Event{Kind: transport.EventInterrupted})
	}
	if sc.InputTranscription != nil && sc.InputTranscription.Text != "" {
		c.deliver(transport.Event{
			Kind:    transport.EventTranscription,
			Speaker: transcript.User,
			Text:    sc.InputTranscription.Text,
		})
	}
	if sc.OutputTranscription != nil && sc.OutputTranscription.Text != "" {
		c.deliver(transport.Event{
			Kind:    transport.EventTranscription,
			Speaker: transcript.Remote,
			Text:    sc.OutputTranscription.Text,
		})
	}
	if sc.ModelTurn != nil {
		for _, p := range sc.ModelTurn.Parts {
			if p.InlineData == nil || !strings.HasPrefix(p.InlineData.MimeType, "audio/") {
				continue
			}
			c.deliver(transport.Event{
				Kind:     transport.EventAudio,
				Audio:    p.InlineData.Data,
				MIMEType: p.InlineData.MimeType,
			})
		}
	}
}

// deliver blocks until the consumer takes ev, or drops it once Close has begun.
func (c *Conn) deliver(ev transport.Event) {
	select {
	case c.events <- ev:
	case <-c.discard:
	}
}

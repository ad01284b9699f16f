package session

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/AltairaLabs/livevoice/device"
	"github.com/AltairaLabs/livevoice/transport"
)

// fakeConn is a transport.Conn driven by the test.
type fakeConn struct {
	mu       sync.Mutex
	frames   []transport.Frame
	events   chan transport.Event
	closed   bool
	closeErr error
	closes   atomic.Int32
}

func newFakeConn() *fakeConn {
	return &fakeConn{events: make(chan transport.Event, 64)}
}

func (f *fakeConn) SendAudio(fr transport.Frame) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return false
	}
	f.frames = append(f.frames, fr)
	return true
}

func (f *fakeConn) Events() <-chan transport.Event { return f.events }

func (f *fakeConn) Close(context.Context) error {
	f.closes.Add(1)
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.closed {
		f.closed = true
		close(f.events)
	}
	return f.closeErr
}

// push delivers an inbound event unless the connection is closed.
func (f *fakeConn) push(ev transport.Event) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.closed {
		f.events <- ev
	}
}

// end delivers a final event and closes the stream, as a remote close does.
func (f *fakeConn) end(ev transport.Event) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.closed {
		f.events <- ev
		f.closed = true
		close(f.events)
	}
}

func (f *fakeConn) sent() []transport.Frame {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]transport.Frame(nil), f.frames...)
}

func (f *fakeConn) isClosed() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closed
}

// fakeDialer hands out a new fakeConn per Dial.
type fakeDialer struct {
	mu    sync.Mutex
	conns []*fakeConn
	err   error
	// block, when set, holds Dial until it is closed or ctx ends.
	block chan struct{}
}

func (d *fakeDialer) Dial(ctx context.Context) (transport.Conn, error) {
	if d.block != nil {
		select {
		case <-d.block:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.err != nil {
		return nil, d.err
	}
	c := newFakeConn()
	d.conns = append(d.conns, c)
	return c, nil
}

func (d *fakeDialer) dials() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.conns)
}

func (d *fakeDialer) last() *fakeConn {
	d.mu.Lock()
	defer d.mu.Unlock()
	if len(d.conns) == 0 {
		return nil
	}
	return d.conns[len(d.conns)-1]
}

// fakeMic opens fakeInputStreams.
type fakeMic struct {
	mu      sync.Mutex
	streams []*fakeInputStream
	err     error

	// gate, when set, holds Open until it is closed. Open ignores ctx, like
	// a device driver that cannot be interrupted.
	gate chan struct{}
}

func (m *fakeMic) Open(_ context.Context, _ device.InputConfig) (device.InputStream, error) {
	if m.gate != nil {
		<-m.gate
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return nil, m.err
	}
	s := &fakeInputStream{blocks: make(chan []float32, 8)}
	m.streams = append(m.streams, s)
	return s, nil
}

func (m *fakeMic) last() *fakeInputStream {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.streams) == 0 {
		return nil
	}
	return m.streams[len(m.streams)-1]
}

func (m *fakeMic) opens() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.streams)
}

type fakeInputStream struct {
	mu     sync.Mutex
	blocks chan []float32
	closed bool
}

func (s *fakeInputStream) Blocks() <-chan []float32 { return s.blocks }

func (s *fakeInputStream) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.closed {
		s.closed = true
		close(s.blocks)
	}
	return nil
}

func (s *fakeInputStream) push(block []float32) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.closed {
		s.blocks <- block
	}
}

func (s *fakeInputStream) isClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

// fakeSpeaker records the renderer it was opened with.
type fakeSpeaker struct {
	mu       sync.Mutex
	renderer device.Renderer
	opens    int
	closes   int
	err      error
	closeErr error
}

func (s *fakeSpeaker) Open(_ context.Context, _ device.OutputConfig, r device.Renderer) (device.OutputStream, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return nil, s.err
	}
	s.opens++
	s.renderer = r
	return &fakeOutputStream{s: s}, nil
}

func (s *fakeSpeaker) counts() (opens, closes int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.opens, s.closes
}

type fakeOutputStream struct {
	s *fakeSpeaker
}

func (o *fakeOutputStream) Close() error {
	o.s.mu.Lock()
	defer o.s.mu.Unlock()
	o.s.closes++
	return o.s.closeErr
}

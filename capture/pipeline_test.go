package capture

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AltairaLabs/livevoice/device"
	"github.com/AltairaLabs/livevoice/events"
	"github.com/AltairaLabs/livevoice/pcm"
	"github.com/AltairaLabs/livevoice/transport"
)

type fakeStream struct {
	blocks chan []float32
	once   sync.Once
}

func (s *fakeStream) Blocks() <-chan []float32 { return s.blocks }

func (s *fakeStream) Close() error {
	s.once.Do(func() { close(s.blocks) })
	return nil
}

type fakeMic struct {
	stream *fakeStream
	cfg    device.InputConfig
	err    error
}

func (m *fakeMic) Open(_ context.Context, cfg device.InputConfig) (device.InputStream, error) {
	if m.err != nil {
		return nil, m.err
	}
	m.cfg = cfg
	m.stream = &fakeStream{blocks: make(chan []float32)}
	return m.stream, nil
}

type recordingSink struct {
	mu     sync.Mutex
	frames []transport.Frame
	accept bool
}

func (s *recordingSink) SendAudio(f transport.Frame) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.accept {
		return false
	}
	s.frames = append(s.frames, f)
	return true
}

func (s *recordingSink) snapshot() []transport.Frame {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]transport.Frame(nil), s.frames...)
}

func TestEncodeBlock(t *testing.T) {
	f := EncodeBlock(Block{Samples: []float32{0, 0.5}, SampleRate: 16000, Channels: 1})
	assert.Equal(t, "audio/pcm;rate=16000", f.MIMEType)

	raw, err := pcm.FromTransportText(f.Data)
	require.NoError(t, err)
	assert.Equal(t, []byte{0x00, 0x00, 0x00, 0x40}, raw)
}

func TestEncodeBlock_DownmixesStereo(t *testing.T) {
	f := EncodeBlock(Block{Samples: []float32{0.5, -0.5, 0.25, 0.25}, SampleRate: 16000, Channels: 2})
	raw, err := pcm.FromTransportText(f.Data)
	require.NoError(t, err)

	buf, err := pcm.Decode(raw, 16000, 1)
	require.NoError(t, err)
	assert.Equal(t, []float32{0, 0.25}, buf.Channels[0])
}

func TestPipeline_ForwardsBlocksInOrder(t *testing.T) {
	mic := &fakeMic{}
	sink := &recordingSink{accept: true}
	p := New(Options{Microphone: mic, Sink: sink})

	require.NoError(t, p.Start(context.Background()))
	assert.Equal(t, device.InputConfig{SampleRate: 16000, Channels: 1, FramesPerBlock: 4096}, mic.cfg)

	for i := range 3 {
		mic.stream.blocks <- []float32{float32(i) / 4}
	}
	require.NoError(t, p.Stop())

	frames := sink.snapshot()
	require.Len(t, frames, 3)
	for i, f := range frames {
		raw, err := pcm.FromTransportText(f.Data)
		require.NoError(t, err)
		buf, err := pcm.Decode(raw, 16000, 1)
		require.NoError(t, err)
		assert.InDelta(t, float32(i)/4, buf.Channels[0][0], 1.0/32768)
	}
	assert.Equal(t, int64(3), p.Sent())
}

func TestPipeline_DropsWhenSinkRefuses(t *testing.T) {
	mic := &fakeMic{}
	sink := &recordingSink{accept: false}
	bus := events.NewEventBus()

	var mu sync.Mutex
	var dropped int
	bus.Subscribe(events.EventCaptureBlockDropped, func(e *events.Event) {
		mu.Lock()
		dropped++
		mu.Unlock()
		assert.Equal(t, "s-1", e.SessionID)
	})

	p := New(Options{Microphone: mic, Sink: sink, Bus: bus, SessionID: "s-1"})
	require.NoError(t, p.Start(context.Background()))

	// Capture keeps running even though nothing is accepted.
	for range 5 {
		select {
		case mic.stream.blocks <- make([]float32, 4096):
		case <-time.After(time.Second):
			t.Fatal("capture stalled on a refusing sink")
		}
	}
	require.NoError(t, p.Stop())
	bus.Close()

	assert.Equal(t, int64(5), p.Dropped())
	assert.Zero(t, p.Sent())
	mu.Lock()
	assert.Equal(t, 5, dropped)
	mu.Unlock()
}

func TestPipeline_StartStopLifecycle(t *testing.T) {
	mic := &fakeMic{}
	p := New(Options{Microphone: mic, Sink: &recordingSink{accept: true}})

	assert.NoError(t, p.Stop(), "stop before start is a no-op")
	require.NoError(t, p.Start(context.Background()))
	assert.ErrorIs(t, p.Start(context.Background()), ErrAlreadyStarted)
	require.NoError(t, p.Stop())
	require.NoError(t, p.Stop())

	// The microphone can be reopened after a stop.
	require.NoError(t, p.Start(context.Background()))
	require.NoError(t, p.Stop())
}

func TestPipeline_OpenError(t *testing.T) {
	p := New(Options{Microphone: &fakeMic{err: device.ErrPermissionDenied}, Sink: &recordingSink{}})
	assert.ErrorIs(t, p.Start(context.Background()), device.ErrPermissionDenied)
	assert.NoError(t, p.Stop())
}

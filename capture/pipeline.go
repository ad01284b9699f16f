// Package capture streams microphone blocks to the live transport.
//
// The pipeline is reactive: it forwards each block as the input device's
// callback delivers it and never buffers unsent audio. A block the sink
// cannot take is dropped and counted.
package capture

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/time/rate"

	"github.com/AltairaLabs/livevoice/device"
	"github.com/AltairaLabs/livevoice/events"
	"github.com/AltairaLabs/livevoice/logger"
	"github.com/AltairaLabs/livevoice/pcm"
	"github.com/AltairaLabs/livevoice/transport"
)

// ErrAlreadyStarted is returned by Start on a running pipeline.
var ErrAlreadyStarted = errors.New("capture pipeline already started")

// Sink accepts encoded frames without blocking and reports whether the
// frame was taken.
type Sink interface {
	SendAudio(transport.Frame) bool
}

// Block is one fixed-length unit of raw microphone audio.
type Block struct {
	// Samples holds interleaved samples in [-1, 1].
	Samples    []float32
	SampleRate int
	Channels   int
}

// Frames returns the number of frames in the block.
func (b Block) Frames() int {
	if b.Channels <= 1 {
		return len(b.Samples)
	}
	return len(b.Samples) / b.Channels
}

// mono averages interleaved channels.
func (b Block) mono() []float32 {
	if b.Channels <= 1 {
		return b.Samples
	}
	out := make([]float32, b.Frames())
	inv := 1 / float32(b.Channels)
	for i := range out {
		var sum float32
		for c := 0; c < b.Channels; c++ {
			sum += b.Samples[i*b.Channels+c]
		}
		out[i] = sum * inv
	}
	return out
}

// EncodeBlock converts a block to an outbound transport frame: mono 16-bit
// PCM in transport text with an "audio/pcm;rate=N" MIME type.
func EncodeBlock(b Block) transport.Frame {
	return transport.Frame{
		Data:     pcm.ToTransportText(pcm.Encode(b.mono())),
		MIMEType: pcm.MIMEType(b.SampleRate),
	}
}

// Options configures a Pipeline.
type Options struct {
	Microphone device.Microphone
	Input      device.InputConfig
	Sink       Sink

	// Bus receives capture.block_sent and capture.block_dropped events. Optional.
	Bus       *events.EventBus
	SessionID string
}

// Pipeline reads blocks from an input stream and forwards them to a Sink.
type Pipeline struct {
	opts Options
	log  *slog.Logger

	mu     sync.Mutex
	stream device.InputStream
	done   chan struct{}

	sent    atomic.Int64
	dropped atomic.Int64
	dropLog rate.Sometimes
}

// New returns a stopped pipeline.
func New(opts Options) *Pipeline {
	opts.Input = opts.Input.WithDefaults()
	return &Pipeline{
		opts:    opts,
		log:     logger.Component("capture"),
		dropLog: rate.Sometimes{First: 1, Interval: 5 * time.Second},
	}
}

// Start acquires the microphone and begins forwarding blocks.
func (p *Pipeline) Start(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.stream != nil {
		return ErrAlreadyStarted
	}

	stream, err := p.opts.Microphone.Open(ctx, p.opts.Input)
	if err != nil {
		return err
	}
	p.stream = stream
	p.done = make(chan struct{})
	go p.run(stream, p.done)

	p.log.Debug("capture started",
		"sample_rate", p.opts.Input.SampleRate,
		"frames_per_block", p.opts.Input.FramesPerBlock)
	return nil
}

// Stop releases the microphone and returns once the forwarding goroutine has
// exited, so no block is sent after Stop returns. It returns the device's
// close error, if any. Stopping a stopped pipeline is a no-op.
func (p *Pipeline) Stop() error {
	p.mu.Lock()
	stream, done := p.stream, p.done
	p.stream, p.done = nil, nil
	p.mu.Unlock()

	if stream == nil {
		return nil
	}
	err := stream.Close()
	<-done

	p.log.Debug("capture stopped", "sent", p.sent.Load(), "dropped", p.dropped.Load())
	return err
}

// Sent returns the number of blocks the sink accepted.
func (p *Pipeline) Sent() int64 { return p.sent.Load() }

// Dropped returns the number of blocks the sink refused.
func (p *Pipeline) Dropped() int64 { return p.dropped.Load() }

func (p *Pipeline) run(stream device.InputStream, done chan struct{}) {
	defer close(done)
	for samples := range stream.Blocks() {
		p.forward(Block{
			Samples:    samples,
			SampleRate: p.opts.Input.SampleRate,
			Channels:   p.opts.Input.Channels,
		})
	}
}

func (p *Pipeline) forward(b Block) {
	frame := EncodeBlock(b)
	data := events.CaptureBlockData{Frames: b.Frames(), Bytes: len(frame.Data)}

	if p.opts.Sink.SendAudio(frame) {
		p.sent.Add(1)
		p.publish(events.EventCaptureBlockSent, data)
		return
	}

	n := p.dropped.Add(1)
	p.dropLog.Do(func() {
		p.log.Warn("transport not ready, dropping microphone block", "dropped_total", n)
	})
	p.publish(events.EventCaptureBlockDropped, data)
}

func (p *Pipeline) publish(t events.EventType, data events.CaptureBlockData) {
	if p.opts.Bus != nil {
		p.opts.Bus.Publish(events.New(t, p.opts.SessionID, data))
	}
}

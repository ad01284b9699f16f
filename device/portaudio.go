//go:build portaudio

package device

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gordonklaus/portaudio"
	"golang.org/x/time/rate"

	"github.com/AltairaLabs/livevoice/logger"
)

// blockBuffer is how many captured blocks may wait for the consumer.
const blockBuffer = 8

// NewMicrophone returns the default PortAudio input device.
func NewMicrophone() Microphone { return paMicrophone{} }

// NewSpeaker returns the default PortAudio output device.
func NewSpeaker() Speaker { return paSpeaker{} }

// mapOpenError classifies PortAudio failures. PortAudio reports an input the
// OS will not let us use as an unavailable or invalid device.
func mapOpenError(op string, err error) error {
	if errors.Is(err, portaudio.DeviceUnavailable) || errors.Is(err, portaudio.InvalidDevice) {
		return fmt.Errorf("%s: %w: %w", op, ErrPermissionDenied, err)
	}
	return fmt.Errorf("%s: %w", op, err)
}

type paMicrophone struct{}

func (paMicrophone) Open(ctx context.Context, cfg InputConfig) (InputStream, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	cfg = cfg.WithDefaults()

	if err := portaudio.Initialize(); err != nil {
		return nil, fmt.Errorf("failed to initialize PortAudio: %w", err)
	}

	s := &paInput{
		blocks:  make(chan []float32, blockBuffer),
		dropLog: rate.Sometimes{First: 1, Interval: 5 * time.Second},
	}
	stream, err := portaudio.OpenDefaultStream(cfg.Channels, 0, float64(cfg.SampleRate), cfg.FramesPerBlock, s.callback)
	if err != nil {
		portaudio.Terminate()
		return nil, mapOpenError("failed to open input stream", err)
	}
	if err := stream.Start(); err != nil {
		_ = stream.Close()
		portaudio.Terminate()
		return nil, mapOpenError("failed to start input stream", err)
	}
	s.stream = stream

	logger.Component("device").Debug("microphone opened",
		"sample_rate", cfg.SampleRate,
		"channels", cfg.Channels,
		"frames_per_block", cfg.FramesPerBlock)
	return s, nil
}

type paInput struct {
	stream *portaudio.Stream
	blocks chan []float32

	mu      sync.Mutex
	closed  bool
	dropped atomic.Uint64
	dropLog rate.Sometimes
	once    sync.Once
	err     error
}

// callback runs on the PortAudio thread. It never blocks: a block the
// consumer has no room for is dropped.
func (s *paInput) callback(in []float32) {
	block := make([]float32, len(in))
	copy(block, in)

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	select {
	case s.blocks <- block:
	default:
		n := s.dropped.Add(1)
		s.dropLog.Do(func() {
			logger.Component("device").Warn("microphone block dropped", "dropped_total", n)
		})
	}
}

func (s *paInput) Blocks() <-chan []float32 { return s.blocks }

func (s *paInput) Close() error {
	s.once.Do(func() {
		stopErr := s.stream.Stop()
		closeErr := s.stream.Close()
		portaudio.Terminate()

		s.mu.Lock()
		s.closed = true
		close(s.blocks)
		s.mu.Unlock()

		s.err = errors.Join(stopErr, closeErr)
	})
	return s.err
}

type paSpeaker struct{}

func (paSpeaker) Open(ctx context.Context, cfg OutputConfig, r Renderer) (OutputStream, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	cfg = cfg.WithDefaults()

	if err := portaudio.Initialize(); err != nil {
		return nil, fmt.Errorf("failed to initialize PortAudio: %w", err)
	}

	stream, err := portaudio.OpenDefaultStream(0, 1, float64(cfg.SampleRate), cfg.FramesPerBuffer, func(out []float32) {
		r.Render(out)
	})
	if err != nil {
		portaudio.Terminate()
		return nil, mapOpenError("failed to open output stream", err)
	}
	if err := stream.Start(); err != nil {
		_ = stream.Close()
		portaudio.Terminate()
		return nil, mapOpenError("failed to start output stream", err)
	}

	logger.Component("device").Debug("speaker opened", "sample_rate", cfg.SampleRate)
	return &paOutput{stream: stream}, nil
}

type paOutput struct {
	stream *portaudio.Stream
	once   sync.Once
	err    error
}

func (s *paOutput) Close() error {
	s.once.Do(func() {
		s.err = errors.Join(s.stream.Stop(), s.stream.Close())
		portaudio.Terminate()
	})
	return s.err
}

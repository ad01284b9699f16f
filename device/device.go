// Package device abstracts the audio hardware a live session acquires:
// a microphone delivering fixed-size blocks from its own callback cadence
// and a speaker that pulls rendered samples.
//
// Hardware access is provided by PortAudio when built with the "portaudio"
// tag; otherwise NewMicrophone and NewSpeaker return devices whose Open
// fails with ErrNoBackend.
package device

import (
	"context"
	"errors"
	"sync"
)

var (
	// ErrPermissionDenied indicates the operating system refused access to the device.
	ErrPermissionDenied = errors.New("audio device permission denied")

	// ErrMicrophoneBusy indicates another session already holds the microphone.
	ErrMicrophoneBusy = errors.New("microphone is already in use")

	// ErrNoBackend indicates the binary was built without an audio backend.
	ErrNoBackend = errors.New("no audio backend available (build with -tags portaudio)")
)

// Defaults for a live conversation.
const (
	DefaultInputSampleRate     = 16000
	DefaultInputFramesPerBlock = 4096
	DefaultOutputSampleRate    = 24000
	DefaultOutputFrames        = 960 // 40ms at 24kHz
)

// InputConfig describes a capture stream.
type InputConfig struct {
	SampleRate     int
	Channels       int
	FramesPerBlock int
}

// WithDefaults fills zero fields.
func (c InputConfig) WithDefaults() InputConfig {
	if c.SampleRate <= 0 {
		c.SampleRate = DefaultInputSampleRate
	}
	if c.Channels <= 0 {
		c.Channels = 1
	}
	if c.FramesPerBlock <= 0 {
		c.FramesPerBlock = DefaultInputFramesPerBlock
	}
	return c
}

// OutputConfig describes a playback stream.
type OutputConfig struct {
	SampleRate      int
	FramesPerBuffer int
}

// WithDefaults fills zero fields.
func (c OutputConfig) WithDefaults() OutputConfig {
	if c.SampleRate <= 0 {
		c.SampleRate = DefaultOutputSampleRate
	}
	if c.FramesPerBuffer <= 0 {
		c.FramesPerBuffer = DefaultOutputFrames
	}
	return c
}

// InputStream is an open microphone.
type InputStream interface {
	// Blocks delivers one interleaved block per hardware callback. Each
	// slice is owned by the receiver. The channel is closed by Close.
	Blocks() <-chan []float32
	// Close stops the hardware and returns once no further blocks will be delivered.
	Close() error
}

// Microphone opens capture streams.
type Microphone interface {
	Open(ctx context.Context, cfg InputConfig) (InputStream, error)
}

// Renderer fills out with the next mono samples to play.
// It is called from the device's real-time callback.
type Renderer interface {
	Render(out []float32)
}

// OutputStream is an open speaker.
type OutputStream interface {
	Close() error
}

// Speaker opens playback streams driven by a Renderer.
type Speaker interface {
	Open(ctx context.Context, cfg OutputConfig, r Renderer) (OutputStream, error)
}

// Exclusive wraps mic so that at most one stream is open at a time. A second
// Open fails with ErrMicrophoneBusy until the first stream is closed.
func Exclusive(mic Microphone) Microphone {
	return &exclusiveMic{mic: mic}
}

type exclusiveMic struct {
	mic  Microphone
	mu   sync.Mutex
	held bool
}

func (e *exclusiveMic) Open(ctx context.Context, cfg InputConfig) (InputStream, error) {
	e.mu.Lock()
	if e.held {
		e.mu.Unlock()
		return nil, ErrMicrophoneBusy
	}
	e.held = true
	e.mu.Unlock()

	s, err := e.mic.Open(ctx, cfg)
	if err != nil {
		e.release()
		return nil, err
	}
	return &exclusiveStream{InputStream: s, release: e.release}, nil
}

func (e *exclusiveMic) release() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.held = false
}

type exclusiveStream struct {
	InputStream
	once    sync.Once
	release func()
}

// Close closes the underlying stream and frees the microphone even if
// closing fails.
func (s *exclusiveStream) Close() error {
	var err error
	s.once.Do(func() {
		err = s.InputStream.Close()
		s.release()
	})
	return err
}

//go:build !portaudio

package device

import "context"

// NewMicrophone returns a microphone whose Open fails with ErrNoBackend.
func NewMicrophone() Microphone { return noMicrophone{} }

// NewSpeaker returns a speaker whose Open fails with ErrNoBackend.
func NewSpeaker() Speaker { return noSpeaker{} }

type noMicrophone struct{}

func (noMicrophone) Open(context.Context, InputConfig) (InputStream, error) {
	return nil, ErrNoBackend
}

type noSpeaker struct{}

func (noSpeaker) Open(context.Context, OutputConfig, Renderer) (OutputStream, error) {
	return nil, ErrNoBackend
}

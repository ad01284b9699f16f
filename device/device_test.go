package device

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeStream struct {
	blocks   chan []float32
	closeErr error
	closed   int
}

func (s *fakeStream) Blocks() <-chan []float32 { return s.blocks }

func (s *fakeStream) Close() error {
	s.closed++
	return s.closeErr
}

type fakeMic struct {
	openErr  error
	closeErr error
	opened   []*fakeStream
}

func (m *fakeMic) Open(context.Context, InputConfig) (InputStream, error) {
	if m.openErr != nil {
		return nil, m.openErr
	}
	s := &fakeStream{blocks: make(chan []float32), closeErr: m.closeErr}
	m.opened = append(m.opened, s)
	return s, nil
}

func TestExclusive_SecondOpenIsBusy(t *testing.T) {
	mic := Exclusive(&fakeMic{})

	first, err := mic.Open(context.Background(), InputConfig{})
	require.NoError(t, err)

	_, err = mic.Open(context.Background(), InputConfig{})
	assert.ErrorIs(t, err, ErrMicrophoneBusy)

	require.NoError(t, first.Close())
	second, err := mic.Open(context.Background(), InputConfig{})
	require.NoError(t, err, "closing the first stream releases the microphone")
	require.NoError(t, second.Close())
}

func TestExclusive_FailedOpenReleases(t *testing.T) {
	inner := &fakeMic{openErr: ErrPermissionDenied}
	mic := Exclusive(inner)

	_, err := mic.Open(context.Background(), InputConfig{})
	assert.ErrorIs(t, err, ErrPermissionDenied)

	inner.openErr = nil
	s, err := mic.Open(context.Background(), InputConfig{})
	require.NoError(t, err)
	require.NoError(t, s.Close())
}

func TestExclusive_CloseErrorStillReleases(t *testing.T) {
	inner := &fakeMic{closeErr: errors.New("device vanished")}
	mic := Exclusive(inner)

	s, err := mic.Open(context.Background(), InputConfig{})
	require.NoError(t, err)
	assert.Error(t, s.Close())
	assert.NoError(t, s.Close(), "second close is a no-op")
	assert.Equal(t, 1, inner.opened[0].closed)

	_, err = mic.Open(context.Background(), InputConfig{})
	assert.NoError(t, err)
}

func TestConfigDefaults(t *testing.T) {
	in := InputConfig{}.WithDefaults()
	assert.Equal(t, InputConfig{SampleRate: 16000, Channels: 1, FramesPerBlock: 4096}, in)

	out := OutputConfig{SampleRate: 48000}.WithDefaults()
	assert.Equal(t, 48000, out.SampleRate)
	assert.Equal(t, DefaultOutputFrames, out.FramesPerBuffer)
}

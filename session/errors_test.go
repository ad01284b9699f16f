package session

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/AltairaLabs/livevoice/device"
	"github.com/AltairaLabs/livevoice/transport"
)

func TestDescribe(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want string
	}{
		{"nil", nil, ""},
		{"permission", fmt.Errorf("open microphone: %w", device.ErrPermissionDenied), "denied"},
		{"busy", fmt.Errorf("open microphone: %w", device.ErrMicrophoneBusy), "in use"},
		{"no backend", fmt.Errorf("open speaker: %w", device.ErrNoBackend), "portaudio"},
		{"unauthorized", &TransportError{Op: "dial", Err: fmt.Errorf("auth: %w", transport.ErrUnauthorized)}, "API key"},
		{"stopped", ErrStopped, "stopped"},
		{"transport", &TransportError{Op: "dial", Err: errors.New("dial tcp: refused")}, "network"},
		{"other", errors.New("boom"), "boom"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Describe(tt.err)
			if tt.want == "" {
				assert.Empty(t, got)
				return
			}
			assert.Contains(t, got, tt.want)
		})
	}
}

func TestTransportError(t *testing.T) {
	inner := errors.New("reset")
	err := &TransportError{Op: "receive", Err: inner}
	assert.Equal(t, "transport receive failed: reset", err.Error())
	assert.ErrorIs(t, err, inner)
}

func TestResourceReleaseError(t *testing.T) {
	inner := errors.New("busy")
	err := &ResourceReleaseError{Resource: ResourceSpeaker, Err: inner}
	assert.Equal(t, "release speaker: busy", err.Error())
	assert.ErrorIs(t, err, inner)
}

func TestState_String(t *testing.T) {
	assert.Equal(t, "IDLE", StateIdle.String())
	assert.Equal(t, "CONNECTING", StateConnecting.String())
	assert.Equal(t, "ACTIVE", StateActive.String())
	assert.Equal(t, "CLOSING", StateClosing.String())
	assert.Equal(t, "UNKNOWN", State(42).String())
}

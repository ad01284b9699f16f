package pcm

import (
	"encoding/binary"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncode_KnownValues(t *testing.T) {
	tests := []struct {
		name   string
		sample float32
		want   int16
	}{
		{"zero", 0, 0},
		{"half", 0.5, 16384},
		{"negative half", -0.5, -16384},
		{"full negative", -1, -32768},
		{"full positive clips", 1, 32767},
		{"above range clips", 1.5, 32767},
		{"below range clips", -2, -32768},
		{"one step", 1.0 / 32768, 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out := Encode([]float32{tt.sample})
			require.Len(t, out, 2)
			got := int16(binary.LittleEndian.Uint16(out)) //nolint:gosec // PCM16
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestEncode_LittleEndianLayout(t *testing.T) {
	out := Encode([]float32{1.0 / 32768, -1.0 / 32768})
	assert.Equal(t, []byte{0x01, 0x00, 0xff, 0xff}, out)
}

func TestEncode_Empty(t *testing.T) {
	assert.Empty(t, Encode(nil))
}

func TestDecode_RoundTripWithinOneStep(t *testing.T) {
	samples := []float32{0, 0.1, -0.1, 0.25, -0.75, 0.999, -1}
	buf, err := Decode(Encode(samples), SampleRate16kHz, 1)
	require.NoError(t, err)
	require.Equal(t, 1, buf.NumChannels())
	require.Equal(t, len(samples), buf.Frames())

	for i, s := range samples {
		assert.InDelta(t, s, buf.Channels[0][i], 1.0/32768, "sample %d", i)
	}
}

func TestDecode_Stereo(t *testing.T) {
	// L0 R0 L1 R1
	data := Encode([]float32{0.5, -0.5, 0.25, -0.25})
	buf, err := Decode(data, SampleRate24kHz, 2)
	require.NoError(t, err)

	assert.Equal(t, 2, buf.Frames())
	assert.Equal(t, []float32{0.5, 0.25}, buf.Channels[0])
	assert.Equal(t, []float32{-0.5, -0.25}, buf.Channels[1])
}

func TestDecode_Duration(t *testing.T) {
	buf, err := Decode(make([]byte, 24000*2), SampleRate24kHz, 1)
	require.NoError(t, err)
	assert.Equal(t, time.Second, buf.Duration())
}

func TestDecode_Malformed(t *testing.T) {
	_, err := Decode([]byte{1, 2, 3}, SampleRate24kHz, 1)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrMalformedAudio))

	var malformed *MalformedAudioError
	require.ErrorAs(t, err, &malformed)
	assert.Equal(t, 3, malformed.Length)

	_, err = Decode([]byte{1, 2, 3, 4, 5, 6}, SampleRate24kHz, 2)
	assert.ErrorIs(t, err, ErrMalformedAudio)
}

func TestDecode_InvalidArguments(t *testing.T) {
	_, err := Decode([]byte{0, 0}, SampleRate24kHz, 0)
	assert.Error(t, err)

	_, err = Decode([]byte{0, 0}, 0, 1)
	assert.Error(t, err)
}

func TestTransportText_RoundTrip(t *testing.T) {
	all := make([]byte, 256)
	for i := range all {
		all[i] = byte(i)
	}

	for _, data := range [][]byte{{}, {0x7f}, {0x00, 0xff}, all} {
		text := ToTransportText(data)
		got, err := FromTransportText(text)
		require.NoError(t, err)
		assert.Equal(t, data, got)
	}
}

func TestFromTransportText_Invalid(t *testing.T) {
	_, err := FromTransportText("not base64!!")
	assert.Error(t, err)
}

func TestParseRate(t *testing.T) {
	tests := []struct {
		mime   string
		want   int
		wantOK bool
	}{
		{"audio/pcm;rate=24000", 24000, true},
		{"audio/pcm; rate=16000", 16000, true},
		{"audio/pcm", 0, false},
		{"audio/pcm;rate=abc", 0, false},
		{"", 0, false},
	}

	for _, tt := range tests {
		t.Run(tt.mime, func(t *testing.T) {
			got, ok := ParseRate(tt.mime)
			assert.Equal(t, tt.wantOK, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestMIMEType(t *testing.T) {
	assert.Equal(t, "audio/pcm;rate=16000", MIMEType(SampleRate16kHz))
}

package pcm

import (
	"encoding/base64"
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"mime"
	"strconv"
	"time"
)

const (
	// BytesPerSample is the width of one 16-bit PCM sample.
	BytesPerSample = 2

	// scale maps between int16 and the normalized float range.
	scale = 32768.0
)

// Standard sample rates for the live conversation.
const (
	SampleRate16kHz = 16000 // microphone input
	SampleRate24kHz = 24000 // synthesized speech output
)

// ErrMalformedAudio is matched by every *MalformedAudioError via errors.Is.
var ErrMalformedAudio = errors.New("malformed audio")

// MalformedAudioError reports PCM data that cannot be split into whole
// 16-bit frames for the requested channel count.
type MalformedAudioError struct {
	Length   int
	Channels int
}

func (e *MalformedAudioError) Error() string {
	return fmt.Sprintf("malformed audio: %d bytes is not a multiple of %d (16-bit x %d channels)",
		e.Length, BytesPerSample*e.Channels, e.Channels)
}

// Is reports whether target is ErrMalformedAudio.
func (e *MalformedAudioError) Is(target error) bool {
	return target == ErrMalformedAudio
}

// Buffer is decoded multichannel audio. Channels[c][i] is frame i of channel c.
type Buffer struct {
	SampleRate int
	Channels   [][]float32
}

// NumChannels returns the number of channels in the buffer.
func (b *Buffer) NumChannels() int {
	return len(b.Channels)
}

// Frames returns the number of frames (samples per channel).
func (b *Buffer) Frames() int {
	if len(b.Channels) == 0 {
		return 0
	}
	return len(b.Channels[0])
}

// Duration returns the playback length of the buffer at its sample rate.
func (b *Buffer) Duration() time.Duration {
	return FramesDuration(b.Frames(), b.SampleRate)
}

// FramesDuration converts a frame count at the given rate to a duration.
func FramesDuration(frames, sampleRate int) time.Duration {
	if sampleRate <= 0 {
		return 0
	}
	return time.Duration(frames) * time.Second / time.Duration(sampleRate)
}

// Encode converts normalized samples to 16-bit little-endian PCM.
// Each sample becomes round(sample*32768) clipped to [-32768, 32767].
func Encode(samples []float32) []byte {
	out := make([]byte, len(samples)*BytesPerSample)
	for i, s := range samples {
		binary.LittleEndian.PutUint16(out[i*BytesPerSample:], uint16(quantize(s))) //nolint:gosec // two's complement PCM16
	}
	return out
}

func quantize(s float32) int16 {
	v := math.Round(float64(s) * scale)
	switch {
	case math.IsNaN(v):
		return 0
	case v > math.MaxInt16:
		return math.MaxInt16
	case v < math.MinInt16:
		return math.MinInt16
	}
	return int16(v)
}

// Decode interprets data as interleaved little-endian 16-bit samples and
// de-interleaves it into channels sequences, each sample divided by 32768.
func Decode(data []byte, sampleRate, channels int) (*Buffer, error) {
	if channels <= 0 {
		return nil, fmt.Errorf("invalid channel count %d", channels)
	}
	if sampleRate <= 0 {
		return nil, fmt.Errorf("invalid sample rate %d", sampleRate)
	}
	frameBytes := BytesPerSample * channels
	if len(data)%frameBytes != 0 {
		return nil, &MalformedAudioError{Length: len(data), Channels: channels}
	}

	frames := len(data) / frameBytes
	buf := &Buffer{
		SampleRate: sampleRate,
		Channels:   make([][]float32, channels),
	}
	for c := range buf.Channels {
		buf.Channels[c] = make([]float32, frames)
	}
	for i := 0; i < frames; i++ {
		for c := 0; c < channels; c++ {
			off := (i*channels + c) * BytesPerSample
			sample := int16(binary.LittleEndian.Uint16(data[off:])) //nolint:gosec // two's complement PCM16
			buf.Channels[c][i] = float32(float64(sample) / scale)
		}
	}
	return buf, nil
}

// ToTransportText encodes raw bytes as standard base64.
func ToTransportText(data []byte) string {
	return base64.StdEncoding.EncodeToString(data)
}

// FromTransportText reverses ToTransportText.
func FromTransportText(text string) ([]byte, error) {
	data, err := base64.StdEncoding.DecodeString(text)
	if err != nil {
		return nil, fmt.Errorf("decode transport text: %w", err)
	}
	return data, nil
}

// MIMEType returns the PCM MIME type for the given sample rate,
// e.g. "audio/pcm;rate=16000".
func MIMEType(sampleRate int) string {
	return "audio/pcm;rate=" + strconv.Itoa(sampleRate)
}

// ParseRate extracts the rate parameter from a PCM MIME type.
// It returns false when the type carries no usable rate.
func ParseRate(mimeType string) (int, bool) {
	if mimeType == "" {
		return 0, false
	}
	_, params, err := mime.ParseMediaType(mimeType)
	if err != nil {
		return 0, false
	}
	rate, err := strconv.Atoi(params["rate"])
	if err != nil || rate <= 0 {
		return 0, false
	}
	return rate, true
}

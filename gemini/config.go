// Package gemini implements the live transport over the Gemini Live
// BidiGenerateContent WebSocket API.
package gemini

import (
	"log/slog"
	"strings"
	"time"

	"github.com/AltairaLabs/livevoice/logger"
)

// Defaults for a Gemini Live voice session.
const (
	DefaultEndpoint          = "wss://generativelanguage.googleapis.com/ws/google.ai.generativelanguage.v1beta.GenerativeService.BidiGenerateContent"
	DefaultModel             = "gemini-2.5-flash-native-audio-preview-09-2025"
	DefaultVoice             = "Zephyr"
	DefaultSystemInstruction = "You are Lumina, a friendly voice assistant. Keep responses concise and engaging for real-time talk."
	DefaultSetupTimeout      = 10 * time.Second
	DefaultSendQueueSize     = 8
	DefaultEventBufferSize   = 64

	apiKeyHeader = "x-goog-api-key"
)

// Config configures a Dialer.
type Config struct {
	Endpoint string
	APIKey   string

	Model             string
	Voice             string
	SystemInstruction string

	// Transcription flags are pointers so that an explicit false survives
	// defaulting. Both default to enabled.
	InputTranscription  *bool
	OutputTranscription *bool

	// SetupTimeout bounds the wait for setupComplete.
	SetupTimeout time.Duration

	// HeartbeatInterval enables WebSocket pings when positive.
	HeartbeatInterval time.Duration

	// MaxRetries is the number of connection attempts. Zero uses the
	// connection default.
	MaxRetries int

	// SendQueueSize bounds outbound frames waiting for the writer.
	SendQueueSize int

	// EventBufferSize is the capacity of the inbound event channel.
	EventBufferSize int

	Logger *slog.Logger
}

func (c *Config) defaults() {
	if c.Endpoint == "" {
		c.Endpoint = DefaultEndpoint
	}
	if c.Model == "" {
		c.Model = DefaultModel
	}
	if c.Voice == "" {
		c.Voice = DefaultVoice
	}
	if c.SystemInstruction == "" {
		c.SystemInstruction = DefaultSystemInstruction
	}
	if c.InputTranscription == nil {
		c.InputTranscription = boolPtr(true)
	}
	if c.OutputTranscription == nil {
		c.OutputTranscription = boolPtr(true)
	}
	if c.SetupTimeout <= 0 {
		c.SetupTimeout = DefaultSetupTimeout
	}
	if c.SendQueueSize <= 0 {
		c.SendQueueSize = DefaultSendQueueSize
	}
	if c.EventBufferSize <= 0 {
		c.EventBufferSize = DefaultEventBufferSize
	}
	if c.Logger == nil {
		c.Logger = logger.Component("gemini")
	}
}

func boolPtr(b bool) *bool { return &b }

// modelName returns the model in the "models/..." form the API expects.
func (c *Config) modelName() string {
	if strings.HasPrefix(c.Model, "models/") {
		return c.Model
	}
	return "models/" + c.Model
}

// setupMessage builds the session configuration payload.
func (c *Config) setupMessage() clientSetup {
	msg := clientSetup{Setup: setupPayload{
		Model: c.modelName(),
		GenerationConfig: generationConfig{
			ResponseModalities: []string{"AUDIO"},
			SpeechConfig: &speechConfig{VoiceConfig: voiceConfig{
				PrebuiltVoiceConfig: prebuiltVoiceConfig{VoiceName: c.Voice},
			}},
		},
		SystemInstruction: &content{Parts: []textPart{{Text: c.SystemInstruction}}},
	}}
	if *c.InputTranscription {
		msg.Setup.InputAudioTranscription = &struct{}{}
	}
	if *c.OutputTranscription {
		msg.Setup.OutputAudioTranscription = &struct{}{}
	}
	return msg
}

package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AltairaLabs/livevoice/device"
	"github.com/AltairaLabs/livevoice/gemini"
	"github.com/AltairaLabs/livevoice/pcm"
)

func TestDefault_IsValid(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())
	assert.Equal(t, gemini.DefaultModel, cfg.Live.Model)
	assert.Equal(t, "Lumina", cfg.Live.AssistantName)
	assert.Equal(t, device.DefaultInputSampleRate, cfg.Audio.InputSampleRate)
	assert.Equal(t, 4096, cfg.Audio.FramesPerBlock)
	assert.Equal(t, 24000, cfg.Audio.OutputSampleRate)
	assert.False(t, cfg.Metrics.Enabled)
}

func TestParse_OverridesDefaults(t *testing.T) {
	data := []byte(`
live:
  voice: Puck
  assistant_name: Nova
  setup_timeout: 3s
  output_transcription: false
audio:
  frames_per_block: 2048
logging:
  level: debug
  format: json
  components:
    gemini: warn
metrics:
  enabled: true
  addr: 127.0.0.1:9100
`)
	cfg, err := Parse(data)
	require.NoError(t, err)

	assert.Equal(t, "Puck", cfg.Live.Voice)
	assert.Equal(t, "Nova", cfg.Live.AssistantName)
	assert.Equal(t, 3*time.Second, cfg.Live.SetupTimeout)
	assert.Equal(t, gemini.DefaultModel, cfg.Live.Model)
	require.NotNil(t, cfg.Live.OutputTranscription)
	assert.False(t, *cfg.Live.OutputTranscription)
	assert.True(t, *cfg.Live.InputTranscription)
	assert.Equal(t, 2048, cfg.Audio.FramesPerBlock)
	assert.Equal(t, 16000, cfg.Audio.InputSampleRate)

	spec := cfg.LoggingSpec()
	assert.Equal(t, "debug", spec.DefaultLevel)
	assert.Equal(t, "json", spec.Format)
	assert.Equal(t, "warn", spec.Components["gemini"])
	assert.Equal(t, "127.0.0.1:9100", cfg.Metrics.Addr)
}

func TestParse_Empty(t *testing.T) {
	cfg, err := Parse(nil)
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
}

func TestParse_UnknownField(t *testing.T) {
	_, err := Parse([]byte("live:\n  modle: typo\n"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "modle")
}

func TestValidate_CollectsErrors(t *testing.T) {
	cfg := Default()
	cfg.Live.APIKeyEnv = ""
	cfg.Live.Endpoint = "https://example.com"
	cfg.Audio.InputSampleRate = 0
	cfg.Audio.InboundChannels = 3
	cfg.Audio.InboundSampleRate = 0
	cfg.Logging.Format = "xml"
	cfg.Telemetry.Enabled = true

	err := cfg.Validate()
	require.Error(t, err)
	msg := err.Error()
	assert.Contains(t, msg, "7 errors")
	assert.Contains(t, msg, "api_key_env")
	assert.Contains(t, msg, "ws://")
	assert.Contains(t, msg, "input_sample_rate")
	assert.Contains(t, msg, "inbound_channels")
	assert.Contains(t, msg, "inbound_sample_rate")
	assert.Contains(t, msg, "logging.format")
	assert.Contains(t, msg, "telemetry.endpoint")
}

func TestLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "livevoice.yaml")
	require.NoError(t, os.WriteFile(path, []byte("live:\n  model: custom-model\n"), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "custom-model", cfg.Live.Model)

	_, err = Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestLoad_ExampleFile(t *testing.T) {
	cfg, err := Load(filepath.Join("..", "livevoice.example.yaml"))
	require.NoError(t, err)
	assert.Equal(t, DefaultAPIKeyEnv, cfg.Live.APIKeyEnv)
	assert.Equal(t, pcm.SampleRate24kHz, cfg.Audio.InboundSampleRate)
}

func TestAPIKey(t *testing.T) {
	cfg := Default()
	cfg.Live.APIKeyEnv = "LIVEVOICE_TEST_KEY"

	t.Setenv("LIVEVOICE_TEST_KEY", "")
	_, err := cfg.APIKey()
	assert.ErrorIs(t, err, ErrMissingAPIKey)

	t.Setenv("LIVEVOICE_TEST_KEY", " secret ")
	key, err := cfg.APIKey()
	require.NoError(t, err)
	assert.Equal(t, "secret", key)
}

func TestConversions(t *testing.T) {
	cfg := Default()
	cfg.Live.HeartbeatInterval = 15 * time.Second

	g := cfg.Gemini("k")
	assert.Equal(t, "k", g.APIKey)
	assert.Equal(t, 15*time.Second, g.HeartbeatInterval)
	assert.Equal(t, gemini.DefaultVoice, g.Voice)

	in := cfg.Input()
	assert.Equal(t, device.InputConfig{SampleRate: 16000, Channels: 1, FramesPerBlock: 4096}, in)

	out := cfg.Output()
	assert.Equal(t, 24000, out.SampleRate)
	assert.Equal(t, device.DefaultOutputFrames, out.FramesPerBuffer)
}

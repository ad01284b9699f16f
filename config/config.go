// Package config loads the YAML configuration for a live voice session.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/AltairaLabs/livevoice/device"
	"github.com/AltairaLabs/livevoice/gemini"
	"github.com/AltairaLabs/livevoice/logger"
	"github.com/AltairaLabs/livevoice/pcm"
	"github.com/AltairaLabs/livevoice/transcript"
)

// Defaults not owned by another package.
const (
	DefaultAPIKeyEnv    = "GEMINI_API_KEY"
	DefaultCloseTimeout = 2 * time.Second
	DefaultMetricsAddr  = ":9090"
	DefaultServiceName  = "livevoice"
)

// ErrMissingAPIKey is returned by APIKey when the configured variable is unset.
var ErrMissingAPIKey = errors.New("api key not set")

// Config is the root of the configuration file.
type Config struct {
	Live      LiveConfig      `yaml:"live"`
	Audio     AudioConfig     `yaml:"audio"`
	Logging   LoggingConfig   `yaml:"logging"`
	Metrics   MetricsConfig   `yaml:"metrics"`
	Telemetry TelemetryConfig `yaml:"telemetry"`
}

// LiveConfig configures the remote conversation endpoint.
type LiveConfig struct {
	Endpoint string `yaml:"endpoint,omitempty"`
	// APIKeyEnv names the environment variable holding the API key.
	APIKeyEnv         string `yaml:"api_key_env,omitempty"`
	Model             string `yaml:"model,omitempty"`
	Voice             string `yaml:"voice,omitempty"`
	SystemInstruction string `yaml:"system_instruction,omitempty"`
	// AssistantName labels remote transcript lines.
	AssistantName       string        `yaml:"assistant_name,omitempty"`
	InputTranscription  *bool         `yaml:"input_transcription,omitempty"`
	OutputTranscription *bool         `yaml:"output_transcription,omitempty"`
	SetupTimeout        time.Duration `yaml:"setup_timeout,omitempty"`
	HeartbeatInterval   time.Duration `yaml:"heartbeat_interval,omitempty"`
	// CloseTimeout bounds the wait for the peer to acknowledge a close.
	CloseTimeout  time.Duration `yaml:"close_timeout,omitempty"`
	MaxRetries    int           `yaml:"max_retries,omitempty"`
	SendQueueSize int           `yaml:"send_queue_size,omitempty"`
}

// AudioConfig configures the capture and playback devices.
type AudioConfig struct {
	InputSampleRate  int `yaml:"input_sample_rate,omitempty"`
	InputChannels    int `yaml:"input_channels,omitempty"`
	FramesPerBlock   int `yaml:"frames_per_block,omitempty"`
	OutputSampleRate int `yaml:"output_sample_rate,omitempty"`
	FramesPerBuffer  int `yaml:"frames_per_buffer,omitempty"`

	// InboundSampleRate applies to received audio whose MIME type has no rate.
	InboundSampleRate int `yaml:"inbound_sample_rate,omitempty"`

	// InboundChannels is the channel count assumed for received audio.
	InboundChannels int `yaml:"inbound_channels,omitempty"`
}

// LoggingConfig mirrors logger.LoggingConfigSpec.
type LoggingConfig struct {
	Level        string            `yaml:"level,omitempty"`
	Format       string            `yaml:"format,omitempty"`
	CommonFields map[string]string `yaml:"common_fields,omitempty"`
	Components   map[string]string `yaml:"components,omitempty"`
}

// MetricsConfig configures the Prometheus exporter.
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled"`
	Addr    string `yaml:"addr,omitempty"`
}

// TelemetryConfig configures OTLP trace export.
type TelemetryConfig struct {
	Enabled     bool   `yaml:"enabled"`
	Endpoint    string `yaml:"endpoint,omitempty"`
	ServiceName string `yaml:"service_name,omitempty"`
}

// Default returns a configuration with every field populated.
func Default() *Config {
	enabled := true
	return &Config{
		Live: LiveConfig{
			Endpoint:            gemini.DefaultEndpoint,
			APIKeyEnv:           DefaultAPIKeyEnv,
			Model:               gemini.DefaultModel,
			Voice:               gemini.DefaultVoice,
			SystemInstruction:   gemini.DefaultSystemInstruction,
			AssistantName:       transcript.DefaultRemoteLabel,
			InputTranscription:  &enabled,
			OutputTranscription: &enabled,
			SetupTimeout:        gemini.DefaultSetupTimeout,
			CloseTimeout:        DefaultCloseTimeout,
			SendQueueSize:       gemini.DefaultSendQueueSize,
		},
		Audio: AudioConfig{
			InputSampleRate:   device.DefaultInputSampleRate,
			InputChannels:     1,
			FramesPerBlock:    device.DefaultInputFramesPerBlock,
			OutputSampleRate:  device.DefaultOutputSampleRate,
			FramesPerBuffer:   device.DefaultOutputFrames,
			InboundSampleRate: pcm.SampleRate24kHz,
			InboundChannels:   1,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: logger.FormatText,
		},
		Metrics: MetricsConfig{
			Addr: DefaultMetricsAddr,
		},
		Telemetry: TelemetryConfig{
			ServiceName: DefaultServiceName,
		},
	}
}

// Load reads and validates the configuration file at path. Fields absent
// from the file keep their defaults.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	cfg, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return cfg, nil
}

// Parse decodes and validates YAML configuration data. Unknown keys are rejected.
func Parse(data []byte) (*Config, error) {
	cfg := Default()
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks every section and reports all problems at once.
func (c *Config) Validate() error {
	var errs []error
	errs = append(errs, c.Live.validate()...)
	errs = append(errs, c.Audio.validate()...)
	errs = append(errs, c.Logging.validate()...)
	if c.Metrics.Enabled && c.Metrics.Addr == "" {
		errs = append(errs, errors.New("metrics.addr is required when metrics are enabled"))
	}
	if c.Telemetry.Enabled && c.Telemetry.Endpoint == "" {
		errs = append(errs, errors.New("telemetry.endpoint is required when telemetry is enabled"))
	}
	if len(errs) > 0 {
		return fmt.Errorf("configuration validation failed with %d errors: %w", len(errs), errors.Join(errs...))
	}
	return nil
}

func (l *LiveConfig) validate() []error {
	var errs []error
	if l.APIKeyEnv == "" {
		errs = append(errs, errors.New("live.api_key_env must not be empty"))
	}
	if l.Endpoint != "" && !strings.HasPrefix(l.Endpoint, "ws://") && !strings.HasPrefix(l.Endpoint, "wss://") {
		errs = append(errs, fmt.Errorf("live.endpoint %q must be a ws:// or wss:// URL", l.Endpoint))
	}
	if l.SetupTimeout < 0 || l.HeartbeatInterval < 0 || l.CloseTimeout < 0 {
		errs = append(errs, errors.New("live timeouts must not be negative"))
	}
	if l.MaxRetries < 0 {
		errs = append(errs, errors.New("live.max_retries must not be negative"))
	}
	if l.SendQueueSize < 0 {
		errs = append(errs, errors.New("live.send_queue_size must not be negative"))
	}
	return errs
}

func (a *AudioConfig) validate() []error {
	var errs []error
	if a.InputSampleRate <= 0 {
		errs = append(errs, fmt.Errorf("audio.input_sample_rate must be positive, got %d", a.InputSampleRate))
	}
	if a.OutputSampleRate <= 0 {
		errs = append(errs, fmt.Errorf("audio.output_sample_rate must be positive, got %d", a.OutputSampleRate))
	}
	if a.FramesPerBlock <= 0 {
		errs = append(errs, fmt.Errorf("audio.frames_per_block must be positive, got %d", a.FramesPerBlock))
	}
	if a.FramesPerBuffer <= 0 {
		errs = append(errs, fmt.Errorf("audio.frames_per_buffer must be positive, got %d", a.FramesPerBuffer))
	}
	if a.InputChannels < 1 || a.InputChannels > 2 {
		errs = append(errs, fmt.Errorf("audio.input_channels must be 1 or 2, got %d", a.InputChannels))
	}
	if a.InboundSampleRate <= 0 {
		errs = append(errs, fmt.Errorf("audio.inbound_sample_rate must be positive, got %d", a.InboundSampleRate))
	}
	if a.InboundChannels < 1 || a.InboundChannels > 2 {
		errs = append(errs, fmt.Errorf("audio.inbound_channels must be 1 or 2, got %d", a.InboundChannels))
	}
	return errs
}

func (l *LoggingConfig) validate() []error {
	var errs []error
	switch strings.ToLower(l.Level) {
	case "", "debug", "info", "warn", "warning", "error":
	default:
		errs = append(errs, fmt.Errorf("logging.level %q is not one of debug, info, warn, error", l.Level))
	}
	if l.Format != "" && l.Format != logger.FormatJSON && l.Format != logger.FormatText {
		errs = append(errs, fmt.Errorf("logging.format %q must be %q or %q", l.Format, logger.FormatJSON, logger.FormatText))
	}
	return errs
}

// APIKey reads the API key from the configured environment variable.
func (c *Config) APIKey() (string, error) {
	key := strings.TrimSpace(os.Getenv(c.Live.APIKeyEnv))
	if key == "" {
		return "", fmt.Errorf("%w: set %s", ErrMissingAPIKey, c.Live.APIKeyEnv)
	}
	return key, nil
}

// Gemini returns the dialer configuration for the given API key.
func (c *Config) Gemini(apiKey string) *gemini.Config {
	return &gemini.Config{
		Endpoint:            c.Live.Endpoint,
		APIKey:              apiKey,
		Model:               c.Live.Model,
		Voice:               c.Live.Voice,
		SystemInstruction:   c.Live.SystemInstruction,
		InputTranscription:  c.Live.InputTranscription,
		OutputTranscription: c.Live.OutputTranscription,
		SetupTimeout:        c.Live.SetupTimeout,
		HeartbeatInterval:   c.Live.HeartbeatInterval,
		MaxRetries:          c.Live.MaxRetries,
		SendQueueSize:       c.Live.SendQueueSize,
	}
}

// Input returns the microphone configuration.
func (c *Config) Input() device.InputConfig {
	return device.InputConfig{
		SampleRate:     c.Audio.InputSampleRate,
		Channels:       c.Audio.InputChannels,
		FramesPerBlock: c.Audio.FramesPerBlock,
	}
}

// Output returns the speaker configuration.
func (c *Config) Output() device.OutputConfig {
	return device.OutputConfig{
		SampleRate:      c.Audio.OutputSampleRate,
		FramesPerBuffer: c.Audio.FramesPerBuffer,
	}
}

// LoggingSpec returns the logging section in the form logger.Configure accepts.
func (c *Config) LoggingSpec() *logger.LoggingConfigSpec {
	return &logger.LoggingConfigSpec{
		DefaultLevel: c.Logging.Level,
		Format:       c.Logging.Format,
		CommonFields: c.Logging.CommonFields,
		Components:   c.Logging.Components,
	}
}

package logger

import (
	"log/slog"
)

// LoggingConfigSpec defines the logging configuration for the Configure function.
// This mirrors config.LoggingConfig to avoid import cycles.
type LoggingConfigSpec struct {
	DefaultLevel string
	Format       string // "json" or "text"
	CommonFields map[string]string
	// Components maps a component name (as passed to Component) to its level.
	Components map[string]string
}

// Log format constants
const (
	FormatJSON = "json"
	FormatText = "text"
)

// Configure applies a LoggingConfigSpec to the global logger.
func Configure(cfg *LoggingConfigSpec) error {
	if cfg == nil {
		return nil
	}

	defaultLevel := slog.LevelInfo
	if cfg.DefaultLevel != "" {
		defaultLevel = ParseLevel(cfg.DefaultLevel)
	}

	levels := make(map[string]slog.Level, len(cfg.Components))
	for name, lvl := range cfg.Components {
		levels[name] = ParseLevel(lvl)
	}

	commonFields := make([]slog.Attr, 0, len(cfg.CommonFields))
	for k, v := range cfg.CommonFields {
		commonFields = append(commonFields, slog.String(k, v))
	}

	// The base handler must pass everything the most verbose component wants.
	minLevel := defaultLevel
	for _, lvl := range levels {
		if lvl < minLevel {
			minLevel = lvl
		}
	}

	outputMu.Lock()
	w := logOutput
	outputMu.Unlock()

	opts := &slog.HandlerOptions{Level: minLevel}
	var base slog.Handler
	if cfg.Format == FormatJSON {
		base = slog.NewJSONHandler(w, opts)
	} else {
		base = slog.NewTextHandler(w, opts)
	}
	if len(commonFields) > 0 {
		base = base.WithAttrs(commonFields)
	}

	DefaultLogger = slog.New(NewComponentHandler(base, defaultLevel, levels))
	slog.SetDefault(DefaultLogger)
	return nil
}

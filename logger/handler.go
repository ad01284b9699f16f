package logger

import (
	"context"
	"log/slog"
)

// ComponentHandler is a slog.Handler with per-component level filtering.
// The component is taken from a "component" attribute bound with Logger.With,
// which is how Component builds its loggers.
type ComponentHandler struct {
	inner        slog.Handler
	defaultLevel slog.Level
	levels       map[string]slog.Level
	component    string
}

// NewComponentHandler wraps inner, applying levels[component] to records from
// loggers bound to that component and defaultLevel to everything else.
func NewComponentHandler(inner slog.Handler, defaultLevel slog.Level, levels map[string]slog.Level) *ComponentHandler {
	return &ComponentHandler{
		inner:        inner,
		defaultLevel: defaultLevel,
		levels:       levels,
	}
}

func (h *ComponentHandler) level() slog.Level {
	if lvl, ok := h.levels[h.component]; ok && h.component != "" {
		return lvl
	}
	return h.defaultLevel
}

// Enabled reports whether the handler handles records at the given level.
func (h *ComponentHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return level >= h.level() && h.inner.Enabled(ctx, level)
}

// Handle delegates to the inner handler.
//
//nolint:gocritic // slog.Record is passed by value per slog.Handler interface contract
func (h *ComponentHandler) Handle(ctx context.Context, r slog.Record) error {
	return h.inner.Handle(ctx, r)
}

// WithAttrs returns a new handler with the given attributes added, picking up
// the component name when present.
func (h *ComponentHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	component := h.component
	for _, a := range attrs {
		if a.Key == "component" {
			component = a.Value.String()
		}
	}
	return &ComponentHandler{
		inner:        h.inner.WithAttrs(attrs),
		defaultLevel: h.defaultLevel,
		levels:       h.levels,
		component:    component,
	}
}

// WithGroup returns a new handler with the given group name.
func (h *ComponentHandler) WithGroup(name string) slog.Handler {
	return &ComponentHandler{
		inner:        h.inner.WithGroup(name),
		defaultLevel: h.defaultLevel,
		levels:       h.levels,
		component:    h.component,
	}
}

// compile-time check that ComponentHandler implements slog.Handler
var _ slog.Handler = (*ComponentHandler)(nil)

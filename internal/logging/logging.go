// Package logging wires structured logging through the store and CLI
// without a global logger: every component receives its logger at
// construction time and scopes it with slog.With("component", name).
package logging

import (
	"context"
	"log/slog"
	"maps"
	"sync/atomic"
)

// discardHandler drops every record. It backs Discard.
type discardHandler struct{}

func (discardHandler) Enabled(context.Context, slog.Level) bool  { return false }
func (discardHandler) Handle(context.Context, slog.Record) error { return nil }
func (d discardHandler) WithAttrs([]slog.Attr) slog.Handler      { return d }
func (d discardHandler) WithGroup(string) slog.Handler           { return d }

// Discard returns a logger that throws away everything written to it.
func Discard() *slog.Logger {
	return slog.New(discardHandler{})
}

// Default returns logger if non-nil, otherwise a discard logger. Components
// that accept an optional *slog.Logger construction parameter call this
// once and keep the result.
func Default(logger *slog.Logger) *slog.Logger {
	if logger != nil {
		return logger
	}
	return Discard()
}

// ComponentFilterHandler wraps a base handler and gates each record by the
// minimum level configured for its "component" attribute (store, index,
// chunk), falling back to defaultLevel for components with no
// override. This lets `wikistore import --log-level index=debug` turn on
// verbose logging for one layer without the rest of the pipeline going
// noisy too.
type ComponentFilterHandler struct {
	next         slog.Handler
	defaultLevel slog.Level

	// preAttrs holds attributes bound via WithAttrs (e.g. logger.With
	// ("component", "store")) before any group context; Handle checks
	// these for "component" since the record itself won't carry it.
	preAttrs []slog.Attr

	// levels is swapped copy-on-write so Handle can read it lock-free.
	levels *atomic.Pointer[map[string]slog.Level]
}

// NewComponentFilterHandler wraps next, gating records below defaultLevel
// unless their component has been raised via SetLevel.
func NewComponentFilterHandler(next slog.Handler, defaultLevel slog.Level) *ComponentFilterHandler {
	levels := &atomic.Pointer[map[string]slog.Level]{}
	empty := make(map[string]slog.Level)
	levels.Store(&empty)
	return &ComponentFilterHandler{next: next, defaultLevel: defaultLevel, levels: levels}
}

// Enabled always defers to Handle, since the component attribute (which
// the level decision depends on) isn't available until then.
func (h *ComponentFilterHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return true
}

// Handle drops r if its component's minimum level exceeds r.Level.
func (h *ComponentFilterHandler) Handle(ctx context.Context, r slog.Record) error {
	levels := *h.levels.Load()
	minLevel := h.defaultLevel
	if component := h.findComponent(r); component != "" {
		if lvl, ok := levels[component]; ok {
			minLevel = lvl
		}
	}
	if r.Level < minLevel {
		return nil
	}
	if !h.next.Enabled(ctx, r.Level) {
		return nil
	}
	return h.next.Handle(ctx, r)
}

// findComponent extracts the "component" attribute, checking preAttrs
// before the record's own attributes.
func (h *ComponentFilterHandler) findComponent(r slog.Record) string {
	for _, attr := range h.preAttrs {
		if attr.Key == "component" {
			if s, ok := attr.Value.Resolve().Any().(string); ok {
				return s
			}
		}
	}
	var component string
	r.Attrs(func(a slog.Attr) bool {
		if a.Key == "component" {
			if s, ok := a.Value.Resolve().Any().(string); ok {
				component = s
				return false
			}
		}
		return true
	})
	return component
}

// WithAttrs returns a derived handler carrying attrs, tracking any
// "component" attribute for later filtering.
func (h *ComponentFilterHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	if len(attrs) == 0 {
		return h
	}
	newPreAttrs := make([]slog.Attr, len(h.preAttrs), len(h.preAttrs)+len(attrs))
	copy(newPreAttrs, h.preAttrs)
	newPreAttrs = append(newPreAttrs, attrs...)
	return &ComponentFilterHandler{
		next:         h.next.WithAttrs(attrs),
		defaultLevel: h.defaultLevel,
		preAttrs:     newPreAttrs,
		levels:       h.levels, // shared, so SetLevel affects every derived logger
	}
}

// WithGroup returns a derived handler scoped to name, satisfying
// slog.Handler. wikistore never opens a log group; the derived handler
// keeps applying the same component level filtering.
func (h *ComponentFilterHandler) WithGroup(name string) slog.Handler {
	if name == "" {
		return h
	}
	return &ComponentFilterHandler{
		next:         h.next.WithGroup(name),
		defaultLevel: h.defaultLevel,
		preAttrs:     h.preAttrs,
		levels:       h.levels,
	}
}

// SetLevel overrides the minimum log level for one component.
func (h *ComponentFilterHandler) SetLevel(component string, level slog.Level) {
	old := *h.levels.Load()
	next := make(map[string]slog.Level, len(old)+1)
	maps.Copy(next, old)
	next[component] = level
	h.levels.Store(&next)
}

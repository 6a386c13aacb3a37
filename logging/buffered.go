package logging

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
)

// BufferedHandler is a slog.Handler that keeps formatted records in memory.
// Tests install it with SetLogger to assert on the warnings an operation
// produced:
//
//	h := logging.NewBufferedHandler(slog.LevelWarn)
//	logging.SetLogger(slog.New(h))
//	defer logging.SetLogger(nil)
//	// ... load a damaged file ...
//	if !h.Contains("falling back to object scan") { ... }
type BufferedHandler struct {
	level  slog.Leveler
	state  *bufferState
	attrs  []string
	groups []string
}

type bufferState struct {
	mu    sync.Mutex
	lines []string
	count map[slog.Level]int
}

// NewBufferedHandler returns a handler recording records at or above level.
// A nil level records everything.
func NewBufferedHandler(level slog.Leveler) *BufferedHandler {
	return &BufferedHandler{
		level: level,
		state: &bufferState{count: make(map[slog.Level]int)},
	}
}

// Enabled implements slog.Handler.
func (h *BufferedHandler) Enabled(_ context.Context, level slog.Level) bool {
	if h.level == nil {
		return true
	}
	return level >= h.level.Level()
}

// Handle implements slog.Handler. Each record becomes one line of the form
// "LEVEL message key=value ...".
func (h *BufferedHandler) Handle(_ context.Context, r slog.Record) error {
	var sb strings.Builder
	sb.WriteString(r.Level.String())
	sb.WriteByte(' ')
	sb.WriteString(r.Message)
	for _, a := range h.attrs {
		sb.WriteByte(' ')
		sb.WriteString(a)
	}
	r.Attrs(func(a slog.Attr) bool {
		sb.WriteByte(' ')
		sb.WriteString(h.formatAttr(a))
		return true
	})

	h.state.mu.Lock()
	defer h.state.mu.Unlock()
	h.state.lines = append(h.state.lines, sb.String())
	h.state.count[r.Level]++
	return nil
}

func (h *BufferedHandler) formatAttr(a slog.Attr) string {
	key := a.Key
	if len(h.groups) > 0 {
		key = strings.Join(h.groups, ".") + "." + key
	}
	return fmt.Sprintf("%s=%v", key, a.Value.Any())
}

// WithAttrs implements slog.Handler. The derived handler shares the buffer.
func (h *BufferedHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	next := *h
	next.attrs = append([]string(nil), h.attrs...)
	for _, a := range attrs {
		next.attrs = append(next.attrs, h.formatAttr(a))
	}
	return &next
}

// WithGroup implements slog.Handler.
func (h *BufferedHandler) WithGroup(name string) slog.Handler {
	if name == "" {
		return h
	}
	next := *h
	next.groups = append(append([]string(nil), h.groups...), name)
	return &next
}

// Lines returns a copy of the recorded lines in order.
func (h *BufferedHandler) Lines() []string {
	h.state.mu.Lock()
	defer h.state.mu.Unlock()
	return append([]string(nil), h.state.lines...)
}

// String returns all recorded lines joined by newlines.
func (h *BufferedHandler) String() string {
	lines := h.Lines()
	if len(lines) == 0 {
		return ""
	}
	return strings.Join(lines, "\n") + "\n"
}

// Contains reports whether any recorded line contains s.
func (h *BufferedHandler) Contains(s string) bool {
	for _, line := range h.Lines() {
		if strings.Contains(line, s) {
			return true
		}
	}
	return false
}

// Count returns how many records were logged at exactly level.
func (h *BufferedHandler) Count(level slog.Level) int {
	h.state.mu.Lock()
	defer h.state.mu.Unlock()
	return h.state.count[level]
}

// Len returns the number of recorded lines.
func (h *BufferedHandler) Len() int {
	h.state.mu.Lock()
	defer h.state.mu.Unlock()
	return len(h.state.lines)
}

// Reset drops everything recorded so far.
func (h *BufferedHandler) Reset() {
	h.state.mu.Lock()
	defer h.state.mu.Unlock()
	h.state.lines = nil
	h.state.count = make(map[slog.Level]int)
}

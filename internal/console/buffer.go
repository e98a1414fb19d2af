package console

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/temlaunch/temlaunch/internal/launcher"
)

// DefaultBufferSize is the number of entries a Buffer keeps.
const DefaultBufferSize = 500

// Entry is one console line.
type Entry struct {
	Time    time.Time `json:"time"`
	Level   string    `json:"level"`
	Message string    `json:"message"`
}

// Buffer is a bounded in-memory log shown in the launcher console. Older
// entries are dropped once it is full.
type Buffer struct {
	mu      sync.Mutex
	entries []Entry
	start   int
	size    int
	now     func() time.Time
}

func NewBuffer(size int) *Buffer {
	if size <= 0 {
		size = DefaultBufferSize
	}
	return &Buffer{size: size, now: time.Now}
}

// Log appends msg at info level. It satisfies gridini.Observer.
func (b *Buffer) Log(msg string) {
	b.add(slog.LevelInfo.String(), msg)
}

// LauncherEvent records game start and exit.
func (b *Buffer) LauncherEvent(ev launcher.Event) {
	if ev.Name != launcher.EventGameLaunched {
		return
	}
	if ev.Running {
		b.Log("Game launched")
	} else {
		b.Log("Game stopped")
	}
}

func (b *Buffer) add(level, msg string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	e := Entry{Time: b.now(), Level: level, Message: msg}
	if len(b.entries) < b.size {
		b.entries = append(b.entries, e)
		return
	}
	b.entries[b.start] = e
	b.start = (b.start + 1) % b.size
}

// Entries returns the buffered entries, oldest first.
func (b *Buffer) Entries() []Entry {
	b.mu.Lock()
	defer b.mu.Unlock()

	out := make([]Entry, 0, len(b.entries))
	out = append(out, b.entries[b.start:]...)
	out = append(out, b.entries[:b.start]...)
	return out
}

// Clear drops all entries.
func (b *Buffer) Clear() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.entries = nil
	b.start = 0
}

// Handler returns a slog.Handler that writes records at or above level into b.
func (b *Buffer) Handler(level slog.Leveler) slog.Handler {
	if level == nil {
		level = slog.LevelInfo
	}
	return &bufferHandler{buf: b, level: level}
}

type bufferHandler struct {
	buf    *Buffer
	level  slog.Leveler
	attrs  []slog.Attr
	prefix string
}

func (h *bufferHandler) Enabled(_ context.Context, l slog.Level) bool {
	return l >= h.level.Level()
}

func (h *bufferHandler) Handle(_ context.Context, r slog.Record) error {
	var sb strings.Builder
	sb.WriteString(r.Message)
	for _, a := range h.attrs {
		writeAttr(&sb, "", a)
	}
	r.Attrs(func(a slog.Attr) bool {
		writeAttr(&sb, h.prefix, a)
		return true
	})
	h.buf.add(r.Level.String(), sb.String())
	return nil
}

func (h *bufferHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	cp := *h
	cp.attrs = append([]slog.Attr(nil), h.attrs...)
	for _, a := range attrs {
		a.Key = h.prefix + a.Key
		cp.attrs = append(cp.attrs, a)
	}
	return &cp
}

func (h *bufferHandler) WithGroup(name string) slog.Handler {
	if name == "" {
		return h
	}
	cp := *h
	cp.prefix = h.prefix + name + "."
	return &cp
}

func writeAttr(sb *strings.Builder, prefix string, a slog.Attr) {
	a.Value = a.Value.Resolve()
	if a.Equal(slog.Attr{}) {
		return
	}
	if a.Value.Kind() == slog.KindGroup {
		for _, g := range a.Value.Group() {
			writeAttr(sb, prefix+a.Key+".", g)
		}
		return
	}
	fmt.Fprintf(sb, " %s%s=%v", prefix, a.Key, a.Value.Any())
}

// Tee returns a handler that sends every record to all handlers.
func Tee(handlers ...slog.Handler) slog.Handler {
	return teeHandler(handlers)
}

type teeHandler []slog.Handler

func (t teeHandler) Enabled(ctx context.Context, l slog.Level) bool {
	for _, h := range t {
		if h.Enabled(ctx, l) {
			return true
		}
	}
	return false
}

func (t teeHandler) Handle(ctx context.Context, r slog.Record) error {
	var firstErr error
	for _, h := range t {
		if !h.Enabled(ctx, r.Level) {
			continue
		}
		if err := h.Handle(ctx, r.Clone()); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

func (t teeHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	out := make(teeHandler, len(t))
	for i, h := range t {
		out[i] = h.WithAttrs(attrs)
	}
	return out
}

func (t teeHandler) WithGroup(name string) slog.Handler {
	out := make(teeHandler, len(t))
	for i, h := range t {
		out[i] = h.WithGroup(name)
	}
	return out
}

package logging

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
)

// forwarders is the client set shared by a handler and every handler
// derived from it through WithAttrs/WithGroup.
type forwarders struct {
	mu      sync.RWMutex
	clients []*SyslogClient
}

func (f *forwarders) snapshot() []*SyslogClient {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.clients
}

// SyslogHandler is an slog.Handler that writes to a base handler and also
// forwards each record to remote syslog servers.
type SyslogHandler struct {
	base   slog.Handler
	fwd    *forwarders
	attrs  []slog.Attr
	groups []string
}

// NewSyslogHandler wraps base with syslog forwarding. It starts with no
// clients.
func NewSyslogHandler(base slog.Handler) *SyslogHandler {
	return &SyslogHandler{base: base, fwd: &forwarders{}}
}

// SetClients replaces the client set and closes the old clients.
func (h *SyslogHandler) SetClients(clients []*SyslogClient) {
	h.fwd.mu.Lock()
	old := h.fwd.clients
	h.fwd.clients = clients
	h.fwd.mu.Unlock()

	for _, c := range old {
		c.Close()
	}
}

// Close closes all clients.
func (h *SyslogHandler) Close() {
	h.SetClients(nil)
}

// Enabled implements slog.Handler.
func (h *SyslogHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return h.base.Enabled(ctx, level)
}

// Handle implements slog.Handler. Send failures are dropped; the base
// handler's error is returned.
func (h *SyslogHandler) Handle(ctx context.Context, r slog.Record) error {
	err := h.base.Handle(ctx, r)

	clients := h.fwd.snapshot()
	if len(clients) == 0 {
		return err
	}
	severity := levelToSeverity(r.Level)
	msg := formatRecord(r, h.attrs, h.groups)
	for _, c := range clients {
		if c.ShouldSend(severity) {
			c.Send(severity, msg)
		}
	}
	return err
}

// WithAttrs implements slog.Handler.
func (h *SyslogHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	prefixed := make([]slog.Attr, 0, len(attrs))
	for _, a := range attrs {
		prefixed = append(prefixed, slog.Attr{Key: groupKey(h.groups, a.Key), Value: a.Value})
	}
	return &SyslogHandler{
		base:   h.base.WithAttrs(attrs),
		fwd:    h.fwd,
		attrs:  append(append([]slog.Attr{}, h.attrs...), prefixed...),
		groups: h.groups,
	}
}

// WithGroup implements slog.Handler.
func (h *SyslogHandler) WithGroup(name string) slog.Handler {
	if name == "" {
		return h
	}
	return &SyslogHandler{
		base:   h.base.WithGroup(name),
		fwd:    h.fwd,
		attrs:  h.attrs,
		groups: append(append([]string{}, h.groups...), name),
	}
}

func levelToSeverity(level slog.Level) int {
	switch {
	case level >= slog.LevelError:
		return SyslogError
	case level >= slog.LevelWarn:
		return SyslogWarning
	case level >= slog.LevelInfo:
		return SyslogInfo
	default:
		return SyslogDebug
	}
}

func groupKey(groups []string, key string) string {
	if len(groups) == 0 {
		return key
	}
	return strings.Join(groups, ".") + "." + key
}

// formatRecord renders a record as "msg k=v k=v".
func formatRecord(r slog.Record, pre []slog.Attr, groups []string) string {
	var b strings.Builder
	b.WriteString(r.Message)
	for _, a := range pre {
		fmt.Fprintf(&b, " %s=%s", a.Key, a.Value.String())
	}
	r.Attrs(func(a slog.Attr) bool {
		fmt.Fprintf(&b, " %s=%s", groupKey(groups, a.Key), a.Value.String())
		return true
	})
	return b.String()
}

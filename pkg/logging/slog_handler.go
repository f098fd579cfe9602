package logging

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
)

// SyslogHandler is an slog.Handler that forwards records to a remote
// syslog server in addition to a wrapped base handler.
type SyslogHandler struct {
	base   slog.Handler
	client *SyslogClient
	// attrs carry keys already qualified by the groups open when they
	// were added.
	attrs  []slog.Attr
	groups []string
}

// NewSyslogHandler wraps base with forwarding to client.
func NewSyslogHandler(base slog.Handler, client *SyslogClient) *SyslogHandler {
	return &SyslogHandler{base: base, client: client}
}

// Enabled implements slog.Handler.
func (h *SyslogHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return h.base.Enabled(ctx, level)
}

// Handle implements slog.Handler. Syslog delivery is best effort; only the
// base handler's error is returned.
func (h *SyslogHandler) Handle(ctx context.Context, r slog.Record) error {
	err := h.base.Handle(ctx, r)

	severity := slogLevelToSyslog(r.Level)
	if h.client.ShouldSend(severity) {
		h.client.Send(severity, formatRecord(r, h.attrs, h.groups))
	}
	return err
}

// WithAttrs implements slog.Handler.
func (h *SyslogHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &SyslogHandler{
		base:   h.base.WithAttrs(attrs),
		client: h.client,
		attrs:  append(append([]slog.Attr{}, h.attrs...), qualify(attrs, h.groups)...),
		groups: h.groups,
	}
}

// WithGroup implements slog.Handler.
func (h *SyslogHandler) WithGroup(name string) slog.Handler {
	return &SyslogHandler{
		base:   h.base.WithGroup(name),
		client: h.client,
		attrs:  h.attrs,
		groups: append(append([]string{}, h.groups...), name),
	}
}

func slogLevelToSyslog(level slog.Level) int {
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

// formatRecord renders a record as "msg k=v k=v". Record attributes are
// qualified by every open group.
func formatRecord(r slog.Record, preAttrs []slog.Attr, groups []string) string {
	var b strings.Builder
	b.WriteString(r.Message)

	for _, a := range preAttrs {
		fmt.Fprintf(&b, " %s=%s", a.Key, a.Value.String())
	}

	prefix := groupPrefix(groups)
	r.Attrs(func(a slog.Attr) bool {
		fmt.Fprintf(&b, " %s%s=%s", prefix, a.Key, a.Value.String())
		return true
	})

	return b.String()
}

func groupPrefix(groups []string) string {
	if len(groups) == 0 {
		return ""
	}
	return strings.Join(groups, ".") + "."
}

func qualify(attrs []slog.Attr, groups []string) []slog.Attr {
	prefix := groupPrefix(groups)
	if prefix == "" {
		return attrs
	}
	out := make([]slog.Attr, len(attrs))
	for i, a := range attrs {
		out[i] = slog.Attr{Key: prefix + a.Key, Value: a.Value}
	}
	return out
}

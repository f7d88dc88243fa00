package log

import (
	"context"
	"log/slog"
)

// SlogAdapter renders protocol events as slog records, one record per
// event, with the payload nested in a group named after its kind.
type SlogAdapter struct {
	logger *slog.Logger
	level  slog.Level
}

// NewSlogAdapter logs events to logger at debug level.
func NewSlogAdapter(logger *slog.Logger) *SlogAdapter {
	return &SlogAdapter{logger: logger, level: slog.LevelDebug}
}

// WithLevel returns a copy of the adapter that logs at level.
func (a *SlogAdapter) WithLevel(level slog.Level) *SlogAdapter {
	return &SlogAdapter{logger: a.logger, level: level}
}

func (a *SlogAdapter) Log(e Event) {
	ctx := context.Background()
	if !a.logger.Enabled(ctx, a.level) {
		return
	}

	attrs := make([]slog.Attr, 0, 6)
	attrs = append(attrs,
		slog.String("conn", e.ConnectionID),
		slog.String("role", e.LocalRole.String()),
		slog.String("dir", e.Direction.String()),
		slog.String("layer", e.Layer.String()),
	)
	if e.RemoteAddr != "" {
		attrs = append(attrs, slog.String("remote", e.RemoteAddr))
	}
	if p, ok := payloadAttr(e); ok {
		attrs = append(attrs, p)
	}
	a.logger.LogAttrs(ctx, a.level, "protocol "+e.Category.String(), attrs...)
}

func payloadAttr(e Event) (slog.Attr, bool) {
	switch {
	case e.Frame != nil:
		return slog.Group("frame",
			slog.Int("size", e.Frame.Size),
			slog.Bool("truncated", e.Frame.Truncated),
		), true

	case e.Message != nil:
		m := e.Message
		args := []any{
			slog.Uint64("id", m.ID),
			slog.String("type", m.Type.String()),
		}
		if m.Kind != nil {
			args = append(args, slog.String("kind", m.Kind.String()))
		}
		if m.Success != nil {
			args = append(args, slog.Bool("success", *m.Success))
		}
		if m.ErrorKind != nil {
			args = append(args, slog.String("error", m.ErrorKind.String()))
		}
		if m.TimeTaken != nil {
			args = append(args, slog.Duration("took", *m.TimeTaken))
		}
		return slog.Group("message", args...), true

	case e.StateChange != nil:
		s := e.StateChange
		args := []any{
			slog.String("entity", s.Entity.String()),
			slog.String("from", s.OldState),
			slog.String("to", s.NewState),
		}
		if s.Reason != "" {
			args = append(args, slog.String("reason", s.Reason))
		}
		return slog.Group("state", args...), true

	case e.Error != nil:
		args := []any{
			slog.String("layer", e.Error.Layer.String()),
			slog.String("message", e.Error.Message),
		}
		if e.Error.Context != "" {
			args = append(args, slog.String("context", e.Error.Context))
		}
		if e.Error.Code != nil {
			args = append(args, slog.Int("code", *e.Error.Code))
		}
		return slog.Group("err", args...), true
	}
	return slog.Attr{}, false
}

var _ Logger = (*SlogAdapter)(nil)

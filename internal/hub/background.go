package hub

import (
	"context"
	"ctchen222/Tic-Tac-Toe-Solo/internal/session"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel/attribute"
)

// sweepIdleSessions drops sessions nobody has touched for longer than the TTL.
func (h *Hub) sweepIdleSessions(ctx context.Context, now time.Time) {
	if h.sessionTTL <= 0 {
		return
	}

	ctx, span := tracer.Start(ctx, "hub.sweepIdleSessions")
	defer span.End()

	var idle []*session.Session
	h.mu.RLock()
	for _, s := range h.sessions {
		if now.Sub(s.LastActive()) > h.sessionTTL {
			idle = append(idle, s)
		}
	}
	h.mu.RUnlock()

	span.SetAttributes(attribute.Int("session.idle", len(idle)))
	for _, s := range idle {
		h.removeSession(ctx, s, "idle")
	}
	if len(idle) > 0 {
		slog.InfoContext(ctx, "Swept idle sessions", "count", len(idle))
	}
}

package hub

import (
	"context"
	"ctchen222/Tic-Tac-Toe-Solo/internal/session"
	"errors"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// ErrHubStopped is returned when the hub is no longer running.
var ErrHubStopped = errors.New("hub stopped")

// RegistrationRequest represents a request to open a session.
type RegistrationRequest struct {
	Conn  session.Connection // nil for polling clients
	Ctx   context.Context
	reply chan *session.Session
}

// Register opens a new session for conn and waits for the hub to accept it.
func (h *Hub) Register(ctx context.Context, conn session.Connection) (*session.Session, error) {
	ctx, span := tracer.Start(ctx, "hub.Register", trace.WithAttributes(
		attribute.Bool("session.websocket", conn != nil),
	))
	defer span.End()

	req := &RegistrationRequest{Conn: conn, Ctx: ctx, reply: make(chan *session.Session, 1)}

	select {
	case h.register <- req:
	case <-h.done:
		span.SetStatus(codes.Error, "Hub stopped")
		return nil, ErrHubStopped
	case <-ctx.Done():
		span.SetStatus(codes.Error, "Registration cancelled")
		return nil, ctx.Err()
	}

	s := <-req.reply
	span.SetAttributes(attribute.String("session.id", s.ID))
	s.Announce(ctx)
	return s, nil
}

// Unregister removes s from the hub and closes it.
func (h *Hub) Unregister(s *session.Session) {
	select {
	case h.unregister <- s:
	case <-h.done:
		_ = s.Close()
	}
}

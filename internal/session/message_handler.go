package session

import (
	"context"
	"ctchen222/Tic-Tac-Toe-Solo/internal/validator"
	"ctchen222/Tic-Tac-Toe-Solo/pkg/proto"
	"encoding/json"
	"log/slog"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const reasonMissingPosition = "move requires a position"

// HandleMessage handles a message from the client. It acts as a dispatcher.
func (s *Session) HandleMessage(ctx context.Context, rawMessage []byte) {
	ctx, span := tracer.Start(ctx, "session.HandleMessage", trace.WithAttributes(
		attribute.String("session.id", s.ID),
	))
	defer span.End()

	var message proto.ClientToServerMessage
	if err := json.Unmarshal(rawMessage, &message); err != nil {
		slog.WarnContext(ctx, "error unmarshalling message", "session.id", s.ID, "error", err)
		span.RecordError(err)
		span.SetStatus(codes.Error, "Error unmarshalling message")
		s.reject(ctx, "malformed message")
		return
	}

	if err := validator.Struct(message); err != nil {
		slog.WarnContext(ctx, "invalid message from client", "session.id", s.ID, "error", err)
		span.RecordError(err)
		span.SetStatus(codes.Error, "Invalid message format")
		s.reject(ctx, err.Error())
		return
	}

	span.SetAttributes(attribute.String("message.type", message.Type))

	switch message.Type {
	case proto.TypeMove:
		if len(message.Position) != 2 {
			span.SetStatus(codes.Error, "Move without position")
			s.reject(ctx, reasonMissingPosition)
			return
		}
		// Rejections are already reported to the client by Move.
		_, _ = s.Move(ctx, message.Position[0], message.Position[1])
	case proto.TypeRestart:
		_, _ = s.Restart(ctx)
	case proto.TypeState:
		s.mu.Lock()
		s.sendLocked(ctx, s.messageLocked(proto.TypeUpdate))
		s.mu.Unlock()
	}
}

func (s *Session) reject(ctx context.Context, reason string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	msg := s.messageLocked(proto.TypeRejected)
	msg.Reason = reason
	s.sendLocked(ctx, msg)
}

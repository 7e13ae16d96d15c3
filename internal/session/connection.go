package session

import (
	"context"
	"ctchen222/Tic-Tac-Toe-Solo/pkg/proto"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/gorilla/websocket"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// Time allowed to write a message to the client.
const writeWait = 10 * time.Second

// Connection is an interface that abstracts the websocket connection.
type Connection interface {
	WriteMessage(messageType int, data []byte) error
	ReadMessage() (int, []byte, error)
	SetWriteDeadline(t time.Time) error
	Close() error
}

// sendLocked writes message to the connection, if any. Holding mu keeps
// writes ordered and gives the connection a single writer.
func (s *Session) sendLocked(ctx context.Context, message *proto.ServerToClientMessage) {
	if s.conn == nil || s.closed {
		return
	}

	data, err := json.Marshal(message)
	if err != nil {
		slog.ErrorContext(ctx, "error marshalling message", "error", err)
		return
	}

	if err := s.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
		slog.WarnContext(ctx, "error setting write deadline", "session.id", s.ID, "error", err)
	}
	if err := s.conn.WriteMessage(websocket.TextMessage, data); err != nil {
		// A failed write leaves the websocket unusable; closing it ends ReadPump.
		slog.WarnContext(ctx, "error writing message to client", "session.id", s.ID, "message.type", message.Type, "error", err)
		_ = s.conn.Close()
	}
}

// Welcome sends the session id and the initial state to the client.
func (s *Session) Welcome(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sendLocked(ctx, s.messageLocked(proto.TypeWelcome))
}

// ReadPump reads client messages until the connection fails or ctx is done.
// The caller owns the session and closes it afterwards.
func (s *Session) ReadPump(ctx context.Context) error {
	ctx, span := tracer.Start(ctx, "session.ReadPump", trace.WithAttributes(
		attribute.String("session.id", s.ID),
	))
	defer span.End()

	if s.conn == nil {
		return nil
	}

	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		_, msg, err := s.conn.ReadMessage()
		if err != nil {
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				slog.InfoContext(ctx, "Client disconnected", "session.id", s.ID)
				return nil
			}
			slog.WarnContext(ctx, "Client connection error", "session.id", s.ID, "error", err)
			span.RecordError(err)
			span.SetStatus(codes.Error, "Client connection error")
			return err
		}
		s.HandleMessage(ctx, msg)
	}
}

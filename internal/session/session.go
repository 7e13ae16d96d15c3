package session

import (
	"context"
	"ctchen222/Tic-Tac-Toe-Solo/internal/bot"
	"ctchen222/Tic-Tac-Toe-Solo/internal/events"
	"ctchen222/Tic-Tac-Toe-Solo/internal/game"
	"ctchen222/Tic-Tac-Toe-Solo/pkg/proto"
	"errors"
	"log/slog"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

var tracer = otel.Tracer("session")

// ErrClosed is returned by operations on a closed session.
var ErrClosed = errors.New("session closed")

type pendingEvent struct {
	eventType string
	payload   any
}

// Session is one single-screen game: a human on the Player side against a
// random opponent on the Ai side. All engine access goes through mu.
type Session struct {
	ID string

	mu         sync.Mutex
	engine     *game.Engine
	conn       Connection
	publisher  events.Publisher
	botOpts    []bot.Option
	cancelBot  context.CancelFunc
	thinking   bool
	attempts   int
	closed     bool
	lastActive time.Time

	wg sync.WaitGroup
}

// New creates a session. conn may be nil for clients that poll.
func New(id string, conn Connection, publisher events.Publisher, botOpts ...bot.Option) *Session {
	if publisher == nil {
		publisher = events.NopPublisher{}
	}
	s := &Session{
		ID:         id,
		engine:     game.NewEngine(),
		conn:       conn,
		publisher:  publisher,
		botOpts:    botOpts,
		lastActive: time.Now(),
	}
	return s
}

// Announce publishes game_started for the session's first game.
func (s *Session) Announce(ctx context.Context) {
	s.mu.Lock()
	epoch := s.engine.Epoch()
	s.mu.Unlock()

	s.publish(ctx, []pendingEvent{{events.TypeGameStarted, events.GameStartedPayload{
		SessionID: s.ID,
		Epoch:     epoch,
	}}})
}

// Move applies a human move. A rejected move leaves the game untouched and
// returns the reason; it is an expected outcome, not a failure.
func (s *Session) Move(ctx context.Context, row, col int) (*proto.ServerToClientMessage, error) {
	ctx, span := tracer.Start(ctx, "session.Move", trace.WithAttributes(
		attribute.String("session.id", s.ID),
		attribute.Int("move.row", row),
		attribute.Int("move.col", col),
	))
	defer span.End()

	s.mu.Lock()
	update, evs, err := s.moveLocked(ctx, row, col)
	s.mu.Unlock()

	s.publish(ctx, evs)

	if err != nil {
		span.SetAttributes(attribute.Bool("move.valid", false))
		span.SetStatus(codes.Error, err.Error())
		return update, err
	}
	span.SetAttributes(attribute.Bool("move.valid", true))
	return update, nil
}

func (s *Session) moveLocked(ctx context.Context, row, col int) (*proto.ServerToClientMessage, []pendingEvent, error) {
	if s.closed {
		return nil, nil, ErrClosed
	}
	s.lastActive = time.Now()

	if err := s.engine.CheckMove(row, col, game.Player); err != nil {
		slog.InfoContext(ctx, "Rejected player move", "session.id", s.ID, "move.row", row, "move.col", col, "reason", err)
		movesRejected.Add(ctx, 1, sideAttr(game.Player))
		rejected := s.messageLocked(proto.TypeRejected)
		rejected.Reason = err.Error()
		s.sendLocked(ctx, rejected)
		return rejected, nil, err
	}

	s.engine.ApplyMove(row, col, game.Player)
	evs := s.afterMoveLocked(ctx, game.Player, row, col, 0)

	if state := s.engine.Snapshot(); !state.Result.Finished() && state.Turn == game.Ai {
		s.startOpponentLocked(ctx)
	}

	update := s.messageLocked(proto.TypeUpdate)
	s.sendLocked(ctx, update)
	return update, evs, nil
}

// afterMoveLocked records an accepted move and the end of the game it may cause.
func (s *Session) afterMoveLocked(ctx context.Context, side game.Side, row, col, attempts int) []pendingEvent {
	state := s.engine.Snapshot()
	movesApplied.Add(ctx, 1, sideAttr(side))

	evs := []pendingEvent{{events.TypeMoveApplied, events.MoveAppliedPayload{
		SessionID: s.ID,
		Epoch:     state.Epoch,
		Side:      string(side),
		Row:       row,
		Col:       col,
		Attempts:  attempts,
	}}}

	if state.Result.Finished() {
		slog.InfoContext(ctx, "Game finished", "session.id", s.ID, "game.status", state.Result.Status, "game.winner", state.Result.Winner, "game.moves", state.Moves)
		gamesFinished.Add(ctx, 1, resultAttrs(state.Result)...)
		evs = append(evs, pendingEvent{events.TypeGameFinished, events.GameFinishedPayload{
			SessionID: s.ID,
			Epoch:     state.Epoch,
			Status:    string(state.Result.Status),
			Winner:    string(state.Result.Winner),
			Moves:     state.Moves,
		}})
	}
	return evs
}

// startOpponentLocked launches the opponent for the current game. The task is
// detached from the request context but cancelled by Restart and Close.
func (s *Session) startOpponentLocked(ctx context.Context) {
	epoch := s.engine.Epoch()
	taskCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	s.cancelBot = cancel
	s.thinking = true
	s.attempts = 0

	opponent := bot.NewOpponent(s.botOpts...)

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer cancel()

		move, err := opponent.SelectRandomMove(taskCtx, epoch, bot.TargetFunc(s.attempt))
		switch {
		case err == nil:
			opponentAttempts.Record(taskCtx, int64(move.Attempts))
			slog.DebugContext(taskCtx, "Opponent moved", "session.id", s.ID, "move.row", move.Row, "move.col", move.Col, "move.attempts", move.Attempts)
		case errors.Is(err, bot.ErrStale), errors.Is(err, context.Canceled):
			slog.DebugContext(taskCtx, "Opponent task discarded", "session.id", s.ID, "game.epoch", epoch, "reason", err)
		default:
			slog.ErrorContext(taskCtx, "Opponent task failed", "session.id", s.ID, "error", err)
		}
	}()
}

// attempt is the opponent's entry point into the engine.
func (s *Session) attempt(ctx context.Context, epoch uint64, row, col int) game.AttemptResult {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return game.Closed
	}

	result := s.engine.Attempt(epoch, row, col, game.Ai)
	if result == game.Closed {
		s.mu.Unlock()
		return result
	}
	s.attempts++
	if result != game.Accepted {
		s.mu.Unlock()
		movesRejected.Add(ctx, 1, sideAttr(game.Ai))
		return result
	}

	s.thinking = false
	s.cancelBot = nil
	evs := s.afterMoveLocked(ctx, game.Ai, row, col, s.attempts)
	s.sendLocked(ctx, s.messageLocked(proto.TypeUpdate))
	s.mu.Unlock()

	s.publish(ctx, evs)
	return result
}

// Restart discards the current game, including any opponent still thinking
// about it, and starts a new one with the Player to move.
func (s *Session) Restart(ctx context.Context) (*proto.ServerToClientMessage, error) {
	ctx, span := tracer.Start(ctx, "session.Restart", trace.WithAttributes(
		attribute.String("session.id", s.ID),
	))
	defer span.End()

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		span.SetStatus(codes.Error, "Session closed")
		return nil, ErrClosed
	}
	s.lastActive = time.Now()

	s.stopOpponentLocked()
	s.engine.Reset()
	epoch := s.engine.Epoch()
	span.SetAttributes(attribute.Int64("game.epoch", int64(epoch)))

	update := s.messageLocked(proto.TypeUpdate)
	s.sendLocked(ctx, update)
	s.mu.Unlock()

	slog.InfoContext(ctx, "Game restarted", "session.id", s.ID, "game.epoch", epoch)
	s.publish(ctx, []pendingEvent{{events.TypeGameReset, events.GameResetPayload{
		SessionID: s.ID,
		Epoch:     epoch,
	}}})
	return update, nil
}

func (s *Session) stopOpponentLocked() {
	if s.cancelBot != nil {
		s.cancelBot()
		s.cancelBot = nil
	}
	s.thinking = false
}

// Update returns the current state as an update message.
func (s *Session) Update() *proto.ServerToClientMessage {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastActive = time.Now()
	return s.messageLocked(proto.TypeUpdate)
}

// Snapshot returns the engine state and whether the opponent is thinking.
func (s *Session) Snapshot() (game.State, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.engine.Snapshot(), s.thinking
}

// LastActive reports when a client last interacted with the session.
func (s *Session) LastActive() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastActive
}

// Close stops the opponent, closes the connection and waits for the opponent
// goroutine to exit. It is safe to call more than once.
func (s *Session) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	s.stopOpponentLocked()
	conn := s.conn
	s.mu.Unlock()

	s.wg.Wait()

	if conn != nil {
		return conn.Close()
	}
	return nil
}

func (s *Session) messageLocked(msgType string) *proto.ServerToClientMessage {
	msg := proto.NewStateMessage(msgType, s.engine.Snapshot(), s.thinking)
	msg.SessionID = s.ID
	return msg
}

func (s *Session) publish(ctx context.Context, evs []pendingEvent) {
	for _, ev := range evs {
		if err := s.publisher.Publish(ctx, ev.eventType, ev.payload); err != nil {
			slog.WarnContext(ctx, "Failed to publish game event", "session.id", s.ID, "event.type", ev.eventType, "error", err)
		}
	}
}

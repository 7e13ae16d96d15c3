package session

import (
	"context"
	"ctchen222/Tic-Tac-Toe-Solo/internal/bot"
	"ctchen222/Tic-Tac-Toe-Solo/internal/events"
	"ctchen222/Tic-Tac-Toe-Solo/internal/events/mock_events"
	"ctchen222/Tic-Tac-Toe-Solo/internal/game"
	"ctchen222/Tic-Tac-Toe-Solo/pkg/proto"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
)

// fakeConn is an in-memory Connection.
type fakeConn struct {
	mu        sync.Mutex
	written   []*proto.ServerToClientMessage
	deadlines []time.Time
	incoming  chan []byte
	closed    bool
	writeErr  error
}

func newFakeConn() *fakeConn {
	return &fakeConn{incoming: make(chan []byte, 16)}
}

func (c *fakeConn) WriteMessage(_ int, data []byte) error {
	var msg proto.ServerToClientMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.writeErr != nil {
		return c.writeErr
	}
	c.written = append(c.written, &msg)
	return nil
}

func (c *fakeConn) ReadMessage() (int, []byte, error) {
	msg, ok := <-c.incoming
	if !ok {
		return 0, nil, errors.New("connection closed")
	}
	return 1, msg, nil
}

func (c *fakeConn) SetWriteDeadline(t time.Time) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.deadlines = append(c.deadlines, t)
	return nil
}

func (c *fakeConn) isClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

func (c *fakeConn) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	return nil
}

func (c *fakeConn) last() *proto.ServerToClientMessage {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.written) == 0 {
		return nil
	}
	return c.written[len(c.written)-1]
}

func (c *fakeConn) count(msgType string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := 0
	for _, m := range c.written {
		if m.Type == msgType {
			n++
		}
	}
	return n
}

// blockingPacer holds the opponent until ctx is cancelled.
var blockingPacer = bot.PacerFunc(func(ctx context.Context, _ time.Duration) error {
	<-ctx.Done()
	return ctx.Err()
})

func instant() []bot.Option {
	return []bot.Option{bot.WithDelays(0, 0)}
}

func waitForPlayerTurn(t *testing.T, s *Session) game.State {
	t.Helper()
	var state game.State
	require.Eventually(t, func() bool {
		var thinking bool
		state, thinking = s.Snapshot()
		return !thinking && (state.Turn == game.Player || state.Result.Finished())
	}, 2*time.Second, time.Millisecond)
	return state
}

func countSide(b game.Board, side game.Side) int {
	n := 0
	for _, c := range b {
		if c == side {
			n++
		}
	}
	return n
}

func TestSession_MoveTriggersOpponent(t *testing.T) {
	// Given
	conn := newFakeConn()
	s := New("s1", conn, nil, instant()...)
	t.Cleanup(func() { _ = s.Close() })

	// When
	update, err := s.Move(context.Background(), 1, 1)

	// Then
	require.NoError(t, err)
	assert.Equal(t, proto.TypeUpdate, update.Type)
	assert.Equal(t, "s1", update.SessionID)
	assert.Equal(t, game.Player, update.Board[1][1])

	state := waitForPlayerTurn(t, s)
	assert.Equal(t, 2, state.Moves)
	assert.Equal(t, 1, countSide(state.Board, game.Player))
	assert.Equal(t, 1, countSide(state.Board, game.Ai))
	assert.Equal(t, game.InProgress, state.Result.Status)

	require.Eventually(t, func() bool { return conn.count(proto.TypeUpdate) == 2 }, time.Second, time.Millisecond)
	assert.False(t, conn.last().Thinking)
}

func TestSession_MoveRejections(t *testing.T) {
	t.Run("occupied cell", func(t *testing.T) {
		conn := newFakeConn()
		s := New("s1", conn, nil, instant()...)
		t.Cleanup(func() { _ = s.Close() })

		_, err := s.Move(context.Background(), 0, 0)
		require.NoError(t, err)
		before := waitForPlayerTurn(t, s)

		msg, err := s.Move(context.Background(), 0, 0)

		require.ErrorIs(t, err, game.ErrCellOccupied)
		assert.Equal(t, proto.TypeRejected, msg.Type)
		assert.Equal(t, game.ErrCellOccupied.Error(), msg.Reason)
		after, _ := s.Snapshot()
		assert.Equal(t, before, after)
		assert.Equal(t, proto.TypeRejected, conn.last().Type)
	})

	t.Run("out of bounds", func(t *testing.T) {
		s := New("s1", nil, nil, instant()...)
		t.Cleanup(func() { _ = s.Close() })

		_, err := s.Move(context.Background(), 3, 0)

		require.ErrorIs(t, err, game.ErrOutOfBounds)
		state, _ := s.Snapshot()
		assert.Equal(t, 0, state.Moves)
	})

	t.Run("while the opponent is thinking", func(t *testing.T) {
		s := New("s1", nil, nil, bot.WithPacer(blockingPacer))
		t.Cleanup(func() { _ = s.Close() })

		_, err := s.Move(context.Background(), 0, 0)
		require.NoError(t, err)

		_, err = s.Move(context.Background(), 2, 2)

		require.ErrorIs(t, err, game.ErrNotYourTurn)
		state, thinking := s.Snapshot()
		assert.True(t, thinking)
		assert.Equal(t, game.Ai, state.Turn)
		assert.Equal(t, 1, state.Moves)
	})
}

func TestSession_PlaysToCompletion(t *testing.T) {
	s := New("s1", nil, nil, instant()...)
	t.Cleanup(func() { _ = s.Close() })

	for {
		state := waitForPlayerTurn(t, s)
		if state.Result.Finished() {
			break
		}
		for i, c := range state.Board {
			if c == game.None {
				_, err := s.Move(context.Background(), i/game.Size, i%game.Size)
				require.NoError(t, err)
				break
			}
		}
	}

	state, thinking := s.Snapshot()
	assert.False(t, thinking)
	assert.NotEmpty(t, state.Result.Message())

	_, err := s.Move(context.Background(), 0, 0)
	assert.ErrorIs(t, err, game.ErrGameOver)
}

func TestSession_RestartCancelsThinkingOpponent(t *testing.T) {
	// Given an opponent stuck in its first pause
	conn := newFakeConn()
	s := New("s1", conn, nil, bot.WithPacer(blockingPacer))

	_, err := s.Move(context.Background(), 1, 1)
	require.NoError(t, err)
	_, thinking := s.Snapshot()
	require.True(t, thinking)

	// When
	update, err := s.Restart(context.Background())

	// Then
	require.NoError(t, err)
	assert.False(t, update.Thinking)
	assert.Equal(t, uint64(2), update.Epoch)

	require.NoError(t, s.Close())
	state, thinking := s.Snapshot()
	assert.False(t, thinking)
	assert.Equal(t, game.Board{}, state.Board)
	assert.Equal(t, game.Player, state.Turn)
	assert.Equal(t, uint64(2), state.Epoch)
	assert.True(t, conn.closed)
}

func TestSession_StaleOpponentCannotMoveAfterRestart(t *testing.T) {
	// Given an opponent that ignores cancellation and wakes up late
	release := make(chan struct{})
	var once sync.Once
	pacer := bot.PacerFunc(func(ctx context.Context, _ time.Duration) error {
		once.Do(func() { <-release })
		return nil
	})
	s := New("s1", nil, nil, bot.WithPacer(pacer))

	_, err := s.Move(context.Background(), 0, 0)
	require.NoError(t, err)

	// When the game is restarted before the opponent wakes up
	_, err = s.Restart(context.Background())
	require.NoError(t, err)
	close(release)
	require.NoError(t, s.Close())

	// Then the stale opponent left the new game alone
	state, _ := s.Snapshot()
	assert.Equal(t, game.Board{}, state.Board)
	assert.Equal(t, 0, state.Moves)
	assert.Equal(t, game.Player, state.Turn)
}

func TestSession_PublishesEvents(t *testing.T) {
	ctrl := gomock.NewController(t)
	publisher := mock_events.NewMockPublisher(ctrl)

	gomock.InOrder(
		publisher.EXPECT().Publish(gomock.Any(), events.TypeGameStarted, events.GameStartedPayload{SessionID: "s1", Epoch: 1}),
		publisher.EXPECT().Publish(gomock.Any(), events.TypeMoveApplied, events.MoveAppliedPayload{
			SessionID: "s1", Epoch: 1, Side: string(game.Player), Row: 2, Col: 0,
		}),
		publisher.EXPECT().Publish(gomock.Any(), events.TypeGameReset, events.GameResetPayload{SessionID: "s1", Epoch: 2}),
	)

	s := New("s1", nil, publisher, bot.WithPacer(blockingPacer))
	s.Announce(context.Background())
	_, err := s.Move(context.Background(), 2, 0)
	require.NoError(t, err)
	_, err = s.Restart(context.Background())
	require.NoError(t, err)
	require.NoError(t, s.Close())
}

type traceKey struct{}

func TestSession_OpponentMoveKeepsRequestContext(t *testing.T) {
	// Given a move made under a request context carrying a value
	ctrl := gomock.NewController(t)
	publisher := mock_events.NewMockPublisher(ctrl)
	aiCtx := make(chan context.Context, 1)

	publisher.EXPECT().Publish(gomock.Any(), events.TypeMoveApplied, gomock.Any()).
		DoAndReturn(func(ctx context.Context, _ string, payload any) error {
			if p, ok := payload.(events.MoveAppliedPayload); ok && p.Side == string(game.Ai) {
				aiCtx <- ctx
			}
			return nil
		}).Times(2)

	s := New("s1", nil, publisher, instant()...)
	t.Cleanup(func() { _ = s.Close() })
	ctx := context.WithValue(context.Background(), traceKey{}, "req-1")

	// When
	_, err := s.Move(ctx, 1, 1)
	require.NoError(t, err)

	// Then the Ai move is reported under the same context
	select {
	case got := <-aiCtx:
		assert.Equal(t, "req-1", got.Value(traceKey{}))
	case <-time.After(2 * time.Second):
		t.Fatal("opponent move was not published")
	}
}

func TestSession_WritesHaveDeadline(t *testing.T) {
	conn := newFakeConn()
	s := New("s1", conn, nil)
	t.Cleanup(func() { _ = s.Close() })

	before := time.Now()
	s.Welcome(context.Background())

	conn.mu.Lock()
	defer conn.mu.Unlock()
	require.Len(t, conn.deadlines, 1)
	assert.WithinDuration(t, before.Add(writeWait), conn.deadlines[0], time.Second)
}

func TestSession_FailedWriteClosesConnection(t *testing.T) {
	conn := newFakeConn()
	conn.writeErr = errors.New("i/o timeout")
	s := New("s1", conn, nil, bot.WithPacer(blockingPacer))
	t.Cleanup(func() { _ = s.Close() })

	_, err := s.Move(context.Background(), 0, 0)

	require.NoError(t, err)
	assert.True(t, conn.isClosed())
}

func TestSession_PublishFailureDoesNotFailMove(t *testing.T) {
	ctrl := gomock.NewController(t)
	publisher := mock_events.NewMockPublisher(ctrl)
	publisher.EXPECT().Publish(gomock.Any(), gomock.Any(), gomock.Any()).Return(errors.New("broker down")).AnyTimes()

	s := New("s1", nil, publisher, bot.WithPacer(blockingPacer))
	t.Cleanup(func() { _ = s.Close() })

	_, err := s.Move(context.Background(), 0, 0)

	assert.NoError(t, err)
}

func TestSession_HandleMessage(t *testing.T) {
	tests := []struct {
		name       string
		raw        string
		wantType   string
		wantReason string
	}{
		{name: "malformed json", raw: `{"type":`, wantType: proto.TypeRejected, wantReason: "malformed message"},
		{name: "unknown type", raw: `{"type":"rematch"}`, wantType: proto.TypeRejected},
		{name: "move without position", raw: `{"type":"move"}`, wantType: proto.TypeRejected, wantReason: reasonMissingPosition},
		{name: "position out of range", raw: `{"type":"move","position":[0,5]}`, wantType: proto.TypeRejected},
		{name: "state", raw: `{"type":"state"}`, wantType: proto.TypeUpdate},
		{name: "restart", raw: `{"type":"restart"}`, wantType: proto.TypeUpdate},
		{name: "move", raw: `{"type":"move","position":[1,2]}`, wantType: proto.TypeUpdate},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			conn := newFakeConn()
			s := New("s1", conn, nil, bot.WithPacer(blockingPacer))
			t.Cleanup(func() { _ = s.Close() })

			s.HandleMessage(context.Background(), []byte(tt.raw))

			last := conn.last()
			require.NotNil(t, last)
			assert.Equal(t, tt.wantType, last.Type)
			if tt.wantReason != "" {
				assert.Equal(t, tt.wantReason, last.Reason)
			}
		})
	}
}

func TestSession_ReadPump(t *testing.T) {
	conn := newFakeConn()
	s := New("s1", conn, nil, bot.WithPacer(blockingPacer))
	t.Cleanup(func() { _ = s.Close() })

	conn.incoming <- []byte(`{"type":"move","position":[0,1]}`)
	close(conn.incoming)

	err := s.ReadPump(context.Background())

	require.Error(t, err)
	state, thinking := s.Snapshot()
	assert.Equal(t, game.Player, state.Board.At(0, 1))
	assert.True(t, thinking)
}

func TestSession_Welcome(t *testing.T) {
	conn := newFakeConn()
	s := New("s1", conn, nil)
	t.Cleanup(func() { _ = s.Close() })

	s.Welcome(context.Background())

	msg := conn.last()
	require.NotNil(t, msg)
	assert.Equal(t, proto.TypeWelcome, msg.Type)
	assert.Equal(t, "s1", msg.SessionID)
	assert.Equal(t, game.Player, msg.Next)
	assert.Len(t, msg.Board, game.Size)
}

func TestSession_Closed(t *testing.T) {
	s := New("s1", nil, nil)
	require.NoError(t, s.Close())
	require.NoError(t, s.Close())

	_, err := s.Move(context.Background(), 0, 0)
	assert.ErrorIs(t, err, ErrClosed)
	_, err = s.Restart(context.Background())
	assert.ErrorIs(t, err, ErrClosed)
}

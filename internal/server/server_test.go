package server

import (
	"context"
	"ctchen222/Tic-Tac-Toe-Solo/internal/bot"
	"ctchen222/Tic-Tac-Toe-Solo/internal/game"
	"ctchen222/Tic-Tac-Toe-Solo/internal/hub"
	"ctchen222/Tic-Tac-Toe-Solo/pkg/proto"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func startServer(t *testing.T, webDir string) (*httptest.Server, *hub.Hub) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	ctx, cancel := context.WithCancel(context.Background())
	h := hub.NewHub(hub.WithOpponent(bot.WithDelays(0, 0)))
	go h.Run(ctx)

	ts := httptest.NewServer(NewServer(h, webDir).Engine())
	t.Cleanup(func() {
		cancel()
		ts.Close()
	})
	return ts, h
}

func dial(t *testing.T, ts *httptest.Server) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

func read(t *testing.T, conn *websocket.Conn) proto.ServerToClientMessage {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	var msg proto.ServerToClientMessage
	require.NoError(t, conn.ReadJSON(&msg))
	return msg
}

func TestServer_WebSocketGame(t *testing.T) {
	ts, h := startServer(t, "")
	conn := dial(t, ts)

	// Given a welcome with an empty board
	welcome := read(t, conn)
	require.Equal(t, proto.TypeWelcome, welcome.Type)
	require.NotEmpty(t, welcome.SessionID)
	assert.Equal(t, game.Player, welcome.Next)
	_, ok := h.Lookup(welcome.SessionID)
	assert.True(t, ok)

	// When the player moves
	require.NoError(t, conn.WriteJSON(proto.ClientToServerMessage{Type: proto.TypeMove, Position: []int{0, 0}}))

	// Then the move is echoed and the opponent answers
	update := read(t, conn)
	assert.Equal(t, proto.TypeUpdate, update.Type)
	assert.Equal(t, game.Player, update.Board[0][0])
	assert.True(t, update.Thinking)

	reply := read(t, conn)
	assert.Equal(t, proto.TypeUpdate, reply.Type)
	assert.False(t, reply.Thinking)
	assert.Equal(t, game.Player, reply.Next)

	// And an occupied cell is rejected
	require.NoError(t, conn.WriteJSON(proto.ClientToServerMessage{Type: proto.TypeMove, Position: []int{0, 0}}))
	rejected := read(t, conn)
	assert.Equal(t, proto.TypeRejected, rejected.Type)
	assert.Equal(t, game.ErrCellOccupied.Error(), rejected.Reason)
}

func TestServer_DisconnectRemovesSession(t *testing.T) {
	ts, h := startServer(t, "")
	conn := dial(t, ts)
	welcome := read(t, conn)

	require.NoError(t, conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")))
	_ = conn.Close()

	require.Eventually(t, func() bool {
		_, ok := h.Lookup(welcome.SessionID)
		return !ok
	}, 2*time.Second, 10*time.Millisecond)
}

func TestServer_StaticFiles(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "index.html"), []byte("<h1>Tic-Tac-Toe</h1>"), 0o644))
	ts, _ := startServer(t, dir)

	resp, err := http.Get(ts.URL + "/")
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusOK, resp.StatusCode)

	health, err := http.Get(ts.URL + "/api/healthz")
	require.NoError(t, err)
	defer health.Body.Close()
	assert.Equal(t, http.StatusOK, health.StatusCode)
}

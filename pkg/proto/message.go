package proto

import "ctchen222/Tic-Tac-Toe-Solo/internal/game"

// Client message types
const (
	TypeMove    = "move"
	TypeRestart = "restart"
	TypeState   = "state"
)

// Server message types
const (
	TypeWelcome  = "welcome"
	TypeUpdate   = "update"
	TypeRejected = "rejected"
)

// ClientToServerMessage represents a message from the client to the server.
type ClientToServerMessage struct {
	Type     string `json:"type" validate:"required,oneof=move restart state"`
	Position []int  `json:"position,omitempty" validate:"omitempty,len=2,dive,min=0,max=2"`
}

// ServerToClientMessage represents a message from the server to the client.
type ServerToClientMessage struct {
	Type      string        `json:"type"`
	SessionID string        `json:"sessionId,omitempty"`
	Reason    string        `json:"reason,omitempty"`
	Board     [][]game.Side `json:"board,omitempty"`
	Next      game.Side     `json:"next,omitempty"`
	Status    game.Status   `json:"status,omitempty"`
	Winner    game.Side     `json:"winner,omitempty"`
	Message   string        `json:"message,omitempty"`
	Thinking  bool          `json:"thinking"`
	Epoch     uint64        `json:"epoch,omitempty"`
}

// MoveRequest is the REST body of a human move.
type MoveRequest struct {
	Row *int `json:"row" validate:"required,min=0,max=2"`
	Col *int `json:"col" validate:"required,min=0,max=2"`
}

// NewStateMessage builds a message of the given type from an engine snapshot.
func NewStateMessage(msgType string, state game.State, thinking bool) *ServerToClientMessage {
	return &ServerToClientMessage{
		Type:     msgType,
		Board:    state.Board.Rows(),
		Next:     state.Turn,
		Status:   state.Result.Status,
		Winner:   state.Result.Winner,
		Message:  state.Result.Message(),
		Thinking: thinking,
		Epoch:    state.Epoch,
	}
}

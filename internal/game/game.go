package game

import "errors"

// Side is the owner of a mark on the board. None marks an empty cell.
type Side string

const (
	None   Side = ""
	Player Side = "player"
	Ai     Side = "ai"
)

// Board boundaries
const (
	BorderMin = 0
	BorderMax = 2
	Size      = BorderMax + 1
	Cells     = Size * Size
)

var (
	ErrOutOfBounds  = errors.New("position out of bounds")
	ErrNotYourTurn  = errors.New("not your turn")
	ErrCellOccupied = errors.New("cell already occupied")
	ErrGameOver     = errors.New("game already finished")
)

// Opponent returns the other side.
func (s Side) Opponent() Side {
	switch s {
	case Player:
		return Ai
	case Ai:
		return Player
	default:
		return None
	}
}

// Name is the label shown to the user.
func (s Side) Name() string {
	switch s {
	case Player:
		return "Player"
	case Ai:
		return "Ai"
	default:
		return ""
	}
}

// AttemptResult is the outcome of an epoch-guarded move attempt.
type AttemptResult int

const (
	// Accepted means the cell was marked.
	Accepted AttemptResult = iota
	// Occupied means the cell was taken; the caller may try another one.
	Occupied
	// Closed means the attempt can never succeed: the epoch is stale, the game
	// is over, or it is not the mover's turn.
	Closed
)

func (a AttemptResult) String() string {
	switch a {
	case Accepted:
		return "accepted"
	case Occupied:
		return "occupied"
	default:
		return "closed"
	}
}

// State is a copy of the engine state handed to callers.
type State struct {
	Board  Board
	Turn   Side
	Result Result
	Epoch  uint64
	Moves  int
}

// Engine owns the board, the turn and the derived result of a single game.
// It is not safe for concurrent use; the owner serializes access.
type Engine struct {
	board  Board
	turn   Side
	result Result
	epoch  uint64
	moves  int
}

// NewEngine returns an engine with an empty board and Player to move.
func NewEngine() *Engine {
	e := &Engine{}
	e.Reset()
	return e
}

// Reset starts a new game and invalidates every attempt made for the previous one.
func (e *Engine) Reset() {
	e.board = Board{}
	e.turn = Player
	e.result = Result{Status: InProgress}
	e.moves = 0
	e.epoch++
}

// CheckMove reports why a move would be rejected, or nil if it would be accepted.
func (e *Engine) CheckMove(row, col int, mover Side) error {
	if e.result.Status != InProgress {
		return ErrGameOver
	}
	idx, ok := Index(row, col)
	if !ok {
		return ErrOutOfBounds
	}
	if mover != e.turn {
		return ErrNotYourTurn
	}
	if e.board[idx] != None {
		return ErrCellOccupied
	}
	return nil
}

// ApplyMove marks (row, col) for mover and passes the turn. It returns false and
// leaves the state untouched when the move is not legal.
func (e *Engine) ApplyMove(row, col int, mover Side) bool {
	if e.CheckMove(row, col, mover) != nil {
		return false
	}
	idx, _ := Index(row, col)
	e.board[idx] = mover
	e.turn = mover.Opponent()
	e.moves++
	e.result = e.board.Evaluate(mover)
	return true
}

// Attempt applies a move on behalf of a task started for epoch.
func (e *Engine) Attempt(epoch uint64, row, col int, mover Side) AttemptResult {
	if epoch != e.epoch {
		return Closed
	}
	switch err := e.CheckMove(row, col, mover); {
	case err == nil:
		e.ApplyMove(row, col, mover)
		return Accepted
	case errors.Is(err, ErrCellOccupied):
		return Occupied
	default:
		return Closed
	}
}

// Snapshot returns a copy of the current state.
func (e *Engine) Snapshot() State {
	return State{
		Board:  e.board,
		Turn:   e.turn,
		Result: e.result,
		Epoch:  e.epoch,
		Moves:  e.moves,
	}
}

// Turn returns the side entitled to move next.
func (e *Engine) Turn() Side {
	return e.turn
}

// Result returns the result computed after the last accepted move.
func (e *Engine) Result() Result {
	return e.result
}

// Epoch identifies the current game; it changes on every Reset.
func (e *Engine) Epoch() uint64 {
	return e.epoch
}

// Index converts a (row, col) pair to a flat board index.
func Index(row, col int) (int, bool) {
	if row < BorderMin || row > BorderMax || col < BorderMin || col > BorderMax {
		return -1, false
	}
	return row*Size + col, true
}

package game

import "strings"

// Status of a game.
type Status string

const (
	InProgress Status = "in_progress"
	Win        Status = "win"
	Draw       Status = "draw"
)

// Result is derived from the board after every accepted move.
type Result struct {
	Status Status `json:"status"`
	Winner Side   `json:"winner,omitempty"`
}

// Finished reports whether no more moves can be made.
func (r Result) Finished() bool {
	return r.Status != InProgress
}

// Message is the end-of-game text shown to the user.
func (r Result) Message() string {
	switch r.Status {
	case Win:
		return r.Winner.Name() + " is the winner!"
	case Draw:
		return "Its a draw!"
	default:
		return ""
	}
}

// WinningLines holds the 8 index triples that win when held by one side.
var WinningLines = [8][3]int{
	{0, 1, 2},
	{3, 4, 5},
	{6, 7, 8},
	{0, 3, 6},
	{1, 4, 7},
	{2, 5, 8},
	{0, 4, 8},
	{2, 4, 6},
}

// Board is the 3x3 grid flattened row by row.
type Board [Cells]Side

// At returns the mark at (row, col). Out of range positions read as None.
func (b Board) At(row, col int) Side {
	idx, ok := Index(row, col)
	if !ok {
		return None
	}
	return b[idx]
}

// Evaluate computes the result after lastMover played. Only lastMover can have
// completed a line with that move, so the other side is never checked.
func (b Board) Evaluate(lastMover Side) Result {
	if lastMover != None {
		for _, line := range WinningLines {
			if b[line[0]] == lastMover && b[line[1]] == lastMover && b[line[2]] == lastMover {
				return Result{Status: Win, Winner: lastMover}
			}
		}
	}
	if b.IsFull() {
		return Result{Status: Draw}
	}
	return Result{Status: InProgress}
}

// IsFull reports whether every cell is marked.
func (b Board) IsFull() bool {
	return b.Empty() == 0
}

// Empty returns the number of unmarked cells.
func (b Board) Empty() int {
	n := 0
	for _, cell := range b {
		if cell == None {
			n++
		}
	}
	return n
}

// Rows converts the board to a slice of rows for the wire format.
func (b Board) Rows() [][]Side {
	rows := make([][]Side, Size)
	for r := range rows {
		rows[r] = make([]Side, Size)
		copy(rows[r], b[r*Size:(r+1)*Size])
	}
	return rows
}

func (b Board) String() string {
	var sb strings.Builder
	for r := range Size {
		for c := range Size {
			switch b[r*Size+c] {
			case Player:
				sb.WriteByte('O')
			case Ai:
				sb.WriteByte('X')
			default:
				sb.WriteByte('.')
			}
		}
		if r < BorderMax {
			sb.WriteByte('\n')
		}
	}
	return sb.String()
}

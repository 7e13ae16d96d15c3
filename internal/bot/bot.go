package bot

import (
	"context"
	"ctchen222/Tic-Tac-Toe-Solo/internal/game"
	"errors"
	"log/slog"
	"math/rand/v2"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const (
	DefaultFirstDelay = 1000 * time.Millisecond
	DefaultRetryDelay = 100 * time.Millisecond
)

// ErrStale is returned when the game the opponent was started for is gone.
var ErrStale = errors.New("opponent move discarded: game changed")

var tracer = otel.Tracer("bot")

// Target receives the opponent's move attempts.
type Target interface {
	Attempt(ctx context.Context, epoch uint64, row, col int) game.AttemptResult
}

// TargetFunc adapts a function to Target.
type TargetFunc func(ctx context.Context, epoch uint64, row, col int) game.AttemptResult

// Attempt calls f.
func (f TargetFunc) Attempt(ctx context.Context, epoch uint64, row, col int) game.AttemptResult {
	return f(ctx, epoch, row, col)
}

// Move is the cell the opponent ended up marking.
type Move struct {
	Row      int
	Col      int
	Attempts int
}

// Opponent picks cells uniformly at random, retrying blindly until one is free.
// It is not safe for concurrent use.
type Opponent struct {
	rng        *rand.Rand
	pacer      Pacer
	firstDelay time.Duration
	retryDelay time.Duration
}

// Option configures an Opponent.
type Option func(*Opponent)

// WithDelays sets the upper bounds of the think delay and the retry delay.
func WithDelays(first, retry time.Duration) Option {
	return func(o *Opponent) {
		o.firstDelay = first
		o.retryDelay = retry
	}
}

// WithPacer replaces the timer based pacer.
func WithPacer(p Pacer) Option {
	return func(o *Opponent) {
		o.pacer = p
	}
}

// WithRand sets the random source. Mostly useful in tests.
func WithRand(rng *rand.Rand) Option {
	return func(o *Opponent) {
		o.rng = rng
	}
}

// NewOpponent creates an opponent with the default delays.
func NewOpponent(opts ...Option) *Opponent {
	o := &Opponent{
		rng:        rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64())),
		pacer:      TimerPacer{},
		firstDelay: DefaultFirstDelay,
		retryDelay: DefaultRetryDelay,
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// SelectRandomMove thinks for a while and then attempts random cells on target
// until one is accepted. Every draw is independent; rejected cells are not
// remembered. It stops with ErrStale when target reports the game closed and
// with ctx.Err() when cancelled during a pause.
func (o *Opponent) SelectRandomMove(ctx context.Context, epoch uint64, target Target) (Move, error) {
	ctx, span := tracer.Start(ctx, "bot.SelectRandomMove", trace.WithAttributes(
		attribute.Int64("game.epoch", int64(epoch)),
	))
	defer span.End()

	if err := o.pause(ctx, o.firstDelay); err != nil {
		span.SetStatus(codes.Error, "cancelled while thinking")
		return Move{}, err
	}

	for attempts := 1; ; attempts++ {
		row, col := o.rng.IntN(game.Size), o.rng.IntN(game.Size)

		switch target.Attempt(ctx, epoch, row, col) {
		case game.Accepted:
			span.SetAttributes(
				attribute.Int("move.row", row),
				attribute.Int("move.col", col),
				attribute.Int("move.attempts", attempts),
			)
			return Move{Row: row, Col: col, Attempts: attempts}, nil

		case game.Closed:
			slog.DebugContext(ctx, "opponent attempt closed", "game.epoch", epoch, "move.attempts", attempts)
			span.SetStatus(codes.Error, "game changed")
			return Move{}, ErrStale
		}

		if err := o.pause(ctx, o.retryDelay); err != nil {
			span.SetStatus(codes.Error, "cancelled between attempts")
			return Move{}, err
		}
	}
}

func (o *Opponent) pause(ctx context.Context, upTo time.Duration) error {
	var d time.Duration
	if upTo > 0 {
		d = time.Duration(o.rng.Int64N(int64(upTo)))
	}
	return o.pacer.Pause(ctx, d)
}

package session

import (
	"ctchen222/Tic-Tac-Toe-Solo/internal/game"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

var meter = otel.Meter("session")

var (
	movesApplied     metric.Int64Counter
	movesRejected    metric.Int64Counter
	gamesFinished    metric.Int64Counter
	opponentAttempts metric.Int64Histogram
)

func init() {
	var err error
	if movesApplied, err = meter.Int64Counter("game.moves.applied",
		metric.WithDescription("Moves accepted by the engine."),
	); err != nil {
		otel.Handle(err)
	}
	if movesRejected, err = meter.Int64Counter("game.moves.rejected",
		metric.WithDescription("Moves refused by the engine."),
	); err != nil {
		otel.Handle(err)
	}
	if gamesFinished, err = meter.Int64Counter("game.finished",
		metric.WithDescription("Games that reached a win or a draw."),
	); err != nil {
		otel.Handle(err)
	}
	if opponentAttempts, err = meter.Int64Histogram("game.opponent.attempts",
		metric.WithDescription("Cells drawn by the opponent before one was accepted."),
		metric.WithExplicitBucketBoundaries(1, 2, 3, 5, 8, 13, 21),
	); err != nil {
		otel.Handle(err)
	}
}

func sideAttr(side game.Side) metric.AddOption {
	return metric.WithAttributes(attribute.String("game.side", string(side)))
}

func resultAttrs(result game.Result) []metric.AddOption {
	return []metric.AddOption{metric.WithAttributes(
		attribute.String("game.status", string(result.Status)),
		attribute.String("game.winner", string(result.Winner)),
	)}
}

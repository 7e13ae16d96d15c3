package events

import (
	"context"
	"encoding/json"
	"fmt"
)

// Pub/Sub channel constants
const (
	EventsChannel = "channel:events"
)

// Event types
const (
	TypeGameStarted  = "game_started"
	TypeMoveApplied  = "move_applied"
	TypeGameFinished = "game_finished"
	TypeGameReset    = "game_reset"
)

// Event represents a global message published via Pub/Sub.
type Event struct {
	Type    string          `json:"event"`
	Payload json.RawMessage `json:"payload"`
}

// GameStartedPayload is the payload for the "game_started" event.
type GameStartedPayload struct {
	SessionID string `json:"session_id"`
	Epoch     uint64 `json:"epoch"`
}

// MoveAppliedPayload is the payload for the "move_applied" event.
type MoveAppliedPayload struct {
	SessionID string `json:"session_id"`
	Epoch     uint64 `json:"epoch"`
	Side      string `json:"side"`
	Row       int    `json:"row"`
	Col       int    `json:"col"`
	Attempts  int    `json:"attempts,omitempty"`
}

// GameFinishedPayload is the payload for the "game_finished" event.
type GameFinishedPayload struct {
	SessionID string `json:"session_id"`
	Epoch     uint64 `json:"epoch"`
	Status    string `json:"status"`
	Winner    string `json:"winner,omitempty"`
	Moves     int    `json:"moves"`
}

// GameResetPayload is the payload for the "game_reset" event.
type GameResetPayload struct {
	SessionID string `json:"session_id"`
	Epoch     uint64 `json:"epoch"`
}

// Publisher delivers game events to interested listeners.
type Publisher interface {
	Publish(ctx context.Context, eventType string, payload any) error
}

// NopPublisher drops every event. It is used when no broker is configured.
type NopPublisher struct{}

// Publish does nothing.
func (NopPublisher) Publish(context.Context, string, any) error { return nil }

// Encode wraps payload into an Event and marshals it.
func Encode(eventType string, payload any) ([]byte, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal %s payload: %w", eventType, err)
	}
	data, err := json.Marshal(Event{Type: eventType, Payload: raw})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal %s event: %w", eventType, err)
	}
	return data, nil
}

// Decode unmarshals an Event and its payload into out.
func Decode(data []byte, out any) (string, error) {
	var event Event
	if err := json.Unmarshal(data, &event); err != nil {
		return "", fmt.Errorf("failed to unmarshal event: %w", err)
	}
	if err := json.Unmarshal(event.Payload, out); err != nil {
		return event.Type, fmt.Errorf("failed to unmarshal %s payload: %w", event.Type, err)
	}
	return event.Type, nil
}

package events

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/bytedance/sonic"
	"github.com/fibgame/fibs/internal/database/types"
	"github.com/google/uuid"
)

var (
	ErrUnknownKind = errors.New("unknown event kind")
	ErrEmptyEntry  = errors.New("stream entry has no envelope")
)

// Kind tags the collection an event was produced by.
type Kind string

const (
	KindFibCreated         Kind = "fib.created"
	KindLikeCreated        Kind = "like.created"
	KindProfileWritten     Kind = "profile.written"
	KindLeaderboardUpdated Kind = "leaderboard.updated"
)

// Event is a change to a document. Each collection has its own variant.
type Event interface {
	Kind() Kind
	AggregateID() string
}

// FibCreated fires once per newly created fib.
type FibCreated struct {
	Fib types.Fib `json:"fib"`
}

func (e *FibCreated) Kind() Kind          { return KindFibCreated }
func (e *FibCreated) AggregateID() string { return e.Fib.ID }

// LikeCreated fires once per newly created like record under a fib.
type LikeCreated struct {
	FibID  string `json:"fibId"`
	UserID string `json:"userId"`
}

func (e *LikeCreated) Kind() Kind          { return KindLikeCreated }
func (e *LikeCreated) AggregateID() string { return e.FibID }

// ProfileWritten fires on every write to a user profile.
type ProfileWritten struct {
	Before *types.Profile `json:"before,omitempty"`
	After  types.Profile  `json:"after"`
}

func (e *ProfileWritten) Kind() Kind          { return KindProfileWritten }
func (e *ProfileWritten) AggregateID() string { return e.After.UserID }

// LeaderboardUpdated fires on every write to a leaderboard entry.
type LeaderboardUpdated struct {
	UserID string                 `json:"userId"`
	Before types.LeaderboardEntry `json:"before"`
	After  types.LeaderboardEntry `json:"after"`
}

func (e *LeaderboardUpdated) Kind() Kind          { return KindLeaderboardUpdated }
func (e *LeaderboardUpdated) AggregateID() string { return e.UserID }

// Envelope is the transport form of an event.
type Envelope struct {
	ID          uuid.UUID       `json:"id"`
	Kind        Kind            `json:"kind"`
	AggregateID string          `json:"aggregateId"`
	Payload     json.RawMessage `json:"payload"`
	Created     time.Time       `json:"created"`
}

// NewOutboxEvent encodes an event into an outbox row.
func NewOutboxEvent(ev Event, now time.Time) (*types.OutboxEvent, error) {
	payload, err := sonic.Marshal(ev)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal %s event: %w", ev.Kind(), err)
	}

	return &types.OutboxEvent{
		EventID:     uuid.New(),
		Kind:        string(ev.Kind()),
		AggregateID: ev.AggregateID(),
		Payload:     payload,
		Created:     now,
	}, nil
}

// FromOutbox builds the envelope for an outbox row.
func FromOutbox(row *types.OutboxEvent) *Envelope {
	return &Envelope{
		ID:          row.EventID,
		Kind:        Kind(row.Kind),
		AggregateID: row.AggregateID,
		Payload:     row.Payload,
		Created:     row.Created,
	}
}

// Marshal encodes the envelope for the wire.
func (e *Envelope) Marshal() (string, error) {
	return sonic.MarshalString(e)
}

// UnmarshalEnvelope decodes an envelope from the wire.
func UnmarshalEnvelope(data string) (*Envelope, error) {
	var env Envelope
	if err := sonic.UnmarshalString(data, &env); err != nil {
		return nil, fmt.Errorf("failed to unmarshal envelope: %w", err)
	}
	return &env, nil
}

// Decode returns the typed event carried by the envelope.
func (e *Envelope) Decode() (Event, error) {
	var ev Event

	switch e.Kind {
	case KindFibCreated:
		ev = &FibCreated{}
	case KindLikeCreated:
		ev = &LikeCreated{}
	case KindProfileWritten:
		ev = &ProfileWritten{}
	case KindLeaderboardUpdated:
		ev = &LeaderboardUpdated{}
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownKind, e.Kind)
	}

	if err := sonic.Unmarshal(e.Payload, ev); err != nil {
		return nil, fmt.Errorf("failed to unmarshal %s payload: %w", e.Kind, err)
	}

	return ev, nil
}

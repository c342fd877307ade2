package types

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// OutboxEvent is a change event written in the same transaction as the change
// it describes. The relay publishes rows where Published is zero.
type OutboxEvent struct {
	bun.BaseModel `bun:"table:outbox_events,alias:oe"`

	ID          int64           `bun:",pk,autoincrement"       json:"id"`
	EventID     uuid.UUID       `bun:",notnull,unique"         json:"eventId"`
	Kind        string          `bun:",notnull"                json:"kind"`
	AggregateID string          `bun:",notnull"                json:"aggregateId"`
	Payload     json.RawMessage `bun:",type:jsonb,notnull"     json:"payload"`
	Created     time.Time       `bun:",notnull"                json:"created"`
	Published   time.Time       `bun:",nullzero"               json:"published"`
}

// ProcessedEvent marks a reactor effect as applied. It is inserted in the same
// transaction as the effect so a redelivered event becomes a no-op.
type ProcessedEvent struct {
	bun.BaseModel `bun:"table:processed_events,alias:pe"`

	EventKey  string    `bun:",pk"      json:"eventKey"`
	Processed time.Time `bun:",notnull" json:"processed"`
}

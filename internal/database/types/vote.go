package types

import (
	"time"

	"github.com/uptrace/bun"
)

// VoteReceipt records a vote under one fib of the voted pair. Both fibs of the
// pair carry an identical receipt keyed by the voter, and the pair is written
// together or not at all.
type VoteReceipt struct {
	bun.BaseModel `bun:"table:vote_receipts,alias:vr"`

	FibID        string    `bun:",pk"                json:"-"`
	Author       string    `bun:",pk"                json:"author"`
	Points       int64     `bun:",notnull"           json:"points"`
	SecondsLeft  float64   `bun:",notnull"           json:"secondsLeft"`
	EvidenceUsed []int     `bun:"type:jsonb,notnull" json:"evidenceUsed"`
	Fibs         []string  `bun:"type:jsonb,notnull" json:"fibs"`
	Success      bool      `bun:",notnull"           json:"success"`
	Created      time.Time `bun:",notnull"           json:"created"`
}

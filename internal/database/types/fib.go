package types

import (
	"time"

	"github.com/uptrace/bun"
)

// Fib is a claim about a page, written by a player. It is either true or false.
// Two fibs sharing a Game form the pair players vote on.
type Fib struct {
	bun.BaseModel `bun:"table:fibs,alias:f"`

	ID       string    `bun:",pk"                json:"id"`
	Author   string    `bun:",notnull"           json:"author"`
	Page     string    `bun:",notnull"           json:"page"`
	Claim    string    `bun:",notnull"           json:"claim"`
	Veracity bool      `bun:",notnull"           json:"veracity"`
	Gold     []string  `bun:"type:jsonb,notnull" json:"gold"`
	Evidence []string  `bun:"type:jsonb,notnull" json:"evidence"`
	Game     string    `bun:",notnull"           json:"game"`
	Created  time.Time `bun:",notnull"           json:"created"`
}

// Like marks that a user found a fib interesting. One per user per fib.
type Like struct {
	bun.BaseModel `bun:"table:likes,alias:l"`

	FibID   string    `bun:",pk"      json:"fibId"`
	UserID  string    `bun:",pk"      json:"userId"`
	Created time.Time `bun:",notnull" json:"created"`
}

// Dislike marks that a user found a fib obvious. One per user per fib.
type Dislike struct {
	bun.BaseModel `bun:"table:dislikes,alias:d"`

	FibID   string    `bun:",pk"      json:"fibId"`
	UserID  string    `bun:",pk"      json:"userId"`
	Created time.Time `bun:",notnull" json:"created"`
}

// Report is a user complaint about a fib.
type Report struct {
	bun.BaseModel `bun:"table:reports,alias:r"`

	FibID   string    `bun:",pk"      json:"fibId"`
	UserID  string    `bun:",pk"      json:"userId"`
	Issue   string    `bun:",notnull" json:"issue"`
	Created time.Time `bun:",notnull" json:"created"`
}

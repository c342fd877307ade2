package types

import (
	"time"

	"github.com/uptrace/bun"
)

// Profile is the user document written on login and profile edits.
type Profile struct {
	bun.BaseModel `bun:"table:profiles,alias:p"`

	UserID        string    `bun:",pk"      json:"userId"`
	DisplayName   string    `bun:",notnull" json:"displayName"`
	EmailVerified bool      `bun:",notnull" json:"emailVerified"`
	Anonymous     bool      `bun:",notnull" json:"isAnonymous"`
	Created       time.Time `bun:",notnull" json:"created"`
	LastLogin     time.Time `bun:",notnull" json:"lastLogin"`
}

package types

import (
	"errors"

	"github.com/uptrace/bun"
)

var (
	ErrInvalidLeaderboardField = errors.New("invalid leaderboard field")
	ErrNegativeIncrement       = errors.New("leaderboard counters cannot decrease")
)

// LeaderboardField is a sortable leaderboard column.
type LeaderboardField string

const (
	LeaderboardFieldPoints      LeaderboardField = "points"
	LeaderboardFieldVerifyTotal LeaderboardField = "verifyTotal"
	LeaderboardFieldFoolTotal   LeaderboardField = "foolTotal"
	LeaderboardFieldLikedTotal  LeaderboardField = "likedTotal"
	LeaderboardFieldWriteTotal  LeaderboardField = "writeTotal"
)

// Column returns the database column backing the field.
func (f LeaderboardField) Column() (string, error) {
	switch f {
	case LeaderboardFieldPoints:
		return "points", nil
	case LeaderboardFieldVerifyTotal:
		return "verify_total", nil
	case LeaderboardFieldFoolTotal:
		return "fool_total", nil
	case LeaderboardFieldLikedTotal:
		return "liked_total", nil
	case LeaderboardFieldWriteTotal:
		return "write_total", nil
	}
	return "", ErrInvalidLeaderboardField
}

// Value returns the field's value on an entry.
func (f LeaderboardField) Value(e *LeaderboardEntry) int64 {
	switch f {
	case LeaderboardFieldPoints:
		return e.Points
	case LeaderboardFieldVerifyTotal:
		return e.VerifyTotal
	case LeaderboardFieldFoolTotal:
		return e.FoolTotal
	case LeaderboardFieldLikedTotal:
		return e.LikedTotal
	case LeaderboardFieldWriteTotal:
		return e.WriteTotal
	}
	return 0
}

// LeaderboardEntry is the per-user accumulator of every point category.
// Numeric fields only ever grow, and only through increments.
type LeaderboardEntry struct {
	bun.BaseModel `bun:"table:leaderboard_entries,alias:le"`

	UserID       string `bun:",pk"                    json:"userId"`
	DisplayName  string `bun:",notnull,default:''"   json:"displayName"`
	Points       int64  `bun:",notnull,default:0"     json:"points"`
	VerifyPoints int64  `bun:",notnull,default:0"     json:"verifyPoints"`
	VerifyTotal  int64  `bun:",notnull,default:0"     json:"verifyTotal"`
	FoolPoints   int64  `bun:",notnull,default:0"     json:"foolPoints"`
	FoolTotal    int64  `bun:",notnull,default:0"     json:"foolTotal"`
	LikedPoints  int64  `bun:",notnull,default:0"     json:"likedPoints"`
	LikedTotal   int64  `bun:",notnull,default:0"     json:"likedTotal"`
	WritePoints  int64  `bun:",notnull,default:0"     json:"writePoints"`
	WriteTotal   int64  `bun:",notnull,default:0"     json:"writeTotal"`
}

// LeaderboardIncrement is a set of deltas merged into one user's entry.
// DisplayName is only written when non-nil.
type LeaderboardIncrement struct {
	UserID       string
	DisplayName  *string
	Points       int64
	VerifyPoints int64
	VerifyTotal  int64
	FoolPoints   int64
	FoolTotal    int64
	LikedPoints  int64
	LikedTotal   int64
	WritePoints  int64
	WriteTotal   int64
}

// Apply returns a copy of entry with the increment added.
func (inc *LeaderboardIncrement) Apply(entry LeaderboardEntry) LeaderboardEntry {
	entry.UserID = inc.UserID
	if inc.DisplayName != nil {
		entry.DisplayName = *inc.DisplayName
	}
	entry.Points += inc.Points
	entry.VerifyPoints += inc.VerifyPoints
	entry.VerifyTotal += inc.VerifyTotal
	entry.FoolPoints += inc.FoolPoints
	entry.FoolTotal += inc.FoolTotal
	entry.LikedPoints += inc.LikedPoints
	entry.LikedTotal += inc.LikedTotal
	entry.WritePoints += inc.WritePoints
	entry.WriteTotal += inc.WriteTotal
	return entry
}

// Revert returns a copy of entry with the increment subtracted. Since all
// writes are increments, reverting the post-write entry yields exactly the
// entry as it was before this write.
func (inc *LeaderboardIncrement) Revert(entry LeaderboardEntry) LeaderboardEntry {
	entry.Points -= inc.Points
	entry.VerifyPoints -= inc.VerifyPoints
	entry.VerifyTotal -= inc.VerifyTotal
	entry.FoolPoints -= inc.FoolPoints
	entry.FoolTotal -= inc.FoolTotal
	entry.LikedPoints -= inc.LikedPoints
	entry.LikedTotal -= inc.LikedTotal
	entry.WritePoints -= inc.WritePoints
	entry.WriteTotal -= inc.WriteTotal
	return entry
}

// Validate rejects increments that would decrease a counter.
func (inc *LeaderboardIncrement) Validate() error {
	for _, v := range []int64{
		inc.Points, inc.VerifyPoints, inc.VerifyTotal, inc.FoolPoints, inc.FoolTotal,
		inc.LikedPoints, inc.LikedTotal, inc.WritePoints, inc.WriteTotal,
	} {
		if v < 0 {
			return ErrNegativeIncrement
		}
	}
	return nil
}

// LeaderboardChange is the before/after snapshot of one leaderboard write.
type LeaderboardChange struct {
	Before LeaderboardEntry `json:"before"`
	After  LeaderboardEntry `json:"after"`
}

package types

import (
	dbTypes "github.com/fibgame/fibs/internal/database/types"
	"github.com/fibgame/fibs/internal/scoring"
)

// RenameRequest changes the caller's display name.
type RenameRequest struct {
	DisplayName string `json:"displayName"`
}

// ReportRequest files a complaint about a fib.
type ReportRequest struct {
	Issue string `json:"issue"`
}

// ListFibsResponse holds the fibs of one game.
type ListFibsResponse struct {
	Fibs []*dbTypes.Fib `json:"fibs"`
}

// LeaderboardResponse holds one page of the leaderboard.
type LeaderboardResponse struct {
	OrderBy dbTypes.LeaderboardField `json:"orderBy"`
	Entries []*scoring.RankedEntry   `json:"entries"`
}

// NotificationsResponse holds the caller's notifications, newest last.
type NotificationsResponse struct {
	Notifications []dbTypes.NotificationEntry `json:"notifications"`
}

// StatusResponse acknowledges a write with no other result.
type StatusResponse struct {
	OK bool `json:"ok"`
}

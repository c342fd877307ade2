package scoring

import "github.com/fibgame/fibs/internal/database/types"

// levelThresholds holds, per counter, the total needed to pass each level.
var levelThresholds = map[types.LeaderboardField][]int64{
	types.LeaderboardFieldVerifyTotal: {0, 1, 2, 3, 10, 30, 50, 200, 500, 1000, 25000},
	types.LeaderboardFieldFoolTotal:   {0, 0, 0, 1, 2, 10, 50, 150, 250, 5000, 10000},
	types.LeaderboardFieldLikedTotal:  {0, 0, 0, 1, 2, 10, 50, 150, 250, 5000, 10000},
	types.LeaderboardFieldWriteTotal:  {0, 0, 1, 2, 10, 10, 25, 50, 250, 500, 1500},
}

var levelNames = []string{
	"First Timer",
	"Voter",
	"Debut Author",
	"First Blood",
	"Vote Early, Vote Often",
	"All-Rounder",
	"Getting Traction",
	"Prolific Author",
	"Expert",
	"Master",
}

// MaxLevel is the highest reachable level.
var MaxLevel = len(levelNames)

// Level is a player's rank derived from their totals.
type Level struct {
	Number int                              `json:"level"`
	Name   string                           `json:"name"`
	Next   map[types.LeaderboardField]int64 `json:"next,omitempty"`
}

// ComputeLevel returns the lowest level reached across every category, along
// with the totals needed for the next one.
func ComputeLevel(entry *types.LeaderboardEntry) Level {
	number := MaxLevel
	for field, thresholds := range levelThresholds {
		number = min(number, levelIndex(field.Value(entry), thresholds))
	}

	level := Level{Number: number, Name: levelNames[number-1]}
	if number < MaxLevel {
		level.Next = make(map[types.LeaderboardField]int64, len(levelThresholds))
		for field, thresholds := range levelThresholds {
			level.Next[field] = thresholds[number]
		}
	}

	return level
}

// levelIndex is the index of the first threshold above total.
func levelIndex(total int64, thresholds []int64) int {
	for i, threshold := range thresholds {
		if total < threshold {
			return max(i, 1)
		}
	}
	return len(thresholds) - 1
}

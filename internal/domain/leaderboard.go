package domain

import (
	"strconv"
	"time"
)

// Rank badges, in rank order: gold, silver, bronze, then plain numbers.
const (
	BadgeTrophy = "trophy"
	BadgeMedal  = "medal"
	BadgeAward  = "award"
)

// BadgeFor maps a zero-based rank to its badge glyph.
func BadgeFor(rank int) string {
	switch rank {
	case 0:
		return BadgeTrophy
	case 1:
		return BadgeMedal
	case 2:
		return BadgeAward
	}
	return strconv.Itoa(rank + 1)
}

// LeaderboardEntry is one ranked attempt. InProgress entries carry their
// still-accumulating score and time and are shown distinctly from finished ones.
type LeaderboardEntry struct {
	Rank             int    `json:"rank"`
	Badge            string `json:"badge"`
	AttemptID        string `json:"attemptId"`
	DisplayName      string `json:"displayName"`
	Score            int    `json:"score"`
	TotalTimeSeconds int    `json:"totalTimeSeconds"`
	InProgress       bool   `json:"inProgress"`
}

// Leaderboard is the ordered scoreboard for one session. It is a pure
// projection of attempt state and must be re-queried to stay current.
type Leaderboard struct {
	SessionID string             `json:"sessionId"`
	Entries   []LeaderboardEntry `json:"entries"`
	UpdatedAt time.Time          `json:"updatedAt"`
}

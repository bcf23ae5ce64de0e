package app

import (
	"sort"
	"time"

	"studyhub-quiz-service/internal/domain"
)

// ProjectLeaderboard ranks attempts by score descending, then total time
// ascending (faster wins ties), then display name for stability. Attempts
// still in progress rank with their current partial values and are flagged.
func ProjectLeaderboard(sessionID string, attempts []domain.Attempt, now time.Time) domain.Leaderboard {
	ranked := make([]domain.Attempt, len(attempts))
	copy(ranked, attempts)

	sort.SliceStable(ranked, func(i, j int) bool {
		if ranked[i].Score != ranked[j].Score {
			return ranked[i].Score > ranked[j].Score
		}
		if ranked[i].TotalTimeSeconds != ranked[j].TotalTimeSeconds {
			return ranked[i].TotalTimeSeconds < ranked[j].TotalTimeSeconds
		}
		return ranked[i].DisplayName < ranked[j].DisplayName
	})

	entries := make([]domain.LeaderboardEntry, 0, len(ranked))
	for rank, attempt := range ranked {
		entries = append(entries, domain.LeaderboardEntry{
			Rank:             rank,
			Badge:            domain.BadgeFor(rank),
			AttemptID:        attempt.ID,
			DisplayName:      attempt.DisplayName,
			Score:            attempt.Score,
			TotalTimeSeconds: attempt.TotalTimeSeconds,
			InProgress:       !attempt.Completed,
		})
	}

	return domain.Leaderboard{
		SessionID: sessionID,
		Entries:   entries,
		UpdatedAt: now,
	}
}

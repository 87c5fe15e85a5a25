package app

import (
	"sort"

	"quiz-live-service/internal/domain"
)

// Rank orders players by score, keeping join order for ties, and assigns 1-based positions.
func Rank(players []domain.Player) []domain.RankedPlayer {
	ordered := make([]domain.Player, len(players))
	copy(ordered, players)
	sort.SliceStable(ordered, func(i, j int) bool {
		return ordered[i].Score > ordered[j].Score
	})

	out := make([]domain.RankedPlayer, 0, len(ordered))
	for i, p := range ordered {
		out = append(out, domain.RankedPlayer{
			Rank:        i + 1,
			PlayerID:    p.ID,
			DisplayName: p.DisplayName,
			AvatarToken: p.AvatarToken,
			Score:       p.Score,
		})
	}
	return out
}

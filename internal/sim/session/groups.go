package session

import (
	"fmt"
	"math/rand"

	"github.com/IenDonshin/LEVIATHAN-JP/internal/sim/round"
)

type Group struct {
	ID      string           `json:"id"`
	Members []round.PlayerID `json:"members"`
}

// FormGroups shuffles players with seed and cuts them into groups of size.
// Groups formed for round 1 are kept for the whole session.
func FormGroups(players []round.PlayerID, size int, seed int64) ([]Group, error) {
	if size < 2 {
		return nil, fmt.Errorf("group size must be >= 2, got %d", size)
	}
	if len(players) == 0 || len(players)%size != 0 {
		return nil, fmt.Errorf("%d players cannot be split into groups of %d", len(players), size)
	}
	seen := make(map[round.PlayerID]bool, len(players))
	for _, id := range players {
		if id == "" {
			return nil, fmt.Errorf("empty player id")
		}
		if seen[id] {
			return nil, fmt.Errorf("duplicate player id %s", id)
		}
		seen[id] = true
	}

	// Shuffle a sorted copy so the result only depends on the set and the seed.
	order := round.SortIDs(players)
	rng := rand.New(rand.NewSource(seed))
	rng.Shuffle(len(order), func(i, j int) { order[i], order[j] = order[j], order[i] })

	groups := make([]Group, 0, len(order)/size)
	for i := 0; i < len(order); i += size {
		groups = append(groups, Group{
			ID:      fmt.Sprintf("G%d", len(groups)+1),
			Members: round.SortIDs(order[i : i+size]),
		})
	}
	return groups, nil
}

package round

import (
	"fmt"

	"github.com/IenDonshin/LEVIATHAN-JP/internal/sim/params"
)

// Carry is the typed per-player state handed from one round to the next.
type Carry struct {
	Player PlayerID `json:"player"`
	// Round is the round this carry seeds.
	Round            int     `json:"round"`
	Power            float64 `json:"power"`
	Balance          float64 `json:"balance"`
	CumulativePayoff float64 `json:"cumulative_payoff"`
}

// Initial builds the round-1 carry for members.
func Initial(p params.Params, members []PlayerID) []Carry {
	out := make([]Carry, 0, len(members))
	for _, id := range SortIDs(members) {
		out = append(out, Carry{
			Player:  id,
			Round:   1,
			Power:   p.InitialPower,
			Balance: p.StartingBalance(),
		})
	}
	return out
}

// Propagate derives the next round's carry from a sealed result. ok is false
// when res is the terminal round and nothing is propagated.
func Propagate(p params.Params, res Result) (next []Carry, ok bool) {
	if res.Group.Round >= p.NumRounds {
		return nil, false
	}
	next = make([]Carry, 0, len(res.Players))
	for _, rec := range res.Players {
		next = append(next, Carry{
			Player:           rec.Player,
			Round:            rec.Round + 1,
			Power:            rec.PowerAfter,
			Balance:          p.StartingBalance(),
			CumulativePayoff: rec.CumulativePayoff,
		})
	}
	return next, true
}

func checkCarries(round int, carries []Carry) error {
	if len(carries) == 0 {
		return fmt.Errorf("round %d: empty group", round)
	}
	seen := make(map[PlayerID]bool, len(carries))
	for _, c := range carries {
		if c.Player == "" {
			return fmt.Errorf("round %d: empty player id", round)
		}
		if seen[c.Player] {
			return fmt.Errorf("round %d: duplicate player %s", round, c.Player)
		}
		seen[c.Player] = true
		if c.Round != round {
			return fmt.Errorf("round %d: carry for %s seeds round %d", round, c.Player, c.Round)
		}
		if c.Power < 0 {
			return fmt.Errorf("round %d: negative power for %s", round, c.Player)
		}
	}
	return nil
}

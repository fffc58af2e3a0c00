// Package settle turns one group's round decisions into sealed payoffs.
//
// The stages run in a fixed order over a round.State: contributions, power
// transfers, punishment and payoff aggregation. Each stage is a pure function
// of the parameters, the state left by the previous stage and the decisions
// for its phase.
package settle

import (
	"fmt"

	"github.com/IenDonshin/LEVIATHAN-JP/internal/sim/params"
	"github.com/IenDonshin/LEVIATHAN-JP/internal/sim/round"
)

// Settle runs every stage for one group and seals the result. Missing
// decisions are treated as explicit zeros.
func Settle(p params.Params, groupID string, r int, carries []round.Carry, d round.Decisions) (round.Result, error) {
	s, err := round.NewState(groupID, r, carries)
	if err != nil {
		return round.Result{}, err
	}
	d = d.WithDefaults(s.Members())
	if err := Run(p, s, d); err != nil {
		return round.Result{}, err
	}
	return s.Seal()
}

// Run applies all settlement stages to an open state without sealing it.
func Run(p params.Params, s *round.State, d round.Decisions) error {
	if err := SettleContributions(p, s, d.Contributions); err != nil {
		return fmt.Errorf("round %d %s: contributions: %w", s.Round(), s.GroupID(), err)
	}
	if err := SettleTransfers(p, s, d.Transfers); err != nil {
		return fmt.Errorf("round %d %s: transfers: %w", s.Round(), s.GroupID(), err)
	}
	if err := SettlePunishments(p, s, d.Punishments); err != nil {
		return fmt.Errorf("round %d %s: punishments: %w", s.Round(), s.GroupID(), err)
	}
	return Finish(p, s, d)
}

// Finish records which decisions were defaulted and aggregates payoffs.
func Finish(p params.Params, s *round.State, d round.Decisions) error {
	for _, id := range round.SortIDs(keysOfPhases(d.Defaulted)) {
		for _, ph := range d.Defaulted[id] {
			if err := s.MarkDefaulted(id, ph); err != nil {
				return err
			}
		}
	}
	return Aggregate(p, s)
}

func keysOfPhases(m map[round.PlayerID][]round.Phase) []round.PlayerID {
	out := make([]round.PlayerID, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	return out
}

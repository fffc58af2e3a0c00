package settle

import (
	"github.com/IenDonshin/LEVIATHAN-JP/internal/sim/params"
	"github.com/IenDonshin/LEVIATHAN-JP/internal/sim/round"
)

// Aggregate computes every member's round payoff and adds it to the running
// total.
func Aggregate(p params.Params, s *round.State) error {
	if err := s.Expect(round.StagePaid); err != nil {
		return err
	}
	for _, id := range s.Members() {
		rec, err := s.Player(id)
		if err != nil {
			return err
		}
		rec.PayoffBeforePunishment = rec.AvailableBeforeContribution - rec.Contribution + rec.IndividualShare
		rec.RoundPayoff = rec.PayoffBeforePunishment -
			rec.PunishmentGivenCost -
			rec.PunishmentReceivedLoss -
			rec.TransferCost
		rec.CumulativePayoff += rec.RoundPayoff
	}
	return s.Advance(round.StagePaid)
}

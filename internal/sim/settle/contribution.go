package settle

import (
	"fmt"

	"github.com/IenDonshin/LEVIATHAN-JP/internal/sim/params"
	"github.com/IenDonshin/LEVIATHAN-JP/internal/sim/round"
)

// SettleContributions moves each member's contribution into the pool and
// fills the group totals. Every member must have an entry.
func SettleContributions(p params.Params, s *round.State, contributions map[round.PlayerID]float64) error {
	if err := s.Expect(round.StageContributed); err != nil {
		return err
	}
	members := s.Members()
	g, err := s.Group()
	if err != nil {
		return err
	}
	recs := make([]*round.PlayerRecord, 0, len(members))
	var total float64
	for _, id := range members {
		c, ok := contributions[id]
		if !ok {
			return fmt.Errorf("%w: no contribution for %s", round.ErrIncomplete, id)
		}
		rec, err := s.Player(id)
		if err != nil {
			return err
		}
		if err := checkContribution(p, id, c, rec.AvailableBeforeContribution); err != nil {
			return err
		}
		recs = append(recs, rec)
		total += c
	}
	for id := range contributions {
		if !s.IsMember(id) {
			return reject(ErrUnknownPlayer, id, "", "contribution from outside the group")
		}
	}

	share := p.IndividualShare(total, len(members))
	g.TotalContribution = total
	g.PublicGood = total * p.ContributionMultiplier
	g.IndividualShare = share
	for _, rec := range recs {
		rec.Contribution = contributions[rec.Player]
		rec.IndividualShare = share
		rec.AvailableBeforePunishment = rec.AvailableBeforeContribution - rec.Contribution
		rec.AvailableAfter = rec.AvailableBeforePunishment
	}
	return s.Advance(round.StageContributed)
}

package settle

import (
	"math"

	"github.com/IenDonshin/LEVIATHAN-JP/internal/sim/params"
	"github.com/IenDonshin/LEVIATHAN-JP/internal/sim/round"
)

// SettlePunishments charges each punisher for the points sent and applies the
// resulting loss to the victims. Damage scales with the punisher's power after
// this round's transfers.
func SettlePunishments(p params.Params, s *round.State, punishments map[round.PlayerID]map[round.PlayerID]float64) error {
	if err := s.Expect(round.StagePunished); err != nil {
		return err
	}
	g, err := s.Group()
	if err != nil {
		return err
	}
	open := p.PunishmentOpen(s.Round())
	g.PunishmentPhase = open

	received := make(map[round.PlayerID]float64)
	loss := make(map[round.PlayerID]float64)
	for _, from := range round.SortIDs(keysOf(punishments)) {
		row := punishments[from]
		if !s.IsMember(from) {
			if len(round.CopyRow(row)) > 0 {
				return reject(ErrUnknownPlayer, from, "", "punishment from outside the group")
			}
			continue
		}
		rec, err := s.Player(from)
		if err != nil {
			return err
		}
		var sent float64
		for _, to := range round.SortedKeys(row) {
			pts := row[to]
			if pts == 0 {
				continue
			}
			if !open {
				return reject(ErrPunishmentNotAllowed, from, to, "round %d", s.Round())
			}
			if to == from {
				continue
			}
			if !s.IsMember(to) {
				return reject(ErrUnknownPlayer, from, to, "")
			}
			if err := checkPoints(p, from, to, pts); err != nil {
				return err
			}
			if rec.PunishmentSent == nil {
				rec.PunishmentSent = make(map[round.PlayerID]float64)
			}
			rec.PunishmentSent[to] = pts
			sent += pts
			received[to] += pts
			loss[to] += pts * p.PowerEffectiveness * rec.PowerAfter
		}
		rec.PointsSent = sent
		attempted := sent * p.PunishmentCost
		budget := math.Max(0, rec.AvailableBeforePunishment)
		rec.PunishmentGivenCost = attempted
		if attempted > budget+params.Eps {
			rec.PunishmentGivenCost = budget
			rec.CostClamped = true
		}
	}

	for _, id := range s.Members() {
		rec, err := s.Player(id)
		if err != nil {
			return err
		}
		rec.PointsReceived = received[id]
		rec.PunishmentReceivedLoss = loss[id]
		rec.AvailableAfter = rec.AvailableBeforePunishment - rec.PunishmentGivenCost - rec.PunishmentReceivedLoss
	}
	return s.Advance(round.StagePunished)
}

package settle

import (
	"math"

	"github.com/IenDonshin/LEVIATHAN-JP/internal/sim/params"
	"github.com/IenDonshin/LEVIATHAN-JP/internal/sim/round"
)

// SettleTransfers applies all power transfers of the round simultaneously.
// When the phase is closed power carries through unchanged and any non-zero
// transfer is an error.
func SettleTransfers(p params.Params, s *round.State, transfers map[round.PlayerID]map[round.PlayerID]float64) error {
	if err := s.Expect(round.StageTransferred); err != nil {
		return err
	}
	g, err := s.Group()
	if err != nil {
		return err
	}
	members := s.Members()
	open := p.TransferOpen(s.Round())
	g.TransferPhase = open

	out := make(map[round.PlayerID]float64, len(members))
	in := make(map[round.PlayerID]float64, len(members))
	for _, giver := range round.SortIDs(keysOf(transfers)) {
		row := transfers[giver]
		if !s.IsMember(giver) {
			if len(round.CopyRow(row)) > 0 {
				return reject(ErrUnknownPlayer, giver, "", "transfer from outside the group")
			}
			continue
		}
		rec, err := s.Player(giver)
		if err != nil {
			return err
		}
		for _, to := range round.SortedKeys(row) {
			amt := row[to]
			if amt == 0 {
				continue
			}
			if !open {
				return reject(ErrTransferNotAllowed, giver, to, "round %d", s.Round())
			}
			if to == giver {
				// Rejected at validation; never moves power.
				continue
			}
			if !s.IsMember(to) {
				return reject(ErrUnknownPlayer, giver, to, "")
			}
			if amt < 0 || math.IsNaN(amt) || math.IsInf(amt, 0) {
				return reject(ErrTransferUnitViolation, giver, to, "amount %g", amt)
			}
			out[giver] += amt
			in[to] += amt
			if rec.TransferSent == nil {
				rec.TransferSent = make(map[round.PlayerID]float64)
			}
			rec.TransferSent[to] = amt
		}
		if out[giver] > rec.PowerBefore+params.Eps {
			return reject(ErrTransferExceedsPower, giver, "", "%g > %g", out[giver], rec.PowerBefore)
		}
	}

	var totalAfter float64
	for _, id := range members {
		rec, err := s.Player(id)
		if err != nil {
			return err
		}
		rec.PowerOut = out[id]
		rec.PowerIn = in[id]
		rec.PowerAfter = math.Max(0, rec.PowerBefore-out[id]+in[id])
		rec.TransferCost = p.TransferCost(out[id])
		rec.AvailableBeforePunishment -= rec.TransferCost
		rec.AvailableAfter = rec.AvailableBeforePunishment
		totalAfter += rec.PowerAfter
	}
	g.TotalPowerAfter = totalAfter
	return s.Advance(round.StageTransferred)
}

func keysOf(m map[round.PlayerID]map[round.PlayerID]float64) []round.PlayerID {
	out := make([]round.PlayerID, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	return out
}

package settle

import (
	"math"

	"github.com/IenDonshin/LEVIATHAN-JP/internal/sim/params"
	"github.com/IenDonshin/LEVIATHAN-JP/internal/sim/round"
)

// unitTol is the relative tolerance used when checking that a transfer is a
// whole number of transfer units.
const unitTol = 1e-6

// Rules validates decisions against a group's current round state. It is
// safe for concurrent use while the state is not being settled.
type Rules struct {
	p params.Params
	s *round.State
}

func NewRules(p params.Params, s *round.State) *Rules {
	return &Rules{p: p, s: s}
}

// Validator returns the barrier hook for phase.
func (r *Rules) Validator(phase round.Phase) round.Validator {
	return func(id round.PlayerID, sub round.Submission) error {
		return r.Check(phase, id, sub)
	}
}

func (r *Rules) Check(phase round.Phase, id round.PlayerID, sub round.Submission) error {
	switch phase {
	case round.PhaseContribution:
		return r.Contribution(id, sub.Contribution)
	case round.PhaseTransfer:
		return r.Transfers(id, sub.Targets)
	case round.PhasePunishment:
		return r.Punishments(id, sub.Targets)
	default:
		return reject(ErrInvalidPoints, id, "", "unknown phase %q", phase)
	}
}

func (r *Rules) Contribution(id round.PlayerID, amount float64) error {
	v, err := r.s.View(id)
	if err != nil {
		return err
	}
	return checkContribution(r.p, id, amount, v.Self.AvailableBeforeContribution)
}

func checkContribution(p params.Params, id round.PlayerID, amount, available float64) error {
	if math.IsNaN(amount) || math.IsInf(amount, 0) {
		return reject(ErrInvalidContribution, id, "", "not a number")
	}
	if amount < 0 {
		return reject(ErrInvalidContribution, id, "", "%g < 0", amount)
	}
	if amount > available+params.Eps {
		return reject(ErrInvalidContribution, id, "", "%g > %g", amount, available)
	}
	if p.IntegerContribution && amount != math.Trunc(amount) {
		return reject(ErrInvalidContribution, id, "", "%g is not a whole number", amount)
	}
	return nil
}

func (r *Rules) Transfers(id round.PlayerID, row map[round.PlayerID]float64) error {
	v, err := r.s.View(id)
	if err != nil {
		return err
	}
	open := r.p.TransferOpen(r.s.Round())
	var out float64
	for _, to := range round.SortedKeys(row) {
		amt := row[to]
		if amt == 0 {
			continue
		}
		if !open {
			return reject(ErrTransferNotAllowed, id, to, "round %d", r.s.Round())
		}
		if err := r.checkTarget(id, to); err != nil {
			return err
		}
		if math.IsNaN(amt) || math.IsInf(amt, 0) || amt < 0 {
			return reject(ErrTransferUnitViolation, id, to, "amount %g", amt)
		}
		if !onUnit(amt, r.p.PunishmentTransferUnit) {
			return reject(ErrTransferUnitViolation, id, to, "%g is not a multiple of %g", amt, r.p.PunishmentTransferUnit)
		}
		out += amt
	}
	if out > v.Self.PowerBefore+params.Eps {
		return reject(ErrTransferExceedsPower, id, "", "%g > %g", out, v.Self.PowerBefore)
	}
	if cost := r.p.TransferCost(out); cost > v.Self.AvailableBeforePunishment+params.Eps {
		return reject(ErrInsufficientBalance, id, "", "transfer cost %g > %g", cost, v.Self.AvailableBeforePunishment)
	}
	return nil
}

func (r *Rules) Punishments(id round.PlayerID, row map[round.PlayerID]float64) error {
	v, err := r.s.View(id)
	if err != nil {
		return err
	}
	open := r.p.PunishmentOpen(r.s.Round())
	var total float64
	for _, to := range round.SortedKeys(row) {
		pts := row[to]
		if pts == 0 {
			continue
		}
		if !open {
			return reject(ErrPunishmentNotAllowed, id, to, "round %d", r.s.Round())
		}
		if err := r.checkTarget(id, to); err != nil {
			return err
		}
		if err := checkPoints(r.p, id, to, pts); err != nil {
			return err
		}
		total += pts
	}
	if r.p.DeductionPoints > 0 && total > r.p.DeductionPoints+params.Eps {
		return reject(ErrPunishmentCapExceeded, id, "", "total %g > budget %g", total, r.p.DeductionPoints)
	}
	// The total budget is what the balance can pay for. Transfer costs of
	// this round have already reduced it.
	if cost := total * r.p.PunishmentCost; cost > v.Self.AvailableBeforePunishment+params.Eps {
		return reject(ErrPunishmentCapExceeded, id, "", "punishment cost %g > balance %g", cost, v.Self.AvailableBeforePunishment)
	}
	return nil
}

func (r *Rules) checkTarget(id, to round.PlayerID) error {
	if to == id {
		return reject(ErrSelfTargetingRejected, id, to, "")
	}
	if !r.s.IsMember(to) {
		return reject(ErrUnknownPlayer, id, to, "")
	}
	return nil
}

func checkPoints(p params.Params, id, to round.PlayerID, pts float64) error {
	if math.IsNaN(pts) || math.IsInf(pts, 0) || pts < 0 {
		return reject(ErrInvalidPoints, id, to, "points %g", pts)
	}
	if p.IntegerPoints && pts != math.Trunc(pts) {
		return reject(ErrInvalidPoints, id, to, "%g is not a whole number", pts)
	}
	if pts > p.PerTargetDPLimit+params.Eps {
		return reject(ErrPunishmentCapExceeded, id, to, "%g > %g", pts, p.PerTargetDPLimit)
	}
	return nil
}

func onUnit(amount, unit float64) bool {
	if unit <= 0 {
		return false
	}
	q := amount / unit
	return math.Abs(q-math.Round(q)) <= unitTol*math.Max(1, math.Abs(q))
}

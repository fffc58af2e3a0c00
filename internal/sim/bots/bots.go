// Package bots supplies scripted players for headless sessions.
package bots

import (
	"context"
	"math"
	"math/rand"
	"sync"

	"github.com/IenDonshin/LEVIATHAN-JP/internal/sim/params"
	"github.com/IenDonshin/LEVIATHAN-JP/internal/sim/round"
)

// Rule is the fixed answer a scripted player gives every round.
type Rule struct {
	Contribution  float64
	Punishment    float64
	PowerTransfer float64
}

// RuleFor returns the scripted answers used for each treatment. Unknown
// treatments behave like fixed.
func RuleFor(treatment string) Rule {
	switch treatment {
	case params.TreatmentTransferFree, params.TreatmentTransferCost:
		return Rule{Contribution: 10, Punishment: 1, PowerTransfer: 0.1}
	default:
		return Rule{}
	}
}

// Scripted sends the same amounts to every other member of the group.
type Scripted struct {
	p    params.Params
	rule Rule
}

func NewScripted(p params.Params) *Scripted {
	return &Scripted{p: p, rule: RuleFor(p.Treatment())}
}

func NewScriptedRule(p params.Params, rule Rule) *Scripted {
	return &Scripted{p: p, rule: rule}
}

func (b *Scripted) Decide(ctx context.Context, phase round.Phase, v round.View) (round.Submission, error) {
	if err := ctx.Err(); err != nil {
		return round.Submission{}, err
	}
	switch phase {
	case round.PhaseContribution:
		return round.Submission{Contribution: math.Min(b.rule.Contribution, v.Self.AvailableBeforeContribution)}, nil
	case round.PhaseTransfer:
		amt := b.rule.PowerTransfer
		if amt <= 0 || amt*float64(len(v.Others)) > v.Self.PowerBefore+params.Eps {
			return round.Submission{}, nil
		}
		if b.p.TransferCost(amt*float64(len(v.Others))) > v.Self.AvailableBeforePunishment+params.Eps {
			return round.Submission{}, nil
		}
		return round.Submission{Targets: toEveryone(v, amt)}, nil
	case round.PhasePunishment:
		pts := math.Min(b.rule.Punishment, b.p.PerTargetDPLimit)
		total := pts * float64(len(v.Others))
		if pts <= 0 || total*b.p.PunishmentCost > v.Self.AvailableBeforePunishment+params.Eps {
			return round.Submission{}, nil
		}
		if b.p.DeductionPoints > 0 && total > b.p.DeductionPoints {
			return round.Submission{}, nil
		}
		return round.Submission{Targets: toEveryone(v, pts)}, nil
	}
	return round.Submission{}, nil
}

func toEveryone(v round.View, amount float64) map[round.PlayerID]float64 {
	out := make(map[round.PlayerID]float64, len(v.Others))
	for _, o := range v.Others {
		out[o.Player] = amount
	}
	return out
}

// Random answers with seeded random amounts inside the caps. With
// probability Mischief it first sends an answer that must be rejected, which
// exercises the re-prompt path.
type Random struct {
	p        params.Params
	Mischief float64

	mu  sync.Mutex
	rng *rand.Rand
}

func NewRandom(p params.Params, seed int64) *Random {
	return &Random{p: p, rng: rand.New(rand.NewSource(seed))}
}

func (b *Random) Decide(ctx context.Context, phase round.Phase, v round.View) (round.Submission, error) {
	if err := ctx.Err(); err != nil {
		return round.Submission{}, err
	}
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.Mischief > 0 && b.rng.Float64() < b.Mischief {
		return b.invalid(phase, v), nil
	}
	switch phase {
	case round.PhaseContribution:
		return round.Submission{Contribution: b.contribution(v)}, nil
	case round.PhaseTransfer:
		return round.Submission{Targets: b.transfers(v)}, nil
	case round.PhasePunishment:
		return round.Submission{Targets: b.punishments(v)}, nil
	}
	return round.Submission{}, nil
}

func (b *Random) contribution(v round.View) float64 {
	max := v.Self.AvailableBeforeContribution
	if max <= 0 {
		return 0
	}
	if b.p.IntegerContribution {
		return float64(b.rng.Intn(int(math.Floor(max)) + 1))
	}
	return b.rng.Float64() * max
}

func (b *Random) transfers(v round.View) map[round.PlayerID]float64 {
	unit := b.p.PunishmentTransferUnit
	if unit <= 0 || len(v.Others) == 0 {
		return nil
	}
	units := int(math.Floor(v.Self.PowerBefore/unit + params.Eps))
	if rate := b.p.TransferCost(unit); rate > 0 {
		if afford := int(math.Floor(v.Self.AvailableBeforePunishment/rate + params.Eps)); afford < units {
			units = afford
		}
	}
	if units <= 0 {
		return nil
	}
	give := b.rng.Intn(units + 1)
	out := map[round.PlayerID]float64{}
	for i := 0; i < give; i++ {
		to := v.Others[b.rng.Intn(len(v.Others))].Player
		out[to]++
	}
	for to, n := range out {
		out[to] = n * unit
	}
	return out
}

func (b *Random) punishments(v round.View) map[round.PlayerID]float64 {
	budget := math.Inf(1)
	if b.p.PunishmentCost > 0 {
		budget = math.Floor(v.Self.AvailableBeforePunishment/b.p.PunishmentCost + params.Eps)
	}
	if b.p.DeductionPoints > 0 {
		budget = math.Min(budget, b.p.DeductionPoints)
	}
	out := map[round.PlayerID]float64{}
	avg := v.OthersAverageContribution()
	for _, o := range v.Others {
		// Free riders are punished more often.
		if o.Contribution >= avg && b.rng.Float64() < 0.7 {
			continue
		}
		pts := float64(b.rng.Intn(int(b.p.PerTargetDPLimit) + 1))
		pts = math.Min(pts, budget)
		if pts <= 0 {
			continue
		}
		out[o.Player] = pts
		budget -= pts
	}
	return out
}

func (b *Random) invalid(phase round.Phase, v round.View) round.Submission {
	switch phase {
	case round.PhaseContribution:
		return round.Submission{Contribution: v.Self.AvailableBeforeContribution + 1}
	case round.PhaseTransfer:
		return round.Submission{Targets: map[round.PlayerID]float64{v.Self.Player: b.p.PunishmentTransferUnit}}
	default:
		return round.Submission{Targets: map[round.PlayerID]float64{v.Self.Player: 1}}
	}
}

// Package params holds the immutable per-session Parameter Set.
package params

import (
	"errors"
	"fmt"
	"math"
	"os"

	"gopkg.in/yaml.v3"
)

// Eps is the tolerance used for every floating comparison in settlement.
const Eps = 1e-9

// Treatment names as used by rooms and session configs.
const (
	TreatmentFixed        = "fixed"
	TreatmentTransferFree = "transfer_free"
	TreatmentTransferCost = "transfer_cost"
)

type Params struct {
	Endowment              float64 `yaml:"endowment" json:"endowment"`
	ContributionMultiplier float64 `yaml:"contribution_multiplier" json:"contribution_multiplier"`
	PlayersPerGroup        int     `yaml:"players_per_group" json:"players_per_group"`
	NumRounds              int     `yaml:"num_rounds" json:"num_rounds"`

	PunishmentCost     float64 `yaml:"punishment_cost" json:"punishment_cost"`
	PowerEffectiveness float64 `yaml:"power_effectiveness" json:"power_effectiveness"`
	PerTargetDPLimit   float64 `yaml:"per_target_dp_limit" json:"per_target_dp_limit"`
	// Total points a punisher may send per round. Zero disables the budget.
	DeductionPoints      float64 `yaml:"deduction_points" json:"deduction_points"`
	PunishmentStartRound int     `yaml:"punishment_start_round" json:"punishment_start_round"`
	IntegerPoints        bool    `yaml:"integer_points" json:"integer_points"`

	InitialPower             float64 `yaml:"initial_power" json:"initial_power"`
	PowerTransferAllowed     bool    `yaml:"power_transfer_allowed" json:"power_transfer_allowed"`
	CostlyPunishmentTransfer bool    `yaml:"costly_punishment_transfer" json:"costly_punishment_transfer"`
	PunishmentTransferUnit   float64 `yaml:"punishment_transfer_unit" json:"punishment_transfer_unit"`
	PowerTransferCostRate    float64 `yaml:"power_transfer_cost_rate" json:"power_transfer_cost_rate"`
	TransferUnlockRound      int     `yaml:"transfer_unlock_round" json:"transfer_unlock_round"`

	IntegerContribution bool    `yaml:"integer_contribution" json:"integer_contribution"`
	RoundLevy           float64 `yaml:"round_levy" json:"round_levy"`

	// Payment conversion, applied only to the final result.
	ParticipationFee float64 `yaml:"participation_fee" json:"participation_fee"`
	CurrencyPerPoint float64 `yaml:"real_world_currency_per_point" json:"real_world_currency_per_point"`
}

// Defaults mirrors the fixed-power session of the lab deployment.
func Defaults() Params {
	return Params{
		Endowment:              100,
		ContributionMultiplier: 1.6,
		PlayersPerGroup:        5,
		NumRounds:              10,

		PunishmentCost:       1,
		PowerEffectiveness:   3,
		PerTargetDPLimit:     10,
		PunishmentStartRound: 1,
		IntegerPoints:        true,

		InitialPower:           1,
		PunishmentTransferUnit: 0.1,
		TransferUnlockRound:    3,

		IntegerContribution: true,

		ParticipationFee: 500,
		CurrencyPerPoint: 4,
	}
}

func Load(path string) (Params, error) {
	p := Defaults()
	raw, err := os.ReadFile(path)
	if err != nil {
		return p, err
	}
	if err := yaml.Unmarshal(raw, &p); err != nil {
		return p, fmt.Errorf("params.yaml: %w", err)
	}
	p.applyDefaults()
	if err := p.Validate(); err != nil {
		return p, fmt.Errorf("params.yaml: %w", err)
	}
	return p, nil
}

// applyDefaults fills fields that YAML may have zeroed explicitly but that
// have no meaningful zero value.
func (p *Params) applyDefaults() {
	if p.PunishmentStartRound <= 0 {
		p.PunishmentStartRound = 1
	}
	if p.TransferUnlockRound <= 0 {
		p.TransferUnlockRound = 1
	}
	if p.PunishmentTransferUnit <= 0 {
		p.PunishmentTransferUnit = 0.1
	}
}

func (p Params) Validate() error {
	finite := func(name string, v float64) error {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return fmt.Errorf("%s must be finite", name)
		}
		if v < 0 {
			return fmt.Errorf("%s must be >= 0", name)
		}
		return nil
	}
	for _, f := range []struct {
		name string
		v    float64
	}{
		{"endowment", p.Endowment},
		{"contribution_multiplier", p.ContributionMultiplier},
		{"punishment_cost", p.PunishmentCost},
		{"power_effectiveness", p.PowerEffectiveness},
		{"per_target_dp_limit", p.PerTargetDPLimit},
		{"deduction_points", p.DeductionPoints},
		{"initial_power", p.InitialPower},
		{"punishment_transfer_unit", p.PunishmentTransferUnit},
		{"power_transfer_cost_rate", p.PowerTransferCostRate},
		{"round_levy", p.RoundLevy},
		{"participation_fee", p.ParticipationFee},
		{"real_world_currency_per_point", p.CurrencyPerPoint},
	} {
		if err := finite(f.name, f.v); err != nil {
			return err
		}
	}
	if p.Endowment <= 0 {
		return errors.New("endowment must be > 0")
	}
	if p.PlayersPerGroup < 2 {
		return errors.New("players_per_group must be >= 2")
	}
	if p.NumRounds < 1 {
		return errors.New("num_rounds must be >= 1")
	}
	if p.RoundLevy > p.Endowment {
		return errors.New("round_levy must not exceed endowment")
	}
	if p.PunishmentStartRound < 1 || p.TransferUnlockRound < 1 {
		return errors.New("punishment_start_round and transfer_unlock_round must be >= 1")
	}
	if p.PowerTransferAllowed && p.PunishmentTransferUnit <= 0 {
		return errors.New("punishment_transfer_unit must be > 0 when transfers are allowed")
	}
	if p.CostlyPunishmentTransfer && !p.PowerTransferAllowed {
		return errors.New("costly_punishment_transfer requires power_transfer_allowed")
	}
	return nil
}

// Treatment derives the treatment name from the transfer flags.
func (p Params) Treatment() string {
	switch {
	case !p.PowerTransferAllowed:
		return TreatmentFixed
	case p.CostlyPunishmentTransfer:
		return TreatmentTransferCost
	default:
		return TreatmentTransferFree
	}
}

// WithTreatment returns a copy with the transfer flags forced to match name.
func (p Params) WithTreatment(name string) (Params, error) {
	switch name {
	case TreatmentFixed:
		p.PowerTransferAllowed = false
		p.CostlyPunishmentTransfer = false
	case TreatmentTransferFree:
		p.PowerTransferAllowed = true
		p.CostlyPunishmentTransfer = false
	case TreatmentTransferCost:
		p.PowerTransferAllowed = true
		p.CostlyPunishmentTransfer = true
	default:
		return p, fmt.Errorf("unknown treatment %q", name)
	}
	return p, nil
}

// TransferOpen reports whether the power transfer phase runs in round r.
func (p Params) TransferOpen(r int) bool {
	return p.PowerTransferAllowed && r >= p.TransferUnlockRound
}

// PunishmentOpen reports whether the punishment phase runs in round r.
func (p Params) PunishmentOpen(r int) bool {
	return r >= p.PunishmentStartRound
}

// StartingBalance is the spendable balance every player holds when a round opens.
func (p Params) StartingBalance() float64 {
	return p.Endowment - p.RoundLevy
}

// IndividualShare splits the multiplied pool evenly over groupSize members.
// A non-positive groupSize falls back to players_per_group.
func (p Params) IndividualShare(totalContribution float64, groupSize int) float64 {
	if groupSize <= 0 {
		groupSize = p.PlayersPerGroup
	}
	return totalContribution * p.ContributionMultiplier / float64(groupSize)
}

// TransferCost is the monetary cost of moving amount power units.
func (p Params) TransferCost(amount float64) float64 {
	if !p.CostlyPunishmentTransfer || amount <= 0 {
		return 0
	}
	return amount / p.PunishmentTransferUnit * p.PowerTransferCostRate
}

// Payment converts a cumulative payoff into real-world currency including the fee.
func (p Params) Payment(cumulative float64) float64 {
	return cumulative*p.CurrencyPerPoint + p.ParticipationFee
}

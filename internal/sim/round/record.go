package round

// PlayerRecord is one player's state for one round.
type PlayerRecord struct {
	Round  int      `json:"round"`
	Player PlayerID `json:"player"`

	Contribution   float64              `json:"contribution"`
	PunishmentSent map[PlayerID]float64 `json:"punishment_sent,omitempty"`
	TransferSent   map[PlayerID]float64 `json:"transfer_sent,omitempty"`

	PowerBefore float64 `json:"power_before"`
	PowerAfter  float64 `json:"power_after"`
	PowerOut    float64 `json:"power_out"`
	PowerIn     float64 `json:"power_in"`

	AvailableBeforeContribution float64 `json:"available_before_contribution"`
	AvailableBeforePunishment   float64 `json:"available_before_punishment"`
	AvailableAfter              float64 `json:"available_after"`

	IndividualShare        float64 `json:"individual_share"`
	PayoffBeforePunishment float64 `json:"payoff_before_punishment"`

	PointsSent             float64 `json:"points_sent"`
	PointsReceived         float64 `json:"points_received"`
	PunishmentGivenCost    float64 `json:"punishment_given_cost"`
	PunishmentReceivedLoss float64 `json:"punishment_received_loss"`
	TransferCost           float64 `json:"transfer_cost"`

	RoundPayoff      float64 `json:"round_payoff"`
	CumulativePayoff float64 `json:"cumulative_payoff"`

	// CostClamped is set when the punishment cost had to be capped at the
	// available balance during settlement.
	CostClamped bool `json:"cost_clamped,omitempty"`
	// Defaulted lists phases whose decision was supplied by the timeout policy.
	Defaulted []Phase `json:"defaulted,omitempty"`
}

func (r PlayerRecord) clone() PlayerRecord {
	r.PunishmentSent = CopyRow(r.PunishmentSent)
	r.TransferSent = CopyRow(r.TransferSent)
	r.Defaulted = append([]Phase(nil), r.Defaulted...)
	return r
}

type GroupRecord struct {
	Round   int        `json:"round"`
	GroupID string     `json:"group_id"`
	Members []PlayerID `json:"members"`

	TotalContribution float64 `json:"total_contribution"`
	PublicGood        float64 `json:"public_good"`
	IndividualShare   float64 `json:"individual_share"`

	TotalPowerBefore float64 `json:"total_power_before"`
	TotalPowerAfter  float64 `json:"total_power_after"`

	TransferPhase   bool `json:"transfer_phase"`
	PunishmentPhase bool `json:"punishment_phase"`
}

// Result is the sealed output of one group's round.
type Result struct {
	Group   GroupRecord    `json:"group"`
	Players []PlayerRecord `json:"players"`
	Digest  string         `json:"digest"`
}

func (r Result) Player(id PlayerID) (PlayerRecord, bool) {
	for _, p := range r.Players {
		if p.Player == id {
			return p, true
		}
	}
	return PlayerRecord{}, false
}

// Clamped returns the players whose punishment cost was clamped.
func (r Result) Clamped() []PlayerID {
	var out []PlayerID
	for _, p := range r.Players {
		if p.CostClamped {
			out = append(out, p.Player)
		}
	}
	return out
}

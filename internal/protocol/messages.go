package protocol

// CONTRIBUTION (player -> engine)
type ContributionMsg struct {
	Type            string  `json:"type"`
	ProtocolVersion string  `json:"protocol_version"`
	SessionID       string  `json:"session_id"`
	GroupID         string  `json:"group_id,omitempty"`
	Round           int     `json:"round"`
	PlayerID        string  `json:"player_id"`
	Amount          float64 `json:"amount"`
}

// TRANSFER (player -> engine). Targets maps receiver id to power amount.
type TransferMsg struct {
	Type            string             `json:"type"`
	ProtocolVersion string             `json:"protocol_version"`
	SessionID       string             `json:"session_id"`
	GroupID         string             `json:"group_id,omitempty"`
	Round           int                `json:"round"`
	PlayerID        string             `json:"player_id"`
	Targets         map[string]float64 `json:"targets"`
}

// PUNISHMENT (player -> engine). Targets maps victim id to points.
type PunishmentMsg struct {
	Type            string             `json:"type"`
	ProtocolVersion string             `json:"protocol_version"`
	SessionID       string             `json:"session_id"`
	GroupID         string             `json:"group_id,omitempty"`
	Round           int                `json:"round"`
	PlayerID        string             `json:"player_id"`
	Targets         map[string]float64 `json:"targets"`
}

// REJECT (engine -> player): the submission was not admitted and the player
// is asked to answer again.
type RejectMsg struct {
	Type            string `json:"type"`
	ProtocolVersion string `json:"protocol_version"`
	Round           int    `json:"round"`
	PlayerID        string `json:"player_id"`
	Phase           string `json:"phase"`
	Code            string `json:"code"`
	Message         string `json:"message"`
}

// ROUND_RESULT (engine -> player): the settled figures shown on the results screen.
type RoundResultMsg struct {
	Type            string `json:"type"`
	ProtocolVersion string `json:"protocol_version"`
	Round           int    `json:"round"`
	PlayerID        string `json:"player_id"`

	TotalContribution      float64 `json:"total_contribution"`
	PublicGood             float64 `json:"public_good"`
	Contribution           float64 `json:"contribution"`
	PayoffBeforePunishment float64 `json:"payoff_before_punishment"`
	PointsSent             float64 `json:"points_sent"`
	PointsReceived         float64 `json:"points_received"`
	PunishmentGivenCost    float64 `json:"punishment_given_cost"`
	PunishmentReceivedLoss float64 `json:"punishment_received_loss"`
	TransferCost           float64 `json:"transfer_cost"`
	RoundPayoff            float64 `json:"round_payoff"`
	CumulativePayoff       float64 `json:"cumulative_payoff"`
	NextRoundPower         float64 `json:"next_round_power"`
	IsFinalRound           bool    `json:"is_final_round"`
}

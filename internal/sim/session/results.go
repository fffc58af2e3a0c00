package session

import (
	"github.com/IenDonshin/LEVIATHAN-JP/internal/protocol"
	"github.com/IenDonshin/LEVIATHAN-JP/internal/sim/params"
	"github.com/IenDonshin/LEVIATHAN-JP/internal/sim/round"
	"github.com/IenDonshin/LEVIATHAN-JP/internal/sim/settle"
)

// FinalResult sums a player's history for the final results screen.
type FinalResult struct {
	Player              round.PlayerID `json:"player"`
	GroupID             string         `json:"group_id"`
	Rounds              int            `json:"rounds"`
	TotalContribution   float64        `json:"total_contribution"`
	TotalPointsSent     float64        `json:"total_points_sent"`
	TotalPointsReceived float64        `json:"total_points_received"`
	TotalPayoff         float64        `json:"total_payoff"`
	AveragePayoff       float64        `json:"average_payoff"`
	FinalPower          float64        `json:"final_power"`
	// Payment is the payoff converted to currency, participation fee included.
	Payment float64 `json:"payment"`
}

func finalResult(p params.Params, groupID string, hist []round.PlayerRecord) FinalResult {
	fr := FinalResult{GroupID: groupID, Rounds: len(hist)}
	for _, rec := range hist {
		fr.Player = rec.Player
		fr.TotalContribution += rec.Contribution
		fr.TotalPointsSent += rec.PointsSent
		fr.TotalPointsReceived += rec.PointsReceived
		fr.TotalPayoff += rec.RoundPayoff
		fr.FinalPower = rec.PowerAfter
	}
	if len(hist) > 0 {
		fr.AveragePayoff = fr.TotalPayoff / float64(len(hist))
	}
	fr.Payment = p.Payment(fr.TotalPayoff)
	return fr
}

// RejectFor builds the wire message sent back for a rejected submission.
func RejectFor(r int, id round.PlayerID, phase round.Phase, err error) protocol.RejectMsg {
	return protocol.RejectMsg{
		Type:            protocol.TypeReject,
		ProtocolVersion: protocol.Version,
		Round:           r,
		PlayerID:        string(id),
		Phase:           string(phase),
		Code:            settle.Code(err),
		Message:         err.Error(),
	}
}

// RoundResultFor builds the results-screen message for id.
func RoundResultFor(res round.Result, id round.PlayerID, final bool) (protocol.RoundResultMsg, bool) {
	rec, ok := res.Player(id)
	if !ok {
		return protocol.RoundResultMsg{}, false
	}
	return protocol.RoundResultMsg{
		Type:                   protocol.TypeRoundResult,
		ProtocolVersion:        protocol.Version,
		Round:                  res.Group.Round,
		PlayerID:               string(id),
		TotalContribution:      res.Group.TotalContribution,
		PublicGood:             res.Group.PublicGood,
		Contribution:           rec.Contribution,
		PayoffBeforePunishment: rec.PayoffBeforePunishment,
		PointsSent:             rec.PointsSent,
		PointsReceived:         rec.PointsReceived,
		PunishmentGivenCost:    rec.PunishmentGivenCost,
		PunishmentReceivedLoss: rec.PunishmentReceivedLoss,
		TransferCost:           rec.TransferCost,
		RoundPayoff:            rec.RoundPayoff,
		CumulativePayoff:       rec.CumulativePayoff,
		NextRoundPower:         rec.PowerAfter,
		IsFinalRound:           final,
	}, true
}

package settle

import (
	"errors"
	"fmt"

	"github.com/IenDonshin/LEVIATHAN-JP/internal/sim/round"
)

var (
	ErrInvalidContribution   = errors.New("contribution out of bounds")
	ErrPunishmentCapExceeded = errors.New("punishment points exceed cap")
	ErrInvalidPoints         = errors.New("punishment points invalid")
	ErrTransferExceedsPower  = errors.New("transfer exceeds available power")
	ErrTransferUnitViolation = errors.New("transfer amount is not a multiple of the transfer unit")
	ErrSelfTargetingRejected = errors.New("players may not target themselves")
	ErrUnknownPlayer         = errors.New("target is not a member of the group")
	ErrTransferNotAllowed    = errors.New("power transfer is not open this round")
	ErrPunishmentNotAllowed  = errors.New("punishment is not open this round")
	ErrInsufficientBalance   = errors.New("decision costs more than the available balance")
)

// DecisionError reports which player (and target) a rejected decision came from.
type DecisionError struct {
	Kind   error
	Player round.PlayerID
	Target round.PlayerID
	Detail string
}

func (e *DecisionError) Error() string {
	msg := fmt.Sprintf("%s: %v", e.Player, e.Kind)
	if e.Target != "" {
		msg = fmt.Sprintf("%s -> %s: %v", e.Player, e.Target, e.Kind)
	}
	if e.Detail != "" {
		msg += " (" + e.Detail + ")"
	}
	return msg
}

func (e *DecisionError) Unwrap() error { return e.Kind }

func reject(kind error, player, target round.PlayerID, format string, args ...any) error {
	return &DecisionError{Kind: kind, Player: player, Target: target, Detail: fmt.Sprintf(format, args...)}
}

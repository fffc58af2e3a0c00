package settle

import (
	"errors"

	"github.com/IenDonshin/LEVIATHAN-JP/internal/protocol"
	"github.com/IenDonshin/LEVIATHAN-JP/internal/sim/round"
)

var codeOf = []struct {
	err  error
	code string
}{
	{ErrInvalidContribution, protocol.ErrInvalidContribution},
	{ErrPunishmentCapExceeded, protocol.ErrPunishmentCapExceeded},
	{ErrInvalidPoints, protocol.ErrInvalidPoints},
	{ErrTransferExceedsPower, protocol.ErrTransferExceedsPower},
	{ErrTransferUnitViolation, protocol.ErrTransferUnitViolation},
	{ErrSelfTargetingRejected, protocol.ErrSelfTargeting},
	{ErrUnknownPlayer, protocol.ErrUnknownPlayer},
	{ErrTransferNotAllowed, protocol.ErrTransferNotAllowed},
	{ErrPunishmentNotAllowed, protocol.ErrPunishmentNotAllowed},
	{ErrInsufficientBalance, protocol.ErrInsufficientBalance},
	{round.ErrPhaseClosed, protocol.ErrPhaseClosed},
	{round.ErrDuplicateSubmission, protocol.ErrDuplicate},
	{round.ErrNotMember, protocol.ErrNotMember},
	{round.ErrSealed, protocol.ErrStale},
}

// Code maps an error returned by validation or a barrier to its wire code.
func Code(err error) string {
	if err == nil {
		return ""
	}
	for _, c := range codeOf {
		if errors.Is(err, c.err) {
			return c.code
		}
	}
	return protocol.ErrInternal
}

package protocol

const (
	// Protocol/transport validation.
	ErrProtoBadRequest = "E_PROTO_BAD_REQUEST"

	// Phase/barrier state.
	ErrPhaseClosed = "E_PHASE_CLOSED"
	ErrDuplicate   = "E_DUPLICATE"
	ErrNotMember   = "E_NOT_MEMBER"
	ErrStale       = "E_STALE"

	// Decision validation.
	ErrInvalidContribution   = "E_INVALID_CONTRIBUTION"
	ErrPunishmentCapExceeded = "E_PUNISHMENT_CAP_EXCEEDED"
	ErrInvalidPoints         = "E_INVALID_POINTS"
	ErrTransferExceedsPower  = "E_TRANSFER_EXCEEDS_POWER"
	ErrTransferUnitViolation = "E_TRANSFER_UNIT_VIOLATION"
	ErrSelfTargeting         = "E_SELF_TARGETING"
	ErrUnknownPlayer         = "E_UNKNOWN_PLAYER"
	ErrTransferNotAllowed    = "E_TRANSFER_NOT_ALLOWED"
	ErrPunishmentNotAllowed  = "E_PUNISHMENT_NOT_ALLOWED"
	ErrInsufficientBalance   = "E_INSUFFICIENT_BALANCE"

	ErrInternal = "E_INTERNAL"
)

var knownCodes = map[string]struct{}{
	ErrProtoBadRequest:       {},
	ErrPhaseClosed:           {},
	ErrDuplicate:             {},
	ErrNotMember:             {},
	ErrStale:                 {},
	ErrInvalidContribution:   {},
	ErrPunishmentCapExceeded: {},
	ErrInvalidPoints:         {},
	ErrTransferExceedsPower:  {},
	ErrTransferUnitViolation: {},
	ErrSelfTargeting:         {},
	ErrUnknownPlayer:         {},
	ErrTransferNotAllowed:    {},
	ErrPunishmentNotAllowed:  {},
	ErrInsufficientBalance:   {},
	ErrInternal:              {},
}

func IsKnownCode(code string) bool {
	if code == "" {
		return true
	}
	_, ok := knownCodes[code]
	return ok
}

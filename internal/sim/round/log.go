package round

import "github.com/IenDonshin/LEVIATHAN-JP/internal/sim/params"

// LogEntry records everything needed to re-settle a group's round: the
// inputs (params, carry, decisions) and the sealed output with its digest.
type LogEntry struct {
	SessionID string        `json:"session_id"`
	GroupID   string        `json:"group_id"`
	Round     int           `json:"round"`
	Params    params.Params `json:"params"`
	Carry     []Carry       `json:"carry"`
	Decisions Decisions     `json:"decisions"`
	Result    Result        `json:"result"`
	Digest    string        `json:"digest"`
}

package round

import (
	"errors"
	"sort"
)

// PlayerID identifies a player within a session (participant code or label).
type PlayerID string

type Phase string

const (
	PhaseContribution Phase = "CONTRIBUTION"
	PhaseTransfer     Phase = "TRANSFER"
	PhasePunishment   Phase = "PUNISHMENT"
)

// Phases lists the decision phases in settlement order.
var Phases = []Phase{PhaseContribution, PhaseTransfer, PhasePunishment}

var (
	ErrStageOrder = errors.New("settlement stage out of order")
	ErrSealed     = errors.New("round record is sealed")
	ErrNotMember  = errors.New("player is not a member of this group")
	ErrIncomplete = errors.New("decision set is incomplete")
)

// Submission is one player's answer for one phase. Contribution is used by
// the contribution phase; Targets holds the transfer or punishment row.
type Submission struct {
	Contribution float64              `json:"contribution,omitempty"`
	Targets      map[PlayerID]float64 `json:"targets,omitempty"`
}

// Decisions is the complete decision set of one group for one round.
type Decisions struct {
	Contributions map[PlayerID]float64              `json:"contributions"`
	Transfers     map[PlayerID]map[PlayerID]float64 `json:"transfers,omitempty"`
	Punishments   map[PlayerID]map[PlayerID]float64 `json:"punishments,omitempty"`
	// Defaulted lists, per player, the phases answered by the timeout default.
	Defaulted map[PlayerID][]Phase `json:"defaulted,omitempty"`
}

// WithDefaults returns a copy in which every member has an explicit entry
// for every phase. Missing contributions become zero, missing rows empty.
func (d Decisions) WithDefaults(members []PlayerID) Decisions {
	out := Decisions{
		Contributions: make(map[PlayerID]float64, len(members)),
		Transfers:     make(map[PlayerID]map[PlayerID]float64, len(members)),
		Punishments:   make(map[PlayerID]map[PlayerID]float64, len(members)),
	}
	for _, id := range members {
		out.Contributions[id] = d.Contributions[id]
		out.Transfers[id] = CopyRow(d.Transfers[id])
		out.Punishments[id] = CopyRow(d.Punishments[id])
		if ph := d.Defaulted[id]; len(ph) > 0 {
			if out.Defaulted == nil {
				out.Defaulted = make(map[PlayerID][]Phase)
			}
			out.Defaulted[id] = append([]Phase(nil), ph...)
		}
	}
	return out
}

// MarkDefaulted notes that id's phase decision came from the timeout default.
func (d *Decisions) MarkDefaulted(id PlayerID, phase Phase) {
	if d.Defaulted == nil {
		d.Defaulted = make(map[PlayerID][]Phase)
	}
	for _, p := range d.Defaulted[id] {
		if p == phase {
			return
		}
	}
	d.Defaulted[id] = append(d.Defaulted[id], phase)
}

// Set stores a phase submission into the decision set.
func (d *Decisions) Set(phase Phase, id PlayerID, sub Submission) {
	switch phase {
	case PhaseContribution:
		if d.Contributions == nil {
			d.Contributions = map[PlayerID]float64{}
		}
		d.Contributions[id] = sub.Contribution
	case PhaseTransfer:
		if d.Transfers == nil {
			d.Transfers = map[PlayerID]map[PlayerID]float64{}
		}
		d.Transfers[id] = CopyRow(sub.Targets)
	case PhasePunishment:
		if d.Punishments == nil {
			d.Punishments = map[PlayerID]map[PlayerID]float64{}
		}
		d.Punishments[id] = CopyRow(sub.Targets)
	}
}

// CopyRow copies a target row, dropping zero entries.
func CopyRow(row map[PlayerID]float64) map[PlayerID]float64 {
	out := make(map[PlayerID]float64, len(row))
	for k, v := range row {
		if v != 0 {
			out[k] = v
		}
	}
	return out
}

// SortedKeys returns the row's keys in ascending order so that float sums
// are accumulated in a stable order.
func SortedKeys(row map[PlayerID]float64) []PlayerID {
	keys := make([]PlayerID, 0, len(row))
	for k := range row {
		keys = append(keys, k)
	}
	sortIDs(keys)
	return keys
}

func sortIDs(ids []PlayerID) {
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
}

// SortIDs returns a sorted copy of ids.
func SortIDs(ids []PlayerID) []PlayerID {
	out := append([]PlayerID(nil), ids...)
	sortIDs(out)
	return out
}

package round

import "fmt"

// Stage tracks how far a round has been settled. Stages must be entered in order.
type Stage int

const (
	StageOpen Stage = iota
	StageContributed
	StageTransferred
	StagePunished
	StagePaid
	StageSealed
)

func (s Stage) String() string {
	switch s {
	case StageOpen:
		return "OPEN"
	case StageContributed:
		return "CONTRIBUTED"
	case StageTransferred:
		return "TRANSFERRED"
	case StagePunished:
		return "PUNISHED"
	case StagePaid:
		return "PAID"
	case StageSealed:
		return "SEALED"
	default:
		return fmt.Sprintf("STAGE(%d)", int(s))
	}
}

// State is the mutable store for one group's round. It is created from the
// previous round's carry, mutated by the settlement stages in order and
// frozen by Seal.
type State struct {
	round   int
	groupID string
	members []PlayerID
	players map[PlayerID]*PlayerRecord
	group   GroupRecord
	stage   Stage
}

func NewState(groupID string, round int, carries []Carry) (*State, error) {
	if round < 1 {
		return nil, fmt.Errorf("round must be >= 1, got %d", round)
	}
	if err := checkCarries(round, carries); err != nil {
		return nil, err
	}
	s := &State{
		round:   round,
		groupID: groupID,
		players: make(map[PlayerID]*PlayerRecord, len(carries)),
	}
	for _, c := range carries {
		s.members = append(s.members, c.Player)
		s.players[c.Player] = &PlayerRecord{
			Round:                       round,
			Player:                      c.Player,
			PowerBefore:                 c.Power,
			PowerAfter:                  c.Power,
			AvailableBeforeContribution: c.Balance,
			AvailableBeforePunishment:   c.Balance,
			AvailableAfter:              c.Balance,
			CumulativePayoff:            c.CumulativePayoff,
		}
	}
	sortIDs(s.members)
	s.group = GroupRecord{
		Round:   round,
		GroupID: groupID,
		Members: append([]PlayerID(nil), s.members...),
	}
	for _, id := range s.members {
		s.group.TotalPowerBefore += s.players[id].PowerBefore
	}
	s.group.TotalPowerAfter = s.group.TotalPowerBefore
	return s, nil
}

func (s *State) Round() int      { return s.round }
func (s *State) GroupID() string { return s.groupID }
func (s *State) Stage() Stage    { return s.stage }

// Members returns the group's player ids in ascending order.
func (s *State) Members() []PlayerID {
	return append([]PlayerID(nil), s.members...)
}

func (s *State) IsMember(id PlayerID) bool {
	_, ok := s.players[id]
	return ok
}

// Player returns the mutable record for id.
func (s *State) Player(id PlayerID) (*PlayerRecord, error) {
	if s.stage == StageSealed {
		return nil, ErrSealed
	}
	rec, ok := s.players[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotMember, id)
	}
	return rec, nil
}

// Group returns the mutable group record.
func (s *State) Group() (*GroupRecord, error) {
	if s.stage == StageSealed {
		return nil, ErrSealed
	}
	return &s.group, nil
}

// Expect reports whether next is the stage that may run now.
func (s *State) Expect(next Stage) error {
	if s.stage == StageSealed {
		return ErrSealed
	}
	if next != s.stage+1 {
		return fmt.Errorf("%w: at %s, cannot enter %s", ErrStageOrder, s.stage, next)
	}
	return nil
}

// Advance moves the state to next after a stage has been applied.
func (s *State) Advance(next Stage) error {
	if err := s.Expect(next); err != nil {
		return err
	}
	s.stage = next
	return nil
}

// MarkDefaulted records that phase was answered by the timeout default for id.
func (s *State) MarkDefaulted(id PlayerID, phase Phase) error {
	rec, err := s.Player(id)
	if err != nil {
		return err
	}
	for _, p := range rec.Defaulted {
		if p == phase {
			return nil
		}
	}
	rec.Defaulted = append(rec.Defaulted, phase)
	return nil
}

// View returns a read-only copy of the current records for id.
func (s *State) View(id PlayerID) (View, error) {
	rec, ok := s.players[id]
	if !ok {
		return View{}, fmt.Errorf("%w: %s", ErrNotMember, id)
	}
	v := View{
		Round:  s.round,
		Self:   rec.clone(),
		Group:  s.group,
		Others: make([]OtherView, 0, len(s.members)-1),
	}
	v.Group.Members = append([]PlayerID(nil), s.group.Members...)
	for _, other := range s.members {
		if other == id {
			continue
		}
		o := s.players[other]
		ov := OtherView{Player: other}
		if s.stage >= StageContributed {
			ov.Contribution = o.Contribution
		}
		ov.Power = o.PowerBefore
		if s.stage >= StageTransferred {
			ov.Power = o.PowerAfter
		}
		v.Others = append(v.Others, ov)
	}
	return v, nil
}

// Seal freezes the round after the payoff stage and returns its result.
func (s *State) Seal() (Result, error) {
	if err := s.Advance(StageSealed); err != nil {
		return Result{}, err
	}
	res := Result{
		Group:   s.group,
		Players: make([]PlayerRecord, 0, len(s.members)),
	}
	res.Group.Members = append([]PlayerID(nil), s.group.Members...)
	for _, id := range s.members {
		res.Players = append(res.Players, s.players[id].clone())
	}
	res.Digest = Digest(res)
	return res, nil
}

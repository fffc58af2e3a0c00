package round

import (
	"errors"
	"testing"

	"github.com/IenDonshin/LEVIATHAN-JP/internal/sim/params"
)

func members(ids ...string) []PlayerID {
	out := make([]PlayerID, 0, len(ids))
	for _, id := range ids {
		out = append(out, PlayerID(id))
	}
	return out
}

func TestInitialCarry(t *testing.T) {
	p := params.Defaults()
	p.RoundLevy = 5
	carries := Initial(p, members("P3", "P1", "P2"))
	if len(carries) != 3 {
		t.Fatalf("expected 3 carries, got %d", len(carries))
	}
	if carries[0].Player != "P1" || carries[2].Player != "P3" {
		t.Fatalf("carries should be sorted by player: %+v", carries)
	}
	for _, c := range carries {
		if c.Round != 1 || c.Power != 1 || c.Balance != 95 || c.CumulativePayoff != 0 {
			t.Fatalf("unexpected initial carry: %+v", c)
		}
	}
}

func TestPropagate(t *testing.T) {
	p := params.Defaults()
	p.NumRounds = 2
	res := Result{
		Group: GroupRecord{Round: 1},
		Players: []PlayerRecord{
			{Round: 1, Player: "P1", PowerAfter: 0.7, AvailableAfter: 12, CumulativePayoff: 140},
			{Round: 1, Player: "P2", PowerAfter: 1.3, AvailableAfter: 80, CumulativePayoff: 95},
		},
	}
	next, ok := Propagate(p, res)
	if !ok {
		t.Fatalf("round 1 of 2 should propagate")
	}
	want := []Carry{
		{Player: "P1", Round: 2, Power: 0.7, Balance: 100, CumulativePayoff: 140},
		{Player: "P2", Round: 2, Power: 1.3, Balance: 100, CumulativePayoff: 95},
	}
	for i := range want {
		if next[i] != want[i] {
			t.Fatalf("carry %d: got %+v want %+v", i, next[i], want[i])
		}
	}

	res.Group.Round = 2
	if _, ok := Propagate(p, res); ok {
		t.Fatalf("terminal round must not propagate")
	}
}

func TestNewState_RejectsBadCarry(t *testing.T) {
	p := params.Defaults()
	if _, err := NewState("G1", 1, nil); err == nil {
		t.Fatalf("expected empty group error")
	}
	dup := append(Initial(p, members("P1")), Initial(p, members("P1"))...)
	if _, err := NewState("G1", 1, dup); err == nil {
		t.Fatalf("expected duplicate player error")
	}
	if _, err := NewState("G1", 2, Initial(p, members("P1", "P2"))); err == nil {
		t.Fatalf("expected round mismatch error")
	}
}

func TestState_StageOrderAndSeal(t *testing.T) {
	p := params.Defaults()
	s, err := NewState("G1", 1, Initial(p, members("P1", "P2")))
	if err != nil {
		t.Fatalf("NewState: %v", err)
	}
	if err := s.Advance(StageTransferred); !errors.Is(err, ErrStageOrder) {
		t.Fatalf("skipping a stage should fail, got %v", err)
	}
	if _, err := s.Seal(); !errors.Is(err, ErrStageOrder) {
		t.Fatalf("sealing an open round should fail, got %v", err)
	}
	for _, st := range []Stage{StageContributed, StageTransferred, StagePunished, StagePaid} {
		if err := s.Advance(st); err != nil {
			t.Fatalf("advance %s: %v", st, err)
		}
	}
	res, err := s.Seal()
	if err != nil {
		t.Fatalf("Seal: %v", err)
	}
	if res.Digest == "" || len(res.Players) != 2 {
		t.Fatalf("unexpected result: %+v", res)
	}
	if _, err := s.Player("P1"); !errors.Is(err, ErrSealed) {
		t.Fatalf("sealed records must not be mutable, got %v", err)
	}
	if _, err := s.Group(); !errors.Is(err, ErrSealed) {
		t.Fatalf("sealed group must not be mutable, got %v", err)
	}
	if _, err := s.Seal(); !errors.Is(err, ErrSealed) {
		t.Fatalf("double seal should fail, got %v", err)
	}
}

func TestState_ViewHidesUnsettledContributions(t *testing.T) {
	p := params.Defaults()
	s, _ := NewState("G1", 1, Initial(p, members("P1", "P2")))
	rec, _ := s.Player("P2")
	rec.Contribution = 40

	v, err := s.View("P1")
	if err != nil {
		t.Fatalf("View: %v", err)
	}
	if v.Others[0].Contribution != 0 {
		t.Fatalf("contribution visible before settlement: %+v", v.Others[0])
	}
	_ = s.Advance(StageContributed)
	v, _ = s.View("P1")
	if v.Others[0].Player != "P2" || v.Others[0].Contribution != 40 {
		t.Fatalf("contribution should be visible after settlement: %+v", v.Others[0])
	}
	if got := v.OthersAverageContribution(); got != 20 {
		t.Fatalf("average: got %v want 20", got)
	}
	if _, err := s.View("P9"); !errors.Is(err, ErrNotMember) {
		t.Fatalf("expected ErrNotMember, got %v", err)
	}
}

func TestDigest_StableAndSensitive(t *testing.T) {
	res := Result{
		Group: GroupRecord{Round: 1, GroupID: "G1", Members: members("P1", "P2"), TotalContribution: 10},
		Players: []PlayerRecord{
			{Round: 1, Player: "P1", Contribution: 10, PunishmentSent: map[PlayerID]float64{"P2": 2}},
			{Round: 1, Player: "P2"},
		},
	}
	d1 := Digest(res)
	if d1 != Digest(res) {
		t.Fatalf("digest not stable")
	}
	res.Players[0].PunishmentSent["P2"] = 3
	if Digest(res) == d1 {
		t.Fatalf("digest should change with punishment row")
	}
}

func TestDecisions_WithDefaults(t *testing.T) {
	d := Decisions{
		Contributions: map[PlayerID]float64{"P1": 10},
		Punishments:   map[PlayerID]map[PlayerID]float64{"P2": {"P1": 3, "P3": 0}},
	}
	full := d.WithDefaults(members("P1", "P2", "P3"))
	if len(full.Contributions) != 3 || full.Contributions["P3"] != 0 {
		t.Fatalf("contributions not defaulted: %+v", full.Contributions)
	}
	if len(full.Punishments["P2"]) != 1 {
		t.Fatalf("zero entries should be dropped: %+v", full.Punishments["P2"])
	}
	if full.Transfers["P1"] == nil {
		t.Fatalf("transfer rows should be explicit")
	}
	full.Punishments["P2"]["P1"] = 9
	if d.Punishments["P2"]["P1"] != 3 {
		t.Fatalf("WithDefaults must copy rows")
	}
}

package session

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/IenDonshin/LEVIATHAN-JP/internal/metrics"
	"github.com/IenDonshin/LEVIATHAN-JP/internal/protocol"
	"github.com/IenDonshin/LEVIATHAN-JP/internal/sim/bots"
	"github.com/IenDonshin/LEVIATHAN-JP/internal/sim/params"
	"github.com/IenDonshin/LEVIATHAN-JP/internal/sim/round"
	"github.com/IenDonshin/LEVIATHAN-JP/internal/sim/settle"
)

func players(n int) []round.PlayerID {
	out := make([]round.PlayerID, 0, n)
	for i := 1; i <= n; i++ {
		out = append(out, round.PlayerID(fmt.Sprintf("P%02d", i)))
	}
	return out
}

func near(a, b float64) bool { return math.Abs(a-b) <= 1e-6 }

type memRecorder struct {
	mu      sync.Mutex
	entries []round.LogEntry
}

func (r *memRecorder) RecordRound(e round.LogEntry) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries = append(r.entries, e)
	return nil
}

type funcSource func(ctx context.Context, phase round.Phase, v round.View) (round.Submission, error)

func (f funcSource) Decide(ctx context.Context, phase round.Phase, v round.View) (round.Submission, error) {
	return f(ctx, phase, v)
}

// pickySource answers wrongly the first time it is asked for each phase and
// correctly afterwards.
type pickySource struct {
	mu      sync.Mutex
	asked   map[string]bool
	rejects []protocol.RejectMsg
	results []protocol.RoundResultMsg
}

func (s *pickySource) Decide(_ context.Context, phase round.Phase, v round.View) (round.Submission, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := fmt.Sprintf("%d/%s/%s", v.Round, phase, v.Self.Player)
	if !s.asked[key] {
		s.asked[key] = true
		if phase == round.PhaseContribution {
			return round.Submission{Contribution: v.Self.AvailableBeforeContribution + 1}, nil
		}
		return round.Submission{Targets: map[round.PlayerID]float64{v.Self.Player: 1}}, nil
	}
	return round.Submission{Contribution: 5}, nil
}

func (s *pickySource) Rejected(msg protocol.RejectMsg) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rejects = append(s.rejects, msg)
}

func (s *pickySource) RoundSettled(msg protocol.RoundResultMsg) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.results = append(s.results, msg)
}

func TestFormGroups(t *testing.T) {
	a, err := FormGroups(players(10), 5, 7)
	if err != nil {
		t.Fatalf("FormGroups: %v", err)
	}
	b, _ := FormGroups(players(10), 5, 7)
	if len(a) != 2 || a[0].ID != "G1" || a[1].ID != "G2" {
		t.Fatalf("groups=%+v", a)
	}
	seen := map[round.PlayerID]bool{}
	for i := range a {
		for j, id := range a[i].Members {
			if b[i].Members[j] != id {
				t.Fatalf("same seed must give the same groups")
			}
			if seen[id] {
				t.Fatalf("player %s in two groups", id)
			}
			seen[id] = true
		}
	}
	if len(seen) != 10 {
		t.Fatalf("not every player was grouped")
	}
	if _, err := FormGroups(players(7), 5, 1); err == nil {
		t.Fatalf("expected error for uneven split")
	}
	if _, err := FormGroups([]round.PlayerID{"A", "A"}, 2, 1); err == nil {
		t.Fatalf("expected duplicate player error")
	}
}

func TestRun_ScriptedTransferCost(t *testing.T) {
	p, _ := params.Defaults().WithTreatment(params.TreatmentTransferCost)
	p.PowerTransferCostRate = 1
	p.NumRounds = 4
	reg := prometheus.NewRegistry()
	m := metrics.New(reg)
	rec := &memRecorder{}
	s, err := New(Config{Params: p, Players: players(10), Seed: 3, Metrics: m, Recorders: []Recorder{rec}})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if s.ID() == "" {
		t.Fatalf("session id should default to a uuid")
	}
	if err := s.Run(context.Background(), bots.NewScripted(p)); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if !s.Done() || s.NextRound() != 5 {
		t.Fatalf("done=%v next=%d", s.Done(), s.NextRound())
	}
	if _, err := s.PlayRound(context.Background(), bots.NewScripted(p)); !errors.Is(err, ErrSessionDone) {
		t.Fatalf("expected ErrSessionDone, got %v", err)
	}

	// Rounds 1-2: 100 - 10 + 16 - 4 (cost) - 12 (loss) = 90.
	// Rounds 3-4 add a transfer cost of 4.
	for _, fr := range s.FinalResults() {
		if fr.Rounds != 4 || !near(fr.TotalPayoff, 352) || !near(fr.AveragePayoff, 88) {
			t.Fatalf("%s: %+v", fr.Player, fr)
		}
		if !near(fr.Payment, 352*4+500) || fr.TotalContribution != 40 || fr.TotalPointsSent != 16 {
			t.Fatalf("%s: %+v", fr.Player, fr)
		}
		if !near(fr.FinalPower, 1) {
			t.Fatalf("symmetric transfers keep power: %v", fr.FinalPower)
		}
	}
	hist := s.History(players(10)[0])
	if len(hist) != 4 || hist[2].TransferCost == 0 || hist[1].TransferCost != 0 {
		t.Fatalf("history=%+v", hist)
	}

	if len(rec.entries) != 8 {
		t.Fatalf("expected 8 recorded group rounds, got %d", len(rec.entries))
	}
	for _, e := range rec.entries {
		res, err := settle.Settle(e.Params, e.GroupID, e.Round, e.Carry, e.Decisions)
		if err != nil {
			t.Fatalf("re-settle %s round %d: %v", e.GroupID, e.Round, err)
		}
		if res.Digest != e.Digest {
			t.Fatalf("re-settle %s round %d: digest mismatch", e.GroupID, e.Round)
		}
	}
	if got := testutil.ToFloat64(m.RoundsSettled.WithLabelValues(params.TreatmentTransferCost)); got != 8 {
		t.Fatalf("rounds settled metric=%v", got)
	}
}

func TestPlayRound_RejectsAndReprompts(t *testing.T) {
	p := params.Defaults()
	p.NumRounds = 2
	m := metrics.New(prometheus.NewRegistry())
	s, err := New(Config{Params: p, Players: players(5), Metrics: m})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	src := &pickySource{asked: map[string]bool{}}
	if err := s.Run(context.Background(), src); err != nil {
		t.Fatalf("Run: %v", err)
	}
	// Contribution and punishment phases, 5 players, 2 rounds.
	if len(src.rejects) != 20 {
		t.Fatalf("expected 20 rejections, got %d", len(src.rejects))
	}
	for _, r := range src.rejects {
		if !protocol.IsKnownCode(r.Code) || r.Code == protocol.ErrInternal {
			t.Fatalf("unexpected reject code %+v", r)
		}
	}
	if got := testutil.ToFloat64(m.Rejections.WithLabelValues(params.TreatmentFixed, "PUNISHMENT", protocol.ErrSelfTargeting)); got != 10 {
		t.Fatalf("self-targeting rejections=%v", got)
	}
	if len(src.results) != 10 || !src.results[9].IsFinalRound {
		t.Fatalf("round results=%d", len(src.results))
	}
	for _, fr := range s.FinalResults() {
		// 100 - 5 + 25*1.6/5 = 103 each round.
		if !near(fr.TotalPayoff, 206) {
			t.Fatalf("%s: %+v", fr.Player, fr)
		}
	}
}

func TestPlayRound_TimeoutDefaults(t *testing.T) {
	p := params.Defaults()
	p.NumRounds = 1
	m := metrics.New(prometheus.NewRegistry())
	rec := &memRecorder{}
	s, err := New(Config{Params: p, Players: players(5), PhaseTimeout: 30 * time.Millisecond, Metrics: m, Recorders: []Recorder{rec}})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	slow := players(5)[0]
	src := funcSource(func(ctx context.Context, phase round.Phase, v round.View) (round.Submission, error) {
		if v.Self.Player == slow {
			<-ctx.Done()
			return round.Submission{}, ctx.Err()
		}
		return round.Submission{Contribution: 20}, nil
	})
	results, err := s.PlayRound(context.Background(), src)
	if err != nil {
		t.Fatalf("PlayRound: %v", err)
	}
	r, ok := results[0].Player(slow)
	if !ok {
		t.Fatalf("no record for %s", slow)
	}
	if r.Contribution != 0 || len(r.Defaulted) != 2 {
		t.Fatalf("slow player should be defaulted: %+v", r)
	}
	if got := testutil.ToFloat64(m.Defaults.WithLabelValues(params.TreatmentFixed, "CONTRIBUTION")); got != 1 {
		t.Fatalf("defaults metric=%v", got)
	}
	e := rec.entries[0]
	if len(e.Decisions.Defaulted[slow]) != 2 {
		t.Fatalf("log entry should carry defaulted phases: %+v", e.Decisions.Defaulted)
	}
}

func TestPlayRound_CancelKeepsLastSealedRound(t *testing.T) {
	p := params.Defaults()
	p.NumRounds = 3
	s, err := New(Config{Params: p, Players: players(5)})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if _, err := s.PlayRound(context.Background(), bots.NewScripted(p)); err != nil {
		t.Fatalf("round 1: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := s.PlayRound(ctx, bots.NewScripted(p)); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if s.NextRound() != 2 || s.Done() {
		t.Fatalf("aborted round must not commit: next=%d", s.NextRound())
	}
	for _, fr := range s.FinalResults() {
		if fr.Rounds != 1 || fr.TotalPayoff != 100 {
			t.Fatalf("%s: %+v", fr.Player, fr)
		}
	}
	if len(s.LastResults()) != 1 || s.LastResults()[0].Group.Round != 1 {
		t.Fatalf("last sealed round should be round 1")
	}
}

func TestSnapshotRestore_ResumesIdentically(t *testing.T) {
	p, _ := params.Defaults().WithTreatment(params.TreatmentTransferFree)
	p.NumRounds = 5
	cfg := Config{Params: p, Players: players(10), Seed: 11}

	full, err := New(cfg)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if err := full.Run(context.Background(), bots.NewScripted(p)); err != nil {
		t.Fatalf("Run: %v", err)
	}

	part, _ := New(cfg)
	for i := 0; i < 2; i++ {
		if _, err := part.PlayRound(context.Background(), bots.NewScripted(p)); err != nil {
			t.Fatalf("round %d: %v", i+1, err)
		}
	}
	snap := part.Snapshot()
	if snap.Header.Round != 2 || snap.NextRound != 3 || len(snap.Carries) != 10 {
		t.Fatalf("snapshot=%+v", snap.Header)
	}
	resumed, err := Restore(Config{}, snap)
	if err != nil {
		t.Fatalf("Restore: %v", err)
	}
	if resumed.ID() != part.ID() {
		t.Fatalf("restored id=%s want %s", resumed.ID(), part.ID())
	}
	if err := resumed.Run(context.Background(), bots.NewScripted(p)); err != nil {
		t.Fatalf("resume Run: %v", err)
	}

	want := map[round.PlayerID]FinalResult{}
	for _, fr := range full.FinalResults() {
		want[fr.Player] = fr
	}
	for _, fr := range resumed.FinalResults() {
		w := want[fr.Player]
		if fr.Rounds != 5 || !near(fr.TotalPayoff, w.TotalPayoff) {
			t.Fatalf("%s: resumed %+v, uninterrupted %+v", fr.Player, fr, w)
		}
	}
	if g, ok := resumed.GroupOf(players(10)[0]); !ok || g == "" {
		t.Fatalf("restored session lost its groups")
	}
}

func TestRejectFor(t *testing.T) {
	err := &settle.DecisionError{Kind: settle.ErrPunishmentCapExceeded, Player: "P1", Target: "P2"}
	msg := RejectFor(4, "P1", round.PhasePunishment, err)
	if msg.Type != protocol.TypeReject || msg.Code != protocol.ErrPunishmentCapExceeded || msg.Round != 4 {
		t.Fatalf("msg=%+v", msg)
	}
	if msg.Phase != "PUNISHMENT" || msg.Message == "" {
		t.Fatalf("msg=%+v", msg)
	}
}

func TestSetRecorders_ReplacesRecorders(t *testing.T) {
	p := params.Defaults()
	p.NumRounds = 2
	first, second := &memRecorder{}, &memRecorder{}
	s, err := New(Config{Name: "pggp_fixed", Params: p, Players: players(5), Seed: 1, Recorders: []Recorder{first}})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if s.Name() != "pggp_fixed" {
		t.Fatalf("name=%q", s.Name())
	}
	if _, err := s.PlayRound(context.Background(), bots.NewScripted(p)); err != nil {
		t.Fatalf("round 1: %v", err)
	}
	s.SetRecorders(second)
	if _, err := s.PlayRound(context.Background(), bots.NewScripted(p)); err != nil {
		t.Fatalf("round 2: %v", err)
	}
	if len(first.entries) != 1 || first.entries[0].Round != 1 {
		t.Fatalf("first recorder: %+v", first.entries)
	}
	if len(second.entries) != 1 || second.entries[0].Round != 2 {
		t.Fatalf("second recorder: %+v", second.entries)
	}
}

func TestPlayRound_LateAnswerAfterTimeoutIsIgnored(t *testing.T) {
	p := params.Defaults()
	p.NumRounds = 2
	s, err := New(Config{Params: p, Players: players(5), PhaseTimeout: 20 * time.Millisecond})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	late := players(5)[0]
	var wg sync.WaitGroup
	src := funcSource(func(ctx context.Context, phase round.Phase, v round.View) (round.Submission, error) {
		if v.Self.Player != late {
			return round.Submission{Contribution: 20}, nil
		}
		// Answers only once the phase has given up on it.
		wg.Add(1)
		defer wg.Done()
		<-ctx.Done()
		sub := round.Submission{Contribution: 1}
		if phase == round.PhasePunishment {
			sub = round.Submission{Targets: map[round.PlayerID]float64{players(5)[1]: 1}}
		}
		return sub, nil
	})
	for r := 1; r <= 2; r++ {
		results, err := s.PlayRound(context.Background(), src)
		if err != nil {
			t.Fatalf("round %d: %v", r, err)
		}
		rec, _ := results[0].Player(late)
		if rec.Contribution != 0 || rec.PointsSent != 0 || len(rec.Defaulted) != 2 {
			t.Fatalf("round %d: late answer must not count: %+v", r, rec)
		}
	}
	wg.Wait()
}

package indexdb

import (
	"context"
	"encoding/json"
	"math"
	"path/filepath"
	"testing"

	"github.com/IenDonshin/LEVIATHAN-JP/internal/sim/bots"
	"github.com/IenDonshin/LEVIATHAN-JP/internal/sim/params"
	"github.com/IenDonshin/LEVIATHAN-JP/internal/sim/round"
	"github.com/IenDonshin/LEVIATHAN-JP/internal/sim/session"
)

func TestSQLiteIndex_RecordsSessionRoundsAndFinals(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "index.sqlite")
	idx, err := OpenSQLite(dbPath)
	if err != nil {
		t.Fatalf("OpenSQLite: %v", err)
	}

	p, _ := params.Defaults().WithTreatment(params.TreatmentTransferCost)
	p.PowerTransferCostRate = 1
	p.NumRounds = 2
	var ids []round.PlayerID
	for _, id := range []string{"P1", "P2", "P3", "P4", "P5", "P6", "P7", "P8", "P9", "P10"} {
		ids = append(ids, round.PlayerID(id))
	}
	s, err := session.New(session.Config{ID: "s-1", Name: "pggp_transfer_cost", Params: p, Players: ids, Seed: 1,
		Recorders: []session.Recorder{idx}})
	if err != nil {
		t.Fatalf("session.New: %v", err)
	}
	idx.RecordSession(s.ID(), "pggp_transfer_cost", p, len(ids))
	if err := s.Run(context.Background(), bots.NewScripted(p)); err != nil {
		t.Fatalf("Run: %v", err)
	}
	idx.RecordFinals(s.ID(), s.FinalResults())
	if err := idx.Flush(context.Background()); err != nil {
		t.Fatalf("Flush: %v", err)
	}
	if st := idx.Stats(); st.DropRoundTotal != 0 || st.DropSessionTotal != 0 || st.DropFinalTotal != 0 {
		t.Fatalf("unexpected drops: %+v", st)
	}

	r, err := OpenReader(dbPath)
	if err != nil {
		t.Fatalf("OpenReader: %v", err)
	}
	defer r.Close()
	ctx := context.Background()

	sessions, err := r.Sessions(ctx)
	if err != nil {
		t.Fatalf("Sessions: %v", err)
	}
	if len(sessions) != 1 || sessions[0].Treatment != params.TreatmentTransferCost || sessions[0].Players != 10 {
		t.Fatalf("sessions=%+v", sessions)
	}

	rounds, err := r.Rounds(ctx, "s-1", 0)
	if err != nil {
		t.Fatalf("Rounds: %v", err)
	}
	if len(rounds) != 4 {
		t.Fatalf("expected 4 group rounds, got %d", len(rounds))
	}
	if rounds[0].Round != 1 || rounds[3].Round != 2 || rounds[0].TotalContribution != 50 {
		t.Fatalf("rounds=%+v", rounds)
	}
	if rounds[0].TransferPhase || !rounds[0].PunishmentPhase {
		t.Fatalf("round 1 phases: %+v", rounds[0])
	}
	only2, err := r.Rounds(ctx, "s-1", 2)
	if err != nil || len(only2) != 2 {
		t.Fatalf("Rounds(2)=%d err=%v", len(only2), err)
	}

	raw, err := r.RawRound(ctx, "s-1", rounds[0].GroupID, 1)
	if err != nil {
		t.Fatalf("RawRound: %v", err)
	}
	var e round.LogEntry
	if err := json.Unmarshal(raw, &e); err != nil {
		t.Fatalf("decode raw round: %v", err)
	}
	if e.Digest != rounds[0].Digest || len(e.Carry) != 5 {
		t.Fatalf("raw entry mismatch: digest=%s carry=%d", e.Digest, len(e.Carry))
	}

	hist, err := r.PlayerHistory(ctx, "s-1", "P1")
	if err != nil {
		t.Fatalf("PlayerHistory: %v", err)
	}
	if len(hist) != 2 || math.Abs(hist[1].CumulativePayoff-180) > 1e-6 {
		t.Fatalf("history=%+v", hist)
	}

	finals, err := r.Finals(ctx, "s-1")
	if err != nil {
		t.Fatalf("Finals: %v", err)
	}
	if len(finals) != 10 || math.Abs(finals[0].Payment-(180*4+500)) > 1e-6 {
		t.Fatalf("finals=%+v", finals)
	}
	clamps, err := r.Clamps(ctx, "s-1")
	if err != nil || len(clamps) != 0 {
		t.Fatalf("clamps=%v err=%v", clamps, err)
	}

	if err := idx.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	// Writes after close are ignored.
	if err := idx.RecordRound(e); err != nil {
		t.Fatalf("RecordRound after close: %v", err)
	}
}

func TestSQLiteIndex_NilIsNoop(t *testing.T) {
	var idx *SQLiteIndex
	if err := idx.RecordRound(round.LogEntry{}); err != nil {
		t.Fatalf("nil RecordRound: %v", err)
	}
	idx.RecordFinals("s", nil)
	if st := idx.Stats(); st.QueueCapacity != 0 {
		t.Fatalf("nil stats=%+v", st)
	}
}

func TestOpenSQLite_EmptyPath(t *testing.T) {
	if _, err := OpenSQLite(""); err == nil {
		t.Fatalf("expected error")
	}
	if _, err := OpenReader(""); err == nil {
		t.Fatalf("expected error")
	}
}

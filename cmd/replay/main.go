package main

import (
	"flag"
	"fmt"
	"os"
	"path/filepath"

	persistlog "github.com/IenDonshin/LEVIATHAN-JP/internal/persistence/log"
	"github.com/IenDonshin/LEVIATHAN-JP/internal/persistence/snapshot"
	"github.com/IenDonshin/LEVIATHAN-JP/internal/sim/round"
	"github.com/IenDonshin/LEVIATHAN-JP/internal/sim/settle"
)

func main() {
	var (
		sessionDir = flag.String("session_dir", "", "session dir containing rounds/rounds-*.jsonl.zst")
		snapPath   = flag.String("snapshot", "", "snapshot to summarize and cross-check (optional)")
		fromRound  = flag.Int("from_round", 0, "start verifying from round (inclusive, optional)")
		toRound    = flag.Int("to_round", 0, "stop after round (inclusive, optional)")
	)
	flag.Parse()

	if *sessionDir == "" && *snapPath == "" {
		fmt.Fprintln(os.Stderr, "missing -session_dir or -snapshot")
		os.Exit(2)
	}

	var snap *snapshot.SnapshotV1
	if *snapPath != "" {
		s, err := snapshot.ReadSnapshot(*snapPath)
		if err != nil {
			fmt.Fprintln(os.Stderr, "read snapshot:", err)
			os.Exit(1)
		}
		snap = &s
		fmt.Printf("snapshot v%d session=%s name=%s treatment=%s round=%d next=%d done=%v groups=%d history=%d\n",
			s.Header.Version, s.Header.SessionID, s.Name, s.Treatment, s.Header.Round, s.NextRound, s.Done,
			len(s.Groups), len(s.History))
		if *sessionDir == "" {
			return
		}
	}

	v := newVerifier(*fromRound, *toRound)
	if err := persistlog.ReadRounds(*sessionDir, v.check); err != nil {
		fmt.Fprintln(os.Stderr, "replay:", err)
		os.Exit(1)
	}
	if snap != nil {
		if err := v.crossCheck(*snap); err != nil {
			fmt.Fprintln(os.Stderr, "snapshot:", err)
			os.Exit(1)
		}
	}
	fmt.Printf("replay ok: checked=%d group rounds (session=%s dir=%s)\n", v.checked, v.sessionID, filepath.Base(*sessionDir))
}

type verifier struct {
	from, to  int
	checked   int
	sessionID string
	// last sealed result per group, used to check the carry chain.
	last map[string]round.Result
}

func newVerifier(from, to int) *verifier {
	return &verifier{from: from, to: to, last: map[string]round.Result{}}
}

func (v *verifier) check(e round.LogEntry) error {
	if v.sessionID == "" {
		v.sessionID = e.SessionID
	} else if e.SessionID != v.sessionID {
		return fmt.Errorf("mixed sessions in log: %s and %s", v.sessionID, e.SessionID)
	}
	if v.to != 0 && e.Round > v.to {
		return nil
	}

	if prev, ok := v.last[e.GroupID]; ok {
		if prev.Group.Round+1 != e.Round {
			return fmt.Errorf("group %s: round %d follows round %d", e.GroupID, e.Round, prev.Group.Round)
		}
		want, ok := round.Propagate(e.Params, prev)
		if !ok {
			return fmt.Errorf("group %s: round %d logged after the final round", e.GroupID, e.Round)
		}
		if err := sameCarry(want, e.Carry); err != nil {
			return fmt.Errorf("group %s round %d: %w", e.GroupID, e.Round, err)
		}
	}

	res, err := settle.Settle(e.Params, e.GroupID, e.Round, e.Carry, e.Decisions)
	if err != nil {
		return fmt.Errorf("group %s round %d: settle: %w", e.GroupID, e.Round, err)
	}
	if e.Round >= v.from {
		v.checked++
		if res.Digest != e.Digest {
			return fmt.Errorf("digest mismatch at group %s round %d: got=%s want=%s", e.GroupID, e.Round, res.Digest, e.Digest)
		}
	}
	v.last[e.GroupID] = res
	return nil
}

// crossCheck compares the last replayed records with the snapshot history.
func (v *verifier) crossCheck(snap snapshot.SnapshotV1) error {
	if snap.Header.SessionID != v.sessionID {
		return fmt.Errorf("session mismatch: snapshot=%s log=%s", snap.Header.SessionID, v.sessionID)
	}
	want := map[round.PlayerID]round.PlayerRecord{}
	for _, rec := range snap.History {
		if rec.Round == snap.Header.Round {
			want[rec.Player] = rec
		}
	}
	for gid, res := range v.last {
		if res.Group.Round != snap.Header.Round {
			continue
		}
		for _, got := range res.Players {
			w, ok := want[got.Player]
			if !ok {
				return fmt.Errorf("group %s: %s missing from snapshot history", gid, got.Player)
			}
			if w.CumulativePayoff != got.CumulativePayoff || w.PowerAfter != got.PowerAfter {
				return fmt.Errorf("group %s: %s diverges from snapshot (payoff %v vs %v, power %v vs %v)",
					gid, got.Player, got.CumulativePayoff, w.CumulativePayoff, got.PowerAfter, w.PowerAfter)
			}
		}
	}
	return nil
}

func sameCarry(want, got []round.Carry) error {
	if len(want) != len(got) {
		return fmt.Errorf("carry has %d players, want %d", len(got), len(want))
	}
	byID := make(map[round.PlayerID]round.Carry, len(got))
	for _, c := range got {
		byID[c.Player] = c
	}
	for _, w := range want {
		g, ok := byID[w.Player]
		if !ok {
			return fmt.Errorf("carry missing %s", w.Player)
		}
		if g != w {
			return fmt.Errorf("carry for %s: got %+v want %+v", w.Player, g, w)
		}
	}
	return nil
}

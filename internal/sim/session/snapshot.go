package session

import (
	"fmt"

	"github.com/IenDonshin/LEVIATHAN-JP/internal/persistence/snapshot"
	"github.com/IenDonshin/LEVIATHAN-JP/internal/sim/round"
)

// Snapshot captures the session at its current round boundary.
func (s *Session) Snapshot() snapshot.SnapshotV1 {
	s.mu.Lock()
	defer s.mu.Unlock()
	snap := snapshot.SnapshotV1{
		Header: snapshot.Header{
			Version:   snapshot.Version,
			SessionID: s.id,
			Round:     s.nextRound - 1,
		},
		Name:      s.cfg.Name,
		Treatment: s.p.Treatment(),
		Seed:      s.cfg.Seed,
		Params:    s.p,
		NextRound: s.nextRound,
		Done:      s.done,
	}
	for _, g := range s.groups {
		gv := snapshot.GroupV1{ID: g.ID}
		for _, id := range g.Members {
			gv.Members = append(gv.Members, string(id))
		}
		snap.Groups = append(snap.Groups, gv)
		snap.Carries = append(snap.Carries, s.carries[g.ID]...)
		for _, id := range g.Members {
			snap.History = append(snap.History, s.history[id]...)
		}
	}
	return snap
}

// Restore resumes a session from snap. Params, groups and progress come
// from the snapshot; cfg supplies the runtime hooks.
func Restore(cfg Config, snap snapshot.SnapshotV1) (*Session, error) {
	if err := snap.Params.Validate(); err != nil {
		return nil, fmt.Errorf("snapshot params: %w", err)
	}
	if snap.NextRound < 1 {
		return nil, fmt.Errorf("snapshot next_round must be >= 1, got %d", snap.NextRound)
	}
	cfg.ID = snap.Header.SessionID
	cfg.Name = snap.Name
	cfg.Seed = snap.Seed
	cfg.Params = snap.Params
	s := newSession(cfg)
	s.nextRound = snap.NextRound
	s.done = snap.Done

	byPlayer := map[round.PlayerID]round.Carry{}
	for _, c := range snap.Carries {
		byPlayer[c.Player] = c
	}
	for _, gv := range snap.Groups {
		g := Group{ID: gv.ID}
		for _, m := range gv.Members {
			g.Members = append(g.Members, round.PlayerID(m))
		}
		if len(g.Members) != s.p.PlayersPerGroup {
			return nil, fmt.Errorf("group %s has %d members, want %d", g.ID, len(g.Members), s.p.PlayersPerGroup)
		}
		s.groups = append(s.groups, g)
		if s.done {
			continue
		}
		for _, id := range g.Members {
			c, ok := byPlayer[id]
			if !ok {
				return nil, fmt.Errorf("no carry for %s", id)
			}
			if c.Round != s.nextRound {
				return nil, fmt.Errorf("carry for %s seeds round %d, want %d", id, c.Round, s.nextRound)
			}
			s.carries[g.ID] = append(s.carries[g.ID], c)
		}
	}
	s.indexGroups()
	for _, rec := range snap.History {
		s.history[rec.Player] = append(s.history[rec.Player], rec)
	}
	return s, nil
}

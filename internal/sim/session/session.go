// Package session drives every group of a session through its rounds.
//
// A round gathers each phase's decisions behind a barrier, validates them on
// arrival, defaults the players that did not answer in time and then settles
// the group. Groups are independent and settle in parallel.
package session

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/IenDonshin/LEVIATHAN-JP/internal/metrics"
	"github.com/IenDonshin/LEVIATHAN-JP/internal/protocol"
	"github.com/IenDonshin/LEVIATHAN-JP/internal/sim/params"
	"github.com/IenDonshin/LEVIATHAN-JP/internal/sim/round"
	"github.com/IenDonshin/LEVIATHAN-JP/internal/sim/settle"
)

var ErrSessionDone = errors.New("session already played its final round")

// DecisionSource answers a phase for the player viewing v.
type DecisionSource interface {
	Decide(ctx context.Context, phase round.Phase, v round.View) (round.Submission, error)
}

// Notifier is implemented by sources that want feedback on their answers.
type Notifier interface {
	Rejected(msg protocol.RejectMsg)
	RoundSettled(msg protocol.RoundResultMsg)
}

// Recorder receives every sealed group round in group order.
type Recorder interface {
	RecordRound(e round.LogEntry) error
}

type Config struct {
	// ID defaults to a random UUID.
	ID      string
	Name    string
	Params  params.Params
	Players []round.PlayerID
	Seed    int64

	// PhaseTimeout bounds how long a barrier waits before defaulting the
	// players that have not answered. Zero waits for every answer.
	PhaseTimeout time.Duration
	// MaxAttempts is how often a rejected player is asked again before the
	// default applies. Defaults to 3.
	MaxAttempts int

	Logger    *log.Logger
	Metrics   *metrics.Metrics
	Recorders []Recorder
}

type Session struct {
	id  string
	cfg Config
	p   params.Params
	log *log.Logger
	m   *metrics.Metrics

	mu        sync.Mutex
	groups    []Group
	groupOf   map[round.PlayerID]string
	nextRound int
	done      bool
	carries   map[string][]round.Carry
	last      map[string]round.Result
	history   map[round.PlayerID][]round.PlayerRecord
}

func New(cfg Config) (*Session, error) {
	if err := cfg.Params.Validate(); err != nil {
		return nil, fmt.Errorf("params: %w", err)
	}
	groups, err := FormGroups(cfg.Players, cfg.Params.PlayersPerGroup, cfg.Seed)
	if err != nil {
		return nil, err
	}
	s := newSession(cfg)
	s.groups = groups
	s.nextRound = 1
	for _, g := range groups {
		s.carries[g.ID] = round.Initial(s.p, g.Members)
	}
	s.indexGroups()
	return s, nil
}

func newSession(cfg Config) *Session {
	if cfg.ID == "" {
		cfg.ID = uuid.NewString()
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 3
	}
	logger := cfg.Logger
	if logger == nil {
		logger = log.New(io.Discard, "", 0)
	}
	m := cfg.Metrics
	if m == nil {
		m = metrics.New(nil)
	}
	return &Session{
		id:      cfg.ID,
		cfg:     cfg,
		p:       cfg.Params,
		log:     logger,
		m:       m,
		groupOf: map[round.PlayerID]string{},
		carries: map[string][]round.Carry{},
		last:    map[string]round.Result{},
		history: map[round.PlayerID][]round.PlayerRecord{},
	}
}

func (s *Session) indexGroups() {
	for _, g := range s.groups {
		for _, id := range g.Members {
			s.groupOf[id] = g.ID
		}
	}
}

func (s *Session) ID() string            { return s.id }
func (s *Session) Name() string          { return s.cfg.Name }
func (s *Session) Params() params.Params { return s.p }

// SetRecorders replaces the recorders that receive sealed rounds. Callers
// that derive storage paths from the session id attach them after New.
func (s *Session) SetRecorders(recs ...Recorder) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cfg.Recorders = recs
}

func (s *Session) Groups() []Group {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Group, 0, len(s.groups))
	for _, g := range s.groups {
		out = append(out, Group{ID: g.ID, Members: append([]round.PlayerID(nil), g.Members...)})
	}
	return out
}

// GroupOf returns the group id of player id.
func (s *Session) GroupOf(id round.PlayerID) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	g, ok := s.groupOf[id]
	return g, ok
}

// NextRound is the round PlayRound will settle next.
func (s *Session) NextRound() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.nextRound
}

func (s *Session) Done() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.done
}

// Run plays every remaining round. When ctx is cancelled the last sealed
// round stays final.
func (s *Session) Run(ctx context.Context, src DecisionSource) error {
	for !s.Done() {
		if _, err := s.PlayRound(ctx, src); err != nil {
			return err
		}
	}
	return nil
}

// PlayRound gathers and settles the next round for every group. Nothing is
// committed unless all groups seal.
func (s *Session) PlayRound(ctx context.Context, src DecisionSource) ([]round.Result, error) {
	s.mu.Lock()
	if s.done {
		s.mu.Unlock()
		return nil, ErrSessionDone
	}
	r := s.nextRound
	groups := append([]Group(nil), s.groups...)
	carries := make([][]round.Carry, len(groups))
	for i, g := range groups {
		carries[i] = append([]round.Carry(nil), s.carries[g.ID]...)
	}
	s.mu.Unlock()

	results := make([]round.Result, len(groups))
	entries := make([]round.LogEntry, len(groups))
	g, gCtx := errgroup.WithContext(ctx)
	for i := range groups {
		i := i
		g.Go(func() error {
			s.m.ActiveGroups.Inc()
			defer s.m.ActiveGroups.Dec()
			res, d, err := s.playGroup(gCtx, r, groups[i].ID, carries[i], src)
			if err != nil {
				return fmt.Errorf("group %s: %w", groups[i].ID, err)
			}
			results[i] = res
			entries[i] = round.LogEntry{
				SessionID: s.id,
				GroupID:   groups[i].ID,
				Round:     r,
				Params:    s.p,
				Carry:     carries[i],
				Decisions: d,
				Result:    res,
				Digest:    res.Digest,
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	s.mu.Lock()
	for i, grp := range groups {
		res := results[i]
		s.last[grp.ID] = res
		for _, rec := range res.Players {
			s.history[rec.Player] = append(s.history[rec.Player], rec)
		}
		if next, ok := round.Propagate(s.p, res); ok {
			s.carries[grp.ID] = next
		} else {
			s.carries[grp.ID] = nil
		}
	}
	s.nextRound = r + 1
	s.done = r >= s.p.NumRounds
	final := s.done
	recorders := s.cfg.Recorders
	s.mu.Unlock()

	for _, e := range entries {
		for _, rec := range recorders {
			if err := rec.RecordRound(e); err != nil {
				s.log.Printf("session %s round %d group %s: record: %v", s.id, r, e.GroupID, err)
			}
		}
	}
	if n, ok := src.(Notifier); ok {
		for _, res := range results {
			for _, rec := range res.Players {
				if msg, ok := RoundResultFor(res, rec.Player, final); ok {
					n.RoundSettled(msg)
				}
			}
		}
	}
	s.log.Printf("session %s round %d/%d settled (%d groups)", s.id, r, s.p.NumRounds, len(groups))
	return results, nil
}

func (s *Session) playGroup(ctx context.Context, r int, groupID string, carries []round.Carry, src DecisionSource) (round.Result, round.Decisions, error) {
	start := time.Now()
	treatment := s.p.Treatment()
	var d round.Decisions

	st, err := round.NewState(groupID, r, carries)
	if err != nil {
		return round.Result{}, d, err
	}
	rules := settle.NewRules(s.p, st)

	fail := func(err error) (round.Result, round.Decisions, error) {
		if ctx.Err() == nil {
			s.m.SettleErrors.WithLabelValues(treatment).Inc()
		}
		return round.Result{}, d, err
	}

	if err := s.gather(ctx, st, rules, round.PhaseContribution, src, &d); err != nil {
		return fail(err)
	}
	if err := settle.SettleContributions(s.p, st, d.Contributions); err != nil {
		return fail(err)
	}
	if s.p.TransferOpen(r) {
		if err := s.gather(ctx, st, rules, round.PhaseTransfer, src, &d); err != nil {
			return fail(err)
		}
	}
	if err := settle.SettleTransfers(s.p, st, d.Transfers); err != nil {
		return fail(err)
	}
	if s.p.PunishmentOpen(r) {
		if err := s.gather(ctx, st, rules, round.PhasePunishment, src, &d); err != nil {
			return fail(err)
		}
	}
	if err := settle.SettlePunishments(s.p, st, d.Punishments); err != nil {
		return fail(err)
	}
	if err := settle.Finish(s.p, st, d); err != nil {
		return fail(err)
	}
	res, err := st.Seal()
	if err != nil {
		return fail(err)
	}

	s.m.RoundsSettled.WithLabelValues(treatment).Inc()
	s.m.SettleLatency.WithLabelValues(treatment).Observe(time.Since(start).Seconds())
	for _, id := range res.Clamped() {
		s.m.CostClamps.WithLabelValues(treatment).Inc()
		rec, _ := res.Player(id)
		s.log.Printf("session %s round %d group %s: punishment cost of %s clamped to %.4f (sent %.4f points)",
			s.id, r, groupID, id, rec.PunishmentGivenCost, rec.PointsSent)
	}
	return res, d, nil
}

// gather runs one phase barrier. Every member is asked concurrently; a
// rejected answer is reported back and asked again up to MaxAttempts.
func (s *Session) gather(ctx context.Context, st *round.State, rules *settle.Rules, phase round.Phase, src DecisionSource, d *round.Decisions) error {
	start := time.Now()
	treatment := s.p.Treatment()
	members := st.Members()
	b := round.NewBarrier(phase, members, rules.Validator(phase))

	var (
		phaseCtx context.Context
		cancel   context.CancelFunc
	)
	if s.cfg.PhaseTimeout > 0 {
		phaseCtx, cancel = context.WithTimeout(ctx, s.cfg.PhaseTimeout)
	} else {
		phaseCtx, cancel = context.WithCancel(ctx)
	}
	defer cancel()

	notifier, _ := src.(Notifier)
	var wg sync.WaitGroup
	for _, id := range members {
		id := id
		wg.Add(1)
		go func() {
			defer wg.Done()
			v, err := st.View(id)
			if err != nil {
				return
			}
			for attempt := 1; attempt <= s.cfg.MaxAttempts; attempt++ {
				sub, err := src.Decide(phaseCtx, phase, v)
				if err != nil {
					if phaseCtx.Err() == nil {
						s.log.Printf("session %s round %d %s: %s decide: %v", s.id, st.Round(), phase, id, err)
					}
					return
				}
				if phaseCtx.Err() != nil {
					// too late; the timeout default applies
					return
				}
				err = b.Submit(id, sub)
				if err == nil || errors.Is(err, round.ErrPhaseClosed) {
					return
				}
				if errors.Is(err, round.ErrDuplicateSubmission) {
					// defaulted before this answer arrived
					return
				}
				msg := RejectFor(st.Round(), id, phase, err)
				s.m.Rejections.WithLabelValues(treatment, string(phase), msg.Code).Inc()
				if notifier != nil {
					notifier.Rejected(msg)
				}
			}
		}()
	}

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-b.Ready():
	case <-phaseCtx.Done():
	}

	// Default the stragglers first so a late answer finds its slot taken.
	var defaultErr error
	if ctx.Err() == nil {
		for _, id := range b.Pending() {
			if err := b.Default(id); err != nil {
				if errors.Is(err, round.ErrDuplicateSubmission) {
					// answered between the timeout and now
					continue
				}
				defaultErr = err
				break
			}
			d.MarkDefaulted(id, phase)
			s.m.Defaults.WithLabelValues(treatment, string(phase)).Inc()
			s.log.Printf("session %s round %d %s: %s defaulted", s.id, st.Round(), phase, id)
		}
	}
	// Settlement mutates st once this returns, so every answer still being
	// validated against it has to finish first.
	cancel()
	<-done
	if err := ctx.Err(); err != nil {
		return err
	}
	if defaultErr != nil {
		return defaultErr
	}
	subs, _, err := b.Release()
	if err != nil {
		return err
	}
	for _, id := range members {
		d.Set(phase, id, subs[id])
	}
	s.m.PhaseLatency.WithLabelValues(treatment, string(phase)).Observe(time.Since(start).Seconds())
	return nil
}

// History returns a copy of id's sealed round records in round order.
func (s *Session) History(id round.PlayerID) []round.PlayerRecord {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]round.PlayerRecord(nil), s.history[id]...)
}

// LastResults returns the latest sealed result per group.
func (s *Session) LastResults() []round.Result {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]round.Result, 0, len(s.groups))
	for _, g := range s.groups {
		if res, ok := s.last[g.ID]; ok {
			out = append(out, res)
		}
	}
	return out
}

// FinalResults totals every player's sealed rounds. It may be called on an
// aborted session; the last sealed round then counts as final.
func (s *Session) FinalResults() []FinalResult {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []FinalResult
	for _, g := range s.groups {
		for _, id := range g.Members {
			fr := finalResult(s.p, g.ID, s.history[id])
			fr.Player = id
			out = append(out, fr)
		}
	}
	return out
}

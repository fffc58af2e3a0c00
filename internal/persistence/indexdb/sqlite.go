package indexdb

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	_ "modernc.org/sqlite"

	"github.com/IenDonshin/LEVIATHAN-JP/internal/sim/params"
	"github.com/IenDonshin/LEVIATHAN-JP/internal/sim/round"
	"github.com/IenDonshin/LEVIATHAN-JP/internal/sim/session"
)

// SQLiteIndex is a queryable read-model of sealed rounds. Writes are queued
// to a single writer goroutine; the JSONL round log stays the source of truth.
type SQLiteIndex struct {
	db *sql.DB

	ch   chan req
	wg   sync.WaitGroup
	once sync.Once

	closed atomic.Bool

	dropRound   atomic.Uint64
	dropSession atomic.Uint64
	dropFinal   atomic.Uint64
}

type reqKind int

const (
	reqRound reqKind = iota + 1
	reqSession
	reqFinals
	reqFlush
)

type req struct {
	kind reqKind

	round   round.LogEntry
	session sessionRow
	finals  []finalRow
	done    chan struct{}
}

type sessionRow struct {
	SessionID  string
	Name       string
	Treatment  string
	Params     params.Params
	Players    int
	StartedAt  string
	ParamsJSON string
}

type finalRow struct {
	SessionID string
	session.FinalResult
}

type Stats struct {
	QueueDepth       int
	QueueCapacity    int
	DropRoundTotal   uint64
	DropSessionTotal uint64
	DropFinalTotal   uint64
}

func OpenSQLite(path string) (*SQLiteIndex, error) {
	if path == "" {
		return nil, fmt.Errorf("empty db path")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	if err := initPragmas(db); err != nil {
		_ = db.Close()
		return nil, err
	}
	if err := initSchema(db); err != nil {
		_ = db.Close()
		return nil, err
	}

	s := &SQLiteIndex{
		db: db,
		ch: make(chan req, 4096),
	}
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.loop()
	}()
	return s, nil
}

func initPragmas(db *sql.DB) error {
	pragmas := []string{
		"PRAGMA journal_mode=WAL;",
		"PRAGMA synchronous=NORMAL;",
		"PRAGMA foreign_keys=ON;",
		"PRAGMA busy_timeout=5000;",
		"PRAGMA temp_store=MEMORY;",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			return err
		}
	}
	return nil
}

func initSchema(db *sql.DB) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS meta (
			key TEXT PRIMARY KEY,
			value TEXT NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS sessions (
			session_id TEXT PRIMARY KEY,
			name TEXT NOT NULL,
			treatment TEXT NOT NULL,
			num_rounds INTEGER NOT NULL,
			players_per_group INTEGER NOT NULL,
			players INTEGER NOT NULL,
			params_json TEXT NOT NULL,
			started_at TEXT NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS rounds (
			session_id TEXT NOT NULL,
			group_id TEXT NOT NULL,
			round INTEGER NOT NULL,
			digest TEXT NOT NULL,
			total_contribution REAL NOT NULL,
			public_good REAL NOT NULL,
			individual_share REAL NOT NULL,
			total_power_after REAL NOT NULL,
			transfer_phase INTEGER NOT NULL,
			punishment_phase INTEGER NOT NULL,
			clamped INTEGER NOT NULL,
			raw_json TEXT NOT NULL,
			PRIMARY KEY (session_id, group_id, round)
		);`,
		`CREATE TABLE IF NOT EXISTS player_rounds (
			session_id TEXT NOT NULL,
			round INTEGER NOT NULL,
			player_id TEXT NOT NULL,
			group_id TEXT NOT NULL,
			contribution REAL NOT NULL,
			power_before REAL NOT NULL,
			power_after REAL NOT NULL,
			points_sent REAL NOT NULL,
			points_received REAL NOT NULL,
			punishment_given_cost REAL NOT NULL,
			punishment_received_loss REAL NOT NULL,
			transfer_cost REAL NOT NULL,
			round_payoff REAL NOT NULL,
			cumulative_payoff REAL NOT NULL,
			cost_clamped INTEGER NOT NULL,
			defaulted TEXT NOT NULL,
			PRIMARY KEY (session_id, round, player_id)
		);`,
		`CREATE INDEX IF NOT EXISTS idx_player_rounds_player ON player_rounds(session_id, player_id, round);`,
		`CREATE TABLE IF NOT EXISTS finals (
			session_id TEXT NOT NULL,
			player_id TEXT NOT NULL,
			group_id TEXT NOT NULL,
			rounds INTEGER NOT NULL,
			total_contribution REAL NOT NULL,
			total_points_sent REAL NOT NULL,
			total_points_received REAL NOT NULL,
			total_payoff REAL NOT NULL,
			average_payoff REAL NOT NULL,
			final_power REAL NOT NULL,
			payment REAL NOT NULL,
			PRIMARY KEY (session_id, player_id)
		);`,
		`INSERT OR REPLACE INTO meta(key,value) VALUES('schema_version','1');`,
	}
	for _, s := range stmts {
		if _, err := db.Exec(s); err != nil {
			return err
		}
	}
	return nil
}

func (s *SQLiteIndex) Close() error {
	var err error
	s.once.Do(func() {
		s.closed.Store(true)
		close(s.ch)
		s.wg.Wait()
		err = s.db.Close()
	})
	return err
}

func (s *SQLiteIndex) Stats() Stats {
	if s == nil {
		return Stats{}
	}
	return Stats{
		QueueDepth:       len(s.ch),
		QueueCapacity:    cap(s.ch),
		DropRoundTotal:   s.dropRound.Load(),
		DropSessionTotal: s.dropSession.Load(),
		DropFinalTotal:   s.dropFinal.Load(),
	}
}

// RecordRound queues a sealed group round. It never blocks the session.
func (s *SQLiteIndex) RecordRound(e round.LogEntry) error {
	if s == nil || s.closed.Load() {
		return nil
	}
	select {
	case s.ch <- req{kind: reqRound, round: e}:
	default:
		s.dropRound.Add(1)
	}
	return nil
}

func (s *SQLiteIndex) RecordSession(id, name string, p params.Params, players int) {
	if s == nil || s.closed.Load() {
		return
	}
	b, _ := json.Marshal(p)
	r := sessionRow{
		SessionID:  id,
		Name:       name,
		Treatment:  p.Treatment(),
		Params:     p,
		Players:    players,
		StartedAt:  time.Now().UTC().Format(time.RFC3339Nano),
		ParamsJSON: string(b),
	}
	select {
	case s.ch <- req{kind: reqSession, session: r}:
	default:
		s.dropSession.Add(1)
	}
}

func (s *SQLiteIndex) RecordFinals(sessionID string, results []session.FinalResult) {
	if s == nil || s.closed.Load() || len(results) == 0 {
		return
	}
	rows := make([]finalRow, 0, len(results))
	for _, fr := range results {
		rows = append(rows, finalRow{SessionID: sessionID, FinalResult: fr})
	}
	select {
	case s.ch <- req{kind: reqFinals, finals: rows}:
	default:
		s.dropFinal.Add(1)
	}
}

// Flush blocks until every queued write has been committed.
func (s *SQLiteIndex) Flush(ctx context.Context) error {
	if s == nil || s.closed.Load() {
		return nil
	}
	done := make(chan struct{})
	select {
	case s.ch <- req{kind: reqFlush, done: done}:
	case <-ctx.Done():
		return ctx.Err()
	}
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func boolInt(v bool) int {
	if v {
		return 1
	}
	return 0
}

func joinPhases(ph []round.Phase) string {
	parts := make([]string, 0, len(ph))
	for _, p := range ph {
		parts = append(parts, string(p))
	}
	return strings.Join(parts, ",")
}

func (s *SQLiteIndex) loop() {
	ctx := context.Background()

	insertSession, _ := s.db.Prepare(`INSERT OR REPLACE INTO sessions(session_id,name,treatment,num_rounds,players_per_group,players,params_json,started_at) VALUES(?,?,?,?,?,?,?,?)`)
	insertRound, _ := s.db.Prepare(`INSERT OR REPLACE INTO rounds(session_id,group_id,round,digest,total_contribution,public_good,individual_share,total_power_after,transfer_phase,punishment_phase,clamped,raw_json) VALUES(?,?,?,?,?,?,?,?,?,?,?,?)`)
	insertPlayer, _ := s.db.Prepare(`INSERT OR REPLACE INTO player_rounds(session_id,round,player_id,group_id,contribution,power_before,power_after,points_sent,points_received,punishment_given_cost,punishment_received_loss,transfer_cost,round_payoff,cumulative_payoff,cost_clamped,defaulted) VALUES(?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?)`)
	insertFinal, _ := s.db.Prepare(`INSERT OR REPLACE INTO finals(session_id,player_id,group_id,rounds,total_contribution,total_points_sent,total_points_received,total_payoff,average_payoff,final_power,payment) VALUES(?,?,?,?,?,?,?,?,?,?,?)`)
	defer func() {
		for _, st := range []*sql.Stmt{insertSession, insertRound, insertPlayer, insertFinal} {
			if st != nil {
				_ = st.Close()
			}
		}
	}()

	var (
		tx          *sql.Tx
		opCount     int
		commitEvery = 500
	)

	begin := func() {
		if tx != nil {
			return
		}
		txx, err := s.db.BeginTx(ctx, nil)
		if err != nil {
			time.Sleep(50 * time.Millisecond)
			return
		}
		tx = txx
		opCount = 0
	}
	commit := func() {
		if tx == nil {
			return
		}
		_ = tx.Commit()
		tx = nil
		opCount = 0
	}
	rollback := func() {
		if tx == nil {
			return
		}
		_ = tx.Rollback()
		tx = nil
		opCount = 0
	}
	exec := func(st *sql.Stmt, args ...any) bool {
		if st == nil || tx == nil {
			return false
		}
		if _, err := tx.Stmt(st).Exec(args...); err != nil {
			rollback()
			return false
		}
		opCount++
		return true
	}

	for r := range s.ch {
		if r.kind == reqFlush {
			commit()
			close(r.done)
			continue
		}
		begin()
		if tx == nil {
			continue
		}
		switch r.kind {
		case reqSession:
			se := r.session
			exec(insertSession, se.SessionID, se.Name, se.Treatment, se.Params.NumRounds,
				se.Params.PlayersPerGroup, se.Players, se.ParamsJSON, se.StartedAt)

		case reqRound:
			e := r.round
			g := e.Result.Group
			raw, _ := json.Marshal(e)
			if !exec(insertRound, e.SessionID, g.GroupID, g.Round, e.Digest,
				g.TotalContribution, g.PublicGood, g.IndividualShare, g.TotalPowerAfter,
				boolInt(g.TransferPhase), boolInt(g.PunishmentPhase), len(e.Result.Clamped()), string(raw)) {
				continue
			}
			for _, p := range e.Result.Players {
				if !exec(insertPlayer, e.SessionID, p.Round, string(p.Player), g.GroupID,
					p.Contribution, p.PowerBefore, p.PowerAfter, p.PointsSent, p.PointsReceived,
					p.PunishmentGivenCost, p.PunishmentReceivedLoss, p.TransferCost,
					p.RoundPayoff, p.CumulativePayoff, boolInt(p.CostClamped), joinPhases(p.Defaulted)) {
					break
				}
			}

		case reqFinals:
			for _, f := range r.finals {
				if !exec(insertFinal, f.SessionID, string(f.Player), f.GroupID, f.Rounds,
					f.TotalContribution, f.TotalPointsSent, f.TotalPointsReceived,
					f.TotalPayoff, f.AveragePayoff, f.FinalPower, f.Payment) {
					break
				}
			}
		}
		// Commit once the queue drains so readers see whole rounds.
		if opCount >= commitEvery || len(s.ch) == 0 {
			commit()
		}
	}

	commit()
}

package indexdb

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"
)

// Reader queries an index written by SQLiteIndex. It may be opened while a
// writer is running; WAL mode keeps readers off the writer's lock.
type Reader struct {
	db *sqlx.DB
}

type SessionRow struct {
	SessionID       string `db:"session_id" json:"session_id"`
	Name            string `db:"name" json:"name"`
	Treatment       string `db:"treatment" json:"treatment"`
	NumRounds       int    `db:"num_rounds" json:"num_rounds"`
	PlayersPerGroup int    `db:"players_per_group" json:"players_per_group"`
	Players         int    `db:"players" json:"players"`
	StartedAt       string `db:"started_at" json:"started_at"`
}

type RoundRow struct {
	SessionID         string  `db:"session_id" json:"session_id"`
	GroupID           string  `db:"group_id" json:"group_id"`
	Round             int     `db:"round" json:"round"`
	Digest            string  `db:"digest" json:"digest"`
	TotalContribution float64 `db:"total_contribution" json:"total_contribution"`
	PublicGood        float64 `db:"public_good" json:"public_good"`
	IndividualShare   float64 `db:"individual_share" json:"individual_share"`
	TotalPowerAfter   float64 `db:"total_power_after" json:"total_power_after"`
	TransferPhase     bool    `db:"transfer_phase" json:"transfer_phase"`
	PunishmentPhase   bool    `db:"punishment_phase" json:"punishment_phase"`
	Clamped           int     `db:"clamped" json:"clamped"`
}

type PlayerRoundRow struct {
	SessionID              string  `db:"session_id" json:"session_id"`
	Round                  int     `db:"round" json:"round"`
	PlayerID               string  `db:"player_id" json:"player_id"`
	GroupID                string  `db:"group_id" json:"group_id"`
	Contribution           float64 `db:"contribution" json:"contribution"`
	PowerBefore            float64 `db:"power_before" json:"power_before"`
	PowerAfter             float64 `db:"power_after" json:"power_after"`
	PointsSent             float64 `db:"points_sent" json:"points_sent"`
	PointsReceived         float64 `db:"points_received" json:"points_received"`
	PunishmentGivenCost    float64 `db:"punishment_given_cost" json:"punishment_given_cost"`
	PunishmentReceivedLoss float64 `db:"punishment_received_loss" json:"punishment_received_loss"`
	TransferCost           float64 `db:"transfer_cost" json:"transfer_cost"`
	RoundPayoff            float64 `db:"round_payoff" json:"round_payoff"`
	CumulativePayoff       float64 `db:"cumulative_payoff" json:"cumulative_payoff"`
	CostClamped            bool    `db:"cost_clamped" json:"cost_clamped"`
	Defaulted              string  `db:"defaulted" json:"defaulted,omitempty"`
}

type FinalRow struct {
	SessionID           string  `db:"session_id" json:"session_id"`
	PlayerID            string  `db:"player_id" json:"player_id"`
	GroupID             string  `db:"group_id" json:"group_id"`
	Rounds              int     `db:"rounds" json:"rounds"`
	TotalContribution   float64 `db:"total_contribution" json:"total_contribution"`
	TotalPointsSent     float64 `db:"total_points_sent" json:"total_points_sent"`
	TotalPointsReceived float64 `db:"total_points_received" json:"total_points_received"`
	TotalPayoff         float64 `db:"total_payoff" json:"total_payoff"`
	AveragePayoff       float64 `db:"average_payoff" json:"average_payoff"`
	FinalPower          float64 `db:"final_power" json:"final_power"`
	Payment             float64 `db:"payment" json:"payment"`
}

func OpenReader(path string) (*Reader, error) {
	if path == "" {
		return nil, fmt.Errorf("empty db path")
	}
	db, err := sqlx.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	if _, err := db.Exec("PRAGMA busy_timeout=5000;"); err != nil {
		_ = db.Close()
		return nil, err
	}
	return &Reader{db: db}, nil
}

func (r *Reader) Close() error { return r.db.Close() }

func (r *Reader) Sessions(ctx context.Context) ([]SessionRow, error) {
	var out []SessionRow
	err := r.db.SelectContext(ctx, &out, `SELECT session_id,name,treatment,num_rounds,players_per_group,players,started_at
		FROM sessions ORDER BY started_at, session_id`)
	return out, err
}

func (r *Reader) Session(ctx context.Context, id string) (SessionRow, error) {
	var out SessionRow
	err := r.db.GetContext(ctx, &out, `SELECT session_id,name,treatment,num_rounds,players_per_group,players,started_at
		FROM sessions WHERE session_id=?`, id)
	return out, err
}

// Rounds lists sealed group rounds of a session. round <= 0 lists all rounds.
func (r *Reader) Rounds(ctx context.Context, sessionID string, round int) ([]RoundRow, error) {
	q := `SELECT session_id,group_id,round,digest,total_contribution,public_good,individual_share,
		total_power_after,transfer_phase,punishment_phase,clamped
		FROM rounds WHERE session_id=?`
	args := []any{sessionID}
	if round > 0 {
		q += ` AND round=?`
		args = append(args, round)
	}
	q += ` ORDER BY round, group_id`
	var out []RoundRow
	err := r.db.SelectContext(ctx, &out, q, args...)
	return out, err
}

// RawRound returns the stored log entry JSON for one group round.
func (r *Reader) RawRound(ctx context.Context, sessionID, groupID string, round int) ([]byte, error) {
	var raw string
	err := r.db.GetContext(ctx, &raw, `SELECT raw_json FROM rounds WHERE session_id=? AND group_id=? AND round=?`,
		sessionID, groupID, round)
	return []byte(raw), err
}

func (r *Reader) PlayerHistory(ctx context.Context, sessionID, playerID string) ([]PlayerRoundRow, error) {
	var out []PlayerRoundRow
	err := r.db.SelectContext(ctx, &out, `SELECT * FROM player_rounds
		WHERE session_id=? AND player_id=? ORDER BY round`, sessionID, playerID)
	return out, err
}

func (r *Reader) Finals(ctx context.Context, sessionID string) ([]FinalRow, error) {
	var out []FinalRow
	err := r.db.SelectContext(ctx, &out, `SELECT * FROM finals WHERE session_id=? ORDER BY player_id`, sessionID)
	return out, err
}

// Clamps lists the player rounds whose punishment cost was clamped.
func (r *Reader) Clamps(ctx context.Context, sessionID string) ([]PlayerRoundRow, error) {
	var out []PlayerRoundRow
	err := r.db.SelectContext(ctx, &out, `SELECT * FROM player_rounds
		WHERE session_id=? AND cost_clamped=1 ORDER BY round, player_id`, sessionID)
	return out, err
}

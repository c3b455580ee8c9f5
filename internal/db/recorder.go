// Package db records session runs and closed trades to Postgres for later
// review. Writes are asynchronous and best-effort: the dashboard must keep
// working when the database is down.
package db

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"
)

const writeTimeout = 3 * time.Second

// Recorder wraps a pgx pool and provides fire-and-forget writers.
type Recorder struct {
	pool *pgxpool.Pool
	log  zerolog.Logger
}

// NewRecorder creates a connection pool and ensures tables exist.
func NewRecorder(dsn string, log zerolog.Logger) (*Recorder, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("pgxpool.New: %w", err)
	}
	r := &Recorder{pool: pool, log: log}
	if err := r.ensureSchema(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return r, nil
}

// Close releases the pool.
func (r *Recorder) Close() {
	if r.pool != nil {
		r.pool.Close()
	}
}

func (r *Recorder) ensureSchema(ctx context.Context) error {
	stmts := []string{
		`create table if not exists session_runs (
			id bigserial primary key,
			session_id text unique not null,
			strategy_class text not null,
			async boolean not null default false,
			started_at timestamptz not null default now(),
			stopped_at timestamptz,
			status text not null default 'running',
			failure text
		)`,
		`create index if not exists idx_session_runs_class on session_runs(strategy_class, started_at desc)`,
		`create table if not exists session_trades (
			id bigserial primary key,
			session_id text not null,
			server_id text not null,
			display_seq integer not null,
			recorded_at timestamptz not null default now(),
			details jsonb
		)`,
		`create index if not exists idx_session_trades_run on session_trades(session_id, display_seq)`,
	}
	for _, s := range stmts {
		if _, err := r.pool.Exec(ctx, s); err != nil {
			return fmt.Errorf("ensure recorder schema: %w", err)
		}
	}
	return nil
}

// RunStarted records the start of a session run.
func (r *Recorder) RunStarted(sessionID, strategyClass string, async bool) {
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), writeTimeout)
		defer cancel()
		_, err := r.pool.Exec(ctx,
			`insert into session_runs(session_id, strategy_class, async) values($1,$2,$3)
			 on conflict(session_id) do nothing`,
			sessionID, strategyClass, async)
		if err != nil {
			r.log.Warn().Err(err).Str("session", sessionID).Msg("recorder: run start write failed")
		}
	}()
}

// RunStopped records a terminal transition. status is "stopped" or
// "errored"; failure carries the engine's reason when errored.
func (r *Recorder) RunStopped(sessionID, status, failure string) {
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), writeTimeout)
		defer cancel()
		_, err := r.pool.Exec(ctx,
			`update session_runs set stopped_at = now(), status = $2, failure = nullif($3, '') where session_id = $1`,
			sessionID, status, failure)
		if err != nil {
			r.log.Warn().Err(err).Str("session", sessionID).Msg("recorder: run stop write failed")
		}
	}()
}

// TradeClosed records one closed trade. details is marshalled verbatim.
func (r *Recorder) TradeClosed(sessionID, serverID string, displaySeq int, details any) {
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), writeTimeout)
		defer cancel()
		var dj []byte
		if details != nil {
			dj, _ = json.Marshal(details)
		}
		_, err := r.pool.Exec(ctx,
			`insert into session_trades(session_id, server_id, display_seq, details) values($1,$2,$3,$4)`,
			sessionID, serverID, displaySeq, dj)
		if err != nil {
			r.log.Warn().Err(err).Str("session", sessionID).Msg("recorder: trade write failed")
		}
	}()
}

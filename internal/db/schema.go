package db

import (
	"context"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"
	_ "modernc.org/sqlite"
)

var schema_stmts = []string{
	`PRAGMA journal_mode=WAL;`,
	`PRAGMA foreign_keys=ON;`,
	`CREATE TABLE IF NOT EXISTS models (
		name TEXT PRIMARY KEY,
		provider TEXT NOT NULL DEFAULT '',
		model_id TEXT NOT NULL DEFAULT '',
		description TEXT NOT NULL DEFAULT '',
		initial_elo INTEGER NOT NULL DEFAULT 1500,
		rating INTEGER NOT NULL DEFAULT 1500,
		games INTEGER NOT NULL DEFAULT 0,
		wins INTEGER NOT NULL DEFAULT 0,
		draws INTEGER NOT NULL DEFAULT 0,
		losses INTEGER NOT NULL DEFAULT 0,
		active INTEGER NOT NULL DEFAULT 0,
		updated_at TEXT NOT NULL DEFAULT (strftime('%Y-%m-%dT%H:%M:%fZ','now'))
	);`,
	`CREATE TABLE IF NOT EXISTS games (
		id TEXT PRIMARY KEY,
		white TEXT NOT NULL,
		black TEXT NOT NULL,
		result TEXT NOT NULL DEFAULT '*',
		termination TEXT NOT NULL DEFAULT '',
		opening TEXT NOT NULL DEFAULT '',
		battle_id TEXT NOT NULL DEFAULT '',
		tournament_id TEXT NOT NULL DEFAULT '',
		round INTEGER NOT NULL DEFAULT 0,
		final_fen TEXT NOT NULL DEFAULT '',
		pgn TEXT NOT NULL DEFAULT '',
		move_count INTEGER NOT NULL DEFAULT 0,
		fallbacks INTEGER NOT NULL DEFAULT 0,
		error TEXT NOT NULL DEFAULT '',
		started_at TEXT NOT NULL,
		ended_at TEXT NOT NULL
		CHECK (result IN ('*', '1-0', '0-1', '1/2-1/2'))
	);`,
	`CREATE TABLE IF NOT EXISTS moves (
		game_id TEXT NOT NULL REFERENCES games(id) ON DELETE CASCADE,
		ply INTEGER NOT NULL,
		number INTEGER NOT NULL,
		color TEXT NOT NULL,
		model TEXT NOT NULL,
		raw TEXT NOT NULL DEFAULT '',
		notation TEXT NOT NULL DEFAULT '',
		san TEXT NOT NULL,
		uci TEXT NOT NULL,
		fen TEXT NOT NULL,
		captured TEXT NOT NULL DEFAULT '',
		is_check INTEGER NOT NULL DEFAULT 0,
		is_checkmate INTEGER NOT NULL DEFAULT 0,
		fallback INTEGER NOT NULL DEFAULT 0,
		fallback_reason TEXT NOT NULL DEFAULT '',
		opening INTEGER NOT NULL DEFAULT 0,
		played_at TEXT NOT NULL,
		PRIMARY KEY (game_id, ply)
	);`,
	`CREATE TABLE IF NOT EXISTS battles (
		id TEXT PRIMARY KEY,
		white TEXT NOT NULL,
		black TEXT NOT NULL,
		status TEXT NOT NULL,
		num_games INTEGER NOT NULL,
		started_at TEXT NOT NULL,
		data TEXT NOT NULL
	);`,
	`CREATE TABLE IF NOT EXISTS tournaments (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		type TEXT NOT NULL,
		status TEXT NOT NULL,
		winner TEXT NOT NULL DEFAULT '',
		created_at TEXT NOT NULL,
		data TEXT NOT NULL
	);`,
	`CREATE TABLE IF NOT EXISTS elo_history (
		id INTEGER PRIMARY KEY,
		model TEXT NOT NULL,
		game_id TEXT NOT NULL,
		opponent TEXT NOT NULL,
		result TEXT NOT NULL,
		rating_before INTEGER NOT NULL,
		rating_after INTEGER NOT NULL,
		recorded_at TEXT NOT NULL
	);`,
	`CREATE TABLE IF NOT EXISTS settings (
		key TEXT PRIMARY KEY,
		value
	);`,
	`CREATE INDEX IF NOT EXISTS idx_games_ended_at ON games(ended_at);`,
	`CREATE INDEX IF NOT EXISTS idx_games_white ON games(white);`,
	`CREATE INDEX IF NOT EXISTS idx_games_black ON games(black);`,
	`CREATE INDEX IF NOT EXISTS idx_games_battle_id ON games(battle_id);`,
	`CREATE INDEX IF NOT EXISTS idx_games_tournament_id ON games(tournament_id);`,
	`CREATE INDEX IF NOT EXISTS idx_elo_history_model ON elo_history(model, id);`,
}

type Store struct {
	db *sqlx.DB
}

func Open(path string) (*Store, error) {
	db, err := sqlx.Open("sqlite", path)
	if err != nil {
		return nil, errors.Wrap(err, "open sqlite")
	}

	// single writer; sqlite serialises anyway.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, errors.Wrap(err, "ping sqlite")
	}

	for _, stmt := range schema_stmts {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			_ = db.Close()
			return nil, errors.Wrap(err, "migrate")
		}
	}

	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

const timeLayout = "2006-01-02T15:04:05.000Z07:00"

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func parseTime(s string) time.Time {
	t, err := time.Parse(timeLayout, s)
	if err != nil {
		t, _ = time.Parse(time.RFC3339Nano, s)
	}
	return t
}

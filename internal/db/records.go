package db

import (
	"context"
	"database/sql"
	"encoding/json"

	"github.com/pkg/errors"

	"llmarena/internal/battle"
	"llmarena/internal/tournament"
)

// SaveBattle writes the battle's current snapshot, replacing any earlier one.
func (s *Store) SaveBattle(ctx context.Context, rec battle.Record) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return errors.Wrap(err, "encode battle")
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO battles (id, white, black, status, num_games, started_at, data)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			status = excluded.status,
			data = excluded.data
	`, rec.ID, rec.White, rec.Black, string(rec.Status), rec.NumGames, formatTime(rec.StartedAt), string(data))
	return errors.Wrapf(err, "save battle %s", rec.ID)
}

func (s *Store) GetBattle(ctx context.Context, id string) (battle.Record, error) {
	var data string
	err := s.db.GetContext(ctx, &data, `SELECT data FROM battles WHERE id = ?`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return battle.Record{}, ErrNotFound
	}
	if err != nil {
		return battle.Record{}, errors.Wrapf(err, "get battle %s", id)
	}
	var rec battle.Record
	if err := json.Unmarshal([]byte(data), &rec); err != nil {
		return battle.Record{}, errors.Wrapf(err, "decode battle %s", id)
	}
	return rec, nil
}

// ListBattles returns stored battles, newest first.
func (s *Store) ListBattles(ctx context.Context, limit int) ([]battle.Record, error) {
	if limit <= 0 {
		limit = 50
	}
	var rows []string
	if err := s.db.SelectContext(ctx, &rows, `
		SELECT data FROM battles ORDER BY started_at DESC, id DESC LIMIT ?
	`, limit); err != nil {
		return nil, errors.Wrap(err, "list battles")
	}
	out := make([]battle.Record, 0, len(rows))
	for _, data := range rows {
		var rec battle.Record
		if err := json.Unmarshal([]byte(data), &rec); err != nil {
			return nil, errors.Wrap(err, "decode battle")
		}
		out = append(out, rec)
	}
	return out, nil
}

// SaveTournament writes the tournament's current snapshot, replacing any
// earlier one.
func (s *Store) SaveTournament(ctx context.Context, rec tournament.Record) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return errors.Wrap(err, "encode tournament")
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO tournaments (id, name, type, status, winner, created_at, data)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			status = excluded.status,
			winner = excluded.winner,
			data = excluded.data
	`, rec.ID, rec.Name, string(rec.Type), string(rec.Status), rec.Winner, formatTime(rec.CreatedAt), string(data))
	return errors.Wrapf(err, "save tournament %s", rec.ID)
}

func (s *Store) GetTournament(ctx context.Context, id string) (tournament.Record, error) {
	var data string
	err := s.db.GetContext(ctx, &data, `SELECT data FROM tournaments WHERE id = ?`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return tournament.Record{}, ErrNotFound
	}
	if err != nil {
		return tournament.Record{}, errors.Wrapf(err, "get tournament %s", id)
	}
	var rec tournament.Record
	if err := json.Unmarshal([]byte(data), &rec); err != nil {
		return tournament.Record{}, errors.Wrapf(err, "decode tournament %s", id)
	}
	return rec, nil
}

// ListTournaments returns stored tournaments, newest first. An empty status
// matches all.
func (s *Store) ListTournaments(ctx context.Context, status tournament.Status, limit int) ([]tournament.Record, error) {
	if limit <= 0 {
		limit = 50
	}
	var rows []string
	if err := s.db.SelectContext(ctx, &rows, `
		SELECT data FROM tournaments
		WHERE ? = '' OR status = ?
		ORDER BY created_at DESC, id DESC
		LIMIT ?
	`, string(status), string(status), limit); err != nil {
		return nil, errors.Wrap(err, "list tournaments")
	}
	out := make([]tournament.Record, 0, len(rows))
	for _, data := range rows {
		var rec tournament.Record
		if err := json.Unmarshal([]byte(data), &rec); err != nil {
			return nil, errors.Wrap(err, "decode tournament")
		}
		out = append(out, rec)
	}
	return out, nil
}

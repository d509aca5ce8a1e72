package db

import (
	"context"
	"database/sql"
	"strings"
	"time"

	"github.com/pkg/errors"

	"llmarena/internal/rating"
)

// UpsertModel registers a model or refreshes its static details. Rating and
// game counters of a known model are left alone.
func (s *Store) UpsertModel(ctx context.Context, m ModelRow) error {
	m.Name = strings.TrimSpace(m.Name)
	if m.Name == "" {
		return errors.New("model name is empty")
	}
	if m.InitialElo == 0 {
		m.InitialElo = rating.DefaultRating
	}
	m.UpdatedAt = formatTime(time.Now())
	_, err := s.db.NamedExecContext(ctx, `
		INSERT INTO models (name, provider, model_id, description, initial_elo, rating, active, updated_at)
		VALUES (:name, :provider, :model_id, :description, :initial_elo, :initial_elo, :active, :updated_at)
		ON CONFLICT(name) DO UPDATE SET
			provider = excluded.provider,
			model_id = excluded.model_id,
			description = excluded.description,
			initial_elo = excluded.initial_elo,
			active = excluded.active,
			updated_at = excluded.updated_at
	`, m)
	return errors.Wrapf(err, "upsert model %s", m.Name)
}

// ListModels returns every known model, strongest first.
func (s *Store) ListModels(ctx context.Context) ([]ModelRow, error) {
	var out []ModelRow
	err := s.db.SelectContext(ctx, &out, `
		SELECT name, provider, model_id, description, initial_elo, rating, games, wins,
			draws, losses, active, updated_at
		FROM models
		ORDER BY rating DESC, name ASC
	`)
	return out, errors.Wrap(err, "list models")
}

func (s *Store) GetModel(ctx context.Context, name string) (ModelRow, error) {
	var m ModelRow
	err := s.db.GetContext(ctx, &m, `
		SELECT name, provider, model_id, description, initial_elo, rating, games, wins,
			draws, losses, active, updated_at
		FROM models
		WHERE name = ?
	`, name)
	if errors.Is(err, sql.ErrNoRows) {
		return ModelRow{}, ErrNotFound
	}
	return m, errors.Wrapf(err, "get model %s", name)
}

// RecordRatingChange writes both sides of a rated game: the new ratings and
// counters on the models and one history row per model.
func (s *Store) RecordRatingChange(ctx context.Context, c rating.Change) (err error) {
	white, black, decided, err := rating.Score(c.Result)
	if err != nil {
		return err
	}
	if !decided {
		return errors.Errorf("rating change for undecided game %s", c.GameID)
	}

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return errors.Wrap(err, "begin rating change")
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	at := c.At
	if at.IsZero() {
		at = time.Now()
	}
	stamp := formatTime(at)
	sides := []struct {
		model, opponent string
		before, after   int
		score           float64
	}{
		{c.White, c.Black, c.WhiteBefore, c.WhiteAfter, white},
		{c.Black, c.White, c.BlackBefore, c.BlackAfter, black},
	}
	for _, side := range sides {
		if _, err = tx.ExecContext(ctx, `
			INSERT OR IGNORE INTO models (name, initial_elo, rating, updated_at)
			VALUES (?, ?, ?, ?)
		`, side.model, side.before, side.before, stamp); err != nil {
			return errors.Wrapf(err, "ensure model %s", side.model)
		}
		if _, err = tx.ExecContext(ctx, `
			UPDATE models
			SET rating = ?,
				games = games + 1,
				wins = wins + ?,
				draws = draws + ?,
				losses = losses + ?,
				updated_at = ?
			WHERE name = ?
		`, side.after, b2i(side.score == 1), b2i(side.score == 0.5), b2i(side.score == 0), stamp, side.model); err != nil {
			return errors.Wrapf(err, "update model %s", side.model)
		}
		if _, err = tx.ExecContext(ctx, `
			INSERT INTO elo_history (model, game_id, opponent, result, rating_before, rating_after, recorded_at)
			VALUES (?, ?, ?, ?, ?, ?, ?)
		`, side.model, c.GameID, side.opponent, outcome(side.score), side.before, side.after, stamp); err != nil {
			return errors.Wrapf(err, "insert elo history for %s", side.model)
		}
	}
	err = tx.Commit()
	return errors.Wrap(err, "commit rating change")
}

// EloHistory lists a model's rating changes, oldest first. A positive limit
// keeps only the most recent entries.
func (s *Store) EloHistory(ctx context.Context, model string, limit int) ([]EloPoint, error) {
	if limit <= 0 {
		limit = -1
	}
	var out []EloPoint
	err := s.db.SelectContext(ctx, &out, `
		SELECT game_id, opponent, result, rating_before, rating_after, recorded_at
		FROM (
			SELECT id, game_id, opponent, result, rating_before, rating_after, recorded_at
			FROM elo_history
			WHERE model = ?
			ORDER BY id DESC
			LIMIT ?
		)
		ORDER BY id ASC
	`, model, limit)
	return out, errors.Wrapf(err, "elo history of %s", model)
}

func outcome(score float64) string {
	switch score {
	case 1:
		return "win"
	case 0:
		return "loss"
	}
	return "draw"
}

func b2i(b bool) int {
	if b {
		return 1
	}
	return 0
}

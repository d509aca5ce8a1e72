package db

import (
	"context"
	"database/sql"

	"github.com/google/uuid"
	"github.com/pkg/errors"
)

func (s *Store) Setting(ctx context.Context, key string) (string, error) {
	var value string
	err := s.db.GetContext(ctx, &value, `SELECT CAST(value AS TEXT) FROM settings WHERE key = ?`, key)
	if errors.Is(err, sql.ErrNoRows) {
		return "", ErrNotFound
	}
	return value, errors.Wrapf(err, "setting %s", key)
}

func (s *Store) PutSetting(ctx context.Context, key, value string) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO settings (key, value) VALUES (?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value
	`, key, value)
	return errors.Wrapf(err, "put setting %s", key)
}

// InstanceID returns the identifier of this database, generating it on first
// use. It names the process towards message brokers.
func (s *Store) InstanceID(ctx context.Context) (string, error) {
	id := uuid.NewString()
	if _, err := s.db.ExecContext(ctx, `
		INSERT OR IGNORE INTO settings (key, value) VALUES ('instance_id', ?)
	`, id); err != nil {
		return "", errors.Wrap(err, "create instance id")
	}
	return s.Setting(ctx, "instance_id")
}

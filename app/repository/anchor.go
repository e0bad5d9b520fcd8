package repository

import (
	"context"
	"database/sql"
	"errors"
	"time"
)

const createOfferAnchorsTable = `
CREATE TABLE IF NOT EXISTS offer_anchors (
	anchor_key VARCHAR(191) NOT NULL PRIMARY KEY,
	anchor_value VARCHAR(64) NOT NULL,
	updated_at TIMESTAMP NOT NULL
)`

// SQLAnchorStore keeps offer timer anchors in the offer_anchors table.
// The queries are portable between MySQL and SQLite.
type SQLAnchorStore struct {
	db DBTX
}

func NewSQLAnchorStore(db DBTX) *SQLAnchorStore {
	return &SQLAnchorStore{db: db}
}

func (s *SQLAnchorStore) EnsureSchema(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, createOfferAnchorsTable)
	return err
}

func (s *SQLAnchorStore) Get(ctx context.Context, key string) (string, bool, error) {
	var value string
	err := s.db.QueryRowContext(ctx, `SELECT anchor_value FROM offer_anchors WHERE anchor_key = ?`, key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return value, true, nil
}

func (s *SQLAnchorStore) SetIfAbsent(ctx context.Context, key, value string) (bool, error) {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO offer_anchors (anchor_key, anchor_value, updated_at) VALUES (?, ?, ?)`,
		key, value, time.Now().UTC(),
	)
	if err != nil {
		if isDuplicateEntryError(err) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

func (s *SQLAnchorStore) Set(ctx context.Context, key, value string) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE offer_anchors SET anchor_value = ?, updated_at = ? WHERE anchor_key = ?`,
		value, time.Now().UTC(), key,
	)
	if err != nil {
		return err
	}
	if n, err := res.RowsAffected(); err == nil && n > 0 {
		return nil
	}

	stored, err := s.SetIfAbsent(ctx, key, value)
	if err != nil {
		return err
	}
	if !stored {
		// MySQL reports zero affected rows when the value is unchanged.
		_, err = s.db.ExecContext(ctx,
			`UPDATE offer_anchors SET anchor_value = ?, updated_at = ? WHERE anchor_key = ?`,
			value, time.Now().UTC(), key,
		)
	}
	return err
}

package state

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

// BatchHash returns the fingerprint of the last batch a pipeline consumed
// from source, or "" when none was recorded.
func (s *SQLiteStore) BatchHash(ctx context.Context, pipeline, source string) (string, error) {
	if s.db == nil {
		return "", errNotOpen
	}
	var hash string
	err := s.db.QueryRowContext(ctx,
		`SELECT hash FROM batch_hashes WHERE pipeline = ? AND source = ?`, pipeline, source).Scan(&hash)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("failed to get batch hash: %w", err)
	}
	return hash, nil
}

// SetBatchHash stores the fingerprint of the batch consumed from source.
func (s *SQLiteStore) SetBatchHash(ctx context.Context, pipeline, source, hash, runID string) error {
	if s.db == nil {
		return errNotOpen
	}
	_, err := s.db.ExecContext(ctx, `INSERT INTO batch_hashes (pipeline, source, hash, run_id, updated_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT (pipeline, source) DO UPDATE SET hash = excluded.hash, run_id = excluded.run_id, updated_at = excluded.updated_at`,
		pipeline, source, hash, runID, s.now())
	if err != nil {
		return fmt.Errorf("failed to set batch hash: %w", err)
	}
	return nil
}

package store

import (
	"context"
	"fmt"
)

// InsertNonceIfUnused atomically records nonce as consumed, returning true
// iff this call was the first to insert it.
func (s *Store) InsertNonceIfUnused(ctx context.Context, nonce string) (bool, error) {
	cmd, err := s.pool.Exec(ctx, `
		INSERT INTO used_nonces (nonce) VALUES ($1)
		ON CONFLICT (nonce) DO NOTHING`,
		nonce,
	)
	if err != nil {
		return false, fmt.Errorf("failed to insert nonce: %w", err)
	}
	return cmd.RowsAffected() == 1, nil
}

package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
)

// ErrNotFound is returned when a lookup matches no row.
var ErrNotFound = errors.New("not found")

const matchColumns = `match_id, join_code, program_id, authority_pubkey, game_pda, vault_pda,
	player1_pubkey, player2_pubkey, entry_lamports, match_status, winner_pubkey,
	finalization_reason_code, reason_detail, result_idempotency_key,
	create_tx_sig, join_tx_sig, final_tx_sig,
	created_onchain_at, joined_onchain_at, join_expires_at, settle_expires_at,
	result_reported_at, last_error, finalized_at, updated_at, created_at`

func scanMatchRow(row pgx.Row) (*MatchRecord, error) {
	var m MatchRecord
	err := row.Scan(
		&m.MatchID, &m.JoinCode, &m.ProgramID, &m.AuthorityPubkey, &m.GamePDA, &m.VaultPDA,
		&m.Player1Pubkey, &m.Player2Pubkey, &m.EntryLamports, &m.MatchStatus, &m.WinnerPubkey,
		&m.FinalizationReasonCode, &m.ReasonDetail, &m.ResultIdempotencyKey,
		&m.CreateTxSig, &m.JoinTxSig, &m.FinalTxSig,
		&m.CreatedOnchainAt, &m.JoinedOnchainAt, &m.JoinExpiresAt, &m.SettleExpiresAt,
		&m.ResultReportedAt, &m.LastError, &m.FinalizedAt, &m.UpdatedAt, &m.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &m, nil
}

// InsertMatch creates a new match row in waiting_create_tx.
func (s *Store) InsertMatch(ctx context.Context, rec *MatchRecord) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO matches (
			match_id, join_code, program_id, authority_pubkey, game_pda, vault_pda,
			player1_pubkey, entry_lamports, match_status
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)`,
		rec.MatchID, rec.JoinCode, rec.ProgramID, rec.AuthorityPubkey, rec.GamePDA, rec.VaultPDA,
		rec.Player1Pubkey, rec.EntryLamports, rec.MatchStatus,
	)
	if err != nil {
		return fmt.Errorf("failed to insert match: %w", err)
	}
	return nil
}

// GetByJoinCode returns the match with the given (already normalized) join code.
func (s *Store) GetByJoinCode(ctx context.Context, joinCode string) (*MatchRecord, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+matchColumns+` FROM matches WHERE join_code = $1`, joinCode)
	return scanMatchRow(row)
}

// GetByMatchID returns the match with the given id.
func (s *Store) GetByMatchID(ctx context.Context, matchID int64) (*MatchRecord, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+matchColumns+` FROM matches WHERE match_id = $1`, matchID)
	return scanMatchRow(row)
}

// ConfirmCreate transitions a match from waiting_create_tx to created_on_chain,
// coalescing the signature/timestamp fields so a replayed confirm never
// overwrites the first-recorded values. It is a no-op (returns the row
// unchanged) when the match is already past waiting_create_tx.
func (s *Store) ConfirmCreate(ctx context.Context, matchID int64, createTxSig string, createdOnchainAt time.Time, joinExpiresAt time.Time) (*MatchRecord, error) {
	row := s.pool.QueryRow(ctx, `
		UPDATE matches SET
			match_status = 'created_on_chain',
			create_tx_sig = COALESCE(create_tx_sig, $2),
			created_onchain_at = COALESCE(created_onchain_at, $3),
			join_expires_at = COALESCE(join_expires_at, $4),
			updated_at = now()
		WHERE match_id = $1 AND match_status = 'waiting_create_tx'
		RETURNING `+matchColumns,
		matchID, createTxSig, createdOnchainAt, joinExpiresAt,
	)
	rec, err := scanMatchRow(row)
	if errors.Is(err, ErrNotFound) {
		return s.GetByMatchID(ctx, matchID)
	}
	return rec, err
}

// ConfirmJoin transitions a match from created_on_chain to joined_on_chain,
// using the same coalesce-on-replay discipline as ConfirmCreate.
func (s *Store) ConfirmJoin(ctx context.Context, matchID int64, player2Pubkey, joinTxSig string, joinedOnchainAt, settleExpiresAt time.Time) (*MatchRecord, error) {
	row := s.pool.QueryRow(ctx, `
		UPDATE matches SET
			match_status = 'joined_on_chain',
			player2_pubkey = COALESCE(player2_pubkey, $2),
			join_tx_sig = COALESCE(join_tx_sig, $3),
			joined_onchain_at = COALESCE(joined_onchain_at, $4),
			settle_expires_at = COALESCE(settle_expires_at, $5),
			updated_at = now()
		WHERE match_id = $1 AND match_status = 'created_on_chain'
		RETURNING `+matchColumns,
		matchID, player2Pubkey, joinTxSig, joinedOnchainAt, settleExpiresAt,
	)
	rec, err := scanMatchRow(row)
	if errors.Is(err, ErrNotFound) {
		return s.GetByMatchID(ctx, matchID)
	}
	return rec, err
}

// MarkFinalizing moves a match into finalizing if it is currently
// result_pending_finalize, used when the finalizer records a submitted
// transaction.
func (s *Store) MarkFinalizing(ctx context.Context, tx pgx.Tx, matchID int64) error {
	_, err := tx.Exec(ctx, `
		UPDATE matches SET match_status = 'finalizing', updated_at = now()
		WHERE match_id = $1 AND match_status = 'result_pending_finalize'`,
		matchID,
	)
	return err
}

// FinalizeMatch transitions a match to its terminal status, recording the
// final transaction signature and finalized_at exactly once.
func (s *Store) FinalizeMatch(ctx context.Context, tx pgx.Tx, matchID int64, terminalStatus, finalTxSig string) error {
	_, err := tx.Exec(ctx, `
		UPDATE matches SET
			match_status = $2,
			final_tx_sig = COALESCE(final_tx_sig, $3),
			finalized_at = COALESCE(finalized_at, now()),
			updated_at = now()
		WHERE match_id = $1`,
		matchID, terminalStatus, finalTxSig,
	)
	return err
}

// ClearMatchError clears last_error inside tx. AdminRetryJob clears
// last_error in its own update and does not call this.
func (s *Store) ClearMatchError(ctx context.Context, tx pgx.Tx, matchID int64) error {
	_, err := tx.Exec(ctx, `UPDATE matches SET last_error = NULL, updated_at = now() WHERE match_id = $1`, matchID)
	return err
}

// SetMatchError records a non-fatal operational error against a match row,
// used by the timeout watcher when enqueuing a join-timeout refund fails
// with an error other than Conflict.
func (s *Store) SetMatchError(ctx context.Context, matchID int64, message string) error {
	_, err := s.pool.Exec(ctx, `UPDATE matches SET last_error = $2, updated_at = now() WHERE match_id = $1`, matchID, message)
	return err
}

// DueForJoinTimeout returns up to limit matches stuck waiting on a player 2
// whose join window has expired and that have no chain job yet.
func (s *Store) DueForJoinTimeout(ctx context.Context, limit int) ([]MatchRecord, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT `+matchColumns+` FROM matches m
		WHERE m.match_status = 'created_on_chain'
			AND m.player2_pubkey IS NULL
			AND m.join_expires_at IS NOT NULL
			AND m.join_expires_at <= now()
			AND NOT EXISTS (SELECT 1 FROM chain_jobs cj WHERE cj.match_id = m.match_id)
		ORDER BY m.match_id ASC
		LIMIT $1`,
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query join-timeout candidates: %w", err)
	}
	defer rows.Close()

	var out []MatchRecord
	for rows.Next() {
		rec, err := scanMatchRow(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *rec)
	}
	return out, rows.Err()
}

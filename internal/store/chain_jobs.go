package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/klingon-exchange/wagerd/internal/apperr"
)

const chainJobColumns = `id, match_id, job_type, status, winner_pubkey, attempt_count,
	last_tx_sig, last_error, next_attempt_at, lock_token, locked_at, updated_at`

func scanChainJobRow(row pgx.Row) (*ChainJobRecord, error) {
	var j ChainJobRecord
	err := row.Scan(
		&j.ID, &j.MatchID, &j.JobType, &j.Status, &j.WinnerPubkey, &j.AttemptCount,
		&j.LastTxSig, &j.LastError, &j.NextAttemptAt, &j.LockToken, &j.LockedAt, &j.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &j, nil
}

// PersistResultAndEnqueue is the exactly-once enqueue boundary described for
// submit-result: it conditionally advances the match to
// result_pending_finalize and upserts its chain job inside a single
// transaction, refusing with Conflict on any mismatched replay.
func (s *Store) PersistResultAndEnqueue(ctx context.Context, matchID int64, jobType string, winnerPubkey *string, reasonCode string, reasonDetail *string, idempotencyKey string) (*MatchRecord, *ChainJobRecord, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	matchRow := tx.QueryRow(ctx, `
		UPDATE matches SET
			match_status = 'result_pending_finalize',
			winner_pubkey = COALESCE(winner_pubkey, $2),
			finalization_reason_code = COALESCE(finalization_reason_code, $3),
			reason_detail = COALESCE(reason_detail, $4),
			result_idempotency_key = COALESCE(result_idempotency_key, $5),
			result_reported_at = COALESCE(result_reported_at, now()),
			updated_at = now()
		WHERE match_id = $1
			AND (
				(match_status IN ('joined_on_chain', 'in_progress') AND result_idempotency_key IS NULL)
				OR (
					result_idempotency_key = $5
					AND winner_pubkey IS NOT DISTINCT FROM $2
					AND finalization_reason_code IS NOT DISTINCT FROM $3
				)
			)
		RETURNING `+matchColumns,
		matchID, winnerPubkey, reasonCode, reasonDetail, idempotencyKey,
	)
	match, err := scanMatchRow(matchRow)
	if errors.Is(err, ErrNotFound) {
		return nil, nil, apperr.Conflictf("result conflicts with match state or a previously recorded result")
	}
	if err != nil {
		return nil, nil, fmt.Errorf("failed to update match result: %w", err)
	}

	jobRow := tx.QueryRow(ctx, `
		INSERT INTO chain_jobs (match_id, job_type, status, winner_pubkey, next_attempt_at)
		VALUES ($1, $2, 'pending', $3, now())
		ON CONFLICT (match_id) DO UPDATE SET updated_at = now()
			WHERE chain_jobs.job_type = excluded.job_type
				AND chain_jobs.winner_pubkey IS NOT DISTINCT FROM excluded.winner_pubkey
		RETURNING `+chainJobColumns,
		matchID, jobType, winnerPubkey,
	)
	job, err := scanChainJobRow(jobRow)
	if errors.Is(err, ErrNotFound) {
		return nil, nil, apperr.Conflictf("a conflicting finalization job already exists for this match")
	}
	if err != nil {
		return nil, nil, fmt.Errorf("failed to upsert chain job: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, nil, fmt.Errorf("failed to commit result transaction: %w", err)
	}
	return match, job, nil
}

// EnqueueJoinTimeoutRefund is the Timeout Watcher's per-match transactional
// step: it locks the match row, advances it to result_pending_finalize with
// the join_timeout reason, and inserts a force_refund job. A conflicting
// pre-existing job surfaces Conflict to the caller, who logs and retries
// next tick.
func (s *Store) EnqueueJoinTimeoutRefund(ctx context.Context, matchID int64) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	idempotencyKey := fmt.Sprintf("auto-join-timeout-%d", matchID)

	tag, err := tx.Exec(ctx, `
		SELECT 1 FROM matches WHERE match_id = $1 FOR UPDATE SKIP LOCKED`,
		matchID,
	)
	if err != nil {
		return fmt.Errorf("failed to lock match row: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return apperr.Conflictf("match row is locked by another worker")
	}

	cmd, err := tx.Exec(ctx, `
		UPDATE matches SET
			match_status = 'result_pending_finalize',
			finalization_reason_code = COALESCE(finalization_reason_code, 'join_timeout'),
			reason_detail = COALESCE(reason_detail, 'timeout_watcher'),
			result_idempotency_key = COALESCE(result_idempotency_key, $2),
			result_reported_at = COALESCE(result_reported_at, now()),
			updated_at = now()
		WHERE match_id = $1 AND match_status = 'created_on_chain'`,
		matchID, idempotencyKey,
	)
	if err != nil {
		return fmt.Errorf("failed to mark match for join timeout: %w", err)
	}
	if cmd.RowsAffected() == 0 {
		return apperr.Conflictf("match is no longer eligible for join timeout")
	}

	jobRow := tx.QueryRow(ctx, `
		INSERT INTO chain_jobs (match_id, job_type, status, winner_pubkey, next_attempt_at)
		VALUES ($1, 'force_refund', 'pending', NULL, now())
		ON CONFLICT (match_id) DO UPDATE SET updated_at = now()
			WHERE chain_jobs.job_type = excluded.job_type
				AND chain_jobs.winner_pubkey IS NULL
		RETURNING `+chainJobColumns,
		matchID,
	)
	if _, err := scanChainJobRow(jobRow); err != nil {
		if errors.Is(err, ErrNotFound) {
			return apperr.Conflictf("a conflicting finalization job already exists for this match")
		}
		return fmt.Errorf("failed to insert force_refund job: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit join-timeout transaction: %w", err)
	}
	return nil
}

// GetChainJobByMatchID returns the chain job for a match, or ErrNotFound if
// no result has been submitted yet.
func (s *Store) GetChainJobByMatchID(ctx context.Context, matchID int64) (*ChainJobRecord, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+chainJobColumns+` FROM chain_jobs WHERE match_id = $1`, matchID)
	return scanChainJobRow(row)
}

// ClaimNextDueJob selects and locks the next claimable job, following
// (next_attempt_at ASC, id ASC) ordering, skipping rows locked by other
// workers and tolerating stale (>30s) leases. Returns ErrNotFound when
// nothing is claimable.
func (s *Store) ClaimNextDueJob(ctx context.Context, lockToken string) (*ClaimedJob, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	row := tx.QueryRow(ctx, `
		SELECT `+chainJobColumns+` FROM chain_jobs
		WHERE status IN ('pending', 'retrying', 'submitted')
			AND next_attempt_at <= now()
			AND (locked_at IS NULL OR locked_at < now() - interval '30 seconds')
		ORDER BY next_attempt_at ASC, id ASC
		LIMIT 1
		FOR UPDATE SKIP LOCKED`,
	)
	job, err := scanChainJobRow(row)
	if errors.Is(err, ErrNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to select claimable job: %w", err)
	}

	stampRow := tx.QueryRow(ctx, `
		UPDATE chain_jobs SET lock_token = $2, locked_at = now(), updated_at = now()
		WHERE id = $1
		RETURNING `+chainJobColumns,
		job.ID, lockToken,
	)
	job, err = scanChainJobRow(stampRow)
	if err != nil {
		return nil, fmt.Errorf("failed to stamp lock token: %w", err)
	}

	matchRow := tx.QueryRow(ctx, `SELECT `+matchColumns+` FROM matches WHERE match_id = $1`, job.MatchID)
	match, err := scanMatchRow(matchRow)
	if err != nil {
		return nil, fmt.Errorf("failed to load match for claimed job: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("failed to commit claim transaction: %w", err)
	}
	return &ClaimedJob{Job: *job, Match: *match}, nil
}

// MarkJobFailed marks a job terminally failed, optionally incrementing the
// attempt count, scoped to the lock the caller currently holds.
func (s *Store) MarkJobFailed(ctx context.Context, matchID int64, lockToken, lastError string, incrementAttempt bool) error {
	return s.updateLockedJob(ctx, matchID, lockToken, `
		UPDATE chain_jobs SET
			status = 'failed',
			last_error = $3,
			attempt_count = attempt_count + $4,
			lock_token = NULL,
			locked_at = NULL,
			updated_at = now()
		WHERE match_id = $1 AND lock_token = $2`,
		lastError, boolToInt(incrementAttempt),
	)
}

// MarkJobRetrying schedules the next attempt after a transient failure.
func (s *Store) MarkJobRetrying(ctx context.Context, matchID int64, lockToken, lastError string, nextAttemptAt time.Time, incrementAttempt bool) error {
	return s.updateLockedJob(ctx, matchID, lockToken, `
		UPDATE chain_jobs SET
			status = 'retrying',
			last_error = $3,
			next_attempt_at = $5,
			attempt_count = attempt_count + $4,
			lock_token = NULL,
			locked_at = NULL,
			updated_at = now()
		WHERE match_id = $1 AND lock_token = $2`,
		lastError, boolToInt(incrementAttempt), nextAttemptAt,
	)
}

// MarkJobSubmitted records a successful submission and advances the owning
// match to finalizing, in one transaction scoped to the held lock.
func (s *Store) MarkJobSubmitted(ctx context.Context, matchID int64, lockToken, txSig string) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	cmd, err := tx.Exec(ctx, `
		UPDATE chain_jobs SET
			status = 'submitted',
			attempt_count = attempt_count + 1,
			last_error = NULL,
			last_tx_sig = $3,
			updated_at = now()
		WHERE match_id = $1 AND lock_token = $2`,
		matchID, lockToken, txSig,
	)
	if err != nil {
		return fmt.Errorf("failed to mark job submitted: %w", err)
	}
	if cmd.RowsAffected() == 0 {
		return apperr.Conflictf("lost lock while recording submission")
	}

	if err := s.MarkFinalizing(ctx, tx, matchID); err != nil {
		return fmt.Errorf("failed to advance match to finalizing: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit submission transaction: %w", err)
	}
	return nil
}

// MarkJobConfirmedAndFinalizeMatch is the terminal transition: it moves the
// job to confirmed, clears the lock, and finalizes the owning match. The
// confirmed update affects exactly one row matching (match_id, lock_token).
func (s *Store) MarkJobConfirmedAndFinalizeMatch(ctx context.Context, matchID int64, lockToken, finalTxSig, terminalMatchStatus string) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	cmd, err := tx.Exec(ctx, `
		UPDATE chain_jobs SET
			status = 'confirmed',
			last_tx_sig = COALESCE(last_tx_sig, $3),
			lock_token = NULL,
			locked_at = NULL,
			updated_at = now()
		WHERE match_id = $1 AND lock_token = $2 AND status <> 'confirmed'`,
		matchID, lockToken, finalTxSig,
	)
	if err != nil {
		return fmt.Errorf("failed to mark job confirmed: %w", err)
	}
	if cmd.RowsAffected() == 0 {
		return apperr.Conflictf("lost lock while confirming job")
	}

	if err := s.FinalizeMatch(ctx, tx, matchID, terminalMatchStatus, finalTxSig); err != nil {
		return fmt.Errorf("failed to finalize match: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit confirmation transaction: %w", err)
	}
	return nil
}

// ClearJobLock is the finalizer's best-effort cleanup after losing a race;
// it never errors the caller since the lock may already be gone.
func (s *Store) ClearJobLock(ctx context.Context, matchID int64, lockToken string) {
	_, _ = s.pool.Exec(ctx, `
		UPDATE chain_jobs SET lock_token = NULL, locked_at = NULL, updated_at = now()
		WHERE match_id = $1 AND lock_token = $2`,
		matchID, lockToken,
	)
}

// AdminRetryJob revives a failed (or stuck) job to pending, clearing its
// lock and error, and moves the match back to finalizing.
func (s *Store) AdminRetryJob(ctx context.Context, matchID int64) (*ChainJobRecord, *MatchRecord, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	matchBefore, err := s.getMatchTx(ctx, tx, matchID)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load match for admin retry: %w", err)
	}
	if matchBefore.MatchStatus == "settled" || matchBefore.MatchStatus == "refunded" {
		return nil, nil, apperr.Conflictf("match is already terminal")
	}

	jobRow := tx.QueryRow(ctx, `
		UPDATE chain_jobs SET
			status = 'pending',
			lock_token = NULL,
			locked_at = NULL,
			last_error = NULL,
			next_attempt_at = now(),
			updated_at = now()
		WHERE match_id = $1 AND status <> 'confirmed'
		RETURNING `+chainJobColumns,
		matchID,
	)
	job, err := scanChainJobRow(jobRow)
	if errors.Is(err, ErrNotFound) {
		existing, gerr := s.getByMatchIDTx(ctx, tx, matchID)
		if gerr == nil && existing.Status == "confirmed" {
			return nil, nil, apperr.Conflictf("job is already confirmed and cannot be retried")
		}
		return nil, nil, apperr.NotFoundf("no chain job exists for this match")
	}
	if err != nil {
		return nil, nil, fmt.Errorf("failed to reset job for retry: %w", err)
	}

	matchRow := tx.QueryRow(ctx, `
		UPDATE matches SET
			match_status = CASE
				WHEN match_status IN ('result_pending_finalize', 'finalizing') THEN 'finalizing'
				ELSE match_status
			END,
			last_error = NULL,
			updated_at = now()
		WHERE match_id = $1
		RETURNING `+matchColumns,
		matchID,
	)
	match, err := scanMatchRow(matchRow)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to advance match on admin retry: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, nil, fmt.Errorf("failed to commit admin retry transaction: %w", err)
	}
	return job, match, nil
}

func (s *Store) getByMatchIDTx(ctx context.Context, tx pgx.Tx, matchID int64) (*ChainJobRecord, error) {
	row := tx.QueryRow(ctx, `SELECT `+chainJobColumns+` FROM chain_jobs WHERE match_id = $1`, matchID)
	return scanChainJobRow(row)
}

func (s *Store) getMatchTx(ctx context.Context, tx pgx.Tx, matchID int64) (*MatchRecord, error) {
	row := tx.QueryRow(ctx, `SELECT `+matchColumns+` FROM matches WHERE match_id = $1`, matchID)
	return scanMatchRow(row)
}

func (s *Store) updateLockedJob(ctx context.Context, matchID int64, lockToken, query string, args ...any) error {
	fullArgs := append([]any{matchID, lockToken}, args...)
	cmd, err := s.pool.Exec(ctx, query, fullArgs...)
	if err != nil {
		return fmt.Errorf("failed to update locked job: %w", err)
	}
	if cmd.RowsAffected() == 0 {
		return apperr.Conflictf("lost lock while updating job")
	}
	return nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

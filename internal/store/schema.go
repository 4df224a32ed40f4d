// Package store is the Postgres-backed persistence layer: matches,
// chain_jobs, and used_nonces, plus the conditional SQL that keeps
// concurrent actors converging on a single state-machine path.
package store

// Schema is the DDL applied at startup. It is intentionally idempotent
// (IF NOT EXISTS throughout) so repeated boots never fail.
const Schema = `
CREATE SEQUENCE IF NOT EXISTS match_id_seq START 1;

CREATE TABLE IF NOT EXISTS matches (
	match_id                BIGINT PRIMARY KEY,
	join_code               TEXT NOT NULL UNIQUE,
	program_id              TEXT NOT NULL,
	authority_pubkey        TEXT NOT NULL,
	game_pda                TEXT NOT NULL,
	vault_pda               TEXT NOT NULL,
	player1_pubkey          TEXT NOT NULL,
	player2_pubkey          TEXT,
	entry_lamports          BIGINT NOT NULL,
	match_status            TEXT NOT NULL,
	winner_pubkey           TEXT,
	finalization_reason_code TEXT,
	reason_detail           TEXT,
	result_idempotency_key  TEXT,
	create_tx_sig           TEXT,
	join_tx_sig             TEXT,
	final_tx_sig            TEXT,
	created_onchain_at      TIMESTAMPTZ,
	joined_onchain_at       TIMESTAMPTZ,
	join_expires_at         TIMESTAMPTZ,
	settle_expires_at       TIMESTAMPTZ,
	result_reported_at      TIMESTAMPTZ,
	last_error              TEXT,
	finalized_at            TIMESTAMPTZ,
	updated_at              TIMESTAMPTZ NOT NULL DEFAULT now(),
	created_at              TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS chain_jobs (
	id             BIGSERIAL PRIMARY KEY,
	match_id       BIGINT NOT NULL UNIQUE REFERENCES matches(match_id),
	job_type       TEXT NOT NULL,
	status         TEXT NOT NULL,
	winner_pubkey  TEXT,
	attempt_count  INTEGER NOT NULL DEFAULT 0,
	last_tx_sig    TEXT,
	last_error     TEXT,
	next_attempt_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	lock_token     TEXT,
	locked_at      TIMESTAMPTZ,
	updated_at     TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS chain_jobs_claim_idx
	ON chain_jobs (next_attempt_at, id)
	WHERE status IN ('pending', 'retrying', 'submitted');

CREATE TABLE IF NOT EXISTS used_nonces (
	nonce      TEXT PRIMARY KEY,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now()
);
`

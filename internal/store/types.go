package store

import "time"

// MatchRecord is the full persisted row for a match.
type MatchRecord struct {
	MatchID                int64
	JoinCode                string
	ProgramID               string
	AuthorityPubkey         string
	GamePDA                 string
	VaultPDA                string
	Player1Pubkey           string
	Player2Pubkey           *string
	EntryLamports           int64
	MatchStatus             string
	WinnerPubkey            *string
	FinalizationReasonCode  *string
	ReasonDetail            *string
	ResultIdempotencyKey    *string
	CreateTxSig             *string
	JoinTxSig               *string
	FinalTxSig              *string
	CreatedOnchainAt        *time.Time
	JoinedOnchainAt         *time.Time
	JoinExpiresAt           *time.Time
	SettleExpiresAt         *time.Time
	ResultReportedAt        *time.Time
	LastError               *string
	FinalizedAt             *time.Time
	UpdatedAt               time.Time
	CreatedAt               time.Time
}

// ChainJobRecord is the full persisted row for a chain job.
type ChainJobRecord struct {
	ID            int64
	MatchID       int64
	JobType       string
	Status        string
	WinnerPubkey  *string
	AttemptCount  int32
	LastTxSig     *string
	LastError     *string
	NextAttemptAt time.Time
	LockToken     *string
	LockedAt      *time.Time
	UpdatedAt     time.Time
}

// ClaimedJob bundles a claimed chain job with the match state the
// finalizer needs to act on it.
type ClaimedJob struct {
	Job   ChainJobRecord
	Match MatchRecord
}

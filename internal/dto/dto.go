package dto

import "time"

// CreateMatchRequest is the body of POST /v1/matches.
type CreateMatchRequest struct {
	Player1Pubkey  string `json:"player1_pubkey"`
	EntryLamports  string `json:"entry_lamports"`
}

// CreateMatchResponse is returned from POST /v1/matches.
type CreateMatchResponse struct {
	MatchID              string      `json:"match_id"`
	JoinCode             string      `json:"join_code"`
	ProgramID            string      `json:"program_id"`
	AuthorityPubkey      string      `json:"authority_pubkey"`
	GamePDA              string      `json:"game_pda"`
	VaultPDA             string      `json:"vault_pda"`
	EntryLamports        string      `json:"entry_lamports"`
	JoinTimeoutSeconds   int64       `json:"join_timeout_seconds"`
	SettleTimeoutSeconds int64       `json:"settle_timeout_seconds"`
	MatchStatus          MatchStatus `json:"match_status"`
}

// MatchLookupByCodeResponse is returned from GET /v1/matches/code/{join_code}.
type MatchLookupByCodeResponse struct {
	MatchID        string      `json:"match_id"`
	JoinCode       string      `json:"join_code"`
	GamePDA        string      `json:"game_pda"`
	VaultPDA       string      `json:"vault_pda"`
	Player1Pubkey  string      `json:"player1_pubkey"`
	EntryLamports  string      `json:"entry_lamports"`
	MatchStatus    MatchStatus `json:"match_status"`
	JoinExpiresAt  *time.Time  `json:"join_expires_at"`
}

// CreateConfirmRequest is the body of POST /v1/matches/{match_id}/create-confirm.
type CreateConfirmRequest struct {
	CreateTxSig string `json:"create_tx_sig"`
}

// CreateConfirmResponse is returned from create-confirm.
type CreateConfirmResponse struct {
	MatchID       string      `json:"match_id"`
	Verified      bool        `json:"verified"`
	MatchStatus   MatchStatus `json:"match_status"`
	CreateTxSig   string      `json:"create_tx_sig"`
	JoinExpiresAt *time.Time  `json:"join_expires_at"`
}

// JoinConfirmRequest is the body of POST /v1/matches/{match_id}/join-confirm.
type JoinConfirmRequest struct {
	JoinTxSig string `json:"join_tx_sig"`
}

// JoinConfirmResponse is returned from join-confirm.
type JoinConfirmResponse struct {
	MatchID         string      `json:"match_id"`
	Verified        bool        `json:"verified"`
	MatchStatus     MatchStatus `json:"match_status"`
	Player2Pubkey   string      `json:"player2_pubkey"`
	JoinTxSig       string      `json:"join_tx_sig"`
	SettleExpiresAt *time.Time  `json:"settle_expires_at"`
}

// ResultRequest is the body of POST /v1/matches/{match_id}/result.
type ResultRequest struct {
	Outcome        ResultOutcome `json:"outcome"`
	WinnerPubkey   *string       `json:"winner_pubkey,omitempty"`
	ReasonCode     string        `json:"reason_code"`
	ReasonDetail   *string       `json:"reason_detail,omitempty"`
	IdempotencyKey string        `json:"idempotency_key"`
}

// ResultResponse is returned from result submission.
type ResultResponse struct {
	MatchID            string         `json:"match_id"`
	MatchStatus        MatchStatus    `json:"match_status"`
	FinalizationAction ChainJobType   `json:"finalization_action"`
	ChainJobStatus     ChainJobStatus `json:"chain_job_status"`
}

// MatchStatusResponse is the full projection returned by the status endpoint.
type MatchStatusResponse struct {
	MatchID                 string          `json:"match_id"`
	JoinCode                string          `json:"join_code"`
	ProgramID               string          `json:"program_id"`
	AuthorityPubkey         string          `json:"authority_pubkey"`
	GamePDA                 string          `json:"game_pda"`
	VaultPDA                string          `json:"vault_pda"`
	Player1Pubkey           string          `json:"player1_pubkey"`
	Player2Pubkey           *string         `json:"player2_pubkey"`
	EntryLamports           string          `json:"entry_lamports"`
	PotLamports             string          `json:"pot_lamports"`
	MatchStatus             MatchStatus     `json:"match_status"`
	ChainJobType            *ChainJobType   `json:"chain_job_type"`
	ChainJobStatus          *ChainJobStatus `json:"chain_job_status"`
	WinnerPubkey            *string         `json:"winner_pubkey"`
	FinalizationReasonCode  *string         `json:"finalization_reason_code"`
	FinalizationReasonDetail *string        `json:"finalization_reason_detail"`
	CreateTxSig             *string         `json:"create_tx_sig"`
	JoinTxSig               *string         `json:"join_tx_sig"`
	FinalTxSig              *string         `json:"final_tx_sig"`
	ResultReportedAt        *time.Time      `json:"result_reported_at"`
	JoinExpiresAt           *time.Time      `json:"join_expires_at"`
	SettleExpiresAt         *time.Time      `json:"settle_expires_at"`
	LastError               *string         `json:"last_error"`
	UpdatedAt               time.Time       `json:"updated_at"`
}

// RetryFinalizationRequest is the body of the admin retry-finalization route.
type RetryFinalizationRequest struct {
	Reason string `json:"reason"`
}

// RetryFinalizationResponse is returned from the admin retry-finalization route.
type RetryFinalizationResponse struct {
	MatchID        string         `json:"match_id"`
	MatchStatus    MatchStatus    `json:"match_status"`
	ChainJobStatus ChainJobStatus `json:"chain_job_status"`
}

// ErrorBody is the uniform JSON error envelope.
type ErrorBody struct {
	Error string `json:"error"`
}

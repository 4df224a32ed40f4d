// Package coordinator implements the six match-lifecycle operations that
// sit behind the HTTP surface: create, lookup-by-join-code, create-confirm,
// join-confirm, submit-result, and admin-retry.
package coordinator

import (
	"context"
	"errors"
	"strconv"
	"strings"
	"time"

	"github.com/gagliardetto/solana-go"

	"github.com/klingon-exchange/wagerd/internal/apperr"
	"github.com/klingon-exchange/wagerd/internal/dto"
	"github.com/klingon-exchange/wagerd/internal/ledger"
	"github.com/klingon-exchange/wagerd/internal/store"
	"github.com/klingon-exchange/wagerd/pkg/helpers"
	"github.com/klingon-exchange/wagerd/pkg/logging"
)

var log = logging.Component("coordinator")

// Coordinator wires the store and ledger client behind the match
// operations, plus the fixed program/authority identity and timeout
// configuration every match is derived against.
type Coordinator struct {
	store                *store.Store
	ledger               *ledger.Client
	programID            solana.PublicKey
	authorityPubkey      solana.PublicKey
	joinTimeoutSeconds   int64
	settleTimeoutSeconds int64
}

// New builds a Coordinator.
func New(st *store.Store, lc *ledger.Client, programID, authorityPubkey solana.PublicKey, joinTimeoutSeconds, settleTimeoutSeconds int64) *Coordinator {
	return &Coordinator{
		store:                st,
		ledger:               lc,
		programID:            programID,
		authorityPubkey:      authorityPubkey,
		joinTimeoutSeconds:   joinTimeoutSeconds,
		settleTimeoutSeconds: settleTimeoutSeconds,
	}
}

// Create reserves a match id, derives its PDAs, and inserts it in
// waiting_create_tx.
func (c *Coordinator) Create(ctx context.Context, req dto.CreateMatchRequest) (*dto.CreateMatchResponse, error) {
	player1, err := solana.PublicKeyFromBase58(strings.TrimSpace(req.Player1Pubkey))
	if err != nil || req.Player1Pubkey == "" {
		return nil, apperr.BadRequestf("player1_pubkey is required and must be a valid pubkey")
	}

	entryLamports, err := parseEntryLamports(req.EntryLamports)
	if err != nil {
		return nil, err
	}

	matchID, err := c.store.NextMatchID(ctx)
	if err != nil {
		return nil, apperr.Internalf(err, "failed to reserve match id")
	}
	joinCode := JoinCode(matchID)

	pdas, err := ledger.DeriveMatchPDAs(c.programID, c.authorityPubkey, player1, uint64(matchID))
	if err != nil {
		return nil, apperr.Internalf(err, "failed to derive match PDAs")
	}

	rec := &store.MatchRecord{
		MatchID:         matchID,
		JoinCode:        joinCode,
		ProgramID:       c.programID.String(),
		AuthorityPubkey: c.authorityPubkey.String(),
		GamePDA:         pdas.Game.String(),
		VaultPDA:        pdas.Vault.String(),
		Player1Pubkey:   player1.String(),
		EntryLamports:   entryLamports,
		MatchStatus:     string(dto.MatchWaitingCreateTx),
	}
	if err := c.store.InsertMatch(ctx, rec); err != nil {
		return nil, apperr.Internalf(err, "failed to persist match")
	}
	log.Info("match created", "match_id", matchID, "join_code", joinCode, "entry_sol", helpers.LamportsToSOL(entryLamports))

	return &dto.CreateMatchResponse{
		MatchID:              strconv.FormatInt(matchID, 10),
		JoinCode:              joinCode,
		ProgramID:             c.programID.String(),
		AuthorityPubkey:       c.authorityPubkey.String(),
		GamePDA:               pdas.Game.String(),
		VaultPDA:              pdas.Vault.String(),
		EntryLamports:         strconv.FormatInt(entryLamports, 10),
		JoinTimeoutSeconds:    c.joinTimeoutSeconds,
		SettleTimeoutSeconds:  c.settleTimeoutSeconds,
		MatchStatus:           dto.MatchWaitingCreateTx,
	}, nil
}

// LookupByJoinCode returns the current snapshot for a join code.
func (c *Coordinator) LookupByJoinCode(ctx context.Context, joinCode string) (*dto.MatchLookupByCodeResponse, error) {
	normalized := strings.ToUpper(strings.TrimSpace(joinCode))
	rec, err := c.store.GetByJoinCode(ctx, normalized)
	if errors.Is(err, store.ErrNotFound) {
		return nil, apperr.NotFoundf("no match with join code %s", normalized)
	}
	if err != nil {
		return nil, apperr.Internalf(err, "failed to look up match")
	}
	if dto.MatchStatus(rec.MatchStatus).IsTerminal() {
		return nil, apperr.Conflictf("match %s is already closed", normalized)
	}

	return &dto.MatchLookupByCodeResponse{
		MatchID:       strconv.FormatInt(rec.MatchID, 10),
		JoinCode:      rec.JoinCode,
		GamePDA:       rec.GamePDA,
		VaultPDA:      rec.VaultPDA,
		Player1Pubkey: rec.Player1Pubkey,
		EntryLamports: strconv.FormatInt(rec.EntryLamports, 10),
		MatchStatus:   dto.MatchStatus(rec.MatchStatus),
		JoinExpiresAt: rec.JoinExpiresAt,
	}, nil
}

// CreateConfirm verifies the on-chain game account after the client
// submits its create transaction, advancing the match to created_on_chain.
func (c *Coordinator) CreateConfirm(ctx context.Context, matchID int64, req dto.CreateConfirmRequest) (*dto.CreateConfirmResponse, error) {
	rec, err := c.store.GetByMatchID(ctx, matchID)
	if errors.Is(err, store.ErrNotFound) {
		return nil, apperr.NotFoundf("match %d not found", matchID)
	}
	if err != nil {
		return nil, apperr.Internalf(err, "failed to load match")
	}

	if rec.MatchStatus != string(dto.MatchWaitingCreateTx) {
		return &dto.CreateConfirmResponse{
			MatchID:       strconv.FormatInt(rec.MatchID, 10),
			Verified:      true,
			MatchStatus:   dto.MatchStatus(rec.MatchStatus),
			CreateTxSig:   derefOr(rec.CreateTxSig, req.CreateTxSig),
			JoinExpiresAt: rec.JoinExpiresAt,
		}, nil
	}

	gamePDA, err := solana.PublicKeyFromBase58(rec.GamePDA)
	if err != nil {
		return nil, apperr.Internalf(err, "stored game PDA is malformed")
	}
	game, err := c.ledger.FetchAndDecodeGameAccount(ctx, gamePDA)
	if err != nil {
		return nil, apperr.Internalf(err, "failed to fetch on-chain game account")
	}
	if game.State != ledger.GameStateCreated {
		return nil, apperr.Conflictf("on-chain game account is not in Created state")
	}
	if err := c.verifyAgainstStored(rec, game, false); err != nil {
		return nil, err
	}

	createdAt := time.Unix(game.CreatedAt, 0).UTC()
	joinExpiresAt := createdAt.Add(time.Duration(c.joinTimeoutSeconds) * time.Second)

	updated, err := c.store.ConfirmCreate(ctx, matchID, req.CreateTxSig, createdAt, joinExpiresAt)
	if err != nil {
		return nil, apperr.Internalf(err, "failed to confirm create transaction")
	}

	return &dto.CreateConfirmResponse{
		MatchID:       strconv.FormatInt(updated.MatchID, 10),
		Verified:      true,
		MatchStatus:   dto.MatchStatus(updated.MatchStatus),
		CreateTxSig:   derefOr(updated.CreateTxSig, req.CreateTxSig),
		JoinExpiresAt: updated.JoinExpiresAt,
	}, nil
}

// JoinConfirm is the symmetric counterpart to CreateConfirm for player 2's
// join transaction.
func (c *Coordinator) JoinConfirm(ctx context.Context, matchID int64, req dto.JoinConfirmRequest) (*dto.JoinConfirmResponse, error) {
	rec, err := c.store.GetByMatchID(ctx, matchID)
	if errors.Is(err, store.ErrNotFound) {
		return nil, apperr.NotFoundf("match %d not found", matchID)
	}
	if err != nil {
		return nil, apperr.Internalf(err, "failed to load match")
	}

	if rec.MatchStatus != string(dto.MatchCreatedOnChain) {
		if rec.Player2Pubkey != nil {
			return &dto.JoinConfirmResponse{
				MatchID:         strconv.FormatInt(rec.MatchID, 10),
				Verified:        true,
				MatchStatus:     dto.MatchStatus(rec.MatchStatus),
				Player2Pubkey:   *rec.Player2Pubkey,
				JoinTxSig:       derefOr(rec.JoinTxSig, req.JoinTxSig),
				SettleExpiresAt: rec.SettleExpiresAt,
			}, nil
		}
		return nil, apperr.Conflictf("match %d has not completed create-confirm", matchID)
	}

	gamePDA, err := solana.PublicKeyFromBase58(rec.GamePDA)
	if err != nil {
		return nil, apperr.Internalf(err, "stored game PDA is malformed")
	}
	game, err := c.ledger.FetchAndDecodeGameAccount(ctx, gamePDA)
	if err != nil {
		return nil, apperr.Internalf(err, "failed to fetch on-chain game account")
	}
	if game.State != ledger.GameStateJoined {
		return nil, apperr.Conflictf("on-chain game account is not in Joined state")
	}
	if err := c.verifyAgainstStored(rec, game, true); err != nil {
		return nil, err
	}
	if game.Player2 == (solana.PublicKey{}) || game.Player2 == game.Player1 {
		return nil, apperr.Conflictf("on-chain player2 is invalid")
	}

	joinedAt := time.Unix(game.JoinedAt, 0).UTC()
	settleExpiresAt := joinedAt.Add(time.Duration(c.settleTimeoutSeconds) * time.Second)

	updated, err := c.store.ConfirmJoin(ctx, matchID, game.Player2.String(), req.JoinTxSig, joinedAt, settleExpiresAt)
	if err != nil {
		return nil, apperr.Internalf(err, "failed to confirm join transaction")
	}

	return &dto.JoinConfirmResponse{
		MatchID:         strconv.FormatInt(updated.MatchID, 10),
		Verified:        true,
		MatchStatus:     dto.MatchStatus(updated.MatchStatus),
		Player2Pubkey:   derefOr(updated.Player2Pubkey, game.Player2.String()),
		JoinTxSig:       derefOr(updated.JoinTxSig, req.JoinTxSig),
		SettleExpiresAt: updated.SettleExpiresAt,
	}, nil
}

// SubmitResult is the HMAC-gated entry point that enqueues finalization.
func (c *Coordinator) SubmitResult(ctx context.Context, matchID int64, req dto.ResultRequest) (*dto.ResultResponse, error) {
	if req.IdempotencyKey == "" {
		return nil, apperr.BadRequestf("idempotency_key is required")
	}
	if req.ReasonCode == "" {
		return nil, apperr.BadRequestf("reason_code is required")
	}

	rec, err := c.store.GetByMatchID(ctx, matchID)
	if errors.Is(err, store.ErrNotFound) {
		return nil, apperr.NotFoundf("match %d not found", matchID)
	}
	if err != nil {
		return nil, apperr.Internalf(err, "failed to load match")
	}
	if rec.MatchStatus == string(dto.MatchWaitingCreateTx) || rec.MatchStatus == string(dto.MatchCreatedOnChain) {
		return nil, apperr.Conflictf("match %d has not been joined on-chain", matchID)
	}

	var jobType dto.ChainJobType
	var winnerPubkey *string
	switch req.Outcome {
	case dto.OutcomeWinner:
		if req.WinnerPubkey == nil || *req.WinnerPubkey == "" {
			return nil, apperr.BadRequestf("winner_pubkey is required when outcome is winner")
		}
		if *req.WinnerPubkey != rec.Player1Pubkey && (rec.Player2Pubkey == nil || *req.WinnerPubkey != *rec.Player2Pubkey) {
			return nil, apperr.BadRequestf("winner_pubkey must match a player in this match")
		}
		jobType = dto.JobSettle
		winnerPubkey = req.WinnerPubkey
	case dto.OutcomeBroken:
		if req.WinnerPubkey != nil && *req.WinnerPubkey != "" {
			return nil, apperr.BadRequestf("winner_pubkey must be absent when outcome is broken")
		}
		jobType = dto.JobForceRefund
	default:
		return nil, apperr.BadRequestf("outcome must be winner or broken")
	}

	match, job, err := c.store.PersistResultAndEnqueue(ctx, matchID, string(jobType), winnerPubkey, req.ReasonCode, req.ReasonDetail, req.IdempotencyKey)
	if err != nil {
		return nil, err
	}

	return &dto.ResultResponse{
		MatchID:            strconv.FormatInt(match.MatchID, 10),
		MatchStatus:        dto.MatchStatus(match.MatchStatus),
		FinalizationAction: dto.ChainJobType(job.JobType),
		ChainJobStatus:      dto.ChainJobStatus(job.Status),
	}, nil
}

// Status returns the full projection for the status endpoint.
func (c *Coordinator) Status(ctx context.Context, matchID int64) (*dto.MatchStatusResponse, error) {
	rec, err := c.store.GetByMatchID(ctx, matchID)
	if errors.Is(err, store.ErrNotFound) {
		return nil, apperr.NotFoundf("match %d not found", matchID)
	}
	if err != nil {
		return nil, apperr.Internalf(err, "failed to load match")
	}

	pot, err := potLamports(rec)
	if err != nil {
		return nil, err
	}

	resp := &dto.MatchStatusResponse{
		MatchID:                 strconv.FormatInt(rec.MatchID, 10),
		JoinCode:                 rec.JoinCode,
		ProgramID:                rec.ProgramID,
		AuthorityPubkey:          rec.AuthorityPubkey,
		GamePDA:                  rec.GamePDA,
		VaultPDA:                 rec.VaultPDA,
		Player1Pubkey:            rec.Player1Pubkey,
		Player2Pubkey:            rec.Player2Pubkey,
		EntryLamports:            strconv.FormatInt(rec.EntryLamports, 10),
		PotLamports:              strconv.FormatInt(pot, 10),
		MatchStatus:              dto.MatchStatus(rec.MatchStatus),
		WinnerPubkey:             rec.WinnerPubkey,
		FinalizationReasonCode:   rec.FinalizationReasonCode,
		FinalizationReasonDetail: rec.ReasonDetail,
		CreateTxSig:              rec.CreateTxSig,
		JoinTxSig:                rec.JoinTxSig,
		FinalTxSig:               rec.FinalTxSig,
		ResultReportedAt:         rec.ResultReportedAt,
		JoinExpiresAt:            rec.JoinExpiresAt,
		SettleExpiresAt:          rec.SettleExpiresAt,
		LastError:                rec.LastError,
		UpdatedAt:                rec.UpdatedAt,
	}

	job, err := c.store.GetChainJobByMatchID(ctx, matchID)
	if err == nil {
		jt := dto.ChainJobType(job.JobType)
		js := dto.ChainJobStatus(job.Status)
		resp.ChainJobType = &jt
		resp.ChainJobStatus = &js
	} else if !errors.Is(err, store.ErrNotFound) {
		return nil, apperr.Internalf(err, "failed to load chain job")
	}

	return resp, nil
}

// AdminRetryFinalization revives a failed finalization job.
func (c *Coordinator) AdminRetryFinalization(ctx context.Context, matchID int64, req dto.RetryFinalizationRequest) (*dto.RetryFinalizationResponse, error) {
	if strings.TrimSpace(req.Reason) == "" {
		return nil, apperr.BadRequestf("reason is required")
	}

	job, match, err := c.store.AdminRetryJob(ctx, matchID)
	if err != nil {
		return nil, err
	}
	log.Info("admin retry-finalization", "match_id", matchID, "reason", req.Reason)

	return &dto.RetryFinalizationResponse{
		MatchID:        strconv.FormatInt(match.MatchID, 10),
		MatchStatus:    dto.MatchStatus(match.MatchStatus),
		ChainJobStatus: dto.ChainJobStatus(job.Status),
	}, nil
}

func (c *Coordinator) verifyAgainstStored(rec *store.MatchRecord, game *ledger.GameAccount, requirePlayer2 bool) error {
	if game.Player1.String() != rec.Player1Pubkey {
		return apperr.Conflictf("on-chain player1 does not match stored match")
	}
	if game.Authority.String() != rec.AuthorityPubkey {
		return apperr.Conflictf("on-chain authority does not match stored match")
	}
	if strconv.FormatUint(game.MatchID, 10) != strconv.FormatInt(rec.MatchID, 10) {
		return apperr.Conflictf("on-chain match_id does not match stored match")
	}
	if int64(game.EntryAmount) != rec.EntryLamports {
		return apperr.Conflictf("on-chain entry_amount does not match stored match")
	}
	if requirePlayer2 && game.Player2 == game.Player1 {
		return apperr.Conflictf("on-chain player2 equals player1")
	}
	return nil
}

func parseEntryLamports(raw string) (int64, error) {
	v, err := strconv.ParseUint(strings.TrimSpace(raw), 10, 64)
	if err != nil || v == 0 {
		return 0, apperr.BadRequestf("entry_lamports must be a positive integer")
	}
	if v > (1<<63 - 1) {
		return 0, apperr.BadRequestf("entry_lamports exceeds the representable range")
	}
	return int64(v), nil
}

func potLamports(rec *store.MatchRecord) (int64, error) {
	if rec.Player2Pubkey == nil {
		return rec.EntryLamports, nil
	}
	pot := rec.EntryLamports * 2
	if rec.EntryLamports != 0 && pot/2 != rec.EntryLamports {
		return 0, apperr.Internalf(nil, "pot calculation overflow for match %d", rec.MatchID)
	}
	return pot, nil
}

func derefOr(p *string, fallback string) string {
	if p != nil {
		return *p
	}
	return fallback
}

// JoinCode derives the unique, bijective join code for a match id: the
// base-36 encoding of matchID, uppercased and prefixed with "M".
func JoinCode(matchID int64) string {
	return "M" + strings.ToUpper(strconv.FormatInt(matchID, 36))
}

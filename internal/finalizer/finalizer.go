// Package finalizer runs the long-lived worker that claims pending chain
// jobs, submits their finalization instruction, and confirms it on-chain.
package finalizer

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/google/uuid"

	"github.com/klingon-exchange/wagerd/internal/dto"
	"github.com/klingon-exchange/wagerd/internal/ledger"
	"github.com/klingon-exchange/wagerd/internal/store"
	"github.com/klingon-exchange/wagerd/pkg/helpers"
	"github.com/klingon-exchange/wagerd/pkg/logging"
)

const (
	maxAttempts        = 10
	maxBackoffSeconds  = 60
	leaseStaleAfter    = 30 * time.Second
)

var log = logging.Component("finalizer")

// Worker claims and processes finalization jobs on a ticker.
type Worker struct {
	store        *store.Store
	ledger       *ledger.Client
	authority    solana.PrivateKey
	programID    solana.PublicKey
	pollInterval time.Duration

	// Notify, if set, is called with a match id whenever this worker
	// changes its match_status (e.g. to finalizing or a terminal state).
	// It feeds the ambient websocket status push; nothing depends on it.
	Notify func(matchID int64)

	ctx    context.Context
	cancel context.CancelFunc
}

// New builds a Worker. It returns an error if authority's public key does
// not match authorityPubkey, refusing to run with a misconfigured keypair.
func New(st *store.Store, lc *ledger.Client, authority solana.PrivateKey, authorityPubkey, programID solana.PublicKey, pollInterval time.Duration) (*Worker, error) {
	if !authority.PublicKey().Equals(authorityPubkey) {
		return nil, fmt.Errorf("authority keypair public key does not match configured authority_pubkey")
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Worker{
		store:        st,
		ledger:       lc,
		authority:    authority,
		programID:    programID,
		pollInterval: pollInterval,
		ctx:          ctx,
		cancel:       cancel,
	}, nil
}

// Start runs the worker loop in a background goroutine.
func (w *Worker) Start() {
	go w.run()
	log.Info("finalizer started", "poll_interval", w.pollInterval)
}

// Stop signals the loop to exit at its next tick.
func (w *Worker) Stop() {
	w.cancel()
}

func (w *Worker) run() {
	ticker := time.NewTicker(w.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-w.ctx.Done():
			return
		case <-ticker.C:
			w.processOne()
		}
	}
}

func (w *Worker) processOne() {
	lockToken := newLockToken()
	claim, err := w.store.ClaimNextDueJob(w.ctx, lockToken)
	if errors.Is(err, store.ErrNotFound) {
		return
	}
	if err != nil {
		log.Warn("failed to claim job", "error", err)
		return
	}
	w.processClaimed(claim, lockToken)
}

func (w *Worker) processClaimed(claim *store.ClaimedJob, lockToken string) {
	job, match := claim.Job, claim.Match

	gamePDA, err := solana.PublicKeyFromBase58(match.GamePDA)
	if err != nil {
		w.failNonIncrementing(job.MatchID, lockToken, fmt.Sprintf("stored game PDA is malformed: %v", err))
		return
	}
	game, err := w.ledger.FetchAndDecodeGameAccount(w.ctx, gamePDA)
	if err != nil {
		w.scheduleRetryOrFail(job, lockToken, fmt.Sprintf("failed to fetch on-chain state: %v", err), true)
		return
	}
	if !game.Authority.Equals(w.authority.PublicKey()) {
		w.failNonIncrementing(job.MatchID, lockToken, "on-chain authority does not match local authority")
		return
	}

	switch {
	case job.JobType == string(dto.JobSettle) && game.State == ledger.GameStateSettled:
		w.confirmAlreadyTerminal(job.MatchID, lockToken, string(dto.MatchSettled))
		return
	case job.JobType == string(dto.JobForceRefund) && game.State == ledger.GameStateRefunded:
		w.confirmAlreadyTerminal(job.MatchID, lockToken, string(dto.MatchRefunded))
		return
	case job.JobType == string(dto.JobSettle) && game.State == ledger.GameStateRefunded:
		w.failNonIncrementing(job.MatchID, lockToken, "job is settle but on-chain state is already Refunded")
		return
	case job.JobType == string(dto.JobForceRefund) && game.State == ledger.GameStateSettled:
		w.failNonIncrementing(job.MatchID, lockToken, "job is force_refund but on-chain state is already Settled")
		return
	}

	vaultPDA, err := solana.PublicKeyFromBase58(match.VaultPDA)
	if err != nil {
		w.failNonIncrementing(job.MatchID, lockToken, fmt.Sprintf("stored vault PDA is malformed: %v", err))
		return
	}
	authorityPubkey := w.authority.PublicKey()

	var ix solana.Instruction
	var terminalStatus string
	switch job.JobType {
	case string(dto.JobSettle):
		if game.State != ledger.GameStateJoined {
			w.failNonIncrementing(job.MatchID, lockToken, "settle_game requires on-chain state Joined")
			return
		}
		if job.WinnerPubkey == nil {
			w.failNonIncrementing(job.MatchID, lockToken, "settle job has no winner_pubkey")
			return
		}
		winner, err := solana.PublicKeyFromBase58(*job.WinnerPubkey)
		if err != nil {
			w.failNonIncrementing(job.MatchID, lockToken, "winner_pubkey is malformed")
			return
		}
		ix, err = ledger.BuildSettleInstruction(w.programID, gamePDA, vaultPDA, winner, authorityPubkey)
		if err != nil {
			w.failNonIncrementing(job.MatchID, lockToken, err.Error())
			return
		}
		terminalStatus = string(dto.MatchSettled)
	case string(dto.JobForceRefund):
		ix, err = ledger.BuildForceRefundInstruction(w.programID, gamePDA, vaultPDA, game.Player1, game.Player2, authorityPubkey, game.State)
		if err != nil {
			w.failNonIncrementing(job.MatchID, lockToken, err.Error())
			return
		}
		terminalStatus = string(dto.MatchRefunded)
	default:
		w.failNonIncrementing(job.MatchID, lockToken, fmt.Sprintf("unknown job type %q", job.JobType))
		return
	}

	sig, err := w.ledger.Submit(w.ctx, ix, w.authority)
	if err != nil {
		w.scheduleRetryOrFail(job, lockToken, fmt.Sprintf("failed to submit transaction: %v", err), true)
		return
	}
	log.Info("submitted finalization transaction", "match_id", job.MatchID, "job_type", job.JobType, "pot_sol", helpers.LamportsToSOL(match.EntryLamports*2), "signature", sig.String())

	if err := w.store.MarkJobSubmitted(w.ctx, job.MatchID, lockToken, sig.String()); err != nil {
		log.Warn("lost lock recording submission", "match_id", job.MatchID, "error", err)
		w.store.ClearJobLock(w.ctx, job.MatchID, lockToken)
		return
	}
	w.notify(job.MatchID)

	result, err := w.ledger.Confirm(w.ctx, sig)
	if err != nil || result != ledger.ConfirmConfirmed {
		msg := "confirmation timed out"
		if err != nil {
			msg = err.Error()
		}
		w.scheduleRetryOrFail(job, lockToken, msg, false)
		return
	}

	if err := w.store.MarkJobConfirmedAndFinalizeMatch(w.ctx, job.MatchID, lockToken, sig.String(), terminalStatus); err != nil {
		log.Warn("lost lock finalizing job", "match_id", job.MatchID, "error", err)
		w.store.ClearJobLock(w.ctx, job.MatchID, lockToken)
		return
	}
	w.notify(job.MatchID)
}

func (w *Worker) confirmAlreadyTerminal(matchID int64, lockToken, terminalStatus string) {
	if err := w.store.MarkJobConfirmedAndFinalizeMatch(w.ctx, matchID, lockToken, "", terminalStatus); err != nil {
		log.Warn("failed to confirm already-terminal job", "match_id", matchID, "error", err)
		w.store.ClearJobLock(w.ctx, matchID, lockToken)
		return
	}
	w.notify(matchID)
}

func (w *Worker) notify(matchID int64) {
	if w.Notify != nil {
		w.Notify(matchID)
	}
}

func (w *Worker) failNonIncrementing(matchID int64, lockToken, reason string) {
	if err := w.store.MarkJobFailed(w.ctx, matchID, lockToken, reason, false); err != nil {
		log.Warn("failed to mark job failed", "match_id", matchID, "error", err)
	}
}

// scheduleRetryOrFail applies the attempt-count-limited exponential backoff
// policy: once the projected attempt count reaches maxAttempts the job is
// marked terminally failed, otherwise it is rescheduled.
func (w *Worker) scheduleRetryOrFail(job store.ChainJobRecord, lockToken, reason string, incrementAttempt bool) {
	projected := job.AttemptCount
	if incrementAttempt {
		projected++
	}
	if projected >= maxAttempts {
		if err := w.store.MarkJobFailed(w.ctx, job.MatchID, lockToken, reason, incrementAttempt); err != nil {
			log.Warn("failed to mark job failed", "match_id", job.MatchID, "error", err)
		}
		return
	}

	backoff := retryBackoffSeconds(int(projected))
	nextAttemptAt := time.Now().Add(time.Duration(backoff) * time.Second)
	if err := w.store.MarkJobRetrying(w.ctx, job.MatchID, lockToken, reason, nextAttemptAt, incrementAttempt); err != nil {
		log.Warn("failed to schedule retry", "match_id", job.MatchID, "error", err)
	}
}

// retryBackoffSeconds is min(2^clamp(attempts,1,6), 60).
func retryBackoffSeconds(attempts int) int {
	clamped := attempts
	if clamped < 1 {
		clamped = 1
	}
	if clamped > 6 {
		clamped = 6
	}
	backoff := 1 << clamped
	if backoff > maxBackoffSeconds {
		return maxBackoffSeconds
	}
	return backoff
}

func newLockToken() string {
	return uuid.New().String()
}

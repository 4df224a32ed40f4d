package store

import (
	"context"
	"fmt"
	"os"
	"testing"
	"time"
)

// openTestStore opens a Store against a real Postgres instance. It skips
// the test when TEST_DATABASE_URL is unset, since these exercise actual
// transactions and row locking rather than a mocked connection.
func openTestStore(t *testing.T) *Store {
	t.Helper()
	url := os.Getenv("TEST_DATABASE_URL")
	if url == "" {
		t.Skip("TEST_DATABASE_URL not set, skipping store integration test")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	s, err := Open(ctx, url)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(s.Close)
	return s
}

func insertTestMatch(t *testing.T, s *Store, matchID int64) *MatchRecord {
	t.Helper()
	rec := &MatchRecord{
		MatchID:         matchID,
		JoinCode:        fmt.Sprintf("MTEST%d", matchID),
		ProgramID:       "11111111111111111111111111111111",
		AuthorityPubkey: "11111111111111111111111111111111",
		GamePDA:         fmt.Sprintf("game-pda-%d", matchID),
		VaultPDA:        fmt.Sprintf("vault-pda-%d", matchID),
		Player1Pubkey:   "player1-pubkey",
		EntryLamports:   1_000_000_000,
		MatchStatus:     "waiting_create_tx",
	}
	if err := s.InsertMatch(context.Background(), rec); err != nil {
		t.Fatalf("InsertMatch: %v", err)
	}
	return rec
}

func TestInsertAndGetByMatchID(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	matchID, err := s.NextMatchID(ctx)
	if err != nil {
		t.Fatalf("NextMatchID: %v", err)
	}
	insertTestMatch(t, s, matchID)

	got, err := s.GetByMatchID(ctx, matchID)
	if err != nil {
		t.Fatalf("GetByMatchID: %v", err)
	}
	if got.MatchStatus != "waiting_create_tx" {
		t.Errorf("MatchStatus = %q, want waiting_create_tx", got.MatchStatus)
	}
}

func TestConfirmCreateIsIdempotent(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	matchID, _ := s.NextMatchID(ctx)
	insertTestMatch(t, s, matchID)

	joinExpires := time.Now().Add(2 * time.Minute)
	first, err := s.ConfirmCreate(ctx, matchID, "sig-1", time.Now(), joinExpires)
	if err != nil {
		t.Fatalf("ConfirmCreate: %v", err)
	}
	if first.MatchStatus != "created_on_chain" {
		t.Fatalf("MatchStatus = %q, want created_on_chain", first.MatchStatus)
	}

	// A replay with a different signature must not overwrite the first one.
	second, err := s.ConfirmCreate(ctx, matchID, "sig-2", time.Now(), joinExpires)
	if err != nil {
		t.Fatalf("ConfirmCreate replay: %v", err)
	}
	if *second.CreateTxSig != "sig-1" {
		t.Errorf("CreateTxSig = %q, want sig-1 to survive the replay", *second.CreateTxSig)
	}
}

func TestPersistResultAndEnqueueRejectsConflictingReplay(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	matchID, _ := s.NextMatchID(ctx)
	insertTestMatch(t, s, matchID)
	joinExpires := time.Now().Add(2 * time.Minute)
	if _, err := s.ConfirmCreate(ctx, matchID, "sig-1", time.Now(), joinExpires); err != nil {
		t.Fatalf("ConfirmCreate: %v", err)
	}
	settleExpires := time.Now().Add(5 * time.Minute)
	if _, err := s.ConfirmJoin(ctx, matchID, "player2-pubkey", "sig-2", time.Now(), settleExpires); err != nil {
		t.Fatalf("ConfirmJoin: %v", err)
	}

	winner := "player1-pubkey"
	match, job, err := s.PersistResultAndEnqueue(ctx, matchID, "settle", &winner, "winner_reported", nil, "idem-1")
	if err != nil {
		t.Fatalf("PersistResultAndEnqueue: %v", err)
	}
	if match.MatchStatus != "result_pending_finalize" {
		t.Errorf("MatchStatus = %q", match.MatchStatus)
	}
	if job.JobType != "settle" {
		t.Errorf("JobType = %q", job.JobType)
	}

	otherWinner := "player2-pubkey"
	if _, _, err := s.PersistResultAndEnqueue(ctx, matchID, "settle", &otherWinner, "winner_reported", nil, "idem-2"); err == nil {
		t.Error("expected a conflict for a mismatched replay")
	}
}

func TestClaimNextDueJobSkipsLockedRows(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	matchID, _ := s.NextMatchID(ctx)
	insertTestMatch(t, s, matchID)
	joinExpires := time.Now().Add(2 * time.Minute)
	if _, err := s.ConfirmCreate(ctx, matchID, "sig-1", time.Now(), joinExpires); err != nil {
		t.Fatalf("ConfirmCreate: %v", err)
	}
	settleExpires := time.Now().Add(5 * time.Minute)
	if _, err := s.ConfirmJoin(ctx, matchID, "player2-pubkey", "sig-2", time.Now(), settleExpires); err != nil {
		t.Fatalf("ConfirmJoin: %v", err)
	}
	winner := "player1-pubkey"
	if _, _, err := s.PersistResultAndEnqueue(ctx, matchID, "settle", &winner, "winner_reported", nil, "idem-1"); err != nil {
		t.Fatalf("PersistResultAndEnqueue: %v", err)
	}

	claim, err := s.ClaimNextDueJob(ctx, "lock-token-1")
	if err != nil {
		t.Fatalf("ClaimNextDueJob: %v", err)
	}
	if claim.Job.MatchID != matchID {
		t.Errorf("claimed wrong match: %d", claim.Job.MatchID)
	}

	if _, err := s.ClaimNextDueJob(ctx, "lock-token-2"); err != ErrNotFound {
		t.Errorf("expected ErrNotFound for an already-locked job, got %v", err)
	}
}

func TestMarkJobConfirmedAndFinalizeMatchIsExactlyOnce(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	matchID, _ := s.NextMatchID(ctx)
	insertTestMatch(t, s, matchID)
	joinExpires := time.Now().Add(2 * time.Minute)
	if _, err := s.ConfirmCreate(ctx, matchID, "sig-1", time.Now(), joinExpires); err != nil {
		t.Fatalf("ConfirmCreate: %v", err)
	}
	settleExpires := time.Now().Add(5 * time.Minute)
	if _, err := s.ConfirmJoin(ctx, matchID, "player2-pubkey", "sig-2", time.Now(), settleExpires); err != nil {
		t.Fatalf("ConfirmJoin: %v", err)
	}
	winner := "player1-pubkey"
	if _, _, err := s.PersistResultAndEnqueue(ctx, matchID, "settle", &winner, "winner_reported", nil, "idem-1"); err != nil {
		t.Fatalf("PersistResultAndEnqueue: %v", err)
	}
	if _, err := s.ClaimNextDueJob(ctx, "lock-token-1"); err != nil {
		t.Fatalf("ClaimNextDueJob: %v", err)
	}
	if err := s.MarkJobSubmitted(ctx, matchID, "lock-token-1", "final-sig"); err != nil {
		t.Fatalf("MarkJobSubmitted: %v", err)
	}

	if err := s.MarkJobConfirmedAndFinalizeMatch(ctx, matchID, "lock-token-1", "final-sig", "settled"); err != nil {
		t.Fatalf("MarkJobConfirmedAndFinalizeMatch: %v", err)
	}
	match, err := s.GetByMatchID(ctx, matchID)
	if err != nil {
		t.Fatalf("GetByMatchID: %v", err)
	}
	if match.MatchStatus != "settled" {
		t.Errorf("MatchStatus = %q, want settled", match.MatchStatus)
	}

	// Replaying confirmation with the same (now-cleared) lock token must fail.
	if err := s.MarkJobConfirmedAndFinalizeMatch(ctx, matchID, "lock-token-1", "final-sig", "settled"); err == nil {
		t.Error("expected a conflict replaying confirmation after the lock was cleared")
	}
}

func TestInsertNonceIfUnusedIsFirstWriteWins(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	first, err := s.InsertNonceIfUnused(ctx, "nonce-abc")
	if err != nil {
		t.Fatalf("InsertNonceIfUnused: %v", err)
	}
	if !first {
		t.Error("expected the first insert of a nonce to report fresh=true")
	}

	second, err := s.InsertNonceIfUnused(ctx, "nonce-abc")
	if err != nil {
		t.Fatalf("InsertNonceIfUnused: %v", err)
	}
	if second {
		t.Error("expected a repeated nonce to report fresh=false")
	}
}

package coordinator

import (
	"strconv"
	"testing"

	"github.com/gagliardetto/solana-go"

	"github.com/klingon-exchange/wagerd/internal/ledger"
	"github.com/klingon-exchange/wagerd/internal/store"
)

func TestJoinCodeIsBijective(t *testing.T) {
	seen := make(map[string]int64)
	for _, id := range []int64{1, 2, 35, 36, 37, 1000, 999999} {
		code := JoinCode(id)
		if other, ok := seen[code]; ok && other != id {
			t.Fatalf("join codes collide: %d and %d both produce %s", id, other, code)
		}
		seen[code] = id
		if code[0] != 'M' {
			t.Errorf("JoinCode(%d) = %q, missing M prefix", id, code)
		}
	}
}

func TestJoinCodeRoundTripsThroughBase36(t *testing.T) {
	if got := JoinCode(36); got != "M10" {
		t.Errorf("JoinCode(36) = %q, want M10", got)
	}
	if got := JoinCode(1); got != "M1" {
		t.Errorf("JoinCode(1) = %q, want M1", got)
	}
	for _, id := range []int64{1, 36, 1000, 999999} {
		decoded, err := strconv.ParseInt(JoinCode(id)[1:], 36, 64)
		if err != nil || decoded != id {
			t.Errorf("JoinCode(%d) decodes back to %d (err %v)", id, decoded, err)
		}
	}
}

func TestParseEntryLamportsRejectsZeroAndNonNumeric(t *testing.T) {
	if _, err := parseEntryLamports("0"); err == nil {
		t.Error("expected an error for a zero entry amount")
	}
	if _, err := parseEntryLamports("not-a-number"); err == nil {
		t.Error("expected an error for a non-numeric entry amount")
	}
	got, err := parseEntryLamports(" 1000000000 ")
	if err != nil {
		t.Fatalf("parseEntryLamports: %v", err)
	}
	if got != 1_000_000_000 {
		t.Errorf("parseEntryLamports = %d, want 1000000000", got)
	}
}

func TestPotLamportsDoublesOnceJoined(t *testing.T) {
	rec := &store.MatchRecord{EntryLamports: 1_000_000_000}
	got, err := potLamports(rec)
	if err != nil {
		t.Fatalf("potLamports (no player2): %v", err)
	}
	if got != 1_000_000_000 {
		t.Errorf("potLamports (no player2) = %d, want entry amount alone", got)
	}

	player2 := "player2-pubkey"
	rec.Player2Pubkey = &player2
	got, err = potLamports(rec)
	if err != nil {
		t.Fatalf("potLamports (joined): %v", err)
	}
	if got != 2_000_000_000 {
		t.Errorf("potLamports (joined) = %d, want double the entry amount", got)
	}
}

func TestPotLamportsRejectsOverflow(t *testing.T) {
	player2 := "player2-pubkey"
	rec := &store.MatchRecord{EntryLamports: 1<<63 - 1, Player2Pubkey: &player2}
	if _, err := potLamports(rec); err == nil {
		t.Error("expected an overflow error when doubling the maximum entry amount")
	}
}

func TestDerefOrFallsBackOnNil(t *testing.T) {
	if got := derefOr(nil, "fallback"); got != "fallback" {
		t.Errorf("derefOr(nil, fallback) = %q", got)
	}
	v := "value"
	if got := derefOr(&v, "fallback"); got != "value" {
		t.Errorf("derefOr(&v, fallback) = %q", got)
	}
}

func newTestGameAndMatch() (*ledger.GameAccount, *store.MatchRecord) {
	player1 := randomPubkey(1)
	authority := randomPubkey(2)
	game := &ledger.GameAccount{
		Player1:     player1,
		Authority:   authority,
		EntryAmount: 1_000_000_000,
		MatchID:     42,
	}
	rec := &store.MatchRecord{
		Player1Pubkey:   player1.String(),
		AuthorityPubkey: authority.String(),
		EntryLamports:   1_000_000_000,
		MatchID:         42,
	}
	return game, rec
}

func randomPubkey(seed byte) solana.PublicKey {
	var pk solana.PublicKey
	for i := range pk {
		pk[i] = seed + byte(i)
	}
	return pk
}

func TestVerifyAgainstStoredAcceptsMatchingAccount(t *testing.T) {
	c := &Coordinator{}
	game, rec := newTestGameAndMatch()

	if err := c.verifyAgainstStored(rec, game, false); err != nil {
		t.Fatalf("verifyAgainstStored: %v", err)
	}
}

func TestVerifyAgainstStoredRejectsPlayer1Mismatch(t *testing.T) {
	c := &Coordinator{}
	game, rec := newTestGameAndMatch()
	rec.Player1Pubkey = randomPubkey(9).String()

	if err := c.verifyAgainstStored(rec, game, false); err == nil {
		t.Error("expected an error for a player1 mismatch")
	}
}

func TestVerifyAgainstStoredRejectsEntryAmountMismatch(t *testing.T) {
	c := &Coordinator{}
	game, rec := newTestGameAndMatch()
	rec.EntryLamports = 2_000_000_000

	if err := c.verifyAgainstStored(rec, game, false); err == nil {
		t.Error("expected an error for an entry_amount mismatch")
	}
}

func TestVerifyAgainstStoredRequiresDistinctPlayers(t *testing.T) {
	c := &Coordinator{}
	game, rec := newTestGameAndMatch()
	game.Player2 = game.Player1

	if err := c.verifyAgainstStored(rec, game, true); err == nil {
		t.Error("expected an error when player2 equals player1 and a distinct player2 is required")
	}
}

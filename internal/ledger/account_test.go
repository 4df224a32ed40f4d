package ledger

import (
	"encoding/binary"
	"testing"
)

// encodeGameAccount builds a well-formed Game account buffer for tests,
// mirroring the fixed little-endian layout DecodeGameAccount expects.
func encodeGameAccount(t *testing.T, g GameAccount) []byte {
	t.Helper()
	disc := AccountDiscriminator("Game")
	buf := make([]byte, 0, 8+gameAccountBodyLen)
	buf = append(buf, disc[:]...)
	buf = append(buf, g.Player1[:]...)
	buf = append(buf, g.Player2[:]...)
	buf = binary.LittleEndian.AppendUint64(buf, g.EntryAmount)
	buf = append(buf, g.Authority[:]...)
	buf = binary.LittleEndian.AppendUint64(buf, g.MatchID)
	buf = append(buf, byte(g.State))
	buf = binary.LittleEndian.AppendUint64(buf, uint64(g.CreatedAt))
	buf = binary.LittleEndian.AppendUint64(buf, uint64(g.JoinedAt))
	buf = append(buf, g.Bump, g.VaultBump)
	return buf
}

func TestDecodeGameAccountRoundTrip(t *testing.T) {
	want := GameAccount{
		Player1:     randomPubkey(1),
		Player2:     randomPubkey(2),
		EntryAmount: 1_000_000_000,
		Authority:   randomPubkey(3),
		MatchID:     42,
		State:       GameStateJoined,
		CreatedAt:   1700000000,
		JoinedAt:    1700000100,
		Bump:        254,
		VaultBump:   253,
	}

	got, err := DecodeGameAccount(encodeGameAccount(t, want))
	if err != nil {
		t.Fatalf("DecodeGameAccount: %v", err)
	}
	if *got != want {
		t.Errorf("DecodeGameAccount = %+v, want %+v", *got, want)
	}
}

func TestDecodeGameAccountRejectsBadDiscriminator(t *testing.T) {
	buf := encodeGameAccount(t, GameAccount{})
	buf[0] ^= 0xFF

	if _, err := DecodeGameAccount(buf); err == nil {
		t.Error("expected an error for a mismatched discriminator")
	}
}

func TestDecodeGameAccountRejectsTruncatedData(t *testing.T) {
	buf := encodeGameAccount(t, GameAccount{})
	if _, err := DecodeGameAccount(buf[:len(buf)-1]); err == nil {
		t.Error("expected an error for truncated account data")
	}
}

func TestDecodeGameAccountRejectsInvalidState(t *testing.T) {
	buf := encodeGameAccount(t, GameAccount{State: GameStateCreated})
	// state byte sits right after discriminator(8) + player1(32) + player2(32) + entry_amount(8) + authority(32) + match_id(8).
	stateOffset := 8 + 32 + 32 + 8 + 32 + 8
	buf[stateOffset] = 99

	if _, err := DecodeGameAccount(buf); err == nil {
		t.Error("expected an error for an invalid state byte")
	}
}

func TestGameStateString(t *testing.T) {
	tests := map[GameState]string{
		GameStateCreated:  "created",
		GameStateJoined:   "joined",
		GameStateSettled:  "settled",
		GameStateRefunded: "refunded",
		GameState(99):     "unknown",
	}
	for state, want := range tests {
		if got := state.String(); got != want {
			t.Errorf("GameState(%d).String() = %q, want %q", state, got, want)
		}
	}
}

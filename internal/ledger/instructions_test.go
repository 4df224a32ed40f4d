package ledger

import (
	"testing"

	"github.com/gagliardetto/solana-go"
)

func TestBuildSettleInstructionAccounts(t *testing.T) {
	programID := randomPubkey(1)
	game := randomPubkey(2)
	vault := randomPubkey(3)
	winner := randomPubkey(4)
	authority := randomPubkey(5)

	ix, err := BuildSettleInstruction(programID, game, vault, winner, authority)
	if err != nil {
		t.Fatalf("BuildSettleInstruction: %v", err)
	}
	accounts := ix.Accounts()
	if len(accounts) != 5 {
		t.Fatalf("got %d accounts, want 5", len(accounts))
	}
	if !accounts[3].IsSigner {
		t.Error("authority account must be marked as signer")
	}
	if accounts[3].IsWritable {
		t.Error("authority account must not be writable")
	}
	if !accounts[0].IsWritable || !accounts[1].IsWritable || !accounts[2].IsWritable {
		t.Error("game, vault and winner accounts must be writable")
	}

	data, err := ix.Data()
	if err != nil {
		t.Fatalf("ix.Data: %v", err)
	}
	disc := InstructionDiscriminator("settle_game")
	if string(data[:8]) != string(disc[:]) {
		t.Error("instruction data does not start with the settle_game discriminator")
	}
	if string(data[8:40]) != string(winner[:]) {
		t.Error("instruction data does not carry the winner pubkey")
	}
}

func TestBuildForceRefundInstructionPlaceholderOnCreated(t *testing.T) {
	programID := randomPubkey(1)
	game := randomPubkey(2)
	vault := randomPubkey(3)
	player1 := randomPubkey(4)
	authority := randomPubkey(5)

	ix, err := BuildForceRefundInstruction(programID, game, vault, player1, solana.PublicKey{}, authority, GameStateCreated)
	if err != nil {
		t.Fatalf("BuildForceRefundInstruction: %v", err)
	}
	accounts := ix.Accounts()
	// [game, vault, player1, player2_slot, authority, system_program]
	if accounts[3].PublicKey != player1 {
		t.Error("player2 slot should fall back to player1 when Created with no player2")
	}
}

func TestBuildForceRefundInstructionRejectsTerminalState(t *testing.T) {
	programID := randomPubkey(1)
	game := randomPubkey(2)
	vault := randomPubkey(3)
	player1 := randomPubkey(4)
	player2 := randomPubkey(5)
	authority := randomPubkey(6)

	if _, err := BuildForceRefundInstruction(programID, game, vault, player1, player2, authority, GameStateSettled); err == nil {
		t.Error("expected an error for force_refund against a Settled account")
	}
}

func TestBuildForceRefundInstructionKeepsPlayer2WhenJoined(t *testing.T) {
	programID := randomPubkey(1)
	game := randomPubkey(2)
	vault := randomPubkey(3)
	player1 := randomPubkey(4)
	player2 := randomPubkey(5)
	authority := randomPubkey(6)

	ix, err := BuildForceRefundInstruction(programID, game, vault, player1, player2, authority, GameStateJoined)
	if err != nil {
		t.Fatalf("BuildForceRefundInstruction: %v", err)
	}
	if ix.Accounts()[3].PublicKey != player2 {
		t.Error("player2 slot must carry the real player2 once joined")
	}
}

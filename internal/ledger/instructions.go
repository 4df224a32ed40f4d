package ledger

import (
	"fmt"

	"github.com/gagliardetto/solana-go"
)

// BuildSettleInstruction builds the settle_game instruction: discriminator
// followed by the 32-byte winner pubkey, against
// [game(w), vault(w), winner(w), authority(signer), system_program].
func BuildSettleInstruction(programID, game, vault, winner, authority solana.PublicKey) (solana.Instruction, error) {
	disc := InstructionDiscriminator("settle_game")
	data := make([]byte, 0, 8+32)
	data = append(data, disc[:]...)
	data = append(data, winner[:]...)

	accounts := solana.AccountMetaSlice{
		solana.NewAccountMeta(game, true, false),
		solana.NewAccountMeta(vault, true, false),
		solana.NewAccountMeta(winner, true, false),
		solana.NewAccountMeta(authority, false, true),
		solana.NewAccountMeta(solana.SystemProgramID, false, false),
	}

	return solana.NewInstruction(programID, accounts, data), nil
}

// BuildForceRefundInstruction builds the force_refund instruction against
// [game(w), vault(w), player1(w), player2_or_placeholder(w), authority(signer), system_program].
// When the account is Created and has no player2 yet, player1 is loaded into
// the player2 slot as a read-only-loaded placeholder.
func BuildForceRefundInstruction(programID, game, vault, player1, player2, authority solana.PublicKey, state GameState) (solana.Instruction, error) {
	if state != GameStateCreated && state != GameStateJoined {
		return nil, fmt.Errorf("force_refund requires on-chain state Created or Joined, got %s", state)
	}

	player2Slot := player2
	if state == GameStateCreated && player2 == (solana.PublicKey{}) {
		player2Slot = player1
	}

	disc := InstructionDiscriminator("force_refund")

	accounts := solana.AccountMetaSlice{
		solana.NewAccountMeta(game, true, false),
		solana.NewAccountMeta(vault, true, false),
		solana.NewAccountMeta(player1, true, false),
		solana.NewAccountMeta(player2Slot, true, false),
		solana.NewAccountMeta(authority, false, true),
		solana.NewAccountMeta(solana.SystemProgramID, false, false),
	}

	return solana.NewInstruction(programID, accounts, disc[:]), nil
}

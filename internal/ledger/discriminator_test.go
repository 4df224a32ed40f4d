package ledger

import (
	"crypto/sha256"
	"testing"
)

func TestAccountDiscriminatorMatchesPreimage(t *testing.T) {
	want := sha256.Sum256([]byte("account:Game"))
	got := AccountDiscriminator("Game")
	if got != [8]byte(want[:8]) {
		t.Errorf("AccountDiscriminator(Game) = %x, want %x", got, want[:8])
	}
}

func TestInstructionDiscriminatorMatchesPreimage(t *testing.T) {
	want := sha256.Sum256([]byte("global:settle_game"))
	got := InstructionDiscriminator("settle_game")
	if got != [8]byte(want[:8]) {
		t.Errorf("InstructionDiscriminator(settle_game) = %x, want %x", got, want[:8])
	}
}

func TestDiscriminatorsAreNamespaceDistinct(t *testing.T) {
	account := AccountDiscriminator("Game")
	instruction := InstructionDiscriminator("Game")
	if account == instruction {
		t.Error("account and instruction discriminators for the same name must differ")
	}
}

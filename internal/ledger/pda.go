package ledger

import (
	"crypto/sha256"
	"encoding/binary"
	"fmt"

	"filippo.io/edwards25519"
	"github.com/gagliardetto/solana-go"
)

const pdaMarker = "ProgramDerivedAddress"

// MatchPDAs holds the two derived accounts for a match.
type MatchPDAs struct {
	Game  solana.PublicKey
	Vault solana.PublicKey
}

// DeriveMatchPDAs derives the game and vault PDAs for a match, following the
// seed scheme game = ["game", player1, authority, match_id_le] and
// vault = ["vault", game_pda].
func DeriveMatchPDAs(programID, authority, player1 solana.PublicKey, matchID uint64) (MatchPDAs, error) {
	var matchIDLE [8]byte
	binary.LittleEndian.PutUint64(matchIDLE[:], matchID)

	game, _, err := FindProgramAddress([][]byte{
		[]byte("game"),
		player1[:],
		authority[:],
		matchIDLE[:],
	}, programID)
	if err != nil {
		return MatchPDAs{}, fmt.Errorf("failed to derive game PDA: %w", err)
	}

	vault, _, err := FindProgramAddress([][]byte{
		[]byte("vault"),
		game[:],
	}, programID)
	if err != nil {
		return MatchPDAs{}, fmt.Errorf("failed to derive vault PDA: %w", err)
	}

	return MatchPDAs{Game: game, Vault: vault}, nil
}

// FindProgramAddress searches bumps from 255 down to 0 for the first seed
// combination whose resulting address falls off the ed25519 curve, exactly
// as the on-chain addressing scheme requires.
func FindProgramAddress(seeds [][]byte, programID solana.PublicKey) (solana.PublicKey, uint8, error) {
	for bump := 255; bump >= 0; bump-- {
		candidateSeeds := make([][]byte, 0, len(seeds)+1)
		candidateSeeds = append(candidateSeeds, seeds...)
		candidateSeeds = append(candidateSeeds, []byte{byte(bump)})

		addr, err := createProgramAddress(candidateSeeds, programID)
		if err == nil {
			return addr, uint8(bump), nil
		}
	}
	return solana.PublicKey{}, 0, fmt.Errorf("unable to find a viable program address bump")
}

// createProgramAddress implements the on-chain CreateProgramAddress scheme:
// sha256(seeds... || program_id || "ProgramDerivedAddress"), rejecting any
// digest that happens to land on the ed25519 curve.
func createProgramAddress(seeds [][]byte, programID solana.PublicKey) (solana.PublicKey, error) {
	h := sha256.New()
	for _, seed := range seeds {
		if len(seed) > 32 {
			return solana.PublicKey{}, fmt.Errorf("seed too long: %d bytes", len(seed))
		}
		h.Write(seed)
	}
	h.Write(programID[:])
	h.Write([]byte(pdaMarker))
	sum := h.Sum(nil)

	if isOnCurve(sum) {
		return solana.PublicKey{}, fmt.Errorf("invalid seeds: address falls on the ed25519 curve")
	}

	var out solana.PublicKey
	copy(out[:], sum)
	return out, nil
}

// isOnCurve reports whether b, interpreted as a compressed ed25519 point, is
// a valid curve point. PDAs are deliberately constructed to fail this check.
func isOnCurve(b []byte) bool {
	if len(b) != 32 {
		return false
	}
	_, err := new(edwards25519.Point).SetBytes(b)
	return err == nil
}

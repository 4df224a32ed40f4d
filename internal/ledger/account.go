package ledger

import (
	"bytes"
	"encoding/binary"
	"fmt"

	bin "github.com/gagliardetto/binary"
	"github.com/gagliardetto/solana-go"
)

// GameState is the on-chain state of a Game account.
type GameState uint8

const (
	GameStateCreated GameState = iota
	GameStateJoined
	GameStateSettled
	GameStateRefunded
)

func (s GameState) String() string {
	switch s {
	case GameStateCreated:
		return "created"
	case GameStateJoined:
		return "joined"
	case GameStateSettled:
		return "settled"
	case GameStateRefunded:
		return "refunded"
	default:
		return "unknown"
	}
}

// gameAccountBodyLen is the byte length of the Game account body, following
// the discriminator: 32+32+8+32+8+1+8+8+1+1.
const gameAccountBodyLen = 32 + 32 + 8 + 32 + 8 + 1 + 8 + 8 + 1 + 1

// GameAccount is the decoded form of the on-chain Game account.
type GameAccount struct {
	Player1     solana.PublicKey
	Player2     solana.PublicKey
	EntryAmount uint64
	Authority   solana.PublicKey
	MatchID     uint64
	State       GameState
	CreatedAt   int64
	JoinedAt    int64
	Bump        uint8
	VaultBump   uint8
}

// DecodeGameAccount parses the fixed little-endian Game account layout,
// validating the leading Anchor discriminator.
func DecodeGameAccount(data []byte) (*GameAccount, error) {
	if len(data) < 8+gameAccountBodyLen {
		return nil, fmt.Errorf("game account data too short: %d bytes", len(data))
	}

	want := AccountDiscriminator("Game")
	if !bytes.Equal(data[:8], want[:]) {
		return nil, fmt.Errorf("invalid Game discriminator")
	}

	dec := bin.NewBinDecoder(data[8:])

	player1, err := readPubkey(dec)
	if err != nil {
		return nil, fmt.Errorf("failed to read player1: %w", err)
	}
	player2, err := readPubkey(dec)
	if err != nil {
		return nil, fmt.Errorf("failed to read player2: %w", err)
	}
	entryAmount, err := dec.ReadUint64(binary.LittleEndian)
	if err != nil {
		return nil, fmt.Errorf("failed to read entry_amount: %w", err)
	}
	authority, err := readPubkey(dec)
	if err != nil {
		return nil, fmt.Errorf("failed to read authority: %w", err)
	}
	matchID, err := dec.ReadUint64(binary.LittleEndian)
	if err != nil {
		return nil, fmt.Errorf("failed to read match_id: %w", err)
	}
	stateByte, err := dec.ReadUint8()
	if err != nil {
		return nil, fmt.Errorf("failed to read state: %w", err)
	}
	state, err := parseGameState(stateByte)
	if err != nil {
		return nil, err
	}
	createdAt, err := dec.ReadInt64(binary.LittleEndian)
	if err != nil {
		return nil, fmt.Errorf("failed to read created_at: %w", err)
	}
	joinedAt, err := dec.ReadInt64(binary.LittleEndian)
	if err != nil {
		return nil, fmt.Errorf("failed to read joined_at: %w", err)
	}
	bump, err := dec.ReadUint8()
	if err != nil {
		return nil, fmt.Errorf("failed to read bump: %w", err)
	}
	vaultBump, err := dec.ReadUint8()
	if err != nil {
		return nil, fmt.Errorf("failed to read vault_bump: %w", err)
	}

	return &GameAccount{
		Player1:     player1,
		Player2:     player2,
		EntryAmount: entryAmount,
		Authority:   authority,
		MatchID:     matchID,
		State:       state,
		CreatedAt:   createdAt,
		JoinedAt:    joinedAt,
		Bump:        bump,
		VaultBump:   vaultBump,
	}, nil
}

func readPubkey(dec *bin.Decoder) (solana.PublicKey, error) {
	raw, err := dec.ReadNBytes(32)
	if err != nil {
		return solana.PublicKey{}, err
	}
	var pk solana.PublicKey
	copy(pk[:], raw)
	return pk, nil
}

func parseGameState(b byte) (GameState, error) {
	switch b {
	case 0:
		return GameStateCreated, nil
	case 1:
		return GameStateJoined, nil
	case 2:
		return GameStateSettled, nil
	case 3:
		return GameStateRefunded, nil
	default:
		return 0, fmt.Errorf("invalid GameState variant: %d", b)
	}
}

package ledger

import (
	"context"
	"fmt"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/rpc"
)

const (
	confirmPollAttempts = 40
	confirmPollInterval = 500 * time.Millisecond
)

// Client wraps a Solana RPC connection with the fixed operations the
// coordinator and finalizer need: fetching and decoding the Game account,
// and submitting/confirming finalization transactions.
type Client struct {
	rpc       *rpc.Client
	programID solana.PublicKey
}

// New returns a Client bound to rpcURL and the deployed program id.
func New(rpcURL string, programID solana.PublicKey) *Client {
	return &Client{rpc: rpc.New(rpcURL), programID: programID}
}

// FetchAndDecodeGameAccount reads gamePDA, verifies it is owned by the
// configured program, and decodes its Game layout.
func (c *Client) FetchAndDecodeGameAccount(ctx context.Context, gamePDA solana.PublicKey) (*GameAccount, error) {
	info, err := c.rpc.GetAccountInfo(ctx, gamePDA)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch game account: %w", err)
	}
	if info == nil || info.Value == nil {
		return nil, fmt.Errorf("game account %s not found", gamePDA)
	}
	if info.Value.Owner != c.programID {
		return nil, fmt.Errorf("game account %s is not owned by the configured program", gamePDA)
	}
	return DecodeGameAccount(info.Value.Data.GetBinary())
}

// Submit builds a transaction containing ix, signs it with signer, and
// sends it, returning the transaction signature. Blockhash fetch or send
// failures are always transient from the caller's point of view.
func (c *Client) Submit(ctx context.Context, ix solana.Instruction, signer solana.PrivateKey) (solana.Signature, error) {
	recent, err := c.rpc.GetLatestBlockhash(ctx, rpc.CommitmentFinalized)
	if err != nil {
		return solana.Signature{}, fmt.Errorf("failed to fetch recent blockhash: %w", err)
	}

	tx, err := solana.NewTransaction(
		[]solana.Instruction{ix},
		recent.Value.Blockhash,
		solana.TransactionPayer(signer.PublicKey()),
	)
	if err != nil {
		return solana.Signature{}, fmt.Errorf("failed to build transaction: %w", err)
	}

	_, err = tx.Sign(func(key solana.PublicKey) *solana.PrivateKey {
		if key.Equals(signer.PublicKey()) {
			return &signer
		}
		return nil
	})
	if err != nil {
		return solana.Signature{}, fmt.Errorf("failed to sign transaction: %w", err)
	}

	sig, err := c.rpc.SendTransaction(ctx, tx)
	if err != nil {
		return solana.Signature{}, fmt.Errorf("failed to send transaction: %w", err)
	}
	return sig, nil
}

// ConfirmResult is the outcome of polling a signature for confirmation.
type ConfirmResult int

const (
	ConfirmConfirmed ConfirmResult = iota
	ConfirmFailed
	ConfirmTimedOut
)

// Confirm polls the signature status up to confirmPollAttempts times at
// confirmPollInterval, matching the 20-second confirmation budget.
func (c *Client) Confirm(ctx context.Context, sig solana.Signature) (ConfirmResult, error) {
	for i := 0; i < confirmPollAttempts; i++ {
		statuses, err := c.rpc.GetSignatureStatuses(ctx, true, sig)
		if err != nil {
			return ConfirmTimedOut, fmt.Errorf("failed to poll signature status: %w", err)
		}
		if len(statuses.Value) > 0 && statuses.Value[0] != nil {
			st := statuses.Value[0]
			if st.Err != nil {
				return ConfirmFailed, fmt.Errorf("transaction failed on-chain: %v", st.Err)
			}
			if st.ConfirmationStatus == rpc.ConfirmationStatusConfirmed || st.ConfirmationStatus == rpc.ConfirmationStatusFinalized {
				return ConfirmConfirmed, nil
			}
		}

		select {
		case <-ctx.Done():
			return ConfirmTimedOut, ctx.Err()
		case <-time.After(confirmPollInterval):
		}
	}
	return ConfirmTimedOut, nil
}

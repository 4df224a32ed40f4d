// Package hmacauth verifies the HMAC-SHA256 envelope carried by internal
// and admin requests.
package hmacauth

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"math"
	"net/http"
	"strconv"
	"strings"
	"time"
	"unicode"

	"github.com/klingon-exchange/wagerd/internal/apperr"
)

const (
	headerTimestamp = "X-Timestamp"
	headerNonce     = "X-Nonce"
	headerSignature = "X-Signature"

	maxClockSkewSeconds = 300
	maxNonceLen         = 128
)

// NonceStore is the replay-rejection boundary; Verify calls it after the
// MAC check succeeds.
type NonceStore interface {
	InsertNonceIfUnused(ctx context.Context, nonce string) (bool, error)
}

// Verify checks the three HMAC headers against the secret and raw body,
// then consults store to reject replays. It must be called before the body
// is JSON-decoded so the MAC covers the exact bytes received.
func Verify(ctx context.Context, secret string, header http.Header, rawBody []byte, store NonceStore) error {
	if secret == "" {
		return apperr.ErrUnauthorized
	}

	ts := headerValue(header, headerTimestamp)
	nonce := headerValue(header, headerNonce)
	sig := headerValue(header, headerSignature)
	if ts == "" || nonce == "" || sig == "" {
		return apperr.ErrUnauthorized
	}
	if !isASCII(ts) || !isASCII(nonce) || !isASCII(sig) {
		return apperr.ErrUnauthorized
	}
	if len(nonce) > maxNonceLen {
		return apperr.ErrUnauthorized
	}

	timestamp, err := strconv.ParseInt(ts, 10, 64)
	if err != nil {
		return apperr.ErrUnauthorized
	}
	skew := time.Now().Unix() - timestamp
	if math.Abs(float64(skew)) > maxClockSkewSeconds {
		return apperr.ErrUnauthorized
	}

	sigBytes, err := parseSignatureHex(sig)
	if err != nil {
		return apperr.ErrUnauthorized
	}

	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(ts))
	mac.Write([]byte("."))
	mac.Write([]byte(nonce))
	mac.Write([]byte("."))
	mac.Write(rawBody)
	expected := mac.Sum(nil)

	if !hmac.Equal(expected, sigBytes) {
		return apperr.ErrUnauthorized
	}

	fresh, err := store.InsertNonceIfUnused(ctx, nonce)
	if err != nil {
		return fmt.Errorf("failed to record nonce: %w", err)
	}
	if !fresh {
		return apperr.ErrUnauthorized
	}
	return nil
}

func headerValue(header http.Header, name string) string {
	return strings.TrimSpace(header.Get(name))
}

func isASCII(s string) bool {
	for _, r := range s {
		if r > unicode.MaxASCII {
			return false
		}
	}
	return true
}

func parseSignatureHex(sig string) ([]byte, error) {
	trimmed := sig
	lower := strings.ToLower(sig)
	if strings.HasPrefix(lower, "sha256=") {
		trimmed = sig[len("sha256="):]
	}
	return hex.DecodeString(trimmed)
}

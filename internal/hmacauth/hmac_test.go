package hmacauth

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"net/http"
	"strconv"
	"testing"
	"time"
)

// memNonceStore is a trivial in-process NonceStore for tests; it tracks
// exactly the one thing Verify depends on, first-use-wins.
type memNonceStore struct {
	seen map[string]bool
}

func newMemNonceStore() *memNonceStore {
	return &memNonceStore{seen: make(map[string]bool)}
}

func (m *memNonceStore) InsertNonceIfUnused(ctx context.Context, nonce string) (bool, error) {
	if m.seen[nonce] {
		return false, nil
	}
	m.seen[nonce] = true
	return true, nil
}

func signedHeader(t *testing.T, secret, nonce string, ts int64, body []byte) http.Header {
	t.Helper()
	tsStr := strconv.FormatInt(ts, 10)
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(tsStr))
	mac.Write([]byte("."))
	mac.Write([]byte(nonce))
	mac.Write([]byte("."))
	mac.Write(body)
	sig := hex.EncodeToString(mac.Sum(nil))

	h := http.Header{}
	h.Set("X-Timestamp", tsStr)
	h.Set("X-Nonce", nonce)
	h.Set("X-Signature", sig)
	return h
}

func TestVerifyAcceptsValidEnvelope(t *testing.T) {
	secret := "shared-secret"
	body := []byte(`{"match_id":"1"}`)
	header := signedHeader(t, secret, "nonce-1", time.Now().Unix(), body)

	if err := Verify(context.Background(), secret, header, body, newMemNonceStore()); err != nil {
		t.Fatalf("Verify: %v", err)
	}
}

func TestVerifyRejectsWrongSecret(t *testing.T) {
	body := []byte(`{}`)
	header := signedHeader(t, "secret-a", "nonce-1", time.Now().Unix(), body)

	if err := Verify(context.Background(), "secret-b", header, body, newMemNonceStore()); err == nil {
		t.Fatal("expected an error for a mismatched secret")
	}
}

func TestVerifyRejectsTamperedBody(t *testing.T) {
	secret := "shared-secret"
	header := signedHeader(t, secret, "nonce-1", time.Now().Unix(), []byte(`{"a":1}`))

	if err := Verify(context.Background(), secret, header, []byte(`{"a":2}`), newMemNonceStore()); err == nil {
		t.Fatal("expected an error for a body that doesn't match the signed bytes")
	}
}

func TestVerifyRejectsStaleTimestamp(t *testing.T) {
	secret := "shared-secret"
	body := []byte(`{}`)
	stale := time.Now().Add(-10 * time.Minute).Unix()
	header := signedHeader(t, secret, "nonce-1", stale, body)

	if err := Verify(context.Background(), secret, header, body, newMemNonceStore()); err == nil {
		t.Fatal("expected an error for a timestamp outside the clock skew window")
	}
}

func TestVerifyRejectsReplayedNonce(t *testing.T) {
	secret := "shared-secret"
	body := []byte(`{}`)
	header := signedHeader(t, secret, "nonce-reused", time.Now().Unix(), body)
	store := newMemNonceStore()

	if err := Verify(context.Background(), secret, header, body, store); err != nil {
		t.Fatalf("first Verify: %v", err)
	}
	if err := Verify(context.Background(), secret, header, body, store); err == nil {
		t.Fatal("expected an error replaying the same nonce")
	}
}

func TestVerifyAcceptsSha256PrefixedSignature(t *testing.T) {
	secret := "shared-secret"
	body := []byte(`{}`)
	header := signedHeader(t, secret, "nonce-1", time.Now().Unix(), body)
	header.Set("X-Signature", "sha256="+header.Get("X-Signature"))

	if err := Verify(context.Background(), secret, header, body, newMemNonceStore()); err != nil {
		t.Fatalf("Verify: %v", err)
	}
}

func TestVerifyRejectsMissingHeaders(t *testing.T) {
	if err := Verify(context.Background(), "secret", http.Header{}, []byte(`{}`), newMemNonceStore()); err == nil {
		t.Fatal("expected an error for missing headers")
	}
}

func TestVerifyRejectsEmptySecret(t *testing.T) {
	body := []byte(`{}`)
	header := signedHeader(t, "", "nonce-1", time.Now().Unix(), body)

	if err := Verify(context.Background(), "", header, body, newMemNonceStore()); err == nil {
		t.Fatal("expected an error for an empty configured secret")
	}
}

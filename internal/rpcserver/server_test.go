package rpcserver

import (
	"net/http/httptest"
	"testing"

	"github.com/klingon-exchange/wagerd/internal/apperr"
)

func TestWriteErrorMapsKindToStatus(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{apperr.BadRequestf("bad"), 400},
		{apperr.ErrUnauthorized, 401},
		{apperr.NotFoundf("missing"), 404},
		{apperr.Conflictf("conflict"), 409},
		{apperr.NotImplementedf("tbd"), 501},
		{apperr.Internalf(nil, "boom"), 500},
	}

	for _, tt := range tests {
		rec := httptest.NewRecorder()
		writeError(rec, tt.err)
		if rec.Code != tt.want {
			t.Errorf("writeError(%v) status = %d, want %d", tt.err, rec.Code, tt.want)
		}
	}
}

func TestDecodeJSONBytesRejectsMalformedBody(t *testing.T) {
	var v map[string]any
	if err := decodeJSONBytes([]byte("not json"), &v); err == nil {
		t.Error("expected an error for malformed JSON")
	}
}

func TestDecodeJSONBytesAcceptsWellFormedBody(t *testing.T) {
	var v struct {
		MatchID string `json:"match_id"`
	}
	if err := decodeJSONBytes([]byte(`{"match_id":"42"}`), &v); err != nil {
		t.Fatalf("decodeJSONBytes: %v", err)
	}
	if v.MatchID != "42" {
		t.Errorf("MatchID = %q, want 42", v.MatchID)
	}
}

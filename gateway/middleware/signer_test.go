package middleware

import (
	"bytes"
	"encoding/hex"
	"math/big"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	ethcrypto "github.com/ethereum/go-ethereum/crypto"

	"fixedswap/crypto"
)

func newSignedRequest(t *testing.T, key *crypto.PrivateKey, body string, now time.Time) *http.Request {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/v1/exchanges/abc/buy", bytes.NewBufferString(body))
	if err := SignRequest(req, key, now); err != nil {
		t.Fatalf("sign: %v", err)
	}
	return req
}

func signerHandler(t *testing.T, auth *SignerAuth, got *common.Address) http.Handler {
	t.Helper()
	return auth.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		caller, ok := CallerFrom(r.Context())
		if !ok {
			t.Fatalf("caller missing from context")
		}
		*got = caller
		w.WriteHeader(http.StatusNoContent)
	}))
}

func TestSignerAuthRecoversCaller(t *testing.T) {
	key, err := crypto.GeneratePrivateKey()
	if err != nil {
		t.Fatalf("key: %v", err)
	}
	now := time.Unix(1_700_000_000, 0)
	auth := NewSignerAuth(time.Minute, nil)
	auth.SetNowFunc(func() time.Time { return now })
	var caller common.Address
	handler := signerHandler(t, auth, &caller)

	req := newSignedRequest(t, key, `{"amount":"1"}`, now)
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)
	if rr.Code != http.StatusNoContent {
		t.Fatalf("expected 204, got %d: %s", rr.Code, rr.Body.String())
	}
	if caller != key.PubKey().Address().Common() {
		t.Fatalf("recovered %s, want %s", caller.Hex(), key.PubKey().Address().Common().Hex())
	}

	replay := httptest.NewRequest(http.MethodPost, "/v1/exchanges/abc/buy", bytes.NewBufferString(`{"amount":"1"}`))
	replay.Header = req.Header.Clone()
	rr = httptest.NewRecorder()
	handler.ServeHTTP(rr, replay)
	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("expected replay rejection, got %d", rr.Code)
	}
}

func TestSignerAuthRejectsReencodedReplay(t *testing.T) {
	key, err := crypto.GeneratePrivateKey()
	if err != nil {
		t.Fatalf("key: %v", err)
	}
	now := time.Unix(1_700_000_000, 0)
	auth := NewSignerAuth(time.Minute, nil)
	auth.SetNowFunc(func() time.Time { return now })
	served := 0
	handler := auth.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		served++
		w.WriteHeader(http.StatusNoContent)
	}))

	const body = `{"amount":"1"}`
	req := newSignedRequest(t, key, body, now)
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)
	if rr.Code != http.StatusNoContent {
		t.Fatalf("expected 204, got %d: %s", rr.Code, rr.Body.String())
	}
	sig, err := hex.DecodeString(req.Header.Get(HeaderSignerSignature))
	if err != nil {
		t.Fatalf("decode signature: %v", err)
	}

	// (r, n-s, v^1) verifies for the same key and digest.
	twin := append([]byte(nil), sig...)
	n := ethcrypto.S256().Params().N
	new(big.Int).Sub(n, new(big.Int).SetBytes(sig[32:64])).FillBytes(twin[32:64])
	twin[64] ^= 1

	variants := map[string]string{
		"malleated":  hex.EncodeToString(twin),
		"prefixed":   "0x" + hex.EncodeToString(sig),
		"upper case": strings.ToUpper(hex.EncodeToString(sig)),
	}
	for name, encoded := range variants {
		replay := httptest.NewRequest(http.MethodPost, req.URL.Path, strings.NewReader(body))
		replay.Header = req.Header.Clone()
		replay.Header.Set(HeaderSignerSignature, encoded)
		rr = httptest.NewRecorder()
		handler.ServeHTTP(rr, replay)
		if rr.Code != http.StatusUnauthorized {
			t.Fatalf("%s replay: expected 401, got %d", name, rr.Code)
		}
	}
	if served != 1 {
		t.Fatalf("handler ran %d times, want 1", served)
	}
}

func TestSignerAuthRejectsTamperedAndStale(t *testing.T) {
	key, err := crypto.GeneratePrivateKey()
	if err != nil {
		t.Fatalf("key: %v", err)
	}
	now := time.Unix(1_700_000_000, 0)
	auth := NewSignerAuth(time.Minute, nil)
	auth.SetNowFunc(func() time.Time { return now })
	var caller common.Address
	handler := signerHandler(t, auth, &caller)

	// A different body recovers a different address rather than failing.
	req := newSignedRequest(t, key, `{"amount":"1"}`, now)
	tampered := httptest.NewRequest(http.MethodPost, req.URL.Path, strings.NewReader(`{"amount":"9"}`))
	tampered.Header = req.Header.Clone()
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, tampered)
	if rr.Code == http.StatusNoContent && caller == key.PubKey().Address().Common() {
		t.Fatalf("tampered body attributed to original signer")
	}

	stale := newSignedRequest(t, key, `{}`, now.Add(-2*time.Minute))
	rr = httptest.NewRecorder()
	handler.ServeHTTP(rr, stale)
	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("expected stale rejection, got %d", rr.Code)
	}

	unsigned := httptest.NewRequest(http.MethodPost, "/v1/exchanges", nil)
	rr = httptest.NewRecorder()
	handler.ServeHTTP(rr, unsigned)
	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("expected missing header rejection, got %d", rr.Code)
	}
}

func TestRequestIDAssignsAndEchoes(t *testing.T) {
	var seen string
	handler := RequestID(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = RequestIDFrom(r.Context())
	}))
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/", nil))
	if seen == "" || rr.Header().Get(HeaderRequestID) != seen {
		t.Fatalf("request id not assigned: %q vs %q", seen, rr.Header().Get(HeaderRequestID))
	}
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set(HeaderRequestID, "abc-123")
	handler.ServeHTTP(httptest.NewRecorder(), req)
	if seen != "abc-123" {
		t.Fatalf("inbound request id not kept: %q", seen)
	}
}

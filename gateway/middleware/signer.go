package middleware

import (
	"bytes"
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	ethcrypto "github.com/ethereum/go-ethereum/crypto"

	"fixedswap/crypto"
)

const (
	// HeaderSignerTimestamp is the unix timestamp (seconds) covered by the signature.
	HeaderSignerTimestamp = "X-Signer-Timestamp"
	// HeaderSignerSignature carries the hex-encoded 65-byte secp256k1 signature.
	HeaderSignerSignature = "X-Signer-Signature"
	// MaxBodyForSignature bounds the request body hashed during verification.
	MaxBodyForSignature int64 = 1 << 20

	defaultClockSkew = 2 * time.Minute
)

var (
	errMissingSignature = errors.New("missing signature headers")
	errStaleTimestamp   = errors.New("timestamp outside allowed window")
	errReplayed         = errors.New("signature already used")
	errBodyTooLarge     = errors.New("request body too large")
)

type callerKey struct{}

// CallerFrom returns the address recovered from the request signature.
func CallerFrom(ctx context.Context) (common.Address, bool) {
	caller, ok := ctx.Value(callerKey{}).(common.Address)
	return caller, ok
}

// WithCaller stores caller on ctx. Used by tests driving handlers directly.
func WithCaller(ctx context.Context, caller common.Address) context.Context {
	return context.WithValue(ctx, callerKey{}, caller)
}

// Digest is the 32-byte message a client signs for a request.
func Digest(method, path, timestamp string, body []byte) []byte {
	return ethcrypto.Keccak256([]byte(strings.ToUpper(method)), []byte(path), []byte(timestamp), body)
}

// SignRequest attaches signer headers to req. The body is read and replaced so
// the request can still be sent.
func SignRequest(req *http.Request, key *crypto.PrivateKey, now time.Time) error {
	if key == nil {
		return fmt.Errorf("sign request: nil key")
	}
	var body []byte
	if req.Body != nil {
		raw, err := io.ReadAll(req.Body)
		if err != nil {
			return fmt.Errorf("sign request: read body: %w", err)
		}
		req.Body.Close()
		body = raw
		req.Body = io.NopCloser(bytes.NewReader(body))
	}
	ts := strconv.FormatInt(now.Unix(), 10)
	sig, err := key.Sign(Digest(req.Method, req.URL.Path, ts, body))
	if err != nil {
		return fmt.Errorf("sign request: %w", err)
	}
	req.Header.Set(HeaderSignerTimestamp, ts)
	req.Header.Set(HeaderSignerSignature, hex.EncodeToString(sig))
	return nil
}

// SignerAuth recovers the caller of mutating requests from a secp256k1
// signature. Each signature is accepted once within the clock skew window.
type SignerAuth struct {
	logger *slog.Logger
	skew   time.Duration
	nowFn  func() time.Time
	mu     sync.Mutex
	seen   map[string]time.Time
	lastGC time.Time
}

func NewSignerAuth(skew time.Duration, logger *slog.Logger) *SignerAuth {
	if skew <= 0 {
		skew = defaultClockSkew
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &SignerAuth{logger: logger, skew: skew, nowFn: time.Now, seen: make(map[string]time.Time)}
}

// SetNowFunc overrides the clock.
func (s *SignerAuth) SetNowFunc(now func() time.Time) {
	if now == nil {
		now = time.Now
	}
	s.nowFn = now
}

func (s *SignerAuth) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		caller, err := s.authenticate(r)
		if err != nil {
			s.logger.Warn("rejected request signature",
				slog.String("path", r.URL.Path),
				slog.String("request_id", RequestIDFrom(r.Context())),
				slog.Any("error", err))
			status := http.StatusUnauthorized
			if errors.Is(err, errBodyTooLarge) {
				status = http.StatusRequestEntityTooLarge
			}
			writeError(w, status, err.Error())
			return
		}
		next.ServeHTTP(w, r.WithContext(WithCaller(r.Context(), caller)))
	})
}

func (s *SignerAuth) authenticate(r *http.Request) (common.Address, error) {
	ts := strings.TrimSpace(r.Header.Get(HeaderSignerTimestamp))
	sigHex := strings.TrimPrefix(strings.TrimSpace(r.Header.Get(HeaderSignerSignature)), "0x")
	if ts == "" || sigHex == "" {
		return common.Address{}, errMissingSignature
	}
	unix, err := strconv.ParseInt(ts, 10, 64)
	if err != nil {
		return common.Address{}, fmt.Errorf("invalid timestamp: %w", err)
	}
	now := s.nowFn()
	signedAt := time.Unix(unix, 0)
	if delta := now.Sub(signedAt); delta > s.skew || delta < -s.skew {
		return common.Address{}, errStaleTimestamp
	}
	sig, err := hex.DecodeString(sigHex)
	if err != nil {
		return common.Address{}, fmt.Errorf("invalid signature encoding: %w", err)
	}
	var body []byte
	if r.Body != nil {
		body, err = io.ReadAll(io.LimitReader(r.Body, MaxBodyForSignature+1))
		if err != nil {
			return common.Address{}, fmt.Errorf("read body: %w", err)
		}
		if int64(len(body)) > MaxBodyForSignature {
			return common.Address{}, errBodyTooLarge
		}
		r.Body.Close()
		r.Body = io.NopCloser(bytes.NewReader(body))
	}
	digest := Digest(r.Method, r.URL.Path, ts, body)
	caller, err := crypto.RecoverAddress(digest, sig)
	if err != nil {
		return common.Address{}, fmt.Errorf("recover signer: %w", err)
	}
	// Keyed on what was signed, not on the signature bytes, so an
	// alternative encoding of the same approval cannot be replayed.
	if !s.remember(caller.Hex()+":"+hex.EncodeToString(digest), signedAt.Add(s.skew), now) {
		return common.Address{}, errReplayed
	}
	return caller, nil
}

func (s *SignerAuth) remember(key string, expires, now time.Time) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if now.Sub(s.lastGC) > s.skew {
		for k, exp := range s.seen {
			if now.After(exp) {
				delete(s.seen, k)
			}
		}
		s.lastGC = now
	}
	if exp, ok := s.seen[key]; ok && !now.After(exp) {
		return false
	}
	s.seen[key] = expires
	return true
}

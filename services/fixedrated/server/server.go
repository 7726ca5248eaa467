package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/go-chi/chi/v5"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"fixedswap/gateway/middleware"
	"fixedswap/native/fixedrate"
	"fixedswap/native/token"
	"fixedswap/observability/metrics"
	"fixedswap/services/fixedrated/journal"
)

const maxRequestBody = 1 << 20

// Config defines HTTP server parameters.
type Config struct {
	ListenAddress string
	RateLimit     middleware.RateLimit
	ClockSkew     time.Duration
	LogRequests   bool
}

// Server exposes the exchange engine over HTTP JSON.
type Server struct {
	cfg     Config
	runtime *Runtime
	journal *journal.Journal
	logger  *slog.Logger
	metrics *metrics.FixedRateMetrics
	obs     *middleware.Observability
	limiter *middleware.RateLimiter
	signer  *middleware.SignerAuth
	router  chi.Router
}

// New constructs the server. The journal is optional; without it swap
// history queries return 503.
func New(cfg Config, runtime *Runtime, store *journal.Journal, logger *slog.Logger) (*Server, error) {
	if runtime == nil {
		return nil, fmt.Errorf("runtime required")
	}
	if logger == nil {
		logger = slog.Default()
	}
	srv := &Server{
		cfg:     cfg,
		runtime: runtime,
		journal: store,
		logger:  logger,
		metrics: metrics.FixedRate(),
		obs:     middleware.NewObservability(middleware.ObservabilityConfig{ServiceName: "fixedrated", LogRequests: cfg.LogRequests}, logger),
		limiter: middleware.NewRateLimiter(cfg.RateLimit, logger),
		signer:  middleware.NewSignerAuth(cfg.ClockSkew, logger),
	}
	srv.router = srv.routes()
	return srv, nil
}

// Signer exposes the request authenticator, mainly so tests can pin its clock.
func (s *Server) Signer() *middleware.SignerAuth { return s.signer }

// Handler returns the instrumented root handler.
func (s *Server) Handler() http.Handler {
	return otelhttp.NewHandler(s.router, "fixedrated")
}

func (s *Server) routes() chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(s.obs.Middleware)
	r.Use(middleware.CORS(middleware.CORSConfig{}))

	r.Get("/healthz", s.handleHealth)
	r.Method(http.MethodGet, "/metrics", s.obs.MetricsHandler())

	r.Route("/v1", func(r chi.Router) {
		r.Use(s.limiter.Middleware)

		r.Get("/exchanges", s.handleListExchanges)
		r.Get("/exchanges/{id}", s.handleGetExchange)
		r.Get("/exchanges/{id}/rate", s.handleGetRate)
		r.Get("/exchanges/{id}/active", s.handleIsActive)
		r.Get("/exchanges/{id}/supply", s.handleSupply)
		r.Get("/exchanges/{id}/quote", s.handleQuote)
		r.Get("/exchanges/{id}/swaps", s.handleSwaps)
		r.Get("/exchanges/{id}/events", s.handleEvents)
		r.Get("/tokens", s.handleListTokens)
		r.Get("/tokens/{address}/balances/{account}", s.handleBalance)

		r.Group(func(r chi.Router) {
			r.Use(s.signer.Middleware)
			r.Post("/exchanges", s.handleCreate)
			r.Post("/exchanges/{id}/rate", s.handleSetRate)
			r.Post("/exchanges/{id}/activate", s.handleActivate)
			r.Post("/exchanges/{id}/deactivate", s.handleDeactivate)
			r.Post("/exchanges/{id}/fee-collector", s.handleFeeCollector)
			r.Post("/exchanges/{id}/buy", s.handleSwap(fixedrate.DirectionBuy))
			r.Post("/exchanges/{id}/sell", s.handleSwap(fixedrate.DirectionSell))
			r.Post("/exchanges/{id}/collect", s.handleCollect)
			r.Post("/tokens/{address}/approve", s.handleApprove)
			r.Post("/tokens/{address}/transfer", s.handleTransfer)
		})
	})
	return r
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	status := map[string]string{"status": "ok"}
	if s.journal != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := s.journal.Ping(ctx); err != nil {
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "degraded", "error": err.Error()})
			return
		}
	}
	writeJSON(w, http.StatusOK, status)
}

var errBadRequest = errors.New("bad request")

func badRequest(format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", errBadRequest, fmt.Sprintf(format, args...))
}

// statusFor maps engine errors onto HTTP statuses.
func statusFor(err error) int {
	switch {
	case errors.Is(err, fixedrate.ErrNotFound), errors.Is(err, token.ErrUnknownToken):
		return http.StatusNotFound
	case errors.Is(err, fixedrate.ErrUnauthorized):
		return http.StatusForbidden
	case errors.Is(err, fixedrate.ErrInvalidArgument), errors.Is(err, errBadRequest),
		errors.Is(err, token.ErrNegativeAmount), errors.Is(err, token.ErrZeroAddress), errors.Is(err, token.ErrOverflow):
		return http.StatusBadRequest
	case errors.Is(err, fixedrate.ErrInactive), errors.Is(err, fixedrate.ErrInsufficientLiquidity), errors.Is(err, fixedrate.ErrExchangeExists):
		return http.StatusConflict
	case errors.Is(err, fixedrate.ErrInsufficientAllowanceOrBalance):
		return http.StatusPaymentRequired
	default:
		return http.StatusInternalServerError
	}
}

// rejectionReason labels failed swaps in metrics.
func rejectionReason(err error) string {
	switch {
	case errors.Is(err, fixedrate.ErrNotFound):
		return "not_found"
	case errors.Is(err, fixedrate.ErrInactive):
		return "inactive"
	case errors.Is(err, fixedrate.ErrInsufficientLiquidity):
		return "insufficient_liquidity"
	case errors.Is(err, fixedrate.ErrInsufficientAllowanceOrBalance):
		return "transfer_rejected"
	case errors.Is(err, fixedrate.ErrInvalidArgument), errors.Is(err, errBadRequest):
		return "invalid_argument"
	default:
		return "error"
	}
}

func (s *Server) writeFailure(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		s.logger.Error("request failed",
			slog.String("path", r.URL.Path),
			slog.String("request_id", middleware.RequestIDFrom(r.Context())),
			slog.Any("error", err))
	}
	writeJSON(w, status, map[string]string{"error": err.Error()})
}

func writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if payload == nil {
		return
	}
	_ = json.NewEncoder(w).Encode(payload)
}

func decodeBody(r *http.Request, out interface{}) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxRequestBody))
	dec.DisallowUnknownFields()
	if err := dec.Decode(out); err != nil {
		if errors.Is(err, io.EOF) {
			return badRequest("request body required")
		}
		return badRequest("decode body: %v", err)
	}
	return nil
}

func callerOf(r *http.Request) (common.Address, error) {
	addr, ok := middleware.CallerFrom(r.Context())
	if !ok {
		return common.Address{}, fmt.Errorf("%w: unsigned request", fixedrate.ErrUnauthorized)
	}
	return addr, nil
}

func queryInt(r *http.Request, key string) (int, error) {
	raw := strings.TrimSpace(r.URL.Query().Get(key))
	if raw == "" {
		return 0, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil || v < 0 {
		return 0, badRequest("invalid %s %q", key, raw)
	}
	return v, nil
}

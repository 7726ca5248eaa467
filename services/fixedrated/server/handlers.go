package server

import (
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"net/http"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/go-chi/chi/v5"

	"fixedswap/gateway/middleware"
	"fixedswap/native/fixedrate"
	"fixedswap/native/token"
)

func (s *Server) exchangeParam(w http.ResponseWriter, r *http.Request) (common.Hash, bool) {
	id, err := parseExchangeID(chi.URLParam(r, "id"))
	if err != nil {
		s.writeFailure(w, r, err)
		return common.Hash{}, false
	}
	return id, true
}

func (s *Server) handleListExchanges(w http.ResponseWriter, r *http.Request) {
	var views []exchangeJSON
	err := s.runtime.View(func() error {
		ids, err := s.runtime.Engine().ListExchanges()
		if err != nil {
			return err
		}
		views = make([]exchangeJSON, 0, len(ids))
		for _, id := range ids {
			snap, err := s.runtime.Engine().GetExchange(id)
			if err != nil {
				return err
			}
			views = append(views, snapshotView(snap))
		}
		return nil
	})
	if err != nil {
		s.writeFailure(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"exchanges": views})
}

func (s *Server) handleGetExchange(w http.ResponseWriter, r *http.Request) {
	id, ok := s.exchangeParam(w, r)
	if !ok {
		return
	}
	var snap *fixedrate.Snapshot
	err := s.runtime.View(func() (err error) {
		snap, err = s.runtime.Engine().GetExchange(id)
		return err
	})
	if err != nil {
		s.writeFailure(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, snapshotView(snap))
}

func (s *Server) handleGetRate(w http.ResponseWriter, r *http.Request) {
	id, ok := s.exchangeParam(w, r)
	if !ok {
		return
	}
	var rate *big.Int
	err := s.runtime.View(func() (err error) {
		rate, err = s.runtime.Engine().GetRate(id)
		return err
	})
	if err != nil {
		s.writeFailure(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"exchangeId": id.Hex(), "fixedRate": formatAmount(rate)})
}

func (s *Server) handleIsActive(w http.ResponseWriter, r *http.Request) {
	id, ok := s.exchangeParam(w, r)
	if !ok {
		return
	}
	var active bool
	err := s.runtime.View(func() (err error) {
		active, err = s.runtime.Engine().IsActive(id)
		return err
	})
	if err != nil {
		s.writeFailure(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"exchangeId": id.Hex(), "active": active})
}

func (s *Server) handleSupply(w http.ResponseWriter, r *http.Request) {
	id, ok := s.exchangeParam(w, r)
	if !ok {
		return
	}
	var supply *big.Int
	err := s.runtime.View(func() (err error) {
		supply, err = s.runtime.Engine().AvailableSupply(id)
		return err
	})
	if err != nil {
		s.writeFailure(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"exchangeId": id.Hex(), "availableSupply": formatAmount(supply)})
}

func (s *Server) handleQuote(w http.ResponseWriter, r *http.Request) {
	id, ok := s.exchangeParam(w, r)
	if !ok {
		return
	}
	direction, err := fixedrate.ParseDirection(r.URL.Query().Get("direction"))
	if err != nil {
		s.writeFailure(w, r, err)
		return
	}
	amount, err := parseAmount("amount", r.URL.Query().Get("amount"))
	if err != nil {
		s.writeFailure(w, r, err)
		return
	}
	var pricing fixedrate.Pricing
	err = s.runtime.View(func() (err error) {
		pricing, err = s.runtime.Engine().Quote(id, direction, amount)
		return err
	})
	if err != nil {
		s.writeFailure(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, pricingView(direction, pricing))
}

func (s *Server) handleSwaps(w http.ResponseWriter, r *http.Request) {
	id, ok := s.exchangeParam(w, r)
	if !ok {
		return
	}
	if s.journal == nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"error": "swap journal disabled"})
		return
	}
	limit, err := queryInt(r, "limit")
	if err != nil {
		s.writeFailure(w, r, err)
		return
	}
	rows, err := s.journal.Swaps(r.Context(), id.Hex(), limit)
	if err != nil {
		s.writeFailure(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"exchangeId": id.Hex(), "swaps": rows})
}

func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	id, ok := s.exchangeParam(w, r)
	if !ok {
		return
	}
	if s.journal == nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"error": "swap journal disabled"})
		return
	}
	rows, err := s.journal.Events(r.Context(), id.Hex())
	if err != nil {
		s.writeFailure(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"exchangeId": id.Hex(), "events": rows})
}

func (s *Server) handleCreate(w http.ResponseWriter, r *http.Request) {
	caller, err := callerOf(r)
	if err != nil {
		s.writeFailure(w, r, err)
		return
	}
	var req createRequest
	if err := decodeBody(r, &req); err != nil {
		s.writeFailure(w, r, err)
		return
	}
	var (
		created *fixedrate.Exchange
		count   int
	)
	err = s.runtime.Update(func() error {
		params, err := req.params(caller, s.decimalsOf)
		if err != nil {
			return err
		}
		created, err = s.runtime.Engine().CreateExchange(caller, params)
		if err != nil {
			return err
		}
		ids, err := s.runtime.Engine().ListExchanges()
		count = len(ids)
		return err
	})
	if err != nil {
		s.writeFailure(w, r, err)
		return
	}
	s.metrics.SetExchanges(count)
	s.logger.Info("exchange created",
		slog.String("exchange", created.ID.Hex()),
		slog.String("caller", formatAddress(caller)),
		slog.String("request_id", middleware.RequestIDFrom(r.Context())))
	writeJSON(w, http.StatusCreated, exchangeView(created))
}

func (s *Server) decimalsOf(addr common.Address) (uint8, error) {
	meta, ok, err := s.runtime.State().TokenMetadata(addr)
	if err != nil {
		return 0, err
	}
	if !ok {
		return 0, fmt.Errorf("%w: %s", token.ErrUnknownToken, addr.Hex())
	}
	return meta.Decimals, nil
}

func (s *Server) handleSetRate(w http.ResponseWriter, r *http.Request) {
	var req rateRequest
	s.mutateExchange(w, r, &req, func(id common.Hash, caller common.Address) error {
		rate, err := parseAmount("rate", req.Rate)
		if err != nil {
			return err
		}
		return s.runtime.Engine().SetRate(id, caller, rate)
	})
}

func (s *Server) handleActivate(w http.ResponseWriter, r *http.Request) {
	s.mutateExchange(w, r, nil, func(id common.Hash, caller common.Address) error {
		return s.runtime.Engine().Activate(id, caller)
	})
}

func (s *Server) handleDeactivate(w http.ResponseWriter, r *http.Request) {
	s.mutateExchange(w, r, nil, func(id common.Hash, caller common.Address) error {
		return s.runtime.Engine().Deactivate(id, caller)
	})
}

func (s *Server) handleFeeCollector(w http.ResponseWriter, r *http.Request) {
	var req collectorRequest
	s.mutateExchange(w, r, &req, func(id common.Hash, caller common.Address) error {
		collector, err := parseAddress("collector", req.Collector)
		if err != nil {
			return err
		}
		return s.runtime.Engine().SetMarketFeeCollector(id, caller, collector)
	})
}

func (s *Server) handleCollect(w http.ResponseWriter, r *http.Request) {
	var req collectRequest
	s.mutateExchange(w, r, &req, func(id common.Hash, caller common.Address) error {
		amount, err := parseAmount("amount", req.Amount)
		if err != nil {
			return err
		}
		switch strings.ToLower(strings.TrimSpace(req.Asset)) {
		case "base", "":
			return s.runtime.Engine().CollectBaseAsset(id, caller, amount)
		case "data":
			return s.runtime.Engine().CollectDataAsset(id, caller, amount)
		default:
			return badRequest("asset must be base or data")
		}
	})
}

// mutateExchange decodes body (when non-nil), runs op atomically and replies
// with the resulting exchange snapshot.
func (s *Server) mutateExchange(w http.ResponseWriter, r *http.Request, body interface{}, op func(common.Hash, common.Address) error) {
	id, ok := s.exchangeParam(w, r)
	if !ok {
		return
	}
	caller, err := callerOf(r)
	if err != nil {
		s.writeFailure(w, r, err)
		return
	}
	if body != nil {
		if err := decodeBody(r, body); err != nil {
			s.writeFailure(w, r, err)
			return
		}
	}
	var snap *fixedrate.Snapshot
	err = s.runtime.Update(func() error {
		if err := op(id, caller); err != nil {
			return err
		}
		var err error
		snap, err = s.runtime.Engine().GetExchange(id)
		return err
	})
	if err != nil {
		s.writeFailure(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, snapshotView(snap))
}

func (s *Server) handleSwap(direction fixedrate.Direction) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		label := direction.String()
		id, ok := s.exchangeParam(w, r)
		if !ok {
			s.metrics.ObserveRejected(label, "invalid_argument")
			return
		}
		caller, err := callerOf(r)
		if err != nil {
			s.writeFailure(w, r, err)
			return
		}
		var req amountRequest
		if err := decodeBody(r, &req); err != nil {
			s.metrics.ObserveRejected(label, rejectionReason(err))
			s.writeFailure(w, r, err)
			return
		}
		var result *fixedrate.SwapResult
		err = s.runtime.Update(func() error {
			amount, err := parseAmount("amount", req.Amount)
			if err != nil {
				return err
			}
			if direction == fixedrate.DirectionBuy {
				result, err = s.runtime.Engine().BuyDT(id, caller, amount)
			} else {
				result, err = s.runtime.Engine().SellDT(id, caller, amount)
			}
			return err
		})
		if err != nil {
			s.metrics.ObserveRejected(label, rejectionReason(err))
			s.logger.Warn("swap rejected",
				slog.String("exchange", id.Hex()),
				slog.String("direction", label),
				slog.String("caller", formatAddress(caller)),
				slog.String("request_id", middleware.RequestIDFrom(r.Context())),
				slog.Any("error", err))
			s.writeFailure(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, swapJSON{
			ExchangeID:  result.ExchangeID.Hex(),
			Caller:      formatAddress(result.Caller),
			pricingJSON: pricingView(result.Direction, result.Pricing),
			FromEngine:  formatAmount(result.FromEngine),
			FromOwner:   formatAmount(result.FromOwner),
		})
	}
}

func (s *Server) handleListTokens(w http.ResponseWriter, r *http.Request) {
	var out []tokenJSON
	err := s.runtime.View(func() error {
		tokens, err := s.runtime.State().Tokens()
		if err != nil {
			return err
		}
		out = make([]tokenJSON, 0, len(tokens))
		for _, meta := range tokens {
			out = append(out, tokenJSON{Address: formatAddress(meta.Address), Symbol: meta.Symbol, Name: meta.Name, Decimals: meta.Decimals})
		}
		return nil
	})
	if err != nil {
		s.writeFailure(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"tokens": out})
}

func (s *Server) handleBalance(w http.ResponseWriter, r *http.Request) {
	tokenAddr, err := parseAddress("token", chi.URLParam(r, "address"))
	if err != nil {
		s.writeFailure(w, r, err)
		return
	}
	account, err := parseAddress("account", chi.URLParam(r, "account"))
	if err != nil {
		s.writeFailure(w, r, err)
		return
	}
	spender, err := parseOptionalAddress("spender", r.URL.Query().Get("spender"))
	if err != nil {
		s.writeFailure(w, r, err)
		return
	}
	out := balanceJSON{Token: formatAddress(tokenAddr), Account: formatAddress(account)}
	err = s.runtime.View(func() error {
		ledger, err := s.runtime.Ledger(tokenAddr)
		if err != nil {
			return err
		}
		balance, err := ledger.BalanceOf(account)
		if err != nil {
			return err
		}
		out.Balance = formatAmount(balance)
		if spender != (common.Address{}) {
			allowance, err := ledger.Allowance(account, spender)
			if err != nil {
				return err
			}
			out.Spender = formatAddress(spender)
			out.Allowance = formatAmount(allowance)
		}
		return nil
	})
	if err != nil {
		s.writeFailure(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleApprove(w http.ResponseWriter, r *http.Request) {
	var req approveRequest
	s.mutateToken(w, r, &req, func(ledger *token.Ledger, caller common.Address) error {
		spender, err := parseAddress("spender", req.Spender)
		if err != nil {
			return err
		}
		amount, err := parseAmount("amount", req.Amount)
		if err != nil {
			return err
		}
		return ledger.Approve(caller, spender, amount)
	})
}

func (s *Server) handleTransfer(w http.ResponseWriter, r *http.Request) {
	var req transferRequest
	s.mutateToken(w, r, &req, func(ledger *token.Ledger, caller common.Address) error {
		to, err := parseAddress("to", req.To)
		if err != nil {
			return err
		}
		amount, err := parseAmount("amount", req.Amount)
		if err != nil {
			return err
		}
		return ledger.Transfer(caller, to, amount)
	})
}

func (s *Server) mutateToken(w http.ResponseWriter, r *http.Request, body interface{}, op func(*token.Ledger, common.Address) error) {
	tokenAddr, err := parseAddress("token", chi.URLParam(r, "address"))
	if err != nil {
		s.writeFailure(w, r, err)
		return
	}
	caller, err := callerOf(r)
	if err != nil {
		s.writeFailure(w, r, err)
		return
	}
	if err := decodeBody(r, body); err != nil {
		s.writeFailure(w, r, err)
		return
	}
	var balance *big.Int
	err = s.runtime.Update(func() error {
		ledger, err := s.runtime.Ledger(tokenAddr)
		if err != nil {
			return err
		}
		if err := op(ledger, caller); err != nil {
			return err
		}
		balance, err = ledger.BalanceOf(caller)
		return err
	})
	if err != nil {
		if errors.Is(err, token.ErrTransferRejected) {
			s.logger.Warn("token operation rejected", slog.String("caller", formatAddress(caller)), slog.Any("error", err))
		}
		s.writeFailure(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, balanceJSON{Token: formatAddress(tokenAddr), Account: formatAddress(caller), Balance: formatAmount(balance)})
}

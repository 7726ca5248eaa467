package fixedrate

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"fixedswap/core/events"
	"fixedswap/native/token"
)

func (e *Engine) price(ex *Exchange, amount *big.Int) Pricing {
	return Price(PriceInput{
		Amount:          amount,
		FixedRate:       ex.FixedRate,
		ProtocolFeeRate: e.fees.RateFor(ex.Owner),
		MarketFeeRate:   ex.MarketFee,
		DataDecimals:    ex.DataDecimals,
		BaseDecimals:    ex.BaseDecimals,
	})
}

// Quote prices a trade of amount data-asset units without changing state.
func (e *Engine) Quote(id common.Hash, direction Direction, amount *big.Int) (Pricing, error) {
	if !direction.Valid() {
		return Pricing{}, ErrInvalidArgument
	}
	if err := validateAmount(amount); err != nil {
		return Pricing{}, err
	}
	ex, err := e.load(id)
	if err != nil {
		return Pricing{}, err
	}
	return e.price(ex, amount), nil
}

func (e *Engine) tradable(id common.Hash, amount *big.Int) (*Exchange, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}
	ex, err := e.load(id)
	if err != nil {
		return nil, err
	}
	if !ex.Active {
		return nil, ErrInactive
	}
	if err := validateAmount(amount); err != nil {
		return nil, err
	}
	return ex, nil
}

func (e *Engine) pair(ex *Exchange) (token.Token, token.Token, error) {
	dataTok, err := e.tokens.Token(ex.DataAsset)
	if err != nil {
		return nil, nil, err
	}
	baseTok, err := e.tokens.Token(ex.BaseAsset)
	if err != nil {
		return nil, nil, err
	}
	return dataTok, baseTok, nil
}

// routeFees pays both fee shares out of the engine account.
func (e *Engine) routeFees(ex *Exchange, baseTok token.Token, pricing Pricing) error {
	if pricing.ProtocolFee.Sign() > 0 {
		if err := baseTok.Transfer(e.address, e.fees.Collector, pricing.ProtocolFee); err != nil {
			return err
		}
		ex.ProtocolFeeCollected.Add(ex.ProtocolFeeCollected, pricing.ProtocolFee)
	}
	if pricing.MarketFee.Sign() > 0 {
		if err := baseTok.Transfer(e.address, ex.MarketFeeCollector, pricing.MarketFee); err != nil {
			return err
		}
		ex.MarketFeeCollected.Add(ex.MarketFeeCollected, pricing.MarketFee)
	}
	return nil
}

// BuyDT sells amount data-asset units to caller. The caller pays the gross
// base amount; fees are routed out and the net stays with the exchange. Data
// asset held by the engine from earlier sells is served first and the rest is
// pulled from the owner's allowance.
func (e *Engine) BuyDT(id common.Hash, caller common.Address, amount *big.Int) (*SwapResult, error) {
	ex, err := e.tradable(id, amount)
	if err != nil {
		return nil, err
	}
	pricing := e.price(ex, amount)
	result := &SwapResult{ExchangeID: ex.ID, Caller: caller, Direction: DirectionBuy, Pricing: pricing}

	err = e.atomically(func() error {
		dataTok, baseTok, err := e.pair(ex)
		if err != nil {
			return err
		}
		if err := baseTok.TransferFrom(e.address, caller, e.address, pricing.Gross); err != nil {
			return err
		}
		if err := e.routeFees(ex, baseTok, pricing); err != nil {
			return err
		}
		fromEngine := minBig(ex.DataBalance, amount)
		fromOwner := new(big.Int).Sub(amount, fromEngine)
		if fromEngine.Sign() > 0 {
			if err := dataTok.Transfer(e.address, caller, fromEngine); err != nil {
				return err
			}
			ex.DataBalance.Sub(ex.DataBalance, fromEngine)
		}
		if fromOwner.Sign() > 0 {
			if err := dataTok.TransferFrom(e.address, ex.Owner, caller, fromOwner); err != nil {
				return err
			}
		}
		ex.BaseBalance.Add(ex.BaseBalance, pricing.Net)
		result.FromEngine = fromEngine
		result.FromOwner = fromOwner
		return e.store(ex)
	})
	if err != nil {
		return nil, err
	}
	e.emitSwap(result)
	return result, nil
}

// SellDT buys amount data-asset units from caller. The engine must hold the
// gross base amount for the exchange; the caller receives the net and the
// fees are routed to their collectors.
func (e *Engine) SellDT(id common.Hash, caller common.Address, amount *big.Int) (*SwapResult, error) {
	ex, err := e.tradable(id, amount)
	if err != nil {
		return nil, err
	}
	pricing := e.price(ex, amount)
	if pricing.Gross.Cmp(ex.BaseBalance) > 0 {
		return nil, ErrInsufficientLiquidity
	}
	result := &SwapResult{
		ExchangeID: ex.ID,
		Caller:     caller,
		Direction:  DirectionSell,
		Pricing:    pricing,
		FromEngine: big.NewInt(0),
		FromOwner:  big.NewInt(0),
	}

	err = e.atomically(func() error {
		dataTok, baseTok, err := e.pair(ex)
		if err != nil {
			return err
		}
		if err := dataTok.TransferFrom(e.address, caller, e.address, amount); err != nil {
			return err
		}
		ex.DataBalance.Add(ex.DataBalance, amount)
		if pricing.Net.Sign() > 0 {
			if err := baseTok.Transfer(e.address, caller, pricing.Net); err != nil {
				return err
			}
		}
		if err := e.routeFees(ex, baseTok, pricing); err != nil {
			return err
		}
		ex.BaseBalance.Sub(ex.BaseBalance, pricing.Gross)
		return e.store(ex)
	})
	if err != nil {
		return nil, err
	}
	e.emitSwap(result)
	return result, nil
}

func (e *Engine) emitSwap(result *SwapResult) {
	p := result.Pricing
	e.emit(events.ExchangeSwapped{
		ID:                     result.ExchangeID,
		Caller:                 result.Caller,
		Direction:              result.Direction.String(),
		DataTokenSwappedAmount: cloneBigInt(p.DataAmount),
		BaseTokenSwappedAmount: cloneBigInt(p.Gross),
		ProtocolFeeAmount:      cloneBigInt(p.ProtocolFee),
		MarketFeeAmount:        cloneBigInt(p.MarketFee),
		NetBaseAmount:          cloneBigInt(p.Net),
		Timestamp:              e.now(),
	})
}

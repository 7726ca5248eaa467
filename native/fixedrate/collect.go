package fixedrate

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"fixedswap/core/events"
)

// CollectBaseAsset withdraws base asset retained by the exchange to its owner.
func (e *Engine) CollectBaseAsset(id common.Hash, caller common.Address, amount *big.Int) error {
	return e.collect(id, caller, amount, false)
}

// CollectDataAsset withdraws data asset the exchange acquired through sells
// back to its owner.
func (e *Engine) CollectDataAsset(id common.Hash, caller common.Address, amount *big.Int) error {
	return e.collect(id, caller, amount, true)
}

func (e *Engine) collect(id common.Hash, caller common.Address, amount *big.Int, data bool) error {
	if err := e.ready(); err != nil {
		return err
	}
	if err := validateAmount(amount); err != nil {
		return err
	}
	ex, err := e.load(id)
	if err != nil {
		return err
	}
	if caller != ex.Owner {
		return ErrUnauthorized
	}
	asset, counter := ex.BaseAsset, ex.BaseBalance
	if data {
		asset, counter = ex.DataAsset, ex.DataBalance
	}
	if amount.Cmp(counter) > 0 {
		return ErrInsufficientLiquidity
	}
	err = e.atomically(func() error {
		tok, err := e.tokens.Token(asset)
		if err != nil {
			return err
		}
		if err := tok.Transfer(e.address, ex.Owner, amount); err != nil {
			return err
		}
		counter.Sub(counter, amount)
		return e.store(ex)
	})
	if err != nil {
		return err
	}
	e.emit(events.ExchangeCollected{ID: ex.ID, Caller: caller, Asset: asset, Amount: cloneBigInt(amount)})
	return nil
}

package fixedrate

import (
	"encoding/binary"
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
	ethcrypto "github.com/ethereum/go-ethereum/crypto"

	"fixedswap/core/events"
	"fixedswap/native/token"
)

type engineState interface {
	FixedRateGet(id common.Hash) (*Exchange, bool, error)
	FixedRatePut(ex *Exchange) error
	FixedRateList() ([]common.Hash, error)
	FixedRatePairGet(dataAsset, baseAsset, owner common.Address) (common.Hash, bool, error)
	FixedRatePairPut(dataAsset, baseAsset, owner common.Address, id common.Hash) error
	FixedRateNextNonce(creator common.Address) (uint64, error)
	Snapshot() int
	RevertToSnapshot(id int)
}

// CreatorPolicy decides who may register exchanges for a data asset.
type CreatorPolicy interface {
	CanCreate(creator, dataAsset common.Address) bool
}

// AllowList is a CreatorPolicy admitting only the listed creators. An empty
// list admits everyone.
type AllowList map[common.Address]struct{}

// NewAllowList builds an allow-list from addrs.
func NewAllowList(addrs ...common.Address) AllowList {
	list := make(AllowList, len(addrs))
	for _, addr := range addrs {
		list[addr] = struct{}{}
	}
	return list
}

// CanCreate implements CreatorPolicy.
func (l AllowList) CanCreate(creator, _ common.Address) bool {
	if len(l) == 0 {
		return true
	}
	_, ok := l[creator]
	return ok
}

// Engine implements the fixed-rate exchange registry and swap executor. Value
// moves through the token provider while the engine acts as its own module
// account; all value the engine holds for an exchange is tracked by that
// exchange's balance counters.
type Engine struct {
	state   engineState
	tokens  token.Provider
	emitter events.Emitter
	address common.Address
	fees    FeeConfig
	policy  CreatorPolicy
	nowFn   func() int64
}

// NewEngine creates an engine with a no-op emitter and no protocol fee.
func NewEngine() *Engine {
	return &Engine{
		emitter: events.NoopEmitter{},
		nowFn:   func() int64 { return time.Now().Unix() },
	}
}

// SetState configures the state backend used by the engine.
func (e *Engine) SetState(state engineState) { e.state = state }

// SetTokens configures the token provider. Tokens must share the engine state
// journal for trades to revert atomically, and must emit into the engine's
// emitter when that emitter is an events.Checkpointer for their events to be
// discarded with a failed operation.
func (e *Engine) SetTokens(provider token.Provider) { e.tokens = provider }

// SetAddress configures the module account the engine trades from.
func (e *Engine) SetAddress(addr common.Address) { e.address = addr }

// Address returns the module account.
func (e *Engine) Address() common.Address { return e.address }

// SetFeeConfig installs the protocol fee configuration after validating it.
func (e *Engine) SetFeeConfig(cfg FeeConfig) error {
	if err := cfg.Validate(); err != nil {
		return err
	}
	e.fees = cfg.clone()
	return nil
}

// FeeConfig returns a copy of the active protocol fee configuration.
func (e *Engine) FeeConfig() FeeConfig { return e.fees.clone() }

// SetCreatorPolicy restricts exchange creation. Nil admits any creator.
func (e *Engine) SetCreatorPolicy(policy CreatorPolicy) { e.policy = policy }

// SetNowFunc overrides the time source used by the engine. Primarily intended
// for tests to provide deterministic timestamps.
func (e *Engine) SetNowFunc(now func() int64) {
	if now == nil {
		e.nowFn = func() int64 { return time.Now().Unix() }
		return
	}
	e.nowFn = now
}

// SetEmitter configures the event emitter used by the engine. Passing nil resets
// the emitter to a no-op implementation. An events.Checkpointer is rewound when
// an operation fails.
func (e *Engine) SetEmitter(emitter events.Emitter) {
	if emitter == nil {
		e.emitter = events.NoopEmitter{}
		return
	}
	e.emitter = emitter
}

func (e *Engine) emit(evt events.Event) {
	if e == nil || e.emitter == nil || evt == nil {
		return
	}
	e.emitter.Emit(evt)
}

func (e *Engine) now() int64 {
	if e == nil || e.nowFn == nil {
		return time.Now().Unix()
	}
	return e.nowFn()
}

func (e *Engine) ready() error {
	if e == nil || e.state == nil {
		return errNilState
	}
	if e.tokens == nil {
		return errNilTokens
	}
	if e.address == (common.Address{}) {
		return errNilAddress
	}
	return nil
}

func (e *Engine) load(id common.Hash) (*Exchange, error) {
	if e == nil || e.state == nil {
		return nil, errNilState
	}
	ex, ok, err := e.state.FixedRateGet(id)
	if err != nil {
		return nil, err
	}
	if !ok || ex == nil {
		return nil, ErrNotFound
	}
	ex.ensureCounters()
	return ex, nil
}

func (e *Engine) store(ex *Exchange) error {
	ex.UpdatedAt = e.now()
	return e.state.FixedRatePut(ex)
}

// atomically runs fn inside a state snapshot, reverting every write made by
// fn, including token movements, when it fails. Events recorded into a
// checkpointing emitter during fn are dropped with the writes.
func (e *Engine) atomically(fn func() error) error {
	snapshot := e.state.Snapshot()
	cp, rewind := e.emitter.(events.Checkpointer)
	mark := 0
	if rewind {
		mark = cp.Len()
	}
	if err := fn(); err != nil {
		e.state.RevertToSnapshot(snapshot)
		if rewind {
			cp.Truncate(mark)
		}
		return err
	}
	return nil
}

func exchangeID(engine, creator, dataAsset, baseAsset, owner common.Address, nonce uint64) common.Hash {
	var nonceBytes [8]byte
	binary.BigEndian.PutUint64(nonceBytes[:], nonce)
	return ethcrypto.Keccak256Hash(engine.Bytes(), creator.Bytes(), dataAsset.Bytes(), baseAsset.Bytes(), owner.Bytes(), nonceBytes[:])
}

// CreateExchange registers a new active exchange owned by p.Owner.
func (e *Engine) CreateExchange(creator common.Address, p CreateParams) (*Exchange, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}
	if p.DataAsset == (common.Address{}) || p.BaseAsset == (common.Address{}) || p.Owner == (common.Address{}) {
		return nil, ErrZeroAddress
	}
	if p.DataAsset == p.BaseAsset {
		return nil, ErrSameAsset
	}
	if p.DataDecimals > MaxDecimals || p.BaseDecimals > MaxDecimals {
		return nil, ErrInvalidDecimals
	}
	rate := p.FixedRate
	if rate == nil {
		rate = big.NewInt(0)
	}
	if err := validateRate(rate); err != nil {
		return nil, err
	}
	if err := validateFeeRate(p.MarketFee); err != nil {
		return nil, err
	}
	marketFee := cloneBigInt(p.MarketFee)
	collector := p.MarketFeeCollector
	if collector == (common.Address{}) {
		collector = p.Owner
	}
	if collector == e.address {
		return nil, ErrEngineCollector
	}
	if e.policy != nil && !e.policy.CanCreate(creator, p.DataAsset) {
		return nil, ErrCreatorNotAllowed
	}

	var created *Exchange
	err := e.atomically(func() error {
		if currentID, ok, err := e.state.FixedRatePairGet(p.DataAsset, p.BaseAsset, p.Owner); err != nil {
			return err
		} else if ok {
			current, err := e.load(currentID)
			if err != nil {
				return err
			}
			if current.Active {
				return ErrExchangeExists
			}
		}
		nonce, err := e.state.FixedRateNextNonce(creator)
		if err != nil {
			return err
		}
		now := e.now()
		ex := &Exchange{
			ID:                 exchangeID(e.address, creator, p.DataAsset, p.BaseAsset, p.Owner, nonce),
			Creator:            creator,
			Owner:              p.Owner,
			DataAsset:          p.DataAsset,
			BaseAsset:          p.BaseAsset,
			DataDecimals:       p.DataDecimals,
			BaseDecimals:       p.BaseDecimals,
			FixedRate:          new(big.Int).Set(rate),
			Active:             true,
			MarketFee:          marketFee,
			MarketFeeCollector: collector,
			Nonce:              nonce,
			CreatedAt:          now,
		}
		ex.ensureCounters()
		if _, exists, err := e.state.FixedRateGet(ex.ID); err != nil {
			return err
		} else if exists {
			return fmt.Errorf("fixedrate engine: id collision for %s", ex.ID.Hex())
		}
		if err := e.store(ex); err != nil {
			return err
		}
		if err := e.state.FixedRatePairPut(p.DataAsset, p.BaseAsset, p.Owner, ex.ID); err != nil {
			return err
		}
		created = ex
		return nil
	})
	if err != nil {
		return nil, err
	}
	e.emit(events.ExchangeCreated{
		ID:                 created.ID,
		Owner:              created.Owner,
		Creator:            created.Creator,
		DataAsset:          created.DataAsset,
		BaseAsset:          created.BaseAsset,
		DataDecimals:       created.DataDecimals,
		BaseDecimals:       created.BaseDecimals,
		FixedRate:          cloneBigInt(created.FixedRate),
		MarketFee:          cloneBigInt(created.MarketFee),
		MarketFeeCollector: created.MarketFeeCollector,
		CreatedAt:          created.CreatedAt,
	})
	return created.Clone(), nil
}

// GetExchange returns the stored record together with the live supply view.
func (e *Engine) GetExchange(id common.Hash) (*Snapshot, error) {
	ex, err := e.load(id)
	if err != nil {
		return nil, err
	}
	available, err := e.availableSupply(ex)
	if err != nil {
		return nil, err
	}
	return &Snapshot{
		Exchange:        ex,
		AvailableSupply: available,
		DTSupply:        new(big.Int).Add(ex.DataBalance, available),
		BTSupply:        new(big.Int).Set(ex.BaseBalance),
	}, nil
}

// GetRate returns the fixed rate of the exchange.
func (e *Engine) GetRate(id common.Hash) (*big.Int, error) {
	ex, err := e.load(id)
	if err != nil {
		return nil, err
	}
	return new(big.Int).Set(ex.FixedRate), nil
}

// IsActive reports whether the exchange accepts trades.
func (e *Engine) IsActive(id common.Hash) (bool, error) {
	ex, err := e.load(id)
	if err != nil {
		return false, err
	}
	return ex.Active, nil
}

// AvailableSupply returns the owner-side data asset capacity of the exchange.
func (e *Engine) AvailableSupply(id common.Hash) (*big.Int, error) {
	ex, err := e.load(id)
	if err != nil {
		return nil, err
	}
	return e.availableSupply(ex)
}

func (e *Engine) availableSupply(ex *Exchange) (*big.Int, error) {
	if e.tokens == nil {
		return nil, errNilTokens
	}
	tok, err := e.tokens.Token(ex.DataAsset)
	if err != nil {
		return nil, err
	}
	return AvailableSupply(tok, ex.Owner, e.address)
}

// ListExchanges returns every exchange id in creation order.
func (e *Engine) ListExchanges() ([]common.Hash, error) {
	if e == nil || e.state == nil {
		return nil, errNilState
	}
	return e.state.FixedRateList()
}

// ExchangeFor resolves the current exchange registered for the triple.
func (e *Engine) ExchangeFor(dataAsset, baseAsset, owner common.Address) (*Exchange, error) {
	if e == nil || e.state == nil {
		return nil, errNilState
	}
	id, ok, err := e.state.FixedRatePairGet(dataAsset, baseAsset, owner)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrNotFound
	}
	return e.load(id)
}

// SetRate replaces the fixed rate. Only the owner may call it.
func (e *Engine) SetRate(id common.Hash, caller common.Address, rate *big.Int) error {
	if err := validateRate(rate); err != nil {
		return err
	}
	ex, err := e.load(id)
	if err != nil {
		return err
	}
	if caller != ex.Owner {
		return ErrUnauthorized
	}
	ex.FixedRate = new(big.Int).Set(rate)
	if err := e.store(ex); err != nil {
		return err
	}
	e.emit(events.ExchangeRateChanged{ID: ex.ID, Caller: caller, Rate: cloneBigInt(rate)})
	return nil
}

// Activate re-enables trading. Only the owner may call it.
func (e *Engine) Activate(id common.Hash, caller common.Address) error {
	ex, err := e.load(id)
	if err != nil {
		return err
	}
	if caller != ex.Owner {
		return ErrUnauthorized
	}
	if ex.Active {
		return nil
	}
	if currentID, ok, err := e.state.FixedRatePairGet(ex.DataAsset, ex.BaseAsset, ex.Owner); err != nil {
		return err
	} else if ok && currentID != ex.ID {
		// A newer exchange took over the triple; running both would split
		// the owner allowance between two records.
		current, err := e.load(currentID)
		if err != nil {
			return err
		}
		if current.Active {
			return ErrExchangeExists
		}
	}
	ex.Active = true
	err = e.atomically(func() error {
		if err := e.store(ex); err != nil {
			return err
		}
		return e.state.FixedRatePairPut(ex.DataAsset, ex.BaseAsset, ex.Owner, ex.ID)
	})
	if err != nil {
		return err
	}
	e.emit(events.ExchangeActivated{ID: ex.ID, Caller: caller})
	return nil
}

// Deactivate pauses trading. The owner and the protocol fee collector may
// call it.
func (e *Engine) Deactivate(id common.Hash, caller common.Address) error {
	ex, err := e.load(id)
	if err != nil {
		return err
	}
	if caller != ex.Owner && (e.fees.Collector == (common.Address{}) || caller != e.fees.Collector) {
		return ErrUnauthorized
	}
	if !ex.Active {
		return nil
	}
	ex.Active = false
	if err := e.store(ex); err != nil {
		return err
	}
	e.emit(events.ExchangeDeactivated{ID: ex.ID, Caller: caller})
	return nil
}

// SetMarketFeeCollector changes where market fees are paid. Only the owner
// may call it.
func (e *Engine) SetMarketFeeCollector(id common.Hash, caller, collector common.Address) error {
	if collector == (common.Address{}) {
		return ErrZeroAddress
	}
	if collector == e.address {
		return ErrEngineCollector
	}
	ex, err := e.load(id)
	if err != nil {
		return err
	}
	if caller != ex.Owner {
		return ErrUnauthorized
	}
	ex.MarketFeeCollector = collector
	if err := e.store(ex); err != nil {
		return err
	}
	e.emit(events.ExchangeFeeCollectorChanged{ID: ex.ID, Caller: caller, Collector: collector})
	return nil
}

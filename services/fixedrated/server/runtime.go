package server

import (
	"fmt"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"fixedswap/config"
	"fixedswap/core/events"
	"fixedswap/core/state"
	"fixedswap/native/fixedrate"
	"fixedswap/native/token"
	"fixedswap/storage"
)

// RuntimeConfig wires the engine over a database.
type RuntimeConfig struct {
	Database      storage.Database
	EngineAddress common.Address
	Fees          fixedrate.FeeConfig
	Creators      []common.Address
	// Sink receives events of committed operations only.
	Sink events.Emitter
	Now  func() time.Time
}

// Runtime serialises operations against the journaled state. Each Update
// either commits its writes and publishes its events, or leaves no trace.
type Runtime struct {
	mu       sync.Mutex
	state    *state.Manager
	engine   *fixedrate.Engine
	provider *state.TokenProvider
	pending  *events.Buffer
	sink     events.Emitter
}

func NewRuntime(cfg RuntimeConfig) (*Runtime, error) {
	if cfg.Database == nil {
		return nil, fmt.Errorf("runtime: database required")
	}
	if cfg.EngineAddress == (common.Address{}) {
		return nil, fmt.Errorf("runtime: engine address required")
	}
	sink := cfg.Sink
	if sink == nil {
		sink = events.NoopEmitter{}
	}
	manager := state.NewManager(cfg.Database)
	pending := &events.Buffer{}
	provider := manager.NewTokenProvider(pending)

	engine := fixedrate.NewEngine()
	engine.SetState(manager)
	engine.SetTokens(provider)
	engine.SetAddress(cfg.EngineAddress)
	engine.SetEmitter(pending)
	engine.SetCreatorPolicy(fixedrate.NewAllowList(cfg.Creators...))
	if err := engine.SetFeeConfig(cfg.Fees); err != nil {
		return nil, fmt.Errorf("runtime: %w", err)
	}
	if cfg.Now != nil {
		now := cfg.Now
		engine.SetNowFunc(func() int64 { return now().Unix() })
	}
	return &Runtime{state: manager, engine: engine, provider: provider, pending: pending, sink: sink}, nil
}

// Engine returns the exchange engine. Callers must only use it inside
// Update or View.
func (r *Runtime) Engine() *fixedrate.Engine { return r.engine }

// Ledger resolves a registered token. Same restriction as Engine.
func (r *Runtime) Ledger(addr common.Address) (*token.Ledger, error) {
	return r.provider.Ledger(addr)
}

// State exposes the state manager for token metadata lookups inside View.
func (r *Runtime) State() *state.Manager { return r.state }

// Update runs fn and commits on success.
func (r *Runtime) Update(fn func() error) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := fn(); err != nil {
		r.rollback()
		return err
	}
	if err := r.state.Commit(); err != nil {
		r.rollback()
		return err
	}
	r.pending.Flush(r.sink)
	return nil
}

// View runs fn without persisting anything it may have written.
func (r *Runtime) View(fn func() error) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	defer r.rollback()
	return fn()
}

func (r *Runtime) rollback() {
	r.state.Discard()
	r.pending.Truncate(0)
}

// SeedTokens registers configured tokens that are not yet known and mints
// their initial balances. Tokens already present are left untouched, so
// seeding is safe on every start.
func (r *Runtime) SeedTokens(tokens []config.Token) (int, error) {
	seeded := 0
	err := r.Update(func() error {
		for _, tok := range tokens {
			_, exists, err := r.state.TokenMetadata(tok.Address)
			if err != nil {
				return err
			}
			if exists {
				continue
			}
			if err := r.state.RegisterToken(state.TokenMetadata{
				Address:  tok.Address,
				Symbol:   tok.Symbol,
				Name:     tok.Name,
				Decimals: tok.Decimals,
			}); err != nil {
				return fmt.Errorf("register %s: %w", tok.Symbol, err)
			}
			ledger, err := r.provider.Ledger(tok.Address)
			if err != nil {
				return err
			}
			for account, amount := range tok.Balances {
				if err := ledger.Mint(account, amount); err != nil {
					return fmt.Errorf("mint %s: %w", tok.Symbol, err)
				}
			}
			seeded++
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return seeded, nil
}

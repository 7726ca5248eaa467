package state

import (
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/common"

	"fixedswap/core/events"
	"fixedswap/native/token"
)

var (
	tokenMetadataPrefix  = []byte("token/meta/")
	tokenBalancePrefix   = []byte("token/balance/")
	tokenAllowancePrefix = []byte("token/allowance/")
	tokenIndexKey        = []byte("token/index")
)

// TokenMetadata describes a token registered with the reference ledger.
type TokenMetadata struct {
	Address  common.Address
	Symbol   string
	Name     string
	Decimals uint8
}

func tokenMetadataKey(addr common.Address) []byte {
	return append(append([]byte(nil), tokenMetadataPrefix...), addr.Bytes()...)
}

func tokenBalanceKey(tok, account common.Address) []byte {
	buf := make([]byte, 0, len(tokenBalancePrefix)+2*common.AddressLength)
	buf = append(buf, tokenBalancePrefix...)
	buf = append(buf, tok.Bytes()...)
	return append(buf, account.Bytes()...)
}

func tokenAllowanceKey(tok, owner, spender common.Address) []byte {
	buf := make([]byte, 0, len(tokenAllowancePrefix)+3*common.AddressLength)
	buf = append(buf, tokenAllowancePrefix...)
	buf = append(buf, tok.Bytes()...)
	buf = append(buf, owner.Bytes()...)
	return append(buf, spender.Bytes()...)
}

// RegisterToken records token metadata. Registering an address twice fails.
func (m *Manager) RegisterToken(meta TokenMetadata) error {
	if meta.Address == (common.Address{}) {
		return token.ErrZeroAddress
	}
	meta.Symbol = strings.ToUpper(strings.TrimSpace(meta.Symbol))
	if meta.Symbol == "" {
		return fmt.Errorf("token: symbol required")
	}
	key := tokenMetadataKey(meta.Address)
	exists, err := m.KVGet(key, nil)
	if err != nil {
		return err
	}
	if exists {
		return fmt.Errorf("token: %s already registered", meta.Address.Hex())
	}
	if err := m.KVPut(key, &meta); err != nil {
		return err
	}
	return m.KVAppend(tokenIndexKey, meta.Address.Bytes())
}

// TokenMetadata returns the registered metadata for addr.
func (m *Manager) TokenMetadata(addr common.Address) (*TokenMetadata, bool, error) {
	var meta TokenMetadata
	ok, err := m.KVGet(tokenMetadataKey(addr), &meta)
	if err != nil || !ok {
		return nil, false, err
	}
	return &meta, true, nil
}

// Tokens lists registered tokens in registration order.
func (m *Manager) Tokens() ([]TokenMetadata, error) {
	var raw [][]byte
	if err := m.KVGetList(tokenIndexKey, &raw); err != nil {
		return nil, err
	}
	out := make([]TokenMetadata, 0, len(raw))
	for _, b := range raw {
		meta, ok, err := m.TokenMetadata(common.BytesToAddress(b))
		if err != nil {
			return nil, err
		}
		if ok {
			out = append(out, *meta)
		}
	}
	return out, nil
}

// TokenBalance implements token.Store.
func (m *Manager) TokenBalance(tok, account common.Address) (*big.Int, error) {
	return m.loadAmount(tokenBalanceKey(tok, account))
}

// SetTokenBalance implements token.Store.
func (m *Manager) SetTokenBalance(tok, account common.Address, amount *big.Int) error {
	return m.storeAmount(tokenBalanceKey(tok, account), amount)
}

// TokenAllowance implements token.Store.
func (m *Manager) TokenAllowance(tok, owner, spender common.Address) (*big.Int, error) {
	return m.loadAmount(tokenAllowanceKey(tok, owner, spender))
}

// SetTokenAllowance implements token.Store.
func (m *Manager) SetTokenAllowance(tok, owner, spender common.Address, amount *big.Int) error {
	return m.storeAmount(tokenAllowanceKey(tok, owner, spender), amount)
}

func (m *Manager) loadAmount(key []byte) (*big.Int, error) {
	value := new(big.Int)
	ok, err := m.KVGet(key, value)
	if err != nil {
		return nil, err
	}
	if !ok {
		return big.NewInt(0), nil
	}
	return value, nil
}

func (m *Manager) storeAmount(key []byte, amount *big.Int) error {
	if amount == nil || amount.Sign() == 0 {
		return m.KVDelete(key)
	}
	if amount.Sign() < 0 {
		return token.ErrNegativeAmount
	}
	return m.KVPut(key, amount)
}

// TokenProvider resolves registered tokens to ledgers over this manager.
type TokenProvider struct {
	state   *Manager
	emitter events.Emitter
}

// NewTokenProvider returns a provider whose ledgers emit through emitter.
func (m *Manager) NewTokenProvider(emitter events.Emitter) *TokenProvider {
	return &TokenProvider{state: m, emitter: emitter}
}

// Ledger returns the reference ledger of a registered token.
func (p *TokenProvider) Ledger(addr common.Address) (*token.Ledger, error) {
	_, ok, err := p.state.TokenMetadata(addr)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("%w: %s", token.ErrUnknownToken, addr.Hex())
	}
	ledger := token.NewLedger(p.state, addr)
	ledger.SetEmitter(p.emitter)
	return ledger, nil
}

// Token implements token.Provider.
func (p *TokenProvider) Token(addr common.Address) (token.Token, error) {
	ledger, err := p.Ledger(addr)
	if err != nil {
		return nil, err
	}
	return ledger, nil
}

package fixedrate

import (
	"bytes"
	"errors"
	"fmt"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"

	"fixedswap/core/events"
	"fixedswap/native/token"
)

type pairKey struct {
	data, base, owner common.Address
}

type balanceKey struct {
	token, account common.Address
}

type allowanceKey struct {
	token, owner, spender common.Address
}

type mockState struct {
	exchanges  map[common.Hash]*Exchange
	order      []common.Hash
	pairs      map[pairKey]common.Hash
	nonces     map[common.Address]uint64
	balances   map[balanceKey]*big.Int
	allowances map[allowanceKey]*big.Int
	snapshots  []*mockState
}

func newMockState() *mockState {
	return &mockState{
		exchanges:  make(map[common.Hash]*Exchange),
		pairs:      make(map[pairKey]common.Hash),
		nonces:     make(map[common.Address]uint64),
		balances:   make(map[balanceKey]*big.Int),
		allowances: make(map[allowanceKey]*big.Int),
	}
}

func (m *mockState) copyData() *mockState {
	out := newMockState()
	for id, ex := range m.exchanges {
		out.exchanges[id] = ex.Clone()
	}
	out.order = append([]common.Hash(nil), m.order...)
	for k, v := range m.pairs {
		out.pairs[k] = v
	}
	for k, v := range m.nonces {
		out.nonces[k] = v
	}
	for k, v := range m.balances {
		out.balances[k] = new(big.Int).Set(v)
	}
	for k, v := range m.allowances {
		out.allowances[k] = new(big.Int).Set(v)
	}
	return out
}

func (m *mockState) Snapshot() int {
	m.snapshots = append(m.snapshots, m.copyData())
	return len(m.snapshots) - 1
}

func (m *mockState) RevertToSnapshot(id int) {
	if id < 0 || id >= len(m.snapshots) {
		return
	}
	saved := m.snapshots[id]
	m.exchanges, m.order, m.pairs, m.nonces = saved.exchanges, saved.order, saved.pairs, saved.nonces
	m.balances, m.allowances = saved.balances, saved.allowances
	m.snapshots = m.snapshots[:id]
}

func (m *mockState) FixedRateGet(id common.Hash) (*Exchange, bool, error) {
	ex, ok := m.exchanges[id]
	if !ok {
		return nil, false, nil
	}
	return ex.Clone(), true, nil
}

func (m *mockState) FixedRatePut(ex *Exchange) error {
	if ex == nil {
		return fmt.Errorf("nil exchange")
	}
	if ex.DataBalance.Sign() < 0 || ex.BaseBalance.Sign() < 0 {
		return fmt.Errorf("negative counter")
	}
	if _, ok := m.exchanges[ex.ID]; !ok {
		m.order = append(m.order, ex.ID)
	}
	m.exchanges[ex.ID] = ex.Clone()
	return nil
}

func (m *mockState) FixedRateList() ([]common.Hash, error) {
	return append([]common.Hash(nil), m.order...), nil
}

func (m *mockState) FixedRatePairGet(data, base, owner common.Address) (common.Hash, bool, error) {
	id, ok := m.pairs[pairKey{data, base, owner}]
	return id, ok, nil
}

func (m *mockState) FixedRatePairPut(data, base, owner common.Address, id common.Hash) error {
	m.pairs[pairKey{data, base, owner}] = id
	return nil
}

func (m *mockState) FixedRateNextNonce(creator common.Address) (uint64, error) {
	nonce := m.nonces[creator]
	m.nonces[creator] = nonce + 1
	return nonce, nil
}

func (m *mockState) TokenBalance(tok, account common.Address) (*big.Int, error) {
	if v, ok := m.balances[balanceKey{tok, account}]; ok {
		return new(big.Int).Set(v), nil
	}
	return big.NewInt(0), nil
}

func (m *mockState) SetTokenBalance(tok, account common.Address, amount *big.Int) error {
	m.balances[balanceKey{tok, account}] = new(big.Int).Set(amount)
	return nil
}

func (m *mockState) TokenAllowance(tok, owner, spender common.Address) (*big.Int, error) {
	if v, ok := m.allowances[allowanceKey{tok, owner, spender}]; ok {
		return new(big.Int).Set(v), nil
	}
	return big.NewInt(0), nil
}

func (m *mockState) SetTokenAllowance(tok, owner, spender common.Address, amount *big.Int) error {
	m.allowances[allowanceKey{tok, owner, spender}] = new(big.Int).Set(amount)
	return nil
}

type mockTokens struct {
	ledgers map[common.Address]*token.Ledger
}

func (m mockTokens) Token(addr common.Address) (token.Token, error) {
	ledger, ok := m.ledgers[addr]
	if !ok {
		return nil, token.ErrUnknownToken
	}
	return ledger, nil
}

type recordingEmitter struct {
	events []events.Event
}

func (r *recordingEmitter) Emit(evt events.Event) { r.events = append(r.events, evt) }

func (r *recordingEmitter) ofType(kind string) []events.Event {
	var out []events.Event
	for _, evt := range r.events {
		if evt.EventType() == kind {
			out = append(out, evt)
		}
	}
	return out
}

func newTestAddress(fill byte) common.Address {
	return common.BytesToAddress(bytes.Repeat([]byte{fill}, common.AddressLength))
}

var (
	engineAddr        = newTestAddress(0xE0)
	ownerAddr         = newTestAddress(0x01)
	buyerAddr         = newTestAddress(0x02)
	protocolCollector = newTestAddress(0x03)
	marketCollector   = newTestAddress(0x04)
	outsiderAddr      = newTestAddress(0x05)
	dataAsset         = newTestAddress(0xD0)
	baseAsset         = newTestAddress(0xB0)
)

type harness struct {
	engine  *Engine
	state   *mockState
	data    *token.Ledger
	base    *token.Ledger
	emitter *recordingEmitter
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	state := newMockState()
	data := token.NewLedger(state, dataAsset)
	base := token.NewLedger(state, baseAsset)
	emitter := &recordingEmitter{}
	engine := NewEngine()
	engine.SetState(state)
	engine.SetTokens(mockTokens{ledgers: map[common.Address]*token.Ledger{dataAsset: data, baseAsset: base}})
	engine.SetAddress(engineAddr)
	engine.SetEmitter(emitter)
	engine.SetNowFunc(func() int64 { return 1_700_000_000 })
	return &harness{engine: engine, state: state, data: data, base: base, emitter: emitter}
}

func units(n int64, decimals uint8) *big.Int {
	return new(big.Int).Mul(big.NewInt(n), pow10(decimals))
}

func (h *harness) mustMint(t *testing.T, ledger *token.Ledger, to common.Address, amount *big.Int) {
	t.Helper()
	if err := ledger.Mint(to, amount); err != nil {
		t.Fatalf("mint: %v", err)
	}
}

func (h *harness) mustApprove(t *testing.T, ledger *token.Ledger, owner common.Address, amount *big.Int) {
	t.Helper()
	if err := ledger.Approve(owner, engineAddr, amount); err != nil {
		t.Fatalf("approve: %v", err)
	}
}

func (h *harness) mustCreate(t *testing.T, rate *big.Int, dataDecimals, baseDecimals uint8, marketFee *big.Int) *Exchange {
	t.Helper()
	ex, err := h.engine.CreateExchange(ownerAddr, CreateParams{
		DataAsset:          dataAsset,
		BaseAsset:          baseAsset,
		DataDecimals:       dataDecimals,
		BaseDecimals:       baseDecimals,
		FixedRate:          rate,
		Owner:              ownerAddr,
		MarketFee:          marketFee,
		MarketFeeCollector: marketCollector,
	})
	if err != nil {
		t.Fatalf("create exchange: %v", err)
	}
	return ex
}

func (h *harness) balance(t *testing.T, ledger *token.Ledger, account common.Address) *big.Int {
	t.Helper()
	bal, err := ledger.BalanceOf(account)
	if err != nil {
		t.Fatalf("balance: %v", err)
	}
	return bal
}

func (h *harness) snapshot(t *testing.T, id common.Hash) *Snapshot {
	t.Helper()
	snap, err := h.engine.GetExchange(id)
	if err != nil {
		t.Fatalf("get exchange: %v", err)
	}
	return snap
}

func expectAmount(t *testing.T, label string, got, want *big.Int) {
	t.Helper()
	if got == nil || got.Cmp(want) != 0 {
		t.Fatalf("%s: got %v, want %s", label, got, want)
	}
}

func TestCreateExchangeDefaults(t *testing.T) {
	h := newHarness(t)
	ex := h.mustCreate(t, units(2, 18), 18, 6, nil)
	if !ex.Active {
		t.Fatalf("new exchange must be active")
	}
	if ex.ID == (common.Hash{}) {
		t.Fatalf("expected non-zero id")
	}
	if ex.ID != exchangeID(engineAddr, ownerAddr, dataAsset, baseAsset, ownerAddr, 0) {
		t.Fatalf("unexpected id derivation")
	}
	expectAmount(t, "data balance", ex.DataBalance, big.NewInt(0))
	expectAmount(t, "base balance", ex.BaseBalance, big.NewInt(0))
	rate, err := h.engine.GetRate(ex.ID)
	if err != nil {
		t.Fatalf("get rate: %v", err)
	}
	expectAmount(t, "rate", rate, units(2, 18))
	created := h.emitter.ofType(events.TypeExchangeCreated)
	if len(created) != 1 {
		t.Fatalf("expected one creation event, got %d", len(created))
	}
	attrs := created[0].(events.ExchangeCreated).Event().Attributes
	if attrs["exchangeId"] != ex.ID.Hex() || attrs["fixedRate"] != units(2, 18).String() {
		t.Fatalf("unexpected creation attributes: %v", attrs)
	}
}

func TestCreateExchangeValidation(t *testing.T) {
	h := newHarness(t)
	base := CreateParams{
		DataAsset:    dataAsset,
		BaseAsset:    baseAsset,
		DataDecimals: 18,
		BaseDecimals: 18,
		FixedRate:    units(1, 18),
		Owner:        ownerAddr,
	}
	cases := []struct {
		name   string
		mutate func(*CreateParams)
		want   error
	}{
		{"same asset", func(p *CreateParams) { p.BaseAsset = p.DataAsset }, ErrSameAsset},
		{"data decimals", func(p *CreateParams) { p.DataDecimals = 19 }, ErrInvalidDecimals},
		{"base decimals", func(p *CreateParams) { p.BaseDecimals = 40 }, ErrInvalidDecimals},
		{"negative rate", func(p *CreateParams) { p.FixedRate = big.NewInt(-1) }, ErrInvalidRate},
		{"oversized rate", func(p *CreateParams) { p.FixedRate = new(big.Int).Lsh(big.NewInt(1), 256) }, ErrInvalidRate},
		{"market fee", func(p *CreateParams) { p.MarketFee = new(big.Int).Add(MaxFeeRate, big.NewInt(1)) }, ErrInvalidFee},
		{"zero owner", func(p *CreateParams) { p.Owner = common.Address{} }, ErrZeroAddress},
	}
	for _, tc := range cases {
		params := base
		tc.mutate(&params)
		_, err := h.engine.CreateExchange(ownerAddr, params)
		if !errors.Is(err, tc.want) {
			t.Fatalf("%s: expected %v, got %v", tc.name, tc.want, err)
		}
		if !errors.Is(err, ErrInvalidArgument) {
			t.Fatalf("%s: expected invalid argument root, got %v", tc.name, err)
		}
	}
	ids, err := h.engine.ListExchanges()
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(ids) != 0 {
		t.Fatalf("rejected creations must not register exchanges")
	}
}

func TestCreateExchangeTripleIndex(t *testing.T) {
	h := newHarness(t)
	first := h.mustCreate(t, units(1, 18), 18, 18, nil)
	if _, err := h.engine.CreateExchange(ownerAddr, CreateParams{
		DataAsset: dataAsset, BaseAsset: baseAsset, DataDecimals: 18, BaseDecimals: 18,
		FixedRate: units(1, 18), Owner: ownerAddr,
	}); !errors.Is(err, ErrExchangeExists) {
		t.Fatalf("expected ErrExchangeExists, got %v", err)
	}
	if err := h.engine.Deactivate(first.ID, ownerAddr); err != nil {
		t.Fatalf("deactivate: %v", err)
	}
	second := h.mustCreate(t, units(3, 18), 18, 18, nil)
	if second.ID == first.ID {
		t.Fatalf("re-created exchange must get a fresh id")
	}
	current, err := h.engine.ExchangeFor(dataAsset, baseAsset, ownerAddr)
	if err != nil {
		t.Fatalf("exchange for: %v", err)
	}
	if current.ID != second.ID {
		t.Fatalf("triple index not repointed")
	}
	ids, err := h.engine.ListExchanges()
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(ids) != 2 || ids[0] != first.ID || ids[1] != second.ID {
		t.Fatalf("unexpected exchange order: %v", ids)
	}
	if err := h.engine.Activate(first.ID, ownerAddr); !errors.Is(err, ErrExchangeExists) {
		t.Fatalf("reactivating a superseded exchange should fail, got %v", err)
	}
	if _, err := h.engine.ExchangeFor(baseAsset, dataAsset, ownerAddr); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound for unknown triple, got %v", err)
	}
}

func TestCreatorPolicy(t *testing.T) {
	h := newHarness(t)
	h.engine.SetCreatorPolicy(NewAllowList(outsiderAddr))
	_, err := h.engine.CreateExchange(ownerAddr, CreateParams{
		DataAsset: dataAsset, BaseAsset: baseAsset, DataDecimals: 18, BaseDecimals: 18,
		FixedRate: units(1, 18), Owner: ownerAddr,
	})
	if !errors.Is(err, ErrCreatorNotAllowed) || !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("expected creator rejection, got %v", err)
	}
	if _, err := h.engine.CreateExchange(outsiderAddr, CreateParams{
		DataAsset: dataAsset, BaseAsset: baseAsset, DataDecimals: 18, BaseDecimals: 18,
		FixedRate: units(1, 18), Owner: ownerAddr,
	}); err != nil {
		t.Fatalf("allowed creator rejected: %v", err)
	}
}

func TestUnknownExchange(t *testing.T) {
	h := newHarness(t)
	missing := common.HexToHash("0x1234")
	if _, err := h.engine.GetExchange(missing); !errors.Is(err, ErrNotFound) {
		t.Fatalf("get: expected ErrNotFound, got %v", err)
	}
	if _, err := h.engine.GetRate(missing); !errors.Is(err, ErrNotFound) {
		t.Fatalf("rate: expected ErrNotFound, got %v", err)
	}
	if _, err := h.engine.IsActive(missing); !errors.Is(err, ErrNotFound) {
		t.Fatalf("active: expected ErrNotFound, got %v", err)
	}
	if _, err := h.engine.BuyDT(missing, buyerAddr, big.NewInt(1)); !errors.Is(err, ErrNotFound) {
		t.Fatalf("buy: expected ErrNotFound, got %v", err)
	}
}

func TestSetRateAuthorization(t *testing.T) {
	h := newHarness(t)
	ex := h.mustCreate(t, units(1, 18), 18, 18, nil)
	if err := h.engine.SetRate(ex.ID, outsiderAddr, units(2, 18)); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("expected ErrUnauthorized, got %v", err)
	}
	if err := h.engine.SetRate(ex.ID, ownerAddr, big.NewInt(-5)); !errors.Is(err, ErrInvalidRate) {
		t.Fatalf("expected ErrInvalidRate, got %v", err)
	}
	if err := h.engine.SetRate(ex.ID, ownerAddr, big.NewInt(0)); err != nil {
		t.Fatalf("set rate to zero: %v", err)
	}
	rate, err := h.engine.GetRate(ex.ID)
	if err != nil {
		t.Fatalf("get rate: %v", err)
	}
	if rate.Sign() != 0 {
		t.Fatalf("expected zero rate, got %s", rate)
	}
	if len(h.emitter.ofType(events.TypeExchangeRateChanged)) != 1 {
		t.Fatalf("expected one rate change event")
	}
}

func TestActivationLifecycle(t *testing.T) {
	h := newHarness(t)
	if err := h.engine.SetFeeConfig(FeeConfig{ProtocolFeeRate: big.NewInt(0), Collector: protocolCollector}); err != nil {
		t.Fatalf("fee config: %v", err)
	}
	ex := h.mustCreate(t, big.NewInt(0), 18, 18, nil)

	if err := h.engine.Deactivate(ex.ID, outsiderAddr); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("outsider deactivate: expected ErrUnauthorized, got %v", err)
	}
	if err := h.engine.Deactivate(ex.ID, protocolCollector); err != nil {
		t.Fatalf("collector deactivate: %v", err)
	}
	active, err := h.engine.IsActive(ex.ID)
	if err != nil {
		t.Fatalf("is active: %v", err)
	}
	if active {
		t.Fatalf("expected inactive exchange")
	}
	if _, err := h.engine.BuyDT(ex.ID, buyerAddr, big.NewInt(1)); !errors.Is(err, ErrInactive) {
		t.Fatalf("buy on inactive: expected ErrInactive, got %v", err)
	}
	if _, err := h.engine.SellDT(ex.ID, buyerAddr, big.NewInt(1)); !errors.Is(err, ErrInactive) {
		t.Fatalf("sell on inactive: expected ErrInactive, got %v", err)
	}
	if err := h.engine.Activate(ex.ID, protocolCollector); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("collector activate: expected ErrUnauthorized, got %v", err)
	}
	if err := h.engine.Activate(ex.ID, ownerAddr); err != nil {
		t.Fatalf("owner activate: %v", err)
	}
	if active, _ := h.engine.IsActive(ex.ID); !active {
		t.Fatalf("expected active exchange")
	}
	if len(h.emitter.ofType(events.TypeExchangeDeactivated)) != 1 || len(h.emitter.ofType(events.TypeExchangeActivated)) != 1 {
		t.Fatalf("unexpected lifecycle events: %d", len(h.emitter.events))
	}
}

func TestSetMarketFeeCollector(t *testing.T) {
	h := newHarness(t)
	ex := h.mustCreate(t, units(1, 18), 18, 18, nil)
	if err := h.engine.SetMarketFeeCollector(ex.ID, outsiderAddr, outsiderAddr); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("expected ErrUnauthorized, got %v", err)
	}
	if err := h.engine.SetMarketFeeCollector(ex.ID, ownerAddr, common.Address{}); !errors.Is(err, ErrZeroAddress) {
		t.Fatalf("expected ErrZeroAddress, got %v", err)
	}
	err := h.engine.SetMarketFeeCollector(ex.ID, ownerAddr, engineAddr)
	if !errors.Is(err, ErrEngineCollector) || !errors.Is(err, ErrInvalidArgument) {
		t.Fatalf("expected engine collector rejection, got %v", err)
	}
	if got := h.snapshot(t, ex.ID).Exchange.MarketFeeCollector; got != marketCollector {
		t.Fatalf("collector changed to %s", got.Hex())
	}
	if err := h.engine.SetMarketFeeCollector(ex.ID, ownerAddr, outsiderAddr); err != nil {
		t.Fatalf("set collector: %v", err)
	}
	if got := h.snapshot(t, ex.ID).Exchange.MarketFeeCollector; got != outsiderAddr {
		t.Fatalf("collector not updated: %s", got.Hex())
	}
}

func TestCreateRejectsEngineCollector(t *testing.T) {
	h := newHarness(t)
	_, err := h.engine.CreateExchange(ownerAddr, CreateParams{
		DataAsset:          dataAsset,
		BaseAsset:          baseAsset,
		FixedRate:          units(1, 18),
		Owner:              ownerAddr,
		MarketFeeCollector: engineAddr,
	})
	if !errors.Is(err, ErrEngineCollector) {
		t.Fatalf("expected ErrEngineCollector, got %v", err)
	}
	if ids, _ := h.engine.ListExchanges(); len(ids) != 0 {
		t.Fatalf("rejected exchange was stored: %v", ids)
	}
}

func TestFeeConfigValidation(t *testing.T) {
	h := newHarness(t)
	if err := h.engine.SetFeeConfig(FeeConfig{ProtocolFeeRate: new(big.Int).Add(MaxFeeRate, big.NewInt(1)), Collector: protocolCollector}); !errors.Is(err, ErrInvalidFee) {
		t.Fatalf("expected ErrInvalidFee, got %v", err)
	}
	if err := h.engine.SetFeeConfig(FeeConfig{ProtocolFeeRate: big.NewInt(1)}); !errors.Is(err, ErrInvalidArgument) {
		t.Fatalf("expected missing collector rejection, got %v", err)
	}
}

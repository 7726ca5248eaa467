package state

import (
	"encoding/binary"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"fixedswap/native/fixedrate"
)

var (
	fixedRateExchangePrefix = []byte("fixedrate/exchange/")
	fixedRatePairPrefix     = []byte("fixedrate/pair/")
	fixedRateNoncePrefix    = []byte("fixedrate/nonce/")
	fixedRateIndexKey       = []byte("fixedrate/index")
)

func fixedRateExchangeKey(id common.Hash) []byte {
	return append(append([]byte(nil), fixedRateExchangePrefix...), id.Bytes()...)
}

func fixedRatePairKey(dataAsset, baseAsset, owner common.Address) []byte {
	buf := make([]byte, 0, len(fixedRatePairPrefix)+3*common.AddressLength)
	buf = append(buf, fixedRatePairPrefix...)
	buf = append(buf, dataAsset.Bytes()...)
	buf = append(buf, baseAsset.Bytes()...)
	return append(buf, owner.Bytes()...)
}

func fixedRateNonceKey(creator common.Address) []byte {
	return append(append([]byte(nil), fixedRateNoncePrefix...), creator.Bytes()...)
}

type storedExchange struct {
	ID                   common.Hash
	Creator              common.Address
	Owner                common.Address
	DataAsset            common.Address
	BaseAsset            common.Address
	DataDecimals         uint8
	BaseDecimals         uint8
	FixedRate            *big.Int
	Active               bool
	DataBalance          *big.Int
	BaseBalance          *big.Int
	MarketFee            *big.Int
	MarketFeeCollector   common.Address
	ProtocolFeeCollected *big.Int
	MarketFeeCollected   *big.Int
	Nonce                uint64
	CreatedAt            uint64
	UpdatedAt            uint64
}

func newStoredExchange(ex *fixedrate.Exchange) *storedExchange {
	return &storedExchange{
		ID:                   ex.ID,
		Creator:              ex.Creator,
		Owner:                ex.Owner,
		DataAsset:            ex.DataAsset,
		BaseAsset:            ex.BaseAsset,
		DataDecimals:         ex.DataDecimals,
		BaseDecimals:         ex.BaseDecimals,
		FixedRate:            nonNil(ex.FixedRate),
		Active:               ex.Active,
		DataBalance:          nonNil(ex.DataBalance),
		BaseBalance:          nonNil(ex.BaseBalance),
		MarketFee:            nonNil(ex.MarketFee),
		MarketFeeCollector:   ex.MarketFeeCollector,
		ProtocolFeeCollected: nonNil(ex.ProtocolFeeCollected),
		MarketFeeCollected:   nonNil(ex.MarketFeeCollected),
		Nonce:                ex.Nonce,
		CreatedAt:            uint64(ex.CreatedAt),
		UpdatedAt:            uint64(ex.UpdatedAt),
	}
}

func (s *storedExchange) toExchange() *fixedrate.Exchange {
	return &fixedrate.Exchange{
		ID:                   s.ID,
		Creator:              s.Creator,
		Owner:                s.Owner,
		DataAsset:            s.DataAsset,
		BaseAsset:            s.BaseAsset,
		DataDecimals:         s.DataDecimals,
		BaseDecimals:         s.BaseDecimals,
		FixedRate:            nonNil(s.FixedRate),
		Active:               s.Active,
		DataBalance:          nonNil(s.DataBalance),
		BaseBalance:          nonNil(s.BaseBalance),
		MarketFee:            nonNil(s.MarketFee),
		MarketFeeCollector:   s.MarketFeeCollector,
		ProtocolFeeCollected: nonNil(s.ProtocolFeeCollected),
		MarketFeeCollected:   nonNil(s.MarketFeeCollected),
		Nonce:                s.Nonce,
		CreatedAt:            int64(s.CreatedAt),
		UpdatedAt:            int64(s.UpdatedAt),
	}
}

func nonNil(v *big.Int) *big.Int {
	if v == nil {
		return big.NewInt(0)
	}
	return new(big.Int).Set(v)
}

// FixedRateGet loads the exchange stored under id.
func (m *Manager) FixedRateGet(id common.Hash) (*fixedrate.Exchange, bool, error) {
	var stored storedExchange
	ok, err := m.KVGet(fixedRateExchangeKey(id), &stored)
	if err != nil || !ok {
		return nil, false, err
	}
	return stored.toExchange(), true, nil
}

// FixedRatePut stores the exchange and records new ids in the creation index.
func (m *Manager) FixedRatePut(ex *fixedrate.Exchange) error {
	if ex == nil {
		return fmt.Errorf("fixedrate: nil exchange")
	}
	if ex.ID == (common.Hash{}) {
		return fmt.Errorf("fixedrate: exchange id required")
	}
	for _, v := range []*big.Int{ex.FixedRate, ex.DataBalance, ex.BaseBalance, ex.MarketFee, ex.ProtocolFeeCollected, ex.MarketFeeCollected} {
		if v != nil && v.Sign() < 0 {
			return fmt.Errorf("fixedrate: negative counter on %s", ex.ID.Hex())
		}
	}
	key := fixedRateExchangeKey(ex.ID)
	exists, err := m.KVGet(key, nil)
	if err != nil {
		return err
	}
	if err := m.KVPut(key, newStoredExchange(ex)); err != nil {
		return err
	}
	if exists {
		return nil
	}
	return m.KVAppend(fixedRateIndexKey, ex.ID.Bytes())
}

// FixedRateList returns all exchange ids in creation order.
func (m *Manager) FixedRateList() ([]common.Hash, error) {
	var raw [][]byte
	if err := m.KVGetList(fixedRateIndexKey, &raw); err != nil {
		return nil, err
	}
	ids := make([]common.Hash, len(raw))
	for i, b := range raw {
		ids[i] = common.BytesToHash(b)
	}
	return ids, nil
}

// FixedRatePairGet resolves the exchange currently registered for a triple.
func (m *Manager) FixedRatePairGet(dataAsset, baseAsset, owner common.Address) (common.Hash, bool, error) {
	var raw []byte
	ok, err := m.KVGet(fixedRatePairKey(dataAsset, baseAsset, owner), &raw)
	if err != nil || !ok {
		return common.Hash{}, false, err
	}
	return common.BytesToHash(raw), true, nil
}

// FixedRatePairPut points the triple at id.
func (m *Manager) FixedRatePairPut(dataAsset, baseAsset, owner common.Address, id common.Hash) error {
	return m.KVPut(fixedRatePairKey(dataAsset, baseAsset, owner), id.Bytes())
}

// FixedRateNextNonce returns the creator's current nonce and advances it.
func (m *Manager) FixedRateNextNonce(creator common.Address) (uint64, error) {
	key := fixedRateNonceKey(creator)
	raw, ok, err := m.get(key)
	if err != nil {
		return 0, err
	}
	var nonce uint64
	if ok {
		if len(raw) != 8 {
			return 0, fmt.Errorf("fixedrate: corrupt nonce for %s", creator.Hex())
		}
		nonce = binary.BigEndian.Uint64(raw)
	}
	next := make([]byte, 8)
	binary.BigEndian.PutUint64(next, nonce+1)
	m.put(key, next)
	return nonce, nil
}

package fixedrate

import (
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/common"
)

// Direction identifies which leg of the pair the caller receives.
type Direction uint8

const (
	// DirectionBuy means the caller pays base asset and receives data asset.
	DirectionBuy Direction = iota + 1
	// DirectionSell means the caller pays data asset and receives base asset.
	DirectionSell
)

func (d Direction) String() string {
	switch d {
	case DirectionBuy:
		return "buy"
	case DirectionSell:
		return "sell"
	default:
		return "unknown"
	}
}

// Valid reports whether the direction is one of the defined constants.
func (d Direction) Valid() bool {
	return d == DirectionBuy || d == DirectionSell
}

// ParseDirection converts the textual direction used by the transport layer.
func ParseDirection(raw string) (Direction, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "buy":
		return DirectionBuy, nil
	case "sell":
		return DirectionSell, nil
	default:
		return 0, fmt.Errorf("%w: unknown direction %q", ErrInvalidArgument, raw)
	}
}

// Exchange is the persisted record of a single trading pair. Balance counters
// track value held by the engine account on behalf of this exchange.
type Exchange struct {
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
	CreatedAt            int64
	UpdatedAt            int64
}

// Clone returns a deep copy of the exchange.
func (e *Exchange) Clone() *Exchange {
	if e == nil {
		return nil
	}
	out := *e
	out.FixedRate = cloneBigInt(e.FixedRate)
	out.DataBalance = cloneBigInt(e.DataBalance)
	out.BaseBalance = cloneBigInt(e.BaseBalance)
	out.MarketFee = cloneBigInt(e.MarketFee)
	out.ProtocolFeeCollected = cloneBigInt(e.ProtocolFeeCollected)
	out.MarketFeeCollected = cloneBigInt(e.MarketFeeCollected)
	return &out
}

// IsDispenser reports whether the exchange gives its data asset away.
func (e *Exchange) IsDispenser() bool {
	return e != nil && (e.FixedRate == nil || e.FixedRate.Sign() == 0)
}

func (e *Exchange) ensureCounters() {
	if e.FixedRate == nil {
		e.FixedRate = big.NewInt(0)
	}
	if e.DataBalance == nil {
		e.DataBalance = big.NewInt(0)
	}
	if e.BaseBalance == nil {
		e.BaseBalance = big.NewInt(0)
	}
	if e.MarketFee == nil {
		e.MarketFee = big.NewInt(0)
	}
	if e.ProtocolFeeCollected == nil {
		e.ProtocolFeeCollected = big.NewInt(0)
	}
	if e.MarketFeeCollected == nil {
		e.MarketFeeCollected = big.NewInt(0)
	}
}

// Snapshot is the read view of an exchange: stored counters plus the supply
// derived from the owner's live token state at query time.
type Snapshot struct {
	Exchange *Exchange
	// AvailableSupply is min(owner balance, owner allowance to the engine).
	AvailableSupply *big.Int
	// DTSupply is the data asset that can currently be bought.
	DTSupply *big.Int
	// BTSupply is the base asset currently held for the exchange.
	BTSupply *big.Int
}

// CreateParams carries the configuration of a new exchange.
type CreateParams struct {
	DataAsset          common.Address
	BaseAsset          common.Address
	DataDecimals       uint8
	BaseDecimals       uint8
	FixedRate          *big.Int
	Owner              common.Address
	MarketFee          *big.Int
	MarketFeeCollector common.Address
}

// SwapResult describes a settled trade.
type SwapResult struct {
	ExchangeID common.Hash
	Caller     common.Address
	Direction  Direction
	Pricing    Pricing
	// FromEngine is the part of a buy served from the engine-held data balance.
	FromEngine *big.Int
	// FromOwner is the part of a buy pulled from the owner's allowance.
	FromOwner *big.Int
}

// FeeConfig is the registry-level protocol fee configuration.
type FeeConfig struct {
	ProtocolFeeRate *big.Int
	Collector       common.Address
	Exempt          []common.Address
}

// Validate checks the rate bound and that fees have a destination.
func (c FeeConfig) Validate() error {
	rate := c.ProtocolFeeRate
	if rate == nil {
		return nil
	}
	if rate.Sign() < 0 || rate.Cmp(MaxFeeRate) > 0 {
		return fmt.Errorf("%w: protocol fee rate %s outside [0, %s]", ErrInvalidFee, rate, MaxFeeRate)
	}
	if rate.Sign() > 0 && c.Collector == (common.Address{}) {
		return fmt.Errorf("%w: protocol fee collector required", ErrInvalidArgument)
	}
	return nil
}

// RateFor returns the protocol fee rate charged on trades of exchanges owned
// by owner.
func (c FeeConfig) RateFor(owner common.Address) *big.Int {
	if c.ProtocolFeeRate == nil {
		return big.NewInt(0)
	}
	for _, exempt := range c.Exempt {
		if exempt == owner {
			return big.NewInt(0)
		}
	}
	return new(big.Int).Set(c.ProtocolFeeRate)
}

func (c FeeConfig) clone() FeeConfig {
	out := FeeConfig{Collector: c.Collector}
	if c.ProtocolFeeRate != nil {
		out.ProtocolFeeRate = new(big.Int).Set(c.ProtocolFeeRate)
	}
	if len(c.Exempt) > 0 {
		out.Exempt = append([]common.Address(nil), c.Exempt...)
	}
	return out
}

func cloneBigInt(v *big.Int) *big.Int {
	if v == nil {
		return big.NewInt(0)
	}
	return new(big.Int).Set(v)
}

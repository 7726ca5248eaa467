package events

import (
	"math/big"
	"strconv"

	"github.com/ethereum/go-ethereum/common"

	"fixedswap/core/types"
)

const (
	TypeExchangeCreated            = "fixedrate.created"
	TypeExchangeSwapped            = "fixedrate.swapped"
	TypeExchangeRateChanged        = "fixedrate.rate_changed"
	TypeExchangeActivated          = "fixedrate.activated"
	TypeExchangeDeactivated        = "fixedrate.deactivated"
	TypeExchangeFeeCollectorChange = "fixedrate.fee_collector_changed"
	TypeExchangeCollected          = "fixedrate.collected"
)

// ExchangeCreated is emitted once per registered exchange.
type ExchangeCreated struct {
	ID                 common.Hash
	Owner              common.Address
	Creator            common.Address
	DataAsset          common.Address
	BaseAsset          common.Address
	DataDecimals       uint8
	BaseDecimals       uint8
	FixedRate          *big.Int
	MarketFee          *big.Int
	MarketFeeCollector common.Address
	CreatedAt          int64
}

func (ExchangeCreated) EventType() string { return TypeExchangeCreated }

func (e ExchangeCreated) Event() *types.Event {
	return &types.Event{
		Type: TypeExchangeCreated,
		Attributes: map[string]string{
			"exchangeId":         e.ID.Hex(),
			"owner":              formatAddress(e.Owner),
			"creator":            formatAddress(e.Creator),
			"dataToken":          formatAddress(e.DataAsset),
			"baseToken":          formatAddress(e.BaseAsset),
			"dataTokenDecimals":  strconv.FormatUint(uint64(e.DataDecimals), 10),
			"baseTokenDecimals":  strconv.FormatUint(uint64(e.BaseDecimals), 10),
			"fixedRate":          formatAmount(e.FixedRate),
			"marketFee":          formatAmount(e.MarketFee),
			"marketFeeCollector": formatAddress(e.MarketFeeCollector),
			"createdAt":          intToString(e.CreatedAt),
		},
	}
}

// ExchangeSwapped records the outcome of a settled buy or sell.
type ExchangeSwapped struct {
	ID                     common.Hash
	Caller                 common.Address
	Direction              string
	DataTokenSwappedAmount *big.Int
	BaseTokenSwappedAmount *big.Int
	ProtocolFeeAmount      *big.Int
	MarketFeeAmount        *big.Int
	NetBaseAmount          *big.Int
	Timestamp              int64
}

func (ExchangeSwapped) EventType() string { return TypeExchangeSwapped }

func (e ExchangeSwapped) Event() *types.Event {
	return &types.Event{
		Type: TypeExchangeSwapped,
		Attributes: map[string]string{
			"exchangeId":             e.ID.Hex(),
			"caller":                 formatAddress(e.Caller),
			"direction":              e.Direction,
			"dataTokenSwappedAmount": formatAmount(e.DataTokenSwappedAmount),
			"baseTokenSwappedAmount": formatAmount(e.BaseTokenSwappedAmount),
			"protocolFeeAmount":      formatAmount(e.ProtocolFeeAmount),
			"marketFeeAmount":        formatAmount(e.MarketFeeAmount),
			"netBaseAmount":          formatAmount(e.NetBaseAmount),
			"timestamp":              intToString(e.Timestamp),
		},
	}
}

// ExchangeRateChanged is emitted when the owner updates the fixed rate.
type ExchangeRateChanged struct {
	ID     common.Hash
	Caller common.Address
	Rate   *big.Int
}

func (ExchangeRateChanged) EventType() string { return TypeExchangeRateChanged }

func (e ExchangeRateChanged) Event() *types.Event {
	return &types.Event{
		Type: TypeExchangeRateChanged,
		Attributes: map[string]string{
			"exchangeId": e.ID.Hex(),
			"caller":     formatAddress(e.Caller),
			"fixedRate":  formatAmount(e.Rate),
		},
	}
}

// ExchangeActivated is emitted when trading is re-enabled.
type ExchangeActivated struct {
	ID     common.Hash
	Caller common.Address
}

func (ExchangeActivated) EventType() string { return TypeExchangeActivated }

func (e ExchangeActivated) Event() *types.Event {
	return &types.Event{
		Type: TypeExchangeActivated,
		Attributes: map[string]string{
			"exchangeId": e.ID.Hex(),
			"caller":     formatAddress(e.Caller),
		},
	}
}

// ExchangeDeactivated is emitted when trading is paused.
type ExchangeDeactivated struct {
	ID     common.Hash
	Caller common.Address
}

func (ExchangeDeactivated) EventType() string { return TypeExchangeDeactivated }

func (e ExchangeDeactivated) Event() *types.Event {
	return &types.Event{
		Type: TypeExchangeDeactivated,
		Attributes: map[string]string{
			"exchangeId": e.ID.Hex(),
			"caller":     formatAddress(e.Caller),
		},
	}
}

// ExchangeFeeCollectorChanged is emitted when the market fee destination moves.
type ExchangeFeeCollectorChanged struct {
	ID        common.Hash
	Caller    common.Address
	Collector common.Address
}

func (ExchangeFeeCollectorChanged) EventType() string { return TypeExchangeFeeCollectorChange }

func (e ExchangeFeeCollectorChanged) Event() *types.Event {
	return &types.Event{
		Type: TypeExchangeFeeCollectorChange,
		Attributes: map[string]string{
			"exchangeId":         e.ID.Hex(),
			"caller":             formatAddress(e.Caller),
			"marketFeeCollector": formatAddress(e.Collector),
		},
	}
}

// ExchangeCollected records an owner withdrawal of engine-held balance.
type ExchangeCollected struct {
	ID     common.Hash
	Caller common.Address
	Asset  common.Address
	Amount *big.Int
}

func (ExchangeCollected) EventType() string { return TypeExchangeCollected }

func (e ExchangeCollected) Event() *types.Event {
	return &types.Event{
		Type: TypeExchangeCollected,
		Attributes: map[string]string{
			"exchangeId": e.ID.Hex(),
			"caller":     formatAddress(e.Caller),
			"token":      formatAddress(e.Asset),
			"amount":     formatAmount(e.Amount),
		},
	}
}

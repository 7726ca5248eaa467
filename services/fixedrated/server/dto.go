package server

import (
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/common"

	"fixedswap/crypto"
	"fixedswap/native/fixedrate"
)

// Amounts travel as base-10 integer strings in raw token units; addresses
// are accepted as hex or bech32 and rendered as bech32.

type exchangeJSON struct {
	ID                   string `json:"exchangeId"`
	Creator              string `json:"creator"`
	Owner                string `json:"owner"`
	DataToken            string `json:"dataToken"`
	BaseToken            string `json:"baseToken"`
	DataDecimals         uint8  `json:"dataTokenDecimals"`
	BaseDecimals         uint8  `json:"baseTokenDecimals"`
	FixedRate            string `json:"fixedRate"`
	Active               bool   `json:"active"`
	DTBalance            string `json:"dtBalance"`
	BTBalance            string `json:"btBalance"`
	MarketFee            string `json:"marketFee"`
	MarketFeeCollector   string `json:"marketFeeCollector"`
	ProtocolFeeCollected string `json:"protocolFeeCollected"`
	MarketFeeCollected   string `json:"marketFeeCollected"`
	Dispenser            bool   `json:"dispenser"`
	CreatedAt            int64  `json:"createdAt"`
	UpdatedAt            int64  `json:"updatedAt"`
	AvailableSupply      string `json:"availableSupply,omitempty"`
	DTSupply             string `json:"dtSupply,omitempty"`
	BTSupply             string `json:"btSupply,omitempty"`
}

func exchangeView(ex *fixedrate.Exchange) exchangeJSON {
	return exchangeJSON{
		ID:                   ex.ID.Hex(),
		Creator:              formatAddress(ex.Creator),
		Owner:                formatAddress(ex.Owner),
		DataToken:            formatAddress(ex.DataAsset),
		BaseToken:            formatAddress(ex.BaseAsset),
		DataDecimals:         ex.DataDecimals,
		BaseDecimals:         ex.BaseDecimals,
		FixedRate:            formatAmount(ex.FixedRate),
		Active:               ex.Active,
		DTBalance:            formatAmount(ex.DataBalance),
		BTBalance:            formatAmount(ex.BaseBalance),
		MarketFee:            formatAmount(ex.MarketFee),
		MarketFeeCollector:   formatAddress(ex.MarketFeeCollector),
		ProtocolFeeCollected: formatAmount(ex.ProtocolFeeCollected),
		MarketFeeCollected:   formatAmount(ex.MarketFeeCollected),
		Dispenser:            ex.IsDispenser(),
		CreatedAt:            ex.CreatedAt,
		UpdatedAt:            ex.UpdatedAt,
	}
}

func snapshotView(snap *fixedrate.Snapshot) exchangeJSON {
	view := exchangeView(snap.Exchange)
	view.AvailableSupply = formatAmount(snap.AvailableSupply)
	view.DTSupply = formatAmount(snap.DTSupply)
	view.BTSupply = formatAmount(snap.BTSupply)
	return view
}

type pricingJSON struct {
	Direction   string `json:"direction"`
	DataAmount  string `json:"dataTokenAmount"`
	Gross       string `json:"baseTokenAmount"`
	ProtocolFee string `json:"protocolFeeAmount"`
	MarketFee   string `json:"marketFeeAmount"`
	Net         string `json:"netBaseAmount"`
}

func pricingView(direction fixedrate.Direction, p fixedrate.Pricing) pricingJSON {
	return pricingJSON{
		Direction:   direction.String(),
		DataAmount:  formatAmount(p.DataAmount),
		Gross:       formatAmount(p.Gross),
		ProtocolFee: formatAmount(p.ProtocolFee),
		MarketFee:   formatAmount(p.MarketFee),
		Net:         formatAmount(p.Net),
	}
}

type swapJSON struct {
	ExchangeID string `json:"exchangeId"`
	Caller     string `json:"caller"`
	pricingJSON
	FromEngine string `json:"servedFromEngine"`
	FromOwner  string `json:"servedFromOwner"`
}

type createRequest struct {
	DataToken          string `json:"dataToken"`
	BaseToken          string `json:"baseToken"`
	DataDecimals       *uint8 `json:"dataTokenDecimals,omitempty"`
	BaseDecimals       *uint8 `json:"baseTokenDecimals,omitempty"`
	FixedRate          string `json:"fixedRate"`
	Owner              string `json:"owner,omitempty"`
	MarketFee          string `json:"marketFee,omitempty"`
	MarketFeeCollector string `json:"marketFeeCollector,omitempty"`
}

type amountRequest struct {
	Amount string `json:"amount"`
}

type rateRequest struct {
	Rate string `json:"rate"`
}

type collectorRequest struct {
	Collector string `json:"collector"`
}

type collectRequest struct {
	Asset  string `json:"asset"`
	Amount string `json:"amount"`
}

type approveRequest struct {
	Spender string `json:"spender"`
	Amount  string `json:"amount"`
}

type transferRequest struct {
	To     string `json:"to"`
	Amount string `json:"amount"`
}

type tokenJSON struct {
	Address  string `json:"address"`
	Symbol   string `json:"symbol"`
	Name     string `json:"name,omitempty"`
	Decimals uint8  `json:"decimals"`
}

type balanceJSON struct {
	Token     string `json:"token"`
	Account   string `json:"account"`
	Balance   string `json:"balance"`
	Spender   string `json:"spender,omitempty"`
	Allowance string `json:"allowance,omitempty"`
}

func formatAmount(v *big.Int) string {
	if v == nil {
		return "0"
	}
	return v.String()
}

func formatAddress(addr common.Address) string {
	if addr == (common.Address{}) {
		return ""
	}
	return crypto.FromCommon(addr).String()
}

func parseAmount(field, raw string) (*big.Int, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return nil, badRequest("%s required", field)
	}
	v, ok := new(big.Int).SetString(trimmed, 10)
	if !ok {
		return nil, badRequest("%s must be a base-10 integer", field)
	}
	return v, nil
}

func parseOptionalAmount(field, raw string) (*big.Int, error) {
	if strings.TrimSpace(raw) == "" {
		return big.NewInt(0), nil
	}
	return parseAmount(field, raw)
}

func parseAddress(field, raw string) (common.Address, error) {
	addr, err := crypto.ParseAddress(raw)
	if err != nil {
		return common.Address{}, badRequest("%s: %v", field, err)
	}
	return addr, nil
}

func parseOptionalAddress(field, raw string) (common.Address, error) {
	if strings.TrimSpace(raw) == "" {
		return common.Address{}, nil
	}
	return parseAddress(field, raw)
}

func parseExchangeID(raw string) (common.Hash, error) {
	trimmed := strings.TrimSpace(raw)
	if !strings.HasPrefix(trimmed, "0x") && !strings.HasPrefix(trimmed, "0X") {
		trimmed = "0x" + trimmed
	}
	if len(trimmed) != 2+2*common.HashLength {
		return common.Hash{}, badRequest("exchange id must be 32 bytes of hex")
	}
	for _, c := range trimmed[2:] {
		if !strings.ContainsRune("0123456789abcdefABCDEF", c) {
			return common.Hash{}, badRequest("exchange id must be hex")
		}
	}
	return common.HexToHash(trimmed), nil
}

func (r createRequest) params(caller common.Address, decimalsOf func(common.Address) (uint8, error)) (fixedrate.CreateParams, error) {
	out := fixedrate.CreateParams{}
	var err error
	if out.DataAsset, err = parseAddress("dataToken", r.DataToken); err != nil {
		return out, err
	}
	if out.BaseAsset, err = parseAddress("baseToken", r.BaseToken); err != nil {
		return out, err
	}
	if out.FixedRate, err = parseAmount("fixedRate", r.FixedRate); err != nil {
		return out, err
	}
	if out.MarketFee, err = parseOptionalAmount("marketFee", r.MarketFee); err != nil {
		return out, err
	}
	if out.Owner, err = parseOptionalAddress("owner", r.Owner); err != nil {
		return out, err
	}
	if out.Owner == (common.Address{}) {
		out.Owner = caller
	}
	if out.MarketFeeCollector, err = parseOptionalAddress("marketFeeCollector", r.MarketFeeCollector); err != nil {
		return out, err
	}
	resolve := func(explicit *uint8, asset common.Address) (uint8, error) {
		if explicit != nil {
			return *explicit, nil
		}
		d, err := decimalsOf(asset)
		if err != nil {
			return 0, fmt.Errorf("decimals of %s: %w", asset.Hex(), err)
		}
		return d, nil
	}
	if out.DataDecimals, err = resolve(r.DataDecimals, out.DataAsset); err != nil {
		return out, err
	}
	if out.BaseDecimals, err = resolve(r.BaseDecimals, out.BaseAsset); err != nil {
		return out, err
	}
	return out, nil
}

package fixedrate

import (
	"math/big"

	"github.com/holiman/uint256"
)

const (
	// MaxDecimals bounds the precision accepted for either asset.
	MaxDecimals = 18
)

var (
	// FixedPointBase is the scale of rates and fee rates: 1e18 represents 1.0.
	FixedPointBase = big.NewInt(1_000_000_000_000_000_000)
	// MaxFeeRate caps each fee kind at 10%.
	MaxFeeRate = big.NewInt(100_000_000_000_000_000)
)

// Normalize rescales amount from one decimal precision to another. Down-scaling
// truncates toward zero.
func Normalize(amount *big.Int, fromDecimals, toDecimals uint8) *big.Int {
	if amount == nil || amount.Sign() == 0 {
		return big.NewInt(0)
	}
	switch {
	case toDecimals > fromDecimals:
		return new(big.Int).Mul(amount, pow10(toDecimals-fromDecimals))
	case toDecimals < fromDecimals:
		return new(big.Int).Quo(amount, pow10(fromDecimals-toDecimals))
	default:
		return new(big.Int).Set(amount)
	}
}

func pow10(exp uint8) *big.Int {
	return new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(exp)), nil)
}

// PriceInput describes the trade to be priced.
type PriceInput struct {
	Amount          *big.Int
	FixedRate       *big.Int
	ProtocolFeeRate *big.Int
	MarketFeeRate   *big.Int
	DataDecimals    uint8
	BaseDecimals    uint8
}

// Pricing is the base-asset breakdown of a trade. Gross always equals
// ProtocolFee + MarketFee + Net.
type Pricing struct {
	DataAmount  *big.Int
	Gross       *big.Int
	ProtocolFee *big.Int
	MarketFee   *big.Int
	Net         *big.Int
}

// Clone returns a deep copy of the pricing.
func (p Pricing) Clone() Pricing {
	return Pricing{
		DataAmount:  cloneBigInt(p.DataAmount),
		Gross:       cloneBigInt(p.Gross),
		ProtocolFee: cloneBigInt(p.ProtocolFee),
		MarketFee:   cloneBigInt(p.MarketFee),
		Net:         cloneBigInt(p.Net),
	}
}

// Price computes the base-asset amounts for a trade of in.Amount data-asset
// units. Every division floors; rounding residue stays in Net.
func Price(in PriceInput) Pricing {
	out := Pricing{
		DataAmount:  cloneBigInt(in.Amount),
		Gross:       big.NewInt(0),
		ProtocolFee: big.NewInt(0),
		MarketFee:   big.NewInt(0),
		Net:         big.NewInt(0),
	}
	if in.Amount == nil || in.Amount.Sign() <= 0 || in.FixedRate == nil || in.FixedRate.Sign() <= 0 {
		return out
	}
	scaled := new(big.Int).Mul(in.Amount, in.FixedRate)
	scaled.Quo(scaled, FixedPointBase)
	out.Gross = Normalize(scaled, in.DataDecimals, in.BaseDecimals)

	out.ProtocolFee = feeOf(out.Gross, in.ProtocolFeeRate)
	out.MarketFee = feeOf(out.Gross, in.MarketFeeRate)
	if total := new(big.Int).Add(out.ProtocolFee, out.MarketFee); total.Cmp(out.Gross) > 0 {
		// Only reachable with rates above MaxFeeRate; the protocol share wins.
		if out.ProtocolFee.Cmp(out.Gross) > 0 {
			out.ProtocolFee = new(big.Int).Set(out.Gross)
		}
		out.MarketFee = new(big.Int).Sub(out.Gross, out.ProtocolFee)
	}
	out.Net = new(big.Int).Sub(out.Gross, out.ProtocolFee)
	out.Net.Sub(out.Net, out.MarketFee)
	return out
}

func feeOf(gross, rate *big.Int) *big.Int {
	if gross == nil || gross.Sign() <= 0 || rate == nil || rate.Sign() <= 0 {
		return big.NewInt(0)
	}
	fee := new(big.Int).Mul(gross, rate)
	return fee.Quo(fee, FixedPointBase)
}

// fitsUint256 reports whether v is a non-negative value representable in 256
// bits.
func fitsUint256(v *big.Int) bool {
	if v == nil || v.Sign() < 0 {
		return false
	}
	_, overflow := uint256.FromBig(v)
	return !overflow
}

func validateAmount(amount *big.Int) error {
	if amount == nil || amount.Sign() <= 0 || !fitsUint256(amount) {
		return ErrInvalidAmount
	}
	return nil
}

func validateRate(rate *big.Int) error {
	if rate == nil || !fitsUint256(rate) {
		return ErrInvalidRate
	}
	return nil
}

func validateFeeRate(rate *big.Int) error {
	if rate == nil {
		return nil
	}
	if rate.Sign() < 0 || rate.Cmp(MaxFeeRate) > 0 {
		return ErrInvalidFee
	}
	return nil
}

func minBig(a, b *big.Int) *big.Int {
	if a.Cmp(b) <= 0 {
		return new(big.Int).Set(a)
	}
	return new(big.Int).Set(b)
}

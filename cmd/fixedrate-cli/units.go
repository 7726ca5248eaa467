package main

import (
	"fmt"
	"math/big"
	"strings"

	"github.com/shopspring/decimal"

	"fixedswap/native/fixedrate"
	"fixedswap/native/token"
)

const fixedPointDecimals = 18

// parseUnits converts a human amount into raw units with the given decimals.
// The amount must be representable exactly.
func parseUnits(raw string, decimals int32) (*big.Int, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return nil, fmt.Errorf("amount required")
	}
	value, err := decimal.NewFromString(trimmed)
	if err != nil {
		return nil, fmt.Errorf("invalid amount %q", raw)
	}
	if value.IsNegative() {
		return nil, fmt.Errorf("amount must not be negative")
	}
	scaled := value.Shift(decimals)
	if !scaled.Equal(scaled.Truncate(0)) {
		return nil, fmt.Errorf("amount %s has more than %d decimal places", trimmed, decimals)
	}
	return scaled.BigInt(), nil
}

// parseAllowance accepts "max" for the unlimited approval.
func parseAllowance(raw string, decimals int32) (*big.Int, error) {
	if strings.EqualFold(strings.TrimSpace(raw), "max") {
		return new(big.Int).Set(token.MaxAllowance), nil
	}
	return parseUnits(raw, decimals)
}

// parseRate turns a decimal price into the 1e18 fixed-point rate.
func parseRate(raw string) (*big.Int, error) {
	return parseUnits(raw, fixedPointDecimals)
}

// parseFeeFraction turns a fraction such as 0.01 into a fixed-point fee rate.
func parseFeeFraction(raw string) (*big.Int, error) {
	if strings.TrimSpace(raw) == "" {
		return big.NewInt(0), nil
	}
	fee, err := parseUnits(raw, fixedPointDecimals)
	if err != nil {
		return nil, err
	}
	if fee.Cmp(fixedrate.MaxFeeRate) > 0 {
		return nil, fmt.Errorf("fee %s exceeds %s", raw, formatUnits(fixedrate.MaxFeeRate.String(), fixedPointDecimals))
	}
	return fee, nil
}

// formatUnits renders a raw base-10 amount with decimals.
func formatUnits(raw string, decimals int32) string {
	value, ok := new(big.Int).SetString(strings.TrimSpace(raw), 10)
	if !ok {
		return raw
	}
	return decimal.NewFromBigInt(value, -decimals).String()
}

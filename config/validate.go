package config

import (
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	ethcrypto "github.com/ethereum/go-ethereum/crypto"

	"fixedswap/crypto"
	"fixedswap/native/fixedrate"
)

// DefaultEngineAddress is the module account used when EngineAddress is unset.
var DefaultEngineAddress = common.BytesToAddress(ethcrypto.Keccak256([]byte("fixedswap/module/fixedrate"))[12:])

// Token is a parsed TokenConfig.
type Token struct {
	Address  common.Address
	Symbol   string
	Name     string
	Decimals uint8
	Balances map[common.Address]*big.Int
}

// Engine parses the engine module address.
func (c Config) Engine() (common.Address, error) {
	addr, err := crypto.ParseAddress(c.EngineAddress)
	if err != nil {
		return common.Address{}, fmt.Errorf("EngineAddress: %w", err)
	}
	return addr, nil
}

// ProtocolFees parses the protocol fee section.
func (c Config) ProtocolFees() (fixedrate.FeeConfig, error) {
	out := fixedrate.FeeConfig{}
	rate, err := parseUintAmount(c.Fees.ProtocolFeeRate)
	if err != nil {
		return out, fmt.Errorf("fees.ProtocolFeeRate: %w", err)
	}
	out.ProtocolFeeRate = rate
	if strings.TrimSpace(c.Fees.Collector) != "" {
		collector, err := crypto.ParseAddress(c.Fees.Collector)
		if err != nil {
			return out, fmt.Errorf("fees.Collector: %w", err)
		}
		out.Collector = collector
	}
	for i, raw := range c.Fees.Exempt {
		addr, err := crypto.ParseAddress(raw)
		if err != nil {
			return out, fmt.Errorf("fees.Exempt[%d]: %w", i, err)
		}
		out.Exempt = append(out.Exempt, addr)
	}
	if err := out.Validate(); err != nil {
		return out, fmt.Errorf("fees: %w", err)
	}
	return out, nil
}

// Creators parses the creator allow-list.
func (c Config) Creators() ([]common.Address, error) {
	out := make([]common.Address, 0, len(c.AllowedCreators))
	for i, raw := range c.AllowedCreators {
		addr, err := crypto.ParseAddress(raw)
		if err != nil {
			return nil, fmt.Errorf("AllowedCreators[%d]: %w", i, err)
		}
		out = append(out, addr)
	}
	return out, nil
}

// GenesisTokens parses the token seed list.
func (c Config) GenesisTokens() ([]Token, error) {
	out := make([]Token, 0, len(c.Tokens))
	seen := make(map[common.Address]struct{}, len(c.Tokens))
	for i, tc := range c.Tokens {
		addr, err := crypto.ParseAddress(tc.Address)
		if err != nil {
			return nil, fmt.Errorf("tokens[%d].Address: %w", i, err)
		}
		if _, dup := seen[addr]; dup {
			return nil, fmt.Errorf("tokens[%d]: duplicate address %s", i, addr.Hex())
		}
		seen[addr] = struct{}{}
		if strings.TrimSpace(tc.Symbol) == "" {
			return nil, fmt.Errorf("tokens[%d].Symbol: required", i)
		}
		if tc.Decimals > fixedrate.MaxDecimals {
			return nil, fmt.Errorf("tokens[%d].Decimals: %d exceeds %d", i, tc.Decimals, fixedrate.MaxDecimals)
		}
		tok := Token{Address: addr, Symbol: tc.Symbol, Name: tc.Name, Decimals: tc.Decimals, Balances: make(map[common.Address]*big.Int, len(tc.Balances))}
		for rawAccount, rawAmount := range tc.Balances {
			account, err := crypto.ParseAddress(rawAccount)
			if err != nil {
				return nil, fmt.Errorf("tokens[%d].Balances: %w", i, err)
			}
			amount, err := parseUintAmount(rawAmount)
			if err != nil {
				return nil, fmt.Errorf("tokens[%d].Balances[%s]: %w", i, rawAccount, err)
			}
			tok.Balances[account] = amount
		}
		out = append(out, tok)
	}
	return out, nil
}

func parseUintAmount(raw string) (*big.Int, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return big.NewInt(0), nil
	}
	value, ok := new(big.Int).SetString(trimmed, 10)
	if !ok {
		return nil, fmt.Errorf("invalid integer %q", raw)
	}
	if value.Sign() < 0 {
		return nil, fmt.Errorf("value must not be negative")
	}
	return value, nil
}

func validate(cfg Config) error {
	if _, err := cfg.Engine(); err != nil {
		return err
	}
	if _, err := cfg.ProtocolFees(); err != nil {
		return err
	}
	if _, err := cfg.Creators(); err != nil {
		return err
	}
	if _, err := cfg.GenesisTokens(); err != nil {
		return err
	}
	if cfg.RateLimit.RequestsPerSecond < 0 || cfg.RateLimit.Burst < 0 {
		return fmt.Errorf("ratelimit: values must not be negative")
	}
	if cfg.Telemetry.SampleRatio < 0 || cfg.Telemetry.SampleRatio > 1 {
		return fmt.Errorf("telemetry.SampleRatio: %v outside [0,1]", cfg.Telemetry.SampleRatio)
	}
	return nil
}

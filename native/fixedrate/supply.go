package fixedrate

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

// TokenView is the read-only slice of a token needed to derive supply.
type TokenView interface {
	BalanceOf(account common.Address) (*big.Int, error)
	Allowance(owner, spender common.Address) (*big.Int, error)
}

// AvailableSupply returns how much of the token the owner can currently supply
// through spender: the smaller of the owner's balance and the allowance granted
// to spender. The value is read from the token on every call.
func AvailableSupply(tok TokenView, owner, spender common.Address) (*big.Int, error) {
	balance, err := tok.BalanceOf(owner)
	if err != nil {
		return nil, err
	}
	allowance, err := tok.Allowance(owner, spender)
	if err != nil {
		return nil, err
	}
	if balance == nil {
		balance = big.NewInt(0)
	}
	if allowance == nil {
		allowance = big.NewInt(0)
	}
	return minBig(balance, allowance), nil
}

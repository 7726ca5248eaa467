package token

import (
	"errors"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

var (
	// ErrTransferRejected is the root of every failure reported by a token
	// when it refuses to move value. Exchange callers see it as the
	// insufficient allowance or balance condition.
	ErrTransferRejected = errors.New("token: transfer rejected")
	// ErrInsufficientBalance indicates the sender does not hold the amount.
	ErrInsufficientBalance = fmt.Errorf("%w: transfer amount exceeds balance", ErrTransferRejected)
	// ErrInsufficientAllowance indicates the spender was not approved for the amount.
	ErrInsufficientAllowance = fmt.Errorf("%w: transfer amount exceeds allowance", ErrTransferRejected)

	ErrNegativeAmount = errors.New("token: amount must not be negative")
	ErrZeroAddress    = errors.New("token: zero address")
	ErrOverflow       = errors.New("token: amount exceeds 256 bits")
	ErrUnknownToken   = errors.New("token: not registered")
)

// Token is the external asset interface consumed by the exchange engine. The
// spender of TransferFrom is explicit because the engine acts on behalf of its
// own module address.
type Token interface {
	BalanceOf(account common.Address) (*big.Int, error)
	Allowance(owner, spender common.Address) (*big.Int, error)
	Transfer(from, to common.Address, amount *big.Int) error
	TransferFrom(spender, from, to common.Address, amount *big.Int) error
}

// Provider resolves token handles by address.
type Provider interface {
	Token(addr common.Address) (Token, error)
}

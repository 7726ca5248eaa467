package token

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"fixedswap/core/events"
)

// MaxAllowance is the sentinel approval that is never consumed by
// TransferFrom.
var MaxAllowance = new(uint256.Int).SetAllOne().ToBig()

// Store is the state surface backing a Ledger.
type Store interface {
	TokenBalance(token, account common.Address) (*big.Int, error)
	SetTokenBalance(token, account common.Address, amount *big.Int) error
	TokenAllowance(token, owner, spender common.Address) (*big.Int, error)
	SetTokenAllowance(token, owner, spender common.Address, amount *big.Int) error
}

// Ledger is the reference fungible token: balances and allowances live in
// the shared state so token movements revert together with exchange
// bookkeeping.
type Ledger struct {
	store   Store
	address common.Address
	emitter events.Emitter
}

// NewLedger binds a ledger for the token at address to store.
func NewLedger(store Store, address common.Address) *Ledger {
	return &Ledger{store: store, address: address, emitter: events.NoopEmitter{}}
}

// SetEmitter configures the event emitter used by the ledger. Passing nil
// resets the emitter to a no-op implementation.
func (l *Ledger) SetEmitter(emitter events.Emitter) {
	if emitter == nil {
		l.emitter = events.NoopEmitter{}
		return
	}
	l.emitter = emitter
}

// Address returns the token identifier.
func (l *Ledger) Address() common.Address { return l.address }

func (l *Ledger) BalanceOf(account common.Address) (*big.Int, error) {
	return l.store.TokenBalance(l.address, account)
}

func (l *Ledger) Allowance(owner, spender common.Address) (*big.Int, error) {
	return l.store.TokenAllowance(l.address, owner, spender)
}

// Approve sets the spender allowance, replacing any previous value.
func (l *Ledger) Approve(owner, spender common.Address, amount *big.Int) error {
	if owner == (common.Address{}) || spender == (common.Address{}) {
		return ErrZeroAddress
	}
	amt, err := checkAmount(amount)
	if err != nil {
		return err
	}
	if err := l.store.SetTokenAllowance(l.address, owner, spender, amt); err != nil {
		return err
	}
	l.emitter.Emit(events.TokenApproval{Token: l.address, Owner: owner, Spender: spender, Amount: amt})
	return nil
}

// Transfer moves amount from the from account to to.
func (l *Ledger) Transfer(from, to common.Address, amount *big.Int) error {
	amt, err := checkAmount(amount)
	if err != nil {
		return err
	}
	return l.move(from, to, amt)
}

// TransferFrom moves amount on behalf of spender, consuming allowance unless
// it equals MaxAllowance.
func (l *Ledger) TransferFrom(spender, from, to common.Address, amount *big.Int) error {
	amt, err := checkAmount(amount)
	if err != nil {
		return err
	}
	allowance, err := l.store.TokenAllowance(l.address, from, spender)
	if err != nil {
		return err
	}
	if allowance.Cmp(amt) < 0 {
		return ErrInsufficientAllowance
	}
	if err := l.move(from, to, amt); err != nil {
		return err
	}
	if allowance.Cmp(MaxAllowance) == 0 {
		return nil
	}
	return l.store.SetTokenAllowance(l.address, from, spender, new(big.Int).Sub(allowance, amt))
}

// Mint credits newly issued units to the account.
func (l *Ledger) Mint(to common.Address, amount *big.Int) error {
	if to == (common.Address{}) {
		return ErrZeroAddress
	}
	amt, err := checkAmount(amount)
	if err != nil {
		return err
	}
	balance, err := l.store.TokenBalance(l.address, to)
	if err != nil {
		return err
	}
	next, err := checkAmount(new(big.Int).Add(balance, amt))
	if err != nil {
		return err
	}
	if err := l.store.SetTokenBalance(l.address, to, next); err != nil {
		return err
	}
	l.emitter.Emit(events.TokenTransfer{Token: l.address, To: to, Amount: amt})
	return nil
}

func (l *Ledger) move(from, to common.Address, amt *big.Int) error {
	if from == (common.Address{}) || to == (common.Address{}) {
		return ErrZeroAddress
	}
	fromBalance, err := l.store.TokenBalance(l.address, from)
	if err != nil {
		return err
	}
	if fromBalance.Cmp(amt) < 0 {
		return ErrInsufficientBalance
	}
	if amt.Sign() == 0 || from == to {
		return nil
	}
	toBalance, err := l.store.TokenBalance(l.address, to)
	if err != nil {
		return err
	}
	if err := l.store.SetTokenBalance(l.address, from, new(big.Int).Sub(fromBalance, amt)); err != nil {
		return err
	}
	if err := l.store.SetTokenBalance(l.address, to, new(big.Int).Add(toBalance, amt)); err != nil {
		return err
	}
	l.emitter.Emit(events.TokenTransfer{Token: l.address, From: from, To: to, Amount: amt})
	return nil
}

func checkAmount(amount *big.Int) (*big.Int, error) {
	if amount == nil {
		return big.NewInt(0), nil
	}
	if amount.Sign() < 0 {
		return nil, ErrNegativeAmount
	}
	if _, overflow := uint256.FromBig(amount); overflow {
		return nil, ErrOverflow
	}
	return new(big.Int).Set(amount), nil
}

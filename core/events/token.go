package events

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"fixedswap/core/types"
)

const (
	TypeTokenTransfer = "token.transfer"
	TypeTokenApproval = "token.approval"
)

// TokenTransfer is emitted for every balance movement of a ledger token. A
// zero From marks a mint.
type TokenTransfer struct {
	Token  common.Address
	From   common.Address
	To     common.Address
	Amount *big.Int
}

func (TokenTransfer) EventType() string { return TypeTokenTransfer }

func (e TokenTransfer) Event() *types.Event {
	attrs := map[string]string{
		"token":  formatAddress(e.Token),
		"to":     formatAddress(e.To),
		"amount": formatAmount(e.Amount),
	}
	if e.From != (common.Address{}) {
		attrs["from"] = formatAddress(e.From)
	}
	return &types.Event{Type: TypeTokenTransfer, Attributes: attrs}
}

// TokenApproval records an allowance update.
type TokenApproval struct {
	Token   common.Address
	Owner   common.Address
	Spender common.Address
	Amount  *big.Int
}

func (TokenApproval) EventType() string { return TypeTokenApproval }

func (e TokenApproval) Event() *types.Event {
	return &types.Event{
		Type: TypeTokenApproval,
		Attributes: map[string]string{
			"token":   formatAddress(e.Token),
			"owner":   formatAddress(e.Owner),
			"spender": formatAddress(e.Spender),
			"amount":  formatAmount(e.Amount),
		},
	}
}

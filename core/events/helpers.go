package events

import (
	"math/big"
	"strconv"

	"github.com/ethereum/go-ethereum/common"

	"fixedswap/crypto"
)

func formatAmount(v *big.Int) string {
	if v == nil {
		return "0"
	}
	return v.String()
}

func formatAddress(addr common.Address) string {
	return crypto.FromCommon(addr).String()
}

func intToString(v int64) string {
	return strconv.FormatInt(v, 10)
}

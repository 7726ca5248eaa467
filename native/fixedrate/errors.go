package fixedrate

import (
	"errors"
	"fmt"

	"fixedswap/native/token"
)

var (
	// ErrNotFound is returned for operations on an unregistered exchange id.
	ErrNotFound = errors.New("fixedrate: exchange not found")
	// ErrUnauthorized is returned when the caller may not change the exchange.
	ErrUnauthorized = errors.New("fixedrate: unauthorized")
	// ErrInvalidArgument is the root of every malformed-request error.
	ErrInvalidArgument = errors.New("fixedrate: invalid argument")
	// ErrInactive is returned when trading on a deactivated exchange.
	ErrInactive = errors.New("fixedrate: exchange inactive")
	// ErrInsufficientLiquidity is returned when the engine holds less than a
	// payout or withdrawal requires.
	ErrInsufficientLiquidity = errors.New("fixedrate: insufficient liquidity")
	// ErrInsufficientAllowanceOrBalance aliases the token rejection root so
	// callers can match transfer failures without importing the token package.
	ErrInsufficientAllowanceOrBalance = token.ErrTransferRejected

	ErrInvalidAmount   = fmt.Errorf("%w: amount must be positive", ErrInvalidArgument)
	ErrInvalidRate     = fmt.Errorf("%w: rate must be a non-negative 256-bit value", ErrInvalidArgument)
	ErrInvalidFee      = fmt.Errorf("%w: fee rate out of range", ErrInvalidArgument)
	ErrInvalidDecimals = fmt.Errorf("%w: decimals out of range", ErrInvalidArgument)
	ErrSameAsset       = fmt.Errorf("%w: data and base asset must differ", ErrInvalidArgument)
	ErrZeroAddress     = fmt.Errorf("%w: zero address", ErrInvalidArgument)
	ErrEngineCollector = fmt.Errorf("%w: fee collector must not be the engine account", ErrInvalidArgument)

	// ErrExchangeExists is returned when an active exchange already serves the
	// (data asset, base asset, owner) triple.
	ErrExchangeExists = errors.New("fixedrate: active exchange exists for pair")
	// ErrCreatorNotAllowed is returned when the creator policy rejects a creation.
	ErrCreatorNotAllowed = fmt.Errorf("%w: creator not allowed", ErrUnauthorized)

	errNilState   = errors.New("fixedrate engine: state not configured")
	errNilTokens  = errors.New("fixedrate engine: token provider not configured")
	errNilAddress = errors.New("fixedrate engine: engine address not configured")
)

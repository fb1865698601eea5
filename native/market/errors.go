package market

import "errors"

var (
	// Validation failures: caller-fixable, never retried automatically.
	ErrInvalidPrice = errors.New("market: price must be positive")
	ErrNotOwner     = errors.New("market: caller does not hold the asset")

	// Authorization failures: fatal to the request.
	ErrUnauthorized = errors.New("market: caller is not the listing owner")

	// State conflicts: typically a race lost to another transaction. Safe
	// to retry after re-reading current state.
	ErrAlreadyListed = errors.New("market: asset already listed")
	ErrNotFound      = errors.New("market: listing not found")

	// Settlement failures: the underlying transfer cannot complete.
	ErrInsufficientFunds = errors.New("market: insufficient balance")
	ErrAssetUnavailable  = errors.New("market: asset not held by vault")

	errNilState = errors.New("market engine: state not configured")
)

// IsValidation reports whether err belongs to the validation class.
func IsValidation(err error) bool {
	return errors.Is(err, ErrInvalidPrice) || errors.Is(err, ErrNotOwner)
}

// IsAuthorization reports whether err belongs to the authorization class.
func IsAuthorization(err error) bool {
	return errors.Is(err, ErrUnauthorized)
}

// IsStateConflict reports whether err belongs to the state-conflict class.
func IsStateConflict(err error) bool {
	return errors.Is(err, ErrAlreadyListed) || errors.Is(err, ErrNotFound)
}

// IsSettlement reports whether err belongs to the settlement class.
func IsSettlement(err error) bool {
	return errors.Is(err, ErrInsufficientFunds) || errors.Is(err, ErrAssetUnavailable)
}

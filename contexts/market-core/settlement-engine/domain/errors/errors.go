package errors

import "errors"

var (
	ErrItemNotFound        = errors.New("item does not exist")
	ErrNotListed           = errors.New("item is not listed")
	ErrAlreadyListed       = errors.New("token already has an active listing")
	ErrNotItemOwner        = errors.New("caller is not item owner")
	ErrNotTokenOwner       = errors.New("caller does not own token")
	ErrTokenNotFound       = errors.New("token does not exist")
	ErrInvalidPrice        = errors.New("price must be positive")
	ErrIncorrectPayment    = errors.New("payment does not match listing price")
	ErrFeeExceedsPrice     = errors.New("fee and royalty exceed sale price")
	ErrInvalidBuyer        = errors.New("buyer must differ from seller")
	ErrNotMarketplaceOwner = errors.New("caller is not the marketplace owner")
	ErrInvalidFee          = errors.New("marketplace fee basis points out of range")
	ErrIdempotencyConflict = errors.New("idempotency key reused with different request")

	ErrRepositoryInvariantBroke = errors.New("repository invariant violated")
)

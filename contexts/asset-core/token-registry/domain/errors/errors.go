package errors

import "errors"

var (
	ErrTokenNotFound         = errors.New("token does not exist")
	ErrZeroAddress           = errors.New("zero address is not allowed")
	ErrInvalidRoyalty        = errors.New("royalty basis points out of range")
	ErrInvalidMetadataURI    = errors.New("metadata uri is required")
	ErrNotTokenOwner         = errors.New("caller does not own token")
	ErrNotCreator            = errors.New("caller is not the token creator")
	ErrNotApproved           = errors.New("caller is not owner nor approved")
	ErrNotWhitelisted        = errors.New("caller is not a whitelisted minter")
	ErrNotRegistryOwner      = errors.New("caller is not the registry owner")
	ErrNotSettlementOperator = errors.New("caller is not the settlement operator")
	ErrSelfApproval          = errors.New("approval to current owner")

	ErrRepositoryInvariantBroke = errors.New("repository invariant violated")
)

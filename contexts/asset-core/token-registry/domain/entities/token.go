package entities

import "time"

const (
	// MaxRoyaltyBasisPoints caps royalty terms at 100%.
	MaxRoyaltyBasisPoints int64 = 10000
)

// Token is a uniquely identified, creator-attributed asset.
// IDs are assigned sequentially by the repository and never reused, even
// after a burn.
type Token struct {
	ID                 int64
	Owner              string
	Creator            string
	MetadataURI        string
	RoyaltyReceiver    string
	RoyaltyBasisPoints int64
	Burned             bool
	MintedAt           time.Time
	UpdatedAt          time.Time
}

// RoyaltyAmount computes the creator royalty for a sale price, truncated
// toward zero. The quotient/remainder form never overflows int64, which the
// direct product does for large prices.
func (t Token) RoyaltyAmount(salePrice int64) int64 {
	if salePrice <= 0 {
		return 0
	}
	return salePrice/10000*t.RoyaltyBasisPoints + salePrice%10000*t.RoyaltyBasisPoints/10000
}

// IsZeroAddress reports whether an address value is the null address.
// Addresses are opaque strings; the empty string is the only null form.
func IsZeroAddress(address string) bool {
	return address == ""
}

// ValidRoyaltyBasisPoints bounds royalty terms to [0, 10000].
func ValidRoyaltyBasisPoints(bps int64) bool {
	return bps >= 0 && bps <= MaxRoyaltyBasisPoints
}

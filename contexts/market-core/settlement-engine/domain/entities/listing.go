package entities

import "time"

// Listing is a fixed-price offer to sell one registry token. Item ids are
// sequential and never reused; a closed listing stays closed and a new sale
// of the same token requires a new listing.
type Listing struct {
	ItemID    int64
	TokenID   int64
	Seller    string
	Price     int64
	Listed    bool
	Buyer     string
	ListedAt  time.Time
	UpdatedAt time.Time
}

// ValidPrice reports whether a listing or update price is acceptable.
func ValidPrice(price int64) bool {
	return price > 0
}

// ValidFeeBasisPoints bounds the marketplace fee to [0, 10000].
func ValidFeeBasisPoints(bps int64) bool {
	return bps >= 0 && bps <= 10000
}

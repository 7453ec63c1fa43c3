package services

import (
	"arkiv/contexts/market-core/settlement-engine/domain/entities"
	domainerrors "arkiv/contexts/market-core/settlement-engine/domain/errors"
)

// Split is the three-way division of a sale price. The parts always sum to
// the price exactly: fee and royalty truncate toward zero and the seller
// takes the remainder.
type Split struct {
	Fee            int64
	Royalty        int64
	SellerProceeds int64
}

// ComputeSplit derives the payout split for a sale. The royalty amount is
// computed by the registry; only the marketplace fee is derived here. A
// combined fee and royalty above the price fails instead of producing a
// negative remainder.
func ComputeSplit(price int64, feeBasisPoints int64, royaltyAmount int64) (Split, error) {
	if price <= 0 {
		return Split{}, domainerrors.ErrInvalidPrice
	}
	if royaltyAmount < 0 || !entities.ValidFeeBasisPoints(feeBasisPoints) {
		return Split{}, domainerrors.ErrRepositoryInvariantBroke
	}

	fee := basisPointsShare(price, feeBasisPoints)
	proceeds := price - fee - royaltyAmount
	if proceeds < 0 {
		return Split{}, domainerrors.ErrFeeExceedsPrice
	}
	return Split{
		Fee:            fee,
		Royalty:        royaltyAmount,
		SellerProceeds: proceeds,
	}, nil
}

// basisPointsShare is floor(amount*bps/10000) computed without overflowing
// int64. amount*bps alone overflows for prices above ~9.2e14 at high bps.
func basisPointsShare(amount int64, bps int64) int64 {
	return amount/10000*bps + amount%10000*bps/10000
}

package httpadapter

import (
	"context"
	"log/slog"
	"time"

	"arkiv/contexts/market-core/settlement-engine/application"
	"arkiv/contexts/market-core/settlement-engine/domain/entities"
	httptransport "arkiv/contexts/market-core/settlement-engine/transport/http"
)

type Handler struct {
	Service *application.Service
	Logger  *slog.Logger
}

func (h Handler) ListItemHandler(ctx context.Context, idempotencyKey string, actor string, req httptransport.ListItemRequest) (httptransport.ListingResponse, bool, error) {
	listing, replayed, err := h.Service.ListItem(ctx, idempotencyKey, actor, req.TokenID, req.Price)
	if err != nil {
		return httptransport.ListingResponse{}, false, err
	}
	return httptransport.ListingResponse{
		Status: "success",
		Data:   toDTO(listing),
	}, replayed, nil
}

func (h Handler) PurchaseItemHandler(ctx context.Context, idempotencyKey string, actor string, itemID int64, req httptransport.PurchaseItemRequest) (httptransport.ListingResponse, bool, error) {
	listing, replayed, err := h.Service.PurchaseItem(ctx, idempotencyKey, actor, itemID, req.PaidValue)
	if err != nil {
		return httptransport.ListingResponse{}, false, err
	}
	return httptransport.ListingResponse{
		Status: "success",
		Data:   toDTO(listing),
	}, replayed, nil
}

func (h Handler) DelistItemHandler(ctx context.Context, actor string, itemID int64) (httptransport.AckResponse, error) {
	if err := h.Service.DelistItem(ctx, actor, itemID); err != nil {
		return httptransport.AckResponse{}, err
	}
	return httptransport.AckResponse{Status: "success"}, nil
}

func (h Handler) UpdatePriceHandler(ctx context.Context, actor string, itemID int64, req httptransport.UpdatePriceRequest) (httptransport.ListingResponse, error) {
	listing, err := h.Service.UpdateListingPrice(ctx, actor, itemID, req.Price)
	if err != nil {
		return httptransport.ListingResponse{}, err
	}
	return httptransport.ListingResponse{
		Status: "success",
		Data:   toDTO(listing),
	}, nil
}

func (h Handler) GetItemHandler(ctx context.Context, itemID int64) (httptransport.ListingResponse, error) {
	listing, err := h.Service.GetItemByID(ctx, itemID)
	if err != nil {
		return httptransport.ListingResponse{}, err
	}
	return httptransport.ListingResponse{
		Status: "success",
		Data:   toDTO(listing),
	}, nil
}

func (h Handler) ListActiveItemsHandler(ctx context.Context, cursor string, limit int) (httptransport.ListingPageResponse, error) {
	listings, next, err := h.Service.ListActiveItems(ctx, cursor, limit)
	if err != nil {
		return httptransport.ListingPageResponse{}, err
	}
	resp := httptransport.ListingPageResponse{Status: "success"}
	resp.Data.Items = make([]httptransport.ListingDTO, 0, len(listings))
	for _, listing := range listings {
		resp.Data.Items = append(resp.Data.Items, toDTO(listing))
	}
	resp.Data.NextCursor = next
	return resp, nil
}

func (h Handler) GetFeeHandler(ctx context.Context) (httptransport.FeeResponse, error) {
	bps, err := h.Service.MarketplaceFee(ctx)
	if err != nil {
		return httptransport.FeeResponse{}, err
	}
	resp := httptransport.FeeResponse{Status: "success"}
	resp.Data.FeeBasisPoints = bps
	return resp, nil
}

func (h Handler) SetFeeHandler(ctx context.Context, actor string, req httptransport.SetFeeRequest) (httptransport.AckResponse, error) {
	if err := h.Service.SetMarketplaceFee(ctx, actor, req.FeeBasisPoints); err != nil {
		return httptransport.AckResponse{}, err
	}
	return httptransport.AckResponse{Status: "success"}, nil
}

func toDTO(listing entities.Listing) httptransport.ListingDTO {
	return httptransport.ListingDTO{
		ItemID:    listing.ItemID,
		TokenID:   listing.TokenID,
		Seller:    listing.Seller,
		Price:     listing.Price,
		Listed:    listing.Listed,
		Buyer:     listing.Buyer,
		ListedAt:  listing.ListedAt.UTC().Format(time.RFC3339),
		UpdatedAt: listing.UpdatedAt.UTC().Format(time.RFC3339),
	}
}

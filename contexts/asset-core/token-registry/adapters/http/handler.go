package httpadapter

import (
	"context"
	"log/slog"
	"time"

	"arkiv/contexts/asset-core/token-registry/application"
	"arkiv/contexts/asset-core/token-registry/domain/entities"
	httptransport "arkiv/contexts/asset-core/token-registry/transport/http"
)

type Handler struct {
	Service application.Service
	Logger  *slog.Logger
}

func (h Handler) MintTokenHandler(ctx context.Context, actor string, req httptransport.MintTokenRequest) (httptransport.TokenResponse, error) {
	token, err := h.Service.Mint(ctx, actor, application.MintInput{
		To:                 req.To,
		MetadataURI:        req.MetadataURI,
		RoyaltyReceiver:    req.RoyaltyReceiver,
		RoyaltyBasisPoints: req.RoyaltyBasisPoints,
	})
	if err != nil {
		return httptransport.TokenResponse{}, err
	}
	return httptransport.TokenResponse{
		Status: "success",
		Data:   toDTO(token),
	}, nil
}

func (h Handler) GetTokenHandler(ctx context.Context, tokenID int64) (httptransport.TokenResponse, error) {
	token, err := h.Service.GetToken(ctx, tokenID)
	if err != nil {
		return httptransport.TokenResponse{}, err
	}
	return httptransport.TokenResponse{
		Status: "success",
		Data:   toDTO(token),
	}, nil
}

func (h Handler) TransferTokenHandler(ctx context.Context, actor string, tokenID int64, req httptransport.TransferTokenRequest) (httptransport.TokenResponse, error) {
	if err := h.Service.TransferToken(ctx, actor, req.From, req.To, tokenID); err != nil {
		return httptransport.TokenResponse{}, err
	}
	return h.GetTokenHandler(ctx, tokenID)
}

func (h Handler) BurnTokenHandler(ctx context.Context, actor string, tokenID int64) (httptransport.AckResponse, error) {
	if err := h.Service.Burn(ctx, actor, tokenID); err != nil {
		return httptransport.AckResponse{}, err
	}
	return httptransport.AckResponse{Status: "success"}, nil
}

func (h Handler) UpdateMetadataHandler(ctx context.Context, actor string, tokenID int64, req httptransport.UpdateMetadataRequest) (httptransport.TokenResponse, error) {
	if err := h.Service.UpdateTokenMetadata(ctx, actor, tokenID, req.MetadataURI); err != nil {
		return httptransport.TokenResponse{}, err
	}
	return h.GetTokenHandler(ctx, tokenID)
}

func (h Handler) RoyaltyInfoHandler(ctx context.Context, tokenID int64, salePrice int64) (httptransport.RoyaltyInfoResponse, error) {
	receiver, amount, err := h.Service.RoyaltyInfo(ctx, tokenID, salePrice)
	if err != nil {
		return httptransport.RoyaltyInfoResponse{}, err
	}
	resp := httptransport.RoyaltyInfoResponse{Status: "success"}
	resp.Data.Receiver = receiver
	resp.Data.Amount = amount
	return resp, nil
}

func (h Handler) ApproveHandler(ctx context.Context, actor string, tokenID int64, req httptransport.ApproveRequest) (httptransport.AckResponse, error) {
	if err := h.Service.Approve(ctx, actor, req.Approved, tokenID); err != nil {
		return httptransport.AckResponse{}, err
	}
	return httptransport.AckResponse{Status: "success"}, nil
}

func (h Handler) SetOperatorApprovalHandler(ctx context.Context, actor string, req httptransport.OperatorApprovalRequest) (httptransport.AckResponse, error) {
	if err := h.Service.SetApprovalForAll(ctx, actor, req.Operator, req.Approved); err != nil {
		return httptransport.AckResponse{}, err
	}
	return httptransport.AckResponse{Status: "success"}, nil
}

func (h Handler) BalanceHandler(ctx context.Context, address string) (httptransport.BalanceResponse, error) {
	balance, err := h.Service.BalanceOf(ctx, address)
	if err != nil {
		return httptransport.BalanceResponse{}, err
	}
	resp := httptransport.BalanceResponse{Status: "success"}
	resp.Data.Address = address
	resp.Data.Balance = balance
	return resp, nil
}

func (h Handler) AddToWhitelistHandler(ctx context.Context, actor string, req httptransport.WhitelistRequest) (httptransport.AckResponse, error) {
	if err := h.Service.AddToWhitelist(ctx, actor, req.Address); err != nil {
		return httptransport.AckResponse{}, err
	}
	return httptransport.AckResponse{Status: "success"}, nil
}

func (h Handler) RemoveFromWhitelistHandler(ctx context.Context, actor string, address string) (httptransport.AckResponse, error) {
	if err := h.Service.RemoveFromWhitelist(ctx, actor, address); err != nil {
		return httptransport.AckResponse{}, err
	}
	return httptransport.AckResponse{Status: "success"}, nil
}

func toDTO(token entities.Token) httptransport.TokenDTO {
	return httptransport.TokenDTO{
		TokenID:            token.ID,
		Owner:              token.Owner,
		Creator:            token.Creator,
		MetadataURI:        token.MetadataURI,
		RoyaltyReceiver:    token.RoyaltyReceiver,
		RoyaltyBasisPoints: token.RoyaltyBasisPoints,
		MintedAt:           token.MintedAt.UTC().Format(time.RFC3339),
		UpdatedAt:          token.UpdatedAt.UTC().Format(time.RFC3339),
	}
}

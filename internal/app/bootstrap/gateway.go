package bootstrap

import (
	"context"
	"errors"

	registryapp "arkiv/contexts/asset-core/token-registry/application"
	registryerrors "arkiv/contexts/asset-core/token-registry/domain/errors"
	marketerrors "arkiv/contexts/market-core/settlement-engine/domain/errors"
	marketports "arkiv/contexts/market-core/settlement-engine/ports"
)

// RegistryGateway adapts the token registry service to the settlement
// engine's registry port. Cross-context calls go through here so the
// settlement module never imports registry packages directly, and registry
// sentinels are translated into settlement sentinels at the boundary.
type RegistryGateway struct {
	Registry registryapp.Service
}

func (g RegistryGateway) OwnerOf(ctx context.Context, tokenID int64) (string, error) {
	owner, err := g.Registry.OwnerOf(ctx, tokenID)
	if err != nil {
		return "", translateRegistryError(err)
	}
	return owner, nil
}

func (g RegistryGateway) RoyaltyInfo(ctx context.Context, tokenID int64, salePrice int64) (string, int64, error) {
	receiver, amount, err := g.Registry.RoyaltyInfo(ctx, tokenID, salePrice)
	if err != nil {
		return "", 0, translateRegistryError(err)
	}
	return receiver, amount, nil
}

func (g RegistryGateway) TransferToken(ctx context.Context, actor string, from string, to string, tokenID int64) error {
	if err := g.Registry.TransferToken(ctx, actor, from, to, tokenID); err != nil {
		return translateRegistryError(err)
	}
	return nil
}

func (g RegistryGateway) RollbackTransfer(ctx context.Context, actor string, tokenID int64, to string) error {
	if err := g.Registry.RollbackTransfer(ctx, actor, tokenID, to); err != nil {
		return translateRegistryError(err)
	}
	return nil
}

func translateRegistryError(err error) error {
	switch {
	case errors.Is(err, registryerrors.ErrTokenNotFound):
		return marketerrors.ErrTokenNotFound
	case errors.Is(err, registryerrors.ErrNotTokenOwner):
		return marketerrors.ErrNotTokenOwner
	default:
		return err
	}
}

var _ marketports.TokenRegistry = RegistryGateway{}

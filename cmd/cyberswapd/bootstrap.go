package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"cyberswap/config"
	"cyberswap/core"
	"cyberswap/core/state"
	"cyberswap/native/royalty"
)

// bootstrap instantiates the marketplace from genesis on first start and
// seeds the royalty registry. A host that already holds contracts is left
// untouched.
func bootstrap(ctx context.Context, host *core.Host, genesis *config.Genesis, logger *slog.Logger) (*state.Contracts, error) {
	if contracts := host.Contracts(); contracts != nil {
		logger.Info("bootstrap: marketplace already instantiated",
			slog.String("market", contracts.Market),
			slog.String("registry", contracts.Registry))
		return contracts, nil
	}
	if genesis == nil {
		return nil, fmt.Errorf("bootstrap: genesis required for first start")
	}
	contracts, err := host.Instantiate(ctx, genesis.Instantiator, genesis.InstantiateMsg())
	if err != nil {
		return nil, fmt.Errorf("bootstrap: instantiate: %w", err)
	}
	for _, seed := range genesis.Royalties {
		raw, err := json.Marshal(royalty.ExecuteMsg{SetRoyalty: &royalty.SetRoyaltyMsg{
			Collection: seed.Collection,
			Payout:     seed.Payout,
			Bps:        seed.Bps,
		}})
		if err != nil {
			return nil, err
		}
		if _, err := host.Execute(ctx, contracts.Registry, genesis.RoyaltyAdmin(), nil, raw); err != nil {
			return nil, fmt.Errorf("bootstrap: seed royalty for %s: %w", seed.Collection, err)
		}
	}
	logger.Info("bootstrap: marketplace instantiated",
		slog.String("market", contracts.Market),
		slog.String("registry", contracts.Registry),
		slog.Int("royalties", len(genesis.Royalties)))
	return contracts, nil
}

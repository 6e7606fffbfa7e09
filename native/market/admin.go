package market

import (
	"fmt"
	"strings"
)

// FeeCycle rotates the active fee asset once the cooldown has elapsed.
func (e *Engine) FeeCycle(env Env, sender string) (*Response, error) {
	cfg, err := e.loadConfig()
	if err != nil {
		return nil, err
	}
	denom, err := e.loadFeeDenom()
	if err != nil {
		return nil, err
	}
	if env.Height < denom.NextChangeBlock {
		return nil, fmt.Errorf("%w: height %d, next change at %d", ErrCooldown, env.Height, denom.NextChangeBlock)
	}
	next := &FeeDenom{Kind: denom.Kind.Flip(), NextChangeBlock: env.Height + RotationBlocks}
	if err := e.state.PutMarketFeeDenom(next); err != nil {
		return nil, err
	}
	e.emit(NewFeeCycledEvent(*next, cfg.FeeAssets.For(next.Kind)))
	return &Response{Action: "fee_cycle"}, nil
}

// UpdateAllowListMsg replaces the allow-lists that are present.
type UpdateAllowListMsg struct {
	Natives *[]AllowedAsset `json:"natives,omitempty"`
	Tokens  *[]AllowedAsset `json:"tokens,omitempty"`
	Nfts    *[]AllowedAsset `json:"nfts,omitempty"`
}

// UpdateAllowList lets the admin replace one or more ask allow-lists.
// Existing listings keep their ask.
func (e *Engine) UpdateAllowList(env Env, sender string, msg UpdateAllowListMsg) (*Response, error) {
	cfg, err := e.adminConfig(sender)
	if err != nil {
		return nil, err
	}
	if msg.Natives != nil {
		if cfg.Natives, err = normalizeNatives(*msg.Natives); err != nil {
			return nil, err
		}
	}
	if msg.Tokens != nil {
		if cfg.Tokens, err = e.normalizeContracts("tokens", *msg.Tokens); err != nil {
			return nil, err
		}
	}
	if msg.Nfts != nil {
		if cfg.Nfts, err = e.normalizeContracts("nfts", *msg.Nfts); err != nil {
			return nil, err
		}
	}
	if err := e.state.PutMarketConfig(cfg); err != nil {
		return nil, err
	}
	e.emit(NewConfigUpdatedEvent(cfg, "allow_list"))
	return &Response{Action: "update_allow_list"}, nil
}

// UpdateFeeConfigMsg changes the protocol fee rate or its collector.
type UpdateFeeConfigMsg struct {
	FeeBps       *uint32 `json:"fee_bps,omitempty"`
	FeeCollector *string `json:"fee_collector,omitempty"`
}

func (e *Engine) UpdateFeeConfig(env Env, sender string, msg UpdateFeeConfigMsg) (*Response, error) {
	cfg, err := e.adminConfig(sender)
	if err != nil {
		return nil, err
	}
	if msg.FeeBps != nil {
		if *msg.FeeBps > BpsDenominator {
			return nil, fmt.Errorf("%w: fee_bps %d exceeds %d", ErrInvalidMessage, *msg.FeeBps, BpsDenominator)
		}
		cfg.FeeBps = *msg.FeeBps
	}
	if msg.FeeCollector != nil {
		collector, err := e.addrs.Validate(*msg.FeeCollector)
		if err != nil {
			return nil, fmt.Errorf("%w: fee_collector: %v", ErrInvalidMessage, err)
		}
		cfg.FeeCollector = collector
	}
	if err := e.state.PutMarketConfig(cfg); err != nil {
		return nil, err
	}
	e.emit(NewConfigUpdatedEvent(cfg, "fee"))
	return &Response{Action: "update_fee_config"}, nil
}

func (e *Engine) adminConfig(sender string) (*Config, error) {
	cfg, err := e.loadConfig()
	if err != nil {
		return nil, err
	}
	if cfg.Admin != sender {
		return nil, fmt.Errorf("%w: %s is not the marketplace admin", ErrUnauthorized, sender)
	}
	return cfg, nil
}

func normalizeNatives(list []AllowedAsset) ([]AllowedAsset, error) {
	out := make([]AllowedAsset, 0, len(list))
	seen := make(map[string]struct{}, len(list))
	for _, entry := range list {
		id := strings.TrimSpace(entry.ID)
		if id == "" {
			return nil, fmt.Errorf("%w: natives: entry %q without denom", ErrInvalidMessage, entry.Name)
		}
		if _, dup := seen[id]; dup {
			return nil, fmt.Errorf("%w: natives: duplicate %s", ErrInvalidMessage, id)
		}
		seen[id] = struct{}{}
		out = append(out, AllowedAsset{Name: strings.TrimSpace(entry.Name), ID: id})
	}
	return out, nil
}

func (e *Engine) normalizeContracts(field string, list []AllowedAsset) ([]AllowedAsset, error) {
	out := make([]AllowedAsset, 0, len(list))
	seen := make(map[string]struct{}, len(list))
	for _, entry := range list {
		addr, err := e.addrs.Validate(entry.ID)
		if err != nil {
			return nil, fmt.Errorf("%w: %s: %q: %v", ErrInvalidMessage, field, entry.ID, err)
		}
		if _, dup := seen[addr]; dup {
			return nil, fmt.Errorf("%w: %s: duplicate %s", ErrInvalidMessage, field, addr)
		}
		seen[addr] = struct{}{}
		out = append(out, AllowedAsset{Name: strings.TrimSpace(entry.Name), ID: addr})
	}
	return out, nil
}

func (e *Engine) normalizeFeeAsset(asset FeeAsset) (FeeAsset, error) {
	native := strings.TrimSpace(asset.Native)
	token := strings.TrimSpace(asset.Cw20)
	switch {
	case native != "" && token != "":
		return FeeAsset{}, fmt.Errorf("%w: fee asset sets both native and cw20", ErrInvalidMessage)
	case token != "":
		addr, err := e.addrs.Validate(token)
		if err != nil {
			return FeeAsset{}, fmt.Errorf("%w: fee asset: %v", ErrInvalidMessage, err)
		}
		return FeeAsset{Cw20: addr}, nil
	default:
		return FeeAsset{Native: native}, nil
	}
}

package market

import "fmt"

// RoyaltyQuerier resolves the royalty terms a registry contract holds for an
// NFT collection. A nil info means the collection pays no royalty.
type RoyaltyQuerier interface {
	RoyaltyInfo(registry, collection string) (*RoyaltyInfo, error)
}

// royaltySharesFor queries the registry once per distinct NFT collection in
// sold and returns the non-zero shares in first-seen order.
func (e *Engine) royaltySharesFor(sold GenericBalance) ([]RoyaltyShare, error) {
	if e.royalties == nil || len(sold.Nfts) == 0 {
		return nil, nil
	}
	registry, ok, err := e.state.RoyaltyRegistryAddress()
	if err != nil {
		return nil, err
	}
	if !ok || registry == "" {
		return nil, nil
	}
	cache := make(map[string]*RoyaltyInfo, len(sold.Nfts))
	var shares []RoyaltyShare
	for _, nft := range sold.Nfts {
		if _, seen := cache[nft.Contract]; seen {
			continue
		}
		info, err := e.royalties.RoyaltyInfo(registry, nft.Contract)
		if err != nil {
			return nil, fmt.Errorf("royalty lookup for %s: %w", nft.Contract, err)
		}
		cache[nft.Contract] = info
		if info == nil || info.Bps == 0 || info.Payout == "" {
			continue
		}
		if info.Bps > BpsDenominator {
			return nil, fmt.Errorf("%w: royalty for %s is %d bps", ErrInvalidBalance, nft.Contract, info.Bps)
		}
		shares = append(shares, RoyaltyShare{Collection: nft.Contract, Payee: info.Payout, Bps: info.Bps})
	}
	return shares, nil
}

// capRoyaltyShares trims shares in order so that their combined bps stay
// within BpsDenominator. Terms raised after a purchase would otherwise leave
// the closed listing unsettleable.
func capRoyaltyShares(shares []RoyaltyShare) []RoyaltyShare {
	budget := uint32(BpsDenominator)
	capped := make([]RoyaltyShare, 0, len(shares))
	for _, share := range shares {
		if budget == 0 {
			break
		}
		if share.Bps > budget {
			share.Bps = budget
		}
		budget -= share.Bps
		capped = append(capped, share)
	}
	return capped
}

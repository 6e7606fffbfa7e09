package market

import (
	"fmt"
	"strings"
)

// AddressValidator resolves untrusted contract addresses into their canonical
// form. The host's bech32 codec satisfies it.
type AddressValidator interface {
	Validate(addr string) (string, error)
}

// Len returns the total number of entries across all three asset classes.
func (b GenericBalance) Len() int {
	return len(b.Native) + len(b.Cw20) + len(b.Nfts)
}

// IsEmpty reports whether the bundle holds no entries.
func (b GenericBalance) IsEmpty() bool { return b.Len() == 0 }

// Clone returns a deep copy of the bundle. Empty sequences are normalised to
// nil.
func (b GenericBalance) Clone() GenericBalance {
	var out GenericBalance
	if len(b.Native) > 0 {
		out.Native = append([]NativeBalance(nil), b.Native...)
	}
	if len(b.Cw20) > 0 {
		out.Cw20 = append([]TokenBalance(nil), b.Cw20...)
	}
	if len(b.Nfts) > 0 {
		out.Nfts = append([]NFT(nil), b.Nfts...)
	}
	return out
}

// ValidateBalance checks an untrusted bundle and returns it with every
// contract address in canonical form.
func ValidateBalance(untrusted GenericBalance, addrs AddressValidator) (GenericBalance, error) {
	if addrs == nil {
		return GenericBalance{}, fmt.Errorf("market: address validator not configured")
	}
	var out GenericBalance

	denoms := make(map[string]struct{}, len(untrusted.Native))
	for _, coin := range untrusted.Native {
		denom := strings.TrimSpace(coin.Denom)
		if denom == "" {
			return GenericBalance{}, fmt.Errorf("%w: native entry without denom", ErrInvalidBalance)
		}
		if coin.Amount.IsZero() {
			return GenericBalance{}, fmt.Errorf("%w: zero amount for native %s", ErrInvalidBalance, denom)
		}
		if _, seen := denoms[denom]; seen {
			return GenericBalance{}, fmt.Errorf("%w: duplicate native %s", ErrInvalidBalance, denom)
		}
		denoms[denom] = struct{}{}
		out.Native = append(out.Native, NativeBalance{Denom: denom, Amount: coin.Amount})
	}

	tokens := make(map[string]struct{}, len(untrusted.Cw20))
	for _, token := range untrusted.Cw20 {
		addr, err := addrs.Validate(token.Address)
		if err != nil {
			return GenericBalance{}, fmt.Errorf("%w: cw20 address %q: %v", ErrInvalidBalance, token.Address, err)
		}
		if token.Amount.IsZero() {
			return GenericBalance{}, fmt.Errorf("%w: zero amount for cw20 %s", ErrInvalidBalance, addr)
		}
		if _, seen := tokens[addr]; seen {
			return GenericBalance{}, fmt.Errorf("%w: duplicate cw20 %s", ErrInvalidBalance, addr)
		}
		tokens[addr] = struct{}{}
		out.Cw20 = append(out.Cw20, TokenBalance{Address: addr, Amount: token.Amount})
	}

	nfts := make(map[NFT]struct{}, len(untrusted.Nfts))
	for _, nft := range untrusted.Nfts {
		addr, err := addrs.Validate(nft.Contract)
		if err != nil {
			return GenericBalance{}, fmt.Errorf("%w: nft contract %q: %v", ErrInvalidBalance, nft.Contract, err)
		}
		if nft.TokenID == "" {
			return GenericBalance{}, fmt.Errorf("%w: nft %s without token id", ErrInvalidBalance, addr)
		}
		key := NFT{Contract: addr, TokenID: nft.TokenID}
		if _, seen := nfts[key]; seen {
			return GenericBalance{}, fmt.Errorf("%w: duplicate nft %s/%s", ErrInvalidBalance, addr, nft.TokenID)
		}
		nfts[key] = struct{}{}
		out.Nfts = append(out.Nfts, key)
	}

	if err := checkSize(out); err != nil {
		return GenericBalance{}, err
	}
	return out, nil
}

func checkSize(b GenericBalance) error {
	n := b.Len()
	if n == 0 {
		return fmt.Errorf("%w: empty bundle", ErrInvalidBalance)
	}
	if n > MaxNumAssets {
		return fmt.Errorf("%w: %d entries exceeds limit of %d", ErrInvalidBalance, n, MaxNumAssets)
	}
	return nil
}

// Merge adds a single delivery into the bundle in place. Fungible entries
// collapse by denom or contract; NFTs are appended without a duplicate check.
func (b *GenericBalance) Merge(d Delivery) error {
	switch d.Kind {
	case DeliveryNative:
		for _, coin := range d.Native {
			if err := b.addNative(coin); err != nil {
				return err
			}
		}
	case DeliveryToken:
		for i := range b.Cw20 {
			if b.Cw20[i].Address == d.Token.Address {
				sum, err := b.Cw20[i].Amount.Add(d.Token.Amount)
				if err != nil {
					return fmt.Errorf("%w: cw20 %s: %v", ErrInvalidBalance, d.Token.Address, err)
				}
				b.Cw20[i].Amount = sum
				return nil
			}
		}
		b.Cw20 = append(b.Cw20, d.Token)
	case DeliveryNft:
		b.Nfts = append(b.Nfts, d.Nft)
	}
	return nil
}

func (b *GenericBalance) addNative(coin NativeBalance) error {
	for i := range b.Native {
		if b.Native[i].Denom == coin.Denom {
			sum, err := b.Native[i].Amount.Add(coin.Amount)
			if err != nil {
				return fmt.Errorf("%w: native %s: %v", ErrInvalidBalance, coin.Denom, err)
			}
			b.Native[i].Amount = sum
			return nil
		}
	}
	b.Native = append(b.Native, coin)
	return nil
}

// Equal reports whether a and b hold the same multiset of natives, cw20
// entries and NFTs. Ordering is ignored.
func Equal(a, b GenericBalance) bool {
	if len(a.Native) != len(b.Native) || len(a.Cw20) != len(b.Cw20) || len(a.Nfts) != len(b.Nfts) {
		return false
	}
	counts := make(map[string]int, a.Len())
	for _, c := range a.Native {
		counts["n\x00"+c.Denom+"\x00"+c.Amount.String()]++
	}
	for _, t := range a.Cw20 {
		counts["t\x00"+t.Address+"\x00"+t.Amount.String()]++
	}
	for _, n := range a.Nfts {
		counts["c\x00"+n.Contract+"\x00"+n.TokenID]++
	}
	for _, c := range b.Native {
		if !take(counts, "n\x00"+c.Denom+"\x00"+c.Amount.String()) {
			return false
		}
	}
	for _, t := range b.Cw20 {
		if !take(counts, "t\x00"+t.Address+"\x00"+t.Amount.String()) {
			return false
		}
	}
	for _, n := range b.Nfts {
		if !take(counts, "c\x00"+n.Contract+"\x00"+n.TokenID) {
			return false
		}
	}
	return true
}

func take(counts map[string]int, key string) bool {
	if counts[key] == 0 {
		return false
	}
	counts[key]--
	return true
}

// SplitRoyalty divides the fungible entries of bundle between the seller and
// a royalty payee. The royalty share of each entry is floor(amount*bps/10000);
// rounding dust and every NFT stay with the seller.
func SplitRoyalty(bundle GenericBalance, bps uint32, payee string) (toSeller, toRoyalty GenericBalance) {
	if bps == 0 || payee == "" {
		return bundle.Clone(), GenericBalance{}
	}
	seller, shares, err := SplitRoyalties(bundle, []RoyaltyShare{{Payee: payee, Bps: bps}})
	if err != nil || len(shares) == 0 {
		return bundle.Clone(), GenericBalance{}
	}
	return seller, shares[0].Funds
}

// RoyaltyShare is one collection's royalty claim against a sale.
type RoyaltyShare struct {
	Collection string
	Payee      string
	Bps        uint32
}

// RoyaltyPayment is the portion of a sale owed to one royalty payee.
type RoyaltyPayment struct {
	Payee string
	Funds GenericBalance
}

// SplitRoyalties applies every share to each fungible entry of bundle
// independently and returns the seller's remainder together with one payment
// per share that yields a non-empty bundle. The combined bps may not exceed
// 10 000.
func SplitRoyalties(bundle GenericBalance, shares []RoyaltyShare) (GenericBalance, []RoyaltyPayment, error) {
	var total uint64
	for _, share := range shares {
		total += uint64(share.Bps)
	}
	if total > BpsDenominator {
		return GenericBalance{}, nil, fmt.Errorf("%w: combined royalties of %d bps exceed %d", ErrInvalidBalance, total, BpsDenominator)
	}

	seller := GenericBalance{Nfts: append([]NFT(nil), bundle.Nfts...)}
	payments := make([]GenericBalance, len(shares))

	for _, coin := range bundle.Native {
		rest := coin.Amount
		for i, share := range shares {
			if share.Bps == 0 || share.Payee == "" {
				continue
			}
			cut := coin.Amount.MulBps(share.Bps)
			if cut.IsZero() {
				continue
			}
			remaining, err := rest.Sub(cut)
			if err != nil {
				return GenericBalance{}, nil, fmt.Errorf("%w: royalty on %s: %v", ErrInvalidBalance, coin.Denom, err)
			}
			rest = remaining
			payments[i].Native = append(payments[i].Native, NativeBalance{Denom: coin.Denom, Amount: cut})
		}
		if !rest.IsZero() {
			seller.Native = append(seller.Native, NativeBalance{Denom: coin.Denom, Amount: rest})
		}
	}

	for _, token := range bundle.Cw20 {
		rest := token.Amount
		for i, share := range shares {
			if share.Bps == 0 || share.Payee == "" {
				continue
			}
			cut := token.Amount.MulBps(share.Bps)
			if cut.IsZero() {
				continue
			}
			remaining, err := rest.Sub(cut)
			if err != nil {
				return GenericBalance{}, nil, fmt.Errorf("%w: royalty on %s: %v", ErrInvalidBalance, token.Address, err)
			}
			rest = remaining
			payments[i].Cw20 = append(payments[i].Cw20, TokenBalance{Address: token.Address, Amount: cut})
		}
		if !rest.IsZero() {
			seller.Cw20 = append(seller.Cw20, TokenBalance{Address: token.Address, Amount: rest})
		}
	}

	var out []RoyaltyPayment
	for i, share := range shares {
		if payments[i].IsEmpty() {
			continue
		}
		out = append(out, RoyaltyPayment{Payee: share.Payee, Funds: payments[i]})
	}
	return seller, out, nil
}

// TakeFee extracts floor(amount*bps/10000) of asset from bundle. When the
// asset is absent from the bundle the fee is zero and the bundle is returned
// unchanged.
func TakeFee(bundle GenericBalance, asset FeeAsset, bps uint32) (remaining, fee GenericBalance) {
	remaining = bundle.Clone()
	if bps == 0 || asset.IsZero() {
		return remaining, GenericBalance{}
	}
	switch {
	case asset.Native != "":
		for i, coin := range remaining.Native {
			if coin.Denom != asset.Native {
				continue
			}
			cut := coin.Amount.MulBps(bps)
			if cut.IsZero() {
				return remaining, GenericBalance{}
			}
			rest, _ := coin.Amount.Sub(cut)
			fee.Native = []NativeBalance{{Denom: coin.Denom, Amount: cut}}
			if rest.IsZero() {
				remaining.Native = append(remaining.Native[:i], remaining.Native[i+1:]...)
			} else {
				remaining.Native[i].Amount = rest
			}
			return remaining.Clone(), fee
		}
	case asset.Cw20 != "":
		for i, token := range remaining.Cw20 {
			if token.Address != asset.Cw20 {
				continue
			}
			cut := token.Amount.MulBps(bps)
			if cut.IsZero() {
				return remaining, GenericBalance{}
			}
			rest, _ := token.Amount.Sub(cut)
			fee.Cw20 = []TokenBalance{{Address: token.Address, Amount: cut}}
			if rest.IsZero() {
				remaining.Cw20 = append(remaining.Cw20[:i], remaining.Cw20[i+1:]...)
			} else {
				remaining.Cw20[i].Amount = rest
			}
			return remaining.Clone(), fee
		}
	}
	return remaining, GenericBalance{}
}

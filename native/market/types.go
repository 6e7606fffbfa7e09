package market

import (
	"encoding/json"
	"fmt"
	"strings"
)

const (
	// MaxNumAssets caps the number of entries in a single bundle so that
	// validation, comparison and refund construction stay gas-bounded.
	MaxNumAssets = 10
	// PageSize is the number of entries returned per query page.
	PageSize = 20
	// MinFinalizeSeconds is the shortest purchase window a listing may open.
	MinFinalizeSeconds int64 = 600
	// RotationBlocks is the fee-denomination cooldown (one week of 6s blocks).
	RotationBlocks uint64 = 100_800
	// BpsDenominator expresses basis points.
	BpsDenominator = 10_000
	// DefaultFeeBps is the protocol fee applied when instantiation omits one.
	DefaultFeeBps uint32 = 50
)

// ListingStatus captures the listing lifecycle.
type ListingStatus uint8

const (
	StatusBeingPrepared ListingStatus = iota + 1
	StatusFinalizedReady
	StatusClosed
)

// Valid reports whether the status value is within the supported range.
func (s ListingStatus) Valid() bool {
	switch s {
	case StatusBeingPrepared, StatusFinalizedReady, StatusClosed:
		return true
	default:
		return false
	}
}

func (s ListingStatus) String() string {
	switch s {
	case StatusBeingPrepared:
		return "being_prepared"
	case StatusFinalizedReady:
		return "finalized_ready"
	case StatusClosed:
		return "closed"
	default:
		return fmt.Sprintf("status(%d)", uint8(s))
	}
}

func (s ListingStatus) MarshalText() ([]byte, error) {
	if !s.Valid() {
		return nil, fmt.Errorf("invalid listing status %d", uint8(s))
	}
	return []byte(s.String()), nil
}

func (s *ListingStatus) UnmarshalText(text []byte) error {
	switch strings.TrimSpace(string(text)) {
	case "being_prepared":
		*s = StatusBeingPrepared
	case "finalized_ready":
		*s = StatusFinalizedReady
	case "closed":
		*s = StatusClosed
	default:
		return fmt.Errorf("unknown listing status %q", text)
	}
	return nil
}

// NativeBalance is an amount of a chain-native coin.
type NativeBalance struct {
	Denom  string  `json:"denom"`
	Amount Uint128 `json:"amount"`
}

// TokenBalance is an amount of a cw20 token identified by its contract.
type TokenBalance struct {
	Address string  `json:"address"`
	Amount  Uint128 `json:"amount"`
}

// NFT identifies a single cw721 token.
type NFT struct {
	Contract string `json:"contract"`
	TokenID  string `json:"token_id"`
}

// GenericBalance is a bundle of native coins, cw20 tokens and NFTs.
type GenericBalance struct {
	Native []NativeBalance `json:"native"`
	Cw20   []TokenBalance  `json:"cw20"`
	Nfts   []NFT           `json:"nfts"`
}

// MarshalJSON renders absent sequences as empty arrays.
func (b GenericBalance) MarshalJSON() ([]byte, error) {
	type plain GenericBalance
	out := plain(b.Clone())
	if out.Native == nil {
		out.Native = []NativeBalance{}
	}
	if out.Cw20 == nil {
		out.Cw20 = []TokenBalance{}
	}
	if out.Nfts == nil {
		out.Nfts = []NFT{}
	}
	return json.Marshal(out)
}

// Listing is an escrow-backed sell order.
type Listing struct {
	Creator        string         `json:"creator"`
	ID             string         `json:"listing_id"`
	FinalizedTime  *int64         `json:"finalized_time"`
	ExpirationTime *int64         `json:"expiration_time"`
	Status         ListingStatus  `json:"status"`
	Claimant       string         `json:"claimant,omitempty"`
	ForSale        GenericBalance `json:"for_sale"`
	Ask            GenericBalance `json:"ask"`
	// Payout holds the buyer's bucket funds between purchase and settlement.
	Payout           GenericBalance `json:"payout"`
	WhitelistedBuyer string         `json:"whitelisted_buyer,omitempty"`
}

// Clone returns a deep copy of the listing.
func (l *Listing) Clone() *Listing {
	if l == nil {
		return nil
	}
	clone := *l
	if l.FinalizedTime != nil {
		v := *l.FinalizedTime
		clone.FinalizedTime = &v
	}
	if l.ExpirationTime != nil {
		v := *l.ExpirationTime
		clone.ExpirationTime = &v
	}
	clone.ForSale = l.ForSale.Clone()
	clone.Ask = l.Ask.Clone()
	clone.Payout = l.Payout.Clone()
	return &clone
}

// Expired reports whether the purchase window has closed at now.
func (l *Listing) Expired(now int64) bool {
	if l == nil || l.ExpirationTime == nil {
		return false
	}
	return now >= *l.ExpirationTime
}

// Bucket is a buyer-side escrow used as payment.
type Bucket struct {
	Owner string         `json:"owner"`
	ID    string         `json:"bucket_id"`
	Funds GenericBalance `json:"funds"`
}

// Clone returns a deep copy of the bucket.
func (b *Bucket) Clone() *Bucket {
	if b == nil {
		return nil
	}
	clone := *b
	clone.Funds = b.Funds.Clone()
	return &clone
}

// AllowedAsset is an allow-list entry pairing a display name with the asset
// identifier (native denom or contract address).
type AllowedAsset struct {
	Name string `json:"name"`
	ID   string `json:"id"`
}

// FeeAsset names a fungible asset the protocol fee may be levied in. Exactly
// one field is set.
type FeeAsset struct {
	Native string `json:"native,omitempty"`
	Cw20   string `json:"cw20,omitempty"`
}

func (a FeeAsset) IsZero() bool { return a.Native == "" && a.Cw20 == "" }

func (a FeeAsset) String() string {
	if a.Cw20 != "" {
		return "cw20:" + a.Cw20
	}
	return a.Native
}

// FeeAssets holds the two rotating fee assets.
type FeeAssets struct {
	A FeeAsset `json:"a"`
	B FeeAsset `json:"b"`
}

// For returns the asset bound to kind.
func (f FeeAssets) For(kind FeeKind) FeeAsset {
	if kind == FeeKindB {
		return f.B
	}
	return f.A
}

// Config is the marketplace singleton.
type Config struct {
	Admin        string         `json:"admin"`
	Natives      []AllowedAsset `json:"natives"`
	Tokens       []AllowedAsset `json:"tokens"`
	Nfts         []AllowedAsset `json:"nfts"`
	FeeAssets    FeeAssets      `json:"fee_assets"`
	FeeBps       uint32         `json:"fee_bps"`
	FeeCollector string         `json:"fee_collector"`
}

func (c *Config) allowsNative(denom string) bool { return containsID(c.Natives, denom) }
func (c *Config) allowsToken(addr string) bool   { return containsID(c.Tokens, addr) }
func (c *Config) allowsNft(addr string) bool     { return containsID(c.Nfts, addr) }

func containsID(list []AllowedAsset, id string) bool {
	for _, entry := range list {
		if entry.ID == id {
			return true
		}
	}
	return false
}

// FeeKind selects one of the two rotating fee assets.
type FeeKind uint8

const (
	FeeKindA FeeKind = iota
	FeeKindB
)

func (k FeeKind) Flip() FeeKind {
	if k == FeeKindA {
		return FeeKindB
	}
	return FeeKindA
}

func (k FeeKind) String() string {
	if k == FeeKindB {
		return "b"
	}
	return "a"
}

func (k FeeKind) MarshalText() ([]byte, error) { return []byte(k.String()), nil }

func (k *FeeKind) UnmarshalText(text []byte) error {
	switch strings.ToLower(strings.TrimSpace(string(text))) {
	case "a":
		*k = FeeKindA
	case "b":
		*k = FeeKindB
	default:
		return fmt.Errorf("unknown fee kind %q", text)
	}
	return nil
}

// FeeDenom records the active fee asset and the earliest block at which it
// may rotate.
type FeeDenom struct {
	Kind            FeeKind `json:"kind"`
	NextChangeBlock uint64  `json:"next_change_block"`
}

// RoyaltyInfo is the registry answer for one collection.
type RoyaltyInfo struct {
	Payout string `json:"payout"`
	Bps    uint32 `json:"bps"`
}

// DeliveryKind tags the asset class of a Delivery.
type DeliveryKind uint8

const (
	DeliveryNone DeliveryKind = iota
	DeliveryNative
	DeliveryToken
	DeliveryNft
)

// Delivery is a single incoming asset increment attached to a command: one
// set of native coins, one cw20 amount or one NFT.
type Delivery struct {
	Kind   DeliveryKind
	Native []NativeBalance
	Token  TokenBalance
	Nft    NFT
}

// Empty reports whether the delivery carries no assets.
func (d Delivery) Empty() bool {
	switch d.Kind {
	case DeliveryNative:
		return len(d.Native) == 0
	case DeliveryToken, DeliveryNft:
		return false
	default:
		return true
	}
}

// NativeDelivery wraps validated native funds. Denoms are trimmed so they
// compare equal to validated asks.
func NativeDelivery(coins []NativeBalance) Delivery {
	if len(coins) == 0 {
		return Delivery{}
	}
	native := make([]NativeBalance, len(coins))
	for i, coin := range coins {
		native[i] = NativeBalance{Denom: strings.TrimSpace(coin.Denom), Amount: coin.Amount}
	}
	return Delivery{Kind: DeliveryNative, Native: native}
}

// TokenDelivery wraps a cw20 amount sent by contract.
func TokenDelivery(contract string, amount Uint128) Delivery {
	return Delivery{Kind: DeliveryToken, Token: TokenBalance{Address: contract, Amount: amount}}
}

// NftDelivery wraps a cw721 token sent by contract.
func NftDelivery(contract, tokenID string) Delivery {
	return Delivery{Kind: DeliveryNft, Nft: NFT{Contract: contract, TokenID: tokenID}}
}

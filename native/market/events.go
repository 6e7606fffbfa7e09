package market

import (
	"strconv"
	"strings"

	"cyberswap/core/types"
)

const (
	EventTypeListingCreated   = "cyberswap.listing.created"
	EventTypeListingFunded    = "cyberswap.listing.funded"
	EventTypeAskChanged       = "cyberswap.listing.ask_changed"
	EventTypeListingFinalized = "cyberswap.listing.finalized"
	EventTypeListingDeleted   = "cyberswap.listing.deleted"
	EventTypeListingPurchased = "cyberswap.listing.purchased"
	EventTypeListingSettled   = "cyberswap.listing.settled"
	EventTypeBucketCreated    = "cyberswap.bucket.created"
	EventTypeBucketFunded     = "cyberswap.bucket.funded"
	EventTypeBucketRemoved    = "cyberswap.bucket.removed"
	EventTypeFeeCycled        = "cyberswap.fee.cycled"
	EventTypeConfigUpdated    = "cyberswap.config.updated"
)

// NewListingCreatedEvent returns the canonical payload for a new listing.
func NewListingCreatedEvent(l *Listing) *types.Event {
	return newListingEvent(EventTypeListingCreated, l)
}

// NewListingFundedEvent is emitted when assets are added to a listing.
func NewListingFundedEvent(l *Listing) *types.Event {
	return newListingEvent(EventTypeListingFunded, l)
}

func NewAskChangedEvent(l *Listing) *types.Event { return newListingEvent(EventTypeAskChanged, l) }

// NewListingFinalizedEvent is emitted when a listing opens for purchase.
func NewListingFinalizedEvent(l *Listing) *types.Event {
	return newListingEvent(EventTypeListingFinalized, l)
}

func NewListingDeletedEvent(l *Listing) *types.Event {
	return newListingEvent(EventTypeListingDeleted, l)
}

// NewListingPurchasedEvent records the buyer and the consumed bucket.
func NewListingPurchasedEvent(l *Listing, bucketID string) *types.Event {
	evt := newListingEvent(EventTypeListingPurchased, l)
	if evt != nil {
		evt.Attributes["bucketId"] = bucketID
	}
	return evt
}

// NewListingSettledEvent records the final distribution of a purchased listing.
func NewListingSettledEvent(l *Listing, fee GenericBalance, royalties []RoyaltyPayment) *types.Event {
	evt := newListingEvent(EventTypeListingSettled, l)
	if evt == nil {
		return nil
	}
	evt.Attributes["fee"] = formatBalance(fee)
	payees := make([]string, 0, len(royalties))
	for _, payment := range royalties {
		payees = append(payees, payment.Payee+"="+formatBalance(payment.Funds))
	}
	evt.Attributes["royalties"] = strings.Join(payees, ";")
	return evt
}

func NewBucketCreatedEvent(b *Bucket) *types.Event { return newBucketEvent(EventTypeBucketCreated, b) }
func NewBucketFundedEvent(b *Bucket) *types.Event  { return newBucketEvent(EventTypeBucketFunded, b) }
func NewBucketRemovedEvent(b *Bucket) *types.Event { return newBucketEvent(EventTypeBucketRemoved, b) }

// NewFeeCycledEvent reports the newly active fee asset.
func NewFeeCycledEvent(denom FeeDenom, asset FeeAsset) *types.Event {
	return &types.Event{
		Type: EventTypeFeeCycled,
		Attributes: map[string]string{
			"kind":            denom.Kind.String(),
			"asset":           asset.String(),
			"nextChangeBlock": strconv.FormatUint(denom.NextChangeBlock, 10),
		},
	}
}

// NewConfigUpdatedEvent reports an admin change to the marketplace config.
func NewConfigUpdatedEvent(cfg *Config, field string) *types.Event {
	if cfg == nil {
		return nil
	}
	return &types.Event{
		Type: EventTypeConfigUpdated,
		Attributes: map[string]string{
			"field":        field,
			"natives":      strconv.Itoa(len(cfg.Natives)),
			"tokens":       strconv.Itoa(len(cfg.Tokens)),
			"nfts":         strconv.Itoa(len(cfg.Nfts)),
			"feeBps":       strconv.FormatUint(uint64(cfg.FeeBps), 10),
			"feeCollector": cfg.FeeCollector,
		},
	}
}

func newListingEvent(eventType string, l *Listing) *types.Event {
	if l == nil {
		return nil
	}
	attrs := map[string]string{
		"listingId": l.ID,
		"creator":   l.Creator,
		"status":    l.Status.String(),
		"forSale":   formatBalance(l.ForSale),
		"ask":       formatBalance(l.Ask),
	}
	if l.ExpirationTime != nil {
		attrs["expiresAt"] = strconv.FormatInt(*l.ExpirationTime, 10)
	}
	if l.Claimant != "" {
		attrs["claimant"] = l.Claimant
	}
	if l.WhitelistedBuyer != "" {
		attrs["whitelistedBuyer"] = l.WhitelistedBuyer
	}
	return &types.Event{Type: eventType, Attributes: attrs}
}

func newBucketEvent(eventType string, b *Bucket) *types.Event {
	if b == nil {
		return nil
	}
	return &types.Event{
		Type: eventType,
		Attributes: map[string]string{
			"bucketId": b.ID,
			"owner":    b.Owner,
			"funds":    formatBalance(b.Funds),
		},
	}
}

// formatBalance renders a bundle as a compact comma separated list, e.g.
// "100uatom,cw20:addr=5,nft:addr/42".
func formatBalance(b GenericBalance) string {
	parts := make([]string, 0, b.Len())
	for _, coin := range b.Native {
		parts = append(parts, coin.Amount.String()+coin.Denom)
	}
	for _, token := range b.Cw20 {
		parts = append(parts, "cw20:"+token.Address+"="+token.Amount.String())
	}
	for _, nft := range b.Nfts {
		parts = append(parts, "nft:"+nft.Contract+"/"+nft.TokenID)
	}
	return strings.Join(parts, ",")
}

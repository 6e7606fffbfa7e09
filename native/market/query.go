package market

import (
	"encoding/json"
	"fmt"
)

type OwnerPage struct {
	Owner   string `json:"owner"`
	PageNum uint32 `json:"page_num"`
}

type MarketPage struct {
	PageNum uint32 `json:"page_num"`
}

// FinalizedRange selects listings by finalization second in [From, To).
type FinalizedRange struct {
	From    uint64 `json:"from"`
	To      uint64 `json:"to"`
	PageNum uint32 `json:"page_num"`
}

type EmptyQuery struct{}

// QueryMsg is the externally tagged query envelope. Exactly one field is set.
type QueryMsg struct {
	GetFeeDenom            *EmptyQuery `json:"get_fee_denom,omitempty"`
	GetBuckets             *OwnerPage  `json:"get_buckets,omitempty"`
	GetListingsByOwner     *OwnerPage  `json:"get_listings_by_owner,omitempty"`
	GetListingsByWhitelist *OwnerPage  `json:"get_listings_by_whitelist,omitempty"`
	GetListingsForMarket   *MarketPage `json:"get_listings_for_market,omitempty"`
	GetRoyaltyAddr         *EmptyQuery `json:"get_royalty_addr,omitempty"`
	GetListing             *ListingRef `json:"get_listing,omitempty"`
	GetConfig              *EmptyQuery `json:"get_config,omitempty"`

	GetListingsFinalizedBetween *FinalizedRange `json:"get_listings_finalized_between,omitempty"`
}

func (q *QueryMsg) variants() int {
	n := 0
	for _, set := range []bool{
		q.GetFeeDenom != nil, q.GetBuckets != nil, q.GetListingsByOwner != nil,
		q.GetListingsByWhitelist != nil, q.GetListingsForMarket != nil,
		q.GetRoyaltyAddr != nil, q.GetListing != nil, q.GetConfig != nil,
		q.GetListingsFinalizedBetween != nil,
	} {
		if set {
			n++
		}
	}
	return n
}

type FeeDenomResponse struct {
	Kind            FeeKind  `json:"kind"`
	Asset           FeeAsset `json:"asset"`
	NextChangeBlock uint64   `json:"next_change_block"`
}

type BucketsResponse struct {
	Buckets []*Bucket `json:"buckets"`
}

type ListingsResponse struct {
	Listings []*Listing `json:"listings"`
}

type RoyaltyAddrResponse struct {
	Address *string `json:"address"`
}

// pageOffset converts a 1-based page number into an offset. Page 0 is read as
// page 1.
func pageOffset(pageNum uint32) int {
	if pageNum <= 1 {
		return 0
	}
	return int(pageNum-1) * PageSize
}

// Query answers a raw query message with its JSON response.
func (e *Engine) Query(env Env, raw []byte) ([]byte, error) {
	var msg QueryMsg
	if err := DecodeStrict(raw, &msg); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidMessage, err)
	}
	if n := msg.variants(); n != 1 {
		return nil, fmt.Errorf("%w: expected exactly one query, got %d", ErrInvalidMessage, n)
	}
	var (
		out any
		err error
	)
	switch {
	case msg.GetFeeDenom != nil:
		out, err = e.FeeDenom()
	case msg.GetBuckets != nil:
		out, err = e.Buckets(msg.GetBuckets.Owner, msg.GetBuckets.PageNum)
	case msg.GetListingsByOwner != nil:
		out, err = e.ListingsByOwner(msg.GetListingsByOwner.Owner, msg.GetListingsByOwner.PageNum)
	case msg.GetListingsByWhitelist != nil:
		out, err = e.ListingsByWhitelist(msg.GetListingsByWhitelist.Owner, msg.GetListingsByWhitelist.PageNum)
	case msg.GetListingsForMarket != nil:
		out, err = e.ListingsForMarket(msg.GetListingsForMarket.PageNum)
	case msg.GetRoyaltyAddr != nil:
		out, err = e.RoyaltyAddr()
	case msg.GetListing != nil:
		out, err = e.loadListing(msg.GetListing.ListingID)
	case msg.GetConfig != nil:
		out, err = e.loadConfig()
	case msg.GetListingsFinalizedBetween != nil:
		r := msg.GetListingsFinalizedBetween
		out, err = e.ListingsFinalizedBetween(r.From, r.To, r.PageNum)
	}
	if err != nil {
		return nil, err
	}
	return json.Marshal(out)
}

// FeeDenom reports the active fee asset and the next permitted rotation.
func (e *Engine) FeeDenom() (*FeeDenomResponse, error) {
	cfg, err := e.loadConfig()
	if err != nil {
		return nil, err
	}
	denom, err := e.loadFeeDenom()
	if err != nil {
		return nil, err
	}
	return &FeeDenomResponse{
		Kind:            denom.Kind,
		Asset:           cfg.FeeAssets.For(denom.Kind),
		NextChangeBlock: denom.NextChangeBlock,
	}, nil
}

// Buckets lists one page of owner's buckets in ascending bucket id order.
func (e *Engine) Buckets(owner string, pageNum uint32) (*BucketsResponse, error) {
	if e == nil || e.state == nil {
		return nil, errNilState
	}
	buckets, err := e.state.BucketsByOwner(owner, pageOffset(pageNum), PageSize)
	if err != nil {
		return nil, err
	}
	return &BucketsResponse{Buckets: nonNilBuckets(buckets)}, nil
}

// ListingsByOwner lists one page of owner's listings in any status, in
// ascending listing id order.
func (e *Engine) ListingsByOwner(owner string, pageNum uint32) (*ListingsResponse, error) {
	if e == nil || e.state == nil {
		return nil, errNilState
	}
	listings, err := e.state.ListingsByOwner(owner, pageOffset(pageNum), PageSize)
	if err != nil {
		return nil, err
	}
	return &ListingsResponse{Listings: nonNilListings(listings)}, nil
}

// ListingsByWhitelist lists finalized listings reserved for buyer.
func (e *Engine) ListingsByWhitelist(buyer string, pageNum uint32) (*ListingsResponse, error) {
	if e == nil || e.state == nil {
		return nil, errNilState
	}
	listings, err := e.state.ListingsByWhitelist(buyer, StatusFinalizedReady, pageOffset(pageNum), PageSize)
	if err != nil {
		return nil, err
	}
	return &ListingsResponse{Listings: nonNilListings(listings)}, nil
}

// ListingsForMarket lists finalized listings in ascending listing id order.
// Expired listings stay visible until their creator deletes them.
func (e *Engine) ListingsForMarket(pageNum uint32) (*ListingsResponse, error) {
	if e == nil || e.state == nil {
		return nil, errNilState
	}
	listings, err := e.state.ListingsByID(StatusFinalizedReady, pageOffset(pageNum), PageSize)
	if err != nil {
		return nil, err
	}
	return &ListingsResponse{Listings: nonNilListings(listings)}, nil
}

// ListingsFinalizedBetween lists finalized listings whose finalization second
// lies in [from, to), oldest first. Operators page through it to find
// listings old enough to evict.
func (e *Engine) ListingsFinalizedBetween(from, to uint64, pageNum uint32) (*ListingsResponse, error) {
	if e == nil || e.state == nil {
		return nil, errNilState
	}
	if from >= to {
		return &ListingsResponse{Listings: []*Listing{}}, nil
	}
	all, err := e.state.ListingsFinalizedBetween(from, to)
	if err != nil {
		return nil, err
	}
	finalized := make([]*Listing, 0, len(all))
	for _, listing := range all {
		if listing.Status == StatusFinalizedReady {
			finalized = append(finalized, listing)
		}
	}
	offset := pageOffset(pageNum)
	if offset >= len(finalized) {
		return &ListingsResponse{Listings: []*Listing{}}, nil
	}
	end := offset + PageSize
	if end > len(finalized) {
		end = len(finalized)
	}
	return &ListingsResponse{Listings: finalized[offset:end]}, nil
}

// RoyaltyAddr reports the registry address recorded at instantiation.
func (e *Engine) RoyaltyAddr() (*RoyaltyAddrResponse, error) {
	if e == nil || e.state == nil {
		return nil, errNilState
	}
	addr, ok, err := e.state.RoyaltyRegistryAddress()
	if err != nil {
		return nil, err
	}
	if !ok {
		return &RoyaltyAddrResponse{}, nil
	}
	return &RoyaltyAddrResponse{Address: &addr}, nil
}

func nonNilListings(in []*Listing) []*Listing {
	if in == nil {
		return []*Listing{}
	}
	return in
}

func nonNilBuckets(in []*Bucket) []*Bucket {
	if in == nil {
		return []*Bucket{}
	}
	return in
}

package market

import (
	"fmt"
	"strings"

	wasmvmtypes "github.com/CosmWasm/wasmvm/types"

	"cyberswap/core/events"
	"cyberswap/core/types"
)

// engineState is the persistence surface the marketplace engine depends on.
// Listing writes keep the id, finalization date and whitelist indexes in sync
// with the primary record.
type engineState interface {
	MarketConfig() (*Config, bool, error)
	PutMarketConfig(cfg *Config) error
	MarketFeeDenom() (*FeeDenom, bool, error)
	PutMarketFeeDenom(denom *FeeDenom) error
	RoyaltyRegistryAddress() (string, bool, error)
	PutRoyaltyRegistryAddress(addr string) error

	ListingByID(id string) (*Listing, bool, error)
	ListingCreate(listing *Listing) error
	ListingUpdate(listing *Listing) error
	ListingRemove(listing *Listing) error
	ListingsByOwner(owner string, offset, limit int) ([]*Listing, error)
	ListingsByWhitelist(buyer string, status ListingStatus, offset, limit int) ([]*Listing, error)
	ListingsByID(status ListingStatus, offset, limit int) ([]*Listing, error)
	ListingsFinalizedBetween(from, to uint64) ([]*Listing, error)

	BucketGet(owner, id string) (*Bucket, bool, error)
	BucketPut(bucket *Bucket) error
	BucketDelete(owner, id string) error
	BucketsByOwner(owner string, offset, limit int) ([]*Bucket, error)
}

// Env carries the block context of a call.
type Env struct {
	Height   uint64
	Time     int64
	Contract string
}

// Response is the result of a successful command: the custody transfers the
// host must execute in the same transaction.
type Response struct {
	Action   string                  `json:"action"`
	Messages []wasmvmtypes.CosmosMsg `json:"messages"`
	Events   []*types.Event          `json:"events,omitempty"`
}

func (r *Response) send(recipient string, bundle GenericBalance) error {
	msgs, err := TransferMsgs(recipient, bundle)
	if err != nil {
		return err
	}
	r.Messages = append(r.Messages, msgs...)
	return nil
}

type marketEvent struct {
	evt *types.Event
}

func (e marketEvent) EventType() string {
	if e.evt == nil {
		return ""
	}
	return e.evt.Type
}

func (e marketEvent) Event() *types.Event { return e.evt }

// Engine implements the listing and bucket state machines together with the
// fee rotation and admin commands.
type Engine struct {
	state     engineState
	addrs     AddressValidator
	royalties RoyaltyQuerier
	emitter   events.Emitter
}

// NewEngine creates a marketplace engine that validates addresses with addrs
// and emits nothing until SetEmitter is called.
func NewEngine(addrs AddressValidator) *Engine {
	return &Engine{addrs: addrs, emitter: events.NoopEmitter{}}
}

// SetState configures the state backend used by the engine.
func (e *Engine) SetState(state engineState) { e.state = state }

// SetRoyaltyQuerier configures how registry lookups reach the royalty
// contract. Without one no royalties are paid.
func (e *Engine) SetRoyaltyQuerier(q RoyaltyQuerier) { e.royalties = q }

// SetEmitter configures the event emitter used by the engine. Passing nil resets
// the emitter to a no-op implementation.
func (e *Engine) SetEmitter(emitter events.Emitter) {
	if emitter == nil {
		e.emitter = events.NoopEmitter{}
		return
	}
	e.emitter = emitter
}

func (e *Engine) emit(event *types.Event) {
	if e == nil || e.emitter == nil || event == nil {
		return
	}
	e.emitter.Emit(marketEvent{evt: event})
}

// InstantiateMsg configures a fresh marketplace.
type InstantiateMsg struct {
	RoyaltyCodeID uint64         `json:"royalty_code_id"`
	Admin         string         `json:"admin,omitempty"`
	Natives       []AllowedAsset `json:"natives,omitempty"`
	Tokens        []AllowedAsset `json:"tokens,omitempty"`
	Nfts          []AllowedAsset `json:"nfts,omitempty"`
	FeeAssets     FeeAssets      `json:"fee_assets"`
	FeeBps        *uint32        `json:"fee_bps,omitempty"`
	FeeCollector  string         `json:"fee_collector,omitempty"`
}

// Instantiate stores the initial config, starts the fee cycle at the current
// height and records the royalty registry address when one is given.
func (e *Engine) Instantiate(env Env, sender string, msg InstantiateMsg, registry string) error {
	if e == nil || e.state == nil {
		return errNilState
	}
	if _, exists, err := e.state.MarketConfig(); err != nil {
		return err
	} else if exists {
		return fmt.Errorf("%w: marketplace already instantiated", ErrInvalidState)
	}
	admin := sender
	if strings.TrimSpace(msg.Admin) != "" {
		admin = msg.Admin
	}
	admin, err := e.addrs.Validate(admin)
	if err != nil {
		return fmt.Errorf("%w: admin: %v", ErrInvalidMessage, err)
	}
	cfg := &Config{Admin: admin, FeeBps: DefaultFeeBps, FeeCollector: admin}
	if msg.FeeBps != nil {
		cfg.FeeBps = *msg.FeeBps
	}
	if cfg.FeeBps > BpsDenominator {
		return fmt.Errorf("%w: fee_bps %d exceeds %d", ErrInvalidMessage, cfg.FeeBps, BpsDenominator)
	}
	if strings.TrimSpace(msg.FeeCollector) != "" {
		if cfg.FeeCollector, err = e.addrs.Validate(msg.FeeCollector); err != nil {
			return fmt.Errorf("%w: fee_collector: %v", ErrInvalidMessage, err)
		}
	}
	if cfg.Natives, err = normalizeNatives(msg.Natives); err != nil {
		return err
	}
	if cfg.Tokens, err = e.normalizeContracts("tokens", msg.Tokens); err != nil {
		return err
	}
	if cfg.Nfts, err = e.normalizeContracts("nfts", msg.Nfts); err != nil {
		return err
	}
	if cfg.FeeAssets.A, err = e.normalizeFeeAsset(msg.FeeAssets.A); err != nil {
		return err
	}
	if cfg.FeeAssets.B, err = e.normalizeFeeAsset(msg.FeeAssets.B); err != nil {
		return err
	}
	if err := e.state.PutMarketConfig(cfg); err != nil {
		return err
	}
	if err := e.state.PutMarketFeeDenom(&FeeDenom{Kind: FeeKindA, NextChangeBlock: env.Height}); err != nil {
		return err
	}
	if registry != "" {
		canonical, err := e.addrs.Validate(registry)
		if err != nil {
			return fmt.Errorf("%w: royalty registry: %v", ErrInvalidMessage, err)
		}
		if err := e.state.PutRoyaltyRegistryAddress(canonical); err != nil {
			return err
		}
	}
	return nil
}

// CreateListingMsg describes the ask of a new listing.
type CreateListingMsg struct {
	Ask              GenericBalance `json:"ask"`
	WhitelistedBuyer *string        `json:"whitelisted_buyer"`
}

// CreateListing escrows delivery under a new listing owned by sender.
func (e *Engine) CreateListing(env Env, sender string, delivery Delivery, listingID string, msg CreateListingMsg) (*Response, error) {
	if e == nil || e.state == nil {
		return nil, errNilState
	}
	if strings.TrimSpace(listingID) == "" {
		return nil, fmt.Errorf("%w: listing_id must not be empty", ErrInvalidMessage)
	}
	if delivery.Empty() {
		return nil, fmt.Errorf("%w: listing %s: nothing offered for sale", ErrInvalidBalance, listingID)
	}
	if _, exists, err := e.state.ListingByID(listingID); err != nil {
		return nil, err
	} else if exists {
		return nil, fmt.Errorf("%w: listing %s", ErrDuplicate, listingID)
	}
	ask, err := e.validateAsk(msg.Ask)
	if err != nil {
		return nil, err
	}
	listing := &Listing{
		Creator: sender,
		ID:      listingID,
		Status:  StatusBeingPrepared,
		Ask:     ask,
	}
	if msg.WhitelistedBuyer != nil {
		buyer, err := e.addrs.Validate(*msg.WhitelistedBuyer)
		if err != nil {
			return nil, fmt.Errorf("%w: whitelisted_buyer: %v", ErrInvalidMessage, err)
		}
		listing.WhitelistedBuyer = buyer
	}
	if err := mergeChecked(&listing.ForSale, delivery); err != nil {
		return nil, fmt.Errorf("listing %s: %w", listingID, err)
	}
	if err := e.state.ListingCreate(listing); err != nil {
		return nil, err
	}
	e.emit(NewListingCreatedEvent(listing))
	return &Response{Action: "create_listing"}, nil
}

// AddToListing merges delivery into the for-sale bundle of a listing that is
// still being prepared.
func (e *Engine) AddToListing(env Env, sender string, delivery Delivery, listingID string) (*Response, error) {
	listing, err := e.ownedListing(sender, listingID)
	if err != nil {
		return nil, err
	}
	if listing.Status != StatusBeingPrepared {
		return nil, fmt.Errorf("%w: listing %s is %s", ErrInvalidState, listingID, listing.Status)
	}
	if delivery.Empty() {
		return nil, fmt.Errorf("%w: listing %s: no assets attached", ErrInvalidBalance, listingID)
	}
	if err := mergeChecked(&listing.ForSale, delivery); err != nil {
		return nil, fmt.Errorf("listing %s: %w", listingID, err)
	}
	if err := e.state.ListingUpdate(listing); err != nil {
		return nil, err
	}
	e.emit(NewListingFundedEvent(listing))
	return &Response{Action: "add_to_listing"}, nil
}

// ChangeAsk replaces the ask of a listing that is still being prepared.
func (e *Engine) ChangeAsk(env Env, sender, listingID string, newAsk GenericBalance) (*Response, error) {
	listing, err := e.ownedListing(sender, listingID)
	if err != nil {
		return nil, err
	}
	if listing.Status != StatusBeingPrepared {
		return nil, fmt.Errorf("%w: listing %s is %s", ErrInvalidState, listingID, listing.Status)
	}
	ask, err := e.validateAsk(newAsk)
	if err != nil {
		return nil, err
	}
	listing.Ask = ask
	if err := e.state.ListingUpdate(listing); err != nil {
		return nil, err
	}
	e.emit(NewAskChangedEvent(listing))
	return &Response{Action: "change_ask"}, nil
}

// Finalize opens the listing for purchase for the given number of seconds.
func (e *Engine) Finalize(env Env, sender, listingID string, seconds uint64) (*Response, error) {
	listing, err := e.ownedListing(sender, listingID)
	if err != nil {
		return nil, err
	}
	if listing.Status != StatusBeingPrepared {
		return nil, fmt.Errorf("%w: listing %s is %s", ErrInvalidState, listingID, listing.Status)
	}
	if seconds < uint64(MinFinalizeSeconds) {
		return nil, fmt.Errorf("%w: listing %s: %d seconds, minimum %d", ErrFinalizeTooShort, listingID, seconds, MinFinalizeSeconds)
	}
	const maxTime = int64(^uint64(0) >> 1)
	if seconds > uint64(maxTime-env.Time) {
		return nil, fmt.Errorf("%w: listing %s: finalize window overflows", ErrInvalidMessage, listingID)
	}
	finalized := env.Time
	expiration := env.Time + int64(seconds)
	listing.FinalizedTime = &finalized
	listing.ExpirationTime = &expiration
	listing.Status = StatusFinalizedReady
	if err := e.state.ListingUpdate(listing); err != nil {
		return nil, err
	}
	e.emit(NewListingFinalizedEvent(listing))
	return &Response{Action: "finalize"}, nil
}

// DeleteListing refunds the for-sale bundle to the creator and erases the
// listing. Only listings still being prepared or already expired qualify.
func (e *Engine) DeleteListing(env Env, sender, listingID string) (*Response, error) {
	listing, err := e.ownedListing(sender, listingID)
	if err != nil {
		return nil, err
	}
	switch {
	case listing.Status == StatusBeingPrepared:
	case listing.Status == StatusFinalizedReady && listing.Expired(env.Time):
	case listing.Status == StatusFinalizedReady:
		return nil, fmt.Errorf("%w: listing %s is open for purchase until %d", ErrInvalidState, listingID, *listing.ExpirationTime)
	default:
		return nil, fmt.Errorf("%w: listing %s is %s", ErrInvalidState, listingID, listing.Status)
	}
	resp := &Response{Action: "delete_listing"}
	if err := resp.send(listing.Creator, listing.ForSale); err != nil {
		return nil, err
	}
	if err := e.state.ListingRemove(listing); err != nil {
		return nil, err
	}
	e.emit(NewListingDeletedEvent(listing))
	return resp, nil
}

// BuyListing swaps the caller's bucket against a finalized listing. The
// bucket is consumed and its funds are held on the listing as the creator's
// payout until WithdrawPurchased settles.
func (e *Engine) BuyListing(env Env, sender, listingID, bucketID string) (*Response, error) {
	listing, err := e.loadListing(listingID)
	if err != nil {
		return nil, err
	}
	if listing.Status != StatusFinalizedReady {
		return nil, fmt.Errorf("%w: listing %s is %s", ErrInvalidState, listingID, listing.Status)
	}
	if listing.Expired(env.Time) {
		return nil, fmt.Errorf("%w: listing %s expired at %d", ErrExpired, listingID, *listing.ExpirationTime)
	}
	if listing.WhitelistedBuyer != "" && listing.WhitelistedBuyer != sender {
		return nil, fmt.Errorf("%w: listing %s is reserved for %s", ErrUnauthorized, listingID, listing.WhitelistedBuyer)
	}
	bucket, err := e.loadBucket(sender, bucketID)
	if err != nil {
		return nil, err
	}
	if !Equal(bucket.Funds, listing.Ask) {
		return nil, fmt.Errorf("%w: bucket %s against listing %s", ErrAskMismatch, bucketID, listingID)
	}
	shares, err := e.royaltySharesFor(listing.ForSale)
	if err != nil {
		return nil, err
	}
	if _, _, err := SplitRoyalties(bucket.Funds, shares); err != nil {
		return nil, fmt.Errorf("listing %s: %w", listingID, err)
	}
	funds, err := e.takeBucket(sender, bucketID)
	if err != nil {
		return nil, err
	}
	listing.Status = StatusClosed
	listing.Claimant = sender
	listing.Payout = funds
	if err := e.state.ListingUpdate(listing); err != nil {
		return nil, err
	}
	e.emit(NewListingPurchasedEvent(listing, bucketID))
	return &Response{Action: "buy_listing"}, nil
}

// WithdrawPurchased settles a closed listing: the for-sale bundle goes to the
// claimant, royalties and the protocol fee are carved out of the payout and
// the remainder goes to the creator. Either party may trigger it.
func (e *Engine) WithdrawPurchased(env Env, sender, listingID string) (*Response, error) {
	listing, err := e.loadListing(listingID)
	if err != nil {
		return nil, err
	}
	if listing.Status != StatusClosed {
		return nil, fmt.Errorf("%w: listing %s is %s", ErrInvalidState, listingID, listing.Status)
	}
	if sender != listing.Claimant && sender != listing.Creator {
		return nil, fmt.Errorf("%w: %s is neither claimant nor creator of listing %s", ErrUnauthorized, sender, listingID)
	}
	cfg, err := e.loadConfig()
	if err != nil {
		return nil, err
	}
	denom, err := e.loadFeeDenom()
	if err != nil {
		return nil, err
	}

	shares, err := e.royaltySharesFor(listing.ForSale)
	if err != nil {
		return nil, err
	}
	sellerShare, royalties, err := SplitRoyalties(listing.Payout, capRoyaltyShares(shares))
	if err != nil {
		return nil, fmt.Errorf("listing %s: %w", listingID, err)
	}
	toCreator, fee := TakeFee(sellerShare, cfg.FeeAssets.For(denom.Kind), cfg.FeeBps)

	resp := &Response{Action: "withdraw_purchased"}
	if err := resp.send(listing.Claimant, listing.ForSale); err != nil {
		return nil, err
	}
	if err := resp.send(listing.Creator, toCreator); err != nil {
		return nil, err
	}
	for _, payment := range royalties {
		if err := resp.send(payment.Payee, payment.Funds); err != nil {
			return nil, err
		}
	}
	if err := resp.send(cfg.FeeCollector, fee); err != nil {
		return nil, err
	}
	if err := e.state.ListingRemove(listing); err != nil {
		return nil, err
	}
	e.emit(NewListingSettledEvent(listing, fee, royalties))
	return resp, nil
}

func (e *Engine) loadListing(listingID string) (*Listing, error) {
	if e == nil || e.state == nil {
		return nil, errNilState
	}
	listing, ok, err := e.state.ListingByID(listingID)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("%w: listing %s", ErrNotFound, listingID)
	}
	return listing, nil
}

func (e *Engine) ownedListing(sender, listingID string) (*Listing, error) {
	listing, err := e.loadListing(listingID)
	if err != nil {
		return nil, err
	}
	if listing.Creator != sender {
		return nil, fmt.Errorf("%w: %s is not the creator of listing %s", ErrUnauthorized, sender, listingID)
	}
	return listing, nil
}

func (e *Engine) loadConfig() (*Config, error) {
	if e == nil || e.state == nil {
		return nil, errNilState
	}
	cfg, ok, err := e.state.MarketConfig()
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("%w: marketplace config", ErrNotFound)
	}
	return cfg, nil
}

func (e *Engine) loadFeeDenom() (*FeeDenom, error) {
	denom, ok, err := e.state.MarketFeeDenom()
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("%w: fee denom", ErrNotFound)
	}
	return denom, nil
}

// validateAsk checks an untrusted ask and requires every entry to be
// allow-listed. The for-sale side is never allow-list checked.
func (e *Engine) validateAsk(untrusted GenericBalance) (GenericBalance, error) {
	ask, err := ValidateBalance(untrusted, e.addrs)
	if err != nil {
		return GenericBalance{}, fmt.Errorf("ask: %w", err)
	}
	cfg, err := e.loadConfig()
	if err != nil {
		return GenericBalance{}, err
	}
	for _, coin := range ask.Native {
		if !cfg.allowsNative(coin.Denom) {
			return GenericBalance{}, fmt.Errorf("%w: native %s", ErrNotAllowListed, coin.Denom)
		}
	}
	for _, token := range ask.Cw20 {
		if !cfg.allowsToken(token.Address) {
			return GenericBalance{}, fmt.Errorf("%w: cw20 %s", ErrNotAllowListed, token.Address)
		}
	}
	for _, nft := range ask.Nfts {
		if !cfg.allowsNft(nft.Contract) {
			return GenericBalance{}, fmt.Errorf("%w: nft collection %s", ErrNotAllowListed, nft.Contract)
		}
	}
	return ask, nil
}

// mergeChecked merges d into b and re-checks the size bound and NFT
// uniqueness of the result.
func mergeChecked(b *GenericBalance, d Delivery) error {
	if d.Kind == DeliveryNft {
		for _, held := range b.Nfts {
			if held == d.Nft {
				return fmt.Errorf("%w: nft %s/%s already escrowed", ErrInvalidBalance, d.Nft.Contract, d.Nft.TokenID)
			}
		}
	}
	if err := b.Merge(d); err != nil {
		return err
	}
	return checkSize(*b)
}

// ValidateFunds checks natively attached coins: no empty denom, no zero
// amount and no repeated denom.
func ValidateFunds(coins []NativeBalance) error {
	seen := make(map[string]struct{}, len(coins))
	for _, coin := range coins {
		denom := strings.TrimSpace(coin.Denom)
		if denom == "" {
			return fmt.Errorf("%w: attached coin without denom", ErrInvalidBalance)
		}
		if coin.Amount.IsZero() {
			return fmt.Errorf("%w: zero amount attached for %s", ErrInvalidBalance, denom)
		}
		if _, dup := seen[denom]; dup {
			return fmt.Errorf("%w: %s attached twice", ErrInvalidBalance, denom)
		}
		seen[denom] = struct{}{}
	}
	return nil
}

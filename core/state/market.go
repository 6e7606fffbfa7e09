package state

import (
	"fmt"

	"github.com/ethereum/go-ethereum/rlp"

	"cyberswap/native/market"
)

type storedBalance struct {
	Native []market.NativeBalance
	Cw20   []market.TokenBalance
	Nfts   []market.NFT
}

func newStoredBalance(b market.GenericBalance) storedBalance {
	c := b.Clone()
	return storedBalance{Native: c.Native, Cw20: c.Cw20, Nfts: c.Nfts}
}

func (s storedBalance) toBalance() market.GenericBalance {
	return market.GenericBalance{Native: s.Native, Cw20: s.Cw20, Nfts: s.Nfts}.Clone()
}

type storedListingKey struct {
	Creator string
	ID      string
}

type storedListing struct {
	Creator          string
	ID               string
	Finalized        bool
	FinalizedTime    uint64
	ExpirationTime   uint64
	Status           uint8
	Claimant         string
	ForSale          storedBalance
	Ask              storedBalance
	Payout           storedBalance
	WhitelistedBuyer string
}

func newStoredListing(l *market.Listing) (*storedListing, error) {
	if l == nil {
		return nil, fmt.Errorf("listing: nil value")
	}
	if !l.Status.Valid() {
		return nil, fmt.Errorf("listing %s: invalid status", l.ID)
	}
	if (l.FinalizedTime == nil) != (l.ExpirationTime == nil) {
		return nil, fmt.Errorf("listing %s: finalized and expiration time must be set together", l.ID)
	}
	record := &storedListing{
		Creator:          l.Creator,
		ID:               l.ID,
		Status:           uint8(l.Status),
		Claimant:         l.Claimant,
		ForSale:          newStoredBalance(l.ForSale),
		Ask:              newStoredBalance(l.Ask),
		Payout:           newStoredBalance(l.Payout),
		WhitelistedBuyer: l.WhitelistedBuyer,
	}
	if l.FinalizedTime != nil {
		if *l.FinalizedTime < 0 || *l.ExpirationTime < 0 {
			return nil, fmt.Errorf("listing %s: negative timestamp", l.ID)
		}
		record.Finalized = true
		record.FinalizedTime = uint64(*l.FinalizedTime)
		record.ExpirationTime = uint64(*l.ExpirationTime)
	}
	return record, nil
}

func (s *storedListing) toListing() (*market.Listing, error) {
	if s == nil {
		return nil, fmt.Errorf("listing: nil storage record")
	}
	out := &market.Listing{
		Creator:          s.Creator,
		ID:               s.ID,
		Status:           market.ListingStatus(s.Status),
		Claimant:         s.Claimant,
		ForSale:          s.ForSale.toBalance(),
		Ask:              s.Ask.toBalance(),
		Payout:           s.Payout.toBalance(),
		WhitelistedBuyer: s.WhitelistedBuyer,
	}
	if !out.Status.Valid() {
		return nil, fmt.Errorf("listing %s: invalid stored status %d", s.ID, s.Status)
	}
	if s.Finalized {
		finalized := int64(s.FinalizedTime)
		expiration := int64(s.ExpirationTime)
		out.FinalizedTime = &finalized
		out.ExpirationTime = &expiration
	}
	return out, nil
}

type storedBucket struct {
	Owner string
	ID    string
	Funds storedBalance
}

type storedConfig struct {
	Admin        string
	Natives      []market.AllowedAsset
	Tokens       []market.AllowedAsset
	Nfts         []market.AllowedAsset
	FeeA         market.FeeAsset
	FeeB         market.FeeAsset
	FeeBps       uint64
	FeeCollector string
}

type storedFeeDenom struct {
	Kind            uint8
	NextChangeBlock uint64
}

func listingKey(creator, id string) []byte {
	return compositeKey(nsListings, []byte(creator), []byte(id))
}

func listingIDKey(id string) []byte {
	return compositeKey(nsListingID, []byte(id))
}

// finalizedIndexKey indexes by finalization second; 0 marks a listing that
// is not yet finalized.
func finalizedIndexKey(l *storedListing) []byte {
	var seconds uint64
	if l.Finalized {
		seconds = l.FinalizedTime
	}
	return compositeKey(nsListingFinal, uint64Bytes(seconds), []byte(l.Creator), []byte(l.ID))
}

func whitelistIndexKey(l *storedListing) []byte {
	return compositeKey(nsListingWhite, []byte(l.WhitelistedBuyer), []byte(l.Creator), []byte(l.ID))
}

func bucketKey(owner, id string) []byte {
	return compositeKey(nsBuckets, []byte(owner), []byte(id))
}

// MarketConfig loads the marketplace singleton.
func (m *Manager) MarketConfig() (*market.Config, bool, error) {
	var record storedConfig
	ok, err := m.KVGet(singletonKey(nsMarketConfig), &record)
	if err != nil || !ok {
		return nil, ok, err
	}
	cfg := &market.Config{
		Admin:        record.Admin,
		Natives:      record.Natives,
		Tokens:       record.Tokens,
		Nfts:         record.Nfts,
		FeeAssets:    market.FeeAssets{A: record.FeeA, B: record.FeeB},
		FeeBps:       uint32(record.FeeBps),
		FeeCollector: record.FeeCollector,
	}
	return cfg, true, nil
}

func (m *Manager) PutMarketConfig(cfg *market.Config) error {
	if cfg == nil {
		return fmt.Errorf("config: nil value")
	}
	return m.KVPut(singletonKey(nsMarketConfig), &storedConfig{
		Admin:        cfg.Admin,
		Natives:      cfg.Natives,
		Tokens:       cfg.Tokens,
		Nfts:         cfg.Nfts,
		FeeA:         cfg.FeeAssets.A,
		FeeB:         cfg.FeeAssets.B,
		FeeBps:       uint64(cfg.FeeBps),
		FeeCollector: cfg.FeeCollector,
	})
}

func (m *Manager) MarketFeeDenom() (*market.FeeDenom, bool, error) {
	var record storedFeeDenom
	ok, err := m.KVGet(singletonKey(nsFeeDenom), &record)
	if err != nil || !ok {
		return nil, ok, err
	}
	return &market.FeeDenom{Kind: market.FeeKind(record.Kind), NextChangeBlock: record.NextChangeBlock}, true, nil
}

func (m *Manager) PutMarketFeeDenom(denom *market.FeeDenom) error {
	if denom == nil {
		return fmt.Errorf("fee denom: nil value")
	}
	return m.KVPut(singletonKey(nsFeeDenom), &storedFeeDenom{Kind: uint8(denom.Kind), NextChangeBlock: denom.NextChangeBlock})
}

func (m *Manager) RoyaltyRegistryAddress() (string, bool, error) {
	var addr string
	ok, err := m.KVGet(singletonKey(nsRoyaltyAddr), &addr)
	return addr, ok, err
}

func (m *Manager) PutRoyaltyRegistryAddress(addr string) error {
	return m.KVPut(singletonKey(nsRoyaltyAddr), addr)
}

func (m *Manager) loadListing(creator, id string) (*storedListing, bool, error) {
	record := new(storedListing)
	ok, err := m.KVGet(listingKey(creator, id), record)
	if err != nil || !ok {
		return nil, ok, err
	}
	return record, true, nil
}

// ListingByID resolves a listing through the unique id index.
func (m *Manager) ListingByID(id string) (*market.Listing, bool, error) {
	var pk storedListingKey
	ok, err := m.KVGet(listingIDKey(id), &pk)
	if err != nil || !ok {
		return nil, ok, err
	}
	record, ok, err := m.loadListing(pk.Creator, pk.ID)
	if err != nil {
		return nil, false, err
	}
	if !ok {
		return nil, false, fmt.Errorf("listing %s: id index points at missing record", id)
	}
	listing, err := record.toListing()
	if err != nil {
		return nil, false, err
	}
	return listing, true, nil
}

// ListingCreate stores a new listing and its index entries. The id must not
// be in use by any creator.
func (m *Manager) ListingCreate(l *market.Listing) error {
	record, err := newStoredListing(l)
	if err != nil {
		return err
	}
	ok, err := m.KVGet(listingIDKey(record.ID), nil)
	if err != nil {
		return err
	}
	if ok {
		return fmt.Errorf("%w: listing %s", market.ErrDuplicate, record.ID)
	}
	return m.writeListing(record)
}

// ListingUpdate overwrites an existing listing and rewrites its index entries.
func (m *Manager) ListingUpdate(l *market.Listing) error {
	record, err := newStoredListing(l)
	if err != nil {
		return err
	}
	previous, ok, err := m.loadListing(record.Creator, record.ID)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("%w: listing %s", market.ErrNotFound, record.ID)
	}
	if err := m.deleteListingIndexes(previous); err != nil {
		return err
	}
	return m.writeListing(record)
}

// ListingRemove erases a listing and every index entry pointing at it.
func (m *Manager) ListingRemove(l *market.Listing) error {
	if l == nil {
		return fmt.Errorf("listing: nil value")
	}
	previous, ok, err := m.loadListing(l.Creator, l.ID)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("%w: listing %s", market.ErrNotFound, l.ID)
	}
	if err := m.deleteListingIndexes(previous); err != nil {
		return err
	}
	if err := m.KVDelete(listingIDKey(previous.ID)); err != nil {
		return err
	}
	return m.KVDelete(listingKey(previous.Creator, previous.ID))
}

func (m *Manager) writeListing(record *storedListing) error {
	pk := &storedListingKey{Creator: record.Creator, ID: record.ID}
	if err := m.KVPut(listingKey(record.Creator, record.ID), record); err != nil {
		return err
	}
	if err := m.KVPut(listingIDKey(record.ID), pk); err != nil {
		return err
	}
	if err := m.KVPut(finalizedIndexKey(record), pk); err != nil {
		return err
	}
	if record.WhitelistedBuyer != "" {
		if err := m.KVPut(whitelistIndexKey(record), pk); err != nil {
			return err
		}
	}
	return nil
}

// deleteListingIndexes drops the multi-index entries of a stored listing. The
// unique id entry is left in place for updates.
func (m *Manager) deleteListingIndexes(record *storedListing) error {
	if err := m.KVDelete(finalizedIndexKey(record)); err != nil {
		return err
	}
	if record.WhitelistedBuyer != "" {
		if err := m.KVDelete(whitelistIndexKey(record)); err != nil {
			return err
		}
	}
	return nil
}

// ListingsByOwner pages through owner's listings in ascending id order.
func (m *Manager) ListingsByOwner(owner string, offset, limit int) ([]*market.Listing, error) {
	var out []*market.Listing
	skipped := 0
	err := m.scanPrefix(compositePrefix(nsListings, []byte(owner)), func(_, value []byte) (bool, error) {
		if len(out) >= limit {
			return false, nil
		}
		if skipped < offset {
			skipped++
			return true, nil
		}
		record := new(storedListing)
		if err := rlp.DecodeBytes(value, record); err != nil {
			return false, fmt.Errorf("decode listing: %w", err)
		}
		listing, err := record.toListing()
		if err != nil {
			return false, err
		}
		out = append(out, listing)
		return len(out) < limit, nil
	})
	return out, err
}

// ListingsByWhitelist pages through listings reserved for buyer that are in
// status, ordered by creator then id.
func (m *Manager) ListingsByWhitelist(buyer string, status market.ListingStatus, offset, limit int) ([]*market.Listing, error) {
	pks, err := m.indexKeys(compositePrefix(nsListingWhite, []byte(buyer)))
	if err != nil {
		return nil, err
	}
	return m.pageListings(pks, status, offset, limit)
}

// ListingsByID pages through every listing in status in ascending id order.
func (m *Manager) ListingsByID(status market.ListingStatus, offset, limit int) ([]*market.Listing, error) {
	pks, err := m.indexKeys(compositePrefix(nsListingID))
	if err != nil {
		return nil, err
	}
	return m.pageListings(pks, status, offset, limit)
}

// ListingsFinalizedBetween returns the listings whose finalization second lies
// in [from, to). Listings that are not finalized are indexed at 0.
func (m *Manager) ListingsFinalizedBetween(from, to uint64) ([]*market.Listing, error) {
	prefix := compositePrefix(nsListingFinal)
	start := append(append([]byte(nil), prefix...), appendLengthPrefixed(nil, uint64Bytes(from))...)
	limit := append(append([]byte(nil), prefix...), appendLengthPrefixed(nil, uint64Bytes(to))...)
	it := m.kv.NewIterator(start, limit)
	var pks []storedListingKey
	for it.Next() {
		var pk storedListingKey
		if err := rlp.DecodeBytes(it.Value(), &pk); err != nil {
			it.Release()
			return nil, fmt.Errorf("decode finalized index: %w", err)
		}
		pks = append(pks, pk)
	}
	it.Release()
	if err := it.Error(); err != nil {
		return nil, err
	}
	return m.pageListings(pks, 0, 0, len(pks))
}

func (m *Manager) indexKeys(prefix []byte) ([]storedListingKey, error) {
	var pks []storedListingKey
	err := m.scanPrefix(prefix, func(_, value []byte) (bool, error) {
		var pk storedListingKey
		if err := rlp.DecodeBytes(value, &pk); err != nil {
			return false, fmt.Errorf("decode listing index: %w", err)
		}
		pks = append(pks, pk)
		return true, nil
	})
	return pks, err
}

// pageListings loads the listings behind pks, keeps those in status (0 keeps
// all) and returns the requested window.
func (m *Manager) pageListings(pks []storedListingKey, status market.ListingStatus, offset, limit int) ([]*market.Listing, error) {
	var out []*market.Listing
	skipped := 0
	for _, pk := range pks {
		if len(out) >= limit {
			break
		}
		record, ok, err := m.loadListing(pk.Creator, pk.ID)
		if err != nil {
			return nil, err
		}
		if !ok {
			return nil, fmt.Errorf("listing %s: index points at missing record", pk.ID)
		}
		if status != 0 && market.ListingStatus(record.Status) != status {
			continue
		}
		if skipped < offset {
			skipped++
			continue
		}
		listing, err := record.toListing()
		if err != nil {
			return nil, err
		}
		out = append(out, listing)
	}
	return out, nil
}

func (m *Manager) BucketGet(owner, id string) (*market.Bucket, bool, error) {
	var record storedBucket
	ok, err := m.KVGet(bucketKey(owner, id), &record)
	if err != nil || !ok {
		return nil, ok, err
	}
	return &market.Bucket{Owner: record.Owner, ID: record.ID, Funds: record.Funds.toBalance()}, true, nil
}

func (m *Manager) BucketPut(b *market.Bucket) error {
	if b == nil {
		return fmt.Errorf("bucket: nil value")
	}
	return m.KVPut(bucketKey(b.Owner, b.ID), &storedBucket{Owner: b.Owner, ID: b.ID, Funds: newStoredBalance(b.Funds)})
}

func (m *Manager) BucketDelete(owner, id string) error {
	return m.KVDelete(bucketKey(owner, id))
}

// BucketsByOwner pages through owner's buckets in ascending id order.
func (m *Manager) BucketsByOwner(owner string, offset, limit int) ([]*market.Bucket, error) {
	var out []*market.Bucket
	skipped := 0
	err := m.scanPrefix(compositePrefix(nsBuckets, []byte(owner)), func(_, value []byte) (bool, error) {
		if len(out) >= limit {
			return false, nil
		}
		if skipped < offset {
			skipped++
			return true, nil
		}
		var record storedBucket
		if err := rlp.DecodeBytes(value, &record); err != nil {
			return false, fmt.Errorf("decode bucket: %w", err)
		}
		out = append(out, &market.Bucket{Owner: record.Owner, ID: record.ID, Funds: record.Funds.toBalance()})
		return len(out) < limit, nil
	})
	return out, err
}

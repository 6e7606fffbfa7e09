package market_test

import (
	"testing"

	wasmvmtypes "github.com/CosmWasm/wasmvm/types"
	"github.com/stretchr/testify/require"

	"cyberswap/core/events"
	"cyberswap/core/state"
	"cyberswap/crypto"
	"cyberswap/native/market"
	"cyberswap/storage"
)

const startTime int64 = 1_700_000_000

type stubRoyalties struct {
	infos map[string]*market.RoyaltyInfo
	calls int
}

func (s *stubRoyalties) RoyaltyInfo(_ string, collection string) (*market.RoyaltyInfo, error) {
	s.calls++
	return s.infos[collection], nil
}

type fixture struct {
	t         *testing.T
	codec     crypto.Codec
	mgr       *state.Manager
	eng       *market.Engine
	rec       *events.Recorder
	royalties *stubRoyalties
	env       market.Env

	admin, creator, buyer, other string
	token, collection, registry  string
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	codec := crypto.NewCodec("cyber")
	db := storage.NewMemDB()
	t.Cleanup(db.Close)

	f := &fixture{
		t:          t,
		codec:      codec,
		mgr:        state.NewManager(db),
		rec:        &events.Recorder{},
		royalties:  &stubRoyalties{infos: map[string]*market.RoyaltyInfo{}},
		admin:      codec.AccountAddress("admin"),
		creator:    codec.AccountAddress("creator"),
		buyer:      codec.AccountAddress("buyer"),
		other:      codec.AccountAddress("other"),
		token:      codec.AccountAddress("token"),
		collection: codec.AccountAddress("collection"),
		registry:   codec.AccountAddress("registry"),
	}
	f.env = market.Env{Height: 100, Time: startTime, Contract: codec.AccountAddress("market")}
	f.eng = market.NewEngine(codec)
	f.eng.SetState(f.mgr)
	f.eng.SetEmitter(f.rec)
	f.eng.SetRoyaltyQuerier(f.royalties)

	err := f.eng.Instantiate(f.env, f.admin, market.InstantiateMsg{
		Natives: []market.AllowedAsset{{Name: "a", ID: "ua"}, {Name: "b", ID: "ub"}},
		Tokens:  []market.AllowedAsset{{Name: "t", ID: f.token}},
		Nfts:    []market.AllowedAsset{{Name: "c", ID: f.collection}},
		FeeAssets: market.FeeAssets{
			A: market.FeeAsset{Native: "ub"},
			B: market.FeeAsset{Cw20: f.token},
		},
	}, f.registry)
	require.NoError(t, err)
	return f
}

func coins(denom string, amount uint64) market.Delivery {
	return market.NativeDelivery([]market.NativeBalance{{Denom: denom, Amount: market.NewUint128(amount)}})
}

func nativeAsk(denom string, amount uint64) market.GenericBalance {
	return market.GenericBalance{Native: []market.NativeBalance{{Denom: denom, Amount: market.NewUint128(amount)}}}
}

func (f *fixture) list(id string, delivery market.Delivery, ask market.GenericBalance) {
	f.t.Helper()
	_, err := f.eng.CreateListing(f.env, f.creator, delivery, id, market.CreateListingMsg{Ask: ask})
	require.NoError(f.t, err)
}

func (f *fixture) listing(id string) *market.Listing {
	f.t.Helper()
	l, ok, err := f.mgr.ListingByID(id)
	require.NoError(f.t, err)
	require.True(f.t, ok, "listing %s", id)
	return l
}

func bankSend(t *testing.T, msg wasmvmtypes.CosmosMsg) *wasmvmtypes.SendMsg {
	t.Helper()
	require.NotNil(t, msg.Bank)
	require.NotNil(t, msg.Bank.Send)
	return msg.Bank.Send
}

func wasmExec(t *testing.T, msg wasmvmtypes.CosmosMsg) *wasmvmtypes.ExecuteMsg {
	t.Helper()
	require.NotNil(t, msg.Wasm)
	require.NotNil(t, msg.Wasm.Execute)
	return msg.Wasm.Execute
}

func TestNativeSwapSettlesWithFee(t *testing.T) {
	f := newFixture(t)
	f.list("1", coins("ua", 100), nativeAsk("ub", 200))
	_, err := f.eng.Finalize(f.env, f.creator, "1", 3600)
	require.NoError(t, err)

	_, err = f.eng.CreateBucket(f.env, f.buyer, coins("ub", 200), "7")
	require.NoError(t, err)
	_, err = f.eng.BuyListing(f.env, f.buyer, "1", "7")
	require.NoError(t, err)

	closed := f.listing("1")
	require.Equal(t, market.StatusClosed, closed.Status)
	require.Equal(t, f.buyer, closed.Claimant)
	_, ok, err := f.mgr.BucketGet(f.buyer, "7")
	require.NoError(t, err)
	require.False(t, ok)

	resp, err := f.eng.WithdrawPurchased(f.env, f.creator, "1")
	require.NoError(t, err)
	require.Len(t, resp.Messages, 3)

	toBuyer := bankSend(t, resp.Messages[0])
	require.Equal(t, f.buyer, toBuyer.ToAddress)
	require.Equal(t, wasmvmtypes.Coins{{Denom: "ua", Amount: "100"}}, toBuyer.Amount)

	toCreator := bankSend(t, resp.Messages[1])
	require.Equal(t, f.creator, toCreator.ToAddress)
	require.Equal(t, wasmvmtypes.Coins{{Denom: "ub", Amount: "199"}}, toCreator.Amount)

	fee := bankSend(t, resp.Messages[2])
	require.Equal(t, f.admin, fee.ToAddress)
	require.Equal(t, wasmvmtypes.Coins{{Denom: "ub", Amount: "1"}}, fee.Amount)

	_, ok, err = f.mgr.ListingByID("1")
	require.NoError(t, err)
	require.False(t, ok)
}

func TestNftForTokenRoutesRoyalty(t *testing.T) {
	f := newFixture(t)
	royaltyPayee := f.codec.AccountAddress("artist")
	f.royalties.infos[f.collection] = &market.RoyaltyInfo{Payout: royaltyPayee, Bps: 500}

	// Rotate to the cw20 fee asset so the fee is levied on the payout.
	_, err := f.eng.FeeCycle(f.env, f.other)
	require.NoError(t, err)

	ask := market.GenericBalance{Cw20: []market.TokenBalance{{Address: f.token, Amount: market.NewUint128(1000)}}}
	f.list("nft-1", market.NftDelivery(f.collection, "42"), ask)
	_, err = f.eng.Finalize(f.env, f.creator, "nft-1", 3600)
	require.NoError(t, err)
	_, err = f.eng.CreateBucket(f.env, f.buyer, market.TokenDelivery(f.token, market.NewUint128(1000)), "b")
	require.NoError(t, err)
	_, err = f.eng.BuyListing(f.env, f.buyer, "nft-1", "b")
	require.NoError(t, err)

	resp, err := f.eng.WithdrawPurchased(f.env, f.buyer, "nft-1")
	require.NoError(t, err)
	require.Len(t, resp.Messages, 4)
	require.Equal(t, 2, f.royalties.calls)

	nft := wasmExec(t, resp.Messages[0])
	require.Equal(t, f.collection, nft.ContractAddr)
	require.JSONEq(t, `{"transfer_nft":{"recipient":"`+f.buyer+`","token_id":"42"}}`, string(nft.Msg))

	toCreator := wasmExec(t, resp.Messages[1])
	require.Equal(t, f.token, toCreator.ContractAddr)
	require.JSONEq(t, `{"transfer":{"recipient":"`+f.creator+`","amount":"946"}}`, string(toCreator.Msg))

	royalty := wasmExec(t, resp.Messages[2])
	require.JSONEq(t, `{"transfer":{"recipient":"`+royaltyPayee+`","amount":"50"}}`, string(royalty.Msg))

	fee := wasmExec(t, resp.Messages[3])
	require.JSONEq(t, `{"transfer":{"recipient":"`+f.admin+`","amount":"4"}}`, string(fee.Msg))
}

func TestDuplicateListingIDRejected(t *testing.T) {
	f := newFixture(t)
	f.list("9", coins("ua", 1), nativeAsk("ub", 1))

	_, err := f.eng.CreateListing(f.env, f.other, coins("ua", 5), "9", market.CreateListingMsg{Ask: nativeAsk("ub", 1)})
	require.ErrorIs(t, err, market.ErrDuplicate)
	require.Equal(t, f.creator, f.listing("9").Creator)
}

func TestExpiredListingCannotBeBoughtButCanBeDeleted(t *testing.T) {
	f := newFixture(t)
	f.list("exp", coins("ua", 100), nativeAsk("ub", 10))
	_, err := f.eng.Finalize(f.env, f.creator, "exp", 600)
	require.NoError(t, err)
	_, err = f.eng.CreateBucket(f.env, f.buyer, coins("ub", 10), "b")
	require.NoError(t, err)

	_, err = f.eng.DeleteListing(f.env, f.creator, "exp")
	require.ErrorIs(t, err, market.ErrInvalidState)

	later := f.env
	later.Time = startTime + 601
	_, err = f.eng.BuyListing(later, f.buyer, "exp", "b")
	require.ErrorIs(t, err, market.ErrExpired)

	boundary := f.env
	boundary.Time = startTime + 600
	_, err = f.eng.BuyListing(boundary, f.buyer, "exp", "b")
	require.ErrorIs(t, err, market.ErrExpired)

	resp, err := f.eng.DeleteListing(later, f.creator, "exp")
	require.NoError(t, err)
	require.Len(t, resp.Messages, 1)
	refund := bankSend(t, resp.Messages[0])
	require.Equal(t, f.creator, refund.ToAddress)
	require.Equal(t, wasmvmtypes.Coins{{Denom: "ua", Amount: "100"}}, refund.Amount)

	_, ok, err := f.mgr.BucketGet(f.buyer, "b")
	require.NoError(t, err)
	require.True(t, ok)
}

func TestWhitelistedBuyerEnforced(t *testing.T) {
	f := newFixture(t)
	reserved := f.buyer
	_, err := f.eng.CreateListing(f.env, f.creator, coins("ua", 1), "w", market.CreateListingMsg{
		Ask:              nativeAsk("ub", 5),
		WhitelistedBuyer: &reserved,
	})
	require.NoError(t, err)
	_, err = f.eng.Finalize(f.env, f.creator, "w", 600)
	require.NoError(t, err)

	_, err = f.eng.CreateBucket(f.env, f.other, coins("ub", 5), "b")
	require.NoError(t, err)
	_, err = f.eng.BuyListing(f.env, f.other, "w", "b")
	require.ErrorIs(t, err, market.ErrUnauthorized)

	_, err = f.eng.CreateBucket(f.env, f.buyer, coins("ub", 5), "b")
	require.NoError(t, err)
	_, err = f.eng.BuyListing(f.env, f.buyer, "w", "b")
	require.NoError(t, err)
}

func TestFeeCycleCooldown(t *testing.T) {
	f := newFixture(t)
	_, err := f.eng.FeeCycle(f.env, f.other)
	require.NoError(t, err)

	denom, ok, err := f.mgr.MarketFeeDenom()
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, market.FeeKindB, denom.Kind)
	require.Equal(t, f.env.Height+market.RotationBlocks, denom.NextChangeBlock)

	_, err = f.eng.FeeCycle(f.env, f.other)
	require.ErrorIs(t, err, market.ErrCooldown)

	later := f.env
	later.Height += market.RotationBlocks
	_, err = f.eng.FeeCycle(later, f.other)
	require.NoError(t, err)
	denom, _, err = f.mgr.MarketFeeDenom()
	require.NoError(t, err)
	require.Equal(t, market.FeeKindA, denom.Kind)
}

func TestListingLifecycleGuards(t *testing.T) {
	f := newFixture(t)
	f.list("g", coins("ua", 10), nativeAsk("ub", 5))

	_, err := f.eng.AddToListing(f.env, f.other, coins("ua", 1), "g")
	require.ErrorIs(t, err, market.ErrUnauthorized)
	_, err = f.eng.AddToListing(f.env, f.creator, coins("ua", 5), "g")
	require.NoError(t, err)
	require.Equal(t, "15", f.listing("g").ForSale.Native[0].Amount.String())

	_, err = f.eng.ChangeAsk(f.env, f.creator, "g", nativeAsk("uz", 1))
	require.ErrorIs(t, err, market.ErrNotAllowListed)
	_, err = f.eng.ChangeAsk(f.env, f.creator, "g", nativeAsk("ua", 3))
	require.NoError(t, err)

	_, err = f.eng.Finalize(f.env, f.creator, "g", uint64(market.MinFinalizeSeconds-1))
	require.ErrorIs(t, err, market.ErrFinalizeTooShort)
	_, err = f.eng.Finalize(f.env, f.other, "g", 3600)
	require.ErrorIs(t, err, market.ErrUnauthorized)
	_, err = f.eng.Finalize(f.env, f.creator, "g", 3600)
	require.NoError(t, err)

	finalized := f.listing("g")
	require.Equal(t, market.StatusFinalizedReady, finalized.Status)
	require.Equal(t, startTime, *finalized.FinalizedTime)
	require.Equal(t, startTime+3600, *finalized.ExpirationTime)

	_, err = f.eng.AddToListing(f.env, f.creator, coins("ua", 1), "g")
	require.ErrorIs(t, err, market.ErrInvalidState)
	_, err = f.eng.ChangeAsk(f.env, f.creator, "g", nativeAsk("ub", 1))
	require.ErrorIs(t, err, market.ErrInvalidState)
	_, err = f.eng.Finalize(f.env, f.creator, "g", 3600)
	require.ErrorIs(t, err, market.ErrInvalidState)

	_, err = f.eng.WithdrawPurchased(f.env, f.creator, "g")
	require.ErrorIs(t, err, market.ErrInvalidState)
	_, err = f.eng.BuyListing(f.env, f.buyer, "missing", "b")
	require.ErrorIs(t, err, market.ErrNotFound)
}

func TestBuyWithMismatchedBucketKeepsBucket(t *testing.T) {
	f := newFixture(t)
	f.list("m", coins("ua", 10), nativeAsk("ub", 5))
	_, err := f.eng.Finalize(f.env, f.creator, "m", 3600)
	require.NoError(t, err)

	_, err = f.eng.CreateBucket(f.env, f.buyer, coins("ub", 4), "b")
	require.NoError(t, err)
	_, err = f.eng.BuyListing(f.env, f.buyer, "m", "b")
	require.ErrorIs(t, err, market.ErrAskMismatch)

	_, ok, err := f.mgr.BucketGet(f.buyer, "b")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, market.StatusFinalizedReady, f.listing("m").Status)

	_, err = f.eng.AddToBucket(f.env, f.buyer, coins("ub", 1), "b")
	require.NoError(t, err)
	_, err = f.eng.BuyListing(f.env, f.buyer, "m", "b")
	require.NoError(t, err)

	_, err = f.eng.WithdrawPurchased(f.env, f.other, "m")
	require.ErrorIs(t, err, market.ErrUnauthorized)
}

func TestBucketLifecycle(t *testing.T) {
	f := newFixture(t)
	_, err := f.eng.CreateBucket(f.env, f.buyer, market.Delivery{}, "empty")
	require.ErrorIs(t, err, market.ErrInvalidBalance)

	_, err = f.eng.CreateBucket(f.env, f.buyer, market.NftDelivery(f.collection, "1"), "b")
	require.NoError(t, err)
	_, err = f.eng.CreateBucket(f.env, f.buyer, coins("ua", 1), "b")
	require.ErrorIs(t, err, market.ErrDuplicate)
	_, err = f.eng.AddToBucket(f.env, f.buyer, market.NftDelivery(f.collection, "1"), "b")
	require.ErrorIs(t, err, market.ErrInvalidBalance)
	_, err = f.eng.AddToBucket(f.env, f.other, coins("ua", 1), "b")
	require.ErrorIs(t, err, market.ErrNotFound)

	_, err = f.eng.RemoveBucket(f.env, f.other, "b")
	require.ErrorIs(t, err, market.ErrNotFound)
	resp, err := f.eng.RemoveBucket(f.env, f.buyer, "b")
	require.NoError(t, err)
	require.Len(t, resp.Messages, 1)
	require.Equal(t, f.collection, wasmExec(t, resp.Messages[0]).ContractAddr)

	_, ok, err := f.mgr.BucketGet(f.buyer, "b")
	require.NoError(t, err)
	require.False(t, ok)
}

func TestBundleSizeBound(t *testing.T) {
	f := newFixture(t)
	f.list("big", market.NftDelivery(f.collection, "0"), nativeAsk("ub", 1))
	for i := 1; i < market.MaxNumAssets; i++ {
		_, err := f.eng.AddToListing(f.env, f.creator, market.NftDelivery(f.collection, string(rune('a'+i))), "big")
		require.NoError(t, err)
	}
	_, err := f.eng.AddToListing(f.env, f.creator, market.NftDelivery(f.collection, "overflow"), "big")
	require.ErrorIs(t, err, market.ErrInvalidBalance)
	require.Len(t, f.listing("big").ForSale.Nfts, market.MaxNumAssets)
}

func TestAdminCommands(t *testing.T) {
	f := newFixture(t)
	natives := []market.AllowedAsset{{Name: "z", ID: "uz"}}
	_, err := f.eng.UpdateAllowList(f.env, f.other, market.UpdateAllowListMsg{Natives: &natives})
	require.ErrorIs(t, err, market.ErrUnauthorized)
	_, err = f.eng.UpdateAllowList(f.env, f.admin, market.UpdateAllowListMsg{Natives: &natives})
	require.NoError(t, err)

	_, err = f.eng.CreateListing(f.env, f.creator, coins("ua", 1), "x", market.CreateListingMsg{Ask: nativeAsk("ub", 1)})
	require.ErrorIs(t, err, market.ErrNotAllowListed)
	f.list("x", coins("ua", 1), nativeAsk("uz", 1))

	bps := uint32(10_001)
	_, err = f.eng.UpdateFeeConfig(f.env, f.admin, market.UpdateFeeConfigMsg{FeeBps: &bps})
	require.ErrorIs(t, err, market.ErrInvalidMessage)
	bps = 250
	collector := f.other
	_, err = f.eng.UpdateFeeConfig(f.env, f.admin, market.UpdateFeeConfigMsg{FeeBps: &bps, FeeCollector: &collector})
	require.NoError(t, err)

	cfg, ok, err := f.mgr.MarketConfig()
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, uint32(250), cfg.FeeBps)
	require.Equal(t, f.other, cfg.FeeCollector)
	require.Len(t, cfg.Tokens, 1)
}

func TestEventsRecorded(t *testing.T) {
	f := newFixture(t)
	f.list("e", coins("ua", 1), nativeAsk("ub", 1))
	_, err := f.eng.Finalize(f.env, f.creator, "e", 600)
	require.NoError(t, err)

	recorded := f.rec.Drain()
	require.Len(t, recorded, 2)
	require.Equal(t, market.EventTypeListingCreated, recorded[0].Type)
	require.Equal(t, "e", recorded[0].Attributes["listingId"])
	require.Equal(t, market.EventTypeListingFinalized, recorded[1].Type)
}

func bankPayouts(t *testing.T, msgs []wasmvmtypes.CosmosMsg) map[string]string {
	t.Helper()
	out := map[string]string{}
	for _, msg := range msgs {
		if msg.Bank == nil {
			continue
		}
		send := bankSend(t, msg)
		require.Len(t, send.Amount, 1)
		out[send.ToAddress] = send.Amount[0].Amount
	}
	return out
}

func TestBuyRejectsRoyaltiesAboveWholeSale(t *testing.T) {
	f := newFixture(t)
	second := f.codec.AccountAddress("collection-2")
	firstArtist, secondArtist := f.codec.AccountAddress("artist-1"), f.codec.AccountAddress("artist-2")
	f.royalties.infos[f.collection] = &market.RoyaltyInfo{Payout: firstArtist, Bps: 6000}
	f.royalties.infos[second] = &market.RoyaltyInfo{Payout: secondArtist, Bps: 5000}

	f.list("pair", market.NftDelivery(f.collection, "1"), nativeAsk("ua", 100))
	_, err := f.eng.AddToListing(f.env, f.creator, market.NftDelivery(second, "2"), "pair")
	require.NoError(t, err)
	_, err = f.eng.Finalize(f.env, f.creator, "pair", 3600)
	require.NoError(t, err)
	_, err = f.eng.CreateBucket(f.env, f.buyer, coins("ua", 100), "b")
	require.NoError(t, err)

	_, err = f.eng.BuyListing(f.env, f.buyer, "pair", "b")
	require.ErrorIs(t, err, market.ErrInvalidBalance)
	_, ok, err := f.mgr.BucketGet(f.buyer, "b")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, market.StatusFinalizedReady, f.listing("pair").Status)

	f.royalties.infos[second].Bps = 4000
	_, err = f.eng.BuyListing(f.env, f.buyer, "pair", "b")
	require.NoError(t, err)

	// Terms raised after the purchase are capped so settlement still completes.
	f.royalties.infos[second].Bps = 9000
	resp, err := f.eng.WithdrawPurchased(f.env, f.creator, "pair")
	require.NoError(t, err)
	require.Equal(t, map[string]string{firstArtist: "60", secondArtist: "40"}, bankPayouts(t, resp.Messages))

	_, ok, err = f.mgr.ListingByID("pair")
	require.NoError(t, err)
	require.False(t, ok)
}

func TestPaddedDenomMatchesAsk(t *testing.T) {
	f := newFixture(t)
	f.list("pad", coins("ua", 10), nativeAsk("ub", 5))
	_, err := f.eng.Finalize(f.env, f.creator, "pad", 3600)
	require.NoError(t, err)

	_, err = f.exec(f.buyer, []market.NativeBalance{
		{Denom: "ub", Amount: market.NewUint128(2)},
		{Denom: " ub", Amount: market.NewUint128(3)},
	}, `{"create_bucket":{"bucket_id":"b"}}`)
	require.ErrorIs(t, err, market.ErrInvalidBalance)

	_, err = f.exec(f.buyer, funds(" ub ", 5), `{"create_bucket":{"bucket_id":"b"}}`)
	require.NoError(t, err)
	bucket, ok, err := f.mgr.BucketGet(f.buyer, "b")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, "ub", bucket.Funds.Native[0].Denom)

	_, err = f.eng.BuyListing(f.env, f.buyer, "pad", "b")
	require.NoError(t, err)
}

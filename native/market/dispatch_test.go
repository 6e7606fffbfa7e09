package market_test

import (
	"encoding/base64"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"

	"cyberswap/native/market"
)

func (f *fixture) exec(sender string, funds []market.NativeBalance, raw string) (*market.Response, error) {
	return f.eng.Execute(f.env, market.MessageInfo{Sender: sender, Funds: funds}, []byte(raw))
}

func funds(denom string, amount uint64) []market.NativeBalance {
	return []market.NativeBalance{{Denom: denom, Amount: market.NewUint128(amount)}}
}

func b64(s string) string { return base64.StdEncoding.EncodeToString([]byte(s)) }

func TestDecodeExecuteMsg(t *testing.T) {
	msg, err := market.DecodeExecuteMsg([]byte(`{"finalize":{"listing_id":"1","seconds":600}}`))
	require.NoError(t, err)
	require.Equal(t, "finalize", msg.Name())
	require.Equal(t, uint64(600), msg.Finalize.Seconds)

	_, err = market.DecodeExecuteMsg([]byte(`{}`))
	require.ErrorIs(t, err, market.ErrInvalidMessage)
	_, err = market.DecodeExecuteMsg([]byte(`{"fee_cycle":{},"remove_bucket":{"bucket_id":"1"}}`))
	require.ErrorIs(t, err, market.ErrInvalidMessage)
	_, err = market.DecodeExecuteMsg([]byte(`{"steal":{}}`))
	require.ErrorIs(t, err, market.ErrInvalidMessage)
	_, err = market.DecodeExecuteMsg([]byte(`{"fee_cycle":{}} {}`))
	require.ErrorIs(t, err, market.ErrInvalidMessage)
}

func TestDirectChannelCreatesListingFromFunds(t *testing.T) {
	f := newFixture(t)
	raw := `{"create_listing":{"listing_id":"d1","create_msg":{"ask":{"native":[{"denom":"ub","amount":"10"}]},"whitelisted_buyer":null}}}`

	_, err := f.exec(f.creator, nil, raw)
	require.ErrorIs(t, err, market.ErrInvalidBalance)

	_, err = f.exec(f.creator, funds("ua", 0), raw)
	require.ErrorIs(t, err, market.ErrInvalidBalance)

	resp, err := f.exec(f.creator, funds("ua", 25), raw)
	require.NoError(t, err)
	require.Equal(t, "create_listing", resp.Action)
	require.Equal(t, "25", f.listing("d1").ForSale.Native[0].Amount.String())

	_, err = f.exec(f.creator, funds("ua", 1), `{"finalize":{"listing_id":"d1","seconds":600}}`)
	require.ErrorIs(t, err, market.ErrInvalidMessage)
	_, err = f.exec(f.creator, nil, `{"finalize":{"listing_id":"d1","seconds":600}}`)
	require.NoError(t, err)
}

func TestCw20ReceiveAttributesDeliveryToCaller(t *testing.T) {
	f := newFixture(t)
	inner := `{"create_bucket_cw20":{"bucket_id":"tb"}}`
	raw := `{"receive":{"sender":"` + f.buyer + `","amount":"300","msg":"` + b64(inner) + `"}}`

	_, err := f.exec(f.token, nil, raw)
	require.NoError(t, err)

	bucket, ok, err := f.mgr.BucketGet(f.buyer, "tb")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, []market.TokenBalance{{Address: f.token, Amount: market.NewUint128(300)}}, bucket.Funds.Cw20)

	_, ok, err = f.mgr.BucketGet(f.token, "tb")
	require.NoError(t, err)
	require.False(t, ok)
}

func TestCw721ReceiveCreatesListing(t *testing.T) {
	f := newFixture(t)
	inner := `{"create_listing_cw721":{"listing_id":"n1","create_msg":{"ask":{"native":[{"denom":"ua","amount":"5"}]}}}}`
	raw := `{"receive_nft":{"sender":"` + f.creator + `","token_id":"42","msg":"` + b64(inner) + `"}}`

	_, err := f.exec(f.collection, nil, raw)
	require.NoError(t, err)

	listing := f.listing("n1")
	require.Equal(t, f.creator, listing.Creator)
	require.Equal(t, []market.NFT{{Contract: f.collection, TokenID: "42"}}, listing.ForSale.Nfts)

	addInner := `{"add_to_listing_cw721":{"listing_id":"n1"}}`
	_, err = f.exec(f.collection, nil, `{"receive_nft":{"sender":"`+f.creator+`","token_id":"42","msg":"`+b64(addInner)+`"}}`)
	require.ErrorIs(t, err, market.ErrInvalidBalance)
}

func TestReceiveRejectsWrongChannel(t *testing.T) {
	f := newFixture(t)
	nftOnToken := `{"receive":{"sender":"` + f.buyer + `","amount":"1","msg":"` + b64(`{"create_bucket_cw721":{"bucket_id":"x"}}`) + `"}}`
	_, err := f.exec(f.token, nil, nftOnToken)
	require.ErrorIs(t, err, market.ErrChannelMismatch)

	tokenOnNft := `{"receive_nft":{"sender":"` + f.buyer + `","token_id":"1","msg":"` + b64(`{"add_to_bucket_cw20":{"bucket_id":"x"}}`) + `"}}`
	_, err = f.exec(f.collection, nil, tokenOnNft)
	require.ErrorIs(t, err, market.ErrChannelMismatch)

	zero := `{"receive":{"sender":"` + f.buyer + `","amount":"0","msg":"` + b64(`{"create_bucket_cw20":{"bucket_id":"x"}}`) + `"}}`
	_, err = f.exec(f.token, nil, zero)
	require.ErrorIs(t, err, market.ErrInvalidBalance)

	badSender := `{"receive":{"sender":"nope","amount":"1","msg":"` + b64(`{"create_bucket_cw20":{"bucket_id":"x"}}`) + `"}}`
	_, err = f.exec(f.token, nil, badSender)
	require.ErrorIs(t, err, market.ErrInvalidMessage)

	_, err = f.exec(f.token, funds("ua", 1), `{"receive":{"sender":"`+f.buyer+`","amount":"1","msg":"`+b64(`{"create_bucket_cw20":{"bucket_id":"x"}}`)+`"}}`)
	require.ErrorIs(t, err, market.ErrInvalidMessage)
}

func TestQueries(t *testing.T) {
	f := newFixture(t)
	for i := 0; i < 25; i++ {
		id := string(rune('A'+i/10)) + string(rune('0'+i%10))
		f.list(id, coins("ua", 1), nativeAsk("ub", 1))
		if i%2 == 0 {
			_, err := f.eng.Finalize(f.env, f.creator, id, 600)
			require.NoError(t, err)
		}
	}
	_, err := f.eng.CreateBucket(f.env, f.buyer, coins("ub", 1), "q")
	require.NoError(t, err)

	query := func(raw string, out any) {
		t.Helper()
		data, err := f.eng.Query(f.env, []byte(raw))
		require.NoError(t, err)
		require.NoError(t, json.Unmarshal(data, out))
	}

	var byOwner market.ListingsResponse
	query(`{"get_listings_by_owner":{"owner":"`+f.creator+`","page_num":1}}`, &byOwner)
	require.Len(t, byOwner.Listings, market.PageSize)
	require.Equal(t, "A0", byOwner.Listings[0].ID)
	query(`{"get_listings_by_owner":{"owner":"`+f.creator+`","page_num":2}}`, &byOwner)
	require.Len(t, byOwner.Listings, 5)
	require.Equal(t, "C4", byOwner.Listings[4].ID)

	var zeroPage market.ListingsResponse
	query(`{"get_listings_by_owner":{"owner":"`+f.creator+`","page_num":0}}`, &zeroPage)
	require.Equal(t, "A0", zeroPage.Listings[0].ID)

	var forMarket market.ListingsResponse
	query(`{"get_listings_for_market":{"page_num":1}}`, &forMarket)
	require.Len(t, forMarket.Listings, 13)
	for _, l := range forMarket.Listings {
		require.Equal(t, market.StatusFinalizedReady, l.Status)
	}

	var empty market.ListingsResponse
	query(`{"get_listings_for_market":{"page_num":3}}`, &empty)
	require.Empty(t, empty.Listings)

	var buckets market.BucketsResponse
	query(`{"get_buckets":{"owner":"`+f.buyer+`","page_num":1}}`, &buckets)
	require.Len(t, buckets.Buckets, 1)

	var fee market.FeeDenomResponse
	query(`{"get_fee_denom":{}}`, &fee)
	require.Equal(t, market.FeeKindA, fee.Kind)
	require.Equal(t, "ub", fee.Asset.Native)
	require.Equal(t, f.env.Height, fee.NextChangeBlock)

	var royalty market.RoyaltyAddrResponse
	query(`{"get_royalty_addr":{}}`, &royalty)
	require.NotNil(t, royalty.Address)
	require.Equal(t, f.registry, *royalty.Address)

	var single market.Listing
	query(`{"get_listing":{"listing_id":"A1"}}`, &single)
	require.Equal(t, market.StatusBeingPrepared, single.Status)

	_, err = f.eng.Query(f.env, []byte(`{"get_listing":{"listing_id":"zz"}}`))
	require.ErrorIs(t, err, market.ErrNotFound)
	_, err = f.eng.Query(f.env, []byte(`{"get_config":{},"get_fee_denom":{}}`))
	require.ErrorIs(t, err, market.ErrInvalidMessage)
}

func TestWhitelistQueryOnlyFinalized(t *testing.T) {
	f := newFixture(t)
	reserved := f.buyer
	for _, id := range []string{"w1", "w2"} {
		_, err := f.eng.CreateListing(f.env, f.creator, coins("ua", 1), id, market.CreateListingMsg{
			Ask:              nativeAsk("ub", 1),
			WhitelistedBuyer: &reserved,
		})
		require.NoError(t, err)
	}
	_, err := f.eng.Finalize(f.env, f.creator, "w2", 600)
	require.NoError(t, err)

	resp, err := f.eng.ListingsByWhitelist(f.buyer, 1)
	require.NoError(t, err)
	require.Len(t, resp.Listings, 1)
	require.Equal(t, "w2", resp.Listings[0].ID)

	resp, err = f.eng.ListingsByWhitelist(f.other, 1)
	require.NoError(t, err)
	require.Empty(t, resp.Listings)
}

func TestFinalizedBetweenQuery(t *testing.T) {
	f := newFixture(t)
	for i, id := range []string{"f1", "f2", "f3"} {
		f.list(id, coins("ua", 1), nativeAsk("ub", 1))
		env := f.env
		env.Time = startTime + int64(i)*100
		_, err := f.eng.Finalize(env, f.creator, id, 600)
		require.NoError(t, err)
	}
	f.list("open", coins("ua", 1), nativeAsk("ub", 1))

	var resp market.ListingsResponse
	data, err := f.eng.Query(f.env, []byte(`{"get_listings_finalized_between":{"from":0,"to":1700000101,"page_num":1}}`))
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal(data, &resp))
	require.Len(t, resp.Listings, 2)
	require.Equal(t, "f1", resp.Listings[0].ID)
	require.Equal(t, "f2", resp.Listings[1].ID)

	empty, err := f.eng.ListingsFinalizedBetween(uint64(startTime+300), uint64(startTime), 1)
	require.NoError(t, err)
	require.Empty(t, empty.Listings)
	later, err := f.eng.ListingsFinalizedBetween(0, uint64(startTime+1000), 2)
	require.NoError(t, err)
	require.Empty(t, later.Listings)
}

func TestCommandOnForeignChannelIsChannelMismatch(t *testing.T) {
	f := newFixture(t)
	_, err := f.exec(f.creator, funds("ua", 1), `{"create_listing_cw20":{"listing_id":"x","create_msg":{"ask":{"native":[{"denom":"ub","amount":"1"}]}}}}`)
	require.ErrorIs(t, err, market.ErrChannelMismatch)
	_, err = f.exec(f.creator, nil, `{"add_to_bucket_cw721":{"bucket_id":"x"}}`)
	require.ErrorIs(t, err, market.ErrChannelMismatch)

	direct := `{"receive":{"sender":"` + f.buyer + `","amount":"1","msg":"` + b64(`{"create_listing":{"listing_id":"x","create_msg":{"ask":{"native":[{"denom":"ub","amount":"1"}]}}}}`) + `"}}`
	_, err = f.exec(f.token, nil, direct)
	require.ErrorIs(t, err, market.ErrChannelMismatch)

	directOnNft := `{"receive_nft":{"sender":"` + f.buyer + `","token_id":"1","msg":"` + b64(`{"fee_cycle":{}}`) + `"}}`
	_, err = f.exec(f.collection, nil, directOnNft)
	require.ErrorIs(t, err, market.ErrChannelMismatch)

	unknown := `{"receive":{"sender":"` + f.buyer + `","amount":"1","msg":"` + b64(`{"steal":{}}`) + `"}}`
	_, err = f.exec(f.token, nil, unknown)
	require.ErrorIs(t, err, market.ErrInvalidMessage)
}

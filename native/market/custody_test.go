package market_test

import (
	"encoding/json"
	"math/big"
	"testing"

	wasmvmtypes "github.com/CosmWasm/wasmvm/types"
	"github.com/stretchr/testify/require"

	"cyberswap/native/market"
)

// custodyLedger tracks every asset delivered to the marketplace and every
// asset released by an outbound message.
type custodyLedger struct {
	t         *testing.T
	f         *fixture
	deposited map[string]*big.Int
	released  map[string]*big.Int
	statuses  map[string]market.ListingStatus
}

func newCustodyLedger(f *fixture) *custodyLedger {
	return &custodyLedger{
		t:         f.t,
		f:         f,
		deposited: map[string]*big.Int{},
		released:  map[string]*big.Int{},
		statuses:  map[string]market.ListingStatus{},
	}
}

func credit(into map[string]*big.Int, key string, amount *big.Int) {
	if into[key] == nil {
		into[key] = new(big.Int)
	}
	into[key].Add(into[key], amount)
}

func amountOf(t *testing.T, s string) *big.Int {
	t.Helper()
	v, ok := new(big.Int).SetString(s, 10)
	require.True(t, ok, "amount %q", s)
	return v
}

func creditBalance(t *testing.T, into map[string]*big.Int, b market.GenericBalance) {
	for _, coin := range b.Native {
		credit(into, "native:"+coin.Denom, amountOf(t, coin.Amount.String()))
	}
	for _, token := range b.Cw20 {
		credit(into, "cw20:"+token.Address, amountOf(t, token.Amount.String()))
	}
	for _, nft := range b.Nfts {
		credit(into, "nft:"+nft.Contract+"/"+nft.TokenID, big.NewInt(1))
	}
}

func (l *custodyLedger) deliver(d market.Delivery) market.Delivery {
	var b market.GenericBalance
	require.NoError(l.t, b.Merge(d))
	creditBalance(l.t, l.deposited, b)
	return d
}

func (l *custodyLedger) release(resp *market.Response, err error) {
	l.t.Helper()
	require.NoError(l.t, err)
	for _, msg := range resp.Messages {
		switch {
		case msg.Bank != nil:
			for _, coin := range msg.Bank.Send.Amount {
				credit(l.released, "native:"+coin.Denom, amountOf(l.t, coin.Amount))
			}
		case msg.Wasm != nil:
			l.releaseWasm(msg.Wasm.Execute)
		default:
			l.t.Fatalf("unexpected outbound message %+v", msg)
		}
	}
	l.check()
}

func (l *custodyLedger) releaseWasm(exec *wasmvmtypes.ExecuteMsg) {
	var body struct {
		Transfer *struct {
			Amount string `json:"amount"`
		} `json:"transfer"`
		TransferNft *struct {
			TokenID string `json:"token_id"`
		} `json:"transfer_nft"`
	}
	require.NoError(l.t, json.Unmarshal(exec.Msg, &body))
	switch {
	case body.Transfer != nil:
		credit(l.released, "cw20:"+exec.ContractAddr, amountOf(l.t, body.Transfer.Amount))
	case body.TransferNft != nil:
		credit(l.released, "nft:"+exec.ContractAddr+"/"+body.TransferNft.TokenID, big.NewInt(1))
	default:
		l.t.Fatalf("unexpected wasm message %s", exec.Msg)
	}
}

// held sums every bundle still escrowed and checks that no listing moved
// back to an earlier status.
func (l *custodyLedger) held() map[string]*big.Int {
	l.t.Helper()
	out := map[string]*big.Int{}
	for _, owner := range []string{l.f.creator, l.f.buyer, l.f.other} {
		listings, err := l.f.mgr.ListingsByOwner(owner, 0, 100)
		require.NoError(l.t, err)
		for _, listing := range listings {
			require.GreaterOrEqual(l.t, uint8(listing.Status), uint8(l.statuses[listing.ID]), "listing %s regressed", listing.ID)
			l.statuses[listing.ID] = listing.Status
			creditBalance(l.t, out, listing.ForSale)
			creditBalance(l.t, out, listing.Payout)
		}
		buckets, err := l.f.mgr.BucketsByOwner(owner, 0, 100)
		require.NoError(l.t, err)
		for _, bucket := range buckets {
			creditBalance(l.t, out, bucket.Funds)
		}
	}
	return out
}

// check asserts deposited == released + held for every asset.
func (l *custodyLedger) check() {
	l.t.Helper()
	held := l.held()
	keys := map[string]struct{}{}
	for _, m := range []map[string]*big.Int{l.deposited, l.released, held} {
		for key := range m {
			keys[key] = struct{}{}
		}
	}
	for key := range keys {
		in, out, kept := new(big.Int), new(big.Int), new(big.Int)
		if v := l.deposited[key]; v != nil {
			in.Set(v)
		}
		if v := l.released[key]; v != nil {
			out.Set(v)
		}
		if v := held[key]; v != nil {
			kept.Set(v)
		}
		require.Zerof(l.t, in.Cmp(new(big.Int).Add(out, kept)), "%s: deposited %s, released %s, held %s", key, in, out, kept)
	}
}

func (l *custodyLedger) step(_ *market.Response, err error) {
	l.t.Helper()
	require.NoError(l.t, err)
	l.check()
}

func TestCustodyConservedAcrossLifecycle(t *testing.T) {
	f := newFixture(t)
	l := newCustodyLedger(f)
	f.royalties.infos[f.collection] = &market.RoyaltyInfo{Payout: f.codec.AccountAddress("artist"), Bps: 500}

	ask := market.GenericBalance{
		Native: []market.NativeBalance{{Denom: "ub", Amount: market.NewUint128(300)}},
		Cw20:   []market.TokenBalance{{Address: f.token, Amount: market.NewUint128(50)}},
	}
	l.step(f.eng.CreateListing(f.env, f.creator, l.deliver(coins("ua", 100)), "L1", market.CreateListingMsg{Ask: ask}))
	l.step(f.eng.AddToListing(f.env, f.creator, l.deliver(market.NftDelivery(f.collection, "1")), "L1"))
	l.step(f.eng.Finalize(f.env, f.creator, "L1", 3600))

	l.step(f.eng.CreateBucket(f.env, f.buyer, l.deliver(coins("ub", 300)), "pay"))
	l.step(f.eng.AddToBucket(f.env, f.buyer, l.deliver(market.TokenDelivery(f.token, market.NewUint128(50))), "pay"))
	l.step(f.eng.BuyListing(f.env, f.buyer, "L1", "pay"))
	require.Equal(t, market.StatusClosed, l.statuses["L1"])
	l.release(f.eng.WithdrawPurchased(f.env, f.buyer, "L1"))

	l.step(f.eng.CreateListing(f.env, f.creator, l.deliver(market.TokenDelivery(f.token, market.NewUint128(40))), "L2", market.CreateListingMsg{Ask: nativeAsk("ua", 1)}))
	l.release(f.eng.DeleteListing(f.env, f.creator, "L2"))

	l.step(f.eng.CreateListing(f.env, f.other, l.deliver(coins("ua", 9)), "L3", market.CreateListingMsg{Ask: nativeAsk("ub", 1)}))
	l.step(f.eng.Finalize(f.env, f.other, "L3", 600))
	later := f.env
	later.Time += 600
	l.release(f.eng.DeleteListing(later, f.other, "L3"))

	l.step(f.eng.CreateBucket(f.env, f.other, l.deliver(coins("ub", 7)), "spare"))
	l.release(f.eng.RemoveBucket(f.env, f.other, "spare"))

	require.Empty(t, l.held())
	require.Equal(t, len(l.deposited), len(l.released))
	for key, in := range l.deposited {
		require.Zerof(t, in.Cmp(l.released[key]), "%s not fully released", key)
	}
}

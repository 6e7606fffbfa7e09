package state

import (
	"fmt"

	"github.com/ethereum/go-ethereum/rlp"

	"cyberswap/native/royalty"
)

type storedRoyalty struct {
	Collection string
	Payout     string
	Bps        uint64
}

func royaltyKey(collection string) []byte {
	return compositeKey(nsRoyaltyRegistry, []byte(collection))
}

func (m *Manager) RoyaltyAdmin() (string, bool, error) {
	var admin string
	ok, err := m.KVGet(singletonKey(nsRoyaltyConfig), &admin)
	return admin, ok, err
}

func (m *Manager) PutRoyaltyAdmin(admin string) error {
	return m.KVPut(singletonKey(nsRoyaltyConfig), admin)
}

func (m *Manager) RoyaltyEntry(collection string) (*royalty.Entry, bool, error) {
	var record storedRoyalty
	ok, err := m.KVGet(royaltyKey(collection), &record)
	if err != nil || !ok {
		return nil, ok, err
	}
	return &royalty.Entry{Collection: record.Collection, Payout: record.Payout, Bps: uint32(record.Bps)}, true, nil
}

func (m *Manager) PutRoyaltyEntry(entry *royalty.Entry) error {
	if entry == nil {
		return fmt.Errorf("royalty: nil value")
	}
	return m.KVPut(royaltyKey(entry.Collection), &storedRoyalty{
		Collection: entry.Collection,
		Payout:     entry.Payout,
		Bps:        uint64(entry.Bps),
	})
}

func (m *Manager) DeleteRoyaltyEntry(collection string) error {
	return m.KVDelete(royaltyKey(collection))
}

// RoyaltyEntries pages through registered royalties in collection order.
func (m *Manager) RoyaltyEntries(offset, limit int) ([]*royalty.Entry, error) {
	var out []*royalty.Entry
	skipped := 0
	err := m.scanPrefix(compositePrefix(nsRoyaltyRegistry), func(_, value []byte) (bool, error) {
		if len(out) >= limit {
			return false, nil
		}
		if skipped < offset {
			skipped++
			return true, nil
		}
		var record storedRoyalty
		if err := rlp.DecodeBytes(value, &record); err != nil {
			return false, fmt.Errorf("decode royalty: %w", err)
		}
		out = append(out, &royalty.Entry{Collection: record.Collection, Payout: record.Payout, Bps: uint32(record.Bps)})
		return len(out) < limit, nil
	})
	return out, err
}

package state

import (
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/rlp"

	"cyberswap/storage"
)

// Manager reads and writes contract state through a key/value scope. The host
// hands it a transaction for executions and the database itself for queries.
type Manager struct {
	kv storage.KV
}

// NewManager creates a state manager operating on the provided store.
func NewManager(kv storage.KV) *Manager {
	return &Manager{kv: kv}
}

// KVPut encodes value with RLP and stores it under key.
func (m *Manager) KVPut(key []byte, value interface{}) error {
	if len(key) == 0 {
		return fmt.Errorf("kv: key must not be empty")
	}
	encoded, err := rlp.EncodeToBytes(value)
	if err != nil {
		return err
	}
	return m.kv.Put(key, encoded)
}

// KVGet retrieves the value stored under the supplied key and decodes it into
// the provided destination. The boolean return value indicates whether the key
// existed in state.
func (m *Manager) KVGet(key []byte, out interface{}) (bool, error) {
	if len(key) == 0 {
		return false, fmt.Errorf("kv: key must not be empty")
	}
	data, err := m.kv.Get(key)
	if errors.Is(err, storage.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	if out == nil {
		return true, nil
	}
	if err := rlp.DecodeBytes(data, out); err != nil {
		return false, fmt.Errorf("kv: decode %x: %w", key, err)
	}
	return true, nil
}

// KVDelete removes key. Missing keys are ignored.
func (m *Manager) KVDelete(key []byte) error {
	return m.kv.Delete(key)
}

// scanPrefix calls fn with the value of every key under prefix in ascending
// key order until fn returns false. Values are copied before fn sees them.
func (m *Manager) scanPrefix(prefix []byte, fn func(key, value []byte) (bool, error)) error {
	start, limit := storage.PrefixRange(prefix)
	it := m.kv.NewIterator(start, limit)
	defer it.Release()
	for it.Next() {
		key := append([]byte(nil), it.Key()...)
		value := append([]byte(nil), it.Value()...)
		more, err := fn(key, value)
		if err != nil {
			return err
		}
		if !more {
			break
		}
	}
	return it.Error()
}

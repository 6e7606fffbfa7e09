package storage

import (
	"errors"
	"fmt"

	"github.com/syndtr/goleveldb/leveldb"
	lvlstorage "github.com/syndtr/goleveldb/leveldb/storage"
	"github.com/syndtr/goleveldb/leveldb/util"
)

// ErrNotFound is returned by Get when the key is absent.
var ErrNotFound = errors.New("storage: key not found")

// Iterator walks key/value pairs in ascending key order. Key and Value are
// only valid until the next call to Next.
type Iterator interface {
	Next() bool
	Key() []byte
	Value() []byte
	Release()
	Error() error
}

// KV is the read/write surface shared by the database and its transactions.
type KV interface {
	Get(key []byte) ([]byte, error)
	Has(key []byte) (bool, error)
	Put(key []byte, value []byte) error
	Delete(key []byte) error
	// NewIterator returns an iterator over [start, limit). A nil limit
	// iterates to the end of the keyspace.
	NewIterator(start, limit []byte) Iterator
}

// Txn is an isolated write scope. Reads observe the transaction's own
// writes; nothing reaches the database until Commit.
type Txn interface {
	KV
	Commit() error
	Discard()
}

// Database is a generic interface for a key-value store.
// This allows the marketplace to run on a persistent or an in-memory backend.
type Database interface {
	KV
	Begin() (Txn, error)
	Close()
}

// PrefixRange returns the [start, limit) bounds covering every key that
// starts with prefix.
func PrefixRange(prefix []byte) (start, limit []byte) {
	r := util.BytesPrefix(prefix)
	return r.Start, r.Limit
}

// LevelDB is a key-value store using LevelDB. It backs both the persistent
// node database and the in-memory database used by tests.
type LevelDB struct {
	db *leveldb.DB
}

// NewLevelDB creates or opens a LevelDB database at the specified path.
func NewLevelDB(path string) (*LevelDB, error) {
	db, err := leveldb.OpenFile(path, nil)
	if err != nil {
		return nil, fmt.Errorf("open leveldb %q: %w", path, err)
	}
	return &LevelDB{db: db}, nil
}

// NewMemDB returns a LevelDB instance backed by process memory. Contents are
// lost on Close.
func NewMemDB() *LevelDB {
	db, err := leveldb.Open(lvlstorage.NewMemStorage(), nil)
	if err != nil {
		// Opening a fresh memory storage cannot fail short of a goleveldb bug.
		panic(fmt.Sprintf("storage: open memory leveldb: %v", err))
	}
	return &LevelDB{db: db}
}

// Get retrieves a value for a given key.
func (ldb *LevelDB) Get(key []byte) ([]byte, error) {
	return translate(ldb.db.Get(key, nil))
}

// Has reports whether key exists.
func (ldb *LevelDB) Has(key []byte) (bool, error) {
	return ldb.db.Has(key, nil)
}

// Put inserts or updates a key-value pair.
func (ldb *LevelDB) Put(key []byte, value []byte) error {
	return ldb.db.Put(key, value, nil)
}

// Delete removes key. Deleting an absent key is not an error.
func (ldb *LevelDB) Delete(key []byte) error {
	return ldb.db.Delete(key, nil)
}

func (ldb *LevelDB) NewIterator(start, limit []byte) Iterator {
	return ldb.db.NewIterator(&util.Range{Start: start, Limit: limit}, nil)
}

// Begin opens a write transaction. Only one transaction may be open at a
// time; concurrent writers block until it commits or is discarded.
func (ldb *LevelDB) Begin() (Txn, error) {
	tr, err := ldb.db.OpenTransaction()
	if err != nil {
		return nil, fmt.Errorf("open transaction: %w", err)
	}
	return &levelTxn{tr: tr}, nil
}

// Close closes the database connection.
func (ldb *LevelDB) Close() {
	ldb.db.Close()
}

type levelTxn struct {
	tr *leveldb.Transaction
}

func (t *levelTxn) Get(key []byte) ([]byte, error) {
	return translate(t.tr.Get(key, nil))
}

func (t *levelTxn) Has(key []byte) (bool, error) {
	return t.tr.Has(key, nil)
}

func (t *levelTxn) Put(key []byte, value []byte) error {
	return t.tr.Put(key, value, nil)
}

func (t *levelTxn) Delete(key []byte) error {
	return t.tr.Delete(key, nil)
}

func (t *levelTxn) NewIterator(start, limit []byte) Iterator {
	return t.tr.NewIterator(&util.Range{Start: start, Limit: limit}, nil)
}

func (t *levelTxn) Commit() error {
	return t.tr.Commit()
}

func (t *levelTxn) Discard() {
	t.tr.Discard()
}

func translate(value []byte, err error) ([]byte, error) {
	if errors.Is(err, leveldb.ErrNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return value, nil
}

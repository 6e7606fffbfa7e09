package storage

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestTxnCommitPublishesWrites(t *testing.T) {
	db := NewMemDB()
	t.Cleanup(db.Close)

	require.NoError(t, db.Put([]byte("a"), []byte("1")))

	txn, err := db.Begin()
	require.NoError(t, err)
	require.NoError(t, txn.Put([]byte("b"), []byte("2")))
	require.NoError(t, txn.Delete([]byte("a")))

	// Reads inside the transaction see its own writes.
	got, err := txn.Get([]byte("b"))
	require.NoError(t, err)
	require.Equal(t, []byte("2"), got)
	_, err = txn.Get([]byte("a"))
	require.ErrorIs(t, err, ErrNotFound)

	require.NoError(t, txn.Commit())

	_, err = db.Get([]byte("a"))
	require.ErrorIs(t, err, ErrNotFound)
	got, err = db.Get([]byte("b"))
	require.NoError(t, err)
	require.Equal(t, []byte("2"), got)
}

func TestTxnDiscardDropsWrites(t *testing.T) {
	db := NewMemDB()
	t.Cleanup(db.Close)

	txn, err := db.Begin()
	require.NoError(t, err)
	require.NoError(t, txn.Put([]byte("k"), []byte("v")))
	txn.Discard()

	ok, err := db.Has([]byte("k"))
	require.NoError(t, err)
	require.False(t, ok)
}

func TestPrefixIteratorOrdersKeys(t *testing.T) {
	db := NewMemDB()
	t.Cleanup(db.Close)

	for _, k := range []string{"p/c", "p/a", "q/z", "p/b", "o/x"} {
		require.NoError(t, db.Put([]byte(k), []byte(k)))
	}
	start, limit := PrefixRange([]byte("p/"))
	it := db.NewIterator(start, limit)
	defer it.Release()

	var keys []string
	for it.Next() {
		keys = append(keys, string(it.Key()))
	}
	require.NoError(t, it.Error())
	require.Equal(t, []string{"p/a", "p/b", "p/c"}, keys)
}

func TestLevelDBPersistsAcrossReopen(t *testing.T) {
	dir := t.TempDir()

	db1, err := NewLevelDB(dir)
	require.NoError(t, err)
	require.NoError(t, db1.Put([]byte("key"), []byte("value")))
	db1.Close()

	db2, err := NewLevelDB(dir)
	require.NoError(t, err)
	defer db2.Close()

	got, err := db2.Get([]byte("key"))
	require.NoError(t, err)
	require.Equal(t, []byte("value"), got)
}

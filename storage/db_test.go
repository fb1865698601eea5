package storage

import (
	"fmt"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func testDatabase(t *testing.T, db Database) {
	t.Helper()

	_, err := db.Get([]byte("missing"))
	require.ErrorIs(t, err, ErrNotFound)

	require.NoError(t, db.Put([]byte("alpha"), []byte("1")))
	value, err := db.Get([]byte("alpha"))
	require.NoError(t, err)
	require.Equal(t, []byte("1"), value)

	ok, err := db.Has([]byte("alpha"))
	require.NoError(t, err)
	require.True(t, ok)

	require.NoError(t, db.Delete([]byte("alpha")))
	ok, err = db.Has([]byte("alpha"))
	require.NoError(t, err)
	require.False(t, ok)
	_, err = db.Get([]byte("alpha"))
	require.ErrorIs(t, err, ErrNotFound)
}

func testIterate(t *testing.T, db Database) {
	t.Helper()

	for i := 0; i < 5; i++ {
		key := fmt.Sprintf("feed/%02d", i)
		require.NoError(t, db.Put([]byte(key), []byte{byte(i)}))
	}
	require.NoError(t, db.Put([]byte("other/00"), []byte{0xFF}))

	var keys []string
	require.NoError(t, db.Iterate([]byte("feed/"), func(key, value []byte) bool {
		keys = append(keys, string(key))
		return true
	}))
	require.Equal(t, []string{"feed/00", "feed/01", "feed/02", "feed/03", "feed/04"}, keys)

	// Early stop.
	count := 0
	require.NoError(t, db.Iterate([]byte("feed/"), func(key, value []byte) bool {
		count++
		return count < 2
	}))
	require.Equal(t, 2, count)
}

func testWrite(t *testing.T, db Database) {
	t.Helper()

	require.NoError(t, db.Put([]byte("stale"), []byte("old")))

	batch := new(Batch)
	batch.Put([]byte("batch/a"), []byte("1"))
	batch.Put([]byte("batch/b"), []byte("2"))
	batch.Delete([]byte("stale"))
	require.Equal(t, 3, batch.Len())
	require.NoError(t, db.Write(batch))

	value, err := db.Get([]byte("batch/a"))
	require.NoError(t, err)
	require.Equal(t, []byte("1"), value)
	value, err = db.Get([]byte("batch/b"))
	require.NoError(t, err)
	require.Equal(t, []byte("2"), value)
	_, err = db.Get([]byte("stale"))
	require.ErrorIs(t, err, ErrNotFound)

	// Empty and nil batches are no-ops.
	require.NoError(t, db.Write(new(Batch)))
	require.NoError(t, db.Write(nil))
}

func TestMemDB(t *testing.T) {
	db := NewMemDB()
	defer db.Close()
	testDatabase(t, db)
	testIterate(t, db)
	testWrite(t, db)
}

func TestLevelDB(t *testing.T) {
	db, err := NewLevelDB(filepath.Join(t.TempDir(), "ledger"))
	require.NoError(t, err)
	defer db.Close()
	testDatabase(t, db)
	testIterate(t, db)
	testWrite(t, db)
}

func TestMemDBCopiesValues(t *testing.T) {
	db := NewMemDB()
	defer db.Close()

	original := []byte("value")
	require.NoError(t, db.Put([]byte("k"), original))
	original[0] = 'X'

	stored, err := db.Get([]byte("k"))
	require.NoError(t, err)
	require.Equal(t, []byte("value"), stored)
}

package index

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cairndb/cairndb/internal/datalog"
	"github.com/cairndb/cairndb/internal/record"
)

func TestUpsertLookupRemove(t *testing.T) {
	idx := New()

	idx.Upsert([]byte("foo"), 42)
	off, ok := idx.Lookup([]byte("foo"))
	require.True(t, ok)
	assert.EqualValues(t, 42, off)

	idx.Remove([]byte("foo"))
	_, ok = idx.Lookup([]byte("foo"))
	assert.False(t, ok)
}

func TestUpsertOverwritesOffset(t *testing.T) {
	idx := New()
	idx.Upsert([]byte("k"), 1)
	idx.Upsert([]byte("k"), 2)

	off, ok := idx.Lookup([]byte("k"))
	require.True(t, ok)
	assert.EqualValues(t, 2, off)
	assert.Equal(t, 1, idx.Len())
}

func TestUpsertCopiesKey(t *testing.T) {
	idx := New()
	key := []byte("mutate-me")
	idx.Upsert(key, 7)
	key[0] = 'X'

	off, ok := idx.Lookup([]byte("mutate-me"))
	require.True(t, ok)
	assert.EqualValues(t, 7, off)
}

func TestRebuildFromDataLog(t *testing.T) {
	path := filepath.Join(t.TempDir(), "data.log")
	dl, err := datalog.Open(path)
	require.NoError(t, err)
	defer dl.Close()

	offA, err := dl.AppendPut([]byte("a"), []byte("1"))
	require.NoError(t, err)
	_, err = dl.AppendPut([]byte("b"), []byte("2"))
	require.NoError(t, err)
	require.NoError(t, dl.AppendDelete([]byte("b")))
	offC, err := dl.AppendPut([]byte("c"), []byte("3"))
	require.NoError(t, err)
	require.NoError(t, dl.FlushAndSync())

	idx := New()
	require.NoError(t, idx.RebuildFrom(dl))

	assert.Equal(t, 2, idx.Len())

	off, ok := idx.Lookup([]byte("a"))
	require.True(t, ok)
	assert.EqualValues(t, offA, off)

	_, ok = idx.Lookup([]byte("b"))
	assert.False(t, ok)

	off, ok = idx.Lookup([]byte("c"))
	require.True(t, ok)
	assert.EqualValues(t, offC, off)
}

func TestRebuildFromSkipsUnknownOpcode(t *testing.T) {
	path := filepath.Join(t.TempDir(), "data.log")

	var buf []byte
	buf = record.EncodePut(buf, []byte("a"), []byte("1"))
	unknown := record.EncodePut(nil, []byte("b"), []byte("2"))
	unknown[0] = 0x7f
	buf = append(buf, unknown...)
	offC := int64(len(buf))
	buf = record.EncodePut(buf, []byte("c"), []byte("3"))
	require.NoError(t, os.WriteFile(path, buf, 0o644))

	dl, err := datalog.Open(path)
	require.NoError(t, err)
	defer dl.Close()

	idx := New()
	require.NoError(t, idx.RebuildFrom(dl))

	assert.Equal(t, 2, idx.Len())
	_, ok := idx.Lookup([]byte("b"))
	assert.False(t, ok)
	off, ok := idx.Lookup([]byte("c"))
	require.True(t, ok)
	assert.EqualValues(t, offC, off)
}

func TestRebuildFromClearsPriorState(t *testing.T) {
	path := filepath.Join(t.TempDir(), "data.log")
	dl, err := datalog.Open(path)
	require.NoError(t, err)
	defer dl.Close()

	_, err = dl.AppendPut([]byte("a"), []byte("1"))
	require.NoError(t, err)
	require.NoError(t, dl.FlushAndSync())

	idx := New()
	idx.Upsert([]byte("stale"), 999)
	require.NoError(t, idx.RebuildFrom(dl))

	_, ok := idx.Lookup([]byte("stale"))
	assert.False(t, ok)
}

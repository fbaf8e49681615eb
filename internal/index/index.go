// Package index implements the in-memory key -> offset mapping that
// Store.Get consults to find the latest record for a key.
//
// The map is backed by an in-memory B-tree rather than a Go map, to
// keep the keyspace ordered internally for cache-predictable traversal
// even though no ordered query is exposed publicly yet. google/btree
// gives that ordering along with amortized O(log n) lookup/insert/
// delete without hand-rolling a tree.
package index

import (
	"bytes"
	"fmt"

	"github.com/google/btree"

	"github.com/cairndb/cairndb/internal/datalog"
	"github.com/cairndb/cairndb/internal/record"
)

// degree controls the branching factor of the underlying B-tree. 32 is
// the value google/btree's own benchmarks settle on for byte-slice
// keys of modest size.
const degree = 32

// entry is the btree.Item stored for each indexed key.
type entry struct {
	key    []byte
	offset uint64
}

func (e *entry) Less(than btree.Item) bool {
	return bytes.Compare(e.key, than.(*entry).key) < 0
}

// Index maps key bytes to the data-log offset of that key's most
// recent PUT record. It is not safe for concurrent use.
type Index struct {
	tree *btree.BTree
}

// New returns an empty index.
func New() *Index {
	return &Index{tree: btree.New(degree)}
}

// Lookup returns the offset of key's latest record, or (0, false) if
// key has no entry (either never written, or last written was a
// DELETE).
func (idx *Index) Lookup(key []byte) (uint64, bool) {
	item := idx.tree.Get(&entry{key: key})
	if item == nil {
		return 0, false
	}
	return item.(*entry).offset, true
}

// Upsert records offset as the latest location of key, replacing any
// prior entry. The key is copied so the index does not alias a
// caller-owned buffer.
func (idx *Index) Upsert(key []byte, offset uint64) {
	owned := append([]byte(nil), key...)
	idx.tree.ReplaceOrInsert(&entry{key: owned, offset: offset})
}

// Remove deletes key's entry, if any.
func (idx *Index) Remove(key []byte) {
	idx.tree.Delete(&entry{key: key})
}

// Len returns the number of keys currently indexed.
func (idx *Index) Len() int {
	return idx.tree.Len()
}

// RebuildFrom replaces the index's contents with a fresh scan of dl:
// PUT inserts/overwrites the key's offset, DELETE removes it. A record
// with an opcode the data log doesn't recognize is left alone — it's
// skipped rather than treated as a reason to stop scanning, the same
// way a torn trailing record stops the scan cleanly rather than erroring.
func (idx *Index) RebuildFrom(dl *datalog.DataLog) error {
	idx.tree.Clear(false)

	_, err := dl.Scan(func(offset int64, rec record.Record) error {
		switch rec.Op {
		case record.Put:
			idx.Upsert(rec.Key, uint64(offset))
		case record.Delete:
			idx.Remove(rec.Key)
		default:
			// Unrecognized opcode: Scan has already framed it and moves
			// past it; there is nothing to index.
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("index: rebuild: %w", err)
	}
	return nil
}

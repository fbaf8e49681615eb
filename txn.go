package cairndb

import (
	"fmt"

	"github.com/cairndb/cairndb/internal/record"
)

// stagedOp is one operation staged on a Transaction, before it has been
// written anywhere. kind is always record.Put or record.Delete.
type stagedOp struct {
	kind  record.Op
	key   []byte
	value []byte
}

// Transaction stages an ordered sequence of Set/Delete operations and
// commits them atomically. It holds exclusive use of its Store for its
// lifetime: Store.Begin refuses a second transaction until this one is
// committed or discarded.
type Transaction struct {
	store *Store
	ops   []stagedOp
	done  bool
}

// Set stages an upsert of key to value, to take effect when the
// transaction commits. Both key and value are copied, so the
// transaction does not alias buffers the caller may reuse or mutate
// afterward.
func (t *Transaction) Set(key, value []byte) error {
	if t.done {
		return ErrTxnConsumed
	}
	if len(key) == 0 {
		return ErrKeyEmpty
	}
	t.ops = append(t.ops, stagedOp{
		kind:  record.Put,
		key:   append([]byte(nil), key...),
		value: append([]byte(nil), value...),
	})
	return nil
}

// Delete stages a removal of key, to take effect when the transaction
// commits.
func (t *Transaction) Delete(key []byte) error {
	if t.done {
		return ErrTxnConsumed
	}
	if len(key) == 0 {
		return ErrKeyEmpty
	}
	t.ops = append(t.ops, stagedOp{
		kind: record.Delete,
		key:  append([]byte(nil), key...),
	})
	return nil
}

// Discard releases the transaction's exclusive hold on the store
// without writing anything to either log or to the index. Calling it
// after Commit, or more than once, is itself a no-op.
func (t *Transaction) Discard() {
	if t.done {
		return
	}
	t.done = true
	t.store.txnInFlight = false
}

// Commit makes every staged operation durable and atomically visible,
// in seven steps:
//
//  1. BEGIN is written to the WAL buffer.
//  2. Every staged op is written to the WAL buffer, in staging order.
//  3. COMMIT is written to the WAL buffer.
//  4. The WAL buffer is flushed and fsynced — the linearization point:
//     from here on, a crash still reapplies this transaction on the
//     next Open.
//  5. Each op is appended to the data log, in staging order, updating
//     the index as it goes.
//  6. The data log is flushed and fsynced.
//  7. The WAL is truncated to length 0 and fsynced.
//
// Because the data log is rewritten in staging order, the last
// operation on any key staged more than once wins: a later Set or
// Delete on a key simply overwrites whatever index entry (or absence)
// an earlier operation on that key produced.
//
// Commit consumes the transaction whether or not it succeeds: the
// store's exclusive hold is released either way, since a failed commit
// may have left on-disk state the caller should no longer drive further
// transactions against without first reopening the store. A
// transaction with no staged operations commits as a no-op, writing
// nothing to either log.
func (t *Transaction) Commit() error {
	if t.done {
		return ErrTxnConsumed
	}
	t.done = true
	t.store.txnInFlight = false

	if len(t.ops) == 0 {
		return nil
	}

	s := t.store

	if err := s.w.BeginTxn(); err != nil {
		return fmt.Errorf("cairndb: commit: %w", err)
	}
	for _, o := range t.ops {
		var err error
		switch o.kind {
		case record.Put:
			err = s.w.StagePut(o.key, o.value)
		case record.Delete:
			err = s.w.StageDelete(o.key)
		}
		if err != nil {
			return fmt.Errorf("cairndb: commit: stage: %w", err)
		}
	}
	if err := s.w.CommitTxn(); err != nil {
		return fmt.Errorf("cairndb: commit: wal fsync: %w", err)
	}

	recs := make([]record.Record, len(t.ops))
	for i, o := range t.ops {
		recs[i] = record.Record{Op: o.kind, Key: o.key, Value: o.value}
	}
	if err := s.applyToDataLog(recs); err != nil {
		return fmt.Errorf("cairndb: commit: apply: %w", err)
	}

	if err := s.w.Clear(); err != nil {
		return fmt.Errorf("cairndb: commit: clear wal: %w", err)
	}

	return nil
}

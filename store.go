// Package cairndb is an embedded, single-process, single-writer
// key/value store with atomic multi-operation transactions and durable
// recovery via a write-ahead log. It maps opaque byte-string keys to
// opaque byte-string values, persisting all state to two append-mostly
// files — a data log and a WAL — on the local filesystem, and rebuilds
// its in-memory index from those files on Open.
//
// cairndb is not safe for concurrent use: there is exactly one Store
// handle per data/WAL file pair per process, and all operations block
// the caller until they complete.
package cairndb

import (
	"fmt"

	"github.com/cairndb/cairndb/internal/config"
	"github.com/cairndb/cairndb/internal/datalog"
	"github.com/cairndb/cairndb/internal/index"
	"github.com/cairndb/cairndb/internal/record"
	"github.com/cairndb/cairndb/internal/wal"
)

// Store is an open cairndb handle: the data log, the WAL, and the
// in-memory index built from them, plus a flag tracking whether a
// transaction currently holds exclusive use of the store.
type Store struct {
	dl  *datalog.DataLog
	w   *wal.WAL
	idx *index.Index

	txnInFlight bool
}

// Open opens (creating if absent) the data log and WAL named by cfg,
// performs crash recovery, and returns a ready store handle. A nil cfg
// uses config.DefaultConfig().
//
// Recovery proceeds in three steps:
//
//  1. Any torn trailing record left in the data log by a crash during
//     a previous append phase is truncated away, so WAL replay never
//     appends after garbage bytes.
//  2. The WAL is replayed: each fully-committed transaction found in
//     it is applied to the data log, and the WAL is then truncated to
//     length 0 regardless of what (if anything) was replayed.
//  3. The in-memory index is rebuilt by scanning the (now consistent)
//     data log front to back.
func Open(cfg *config.Config) (*Store, error) {
	if cfg == nil {
		cfg = config.DefaultConfig()
	}

	dl, err := datalog.Open(cfg.DataLogPath())
	if err != nil {
		return nil, fmt.Errorf("cairndb: open data log: %w", err)
	}

	w, err := wal.Open(cfg.WALPath())
	if err != nil {
		dl.Close()
		return nil, fmt.Errorf("cairndb: open wal: %w", err)
	}

	s := &Store{dl: dl, w: w, idx: index.New()}

	if err := s.recover(); err != nil {
		w.Close()
		dl.Close()
		return nil, fmt.Errorf("cairndb: recover: %w", err)
	}

	return s, nil
}

func (s *Store) recover() error {
	if err := s.truncateTornDataLogTail(); err != nil {
		return fmt.Errorf("truncate torn tail: %w", err)
	}

	if err := s.w.Replay(s.applyToDataLog); err != nil {
		return fmt.Errorf("replay wal: %w", err)
	}

	if err := s.idx.RebuildFrom(s.dl); err != nil {
		return fmt.Errorf("rebuild index: %w", err)
	}

	return nil
}

// truncateTornDataLogTail scans the data log once to find the end of
// its last complete record, and truncates away anything after it. A
// scan that reaches the existing end of file with no torn tail is a
// no-op.
func (s *Store) truncateTornDataLogTail() error {
	lastGood, err := s.dl.Scan(func(int64, record.Record) error { return nil })
	if err != nil {
		return err
	}
	if lastGood < s.dl.Size() {
		return s.dl.Truncate(lastGood)
	}
	return nil
}

// applyToDataLog appends ops to the data log in order and updates the
// index, then flushes and fsyncs the data log once for the whole
// batch. It's shared by WAL replay's COMMIT action and by a live
// Transaction.Commit, since both need to do exactly the same thing:
// make an already-durable set of operations visible in the data log.
func (s *Store) applyToDataLog(ops []record.Record) error {
	for _, op := range ops {
		if err := s.applyOne(op); err != nil {
			return err
		}
	}
	return s.dl.FlushAndSync()
}

func (s *Store) applyOne(op record.Record) error {
	switch op.Op {
	case record.Put:
		offset, err := s.dl.AppendPut(op.Key, op.Value)
		if err != nil {
			return err
		}
		s.idx.Upsert(op.Key, uint64(offset))
		return nil
	case record.Delete:
		if err := s.dl.AppendDelete(op.Key); err != nil {
			return err
		}
		s.idx.Remove(op.Key)
		return nil
	default:
		return fmt.Errorf("cairndb: unexpected op %s in committed transaction", op.Op)
	}
}

// Begin starts a new transaction on s. It returns ErrTxnInProgress if a
// previously begun transaction has not yet been committed or discarded.
func (s *Store) Begin() (*Transaction, error) {
	if s.txnInFlight {
		return nil, ErrTxnInProgress
	}
	s.txnInFlight = true
	return &Transaction{store: s}, nil
}

// Get returns the value most recently committed for key. ok is false
// if key was never written, or if its latest operation was a Delete.
// err is non-nil only on an I/O failure reading the data log.
func (s *Store) Get(key []byte) (value []byte, ok bool, err error) {
	offset, found := s.idx.Lookup(key)
	if !found {
		return nil, false, nil
	}

	rec, err := s.dl.ReadAt(int64(offset))
	if err != nil {
		return nil, false, fmt.Errorf("cairndb: get: %w", err)
	}
	if rec.Value == nil {
		// A PUT with value_len 0 decodes to a nil Value; hand back a
		// non-nil empty slice so an empty value never looks like absence.
		return []byte{}, true, nil
	}
	return rec.Value, true, nil
}

// Close flushes and closes both underlying files; the data log is also
// fsynced. Every successful Commit already flushed and fsynced both
// logs before returning, so after one the flushes in Close find nothing
// left to write.
func (s *Store) Close() error {
	walErr := s.w.Close()
	dataErr := s.dl.Close()
	if walErr != nil {
		return fmt.Errorf("cairndb: close: %w", walErr)
	}
	if dataErr != nil {
		return fmt.Errorf("cairndb: close: %w", dataErr)
	}
	return nil
}

// Package wal implements the write-ahead log half of the commit engine:
// staging a transaction's BEGIN/PUT.../COMMIT frames, making them
// durable, and replaying them into the data log on startup.
package wal

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/cairndb/cairndb/internal/fsutil"
	"github.com/cairndb/cairndb/internal/record"
)

// ErrCorrupt indicates the WAL violates the BEGIN...COMMIT grammar in a
// way that isn't explained by a crash: a PUT/DELETE/COMMIT outside of
// a transaction, a DELETE carrying a value, or an opcode outside the
// shared namespace. It is only ever returned from Replay.
var ErrCorrupt = errors.New("wal: corrupt")

// WAL is the write-ahead log file. It is not safe for concurrent use;
// the store that owns it serializes every call.
type WAL struct {
	file *os.File
	w    *bufio.Writer
	path string
}

// Open opens path for reading and writing, creating it (and its parent
// directory) if absent, and positions the write cursor at the current
// end of file.
func Open(path string) (*WAL, error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("wal: mkdir %s: %w", dir, err)
	}

	_, statErr := os.Stat(path)
	created := errors.Is(statErr, os.ErrNotExist)

	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0o644)
	if err != nil {
		return nil, fmt.Errorf("wal: open %s: %w", path, err)
	}

	if created {
		if err := fsutil.SyncDir(dir); err != nil {
			f.Close()
			return nil, fmt.Errorf("wal: sync dir %s: %w", dir, err)
		}
	}

	if _, err := f.Seek(0, io.SeekEnd); err != nil {
		f.Close()
		return nil, fmt.Errorf("wal: seek %s: %w", path, err)
	}

	return &WAL{file: f, w: bufio.NewWriter(f), path: path}, nil
}

// BeginTxn stages a BEGIN marker in the write buffer.
func (w *WAL) BeginTxn() error {
	if _, err := w.w.Write(record.EncodeBegin(nil)); err != nil {
		return fmt.Errorf("wal: begin: %w", err)
	}
	return nil
}

// StagePut stages a PUT record in the write buffer.
func (w *WAL) StagePut(key, value []byte) error {
	if _, err := w.w.Write(record.EncodePut(nil, key, value)); err != nil {
		return fmt.Errorf("wal: stage put: %w", err)
	}
	return nil
}

// StageDelete stages a DELETE record in the write buffer.
func (w *WAL) StageDelete(key []byte) error {
	if _, err := w.w.Write(record.EncodeDelete(nil, key)); err != nil {
		return fmt.Errorf("wal: stage delete: %w", err)
	}
	return nil
}

// CommitTxn stages the COMMIT marker and makes the entire staged
// transaction durable: flush to the OS, then fsync. This is the
// linearization point — once CommitTxn returns nil, a crash will still
// reapply the transaction on the next Open.
func (w *WAL) CommitTxn() error {
	if _, err := w.w.Write(record.EncodeCommit(nil)); err != nil {
		return fmt.Errorf("wal: commit: %w", err)
	}
	if err := w.w.Flush(); err != nil {
		return fmt.Errorf("wal: commit: flush: %w", err)
	}
	if err := w.file.Sync(); err != nil {
		return fmt.Errorf("wal: commit: sync: %w", err)
	}
	return nil
}

// Clear truncates the WAL to length 0 and fsyncs both the file and its
// containing directory, leaving no trace of the transaction(s) just
// applied to the data log.
func (w *WAL) Clear() error {
	if err := w.w.Flush(); err != nil {
		return fmt.Errorf("wal: clear: flush: %w", err)
	}
	if err := w.file.Truncate(0); err != nil {
		return fmt.Errorf("wal: clear: truncate: %w", err)
	}
	if _, err := w.file.Seek(0, io.SeekStart); err != nil {
		return fmt.Errorf("wal: clear: seek: %w", err)
	}
	if err := w.file.Sync(); err != nil {
		return fmt.Errorf("wal: clear: sync: %w", err)
	}
	if err := fsutil.SyncDir(filepath.Dir(w.path)); err != nil {
		return fmt.Errorf("wal: clear: sync dir: %w", err)
	}
	return nil
}

// Apply is invoked once per fully-committed transaction found during
// Replay, with the ordered list of its staged PUT/DELETE records. It
// must apply them to the data log and make the result durable before
// returning.
type Apply func(ops []record.Record) error

// Replay implements the WAL-replay state machine: it scans the WAL from
// the start, buffering operations between BEGIN and COMMIT, invoking
// apply once per complete transaction, and silently discarding a
// trailing incomplete transaction — whether torn mid-frame or simply
// missing its COMMIT. A BEGIN seen while already in a transaction
// discards the prior pending operations, matching a crash during WAL
// writing. After the scan, the WAL is truncated to length 0 regardless
// of what (if anything) was replayed.
//
// A PUT/DELETE/COMMIT outside of a transaction, a DELETE with a
// non-zero value length, or an opcode outside {BEGIN, PUT, DELETE,
// COMMIT} is corruption and aborts replay without truncating the WAL,
// wrapping ErrCorrupt.
func (w *WAL) Replay(apply Apply) error {
	if _, err := w.file.Seek(0, io.SeekStart); err != nil {
		return fmt.Errorf("wal: replay: seek: %w", err)
	}
	br := bufio.NewReader(w.file)

	inTxn := false
	var pending []record.Record

	for {
		rec, err := record.DecodeNext(br)
		if err != nil {
			if errors.Is(err, io.EOF) || errors.Is(err, record.ErrTruncated) {
				break
			}
			return fmt.Errorf("wal: replay: %w: %v", ErrCorrupt, err)
		}

		switch rec.Op {
		case record.Begin:
			inTxn = true
			pending = pending[:0]

		case record.Put:
			if !inTxn {
				return fmt.Errorf("wal: replay: PUT outside transaction: %w", ErrCorrupt)
			}
			pending = append(pending, rec)

		case record.Delete:
			if !inTxn {
				return fmt.Errorf("wal: replay: DELETE outside transaction: %w", ErrCorrupt)
			}
			if len(rec.Value) != 0 {
				return fmt.Errorf("wal: replay: DELETE with non-empty value: %w", ErrCorrupt)
			}
			pending = append(pending, rec)

		case record.Commit:
			if !inTxn {
				return fmt.Errorf("wal: replay: COMMIT outside transaction: %w", ErrCorrupt)
			}
			if err := apply(pending); err != nil {
				return fmt.Errorf("wal: replay: apply: %w", err)
			}
			inTxn = false
			pending = pending[:0]
		}
	}

	if err := w.Clear(); err != nil {
		return fmt.Errorf("wal: replay: %w", err)
	}
	return nil
}

// Close flushes and closes the underlying file.
func (w *WAL) Close() error {
	if err := w.w.Flush(); err != nil {
		return fmt.Errorf("wal: close: flush: %w", err)
	}
	return w.file.Close()
}

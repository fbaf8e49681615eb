// Package datalog implements the append-only data log: the durable,
// byte-addressable source of truth for every committed key/value
// state. Records are appended in the shared frame format from
// internal/record and read back by offset.
package datalog

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

// DataLog is the append-only data file. It is not safe for concurrent
// use; the store that owns it serializes every call.
type DataLog struct {
	file     *os.File
	w        *bufio.Writer
	writePos int64
}

// Open opens path for reading and writing, creating it (and its parent
// directory) if absent. The in-memory write cursor is initialized to
// the file's current length.
func Open(path string) (*DataLog, error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("datalog: mkdir %s: %w", dir, err)
	}

	_, statErr := os.Stat(path)
	created := errors.Is(statErr, os.ErrNotExist)

	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0o644)
	if err != nil {
		return nil, fmt.Errorf("datalog: open %s: %w", path, err)
	}

	if created {
		if err := fsutil.SyncDir(dir); err != nil {
			f.Close()
			return nil, fmt.Errorf("datalog: sync dir %s: %w", dir, err)
		}
	}

	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("datalog: stat %s: %w", path, err)
	}

	if _, err := f.Seek(info.Size(), io.SeekStart); err != nil {
		f.Close()
		return nil, fmt.Errorf("datalog: seek %s: %w", path, err)
	}

	return &DataLog{
		file:     f,
		w:        bufio.NewWriter(f),
		writePos: info.Size(),
	}, nil
}

// AppendPut appends a PUT record for (key, value) and returns the
// pre-append offset: the byte position of the record's opcode, which
// the index stores as the key's new location.
func (d *DataLog) AppendPut(key, value []byte) (int64, error) {
	offset := d.writePos
	buf := record.EncodePut(nil, key, value)
	if _, err := d.w.Write(buf); err != nil {
		return 0, fmt.Errorf("datalog: append put: %w", err)
	}
	d.writePos += int64(len(buf))
	return offset, nil
}

// AppendDelete appends a DELETE record for key.
func (d *DataLog) AppendDelete(key []byte) error {
	buf := record.EncodeDelete(nil, key)
	if _, err := d.w.Write(buf); err != nil {
		return fmt.Errorf("datalog: append delete: %w", err)
	}
	d.writePos += int64(len(buf))
	return nil
}

// FlushAndSync ensures every buffered byte has reached the OS and has
// been fsynced.
func (d *DataLog) FlushAndSync() error {
	if err := d.w.Flush(); err != nil {
		return fmt.Errorf("datalog: flush: %w", err)
	}
	if err := d.file.Sync(); err != nil {
		return fmt.Errorf("datalog: sync: %w", err)
	}
	return nil
}

// ReadAt seeks to offset and decodes exactly one record. The index only
// ever stores offsets assigned by a prior successful append, so the
// record at offset is guaranteed to exist and be complete.
func (d *DataLog) ReadAt(offset int64) (record.Record, error) {
	if offset < 0 || offset >= d.writePos {
		return record.Record{}, fmt.Errorf("datalog: offset %d out of range [0,%d)", offset, d.writePos)
	}
	sr := io.NewSectionReader(d.file, offset, d.writePos-offset)
	rec, err := record.DecodeNext(sr)
	if err != nil {
		return record.Record{}, fmt.Errorf("datalog: read at %d: %w", offset, err)
	}
	return rec, nil
}

// Size returns the authoritative append offset: the position the next
// AppendPut/AppendDelete will write at.
func (d *DataLog) Size() int64 {
	return d.writePos
}

// Scan performs the deterministic front-to-back walk used to rebuild
// the index on startup. fn is called with the offset and decoded
// record for each complete frame in file order, including frames whose
// opcode isn't recognized (fn sees them too, so a caller like the index
// can choose what, if anything, to do with one). Scan stops cleanly at
// end of file or at the first truncated trailing frame — both are
// reported by returning the offset of the last complete record's end
// (== file size when there was no torn tail) with a nil error; a torn
// tail is not an error.
func (d *DataLog) Scan(fn func(offset int64, rec record.Record) error) (int64, error) {
	sr := io.NewSectionReader(d.file, 0, d.writePos)
	br := bufio.NewReader(sr)

	var offset int64
	for {
		rec, err := record.DecodeNext(br)
		if err != nil && !errors.Is(err, record.ErrUnknownOp) {
			if errors.Is(err, io.EOF) || errors.Is(err, record.ErrTruncated) {
				break
			}
			return offset, fmt.Errorf("datalog: scan: %w", err)
		}
		if err := fn(offset, rec); err != nil {
			return offset, err
		}
		offset += record.FrameSize(rec)
	}
	return offset, nil
}

// Truncate cuts the data log back to endOffset, discarding any torn
// trailing record left by a crash mid-append, and resets the in-memory
// write cursor to match.
func (d *DataLog) Truncate(endOffset int64) error {
	if err := d.w.Flush(); err != nil {
		return fmt.Errorf("datalog: truncate: flush: %w", err)
	}
	if err := d.file.Truncate(endOffset); err != nil {
		return fmt.Errorf("datalog: truncate to %d: %w", endOffset, err)
	}
	if _, err := d.file.Seek(endOffset, io.SeekStart); err != nil {
		return fmt.Errorf("datalog: truncate: seek: %w", err)
	}
	d.writePos = endOffset
	return nil
}

// Close flushes, syncs, and closes the underlying file.
func (d *DataLog) Close() error {
	if err := d.FlushAndSync(); err != nil {
		return err
	}
	return d.file.Close()
}

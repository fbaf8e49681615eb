// Package fsutil holds small filesystem helpers shared by the data log
// and the WAL.
package fsutil

import (
	"os"
)

// SyncDir fsyncs the directory dir, so that a file creation or
// truncation within it survives a crash. This is best-effort: some
// platforms and filesystems don't support Sync on a directory, and a
// failed Sync is swallowed rather than propagated; only a failure to
// open dir is returned. Core packages don't log;
// callers that care can stat the directory themselves to double-check.
func SyncDir(dir string) error {
	d, err := os.Open(dir)
	if err != nil {
		return err
	}
	defer d.Close()

	if err := d.Sync(); err != nil {
		return nil
	}
	return nil
}

package cairndb

import (
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Simulates a crash mid-way through applying a transaction to the data
// log: the WAL already holds a fully-committed transaction (so the
// transaction must survive), and the data log has a torn trailing
// record from a previous, unrelated partial append that never reached
// fsync. Open must truncate the torn tail before replaying the WAL, or
// the replayed records would land after garbage bytes instead of
// overwriting them.
func TestRecoveryTruncatesTornDataLogTailBeforeReplay(t *testing.T) {
	cfg := testConfig(t)
	require.NoError(t, os.MkdirAll(cfg.DataDir, 0o755))

	goodPut := encodeRawPut("old", "value")
	tornPut := encodeRawPut("half-written", "this-will-be-cut")
	tornPut = tornPut[:len(tornPut)-4]

	require.NoError(t, os.WriteFile(cfg.DataLogPath(), append(goodPut, tornPut...), 0o644))

	walBytes := encodeRawTxn(t, [][2]string{{"new", "1"}})
	require.NoError(t, os.WriteFile(cfg.WALPath(), walBytes, 0o644))

	s, err := Open(cfg)
	require.NoError(t, err)
	defer s.Close()

	v, ok := mustGet(t, s, "old")
	require.True(t, ok)
	assert.Equal(t, "value", string(v))

	v, ok = mustGet(t, s, "new")
	require.True(t, ok)
	assert.Equal(t, "1", string(v))

	_, ok = mustGet(t, s, "half-written")
	assert.False(t, ok)
}

// A torn data-log tail with no WAL activity at all: Open must still
// recover cleanly, simply dropping the torn bytes.
func TestRecoveryTruncatesTornDataLogTailWithEmptyWAL(t *testing.T) {
	cfg := testConfig(t)
	require.NoError(t, os.MkdirAll(cfg.DataDir, 0o755))

	goodPut := encodeRawPut("a", "1")
	torn := encodeRawPut("b", "2")[:3] // cut deep into the header
	require.NoError(t, os.WriteFile(cfg.DataLogPath(), append(goodPut, torn...), 0o644))

	s, err := Open(cfg)
	require.NoError(t, err)
	defer s.Close()

	v, ok := mustGet(t, s, "a")
	require.True(t, ok)
	assert.Equal(t, "1", string(v))

	_, ok = mustGet(t, s, "b")
	assert.False(t, ok)
}

func TestOpenRejectsCorruptWAL(t *testing.T) {
	cfg := testConfig(t)
	require.NoError(t, os.MkdirAll(cfg.DataDir, 0o755))

	// A PUT with no preceding BEGIN is corruption, not a benign tear.
	require.NoError(t, os.WriteFile(cfg.WALPath(), encodeRawPut("a", "1"), 0o644))

	_, err := Open(cfg)
	assert.Error(t, err)
}

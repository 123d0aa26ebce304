package history

import (
	"database/sql"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"codeberg.org/mutker/packmon/internal/bms"
	"codeberg.org/mutker/packmon/internal/logger"
	"codeberg.org/mutker/packmon/internal/stats"
)

func testConfig(t *testing.T) Config {
	t.Helper()

	cfg := DefaultConfig()
	cfg.DBPath = filepath.Join(t.TempDir(), "history.db")
	cfg.Retention = 100
	cfg.BatchSize = 2
	cfg.FlushInterval = time.Hour

	return cfg
}

func testWindow(ts uint32) stats.Window {
	w := stats.Window{
		Timestamp:   ts,
		SampleCount: 20,
		Flags:       bms.FlagValid,
		PackVAvg:    6.0 + float64(ts)*0.01,
		PackVMin:    5.9,
		PackVMax:    6.2,
		PackIAvg:    0.5,
		PackIMin:    -0.2,
		PackIMax:    1.3,
	}
	for c := 0; c < bms.NumCells; c++ {
		w.CellVAvg[c] = 1.2 + float64(c)*0.001
		w.CellVMin[c] = 1.18
		w.CellVMax[c] = 1.24
	}

	return w
}

func TestConfigValidation(t *testing.T) {
	testCases := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{"defaults", func(c *Config) {}, false},
		{"disabled needs nothing", func(c *Config) { c.Enabled = false; c.DBPath = "" }, false},
		{"missing path", func(c *Config) { c.DBPath = "" }, true},
		{"zero retention", func(c *Config) { c.Retention = 0 }, true},
		{"zero batch size", func(c *Config) { c.BatchSize = 0 }, true},
		{"zero flush interval", func(c *Config) { c.FlushInterval = 0 }, true},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tc.mutate(&cfg)
			err := cfg.Validate()
			if tc.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestAppendAndRecentRoundTrip(t *testing.T) {
	store, err := NewStore(testConfig(t), logger.Default())
	require.NoError(t, err)
	defer store.Close()

	var want []stats.Window
	for ts := uint32(0); ts < 5; ts++ {
		w := testWindow(ts)
		want = append(want, w)
		require.NoError(t, store.Append(w))
	}

	got, err := store.Recent(10)
	require.NoError(t, err)
	assert.Equal(t, want, got)
}

func TestRecentLimitReturnsNewest(t *testing.T) {
	store, err := NewStore(testConfig(t), logger.Default())
	require.NoError(t, err)
	defer store.Close()

	for ts := uint32(0); ts < 10; ts++ {
		require.NoError(t, store.Append(testWindow(ts)))
	}

	got, err := store.Recent(3)
	require.NoError(t, err)
	require.Len(t, got, 3)

	// Newest three, served oldest first.
	assert.Equal(t, uint32(7), got[0].Timestamp)
	assert.Equal(t, uint32(8), got[1].Timestamp)
	assert.Equal(t, uint32(9), got[2].Timestamp)
}

func TestRetentionPrunesOldWindows(t *testing.T) {
	cfg := testConfig(t)
	cfg.Retention = 5
	cfg.BatchSize = 1

	store, err := NewStore(cfg, logger.Default())
	require.NoError(t, err)
	defer store.Close()

	for ts := uint32(0); ts < 8; ts++ {
		require.NoError(t, store.Append(testWindow(ts)))
	}

	got, err := store.Recent(0)
	require.NoError(t, err)
	require.Len(t, got, 5)
	assert.Equal(t, uint32(3), got[0].Timestamp)
	assert.Equal(t, uint32(7), got[4].Timestamp)
}

func TestCloseFlushesBuffer(t *testing.T) {
	cfg := testConfig(t)
	cfg.BatchSize = 100

	store, err := NewStore(cfg, logger.Default())
	require.NoError(t, err)

	for ts := uint32(0); ts < 3; ts++ {
		require.NoError(t, store.Append(testWindow(ts)))
	}
	require.NoError(t, store.Close())

	reopened, err := NewStore(cfg, logger.Default())
	require.NoError(t, err)
	defer reopened.Close()

	got, err := reopened.Recent(0)
	require.NoError(t, err)
	assert.Len(t, got, 3)
}

func TestDisabledStoreIsNoop(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Enabled = false

	store, err := NewStore(cfg, logger.Default())
	require.NoError(t, err)

	require.NoError(t, store.Append(testWindow(1)))
	got, err := store.Recent(10)
	require.NoError(t, err)
	assert.Empty(t, got)
	assert.NoError(t, store.Close())
}

func TestSchemaRebuildOnVersionMismatch(t *testing.T) {
	cfg := testConfig(t)
	cfg.BatchSize = 1

	store, err := NewStore(cfg, logger.Default())
	require.NoError(t, err)
	require.NoError(t, store.Append(testWindow(1)))
	require.NoError(t, store.Close())

	// Tamper with the recorded version to force a rebuild.
	db, err := sql.Open("sqlite3", cfg.DBPath)
	require.NoError(t, err)
	_, err = db.Exec("UPDATE schema_versions SET version = 99")
	require.NoError(t, err)
	require.NoError(t, db.Close())

	reopened, err := NewStore(cfg, logger.Default())
	require.NoError(t, err)
	defer reopened.Close()

	// Old rows are gone and a backup was taken first.
	got, err := reopened.Recent(0)
	require.NoError(t, err)
	assert.Empty(t, got)

	backups, err := os.ReadDir(filepath.Join(filepath.Dir(cfg.DBPath), "backups"))
	require.NoError(t, err)
	assert.NotEmpty(t, backups)
}

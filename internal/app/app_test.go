package app_test

import (
	"context"
	"strings"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/JakeFAU/sold-listings-crawler/internal/app"
	"github.com/JakeFAU/sold-listings-crawler/internal/config"
	"github.com/JakeFAU/sold-listings-crawler/internal/crawler"
	"github.com/JakeFAU/sold-listings-crawler/internal/storage"
	"github.com/JakeFAU/sold-listings-crawler/internal/storage/memory"
	"github.com/JakeFAU/sold-listings-crawler/internal/storage/sqlite"
)

func testConfig(t *testing.T) config.Config {
	t.Helper()
	return config.Config{
		Crawler: config.CrawlerConfig{
			Origin:         crawler.DefaultOrigin,
			UserAgent:      crawler.DefaultUserAgent,
			Delay:          2 * time.Second,
			RequestTimeout: time.Second,
			MaxPages:       1,
			CheckpointFile: filepath.Join(t.TempDir(), "next_url.txt"),
		},
		Store: config.StoreConfig{Driver: config.DriverMemory},
	}
}

func TestNewApp_Memory(t *testing.T) {
	a, err := app.NewApp(context.Background(), testConfig(t), zap.NewNop())
	require.NoError(t, err)
	defer a.Close()

	assert.NotNil(t, a.GetLogger())
	assert.IsType(t, &memory.Store{}, a.GetStore())
	require.IsType(t, &storage.PageArchive{}, a.GetArchive())
	uri, err := a.GetArchive().Put(context.Background(), "Storgatan 1", []byte("<html></html>"))
	require.NoError(t, err)
	assert.True(t, strings.HasSuffix(uri, ".html"), "memory runs only name the page: %s", uri)
	require.NotNil(t, a.GetEngine())
	assert.Equal(t, crawler.StateSeeding, a.GetEngine().State())
	assert.Equal(t, config.DriverMemory, a.GetConfig().Store.Driver)
}

func TestNewApp_SQLiteWithArchive(t *testing.T) {
	dir := t.TempDir()
	cfg := testConfig(t)
	cfg.Store = config.StoreConfig{Driver: config.DriverSQLite, DSN: filepath.Join(dir, "records.db")}
	cfg.Crawler.ArchiveDir = filepath.Join(dir, "archive")

	a, err := app.NewApp(context.Background(), cfg, nil)
	require.NoError(t, err)
	defer a.Close()

	assert.IsType(t, &sqlite.Store{}, a.GetStore())
	assert.IsType(t, &storage.PageArchive{}, a.GetArchive())
	assert.FileExists(t, filepath.Join(dir, "records.db"))
}

func TestNewApp_UnknownDriver(t *testing.T) {
	cfg := testConfig(t)
	cfg.Store.Driver = "mysql"

	_, err := app.NewApp(context.Background(), cfg, zap.NewNop())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown store driver")
}

func TestNewApp_PostgresConnectFailure(t *testing.T) {
	cfg := testConfig(t)
	cfg.Store = config.StoreConfig{Driver: config.DriverPostgres, DSN: "not a dsn ://"}

	_, err := app.NewApp(context.Background(), cfg, zap.NewNop())
	require.Error(t, err)
}

func TestRecoverRunOnEmptyStoreIsIdle(t *testing.T) {
	a, err := app.NewApp(context.Background(), testConfig(t), zap.NewNop())
	require.NoError(t, err)
	defer a.Close()

	stats, err := a.GetEngine().Run(context.Background(), crawler.RunOptions{Recover: true, MaxPages: 1})
	require.NoError(t, err)
	assert.Zero(t, stats.Processed)
	assert.Equal(t, crawler.StateIdle, a.GetEngine().State())
}

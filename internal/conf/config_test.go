package conf_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tvaltari/wayfind-go/internal/conf"
)

// Load mutates the process-wide viper state, so these tests do not run in
// parallel.

func TestLoadDefaults(t *testing.T) {
	settings, err := conf.Load()
	require.NoError(t, err)

	assert.Equal(t, conf.StorageSQLite, settings.Storage.Backend)
	assert.Equal(t, 50.0, settings.Snapshot.NearbyRadiusKm)
	assert.Equal(t, 4.0, settings.Snapshot.PopularMinRating)
	assert.Equal(t, 7*24*time.Hour, settings.ImageCache.TTL)
	assert.Equal(t, 800*time.Millisecond, settings.Preload.SettleDelay)
	assert.Equal(t, 3, settings.Preload.DispatchBatchSize)
	assert.Equal(t, 30*time.Second, settings.Governor.SampleInterval)
	assert.Equal(t, 100.0, settings.Governor.CeilingMB)
	assert.Equal(t, 0.5, settings.Governor.AvgImageSizeMB)
	assert.Equal(t, 1.4, settings.Viewport.BufferFactor)
	assert.Equal(t, 300*time.Millisecond, settings.Viewport.DebounceDelay)
	assert.Equal(t, 20, settings.Enhancer.Phase1BatchSize)
	assert.Equal(t, 10, settings.Enhancer.Phase2BatchSize)
}

func TestLoadEnvironmentOverride(t *testing.T) {
	t.Setenv("WAYFIND_SNAPSHOT_NEARBYRADIUSKM", "25")
	t.Setenv("WAYFIND_STORAGE_BACKEND", "file")

	settings, err := conf.Load()
	require.NoError(t, err)
	assert.Equal(t, 25.0, settings.Snapshot.NearbyRadiusKm)
	assert.Equal(t, conf.StorageFile, settings.Storage.Backend)
}

func TestLoadResolvesCapabilities(t *testing.T) {
	settings, err := conf.Load()
	require.NoError(t, err)

	caps := settings.Capabilities
	assert.Positive(t, caps.ViewportCap)
	assert.Positive(t, caps.PreloadMaxHome)
	assert.Positive(t, caps.PreloadMaxOther)
	assert.Positive(t, caps.MaxURLsPerPlace)
	assert.Positive(t, caps.HighPriorityHead)
	assert.Positive(t, caps.MediumPriorityN)
	assert.GreaterOrEqual(t, caps.PreloadMaxHome, caps.PreloadMaxOther)
}

func TestSettingNeverNil(t *testing.T) {
	settings := conf.Setting()
	require.NotNil(t, settings)
	assert.Positive(t, settings.Capabilities.ViewportCap)
}

func TestSaveSettingsRoundTrip(t *testing.T) {
	settings, err := conf.Load()
	require.NoError(t, err)

	path := filepath.Join(t.TempDir(), "nested", "wayfind.yaml")
	require.NoError(t, conf.SaveSettings(settings, path))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "snapshot:")
	assert.Contains(t, string(data), "nearbyradiuskm: 50")
	// The capability profile is resolved, never persisted.
	assert.NotContains(t, string(data), "viewportcap")
}

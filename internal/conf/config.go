// config.go: settings struct and functions to load and save the wayfind
// core configuration.
package conf

import (
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

// StorageBackend identifies the persisted key-value backend. Selected once
// at startup; there is no runtime trial-and-fallback between backends.
type StorageBackend string

const (
	// StorageSQLite is the fast native key-value backend (sqlite via gorm).
	StorageSQLite StorageBackend = "sqlite"
	// StorageFile is the generic JSON file key-value backend.
	StorageFile StorageBackend = "file"
)

// MainSettings contains application wide settings.
type MainSettings struct {
	Name    string // application instance name
	LogPath string // directory for per-service log files
}

// StorageSettings selects the persisted key-value backend.
type StorageSettings struct {
	Backend StorageBackend // "sqlite" or "file"
	Path    string         // database file or JSON file path
}

// SnapshotSettings tunes the local snapshot store.
type SnapshotSettings struct {
	NearbyRadiusKm   float64 // radius for the nearby bucket
	PopularMinRating float64 // minimum rating for the popular bucket
}

// ObjectStoreSettings configures the remote object store probed for images.
type ObjectStoreSettings struct {
	Endpoint  string
	Bucket    string
	AccessKey string
	SecretKey string
	UseSSL    bool
}

// CatalogSettings configures the remote document-store client.
type CatalogSettings struct {
	BaseURL  string
	Timeout  time.Duration
	CacheTTL time.Duration
}

// ImageCacheSettings tunes the image resolution cache.
type ImageCacheSettings struct {
	TTL time.Duration // entry time-to-live, expired entries are re-probed
}

// PreloadSettings tunes the predictive preloader.
type PreloadSettings struct {
	SettleDelay       time.Duration // context-debounce delay before dispatch
	DispatchBatchSize int           // concurrent prefetches per batch
	DispatchPause     time.Duration // pacing delay between batches
	FetchTimeout      time.Duration // per-URL prefetch timeout
}

// GovernorSettings tunes the cache governor.
type GovernorSettings struct {
	SampleInterval  time.Duration // memory estimate sampling interval
	CeilingMB       float64       // estimated usage ceiling before eviction
	AvgImageSizeMB  float64       // assumed average size per loaded image
	MinHitRate      float64       // advisory threshold
	MaxErrorRatio   float64       // advisory threshold
	MaxAvgLatencyMS float64       // advisory threshold
}

// ViewportSettings tunes the map viewport filter.
type ViewportSettings struct {
	BufferFactor  float64       // viewport expansion margin, e.g. 1.4
	DebounceDelay time.Duration // settle delay after pan/zoom activity
}

// EnhancerSettings tunes the two-phase image enhancer.
type EnhancerSettings struct {
	Phase1BatchSize int
	Phase1Pause     time.Duration
	Phase2BatchSize int
	Phase2Pause     time.Duration
}

// Settings is the root configuration for the wayfind core.
type Settings struct {
	Debug bool

	Main        MainSettings
	Storage     StorageSettings
	Snapshot    SnapshotSettings
	ObjectStore ObjectStoreSettings
	Catalog     CatalogSettings
	ImageCache  ImageCacheSettings
	Preload     PreloadSettings
	Governor    GovernorSettings
	Viewport    ViewportSettings
	Enhancer    EnhancerSettings

	// Capabilities holds the device capability profile resolved once at
	// startup. Never read from the config file.
	Capabilities Capabilities `yaml:"-" mapstructure:"-"`
}

var (
	settingsInstance *Settings
	settingsOnce     sync.Once
	settingsMu       sync.RWMutex
)

// Load reads the configuration, applies defaults and environment
// overrides, and resolves device capabilities. The config file is
// optional; defaults cover every value.
func Load() (*Settings, error) {
	setDefaultConfig()

	viper.SetConfigName("wayfind")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(".")
	if home, err := os.UserConfigDir(); err == nil {
		viper.AddConfigPath(filepath.Join(home, "wayfind"))
	}
	viper.SetEnvPrefix("WAYFIND")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		// No config file is fine, defaults apply.
	}

	settings := &Settings{}
	if err := viper.Unmarshal(settings); err != nil {
		return nil, fmt.Errorf("failed to unmarshal configuration: %w", err)
	}

	settings.Capabilities = ResolveCapabilities()

	settingsMu.Lock()
	settingsInstance = settings
	settingsMu.Unlock()

	return settings, nil
}

// Setting returns the loaded settings, loading them on first use. A load
// failure falls back to pure defaults so callers always get a usable
// configuration.
func Setting() *Settings {
	settingsOnce.Do(func() {
		settingsMu.RLock()
		loaded := settingsInstance != nil
		settingsMu.RUnlock()
		if !loaded {
			if _, err := Load(); err != nil {
				log.Printf("wayfind: failed to load configuration, using defaults: %v", err)
				setDefaultConfig()
				s := &Settings{}
				_ = viper.Unmarshal(s)
				s.Capabilities = ResolveCapabilities()
				settingsMu.Lock()
				settingsInstance = s
				settingsMu.Unlock()
			}
		}
	})
	settingsMu.RLock()
	defer settingsMu.RUnlock()
	return settingsInstance
}

// SaveSettings writes the given settings as YAML to the given path,
// creating parent directories as needed.
func SaveSettings(settings *Settings, path string) error {
	data, err := yaml.Marshal(settings)
	if err != nil {
		return fmt.Errorf("failed to marshal settings: %w", err)
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("failed to create config directory: %w", err)
		}
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write settings file: %w", err)
	}
	return nil
}

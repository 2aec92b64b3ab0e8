package wayfind_test

import (
	"context"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	wayfind "github.com/tvaltari/wayfind-go"
	"github.com/tvaltari/wayfind-go/internal/conf"
	"github.com/tvaltari/wayfind-go/internal/geo"
	"github.com/tvaltari/wayfind-go/internal/model"
	"github.com/tvaltari/wayfind-go/internal/preloader"
	"github.com/tvaltari/wayfind-go/internal/snapshot"
)

var lisbon = geo.Point{Lat: 38.7223, Lng: -9.1393}

// fakeProber serves a fixed set of object paths.
type fakeProber struct {
	mu    sync.Mutex
	paths map[string]bool
}

func (p *fakeProber) Probe(_ context.Context, objectPath string) (bool, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.paths[objectPath], nil
}

func (p *fakeProber) URLFor(objectPath string) string {
	return "https://img.example.test/" + objectPath
}

// fakeFetcher records prefetched URLs.
type fakeFetcher struct {
	mu   sync.Mutex
	urls []string
}

func (f *fakeFetcher) Prefetch(_ context.Context, url string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.urls = append(f.urls, url)
	return nil
}

func (f *fakeFetcher) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.urls)
}

func testSettings(t *testing.T) *conf.Settings {
	t.Helper()
	return &conf.Settings{
		Storage: conf.StorageSettings{
			Backend: conf.StorageFile,
			Path:    filepath.Join(t.TempDir(), "wayfind.json"),
		},
		Snapshot: conf.SnapshotSettings{NearbyRadiusKm: 50, PopularMinRating: 4.0},
		Preload:  conf.PreloadSettings{SettleDelay: 20 * time.Millisecond},
		Governor: conf.GovernorSettings{CeilingMB: 100, AvgImageSizeMB: 0.5},
		Viewport: conf.ViewportSettings{BufferFactor: 1.4, DebounceDelay: 50 * time.Millisecond},
		Capabilities: conf.Capabilities{
			ViewportCap:      120,
			PreloadMaxHome:   30,
			PreloadMaxOther:  20,
			MaxURLsPerPlace:  3,
			HighPriorityHead: 5,
			MediumPriorityN:  10,
		},
	}
}

func newTestCore(t *testing.T) (*wayfind.Core, *fakeFetcher) {
	t.Helper()
	prober := &fakeProber{paths: map[string]bool{
		"entities/101/images/0.jpg": true,
		"entities/101/images/1.jpg": true,
	}}
	fetcher := &fakeFetcher{}

	core, err := wayfind.NewCore(testSettings(t),
		wayfind.WithObjectProber(prober), wayfind.WithFetcher(fetcher))
	require.NoError(t, err)
	t.Cleanup(func() { _ = core.Close() })
	return core, fetcher
}

func TestCoreEndToEnd(t *testing.T) {
	core, fetcher := newTestCore(t)
	require.NoError(t, core.Initialize(context.Background()))
	require.Equal(t, snapshot.StateReady, core.Snapshot.State())

	// Query the snapshot, then enrich the head of the popular feed.
	popular := core.Snapshot.Query(snapshot.QueryPopular, lisbon, 5)
	require.NotEmpty(t, popular)

	var phase1 []model.PlaceRecord
	enriched := core.Enhancer.Enhance(context.Background(), popular, 3, func(places []model.PlaceRecord) {
		phase1 = places
	})
	require.Len(t, phase1, len(popular))
	require.Len(t, enriched, len(popular))

	// pl-001 carries secondary id 101, the only entity with stored images.
	for i := range enriched {
		if enriched[i].ID == "pl-001" {
			assert.Len(t, enriched[i].ImageURLs, 2)
			assert.NotEmpty(t, enriched[i].ImageURL)
		} else {
			assert.Empty(t, enriched[i].ImageURLs)
		}
	}

	// Preload from the enriched feed and wait for the debounced cycle.
	core.Preloader.QueueFrom(enriched)
	core.Preloader.Dispatch(context.Background())
	assert.Equal(t, 2, fetcher.count())
	assert.Equal(t, 2, core.Preloader.LoadedCount())

	// The governor sees the small cache as healthy.
	assert.Less(t, core.Governor.EstimateUsageMB(), 100.0)
}

func TestCoreInitializeIsIdempotent(t *testing.T) {
	core, _ := newTestCore(t)
	require.NoError(t, core.Initialize(context.Background()))
	require.NoError(t, core.Initialize(context.Background()))
	assert.Equal(t, snapshot.StateReady, core.Snapshot.State())
}

func TestCorePreloadForContext(t *testing.T) {
	core, fetcher := newTestCore(t)
	require.NoError(t, core.Initialize(context.Background()))

	core.Preloader.PreloadForContext(context.Background(), preloader.PredictionContext{
		Screen: preloader.ScreenHome,
		Origin: lisbon,
	})

	// Snapshot records carry no image URLs until enriched, so the cycle
	// runs without fetching anything; it must still settle cleanly.
	time.Sleep(100 * time.Millisecond)
	assert.Zero(t, fetcher.count())
}

func TestCoreMetricsRegistry(t *testing.T) {
	core, _ := newTestCore(t)
	families, err := core.MetricsRegistry().Gather()
	require.NoError(t, err)
	assert.NotNil(t, families)
}

func TestNewCoreWithoutObjectStore(t *testing.T) {
	settings := testSettings(t)
	// No prober option and no endpoint configured.
	_, err := wayfind.NewCore(settings)
	require.Error(t, err)
}

package governor_test

import (
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/tvaltari/wayfind-go/internal/conf"
	"github.com/tvaltari/wayfind-go/internal/events"
	"github.com/tvaltari/wayfind-go/internal/governor"
	"github.com/tvaltari/wayfind-go/internal/model"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

// fakePreload is a governed preload cache with a settable loaded count.
type fakePreload struct {
	mu      sync.Mutex
	loaded  int
	cleared int
	stats   model.CacheStats
	latency time.Duration
}

func (f *fakePreload) LoadedCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.loaded
}

func (f *fakePreload) ClearCache() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.loaded = 0
	f.cleared++
}

func (f *fakePreload) Stats() model.CacheStats   { return f.stats }
func (f *fakePreload) AvgLatency() time.Duration { return f.latency }

func (f *fakePreload) clearCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.cleared
}

type fakeImages struct {
	mu      sync.Mutex
	entries int
	cleared int
}

func (f *fakeImages) EntryCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.entries
}

func (f *fakeImages) ClearMemory() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.entries = 0
	f.cleared++
}

func testSettings() conf.GovernorSettings {
	return conf.GovernorSettings{
		SampleInterval:  time.Hour, // tests drive CheckNow directly
		CeilingMB:       100,
		AvgImageSizeMB:  0.5,
		MinHitRate:      0.5,
		MaxErrorRatio:   0.25,
		MaxAvgLatencyMS: 2000,
	}
}

func TestCheckNowEvictsOverCeiling(t *testing.T) {
	t.Parallel()

	// 250 loaded images at 0.5 MB each is 125 MB, over the 100 MB ceiling.
	preload := &fakePreload{loaded: 250}
	images := &fakeImages{entries: 40}
	bus := events.NewBus()
	defer bus.Close()
	sub := bus.Subscribe()

	g := governor.New(testSettings(), preload, images, bus)
	defer g.Close()

	assert.InDelta(t, 125.0, g.EstimateUsageMB(), 0.001)
	g.CheckNow()

	assert.Zero(t, preload.LoadedCount())
	assert.Zero(t, images.EntryCount())
	assert.Equal(t, 1, preload.clearCount())

	select {
	case evt := <-sub:
		assert.Equal(t, events.ResourceImageCache, evt.ResourceType)
		assert.Equal(t, events.SeverityWarning, evt.Severity)
		assert.NotEmpty(t, evt.ID)
	default:
		t.Fatal("expected a resource event after eviction")
	}

	// Post-eviction estimate is back to zero; a second check is a no-op.
	assert.Zero(t, g.EstimateUsageMB())
	g.CheckNow()
	assert.Equal(t, 1, preload.clearCount())
}

func TestCheckNowUnderCeilingDoesNothing(t *testing.T) {
	t.Parallel()

	preload := &fakePreload{loaded: 50} // 25 MB
	images := &fakeImages{entries: 10}
	g := governor.New(testSettings(), preload, images, nil)
	defer g.Close()

	g.CheckNow()
	assert.Equal(t, 50, preload.LoadedCount())
	assert.Equal(t, 10, images.EntryCount())
}

func TestLifecycleTransitions(t *testing.T) {
	t.Parallel()

	preload := &fakePreload{loaded: 20}
	images := &fakeImages{entries: 5}
	g := governor.New(testSettings(), preload, images, nil)
	defer g.Close()

	// Backgrounding evicts immediately even under the ceiling.
	g.OnBackground()
	assert.Zero(t, preload.LoadedCount())
	assert.Zero(t, images.EntryCount())
	require.Equal(t, 1, preload.clearCount())

	// Sampling is suspended while backgrounded.
	preload.mu.Lock()
	preload.loaded = 500
	preload.mu.Unlock()
	g.CheckNow()
	assert.Equal(t, 1, preload.clearCount())

	// Foregrounding resumes it.
	g.OnForeground()
	g.CheckNow()
	assert.Equal(t, 2, preload.clearCount())
}

func TestStartStopIdempotent(t *testing.T) {
	t.Parallel()

	g := governor.New(testSettings(), &fakePreload{}, &fakeImages{}, nil)
	g.Start()
	g.Start()
	g.Stop()
	g.Stop()
	require.NoError(t, g.Close())
}

func TestAdvisories(t *testing.T) {
	t.Parallel()

	t.Run("HealthyCacheIsQuiet", func(t *testing.T) {
		t.Parallel()
		preload := &fakePreload{
			stats:   model.CacheStats{Total: 20, Loaded: 19, Errors: 1, HitRate: 0.95},
			latency: 40 * time.Millisecond,
		}
		g := governor.New(testSettings(), preload, nil, nil)
		defer g.Close()
		assert.Empty(t, g.Advisories())
	})

	t.Run("LowHitRate", func(t *testing.T) {
		t.Parallel()
		preload := &fakePreload{
			stats: model.CacheStats{Total: 20, Loaded: 4, HitRate: 0.2},
		}
		g := governor.New(testSettings(), preload, nil, nil)
		defer g.Close()
		assert.Contains(t, g.Advisories()[0], "low preload hit rate")
	})

	t.Run("SmallSampleSuppressed", func(t *testing.T) {
		t.Parallel()
		// Below ten entries the hit rate is statistically meaningless.
		preload := &fakePreload{
			stats: model.CacheStats{Total: 4, Loaded: 1, HitRate: 0.25},
		}
		g := governor.New(testSettings(), preload, nil, nil)
		defer g.Close()
		assert.Empty(t, g.Advisories())
	})

	t.Run("HighErrorRatio", func(t *testing.T) {
		t.Parallel()
		preload := &fakePreload{
			stats: model.CacheStats{Total: 12, Loaded: 10, Errors: 5, HitRate: 0.83},
		}
		g := governor.New(testSettings(), preload, nil, nil)
		defer g.Close()
		assert.True(t, hasAdvisory(g.Advisories(), "error ratio"))
	})

	t.Run("HighLatency", func(t *testing.T) {
		t.Parallel()
		preload := &fakePreload{
			stats:   model.CacheStats{Total: 12, Loaded: 12, HitRate: 1},
			latency: 3 * time.Second,
		}
		g := governor.New(testSettings(), preload, nil, nil)
		defer g.Close()
		assert.True(t, hasAdvisory(g.Advisories(), "latency"))
	})
}

func hasAdvisory(advisories []string, substr string) bool {
	for _, advisory := range advisories {
		if strings.Contains(advisory, substr) {
			return true
		}
	}
	return false
}

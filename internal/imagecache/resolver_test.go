package imagecache_test

import (
	"context"
	"fmt"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tvaltari/wayfind-go/internal/conf"
	"github.com/tvaltari/wayfind-go/internal/datastore"
	"github.com/tvaltari/wayfind-go/internal/imagecache"
)

// fakeProber serves a fixed set of object paths and counts every probe.
type fakeProber struct {
	mu     sync.Mutex
	paths  map[string]bool
	probes map[string]int
	errs   map[string]error
}

func newFakeProber(paths ...string) *fakeProber {
	p := &fakeProber{
		paths:  make(map[string]bool),
		probes: make(map[string]int),
		errs:   make(map[string]error),
	}
	for _, path := range paths {
		p.paths[path] = true
	}
	return p
}

func (p *fakeProber) Probe(_ context.Context, objectPath string) (bool, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.probes[objectPath]++
	if err := p.errs[objectPath]; err != nil {
		return false, err
	}
	return p.paths[objectPath], nil
}

func (p *fakeProber) URLFor(objectPath string) string {
	return "https://img.example.test/" + objectPath
}

func (p *fakeProber) totalProbes() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	total := 0
	for _, n := range p.probes {
		total += n
	}
	return total
}

func newTestResolver(t *testing.T, prober imagecache.ObjectProber, ttl time.Duration) (*imagecache.Resolver, datastore.KV) {
	t.Helper()
	kv, err := datastore.OpenFile(filepath.Join(t.TempDir(), "kv.json"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = kv.Close() })

	r := imagecache.New(prober, kv, conf.ImageCacheSettings{TTL: ttl}, nil)
	t.Cleanup(func() { _ = r.Close() })
	return r, kv
}

func imagePath(id string, idx int, ext string) string {
	return fmt.Sprintf("entities/%s/images/%d.%s", id, idx, ext)
}

func TestResolveContiguousIndices(t *testing.T) {
	t.Parallel()

	prober := newFakeProber(
		imagePath("10", 0, "jpg"),
		imagePath("10", 1, "jpg"),
		imagePath("10", 2, "jpg"),
		imagePath("12", 0, "png"),
	)
	r, _ := newTestResolver(t, prober, 0)
	ctx := context.Background()

	t.Run("AllContiguousImages", func(t *testing.T) {
		urls := r.Resolve(ctx, "10", 5)
		require.Len(t, urls, 3)
		for i, url := range urls {
			assert.Equal(t, prober.URLFor(imagePath("10", i, "jpg")), url)
		}
	})

	t.Run("NoImagesYieldsEmpty", func(t *testing.T) {
		assert.Empty(t, r.Resolve(ctx, "11", 5))
		assert.True(t, r.HasEntry([]string{"11"}, 5), "negative result must still be cached")
	})

	t.Run("NonJpgExtensionFound", func(t *testing.T) {
		urls := r.Resolve(ctx, "12", 5)
		require.Len(t, urls, 1)
		assert.True(t, strings.HasSuffix(urls[0], "0.png"))
	})
}

func TestResolveStopsAtFirstGap(t *testing.T) {
	t.Parallel()

	// Index 1 is missing, so index 2 must never be probed even though it
	// exists in the store.
	prober := newFakeProber(
		imagePath("40", 0, "jpg"),
		imagePath("40", 2, "jpg"),
	)
	r, _ := newTestResolver(t, prober, 0)

	urls := r.Resolve(context.Background(), "40", 5)
	require.Len(t, urls, 1)

	prober.mu.Lock()
	defer prober.mu.Unlock()
	assert.Zero(t, prober.probes[imagePath("40", 2, "jpg")])
	assert.Zero(t, prober.probes[imagePath("40", 2, "webp")])
}

func TestResolveAlternateIDFallback(t *testing.T) {
	t.Parallel()

	prober := newFakeProber(imagePath("200", 0, "jpg"))
	r, _ := newTestResolver(t, prober, 0)

	// Primary id has nothing, the alternate does.
	urls := r.Resolve(context.Background(), "sec-missing", 3, "200")
	require.Len(t, urls, 1)
	assert.Equal(t, prober.URLFor(imagePath("200", 0, "jpg")), urls[0])
}

func TestResolveCachesPositiveAndNegative(t *testing.T) {
	t.Parallel()

	prober := newFakeProber(imagePath("10", 0, "webp"))
	r, _ := newTestResolver(t, prober, 0)
	ctx := context.Background()

	first := r.Resolve(ctx, "10", 3)
	require.Len(t, first, 1)
	afterFirst := prober.totalProbes()

	second := r.Resolve(ctx, "10", 3)
	assert.Equal(t, first, second)
	assert.Equal(t, afterFirst, prober.totalProbes(), "cached result must not re-probe")

	// Negative caching behaves the same way.
	assert.Empty(t, r.Resolve(ctx, "absent", 3))
	afterNegative := prober.totalProbes()
	assert.Empty(t, r.Resolve(ctx, "absent", 3))
	assert.Equal(t, afterNegative, prober.totalProbes())
}

func TestResolveProbeErrorDegradesToNotFound(t *testing.T) {
	t.Parallel()

	prober := newFakeProber(imagePath("10", 0, "jpeg"))
	prober.errs[imagePath("10", 0, "jpg")] = assert.AnError
	r, _ := newTestResolver(t, prober, 0)

	// The jpg probe errors; the jpeg probe still runs and matches.
	urls := r.Resolve(context.Background(), "10", 1)
	require.Len(t, urls, 1)
	assert.True(t, strings.HasSuffix(urls[0], "0.jpeg"))
}

// cancellingProber cancels the given context once a chosen path has been
// probed, so the resolve is interrupted between indices.
type cancellingProber struct {
	*fakeProber
	cancel  context.CancelFunc
	trigger string
}

func (p *cancellingProber) Probe(ctx context.Context, objectPath string) (bool, error) {
	exists, err := p.fakeProber.Probe(ctx, objectPath)
	if objectPath == p.trigger {
		p.cancel()
	}
	return exists, err
}

func TestResolveCancelledMidProbeNotCached(t *testing.T) {
	t.Parallel()

	inner := newFakeProber(
		imagePath("10", 0, "jpg"),
		imagePath("10", 1, "jpg"),
		imagePath("10", 2, "jpg"),
	)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	prober := &cancellingProber{
		fakeProber: inner,
		cancel:     cancel,
		trigger:    imagePath("10", 0, "jpg"),
	}
	r, _ := newTestResolver(t, prober, 0)

	// Cancellation lands after the first index resolves, truncating the
	// list to one of three images.
	partial := r.Resolve(ctx, "10", 5)
	require.Len(t, partial, 1)
	r.Flush()
	assert.False(t, r.HasEntry([]string{"10"}, 5), "truncated result must not be cached")

	// The next resolve with a live context probes the full set.
	full := r.Resolve(context.Background(), "10", 5)
	assert.Len(t, full, 3)
	assert.True(t, r.HasEntry([]string{"10"}, 5))
}

func TestResolveTTLExpiryReprobes(t *testing.T) {
	t.Parallel()

	prober := newFakeProber()
	r, _ := newTestResolver(t, prober, 50*time.Millisecond)
	ctx := context.Background()

	assert.Empty(t, r.Resolve(ctx, "77", 2))
	afterFirst := prober.totalProbes()

	time.Sleep(80 * time.Millisecond)

	assert.Empty(t, r.Resolve(ctx, "77", 2))
	assert.Greater(t, prober.totalProbes(), afterFirst, "expired entry must be re-probed")
}

func TestResolverPersistsAcrossRestart(t *testing.T) {
	t.Parallel()

	prober := newFakeProber(imagePath("10", 0, "jpg"))
	kv, err := datastore.OpenFile(filepath.Join(t.TempDir(), "kv.json"))
	require.NoError(t, err)
	defer kv.Close()

	r := imagecache.New(prober, kv, conf.ImageCacheSettings{}, nil)
	urls := r.Resolve(context.Background(), "10", 2, "pl-001")
	require.Len(t, urls, 1)
	r.Flush()
	require.NoError(t, r.Close())

	// A new resolver over the same backend restores the entry and serves
	// it without probing.
	probesBefore := prober.totalProbes()
	restored := imagecache.New(prober, kv, conf.ImageCacheSettings{}, nil)
	defer restored.Close()

	assert.True(t, restored.HasEntry([]string{"10", "pl-001"}, 2))
	assert.Equal(t, urls, restored.Resolve(context.Background(), "10", 2, "pl-001"))
	assert.Equal(t, probesBefore, prober.totalProbes())
}

func TestFormatVersionMismatchWipesPersisted(t *testing.T) {
	t.Parallel()

	prober := newFakeProber(imagePath("10", 0, "jpg"))
	kv, err := datastore.OpenFile(filepath.Join(t.TempDir(), "kv.json"))
	require.NoError(t, err)
	defer kv.Close()

	r := imagecache.New(prober, kv, conf.ImageCacheSettings{}, nil)
	require.Len(t, r.Resolve(context.Background(), "10", 2), 1)
	r.Flush()
	require.NoError(t, r.Close())

	// Pretend the persisted entries were written by an older format.
	require.NoError(t, kv.Set("imgcache:version", []byte("1")))

	restored := imagecache.New(prober, kv, conf.ImageCacheSettings{}, nil)
	defer restored.Close()
	assert.Zero(t, restored.EntryCount())
	assert.False(t, restored.HasEntry([]string{"10"}, 2))

	// The version marker is rewritten to the current format.
	raw, found, err := kv.Get("imgcache:version")
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, strconv.Itoa(imagecache.CacheFormatVersion), string(raw))
}

func TestFirstRunStampsVersionWithoutWiping(t *testing.T) {
	t.Parallel()

	kv, err := datastore.OpenFile(filepath.Join(t.TempDir(), "kv.json"))
	require.NoError(t, err)
	defer kv.Close()

	// Other components' data predates the image cache on a fresh install.
	require.NoError(t, kv.Set("snapshot:records", []byte("[]")))

	r := imagecache.New(newFakeProber(), kv, conf.ImageCacheSettings{}, nil)
	defer r.Close()

	raw, found, err := kv.Get("imgcache:version")
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, strconv.Itoa(imagecache.CacheFormatVersion), string(raw))

	_, found, err = kv.Get("snapshot:records")
	require.NoError(t, err)
	assert.True(t, found)
}

func TestUnversionedEntriesAreWiped(t *testing.T) {
	t.Parallel()

	kv, err := datastore.OpenFile(filepath.Join(t.TempDir(), "kv.json"))
	require.NoError(t, err)
	defer kv.Close()

	// An entry without a version marker is an unknown format.
	require.NoError(t, kv.Set("imgcache:10:2", []byte(`{"urls":["https://stale"],"cachedAt":"2026-01-01T00:00:00Z"}`)))

	r := imagecache.New(newFakeProber(), kv, conf.ImageCacheSettings{}, nil)
	defer r.Close()

	assert.Zero(t, r.EntryCount())
	_, found, err := kv.Get("imgcache:10:2")
	require.NoError(t, err)
	assert.False(t, found)
}

func TestResolveDistinctKeysPerCount(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "10,pl-001:3", imagecache.CacheKey([]string{"10", "pl-001"}, 3))
	assert.NotEqual(t,
		imagecache.CacheKey([]string{"10"}, 1),
		imagecache.CacheKey([]string{"10"}, 3))
}

func TestClearMemoryKeepsPersisted(t *testing.T) {
	t.Parallel()

	prober := newFakeProber(imagePath("10", 0, "jpg"))
	r, kv := newTestResolver(t, prober, 0)

	require.Len(t, r.Resolve(context.Background(), "10", 2), 1)
	r.Flush()
	require.Positive(t, r.EntryCount())

	r.ClearMemory()
	assert.Zero(t, r.EntryCount())

	keys, err := kv.Keys("imgcache:")
	require.NoError(t, err)
	// Version marker plus the persisted entry survive.
	assert.GreaterOrEqual(t, len(keys), 2)
}

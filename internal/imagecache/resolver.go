// Package imagecache resolves entity ids to ordered lists of image URLs
// from the remote object store. Results, including empty ones, are cached
// in memory with a TTL and persisted write-behind, so repeat lookups for
// known ids and known-absent ids never touch the network again within the
// TTL window.
package imagecache

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"log/slog"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/patrickmn/go-cache"

	"github.com/tvaltari/wayfind-go/internal/conf"
	"github.com/tvaltari/wayfind-go/internal/datastore"
	"github.com/tvaltari/wayfind-go/internal/logging"
	"github.com/tvaltari/wayfind-go/internal/observability/metrics"
)

// Package-level logger specific to the imagecache service
var (
	logger          *slog.Logger
	serviceLevelVar = new(slog.LevelVar)
	closeLogger     func() error
)

func init() {
	var err error
	logFilePath := filepath.Join("logs", "imagecache.log")
	serviceLevelVar.Set(slog.LevelInfo)

	logger, closeLogger, err = logging.NewFileLogger(logFilePath, "imagecache", serviceLevelVar)
	if err != nil {
		log.Printf("Failed to initialize imagecache file logger at %s: %v. Service logging disabled.", logFilePath, err)
		logger = logging.DiscardLogger("imagecache", serviceLevelVar)
		closeLogger = func() error { return nil }
	}
}

// CacheFormatVersion is the persisted cache format. A mismatch with the
// stored version clears the entire persisted cache before first use.
const CacheFormatVersion = 2

const (
	keyPrefix  = "imgcache:"
	keyVersion = "imgcache:version"
)

// extensions is the fixed probe order for each image index.
var extensions = []string{"jpg", "jpeg", "png", "webp"}

// Entry is one cached resolution result. An entry with an empty URL list
// is a valid negative result, distinct from an absent entry.
type Entry struct {
	URLs     []string  `json:"urls"`
	CachedAt time.Time `json:"cachedAt"`
}

// Resolver is the multi-tier image URL resolution cache.
type Resolver struct {
	prober  ObjectProber
	kv      datastore.KV
	mem     *cache.Cache
	ttl     time.Duration
	metrics *metrics.ImageCacheMetrics

	persistWG sync.WaitGroup
}

// New creates a resolver over the given prober and persisted backend.
// The persisted tier is version gated: a format mismatch wipes it. Valid
// entries load into memory with their remaining TTL; already-expired
// entries are dropped.
func New(prober ObjectProber, kv datastore.KV, settings conf.ImageCacheSettings, m *metrics.ImageCacheMetrics) *Resolver {
	ttl := settings.TTL
	if ttl <= 0 {
		ttl = 7 * 24 * time.Hour
	}

	r := &Resolver{
		prober:  prober,
		kv:      kv,
		mem:     cache.New(ttl, ttl/2),
		ttl:     ttl,
		metrics: m,
	}
	r.ensureVersion()
	r.loadPersisted()
	return r
}

// ensureVersion clears the persisted tier when the stored cache format
// version does not match the current one.
func (r *Resolver) ensureVersion() {
	raw, found, err := r.kv.Get(keyVersion)
	if err != nil {
		logger.Warn("failed to read image cache version", "error", err)
	}
	if found {
		if v, convErr := strconv.Atoi(string(raw)); convErr == nil && v == CacheFormatVersion {
			return
		}
	} else {
		// No version marker and no entries is a first run, not a
		// mismatch: stamp the current version and move on.
		keys, kerr := r.kv.Keys(keyPrefix)
		if kerr == nil && len(keys) == 0 {
			if serr := r.kv.Set(keyVersion, []byte(strconv.Itoa(CacheFormatVersion))); serr != nil {
				logger.Warn("failed to store image cache version", "error", serr)
			}
			return
		}
	}

	logger.Info("image cache format version mismatch, clearing persisted cache",
		"stored", string(raw), "current", CacheFormatVersion)
	if derr := r.kv.DeletePrefix(keyPrefix); derr != nil {
		logger.Warn("failed to clear persisted image cache", "error", derr)
	}
	if serr := r.kv.Set(keyVersion, []byte(strconv.Itoa(CacheFormatVersion))); serr != nil {
		logger.Warn("failed to store image cache version", "error", serr)
	}
}

// loadPersisted restores non-expired entries from the persisted tier into
// memory. Unreadable or stale entries are deleted.
func (r *Resolver) loadPersisted() {
	keys, err := r.kv.Keys(keyPrefix)
	if err != nil {
		logger.Warn("failed to list persisted image cache keys", "error", err)
		return
	}

	loaded, dropped := 0, 0
	for _, key := range keys {
		if key == keyVersion {
			continue
		}
		raw, found, err := r.kv.Get(key)
		if err != nil || !found {
			continue
		}
		var entry Entry
		if err := json.Unmarshal(raw, &entry); err != nil {
			dropped++
			_ = r.kv.Delete(key)
			continue
		}
		remaining := r.ttl - time.Since(entry.CachedAt)
		if remaining <= 0 {
			dropped++
			_ = r.kv.Delete(key)
			continue
		}
		r.mem.Set(strings.TrimPrefix(key, keyPrefix), &entry, remaining)
		loaded++
	}
	if loaded > 0 || dropped > 0 {
		logger.Info("image cache restored", "loaded", loaded, "dropped_stale", dropped)
	}
}

// CacheKey builds the cache key for an ordered id list and count.
func CacheKey(ids []string, maxCount int) string {
	return strings.Join(ids, ",") + ":" + strconv.Itoa(maxCount)
}

// Resolve returns up to maxCount image URLs for the entity, trying the
// primary id first and each alternate in order. The result is served from
// cache when a non-expired entry exists, including cached empty lists.
// Resolve never returns an error: probe failures degrade to "no image".
func (r *Resolver) Resolve(ctx context.Context, primaryID string, maxCount int, alternateIDs ...string) []string {
	if maxCount <= 0 || primaryID == "" {
		return nil
	}

	ids := make([]string, 0, 1+len(alternateIDs))
	ids = append(ids, primaryID)
	for _, id := range alternateIDs {
		if id != "" && id != primaryID {
			ids = append(ids, id)
		}
	}
	key := CacheKey(ids, maxCount)

	if cached, found := r.mem.Get(key); found {
		if entry, ok := cached.(*Entry); ok {
			r.metrics.IncrementCacheHits()
			if len(entry.URLs) == 0 {
				r.metrics.IncrementNegativeHits()
			}
			return cloneURLs(entry.URLs)
		}
	}
	r.metrics.IncrementCacheMisses()

	start := time.Now()
	var urls []string
	for _, id := range ids {
		urls = r.probeID(ctx, id, maxCount)
		if len(urls) > 0 || ctx.Err() != nil {
			break
		}
	}
	r.metrics.ObserveResolveDuration(time.Since(start).Seconds())

	if ctx.Err() != nil {
		// Cancelled mid-probe: the list may be truncated, so return it
		// without caching. The next resolve re-probes the full set.
		return urls
	}

	entry := &Entry{URLs: urls, CachedAt: time.Now()}
	r.mem.Set(key, entry, cache.DefaultExpiration)
	r.persistAsync(key, entry)

	if len(urls) == 0 {
		logger.Debug("no images found, caching negative result", "key", key)
	}
	return cloneURLs(urls)
}

// probeID probes `entities/{id}/images/{index}.{ext}` for contiguous
// indices starting at 0, trying each extension in the fixed order. The
// first index with no match under any extension ends the scan: uploads
// are contiguous, so a gap means the remaining indices are absent too.
func (r *Resolver) probeID(ctx context.Context, id string, maxCount int) []string {
	var urls []string
	for idx := 0; idx < maxCount; idx++ {
		matched := false
		for _, ext := range extensions {
			objectPath := fmt.Sprintf("entities/%s/images/%d.%s", id, idx, ext)
			r.metrics.IncrementProbeRequests()
			exists, err := r.prober.Probe(ctx, objectPath)
			if err != nil {
				// Unexpected errors are logged but still resolve to "not
				// found" for this probe.
				r.metrics.IncrementProbeErrors()
				logger.Warn("probe failed", "path", objectPath, "error", err)
				continue
			}
			if exists {
				urls = append(urls, r.prober.URLFor(objectPath))
				matched = true
				break
			}
		}
		if !matched {
			break
		}
		if ctx.Err() != nil {
			break
		}
	}
	return urls
}

// persistAsync writes the entry to the persisted tier without blocking
// the caller (write-behind).
func (r *Resolver) persistAsync(key string, entry *Entry) {
	r.persistWG.Add(1)
	go func() {
		defer r.persistWG.Done()
		raw, err := json.Marshal(entry)
		if err != nil {
			return
		}
		if err := r.kv.Set(keyPrefix+key, raw); err != nil {
			logger.Warn("failed to persist image cache entry", "key", key, "error", err)
		}
	}()
}

// Flush blocks until all pending write-behind persists have completed.
func (r *Resolver) Flush() {
	r.persistWG.Wait()
}

// HasEntry reports whether a non-expired entry exists for the id list and
// count, without triggering probes.
func (r *Resolver) HasEntry(ids []string, maxCount int) bool {
	_, found := r.mem.Get(CacheKey(ids, maxCount))
	return found
}

// EntryCount returns the number of in-memory entries.
func (r *Resolver) EntryCount() int {
	return r.mem.ItemCount()
}

// MemoryUsage returns the approximate in-memory size of the cache in
// bytes.
func (r *Resolver) MemoryUsage() int {
	total := 0
	for key, item := range r.mem.Items() {
		total += len(key)
		if entry, ok := item.Object.(*Entry); ok {
			for _, u := range entry.URLs {
				total += len(u)
			}
			total += 24 // timestamp
		}
	}
	total += int(float64(r.mem.ItemCount()) * 48) // map and item overhead
	r.metrics.SetCacheSize(float64(total))
	return total
}

// ClearMemory evicts the entire in-memory tier. Persisted entries remain
// on disk; subsequent misses re-probe and overwrite them.
func (r *Resolver) ClearMemory() {
	r.mem.Flush()
	r.metrics.SetCacheSize(0)
}

// Clear evicts both tiers.
func (r *Resolver) Clear() {
	r.mem.Flush()
	if err := r.kv.DeletePrefix(keyPrefix); err != nil {
		logger.Warn("failed to clear persisted image cache", "error", err)
	}
	if err := r.kv.Set(keyVersion, []byte(strconv.Itoa(CacheFormatVersion))); err != nil {
		logger.Warn("failed to store image cache version", "error", err)
	}
	r.metrics.SetCacheSize(0)
}

// Close drains pending persists and flushes the service log file.
func (r *Resolver) Close() error {
	r.persistWG.Wait()
	if closeLogger != nil {
		return closeLogger()
	}
	return nil
}

func cloneURLs(urls []string) []string {
	if urls == nil {
		return nil
	}
	out := make([]string, len(urls))
	copy(out, urls)
	return out
}

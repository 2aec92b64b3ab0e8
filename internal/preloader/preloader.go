// Package preloader predicts the image set the user will likely need next
// and warms it ahead of navigation. URLs queue with a priority tier and
// dispatch in small concurrent batches with pacing delays; a debounce on
// the context entry point collapses rapid navigation into one cycle.
package preloader

import (
	"context"
	"log"
	"log/slog"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/tvaltari/wayfind-go/internal/conf"
	"github.com/tvaltari/wayfind-go/internal/geo"
	"github.com/tvaltari/wayfind-go/internal/logging"
	"github.com/tvaltari/wayfind-go/internal/model"
	"github.com/tvaltari/wayfind-go/internal/observability/metrics"
	"github.com/tvaltari/wayfind-go/internal/scheduler"
	"github.com/tvaltari/wayfind-go/internal/snapshot"
)

// Package-level logger specific to the preloader service
var (
	logger          *slog.Logger
	serviceLevelVar = new(slog.LevelVar)
	closeLogger     func() error
)

func init() {
	var err error
	logFilePath := filepath.Join("logs", "preloader.log")
	serviceLevelVar.Set(slog.LevelInfo)

	logger, closeLogger, err = logging.NewFileLogger(logFilePath, "preloader", serviceLevelVar)
	if err != nil {
		log.Printf("Failed to initialize preloader file logger at %s: %v. Service logging disabled.", logFilePath, err)
		logger = logging.DiscardLogger("preloader", serviceLevelVar)
		closeLogger = func() error { return nil }
	}
}

// Priority orders queued preload entries. Higher dispatches first.
type Priority int

const (
	PriorityLow Priority = iota
	PriorityMedium
	PriorityHigh
)

// PreloadEntry tracks one URL through the preload pipeline.
type PreloadEntry struct {
	URL       string
	Loaded    bool
	Error     bool
	Priority  Priority
	Timestamp time.Time
}

// SnapshotQuerier is the slice of the snapshot store the predictor needs.
type SnapshotQuerier interface {
	Query(kind snapshot.QueryKind, origin geo.Point, limit int) []model.PlaceRecord
	QueryCategory(category model.Category, origin geo.Point, limit int) []model.PlaceRecord
}

// NearbyFetcher is the slice of the catalog client the map heuristic
// needs. May be nil when no remote catalog is configured.
type NearbyFetcher interface {
	FetchNearby(ctx context.Context, origin geo.Point, limit int) ([]model.PlaceRecord, error)
}

// Preloader is the predictive image preloader.
type Preloader struct {
	snapshot SnapshotQuerier
	catalog  NearbyFetcher
	fetcher  Fetcher
	settings conf.PreloadSettings
	caps     conf.Capabilities
	metrics  *metrics.PreloaderMetrics

	mu      sync.RWMutex
	entries map[string]*PreloadEntry
	queue   []*PreloadEntry

	latencyMu    sync.Mutex
	latencyTotal time.Duration
	latencyCount int

	debounce *scheduler.Task
}

// New creates a preloader. catalog may be nil; the map heuristic then
// works from visible records only.
func New(snap SnapshotQuerier, catalog NearbyFetcher, fetcher Fetcher, settings conf.PreloadSettings, caps conf.Capabilities, m *metrics.PreloaderMetrics) *Preloader {
	if settings.DispatchBatchSize <= 0 {
		settings.DispatchBatchSize = 3
	}
	if fetcher == nil {
		fetcher = NewHTTPFetcher(settings.FetchTimeout)
	}
	return &Preloader{
		snapshot: snap,
		catalog:  catalog,
		fetcher:  fetcher,
		settings: settings,
		caps:     caps,
		metrics:  m,
		entries:  make(map[string]*PreloadEntry),
		debounce: scheduler.NewTask("preloader-context"),
	}
}

// PreloadForContext is the top-level entry point. Every call cancels any
// pending dispatch from a previous context and restarts the cycle after
// the settle delay. In-flight prefetches are never cancelled; their
// results still land in the cache for reuse.
func (p *Preloader) PreloadForContext(ctx context.Context, pctx PredictionContext) {
	p.debounce.Schedule(p.settings.SettleDelay, func() {
		places := p.Predict(ctx, pctx)
		p.QueueFrom(places)
		p.Dispatch(ctx)
	})
}

// QueueFrom extracts image URLs from the predicted places and queues the
// ones not already cached. The first high-tier positions go to the head
// of the prediction, the next block is medium, the rest low; the queue is
// kept sorted by priority, stable within a tier.
func (p *Preloader) QueueFrom(places []model.PlaceRecord) {
	p.mu.Lock()
	defer p.mu.Unlock()

	queued := 0
	for i := range places {
		for _, url := range extractURLs(&places[i], p.caps.MaxURLsPerPlace) {
			if _, exists := p.entries[url]; exists {
				continue
			}
			entry := &PreloadEntry{
				URL:       url,
				Priority:  p.tierFor(queued),
				Timestamp: time.Now(),
			}
			p.entries[url] = entry
			p.queue = append(p.queue, entry)
			queued++
		}
	}

	sort.SliceStable(p.queue, func(i, j int) bool {
		return p.queue[i].Priority > p.queue[j].Priority
	})
	p.metrics.SetQueueDepth(float64(len(p.queue)))
}

func (p *Preloader) tierFor(position int) Priority {
	switch {
	case position < p.caps.HighPriorityHead:
		return PriorityHigh
	case position < p.caps.HighPriorityHead+p.caps.MediumPriorityN:
		return PriorityMedium
	default:
		return PriorityLow
	}
}

// extractURLs returns up to maxURLs distinct image URLs for a place: the
// main image plus the first extras.
func extractURLs(place *model.PlaceRecord, maxURLs int) []string {
	var urls []string
	seen := make(map[string]struct{}, maxURLs)
	add := func(url string) {
		if url == "" || len(urls) >= maxURLs {
			return
		}
		if _, dup := seen[url]; dup {
			return
		}
		seen[url] = struct{}{}
		urls = append(urls, url)
	}
	add(place.ImageURL)
	for _, url := range place.ImageURLs {
		add(url)
	}
	return urls
}

// Dispatch drains the queue in batches of concurrent prefetches with a
// pacing delay between batches. Entries settle independently; a failed
// prefetch marks its entry and never blocks siblings. Dispatching an
// empty queue is a no-op.
func (p *Preloader) Dispatch(ctx context.Context) {
	p.mu.Lock()
	batchQueue := p.queue
	p.queue = nil
	p.mu.Unlock()

	if len(batchQueue) == 0 {
		return
	}
	dispatchID := uuid.NewString()[:8]
	logger.Debug("dispatching preload queue", "dispatch_id", dispatchID, "entries", len(batchQueue))

	batchSize := p.settings.DispatchBatchSize
	for start := 0; start < len(batchQueue); start += batchSize {
		end := min(start+batchSize, len(batchQueue))

		var wg sync.WaitGroup
		for _, entry := range batchQueue[start:end] {
			wg.Add(1)
			go func(entry *PreloadEntry) {
				defer wg.Done()
				p.prefetchOne(ctx, entry)
			}(entry)
		}
		wg.Wait()

		if end < len(batchQueue) && p.settings.DispatchPause > 0 {
			select {
			case <-ctx.Done():
				p.requeue(batchQueue[end:])
				return
			case <-time.After(p.settings.DispatchPause):
			}
		}
	}
	p.metrics.SetQueueDepth(0)
}

func (p *Preloader) prefetchOne(ctx context.Context, entry *PreloadEntry) {
	start := time.Now()
	err := p.fetcher.Prefetch(ctx, entry.URL)
	elapsed := time.Since(start)

	p.mu.Lock()
	entry.Timestamp = time.Now()
	if err != nil {
		entry.Error = true
	} else {
		entry.Loaded = true
	}
	p.mu.Unlock()

	p.latencyMu.Lock()
	p.latencyTotal += elapsed
	p.latencyCount++
	p.latencyMu.Unlock()

	if err != nil {
		p.metrics.IncrementPrefetchErrors()
		logger.Debug("prefetch failed", "url", entry.URL, "error", err)
		return
	}
	p.metrics.IncrementPrefetches()
	p.metrics.ObservePrefetchDuration(elapsed.Seconds())
}

// requeue puts undispatched entries back at the queue head after a
// cancelled dispatch.
func (p *Preloader) requeue(entries []*PreloadEntry) {
	p.mu.Lock()
	p.queue = append(append([]*PreloadEntry{}, entries...), p.queue...)
	p.metrics.SetQueueDepth(float64(len(p.queue)))
	p.mu.Unlock()
}

// IsPreloaded reports whether the URL has been successfully prefetched.
// Never triggers a fetch.
func (p *Preloader) IsPreloaded(url string) bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	entry, ok := p.entries[url]
	return ok && entry.Loaded
}

// PreloadedURL returns the URL when it is preloaded, empty otherwise.
// Never triggers a fetch.
func (p *Preloader) PreloadedURL(url string) string {
	if p.IsPreloaded(url) {
		return url
	}
	return ""
}

// LoadedCount returns the number of successfully prefetched entries.
func (p *Preloader) LoadedCount() int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	count := 0
	for _, entry := range p.entries {
		if entry.Loaded {
			count++
		}
	}
	return count
}

// Stats computes cache statistics on demand.
func (p *Preloader) Stats() model.CacheStats {
	p.mu.RLock()
	stats := model.CacheStats{Total: len(p.entries), SampledAt: time.Now()}
	for _, entry := range p.entries {
		if entry.Loaded {
			stats.Loaded++
		}
		if entry.Error {
			stats.Errors++
		}
	}
	p.mu.RUnlock()

	if stats.Total > 0 {
		stats.HitRate = float64(stats.Loaded) / float64(stats.Total)
	}
	return stats
}

// AvgLatency returns the mean prefetch duration observed so far.
func (p *Preloader) AvgLatency() time.Duration {
	p.latencyMu.Lock()
	defer p.latencyMu.Unlock()
	if p.latencyCount == 0 {
		return 0
	}
	return p.latencyTotal / time.Duration(p.latencyCount)
}

// ClearCache drops every preload entry and the pending queue. Called by
// the cache governor and on app-background transitions.
func (p *Preloader) ClearCache() {
	p.mu.Lock()
	p.entries = make(map[string]*PreloadEntry)
	p.queue = nil
	p.mu.Unlock()
	p.metrics.SetQueueDepth(0)
}

// CancelPending cancels a scheduled (not yet started) preload cycle.
func (p *Preloader) CancelPending() {
	p.debounce.Cancel()
}

// Close cancels pending work and flushes the service log file.
func (p *Preloader) Close() error {
	p.debounce.Cancel()
	if closeLogger != nil {
		return closeLogger()
	}
	return nil
}

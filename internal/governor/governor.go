// Package governor supervises the in-memory caches. It samples an
// estimated memory cost on an interval while the app is foreground,
// evicts wholesale when the estimate crosses the configured ceiling, and
// reacts to app lifecycle transitions. Its advisories are informational
// strings only and never alter control flow.
package governor

import (
	"fmt"
	"log"
	"log/slog"
	"path/filepath"
	"sync"
	"time"

	"github.com/shirou/gopsutil/v3/mem"

	"github.com/tvaltari/wayfind-go/internal/conf"
	"github.com/tvaltari/wayfind-go/internal/events"
	"github.com/tvaltari/wayfind-go/internal/logging"
	"github.com/tvaltari/wayfind-go/internal/model"
)

// Package-level logger specific to the governor service
var (
	logger          *slog.Logger
	serviceLevelVar = new(slog.LevelVar)
	closeLogger     func() error
)

func init() {
	var err error
	logFilePath := filepath.Join("logs", "governor.log")
	serviceLevelVar.Set(slog.LevelInfo)

	logger, closeLogger, err = logging.NewFileLogger(logFilePath, "governor", serviceLevelVar)
	if err != nil {
		log.Printf("Failed to initialize governor file logger at %s: %v. Service logging disabled.", logFilePath, err)
		logger = logging.DiscardLogger("governor", serviceLevelVar)
		closeLogger = func() error { return nil }
	}
}

// PreloadCache is the governed slice of the preloader.
type PreloadCache interface {
	LoadedCount() int
	ClearCache()
	Stats() model.CacheStats
	AvgLatency() time.Duration
}

// ImageMemoryCache is the governed slice of the image resolution cache.
type ImageMemoryCache interface {
	EntryCount() int
	ClearMemory()
}

// Governor watches resource pressure and app lifecycle.
type Governor struct {
	settings conf.GovernorSettings
	preload  PreloadCache
	images   ImageMemoryCache
	bus      *events.Bus

	mu         sync.Mutex
	foreground bool
	started    bool
	quit       chan struct{}
	wg         sync.WaitGroup
}

// New creates a governor over the given caches. bus may be nil.
func New(settings conf.GovernorSettings, preload PreloadCache, images ImageMemoryCache, bus *events.Bus) *Governor {
	if settings.SampleInterval <= 0 {
		settings.SampleInterval = 30 * time.Second
	}
	return &Governor{
		settings:   settings,
		preload:    preload,
		images:     images,
		bus:        bus,
		foreground: true,
	}
}

// Start begins the sampling loop. Idempotent.
func (g *Governor) Start() {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.started {
		return
	}
	g.started = true
	g.quit = make(chan struct{})

	g.wg.Add(1)
	go func() {
		defer g.wg.Done()
		ticker := time.NewTicker(g.settings.SampleInterval)
		defer ticker.Stop()
		for {
			select {
			case <-g.quit:
				return
			case <-ticker.C:
				g.CheckNow()
			}
		}
	}()
}

// Stop ends the sampling loop and waits for it to exit. Idempotent.
func (g *Governor) Stop() {
	g.mu.Lock()
	if !g.started {
		g.mu.Unlock()
		return
	}
	g.started = false
	close(g.quit)
	g.mu.Unlock()
	g.wg.Wait()
}

// CheckNow runs one sampling cycle immediately: estimates current cache
// memory cost and evicts when the estimate exceeds the ceiling. Sampling
// is suspended while the app is backgrounded.
func (g *Governor) CheckNow() {
	g.mu.Lock()
	foreground := g.foreground
	g.mu.Unlock()
	if !foreground {
		return
	}

	estimateMB := g.EstimateUsageMB()
	if estimateMB <= g.settings.CeilingMB {
		return
	}

	logger.Info("estimated cache usage over ceiling, evicting",
		"estimate_mb", estimateMB,
		"ceiling_mb", g.settings.CeilingMB)
	g.evict(estimateMB, "memory estimate over ceiling")
}

// EstimateUsageMB returns the current estimated cache cost: loaded image
// count times the configured average image size.
func (g *Governor) EstimateUsageMB() float64 {
	return float64(g.preload.LoadedCount()) * g.settings.AvgImageSizeMB
}

func (g *Governor) evict(estimateMB float64, reason string) {
	g.preload.ClearCache()
	if g.images != nil {
		g.images.ClearMemory()
	}
	if g.bus != nil {
		g.bus.TryPublish(events.NewResourceEvent(
			events.ResourceImageCache,
			estimateMB,
			g.settings.CeilingMB,
			events.SeverityWarning,
			"image caches evicted: "+reason,
		))
	}
}

// OnBackground evicts the image caches immediately and suspends sampling
// until the app returns to the foreground.
func (g *Governor) OnBackground() {
	g.mu.Lock()
	g.foreground = false
	g.mu.Unlock()

	logger.Info("app backgrounded, clearing image caches")
	g.evict(g.EstimateUsageMB(), "app backgrounded")
}

// OnForeground resumes sampling.
func (g *Governor) OnForeground() {
	g.mu.Lock()
	g.foreground = true
	g.mu.Unlock()
}

// Advisories returns informational observations about cache health. They
// are advisory only; nothing reads them to make decisions.
func (g *Governor) Advisories() []string {
	var advisories []string
	stats := g.preload.Stats()

	if stats.Total >= 10 && stats.HitRate < g.settings.MinHitRate {
		advisories = append(advisories, fmt.Sprintf(
			"low preload hit rate: %.0f%% of %d entries loaded", stats.HitRate*100, stats.Total))
	}
	if stats.Loaded > 0 && float64(stats.Errors)/float64(stats.Loaded) > g.settings.MaxErrorRatio {
		advisories = append(advisories, fmt.Sprintf(
			"high prefetch error ratio: %d errors against %d loaded", stats.Errors, stats.Loaded))
	}
	if avg := g.preload.AvgLatency(); avg > 0 && float64(avg.Milliseconds()) > g.settings.MaxAvgLatencyMS {
		advisories = append(advisories, fmt.Sprintf(
			"high average prefetch latency: %dms", avg.Milliseconds()))
	}
	if vm, err := mem.VirtualMemory(); err == nil && vm.UsedPercent > 90 {
		advisories = append(advisories, fmt.Sprintf(
			"system memory pressure: %.0f%% used", vm.UsedPercent))
	}
	return advisories
}

// Close stops sampling and flushes the service log file.
func (g *Governor) Close() error {
	g.Stop()
	if closeLogger != nil {
		return closeLogger()
	}
	return nil
}

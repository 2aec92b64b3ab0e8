// Package enhancer enriches place records with image URLs in two phases:
// a fast single-image pass the caller can render immediately, followed by
// a slower full-set pass in larger strides. Both phases run as bounded
// batches with pacing delays; item failures never abort a batch.
package enhancer

import (
	"context"
	"sync"
	"time"

	"github.com/tvaltari/wayfind-go/internal/conf"
	"github.com/tvaltari/wayfind-go/internal/model"
)

// ImageResolver resolves an entity id set to an ordered image URL list.
// Satisfied by imagecache.Resolver.
type ImageResolver interface {
	Resolve(ctx context.Context, primaryID string, maxCount int, alternateIDs ...string) []string
}

// Enhancer is the two-phase image enhancer.
type Enhancer struct {
	resolver ImageResolver
	settings conf.EnhancerSettings
}

// New creates an enhancer. Zero-valued settings fall back to the defaults
// used in production.
func New(resolver ImageResolver, settings conf.EnhancerSettings) *Enhancer {
	if settings.Phase1BatchSize <= 0 {
		settings.Phase1BatchSize = 20
	}
	if settings.Phase2BatchSize <= 0 {
		settings.Phase2BatchSize = 10
	}
	return &Enhancer{resolver: resolver, settings: settings}
}

// Enhance resolves images for all places. Phase 1 fetches exactly one
// image per place and invokes onPhase1 once, after the entire phase has
// completed, with the full result set. Phase 2 re-resolves up to
// targetCount images per place; a place whose phase-2 resolution comes
// back shorter keeps its phase-1 value, so image list lengths never
// shrink between phases. The returned slice is the phase-2 result.
func (e *Enhancer) Enhance(ctx context.Context, places []model.PlaceRecord, targetCount int, onPhase1 func([]model.PlaceRecord)) []model.PlaceRecord {
	if len(places) == 0 {
		if onPhase1 != nil {
			onPhase1(nil)
		}
		return nil
	}

	phase1 := e.runPhase(ctx, places, 1, e.settings.Phase1BatchSize, e.settings.Phase1Pause)
	if onPhase1 != nil {
		onPhase1(clonePlaces(phase1))
	}

	phase2 := e.runPhase(ctx, phase1, targetCount, e.settings.Phase2BatchSize, e.settings.Phase2Pause)

	// Monotonic guarantee: fall back to the phase-1 value wherever the
	// second pass produced fewer images.
	for i := range phase2 {
		if len(phase2[i].ImageURLs) < len(phase1[i].ImageURLs) {
			phase2[i].ImageURLs = phase1[i].ImageURLs
			phase2[i].ImageURL = phase1[i].ImageURL
		}
	}
	return phase2
}

// runPhase resolves up to maxCount images for every place, processing in
// batches of batchSize with a pause between batches. Places within a
// batch resolve concurrently and settle independently.
func (e *Enhancer) runPhase(ctx context.Context, places []model.PlaceRecord, maxCount, batchSize int, pause time.Duration) []model.PlaceRecord {
	out := clonePlaces(places)

	for start := 0; start < len(out); start += batchSize {
		end := min(start+batchSize, len(out))

		var wg sync.WaitGroup
		for i := start; i < end; i++ {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				ids := out[i].ImageIDs()
				urls := e.resolver.Resolve(ctx, ids[0], maxCount, ids[1:]...)
				if len(urls) > 0 {
					out[i].ImageURLs = urls
					out[i].ImageURL = urls[0]
				}
			}(i)
		}
		wg.Wait()

		if end < len(out) && pause > 0 {
			select {
			case <-ctx.Done():
				return out
			case <-time.After(pause):
			}
		}
		if ctx.Err() != nil {
			return out
		}
	}
	return out
}

func clonePlaces(places []model.PlaceRecord) []model.PlaceRecord {
	out := make([]model.PlaceRecord, len(places))
	for i := range places {
		out[i] = places[i].Clone()
	}
	return out
}

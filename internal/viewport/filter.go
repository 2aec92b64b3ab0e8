// Package viewport reduces a large point set to the capped subset inside
// an expanded map viewport, and wraps the computation behind a debounce
// so panning and zooming do not recompute on every intermediate frame.
package viewport

import (
	"sync"
	"time"

	"github.com/tvaltari/wayfind-go/internal/conf"
	"github.com/tvaltari/wayfind-go/internal/geo"
	"github.com/tvaltari/wayfind-go/internal/model"
	"github.com/tvaltari/wayfind-go/internal/scheduler"
)

// Filter scans records in their original order and collects those whose
// coordinates fall within the region expanded by bufferFactor, stopping
// early once limit matches are found. Box edges are inclusive.
func Filter(records []model.PlaceRecord, region geo.Region, bufferFactor float64, limit int) []model.PlaceRecord {
	if limit <= 0 {
		return nil
	}
	if bufferFactor <= 0 {
		bufferFactor = 1
	}
	box := region.Expanded(bufferFactor)

	out := make([]model.PlaceRecord, 0, min(limit, len(records)))
	for i := range records {
		if box.Contains(geo.Point{Lat: records[i].Latitude, Lng: records[i].Longitude}) {
			out = append(out, records[i].Clone())
			if len(out) >= limit {
				break
			}
		}
	}
	return out
}

// Refresher recomputes the visible subset only after pan/zoom activity
// settles. One Refresher owns one named debounce task.
type Refresher struct {
	settings conf.ViewportSettings
	limit    int
	task     *scheduler.Task
	onResult func([]model.PlaceRecord)

	mu      sync.Mutex
	records []model.PlaceRecord
	region  geo.Region
}

// NewRefresher creates a debounced viewport refresher. onResult receives
// each recomputed subset; limit comes from the resolved device
// capabilities.
func NewRefresher(settings conf.ViewportSettings, caps conf.Capabilities, onResult func([]model.PlaceRecord)) *Refresher {
	return &Refresher{
		settings: settings,
		limit:    caps.ViewportCap,
		task:     scheduler.NewTask("viewport-refresh"),
		onResult: onResult,
	}
}

// Update records the latest data and region and (re)schedules the
// recompute. Rapid successive calls collapse into a single recompute
// after the debounce delay.
func (r *Refresher) Update(records []model.PlaceRecord, region geo.Region) {
	r.mu.Lock()
	r.records = records
	r.region = region
	r.mu.Unlock()

	delay := r.settings.DebounceDelay
	if delay <= 0 {
		delay = 300 * time.Millisecond
	}
	r.task.Schedule(delay, r.refresh)
}

func (r *Refresher) refresh() {
	r.mu.Lock()
	records := r.records
	region := r.region
	r.mu.Unlock()

	result := Filter(records, region, r.settings.BufferFactor, r.limit)
	if r.onResult != nil {
		r.onResult(result)
	}
}

// Cancel drops any pending recompute.
func (r *Refresher) Cancel() {
	r.task.Cancel()
}

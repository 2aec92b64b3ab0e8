// Package snapshot implements the local, versioned mirror of the remote
// place catalog. Once initialized it answers categorized queries from
// memory without any network access.
package snapshot

import (
	"context"
	"encoding/json"
	"log"
	"log/slog"
	"path/filepath"
	"sort"
	"strconv"
	"sync"
	"time"

	"github.com/tvaltari/wayfind-go/internal/conf"
	"github.com/tvaltari/wayfind-go/internal/datastore"
	"github.com/tvaltari/wayfind-go/internal/geo"
	"github.com/tvaltari/wayfind-go/internal/logging"
	"github.com/tvaltari/wayfind-go/internal/model"
)

// Package-level logger specific to the snapshot service
var (
	logger          *slog.Logger
	serviceLevelVar = new(slog.LevelVar)
	closeLogger     func() error
)

func init() {
	var err error
	logFilePath := filepath.Join("logs", "snapshot.log")
	serviceLevelVar.Set(slog.LevelInfo)

	logger, closeLogger, err = logging.NewFileLogger(logFilePath, "snapshot", serviceLevelVar)
	if err != nil {
		log.Printf("Failed to initialize snapshot file logger at %s: %v. Service logging disabled.", logFilePath, err)
		logger = logging.DiscardLogger("snapshot", serviceLevelVar)
		closeLogger = func() error { return nil }
	}
}

// SchemaVersion is the current snapshot schema. Bumping it invalidates
// any persisted snapshot and forces a reseed on next initialize.
const SchemaVersion = 3

// Persisted snapshot keys.
const (
	keyRecords       = "snapshot:records"
	keySchemaVersion = "snapshot:schema-version"
	keyLastSync      = "snapshot:last-sync"
)

// State describes the snapshot store lifecycle.
type State int

const (
	StateUninitialized State = iota
	StateLoading
	StateReady
	StateReloading
)

// QueryKind selects one of the categorized result buckets.
type QueryKind string

const (
	QueryNearby  QueryKind = "nearby"
	QueryPopular QueryKind = "popular"
	QueryExplore QueryKind = "explore"
)

// Store is the local snapshot of the catalog.
type Store struct {
	mu       sync.RWMutex
	kv       datastore.KV
	settings conf.SnapshotSettings
	records  []model.PlaceRecord
	state    State
	lastSync time.Time
}

// New creates a snapshot store over the given persisted backend. Call
// Initialize before querying.
func New(kv datastore.KV, settings conf.SnapshotSettings) *Store {
	return &Store{
		kv:       kv,
		settings: settings,
		state:    StateUninitialized,
	}
}

// State returns the current lifecycle state.
func (s *Store) State() State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state
}

// LastSync returns when the snapshot was last seeded or loaded.
func (s *Store) LastSync() time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.lastSync
}

// Len returns the number of records currently held in memory.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.records)
}

// Initialize loads the snapshot into memory. Idempotent: a Ready store
// returns immediately. When the persisted schema version matches, records
// load straight from storage; any mismatch, absence or parse failure is
// treated as a cold cache and triggers a reseed from the bundled dataset.
// Initialization never fails because of corrupt persisted state.
func (s *Store) Initialize(ctx context.Context) error {
	s.mu.Lock()
	if s.state == StateReady {
		s.mu.Unlock()
		return nil
	}
	if s.state == StateUninitialized {
		s.state = StateLoading
	} else {
		s.state = StateReloading
	}
	s.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return err
	}

	if records, ok := s.loadPersisted(); ok {
		s.mu.Lock()
		s.records = records
		s.state = StateReady
		s.lastSync = s.readLastSync()
		s.mu.Unlock()
		logger.Info("snapshot loaded from persisted storage",
			"records", len(records),
			"schema_version", SchemaVersion)
		return nil
	}

	return s.reseed()
}

// loadPersisted attempts to restore the snapshot from the KV backend.
// Returns false when the schema version does not match or the data cannot
// be parsed.
func (s *Store) loadPersisted() ([]model.PlaceRecord, bool) {
	raw, found, err := s.kv.Get(keySchemaVersion)
	if err != nil || !found {
		return nil, false
	}
	version, err := strconv.Atoi(string(raw))
	if err != nil || version != SchemaVersion {
		logger.Info("snapshot schema version mismatch, discarding persisted data",
			"stored", string(raw),
			"current", SchemaVersion)
		return nil, false
	}

	blob, found, err := s.kv.Get(keyRecords)
	if err != nil || !found {
		return nil, false
	}

	var records []model.PlaceRecord
	if err := json.Unmarshal(blob, &records); err != nil {
		// Parse failure is a cache miss, not an error.
		logger.Warn("persisted snapshot unreadable, treating as cold cache", "error", err)
		return nil, false
	}
	if len(records) == 0 {
		return nil, false
	}
	return records, true
}

func (s *Store) readLastSync() time.Time {
	raw, found, err := s.kv.Get(keyLastSync)
	if err != nil || !found {
		return time.Time{}
	}
	t, err := time.Parse(time.RFC3339, string(raw))
	if err != nil {
		return time.Time{}
	}
	return t
}

// reseed discards persisted state and rebuilds the snapshot from the
// bundled dataset.
func (s *Store) reseed() error {
	records, err := loadSeed()
	if err != nil {
		s.mu.Lock()
		s.state = StateUninitialized
		s.mu.Unlock()
		return err
	}

	now := time.Now()
	if blob, err := json.Marshal(records); err == nil {
		if err := s.kv.Set(keyRecords, blob); err != nil {
			logger.Warn("failed to persist snapshot records", "error", err)
		}
	}
	if err := s.kv.Set(keySchemaVersion, []byte(strconv.Itoa(SchemaVersion))); err != nil {
		logger.Warn("failed to persist snapshot schema version", "error", err)
	}
	if err := s.kv.Set(keyLastSync, []byte(now.Format(time.RFC3339))); err != nil {
		logger.Warn("failed to persist snapshot sync time", "error", err)
	}

	s.mu.Lock()
	s.records = records
	s.state = StateReady
	s.lastSync = now
	s.mu.Unlock()

	logger.Info("snapshot reseeded from bundled dataset",
		"records", len(records),
		"schema_version", SchemaVersion)
	return nil
}

// Clear wipes the persisted and in-memory snapshot. The next Initialize
// reseeds from the bundled dataset.
func (s *Store) Clear() {
	if err := s.kv.Delete(keyRecords); err != nil {
		logger.Warn("failed to delete persisted records", "error", err)
	}
	if err := s.kv.Delete(keySchemaVersion); err != nil {
		logger.Warn("failed to delete persisted schema version", "error", err)
	}
	if err := s.kv.Delete(keyLastSync); err != nil {
		logger.Warn("failed to delete persisted sync time", "error", err)
	}

	s.mu.Lock()
	s.records = nil
	s.state = StateUninitialized
	s.lastSync = time.Time{}
	s.mu.Unlock()
}

// Query recomputes every record's distance against origin and returns the
// requested bucket, truncated to limit. Records are cloned; callers may
// hold them without affecting the snapshot.
//
//   - nearby: records within the configured radius, closest first. When
//     the radius holds nothing, the globally closest records stand in so
//     the section is never empty.
//   - popular: featured or rating at or above the configured minimum,
//     featured first, then rating descending.
//   - explore: everything not featured and not nearby, rating descending.
func (s *Store) Query(kind QueryKind, origin geo.Point, limit int) []model.PlaceRecord {
	if limit <= 0 {
		return nil
	}

	s.mu.RLock()
	working := make([]model.PlaceRecord, len(s.records))
	for i := range s.records {
		working[i] = s.records[i].Clone()
	}
	s.mu.RUnlock()

	for i := range working {
		working[i].DistanceKm = geo.HaversineKm(origin, geo.Point{
			Lat: working[i].Latitude,
			Lng: working[i].Longitude,
		})
	}

	switch kind {
	case QueryNearby:
		return truncate(s.nearbyBucket(working, limit), limit)
	case QueryPopular:
		return truncate(s.popularBucket(working), limit)
	case QueryExplore:
		return truncate(s.exploreBucket(working), limit)
	default:
		return nil
	}
}

func (s *Store) nearbyBucket(records []model.PlaceRecord, limit int) []model.PlaceRecord {
	var nearby []model.PlaceRecord
	for i := range records {
		if records[i].DistanceKm <= s.settings.NearbyRadiusKm {
			nearby = append(nearby, records[i])
		}
	}
	if len(nearby) == 0 {
		// Fall back to the globally closest records so the section is
		// never empty.
		nearby = make([]model.PlaceRecord, len(records))
		copy(nearby, records)
		sort.SliceStable(nearby, func(i, j int) bool {
			return nearby[i].DistanceKm < nearby[j].DistanceKm
		})
		if len(nearby) > limit {
			nearby = nearby[:limit]
		}
		return nearby
	}
	sort.SliceStable(nearby, func(i, j int) bool {
		return nearby[i].DistanceKm < nearby[j].DistanceKm
	})
	return nearby
}

func (s *Store) popularBucket(records []model.PlaceRecord) []model.PlaceRecord {
	var popular []model.PlaceRecord
	for i := range records {
		if records[i].Featured || records[i].Rating >= s.settings.PopularMinRating {
			popular = append(popular, records[i])
		}
	}
	sort.SliceStable(popular, func(i, j int) bool {
		if popular[i].Featured != popular[j].Featured {
			return popular[i].Featured
		}
		return popular[i].Rating > popular[j].Rating
	})
	return popular
}

func (s *Store) exploreBucket(records []model.PlaceRecord) []model.PlaceRecord {
	var explore []model.PlaceRecord
	for i := range records {
		if records[i].Featured {
			continue
		}
		if records[i].DistanceKm <= s.settings.NearbyRadiusKm {
			continue
		}
		explore = append(explore, records[i])
	}
	sort.SliceStable(explore, func(i, j int) bool {
		return explore[i].Rating > explore[j].Rating
	})
	return explore
}

// QueryCategory returns records of one category, best rated first, with
// distances recomputed against origin.
func (s *Store) QueryCategory(category model.Category, origin geo.Point, limit int) []model.PlaceRecord {
	if limit <= 0 {
		return nil
	}

	s.mu.RLock()
	var matched []model.PlaceRecord
	for i := range s.records {
		if s.records[i].Category == category {
			matched = append(matched, s.records[i].Clone())
		}
	}
	s.mu.RUnlock()

	for i := range matched {
		matched[i].DistanceKm = geo.HaversineKm(origin, geo.Point{
			Lat: matched[i].Latitude,
			Lng: matched[i].Longitude,
		})
	}
	sort.SliceStable(matched, func(i, j int) bool {
		return matched[i].Rating > matched[j].Rating
	})
	return truncate(matched, limit)
}

func truncate(records []model.PlaceRecord, limit int) []model.PlaceRecord {
	if len(records) > limit {
		return records[:limit]
	}
	return records
}

// Close flushes the service log file.
func (s *Store) Close() error {
	if closeLogger != nil {
		return closeLogger()
	}
	return nil
}

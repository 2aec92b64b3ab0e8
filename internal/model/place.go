// Package model defines the shared domain types for the wayfind core.
package model

import (
	"strconv"
	"time"
)

// Category classifies a point of interest. The set is fixed; records with
// any other value are dropped during seeding.
type Category string

const (
	CategoryRestaurant Category = "restaurant"
	CategoryCafe       Category = "cafe"
	CategoryMuseum     Category = "museum"
	CategoryPark       Category = "park"
	CategoryViewpoint  Category = "viewpoint"
	CategoryShopping   Category = "shopping"
)

// Categories lists every valid category in a stable order.
func Categories() []Category {
	return []Category{
		CategoryRestaurant,
		CategoryCafe,
		CategoryMuseum,
		CategoryPark,
		CategoryViewpoint,
		CategoryShopping,
	}
}

// ParseCategory validates a raw category string against the fixed set.
func ParseCategory(raw string) (Category, bool) {
	c := Category(raw)
	switch c {
	case CategoryRestaurant, CategoryCafe, CategoryMuseum,
		CategoryPark, CategoryViewpoint, CategoryShopping:
		return c, true
	}
	return "", false
}

// PlaceRecord represents a single point of interest from the catalog.
// The snapshot store owns the canonical copies; consumers receive clones
// and must never mutate a record in place, enrichment produces new records.
type PlaceRecord struct {
	ID          string   `json:"id"`
	SecondaryID int64    `json:"secondaryId,omitempty"` // numeric id preferred for image-path resolution
	Name        string   `json:"name"`
	Description string   `json:"description,omitempty"`
	Latitude    float64  `json:"latitude"`
	Longitude   float64  `json:"longitude"`
	Category    Category `json:"category"`
	Rating      float64  `json:"rating"`
	DistanceKm  float64  `json:"distanceKm"` // derived, recomputed on every query
	ImageURL    string   `json:"imageUrl,omitempty"`
	ImageURLs   []string `json:"imageUrls,omitempty"`
	Featured    bool     `json:"featured"`
}

// Clone returns a deep copy of the record.
func (p *PlaceRecord) Clone() PlaceRecord {
	out := *p
	if p.ImageURLs != nil {
		out.ImageURLs = make([]string, len(p.ImageURLs))
		copy(out.ImageURLs, p.ImageURLs)
	}
	return out
}

// ImageIDs returns the ordered id list used for image-path resolution.
// The secondary numeric id is preferred when present, the string id acts
// as the fallback.
func (p *PlaceRecord) ImageIDs() []string {
	if p.SecondaryID > 0 {
		return []string{strconv.FormatInt(p.SecondaryID, 10), p.ID}
	}
	return []string{p.ID}
}

// CacheStats summarizes preload cache health. Computed on demand, never
// stored.
type CacheStats struct {
	Total     int
	Loaded    int
	Errors    int
	HitRate   float64
	SampledAt time.Time
}

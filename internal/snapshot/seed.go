// seed.go: the bundled seed dataset used to (re)initialize the local
// snapshot when no valid persisted state exists.
package snapshot

import (
	"embed"
	"encoding/json"
	"fmt"

	"github.com/tvaltari/wayfind-go/internal/model"
)

//go:embed data/seed.json
var seedFiles embed.FS

// seedEntry is the raw shape of a record in the bundled dataset. Entries
// are filtered and transformed into PlaceRecord during seeding.
type seedEntry struct {
	ID          string  `json:"id"`
	SecondaryID int64   `json:"secondaryId"`
	Name        string  `json:"name"`
	Description string  `json:"description"`
	Latitude    float64 `json:"latitude"`
	Longitude   float64 `json:"longitude"`
	Category    string  `json:"category"`
	Rating      float64 `json:"rating"`
	Featured    bool    `json:"featured"`
	Status      string  `json:"status"` // active | inactive | deleted
}

// loadSeed parses the embedded dataset and returns the valid records.
// Inactive, deleted and incomplete entries are dropped.
func loadSeed() ([]model.PlaceRecord, error) {
	raw, err := seedFiles.ReadFile("data/seed.json")
	if err != nil {
		return nil, fmt.Errorf("failed to read seed dataset: %w", err)
	}

	var entries []seedEntry
	if err := json.Unmarshal(raw, &entries); err != nil {
		return nil, fmt.Errorf("failed to parse seed dataset: %w", err)
	}

	records := make([]model.PlaceRecord, 0, len(entries))
	for i := range entries {
		e := &entries[i]
		if e.Status != "active" {
			continue
		}
		if e.ID == "" || e.Name == "" {
			continue
		}
		if e.Latitude == 0 && e.Longitude == 0 {
			continue
		}
		category, ok := model.ParseCategory(e.Category)
		if !ok {
			continue
		}
		records = append(records, model.PlaceRecord{
			ID:          e.ID,
			SecondaryID: e.SecondaryID,
			Name:        e.Name,
			Description: e.Description,
			Latitude:    e.Latitude,
			Longitude:   e.Longitude,
			Category:    category,
			Rating:      e.Rating,
			Featured:    e.Featured,
		})
	}

	if len(records) == 0 {
		return nil, fmt.Errorf("seed dataset contains no valid records")
	}
	return records, nil
}

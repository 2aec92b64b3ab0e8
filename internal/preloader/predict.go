// predict.go: the per-screen prediction heuristics. Given the current UI
// context the preloader forecasts which records the user is likely to
// need next; the forecast feeds the priority queue.
package preloader

import (
	"context"
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"

	"github.com/tvaltari/wayfind-go/internal/geo"
	"github.com/tvaltari/wayfind-go/internal/model"
	"github.com/tvaltari/wayfind-go/internal/snapshot"
)

// Screen identifies the UI surface the prediction runs for.
type Screen string

const (
	ScreenHome    Screen = "home"
	ScreenExplore Screen = "explore"
	ScreenMap     Screen = "map"
	ScreenSearch  Screen = "search"
)

// PredictionContext captures the UI state used to forecast the next data
// need. Constructed per prediction cycle, never persisted.
type PredictionContext struct {
	Screen           Screen
	Origin           geo.Point
	Query            string
	SelectedCategory *model.Category
	Visible          []model.PlaceRecord
	History          []Screen
}

// querySynonyms maps common search terms to catalog vocabulary. Variants
// widen the match set so a preload is ready before the user finishes
// refining the query.
var querySynonyms = map[string][]string{
	"coffee":  {"cafe", "espresso", "roaster"},
	"food":    {"restaurant", "dining", "tavern"},
	"dinner":  {"restaurant", "dining"},
	"art":     {"museum", "gallery"},
	"history": {"museum", "palace"},
	"nature":  {"park", "garden", "forest"},
	"view":    {"viewpoint", "miradouro", "lookout"},
	"sunset":  {"viewpoint", "miradouro"},
	"shop":    {"shopping", "market"},
	"market":  {"shopping"},
}

const (
	homeSamplesPerBucket   = 8
	homeSamplesPerCategory = 2
	exploreSamplesPerCat   = 3
	searchSourceLimit      = 12
)

// Predict returns the candidate records for the given context,
// deduplicated by id and truncated to the per-screen capability cap.
func (p *Preloader) Predict(ctx context.Context, pctx PredictionContext) []model.PlaceRecord {
	p.metrics.IncrementPredictions()

	var candidates []model.PlaceRecord
	switch pctx.Screen {
	case ScreenHome:
		candidates = p.predictHome(pctx)
	case ScreenExplore:
		candidates = p.predictExplore(pctx)
	case ScreenMap:
		candidates = p.predictMap(ctx, pctx)
	case ScreenSearch:
		candidates = p.predictSearch(pctx)
	default:
		return nil
	}

	limit := p.caps.PreloadMaxOther
	if pctx.Screen == ScreenHome {
		limit = p.caps.PreloadMaxHome
	}
	return dedupeByID(candidates, limit)
}

// predictHome anticipates the home feed: popular and explore samples plus
// a few per category for the category rail.
func (p *Preloader) predictHome(pctx PredictionContext) []model.PlaceRecord {
	out := p.snapshot.Query(snapshot.QueryPopular, pctx.Origin, homeSamplesPerBucket)
	out = append(out, p.snapshot.Query(snapshot.QueryExplore, pctx.Origin, homeSamplesPerBucket)...)
	for _, category := range model.Categories() {
		out = append(out, p.snapshot.QueryCategory(category, pctx.Origin, homeSamplesPerCategory)...)
	}
	return out
}

// predictExplore anticipates filter changes: categories other than the
// currently selected one, plus the nearby fallback.
func (p *Preloader) predictExplore(pctx PredictionContext) []model.PlaceRecord {
	var out []model.PlaceRecord
	for _, category := range model.Categories() {
		if pctx.SelectedCategory != nil && category == *pctx.SelectedCategory {
			continue
		}
		out = append(out, p.snapshot.QueryCategory(category, pctx.Origin, exploreSamplesPerCat)...)
	}
	out = append(out, p.snapshot.Query(snapshot.QueryNearby, pctx.Origin, exploreSamplesPerCat)...)
	return out
}

// predictMap prefers records already on screen, which cost nothing to
// reuse. Only when the visible set is below the cap does it issue a
// single supplementary remote nearby query.
func (p *Preloader) predictMap(ctx context.Context, pctx PredictionContext) []model.PlaceRecord {
	out := make([]model.PlaceRecord, 0, len(pctx.Visible))
	for i := range pctx.Visible {
		out = append(out, pctx.Visible[i].Clone())
	}

	limit := p.caps.PreloadMaxOther
	if len(out) >= limit || p.catalog == nil {
		return out
	}

	remote, err := p.catalog.FetchNearby(ctx, pctx.Origin, limit-len(out))
	if err != nil {
		// Prediction is advisory; a failed supplementary query just
		// shrinks the candidate set.
		logger.Debug("supplementary nearby query failed", "error", err)
		return out
	}
	return append(out, remote...)
}

// predictSearch matches the query and its synonym variants against the
// snapshot, with the nearby bucket as fallback.
func (p *Preloader) predictSearch(pctx PredictionContext) []model.PlaceRecord {
	variants := expandQuery(pctx.Query)

	source := p.snapshot.Query(snapshot.QueryPopular, pctx.Origin, searchSourceLimit)
	source = append(source, p.snapshot.Query(snapshot.QueryExplore, pctx.Origin, searchSourceLimit)...)
	source = append(source, p.snapshot.Query(snapshot.QueryNearby, pctx.Origin, searchSourceLimit)...)

	var out []model.PlaceRecord
	for i := range source {
		if matchesAny(&source[i], variants) {
			out = append(out, source[i])
		}
	}
	out = append(out, p.snapshot.Query(snapshot.QueryNearby, pctx.Origin, exploreSamplesPerCat)...)
	return out
}

// expandQuery folds the query and appends its synonym variants.
func expandQuery(query string) []string {
	folded := foldQuery(query)
	if folded == "" {
		return nil
	}
	variants := []string{folded}
	for _, term := range strings.Fields(folded) {
		variants = append(variants, querySynonyms[term]...)
	}
	return variants
}

var foldTransformer = transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)

// foldQuery lowercases and strips diacritics so "Miradouro" matches
// "miradouro" and "café" matches "cafe".
func foldQuery(query string) string {
	folded, _, err := transform.String(foldTransformer, query)
	if err != nil {
		folded = query
	}
	return strings.ToLower(strings.TrimSpace(folded))
}

func matchesAny(record *model.PlaceRecord, variants []string) bool {
	name := foldQuery(record.Name)
	description := foldQuery(record.Description)
	for _, v := range variants {
		if v == "" {
			continue
		}
		if strings.Contains(name, v) || strings.Contains(description, v) || string(record.Category) == v {
			return true
		}
	}
	return false
}

func dedupeByID(records []model.PlaceRecord, limit int) []model.PlaceRecord {
	seen := make(map[string]struct{}, len(records))
	out := make([]model.PlaceRecord, 0, len(records))
	for i := range records {
		if _, dup := seen[records[i].ID]; dup {
			continue
		}
		seen[records[i].ID] = struct{}{}
		out = append(out, records[i])
		if len(out) >= limit {
			break
		}
	}
	return out
}

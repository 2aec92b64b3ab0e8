package enhancer_test

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tvaltari/wayfind-go/internal/conf"
	"github.com/tvaltari/wayfind-go/internal/enhancer"
	"github.com/tvaltari/wayfind-go/internal/model"
)

// fakeResolver serves a fixed URL list per entity id, truncated to the
// requested count.
type fakeResolver struct {
	mu    sync.Mutex
	urls  map[string][]string
	calls int32
}

func (f *fakeResolver) Resolve(_ context.Context, primaryID string, maxCount int, alternateIDs ...string) []string {
	atomic.AddInt32(&f.calls, 1)
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, id := range append([]string{primaryID}, alternateIDs...) {
		if urls, ok := f.urls[id]; ok {
			if len(urls) > maxCount {
				return urls[:maxCount]
			}
			return urls
		}
	}
	return nil
}

func urlsFor(id string, n int) []string {
	out := make([]string, n)
	for i := range out {
		out[i] = fmt.Sprintf("https://img.example.test/entities/%s/images/%d.jpg", id, i)
	}
	return out
}

func testPlaces() []model.PlaceRecord {
	return []model.PlaceRecord{
		{ID: "pl-001", SecondaryID: 101, Name: "Three images"},
		{ID: "pl-002", SecondaryID: 102, Name: "No images"},
		{ID: "pl-003", SecondaryID: 103, Name: "One image"},
	}
}

func TestEnhanceTwoPhases(t *testing.T) {
	t.Parallel()

	resolver := &fakeResolver{urls: map[string][]string{
		"101": urlsFor("101", 3),
		"103": urlsFor("103", 1),
	}}
	e := enhancer.New(resolver, conf.EnhancerSettings{})

	var phase1 []model.PlaceRecord
	var phase1Calls int
	result := e.Enhance(context.Background(), testPlaces(), 5, func(places []model.PlaceRecord) {
		phase1 = places
		phase1Calls++
	})

	require.Equal(t, 1, phase1Calls, "phase-1 callback must fire exactly once")
	require.Len(t, phase1, 3)

	// Phase 1 resolves at most one image per place.
	assert.Len(t, phase1[0].ImageURLs, 1)
	assert.Empty(t, phase1[1].ImageURLs)
	assert.Len(t, phase1[2].ImageURLs, 1)
	assert.Equal(t, phase1[0].ImageURLs[0], phase1[0].ImageURL)

	// Phase 2 fills in the full set.
	require.Len(t, result, 3)
	assert.Len(t, result[0].ImageURLs, 3)
	assert.Empty(t, result[1].ImageURLs)
	assert.Len(t, result[2].ImageURLs, 1)
	assert.Equal(t, result[0].ImageURLs[0], result[0].ImageURL)
}

func TestEnhanceImageCountsNeverShrink(t *testing.T) {
	t.Parallel()

	// This resolver finds an image only when asked for a single one, so
	// the phase-2 pass comes back empty for every place.
	resolver := &shrinkingResolver{}
	e := enhancer.New(resolver, conf.EnhancerSettings{})

	result := e.Enhance(context.Background(), testPlaces(), 5, nil)
	require.Len(t, result, 3)
	for i := range result {
		assert.Len(t, result[i].ImageURLs, 1, "phase-1 value must survive a shorter phase-2 result")
		assert.NotEmpty(t, result[i].ImageURL)
	}
}

type shrinkingResolver struct{}

func (shrinkingResolver) Resolve(_ context.Context, primaryID string, maxCount int, _ ...string) []string {
	if maxCount == 1 {
		return []string{"https://img.example.test/entities/" + primaryID + "/images/0.jpg"}
	}
	return nil
}

func TestEnhanceDoesNotMutateInput(t *testing.T) {
	t.Parallel()

	resolver := &fakeResolver{urls: map[string][]string{"101": urlsFor("101", 2)}}
	e := enhancer.New(resolver, conf.EnhancerSettings{})

	places := testPlaces()
	_ = e.Enhance(context.Background(), places, 3, nil)

	for i := range places {
		assert.Empty(t, places[i].ImageURLs, "input slice must stay untouched")
		assert.Empty(t, places[i].ImageURL)
	}
}

func TestEnhanceEmptyInput(t *testing.T) {
	t.Parallel()

	e := enhancer.New(&fakeResolver{}, conf.EnhancerSettings{})

	called := false
	result := e.Enhance(context.Background(), nil, 3, func(places []model.PlaceRecord) {
		called = true
		assert.Empty(t, places)
	})
	assert.Empty(t, result)
	assert.True(t, called)
}

func TestEnhanceCancelledContextReturnsPartial(t *testing.T) {
	t.Parallel()

	resolver := &fakeResolver{urls: map[string][]string{"101": urlsFor("101", 2)}}
	e := enhancer.New(resolver, conf.EnhancerSettings{Phase1BatchSize: 1, Phase2BatchSize: 1})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	// A cancelled context still yields a result slice of the right length.
	result := e.Enhance(ctx, testPlaces(), 3, nil)
	assert.Len(t, result, 3)
}

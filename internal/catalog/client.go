// Package catalog is the remote document-store client. The contract is
// deliberately narrow: fetch up to N records ordered by a field, and a
// polling subscription with the same bound. The client never issues an
// unbounded query, so arbitrarily large remote catalogs cannot exhaust
// device memory.
package catalog

import (
	"context"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"net/url"
	"path/filepath"
	"strconv"
	"time"

	"github.com/antonholmquist/jason"
	"github.com/patrickmn/go-cache"

	"github.com/tvaltari/wayfind-go/internal/conf"
	"github.com/tvaltari/wayfind-go/internal/errors"
	"github.com/tvaltari/wayfind-go/internal/geo"
	"github.com/tvaltari/wayfind-go/internal/logging"
	"github.com/tvaltari/wayfind-go/internal/model"
)

// Package-level logger specific to the catalog service
var (
	logger          *slog.Logger
	serviceLevelVar = new(slog.LevelVar)
	closeLogger     func() error
)

func init() {
	var err error
	logFilePath := filepath.Join("logs", "catalog.log")
	serviceLevelVar.Set(slog.LevelInfo)

	logger, closeLogger, err = logging.NewFileLogger(logFilePath, "catalog", serviceLevelVar)
	if err != nil {
		log.Printf("Failed to initialize catalog file logger at %s: %v. Service logging disabled.", logFilePath, err)
		logger = logging.DiscardLogger("catalog", serviceLevelVar)
		closeLogger = func() error { return nil }
	}
}

// Client provides bounded queries against the remote place catalog.
type Client struct {
	config     conf.CatalogSettings
	httpClient *http.Client
	cache      *cache.Cache
}

// NewClient creates a catalog client.
func NewClient(config conf.CatalogSettings) (*Client, error) {
	if config.BaseURL == "" {
		return nil, errors.Newf("catalog base URL is required").
			Category(errors.CategoryConfiguration).
			Component("catalog").
			Build()
	}
	if config.Timeout <= 0 {
		config.Timeout = 10 * time.Second
	}
	if config.CacheTTL <= 0 {
		config.CacheTTL = 5 * time.Minute
	}

	return &Client{
		config:     config,
		httpClient: &http.Client{Timeout: config.Timeout},
		cache:      cache.New(config.CacheTTL, config.CacheTTL*2),
	}, nil
}

// FetchNearby returns up to limit records ordered by distance from
// origin. The limit is always applied server-side through the query.
func (c *Client) FetchNearby(ctx context.Context, origin geo.Point, limit int) ([]model.PlaceRecord, error) {
	if limit <= 0 {
		return nil, nil
	}

	cacheKey := fmt.Sprintf("nearby:%.4f:%.4f:%d", origin.Lat, origin.Lng, limit)
	if cached, found := c.cache.Get(cacheKey); found {
		if records, ok := cached.([]model.PlaceRecord); ok {
			logger.Debug("catalog cache hit", "cache_key", cacheKey, "records", len(records))
			return records, nil
		}
	}

	query := url.Values{}
	query.Set("lat", strconv.FormatFloat(origin.Lat, 'f', 6, 64))
	query.Set("lng", strconv.FormatFloat(origin.Lng, 'f', 6, 64))
	query.Set("limit", strconv.Itoa(limit))
	query.Set("orderBy", "distance")
	requestURL := fmt.Sprintf("%s/places/nearby?%s", c.config.BaseURL, query.Encode())

	records, err := c.doRequest(ctx, requestURL)
	if err != nil {
		return nil, err
	}
	if len(records) > limit {
		records = records[:limit]
	}

	c.cache.Set(cacheKey, records, cache.DefaultExpiration)
	return records, nil
}

// doRequest performs the GET and parses the response, retrying once on
// transient failures.
func (c *Client) doRequest(ctx context.Context, requestURL string) ([]model.PlaceRecord, error) {
	var lastErr error
	for attempt := 0; attempt < 2; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(500 * time.Millisecond):
			}
		}

		records, retryable, err := c.tryRequest(ctx, requestURL)
		if err == nil {
			return records, nil
		}
		lastErr = err
		if !retryable {
			break
		}
		logger.Warn("catalog request failed, retrying", "url", requestURL, "error", err)
	}
	return nil, lastErr
}

func (c *Client) tryRequest(ctx context.Context, requestURL string) (records []model.PlaceRecord, retryable bool, err error) {
	reqCtx, cancel := context.WithTimeout(ctx, c.config.Timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(reqCtx, http.MethodGet, requestURL, http.NoBody)
	if err != nil {
		return nil, false, errors.New(err).
			Category(errors.CategoryValidation).
			Component("catalog").
			Build()
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, true, errors.New(err).
			Category(errors.CategoryNetwork).
			Component("catalog").
			Context("url", requestURL).
			Build()
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode >= 500 {
		return nil, true, errors.Newf("catalog returned status %d", resp.StatusCode).
			Category(errors.CategoryNetwork).
			Component("catalog").
			Context("status", resp.StatusCode).
			Build()
	}
	if resp.StatusCode != http.StatusOK {
		return nil, false, errors.Newf("catalog returned status %d", resp.StatusCode).
			Category(errors.CategoryNetwork).
			Component("catalog").
			Context("status", resp.StatusCode).
			Build()
	}

	records, err = parseRecords(resp)
	if err != nil {
		return nil, false, err
	}
	return records, false, nil
}

// parseRecords decodes the catalog response body. Records that fail
// validation (unknown category, missing id) are skipped, not fatal.
func parseRecords(resp *http.Response) ([]model.PlaceRecord, error) {
	root, err := jason.NewObjectFromReader(resp.Body)
	if err != nil {
		return nil, errors.New(err).
			Category(errors.CategoryFileParsing).
			Component("catalog").
			Build()
	}

	items, err := root.GetObjectArray("records")
	if err != nil {
		return nil, errors.Newf("catalog response missing records array").
			Category(errors.CategoryFileParsing).
			Component("catalog").
			Build()
	}

	records := make([]model.PlaceRecord, 0, len(items))
	for _, item := range items {
		id, err := item.GetString("id")
		if err != nil || id == "" {
			continue
		}
		rawCategory, _ := item.GetString("category")
		category, ok := model.ParseCategory(rawCategory)
		if !ok {
			continue
		}

		record := model.PlaceRecord{ID: id, Category: category}
		record.Name, _ = item.GetString("name")
		record.Description, _ = item.GetString("description")
		record.Latitude, _ = item.GetFloat64("latitude")
		record.Longitude, _ = item.GetFloat64("longitude")
		record.Rating, _ = item.GetFloat64("rating")
		record.Featured, _ = item.GetBoolean("featured")
		if secondary, err := item.GetInt64("secondaryId"); err == nil {
			record.SecondaryID = secondary
		}
		if imageURL, err := item.GetString("imageUrl"); err == nil {
			record.ImageURL = imageURL
		}
		records = append(records, record)
	}
	return records, nil
}

// Subscribe polls the nearby query at the given interval and invokes fn
// with each successful result, using the same bound as FetchNearby.
// It blocks until ctx is cancelled. Fetch errors are logged and skipped.
func (c *Client) Subscribe(ctx context.Context, origin geo.Point, limit int, interval time.Duration, fn func([]model.PlaceRecord)) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			// Bypass the response cache so subscribers see changes.
			c.cache.Delete(fmt.Sprintf("nearby:%.4f:%.4f:%d", origin.Lat, origin.Lng, limit))
			records, err := c.FetchNearby(ctx, origin, limit)
			if err != nil {
				logger.Warn("subscription fetch failed", "error", err)
				continue
			}
			fn(records)
		}
	}
}

// Close flushes the service log file.
func (c *Client) Close() error {
	if closeLogger != nil {
		return closeLogger()
	}
	return nil
}

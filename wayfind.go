// Package wayfind wires the local-first data and image delivery core:
// a versioned local snapshot of the place catalog, a multi-tier image URL
// resolution cache over a remote object store, two-phase image
// enrichment, predictive preloading, a memory-pressure cache governor and
// a debounced viewport filter. The package is a library; UI layers
// consume it and own all presentation.
package wayfind

import (
	"context"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/tvaltari/wayfind-go/internal/catalog"
	"github.com/tvaltari/wayfind-go/internal/conf"
	"github.com/tvaltari/wayfind-go/internal/datastore"
	"github.com/tvaltari/wayfind-go/internal/enhancer"
	"github.com/tvaltari/wayfind-go/internal/errors"
	"github.com/tvaltari/wayfind-go/internal/events"
	"github.com/tvaltari/wayfind-go/internal/governor"
	"github.com/tvaltari/wayfind-go/internal/imagecache"
	"github.com/tvaltari/wayfind-go/internal/logging"
	"github.com/tvaltari/wayfind-go/internal/observability/metrics"
	"github.com/tvaltari/wayfind-go/internal/preloader"
	"github.com/tvaltari/wayfind-go/internal/snapshot"
)

// Option customizes core construction, mainly for tests and embedders
// that bring their own transport.
type Option func(*options)

type options struct {
	prober  imagecache.ObjectProber
	fetcher preloader.Fetcher
}

// WithObjectProber replaces the default minio-backed object prober.
func WithObjectProber(p imagecache.ObjectProber) Option {
	return func(o *options) { o.prober = p }
}

// WithFetcher replaces the default HTTP prefetcher.
func WithFetcher(f preloader.Fetcher) Option {
	return func(o *options) { o.fetcher = f }
}

// Core owns every component of the delivery pipeline. Construct with
// NewCore, call Initialize once, and Close on shutdown.
type Core struct {
	Settings  *conf.Settings
	Snapshot  *snapshot.Store
	Images    *imagecache.Resolver
	Enhancer  *enhancer.Enhancer
	Preloader *preloader.Preloader
	Governor  *governor.Governor
	Catalog   *catalog.Client
	Bus       *events.Bus

	kv       datastore.KV
	registry *prometheus.Registry
}

// NewCore builds the pipeline from settings. The object store endpoint is
// required unless WithObjectProber supplies a custom prober; the catalog
// client is optional and only created when a base URL is configured.
func NewCore(settings *conf.Settings, opts ...Option) (*Core, error) {
	logging.Init()

	var o options
	for _, opt := range opts {
		opt(&o)
	}

	if o.prober == nil {
		prober, err := imagecache.NewMinioProber(&settings.ObjectStore)
		if err != nil {
			return nil, errors.New(err).
				Category(errors.CategoryConfiguration).
				Component("core").
				Build()
		}
		o.prober = prober
	}

	kv, err := datastore.Open(&settings.Storage)
	if err != nil {
		return nil, errors.New(err).
			Category(errors.CategoryDatabase).
			Component("core").
			Build()
	}

	registry := prometheus.NewRegistry()
	imageMetrics, err := metrics.NewImageCacheMetrics(registry)
	if err != nil {
		return nil, err
	}
	preloadMetrics, err := metrics.NewPreloaderMetrics(registry)
	if err != nil {
		return nil, err
	}

	core := &Core{
		Settings: settings,
		Bus:      events.NewBus(),
		kv:       kv,
		registry: registry,
	}

	core.Snapshot = snapshot.New(kv, settings.Snapshot)
	core.Images = imagecache.New(o.prober, kv, settings.ImageCache, imageMetrics)
	core.Enhancer = enhancer.New(core.Images, settings.Enhancer)

	if settings.Catalog.BaseURL != "" {
		client, err := catalog.NewClient(settings.Catalog)
		if err != nil {
			return nil, err
		}
		core.Catalog = client
	}

	var nearby preloader.NearbyFetcher
	if core.Catalog != nil {
		nearby = core.Catalog
	}
	core.Preloader = preloader.New(core.Snapshot, nearby, o.fetcher,
		settings.Preload, settings.Capabilities, preloadMetrics)

	core.Governor = governor.New(settings.Governor, core.Preloader, core.Images, core.Bus)

	return core, nil
}

// Initialize loads the local snapshot and starts the governor sampling
// loop.
func (c *Core) Initialize(ctx context.Context) error {
	if err := c.Snapshot.Initialize(ctx); err != nil {
		return err
	}
	c.Governor.Start()
	return nil
}

// MetricsRegistry exposes the prometheus registry holding the core's
// metrics, for embedding into the host application's scrape endpoint.
func (c *Core) MetricsRegistry() *prometheus.Registry {
	return c.registry
}

// Close shuts down background work and releases the storage backend.
func (c *Core) Close() error {
	c.Governor.Stop()
	_ = c.Preloader.Close()
	_ = c.Images.Close()
	_ = c.Snapshot.Close()
	if c.Catalog != nil {
		_ = c.Catalog.Close()
	}
	c.Bus.Close()
	return c.kv.Close()
}

package di

import (
	"fmt"
	"math/rand/v2"
	"net/url"
	"time"

	"github.com/baxromumarov/sale-hunter/internal/config"
	"github.com/baxromumarov/sale-hunter/internal/core"
	"github.com/baxromumarov/sale-hunter/internal/discovery"
	"github.com/baxromumarov/sale-hunter/internal/httpx"
	"github.com/baxromumarov/sale-hunter/internal/listing"
	"github.com/baxromumarov/sale-hunter/internal/scraper"
	"github.com/baxromumarov/sale-hunter/internal/store"
)

// discoveryInterval keeps search-engine lookups well below any rate limit.
const discoveryInterval = 5 * time.Second

// ProvideStore connects to Postgres and applies the schema. It returns nil
// when the database is disabled.
func ProvideStore(cfg *config.Config) (*store.Store, error) {
	if !cfg.Database.Enabled {
		return nil, nil
	}
	st, err := store.NewStore(cfg.Database.URL)
	if err != nil {
		return nil, fmt.Errorf("store: %w", err)
	}
	if err := st.RunMigrations(cfg.Database.SchemaPath); err != nil {
		_ = st.Close()
		return nil, fmt.Errorf("store migrations: %w", err)
	}
	return st, nil
}

// ProvideFetchers builds the HTML fetcher and the robots-aware JSON client.
func ProvideFetchers(cfg *config.Config) (*httpx.CollyFetcher, *httpx.PoliteClient) {
	fc := cfg.FetcherConfig()
	return httpx.NewCollyFetcher(fc), httpx.NewPoliteClient(fc)
}

// ProvideCollectors returns one collector per enabled retailer family, in
// the order their listings appear in a run.
func ProvideCollectors(cfg *config.Config, fetcher scraper.PageFetcher, client scraper.JSONFetcher) []scraper.Collector {
	var out []scraper.Collector
	if cfg.Daraz.Enabled && len(cfg.Daraz.Targets) > 0 {
		if cfg.Daraz.Catalog {
			out = append(out, scraper.NewDarazCatalogScraper(client, cfg.Daraz.Targets, cfg.Daraz.Pages))
		} else {
			out = append(out, scraper.NewDarazScraper(fetcher, cfg.Daraz.Targets, cfg.Daraz.Pages))
		}
	}
	if cfg.PriceOye.Enabled && len(cfg.PriceOye.Targets) > 0 {
		out = append(out, scraper.NewPriceOyeScraper(fetcher, cfg.PriceOye.Targets, cfg.PriceOye.Pages))
	}
	if cfg.Brands.Enabled && len(cfg.Brands.Targets) > 0 {
		out = append(out, scraper.NewBrandScraper(fetcher, scraper.NewTextNormalizer(), cfg.Brands.Targets))
	}
	return out
}

// ProvideProcessor builds the batch pass. A nil rng seeds a fresh PCG.
func ProvideProcessor(cfg *config.Config, rng listing.Rand) *listing.Processor {
	if rng == nil {
		now := uint64(time.Now().UnixNano())
		rng = rand.New(rand.NewPCG(now, now>>1|1))
	}
	engine := listing.NewEngine(
		listing.WithCurrencyMarker(cfg.Run.Currency),
		listing.WithTolerance(cfg.Run.Tolerance),
	)
	fallback := listing.NewFallback(rng, listing.WithSearchTemplate(cfg.Search.Template, cfg.Search.Suffix))
	return listing.NewProcessor(engine, fallback, cfg.Run.Workers)
}

// ProvideResolver returns the sale-page finder, or nil when discovery is
// off. The finder gets its own fetcher so its timeout and pacing stay apart
// from retailer traffic.
func ProvideResolver(cfg *config.Config) core.EntityResolver {
	if !cfg.Discovery.Enabled {
		return nil
	}
	fc := cfg.FetcherConfig()
	fc.Timeout = cfg.Discovery.Timeout
	fc.RespectRobots = false
	fetcher := httpx.NewCollyFetcher(fc)
	if u, err := url.Parse(cfg.Discovery.Endpoint); err == nil && u.Host != "" {
		fetcher.SetHostLimit(u.Host, discoveryInterval, 1)
	}
	return discovery.NewSaleURLFinder(fetcher, cfg.Discovery.Endpoint, cfg.Search.Suffix)
}

// ProvideMonitor assembles the monitor. st may be nil; alerts then stay off.
func ProvideMonitor(cfg *config.Config, collectors []scraper.Collector, processor *listing.Processor, st *store.Store, resolver core.EntityResolver) *core.MonitorService {
	mc := core.MonitorConfig{
		Run: cfg.ListingRunConfig(),
		Affiliate: core.Affiliate{
			DarazID:    cfg.Affiliate.DarazID,
			PriceOyeID: cfg.Affiliate.PriceOyeID,
			UTMSource:  cfg.Affiliate.UTMSource,
			UTMMedium:  cfg.Affiliate.UTMMedium,
		},
		Interval: cfg.Run.Interval,
		Timeout:  cfg.Run.Timeout,
	}

	var opts []core.MonitorOption
	if st != nil {
		opts = append(opts, core.WithStore(st))
		if !cfg.Run.DisableAlerts {
			opts = append(opts, core.WithAlerts(core.NewAlertService(st, nil)))
		}
	}
	if resolver != nil {
		opts = append(opts, core.WithResolver(resolver))
	}
	return core.NewMonitorService(collectors, processor, mc, opts...)
}

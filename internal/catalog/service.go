package catalog

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"github.com/noah-isme/backend-quote/internal/obs"
	"github.com/noah-isme/backend-quote/internal/resilience"
)

// Provider hands out the catalog snapshot a request should price against.
type Provider interface {
	Acquire(ctx context.Context) (*Snapshot, error)
}

// Service owns the active catalog snapshot and reloads it from a Source.
// Readers always see a complete snapshot; reloads swap it atomically.
type Service struct {
	source   Source
	cache    *Cache
	guard    resilience.Guard
	logger   zerolog.Logger
	current  atomic.Pointer[Snapshot]
	reloadMu sync.Mutex
	// warmMu collapses concurrent first loads into one source fetch.
	warmMu sync.Mutex
}

// ServiceConfig groups Service dependencies.
type ServiceConfig struct {
	Source  Source
	Cache   *Cache
	Timeout time.Duration
	Breaker *resilience.Breaker
	Logger  zerolog.Logger
}

// ReloadResult describes a snapshot installation.
type ReloadResult struct {
	Products  int       `json:"products"`
	LoadedAt  time.Time `json:"loadedAt"`
	FromCache bool      `json:"fromCache"`
}

// NewService constructs a Service. No data is loaded until Warm, Reload or the
// first Acquire.
func NewService(cfg ServiceConfig) (*Service, error) {
	if cfg.Source == nil {
		return nil, errors.New("catalog: source is required")
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &Service{
		source: cfg.Source,
		cache:  cfg.Cache,
		guard:  resilience.Guard{Breaker: cfg.Breaker, Timeout: timeout},
		logger: cfg.Logger,
	}, nil
}

// Acquire returns the active snapshot, loading one on first use.
func (s *Service) Acquire(ctx context.Context) (*Snapshot, error) {
	if snap := s.current.Load(); snap != nil {
		return snap, nil
	}
	s.warmMu.Lock()
	defer s.warmMu.Unlock()
	if snap := s.current.Load(); snap != nil {
		return snap, nil
	}
	if _, err := s.Warm(ctx); err != nil {
		if errors.Is(err, ErrUnavailable) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return s.current.Load(), nil
}

// Warm loads from the source, falling back to the Redis copy when the source
// is unreachable.
func (s *Service) Warm(ctx context.Context) (ReloadResult, error) {
	res, err := s.Reload(ctx)
	if err == nil {
		return res, nil
	}
	products, found, cacheErr := s.cache.LoadProducts(ctx)
	if cacheErr != nil {
		s.logger.Warn().Err(cacheErr).Msg("catalog cache read failed")
	}
	if !found {
		return ReloadResult{}, err
	}
	snap, snapErr := NewSnapshot(products)
	if snapErr != nil {
		s.logger.Warn().Err(snapErr).Msg("cached catalog rejected")
		return ReloadResult{}, err
	}
	s.install(snap)
	s.logger.Warn().Err(err).Int("products", snap.Len()).Msg("catalog served from cache")
	return ReloadResult{Products: snap.Len(), LoadedAt: snap.LoadedAt(), FromCache: true}, nil
}

// Reload fetches the product set from the source and swaps in a new snapshot.
// Source failures and timeouts are reported as ErrUnavailable; the previous
// snapshot stays active.
func (s *Service) Reload(ctx context.Context) (ReloadResult, error) {
	s.reloadMu.Lock()
	defer s.reloadMu.Unlock()

	var products []Product
	err := s.guard.Do(ctx, func(ctx context.Context) error {
		var loadErr error
		products, loadErr = s.source.LoadProducts(ctx)
		return loadErr
	})
	if err != nil {
		return ReloadResult{}, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	snap, err := NewSnapshot(products)
	if err != nil {
		return ReloadResult{}, err
	}
	s.install(snap)
	if err := s.cache.StoreProducts(ctx, products); err != nil {
		s.logger.Warn().Err(err).Msg("catalog cache write failed")
	}
	s.logger.Info().Int("products", snap.Len()).Msg("catalog_snapshot_loaded")
	return ReloadResult{Products: snap.Len(), LoadedAt: snap.LoadedAt()}, nil
}

// Resolve resolves reference against the active snapshot.
func (s *Service) Resolve(ctx context.Context, reference string) ([]Product, error) {
	snap, err := s.Acquire(ctx)
	if err != nil {
		obs.ObserveCatalogLookup("unavailable")
		return nil, err
	}
	candidates, err := snap.Resolve(reference)
	if err != nil {
		obs.ObserveCatalogLookup("not_found")
		return nil, err
	}
	obs.ObserveCatalogLookup("found")
	return candidates, nil
}

// Get returns a product by id from the active snapshot.
func (s *Service) Get(ctx context.Context, id string) (Product, error) {
	snap, err := s.Acquire(ctx)
	if err != nil {
		return Product{}, err
	}
	return snap.Get(id)
}

func (s *Service) install(snap *Snapshot) {
	s.current.Store(snap)
	obs.SetCatalogSnapshotProducts(snap.Len())
}

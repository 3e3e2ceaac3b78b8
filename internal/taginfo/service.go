package taginfo

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/rafaeljc/mimir/internal/cache"
	"github.com/rafaeljc/mimir/internal/observability"
)

// Fetcher retrieves fresh suggestions from upstream.
type Fetcher interface {
	Fetch(ctx context.Context, key string, searchKeys bool) ([]string, error)
}

// SharedStore is the optional L2 tier shared between instances.
type SharedStore interface {
	Get(ctx context.Context, key string) (cache.Entry, bool, error)
	Set(ctx context.Context, key string, e cache.Entry) error
}

// Service answers suggestion lookups from cache and refreshes stale entries
// in the background.
type Service struct {
	l1      *cache.MemoryCache
	l2      SharedStore
	fetcher Fetcher
	logger  *slog.Logger

	staleAfter   time.Duration
	fetchTimeout time.Duration
	now          func() time.Time

	group singleflight.Group
	wg    sync.WaitGroup
}

// Option customizes a Service.
type Option func(*Service)

// WithSharedStore adds a Redis-backed L2 tier.
func WithSharedStore(s SharedStore) Option {
	return func(svc *Service) { svc.l2 = s }
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(svc *Service) { svc.now = now }
}

// NewService wires the lookup service. staleAfter is the refresh window and
// fetchTimeout bounds each background request.
func NewService(l1 *cache.MemoryCache, fetcher Fetcher, logger *slog.Logger, staleAfter, fetchTimeout time.Duration, opts ...Option) *Service {
	if l1 == nil {
		panic("taginfo: memory cache cannot be nil")
	}
	if fetcher == nil {
		panic("taginfo: fetcher cannot be nil")
	}
	if logger == nil {
		panic("taginfo: logger cannot be nil")
	}

	s := &Service{
		l1:           l1,
		fetcher:      fetcher,
		logger:       logger,
		staleAfter:   staleAfter,
		fetchTimeout: fetchTimeout,
		now:          time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// CacheKey is the cache slot for one lookup.
func CacheKey(key string, searchKeys bool) string {
	if searchKeys {
		return key + ":K"
	}
	return key + ":V"
}

// Lookup returns whatever is cached for key right away, possibly stale or
// empty. When update is non-nil and the entry is stale, a refresh starts in
// the background; the entry is marked in flight, keeping its old results, and
// update is called with the new results once they arrive. Failed refreshes
// are retried only after the staleness window passes again.
func (s *Service) Lookup(ctx context.Context, key string, searchKeys bool, update func([]string)) []string {
	slot := CacheKey(key, searchKeys)
	entry, found := s.get(ctx, slot)

	now := s.now()
	if update != nil && entry.Stale(now, s.staleAfter) {
		if found {
			observability.TagInfoStale.Inc()
		}
		s.l1.Set(slot, cache.Entry{Date: now, Results: entry.Results})
		s.refresh(slot, key, searchKeys, update)
	}

	if entry.Results == nil {
		return []string{}
	}
	return entry.Results
}

func (s *Service) get(ctx context.Context, slot string) (cache.Entry, bool) {
	if e, ok := s.l1.Get(slot); ok {
		return e, true
	}

	if s.l2 != nil {
		e, ok, err := s.l2.Get(ctx, slot)
		if err != nil {
			s.logger.WarnContext(ctx, "taginfo shared cache read failed", slog.String("key", slot), slog.Any("error", err))
		}
		if ok {
			observability.TagInfoCacheHits.WithLabelValues("l2").Inc()
			s.l1.Set(slot, e)
			return e, true
		}
	}

	observability.TagInfoCacheMisses.Inc()
	return cache.Entry{}, false
}

func (s *Service) refresh(slot, key string, searchKeys bool, update func([]string)) {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()

		v, err, _ := s.group.Do(slot, func() (any, error) {
			// Detached from the caller: the request that triggered the
			// refresh has usually returned by now.
			ctx, cancel := context.WithTimeout(context.Background(), s.fetchTimeout)
			defer cancel()

			results, err := s.fetcher.Fetch(ctx, key, searchKeys)
			if err != nil {
				observability.TagInfoFetchesTotal.WithLabelValues("fail").Inc()
				return nil, err
			}
			observability.TagInfoFetchesTotal.WithLabelValues("success").Inc()

			if len(results) > 0 {
				s.store(ctx, slot, cache.Entry{Date: s.now(), Results: results})
			}
			return results, nil
		})
		if err != nil {
			s.logger.Warn("taginfo refresh failed", slog.String("key", slot), slog.Any("error", err))
			return
		}

		if results := v.([]string); len(results) > 0 {
			update(results)
		}
	}()
}

func (s *Service) store(ctx context.Context, slot string, e cache.Entry) {
	s.l1.Set(slot, e)
	if s.l2 == nil {
		return
	}
	if err := s.l2.Set(ctx, slot, e); err != nil {
		s.logger.Warn("taginfo shared cache write failed", slog.String("key", slot), slog.Any("error", err))
	}
}

// Wait blocks until background refreshes finish.
func (s *Service) Wait() {
	s.wg.Wait()
}

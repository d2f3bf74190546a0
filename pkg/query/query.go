package query

import (
	"context"
	"errors"
	"time"

	"github.com/papertrail-ai/papertrail/backend/pkg/store"
)

// ErrNotFound is returned for a missing node or a node owned by someone else.
var ErrNotFound = errors.New("entity not found")

// Cache stores per-owner query results. Implementations must drop every
// entry of an owner on Invalidate.
//
// Load reports the owner's version as of the lookup. Store must only write
// when the owner is still at that version, so a result read before an
// Invalidate never outlives it. A negative version means unknown and
// disables the write.
type Cache interface {
	Load(ctx context.Context, owner, key string, dst any) (version int64, hit bool)
	Store(ctx context.Context, owner, key string, version int64, value any)
	Invalidate(ctx context.Context, owner string) error
}

// Service is the read side of the graph: full projections, dossiers and
// bounded subgraphs. It never mutates the store.
type Service struct {
	storage store.GraphStorage
	cache   Cache
	trace   Tracer
	now     func() time.Time
}

type Option func(*Service)

func WithCache(c Cache) Option {
	return func(s *Service) {
		s.cache = c
	}
}

func WithTracer(t Tracer) Option {
	return func(s *Service) {
		s.trace = t
	}
}

// WithClock overrides the time source used for activity trends.
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		if now != nil {
			s.now = now
		}
	}
}

func NewService(storage store.GraphStorage, opts ...Option) *Service {
	s := &Service{
		storage: storage,
		now:     time.Now,
	}
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		opt(s)
	}
	return s
}

// load must run before the storage read whose result is handed to store.
func (s *Service) load(ctx context.Context, owner, key string, dst any) (int64, bool) {
	if s.cache == nil {
		return -1, false
	}
	version, hit := s.cache.Load(ctx, owner, key, dst)
	if hit {
		recordCacheHit(s.trace, owner, key)
	}
	return version, hit
}

func (s *Service) store(ctx context.Context, owner, key string, version int64, value any) {
	if s.cache != nil && version >= 0 {
		s.cache.Store(ctx, owner, key, version, value)
	}
}

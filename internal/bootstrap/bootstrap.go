package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/papertrail-ai/papertrail/backend/internal/cache"
	"github.com/papertrail-ai/papertrail/backend/internal/util"
	"github.com/papertrail-ai/papertrail/backend/pkg/ai"
	oai "github.com/papertrail-ai/papertrail/backend/pkg/ai/ollama"
	gai "github.com/papertrail-ai/papertrail/backend/pkg/ai/openai"
	"github.com/papertrail-ai/papertrail/backend/pkg/analysis"
	"github.com/papertrail-ai/papertrail/backend/pkg/graph"
	"github.com/papertrail-ai/papertrail/backend/pkg/leaselock"
	"github.com/papertrail-ai/papertrail/backend/pkg/logger"
	"github.com/papertrail-ai/papertrail/backend/pkg/mirror"
	"github.com/papertrail-ai/papertrail/backend/pkg/query"
	"github.com/papertrail-ai/papertrail/backend/pkg/store"
	pgstore "github.com/papertrail-ai/papertrail/backend/pkg/store/pgx"
	"github.com/papertrail-ai/papertrail/backend/pkg/store/sqlite"
)

const (
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
)

// Deps holds the services shared by the server, the worker and the CLI.
type Deps struct {
	Storage store.GraphStorage
	Graph   *graph.GraphClient
	Query   *query.Service
	Cache   *cache.RedisCache

	closers []func()
}

// Close releases everything opened by Open in reverse order.
func (d *Deps) Close() {
	for i := len(d.closers) - 1; i >= 0; i-- {
		d.closers[i]()
	}
	d.closers = nil
}

// Open connects the configured store and builds the graph and query
// services. Redis and Neo4j are attached when configured; a failure to
// reach either is logged and the service runs without it.
func Open(ctx context.Context) (*Deps, error) {
	d := &Deps{}

	storage, locker, err := d.openStorage(ctx)
	if err != nil {
		d.Close()
		return nil, err
	}
	d.Storage = storage

	var observers []graph.RebuildObserver
	var queryOpts []query.Option

	c, err := cache.NewFromEnv(ctx)
	if err != nil {
		logger.Warn("[Bootstrap] Redis unavailable, caching disabled", "err", err)
	}
	if c != nil {
		d.Cache = c
		d.closers = append(d.closers, func() { _ = c.Close() })
		observers = append(observers, c)
		queryOpts = append(queryOpts, query.WithCache(c))
	}

	m, err := mirror.NewFromEnv(ctx, storage)
	if err != nil {
		logger.Warn("[Bootstrap] Neo4j unavailable, mirror disabled", "err", err)
	}
	if m != nil {
		d.closers = append(d.closers, func() { _ = m.Close(context.Background()) })
		observers = append(observers, m)
	}

	d.Graph, err = graph.NewGraphClient(graph.NewGraphClientParams{
		Storage:   storage,
		Locker:    locker,
		Observers: observers,
	})
	if err != nil {
		d.Close()
		return nil, err
	}
	d.Query = query.NewService(storage, queryOpts...)
	return d, nil
}

func (d *Deps) openStorage(ctx context.Context) (store.GraphStorage, leaselock.Locker, error) {
	driver := util.GetEnvString("STORE_DRIVER", DriverPostgres)
	switch driver {
	case DriverPostgres:
		dsn := util.GetEnv("DATABASE_URL")
		if dsn == "" {
			return nil, nil, errors.New("DATABASE_URL is not set")
		}
		pool, err := pgxpool.New(ctx, dsn)
		if err != nil {
			return nil, nil, fmt.Errorf("connect to database: %w", err)
		}
		d.closers = append(d.closers, pool.Close)
		if err := util.RetryErrWithBackoff(ctx, 5, time.Second, pool.Ping); err != nil {
			return nil, nil, fmt.Errorf("ping database: %w", err)
		}

		ttl := util.GetEnvSeconds("GRAPH_LOCK_TTL_SECONDS", 10*time.Minute)
		locker := leaselock.New(pool, leaselock.Options{
			TTL:         ttl,
			Wait:        true,
			WaitJitter:  100 * time.Millisecond,
			TokenPrefix: "graph",
		})
		return pgstore.NewGraphDBStorageWithConnection(pool), locker, nil

	case DriverSQLite:
		s, err := sqlite.NewStore(util.GetEnvString("SQLITE_PATH", "./papertrail.db"))
		if err != nil {
			return nil, nil, fmt.Errorf("open sqlite store: %w", err)
		}
		d.closers = append(d.closers, func() { _ = s.Close() })
		return s, leaselock.NewKeyedMutex(), nil

	default:
		return nil, nil, fmt.Errorf("unknown STORE_DRIVER %q", driver)
	}
}

// NewAIClient builds the language model client selected by AI_ADAPTER.
func NewAIClient() (ai.GraphAIClient, error) {
	switch util.GetEnvString("AI_ADAPTER", "openai") {
	case "ollama":
		client, err := oai.NewGraphOllamaClient(oai.NewGraphOllamaClientParams{
			Model:   util.GetEnv("AI_CHAT_MODEL"),
			BaseURL: util.GetEnv("AI_CHAT_URL"),
			ApiKey:  util.GetEnv("AI_CHAT_KEY"),

			MaxConcurrentRequests: int64(util.GetEnvInt("AI_PARALLEL_REQ", 4)),
		})
		if err != nil {
			return nil, fmt.Errorf("create ollama client: %w", err)
		}
		return client, nil
	default:
		client, err := gai.NewGraphOpenAIClient(gai.NewGraphOpenAIClientParams{
			Model:   util.GetEnvString("AI_CHAT_MODEL", "gpt-4o"),
			ChatURL: util.GetEnv("AI_CHAT_URL"),
			ChatKey: util.GetEnv("AI_CHAT_KEY"),

			RequestsPerSecond: util.GetEnvNumeric("AI_REQ_PER_SECOND", 0),
		})
		if err != nil {
			return nil, fmt.Errorf("create openai client: %w", err)
		}
		return client, nil
	}
}

// NewAnalyzer builds the analysis service, or returns nil when no language
// model is configured.
func (d *Deps) NewAnalyzer() *analysis.Analyzer {
	client, err := NewAIClient()
	if err != nil {
		logger.Warn("[Bootstrap] No AI client, analysis disabled", "err", err)
		return nil
	}
	a, err := analysis.NewAnalyzer(analysis.NewAnalyzerParams{
		Storage:   d.Storage,
		Query:     d.Query,
		Client:    client,
		MaxNodes:  util.GetEnvInt("ANALYSIS_MAX_NODES", query.MaxSubgraphNodes),
		MaxTokens: util.GetEnvInt("ANALYSIS_MAX_TOKENS", 12000),
		Parallel:  util.GetEnvInt("AI_PARALLEL_REQ", 4),
	})
	if err != nil {
		logger.Warn("[Bootstrap] Analysis disabled", "err", err)
		return nil
	}
	return a
}

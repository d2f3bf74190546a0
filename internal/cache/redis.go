package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/papertrail-ai/papertrail/backend/internal/util"
	"github.com/papertrail-ai/papertrail/backend/pkg/graph"
	"github.com/papertrail-ai/papertrail/backend/pkg/logger"
)

const (
	keyPrefix  = "papertrail"
	defaultTTL = 5 * time.Minute
)

// RedisCache is a read-through cache for query results. Every owner has a
// version counter that is part of each entry key; bumping it on rebuild
// orphans the old entries, which then expire through their TTL.
type RedisCache struct {
	rdb *goredis.Client
	ttl time.Duration
}

// NewFromEnv connects to REDIS_ADDR. It returns nil, nil when caching is
// not configured.
func NewFromEnv(ctx context.Context) (*RedisCache, error) {
	addr := util.GetEnv("REDIS_ADDR")
	if addr == "" {
		return nil, nil
	}
	ttl := util.GetEnvSeconds("CACHE_TTL_SECONDS", defaultTTL)

	rdb := goredis.NewClient(&goredis.Options{
		Addr:        addr,
		Password:    util.GetEnv("REDIS_PASSWORD"),
		DialTimeout: 5 * time.Second,
	})

	pctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := rdb.Ping(pctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}

	return New(rdb, ttl), nil
}

func New(rdb *goredis.Client, ttl time.Duration) *RedisCache {
	if ttl <= 0 {
		ttl = defaultTTL
	}
	return &RedisCache{rdb: rdb, ttl: ttl}
}

func versionKey(owner string) string {
	return keyPrefix + ":ver:" + owner
}

func entryKey(owner string, version int64, key string) string {
	return keyPrefix + ":q:" + owner + ":v" + strconv.FormatInt(version, 10) + ":" + key
}

func (c *RedisCache) version(ctx context.Context, owner string) (int64, error) {
	v, err := c.rdb.Get(ctx, versionKey(owner)).Int64()
	if errors.Is(err, goredis.Nil) {
		return 0, nil
	}
	return v, err
}

// storeIfCurrent writes the entry only while the owner's version still
// matches ARGV[1]. A missing version key counts as 0.
var storeIfCurrent = goredis.NewScript(`
local v = redis.call('GET', KEYS[1]) or '0'
if v ~= ARGV[1] then
	return 0
end
redis.call('SET', KEYS[2], ARGV[2], 'PX', ARGV[3])
return 1
`)

// Load decodes the cached value into dst and reports the owner's version at
// lookup time. Any Redis or decode failure is a miss; a failed version
// lookup returns -1 so the caller skips the write-back.
func (c *RedisCache) Load(ctx context.Context, owner, key string, dst any) (int64, bool) {
	v, err := c.version(ctx, owner)
	if err != nil {
		logger.Debug("[Cache] Version lookup failed", "owner", owner, "err", err)
		return -1, false
	}
	raw, err := c.rdb.Get(ctx, entryKey(owner, v, key)).Bytes()
	if err != nil {
		if !errors.Is(err, goredis.Nil) {
			logger.Debug("[Cache] Load failed", "owner", owner, "key", key, "err", err)
		}
		return v, false
	}
	if err := json.Unmarshal(raw, dst); err != nil {
		logger.Warn("[Cache] Dropping undecodable entry", "owner", owner, "key", key, "err", err)
		return v, false
	}
	return v, true
}

// Store writes value under version. The write is skipped when the owner was
// invalidated after the matching Load.
func (c *RedisCache) Store(ctx context.Context, owner, key string, version int64, value any) {
	if version < 0 {
		return
	}
	raw, err := json.Marshal(value)
	if err != nil {
		logger.Warn("[Cache] Encode failed", "owner", owner, "key", key, "err", err)
		return
	}
	keys := []string{versionKey(owner), entryKey(owner, version, key)}
	written, err := storeIfCurrent.Run(ctx, c.rdb, keys, strconv.FormatInt(version, 10), raw, c.ttl.Milliseconds()).Int()
	if err != nil {
		logger.Debug("[Cache] Store failed", "owner", owner, "key", key, "err", err)
		return
	}
	if written == 0 {
		logger.Debug("[Cache] Skipping store for superseded version", "owner", owner, "key", key, "version", version)
	}
}

// Invalidate bumps the owner's version so every existing entry is skipped.
func (c *RedisCache) Invalidate(ctx context.Context, owner string) error {
	return c.rdb.Incr(ctx, versionKey(owner)).Err()
}

// OnRebuild invalidates the owner after a successful rebuild.
func (c *RedisCache) OnRebuild(ctx context.Context, owner string, _ graph.RebuildStats) error {
	return c.Invalidate(ctx, owner)
}

func (c *RedisCache) Close() error {
	if c == nil || c.rdb == nil {
		return nil
	}
	return c.rdb.Close()
}

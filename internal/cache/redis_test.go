package cache

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/papertrail-ai/papertrail/backend/pkg/common"
	"github.com/papertrail-ai/papertrail/backend/pkg/graph"
	"github.com/papertrail-ai/papertrail/backend/pkg/query"
)

var (
	_ query.Cache           = (*RedisCache)(nil)
	_ graph.RebuildObserver = (*RedisCache)(nil)
)

func TestKeys(t *testing.T) {
	assert.Equal(t, "papertrail:ver:u1", versionKey("u1"))
	assert.Equal(t, "papertrail:q:u1:v3:dossier:d1", entryKey("u1", 3, "dossier:d1"))
}

func TestNewFromEnvDisabled(t *testing.T) {
	t.Setenv("REDIS_ADDR", "")
	c, err := NewFromEnv(context.Background())
	require.NoError(t, err)
	assert.Nil(t, c)
}

func newTestCache(t *testing.T, ttl time.Duration) (*RedisCache, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	c := New(goredis.NewClient(&goredis.Options{Addr: mr.Addr()}), ttl)
	t.Cleanup(func() { _ = c.Close() })
	return c, mr
}

func sampleGraph(id string) common.GraphData {
	return common.GraphData{Nodes: []common.GraphNode{{ID: id, Label: id + ".pdf", Type: "document"}}, Links: []common.GraphEdge{}}
}

func TestRedisCacheVersioning(t *testing.T) {
	c, mr := newTestCache(t, time.Minute)
	ctx := context.Background()

	var got common.GraphData
	v, hit := c.Load(ctx, "u1", "graph", &got)
	require.False(t, hit)
	assert.Equal(t, int64(0), v)

	c.Store(ctx, "u1", "graph", v, sampleGraph("d1"))
	v, hit = c.Load(ctx, "u1", "graph", &got)
	require.True(t, hit)
	assert.Equal(t, int64(0), v)
	assert.Equal(t, "d1", got.Nodes[0].ID)

	require.NoError(t, c.OnRebuild(ctx, "u1", graph.RebuildStats{}))
	ver, err := mr.Get(versionKey("u1"))
	require.NoError(t, err)
	assert.Equal(t, "1", ver)

	got = common.GraphData{}
	v, hit = c.Load(ctx, "u1", "graph", &got)
	assert.False(t, hit)
	assert.Equal(t, int64(1), v)

	// Other owners keep their entries.
	c.Store(ctx, "u2", "graph", 0, sampleGraph("x1"))
	_, hit = c.Load(ctx, "u2", "graph", &got)
	assert.True(t, hit)
}

func TestRedisCacheSkipsStoreAfterInvalidate(t *testing.T) {
	c, mr := newTestCache(t, time.Minute)
	ctx := context.Background()

	var got common.GraphData
	before, hit := c.Load(ctx, "u1", "graph", &got)
	require.False(t, hit)

	// A rebuild lands between the miss and the write-back.
	require.NoError(t, c.Invalidate(ctx, "u1"))
	c.Store(ctx, "u1", "graph", before, sampleGraph("stale"))

	assert.False(t, mr.Exists(entryKey("u1", before, "graph")))
	assert.False(t, mr.Exists(entryKey("u1", before+1, "graph")))
	now, hit := c.Load(ctx, "u1", "graph", &got)
	assert.False(t, hit)
	assert.Equal(t, before+1, now)

	c.Store(ctx, "u1", "graph", now, sampleGraph("fresh"))
	_, hit = c.Load(ctx, "u1", "graph", &got)
	require.True(t, hit)
	assert.Equal(t, "fresh", got.Nodes[0].ID)
}

func TestRedisCacheStoreRules(t *testing.T) {
	c, mr := newTestCache(t, time.Minute)
	ctx := context.Background()

	c.Store(ctx, "u1", "graph", -1, sampleGraph("d1"))
	assert.Empty(t, mr.Keys())

	c.Store(ctx, "u1", "graph", 0, sampleGraph("d1"))
	assert.True(t, mr.Exists(entryKey("u1", 0, "graph")))
	assert.Equal(t, time.Minute, mr.TTL(entryKey("u1", 0, "graph")))

	mr.FastForward(time.Minute + time.Second)
	var got common.GraphData
	_, hit := c.Load(ctx, "u1", "graph", &got)
	assert.False(t, hit)

	require.NoError(t, mr.Set(entryKey("u1", 0, "graph"), "{not json"))
	_, hit = c.Load(ctx, "u1", "graph", &got)
	assert.False(t, hit)
}

// Runs against a real server when REDIS_TEST_ADDR is set.
func TestRedisCacheRoundTrip(t *testing.T) {
	addr := os.Getenv("REDIS_TEST_ADDR")
	if addr == "" {
		t.Skip("REDIS_TEST_ADDR not set")
	}
	ctx := context.Background()
	rdb := goredis.NewClient(&goredis.Options{Addr: addr})
	c := New(rdb, time.Minute)
	t.Cleanup(func() { _ = c.Close() })

	owner := "cache-test-" + time.Now().Format("150405.000000")
	want := common.GraphData{Nodes: []common.GraphNode{{ID: "d1", Label: "d1.pdf", Type: "document"}}, Links: []common.GraphEdge{}}
	c.Store(ctx, owner, "graph", 0, want)

	var got common.GraphData
	_, hit := c.Load(ctx, owner, "graph", &got)
	require.True(t, hit)
	assert.Equal(t, want.Nodes[0].ID, got.Nodes[0].ID)

	require.NoError(t, c.OnRebuild(ctx, owner, graph.RebuildStats{}))
	_, hit = c.Load(ctx, owner, "graph", &got)
	assert.False(t, hit)
}

package query

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/papertrail-ai/papertrail/backend/pkg/common"
	"github.com/papertrail-ai/papertrail/backend/pkg/graph"
	"github.com/papertrail-ai/papertrail/backend/pkg/store"
	"github.com/papertrail-ai/papertrail/backend/pkg/store/sqlite"
)

var testNow = time.Date(2025, 6, 15, 0, 0, 0, 0, time.UTC)

type fixture struct {
	store   *sqlite.Store
	service *Service
	trace   *QueryTrace
}

func newFixture(t *testing.T, opts ...Option) *fixture {
	t.Helper()

	s, err := sqlite.NewStore(filepath.Join(t.TempDir(), "graph.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })

	trace := NewQueryTrace()
	opts = append([]Option{WithClock(func() time.Time { return testNow }), WithTracer(trace)}, opts...)
	return &fixture{store: s, service: NewService(s, opts...), trace: trace}
}

func (f *fixture) doc(t *testing.T, id, owner string, created time.Time, docType, extracted string) {
	t.Helper()
	d := common.Document{ID: id, OwnerID: owner, Filename: id + ".pdf", CreatedAt: created}
	if docType != "" {
		d.DocType = &docType
	}
	if extracted != "" {
		d.ExtractedJSON = &extracted
	}
	require.NoError(t, f.store.SaveDocument(context.Background(), d))
}

func (f *fixture) rebuild(t *testing.T, owner string) {
	t.Helper()
	client, err := graph.NewGraphClient(graph.NewGraphClientParams{Storage: f.store})
	require.NoError(t, err)
	_, err = client.RebuildGraph(context.Background(), owner)
	require.NoError(t, err)
}

func seedAcme(t *testing.T, f *fixture) {
	t.Helper()
	f.doc(t, "d1", "u1", time.Date(2025, 5, 2, 0, 0, 0, 0, time.UTC), "invoice",
		`{"issuer":"Acme Corp","people":[{"name":"Jane Doe","role":"Manager"}],"tags":["q2"],"amounts":[{"value":120.5,"currency":"EUR"}]}`)
	f.doc(t, "d2", "u1", time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC), "",
		`{"issuer":"ACME CORP.","people":[{"name":"Jane Doe"}],"dates":[{"label":"due","date":"2025-07-01"}]}`)
	f.doc(t, "d3", "u1", time.Date(2025, 6, 3, 0, 0, 0, 0, time.UTC), "contract",
		`{"organizations":[{"name":"Globex"}],"people":[{"name":"John Smith"}]}`)
	f.rebuild(t, "u1")

	_, err := f.store.SaveActionItem(context.Background(), common.ActionItem{DocumentID: "d1", Type: "payment", Description: "Pay Acme"})
	require.NoError(t, err)
	_, err = f.store.SaveActionItem(context.Background(), common.ActionItem{DocumentID: "d3", Type: "review", Description: "Review contract"})
	require.NoError(t, err)
}

func TestGetGraphData(t *testing.T) {
	f := newFixture(t)
	seedAcme(t, f)
	f.doc(t, "x1", "u2", testNow, "", `{"issuer":"Acme Corp"}`)
	f.rebuild(t, "u2")

	data, err := f.service.GetGraphData(context.Background(), "u1")
	require.NoError(t, err)

	ids := map[string]bool{}
	for _, n := range data.Nodes {
		assert.True(t, n.OwnedBy("u1"), "node %s leaked into u1 graph", n.ID)
		ids[n.ID] = true
	}
	for _, e := range data.Links {
		assert.True(t, ids[e.Source] && ids[e.Target], "edge %s->%s leaves the graph", e.Source, e.Target)
	}
	assert.Len(t, data.Nodes, 8)

	empty, err := f.service.GetGraphData(context.Background(), "nobody")
	require.NoError(t, err)
	assert.NotNil(t, empty.Nodes)
	assert.NotNil(t, empty.Links)
	assert.Empty(t, empty.Nodes)
}

func TestGetEntityDossier(t *testing.T) {
	f := newFixture(t)
	seedAcme(t, f)

	d, err := f.service.GetEntityDossier(context.Background(), "u1", "u1:issuer:acme")
	require.NoError(t, err)

	assert.Equal(t, "Acme Corp", d.Label)
	assert.Equal(t, "issuer", d.Type)
	assert.Equal(t, 2, d.Stats.TotalDocuments)
	require.NotNil(t, d.Stats.TotalValue)
	assert.Equal(t, 120.5, *d.Stats.TotalValue)
	assert.Equal(t, "EUR", d.Stats.Currency)
	require.NotNil(t, d.Stats.FirstInteraction)
	assert.True(t, d.Stats.FirstInteraction.Equal(time.Date(2025, 5, 2, 0, 0, 0, 0, time.UTC)))
	assert.True(t, d.Stats.LastInteraction.Equal(time.Date(2025, 7, 1, 0, 0, 0, 0, time.UTC)))

	require.Len(t, d.RelatedDocuments, 2)
	assert.Equal(t, "d1", d.RelatedDocuments[0].ID)
	require.Len(t, d.RelatedActions, 1)
	assert.Equal(t, "Pay Acme", d.RelatedActions[0].Description)

	assert.Equal(t, []common.TypeCount{{Type: "Uncategorized", Count: 1}, {Type: "invoice", Count: 1}}, d.TypeDistribution)

	trend := map[string]int{}
	for _, p := range d.ActivityTrend {
		trend[p.Month] = p.Count
	}
	assert.Equal(t, 1, trend["2025-05"])
	assert.Equal(t, 1, trend["2025-06"])

	require.NotEmpty(t, d.Collaborators)
	top := d.Collaborators[0]
	assert.Equal(t, "u1:person:janedoe", top.ID)
	assert.Equal(t, "Jane Doe", top.Name)
	assert.Equal(t, "Manager", top.Role)
	assert.Equal(t, 2, top.Count)
	for _, c := range d.Collaborators {
		assert.NotEqual(t, "u1:issuer:acme", c.ID)
		assert.NotEqual(t, "u1:person:johnsmith", c.ID, "John Smith shares no document with Acme")
	}

	snap := f.trace.Snapshot()
	assert.Equal(t, []string{"d1", "d2"}, snap.ConnectedDocumentIDs)
}

func TestGetEntityDossierNotFound(t *testing.T) {
	f := newFixture(t)
	seedAcme(t, f)
	ctx := context.Background()

	_, err := f.service.GetEntityDossier(ctx, "u1", "nonexistent-id")
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = f.service.GetEntityDossier(ctx, "u2", "u1:issuer:acme")
	assert.ErrorIs(t, err, ErrNotFound)

	// Legacy nodes without an owner are readable by anyone.
	require.NoError(t, f.store.InsertNodes(ctx, []common.GraphNode{{ID: "legacy", Label: "Old", Type: "organization"}}))
	d, err := f.service.GetEntityDossier(ctx, "u2", "legacy")
	require.NoError(t, err)
	assert.Equal(t, 0, d.Stats.TotalDocuments)
	assert.Nil(t, d.Stats.TotalValue)
	assert.Empty(t, d.Collaborators)
	assert.NotNil(t, d.RelatedActions)
}

func TestDocumentDossierUsesOutgoingEdges(t *testing.T) {
	f := newFixture(t)
	seedAcme(t, f)

	// d1 has only outgoing edges to entities, none of which are documents.
	d, err := f.service.GetEntityDossier(context.Background(), "u1", "d1")
	require.NoError(t, err)
	assert.Equal(t, "document", d.Type)
	assert.Equal(t, 0, d.Stats.TotalDocuments)
}

func TestGetSubgraph(t *testing.T) {
	f := newFixture(t)
	seedAcme(t, f)
	ctx := context.Background()

	all, err := f.service.GetSubgraph(ctx, "u1", nil, 3)
	require.NoError(t, err)
	assert.Len(t, all.Nodes, 3)

	sel, err := f.service.GetSubgraph(ctx, "u1", []string{"u1:organization:globex", "u2:tag:x"}, 100)
	require.NoError(t, err)
	ids := map[string]bool{}
	for _, n := range sel.Nodes {
		ids[n.ID] = true
	}
	assert.Equal(t, map[string]bool{"u1:organization:globex": true, "d3": true}, ids)
	require.Len(t, sel.Edges, 1)
	assert.Equal(t, common.SubgraphEdge{Source: "d3", Target: "u1:organization:globex", Relation: "MENTIONS"}, sel.Edges[0])

	capped, err := f.service.GetSubgraph(ctx, "u1", []string{"u1:person:janedoe"}, 2)
	require.NoError(t, err)
	assert.Len(t, capped.Nodes, 2)
	assert.Equal(t, "u1:person:janedoe", capped.Nodes[0].ID)
	for _, e := range capped.Edges {
		assert.True(t, e.Source == capped.Nodes[0].ID || e.Source == capped.Nodes[1].ID)
		assert.True(t, e.Target == capped.Nodes[0].ID || e.Target == capped.Nodes[1].ID)
	}
}

type memCache struct {
	mu       sync.Mutex
	entries  map[string]any
	versions map[string]int64
	stores   int
}

func newMemCache() *memCache {
	return &memCache{entries: map[string]any{}, versions: map[string]int64{}}
}

func (m *memCache) entryKey(owner, key string) string {
	return fmt.Sprintf("%s/v%d/%s", owner, m.versions[owner], key)
}

func (m *memCache) Load(_ context.Context, owner, key string, dst any) (int64, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	version := m.versions[owner]
	v, ok := m.entries[m.entryKey(owner, key)]
	if !ok {
		return version, false
	}
	switch d := dst.(type) {
	case *common.GraphData:
		*d = v.(common.GraphData)
	case *common.Dossier:
		*d = *v.(*common.Dossier)
	default:
		return version, false
	}
	return version, true
}

func (m *memCache) Store(_ context.Context, owner, key string, version int64, value any) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.versions[owner] != version {
		return
	}
	m.entries[m.entryKey(owner, key)] = value
	m.stores++
}

func (m *memCache) Invalidate(_ context.Context, owner string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.versions[owner]++
	return nil
}

// rebuildingStorage runs a rebuild and invalidates the cache in the middle of
// the first owner-nodes read, after the old rows were fetched.
type rebuildingStorage struct {
	store.GraphStorage
	once    sync.Once
	rebuild func()
}

func (r *rebuildingStorage) GetOwnerNodes(ctx context.Context, owner string) ([]common.GraphNode, error) {
	nodes, err := r.GraphStorage.GetOwnerNodes(ctx, owner)
	r.once.Do(r.rebuild)
	return nodes, err
}

func TestServiceUsesCache(t *testing.T) {
	cache := newMemCache()
	f := newFixture(t, WithCache(cache))
	seedAcme(t, f)
	ctx := context.Background()

	first, err := f.service.GetGraphData(ctx, "u1")
	require.NoError(t, err)
	second, err := f.service.GetGraphData(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, first, second)
	assert.Equal(t, 1, cache.stores)

	_, err = f.service.GetEntityDossier(ctx, "u1", "u1:issuer:acme")
	require.NoError(t, err)
	_, err = f.service.GetEntityDossier(ctx, "u1", "u1:issuer:acme")
	require.NoError(t, err)
	assert.Equal(t, 2, cache.stores)
	assert.Equal(t, 2, f.trace.Snapshot().CacheHits)

	// Ownership is checked before the cache is consulted.
	_, err = f.service.GetEntityDossier(ctx, "u2", "u1:issuer:acme")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestCachedGraphNotStaleAfterConcurrentRebuild(t *testing.T) {
	f := newFixture(t)
	f.doc(t, "d1", "u1", testNow, "", `{"issuer":"Acme Corp"}`)
	f.rebuild(t, "u1")
	ctx := context.Background()

	cache := newMemCache()
	storage := &rebuildingStorage{GraphStorage: f.store}
	storage.rebuild = func() {
		f.doc(t, "d2", "u1", testNow, "", `{"issuer":"Globex"}`)
		f.rebuild(t, "u1")
		require.NoError(t, cache.Invalidate(ctx, "u1"))
	}
	svc := NewService(storage, WithCache(cache), WithClock(func() time.Time { return testNow }))

	stale, err := svc.GetGraphData(ctx, "u1")
	require.NoError(t, err)
	assert.Len(t, stale.Nodes, 2)
	assert.Zero(t, cache.stores)

	fresh, err := svc.GetGraphData(ctx, "u1")
	require.NoError(t, err)
	assert.Len(t, fresh.Nodes, 4)
	assert.Equal(t, 1, cache.stores)

	again, err := svc.GetGraphData(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, fresh, again)
}

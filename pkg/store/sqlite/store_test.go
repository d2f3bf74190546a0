package sqlite

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/papertrail-ai/papertrail/backend/pkg/common"
	"github.com/papertrail-ai/papertrail/backend/pkg/store"
)

func setupTestStore(t *testing.T) *Store {
	t.Helper()

	s, err := NewStore(filepath.Join(t.TempDir(), "graph.db"))
	require.NoError(t, err)
	t.Cleanup(func() {
		assert.NoError(t, s.Close())
	})
	return s
}

func strPtr(s string) *string { return &s }

func TestNewStoreIsReopenable(t *testing.T) {
	path := filepath.Join(t.TempDir(), "graph.db")
	s, err := NewStore(path)
	require.NoError(t, err)
	require.NoError(t, s.Close())

	s, err = NewStore(path)
	require.NoError(t, err)
	assert.Equal(t, path, s.Path())
	require.NoError(t, s.Close())
}

func TestReplaceOwnerGraph(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()

	created := time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)
	require.NoError(t, s.SaveDocument(ctx, common.Document{ID: "d1", OwnerID: "u1", Filename: "a.pdf", CreatedAt: created}))
	require.NoError(t, s.SaveDocument(ctx, common.Document{ID: "d2", OwnerID: "u2", Filename: "b.pdf", CreatedAt: created}))

	// A legacy unscoped node sharing a document id must be torn down.
	require.NoError(t, s.InsertNodes(ctx, []common.GraphNode{
		{ID: "d1", Label: "legacy", Type: "document"},
		{ID: "u2:tag:x", OwnerID: strPtr("u2"), Label: "x", Type: "tag"},
		{ID: "d2", OwnerID: strPtr("u2"), Label: "b.pdf", Type: "document"},
	}))
	require.NoError(t, s.InsertEdges(ctx, []common.GraphEdge{{Source: "d2", Target: "u2:tag:x", Relation: "TAGGED"}}))

	var seen []common.Document
	err := s.ReplaceOwnerGraph(ctx, "u1", func(_ context.Context, docs []common.Document) ([]common.GraphNode, []common.GraphEdge, error) {
		seen = docs
		return []common.GraphNode{
				{ID: "d1", OwnerID: strPtr("u1"), Label: "a.pdf", Type: "document", Properties: map[string]any{"filename": "a.pdf"}},
				{ID: "u1:tag:y", OwnerID: strPtr("u1"), Label: "y", Type: "tag"},
			}, []common.GraphEdge{
				{Source: "d1", Target: "u1:tag:y", Relation: "TAGGED"},
			}, nil
	})
	require.NoError(t, err)
	require.Len(t, seen, 1)
	assert.Equal(t, "d1", seen[0].ID)
	assert.True(t, seen[0].CreatedAt.Equal(created))

	nodes, err := s.GetOwnerNodes(ctx, "u1")
	require.NoError(t, err)
	require.Len(t, nodes, 2)
	assert.Equal(t, "a.pdf", nodes[0].Label)
	assert.Equal(t, "a.pdf", nodes[0].Properties["filename"])

	edges, err := s.GetEdgesAmong(ctx, []string{"d1", "u1:tag:y"})
	require.NoError(t, err)
	require.Len(t, edges, 1)
	assert.Equal(t, "TAGGED", edges[0].Relation)

	// Other owners are untouched.
	other, err := s.GetOwnerNodes(ctx, "u2")
	require.NoError(t, err)
	assert.Len(t, other, 2)
}

func TestReplaceOwnerGraphRollsBack(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.InsertNodes(ctx, []common.GraphNode{{ID: "u1:tag:a", OwnerID: strPtr("u1"), Label: "a", Type: "tag"}}))

	boom := errors.New("boom")
	err := s.ReplaceOwnerGraph(ctx, "u1", func(context.Context, []common.Document) ([]common.GraphNode, []common.GraphEdge, error) {
		return nil, nil, boom
	})
	require.ErrorIs(t, err, boom)

	nodes, err := s.GetOwnerNodes(ctx, "u1")
	require.NoError(t, err)
	assert.Len(t, nodes, 1)

	// An edge to a missing node violates the foreign key and aborts the commit.
	err = s.ReplaceOwnerGraph(ctx, "u1", func(context.Context, []common.Document) ([]common.GraphNode, []common.GraphEdge, error) {
		return nil, []common.GraphEdge{{Source: "nope", Target: "missing", Relation: "X"}}, nil
	})
	require.Error(t, err)
	nodes, err = s.GetOwnerNodes(ctx, "u1")
	require.NoError(t, err)
	assert.Len(t, nodes, 1)
}

func TestNodeQueries(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.InsertNodes(ctx, []common.GraphNode{
		{ID: "a", OwnerID: strPtr("u1"), Label: "A", Type: "person"},
		{ID: "b", OwnerID: strPtr("u1"), Label: "B", Type: "organization"},
		{ID: "c", OwnerID: strPtr("u1"), Label: "C", Type: "person"},
		{ID: "z", Label: "Z", Type: "tag"},
	}))
	require.NoError(t, s.InsertEdges(ctx, []common.GraphEdge{
		{Source: "a", Target: "b", Relation: "WORKS_FOR"},
		{Source: "b", Target: "z", Relation: "TAGGED"},
		{Source: "c", Target: "a", Relation: "KNOWS"},
	}))

	n, err := s.GetNode(ctx, "z")
	require.NoError(t, err)
	assert.Nil(t, n.OwnerID)
	assert.NotNil(t, n.Properties)

	_, err = s.GetNode(ctx, "missing")
	assert.ErrorIs(t, err, store.ErrNotFound)

	limited, err := s.GetOwnerNodesLimit(ctx, "u1", 2)
	require.NoError(t, err)
	require.Len(t, limited, 2)
	assert.Equal(t, "a", limited[0].ID)

	byIDs, err := s.GetNodesByIDs(ctx, []string{"c", "a", "a", "missing"})
	require.NoError(t, err)
	require.Len(t, byIDs, 2)
	assert.Equal(t, "a", byIDs[0].ID)

	types, err := s.DistinctNodeTypes(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, []string{"organization", "person"}, types)

	touching, err := s.GetEdgesTouching(ctx, []string{"a"})
	require.NoError(t, err)
	assert.Len(t, touching, 2)

	among, err := s.GetEdgesAmong(ctx, []string{"a", "b"})
	require.NoError(t, err)
	require.Len(t, among, 1)
	assert.Equal(t, "WORKS_FOR", among[0].Relation)

	require.NoError(t, s.UpdateNodeProperties(ctx, "a", map[string]any{"is_redacted": true}))
	n, err = s.GetNode(ctx, "a")
	require.NoError(t, err)
	assert.True(t, n.IsRedacted())
	assert.ErrorIs(t, s.UpdateNodeProperties(ctx, "missing", nil), store.ErrNotFound)
}

func TestDocumentsAndActions(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()

	raw := `{"issuer":"Acme"}`
	require.NoError(t, s.SaveDocument(ctx, common.Document{
		ID: "d1", OwnerID: "u1", Filename: "a.pdf", DocType: strPtr("invoice"),
		Status: strPtr("processed"), ExtractedJSON: &raw,
		CreatedAt: time.Date(2025, 1, 2, 0, 0, 0, 0, time.UTC),
	}))
	require.NoError(t, s.SaveDocument(ctx, common.Document{
		ID: "d2", OwnerID: "u1", Filename: "b.pdf",
		CreatedAt: time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC),
	}))

	docs, err := s.GetOwnerDocuments(ctx, "u1")
	require.NoError(t, err)
	require.Len(t, docs, 2)
	assert.Equal(t, "d2", docs[0].ID)
	assert.Nil(t, docs[0].ExtractedJSON)
	require.NotNil(t, docs[1].ExtractedJSON)
	assert.Equal(t, raw, *docs[1].ExtractedJSON)

	byIDs, err := s.GetDocumentsByIDs(ctx, []string{"d1", "u1:tag:x"})
	require.NoError(t, err)
	require.Len(t, byIDs, 1)

	docTypes, err := s.DistinctDocTypes(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, []string{"invoice"}, docTypes)

	id, err := s.SaveActionItem(ctx, common.ActionItem{DocumentID: "d1", Type: "payment", Description: "Pay invoice", Payload: []byte(`{"amount":10}`)})
	require.NoError(t, err)
	assert.Positive(t, id)

	items, err := s.GetActionItemsForDocuments(ctx, []string{"d1", "d2"})
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, "pending", items[0].Status)
	assert.JSONEq(t, `{"amount":10}`, string(items[0].Payload))
}

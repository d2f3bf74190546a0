package server

import (
	"archive/zip"
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/rabbitmq/amqp091-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	mid "github.com/papertrail-ai/papertrail/backend/internal/server/middleware"
	"github.com/papertrail-ai/papertrail/backend/pkg/common"
	"github.com/papertrail-ai/papertrail/backend/pkg/export"
	"github.com/papertrail-ai/papertrail/backend/pkg/graph"
	"github.com/papertrail-ai/papertrail/backend/pkg/query"
	"github.com/papertrail-ai/papertrail/backend/pkg/store/sqlite"
)

const masterKey = "test-key"

type recordingPublisher struct {
	published []amqp091.Publishing
	keys      []string
}

func (p *recordingPublisher) PublishWithContext(
	ctx context.Context,
	exchange, key string,
	mandatory, immediate bool,
	msg amqp091.Publishing,
) error {
	p.keys = append(p.keys, key)
	p.published = append(p.published, msg)
	return nil
}

type testServer struct {
	app   *mid.App
	store *sqlite.Store
	http  http.Handler
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	s, err := sqlite.NewStore(filepath.Join(t.TempDir(), "graph.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })

	g, err := graph.NewGraphClient(graph.NewGraphClientParams{Storage: s})
	require.NoError(t, err)

	app := &mid.App{
		Graph:          g,
		Query:          query.NewService(s),
		Export:         export.NewService(s),
		MasterAPIKey:   masterKey,
		MasterUserID:   "u1",
		MasterUserRole: "admin",
	}
	return &testServer{app: app, store: s, http: New(app)}
}

func (ts *testServer) doc(t *testing.T, id, owner, docType, extracted string) {
	t.Helper()
	d := common.Document{
		ID:            id,
		OwnerID:       owner,
		Filename:      id + ".pdf",
		CreatedAt:     time.Date(2025, 5, 1, 0, 0, 0, 0, time.UTC),
		DocType:       &docType,
		ExtractedJSON: &extracted,
	}
	require.NoError(t, ts.store.SaveDocument(context.Background(), d))
}

func (ts *testServer) seed(t *testing.T) {
	t.Helper()
	ts.doc(t, "d1", "u1", "invoice", `{"issuer":"Acme Corp","date":"2025-05-01","total_amount":120}`)
	ts.doc(t, "d2", "u1", "contract", `{"issuer":"Acme Corp","people":[{"name":"Jane Doe"}]}`)
	ts.doc(t, "d3", "u2", "invoice", `{"issuer":"Other Ltd"}`)
	_, err := ts.app.Graph.RebuildGraph(context.Background(), "u2")
	require.NoError(t, err)
}

func (ts *testServer) do(t *testing.T, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Authorization", "Bearer "+masterKey)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	ts.http.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v), rec.Body.String())
	return v
}

func TestHealth(t *testing.T) {
	ts := newTestServer(t)
	rec := httptest.NewRecorder()
	ts.http.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "OK", rec.Body.String())
}

func TestUnauthorized(t *testing.T) {
	ts := newTestServer(t)
	rec := httptest.NewRecorder()
	ts.http.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/graph/data", nil))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestRebuildAndGraphData(t *testing.T) {
	ts := newTestServer(t)
	ts.seed(t)

	rec := ts.do(t, http.MethodGet, "/api/graph/data", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"nodes":[],"links":[]}`, rec.Body.String())

	rec = ts.do(t, http.MethodPost, "/api/graph/rebuild", "")
	require.Equal(t, http.StatusOK, rec.Code)
	resp := decode[struct {
		Status  string             `json:"status"`
		Message string             `json:"message"`
		Stats   graph.RebuildStats `json:"stats"`
	}](t, rec)
	assert.Equal(t, "success", resp.Status)
	assert.Equal(t, "Graph rebuilt successfully", resp.Message)
	assert.Equal(t, 2, resp.Stats.Documents)
	assert.Equal(t, 4, resp.Stats.Nodes)

	rec = ts.do(t, http.MethodGet, "/api/graph/data", "")
	require.Equal(t, http.StatusOK, rec.Code)
	data := decode[common.GraphData](t, rec)
	ids := make([]string, 0, len(data.Nodes))
	for _, n := range data.Nodes {
		ids = append(ids, n.ID)
	}
	assert.ElementsMatch(t, []string{"d1", "d2", "u1:issuer:acme", "u1:person:janedoe"}, ids)
	assert.NotEmpty(t, data.Links)
}

func TestDossier(t *testing.T) {
	ts := newTestServer(t)
	ts.seed(t)
	require.Equal(t, http.StatusOK, ts.do(t, http.MethodPost, "/api/graph/rebuild", "").Code)

	rec := ts.do(t, http.MethodGet, "/api/graph/entities/u1:issuer:acme/dossier", "")
	require.Equal(t, http.StatusOK, rec.Code)
	dossier := decode[common.Dossier](t, rec)
	assert.Equal(t, "u1:issuer:acme", dossier.NodeID)
	assert.Equal(t, 2, dossier.Stats.TotalDocuments)

	rec = ts.do(t, http.MethodGet, "/api/graph/entities/ghost/dossier", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.JSONEq(t, `{"error":"Entity not found"}`, rec.Body.String())

	rec = ts.do(t, http.MethodGet, "/api/graph/entities/d3/dossier", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestSubgraph(t *testing.T) {
	ts := newTestServer(t)
	ts.seed(t)
	require.Equal(t, http.StatusOK, ts.do(t, http.MethodPost, "/api/graph/rebuild", "").Code)

	rec := ts.do(t, http.MethodPost, "/api/graph/subgraph", `{"node_ids":["d1"],"limit":1}`)
	require.Equal(t, http.StatusOK, rec.Code)
	sub := decode[common.Subgraph](t, rec)
	require.Len(t, sub.Nodes, 2)
	assert.Equal(t, "d1", sub.Nodes[0].ID)

	rec = ts.do(t, http.MethodPost, "/api/graph/subgraph", `{"node_ids":[""]}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = ts.do(t, http.MethodPost, "/api/graph/subgraph", `{"node_ids":`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestRebuildAsync(t *testing.T) {
	ts := newTestServer(t)

	rec := ts.do(t, http.MethodPost, "/api/graph/rebuild/async", "")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)

	pub := &recordingPublisher{}
	ts.app.Queue = pub
	rec = ts.do(t, http.MethodPost, "/api/graph/rebuild/async", "")
	require.Equal(t, http.StatusAccepted, rec.Code)
	resp := decode[map[string]string](t, rec)
	assert.Equal(t, "queued", resp["status"])
	assert.NotEmpty(t, resp["request_id"])

	require.Len(t, pub.published, 1)
	assert.Equal(t, "graph_rebuild_queue", pub.keys[0])
	assert.Contains(t, string(pub.published[0].Body), `"owner_id":"u1"`)
}

func TestAnalysisDisabled(t *testing.T) {
	ts := newTestServer(t)
	assert.Equal(t, http.StatusServiceUnavailable, ts.do(t, http.MethodPost, "/api/graph/analyze", `{}`).Code)
	assert.Equal(t, http.StatusServiceUnavailable, ts.do(t, http.MethodPost, "/api/graph/patterns", `{}`).Code)
}

func TestRedactAndCleanRoom(t *testing.T) {
	ts := newTestServer(t)
	ts.seed(t)
	require.Equal(t, http.StatusOK, ts.do(t, http.MethodPost, "/api/graph/rebuild", "").Code)

	rec := ts.do(t, http.MethodPost, "/api/export/redact/u1:person:janedoe", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"success","message":"Entity redacted"}`, rec.Body.String())

	assert.Equal(t, http.StatusNotFound, ts.do(t, http.MethodPost, "/api/export/redact/ghost", "").Code)
	assert.Equal(t, http.StatusNotFound, ts.do(t, http.MethodPost, "/api/export/redact/d3", "").Code)

	rec = ts.do(t, http.MethodGet, "/api/export/clean-room", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/zip", rec.Header().Get("Content-Type"))
	assert.Equal(t, "attachment; filename=clean_room_export.zip", rec.Header().Get("Content-Disposition"))

	zr, err := zip.NewReader(bytes.NewReader(rec.Body.Bytes()), int64(rec.Body.Len()))
	require.NoError(t, err)
	var names []string
	for _, f := range zr.File {
		names = append(names, f.Name)
	}
	assert.ElementsMatch(t, []string{export.GraphFile, export.ReadmeFile}, names)
}

package mirror

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"

	"github.com/papertrail-ai/papertrail/backend/pkg/common"
	"github.com/papertrail-ai/papertrail/backend/pkg/graph"
	"github.com/papertrail-ai/papertrail/backend/pkg/logger"
	"github.com/papertrail-ai/papertrail/backend/pkg/store"
)

const batchSize = 500

var schemaStatements = []string{
	`CREATE CONSTRAINT graph_node_id_unique IF NOT EXISTS FOR (n:GraphNode) REQUIRE n.id IS UNIQUE`,
	`CREATE INDEX graph_node_owner IF NOT EXISTS FOR (n:GraphNode) ON (n.owner_id)`,
}

const deleteOwnerCypher = `
MATCH (n:GraphNode {owner_id: $owner})
DETACH DELETE n
`

const upsertNodesCypher = `
UNWIND $nodes AS x
MERGE (n:GraphNode {id: x.id})
SET n += x
`

const upsertEdgesCypher = `
UNWIND $edges AS x
MATCH (a:GraphNode {id: x.source})
MATCH (b:GraphNode {id: x.target})
MERGE (a)-[r:RELATES {relation: x.relation}]->(b)
`

// Mirror projects an owner's graph into Neo4j after every rebuild. The
// relational store stays the source of truth.
type Mirror struct {
	driver   neo4j.DriverWithContext
	database string
	storage  store.GraphStorage
}

// NewFromEnv connects using NEO4J_URI, NEO4J_USER, NEO4J_PASSWORD and
// NEO4J_DATABASE. It returns nil, nil when NEO4J_URI is unset.
func NewFromEnv(ctx context.Context, storage store.GraphStorage) (*Mirror, error) {
	uri := strings.TrimSpace(os.Getenv("NEO4J_URI"))
	if uri == "" {
		return nil, nil
	}
	if storage == nil {
		return nil, errors.New("mirror: storage is required")
	}

	user := strings.TrimSpace(os.Getenv("NEO4J_USER"))
	if user == "" {
		user = "neo4j"
	}
	password := strings.TrimSpace(os.Getenv("NEO4J_PASSWORD"))
	database := strings.TrimSpace(os.Getenv("NEO4J_DATABASE"))

	timeoutSec := 10
	if v := strings.TrimSpace(os.Getenv("NEO4J_TIMEOUT_SECONDS")); v != "" {
		if parsed, err := strconv.Atoi(v); err == nil && parsed > 0 {
			timeoutSec = parsed
		}
	}
	timeout := time.Duration(timeoutSec) * time.Second

	driver, err := neo4j.NewDriverWithContext(uri, neo4j.BasicAuth(user, password, ""), func(cfg *neo4j.Config) {
		cfg.SocketConnectTimeout = timeout
	})
	if err != nil {
		return nil, fmt.Errorf("mirror: init driver: %w", err)
	}

	vctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	if err := driver.VerifyConnectivity(vctx); err != nil {
		_ = driver.Close(ctx)
		return nil, fmt.Errorf("mirror: verify connectivity: %w", err)
	}

	m := &Mirror{driver: driver, database: database, storage: storage}
	m.ensureSchema(vctx)
	return m, nil
}

func (m *Mirror) ensureSchema(ctx context.Context) {
	session := m.driver.NewSession(ctx, neo4j.SessionConfig{
		AccessMode:   neo4j.AccessModeWrite,
		DatabaseName: m.database,
	})
	defer session.Close(ctx)

	for _, q := range schemaStatements {
		res, err := session.Run(ctx, q, nil)
		if err != nil {
			logger.Warn("[Mirror] Schema init failed", "err", err)
			continue
		}
		_, _ = res.Consume(ctx)
	}
}

// OnRebuild replaces the owner's projection with the freshly rebuilt graph.
func (m *Mirror) OnRebuild(ctx context.Context, owner string, _ graph.RebuildStats) error {
	nodes, err := m.storage.GetOwnerNodes(ctx, owner)
	if err != nil {
		return fmt.Errorf("mirror: load nodes: %w", err)
	}
	ids := make([]string, len(nodes))
	for i, n := range nodes {
		ids[i] = n.ID
	}
	edges, err := m.storage.GetEdgesAmong(ctx, ids)
	if err != nil {
		return fmt.Errorf("mirror: load edges: %w", err)
	}

	nodeRows, err := NodeRows(nodes)
	if err != nil {
		return err
	}
	edgeRows := EdgeRows(edges)

	session := m.driver.NewSession(ctx, neo4j.SessionConfig{
		AccessMode:   neo4j.AccessModeWrite,
		DatabaseName: m.database,
	})
	defer session.Close(ctx)

	_, err = session.ExecuteWrite(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		if err := run(ctx, tx, deleteOwnerCypher, map[string]any{"owner": owner}); err != nil {
			return nil, err
		}
		if err := store.ChunkRange(len(nodeRows), batchSize, func(start, end int) error {
			return run(ctx, tx, upsertNodesCypher, map[string]any{"nodes": nodeRows[start:end]})
		}); err != nil {
			return nil, err
		}
		return nil, store.ChunkRange(len(edgeRows), batchSize, func(start, end int) error {
			return run(ctx, tx, upsertEdgesCypher, map[string]any{"edges": edgeRows[start:end]})
		})
	})
	if err != nil {
		return fmt.Errorf("mirror: write graph: %w", err)
	}

	logger.Debug("[Mirror] Projected graph", "owner", owner, "nodes", len(nodeRows), "edges", len(edgeRows))
	return nil
}

func run(ctx context.Context, tx neo4j.ManagedTransaction, cypher string, params map[string]any) error {
	res, err := tx.Run(ctx, cypher, params)
	if err != nil {
		return err
	}
	_, err = res.Consume(ctx)
	return err
}

// NodeRows flattens nodes into Neo4j parameter maps. Properties are stored
// as a JSON string since Neo4j properties cannot hold nested maps.
func NodeRows(nodes []common.GraphNode) ([]map[string]any, error) {
	rows := make([]map[string]any, 0, len(nodes))
	for _, n := range nodes {
		props, err := store.MarshalProperties(n.Properties)
		if err != nil {
			return nil, fmt.Errorf("mirror: marshal properties of %s: %w", n.ID, err)
		}
		row := map[string]any{
			"id":         n.ID,
			"label":      n.Label,
			"type":       n.Type,
			"properties": string(props),
		}
		if n.OwnerID != nil {
			row["owner_id"] = *n.OwnerID
		}
		rows = append(rows, row)
	}
	return rows, nil
}

// EdgeRows flattens edges into Neo4j parameter maps.
func EdgeRows(edges []common.GraphEdge) []map[string]any {
	rows := make([]map[string]any, 0, len(edges))
	for _, e := range edges {
		rows = append(rows, map[string]any{
			"source":   e.Source,
			"target":   e.Target,
			"relation": e.Relation,
		})
	}
	return rows
}

func (m *Mirror) Close(ctx context.Context) error {
	if m == nil || m.driver == nil {
		return nil
	}
	return m.driver.Close(ctx)
}

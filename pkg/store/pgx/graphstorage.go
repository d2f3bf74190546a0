package pgx

import (
	"context"
	"fmt"

	"github.com/papertrail-ai/papertrail/backend/internal/util"
	"github.com/papertrail-ai/papertrail/backend/pkg/common"
	"github.com/papertrail-ai/papertrail/backend/pkg/store"

	pgxv5 "github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

type pgxIConn interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, optionsAndArgs ...any) (pgxv5.Rows, error)
	QueryRow(ctx context.Context, sql string, optionsAndArgs ...any) pgxv5.Row
	Begin(ctx context.Context) (pgxv5.Tx, error)
}

// queryer is satisfied by both the connection and a transaction.
type queryer interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, optionsAndArgs ...any) (pgxv5.Rows, error)
}

// GraphDBStorage implements store.GraphStorage on PostgreSQL. Node
// properties are stored as JSONB and bulk writes use unnest over arrays.
type GraphDBStorage struct {
	conn      pgxIConn
	batchSize int
}

type GraphDBStorageOption func(*GraphDBStorage)

// WithBatchSize sets how many rows are written per insert statement.
func WithBatchSize(n int) GraphDBStorageOption {
	return func(s *GraphDBStorage) {
		if n > 0 {
			s.batchSize = n
		}
	}
}

// NewGraphDBStorageWithConnection creates a new GraphDBStorage using an
// existing connection or pool. The caller owns the connection.
func NewGraphDBStorageWithConnection(conn pgxIConn, opts ...GraphDBStorageOption) *GraphDBStorage {
	s := &GraphDBStorage{
		conn:      conn,
		batchSize: 1000,
	}
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		opt(s)
	}
	return s
}

var _ store.GraphStorage = (*GraphDBStorage)(nil)

// Close is a no-op, the caller owns the connection.
func (s *GraphDBStorage) Close() error { return nil }

func (s *GraphDBStorage) ReplaceOwnerGraph(ctx context.Context, owner string, build store.BuildFunc) error {
	tx, err := s.conn.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin rebuild: %w", err)
	}
	defer func() {
		_ = tx.Rollback(context.Background())
	}()

	nodeIDs, err := queryStrings(ctx, tx, `SELECT id FROM graph_nodes WHERE owner_id = $1`, owner)
	if err != nil {
		return fmt.Errorf("scope nodes: %w", err)
	}
	docIDs, err := queryStrings(ctx, tx, `SELECT id FROM documents WHERE owner_id = $1`, owner)
	if err != nil {
		return fmt.Errorf("scope documents: %w", err)
	}
	scope := store.ScopeIDs(nodeIDs, docIDs)

	if len(scope) > 0 {
		if _, err := tx.Exec(ctx, `DELETE FROM graph_edges WHERE source = ANY($1) OR target = ANY($1)`, scope); err != nil {
			return fmt.Errorf("delete edges: %w", err)
		}
		if _, err := tx.Exec(ctx, `DELETE FROM graph_nodes WHERE id = ANY($1)`, scope); err != nil {
			return fmt.Errorf("delete nodes: %w", err)
		}
	}

	docs, err := getDocuments(ctx, tx, selectDocumentsSQL+` WHERE owner_id = $1 ORDER BY created_at, id`, owner)
	if err != nil {
		return fmt.Errorf("fetch documents: %w", err)
	}

	nodes, edges, err := build(ctx, docs)
	if err != nil {
		return err
	}

	if err := s.insertNodes(ctx, tx, nodes); err != nil {
		return err
	}
	if err := s.insertEdges(ctx, tx, edges); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit rebuild: %w", err)
	}
	return nil
}

func (s *GraphDBStorage) insertNodes(ctx context.Context, tx pgxv5.Tx, nodes []common.GraphNode) error {
	return store.ChunkRange(len(nodes), s.batchSize, func(start, end int) error {
		batch := nodes[start:end]
		ids := make([]string, len(batch))
		owners := make([]*string, len(batch))
		labels := make([]string, len(batch))
		types := make([]string, len(batch))
		props := make([]string, len(batch))
		for i, n := range batch {
			b, err := store.MarshalProperties(n.Properties)
			if err != nil {
				return err
			}
			ids[i] = n.ID
			owners[i] = n.OwnerID
			labels[i] = util.SanitizePostgresText(n.Label)
			types[i] = n.Type
			props[i] = util.SanitizePostgresJSON(string(b))
		}
		_, err := tx.Exec(ctx, insertNodesSQL, ids, owners, labels, types, props)
		if err != nil {
			return fmt.Errorf("insert nodes: %w", err)
		}
		return nil
	})
}

func (s *GraphDBStorage) insertEdges(ctx context.Context, tx pgxv5.Tx, edges []common.GraphEdge) error {
	return store.ChunkRange(len(edges), s.batchSize, func(start, end int) error {
		batch := edges[start:end]
		sources := make([]string, len(batch))
		targets := make([]string, len(batch))
		relations := make([]string, len(batch))
		for i, e := range batch {
			sources[i] = e.Source
			targets[i] = e.Target
			relations[i] = e.Relation
		}
		_, err := tx.Exec(ctx, insertEdgesSQL, sources, targets, relations)
		if err != nil {
			return fmt.Errorf("insert edges: %w", err)
		}
		return nil
	})
}

func (s *GraphDBStorage) GetOwnerDocuments(ctx context.Context, owner string) ([]common.Document, error) {
	return getDocuments(ctx, s.conn, selectDocumentsSQL+` WHERE owner_id = $1 ORDER BY created_at, id`, owner)
}

func (s *GraphDBStorage) GetDocumentsByIDs(ctx context.Context, ids []string) ([]common.Document, error) {
	ids = store.DedupeStrings(ids)
	if len(ids) == 0 {
		return nil, nil
	}
	return getDocuments(ctx, s.conn, selectDocumentsSQL+` WHERE id = ANY($1) ORDER BY created_at, id`, ids)
}

func (s *GraphDBStorage) GetActionItemsForDocuments(ctx context.Context, documentIDs []string) ([]common.ActionItem, error) {
	documentIDs = store.DedupeStrings(documentIDs)
	if len(documentIDs) == 0 {
		return nil, nil
	}
	rows, err := s.conn.Query(ctx, `
		SELECT id, document_id, type, description, status, payload, created_at
		FROM action_items
		WHERE document_id = ANY($1)
		ORDER BY created_at, id`, documentIDs)
	if err != nil {
		return nil, fmt.Errorf("query action items: %w", err)
	}
	defer rows.Close()

	var out []common.ActionItem
	for rows.Next() {
		var a common.ActionItem
		var payload []byte
		if err := rows.Scan(&a.ID, &a.DocumentID, &a.Type, &a.Description, &a.Status, &payload, &a.CreatedAt); err != nil {
			return nil, err
		}
		if len(payload) > 0 {
			a.Payload = payload
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

func (s *GraphDBStorage) DistinctDocTypes(ctx context.Context, owner string) ([]string, error) {
	return queryStrings(ctx, s.conn, `
		SELECT DISTINCT doc_type FROM documents
		WHERE owner_id = $1 AND doc_type IS NOT NULL AND doc_type <> ''
		ORDER BY doc_type`, owner)
}

func (s *GraphDBStorage) GetNode(ctx context.Context, id string) (common.GraphNode, error) {
	nodes, err := getNodes(ctx, s.conn, selectNodesSQL+` WHERE id = $1`, id)
	if err != nil {
		return common.GraphNode{}, err
	}
	if len(nodes) == 0 {
		return common.GraphNode{}, store.ErrNotFound
	}
	return nodes[0], nil
}

func (s *GraphDBStorage) GetNodesByIDs(ctx context.Context, ids []string) ([]common.GraphNode, error) {
	ids = store.DedupeStrings(ids)
	if len(ids) == 0 {
		return nil, nil
	}
	return getNodes(ctx, s.conn, selectNodesSQL+` WHERE id = ANY($1) ORDER BY id`, ids)
}

func (s *GraphDBStorage) GetOwnerNodes(ctx context.Context, owner string) ([]common.GraphNode, error) {
	return getNodes(ctx, s.conn, selectNodesSQL+` WHERE owner_id = $1 ORDER BY id`, owner)
}

func (s *GraphDBStorage) GetOwnerNodesLimit(ctx context.Context, owner string, limit int) ([]common.GraphNode, error) {
	if limit <= 0 {
		return nil, nil
	}
	return getNodes(ctx, s.conn, selectNodesSQL+` WHERE owner_id = $1 ORDER BY id LIMIT $2`, owner, limit)
}

func (s *GraphDBStorage) DistinctNodeTypes(ctx context.Context, owner string) ([]string, error) {
	return queryStrings(ctx, s.conn, `
		SELECT DISTINCT type FROM graph_nodes
		WHERE owner_id = $1 AND type <> ''
		ORDER BY type`, owner)
}

func (s *GraphDBStorage) UpdateNodeProperties(ctx context.Context, id string, props map[string]any) error {
	b, err := store.MarshalProperties(props)
	if err != nil {
		return err
	}
	tag, err := s.conn.Exec(ctx, `UPDATE graph_nodes SET properties = $2::jsonb WHERE id = $1`, id, util.SanitizePostgresJSON(string(b)))
	if err != nil {
		return fmt.Errorf("update node properties: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return store.ErrNotFound
	}
	return nil
}

func (s *GraphDBStorage) GetEdgesAmong(ctx context.Context, ids []string) ([]common.GraphEdge, error) {
	ids = store.DedupeStrings(ids)
	if len(ids) == 0 {
		return nil, nil
	}
	return getEdges(ctx, s.conn, selectEdgesSQL+` WHERE source = ANY($1) AND target = ANY($1) ORDER BY id`, ids)
}

func (s *GraphDBStorage) GetEdgesTouching(ctx context.Context, ids []string) ([]common.GraphEdge, error) {
	ids = store.DedupeStrings(ids)
	if len(ids) == 0 {
		return nil, nil
	}
	return getEdges(ctx, s.conn, selectEdgesSQL+` WHERE source = ANY($1) OR target = ANY($1) ORDER BY id`, ids)
}

func queryStrings(ctx context.Context, q queryer, sql string, args ...any) ([]string, error) {
	rows, err := q.Query(ctx, sql, args...)
	if err != nil {
		return nil, err
	}
	return pgxv5.CollectRows(rows, pgxv5.RowTo[string])
}

func getDocuments(ctx context.Context, q queryer, sql string, args ...any) ([]common.Document, error) {
	rows, err := q.Query(ctx, sql, args...)
	if err != nil {
		return nil, fmt.Errorf("query documents: %w", err)
	}
	defer rows.Close()

	var out []common.Document
	for rows.Next() {
		var d common.Document
		if err := rows.Scan(
			&d.ID, &d.OwnerID, &d.Filename, &d.Path, &d.CreatedAt,
			&d.DocType, &d.Issuer, &d.Status, &d.ExtractedJSON,
		); err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

func getNodes(ctx context.Context, q queryer, sql string, args ...any) ([]common.GraphNode, error) {
	rows, err := q.Query(ctx, sql, args...)
	if err != nil {
		return nil, fmt.Errorf("query nodes: %w", err)
	}
	defer rows.Close()

	var out []common.GraphNode
	for rows.Next() {
		var n common.GraphNode
		var raw []byte
		if err := rows.Scan(&n.ID, &n.OwnerID, &n.Label, &n.Type, &raw); err != nil {
			return nil, err
		}
		props, err := store.UnmarshalProperties(raw)
		if err != nil {
			return nil, err
		}
		n.Properties = props
		out = append(out, n)
	}
	return out, rows.Err()
}

func getEdges(ctx context.Context, q queryer, sql string, args ...any) ([]common.GraphEdge, error) {
	rows, err := q.Query(ctx, sql, args...)
	if err != nil {
		return nil, fmt.Errorf("query edges: %w", err)
	}
	defer rows.Close()

	var out []common.GraphEdge
	for rows.Next() {
		var e common.GraphEdge
		if err := rows.Scan(&e.ID, &e.Source, &e.Target, &e.Relation); err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

const selectDocumentsSQL = `
SELECT id, owner_id, filename, path, created_at, doc_type, issuer, status, extracted_json
FROM documents`

const selectNodesSQL = `
SELECT id, owner_id, label, type, properties::text
FROM graph_nodes`

const selectEdgesSQL = `
SELECT id, source, target, relation
FROM graph_edges`

const insertNodesSQL = `
INSERT INTO graph_nodes (id, owner_id, label, type, properties)
SELECT id, owner_id, label, type, props::jsonb
FROM unnest($1::text[], $2::text[], $3::text[], $4::text[], $5::text[])
    AS t(id, owner_id, label, type, props)`

const insertEdgesSQL = `
INSERT INTO graph_edges (source, target, relation)
SELECT source, target, relation
FROM unnest($1::text[], $2::text[], $3::text[])
    AS t(source, target, relation)`

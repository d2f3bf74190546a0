// Package sqlite implements store.GraphStorage on an embedded SQLite
// database. It backs local single-process mode and the test suites.
package sqlite

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"github.com/papertrail-ai/papertrail/backend/pkg/common"
	"github.com/papertrail-ai/papertrail/backend/pkg/store"
	"github.com/papertrail-ai/papertrail/backend/pkg/store/sqlite/migrations"
)

// timeLayout is fixed width so stored timestamps sort lexically.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

// Store is a SQLite-backed graph store.
type Store struct {
	db   *sql.DB
	path string
}

var _ store.GraphStorage = (*Store)(nil)

// NewStore opens (or creates) the database file at path and runs pending
// migrations.
func NewStore(path string) (*Store, error) {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o700); err != nil {
			return nil, fmt.Errorf("creating data directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_pragma=foreign_keys(1)")
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	// One connection serializes writers and keeps the foreign_keys pragma
	// applied to every statement.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enabling foreign keys: %w", err)
	}

	s := &Store{db: db, path: path}
	if err := s.migrate(migrations.FS); err != nil {
		db.Close()
		return nil, fmt.Errorf("running migrations: %w", err)
	}
	return s, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// Path returns the database file path.
func (s *Store) Path() string {
	return s.path
}

func (s *Store) migrate(fsys embed.FS) error {
	_, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version INTEGER PRIMARY KEY,
			applied_at TEXT NOT NULL
		)
	`)
	if err != nil {
		return fmt.Errorf("creating schema_migrations table: %w", err)
	}

	var currentVersion int
	row := s.db.QueryRow("SELECT COALESCE(MAX(version), 0) FROM schema_migrations")
	if err := row.Scan(&currentVersion); err != nil {
		return fmt.Errorf("getting current version: %w", err)
	}

	entries, err := fs.ReadDir(fsys, ".")
	if err != nil {
		return fmt.Errorf("reading migrations directory: %w", err)
	}

	var upFiles []string
	for _, entry := range entries {
		if strings.HasSuffix(entry.Name(), ".up.sql") {
			upFiles = append(upFiles, entry.Name())
		}
	}
	sort.Strings(upFiles)

	for _, name := range upFiles {
		var version int
		if _, err := fmt.Sscanf(name, "%d_", &version); err != nil {
			continue
		}
		if version <= currentVersion {
			continue
		}
		content, err := fs.ReadFile(fsys, name)
		if err != nil {
			return fmt.Errorf("reading migration %s: %w", name, err)
		}
		if _, err := s.db.Exec(string(content)); err != nil {
			return fmt.Errorf("executing migration %s: %w", name, err)
		}
		if _, err := s.db.Exec(
			"INSERT INTO schema_migrations (version, applied_at) VALUES (?, ?)",
			version, time.Now().UTC().Format(timeLayout),
		); err != nil {
			return fmt.Errorf("recording migration %s: %w", name, err)
		}
	}
	return nil
}

// SaveDocument inserts or replaces a document. The import command loads
// local fixtures through it.
func (s *Store) SaveDocument(ctx context.Context, doc common.Document) error {
	if doc.CreatedAt.IsZero() {
		doc.CreatedAt = time.Now().UTC()
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO documents (id, owner_id, filename, path, created_at, doc_type, issuer, status, extracted_json)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			owner_id = excluded.owner_id,
			filename = excluded.filename,
			path = excluded.path,
			created_at = excluded.created_at,
			doc_type = excluded.doc_type,
			issuer = excluded.issuer,
			status = excluded.status,
			extracted_json = excluded.extracted_json
	`, doc.ID, doc.OwnerID, doc.Filename, doc.Path, doc.CreatedAt.UTC().Format(timeLayout),
		nullString(doc.DocType), nullString(doc.Issuer), nullString(doc.Status), nullString(doc.ExtractedJSON))
	if err != nil {
		return fmt.Errorf("saving document: %w", err)
	}
	return nil
}

// SaveActionItem inserts an action item and returns its id.
func (s *Store) SaveActionItem(ctx context.Context, item common.ActionItem) (int64, error) {
	if item.CreatedAt.IsZero() {
		item.CreatedAt = time.Now().UTC()
	}
	if item.Status == "" {
		item.Status = "pending"
	}
	var payload any
	if len(item.Payload) > 0 {
		payload = string(item.Payload)
	}
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO action_items (document_id, type, description, status, payload, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`, item.DocumentID, item.Type, item.Description, item.Status, payload, item.CreatedAt.UTC().Format(timeLayout))
	if err != nil {
		return 0, fmt.Errorf("saving action item: %w", err)
	}
	return res.LastInsertId()
}

// InsertNodes writes nodes outside of a rebuild. Used to seed legacy data.
func (s *Store) InsertNodes(ctx context.Context, nodes []common.GraphNode) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()
	if err := insertNodes(ctx, tx, nodes); err != nil {
		return err
	}
	return tx.Commit()
}

// InsertEdges writes edges outside of a rebuild. Used to seed legacy data.
func (s *Store) InsertEdges(ctx context.Context, edges []common.GraphEdge) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()
	if err := insertEdges(ctx, tx, edges); err != nil {
		return err
	}
	return tx.Commit()
}

func (s *Store) ReplaceOwnerGraph(ctx context.Context, owner string, build store.BuildFunc) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin rebuild: %w", err)
	}
	defer tx.Rollback()

	nodeIDs, err := queryStrings(ctx, tx, `SELECT id FROM graph_nodes WHERE owner_id = ?`, owner)
	if err != nil {
		return fmt.Errorf("scope nodes: %w", err)
	}
	docIDs, err := queryStrings(ctx, tx, `SELECT id FROM documents WHERE owner_id = ?`, owner)
	if err != nil {
		return fmt.Errorf("scope documents: %w", err)
	}
	scope := store.ScopeIDs(nodeIDs, docIDs)

	err = store.ChunkRange(len(scope), store.MaxQueryParams/2, func(start, end int) error {
		chunk := scope[start:end]
		ph, args := inList(chunk)
		args = append(args, args...)
		_, err := tx.ExecContext(ctx, `DELETE FROM graph_edges WHERE source IN (`+ph+`) OR target IN (`+ph+`)`, args...)
		return err
	})
	if err != nil {
		return fmt.Errorf("delete edges: %w", err)
	}
	err = store.ChunkRange(len(scope), store.MaxQueryParams, func(start, end int) error {
		ph, args := inList(scope[start:end])
		_, err := tx.ExecContext(ctx, `DELETE FROM graph_nodes WHERE id IN (`+ph+`)`, args...)
		return err
	})
	if err != nil {
		return fmt.Errorf("delete nodes: %w", err)
	}

	docs, err := getDocuments(ctx, tx, selectDocumentsSQL+` WHERE owner_id = ? ORDER BY created_at, id`, owner)
	if err != nil {
		return fmt.Errorf("fetch documents: %w", err)
	}

	nodes, edges, err := build(ctx, docs)
	if err != nil {
		return err
	}
	if err := insertNodes(ctx, tx, nodes); err != nil {
		return err
	}
	if err := insertEdges(ctx, tx, edges); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit rebuild: %w", err)
	}
	return nil
}

func (s *Store) GetOwnerDocuments(ctx context.Context, owner string) ([]common.Document, error) {
	return getDocuments(ctx, s.db, selectDocumentsSQL+` WHERE owner_id = ? ORDER BY created_at, id`, owner)
}

func (s *Store) GetDocumentsByIDs(ctx context.Context, ids []string) ([]common.Document, error) {
	ids = store.DedupeStrings(ids)
	var out []common.Document
	err := store.ChunkRange(len(ids), store.MaxQueryParams, func(start, end int) error {
		ph, args := inList(ids[start:end])
		docs, err := getDocuments(ctx, s.db, selectDocumentsSQL+` WHERE id IN (`+ph+`)`, args...)
		if err != nil {
			return err
		}
		out = append(out, docs...)
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out, nil
}

func (s *Store) GetActionItemsForDocuments(ctx context.Context, documentIDs []string) ([]common.ActionItem, error) {
	documentIDs = store.DedupeStrings(documentIDs)
	var out []common.ActionItem
	err := store.ChunkRange(len(documentIDs), store.MaxQueryParams, func(start, end int) error {
		ph, args := inList(documentIDs[start:end])
		rows, err := s.db.QueryContext(ctx, `
			SELECT id, document_id, type, description, status, payload, created_at
			FROM action_items WHERE document_id IN (`+ph+`)`, args...)
		if err != nil {
			return fmt.Errorf("query action items: %w", err)
		}
		defer rows.Close()
		for rows.Next() {
			var a common.ActionItem
			var payload sql.NullString
			var createdAt string
			if err := rows.Scan(&a.ID, &a.DocumentID, &a.Type, &a.Description, &a.Status, &payload, &createdAt); err != nil {
				return err
			}
			if payload.Valid && payload.String != "" {
				a.Payload = []byte(payload.String)
			}
			if a.CreatedAt, err = parseTime(createdAt); err != nil {
				return err
			}
			out = append(out, a)
		}
		return rows.Err()
	})
	if err != nil {
		return nil, err
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out, nil
}

func (s *Store) DistinctDocTypes(ctx context.Context, owner string) ([]string, error) {
	return queryStrings(ctx, s.db, `
		SELECT DISTINCT doc_type FROM documents
		WHERE owner_id = ? AND doc_type IS NOT NULL AND doc_type <> ''
		ORDER BY doc_type`, owner)
}

func (s *Store) GetNode(ctx context.Context, id string) (common.GraphNode, error) {
	nodes, err := getNodes(ctx, s.db, selectNodesSQL+` WHERE id = ?`, id)
	if err != nil {
		return common.GraphNode{}, err
	}
	if len(nodes) == 0 {
		return common.GraphNode{}, store.ErrNotFound
	}
	return nodes[0], nil
}

func (s *Store) GetNodesByIDs(ctx context.Context, ids []string) ([]common.GraphNode, error) {
	ids = store.DedupeStrings(ids)
	var out []common.GraphNode
	err := store.ChunkRange(len(ids), store.MaxQueryParams, func(start, end int) error {
		ph, args := inList(ids[start:end])
		nodes, err := getNodes(ctx, s.db, selectNodesSQL+` WHERE id IN (`+ph+`)`, args...)
		if err != nil {
			return err
		}
		out = append(out, nodes...)
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *Store) GetOwnerNodes(ctx context.Context, owner string) ([]common.GraphNode, error) {
	return getNodes(ctx, s.db, selectNodesSQL+` WHERE owner_id = ? ORDER BY id`, owner)
}

func (s *Store) GetOwnerNodesLimit(ctx context.Context, owner string, limit int) ([]common.GraphNode, error) {
	if limit <= 0 {
		return nil, nil
	}
	return getNodes(ctx, s.db, selectNodesSQL+` WHERE owner_id = ? ORDER BY id LIMIT ?`, owner, limit)
}

func (s *Store) DistinctNodeTypes(ctx context.Context, owner string) ([]string, error) {
	return queryStrings(ctx, s.db, `
		SELECT DISTINCT type FROM graph_nodes
		WHERE owner_id = ? AND type <> ''
		ORDER BY type`, owner)
}

func (s *Store) UpdateNodeProperties(ctx context.Context, id string, props map[string]any) error {
	b, err := store.MarshalProperties(props)
	if err != nil {
		return err
	}
	res, err := s.db.ExecContext(ctx, `UPDATE graph_nodes SET properties = ? WHERE id = ?`, string(b), id)
	if err != nil {
		return fmt.Errorf("update node properties: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return store.ErrNotFound
	}
	return nil
}

func (s *Store) GetEdgesAmong(ctx context.Context, ids []string) ([]common.GraphEdge, error) {
	ids = store.DedupeStrings(ids)
	set := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		set[id] = struct{}{}
	}
	var out []common.GraphEdge
	err := store.ChunkRange(len(ids), store.MaxQueryParams, func(start, end int) error {
		ph, args := inList(ids[start:end])
		edges, err := getEdges(ctx, s.db, selectEdgesSQL+` WHERE source IN (`+ph+`)`, args...)
		if err != nil {
			return err
		}
		for _, e := range edges {
			if _, ok := set[e.Target]; ok {
				out = append(out, e)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *Store) GetEdgesTouching(ctx context.Context, ids []string) ([]common.GraphEdge, error) {
	ids = store.DedupeStrings(ids)
	seen := map[int64]struct{}{}
	var out []common.GraphEdge
	err := store.ChunkRange(len(ids), store.MaxQueryParams/2, func(start, end int) error {
		ph, args := inList(ids[start:end])
		args = append(args, args...)
		edges, err := getEdges(ctx, s.db, selectEdgesSQL+` WHERE source IN (`+ph+`) OR target IN (`+ph+`)`, args...)
		if err != nil {
			return err
		}
		for _, e := range edges {
			if _, ok := seen[e.ID]; ok {
				continue
			}
			seen[e.ID] = struct{}{}
			out = append(out, e)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

type execQueryer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

func insertNodes(ctx context.Context, q execQueryer, nodes []common.GraphNode) error {
	for _, n := range nodes {
		b, err := store.MarshalProperties(n.Properties)
		if err != nil {
			return err
		}
		if _, err := q.ExecContext(ctx,
			`INSERT INTO graph_nodes (id, owner_id, label, type, properties) VALUES (?, ?, ?, ?, ?)`,
			n.ID, nullString(n.OwnerID), n.Label, n.Type, string(b),
		); err != nil {
			return fmt.Errorf("insert node %s: %w", n.ID, err)
		}
	}
	return nil
}

func insertEdges(ctx context.Context, q execQueryer, edges []common.GraphEdge) error {
	for _, e := range edges {
		if _, err := q.ExecContext(ctx,
			`INSERT INTO graph_edges (source, target, relation) VALUES (?, ?, ?)`,
			e.Source, e.Target, e.Relation,
		); err != nil {
			return fmt.Errorf("insert edge %s->%s: %w", e.Source, e.Target, err)
		}
	}
	return nil
}

func queryStrings(ctx context.Context, q execQueryer, query string, args ...any) ([]string, error) {
	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []string
	for rows.Next() {
		var v string
		if err := rows.Scan(&v); err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, rows.Err()
}

func getDocuments(ctx context.Context, q execQueryer, query string, args ...any) ([]common.Document, error) {
	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query documents: %w", err)
	}
	defer rows.Close()

	var out []common.Document
	for rows.Next() {
		var d common.Document
		var createdAt string
		var docType, issuer, status, extracted sql.NullString
		if err := rows.Scan(&d.ID, &d.OwnerID, &d.Filename, &d.Path, &createdAt,
			&docType, &issuer, &status, &extracted); err != nil {
			return nil, err
		}
		if d.CreatedAt, err = parseTime(createdAt); err != nil {
			return nil, err
		}
		d.DocType = stringPtr(docType)
		d.Issuer = stringPtr(issuer)
		d.Status = stringPtr(status)
		d.ExtractedJSON = stringPtr(extracted)
		out = append(out, d)
	}
	return out, rows.Err()
}

func getNodes(ctx context.Context, q execQueryer, query string, args ...any) ([]common.GraphNode, error) {
	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query nodes: %w", err)
	}
	defer rows.Close()

	var out []common.GraphNode
	for rows.Next() {
		var n common.GraphNode
		var owner sql.NullString
		var raw string
		if err := rows.Scan(&n.ID, &owner, &n.Label, &n.Type, &raw); err != nil {
			return nil, err
		}
		n.OwnerID = stringPtr(owner)
		if n.Properties, err = store.UnmarshalProperties([]byte(raw)); err != nil {
			return nil, err
		}
		out = append(out, n)
	}
	return out, rows.Err()
}

func getEdges(ctx context.Context, q execQueryer, query string, args ...any) ([]common.GraphEdge, error) {
	rows, err := q.QueryContext(ctx, query, args...)
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

func inList(ids []string) (string, []any) {
	args := make([]any, len(ids))
	for i, id := range ids {
		args[i] = id
	}
	return strings.TrimSuffix(strings.Repeat("?,", len(ids)), ","), args
}

func nullString(s *string) any {
	if s == nil {
		return nil
	}
	return *s
}

func stringPtr(ns sql.NullString) *string {
	if !ns.Valid {
		return nil
	}
	v := ns.String
	return &v
}

func parseTime(s string) (time.Time, error) {
	t, err := time.Parse(timeLayout, s)
	if err != nil {
		return time.Time{}, errors.New("invalid timestamp " + s)
	}
	return t, nil
}

const selectDocumentsSQL = `
SELECT id, owner_id, filename, path, created_at, doc_type, issuer, status, extracted_json
FROM documents`

const selectNodesSQL = `
SELECT id, owner_id, label, type, properties
FROM graph_nodes`

const selectEdgesSQL = `
SELECT id, source, target, relation
FROM graph_edges`

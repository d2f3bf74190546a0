package export

import (
	"archive/zip"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"maps"

	"github.com/papertrail-ai/papertrail/backend/pkg/common"
	"github.com/papertrail-ai/papertrail/backend/pkg/logger"
	"github.com/papertrail-ai/papertrail/backend/pkg/store"
)

const (
	GraphFile  = "clean_graph.json"
	ReadmeFile = "README.txt"

	redactedKey = "is_redacted"
	readme      = "This is a clean-room export with redacted entities removed.\n"
)

// ErrNotFound is returned when the node does not exist or is not visible to the owner.
var ErrNotFound = errors.New("entity not found")

// Invalidator drops cached reads of an owner after a redaction.
type Invalidator interface {
	Invalidate(ctx context.Context, owner string) error
}

// Service marks entities as redacted and packages an owner's graph without them.
type Service struct {
	storage     store.GraphStorage
	invalidator Invalidator
}

type Option func(*Service)

func WithInvalidator(inv Invalidator) Option {
	return func(s *Service) {
		s.invalidator = inv
	}
}

func NewService(storage store.GraphStorage, opts ...Option) *Service {
	s := &Service{storage: storage}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// RedactEntity sets is_redacted on the node. The flag lives in the graph
// only and does not survive the next rebuild.
func (s *Service) RedactEntity(ctx context.Context, owner, nodeID string) error {
	node, err := s.storage.GetNode(ctx, nodeID)
	if errors.Is(err, store.ErrNotFound) {
		return ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("get node: %w", err)
	}
	if !node.VisibleTo(owner) {
		return ErrNotFound
	}

	props := make(map[string]any, len(node.Properties)+1)
	maps.Copy(props, node.Properties)
	props[redactedKey] = true

	if err := s.storage.UpdateNodeProperties(ctx, nodeID, props); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return ErrNotFound
		}
		return fmt.Errorf("update node: %w", err)
	}
	if s.invalidator != nil {
		if err := s.invalidator.Invalidate(ctx, owner); err != nil {
			logger.Warn("[Export] Cache invalidation failed", "owner", owner, "err", err)
		}
	}
	logger.Info("[Export] Redacted entity", "owner", owner, "node", nodeID)
	return nil
}

// CleanGraph returns the owner's non-redacted nodes and the edges between them.
func (s *Service) CleanGraph(ctx context.Context, owner string) (common.GraphData, error) {
	nodes, err := s.storage.GetOwnerNodes(ctx, owner)
	if err != nil {
		return common.GraphData{}, fmt.Errorf("get nodes: %w", err)
	}

	clean := make([]common.GraphNode, 0, len(nodes))
	ids := make([]string, 0, len(nodes))
	for _, n := range nodes {
		if n.IsRedacted() {
			continue
		}
		clean = append(clean, n)
		ids = append(ids, n.ID)
	}

	edges, err := s.storage.GetEdgesAmong(ctx, ids)
	if err != nil {
		return common.GraphData{}, fmt.Errorf("get edges: %w", err)
	}
	if edges == nil {
		edges = []common.GraphEdge{}
	}
	return common.GraphData{Nodes: clean, Links: edges}, nil
}

// CleanRoom builds a zip archive holding the clean graph and a readme.
func (s *Service) CleanRoom(ctx context.Context, owner string) ([]byte, error) {
	data, err := s.CleanGraph(ctx, owner)
	if err != nil {
		return nil, err
	}
	graphJSON, err := json.MarshalIndent(data, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("marshal graph: %w", err)
	}

	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	for _, f := range []struct {
		name string
		body []byte
	}{
		{GraphFile, graphJSON},
		{ReadmeFile, []byte(readme)},
	} {
		w, err := zw.Create(f.name)
		if err != nil {
			return nil, fmt.Errorf("create %s: %w", f.name, err)
		}
		if _, err := w.Write(f.body); err != nil {
			return nil, fmt.Errorf("write %s: %w", f.name, err)
		}
	}
	if err := zw.Close(); err != nil {
		return nil, fmt.Errorf("close archive: %w", err)
	}

	logger.Info("[Export] Built clean-room archive", "owner", owner, "nodes", len(data.Nodes), "edges", len(data.Links))
	return buf.Bytes(), nil
}

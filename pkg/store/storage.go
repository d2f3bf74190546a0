package store

import (
	"context"
	"errors"

	"github.com/papertrail-ai/papertrail/backend/pkg/common"
)

// ErrNotFound is returned when a requested row does not exist.
var ErrNotFound = errors.New("not found")

// BuildFunc turns the owner's freshly fetched documents into the owner's
// complete node and edge set.
type BuildFunc func(ctx context.Context, docs []common.Document) ([]common.GraphNode, []common.GraphEdge, error)

// GraphStorage defines the interface for persisting and querying per-owner
// knowledge graphs. It provides the atomic replace used by rebuilds, the read
// projections used by the query and analysis services, and the narrow
// mutations used by redaction.
type GraphStorage interface {
	// ReplaceOwnerGraph tears down every node owned by owner (plus nodes whose
	// id equals one of the owner's document ids), fetches the owner's
	// documents, calls build and inserts its result. Everything runs in one
	// transaction; on error the previous graph is kept.
	ReplaceOwnerGraph(ctx context.Context, owner string, build BuildFunc) error

	GetOwnerDocuments(ctx context.Context, owner string) ([]common.Document, error)
	GetDocumentsByIDs(ctx context.Context, ids []string) ([]common.Document, error)
	GetActionItemsForDocuments(ctx context.Context, documentIDs []string) ([]common.ActionItem, error)
	DistinctDocTypes(ctx context.Context, owner string) ([]string, error)

	GetNode(ctx context.Context, id string) (common.GraphNode, error)
	GetNodesByIDs(ctx context.Context, ids []string) ([]common.GraphNode, error)
	GetOwnerNodes(ctx context.Context, owner string) ([]common.GraphNode, error)
	GetOwnerNodesLimit(ctx context.Context, owner string, limit int) ([]common.GraphNode, error)
	DistinctNodeTypes(ctx context.Context, owner string) ([]string, error)
	UpdateNodeProperties(ctx context.Context, id string, props map[string]any) error

	// GetEdgesAmong returns edges whose source and target are both in ids.
	GetEdgesAmong(ctx context.Context, ids []string) ([]common.GraphEdge, error)
	// GetEdgesTouching returns edges whose source or target is in ids.
	GetEdgesTouching(ctx context.Context, ids []string) ([]common.GraphEdge, error)

	Close() error
}

package graph

import (
	"context"
	"fmt"
	"time"

	"github.com/papertrail-ai/papertrail/backend/pkg/common"
	"github.com/papertrail-ai/papertrail/backend/pkg/logger"
)

// RebuildGraph replaces the owner's graph with one derived from the owner's
// current documents. Documents with unusable extracted data still get a
// document node. The replacement is atomic: on error the previous graph is
// kept and the caller may retry.
func (g *GraphClient) RebuildGraph(ctx context.Context, owner string) (RebuildStats, error) {
	if owner == "" {
		return RebuildStats{}, ErrEmptyOwner
	}

	var stats RebuildStats
	start := time.Now()

	err := g.locker.WithLock(ctx, LockKey(owner), func(ctx context.Context) error {
		stats = RebuildStats{}
		return g.storage.ReplaceOwnerGraph(ctx, owner, func(ctx context.Context, docs []common.Document) ([]common.GraphNode, []common.GraphEdge, error) {
			b := newBuilder(owner)
			for _, doc := range docs {
				if err := ctx.Err(); err != nil {
					return nil, nil, err
				}
				if !b.addDocument(doc) {
					stats.SkippedDocuments++
				}
			}
			nodes, edges := b.result()
			stats.Documents = len(docs)
			stats.Nodes = len(nodes)
			stats.Edges = len(edges)
			return nodes, edges, nil
		})
	})
	if err != nil {
		logger.Error("[Graph] Rebuild failed", "owner", owner, "err", err)
		return RebuildStats{}, fmt.Errorf("rebuild graph for %s: %w", owner, err)
	}
	stats.Duration = time.Since(start)

	logger.Info("[Graph] Rebuilt graph",
		"owner", owner,
		"documents", stats.Documents,
		"nodes", stats.Nodes,
		"edges", stats.Edges,
		"skipped", stats.SkippedDocuments,
		"duration", stats.Duration,
	)

	for _, o := range g.observers {
		if err := o.OnRebuild(ctx, owner, stats); err != nil {
			logger.Warn("[Graph] Rebuild observer failed", "owner", owner, "err", err)
		}
	}
	return stats, nil
}

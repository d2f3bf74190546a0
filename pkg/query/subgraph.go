package query

import (
	"context"
	"fmt"
	"sort"

	"github.com/papertrail-ai/papertrail/backend/pkg/common"
	"github.com/papertrail-ai/papertrail/backend/pkg/store"
)

const (
	MinSubgraphNodes = 2
	MaxSubgraphNodes = 100
)

// ClampLimit bounds a requested subgraph size to [MinSubgraphNodes, MaxSubgraphNodes].
func ClampLimit(limit int) int {
	return min(max(limit, MinSubgraphNodes), MaxSubgraphNodes)
}

// GetSubgraph returns up to limit of the owner's nodes and the edges strictly
// between them. Without ids it takes the owner's first nodes; with ids it
// takes the selected nodes followed by their neighbours.
func (s *Service) GetSubgraph(ctx context.Context, owner string, nodeIDs []string, limit int) (common.Subgraph, error) {
	limit = ClampLimit(limit)

	var nodes []common.GraphNode
	var err error
	if len(store.DedupeStrings(nodeIDs)) == 0 {
		nodes, err = s.storage.GetOwnerNodesLimit(ctx, owner, limit)
		if err != nil {
			return common.Subgraph{}, fmt.Errorf("get owner nodes: %w", err)
		}
	} else {
		nodes, err = s.selectionWithNeighbours(ctx, owner, nodeIDs)
		if err != nil {
			return common.Subgraph{}, err
		}
		if len(nodes) > limit {
			nodes = nodes[:limit]
		}
	}

	ids := make([]string, len(nodes))
	for i, n := range nodes {
		ids[i] = n.ID
	}
	edges, err := s.storage.GetEdgesAmong(ctx, ids)
	if err != nil {
		return common.Subgraph{}, fmt.Errorf("get edges: %w", err)
	}
	record(s.trace, TraceEventSubgraphNodeIDs, owner, ids...)

	out := common.Subgraph{
		Nodes: make([]common.SubgraphNode, 0, len(nodes)),
		Edges: make([]common.SubgraphEdge, 0, len(edges)),
	}
	for _, n := range nodes {
		out.Nodes = append(out.Nodes, common.SubgraphNode{
			ID:         n.ID,
			Label:      n.Label,
			Type:       n.Type,
			Properties: n.Properties,
		})
	}
	for _, e := range edges {
		out.Edges = append(out.Edges, common.SubgraphEdge{
			Source:   e.Source,
			Target:   e.Target,
			Relation: e.Relation,
		})
	}
	return out, nil
}

func (s *Service) selectionWithNeighbours(ctx context.Context, owner string, nodeIDs []string) ([]common.GraphNode, error) {
	selected, err := s.storage.GetNodesByIDs(ctx, nodeIDs)
	if err != nil {
		return nil, fmt.Errorf("get selected nodes: %w", err)
	}
	selected = ownedBy(selected, owner)

	selectedIDs := make(map[string]struct{}, len(selected))
	ids := make([]string, 0, len(selected))
	for _, n := range selected {
		selectedIDs[n.ID] = struct{}{}
		ids = append(ids, n.ID)
	}
	if len(ids) == 0 {
		return nil, nil
	}

	edges, err := s.storage.GetEdgesTouching(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("get neighbour edges: %w", err)
	}
	var neighbourIDs []string
	for _, e := range edges {
		for _, id := range []string{e.Source, e.Target} {
			if _, ok := selectedIDs[id]; !ok {
				neighbourIDs = append(neighbourIDs, id)
			}
		}
	}
	neighbours, err := s.storage.GetNodesByIDs(ctx, store.DedupeStrings(neighbourIDs))
	if err != nil {
		return nil, fmt.Errorf("get neighbours: %w", err)
	}
	neighbours = ownedBy(neighbours, owner)
	sort.Slice(neighbours, func(i, j int) bool { return neighbours[i].ID < neighbours[j].ID })

	return append(selected, neighbours...), nil
}

func ownedBy(nodes []common.GraphNode, owner string) []common.GraphNode {
	out := nodes[:0]
	for _, n := range nodes {
		if n.OwnedBy(owner) {
			out = append(out, n)
		}
	}
	return out
}

package query

import (
	"context"
	"fmt"

	"github.com/papertrail-ai/papertrail/backend/pkg/common"
)

const graphCacheKey = "graph"

// GetGraphData returns every node owned by owner and the edges whose both
// endpoints are among them.
func (s *Service) GetGraphData(ctx context.Context, owner string) (common.GraphData, error) {
	var cached common.GraphData
	version, hit := s.load(ctx, owner, graphCacheKey, &cached)
	if hit {
		return cached, nil
	}

	nodes, err := s.storage.GetOwnerNodes(ctx, owner)
	if err != nil {
		return common.GraphData{}, fmt.Errorf("get owner nodes: %w", err)
	}
	ids := make([]string, len(nodes))
	for i, n := range nodes {
		ids[i] = n.ID
	}
	edges, err := s.storage.GetEdgesAmong(ctx, ids)
	if err != nil {
		return common.GraphData{}, fmt.Errorf("get edges: %w", err)
	}

	data := common.GraphData{
		Nodes: nonNil(nodes),
		Links: nonNil(edges),
	}
	s.store(ctx, owner, graphCacheKey, version, data)
	return data, nil
}

func nonNil[T any](in []T) []T {
	if in == nil {
		return []T{}
	}
	return in
}

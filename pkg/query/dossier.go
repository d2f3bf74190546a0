package query

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/papertrail-ai/papertrail/backend/pkg/common"
	"github.com/papertrail-ai/papertrail/backend/pkg/store"
)

const (
	collaboratorCandidates = 10
	collaboratorLimit      = 5
)

// GetEntityDossier aggregates the documents, timeline and co-occurring
// entities of one node. It returns ErrNotFound when the node does not exist
// or belongs to another owner.
func (s *Service) GetEntityDossier(ctx context.Context, owner, nodeID string) (*common.Dossier, error) {
	if _, err := s.visibleNode(ctx, owner, nodeID); err != nil {
		return nil, err
	}

	key := "dossier:" + nodeID
	var cached common.Dossier
	version, hit := s.load(ctx, owner, key, &cached)
	if hit {
		return &cached, nil
	}

	// Read again: a rebuild may have replaced the node before the version
	// was captured.
	node, err := s.visibleNode(ctx, owner, nodeID)
	if err != nil {
		return nil, err
	}

	docs, err := s.connectedDocuments(ctx, nodeID)
	if err != nil {
		return nil, err
	}
	docIDs := make([]string, len(docs))
	for i, d := range docs {
		docIDs[i] = d.ID
	}
	record(s.trace, TraceEventConnectedDocumentIDs, owner, docIDs...)

	actions, err := s.storage.GetActionItemsForDocuments(ctx, docIDs)
	if err != nil {
		return nil, fmt.Errorf("get action items: %w", err)
	}

	collaborators, err := s.collaborators(ctx, nodeID, docIDs)
	if err != nil {
		return nil, err
	}
	collabIDs := make([]string, len(collaborators))
	for i, c := range collaborators {
		collabIDs[i] = c.ID
	}
	record(s.trace, TraceEventCollaboratorIDs, owner, collabIDs...)

	summaries := make([]common.DocumentSummary, len(docs))
	for i, d := range docs {
		summaries[i] = d.Summarize()
	}

	dossier := &common.Dossier{
		NodeID:           node.ID,
		Label:            node.Label,
		Type:             node.Type,
		Summary:          nodeSummary(node),
		Properties:       node.Properties,
		Stats:            ComputeStats(docs),
		RelatedDocuments: summaries,
		RelatedActions:   nonNil(actions),
		ActivityTrend:    ActivityTrend(docs, s.now()),
		TypeDistribution: TypeDistribution(docs),
		Collaborators:    collaborators,
	}
	s.store(ctx, owner, key, version, dossier)
	return dossier, nil
}

func (s *Service) visibleNode(ctx context.Context, owner, nodeID string) (common.GraphNode, error) {
	node, err := s.storage.GetNode(ctx, nodeID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return common.GraphNode{}, ErrNotFound
		}
		return common.GraphNode{}, fmt.Errorf("get node: %w", err)
	}
	if !node.VisibleTo(owner) {
		return common.GraphNode{}, ErrNotFound
	}
	return node, nil
}

// connectedDocuments returns the documents among the sources of edges into
// nodeID and the targets of edges out of it.
func (s *Service) connectedDocuments(ctx context.Context, nodeID string) ([]common.Document, error) {
	edges, err := s.storage.GetEdgesTouching(ctx, []string{nodeID})
	if err != nil {
		return nil, fmt.Errorf("get node edges: %w", err)
	}
	var ids []string
	for _, e := range edges {
		if e.Target == nodeID {
			ids = append(ids, e.Source)
		}
		if e.Source == nodeID {
			ids = append(ids, e.Target)
		}
	}
	docs, err := s.storage.GetDocumentsByIDs(ctx, store.DedupeStrings(ids))
	if err != nil {
		return nil, fmt.Errorf("get connected documents: %w", err)
	}
	return nonNil(docs), nil
}

type tally struct {
	id    string
	count int
}

// collaborators ranks the non-document entities sharing documents with
// nodeID by the number of edges linking them to those documents.
func (s *Service) collaborators(ctx context.Context, nodeID string, docIDs []string) ([]common.Collaborator, error) {
	out := []common.Collaborator{}
	if len(docIDs) == 0 {
		return out, nil
	}
	edges, err := s.storage.GetEdgesTouching(ctx, docIDs)
	if err != nil {
		return nil, fmt.Errorf("get document edges: %w", err)
	}

	docSet := make(map[string]struct{}, len(docIDs))
	for _, id := range docIDs {
		docSet[id] = struct{}{}
	}
	counts := map[string]int{}
	for _, e := range edges {
		other := e.Source
		if _, ok := docSet[e.Source]; ok {
			other = e.Target
		}
		if other == nodeID {
			continue
		}
		if _, ok := docSet[other]; ok {
			continue
		}
		counts[other]++
	}

	ranked := rank(counts)
	if len(ranked) > collaboratorCandidates {
		ranked = ranked[:collaboratorCandidates]
	}
	ids := make([]string, len(ranked))
	for i, r := range ranked {
		ids[i] = r.id
	}
	nodes, err := s.storage.GetNodesByIDs(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("get collaborator nodes: %w", err)
	}
	byID := make(map[string]common.GraphNode, len(nodes))
	for _, n := range nodes {
		byID[n.ID] = n
	}

	for _, r := range ranked {
		n, ok := byID[r.id]
		if !ok || n.Type == common.NodeTypeDocument {
			continue
		}
		role := n.Type
		if v, ok := n.Properties["role"].(string); ok && v != "" {
			role = v
		}
		out = append(out, common.Collaborator{ID: n.ID, Name: n.Label, Role: role, Count: r.count})
		if len(out) == collaboratorLimit {
			break
		}
	}
	return out, nil
}

func rank(counts map[string]int) []tally {
	out := make([]tally, 0, len(counts))
	for id, c := range counts {
		out = append(out, tally{id, c})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].count != out[j].count {
			return out[i].count > out[j].count
		}
		return out[i].id < out[j].id
	})
	return out
}

func nodeSummary(n common.GraphNode) string {
	for _, key := range []string{"summary", "description"} {
		if v, ok := n.Properties[key].(string); ok && v != "" {
			return v
		}
	}
	return ""
}

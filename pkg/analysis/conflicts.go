package analysis

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/papertrail-ai/papertrail/backend/pkg/ai"
	"github.com/papertrail-ai/papertrail/backend/pkg/common"
	"github.com/papertrail-ai/papertrail/backend/pkg/logger"
)

// extracted document fields worth comparing across documents
var comparedFields = []string{
	"date",
	"due_date",
	"total_amount",
	"invoice_number",
	"contract_id",
	"deadlines",
	"amounts",
	"dates",
}

type conflictNode struct {
	ID            string         `json:"id"`
	Label         string         `json:"label"`
	Type          string         `json:"type"`
	ExtractedData map[string]any `json:"extracted_data,omitempty"`
}

// AnalyzeConflicts asks the model for inconsistencies among the selected
// nodes and their neighbours, or among the owner's first nodes when no ids
// are given. A model failure yields an empty report, not an error.
func (a *Analyzer) AnalyzeConflicts(ctx context.Context, owner string, nodeIDs []string) (ConflictReport, error) {
	sub, err := a.query.GetSubgraph(ctx, owner, nodeIDs, conflictNodeLimit)
	if err != nil {
		return ConflictReport{}, fmt.Errorf("load subgraph: %w", err)
	}

	ids := make([]string, len(sub.Nodes))
	for i, n := range sub.Nodes {
		ids[i] = n.ID
	}
	if len(sub.Nodes) < 2 {
		return ConflictReport{Conflicts: []ConflictItem{}, NodeIDsAnalyzed: ids}, nil
	}

	nodes, err := a.conflictNodes(ctx, sub.Nodes)
	if err != nil {
		return ConflictReport{}, err
	}

	keep := fitBudget(a, conflictPrompt, nodes)
	if keep < len(nodes) {
		logger.Debug("[Analysis] Trimmed conflict context", "owner", owner, "nodes", len(nodes), "kept", keep)
		nodes = nodes[:keep]
	}

	analysed := make(map[string]struct{}, len(nodes))
	analysedIDs := make([]string, len(nodes))
	for i, n := range nodes {
		analysed[n.ID] = struct{}{}
		analysedIDs[i] = n.ID
	}

	prompt := fmt.Sprintf(conflictPrompt, marshalIndent(nodes))
	var res conflictResponse
	err = a.client.GenerateCompletionWithFormat(
		ctx,
		"conflict_report",
		"Conflicts between graph nodes",
		prompt,
		&res,
		ai.WithSystemPrompts(auditorSystemPrompt),
	)
	if err != nil {
		logger.Error("[Analysis] Conflict analysis failed", "owner", owner, "err", err)
		return ConflictReport{Conflicts: []ConflictItem{}, NodeIDsAnalyzed: []string{}}, nil
	}

	conflicts := make([]ConflictItem, 0, len(res.Conflicts))
	for _, c := range res.Conflicts {
		_, srcOK := analysed[c.SourceID]
		_, dstOK := analysed[c.TargetID]
		if !srcOK || !dstOK {
			continue
		}
		c.Severity = conflictSeverity(c.Severity)
		conflicts = append(conflicts, c)
	}

	return ConflictReport{Conflicts: conflicts, NodeIDsAnalyzed: analysedIDs}, nil
}

func (a *Analyzer) conflictNodes(ctx context.Context, nodes []common.SubgraphNode) ([]conflictNode, error) {
	var docIDs []string
	for _, n := range nodes {
		if n.Type == common.NodeTypeDocument {
			docIDs = append(docIDs, n.ID)
		}
	}

	extracted := map[string]map[string]any{}
	if len(docIDs) > 0 {
		docs, err := a.storage.GetDocumentsByIDs(ctx, docIDs)
		if err != nil {
			return nil, fmt.Errorf("load documents: %w", err)
		}
		for _, d := range docs {
			if fields := comparableFields(d.ExtractedJSON); len(fields) > 0 {
				extracted[d.ID] = fields
			}
		}
	}

	out := make([]conflictNode, len(nodes))
	for i, n := range nodes {
		out[i] = conflictNode{
			ID:            n.ID,
			Label:         n.Label,
			Type:          n.Type,
			ExtractedData: extracted[n.ID],
		}
	}
	return out, nil
}

func comparableFields(raw *string) map[string]any {
	if raw == nil || strings.TrimSpace(*raw) == "" {
		return nil
	}
	var data map[string]any
	if err := json.Unmarshal([]byte(*raw), &data); err != nil {
		return nil
	}
	out := map[string]any{}
	for _, k := range comparedFields {
		if v, ok := data[k]; ok && v != nil {
			out[k] = v
		}
	}
	return out
}

func conflictSeverity(s string) string {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case SeverityHigh:
		return SeverityHigh
	case SeverityLow:
		return SeverityLow
	default:
		return SeverityMedium
	}
}

package analysis

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/papertrail-ai/papertrail/backend/pkg/ai"
	"github.com/papertrail-ai/papertrail/backend/pkg/common"
	"github.com/papertrail-ai/papertrail/backend/pkg/logger"

	"golang.org/x/sync/errgroup"
)

const patternGenerationMaxTokens = 2000

// DetectPatterns generates investigation patterns from the owner's document
// and entity types and runs each over the owner's bounded subgraph. With a
// non-empty patternID only the generated pattern with that id runs.
func (a *Analyzer) DetectPatterns(ctx context.Context, owner string, patternID string) (PatternReport, error) {
	report := PatternReport{Matches: []PatternMatch{}}

	docTypes, err := a.storage.DistinctDocTypes(ctx, owner)
	if err != nil {
		return report, fmt.Errorf("load document types: %w", err)
	}
	nodeTypes, err := a.storage.DistinctNodeTypes(ctx, owner)
	if err != nil {
		return report, fmt.Errorf("load node types: %w", err)
	}
	if len(docTypes) == 0 && len(nodeTypes) == 0 {
		return report, nil
	}

	patterns := a.generatePatterns(ctx, owner, docTypes, nodeTypes)
	if patternID != "" {
		filtered := patterns[:0]
		for _, p := range patterns {
			if p.ID == patternID {
				filtered = append(filtered, p)
			}
		}
		patterns = filtered
	}
	if len(patterns) == 0 {
		return report, nil
	}

	sub, err := a.query.GetSubgraph(ctx, owner, nil, a.maxNodes)
	if err != nil {
		return report, fmt.Errorf("load subgraph: %w", err)
	}
	if len(sub.Nodes) < 2 {
		return report, nil
	}
	sub = a.trimSubgraph(sub)

	graphJSON := marshalIndent(sub)
	valid := make(map[string]struct{}, len(sub.Nodes))
	for _, n := range sub.Nodes {
		valid[n.ID] = struct{}{}
	}

	results := make([][]PatternMatch, len(patterns))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(a.parallel)
	for i, p := range patterns {
		g.Go(func() error {
			matches, err := a.runPattern(gctx, p, graphJSON, valid)
			if err != nil {
				logger.Warn("[Analysis] Pattern run failed", "owner", owner, "pattern", p.ID, "err", err)
				return nil
			}
			results[i] = matches
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return report, err
	}
	if err := ctx.Err(); err != nil {
		return report, err
	}

	for _, r := range results {
		report.Matches = append(report.Matches, r...)
	}
	return report, nil
}

func (a *Analyzer) generatePatterns(ctx context.Context, owner string, docTypes, nodeTypes []string) []PatternDefinition {
	prompt := fmt.Sprintf(patternGeneratorPrompt, jsonList(docTypes), jsonList(nodeTypes))

	var res patternsResponse
	err := a.client.GenerateCompletionWithFormat(
		ctx,
		"investigation_patterns",
		"Investigation patterns for a document graph",
		prompt,
		&res,
		ai.WithSystemPrompts(patternGeneratorSystemPrompt),
		ai.WithTemperature(0.4),
		ai.WithMaxTokens(patternGenerationMaxTokens),
	)
	if err != nil {
		logger.Error("[Analysis] Pattern generation failed", "owner", owner, "err", err)
		return nil
	}

	seen := map[string]struct{}{}
	out := make([]PatternDefinition, 0, len(res.Patterns))
	for _, p := range res.Patterns {
		p.ID = strings.TrimSpace(p.ID)
		if p.ID == "" || strings.TrimSpace(p.PromptTemplate) == "" {
			continue
		}
		if _, dup := seen[p.ID]; dup {
			continue
		}
		seen[p.ID] = struct{}{}
		p.Severity = patternSeverity(p.Severity)
		out = append(out, p)
	}
	return out
}

func (a *Analyzer) runPattern(
	ctx context.Context,
	p PatternDefinition,
	graphJSON string,
	valid map[string]struct{},
) ([]PatternMatch, error) {
	prompt := fmt.Sprintf(patternMatchPrompt, p.Name, p.Description, p.PromptTemplate, graphJSON)

	var res matchesResponse
	if err := a.client.GenerateCompletionWithFormat(
		ctx,
		"pattern_matches",
		"Matches of "+p.Name,
		prompt,
		&res,
		ai.WithSystemPrompts(patternAnalystSystemPrompt),
	); err != nil {
		return nil, err
	}

	var out []PatternMatch
	for _, m := range res.Matches {
		var ids []string
		for _, id := range m.InvolvedNodeIDs {
			if _, ok := valid[id]; ok {
				ids = append(ids, id)
			}
		}
		if len(ids) == 0 {
			continue
		}
		out = append(out, PatternMatch{
			PatternID:       p.ID,
			PatternName:     p.Name,
			Description:     m.Description,
			InvolvedNodeIDs: ids,
			Confidence:      min(max(m.Confidence, 0), 1),
			Severity:        p.Severity,
		})
	}
	return out, nil
}

// trimSubgraph drops trailing nodes, and edges touching them, until the
// serialized graph fits the token budget.
func (a *Analyzer) trimSubgraph(sub common.Subgraph) common.Subgraph {
	keep := fitBudget(a, patternMatchPrompt, sub.Nodes)
	if keep == len(sub.Nodes) {
		return sub
	}
	sub.Nodes = sub.Nodes[:keep]
	kept := make(map[string]struct{}, keep)
	for _, n := range sub.Nodes {
		kept[n.ID] = struct{}{}
	}
	edges := sub.Edges[:0]
	for _, e := range sub.Edges {
		_, srcOK := kept[e.Source]
		_, dstOK := kept[e.Target]
		if srcOK && dstOK {
			edges = append(edges, e)
		}
	}
	sub.Edges = edges
	return sub
}

func jsonList(values []string) string {
	if values == nil {
		values = []string{}
	}
	b, _ := json.Marshal(values)
	return string(b)
}

func patternSeverity(s string) string {
	switch v := strings.ToLower(strings.TrimSpace(s)); v {
	case SeverityLow, SeverityMedium, SeverityHigh, SeverityCritical:
		return v
	default:
		return SeverityMedium
	}
}

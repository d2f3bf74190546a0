package analysis

import (
	"encoding/json"
	"errors"

	"github.com/papertrail-ai/papertrail/backend/pkg/ai"
	"github.com/papertrail-ai/papertrail/backend/pkg/query"
	"github.com/papertrail-ai/papertrail/backend/pkg/store"
)

const (
	conflictNodeLimit = 50
	defaultMaxNodes   = query.MaxSubgraphNodes
	defaultMaxTokens  = 12000
	defaultParallel   = 4
)

// Analyzer runs language model checks over bounded subgraphs of an owner's graph.
type Analyzer struct {
	storage store.GraphStorage
	query   *query.Service
	client  ai.GraphAIClient

	maxNodes    int
	maxTokens   int
	parallel    int
	countTokens func(string) int
}

// NewAnalyzerParams configures an Analyzer. Zero values fall back to
// defaults; Query defaults to a service over Storage.
type NewAnalyzerParams struct {
	Storage store.GraphStorage
	Query   *query.Service
	Client  ai.GraphAIClient

	MaxNodes     int
	MaxTokens    int
	Parallel     int
	TokenCounter func(string) int
}

func NewAnalyzer(params NewAnalyzerParams) (*Analyzer, error) {
	if params.Storage == nil {
		return nil, errors.New("analysis: storage is required")
	}
	if params.Client == nil {
		return nil, errors.New("analysis: ai client is required")
	}

	a := &Analyzer{
		storage:     params.Storage,
		query:       params.Query,
		client:      params.Client,
		maxNodes:    query.ClampLimit(params.MaxNodes),
		maxTokens:   params.MaxTokens,
		parallel:    params.Parallel,
		countTokens: params.TokenCounter,
	}
	if a.query == nil {
		a.query = query.NewService(params.Storage)
	}
	if params.MaxNodes <= 0 {
		a.maxNodes = defaultMaxNodes
	}
	if a.maxTokens <= 0 {
		a.maxTokens = defaultMaxTokens
	}
	if a.parallel <= 0 {
		a.parallel = defaultParallel
	}
	if a.countTokens == nil {
		a.countTokens = ai.EstimateTokens
	}
	return a, nil
}

// fitBudget returns how many leading items fit into the token budget
// together with the prompt overhead. At least two items are always kept.
func fitBudget[T any](a *Analyzer, overhead string, items []T) int {
	used := a.countTokens(overhead)
	for i, item := range items {
		b, err := json.Marshal(item)
		if err != nil {
			return max(i, min(2, len(items)))
		}
		used += a.countTokens(string(b))
		if used > a.maxTokens {
			return max(i, min(2, len(items)))
		}
	}
	return len(items)
}

func marshalIndent(v any) string {
	b, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return "{}"
	}
	return string(b)
}

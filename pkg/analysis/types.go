package analysis

const (
	SeverityLow      = "low"
	SeverityMedium   = "medium"
	SeverityHigh     = "high"
	SeverityCritical = "critical"
)

// ConflictItem is one inconsistency between two analysed nodes.
type ConflictItem struct {
	SourceID    string `json:"source_id"`
	TargetID    string `json:"target_id"`
	Description string `json:"description"`
	Severity    string `json:"severity" jsonschema:"enum=high,enum=medium,enum=low"`
}

// ConflictReport lists the conflicts found and the node ids that were
// actually sent for analysis.
type ConflictReport struct {
	Conflicts       []ConflictItem `json:"conflicts"`
	NodeIDsAnalyzed []string       `json:"node_ids_analyzed"`
}

// PatternDefinition is a generated investigation pattern.
type PatternDefinition struct {
	ID             string `json:"id"`
	Name           string `json:"name"`
	Description    string `json:"description"`
	Severity       string `json:"severity" jsonschema:"enum=low,enum=medium,enum=high,enum=critical"`
	PromptTemplate string `json:"prompt_template"`
}

// PatternMatch is a set of nodes that exhibits a pattern.
type PatternMatch struct {
	PatternID       string   `json:"pattern_id"`
	PatternName     string   `json:"pattern_name"`
	Description     string   `json:"description"`
	InvolvedNodeIDs []string `json:"involved_node_ids"`
	Confidence      float64  `json:"confidence"`
	Severity        string   `json:"severity"`
}

type PatternReport struct {
	Matches []PatternMatch `json:"matches"`
}

type conflictResponse struct {
	Conflicts []ConflictItem `json:"conflicts"`
}

type patternsResponse struct {
	Patterns []PatternDefinition `json:"patterns"`
}

type patternMatchResponse struct {
	InvolvedNodeIDs []string `json:"involved_node_ids"`
	Description     string   `json:"description"`
	Confidence      float64  `json:"confidence"`
}

type matchesResponse struct {
	Matches []patternMatchResponse `json:"matches"`
}

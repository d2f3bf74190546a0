package common

import "time"

// Dossier is the aggregated profile of one entity.
type Dossier struct {
	NodeID           string            `json:"node_id"`
	Label            string            `json:"label"`
	Type             string            `json:"type"`
	Summary          string            `json:"summary,omitempty"`
	Properties       map[string]any    `json:"properties"`
	Stats            DossierStats      `json:"stats"`
	RelatedDocuments []DocumentSummary `json:"related_documents"`
	RelatedActions   []ActionItem      `json:"related_actions"`
	ActivityTrend    []TrendPoint      `json:"activity_trend"`
	TypeDistribution []TypeCount       `json:"type_distribution"`
	Collaborators    []Collaborator    `json:"collaborators"`
}

// DossierStats holds the headline numbers of a dossier. TotalValue is nil
// when no connected document carries an amount.
type DossierStats struct {
	TotalDocuments   int        `json:"total_documents"`
	FirstInteraction *time.Time `json:"first_interaction"`
	LastInteraction  *time.Time `json:"last_interaction"`
	TotalValue       *float64   `json:"total_value"`
	Currency         string     `json:"currency"`
}

type DocumentSummary struct {
	ID        string    `json:"id"`
	Filename  string    `json:"filename"`
	CreatedAt time.Time `json:"created_at"`
	DocType   *string   `json:"doc_type"`
	Status    *string   `json:"status"`
}

// TrendPoint is one monthly bucket, Month formatted as YYYY-MM.
type TrendPoint struct {
	Month string `json:"month"`
	Count int    `json:"count"`
}

type TypeCount struct {
	Type  string `json:"type"`
	Count int    `json:"count"`
}

type Collaborator struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Role  string `json:"role"`
	Count int    `json:"count"`
}

// Summarize returns the summary view of a document.
func (d Document) Summarize() DocumentSummary {
	return DocumentSummary{
		ID:        d.ID,
		Filename:  d.Filename,
		CreatedAt: d.CreatedAt,
		DocType:   d.DocType,
		Status:    d.Status,
	}
}

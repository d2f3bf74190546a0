package common

import (
	"encoding/json"
	"time"
)

// Node types produced by the rebuild engine. Custom entities use their own
// lowercase type string.
const (
	NodeTypeDocument     = "document"
	NodeTypeIssuer       = "issuer"
	NodeTypeCategory     = "category"
	NodeTypeTag          = "tag"
	NodeTypePerson       = "person"
	NodeTypeOrganization = "organization"
	NodeTypeRole         = "role"
	NodeTypeLocation     = "location"
	NodeTypeEntity       = "entity"
)

// Edge relations emitted by the fallback linking pass.
const (
	RelationIssuedBy   = "ISSUED_BY"
	RelationInCategory = "IN_CATEGORY"
	RelationTagged     = "TAGGED"
	RelationMentions   = "MENTIONS"
	RelationLocatedAt  = "LOCATED_AT"
	RelationRelatedTo  = "RELATED_TO"
)

// Document is an uploaded file owned by the ingestion pipeline. The graph
// engine only reads it.
//
// ExtractedJSON holds the raw payload written by the extraction step. It is
// nil when extraction has not run and may contain malformed JSON.
type Document struct {
	ID            string    `json:"id"`
	OwnerID       string    `json:"owner_id"`
	Filename      string    `json:"filename"`
	Path          string    `json:"path,omitempty"`
	CreatedAt     time.Time `json:"created_at"`
	DocType       *string   `json:"doc_type"`
	Issuer        *string   `json:"issuer,omitempty"`
	Status        *string   `json:"status"`
	ExtractedJSON *string   `json:"extracted_json,omitempty"`
}

// ActionItem is a follow-up task attached to a document by the agent service.
type ActionItem struct {
	ID          int64           `json:"id"`
	DocumentID  string          `json:"document_id"`
	Type        string          `json:"type"`
	Description string          `json:"description"`
	Status      string          `json:"status"`
	Payload     json.RawMessage `json:"payload,omitempty"`
	CreatedAt   time.Time       `json:"created_at"`
}

// GraphNode is a document or a resolved entity. OwnerID is nil only for
// legacy rows written before ownership tagging.
type GraphNode struct {
	ID         string         `json:"id"`
	OwnerID    *string        `json:"owner_id,omitempty"`
	Label      string         `json:"label"`
	Type       string         `json:"type"`
	Properties map[string]any `json:"properties"`
}

// GraphEdge is a directed, typed relation between two node ids.
type GraphEdge struct {
	ID       int64  `json:"id,omitempty"`
	Source   string `json:"source"`
	Target   string `json:"target"`
	Relation string `json:"relation"`
}

// GraphData is the full per-owner projection consumed by the visualization.
type GraphData struct {
	Nodes []GraphNode `json:"nodes"`
	Links []GraphEdge `json:"links"`
}

// SubgraphNode is the node shape handed to analysis consumers.
type SubgraphNode struct {
	ID         string         `json:"id"`
	Label      string         `json:"label"`
	Type       string         `json:"type"`
	Properties map[string]any `json:"properties"`
}

// SubgraphEdge is the edge shape handed to analysis consumers.
type SubgraphEdge struct {
	Source   string `json:"source"`
	Target   string `json:"target"`
	Relation string `json:"relation"`
}

// Subgraph is a bounded set of nodes and the edges strictly between them.
type Subgraph struct {
	Nodes []SubgraphNode `json:"nodes"`
	Edges []SubgraphEdge `json:"edges"`
}

// OwnedBy reports whether the node is owned by owner.
func (n GraphNode) OwnedBy(owner string) bool {
	return n.OwnerID != nil && *n.OwnerID == owner
}

// IsRedacted reports whether the node was marked redacted.
func (n GraphNode) IsRedacted() bool {
	if n.Properties == nil {
		return false
	}
	v, ok := n.Properties["is_redacted"].(bool)
	return ok && v
}

// VisibleTo reports whether owner may read the node. Legacy nodes without an
// owner are visible to everyone.
func (n GraphNode) VisibleTo(owner string) bool {
	return n.OwnerID == nil || *n.OwnerID == owner
}

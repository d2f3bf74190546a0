package common

import "time"

// NodeProps is the typed property bag of a node. Map flattens it into the
// stored representation, omitting empty fields.
type NodeProps interface {
	Map() map[string]any
}

type PersonProps struct {
	Role        string
	Description string
}

func (p PersonProps) Map() map[string]any {
	m := map[string]any{}
	putString(m, "role", p.Role)
	putString(m, "description", p.Description)
	return m
}

type OrgProps struct {
	Type        string
	Description string
}

func (p OrgProps) Map() map[string]any {
	m := map[string]any{}
	putString(m, "type", p.Type)
	putString(m, "description", p.Description)
	return m
}

type RoleProps struct {
	Description string
}

func (p RoleProps) Map() map[string]any {
	m := map[string]any{}
	putString(m, "description", p.Description)
	return m
}

type LocationProps struct {
	Type string
}

func (p LocationProps) Map() map[string]any {
	m := map[string]any{}
	putString(m, "type", p.Type)
	return m
}

// DocumentProps are the properties of a document node.
type DocumentProps struct {
	Filename  string
	CreatedAt time.Time
	Summary   string
	Priority  *float64
	Date      string
	Value     *float64
	Currency  string
}

func (p DocumentProps) Map() map[string]any {
	m := map[string]any{}
	putString(m, "filename", p.Filename)
	if !p.CreatedAt.IsZero() {
		m["created_at"] = p.CreatedAt.UTC().Format(time.RFC3339)
	}
	putString(m, "summary", p.Summary)
	if p.Priority != nil {
		m["priority"] = *p.Priority
	}
	putString(m, "date", p.Date)
	if p.Value != nil {
		m["value"] = *p.Value
	}
	putString(m, "currency", p.Currency)
	return m
}

// EntityProps is the open property bag used for custom entity types.
type EntityProps map[string]any

func (p EntityProps) Map() map[string]any {
	m := make(map[string]any, len(p))
	for k, v := range p {
		m[k] = v
	}
	return m
}

// NoProps is used by node types that carry no properties.
type NoProps struct{}

func (NoProps) Map() map[string]any { return map[string]any{} }

func putString(m map[string]any, key, value string) {
	if value != "" {
		m[key] = value
	}
}

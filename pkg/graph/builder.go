package graph

import (
	"strings"

	"github.com/papertrail-ai/papertrail/backend/pkg/common"
	"github.com/papertrail-ai/papertrail/backend/pkg/logger"
	"github.com/papertrail-ai/papertrail/backend/pkg/normalize"
)

type edgeKey struct {
	source, target, relation string
}

// builder accumulates the nodes and edges of one rebuild pass. Nodes are
// keyed by id, so entities resolving to the same id are created once.
type builder struct {
	owner string

	nodes map[string]*common.GraphNode
	order []string
	edges []common.GraphEdge

	// docEdges dedupes (source, target, relation) within the current document.
	docEdges map[edgeKey]struct{}
}

func newBuilder(owner string) *builder {
	return &builder{
		owner: owner,
		nodes: map[string]*common.GraphNode{},
	}
}

func (b *builder) result() ([]common.GraphNode, []common.GraphEdge) {
	nodes := make([]common.GraphNode, 0, len(b.order))
	for _, id := range b.order {
		nodes = append(nodes, *b.nodes[id])
	}
	return nodes, b.edges
}

// addDocument materializes one document. It reports false when the
// document's extracted data could not be parsed; the document node is still
// created in that case.
func (b *builder) addDocument(doc common.Document) bool {
	b.docEdges = map[edgeKey]struct{}{}

	props := common.DocumentProps{Filename: doc.Filename, CreatedAt: doc.CreatedAt}
	data, err := common.ParseExtractedData(doc.ExtractedJSON)
	if err != nil {
		logger.Warn("[Graph] Malformed extracted data, keeping bare document node",
			"owner", b.owner, "document", doc.ID, "err", err)
		b.documentNode(doc, props)
		return false
	}
	if data != nil {
		enrichDocumentProps(&props, data)
	}
	b.documentNode(doc, props)
	if data == nil {
		return true
	}

	if len(data.Relationships) > 0 {
		b.linkRelationships(doc, data)
	}
	b.linkFields(doc, data)
	return true
}

func enrichDocumentProps(props *common.DocumentProps, data *common.ExtractedData) {
	if data.DetailedSummary != nil {
		props.Summary = *data.DetailedSummary
	}
	props.Priority = data.PriorityScore
	if len(data.Dates) > 0 {
		props.Date = data.Dates[0].Date
	}
	if len(data.Amounts) > 0 {
		props.Value = data.Amounts[0].Value
		props.Currency = data.Amounts[0].Currency
	}
}

func (b *builder) documentNode(doc common.Document, props common.DocumentProps) {
	label := doc.Filename
	if label == "" {
		label = doc.ID
	}
	owner := doc.OwnerID
	if owner == "" {
		owner = b.owner
	}
	b.putNode(doc.ID, &owner, label, common.NodeTypeDocument, props)
}

// entity creates or reuses the node for (type, name) and returns its id.
// Names without identity yield "".
func (b *builder) entity(typ, name string, props common.NodeProps) string {
	id := normalize.NodeID(b.owner, typ, name)
	if id == "" {
		return ""
	}
	owner := b.owner
	b.putNode(id, &owner, strings.TrimSpace(name), typ, props)
	return id
}

// putNode keeps the first label seen for an id and fills in properties the
// existing node does not have yet.
func (b *builder) putNode(id string, owner *string, label, typ string, props common.NodeProps) {
	m := props.Map()
	if n, ok := b.nodes[id]; ok {
		for k, v := range m {
			if _, exists := n.Properties[k]; !exists {
				n.Properties[k] = v
			}
		}
		return
	}
	b.nodes[id] = &common.GraphNode{
		ID:         id,
		OwnerID:    owner,
		Label:      label,
		Type:       typ,
		Properties: m,
	}
	b.order = append(b.order, id)
}

func (b *builder) edge(source, target, relation string) {
	if source == "" || target == "" || source == target {
		return
	}
	k := edgeKey{source, target, relation}
	if _, ok := b.docEdges[k]; ok {
		return
	}
	b.docEdges[k] = struct{}{}
	b.edges = append(b.edges, common.GraphEdge{Source: source, Target: target, Relation: relation})
}

// linkRelationships handles explicit relationship mode: both endpoints are
// classified, linked by the relation and mentioned by the document.
func (b *builder) linkRelationships(doc common.Document, data *common.ExtractedData) {
	chain := classifierChain(doc, data)
	for _, rel := range data.Relationships {
		source := b.endpoint(doc, chain, rel.Source)
		target := b.endpoint(doc, chain, rel.Target)
		if source == "" || target == "" {
			continue
		}
		b.edge(source, target, normalize.Relation(rel.Relation))
		b.edge(doc.ID, source, common.RelationMentions)
		b.edge(doc.ID, target, common.RelationMentions)
	}
}

func (b *builder) endpoint(doc common.Document, chain []classifier, name string) string {
	if strings.TrimSpace(name) == "" {
		return ""
	}
	c := classify(chain, name)
	if c.Type == common.NodeTypeDocument {
		return doc.ID
	}
	if c.Name != "" {
		name = c.Name
	}
	return b.entity(c.Type, name, c.Props)
}

// linkFields is the fallback linking pass over the structured fields. It
// runs for every document, with or without explicit relationships.
func (b *builder) linkFields(doc common.Document, data *common.ExtractedData) {
	issuer := ""
	if data.Issuer != nil {
		issuer = *data.Issuer
		b.edge(doc.ID, b.entity(common.NodeTypeIssuer, issuer, common.NoProps{}), common.RelationIssuedBy)
	}
	if data.Category != nil {
		b.edge(doc.ID, b.entity(common.NodeTypeCategory, *data.Category, common.NoProps{}), common.RelationInCategory)
	}
	for _, tag := range data.Tags {
		b.edge(doc.ID, b.entity(common.NodeTypeTag, tag, common.NoProps{}), common.RelationTagged)
	}
	for _, p := range data.People {
		b.edge(doc.ID, b.person(p), common.RelationMentions)
	}

	issuerKey := normalize.Name(issuer)
	for _, o := range data.Organizations {
		if issuerKey != "" && normalize.Name(o.Name) == issuerKey {
			continue
		}
		id := b.entity(common.NodeTypeOrganization, o.Name, common.OrgProps{Type: o.Type, Description: o.Description})
		b.edge(doc.ID, id, common.RelationMentions)
	}
	for _, r := range data.Roles {
		id := b.entity(common.NodeTypeRole, r.Name, common.RoleProps{Description: r.Description})
		b.edge(doc.ID, id, common.RelationMentions)
	}
	for _, l := range data.Locations {
		id := b.entity(common.NodeTypeLocation, l.Name, common.LocationProps{Type: l.Type})
		b.edge(doc.ID, id, common.RelationLocatedAt)
	}
	for _, c := range data.CustomEntities {
		id := b.entity(customType(c.Type), c.Name, customProps(c))
		b.edge(doc.ID, id, common.RelationMentions)
	}
}

// person creates a person node, or a role node when the name looks like a
// department or function rather than an individual.
func (b *builder) person(p common.Person) string {
	if normalize.IsLikelyPerson(p.Name) {
		return b.entity(common.NodeTypePerson, p.Name, common.PersonProps{Role: p.Role, Description: p.Description})
	}
	return b.entity(common.NodeTypeRole, p.Name, common.RoleProps{Description: p.Description})
}

func customType(declared string) string {
	t := strings.ToLower(strings.TrimSpace(declared))
	if t == "" {
		return common.NodeTypeEntity
	}
	return t
}

func customProps(c common.CustomEntity) common.NodeProps {
	props := common.EntityProps{}
	if c.Description != "" {
		props["description"] = c.Description
	}
	return props
}

package graph

import (
	"strings"

	"github.com/papertrail-ai/papertrail/backend/pkg/common"
	"github.com/papertrail-ai/papertrail/backend/pkg/normalize"
)

// classification is the inferred type of a relationship endpoint. Name is
// the matched extracted entry's spelling, empty when nothing matched.
type classification struct {
	Type  string
	Name  string
	Props common.NodeProps
}

// classifier inspects one source of type evidence. The first classifier
// that matches decides the endpoint type.
type classifier struct {
	name  string
	match func(name string) (classification, bool)
}

// classifierChain returns the ordered classifiers for a document's explicit
// relationships: people, organizations, roles, custom entities, the
// document's own filename, then a name-shape fallback.
func classifierChain(doc common.Document, data *common.ExtractedData) []classifier {
	return []classifier{
		{name: "people", match: func(name string) (classification, bool) {
			for _, p := range data.People {
				if sameName(p.Name, name) {
					if normalize.IsLikelyPerson(p.Name) {
						return classification{Type: common.NodeTypePerson, Name: p.Name, Props: common.PersonProps{Role: p.Role, Description: p.Description}}, true
					}
					return classification{Type: common.NodeTypeRole, Name: p.Name, Props: common.RoleProps{Description: p.Description}}, true
				}
			}
			return classification{}, false
		}},
		{name: "organizations", match: func(name string) (classification, bool) {
			for _, o := range data.Organizations {
				if sameName(o.Name, name) {
					return classification{Type: common.NodeTypeOrganization, Name: o.Name, Props: common.OrgProps{Type: o.Type, Description: o.Description}}, true
				}
			}
			return classification{}, false
		}},
		{name: "roles", match: func(name string) (classification, bool) {
			for _, r := range data.Roles {
				if sameName(r.Name, name) {
					return classification{Type: common.NodeTypeRole, Name: r.Name, Props: common.RoleProps{Description: r.Description}}, true
				}
			}
			return classification{}, false
		}},
		{name: "custom_entities", match: func(name string) (classification, bool) {
			for _, c := range data.CustomEntities {
				if sameName(c.Name, name) {
					return classification{Type: customType(c.Type), Name: c.Name, Props: customProps(c)}, true
				}
			}
			return classification{}, false
		}},
		{name: "filename", match: func(name string) (classification, bool) {
			if doc.Filename != "" && sameName(doc.Filename, name) {
				return classification{Type: common.NodeTypeDocument, Props: common.NoProps{}}, true
			}
			return classification{}, false
		}},
		{name: "fallback", match: func(name string) (classification, bool) {
			if !normalize.IsLikelyPerson(name) {
				return classification{Type: common.NodeTypeOrganization, Props: common.NoProps{}}, true
			}
			return classification{Type: common.NodeTypeEntity, Props: common.NoProps{}}, true
		}},
	}
}

func classify(chain []classifier, name string) classification {
	for _, c := range chain {
		if got, ok := c.match(name); ok {
			return got
		}
	}
	return classification{Type: common.NodeTypeEntity, Props: common.NoProps{}}
}

func sameName(a, b string) bool {
	return strings.EqualFold(strings.TrimSpace(a), strings.TrimSpace(b))
}

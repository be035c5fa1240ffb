package template

import (
	"sort"

	"strata-backend/internal/metadata"
)

// Doc is the portable catalog document. Cross-references use slugs only so a
// template applies cleanly to a tenant with fresh identifiers.
type Doc struct {
	Name       string      `json:"name,omitempty"`
	Entities   []EntityDef `json:"entities"`
	Navigation Navigation  `json:"navigation"`
	Actions    []ActionDef `json:"actions"`
	Trails     []TrailDef  `json:"trails"`
}

type EntityDef struct {
	Slug        string         `json:"slug"`
	DisplayName string         `json:"display_name"`
	Icon        string         `json:"icon,omitempty"`
	Layout      map[string]any `json:"layout,omitempty"`
	Storage     string         `json:"storage"`
	Fields      []FieldDef     `json:"fields"`
}

type FieldDef struct {
	Name      string                `json:"name"`
	Label     string                `json:"label"`
	Type      string                `json:"type"`
	Required  bool                  `json:"required,omitempty"`
	Options   metadata.FieldOptions `json:"options,omitempty"`
	Formula   string                `json:"formula,omitempty"`
	IsVirtual bool                  `json:"is_virtual,omitempty"`
	Position  int                   `json:"position"`
}

type Navigation struct {
	Groups []GroupDef `json:"groups"`
}

type GroupDef struct {
	Name     string    `json:"name"`
	Icon     string    `json:"icon,omitempty"`
	Position int       `json:"position"`
	Pages    []PageDef `json:"pages"`
}

type PageDef struct {
	Name          string             `json:"name"`
	EntitySlug    string             `json:"entity_slug,omitempty"`
	Layout        map[string]any     `json:"layout,omitempty"`
	Subpages      []metadata.Subpage `json:"subpages,omitempty"`
	DefaultDetail string             `json:"default_detail,omitempty"`
	DefaultForm   string             `json:"default_form,omitempty"`
	Position      int                `json:"position"`
}

type ActionDef struct {
	Name           string         `json:"name"`
	TriggerSource  string         `json:"trigger_source"`
	TriggerContext string         `json:"trigger_context,omitempty"`
	ActionType     string         `json:"action_type"`
	Config         map[string]any `json:"config,omitempty"`
}

type TrailDef struct {
	Name      string                   `json:"name"`
	Active    bool                     `json:"active"`
	Trigger   metadata.TrailTrigger    `json:"trigger"`
	Nodes     metadata.NodeMap         `json:"nodes"`
	Variables []metadata.TrailVariable `json:"variables,omitempty"`
}

// fromRegistry builds a Doc from a tenant's loaded catalog. Collections are
// sorted so repeated snapshots of an unchanged tenant are byte-identical.
func fromRegistry(reg *metadata.Registry) *Doc {
	doc := &Doc{
		Entities: []EntityDef{},
		Actions:  []ActionDef{},
		Trails:   []TrailDef{},
	}
	doc.Navigation.Groups = []GroupDef{}

	entities := reg.AllEntities()
	sort.Slice(entities, func(i, j int) bool { return entities[i].Slug < entities[j].Slug })
	for _, e := range entities {
		def := EntityDef{
			Slug:        e.Slug,
			DisplayName: e.DisplayName,
			Icon:        e.Icon,
			Layout:      e.Layout,
			Storage:     e.Storage,
			Fields:      []FieldDef{},
		}
		for _, f := range e.Fields {
			def.Fields = append(def.Fields, FieldDef{
				Name:      f.Name,
				Label:     f.Label,
				Type:      f.Type,
				Required:  f.Required,
				Options:   f.Options,
				Formula:   f.Formula,
				IsVirtual: f.IsVirtual,
				Position:  f.Position,
			})
		}
		doc.Entities = append(doc.Entities, def)
	}

	groups, pages := reg.Navigation()
	for _, g := range groups {
		groupDef := GroupDef{Name: g.Name, Icon: g.Icon, Position: g.Position, Pages: []PageDef{}}
		for _, p := range pages {
			if p.GroupID != g.ID {
				continue
			}
			pageDef := PageDef{
				Name:          p.Name,
				Layout:        p.Layout,
				Subpages:      p.Subpages,
				DefaultDetail: p.DefaultDetail,
				DefaultForm:   p.DefaultForm,
				Position:      p.Position,
			}
			if p.EntityID != "" {
				if target := reg.GetEntityByID(p.EntityID); target != nil {
					pageDef.EntitySlug = target.Slug
				}
			}
			groupDef.Pages = append(groupDef.Pages, pageDef)
		}
		doc.Navigation.Groups = append(doc.Navigation.Groups, groupDef)
	}

	actions := reg.AllActions()
	sort.Slice(actions, func(i, j int) bool { return actions[i].Name < actions[j].Name })
	for _, a := range actions {
		doc.Actions = append(doc.Actions, ActionDef{
			Name:           a.Name,
			TriggerSource:  a.TriggerSource,
			TriggerContext: a.TriggerContext,
			ActionType:     a.ActionType,
			Config:         a.Config,
		})
	}

	trails := reg.AllTrails()
	sort.Slice(trails, func(i, j int) bool { return trails[i].Name < trails[j].Name })
	for _, t := range trails {
		doc.Trails = append(doc.Trails, TrailDef{
			Name:      t.Name,
			Active:    t.Active,
			Trigger:   t.Trigger,
			Nodes:     t.Nodes,
			Variables: t.Variables,
		})
	}

	return doc
}

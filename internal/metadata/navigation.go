package metadata

// Subpage kinds.
const (
	SubpageForm      = "form"
	SubpageDetail360 = "detail_360"
	SubpageRelated   = "related"
)

type NavGroup struct {
	ID       string `json:"id"`
	Tenant   string `json:"tenant"`
	Name     string `json:"name"`
	Icon     string `json:"icon,omitempty"`
	Position int    `json:"position"`
}

// NavPage references an entity by catalog id. EntityID is empty when the
// referenced entity was deleted; readers must treat that as a dangling link,
// not an error.
type NavPage struct {
	ID            string         `json:"id"`
	Tenant        string         `json:"tenant"`
	GroupID       string         `json:"group_id"`
	Name          string         `json:"name"`
	EntityID      string         `json:"entity_id,omitempty"`
	Layout        map[string]any `json:"layout,omitempty"`
	Subpages      []Subpage      `json:"subpages,omitempty"`
	DefaultDetail string         `json:"default_detail,omitempty"`
	DefaultForm   string         `json:"default_form,omitempty"`
	Position      int            `json:"position"`
}

type Subpage struct {
	ID     string         `json:"id"`
	Kind   string         `json:"kind"` // form | detail_360 | related
	Name   string         `json:"name"`
	Config map[string]any `json:"config,omitempty"`
}

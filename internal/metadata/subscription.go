package metadata

// Event kinds an automation subscription can bind to.
const (
	EventOnCreate = "ON_CREATE"
	EventOnUpdate = "ON_UPDATE"
	EventOnDelete = "ON_DELETE"
)

// Subscription binds (entity, event kind) to either an external webhook URL
// or an internal trail. Condition is an optional expr-lang expression over
// the event envelope; a subscription without one always fires.
type Subscription struct {
	ID         string `json:"id"`
	Tenant     string `json:"tenant"`
	EntityID   string `json:"entity_id"`
	EntitySlug string `json:"entity_slug"`
	EventKind  string `json:"event_kind"`
	TargetURL  string `json:"target_url,omitempty"`
	TrailID    string `json:"trail_id,omitempty"`
	Condition  string `json:"condition,omitempty"`
	Active     bool   `json:"active"`

	// Compiled caches the expr program for Condition.
	Compiled any `json:"-"`
}

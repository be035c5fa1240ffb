package metadata

import "sync"

// Registry is the in-memory view of one tenant's catalog.
type Registry struct {
	mu            sync.RWMutex
	tenant        string
	entities      map[string]*Entity // by slug
	entitiesByID  map[string]*Entity
	groups        []*NavGroup
	pages         []*NavPage
	actions       map[string]*Action // by id
	actionsByHook map[string]*Action // by virtual hook key
	trails        map[string]*Trail  // by id
	subs          map[string][]*Subscription // by entity slug + "|" + event kind
}

func NewRegistry(tenant string) *Registry {
	return &Registry{
		tenant:        tenant,
		entities:      make(map[string]*Entity),
		entitiesByID:  make(map[string]*Entity),
		actions:       make(map[string]*Action),
		actionsByHook: make(map[string]*Action),
		trails:        make(map[string]*Trail),
		subs:          make(map[string][]*Subscription),
	}
}

func (r *Registry) Tenant() string { return r.tenant }

// GetEntity returns the entity with the given slug, or nil.
func (r *Registry) GetEntity(slug string) *Entity {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.entities[slug]
}

// GetEntityByID returns the entity with the given catalog id, or nil.
func (r *Registry) GetEntityByID(id string) *Entity {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.entitiesByID[id]
}

// AllEntities returns all entities for the tenant.
func (r *Registry) AllEntities() []*Entity {
	r.mu.RLock()
	defer r.mu.RUnlock()
	entities := make([]*Entity, 0, len(r.entities))
	for _, e := range r.entities {
		entities = append(entities, e)
	}
	return entities
}

// GetAction returns an action by id, or nil.
func (r *Registry) GetAction(id string) *Action {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.actions[id]
}

// GetActionByHook returns the VIRTUAL_HOOK action bound to the given key.
func (r *Registry) GetActionByHook(key string) *Action {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.actionsByHook[key]
}

// AllActions returns all actions for the tenant.
func (r *Registry) AllActions() []*Action {
	r.mu.RLock()
	defer r.mu.RUnlock()
	actions := make([]*Action, 0, len(r.actions))
	for _, a := range r.actions {
		actions = append(actions, a)
	}
	return actions
}

// GetTrail returns a trail by id, or nil.
func (r *Registry) GetTrail(id string) *Trail {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.trails[id]
}

// AllTrails returns all trails for the tenant.
func (r *Registry) AllTrails() []*Trail {
	r.mu.RLock()
	defer r.mu.RUnlock()
	trails := make([]*Trail, 0, len(r.trails))
	for _, t := range r.trails {
		trails = append(trails, t)
	}
	return trails
}

// GetSubscriptions returns the active subscriptions for (entity slug, kind).
func (r *Registry) GetSubscriptions(entitySlug, eventKind string) []*Subscription {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var active []*Subscription
	for _, s := range r.subs[entitySlug+"|"+eventKind] {
		if s.Active {
			active = append(active, s)
		}
	}
	return active
}

// Navigation returns the tenant's groups and pages.
func (r *Registry) Navigation() ([]*NavGroup, []*NavPage) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.groups, r.pages
}

// Load replaces the registry contents. Called after the loader reads the
// catalog and after any catalog mutation.
func (r *Registry) Load(entities []*Entity, groups []*NavGroup, pages []*NavPage,
	actions []*Action, trails []*Trail, subs []*Subscription) {

	r.mu.Lock()
	defer r.mu.Unlock()

	r.entities = make(map[string]*Entity, len(entities))
	r.entitiesByID = make(map[string]*Entity, len(entities))
	for _, e := range entities {
		r.entities[e.Slug] = e
		r.entitiesByID[e.ID] = e
	}

	r.groups = groups
	r.pages = pages

	r.actions = make(map[string]*Action, len(actions))
	r.actionsByHook = make(map[string]*Action)
	for _, a := range actions {
		r.actions[a.ID] = a
		if a.TriggerSource == TriggerVirtualHook && a.TriggerContext != "" {
			r.actionsByHook[a.TriggerContext] = a
		}
	}

	r.trails = make(map[string]*Trail, len(trails))
	for _, t := range trails {
		r.trails[t.ID] = t
	}

	r.subs = make(map[string][]*Subscription)
	for _, s := range subs {
		key := s.EntitySlug + "|" + s.EventKind
		r.subs[key] = append(r.subs[key], s)
	}
}

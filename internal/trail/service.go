package trail

import (
	"context"
	"log"

	"strata-backend/internal/apperr"
	"strata-backend/internal/metadata"
)

// Service resolves trails from the catalog and runs them.
type Service struct {
	runtime *Runtime
	catalog *metadata.Catalog
}

func NewService(runtime *Runtime, catalog *metadata.Catalog) *Service {
	return &Service{runtime: runtime, catalog: catalog}
}

// RunByID runs one trail by id against a trigger payload.
func (s *Service) RunByID(ctx context.Context, tenant, trailID string,
	trigger map[string]any, user *metadata.UserContext) (*Result, error) {

	reg, err := s.catalog.Tenant(ctx, tenant)
	if err != nil {
		return nil, err
	}
	t := reg.GetTrail(trailID)
	if t == nil {
		return nil, apperr.NotFound("trail", trailID)
	}
	return s.runtime.Run(ctx, tenant, t, trigger, user), nil
}

// InvokeTrail runs a trail from a dispatched event. Failures are logged; the
// event dispatcher never sees them.
func (s *Service) InvokeTrail(ctx context.Context, tenant, trailID string, envelope map[string]any) {
	var user *metadata.UserContext
	if actor, ok := envelope["actor"].(map[string]any); ok {
		id, _ := actor["id"].(string)
		email, _ := actor["email"].(string)
		user = &metadata.UserContext{ID: id, Login: email, Email: email}
	}

	result, err := s.RunByID(ctx, tenant, trailID, envelope, user)
	if err != nil {
		log.Printf("ERROR: trail %s dispatch: %v", trailID, err)
		return
	}
	if !result.Success {
		log.Printf("WARN: trail %s finished with status %s", trailID, result.Status)
	}
}

package service

import (
	"context"
	"fmt"
	"strconv"

	"github.com/netboxlabs/diode/internal/domain"
	"github.com/netboxlabs/diode/internal/repository"
)

// ValidationError marks a query problem the caller can fix
type ValidationError struct {
	Message string
}

func (e *ValidationError) Error() string {
	return e.Message
}

// ObjectStateQuery selects the entity to report. Either ID or Q must be set;
// Filters narrow a Q match by exact attribute values.
type ObjectStateQuery struct {
	ObjectType string
	ID         *int64
	Q          string
	Filters    map[string]string
}

// ObjectState is the reconciliation view of one entity
type ObjectState struct {
	ObjectType     string         `json:"object_type"`
	ObjectChangeID *int64         `json:"object_change_id"`
	Object         map[string]any `json:"object"`
}

// ObjectStateService answers reconciliation lookups against the store
type ObjectStateService struct {
	reg   *domain.Registry
	store repository.Reader
}

// NewObjectStateService creates a new object state service
func NewObjectStateService(reg *domain.Registry, store repository.Reader) *ObjectStateService {
	return &ObjectStateService{reg: reg, store: store}
}

// Get returns the current state of the entity the query selects, or nil when
// nothing matches. Bad queries come back as *ValidationError.
func (s *ObjectStateService) Get(ctx context.Context, q ObjectStateQuery) (*ObjectState, error) {
	if q.ObjectType == "" {
		return nil, &ValidationError{Message: "object_type parameter is required"}
	}
	desc, ok := s.reg.Get(q.ObjectType)
	if !ok {
		return nil, &ValidationError{Message: fmt.Sprintf("unsupported object_type %s", q.ObjectType)}
	}
	if q.ID == nil && q.Q == "" {
		return nil, &ValidationError{Message: "id or q parameter is required"}
	}

	filters, err := s.parseFilters(desc, q.Filters)
	if err != nil {
		return nil, err
	}

	var entity map[string]any
	if q.ID != nil {
		entity, err = s.store.GetByID(ctx, q.ObjectType, *q.ID)
		if err != nil {
			return nil, err
		}
		if entity != nil && !matchesFilters(entity, filters) {
			entity = nil
		}
	} else {
		entity, err = s.search(ctx, q.ObjectType, q.Q, filters)
		if err != nil {
			return nil, err
		}
	}
	if entity == nil {
		return nil, nil
	}

	id := entity["id"].(int64)
	changeID, err := s.store.LatestChangeID(ctx, q.ObjectType, id)
	if err != nil {
		return nil, err
	}

	state := &ObjectState{ObjectType: q.ObjectType, Object: entity}
	if changeID > 0 {
		state.ObjectChangeID = &changeID
	}
	return state, nil
}

// search returns the first indexed match for q that satisfies the filters
func (s *ObjectStateService) search(ctx context.Context, objectType, q string, filters map[string]any) (map[string]any, error) {
	ids, err := s.store.Search(ctx, objectType, q)
	if err != nil {
		return nil, err
	}
	for _, id := range ids {
		entity, err := s.store.GetByID(ctx, objectType, id)
		if err != nil {
			return nil, err
		}
		if entity == nil {
			continue
		}
		if matchesFilters(entity, filters) {
			return entity, nil
		}
	}
	return nil, nil
}

// parseFilters converts raw query-string filters to the field's stored type
func (s *ObjectStateService) parseFilters(desc *domain.Descriptor, raw map[string]string) (map[string]any, error) {
	if len(raw) == 0 {
		return nil, nil
	}

	filters := make(map[string]any, len(raw))
	for name, val := range raw {
		f, ok := desc.Field(name)
		if !ok {
			return nil, &ValidationError{Message: fmt.Sprintf("unknown filter %s for %s", name, desc.Type)}
		}
		switch f.Kind {
		case domain.KindString:
			filters[name] = val
		case domain.KindInt, domain.KindRef:
			n, err := strconv.ParseInt(val, 10, 64)
			if err != nil {
				return nil, &ValidationError{Message: fmt.Sprintf("filter %s must be an integer", name)}
			}
			filters[name] = n
		case domain.KindBool:
			b, err := strconv.ParseBool(val)
			if err != nil {
				return nil, &ValidationError{Message: fmt.Sprintf("filter %s must be a boolean", name)}
			}
			filters[name] = b
		}
	}
	return filters, nil
}

func matchesFilters(entity map[string]any, filters map[string]any) bool {
	for name, want := range filters {
		if entity[name] != want {
			return false
		}
	}
	return true
}

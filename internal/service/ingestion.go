package service

import (
	"context"

	"github.com/netboxlabs/diode/internal/changeset"
)

// IngestionService applies producer change sets and publishes the outcome
type IngestionService struct {
	applier  *changeset.Applier
	eventBus *EventBus
}

// NewIngestionService creates a new ingestion service
func NewIngestionService(applier *changeset.Applier, eventBus *EventBus) *IngestionService {
	return &IngestionService{
		applier:  applier,
		eventBus: eventBus,
	}
}

// ApplyChangeSet applies a change set atomically. Content problems come back
// inside the result; an error return means the attempt itself broke.
func (s *IngestionService) ApplyChangeSet(ctx context.Context, cs *changeset.ChangeSet) (*changeset.Result, error) {
	result, err := s.applier.Apply(ctx, cs)
	if err != nil {
		return nil, err
	}

	eventType := EventChangeSetApplied
	if result.Result != changeset.ResultSuccess {
		eventType = EventChangeSetFailed
	}
	s.eventBus.Publish(Event{
		Type: eventType,
		Payload: map[string]any{
			"change_set_id": result.ChangeSetID,
			"changes":       len(cs.ChangeSet),
		},
	})

	return result, nil
}

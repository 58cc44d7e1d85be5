// Package changeset implements the change-set application engine: envelope
// validation, soft-reference resolution and the all-or-nothing transaction
// that applies a batch of entity mutations against the repository.
package changeset

import (
	"fmt"

	"github.com/google/uuid"

	"github.com/netboxlabs/diode/internal/domain"
)

// ChangeSet is one atomic batch of requested mutations
type ChangeSet struct {
	ChangeSetID string   `json:"change_set_id"`
	ChangeSet   []Change `json:"change_set"`
}

// Change is one requested create or update
type Change struct {
	ChangeID   string         `json:"change_id"`
	ChangeType string         `json:"change_type"`
	ObjectType string         `json:"object_type"`
	ObjectID   *int64         `json:"object_id,omitempty"`
	Data       map[string]any `json:"data"`
}

// Validate checks the envelope shape against the supported-type registry.
// Every violation yields its own error entry, tagged with the originating
// change id when one exists.
func (cs *ChangeSet) Validate(reg *domain.Registry) []ChangeError {
	var errs []ChangeError

	if _, err := uuid.Parse(cs.ChangeSetID); err != nil {
		errs = append(errs, ChangeError{
			Fields: FieldErrors{"change_set_id": "change_set_id must be a valid UUID"},
		})
	}

	if len(cs.ChangeSet) == 0 {
		errs = append(errs, ChangeError{
			Fields: FieldErrors{"change_set": "change_set must not be empty"},
		})
	}

	for _, c := range cs.ChangeSet {
		fields := FieldErrors{}

		if _, err := uuid.Parse(c.ChangeID); err != nil {
			fields["change_id"] = "change_id must be a valid UUID"
		}

		switch c.ChangeType {
		case domain.ChangeTypeCreate, domain.ChangeTypeUpdate:
		case "":
			fields["change_type"] = "change_type is required"
		default:
			fields["change_type"] = fmt.Sprintf("unsupported change_type %s", c.ChangeType)
		}

		if c.ObjectType == "" {
			fields["object_type"] = "object_type is required"
		} else if _, ok := reg.Get(c.ObjectType); !ok {
			fields["object_type"] = fmt.Sprintf("unsupported object_type %s", c.ObjectType)
		}

		if len(c.Data) == 0 {
			fields["data"] = "data must not be empty"
		}

		if len(fields) > 0 {
			errs = append(errs, ChangeError{ChangeID: c.ChangeID, Fields: fields})
		}
	}

	return errs
}

package changeset

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/netboxlabs/diode/internal/domain"
	"github.com/netboxlabs/diode/internal/repository"
)

// Result statuses on the wire
const (
	ResultSuccess = "success"
	ResultFailed  = "failed"
)

// Result is the outcome of applying one change set
type Result struct {
	ChangeSetID string        `json:"change_set_id"`
	Result      string        `json:"result"`
	Errors      []ChangeError `json:"errors,omitempty"`
}

// Applier applies change sets atomically against the store
type Applier struct {
	reg   *domain.Registry
	store repository.Store
}

// NewApplier returns an applier over the given store
func NewApplier(reg *domain.Registry, store repository.Store) *Applier {
	return &Applier{reg: reg, store: store}
}

// Apply validates and applies a change set inside one transaction. Every
// change is attempted so the caller sees all problems at once; any failure
// rolls the whole batch back. A non-nil error is an infrastructure fault, not
// a content problem.
func (a *Applier) Apply(ctx context.Context, cs *ChangeSet) (*Result, error) {
	if errs := cs.Validate(a.reg); len(errs) > 0 {
		return &Result{ChangeSetID: cs.ChangeSetID, Result: ResultFailed, Errors: errs}, nil
	}

	tx, err := a.store.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	validator := NewValidator(a.reg, tx)
	resolver := NewResolver(a.reg, tx)

	var errs []ChangeError

	data, assignErrs, err := a.resolveAssignments(ctx, resolver, cs)
	if err != nil {
		return nil, err
	}
	errs = append(errs, assignErrs...)

	for i, c := range cs.ChangeSet {
		if data[i] == nil {
			continue
		}

		fieldErrs, err := a.applyChange(ctx, validator, resolver, c, data[i])
		if err != nil {
			return nil, fmt.Errorf("failed to apply change %s: %w", c.ChangeID, err)
		}
		if len(fieldErrs) > 0 {
			errs = append(errs, ChangeError{ChangeID: c.ChangeID, Fields: fieldErrs})
		}
	}

	if len(errs) > 0 {
		return &Result{ChangeSetID: cs.ChangeSetID, Result: ResultFailed, Errors: errs}, nil
	}

	if err := tx.Commit(); err != nil {
		return &Result{
			ChangeSetID: cs.ChangeSetID,
			Result:      ResultFailed,
			Errors: []ChangeError{{
				Fields: FieldErrors{"change_set": fmt.Sprintf("failed to commit change set: %v", err)},
			}},
		}, nil
	}

	return &Result{ChangeSetID: cs.ChangeSetID, Result: ResultSuccess}, nil
}

func (a *Applier) applyChange(ctx context.Context, validator *Validator, resolver *Resolver, c Change, data map[string]any) (FieldErrors, error) {
	switch c.ChangeType {
	case domain.ChangeTypeCreate:
		_, fieldErrs, err := validator.Create(ctx, c.ObjectType, data)
		return fieldErrs, err

	case domain.ChangeTypeUpdate:
		if c.ObjectID != nil {
			return validator.Update(ctx, c.ObjectType, *c.ObjectID, data)
		}
		if c.ObjectType == domain.DeviceObjectType && hasPrimaryIPHint(data) {
			deviceID, payload, err := resolver.ResolveDevicePrimaryIP(ctx, data)
			if errors.Is(err, ErrPrimaryIPNotFound) {
				return FieldErrors{"primary_ip": ErrPrimaryIPNotFound.Error()}, nil
			}
			if err != nil {
				return nil, err
			}
			return validator.Update(ctx, c.ObjectType, deviceID, payload)
		}
		return FieldErrors{"object_id": "object_id parameter is required"}, nil

	default:
		return FieldErrors{"change_type": fmt.Sprintf("unsupported change_type %s", c.ChangeType)}, nil
	}
}

// resolveAssignments resolves assigned_object payloads before staging, so an
// identical assignment shared by several IP changes is resolved once. The
// returned slice carries each change's effective data, nil where the change
// already failed.
func (a *Applier) resolveAssignments(ctx context.Context, resolver *Resolver, cs *ChangeSet) ([]map[string]any, []ChangeError, error) {
	data := make([]map[string]any, len(cs.ChangeSet))

	type assignment struct {
		assigned *AssignedObject
		message  string
	}
	cache := make(map[string]assignment)

	var errs []ChangeError
	for i, c := range cs.ChangeSet {
		data[i] = c.Data

		if c.ObjectType != domain.IPAddressObjectType {
			continue
		}
		rawValue, present := c.Data["assigned_object"]
		if !present {
			continue
		}
		raw, ok := rawValue.(map[string]any)
		if !ok {
			errs = append(errs, ChangeError{ChangeID: c.ChangeID, Fields: FieldErrors{"assigned_object": "assigned_object must be an object"}})
			data[i] = nil
			continue
		}

		key := assignmentKey(raw)
		got, cached := cache[key]
		if !cached {
			assigned, err := resolver.ResolveAssignedObject(ctx, raw)
			if err != nil {
				var resErr *ResolutionError
				if !errors.As(err, &resErr) {
					return nil, nil, err
				}
				got = assignment{message: resErr.Message}
			} else {
				got = assignment{assigned: assigned}
			}
			cache[key] = got
		}

		if got.assigned == nil {
			errs = append(errs, ChangeError{ChangeID: c.ChangeID, Fields: FieldErrors{"assigned_object": got.message}})
			data[i] = nil
			continue
		}

		fields := make(map[string]any, len(c.Data)+1)
		for name, val := range c.Data {
			if name == "assigned_object" {
				continue
			}
			fields[name] = val
		}
		fields["assigned_object_type"] = got.assigned.ObjectType
		fields["assigned_object_id"] = got.assigned.ObjectID
		data[i] = fields
	}

	return data, errs, nil
}

func hasPrimaryIPHint(data map[string]any) bool {
	for _, field := range primaryIPFields {
		if _, ok := data[field].(map[string]any); ok {
			return true
		}
	}
	return false
}

// assignmentKey canonicalizes an assigned_object payload for deduplication.
// json.Marshal sorts map keys, so equal payloads share a key.
func assignmentKey(raw map[string]any) string {
	b, err := json.Marshal(raw)
	if err != nil {
		return fmt.Sprintf("%v", raw)
	}
	return string(b)
}

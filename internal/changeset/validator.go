package changeset

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/netboxlabs/diode/internal/domain"
	"github.com/netboxlabs/diode/internal/repository"
)

// Validator checks and persists individual changes inside one transaction.
// Field-level problems come back as FieldErrors; a non-nil error return is an
// infrastructure fault that should abort the whole batch.
type Validator struct {
	reg      *domain.Registry
	tx       repository.Tx
	resolver *Resolver
}

// NewValidator builds a validator whose reads and writes go through tx
func NewValidator(reg *domain.Registry, tx repository.Tx) *Validator {
	return &Validator{reg: reg, tx: tx, resolver: NewResolver(reg, tx)}
}

// Create validates data and inserts a new entity, returning its id
func (v *Validator) Create(ctx context.Context, objectType string, data map[string]any) (int64, FieldErrors, error) {
	desc, ok := v.reg.Get(objectType)
	if !ok {
		return 0, nil, fmt.Errorf("unsupported object type %s", objectType)
	}

	fields, fieldErrs, err := v.clean(ctx, desc, data)
	if err != nil {
		return 0, nil, err
	}
	if len(fieldErrs) > 0 {
		return 0, fieldErrs, nil
	}

	v.applyDefaults(desc, fields)

	if errs := v.checkRequired(desc, fields); len(errs) > 0 {
		return 0, errs, nil
	}
	errs, err := v.checkUnique(ctx, desc, fields, 0)
	if err != nil {
		return 0, nil, err
	}
	if len(errs) > 0 {
		return 0, errs, nil
	}

	id, err := v.tx.Insert(ctx, objectType, fields)
	if errors.Is(err, repository.ErrUniqueViolation) {
		return 0, FieldErrors{desc.Display: fmt.Sprintf("%s violates a unique constraint", shortTypeName(objectType))}, nil
	}
	if err != nil {
		return 0, nil, err
	}
	return id, nil, nil
}

// Update validates data against the stored entity and overwrites it
func (v *Validator) Update(ctx context.Context, objectType string, id int64, data map[string]any) (FieldErrors, error) {
	desc, ok := v.reg.Get(objectType)
	if !ok {
		return nil, fmt.Errorf("unsupported object type %s", objectType)
	}

	existing, err := v.tx.GetByID(ctx, objectType, id)
	if err != nil {
		return nil, err
	}
	if existing == nil {
		return FieldErrors{"object_id": fmt.Sprintf("object with id %d does not exist", id)}, nil
	}

	fields, fieldErrs, err := v.clean(ctx, desc, data)
	if err != nil {
		return nil, err
	}
	if len(fieldErrs) > 0 {
		return fieldErrs, nil
	}

	// Stored values fill in whatever the update omits, so required and
	// uniqueness checks see the entity as it will be after the write.
	merged := make(map[string]any, len(existing)+len(fields))
	for name, val := range existing {
		if name == "id" {
			continue
		}
		merged[name] = val
	}
	for name, val := range fields {
		merged[name] = val
	}

	if errs := v.checkRequired(desc, merged); len(errs) > 0 {
		return errs, nil
	}
	errs, err := v.checkUnique(ctx, desc, merged, id)
	if err != nil {
		return nil, err
	}
	if len(errs) > 0 {
		return errs, nil
	}

	if err := v.tx.Update(ctx, objectType, id, merged); err != nil {
		if errors.Is(err, repository.ErrUniqueViolation) {
			return FieldErrors{desc.Display: fmt.Sprintf("%s violates a unique constraint", shortTypeName(objectType))}, nil
		}
		return nil, err
	}
	return nil, nil
}

// clean type-checks the incoming data and resolves reference fields to ids.
// Fields the descriptor does not know are ignored.
func (v *Validator) clean(ctx context.Context, desc *domain.Descriptor, data map[string]any) (map[string]any, FieldErrors, error) {
	fields := make(map[string]any, len(data))
	fieldErrs := FieldErrors{}

	for _, f := range desc.Fields {
		raw, present := data[f.Name]
		if !present || raw == nil {
			continue
		}

		switch f.Kind {
		case domain.KindString:
			s, ok := raw.(string)
			if !ok {
				fieldErrs[f.Name] = "value must be a string"
				continue
			}
			fields[f.Name] = s
		case domain.KindInt:
			n, ok := asInt64(raw)
			if !ok {
				fieldErrs[f.Name] = "value must be an integer"
				continue
			}
			fields[f.Name] = n
		case domain.KindBool:
			b, ok := raw.(bool)
			if !ok {
				fieldErrs[f.Name] = "value must be a boolean"
				continue
			}
			fields[f.Name] = b
		case domain.KindRef:
			id, msg, err := v.resolveField(ctx, f, raw)
			if err != nil {
				return nil, nil, err
			}
			if msg != "" {
				fieldErrs[f.Name] = msg
				continue
			}
			fields[f.Name] = id
		}
	}

	return fields, fieldErrs, nil
}

// resolveField turns one reference value into an id, cascading a nested
// create when the referenced entity does not exist yet.
func (v *Validator) resolveField(ctx context.Context, f domain.Field, raw any) (int64, string, error) {
	attrs, isMap := raw.(map[string]any)
	if !isMap {
		id, ok := asInt64(raw)
		if !ok {
			return 0, "value must be an id or an object", nil
		}
		entity, err := v.tx.GetByID(ctx, f.Ref, id)
		if err != nil {
			return 0, "", err
		}
		if entity == nil {
			return 0, fmt.Sprintf("related object with id %d does not exist", id), nil
		}
		return id, "", nil
	}

	id, err := v.resolver.Resolve(ctx, f.Ref, attrs)
	if err == nil {
		return id, "", nil
	}

	var resErr *ResolutionError
	if !errors.As(err, &resErr) {
		return 0, "", err
	}
	if resErr.Kind != ResolutionNotFound {
		return 0, resErr.Message, nil
	}
	if _, hasID := attrs["id"]; hasID {
		return 0, resErr.Message, nil
	}

	// Unmatched natural key without an explicit id: create the referenced
	// entity as part of the same transaction.
	id, nestedErrs, err := v.Create(ctx, f.Ref, attrs)
	if err != nil {
		return 0, "", err
	}
	if len(nestedErrs) > 0 {
		return 0, composeNested(shortTypeName(f.Ref), nestedErrs), nil
	}
	return id, "", nil
}

// applyDefaults fills declared defaults and derives a slug from the display
// field when the type has a slug and the caller gave none.
func (v *Validator) applyDefaults(desc *domain.Descriptor, fields map[string]any) {
	for _, f := range desc.Fields {
		if f.Default == nil {
			continue
		}
		if _, present := fields[f.Name]; !present {
			fields[f.Name] = f.Default
		}
	}

	if _, hasSlugField := desc.Field("slug"); !hasSlugField {
		return
	}
	if _, present := fields["slug"]; present {
		return
	}
	if display, ok := fields[desc.Display].(string); ok && display != "" {
		fields["slug"] = domain.Slugify(display)
	}
}

func (v *Validator) checkRequired(desc *domain.Descriptor, fields map[string]any) FieldErrors {
	errs := FieldErrors{}
	for _, f := range desc.Fields {
		if !f.Required {
			continue
		}
		if val, present := fields[f.Name]; !present || val == nil || val == "" {
			errs[f.Name] = "this field is required"
		}
	}
	if len(errs) == 0 {
		return nil
	}
	return errs
}

// checkUnique pre-checks declared uniqueness constraints so collisions are
// reported as field errors rather than storage faults. selfID excludes the
// entity being updated from the match.
func (v *Validator) checkUnique(ctx context.Context, desc *domain.Descriptor, fields map[string]any, selfID int64) (FieldErrors, error) {
	for _, set := range desc.Unique {
		lookup := make(map[string]any, len(set))
		complete := true
		for _, name := range set {
			val, present := fields[name]
			if !present || val == nil {
				complete = false
				break
			}
			lookup[name] = val
		}
		if !complete {
			continue
		}

		matches, err := v.tx.FindByFields(ctx, desc.Type, lookup)
		if err != nil {
			return nil, err
		}
		for _, m := range matches {
			if id, ok := m["id"].(int64); ok && id == selfID {
				continue
			}
			return FieldErrors{set[0]: fmt.Sprintf("%s must make a unique set", strings.Join(set, ", "))}, nil
		}
	}
	return nil, nil
}

// composeNested flattens a referenced entity's field errors into one message
func composeNested(refName string, errs FieldErrors) string {
	names := make([]string, 0, len(errs))
	for name := range errs {
		names = append(names, name)
	}
	sort.Strings(names)

	parts := make([]string, len(names))
	for i, name := range names {
		parts[i] = fmt.Sprintf("%s: %s", name, errs[name])
	}
	return fmt.Sprintf("invalid %s: %s", refName, strings.Join(parts, "; "))
}

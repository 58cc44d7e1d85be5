package changeset

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/netboxlabs/diode/internal/domain"
	"github.com/netboxlabs/diode/internal/repository"
)

// maxResolveDepth bounds nested soft-reference chains, e.g. an interface
// reference carrying a device which carries a site.
const maxResolveDepth = 4

// Resolver turns soft references into persisted entity ids. A soft reference
// is either a numeric id or a map of identifying attributes matched against
// the target type's natural key.
type Resolver struct {
	reg    *domain.Registry
	reader repository.Reader
}

// NewResolver returns a resolver reading through the given reader. During
// change-set application the reader is the open transaction, so references
// resolve against entities created earlier in the same batch.
func NewResolver(reg *domain.Registry, reader repository.Reader) *Resolver {
	return &Resolver{reg: reg, reader: reader}
}

// Resolve returns the id of the entity identified by attrs. Failures are
// reported as *ResolutionError; any other error is an infrastructure fault.
func (r *Resolver) Resolve(ctx context.Context, objectType string, attrs map[string]any) (int64, error) {
	return r.resolve(ctx, objectType, attrs, 0)
}

func (r *Resolver) resolve(ctx context.Context, objectType string, attrs map[string]any, depth int) (int64, error) {
	if depth > maxResolveDepth {
		return 0, fmt.Errorf("reference nesting exceeds depth %d for %s", maxResolveDepth, objectType)
	}

	desc, ok := r.reg.Get(objectType)
	if !ok {
		return 0, fmt.Errorf("unsupported object type %s", objectType)
	}

	// An explicit id short-circuits natural-key matching but must still
	// point at a persisted entity.
	if raw, present := attrs["id"]; present {
		id, ok := asInt64(raw)
		if !ok {
			return 0, notFound(objectType, "%s id must be numeric", shortTypeName(objectType))
		}
		entity, err := r.reader.GetByID(ctx, objectType, id)
		if err != nil {
			return 0, err
		}
		if entity == nil {
			return 0, notFound(objectType, "%s with id %d does not exist", shortTypeName(objectType), id)
		}
		return id, nil
	}

	lookup := make(map[string]any, len(desc.NaturalKey))
	var missing []string
	for _, name := range desc.NaturalKey {
		f, _ := desc.Field(name)
		v, present := attrs[name]
		if !present || v == nil {
			missing = append(missing, name)
			continue
		}
		if f.Kind == domain.KindRef {
			switch rv := v.(type) {
			case map[string]any:
				refID, err := r.resolve(ctx, f.Ref, rv, depth+1)
				if err != nil {
					return 0, err
				}
				lookup[name] = refID
			default:
				id, ok := asInt64(rv)
				if !ok {
					return 0, notFound(objectType, "%s %s must be an id or an object", shortTypeName(objectType), name)
				}
				lookup[name] = id
			}
			continue
		}
		lookup[name] = v
	}

	if len(missing) > 0 {
		return 0, insufficient(objectType, "%s reference requires %s", shortTypeName(objectType), strings.Join(desc.NaturalKey, ", "))
	}

	matches, err := r.reader.FindByFields(ctx, objectType, lookup)
	if err != nil {
		return 0, err
	}
	switch len(matches) {
	case 0:
		return 0, notFound(objectType, "%s %s does not exist", shortTypeName(objectType), describeKey(lookup))
	case 1:
		return matches[0]["id"].(int64), nil
	default:
		return 0, ambiguous(objectType, "%s %s matches more than one object", shortTypeName(objectType), describeKey(lookup))
	}
}

// shortTypeName strips the app namespace: "dcim.site" becomes "site"
func shortTypeName(objectType string) string {
	if i := strings.IndexByte(objectType, '.'); i >= 0 {
		return objectType[i+1:]
	}
	return objectType
}

// describeKey renders a lookup map deterministically for error messages
func describeKey(lookup map[string]any) string {
	names := make([]string, 0, len(lookup))
	for name := range lookup {
		names = append(names, name)
	}
	sort.Strings(names)

	parts := make([]string, len(names))
	for i, name := range names {
		parts[i] = fmt.Sprintf("%s=%v", name, lookup[name])
	}
	return strings.Join(parts, " ")
}

// asInt64 coerces the numeric shapes JSON decoding produces into an id
func asInt64(v any) (int64, bool) {
	switch v := v.(type) {
	case int64:
		return v, true
	case int:
		return int64(v), true
	case float64:
		if v != float64(int64(v)) {
			return 0, false
		}
		return int64(v), true
	default:
		return 0, false
	}
}

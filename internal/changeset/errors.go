package changeset

import (
	"encoding/json"
	"fmt"
)

// FieldErrors maps a field name to the first error message reported for it
type FieldErrors map[string]string

// ChangeError is one structured failure entry in a failed change-set
// response. It marshals flat: the change id and the field messages share one
// JSON object, matching the wire shape consumed by producers.
type ChangeError struct {
	ChangeID string
	Fields   FieldErrors
}

// MarshalJSON flattens the entry into {"change_id": ..., "<field>": "<msg>"}.
// A validation message reported under change_id keeps the key; the
// correlation id must not displace it.
func (e ChangeError) MarshalJSON() ([]byte, error) {
	m := make(map[string]string, len(e.Fields)+1)
	for k, v := range e.Fields {
		m[k] = v
	}
	if _, taken := m["change_id"]; e.ChangeID != "" && !taken {
		m["change_id"] = e.ChangeID
	}
	return json.Marshal(m)
}

// ResolutionKind classifies a soft-reference resolution failure
type ResolutionKind string

const (
	// ResolutionNotFound means the reference matched no persisted entity
	ResolutionNotFound ResolutionKind = "not_found"

	// ResolutionAmbiguous means the natural key matched more than one entity
	ResolutionAmbiguous ResolutionKind = "ambiguous"

	// ResolutionInsufficient means the reference carried fewer identifying
	// attributes than the type's natural key requires
	ResolutionInsufficient ResolutionKind = "insufficient_attributes"
)

// ResolutionError is a typed soft-reference resolution failure
type ResolutionError struct {
	Kind       ResolutionKind
	ObjectType string
	Message    string
}

func (e *ResolutionError) Error() string {
	return e.Message
}

func notFound(objectType, format string, args ...any) *ResolutionError {
	return &ResolutionError{Kind: ResolutionNotFound, ObjectType: objectType, Message: fmt.Sprintf(format, args...)}
}

func ambiguous(objectType, format string, args ...any) *ResolutionError {
	return &ResolutionError{Kind: ResolutionAmbiguous, ObjectType: objectType, Message: fmt.Sprintf(format, args...)}
}

func insufficient(objectType, format string, args ...any) *ResolutionError {
	return &ResolutionError{Kind: ResolutionInsufficient, ObjectType: objectType, Message: fmt.Sprintf(format, args...)}
}

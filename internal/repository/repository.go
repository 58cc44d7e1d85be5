package repository

import (
	"context"
	"errors"
)

// ErrUniqueViolation is returned by Insert/Update when a storage-level
// uniqueness constraint rejects the write.
var ErrUniqueViolation = errors.New("unique constraint violation")

// Reader defines the read operations shared by the store and its
// transactions. Entities travel as field maps keyed by the descriptor field
// names, with "id" included; reference fields hold resolved numeric ids.
type Reader interface {
	// GetByID returns the entity's field map, or nil if the id is absent
	GetByID(ctx context.Context, objectType string, id int64) (map[string]any, error)

	// FindByFields returns entities matching all given field=value pairs,
	// ordered by id
	FindByFields(ctx context.Context, objectType string, fields map[string]any) ([]map[string]any, error)

	// Search returns ids of entities whose indexed values match q
	// (case-insensitive exact), ordered by id
	Search(ctx context.Context, objectType string, q string) ([]int64, error)

	// LatestChangeID returns the most recent change-log id recorded for the
	// entity, or 0 if none exists
	LatestChangeID(ctx context.Context, objectType string, id int64) (int64, error)
}

// Tx is a single atomic unit of work. All writes of one change set are
// enclosed in one Tx; reads through the Tx observe its own prior writes.
type Tx interface {
	Reader

	// Insert persists a new entity and returns its id
	Insert(ctx context.Context, objectType string, fields map[string]any) (int64, error)

	// Update overwrites the writable fields of an existing entity
	Update(ctx context.Context, objectType string, id int64, fields map[string]any) error

	Commit() error
	Rollback() error
}

// Store is the persistence collaborator for the change-set engine
type Store interface {
	Reader

	Begin(ctx context.Context) (Tx, error)

	Close() error
}

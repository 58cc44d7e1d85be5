package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"sort"
	"strings"

	"github.com/netboxlabs/diode/internal/domain"
)

// queryer is satisfied by both *sql.DB and *sql.Tx
type queryer interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

// runner implements the shared read operations over a db or a transaction
type runner struct {
	q   queryer
	reg *domain.Registry
}

// GetByID retrieves a single entity by id, or nil if absent
func (r runner) GetByID(ctx context.Context, objectType string, id int64) (map[string]any, error) {
	desc, ok := r.reg.Get(objectType)
	if !ok {
		return nil, fmt.Errorf("unsupported object type %s", objectType)
	}

	query := fmt.Sprintf("SELECT id, %s FROM %s WHERE id = ?", columnList(desc), desc.Table)
	row := r.q.QueryRowContext(ctx, query, id)

	fields, err := scanEntity(desc, row.Scan)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query %s: %w", objectType, err)
	}
	return fields, nil
}

// FindByFields returns entities matching all given field=value pairs
func (r runner) FindByFields(ctx context.Context, objectType string, fields map[string]any) ([]map[string]any, error) {
	desc, ok := r.reg.Get(objectType)
	if !ok {
		return nil, fmt.Errorf("unsupported object type %s", objectType)
	}

	names := make([]string, 0, len(fields))
	for name := range fields {
		names = append(names, name)
	}
	sort.Strings(names)

	var conds []string
	var args []any
	for _, name := range names {
		f, ok := desc.Field(name)
		if !ok {
			return nil, fmt.Errorf("unknown field %s for %s", name, objectType)
		}
		v := fields[name]
		if v == nil {
			conds = append(conds, columnFor(f)+" IS NULL")
			continue
		}
		conds = append(conds, columnFor(f)+" = ?")
		args = append(args, toDBValue(v))
	}

	query := fmt.Sprintf("SELECT id, %s FROM %s", columnList(desc), desc.Table)
	if len(conds) > 0 {
		query += " WHERE " + strings.Join(conds, " AND ")
	}
	query += " ORDER BY id"

	rows, err := r.q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query %s: %w", objectType, err)
	}
	defer rows.Close()

	var out []map[string]any
	for rows.Next() {
		entity, err := scanEntity(desc, rows.Scan)
		if err != nil {
			return nil, fmt.Errorf("failed to scan %s: %w", objectType, err)
		}
		out = append(out, entity)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating %s: %w", objectType, err)
	}
	return out, nil
}

// Search returns the ids of entities whose indexed values equal q,
// compared case-insensitively
func (r runner) Search(ctx context.Context, objectType string, q string) ([]int64, error) {
	rows, err := r.q.QueryContext(ctx, `
		SELECT DISTINCT object_id FROM cached_values
		WHERE object_type = ? AND value = ? COLLATE NOCASE
		ORDER BY object_id
	`, objectType, q)
	if err != nil {
		return nil, fmt.Errorf("failed to search %s: %w", objectType, err)
	}
	defer rows.Close()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan search result: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// LatestChangeID returns the most recent change-log id for an entity, 0 if none
func (r runner) LatestChangeID(ctx context.Context, objectType string, id int64) (int64, error) {
	var changeID sql.NullInt64
	err := r.q.QueryRowContext(ctx, `
		SELECT MAX(id) FROM object_changes WHERE object_type = ? AND object_id = ?
	`, objectType, id).Scan(&changeID)
	if err != nil {
		return 0, fmt.Errorf("failed to query object changes: %w", err)
	}
	if !changeID.Valid {
		return 0, nil
	}
	return changeID.Int64, nil
}

// columnFor maps a descriptor field to its column name
func columnFor(f domain.Field) string {
	if f.Kind == domain.KindRef {
		return f.Name + "_id"
	}
	return f.Name
}

// columnList returns the SELECT column list for a descriptor, excluding id
func columnList(desc *domain.Descriptor) string {
	cols := make([]string, len(desc.Fields))
	for i, f := range desc.Fields {
		cols[i] = columnFor(f)
	}
	return strings.Join(cols, ", ")
}

// scanEntity scans one row (id followed by the descriptor's columns) into a
// field map. Null columns are omitted from the map.
func scanEntity(desc *domain.Descriptor, scan func(...any) error) (map[string]any, error) {
	var id int64
	dests := make([]any, 0, len(desc.Fields)+1)
	dests = append(dests, &id)

	holders := make([]any, len(desc.Fields))
	for i, f := range desc.Fields {
		switch f.Kind {
		case domain.KindString:
			holders[i] = &sql.NullString{}
		default:
			holders[i] = &sql.NullInt64{}
		}
		dests = append(dests, holders[i])
	}

	if err := scan(dests...); err != nil {
		return nil, err
	}

	fields := map[string]any{"id": id}
	for i, f := range desc.Fields {
		switch h := holders[i].(type) {
		case *sql.NullString:
			if h.Valid {
				fields[f.Name] = h.String
			}
		case *sql.NullInt64:
			if !h.Valid {
				continue
			}
			if f.Kind == domain.KindBool {
				fields[f.Name] = h.Int64 != 0
			} else {
				fields[f.Name] = h.Int64
			}
		}
	}
	return fields, nil
}

// toDBValue converts a field-map value to its storage representation
func toDBValue(v any) any {
	switch v := v.(type) {
	case bool:
		if v {
			return int64(1)
		}
		return int64(0)
	case int:
		return int64(v)
	case float64:
		return int64(v)
	default:
		return v
	}
}

func placeholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?, ", n), ", ")
}

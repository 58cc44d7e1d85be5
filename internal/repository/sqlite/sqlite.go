package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"sort"
	"strings"

	_ "modernc.org/sqlite"

	"github.com/netboxlabs/diode/internal/domain"
	"github.com/netboxlabs/diode/internal/repository"
)

// Store implements repository.Store using SQLite
type Store struct {
	db  *sql.DB
	reg *domain.Registry
	runner
}

// New opens (or creates) the database at dbPath and migrates the schema
func New(dbPath string, reg *domain.Registry) (*Store, error) {
	dsn := dbPath + "?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_pragma=foreign_keys(1)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// One connection: keeps :memory: databases shared across calls and
	// serializes writers the way sqlite expects.
	db.SetMaxOpenConns(1)

	s := &Store{db: db, reg: reg, runner: runner{q: db, reg: reg}}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	return s, nil
}

func (s *Store) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS dcim_site (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		name TEXT NOT NULL,
		slug TEXT,
		status TEXT,
		facility TEXT,
		description TEXT,
		comments TEXT,
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
		updated_at DATETIME DEFAULT CURRENT_TIMESTAMP,
		UNIQUE (name),
		UNIQUE (slug)
	);

	CREATE TABLE IF NOT EXISTS dcim_manufacturer (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		name TEXT NOT NULL,
		slug TEXT,
		description TEXT,
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
		updated_at DATETIME DEFAULT CURRENT_TIMESTAMP,
		UNIQUE (name),
		UNIQUE (slug)
	);

	CREATE TABLE IF NOT EXISTS dcim_devicerole (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		name TEXT NOT NULL,
		slug TEXT,
		color TEXT,
		description TEXT,
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
		updated_at DATETIME DEFAULT CURRENT_TIMESTAMP,
		UNIQUE (name),
		UNIQUE (slug)
	);

	CREATE TABLE IF NOT EXISTS dcim_devicetype (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		model TEXT NOT NULL,
		slug TEXT,
		manufacturer_id INTEGER NOT NULL,
		part_number TEXT,
		description TEXT,
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
		updated_at DATETIME DEFAULT CURRENT_TIMESTAMP,
		UNIQUE (manufacturer_id, model),
		UNIQUE (manufacturer_id, slug),
		FOREIGN KEY (manufacturer_id) REFERENCES dcim_manufacturer(id)
	);

	CREATE TABLE IF NOT EXISTS dcim_platform (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		name TEXT NOT NULL,
		slug TEXT,
		manufacturer_id INTEGER,
		description TEXT,
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
		updated_at DATETIME DEFAULT CURRENT_TIMESTAMP,
		UNIQUE (name),
		UNIQUE (slug),
		FOREIGN KEY (manufacturer_id) REFERENCES dcim_manufacturer(id)
	);

	CREATE TABLE IF NOT EXISTS dcim_device (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		name TEXT NOT NULL,
		site_id INTEGER NOT NULL,
		role_id INTEGER NOT NULL,
		device_type_id INTEGER NOT NULL,
		platform_id INTEGER,
		serial TEXT,
		status TEXT,
		description TEXT,
		comments TEXT,
		primary_ip4_id INTEGER,
		primary_ip6_id INTEGER,
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
		updated_at DATETIME DEFAULT CURRENT_TIMESTAMP,
		UNIQUE (site_id, name),
		FOREIGN KEY (site_id) REFERENCES dcim_site(id),
		FOREIGN KEY (role_id) REFERENCES dcim_devicerole(id),
		FOREIGN KEY (device_type_id) REFERENCES dcim_devicetype(id),
		FOREIGN KEY (platform_id) REFERENCES dcim_platform(id),
		FOREIGN KEY (primary_ip4_id) REFERENCES ipam_ipaddress(id),
		FOREIGN KEY (primary_ip6_id) REFERENCES ipam_ipaddress(id)
	);

	CREATE TABLE IF NOT EXISTS dcim_interface (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		name TEXT NOT NULL,
		device_id INTEGER NOT NULL,
		type TEXT,
		enabled INTEGER,
		mtu INTEGER,
		mac_address TEXT,
		speed INTEGER,
		description TEXT,
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
		updated_at DATETIME DEFAULT CURRENT_TIMESTAMP,
		UNIQUE (device_id, name),
		FOREIGN KEY (device_id) REFERENCES dcim_device(id) ON DELETE CASCADE
	);

	CREATE TABLE IF NOT EXISTS ipam_ipaddress (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		address TEXT NOT NULL,
		status TEXT,
		role TEXT,
		dns_name TEXT,
		description TEXT,
		comments TEXT,
		assigned_object_type TEXT,
		assigned_object_id INTEGER,
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
		updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
	);

	CREATE TABLE IF NOT EXISTS ipam_prefix (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		prefix TEXT NOT NULL,
		site_id INTEGER,
		status TEXT,
		is_pool INTEGER,
		mark_utilized INTEGER,
		description TEXT,
		comments TEXT,
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
		updated_at DATETIME DEFAULT CURRENT_TIMESTAMP,
		UNIQUE (prefix),
		FOREIGN KEY (site_id) REFERENCES dcim_site(id)
	);

	CREATE TABLE IF NOT EXISTS object_changes (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		object_type TEXT NOT NULL,
		object_id INTEGER NOT NULL,
		action TEXT NOT NULL,
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP
	);

	CREATE TABLE IF NOT EXISTS cached_values (
		object_type TEXT NOT NULL,
		object_id INTEGER NOT NULL,
		field TEXT NOT NULL,
		value TEXT NOT NULL,
		PRIMARY KEY (object_type, object_id, field)
	);

	CREATE INDEX IF NOT EXISTS idx_object_changes_target ON object_changes(object_type, object_id);
	CREATE INDEX IF NOT EXISTS idx_cached_values_lookup ON cached_values(object_type, value COLLATE NOCASE);
	`

	_, err := s.db.Exec(schema)
	return err
}

// Begin starts a transaction scoped to one change set
func (s *Store) Begin(ctx context.Context) (repository.Tx, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	return &storeTx{tx: tx, runner: runner{q: tx, reg: s.reg}}, nil
}

// Close closes the database connection
func (s *Store) Close() error {
	return s.db.Close()
}

// storeTx implements repository.Tx over *sql.Tx
type storeTx struct {
	tx *sql.Tx
	runner
}

// Insert persists a new entity, records its change-log entry and refreshes
// the search index
func (t *storeTx) Insert(ctx context.Context, objectType string, fields map[string]any) (int64, error) {
	desc, ok := t.reg.Get(objectType)
	if !ok {
		return 0, fmt.Errorf("unsupported object type %s", objectType)
	}

	var cols []string
	var args []any
	for _, f := range desc.Fields {
		v, present := fields[f.Name]
		if !present || v == nil {
			continue
		}
		cols = append(cols, columnFor(f))
		args = append(args, toDBValue(v))
	}
	if len(cols) == 0 {
		return 0, fmt.Errorf("no fields to insert for %s", objectType)
	}

	query := fmt.Sprintf(
		"INSERT INTO %s (%s) VALUES (%s)",
		desc.Table, strings.Join(cols, ", "), placeholders(len(cols)),
	)

	res, err := t.tx.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, wrapWriteError(objectType, err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("failed to read inserted id: %w", err)
	}

	if err := t.recordChange(ctx, objectType, id, "create"); err != nil {
		return 0, err
	}
	if err := t.reindex(ctx, desc, id, fields); err != nil {
		return 0, err
	}

	return id, nil
}

// Update overwrites the writable fields of an existing entity
func (t *storeTx) Update(ctx context.Context, objectType string, id int64, fields map[string]any) error {
	desc, ok := t.reg.Get(objectType)
	if !ok {
		return fmt.Errorf("unsupported object type %s", objectType)
	}

	var sets []string
	var args []any
	for _, f := range desc.Fields {
		v, present := fields[f.Name]
		if !present {
			continue
		}
		sets = append(sets, columnFor(f)+" = ?")
		args = append(args, toDBValue(v))
	}
	if len(sets) == 0 {
		return nil
	}

	query := fmt.Sprintf(
		"UPDATE %s SET %s, updated_at = CURRENT_TIMESTAMP WHERE id = ?",
		desc.Table, strings.Join(sets, ", "),
	)
	args = append(args, id)

	if _, err := t.tx.ExecContext(ctx, query, args...); err != nil {
		return wrapWriteError(objectType, err)
	}

	if err := t.recordChange(ctx, objectType, id, "update"); err != nil {
		return err
	}
	return t.reindex(ctx, desc, id, fields)
}

// Commit commits the transaction
func (t *storeTx) Commit() error {
	return t.tx.Commit()
}

// Rollback aborts the transaction
func (t *storeTx) Rollback() error {
	return t.tx.Rollback()
}

func (t *storeTx) recordChange(ctx context.Context, objectType string, id int64, action string) error {
	_, err := t.tx.ExecContext(ctx, `
		INSERT INTO object_changes (object_type, object_id, action) VALUES (?, ?, ?)
	`, objectType, id, action)
	if err != nil {
		return fmt.Errorf("failed to record object change: %w", err)
	}
	return nil
}

// reindex refreshes the search index rows for one entity. Every non-empty
// string field is indexed.
func (t *storeTx) reindex(ctx context.Context, desc *domain.Descriptor, id int64, fields map[string]any) error {
	if _, err := t.tx.ExecContext(ctx, `
		DELETE FROM cached_values WHERE object_type = ? AND object_id = ?
	`, desc.Type, id); err != nil {
		return fmt.Errorf("failed to clear search index: %w", err)
	}

	names := make([]string, 0, len(fields))
	for name := range fields {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		f, ok := desc.Field(name)
		if !ok || f.Kind != domain.KindString {
			continue
		}
		s, ok := fields[name].(string)
		if !ok || s == "" {
			continue
		}
		if _, err := t.tx.ExecContext(ctx, `
			INSERT INTO cached_values (object_type, object_id, field, value) VALUES (?, ?, ?, ?)
		`, desc.Type, id, name, s); err != nil {
			return fmt.Errorf("failed to index %s.%s: %w", desc.Type, name, err)
		}
	}

	return nil
}

func wrapWriteError(objectType string, err error) error {
	if strings.Contains(err.Error(), "UNIQUE constraint failed") {
		return fmt.Errorf("%s: %w", objectType, repository.ErrUniqueViolation)
	}
	return fmt.Errorf("failed to write %s: %w", objectType, err)
}

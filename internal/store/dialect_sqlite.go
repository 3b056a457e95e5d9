package store

import (
	"fmt"
	"strings"
)

// SQLiteDialect implements Dialect for SQLite via modernc.org/sqlite.
type SQLiteDialect struct{}

func (d *SQLiteDialect) Name() string       { return "sqlite" }
func (d *SQLiteDialect) DriverName() string { return "sqlite" }
func (d *SQLiteDialect) NowExpr() string    { return "datetime('now')" }
func (d *SQLiteDialect) SchemaSQL() string  { return sqliteSchemaSQL }

func (d *SQLiteDialect) Placeholder(index int) string {
	return fmt.Sprintf("?%d", index)
}

func (d *SQLiteDialect) MapError(err error) error {
	if err == nil {
		return nil
	}
	errStr := err.Error()
	if strings.Contains(errStr, "UNIQUE constraint failed") || strings.Contains(errStr, "constraint failed: UNIQUE") {
		return fmt.Errorf("%w: %w", ErrUniqueViolation, err)
	}
	if strings.Contains(errStr, "FOREIGN KEY constraint failed") {
		return fmt.Errorf("%w: %w", ErrForeignKeyViolation, err)
	}
	return err
}

const sqliteSchemaSQL = `
CREATE TABLE IF NOT EXISTS attribute_types (
    id          INTEGER PRIMARY KEY AUTOINCREMENT,
    name        TEXT NOT NULL,
    kind        TEXT NOT NULL,
    is_list     INTEGER NOT NULL DEFAULT 0,
    is_enum     INTEGER NOT NULL DEFAULT 0,
    created_at  TEXT DEFAULT (datetime('now')),
    UNIQUE(name, is_list, is_enum)
);

CREATE TABLE IF NOT EXISTS enum_values (
    id                 INTEGER PRIMARY KEY AUTOINCREMENT,
    attribute_type_id  INTEGER NOT NULL REFERENCES attribute_types(id),
    value              TEXT NOT NULL,
    created_at         TEXT DEFAULT (datetime('now'))
);

CREATE INDEX IF NOT EXISTS idx_enum_values_type ON enum_values(attribute_type_id);

CREATE TABLE IF NOT EXISTS attributes (
    id                 INTEGER PRIMARY KEY AUTOINCREMENT,
    name               TEXT NOT NULL UNIQUE,
    attribute_type_id  INTEGER NOT NULL REFERENCES attribute_types(id),
    created_at         TEXT DEFAULT (datetime('now')),
    updated_at         TEXT DEFAULT (datetime('now'))
);

CREATE TABLE IF NOT EXISTS config_nodes (
    id                INTEGER PRIMARY KEY AUTOINCREMENT,
    attribute_id      INTEGER NOT NULL REFERENCES attributes(id),
    parent_id         INTEGER REFERENCES config_nodes(id),
    value             TEXT,
    description       TEXT,
    application_node  TEXT,
    is_custom         INTEGER NOT NULL DEFAULT 0,
    created_at        TEXT DEFAULT (datetime('now')),
    updated_at        TEXT DEFAULT (datetime('now'))
);

CREATE INDEX IF NOT EXISTS idx_config_nodes_parent ON config_nodes(parent_id);
CREATE INDEX IF NOT EXISTS idx_config_nodes_attribute ON config_nodes(attribute_id);
`

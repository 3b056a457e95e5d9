package store

import (
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5/pgconn"
)

// PostgresDialect implements Dialect for PostgreSQL via pgx/stdlib.
type PostgresDialect struct{}

func (d *PostgresDialect) Name() string       { return "postgres" }
func (d *PostgresDialect) DriverName() string { return "pgx" }
func (d *PostgresDialect) NowExpr() string    { return "NOW()" }
func (d *PostgresDialect) SchemaSQL() string  { return pgSchemaSQL }

func (d *PostgresDialect) Placeholder(index int) string {
	return fmt.Sprintf("$%d", index)
}

func (d *PostgresDialect) MapError(err error) error {
	if err == nil {
		return nil
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case "23505":
			return fmt.Errorf("%w: %w", ErrUniqueViolation, err)
		case "23503":
			return fmt.Errorf("%w: %w", ErrForeignKeyViolation, err)
		}
		return err
	}
	// With pgx/stdlib, the underlying error message includes the PG code
	errStr := err.Error()
	if strings.Contains(errStr, "23505") || strings.Contains(errStr, "duplicate key") {
		return fmt.Errorf("%w: %w", ErrUniqueViolation, err)
	}
	if strings.Contains(errStr, "23503") || strings.Contains(errStr, "violates foreign key constraint") {
		return fmt.Errorf("%w: %w", ErrForeignKeyViolation, err)
	}
	return err
}

const pgSchemaSQL = `
CREATE TABLE IF NOT EXISTS attribute_types (
    id          BIGSERIAL PRIMARY KEY,
    name        TEXT NOT NULL,
    kind        TEXT NOT NULL,
    is_list     BOOLEAN NOT NULL DEFAULT false,
    is_enum     BOOLEAN NOT NULL DEFAULT false,
    created_at  TIMESTAMPTZ DEFAULT NOW(),
    UNIQUE(name, is_list, is_enum)
);

CREATE TABLE IF NOT EXISTS enum_values (
    id                 BIGSERIAL PRIMARY KEY,
    attribute_type_id  BIGINT NOT NULL REFERENCES attribute_types(id),
    value              TEXT NOT NULL,
    created_at         TIMESTAMPTZ DEFAULT NOW()
);

CREATE INDEX IF NOT EXISTS idx_enum_values_type ON enum_values(attribute_type_id);

CREATE TABLE IF NOT EXISTS attributes (
    id                 BIGSERIAL PRIMARY KEY,
    name               TEXT NOT NULL UNIQUE,
    attribute_type_id  BIGINT NOT NULL REFERENCES attribute_types(id),
    created_at         TIMESTAMPTZ DEFAULT NOW(),
    updated_at         TIMESTAMPTZ DEFAULT NOW()
);

CREATE TABLE IF NOT EXISTS config_nodes (
    id                BIGSERIAL PRIMARY KEY,
    attribute_id      BIGINT NOT NULL REFERENCES attributes(id),
    parent_id         BIGINT REFERENCES config_nodes(id),
    value             TEXT,
    description       TEXT,
    application_node  TEXT,
    is_custom         BOOLEAN NOT NULL DEFAULT false,
    created_at        TIMESTAMPTZ DEFAULT NOW(),
    updated_at        TIMESTAMPTZ DEFAULT NOW()
);

CREATE INDEX IF NOT EXISTS idx_config_nodes_parent ON config_nodes(parent_id);
CREATE INDEX IF NOT EXISTS idx_config_nodes_attribute ON config_nodes(attribute_id);
`

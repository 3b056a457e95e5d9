package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"configtree/internal/config"
)

func TestMapError_PG_UniqueViolation(t *testing.T) {
	dialect := &PostgresDialect{}
	pgErr := &pgconn.PgError{
		Code:           "23505",
		Message:        "duplicate key value violates unique constraint \"attributes_name_key\"",
		ConstraintName: "attributes_name_key",
	}
	mapped := MapError(dialect, fmt.Errorf("exec: %w", pgErr))

	assert.ErrorIs(t, mapped, ErrUniqueViolation)

	var extracted *pgconn.PgError
	require.ErrorAs(t, mapped, &extracted)
	assert.Equal(t, "attributes_name_key", extracted.ConstraintName)
}

func TestMapError_PG_ForeignKeyViolation(t *testing.T) {
	dialect := &PostgresDialect{}
	pgErr := &pgconn.PgError{Code: "23503", Message: "update or delete on table \"attributes\" violates foreign key constraint"}

	mapped := MapError(dialect, fmt.Errorf("exec: %w", pgErr))

	assert.ErrorIs(t, mapped, ErrForeignKeyViolation)
	assert.NotErrorIs(t, mapped, ErrUniqueViolation)
}

func TestMapError_PG_OtherError(t *testing.T) {
	err := fmt.Errorf("some other error")
	assert.Equal(t, err, MapError(&PostgresDialect{}, err))
}

func TestMapError_Nil(t *testing.T) {
	assert.NoError(t, MapError(&PostgresDialect{}, nil))
	assert.NoError(t, MapError(&SQLiteDialect{}, nil))
}

func TestMapError_NoRows(t *testing.T) {
	assert.ErrorIs(t, MapError(&SQLiteDialect{}, sql.ErrNoRows), ErrNotFound)
}

func TestPlaceholders(t *testing.T) {
	assert.Equal(t, "$3", NewDialect("postgres").Placeholder(3))
	assert.Equal(t, "?3", NewDialect("sqlite").Placeholder(3))
	assert.Equal(t, "sqlite", NewDialect("").Name())
}

func openTestStore(t *testing.T) *Store {
	t.Helper()
	ctx := context.Background()
	s, err := New(ctx, config.DatabaseConfig{Driver: "sqlite", Name: "test", Path: t.TempDir()})
	require.NoError(t, err)
	t.Cleanup(s.Close)
	require.NoError(t, s.Bootstrap(ctx))
	return s
}

func TestSQLite_BootstrapIsIdempotent(t *testing.T) {
	s := openTestStore(t)
	require.NoError(t, s.Bootstrap(context.Background()))
}

func TestSQLite_ConstraintMapping(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	typeID, err := InsertID(ctx, s.DB,
		"INSERT INTO attribute_types (name, kind, is_list, is_enum) VALUES (?1, ?2, ?3, ?4) RETURNING id",
		"STRING", "STRING", false, false)
	require.NoError(t, err)

	attrID, err := InsertID(ctx, s.DB,
		"INSERT INTO attributes (name, attribute_type_id) VALUES (?1, ?2) RETURNING id", "host", typeID)
	require.NoError(t, err)

	_, err = Exec(ctx, s.DB, "INSERT INTO attributes (name, attribute_type_id) VALUES (?1, ?2)", "host", typeID)
	assert.ErrorIs(t, MapError(s.Dialect, err), ErrUniqueViolation)

	_, err = InsertID(ctx, s.DB,
		"INSERT INTO config_nodes (attribute_id, value) VALUES (?1, ?2) RETURNING id", attrID, "localhost")
	require.NoError(t, err)

	_, err = Exec(ctx, s.DB, "DELETE FROM attributes WHERE id = ?1", attrID)
	assert.ErrorIs(t, MapError(s.Dialect, err), ErrForeignKeyViolation)
}

func TestSQLite_InTxRollsBack(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	boom := errors.New("boom")

	err := s.InTx(ctx, func(tx *sql.Tx) error {
		if _, err := Exec(ctx, tx,
			"INSERT INTO attribute_types (name, kind, is_list, is_enum) VALUES (?1, ?2, ?3, ?4)",
			"NODE", "NODE", false, false); err != nil {
			return err
		}
		return boom
	})
	require.ErrorIs(t, err, boom)

	var n int
	require.NoError(t, s.DB.QueryRowContext(ctx, "SELECT COUNT(*) FROM attribute_types").Scan(&n))
	assert.Zero(t, n)
}

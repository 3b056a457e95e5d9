//go:build integration

package engine

import (
	"context"
	"errors"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"configtree/internal/config"
	"configtree/internal/instrument"
	"configtree/internal/logger"
	"configtree/internal/metadata"
	"configtree/internal/store"
)

func postgresEnv(t *testing.T) *testEnv {
	t.Helper()
	ctx := context.Background()
	host := os.Getenv("CONFIGTREE_TEST_PG_HOST")
	if host == "" {
		host = "localhost"
	}
	s, err := store.New(ctx, config.DatabaseConfig{
		Driver:   "postgres",
		Host:     host,
		Port:     5432,
		User:     "configtree",
		Password: "configtree",
		Name:     "configtree_test",
		PoolSize: 2,
	})
	if err != nil {
		t.Fatalf("connect to test db: %v", err)
	}
	t.Cleanup(s.Close)
	require.NoError(t, s.Bootstrap(ctx))
	for _, table := range []string{"config_nodes", "attributes", "enum_values", "attribute_types"} {
		_, err := s.DB.ExecContext(ctx, "DELETE FROM "+table)
		require.NoError(t, err)
	}

	cat := metadata.NewCatalog(s.Dialect)
	tree := NewTreeStore(s.Dialect)
	log := logger.NewNop()
	inst := &instrument.NoopInstrumenter{}
	return &testEnv{
		store:    s,
		catalog:  cat,
		tree:     tree,
		importer: NewImportEngine(s, cat, tree, log, inst),
		exporter: NewExportEngine(s, cat, tree, log, inst),
	}
}

func TestPostgres_RoundTripAndRollback(t *testing.T) {
	env := postgresEnv(t)
	env.seedFamily(t, "mes", "ENERO", "FEBRERO")
	env.seedFamily(t, "color", "ROJO")

	doc := `{"app":{"months":["ENERO"],"port":5432,"servers":[{"host":"a"}]}}`
	env.mustImport(t, doc)
	assert.Equal(t, doc, env.exportString(t))

	_, err := env.importer.Import(context.Background(), []byte(`{"m2":["febrero"],"color":"morado"}`))
	var enumErr *EnumViolationError
	require.True(t, errors.As(err, &enumErr))
	assert.Equal(t, doc, env.exportString(t))

	_, err = env.catalog.Types.Find(context.Background(), env.store.DB, "mes", true, true)
	assert.NoError(t, err)
}

func TestPostgres_DeleteReferencedNodeConflicts(t *testing.T) {
	env := postgresEnv(t)
	ctx := context.Background()
	env.mustImport(t, `{"app":{"a":1}}`)

	roots, err := env.tree.Roots(ctx, env.store.DB)
	require.NoError(t, err)
	require.Len(t, roots, 1)

	err = env.tree.Delete(ctx, env.store.DB, roots[0].ID)
	assert.ErrorIs(t, err, store.ErrForeignKeyViolation)
}

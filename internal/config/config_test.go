package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_DefaultsWithoutFile(t *testing.T) {
	t.Chdir(t.TempDir())

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 8080, cfg.Server.Port)
	assert.True(t, cfg.Server.PrettyExport)
	assert.Equal(t, "sqlite", cfg.Database.Driver)
	assert.True(t, cfg.Database.IsSQLite())
	assert.Equal(t, filepath.Join("data", "configtree.db"), cfg.Database.DSN())
	assert.Equal(t, "/metrics", cfg.Metrics.Path)
	assert.False(t, cfg.AuthEnabled())
}

func TestLoad_FileAndEnv(t *testing.T) {
	dir := t.TempDir()
	t.Chdir(dir)
	yaml := "server:\n  port: 9000\ndatabase:\n  driver: postgres\n  user: u\n  password: p\n  host: db\n  name: trees\n"
	require.NoError(t, os.WriteFile(filepath.Join(dir, "app.yaml"), []byte(yaml), 0o644))
	t.Setenv("CONFIGTREE_AUTH_JWT_SECRET", "s3cret")
	t.Setenv("CONFIGTREE_SERVER_PORT", "9100")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 9100, cfg.Server.Port)
	assert.False(t, cfg.Database.IsSQLite())
	assert.Equal(t, "postgres://u:p@db:5432/trees?sslmode=disable", cfg.Database.DSN())
	assert.True(t, cfg.AuthEnabled())
}

func TestLoad_MalformedFile(t *testing.T) {
	dir := t.TempDir()
	t.Chdir(dir)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "app.yaml"), []byte("server: [unclosed"), 0o644))

	_, err := Load()
	assert.Error(t, err)
}

package admin

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"configtree/internal/config"
	"configtree/internal/engine"
	"configtree/internal/logger"
	"configtree/internal/metadata"
	"configtree/internal/store"
)

type fixture struct {
	store   *store.Store
	catalog *metadata.Catalog
	tree    *engine.TreeStore
	app     *fiber.App
}

func newFixture(t *testing.T, guard fiber.Handler) *fixture {
	t.Helper()
	ctx := context.Background()
	s, err := store.New(ctx, config.DatabaseConfig{Driver: "sqlite", Name: "admin", Path: t.TempDir()})
	require.NoError(t, err)
	t.Cleanup(s.Close)
	require.NoError(t, s.Bootstrap(ctx))

	cat := metadata.NewCatalog(s.Dialect)
	tree := engine.NewTreeStore(s.Dialect)
	app := fiber.New()
	RegisterAdminRoutes(app, NewHandler(s, cat, tree, logger.NewNop()), guard)
	return &fixture{store: s, catalog: cat, tree: tree, app: app}
}

type envelope struct {
	Data  json.RawMessage  `json:"data"`
	Error *engine.AppError `json:"error"`
}

func (f *fixture) do(t *testing.T, method, path string, body any) (int, envelope) {
	t.Helper()
	var reader io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(b)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	resp, err := f.app.Test(req, -1)
	require.NoError(t, err)
	defer resp.Body.Close()

	var env envelope
	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal(raw, &env), string(raw))
	return resp.StatusCode, env
}

func decode[T any](t *testing.T, raw json.RawMessage) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(raw, &v))
	return v
}

func TestAttributeTypes_EnumFamilyLifecycle(t *testing.T) {
	f := newFixture(t, nil)

	status, env := f.do(t, http.MethodPost, "/api/attribute-types", fiber.Map{
		"name": "color", "is_enum": true, "literals": []string{"ROJO", "AZUL"},
	})
	require.Equal(t, http.StatusCreated, status)
	color := decode[metadata.AttributeType](t, env.Data)
	assert.True(t, color.IsEnum)
	assert.False(t, color.IsList)
	assert.Equal(t, metadata.KindString, color.Kind)

	status, env = f.do(t, http.MethodPost, fmt.Sprintf("/api/attribute-types/%d/values", color.ID),
		fiber.Map{"values": []string{"AZUL", "VERDE"}})
	require.Equal(t, http.StatusCreated, status)
	assert.JSONEq(t, `{"added":1}`, string(env.Data))

	status, env = f.do(t, http.MethodGet, fmt.Sprintf("/api/attribute-types/%d/values", color.ID), nil)
	require.Equal(t, http.StatusOK, status)
	values := decode[[]metadata.EnumValue](t, env.Data)
	require.Len(t, values, 3)
	assert.Equal(t, "VERDE", values[2].Value)

	// a list variant reports the literals of its scalar base
	status, env = f.do(t, http.MethodPost, "/api/attribute-types", fiber.Map{"name": "color", "is_enum": true, "is_list": true})
	require.Equal(t, http.StatusCreated, status)
	variant := decode[metadata.AttributeType](t, env.Data)
	assert.True(t, variant.IsList)
	assert.NotEqual(t, color.ID, variant.ID)

	status, env = f.do(t, http.MethodGet, fmt.Sprintf("/api/attribute-types/%d/values", variant.ID), nil)
	require.Equal(t, http.StatusOK, status)
	assert.Len(t, decode[[]metadata.EnumValue](t, env.Data), 3)

	status, env = f.do(t, http.MethodDelete, fmt.Sprintf("/api/attribute-types/%d/values/%d", color.ID, values[0].ID), nil)
	require.Equal(t, http.StatusOK, status)

	status, env = f.do(t, http.MethodGet, "/api/attribute-types", nil)
	require.Equal(t, http.StatusOK, status)
	assert.Len(t, decode[[]metadata.AttributeType](t, env.Data), 2)
}

func TestAttributeTypes_Validation(t *testing.T) {
	f := newFixture(t, nil)

	status, env := f.do(t, http.MethodPost, "/api/attribute-types", fiber.Map{"name": "DECIMAL"})
	assert.Equal(t, http.StatusUnprocessableEntity, status)
	assert.Equal(t, "VALIDATION_FAILED", env.Error.Code)

	status, env = f.do(t, http.MethodPost, "/api/attribute-types", fiber.Map{"name": "NUMERIC", "literals": []string{"1"}})
	assert.Equal(t, http.StatusUnprocessableEntity, status)

	status, env = f.do(t, http.MethodPost, "/api/attribute-types", fiber.Map{"name": "NUMERIC", "is_list": true})
	require.Equal(t, http.StatusCreated, status)
	numeric := decode[metadata.AttributeType](t, env.Data)

	status, env = f.do(t, http.MethodPost, fmt.Sprintf("/api/attribute-types/%d/values", numeric.ID),
		fiber.Map{"values": []string{"1"}})
	assert.Equal(t, http.StatusUnprocessableEntity, status)

	status, env = f.do(t, http.MethodGet, "/api/attribute-types/999", nil)
	assert.Equal(t, http.StatusNotFound, status)
	assert.Equal(t, "NOT_FOUND", env.Error.Code)

	status, env = f.do(t, http.MethodGet, "/api/attribute-types/zero", nil)
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Equal(t, "INVALID_ID", env.Error.Code)
}

func TestAttributes_CRUDAndConflicts(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	str, err := f.catalog.Types.ResolveOrCreate(ctx, f.store.DB, "STRING", false, false)
	require.NoError(t, err)
	num, err := f.catalog.Types.ResolveOrCreate(ctx, f.store.DB, "NUMERIC", false, false)
	require.NoError(t, err)

	status, env := f.do(t, http.MethodPost, "/api/attributes", fiber.Map{"name": "host", "attribute_type_id": str.ID})
	require.Equal(t, http.StatusCreated, status)
	host := decode[metadata.Attribute](t, env.Data)
	assert.Equal(t, "host", host.Name)

	status, env = f.do(t, http.MethodPost, "/api/attributes", fiber.Map{"name": "host", "attribute_type_id": str.ID})
	assert.Equal(t, http.StatusConflict, status)
	assert.Equal(t, "CONFLICT", env.Error.Code)

	status, env = f.do(t, http.MethodPost, "/api/attributes", fiber.Map{"name": "port", "attribute_type_id": 999})
	assert.Equal(t, http.StatusUnprocessableEntity, status)

	status, env = f.do(t, http.MethodPut, fmt.Sprintf("/api/attributes/%d", host.ID), fiber.Map{"attribute_type_id": num.ID})
	require.Equal(t, http.StatusOK, status)
	updated := decode[metadata.Attribute](t, env.Data)
	assert.Equal(t, num.ID, updated.TypeID)

	status, env = f.do(t, http.MethodPut, fmt.Sprintf("/api/attributes/%d", host.ID),
		fiber.Map{"name": "hostname", "attribute_type_id": num.ID})
	assert.Equal(t, http.StatusUnprocessableEntity, status)

	// the type is still referenced
	status, env = f.do(t, http.MethodDelete, fmt.Sprintf("/api/attribute-types/%d", num.ID), nil)
	assert.Equal(t, http.StatusConflict, status)

	status, _ = f.do(t, http.MethodDelete, fmt.Sprintf("/api/attributes/%d", host.ID), nil)
	require.Equal(t, http.StatusOK, status)
	status, _ = f.do(t, http.MethodGet, fmt.Sprintf("/api/attributes/%d", host.ID), nil)
	assert.Equal(t, http.StatusNotFound, status)

	status, _ = f.do(t, http.MethodDelete, fmt.Sprintf("/api/attribute-types/%d", num.ID), nil)
	assert.Equal(t, http.StatusOK, status)
}

func TestConfigNodes_CRUD(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	node, err := f.catalog.Types.ResolveOrCreate(ctx, f.store.DB, "NODE", false, false)
	require.NoError(t, err)
	app, err := f.catalog.Attributes.Create(ctx, f.store.DB, "app", node)
	require.NoError(t, err)
	color, err := f.catalog.Types.EnsureEnumFamily(ctx, f.store.DB, "color")
	require.NoError(t, err)
	_, err = f.catalog.Enums.AddLiterals(ctx, f.store.DB, color, []string{"ROJO", "AZUL"})
	require.NoError(t, err)
	colorAttr, err := f.catalog.Attributes.Create(ctx, f.store.DB, "color", color)
	require.NoError(t, err)

	status, env := f.do(t, http.MethodPost, "/api/config", fiber.Map{"attribute_id": app.ID})
	require.Equal(t, http.StatusCreated, status)
	root := decode[engine.ConfigNode](t, env.Data)

	status, env = f.do(t, http.MethodPost, "/api/config", fiber.Map{
		"attribute_id": colorAttr.ID, "parent_id": root.ID, "value": "azul", "description": "primary",
	})
	require.Equal(t, http.StatusCreated, status)
	leaf := decode[engine.ConfigNode](t, env.Data)
	require.NotNil(t, leaf.Value)
	assert.Equal(t, "AZUL", *leaf.Value)

	status, env = f.do(t, http.MethodPost, "/api/config", fiber.Map{
		"attribute_id": colorAttr.ID, "parent_id": root.ID, "value": "morado",
	})
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Equal(t, "ENUM_VIOLATION", env.Error.Code)

	status, env = f.do(t, http.MethodPut, fmt.Sprintf("/api/config/%d", leaf.ID), fiber.Map{"is_custom": true})
	require.Equal(t, http.StatusOK, status)
	updated := decode[engine.ConfigNode](t, env.Data)
	assert.True(t, updated.IsCustom)
	require.NotNil(t, updated.Description)
	assert.Equal(t, "primary", *updated.Description)
	assert.Equal(t, "AZUL", *updated.Value)

	status, env = f.do(t, http.MethodGet, fmt.Sprintf("/api/config?parent_id=%d", root.ID), nil)
	require.Equal(t, http.StatusOK, status)
	assert.Len(t, decode[[]engine.ConfigNode](t, env.Data), 1)

	status, env = f.do(t, http.MethodDelete, fmt.Sprintf("/api/config/%d", root.ID), nil)
	assert.Equal(t, http.StatusConflict, status)

	status, env = f.do(t, http.MethodDelete, fmt.Sprintf("/api/config/%d?recursive=true", root.ID), nil)
	require.Equal(t, http.StatusOK, status)
	assert.JSONEq(t, fmt.Sprintf(`{"id":%d,"deleted":2}`, root.ID), string(env.Data))

	status, env = f.do(t, http.MethodGet, "/api/config", nil)
	require.Equal(t, http.StatusOK, status)
	assert.Empty(t, decode[[]engine.ConfigNode](t, env.Data))

	status, env = f.do(t, http.MethodGet, fmt.Sprintf("/api/config/%d", leaf.ID), nil)
	assert.Equal(t, http.StatusNotFound, status)
}

func TestGuardProtectsMutatingRoutesOnly(t *testing.T) {
	guard := func(c *fiber.Ctx) error {
		return engine.RespondError(c, engine.UnauthorizedError("Missing auth token"))
	}
	f := newFixture(t, guard)

	status, env := f.do(t, http.MethodPost, "/api/attribute-types", fiber.Map{"name": "NODE"})
	assert.Equal(t, http.StatusUnauthorized, status)
	assert.Equal(t, "UNAUTHORIZED", env.Error.Code)

	status, _ = f.do(t, http.MethodGet, "/api/attribute-types", nil)
	assert.Equal(t, http.StatusOK, status)
	status, _ = f.do(t, http.MethodGet, "/api/config", nil)
	assert.Equal(t, http.StatusOK, status)
}

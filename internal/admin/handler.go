package admin

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/gofiber/fiber/v2"

	"configtree/internal/engine"
	"configtree/internal/logger"
	"configtree/internal/metadata"
	"configtree/internal/store"
)

type Handler struct {
	store   *store.Store
	catalog *metadata.Catalog
	tree    *engine.TreeStore
	log     *logger.Logger
}

func NewHandler(s *store.Store, cat *metadata.Catalog, tree *engine.TreeStore, log *logger.Logger) *Handler {
	return &Handler{store: s, catalog: cat, tree: tree, log: log.With("component", "admin")}
}

// RegisterAdminRoutes mounts catalog and node CRUD. guard, when non-nil,
// protects every mutating route.
func RegisterAdminRoutes(app *fiber.App, h *Handler, guard fiber.Handler) {
	api := app.Group("/api")
	g := func(fn fiber.Handler) []fiber.Handler { return engine.Guarded(guard, fn) }

	api.Get("/attribute-types", h.ListTypes)
	api.Get("/attribute-types/:id", h.GetType)
	api.Post("/attribute-types", g(h.CreateType)...)
	api.Delete("/attribute-types/:id", g(h.DeleteType)...)
	api.Get("/attribute-types/:id/values", h.ListValues)
	api.Post("/attribute-types/:id/values", g(h.AddValues)...)
	api.Delete("/attribute-types/:id/values/:valueId", g(h.DeleteValue)...)

	api.Get("/attributes", h.ListAttributes)
	api.Get("/attributes/:id", h.GetAttribute)
	api.Post("/attributes", g(h.CreateAttribute)...)
	api.Put("/attributes/:id", g(h.UpdateAttribute)...)
	api.Delete("/attributes/:id", g(h.DeleteAttribute)...)

	// registered after the import/export routes so /api/config/export wins
	api.Get("/config", h.ListNodes)
	api.Get("/config/:id", h.GetNode)
	api.Post("/config", g(h.CreateNode)...)
	api.Put("/config/:id", g(h.UpdateNode)...)
	api.Delete("/config/:id", g(h.DeleteNode)...)
}

func invalidPayload(c *fiber.Ctx) error {
	return engine.RespondError(c, engine.NewAppError("INVALID_PAYLOAD", fiber.StatusBadRequest, "Invalid JSON body"))
}

func validationFailed(c *fiber.Ctx, field, msg string) error {
	return engine.RespondError(c, engine.ValidationError([]engine.ErrorDetail{{Field: field, Message: msg}}))
}

func paramID(c *fiber.Ctx, name string) (int64, error) {
	id, err := c.ParamsInt(name)
	if err != nil || id <= 0 {
		return 0, engine.NewAppError("INVALID_ID", fiber.StatusBadRequest, fmt.Sprintf("%s must be a positive integer", name))
	}
	return int64(id), nil
}

// --- Attribute type endpoints ---

type createTypeRequest struct {
	Name     string   `json:"name"`
	IsList   bool     `json:"is_list"`
	IsEnum   bool     `json:"is_enum"`
	Literals []string `json:"literals"`
}

func (h *Handler) ListTypes(c *fiber.Ctx) error {
	types, err := h.catalog.Types.List(c.UserContext(), h.store.DB)
	if err != nil {
		return err
	}
	if types == nil {
		types = []*metadata.AttributeType{}
	}
	return c.JSON(fiber.Map{"data": types})
}

func (h *Handler) GetType(c *fiber.Ctx) error {
	id, err := paramID(c, "id")
	if err != nil {
		return engine.HandleError(c, err)
	}
	t, err := h.catalog.Types.Get(c.UserContext(), h.store.DB, id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return engine.RespondError(c, engine.NotFoundError("attribute type", id))
		}
		return err
	}
	return c.JSON(fiber.Map{"data": t})
}

// CreateType registers a primitive signature (name is a kind) or an enum
// family. Enum families accept initial literals; a list enum also gets its
// scalar base, which owns the literals.
func (h *Handler) CreateType(c *fiber.Ctx) error {
	var req createTypeRequest
	if err := c.BodyParser(&req); err != nil {
		return invalidPayload(c)
	}
	req.Name = strings.TrimSpace(req.Name)
	if req.Name == "" {
		return validationFailed(c, "name", "name is required")
	}
	if !req.IsEnum {
		if _, err := metadata.ParseKind(req.Name); err != nil {
			return validationFailed(c, "name", err.Error())
		}
		if len(req.Literals) > 0 {
			return validationFailed(c, "literals", "only enum types carry literals")
		}
	}

	ctx := c.UserContext()
	var created *metadata.AttributeType
	err := h.store.InTx(ctx, func(tx *sql.Tx) error {
		if !req.IsEnum {
			t, err := h.catalog.Types.ResolveOrCreate(ctx, tx, req.Name, req.IsList, false)
			created = t
			return err
		}
		base, err := h.catalog.Types.EnsureEnumFamily(ctx, tx, req.Name)
		if err != nil {
			return err
		}
		if _, err := h.catalog.Enums.AddLiterals(ctx, tx, base, req.Literals); err != nil {
			return err
		}
		created = base
		if req.IsList {
			created, err = h.catalog.Types.EnsureListVariant(ctx, tx, base)
		}
		return err
	})
	if err != nil {
		return engine.HandleError(c, err)
	}
	h.log.Info("attribute type registered", "type", created.String(), "literals", len(req.Literals))
	return c.Status(fiber.StatusCreated).JSON(fiber.Map{"data": created})
}

func (h *Handler) DeleteType(c *fiber.Ctx) error {
	id, err := paramID(c, "id")
	if err != nil {
		return engine.HandleError(c, err)
	}
	if err := h.catalog.Types.Delete(c.UserContext(), h.store.DB, id); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return engine.RespondError(c, engine.NotFoundError("attribute type", id))
		}
		return engine.HandleError(c, err)
	}
	return c.JSON(fiber.Map{"data": fiber.Map{"id": id, "deleted": true}})
}

// --- Enum literal endpoints ---

type addValuesRequest struct {
	Values []string `json:"values"`
}

func (h *Handler) enumType(c *fiber.Ctx) (*metadata.AttributeType, error) {
	id, err := paramID(c, "id")
	if err != nil {
		return nil, err
	}
	t, err := h.catalog.Types.Get(c.UserContext(), h.store.DB, id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, engine.NotFoundError("attribute type", id)
		}
		return nil, err
	}
	return t, nil
}

// ListValues returns the literals governing the type: the family base's for
// list variants.
func (h *Handler) ListValues(c *fiber.Ctx) error {
	t, err := h.enumType(c)
	if err != nil {
		return engine.HandleError(c, err)
	}
	ctx := c.UserContext()
	base, err := h.catalog.Types.ResolveBaseEnum(ctx, h.store.DB, t)
	if err != nil {
		return err
	}
	values, err := h.catalog.Enums.Values(ctx, h.store.DB, base)
	if err != nil {
		return err
	}
	if values == nil {
		values = []metadata.EnumValue{}
	}
	return c.JSON(fiber.Map{"data": values})
}

func (h *Handler) AddValues(c *fiber.Ctx) error {
	t, err := h.enumType(c)
	if err != nil {
		return engine.HandleError(c, err)
	}
	if !t.IsEnum {
		return validationFailed(c, "id", "attribute type "+t.String()+" is not an enum")
	}
	var req addValuesRequest
	if err := c.BodyParser(&req); err != nil {
		return invalidPayload(c)
	}

	ctx := c.UserContext()
	added := 0
	err = h.store.InTx(ctx, func(tx *sql.Tx) error {
		base, err := h.catalog.Types.ResolveBaseEnum(ctx, tx, t)
		if err != nil {
			return err
		}
		added, err = h.catalog.Enums.AddLiterals(ctx, tx, base, req.Values)
		return err
	})
	if err != nil {
		return engine.HandleError(c, err)
	}
	h.log.Info("enum literals added", "type", t.String(), "added", added)
	return c.Status(fiber.StatusCreated).JSON(fiber.Map{"data": fiber.Map{"added": added}})
}

func (h *Handler) DeleteValue(c *fiber.Ctx) error {
	valueID, err := paramID(c, "valueId")
	if err != nil {
		return engine.HandleError(c, err)
	}
	if err := h.catalog.Enums.DeleteValue(c.UserContext(), h.store.DB, valueID); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return engine.RespondError(c, engine.NotFoundError("enum value", valueID))
		}
		return err
	}
	return c.JSON(fiber.Map{"data": fiber.Map{"id": valueID, "deleted": true}})
}

// --- Attribute endpoints ---

type attributeRequest struct {
	Name            string `json:"name"`
	AttributeTypeID int64  `json:"attribute_type_id"`
}

func (h *Handler) ListAttributes(c *fiber.Ctx) error {
	attrs, err := h.catalog.Attributes.List(c.UserContext(), h.store.DB)
	if err != nil {
		return err
	}
	if attrs == nil {
		attrs = []*metadata.Attribute{}
	}
	return c.JSON(fiber.Map{"data": attrs})
}

func (h *Handler) GetAttribute(c *fiber.Ctx) error {
	id, err := paramID(c, "id")
	if err != nil {
		return engine.HandleError(c, err)
	}
	a, err := h.catalog.Attributes.Get(c.UserContext(), h.store.DB, id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return engine.RespondError(c, engine.NotFoundError("attribute", id))
		}
		return err
	}
	return c.JSON(fiber.Map{"data": a})
}

func (h *Handler) CreateAttribute(c *fiber.Ctx) error {
	var req attributeRequest
	if err := c.BodyParser(&req); err != nil {
		return invalidPayload(c)
	}
	req.Name = strings.TrimSpace(req.Name)
	if req.Name == "" {
		return validationFailed(c, "name", "name is required")
	}

	ctx := c.UserContext()
	var created *metadata.Attribute
	err := h.store.InTx(ctx, func(tx *sql.Tx) error {
		t, err := h.catalog.Types.Get(ctx, tx, req.AttributeTypeID)
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				return engine.ValidationError([]engine.ErrorDetail{{Field: "attribute_type_id", Message: "unknown attribute type"}})
			}
			return err
		}
		created, err = h.catalog.Attributes.Create(ctx, tx, req.Name, t)
		return err
	})
	if err != nil {
		return engine.HandleError(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(fiber.Map{"data": created})
}

// UpdateAttribute rebinds an attribute to another signature. Names are fixed.
func (h *Handler) UpdateAttribute(c *fiber.Ctx) error {
	id, err := paramID(c, "id")
	if err != nil {
		return engine.HandleError(c, err)
	}
	var req attributeRequest
	if err := c.BodyParser(&req); err != nil {
		return invalidPayload(c)
	}

	ctx := c.UserContext()
	var updated *metadata.Attribute
	err = h.store.InTx(ctx, func(tx *sql.Tx) error {
		a, err := h.catalog.Attributes.Get(ctx, tx, id)
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				return engine.NotFoundError("attribute", id)
			}
			return err
		}
		if req.Name != "" && req.Name != a.Name {
			return engine.ValidationError([]engine.ErrorDetail{{Field: "name", Message: "attribute names cannot be changed"}})
		}
		t, err := h.catalog.Types.Get(ctx, tx, req.AttributeTypeID)
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				return engine.ValidationError([]engine.ErrorDetail{{Field: "attribute_type_id", Message: "unknown attribute type"}})
			}
			return err
		}
		if err := h.catalog.Attributes.SetType(ctx, tx, a, t); err != nil {
			return err
		}
		updated = a
		return nil
	})
	if err != nil {
		return engine.HandleError(c, err)
	}
	return c.JSON(fiber.Map{"data": updated})
}

func (h *Handler) DeleteAttribute(c *fiber.Ctx) error {
	id, err := paramID(c, "id")
	if err != nil {
		return engine.HandleError(c, err)
	}
	if err := h.catalog.Attributes.Delete(c.UserContext(), h.store.DB, id); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return engine.RespondError(c, engine.NotFoundError("attribute", id))
		}
		return engine.HandleError(c, err)
	}
	return c.JSON(fiber.Map{"data": fiber.Map{"id": id, "deleted": true}})
}

// --- Config node endpoints ---

// ListNodes returns every node, or the children of ?parent_id= when given.
func (h *Handler) ListNodes(c *fiber.Ctx) error {
	ctx := c.UserContext()
	var nodes []*engine.ConfigNode
	var err error
	if raw := c.Query("parent_id"); raw != "" {
		parent := int64(c.QueryInt("parent_id", 0))
		if parent <= 0 {
			return validationFailed(c, "parent_id", "parent_id must be a positive integer")
		}
		nodes, err = h.tree.Children(ctx, h.store.DB, &parent)
	} else {
		nodes, err = h.tree.List(ctx, h.store.DB)
	}
	if err != nil {
		return err
	}
	if nodes == nil {
		nodes = []*engine.ConfigNode{}
	}
	return c.JSON(fiber.Map{"data": nodes, "meta": fiber.Map{"total": len(nodes)}})
}

func (h *Handler) GetNode(c *fiber.Ctx) error {
	id, err := paramID(c, "id")
	if err != nil {
		return engine.HandleError(c, err)
	}
	n, err := h.tree.Get(c.UserContext(), h.store.DB, id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return engine.RespondError(c, engine.NotFoundError("config node", id))
		}
		return err
	}
	return c.JSON(fiber.Map{"data": n})
}

// canonicalValue validates n.Value against its attribute's enum family and
// replaces it with the canonical literal.
func (h *Handler) canonicalValue(c *fiber.Ctx, tx *sql.Tx, n *engine.ConfigNode) error {
	ctx := c.UserContext()
	a, err := h.catalog.Attributes.Get(ctx, tx, n.AttributeID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return engine.ValidationError([]engine.ErrorDetail{{Field: "attribute_id", Message: "unknown attribute"}})
		}
		return err
	}
	if n.Value == nil || !a.Type.IsEnum {
		return nil
	}
	lit, ok, allowed, err := h.catalog.Enums.MatchFamily(ctx, tx, a.Type, *n.Value)
	if err != nil {
		return err
	}
	if !ok {
		return &engine.EnumViolationError{Field: a.Name, Value: *n.Value, Allowed: allowed}
	}
	n.Value = &lit
	return nil
}

func (h *Handler) CreateNode(c *fiber.Ctx) error {
	var n engine.ConfigNode
	if err := json.Unmarshal(c.Body(), &n); err != nil {
		return invalidPayload(c)
	}
	n.ID = 0

	ctx := c.UserContext()
	err := h.store.InTx(ctx, func(tx *sql.Tx) error {
		if err := h.canonicalValue(c, tx, &n); err != nil {
			return err
		}
		return h.tree.Insert(ctx, tx, &n)
	})
	if err != nil {
		return engine.HandleError(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(fiber.Map{"data": n})
}

// UpdateNode applies the fields present in the body over the stored node.
func (h *Handler) UpdateNode(c *fiber.Ctx) error {
	id, err := paramID(c, "id")
	if err != nil {
		return engine.HandleError(c, err)
	}

	ctx := c.UserContext()
	var updated *engine.ConfigNode
	err = h.store.InTx(ctx, func(tx *sql.Tx) error {
		n, err := h.tree.Get(ctx, tx, id)
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				return engine.NotFoundError("config node", id)
			}
			return err
		}
		if err := json.Unmarshal(c.Body(), n); err != nil {
			return engine.NewAppError("INVALID_PAYLOAD", fiber.StatusBadRequest, "Invalid JSON body")
		}
		n.ID = id
		if n.ParentID != nil && *n.ParentID == id {
			return engine.ValidationError([]engine.ErrorDetail{{Field: "parent_id", Message: "a node cannot be its own parent"}})
		}
		if err := h.canonicalValue(c, tx, n); err != nil {
			return err
		}
		if err := h.tree.Update(ctx, tx, n); err != nil {
			return err
		}
		updated = n
		return nil
	})
	if err != nil {
		return engine.HandleError(c, err)
	}
	return c.JSON(fiber.Map{"data": updated})
}

// DeleteNode removes a leaf, or a whole subtree with ?recursive=true. Deleting
// a node that still has children without recursive is a conflict.
func (h *Handler) DeleteNode(c *fiber.Ctx) error {
	id, err := paramID(c, "id")
	if err != nil {
		return engine.HandleError(c, err)
	}

	ctx := c.UserContext()
	deleted := 0
	err = h.store.InTx(ctx, func(tx *sql.Tx) error {
		if !c.QueryBool("recursive", false) {
			if err := h.tree.Delete(ctx, tx, id); err != nil {
				return err
			}
			deleted = 1
			return nil
		}
		n, err := h.tree.Get(ctx, tx, id)
		if err != nil {
			return err
		}
		deleted, err = h.tree.DeleteSubtree(ctx, tx, n, nil)
		return err
	})
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return engine.RespondError(c, engine.NotFoundError("config node", id))
		}
		return engine.HandleError(c, err)
	}
	h.log.Info("config nodes deleted", "id", id, "count", deleted)
	return c.JSON(fiber.Map{"data": fiber.Map{"id": id, "deleted": deleted}})
}

package engine

import (
	"fmt"

	"github.com/gofiber/fiber/v2"
)

type Handler struct {
	importer *ImportEngine
	exporter *ExportEngine
	pretty   bool
}

func NewHandler(importer *ImportEngine, exporter *ExportEngine, pretty bool) *Handler {
	return &Handler{importer: importer, exporter: exporter, pretty: pretty}
}

// Import handles POST /api/config/import. The raw body is decoded by the
// strict decoder so duplicate keys are rejected.
func (h *Handler) Import(c *fiber.Ctx) error {
	res, err := h.importer.Import(c.UserContext(), c.Body())
	if err != nil {
		return HandleError(c, err)
	}
	return c.JSON(fiber.Map{
		"data": res,
		"meta": fiber.Map{"elapsed_ms": res.Elapsed.Milliseconds()},
	})
}

// Export handles GET /api/config/export
func (h *Handler) Export(c *fiber.Ctx) error {
	body, err := h.exporter.ExportJSON(c.UserContext(), c.QueryBool("pretty", h.pretty))
	if err != nil {
		return HandleError(c, err)
	}
	c.Set(fiber.HeaderContentType, fiber.MIMEApplicationJSONCharsetUTF8)
	return c.Send(body)
}

// ExportNode handles GET /api/config/export/:id
func (h *Handler) ExportNode(c *fiber.Ctx) error {
	id, err := c.ParamsInt("id")
	if err != nil {
		return RespondError(c, NewAppError("INVALID_ID", fiber.StatusBadRequest, "Node id must be an integer"))
	}
	value, found, err := h.exporter.ExportNode(c.UserContext(), int64(id))
	if err != nil {
		return HandleError(c, fmt.Errorf("export node %d: %w", id, err))
	}
	if !found {
		return RespondError(c, NotFoundError("config node", id))
	}
	return c.JSON(fiber.Map{"data": value})
}

func RespondError(c *fiber.Ctx, appErr *AppError) error {
	return c.Status(appErr.Status).JSON(ErrorResponse{Error: appErr})
}

// HandleError writes known errors as structured responses and returns the
// rest to fiber's error handler.
func HandleError(c *fiber.Ctx, err error) error {
	if appErr := ToAppError(err); appErr != nil {
		return RespondError(c, appErr)
	}
	return err
}

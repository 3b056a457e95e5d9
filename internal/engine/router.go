package engine

import "github.com/gofiber/fiber/v2"

// RegisterConfigRoutes mounts import and export. guard, when non-nil, runs
// before the import handler.
func RegisterConfigRoutes(app *fiber.App, h *Handler, guard fiber.Handler) {
	api := app.Group("/api/config")

	api.Post("/import", Guarded(guard, h.Import)...)
	api.Get("/export", h.Export)
	api.Get("/export/:id", h.ExportNode)
}

// Guarded prepends guard to h when guard is set.
func Guarded(guard fiber.Handler, h fiber.Handler) []fiber.Handler {
	if guard == nil {
		return []fiber.Handler{h}
	}
	return []fiber.Handler{guard, h}
}

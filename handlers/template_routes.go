// handlers/template_routes.go
package handlers

import (
	"troop-badge-system/middleware"
	"troop-badge-system/services"

	"github.com/gofiber/fiber/v2"
)

func SetupTemplateRoutes(app *fiber.App, templateService *services.TemplateService) {
	secured := app.Group("/s/templates", middleware.UserContextMiddleware())

	secured.Get("/", func(c *fiber.Ctx) error {
		if !middleware.Caps(c).CanView {
			return forbidden(c, "viewing badge templates requires the view capability")
		}
		return templateService.ListTemplates(c)
	})

	secured.Get("/:id", func(c *fiber.Ctx) error {
		if !middleware.Caps(c).CanView {
			return forbidden(c, "viewing badge templates requires the view capability")
		}
		return templateService.GetTemplate(c)
	})

	// Admin endpoints
	admin := app.Group("/s/admin/templates", middleware.UserContextMiddleware())

	admin.Post("/", manageOnly(templateService.CreateTemplate))
	admin.Put("/:id", manageOnly(templateService.UpdateTemplate))
	admin.Delete("/:id", manageOnly(templateService.DeleteTemplate))
	admin.Post("/:id/image", manageOnly(templateService.UploadImage))
}

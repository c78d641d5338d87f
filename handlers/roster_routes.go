// handlers/roster_routes.go
package handlers

import (
	"troop-badge-system/middleware"
	"troop-badge-system/services"

	"github.com/gofiber/fiber/v2"
)

func SetupRosterRoutes(app *fiber.App, rosterService *services.RosterService) {
	secured := app.Group("/s/roster", middleware.UserContextMiddleware())

	secured.Get("/participants", func(c *fiber.Ctx) error {
		if !middleware.Caps(c).CanView {
			return forbidden(c, "viewing the roster requires the view capability")
		}
		return rosterService.ListParticipants(c)
	})

	secured.Get("/groups", func(c *fiber.Ctx) error {
		if !middleware.Caps(c).CanView {
			return forbidden(c, "viewing the roster requires the view capability")
		}
		return rosterService.ListGroups(c)
	})

	// Writes are manage-only: troops synced from the roster service never
	// edit members here.
	secured.Post("/participants", manageOnly(rosterService.CreateParticipant))
	secured.Put("/participants/:id", manageOnly(rosterService.UpdateParticipant))
	secured.Delete("/participants/:id", manageOnly(rosterService.DeleteParticipant))
	secured.Post("/groups", manageOnly(rosterService.CreateGroup))
	secured.Delete("/groups/:id", manageOnly(rosterService.DeleteGroup))
}

func manageOnly(h fiber.Handler) fiber.Handler {
	return func(c *fiber.Ctx) error {
		if !middleware.Caps(c).CanManage {
			return forbidden(c, "this operation requires the manage capability")
		}
		return h(c)
	}
}

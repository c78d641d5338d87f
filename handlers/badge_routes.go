// handlers/badge_routes.go
package handlers

import (
	"errors"

	"troop-badge-system/middleware"
	"troop-badge-system/models"
	"troop-badge-system/services"

	"github.com/gofiber/fiber/v2"
)

func SetupBadgeRoutes(app *fiber.App, badgeService *services.BadgeService) {
	// The gateway forwards /api/v1/troop/s/badges/... -> /s/badges/...
	secured := app.Group("/s/badges", middleware.UserContextMiddleware())

	secured.Get("/records", func(c *fiber.Ctx) error {
		caps := middleware.Caps(c)
		if !caps.CanView {
			return forbidden(c, "viewing badges requires the view capability")
		}

		sortKey := c.Query("sort", services.SortByName)
		desc := c.Query("dir", "asc") == "desc"

		records, err := badgeService.Records(sortKey, desc)
		if err != nil {
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
				"error": "failed to build participant records",
				"cause": err.Error(),
			})
		}
		return c.JSON(fiber.Map{
			"records": records,
			"sort":    sortKey,
		})
	})

	secured.Get("/pending", func(c *fiber.Ctx) error {
		caps := middleware.Caps(c)
		if !caps.CanApprove {
			return forbidden(c, "the approval queue requires the approve capability")
		}

		queue, err := badgeService.PendingQueue()
		if err != nil {
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
				"error": "failed to build approval queue",
				"cause": err.Error(),
			})
		}
		return c.JSON(queue)
	})

	secured.Get("/deliveries", func(c *fiber.Ctx) error {
		caps := middleware.Caps(c)
		if !caps.CanApprove {
			return forbidden(c, "the delivery queue requires the approve capability")
		}

		queue, err := badgeService.DeliveriesQueue()
		if err != nil {
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
				"error": "failed to build delivery queue",
				"cause": err.Error(),
			})
		}
		return c.JSON(queue)
	})

	secured.Get("/next", func(c *fiber.Ctx) error {
		caps := middleware.Caps(c)
		if !caps.CanView {
			return forbidden(c, "viewing badges requires the view capability")
		}

		participantID := c.Query("participant_id")
		templateID := c.Query("template_id")
		territory := c.Query("territory")
		if participantID == "" || (templateID == "" && territory == "") {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
				"error": "participant_id and template_id or territory are required",
			})
		}

		ref := models.KnownTemplate(templateID)
		if templateID == "" {
			ref = models.AdHocTerritory(territory)
		}

		next, max, err := badgeService.NextLevel(participantID, ref)
		if err != nil {
			return badgeError(c, err)
		}
		return c.JSON(fiber.Map{
			"next_star": next,
			"max_stars": max,
		})
	})

	secured.Post("/", func(c *fiber.Ctx) error {
		caps := middleware.Caps(c)
		if !caps.CanView {
			return forbidden(c, "submitting a star requires the view capability")
		}

		var in services.SubmitStarInput
		if err := c.BodyParser(&in); err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid JSON", "cause": err.Error()})
		}

		userID, _ := c.Locals("user_id").(string)
		entry, err := badgeService.Submit(in, caps, userID)
		if err != nil {
			return badgeError(c, err)
		}
		return c.Status(fiber.StatusCreated).JSON(entry)
	})

	secured.Post("/:id/approve", func(c *fiber.Ctx) error {
		caps := middleware.Caps(c)
		if !caps.CanApprove {
			return forbidden(c, "approving a star requires the approve capability")
		}

		entry, err := badgeService.Approve(c.Params("id"))
		if err != nil {
			return badgeError(c, err)
		}
		return c.JSON(entry)
	})

	secured.Post("/:id/reject", func(c *fiber.Ctx) error {
		caps := middleware.Caps(c)
		if !caps.CanApprove {
			return forbidden(c, "rejecting a star requires the approve capability")
		}

		var body struct {
			Reason string `json:"reason"`
		}
		// reason is optional, a bad body should not block the rejection
		_ = c.BodyParser(&body)

		entry, err := badgeService.Reject(c.Params("id"), body.Reason)
		if err != nil {
			return badgeError(c, err)
		}
		return c.JSON(entry)
	})

	secured.Post("/deliver-bulk", func(c *fiber.Ctx) error {
		caps := middleware.Caps(c)
		if !caps.CanApprove {
			return forbidden(c, "delivering stars requires the approve capability")
		}

		var body struct {
			IDs []string `json:"ids"`
		}
		if err := c.BodyParser(&body); err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid JSON", "cause": err.Error()})
		}
		if len(body.IDs) == 0 {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "ids is required"})
		}

		report, err := badgeService.DeliverBulk(body.IDs)
		if err != nil {
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
				"error": "bulk delivery failed",
				"cause": err.Error(),
			})
		}
		status := fiber.StatusOK
		if !report.Ok() {
			status = fiber.StatusMultiStatus
		}
		return c.Status(status).JSON(report)
	})

	secured.Post("/:id/deliver", func(c *fiber.Ctx) error {
		caps := middleware.Caps(c)
		if !caps.CanApprove {
			return forbidden(c, "delivering a star requires the approve capability")
		}

		entry, err := badgeService.Deliver(c.Params("id"))
		if err != nil {
			return badgeError(c, err)
		}
		return c.JSON(entry)
	})
}

func forbidden(c *fiber.Ctx, msg string) error {
	return c.Status(fiber.StatusForbidden).JSON(fiber.Map{"error": msg})
}

// badgeError maps the service sentinels onto HTTP statuses.
func badgeError(c *fiber.Ctx, err error) error {
	switch {
	case errors.Is(err, models.ErrValidation):
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": err.Error()})
	case errors.Is(err, models.ErrForbidden):
		return c.Status(fiber.StatusForbidden).JSON(fiber.Map{"error": err.Error()})
	case errors.Is(err, models.ErrNotFound):
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": err.Error()})
	case errors.Is(err, models.ErrInvalidTransition):
		return c.Status(fiber.StatusConflict).JSON(fiber.Map{"error": err.Error()})
	default:
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "internal error",
			"cause": err.Error(),
		})
	}
}

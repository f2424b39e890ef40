package server

import (
	"github.com/gofiber/fiber/v2"

	"arbor/internal/models"
	"arbor/internal/service"
)

// RunReconciliation handles POST /api/admin/reconcile.
// Pushes the mirrored global profile fields into tenant branches. The
// optional JSON body narrows the run to specific tenant ids or turns it
// into a dry run; ?dry_run=true works too for quick manual calls.
func (s *Server) RunReconciliation(c *fiber.Ctx) error {
	var filter service.ReconcileFilter
	if len(c.Body()) > 0 {
		if err := c.BodyParser(&filter); err != nil {
			return models.RespondWithError(c, fiber.StatusBadRequest,
				models.NewValidationError("Invalid request body"))
		}
	}
	if c.QueryBool("dry_run", false) {
		filter.DryRun = true
	}

	summary, err := s.reconcileService.Run(c.UserContext(), filter)
	if err != nil {
		return respondErr(c, err)
	}
	return c.JSON(summary)
}

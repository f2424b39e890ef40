package server

import (
	"arbor/internal/models"

	"github.com/gofiber/fiber/v2"
)

// ResolveHostname handles GET /api/resolve?host=<hostname>.
// The edge calls this on every incoming request to route it to a tenant.
// The answer always succeeds: unknown hostnames and degraded lookups both
// resolve to the global tenant (id 0).
func (s *Server) ResolveHostname(c *fiber.Ctx) error {
	host := c.Query("host")
	if host == "" {
		return models.RespondWithError(c, fiber.StatusBadRequest,
			models.NewValidationError("host query parameter is required"))
	}

	res := s.resolverService.Resolve(c.UserContext(), host)
	return c.JSON(res)
}

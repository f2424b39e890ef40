package server

import (
	"strings"

	"arbor/internal/models"

	"github.com/gofiber/fiber/v2"
)

// GetBranches handles GET /api/admin/branches.
// Lists every provider-known branch annotated with its tenant mapping;
// branches no live tenant references are flagged as orphaned.
func (s *Server) GetBranches(c *fiber.Ctx) error {
	branches, err := s.branchService.ListBranches(c.UserContext())
	if err != nil {
		return respondErr(c, err)
	}
	return c.JSON(fiber.Map{"branches": branches})
}

// GetBranchHealth handles GET /api/admin/branches/:name/health.
func (s *Server) GetBranchHealth(c *fiber.Ctx) error {
	name := strings.TrimSpace(c.Params("name"))
	if name == "" {
		return models.RespondWithError(c, fiber.StatusBadRequest,
			models.NewValidationError("branch name is required"))
	}

	health, err := s.branchService.HealthCheck(c.UserContext(), name)
	if err != nil {
		return respondErr(c, err)
	}
	return c.JSON(health)
}

// DeleteBranch handles DELETE /api/admin/branches/:name.
// Destroys the branch at the provider; ?unmap=true also clears the branch
// mapping from the tenant request that references it. Deleting a branch that
// is already gone succeeds.
func (s *Server) DeleteBranch(c *fiber.Ctx) error {
	name := strings.TrimSpace(c.Params("name"))
	if name == "" {
		return models.RespondWithError(c, fiber.StatusBadRequest,
			models.NewValidationError("branch name is required"))
	}

	if err := s.branchService.RemoveBranch(c.UserContext(), name, c.QueryBool("unmap", false)); err != nil {
		return respondErr(c, err)
	}
	return c.SendStatus(fiber.StatusNoContent)
}

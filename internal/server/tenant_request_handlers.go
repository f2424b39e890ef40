package server

import (
	"arbor/internal/models"

	"github.com/gofiber/fiber/v2"
)

// CreateTenantRequestInput is the request body for submitting a tenant request.
type CreateTenantRequestInput struct {
	DesiredDomain  string `json:"desired_domain"`
	OwnerProfileID uint   `json:"owner_profile_id"`
	// OwnerUsername creates a fresh owner profile when no profile id is given.
	OwnerUsername string `json:"owner_username"`
}

// CreateTenantRequest handles POST /api/admin/tenants/requests.
func (s *Server) CreateTenantRequest(c *fiber.Ctx) error {
	var input CreateTenantRequestInput
	if err := c.BodyParser(&input); err != nil {
		return models.RespondWithError(c, fiber.StatusBadRequest,
			models.NewValidationError("Invalid request body"))
	}

	req, err := s.lifecycleService.Submit(
		c.UserContext(), input.DesiredDomain, input.OwnerProfileID, input.OwnerUsername)
	if err != nil {
		return respondErr(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(req)
}

// GetTenantRequests handles GET /api/admin/tenants/requests.
// Supports ?status= filtering and limit/offset pagination.
func (s *Server) GetTenantRequests(c *fiber.Ctx) error {
	p := parsePagination(c, 50)
	status := models.TenantRequestStatus(c.Query("status"))

	reqs, err := s.lifecycleService.List(c.UserContext(), status, p.Limit, p.Offset)
	if err != nil {
		return respondErr(c, err)
	}
	return c.JSON(fiber.Map{
		"requests": reqs,
		"limit":    p.Limit,
		"offset":   p.Offset,
	})
}

// GetTenantRequest handles GET /api/admin/tenants/requests/:id.
func (s *Server) GetTenantRequest(c *fiber.Ctx) error {
	id, err := s.parseID(c, "id")
	if err != nil {
		return nil
	}

	req, err := s.lifecycleService.Get(c.UserContext(), id)
	if err != nil {
		return respondErr(c, err)
	}
	return c.JSON(req)
}

// ApproveTenantRequest handles POST /api/admin/tenants/requests/:id/approve.
func (s *Server) ApproveTenantRequest(c *fiber.Ctx) error {
	id, err := s.parseID(c, "id")
	if err != nil {
		return nil
	}

	req, err := s.lifecycleService.Approve(c.UserContext(), id)
	if err != nil {
		return respondErr(c, err)
	}
	return c.JSON(req)
}

// RejectTenantRequestInput is the request body for rejecting a tenant request.
type RejectTenantRequestInput struct {
	Reason string `json:"reason"`
}

// RejectTenantRequest handles POST /api/admin/tenants/requests/:id/reject.
func (s *Server) RejectTenantRequest(c *fiber.Ctx) error {
	id, err := s.parseID(c, "id")
	if err != nil {
		return nil
	}

	var input RejectTenantRequestInput
	if err := c.BodyParser(&input); err != nil {
		return models.RespondWithError(c, fiber.StatusBadRequest,
			models.NewValidationError("Invalid request body"))
	}

	req, err := s.lifecycleService.Reject(c.UserContext(), id, input.Reason)
	if err != nil {
		return respondErr(c, err)
	}
	return c.JSON(req)
}

// DeleteTenant handles DELETE /api/admin/tenants/requests/:id.
// Deletion is best-effort across independent systems; when any resource is
// left behind, the response is 207 with the cleanup report so the operator
// knows exactly what to retry.
func (s *Server) DeleteTenant(c *fiber.Ctx) error {
	id, err := s.parseID(c, "id")
	if err != nil {
		return nil
	}

	report, err := s.lifecycleService.Delete(c.UserContext(), id)
	if err != nil {
		return respondErr(c, err)
	}

	status := fiber.StatusOK
	if !report.Clean() {
		status = fiber.StatusMultiStatus
	}
	return c.Status(status).JSON(report)
}

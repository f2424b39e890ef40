package server

import (
	"github.com/gofiber/fiber/v2"
)

// BindTenantDomain handles POST /api/admin/tenants/:id/domain/bind.
// Registers the tenant's custom domain with the hosting layer. Binding is
// idempotent; rebinding after a partial failure is safe.
func (s *Server) BindTenantDomain(c *fiber.Ctx) error {
	id, err := s.parseID(c, "id")
	if err != nil {
		return nil
	}

	req, err := s.lifecycleService.BindDomain(c.UserContext(), id)
	if err != nil {
		return respondErr(c, err)
	}
	return c.JSON(req)
}

// VerifyTenantDomain handles GET /api/admin/tenants/:id/domain/verify.
func (s *Server) VerifyTenantDomain(c *fiber.Ctx) error {
	id, err := s.parseID(c, "id")
	if err != nil {
		return nil
	}

	result, err := s.lifecycleService.VerifyDomain(c.UserContext(), id)
	if err != nil {
		return respondErr(c, err)
	}
	return c.JSON(result)
}

// CheckTenantConnectivity handles GET /api/admin/tenants/:id/connectivity.
// Probes the custom and platform domains independently and reports both.
func (s *Server) CheckTenantConnectivity(c *fiber.Ctx) error {
	id, err := s.parseID(c, "id")
	if err != nil {
		return nil
	}

	report, err := s.lifecycleService.CheckConnectivity(c.UserContext(), id)
	if err != nil {
		return respondErr(c, err)
	}
	return c.JSON(report)
}

package server

import (
	"strings"

	"arbor/internal/models"
	"arbor/internal/service"

	"github.com/gofiber/fiber/v2"
)

// tenantScope reads the ?tenant= query parameter. Zero targets the global
// default tier.
func tenantScope(c *fiber.Ctx) uint {
	t := c.QueryInt("tenant", 0)
	if t < 0 {
		return 0
	}
	return uint(t)
}

// GetSettings handles GET /api/admin/settings?tenant=N.
// Returns the effective merged view: one row per key, tenant override
// winning over the global default, each row flagged with its provenance.
func (s *Server) GetSettings(c *fiber.Ctx) error {
	settings, err := s.settingsService.GetAll(c.UserContext(), tenantScope(c))
	if err != nil {
		return respondErr(c, err)
	}
	return c.JSON(fiber.Map{"settings": settings})
}

// GetSetting handles GET /api/admin/settings/:key?tenant=N.
func (s *Server) GetSetting(c *fiber.Ctx) error {
	key := strings.TrimSpace(c.Params("key"))
	setting, err := s.settingsService.Get(c.UserContext(), key, tenantScope(c))
	if err != nil {
		return respondErr(c, err)
	}
	return c.JSON(setting)
}

// PutSetting handles PUT /api/admin/settings/:key?tenant=N.
// Super admins may write any tier including new global defaults; regular
// admins may only override allow-listed keys for a tenant tier.
func (s *Server) PutSetting(c *fiber.Ctx) error {
	var input service.SettingInput
	if err := c.BodyParser(&input); err != nil {
		return models.RespondWithError(c, fiber.StatusBadRequest,
			models.NewValidationError("Invalid request body"))
	}
	input.Key = strings.TrimSpace(c.Params("key"))

	super, err := s.isSuperAdmin(c)
	if err != nil {
		return models.RespondWithError(c, fiber.StatusInternalServerError, err)
	}

	setting, err := s.settingsService.Set(c.UserContext(), tenantScope(c), input, super)
	if err != nil {
		return respondErr(c, err)
	}
	return c.JSON(setting)
}

// DeleteSettingOverride handles DELETE /api/admin/settings/:key?tenant=N.
// Removes the tenant's override so the global default shows through again.
func (s *Server) DeleteSettingOverride(c *fiber.Ctx) error {
	key := strings.TrimSpace(c.Params("key"))
	if err := s.settingsService.RevertToDefault(c.UserContext(), key, tenantScope(c)); err != nil {
		return respondErr(c, err)
	}
	return c.SendStatus(fiber.StatusNoContent)
}

// ImportSettingsInput is the request body for a staged settings import.
type ImportSettingsInput struct {
	Settings []service.SettingInput `json:"settings"`
}

// ImportSettings handles POST /api/admin/settings/import?tenant=N&commit=true.
// Without commit the response is a per-entry validation preview; with commit
// the accepted entries are applied and rejected ones reported.
func (s *Server) ImportSettings(c *fiber.Ctx) error {
	var input ImportSettingsInput
	if err := c.BodyParser(&input); err != nil {
		return models.RespondWithError(c, fiber.StatusBadRequest,
			models.NewValidationError("Invalid request body"))
	}
	if len(input.Settings) == 0 {
		return models.RespondWithError(c, fiber.StatusBadRequest,
			models.NewValidationError("settings list is empty"))
	}

	super, err := s.isSuperAdmin(c)
	if err != nil {
		return models.RespondWithError(c, fiber.StatusInternalServerError, err)
	}

	commit := c.QueryBool("commit", false)
	report, err := s.settingsService.Import(
		c.UserContext(), tenantScope(c), input.Settings, commit, super)
	if err != nil {
		return respondErr(c, err)
	}
	return c.JSON(report)
}

// ExportSettings handles GET /api/admin/settings/export?tenant=N.
// Exports the tenant's own override rows (or the full default set for
// tenant 0), suitable for re-import.
func (s *Server) ExportSettings(c *fiber.Ctx) error {
	rows, err := s.settingsService.Export(c.UserContext(), tenantScope(c))
	if err != nil {
		return respondErr(c, err)
	}
	return c.JSON(fiber.Map{"settings": rows})
}

package server

import (
	"context"
	"errors"

	"arbor/internal/models"

	"github.com/gofiber/fiber/v2"
)

// errResponseWritten is a sentinel indicating the HTTP response was already
// committed by a helper.  Handlers must return nil (not this error) to avoid
// Fiber's ErrorHandler overwriting the response.
var errResponseWritten = errors.New("response already written")

// Pagination holds parsed limit/offset query parameters.
type Pagination struct {
	Limit  int
	Offset int
}

const (
	maxPaginationLimit = 100
)

// parsePagination extracts limit and offset query parameters with the given default limit.
func parsePagination(c *fiber.Ctx, defaultLimit int) Pagination {
	limit := c.QueryInt("limit", defaultLimit)
	if limit <= 0 {
		limit = defaultLimit
	}
	if limit > maxPaginationLimit {
		limit = maxPaginationLimit
	}

	offset := c.QueryInt("offset", 0)
	if offset < 0 {
		offset = 0
	}

	return Pagination{
		Limit:  limit,
		Offset: offset,
	}
}

// parseID extracts a route parameter by name as a positive uint.
// On failure it writes a 400 JSON response and returns errResponseWritten.
// Callers should check: if err != nil { return nil }
func (s *Server) parseID(c *fiber.Ctx, param string) (uint, error) {
	id, err := c.ParamsInt(param)
	if err != nil || id <= 0 {
		_ = models.RespondWithError(c, fiber.StatusBadRequest,
			models.NewValidationError("Invalid "+param))
		return 0, errResponseWritten
	}
	return uint(id), nil
}

// respondErr writes an error response with the status implied by the error's
// taxonomy code.
func respondErr(c *fiber.Ctx, err error) error {
	return models.RespondWithError(c, models.StatusForError(err), err)
}

// adminFlags loads the admin and super-admin flags for a profile.
func (s *Server) adminFlags(ctx context.Context, userID uint) (admin, super bool, err error) {
	var profile models.Profile
	if err := s.db.WithContext(ctx).
		Select("is_admin", "is_super_admin").
		First(&profile, userID).Error; err != nil {
		return false, false, err
	}
	return profile.IsAdmin || profile.IsSuperAdmin, profile.IsSuperAdmin, nil
}

// isSuperAdmin reports whether the acting user holds the super-admin flag.
// Super admins may edit global defaults and any setting key.
func (s *Server) isSuperAdmin(c *fiber.Ctx) (bool, error) {
	userID, ok := c.Locals("userID").(uint)
	if !ok {
		return false, nil
	}
	_, super, err := s.adminFlags(c.UserContext(), userID)
	return super, err
}

package server

import (
	"shutter/internal/middleware"
	"shutter/internal/models"

	"github.com/gofiber/fiber/v2"
)

// SyncProfile handles POST /api/profile/sync
// @Summary Ensure the caller has a profile
// @Description Creates the caller's profile on first sign-in. An optional body updates username, display name and avatar.
// @Tags profile
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param request body models.ProfileMetadata false "Identity provider metadata"
// @Success 200 {object} object{ok=bool}
// @Failure 400 {object} models.ErrorResponse
// @Failure 401 {object} models.ErrorResponse
// @Router /profile/sync [post]
func (s *Server) SyncProfile(c *fiber.Ctx) error {
	var meta *models.ProfileMetadata
	if len(c.Body()) > 0 {
		meta = &models.ProfileMetadata{}
		if err := c.BodyParser(meta); err != nil {
			return models.RespondWithError(c, fiber.StatusBadRequest,
				models.NewValidationError("Invalid request body"))
		}
	}

	if _, err := s.profiles.Sync(c.UserContext(), middleware.SubjectFrom(c), meta); err != nil {
		return respondServiceError(c, err)
	}
	return okResponse(c)
}

// GetMyProfile handles GET /api/profile/me
// @Summary Get the caller's profile
// @Tags profile
// @Produce json
// @Security BearerAuth
// @Success 200 {object} models.Profile
// @Failure 401 {object} models.ErrorResponse
// @Router /profile/me [get]
func (s *Server) GetMyProfile(c *fiber.Ctx) error {
	profile, err := s.profiles.Ensure(c.UserContext(), middleware.SubjectFrom(c))
	if err != nil {
		return respondServiceError(c, err)
	}
	return c.JSON(profile)
}

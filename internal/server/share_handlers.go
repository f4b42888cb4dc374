package server

import (
	"shutter/internal/validation"

	"github.com/gofiber/fiber/v2"
)

// Share handles POST /api/share
// @Summary Count a share
// @Description Every call increments the post's share count.
// @Tags posts
// @Accept json
// @Produce json
// @Param request body object{postId=int} true "Shared post"
// @Success 200 {object} object{ok=bool}
// @Failure 400 {object} models.ErrorResponse
// @Failure 404 {object} models.ErrorResponse
// @Failure 429 {object} models.ErrorResponse
// @Router /share [post]
func (s *Server) Share(c *fiber.Ctx) error {
	ref, err := validation.ParsePostRef(c.Body())
	if err != nil {
		return respondServiceError(c, err)
	}
	if err := s.shares.Share(c.UserContext(), ref.PostID); err != nil {
		return respondServiceError(c, err)
	}
	return okResponse(c)
}

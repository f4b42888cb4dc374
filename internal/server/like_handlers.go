package server

import (
	"shutter/internal/middleware"
	"shutter/internal/validation"

	"github.com/gofiber/fiber/v2"
)

// AddLike handles POST /api/likes
// @Summary Like a post
// @Tags likes
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param request body object{postId=int} true "Post to like"
// @Success 200 {object} object{ok=bool}
// @Failure 400 {object} models.ErrorResponse
// @Failure 401 {object} models.ErrorResponse
// @Failure 404 {object} models.ErrorResponse
// @Router /likes [post]
func (s *Server) AddLike(c *fiber.Ctx) error {
	ref, err := validation.ParsePostRef(c.Body())
	if err != nil {
		return respondServiceError(c, err)
	}
	if err := s.likes.Add(c.UserContext(), ref.PostID, middleware.SubjectFrom(c)); err != nil {
		return respondServiceError(c, err)
	}
	return okResponse(c)
}

// RemoveLike handles DELETE /api/likes
// @Summary Remove a like
// @Description Succeeds whether or not the caller had liked the post.
// @Tags likes
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param request body object{postId=int} true "Post to unlike"
// @Success 200 {object} object{ok=bool}
// @Failure 400 {object} models.ErrorResponse
// @Failure 401 {object} models.ErrorResponse
// @Router /likes [delete]
func (s *Server) RemoveLike(c *fiber.Ctx) error {
	ref, err := validation.ParsePostRef(c.Body())
	if err != nil {
		return respondServiceError(c, err)
	}
	if err := s.likes.Remove(c.UserContext(), ref.PostID, middleware.SubjectFrom(c)); err != nil {
		return respondServiceError(c, err)
	}
	return okResponse(c)
}

package server

import (
	"shutter/internal/service"

	"github.com/gofiber/fiber/v2"
)

// GetPosts handles GET /api/posts
// @Summary List the feed
// @Description Newest-first posts with like counts. Pass nextCursor back as cursor for the next page.
// @Tags posts
// @Produce json
// @Param cursor query string false "Cursor from a previous page"
// @Param limit query int false "Page size"
// @Success 200 {object} models.FeedPage
// @Failure 400 {object} models.ErrorResponse
// @Failure 500 {object} models.ErrorResponse
// @Router /posts [get]
func (s *Server) GetPosts(c *fiber.Ctx) error {
	page, err := s.feed.List(c.UserContext(), service.ListFeedInput{
		Cursor:        c.Query("cursor"),
		Limit:         c.QueryInt("limit", 0),
		ViewerSubject: s.optionalSubject(c),
	})
	if err != nil {
		return respondServiceError(c, err)
	}
	return c.JSON(page)
}

// GetPostImage handles GET /api/posts/:id/image
// @Summary Resolve a post's image URL
// @Description Absolute URLs are returned as stored; bucket keys are signed for one hour.
// @Tags posts
// @Produce json
// @Param id path int true "Post ID"
// @Success 200 {object} object{url=string}
// @Failure 400 {object} models.ErrorResponse
// @Failure 404 {object} models.ErrorResponse
// @Failure 500 {object} models.ErrorResponse
// @Router /posts/{id}/image [get]
func (s *Server) GetPostImage(c *fiber.Ctx) error {
	id, err := pathID(c, "id")
	if err != nil {
		return respondServiceError(c, err)
	}

	url, err := s.images.Resolve(c.UserContext(), id)
	if err != nil {
		return respondServiceError(c, err)
	}
	return c.JSON(fiber.Map{"url": url})
}

package server

import (
	"io"

	"shutter/internal/middleware"
	"shutter/internal/models"
	"shutter/internal/service"
	"shutter/internal/validation"

	"github.com/gofiber/fiber/v2"
)

// Upload handles POST /api/upload
// @Summary Upload a photo
// @Description Downscales to the configured bound, stores the image and creates the post.
// @Tags upload
// @Accept multipart/form-data
// @Produce json
// @Security BearerAuth
// @Param file formData file true "Image"
// @Param caption formData string false "Caption"
// @Param location formData string false "Location JSON object"
// @Param userData formData string false "Identity provider metadata JSON"
// @Success 200 {object} object{post=models.Post}
// @Failure 400 {object} models.ErrorResponse
// @Failure 401 {object} models.ErrorResponse
// @Failure 429 {object} models.ErrorResponse
// @Failure 500 {object} models.ErrorResponse
// @Router /upload [post]
func (s *Server) Upload(c *fiber.Ctx) error {
	file, err := c.FormFile("file")
	if err != nil {
		return models.RespondWithError(c, fiber.StatusBadRequest, models.NewValidationError("No file"))
	}
	if err := validation.ValidateUpload(file.Size, s.uploads.MaxBytes()); err != nil {
		return respondServiceError(c, err)
	}

	location, err := validation.ParseLocation(c.FormValue("location"))
	if err != nil {
		return respondServiceError(c, err)
	}
	userData, err := validation.ParseProfileMetadata(c.FormValue("userData"))
	if err != nil {
		return respondServiceError(c, err)
	}

	src, err := file.Open()
	if err != nil {
		return models.RespondWithError(c, fiber.StatusBadRequest, models.NewValidationError("Unable to read uploaded file"))
	}
	defer func() { _ = src.Close() }()

	content, err := io.ReadAll(io.LimitReader(src, s.uploads.MaxBytes()+1))
	if err != nil {
		return models.RespondWithError(c, fiber.StatusBadRequest, models.NewValidationError("Unable to read uploaded file"))
	}

	post, err := s.uploads.Upload(c.UserContext(), service.UploadInput{
		Subject:     middleware.SubjectFrom(c),
		Filename:    file.Filename,
		ContentType: file.Header.Get("Content-Type"),
		Content:     content,
		Caption:     c.FormValue("caption"),
		Location:    location,
		UserData:    userData,
	})
	if err != nil {
		return respondServiceError(c, err)
	}
	return c.JSON(fiber.Map{"post": post})
}

// UploadStatus handles GET /api/upload
// @Summary Describe the upload pipeline
// @Tags upload
// @Produce json
// @Success 200 {object} UploadCapabilities
// @Router /upload [get]
func (s *Server) UploadStatus(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{
		"status":       "ok",
		"capabilities": s.capabilities,
	})
}

package server

import (
	"log/slog"
	"math"
	"strconv"

	"shutter/internal/middleware"
	"shutter/internal/models"

	"github.com/gofiber/fiber/v2"
)

// pathID reads the route parameter name as a positive row ID.
func pathID(c *fiber.Ctx, name string) (uint, error) {
	id, err := strconv.ParseUint(c.Params(name), 10, 64)
	if err != nil || id == 0 || id > math.MaxUint32 {
		return 0, models.NewValidationError("Invalid " + name)
	}
	return uint(id), nil
}

// respondServiceError writes err with the status its code maps to. Errors
// without a code are hidden behind a generic internal error; every 5xx is
// logged.
func respondServiceError(c *fiber.Ctx, err error) error {
	status := models.HTTPStatus(err)
	code := models.ErrorCode(err)
	if code == "" {
		err = models.NewInternalError(err)
		code = models.CodeInternal
	}
	if status >= fiber.StatusInternalServerError {
		middleware.Logger.ErrorContext(c.UserContext(), "request failed",
			slog.String("code", code),
			slog.String("error", err.Error()),
		)
	}
	return models.RespondWithError(c, status, err)
}

// okResponse is the body of mutations that return no resource.
func okResponse(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{"ok": true})
}

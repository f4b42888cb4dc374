// Package service implements the photo feed use cases on top of the
// repositories, object store and event publisher.
package service

import (
	"errors"

	"shutter/internal/models"
)

// asServiceError passes AppErrors through and wraps anything else as a
// ServiceError at stage.
func asServiceError(stage, message string, err error) error {
	if err == nil {
		return nil
	}
	var appErr *models.AppError
	if errors.As(err, &appErr) {
		return err
	}
	return models.NewServiceError(stage, message, err)
}

func isNotFound(err error) bool {
	return models.ErrorCode(err) == models.CodeNotFound
}

// Package repository provides data access layer implementations for the application.
package repository

import (
	"context"

	"shutter/internal/observability"

	"gorm.io/gorm"
)

// startQuery opens a repository span and latency timer; call the returned
// function with the method's final error.
func startQuery(ctx context.Context, db *gorm.DB, method, table string) (context.Context, func(error)) {
	ctx, span := observability.StartRepositorySpan(ctx, db.Dialector.Name(), method, table)
	done := observability.TrackQuery(method, table)
	return ctx, func(err error) {
		done()
		observability.EndSpan(span, err)
	}
}

func isPostgres(db *gorm.DB) bool {
	return db.Dialector.Name() == "postgres"
}

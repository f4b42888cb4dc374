package repository

import (
	"context"
	"errors"

	"shutter/internal/models"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// ProfileRepository defines persistence operations for profiles.
type ProfileRepository interface {
	GetBySubject(ctx context.Context, subject string) (*models.Profile, error)
	// EnsureBySubject inserts profile unless one already exists for its
	// subject, then returns the stored row. Safe under concurrent callers.
	EnsureBySubject(ctx context.Context, profile *models.Profile) (*models.Profile, error)
	UpdateMetadata(ctx context.Context, id uint, username, displayName, avatarURL string) error
}

type profileRepository struct {
	db *gorm.DB
}

// NewProfileRepository returns a new ProfileRepository implementation.
func NewProfileRepository(db *gorm.DB) ProfileRepository {
	return &profileRepository{db: db}
}

func (r *profileRepository) GetBySubject(ctx context.Context, subject string) (_ *models.Profile, err error) {
	ctx, end := startQuery(ctx, r.db, "GetBySubject", "profiles")
	defer func() { end(err) }()

	var profile models.Profile
	if err := r.db.WithContext(ctx).Where("subject = ?", subject).First(&profile).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, models.NewNotFoundError("Profile", subject)
		}
		return nil, err
	}
	return &profile, nil
}

func (r *profileRepository) EnsureBySubject(ctx context.Context, profile *models.Profile) (_ *models.Profile, err error) {
	ctx, end := startQuery(ctx, r.db, "EnsureBySubject", "profiles")
	defer func() { end(err) }()

	err = r.db.WithContext(ctx).
		Clauses(clause.OnConflict{Columns: []clause.Column{{Name: "subject"}}, DoNothing: true}).
		Create(profile).Error
	if err != nil {
		return nil, err
	}

	var stored models.Profile
	if err := r.db.WithContext(ctx).Where("subject = ?", profile.Subject).First(&stored).Error; err != nil {
		return nil, err
	}
	return &stored, nil
}

func (r *profileRepository) UpdateMetadata(ctx context.Context, id uint, username, displayName, avatarURL string) (err error) {
	ctx, end := startQuery(ctx, r.db, "UpdateMetadata", "profiles")
	defer func() { end(err) }()

	updates := map[string]interface{}{}
	if username != "" {
		updates["username"] = username
	}
	if displayName != "" {
		updates["display_name"] = displayName
	}
	if avatarURL != "" {
		updates["avatar_url"] = avatarURL
	}
	if len(updates) == 0 {
		return nil
	}

	result := r.db.WithContext(ctx).Model(&models.Profile{}).Where("id = ?", id).Updates(updates)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return models.NewNotFoundError("Profile", id)
	}
	return nil
}

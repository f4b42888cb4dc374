package service

import (
	"context"
	"log/slog"

	"shutter/internal/middleware"
	"shutter/internal/models"
	"shutter/internal/repository"
	"shutter/internal/validation"
)

// ProfileService maps identity-provider subjects to local profiles,
// creating them on first use.
type ProfileService struct {
	repo repository.ProfileRepository
}

func NewProfileService(repo repository.ProfileRepository) *ProfileService {
	return &ProfileService{repo: repo}
}

// DefaultUsername derives a placeholder username from the last six
// characters of the subject.
func DefaultUsername(subject string) string {
	if len(subject) > 6 {
		subject = subject[len(subject)-6:]
	}
	return "user_" + subject
}

// Lookup returns the subject's profile, or nil when none exists yet.
func (s *ProfileService) Lookup(ctx context.Context, subject string) (*models.Profile, error) {
	if subject == "" {
		return nil, nil
	}
	profile, err := s.repo.GetBySubject(ctx, subject)
	if err != nil {
		if isNotFound(err) {
			return nil, nil
		}
		return nil, models.NewServiceError(models.StageProfile, "Failed to load profile", err)
	}
	return profile, nil
}

// Ensure returns the subject's profile, creating it with default metadata
// when absent.
func (s *ProfileService) Ensure(ctx context.Context, subject string) (*models.Profile, error) {
	return s.Sync(ctx, subject, nil)
}

// Sync returns the subject's profile, creating it from meta when absent.
// When the profile exists and meta carries a different username or avatar,
// the profile is updated; an update failure is logged and the stored
// profile is returned unchanged.
func (s *ProfileService) Sync(ctx context.Context, subject string, meta *models.ProfileMetadata) (*models.Profile, error) {
	if subject == "" {
		return nil, models.NewUnauthorizedError("Unauthorized")
	}
	if err := validation.ValidateProfileMetadata(meta); err != nil {
		return nil, err
	}

	profile, err := s.repo.GetBySubject(ctx, subject)
	if err != nil {
		if !isNotFound(err) {
			return nil, models.NewServiceError(models.StageProfile, "Failed to load profile", err)
		}
		return s.create(ctx, subject, meta)
	}

	if !metadataChanged(profile, meta) {
		return profile, nil
	}

	username := firstNonEmpty(meta.Username, profile.Username)
	displayName := firstNonEmpty(meta.DisplayName, meta.Username, profile.DisplayName)
	avatarURL := firstNonEmpty(meta.ProfilePictureURL, profile.AvatarURL)
	if err := s.repo.UpdateMetadata(ctx, profile.ID, username, displayName, avatarURL); err != nil {
		middleware.Logger.WarnContext(ctx, "profile update failed",
			slog.Uint64("profile_id", uint64(profile.ID)),
			slog.String("error", err.Error()),
		)
		return profile, nil
	}
	profile.Username = username
	profile.DisplayName = displayName
	profile.AvatarURL = avatarURL
	return profile, nil
}

func (s *ProfileService) create(ctx context.Context, subject string, meta *models.ProfileMetadata) (*models.Profile, error) {
	fallback := DefaultUsername(subject)
	candidate := &models.Profile{Subject: subject, Username: fallback, DisplayName: fallback}
	if meta != nil {
		candidate.Username = firstNonEmpty(meta.Username, fallback)
		candidate.DisplayName = firstNonEmpty(meta.DisplayName, meta.Username, fallback)
		candidate.AvatarURL = meta.ProfilePictureURL
	}

	profile, err := s.repo.EnsureBySubject(ctx, candidate)
	if err != nil {
		return nil, models.NewServiceError(models.StageProfile, "Failed to create profile", err)
	}
	middleware.Logger.InfoContext(ctx, "profile created", slog.Uint64("profile_id", uint64(profile.ID)))
	return profile, nil
}

func metadataChanged(p *models.Profile, meta *models.ProfileMetadata) bool {
	if meta == nil {
		return false
	}
	return (meta.Username != "" && meta.Username != p.Username) ||
		(meta.ProfilePictureURL != "" && meta.ProfilePictureURL != p.AvatarURL)
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

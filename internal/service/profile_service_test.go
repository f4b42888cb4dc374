package service

import (
	"context"
	"errors"
	"testing"

	"shutter/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultUsername(t *testing.T) {
	assert.Equal(t, "user_a1b2c3", DefaultUsername("user_2abcdefa1b2c3"))
	assert.Equal(t, "user_abc", DefaultUsername("abc"))
}

func TestProfileService_EnsureCreatesOnce(t *testing.T) {
	repo := newProfileRepoStub()
	svc := NewProfileService(repo)

	first, err := svc.Ensure(context.Background(), "idp|000123456")
	require.NoError(t, err)
	second, err := svc.Ensure(context.Background(), "idp|000123456")
	require.NoError(t, err)

	assert.Equal(t, first.ID, second.ID)
	assert.Equal(t, "user_123456", first.Username)
	assert.Equal(t, "user_123456", first.DisplayName)
	assert.Len(t, repo.bySubject, 1)
}

func TestProfileService_SyncCreatesFromMetadata(t *testing.T) {
	svc := NewProfileService(newProfileRepoStub())

	p, err := svc.Sync(context.Background(), "sub_1", &models.ProfileMetadata{
		Username:          "  travel_lover ",
		ProfilePictureURL: "https://images.example.com/sarah.jpg",
	})
	require.NoError(t, err)
	assert.Equal(t, "travel_lover", p.Username)
	assert.Equal(t, "travel_lover", p.DisplayName)
	assert.Equal(t, "https://images.example.com/sarah.jpg", p.AvatarURL)
}

func TestProfileService_SyncUpdatesChangedMetadata(t *testing.T) {
	repo := newProfileRepoStub(&models.Profile{ID: 4, Subject: "sub_4", Username: "old", DisplayName: "Old"})
	svc := NewProfileService(repo)

	p, err := svc.Sync(context.Background(), "sub_4", &models.ProfileMetadata{Username: "new", DisplayName: "New Name"})
	require.NoError(t, err)
	assert.Equal(t, "new", p.Username)
	assert.Equal(t, "New Name", p.DisplayName)
	assert.Equal(t, 1, repo.updates)

	_, err = svc.Sync(context.Background(), "sub_4", &models.ProfileMetadata{Username: "new"})
	require.NoError(t, err)
	assert.Equal(t, 1, repo.updates, "unchanged metadata must not write")
}

func TestProfileService_SyncUpdateFailureIsIgnored(t *testing.T) {
	repo := newProfileRepoStub(&models.Profile{ID: 4, Subject: "sub_4", Username: "old"})
	repo.updateErr = errors.New("deadlock")
	svc := NewProfileService(repo)

	p, err := svc.Sync(context.Background(), "sub_4", &models.ProfileMetadata{Username: "new"})
	require.NoError(t, err)
	assert.Equal(t, "old", p.Username)
}

func TestProfileService_Errors(t *testing.T) {
	svc := NewProfileService(newProfileRepoStub())
	_, err := svc.Ensure(context.Background(), "")
	assertAppError(t, err, models.CodeUnauthorized)

	_, err = svc.Sync(context.Background(), "sub", &models.ProfileMetadata{ProfilePictureURL: "javascript:alert(1)"})
	assertAppError(t, err, models.CodeValidation)

	repo := newProfileRepoStub()
	repo.getErr = errors.New("db down")
	_, err = NewProfileService(repo).Lookup(context.Background(), "sub")
	appErr := assertAppError(t, err, models.CodeService)
	assert.Equal(t, models.StageProfile, appErr.Stage)
}

func TestProfileService_LookupMissingReturnsNil(t *testing.T) {
	svc := NewProfileService(newProfileRepoStub())
	p, err := svc.Lookup(context.Background(), "nobody")
	require.NoError(t, err)
	assert.Nil(t, p)

	p, err = svc.Lookup(context.Background(), "")
	require.NoError(t, err)
	assert.Nil(t, p)
}

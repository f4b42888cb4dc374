package models

import "time"

// Profile is the local record for an identity-provider subject.
type Profile struct {
	ID          uint      `gorm:"primaryKey" json:"id"`
	Subject     string    `gorm:"size:191;not null;uniqueIndex" json:"-"`
	Username    string    `gorm:"size:100;not null" json:"username"`
	DisplayName string    `gorm:"size:100" json:"display_name"`
	AvatarURL   string    `json:"avatar_url"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// ProfileMetadata is the user metadata the client forwards from the identity provider.
type ProfileMetadata struct {
	Username          string `json:"username"`
	DisplayName       string `json:"displayName"`
	ProfilePictureURL string `json:"profilePictureUrl"`
}

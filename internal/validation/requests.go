// Package validation checks request payloads before they reach services.
package validation

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"unicode/utf8"

	"shutter/internal/models"
)

const (
	// MaxCaptionLength is the longest caption accepted, in characters.
	MaxCaptionLength = 2200
	// MaxLocationBytes bounds the raw location JSON.
	MaxLocationBytes = 4096
	maxNameLength    = 100
)

// PostRef is the body of like, unlike and share requests.
type PostRef struct {
	PostID uint
}

// ParsePostRef decodes {"postId": <positive integer>}. Numeric strings are
// accepted for clients that serialize ids as text.
func ParsePostRef(body []byte) (PostRef, error) {
	if len(bytes.TrimSpace(body)) == 0 {
		return PostRef{}, models.NewValidationError("postId required")
	}

	var raw struct {
		PostID json.RawMessage `json:"postId"`
	}
	if err := json.Unmarshal(body, &raw); err != nil {
		return PostRef{}, models.NewValidationError("Request body must be a JSON object")
	}
	if len(raw.PostID) == 0 || string(raw.PostID) == "null" {
		return PostRef{}, models.NewValidationError("postId required")
	}

	text := strings.Trim(string(raw.PostID), `"`)
	id, err := strconv.ParseUint(text, 10, 32)
	if err != nil || id == 0 {
		return PostRef{}, models.NewValidationError("postId must be a positive integer")
	}
	return PostRef{PostID: uint(id)}, nil
}

// ParseProfileMetadata decodes the userData form field. Empty input yields nil.
func ParseProfileMetadata(raw string) (*models.ProfileMetadata, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, nil
	}

	var meta models.ProfileMetadata
	dec := json.NewDecoder(strings.NewReader(raw))
	if err := dec.Decode(&meta); err != nil {
		return nil, models.NewValidationError("userData must be a JSON object")
	}
	if err := ValidateProfileMetadata(&meta); err != nil {
		return nil, err
	}
	return &meta, nil
}

// ValidateProfileMetadata trims fields and enforces length limits.
func ValidateProfileMetadata(meta *models.ProfileMetadata) error {
	if meta == nil {
		return nil
	}
	meta.Username = strings.TrimSpace(meta.Username)
	meta.DisplayName = strings.TrimSpace(meta.DisplayName)
	meta.ProfilePictureURL = strings.TrimSpace(meta.ProfilePictureURL)

	if utf8.RuneCountInString(meta.Username) > maxNameLength {
		return models.NewValidationError("username is too long")
	}
	if utf8.RuneCountInString(meta.DisplayName) > maxNameLength {
		return models.NewValidationError("displayName is too long")
	}
	if meta.ProfilePictureURL != "" && !strings.HasPrefix(meta.ProfilePictureURL, "http://") &&
		!strings.HasPrefix(meta.ProfilePictureURL, "https://") {
		return models.NewValidationError("profilePictureUrl must be an http(s) URL")
	}
	return nil
}

// ParseLocation accepts an optional JSON object and returns it compacted.
func ParseLocation(raw string) (json.RawMessage, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, nil
	}
	if len(raw) > MaxLocationBytes {
		return nil, models.NewValidationError("location is too large")
	}

	var obj map[string]any
	if err := json.Unmarshal([]byte(raw), &obj); err != nil {
		return nil, models.NewValidationError("location must be a JSON object")
	}
	var buf bytes.Buffer
	if err := json.Compact(&buf, []byte(raw)); err != nil {
		return nil, models.NewValidationError("location must be a JSON object")
	}
	return json.RawMessage(buf.Bytes()), nil
}

// ValidateCaption trims the caption and enforces its length limit.
func ValidateCaption(caption string) (string, error) {
	caption = strings.TrimSpace(caption)
	if !utf8.ValidString(caption) {
		return "", models.NewValidationError("caption must be valid UTF-8")
	}
	if utf8.RuneCountInString(caption) > MaxCaptionLength {
		return "", models.NewValidationError(fmt.Sprintf("caption exceeds %d characters", MaxCaptionLength))
	}
	return caption, nil
}

// ValidateUpload checks the uploaded file size against maxBytes.
func ValidateUpload(size int64, maxBytes int64) error {
	if size <= 0 {
		return models.NewValidationError("No file")
	}
	if maxBytes > 0 && size > maxBytes {
		return models.NewValidationError(fmt.Sprintf("File too large (max %dMB)", maxBytes/(1024*1024)))
	}
	return nil
}

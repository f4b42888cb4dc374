package seed

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"shutter/internal/models"

	"github.com/brianvoe/gofakeit/v6"
	"gorm.io/datatypes"
)

// Factory builds realistic-looking posts that are never persisted by itself.
type Factory struct {
	faker   *gofakeit.Faker
	maxDays int
	now     func() time.Time
}

// NewFactory returns a Factory whose output is reproducible for a given seed.
func NewFactory(seed int64, maxDays int, now func() time.Time) *Factory {
	if maxDays <= 0 {
		maxDays = 30
	}
	if now == nil {
		now = time.Now
	}
	return &Factory{faker: gofakeit.New(seed), maxDays: maxDays, now: now}
}

// Post builds a post by author with an absolute picsum image URL, a caption
// with hashtags and, most of the time, a location.
func (f *Factory) Post(author *models.Profile) *models.Post {
	minutesBack := f.faker.Number(0, f.maxDays*24*60)
	post := &models.Post{
		ProfileID: author.ID,
		ImagePath: fmt.Sprintf("https://picsum.photos/seed/%s/800/1000", f.faker.UUID()),
		Caption:   f.caption(),
		CreatedAt: f.now().UTC().Add(-time.Duration(minutesBack) * time.Minute),
	}
	if f.faker.Number(1, 4) > 1 {
		post.Location = f.location()
	}
	return post
}

func (f *Factory) caption() string {
	var sb strings.Builder
	sb.WriteString(f.faker.Sentence(f.faker.Number(6, 14)))
	for i, n := 0, f.faker.Number(1, 4); i < n; i++ {
		sb.WriteString(" #")
		sb.WriteString(strings.ToLower(f.faker.Noun()))
	}
	return sb.String()
}

func (f *Factory) location() datatypes.JSON {
	raw, err := json.Marshal(map[string]any{
		"name":    f.faker.City() + ", " + f.faker.Country(),
		"lat":     f.faker.Latitude(),
		"lng":     f.faker.Longitude(),
		"placeId": f.faker.UUID(),
	})
	if err != nil {
		return nil
	}
	return datatypes.JSON(raw)
}

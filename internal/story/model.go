package story

import (
	"time"

	"github.com/google/uuid"
)

// Story represents a row in the stories table.
type Story struct {
	ID               uuid.UUID
	Title            string
	TitleEnglish     string
	Country          string
	Language         string
	Theme            string
	NativeText       string
	EnglishText      string
	Contributor      string
	ContributorEmail string
	NativeAudioURL   *string
	EnglishAudioURL  *string
	IllustrationURL  *string
	IsApproved       bool
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

// ListFilter holds optional filters and pagination for listing stories.
type ListFilter struct {
	Approved *bool
	Language *string
	Country  *string
	Theme    *string
	Search   *string // partial match (ILIKE) over titles, contributor and both texts
	Page     int     // default 1
	Limit    int     // default 20
}

// ListResult holds the result of a paginated list query.
type ListResult struct {
	Stories []Story
	Total   int
	Page    int
	Limit   int
}

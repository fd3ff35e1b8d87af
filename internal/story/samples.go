package story

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// samples are shown when the content datastore cannot be reached.
var samples = []Story{
	{
		ID:               uuid.MustParse("5a0d5c4e-7d3b-4f3e-9c1a-000000000001"),
		Title:            "Kweku Anansi ne Nyansa",
		TitleEnglish:     "Anansi and the Wisdom of the World",
		Country:          "Ghana",
		Language:         "Twi",
		Theme:            "Wisdom",
		NativeText:       "Kweku Anansi na ne ho yε dε ɔwɔ nyansa dodow biara...",
		EnglishText:      "Kweku Anansi thought he possessed all the wisdom in the world...",
		Contributor:      "Akosua Mensah",
		ContributorEmail: "akosua@example.com",
		IllustrationURL:  ptr("https://images.pexels.com/photos/6969141/pexels-photo-6969141.jpeg"),
		IsApproved:       true,
		CreatedAt:        time.Date(2024, 1, 15, 10, 0, 0, 0, time.UTC),
		UpdatedAt:        time.Date(2024, 1, 15, 10, 0, 0, 0, time.UTC),
	},
	{
		ID:               uuid.MustParse("5a0d5c4e-7d3b-4f3e-9c1a-000000000002"),
		Title:            "Tsuro neBere",
		TitleEnglish:     "The Hare and the Hyena",
		Country:          "Zimbabwe",
		Language:         "Shona",
		Theme:            "Tricksters",
		NativeText:       "Paive ne tsuro ne bere vakanga vachigara mumusha mumwe...",
		EnglishText:      "There once lived a hare and a hyena in the same village...",
		Contributor:      "Tendai Mukamuri",
		ContributorEmail: "tendai@example.com",
		IllustrationURL:  ptr("https://images.pexels.com/photos/8828528/pexels-photo-8828528.jpeg"),
		IsApproved:       true,
		CreatedAt:        time.Date(2024, 1, 14, 15, 30, 0, 0, time.UTC),
		UpdatedAt:        time.Date(2024, 1, 14, 15, 30, 0, 0, time.UTC),
	},
	{
		ID:               uuid.MustParse("5a0d5c4e-7d3b-4f3e-9c1a-000000000003"),
		Title:            "Idi ti Oorun ati Osupa wa si Oju Ọrun",
		TitleEnglish:     "Why the Sun and Moon Live in the Sky",
		Country:          "Nigeria",
		Language:         "Yoruba",
		Theme:            "Origin Myths",
		NativeText:       "Ni akoko kan, Oorun ati Osupa wa ni ile...",
		EnglishText:      "Long ago, the Sun and Moon lived on earth...",
		Contributor:      "Adunni Oladele",
		ContributorEmail: "adunni@example.com",
		IllustrationURL:  ptr("https://images.pexels.com/photos/8828563/pexels-photo-8828563.jpeg"),
		IsApproved:       true,
		CreatedAt:        time.Date(2024, 1, 13, 9, 15, 0, 0, time.UTC),
		UpdatedAt:        time.Date(2024, 1, 13, 9, 15, 0, 0, time.UTC),
	},
}

// Samples returns the built-in stories matching filter, paginated the same
// way as Repository.List.
func Samples(filter ListFilter) *ListResult {
	if filter.Page < 1 {
		filter.Page = 1
	}
	if filter.Limit < 1 {
		filter.Limit = 20
	}

	matched := []Story{}
	for _, s := range samples {
		if filter.matches(s) {
			matched = append(matched, s)
		}
	}

	start := min((filter.Page-1)*filter.Limit, len(matched))
	end := min(start+filter.Limit, len(matched))

	return &ListResult{
		Stories: matched[start:end],
		Total:   len(matched),
		Page:    filter.Page,
		Limit:   filter.Limit,
	}
}

// SampleByID returns the built-in story with id.
func SampleByID(id uuid.UUID) (*Story, bool) {
	for _, s := range samples {
		if s.ID == id {
			s := s
			return &s, true
		}
	}
	return nil, false
}

func (f ListFilter) matches(s Story) bool {
	if f.Approved != nil && s.IsApproved != *f.Approved {
		return false
	}
	if f.Language != nil && s.Language != *f.Language {
		return false
	}
	if f.Country != nil && s.Country != *f.Country {
		return false
	}
	if f.Theme != nil && s.Theme != *f.Theme {
		return false
	}
	if f.Search != nil {
		q := strings.ToLower(*f.Search)
		for _, field := range []string{s.Title, s.TitleEnglish, s.Contributor, s.NativeText, s.EnglishText} {
			if strings.Contains(strings.ToLower(field), q) {
				return true
			}
		}
		return false
	}
	return true
}

func ptr(s string) *string { return &s }

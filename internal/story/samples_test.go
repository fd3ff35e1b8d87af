package story_test

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/whispersoftheland/whispers/internal/story"
)

func strPtr(s string) *string { return &s }

func TestSamples_All(t *testing.T) {
	res := story.Samples(story.ListFilter{})

	assert.Equal(t, 3, res.Total)
	assert.Equal(t, 1, res.Page)
	assert.Equal(t, 20, res.Limit)
	require.Len(t, res.Stories, 3)
	assert.True(t, res.Stories[0].CreatedAt.After(res.Stories[1].CreatedAt), "newest first")
}

func TestSamples_Filters(t *testing.T) {
	tests := []struct {
		name   string
		filter story.ListFilter
		want   []string
	}{
		{name: "language", filter: story.ListFilter{Language: strPtr("Shona")}, want: []string{"The Hare and the Hyena"}},
		{name: "country", filter: story.ListFilter{Country: strPtr("Nigeria")}, want: []string{"Why the Sun and Moon Live in the Sky"}},
		{name: "theme", filter: story.ListFilter{Theme: strPtr("Wisdom")}, want: []string{"Anansi and the Wisdom of the World"}},
		{name: "search is case-insensitive", filter: story.ListFilter{Search: strPtr("HYENA")}, want: []string{"The Hare and the Hyena"}},
		{name: "search contributor", filter: story.ListFilter{Search: strPtr("adunni")}, want: []string{"Why the Sun and Moon Live in the Sky"}},
		{name: "no match", filter: story.ListFilter{Language: strPtr("Zulu")}, want: nil},
		{name: "combined", filter: story.ListFilter{Country: strPtr("Ghana"), Theme: strPtr("Tricksters")}, want: nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := story.Samples(tt.filter)

			var got []string
			for _, s := range res.Stories {
				got = append(got, s.TitleEnglish)
			}
			assert.Equal(t, tt.want, got)
			assert.Equal(t, len(tt.want), res.Total)
		})
	}
}

func TestSamples_Pagination(t *testing.T) {
	res := story.Samples(story.ListFilter{Page: 2, Limit: 2})
	assert.Equal(t, 3, res.Total)
	require.Len(t, res.Stories, 1)
	assert.Equal(t, "Why the Sun and Moon Live in the Sky", res.Stories[0].TitleEnglish)

	res = story.Samples(story.ListFilter{Page: 5, Limit: 2})
	assert.Empty(t, res.Stories)
}

func TestCatalog(t *testing.T) {
	c := story.DefaultCatalog()
	assert.Len(t, c.Languages, 12)
	assert.Len(t, c.Countries, 10)
	assert.Len(t, c.Themes, 8)

	c.Languages[0] = "Klingon"
	assert.True(t, story.IsLanguage("Shona"))
	assert.False(t, story.IsLanguage("Klingon"))
	assert.True(t, story.IsCountry("South Africa"))
	assert.True(t, story.IsTheme("Origin Myths"))
	assert.False(t, story.IsTheme("origin myths"))
}

func TestSampleByID(t *testing.T) {
	s, ok := story.SampleByID(uuid.MustParse("5a0d5c4e-7d3b-4f3e-9c1a-000000000001"))
	require.True(t, ok)
	assert.Equal(t, "Anansi and the Wisdom of the World", s.TitleEnglish)

	_, ok = story.SampleByID(uuid.New())
	assert.False(t, ok)
}

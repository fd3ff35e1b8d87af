package validation

import (
	"fmt"
	"strings"

	"github.com/whispersoftheland/whispers/internal/story"
)

// Upload size limits.
const (
	MaxAudioBytes        = 25 << 20
	MaxIllustrationBytes = 10 << 20
)

// StorySubmission mirrors the text fields of a story submission.
type StorySubmission struct {
	Title            string
	TitleEnglish     string
	Country          string
	Language         string
	Theme            string
	NativeText       string
	EnglishText      string
	Contributor      string
	ContributorEmail string
}

// Upload describes one attached file.
type Upload struct {
	Field       string
	ContentType string
	Size        int64
}

// ValidateStorySubmission validates the text fields of a submission.
// Country, language and theme must come from the catalog.
func ValidateStorySubmission(req StorySubmission) []FieldError {
	var errs []FieldError
	errs = required(errs, "title", req.Title, 200)
	errs = required(errs, "titleEnglish", req.TitleEnglish, 200)
	errs = oneOf(errs, "country", req.Country, story.IsCountry)
	errs = oneOf(errs, "language", req.Language, story.IsLanguage)
	errs = oneOf(errs, "theme", req.Theme, story.IsTheme)
	errs = required(errs, "nativeText", req.NativeText, 0)
	errs = required(errs, "englishText", req.EnglishText, 0)
	errs = required(errs, "contributor", req.Contributor, 255)
	errs = email(errs, "contributorEmail", req.ContributorEmail)
	return errs
}

// ValidateAudio checks an audio attachment.
func ValidateAudio(u Upload) []FieldError {
	return upload(u, "audio/", MaxAudioBytes)
}

// ValidateIllustration checks an image attachment.
func ValidateIllustration(u Upload) []FieldError {
	return upload(u, "image/", MaxIllustrationBytes)
}

func upload(u Upload, typePrefix string, maxBytes int64) []FieldError {
	var errs []FieldError
	if !strings.HasPrefix(u.ContentType, typePrefix) {
		errs = append(errs, FieldError{Field: u.Field, Message: fmt.Sprintf("%s must be an %s file", u.Field, strings.TrimSuffix(typePrefix, "/"))})
	}
	if u.Size > maxBytes {
		errs = append(errs, FieldError{Field: u.Field, Message: fmt.Sprintf("%s must be at most %d MB", u.Field, maxBytes>>20)})
	}
	return errs
}

func oneOf(errs []FieldError, field, value string, valid func(string) bool) []FieldError {
	v := strings.TrimSpace(value)
	switch {
	case v == "":
		return append(errs, FieldError{Field: field, Message: field + " is required"})
	case !valid(v):
		return append(errs, FieldError{Field: field, Message: field + " must be one of the catalog values"})
	}
	return errs
}

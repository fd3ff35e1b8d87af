package story

import "slices"

// Languages, Countries and Themes are the values a submission may use.
var (
	Languages = []string{
		"Shona", "Ndebele", "Swahili", "Yoruba", "Igbo", "Hausa",
		"Amharic", "Zulu", "Xhosa", "Afrikaans", "Twi", "Fon",
	}
	Countries = []string{
		"Zimbabwe", "Nigeria", "Kenya", "Ghana", "Ethiopia",
		"South Africa", "Tanzania", "Uganda", "Botswana", "Benin",
	}
	Themes = []string{
		"Wisdom", "Animals", "Tricksters", "Origin Myths",
		"Love Stories", "Heroic Tales", "Morality", "Nature",
	}
)

// Catalog groups the submission choices.
type Catalog struct {
	Languages []string
	Countries []string
	Themes    []string
}

// DefaultCatalog returns copies of the built-in lists.
func DefaultCatalog() Catalog {
	return Catalog{
		Languages: slices.Clone(Languages),
		Countries: slices.Clone(Countries),
		Themes:    slices.Clone(Themes),
	}
}

func IsLanguage(v string) bool { return slices.Contains(Languages, v) }
func IsCountry(v string) bool  { return slices.Contains(Countries, v) }
func IsTheme(v string) bool    { return slices.Contains(Themes, v) }

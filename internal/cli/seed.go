package cli

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/whispersoftheland/whispers/internal/api/validation"
	"github.com/whispersoftheland/whispers/internal/story"
)

// SeedFile is the YAML document read by "whisperctl seed".
type SeedFile struct {
	Stories []SeedStory `yaml:"stories"`
}

// SeedStory is one story entry in a seed file.
type SeedStory struct {
	Title            string `yaml:"title"`
	TitleEnglish     string `yaml:"titleEnglish"`
	Country          string `yaml:"country"`
	Language         string `yaml:"language"`
	Theme            string `yaml:"theme"`
	NativeText       string `yaml:"nativeText"`
	EnglishText      string `yaml:"englishText"`
	Contributor      string `yaml:"contributor"`
	ContributorEmail string `yaml:"contributorEmail"`
	Approved         bool   `yaml:"approved"`
}

// ParseSeed decodes and validates a seed document. Every invalid entry is
// reported; nothing is returned unless all entries are valid.
func ParseSeed(data []byte) ([]story.Story, error) {
	var f SeedFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parsing seed file: %w", err)
	}
	if len(f.Stories) == 0 {
		return nil, errors.New("seed file contains no stories")
	}

	var problems []string
	out := make([]story.Story, 0, len(f.Stories))
	for i, s := range f.Stories {
		sub := validation.StorySubmission{
			Title:            strings.TrimSpace(s.Title),
			TitleEnglish:     strings.TrimSpace(s.TitleEnglish),
			Country:          strings.TrimSpace(s.Country),
			Language:         strings.TrimSpace(s.Language),
			Theme:            strings.TrimSpace(s.Theme),
			NativeText:       strings.TrimSpace(s.NativeText),
			EnglishText:      strings.TrimSpace(s.EnglishText),
			Contributor:      strings.TrimSpace(s.Contributor),
			ContributorEmail: strings.TrimSpace(s.ContributorEmail),
		}
		for _, fe := range validation.ValidateStorySubmission(sub) {
			problems = append(problems, fmt.Sprintf("stories[%d]: %s", i, fe.Message))
		}
		out = append(out, story.Story{
			Title:            sub.Title,
			TitleEnglish:     sub.TitleEnglish,
			Country:          sub.Country,
			Language:         sub.Language,
			Theme:            sub.Theme,
			NativeText:       sub.NativeText,
			EnglishText:      sub.EnglishText,
			Contributor:      sub.Contributor,
			ContributorEmail: sub.ContributorEmail,
			IsApproved:       s.Approved,
		})
	}
	if len(problems) > 0 {
		return nil, fmt.Errorf("invalid seed file:\n  %s", strings.Join(problems, "\n  "))
	}
	return out, nil
}

func newSeedCmd(connect Connector) *cobra.Command {
	var file string

	cmd := &cobra.Command{
		Use:   "seed",
		Short: "Load stories from a YAML file",
		Long: `Load stories from a YAML file. The whole file is validated before any
story is written. Entries are inserted unapproved unless they set
"approved: true".

Example:
  whisperctl seed --file stories.yaml`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if file == "" {
				return errors.New("--file is required")
			}
			data, err := os.ReadFile(file)
			if err != nil {
				return fmt.Errorf("reading seed file: %w", err)
			}
			stories, err := ParseSeed(data)
			if err != nil {
				return err
			}

			b, err := connect(cmd.Context())
			if err != nil {
				return err
			}
			defer b.Close()

			repo := b.Stories()
			for i := range stories {
				if err := repo.Create(cmd.Context(), &stories[i]); err != nil {
					return fmt.Errorf("inserting %q after %d stories: %w", stories[i].TitleEnglish, i, err)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "created %s %q\n", stories[i].ID, stories[i].TitleEnglish)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "seeded %d stories\n", len(stories))
			return nil
		},
	}

	cmd.Flags().StringVarP(&file, "file", "f", "", "path to the YAML seed file")
	return cmd
}

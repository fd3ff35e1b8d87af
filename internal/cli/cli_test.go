package cli_test

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/whispersoftheland/whispers/internal/cli"
	"github.com/whispersoftheland/whispers/internal/profile"
	"github.com/whispersoftheland/whispers/internal/profile/profiletest"
	"github.com/whispersoftheland/whispers/internal/story"
)

// fakeBackend implements cli.Backend for testing.
type fakeBackend struct {
	migrateErr error
	migrated   bool
	closed     bool
	profiles   *profiletest.Profiles
	stories    *recordingStories
}

func (b *fakeBackend) Migrate(context.Context) error {
	b.migrated = true
	return b.migrateErr
}
func (b *fakeBackend) Profiles() profile.Repository { return b.profiles }
func (b *fakeBackend) Stories() story.Repository    { return b.stories }
func (b *fakeBackend) Close()                       { b.closed = true }

// recordingStories implements story.Repository, keeping created stories.
type recordingStories struct {
	story.Repository
	created []story.Story
	failAt  int
}

func (r *recordingStories) Create(_ context.Context, s *story.Story) error {
	if r.failAt > 0 && len(r.created)+1 == r.failAt {
		return errors.New("insert failed")
	}
	s.ID = uuid.New()
	r.created = append(r.created, *s)
	return nil
}

func newFake() *fakeBackend {
	return &fakeBackend{profiles: profiletest.New(), stories: &recordingStories{}}
}

func run(t *testing.T, b *fakeBackend, args ...string) (string, error) {
	t.Helper()
	root := cli.NewRootCmd(func(context.Context) (cli.Backend, error) { return b, nil })
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs(args)
	err := root.ExecuteContext(context.Background())
	return out.String(), err
}

func TestMigrate(t *testing.T) {
	b := newFake()

	out, err := run(t, b, "migrate")

	require.NoError(t, err)
	assert.True(t, b.migrated)
	assert.True(t, b.closed)
	assert.Contains(t, out, "schema is up to date")
}

func TestMigrate_Error(t *testing.T) {
	b := newFake()
	b.migrateErr = errors.New("permission denied for schema public")

	_, err := run(t, b, "migrate")

	require.Error(t, err)
	assert.Contains(t, err.Error(), "permission denied")
	assert.True(t, b.closed)
}

func TestConnectError(t *testing.T) {
	root := cli.NewRootCmd(func(context.Context) (cli.Backend, error) {
		return nil, errors.New("connection refused")
	})
	root.SetArgs([]string{"migrate"})
	root.SetOut(&bytes.Buffer{})

	err := root.ExecuteContext(context.Background())

	assert.EqualError(t, err, "connection refused")
}

func TestRoleSet(t *testing.T) {
	id := uuid.New()

	tests := []struct {
		name     string
		args     []string
		wantErr  string
		wantRole string
		wantOut  string
	}{
		{name: "grant", args: []string{"--email", "ada@example.com", "--role", "admin"}, wantRole: profile.RolePrivileged, wantOut: "user -> admin"},
		{name: "default role is admin", args: []string{"--email", "ADA@example.com"}, wantRole: profile.RolePrivileged},
		{name: "unchanged", args: []string{"--email", "ada@example.com", "--role", "user"}, wantRole: profile.RoleRegular, wantOut: "already has role user"},
		{name: "invalid role", args: []string{"--email", "ada@example.com", "--role", "owner"}, wantErr: `invalid role "owner"`, wantRole: profile.RoleRegular},
		{name: "missing email", args: []string{"--role", "admin"}, wantErr: "--email is required", wantRole: profile.RoleRegular},
		{name: "unknown account", args: []string{"--email", "bob@example.com"}, wantErr: "must sign up first", wantRole: profile.RoleRegular},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			// Arrange
			b := newFake()
			b.profiles.Put(profile.Profile{ID: id, Email: "ada@example.com", FullName: "Ada", Role: profile.RoleRegular})

			// Act
			out, err := run(t, b, append([]string{"role", "set"}, tt.args...)...)

			// Assert
			if tt.wantErr != "" {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.wantErr)
			} else {
				require.NoError(t, err)
				assert.Contains(t, out, tt.wantOut)
			}
			p, ok := b.profiles.Get(id)
			require.True(t, ok)
			assert.Equal(t, tt.wantRole, p.Role)
		})
	}
}

const validSeed = `
stories:
  - title: Anansi na Nyansa
    titleEnglish: Anansi and the Pot of Wisdom
    country: Ghana
    language: Twi
    theme: Tricksters
    nativeText: Bere bi a atwam no...
    englishText: Long ago, Anansi gathered all the wisdom of the world.
    contributor: Kwame
    contributorEmail: kwame@example.com
    approved: true
  - title: Tsuro naGudo
    titleEnglish: The Hare and the Baboon
    country: Zimbabwe
    language: Shona
    theme: Animals
    nativeText: Kare kare...
    englishText: Long ago, the hare tricked the baboon.
    contributor: Tendai
    contributorEmail: tendai@example.com
`

func writeSeed(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "stories.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestSeed(t *testing.T) {
	b := newFake()

	out, err := run(t, b, "seed", "--file", writeSeed(t, validSeed))

	require.NoError(t, err)
	require.Len(t, b.stories.created, 2)
	assert.True(t, b.stories.created[0].IsApproved)
	assert.False(t, b.stories.created[1].IsApproved)
	assert.Equal(t, "Shona", b.stories.created[1].Language)
	assert.Contains(t, out, "seeded 2 stories")
}

func TestSeed_InsertFailureStops(t *testing.T) {
	b := newFake()
	b.stories.failAt = 2

	_, err := run(t, b, "seed", "-f", writeSeed(t, validSeed))

	require.Error(t, err)
	assert.Contains(t, err.Error(), "after 1 stories")
	assert.Len(t, b.stories.created, 1)
}

func TestSeed_RequiresFile(t *testing.T) {
	_, err := run(t, newFake(), "seed")

	assert.EqualError(t, err, "--file is required")
}

func TestParseSeed_Invalid(t *testing.T) {
	tests := []struct {
		name    string
		content string
		wantErr string
	}{
		{name: "malformed", content: "stories: [", wantErr: "parsing seed file"},
		{name: "empty", content: "stories: []", wantErr: "no stories"},
		{
			name: "off-catalog values",
			content: `
stories:
  - title: A
    titleEnglish: A
    country: Atlantis
    language: Shona
    theme: Animals
    nativeText: x
    englishText: y
    contributor: z
    contributorEmail: not-an-email
`,
			wantErr: "stories[0]: country must be one of the catalog values",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			stories, err := cli.ParseSeed([]byte(tt.content))

			require.Error(t, err)
			assert.Nil(t, stories)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

// Package cli implements whisperctl, the operator tool for schema
// migrations, moderator roles and seeding stories.
package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/whispersoftheland/whispers/internal/config"
	"github.com/whispersoftheland/whispers/internal/database"
	"github.com/whispersoftheland/whispers/internal/profile"
	"github.com/whispersoftheland/whispers/internal/story"
)

// Backend is the datastore the commands operate on.
type Backend interface {
	Migrate(ctx context.Context) error
	Profiles() profile.Repository
	Stories() story.Repository
	Close()
}

// Connector opens a Backend.
type Connector func(ctx context.Context) (Backend, error)

// NewRootCmd builds the whisperctl command tree. Every subcommand opens its
// own connection through connect.
func NewRootCmd(connect Connector) *cobra.Command {
	root := &cobra.Command{
		Use:   "whisperctl",
		Short: "Operate a Whispers of the Land deployment",
		Long: `whisperctl runs operator tasks against the database named by
DATABASE_URL. Moderators can only be appointed from here.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.AddCommand(
		newMigrateCmd(connect),
		newRoleCmd(connect),
		newSeedCmd(connect),
	)
	return root
}

func newMigrateCmd(connect Connector) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply the database schema",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			b, err := connect(cmd.Context())
			if err != nil {
				return err
			}
			defer b.Close()

			if err := b.Migrate(cmd.Context()); err != nil {
				return fmt.Errorf("migrating: %w", err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), "schema is up to date")
			return nil
		},
	}
}

// Connect opens the PostgreSQL database named by DATABASE_URL.
func Connect(ctx context.Context) (Backend, error) {
	cfg, err := config.LoadDB()
	if err != nil {
		return nil, fmt.Errorf("loading configuration: %w", err)
	}

	db, err := database.New(ctx, cfg.DatabaseURL, database.WithApplicationName("whisperctl"), database.WithMaxConns(2))
	if err != nil {
		return nil, err
	}
	return &postgresBackend{db: db}, nil
}

type postgresBackend struct {
	db *database.DB
}

func (b *postgresBackend) Migrate(ctx context.Context) error { return b.db.Migrate(ctx) }
func (b *postgresBackend) Profiles() profile.Repository      { return profile.NewRepository(b.db.Pool()) }
func (b *postgresBackend) Stories() story.Repository         { return story.NewRepository(b.db.Pool()) }
func (b *postgresBackend) Close()                            { b.db.Close() }

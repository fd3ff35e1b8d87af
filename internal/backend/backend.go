// Package backend owns the process-wide, replaceable connection to the
// hosted services: database-backed identity, profiles, stories and object
// storage.
package backend

import (
	"context"
	"fmt"

	"github.com/whispersoftheland/whispers/internal/config"
	"github.com/whispersoftheland/whispers/internal/database"
	"github.com/whispersoftheland/whispers/internal/identity"
	"github.com/whispersoftheland/whispers/internal/kv"
	"github.com/whispersoftheland/whispers/internal/profile"
	"github.com/whispersoftheland/whispers/internal/storage"
	"github.com/whispersoftheland/whispers/internal/story"
)

// Client is one connection to the backend. Callers fetch it from a Holder
// on every use and never keep it past the current operation.
type Client struct {
	Identity identity.Provider
	Profiles profile.Repository
	Stories  story.Repository
	Storage  storage.ObjectStore

	db *database.DB
}

// Ping checks the database connection. Clients without a database always succeed.
func (c *Client) Ping(ctx context.Context) error {
	if c.db == nil {
		return nil
	}
	return c.db.Ping(ctx)
}

// Close releases the connection pool.
func (c *Client) Close() {
	if c.db != nil {
		c.db.Close()
	}
}

// Factory builds a fresh Client.
type Factory func(ctx context.Context) (*Client, error)

// Dial returns a Factory that connects using cfg. The key/value store lives
// for the whole process and is shared by every Client.
func Dial(cfg *config.Config, kvStore *kv.Store) Factory {
	return func(ctx context.Context) (*Client, error) {
		db, err := database.New(ctx, cfg.DatabaseURL, database.WithApplicationName("whispers"))
		if err != nil {
			return nil, err
		}

		signer, err := identity.NewSigner(cfg.JWTSecret, cfg.JWTIssuer, cfg.SessionTTL)
		if err != nil {
			db.Close()
			return nil, fmt.Errorf("creating token signer: %w", err)
		}

		opts := []identity.Option{identity.WithBcryptCost(cfg.BcryptCost)}
		if kvStore.Available() {
			opts = append(opts,
				identity.WithRevocations(kvStore),
				identity.WithRateLimit(kvStore, cfg.SignInRateLimit, cfg.SignInRateWindow),
			)
		}

		objects, err := storage.NewS3(ctx, storage.S3Config{
			Endpoint:        cfg.StorageEndpoint,
			Region:          cfg.StorageRegion,
			AccessKeyID:     cfg.StorageAccessKeyID,
			SecretAccessKey: cfg.StorageSecretAccessKey,
			PublicURL:       cfg.StoragePublicURL,
		})
		if err != nil {
			db.Close()
			return nil, err
		}

		pool := db.Pool()
		return &Client{
			Identity: identity.NewService(identity.NewRepository(pool), signer, opts...),
			Profiles: profile.NewRepository(pool),
			Stories:  story.NewRepository(pool),
			Storage:  objects,
			db:       db,
		}, nil
	}
}

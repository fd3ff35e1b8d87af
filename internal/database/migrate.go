package database

import (
	"context"
	"fmt"
)

// schema is applied in order; every statement is idempotent.
var schema = []string{
	`CREATE EXTENSION IF NOT EXISTS pgcrypto`,
	`CREATE TABLE IF NOT EXISTS auth_users (
		id            UUID PRIMARY KEY DEFAULT gen_random_uuid(),
		email         TEXT NOT NULL UNIQUE,
		password_hash TEXT NOT NULL,
		full_name     TEXT NOT NULL DEFAULT '',
		created_at    TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		updated_at    TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
	`CREATE TABLE IF NOT EXISTS profiles (
		id         UUID PRIMARY KEY REFERENCES auth_users(id) ON DELETE CASCADE,
		email      TEXT NOT NULL,
		full_name  TEXT NOT NULL DEFAULT '',
		role       TEXT NOT NULL DEFAULT 'user' CHECK (role IN ('user', 'admin')),
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
	`CREATE INDEX IF NOT EXISTS idx_profiles_email ON profiles(email)`,
	`CREATE TABLE IF NOT EXISTS stories (
		id                UUID PRIMARY KEY DEFAULT gen_random_uuid(),
		title             TEXT NOT NULL,
		title_english     TEXT NOT NULL,
		country           TEXT NOT NULL,
		language          TEXT NOT NULL,
		theme             TEXT NOT NULL,
		native_text       TEXT NOT NULL,
		english_text      TEXT NOT NULL,
		contributor       TEXT NOT NULL,
		contributor_email TEXT NOT NULL,
		native_audio_url  TEXT,
		english_audio_url TEXT,
		illustration_url  TEXT,
		is_approved       BOOLEAN NOT NULL DEFAULT FALSE,
		created_at        TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		updated_at        TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
	`CREATE INDEX IF NOT EXISTS idx_stories_approved_created ON stories(is_approved, created_at DESC)`,
	// Provisions a profile for every new user. The session reconciler
	// tolerates this trigger lagging or being absent.
	`CREATE OR REPLACE FUNCTION provision_profile() RETURNS trigger AS $$
	BEGIN
		INSERT INTO profiles (id, email, full_name, role)
		VALUES (NEW.id, NEW.email, NEW.full_name, 'user')
		ON CONFLICT (id) DO NOTHING;
		RETURN NEW;
	END;
	$$ LANGUAGE plpgsql`,
	`DROP TRIGGER IF EXISTS on_auth_user_created ON auth_users`,
	`CREATE TRIGGER on_auth_user_created
		AFTER INSERT ON auth_users
		FOR EACH ROW EXECUTE FUNCTION provision_profile()`,
}

// Migrate applies the schema to the connected database.
func (db *DB) Migrate(ctx context.Context) error {
	for i, stmt := range schema {
		if _, err := db.pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("applying schema statement %d: %w", i, err)
		}
	}
	return nil
}

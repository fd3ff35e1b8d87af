package profile

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

const profileColumns = `id, email, full_name, role, created_at, updated_at`

// PostgresRepository implements Repository using pgxpool.
type PostgresRepository struct {
	pool *pgxpool.Pool
}

// NewRepository creates a new Repository backed by the given connection pool.
func NewRepository(pool *pgxpool.Pool) Repository {
	return &PostgresRepository{pool: pool}
}

// GetByID retrieves the profile for an identity id.
func (r *PostgresRepository) GetByID(ctx context.Context, id uuid.UUID) (*Profile, error) {
	query := `SELECT ` + profileColumns + ` FROM profiles WHERE id = $1`
	return r.scanOne(ctx, query, id)
}

// GetByEmail retrieves a profile by email address (case-insensitive).
func (r *PostgresRepository) GetByEmail(ctx context.Context, email string) (*Profile, error) {
	query := `SELECT ` + profileColumns + ` FROM profiles WHERE lower(email) = lower($1)`
	return r.scanOne(ctx, query, email)
}

// Create inserts a new profile. A unique violation (a concurrent creator won)
// is reported as ErrDuplicate.
func (r *PostgresRepository) Create(ctx context.Context, p *Profile) error {
	if p.Role == "" {
		p.Role = RoleRegular
	}

	query := `
		INSERT INTO profiles (id, email, full_name, role)
		VALUES ($1, $2, $3, $4)
		RETURNING created_at, updated_at`

	err := r.pool.QueryRow(ctx, query, p.ID, p.Email, p.FullName, p.Role).
		Scan(&p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return ErrDuplicate
		}
		return fmt.Errorf("inserting profile: %w", err)
	}

	return nil
}

// Update modifies the user-editable fields of a profile.
func (r *PostgresRepository) Update(ctx context.Context, id uuid.UUID, fields UpdateFields) (*Profile, error) {
	if fields.FullName == nil {
		return r.GetByID(ctx, id)
	}

	query := `
		UPDATE profiles
		SET full_name = $1, updated_at = NOW()
		WHERE id = $2
		RETURNING ` + profileColumns

	return r.scanOne(ctx, query, *fields.FullName, id)
}

// SetRole changes the role of a profile.
func (r *PostgresRepository) SetRole(ctx context.Context, id uuid.UUID, role string) (*Profile, error) {
	if !ValidRole(role) {
		return nil, fmt.Errorf("invalid role %q", role)
	}

	query := `
		UPDATE profiles
		SET role = $1, updated_at = NOW()
		WHERE id = $2
		RETURNING ` + profileColumns

	return r.scanOne(ctx, query, role, id)
}

// scanOne scans a single profile row. Returns ErrNotFound if no rows.
func (r *PostgresRepository) scanOne(ctx context.Context, query string, args ...any) (*Profile, error) {
	var p Profile
	err := r.pool.QueryRow(ctx, query, args...).Scan(
		&p.ID, &p.Email, &p.FullName, &p.Role, &p.CreatedAt, &p.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("scanning profile row: %w", err)
	}
	return &p, nil
}

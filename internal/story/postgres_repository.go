package story

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const storyColumns = `id, title, title_english, country, language, theme,
	native_text, english_text, contributor, contributor_email,
	native_audio_url, english_audio_url, illustration_url,
	is_approved, created_at, updated_at`

// PostgresRepository implements Repository using pgxpool.
type PostgresRepository struct {
	pool *pgxpool.Pool
}

// NewRepository creates a new Repository backed by the given connection pool.
func NewRepository(pool *pgxpool.Pool) Repository {
	return &PostgresRepository{pool: pool}
}

// Create inserts a new story. Submissions always start unapproved unless the
// caller (the seed command) says otherwise.
func (r *PostgresRepository) Create(ctx context.Context, s *Story) error {
	query := `
		INSERT INTO stories (title, title_english, country, language, theme,
			native_text, english_text, contributor, contributor_email,
			native_audio_url, english_audio_url, illustration_url, is_approved)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
		RETURNING id, created_at, updated_at`

	err := r.pool.QueryRow(ctx, query,
		s.Title,
		s.TitleEnglish,
		s.Country,
		s.Language,
		s.Theme,
		s.NativeText,
		s.EnglishText,
		s.Contributor,
		s.ContributorEmail,
		s.NativeAudioURL,
		s.EnglishAudioURL,
		s.IllustrationURL,
		s.IsApproved,
	).Scan(&s.ID, &s.CreatedAt, &s.UpdatedAt)
	if err != nil {
		return fmt.Errorf("inserting story: %w", err)
	}

	return nil
}

// GetByID retrieves a single story regardless of approval.
func (r *PostgresRepository) GetByID(ctx context.Context, id uuid.UUID) (*Story, error) {
	query := `SELECT ` + storyColumns + ` FROM stories WHERE id = $1`
	return r.scanOne(ctx, query, id)
}

// List retrieves a paginated, filtered list of stories, newest first.
func (r *PostgresRepository) List(ctx context.Context, filter ListFilter) (*ListResult, error) {
	if filter.Page < 1 {
		filter.Page = 1
	}
	if filter.Limit < 1 {
		filter.Limit = 20
	}
	if filter.Limit > 100 {
		filter.Limit = 100
	}

	var conditions []string
	var args []any
	argIdx := 1

	if filter.Approved != nil {
		conditions = append(conditions, fmt.Sprintf("is_approved = $%d", argIdx))
		args = append(args, *filter.Approved)
		argIdx++
	}
	if filter.Language != nil {
		conditions = append(conditions, fmt.Sprintf("language = $%d", argIdx))
		args = append(args, *filter.Language)
		argIdx++
	}
	if filter.Country != nil {
		conditions = append(conditions, fmt.Sprintf("country = $%d", argIdx))
		args = append(args, *filter.Country)
		argIdx++
	}
	if filter.Theme != nil {
		conditions = append(conditions, fmt.Sprintf("theme = $%d", argIdx))
		args = append(args, *filter.Theme)
		argIdx++
	}
	if filter.Search != nil {
		conditions = append(conditions, fmt.Sprintf(
			"(title ILIKE $%[1]d OR title_english ILIKE $%[1]d OR contributor ILIKE $%[1]d OR native_text ILIKE $%[1]d OR english_text ILIKE $%[1]d)",
			argIdx))
		args = append(args, "%"+*filter.Search+"%")
		argIdx++
	}

	whereClause := ""
	if len(conditions) > 0 {
		whereClause = "WHERE " + strings.Join(conditions, " AND ")
	}

	countQuery := fmt.Sprintf("SELECT COUNT(*) FROM stories %s", whereClause)
	var total int
	if err := r.pool.QueryRow(ctx, countQuery, args...).Scan(&total); err != nil {
		return nil, fmt.Errorf("counting stories: %w", err)
	}

	offset := (filter.Page - 1) * filter.Limit

	dataQuery := fmt.Sprintf(`
		SELECT %s
		FROM stories
		%s
		ORDER BY created_at DESC
		LIMIT $%d OFFSET $%d`, storyColumns, whereClause, argIdx, argIdx+1)

	args = append(args, filter.Limit, offset)

	rows, err := r.pool.Query(ctx, dataQuery, args...)
	if err != nil {
		return nil, fmt.Errorf("listing stories: %w", err)
	}
	defer rows.Close()

	stories := []Story{}
	for rows.Next() {
		s, err := scanStory(rows)
		if err != nil {
			return nil, err
		}
		stories = append(stories, *s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating story rows: %w", err)
	}

	return &ListResult{
		Stories: stories,
		Total:   total,
		Page:    filter.Page,
		Limit:   filter.Limit,
	}, nil
}

// Approve publishes a story.
func (r *PostgresRepository) Approve(ctx context.Context, id uuid.UUID) (*Story, error) {
	query := `
		UPDATE stories
		SET is_approved = TRUE, updated_at = NOW()
		WHERE id = $1
		RETURNING ` + storyColumns

	return r.scanOne(ctx, query, id)
}

// SetEnglishAudioURL records generated narration for a story.
func (r *PostgresRepository) SetEnglishAudioURL(ctx context.Context, id uuid.UUID, url string) (*Story, error) {
	query := `
		UPDATE stories
		SET english_audio_url = $1, updated_at = NOW()
		WHERE id = $2
		RETURNING ` + storyColumns

	return r.scanOne(ctx, query, url, id)
}

// Delete removes a story. Rejected submissions are not kept.
func (r *PostgresRepository) Delete(ctx context.Context, id uuid.UUID) error {
	result, err := r.pool.Exec(ctx, `DELETE FROM stories WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("deleting story: %w", err)
	}

	if result.RowsAffected() == 0 {
		return ErrNotFound
	}

	return nil
}

// scanOne scans a single story row. Returns ErrNotFound if no rows.
func (r *PostgresRepository) scanOne(ctx context.Context, query string, args ...any) (*Story, error) {
	s, err := scanStory(r.pool.QueryRow(ctx, query, args...))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	return s, err
}

func scanStory(row pgx.Row) (*Story, error) {
	var s Story
	err := row.Scan(
		&s.ID, &s.Title, &s.TitleEnglish, &s.Country, &s.Language, &s.Theme,
		&s.NativeText, &s.EnglishText, &s.Contributor, &s.ContributorEmail,
		&s.NativeAudioURL, &s.EnglishAudioURL, &s.IllustrationURL,
		&s.IsApproved, &s.CreatedAt, &s.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("scanning story row: %w", err)
	}
	return &s, nil
}

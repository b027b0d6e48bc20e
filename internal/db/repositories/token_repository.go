// token_repository.go implements TokenRepository, providing database queries
// for intake link tokens: creation, single-row lookup by token string,
// revocation (single and per-subject), last-used updates, and expiry cleanup.
package repositories

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"

	"github.com/formgate/formgate/internal/db/models"
)

// TokenRepository handles access token database operations
type TokenRepository struct {
	db *sql.DB
}

// NewTokenRepository creates a new TokenRepository
func NewTokenRepository(db *sql.DB) *TokenRepository {
	return &TokenRepository{db: db}
}

// CreateAccessToken inserts a new token row. The token string carries a UNIQUE
// constraint, so a duplicate insert fails rather than silently reusing a value.
func (r *TokenRepository) CreateAccessToken(ctx context.Context, t *models.AccessToken) error {
	t.ID = uuid.New().String()

	query := `
		INSERT INTO access_tokens (id, token, subject_id, issued_at, expires_at, revoked, last_used_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`

	_, err := r.db.ExecContext(ctx, query,
		t.ID,
		t.Token,
		t.SubjectID,
		t.IssuedAt,
		t.ExpiresAt,
		t.Revoked,
		t.LastUsedAt,
	)

	return err
}

// GetAccessToken retrieves a token row by its exact token string.
// A single SELECT returns one consistent row snapshot, so a verification that
// races a revocation sees either the fully pre-revoke or fully post-revoke
// state, never a mix of fields.
func (r *TokenRepository) GetAccessToken(ctx context.Context, token string) (*models.AccessToken, error) {
	query := `
		SELECT id, token, subject_id, issued_at, expires_at, revoked, last_used_at
		FROM access_tokens
		WHERE token = $1
	`

	t := &models.AccessToken{}

	err := r.db.QueryRowContext(ctx, query, token).Scan(
		&t.ID,
		&t.Token,
		&t.SubjectID,
		&t.IssuedAt,
		&t.ExpiresAt,
		&t.Revoked,
		&t.LastUsedAt,
	)

	if err == sql.ErrNoRows {
		return nil, nil
	}

	if err != nil {
		return nil, err
	}

	return t, nil
}

// UpdateLastUsed sets the last_used_at timestamp for a token. Last-write-wins;
// ordering between concurrent verifications does not matter.
func (r *TokenRepository) UpdateLastUsed(ctx context.Context, token string) error {
	query := `
		UPDATE access_tokens
		SET last_used_at = $2
		WHERE token = $1
	`

	_, err := r.db.ExecContext(ctx, query, token, time.Now())
	return err
}

// RevokeToken marks a single token revoked. Revoked is monotonic, so re-running
// the same UPDATE is a no-op; the call succeeds whether the row was still
// active, already revoked, or missing entirely.
func (r *TokenRepository) RevokeToken(ctx context.Context, token string) error {
	query := `
		UPDATE access_tokens
		SET revoked = TRUE
		WHERE token = $1
	`

	_, err := r.db.ExecContext(ctx, query, token)
	return err
}

// RevokeAllForSubject marks every token for a subject revoked and returns how
// many rows changed. The UPDATE is atomic per row but the operation offers no
// all-or-nothing guarantee across the set; on error, callers needing a hard
// guarantee must retry until the count settles at zero.
func (r *TokenRepository) RevokeAllForSubject(ctx context.Context, subjectID string) (int64, error) {
	query := `
		UPDATE access_tokens
		SET revoked = TRUE
		WHERE subject_id = $1 AND revoked = FALSE
	`

	res, err := r.db.ExecContext(ctx, query, subjectID)
	if err != nil {
		return 0, err
	}

	return res.RowsAffected()
}

// DeleteExpired removes every token row whose stored expiry is already in the
// past and returns the number of rows deleted. Rows with a future expiry are
// never touched, so cleanup cannot race a verification that is about to
// succeed.
func (r *TokenRepository) DeleteExpired(ctx context.Context) (int64, error) {
	query := `
		DELETE FROM access_tokens
		WHERE expires_at < $1
	`

	res, err := r.db.ExecContext(ctx, query, time.Now())
	if err != nil {
		return 0, err
	}

	return res.RowsAffected()
}

// ListBySubject retrieves all token rows for a subject, newest first.
func (r *TokenRepository) ListBySubject(ctx context.Context, subjectID string) ([]*models.AccessToken, error) {
	query := `
		SELECT id, token, subject_id, issued_at, expires_at, revoked, last_used_at
		FROM access_tokens
		WHERE subject_id = $1
		ORDER BY issued_at DESC
	`

	rows, err := r.db.QueryContext(ctx, query, subjectID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	tokens := make([]*models.AccessToken, 0)
	for rows.Next() {
		t := &models.AccessToken{}

		err := rows.Scan(
			&t.ID,
			&t.Token,
			&t.SubjectID,
			&t.IssuedAt,
			&t.ExpiresAt,
			&t.Revoked,
			&t.LastUsedAt,
		)
		if err != nil {
			return nil, err
		}

		tokens = append(tokens, t)
	}

	return tokens, rows.Err()
}

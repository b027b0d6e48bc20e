// access_log_repository.go implements AccessLogRepository, the append-only
// store for form access attempts. There is deliberately no update or delete
// path: entries are removed only when the subject itself is purged by the
// external data-retention process.
package repositories

import (
	"context"
	"time"

	"database/sql"

	"github.com/google/uuid"

	"github.com/formgate/formgate/internal/db/models"
)

// AccessLogRepository handles access log database operations
type AccessLogRepository struct {
	db *sql.DB
}

// NewAccessLogRepository creates a new AccessLogRepository
func NewAccessLogRepository(db *sql.DB) *AccessLogRepository {
	return &AccessLogRepository{db: db}
}

// CreateEntry appends one immutable access log entry.
func (r *AccessLogRepository) CreateEntry(ctx context.Context, e *models.AccessLogEntry) error {
	e.ID = uuid.New().String()
	e.CreatedAt = time.Now()

	query := `
		INSERT INTO access_logs (id, subject_id, action, ip_address, user_agent, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`

	_, err := r.db.ExecContext(ctx, query,
		e.ID,
		e.SubjectID,
		e.Action,
		e.IPAddress,
		e.UserAgent,
		e.CreatedAt,
	)

	return err
}

// ListBySubject retrieves access log entries for a subject with pagination,
// newest first, along with the total entry count for that subject.
func (r *AccessLogRepository) ListBySubject(ctx context.Context, subjectID string, limit, offset int) ([]*models.AccessLogEntry, int, error) {
	countQuery := `SELECT COUNT(*) FROM access_logs WHERE subject_id = $1`

	var total int
	if err := r.db.QueryRowContext(ctx, countQuery, subjectID).Scan(&total); err != nil {
		return nil, 0, err
	}

	query := `
		SELECT id, subject_id, action, ip_address, user_agent, created_at
		FROM access_logs
		WHERE subject_id = $1
		ORDER BY created_at DESC
		LIMIT $2 OFFSET $3
	`

	rows, err := r.db.QueryContext(ctx, query, subjectID, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	entries := make([]*models.AccessLogEntry, 0)
	for rows.Next() {
		e := &models.AccessLogEntry{}

		err := rows.Scan(
			&e.ID,
			&e.SubjectID,
			&e.Action,
			&e.IPAddress,
			&e.UserAgent,
			&e.CreatedAt,
		)
		if err != nil {
			return nil, 0, err
		}

		entries = append(entries, e)
	}

	return entries, total, rows.Err()
}

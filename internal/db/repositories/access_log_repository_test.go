package repositories

import (
	"context"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"

	"github.com/formgate/formgate/internal/db/models"
)

var accessLogCols = []string{
	"id", "subject_id", "action", "ip_address", "user_agent", "created_at",
}

func newAccessLogRepo(t *testing.T) (*AccessLogRepository, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return NewAccessLogRepository(db), mock
}

func sampleAccessLogRow() *sqlmock.Rows {
	return sqlmock.NewRows(accessLogCols).
		AddRow("entry-1", "subject-1", "view", "203.0.113.7", "Mozilla/5.0", time.Now())
}

// ---------------------------------------------------------------------------
// CreateEntry
// ---------------------------------------------------------------------------

func TestCreateEntry_Success(t *testing.T) {
	repo, mock := newAccessLogRepo(t)
	mock.ExpectExec("INSERT INTO access_logs").
		WillReturnResult(sqlmock.NewResult(1, 1))

	entry := &models.AccessLogEntry{
		SubjectID: "subject-1",
		Action:    "view",
		IPAddress: "203.0.113.7",
		UserAgent: "Mozilla/5.0",
	}
	if err := repo.CreateEntry(context.Background(), entry); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if entry.ID == "" {
		t.Error("expected generated ID, got empty string")
	}
	if entry.CreatedAt.IsZero() {
		t.Error("expected CreatedAt to be set")
	}
}

func TestCreateEntry_DBError(t *testing.T) {
	repo, mock := newAccessLogRepo(t)
	mock.ExpectExec("INSERT INTO access_logs").
		WillReturnError(errDB)

	entry := &models.AccessLogEntry{SubjectID: "subject-1", Action: "submit"}
	if err := repo.CreateEntry(context.Background(), entry); err == nil {
		t.Error("expected error, got nil")
	}
}

// ---------------------------------------------------------------------------
// ListBySubject
// ---------------------------------------------------------------------------

func TestAccessLogListBySubject_Found(t *testing.T) {
	repo, mock := newAccessLogRepo(t)
	mock.ExpectQuery("SELECT COUNT.*FROM access_logs").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(1))
	mock.ExpectQuery("SELECT id.*FROM access_logs").
		WillReturnRows(sampleAccessLogRow())

	entries, total, err := repo.ListBySubject(context.Background(), "subject-1", 10, 0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if total != 1 {
		t.Errorf("total = %d, want 1", total)
	}
	if len(entries) != 1 {
		t.Errorf("len(entries) = %d, want 1", len(entries))
	}
	if entries[0].Action != "view" {
		t.Errorf("Action = %q, want %q", entries[0].Action, "view")
	}
}

func TestAccessLogListBySubject_Empty(t *testing.T) {
	repo, mock := newAccessLogRepo(t)
	mock.ExpectQuery("SELECT COUNT.*FROM access_logs").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(0))
	mock.ExpectQuery("SELECT id.*FROM access_logs").
		WillReturnRows(sqlmock.NewRows(accessLogCols))

	entries, total, err := repo.ListBySubject(context.Background(), "subject-quiet", 10, 0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if total != 0 {
		t.Errorf("total = %d, want 0", total)
	}
	if len(entries) != 0 {
		t.Errorf("len(entries) = %d, want 0", len(entries))
	}
}

func TestAccessLogListBySubject_CountError(t *testing.T) {
	repo, mock := newAccessLogRepo(t)
	mock.ExpectQuery("SELECT COUNT.*FROM access_logs").
		WillReturnError(errDB)

	if _, _, err := repo.ListBySubject(context.Background(), "subject-1", 10, 0); err == nil {
		t.Error("expected error, got nil")
	}
}

func TestAccessLogListBySubject_QueryError(t *testing.T) {
	repo, mock := newAccessLogRepo(t)
	mock.ExpectQuery("SELECT COUNT.*FROM access_logs").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(1))
	mock.ExpectQuery("SELECT id.*FROM access_logs").
		WillReturnError(errDB)

	if _, _, err := repo.ListBySubject(context.Background(), "subject-1", 10, 0); err == nil {
		t.Error("expected error, got nil")
	}
}

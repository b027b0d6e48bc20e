package repositories

import (
	"context"
	"errors"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"

	"github.com/formgate/formgate/internal/db/models"
)

var errDB = errors.New("db error")

// ---------------------------------------------------------------------------
// Column definitions
// ---------------------------------------------------------------------------

var tokenCols = []string{
	"id", "token", "subject_id", "issued_at", "expires_at", "revoked", "last_used_at",
}

// ---------------------------------------------------------------------------
// Helpers
// ---------------------------------------------------------------------------

func newTokenRepo(t *testing.T) (*TokenRepository, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return NewTokenRepository(db), mock
}

func sampleTokenRow() *sqlmock.Rows {
	now := time.Now()
	return sqlmock.NewRows(tokenCols).
		AddRow("token-row-1", "signed-token", "subject-1",
			now, now.Add(168*time.Hour), false, nil)
}

// ---------------------------------------------------------------------------
// CreateAccessToken
// ---------------------------------------------------------------------------

func TestCreateAccessToken_Success(t *testing.T) {
	repo, mock := newTokenRepo(t)
	mock.ExpectExec("INSERT INTO access_tokens").
		WillReturnResult(sqlmock.NewResult(1, 1))

	tok := &models.AccessToken{
		Token:     "signed-token",
		SubjectID: "subject-1",
		IssuedAt:  time.Now(),
		ExpiresAt: time.Now().Add(168 * time.Hour),
	}
	if err := repo.CreateAccessToken(context.Background(), tok); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if tok.ID == "" {
		t.Error("expected generated ID, got empty string")
	}
}

func TestCreateAccessToken_DBError(t *testing.T) {
	repo, mock := newTokenRepo(t)
	mock.ExpectExec("INSERT INTO access_tokens").
		WillReturnError(errDB)

	tok := &models.AccessToken{Token: "signed-token", SubjectID: "subject-1"}
	if err := repo.CreateAccessToken(context.Background(), tok); err == nil {
		t.Error("expected error, got nil")
	}
}

// ---------------------------------------------------------------------------
// GetAccessToken
// ---------------------------------------------------------------------------

func TestGetAccessToken_Found(t *testing.T) {
	repo, mock := newTokenRepo(t)
	mock.ExpectQuery("SELECT id.*FROM access_tokens.*WHERE token").
		WillReturnRows(sampleTokenRow())

	tok, err := repo.GetAccessToken(context.Background(), "signed-token")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if tok == nil {
		t.Fatal("expected token, got nil")
	}
	if tok.SubjectID != "subject-1" {
		t.Errorf("SubjectID = %q, want %q", tok.SubjectID, "subject-1")
	}
	if tok.Revoked {
		t.Error("Revoked = true, want false")
	}
}

func TestGetAccessToken_NotFound(t *testing.T) {
	repo, mock := newTokenRepo(t)
	mock.ExpectQuery("SELECT id.*FROM access_tokens.*WHERE token").
		WillReturnRows(sqlmock.NewRows(tokenCols))

	tok, err := repo.GetAccessToken(context.Background(), "missing")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if tok != nil {
		t.Errorf("expected nil, got %v", tok)
	}
}

func TestGetAccessToken_Error(t *testing.T) {
	repo, mock := newTokenRepo(t)
	mock.ExpectQuery("SELECT id.*FROM access_tokens.*WHERE token").
		WillReturnError(errDB)

	_, err := repo.GetAccessToken(context.Background(), "signed-token")
	if err == nil {
		t.Error("expected error, got nil")
	}
}

// ---------------------------------------------------------------------------
// UpdateLastUsed
// ---------------------------------------------------------------------------

func TestUpdateLastUsed_Success(t *testing.T) {
	repo, mock := newTokenRepo(t)
	mock.ExpectExec("UPDATE access_tokens.*SET last_used_at").
		WillReturnResult(sqlmock.NewResult(0, 1))

	if err := repo.UpdateLastUsed(context.Background(), "signed-token"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestUpdateLastUsed_DBError(t *testing.T) {
	repo, mock := newTokenRepo(t)
	mock.ExpectExec("UPDATE access_tokens.*SET last_used_at").
		WillReturnError(errDB)

	if err := repo.UpdateLastUsed(context.Background(), "signed-token"); err == nil {
		t.Error("expected error, got nil")
	}
}

// ---------------------------------------------------------------------------
// RevokeToken
// ---------------------------------------------------------------------------

func TestRevokeToken_Success(t *testing.T) {
	repo, mock := newTokenRepo(t)
	mock.ExpectExec("UPDATE access_tokens.*SET revoked").
		WillReturnResult(sqlmock.NewResult(0, 1))

	if err := repo.RevokeToken(context.Background(), "signed-token"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestRevokeToken_UnknownTokenStillSucceeds(t *testing.T) {
	repo, mock := newTokenRepo(t)
	mock.ExpectExec("UPDATE access_tokens.*SET revoked").
		WillReturnResult(sqlmock.NewResult(0, 0))

	if err := repo.RevokeToken(context.Background(), "never-issued"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestRevokeToken_DBError(t *testing.T) {
	repo, mock := newTokenRepo(t)
	mock.ExpectExec("UPDATE access_tokens.*SET revoked").
		WillReturnError(errDB)

	if err := repo.RevokeToken(context.Background(), "signed-token"); err == nil {
		t.Error("expected error, got nil")
	}
}

// ---------------------------------------------------------------------------
// RevokeAllForSubject
// ---------------------------------------------------------------------------

func TestRevokeAllForSubject_Success(t *testing.T) {
	repo, mock := newTokenRepo(t)
	mock.ExpectExec("UPDATE access_tokens.*WHERE subject_id").
		WillReturnResult(sqlmock.NewResult(0, 3))

	count, err := repo.RevokeAllForSubject(context.Background(), "subject-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if count != 3 {
		t.Errorf("count = %d, want 3", count)
	}
}

func TestRevokeAllForSubject_NoActiveTokens(t *testing.T) {
	repo, mock := newTokenRepo(t)
	mock.ExpectExec("UPDATE access_tokens.*WHERE subject_id").
		WillReturnResult(sqlmock.NewResult(0, 0))

	count, err := repo.RevokeAllForSubject(context.Background(), "subject-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if count != 0 {
		t.Errorf("count = %d, want 0", count)
	}
}

func TestRevokeAllForSubject_DBError(t *testing.T) {
	repo, mock := newTokenRepo(t)
	mock.ExpectExec("UPDATE access_tokens.*WHERE subject_id").
		WillReturnError(errDB)

	if _, err := repo.RevokeAllForSubject(context.Background(), "subject-1"); err == nil {
		t.Error("expected error, got nil")
	}
}

// ---------------------------------------------------------------------------
// DeleteExpired
// ---------------------------------------------------------------------------

func TestDeleteExpired_Success(t *testing.T) {
	repo, mock := newTokenRepo(t)
	mock.ExpectExec("DELETE FROM access_tokens.*WHERE expires_at").
		WillReturnResult(sqlmock.NewResult(0, 5))

	count, err := repo.DeleteExpired(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if count != 5 {
		t.Errorf("count = %d, want 5", count)
	}
}

func TestDeleteExpired_DBError(t *testing.T) {
	repo, mock := newTokenRepo(t)
	mock.ExpectExec("DELETE FROM access_tokens.*WHERE expires_at").
		WillReturnError(errDB)

	if _, err := repo.DeleteExpired(context.Background()); err == nil {
		t.Error("expected error, got nil")
	}
}

// ---------------------------------------------------------------------------
// ListBySubject
// ---------------------------------------------------------------------------

func TestListBySubject_Found(t *testing.T) {
	repo, mock := newTokenRepo(t)
	mock.ExpectQuery("SELECT id.*FROM access_tokens.*WHERE subject_id").
		WillReturnRows(sampleTokenRow())

	tokens, err := repo.ListBySubject(context.Background(), "subject-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(tokens) != 1 {
		t.Errorf("len(tokens) = %d, want 1", len(tokens))
	}
}

func TestListBySubject_Empty(t *testing.T) {
	repo, mock := newTokenRepo(t)
	mock.ExpectQuery("SELECT id.*FROM access_tokens.*WHERE subject_id").
		WillReturnRows(sqlmock.NewRows(tokenCols))

	tokens, err := repo.ListBySubject(context.Background(), "subject-without-links")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(tokens) != 0 {
		t.Errorf("len(tokens) = %d, want 0", len(tokens))
	}
}

func TestListBySubject_Error(t *testing.T) {
	repo, mock := newTokenRepo(t)
	mock.ExpectQuery("SELECT id.*FROM access_tokens.*WHERE subject_id").
		WillReturnError(errDB)

	if _, err := repo.ListBySubject(context.Background(), "subject-1"); err == nil {
		t.Error("expected error, got nil")
	}
}

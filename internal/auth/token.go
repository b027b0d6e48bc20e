// Package auth implements the access-control core for intake links: issuing
// signed credentials, two-phase verification (cryptographic then stateful),
// and revocation. The signing secret is injected through Config at
// construction — there is no package-level secret state.
//
// Verification deliberately FAILS CLOSED: if the token store is unreachable or
// times out, the result is a denial (ReasonStoreUnavailable), never an
// unauthenticated bypass. This is the opposite policy from the rate limiter in
// internal/ratelimit, which fails open; the asymmetry is intentional
// (security for the credential check, availability for throttling).
package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/formgate/formgate/internal/db/models"
	"github.com/formgate/formgate/internal/safego"
	"github.com/formgate/formgate/internal/telemetry"
)

// DenyReason classifies why verification refused a credential. The values are
// for server-side diagnostics and metrics only; handlers must collapse them to
// the two externally visible outcomes (see IsExpiry).
type DenyReason string

const (
	// ReasonMalformed: the credential is structurally invalid or its
	// signature does not verify (any tampered byte lands here).
	ReasonMalformed DenyReason = "malformed"
	// ReasonExpiredClaim: the validity window embedded in the credential
	// itself has elapsed.
	ReasonExpiredClaim DenyReason = "expired_claim"
	// ReasonNotFound: the signature checks out but no store row exists for
	// this exact token string.
	ReasonNotFound DenyReason = "not_found"
	// ReasonExpired: the STORED expiry has elapsed, regardless of what the
	// embedded claim says.
	ReasonExpired DenyReason = "expired"
	// ReasonRevoked: the token was explicitly invalidated.
	ReasonRevoked DenyReason = "revoked"
	// ReasonStoreUnavailable: the token store was unreachable or timed out.
	ReasonStoreUnavailable DenyReason = "store_unavailable"
)

// IsExpiry reports whether the denial may be shown to the visitor as "link
// expired". Every other reason must surface as one indistinguishable generic
// denial so an attacker cannot tell a wrong token from a valid-but-revoked one.
func (r DenyReason) IsExpiry() bool {
	return r == ReasonExpiredClaim || r == ReasonExpired
}

// Result is the outcome of verifying a presented credential.
type Result struct {
	// SubjectID is set only when the credential is valid. It comes from the
	// stored row, not the embedded claim.
	SubjectID string
	// ExpiresAt is the stored expiry, set only when the credential is valid.
	ExpiresAt time.Time
	// Reason is empty when valid, otherwise the most specific denial cause.
	Reason DenyReason
}

// Valid reports whether verification succeeded.
func (r Result) Valid() bool {
	return r.Reason == ""
}

// TokenStore is the durable record store behind issuance and verification.
// *repositories.TokenRepository satisfies it; tests substitute fakes.
type TokenStore interface {
	CreateAccessToken(ctx context.Context, t *models.AccessToken) error
	GetAccessToken(ctx context.Context, token string) (*models.AccessToken, error)
	UpdateLastUsed(ctx context.Context, token string) error
	RevokeToken(ctx context.Context, token string) error
	RevokeAllForSubject(ctx context.Context, subjectID string) (int64, error)
}

// Config holds the credential parameters shared by Issuer and Verifier.
type Config struct {
	// SigningSecret is the HMAC-SHA256 key. Must not be empty.
	SigningSecret string
	// TokenTTL is the validity window fixed at issuance.
	TokenTTL time.Duration
	// Issuer is the "iss" claim value.
	Issuer string
	// StoreTimeout bounds each store round trip during verification.
	StoreTimeout time.Duration
}

// Claims is the payload embedded in every intake link credential. The jti
// registered claim carries a fresh UUID per issuance, which is what makes
// every signed token string unique for all time even when the same subject is
// issued two links within the same second.
type Claims struct {
	SubjectID string `json:"subject_id"`
	jwt.RegisteredClaims
}

// Issuer mints signed intake link credentials and durably records them.
type Issuer struct {
	cfg              Config
	store            TokenStore
	singleActiveLink bool
}

// NewIssuer creates an Issuer. When singleActiveLink is true, issuing a new
// link best-effort revokes the subject's previous ones first.
func NewIssuer(cfg Config, store TokenStore, singleActiveLink bool) *Issuer {
	return &Issuer{cfg: cfg, store: store, singleActiveLink: singleActiveLink}
}

// Issue creates a new signed credential for subjectID and persists its record.
// Issuance is atomic: either the signed value is returned and durably
// recorded, or an error is returned and no token exists.
func (i *Issuer) Issue(ctx context.Context, subjectID string) (string, error) {
	if subjectID == "" {
		return "", errors.New("subject id must not be empty")
	}

	if i.singleActiveLink {
		// Supersession is best-effort: a failed bulk revoke must not block
		// sending the new link. The new token is independent either way.
		if _, err := i.store.RevokeAllForSubject(ctx, subjectID); err != nil {
			slog.Warn("failed to revoke previous links for subject", "subject_id", subjectID, "error", err)
		}
	}

	now := time.Now()
	expiresAt := now.Add(i.cfg.TokenTTL)

	claims := &Claims{
		SubjectID: subjectID,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.New().String(),
			Subject:   subjectID,
			Issuer:    i.cfg.Issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte(i.cfg.SigningSecret))
	if err != nil {
		return "", fmt.Errorf("failed to sign token: %w", err)
	}

	record := &models.AccessToken{
		Token:     signed,
		SubjectID: subjectID,
		IssuedAt:  now,
		ExpiresAt: expiresAt,
	}
	if err := i.store.CreateAccessToken(ctx, record); err != nil {
		return "", fmt.Errorf("failed to persist token record: %w", err)
	}

	telemetry.TokensIssuedTotal.Inc()
	return signed, nil
}

// Verifier validates presented credentials against both the signature and the
// stored row state.
type Verifier struct {
	cfg   Config
	store TokenStore
}

// NewVerifier creates a Verifier.
func NewVerifier(cfg Config, store TokenStore) *Verifier {
	return &Verifier{cfg: cfg, store: store}
}

// Verify runs the two-phase check on a presented token string.
//
// Phase 1 is purely cryptographic and never touches the store, so garbage
// input is rejected cheaply. Phase 2 reads the current row state in a single
// query and checks revocation and the STORED expiry — the embedded claim is
// not trusted for the expiry decision.
//
// On success the last_used_at update runs fire-and-forget; its failure is
// logged and counted but never alters the valid result.
func (v *Verifier) Verify(ctx context.Context, tokenString string) Result {
	claims := &Claims{}
	_, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return []byte(v.cfg.SigningSecret), nil
	})
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return v.deny(ReasonExpiredClaim)
		}
		return v.deny(ReasonMalformed)
	}

	storeCtx, cancel := context.WithTimeout(ctx, v.cfg.StoreTimeout)
	defer cancel()

	record, err := v.store.GetAccessToken(storeCtx, tokenString)
	if err != nil {
		// Fail closed: an unreachable store denies access rather than
		// risking an unauthenticated bypass.
		slog.Error("token store unavailable during verification", "error", err)
		return v.deny(ReasonStoreUnavailable)
	}
	if record == nil {
		return v.deny(ReasonNotFound)
	}
	if record.Revoked {
		return v.deny(ReasonRevoked)
	}
	if !time.Now().Before(record.ExpiresAt) {
		return v.deny(ReasonExpired)
	}

	v.touch(tokenString)

	telemetry.VerificationsTotal.WithLabelValues("valid").Inc()
	return Result{SubjectID: record.SubjectID, ExpiresAt: record.ExpiresAt}
}

func (v *Verifier) deny(reason DenyReason) Result {
	telemetry.VerificationsTotal.WithLabelValues(string(reason)).Inc()
	return Result{Reason: reason}
}

// touch updates last_used_at in the background with its own timeout. The
// update is idempotent last-write-wins, so neither ordering nor failure
// affects correctness.
func (v *Verifier) touch(tokenString string) {
	safego.Go(func() {
		ctx, cancel := context.WithTimeout(context.Background(), v.cfg.StoreTimeout)
		defer cancel()

		if err := v.store.UpdateLastUsed(ctx, tokenString); err != nil {
			slog.Warn("failed to update token last_used_at", "error", err)
		}
	})
}

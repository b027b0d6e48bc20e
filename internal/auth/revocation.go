// revocation.go implements the RevocationManager, invoked by business-logic
// collaborators when a subject's record is deleted or a new link supersedes
// old ones.
package auth

import (
	"context"
	"fmt"

	"github.com/formgate/formgate/internal/telemetry"
)

// RevocationManager marks one or all of a subject's tokens invalid. Revoked is
// monotonic, so every operation here is safe to retry.
type RevocationManager struct {
	store TokenStore
}

// NewRevocationManager creates a RevocationManager.
func NewRevocationManager(store TokenStore) *RevocationManager {
	return &RevocationManager{store: store}
}

// RevokeToken revokes a single token. Idempotent: revoking an
// already-revoked or unknown token succeeds without effect.
func (m *RevocationManager) RevokeToken(ctx context.Context, token string) error {
	if err := m.store.RevokeToken(ctx, token); err != nil {
		return fmt.Errorf("failed to revoke token: %w", err)
	}
	telemetry.TokensRevokedTotal.Inc()
	return nil
}

// RevokeSubject revokes every token issued to a subject and returns how many
// rows changed. The operation is not atomic across rows: a partial failure may
// leave some tokens valid, a trade-off favoring availability of the bulk
// operation over all-or-nothing semantics. Callers needing a hard guarantee
// retry until the returned count is zero.
func (m *RevocationManager) RevokeSubject(ctx context.Context, subjectID string) (int64, error) {
	count, err := m.store.RevokeAllForSubject(ctx, subjectID)
	if err != nil {
		return count, fmt.Errorf("failed to revoke tokens for subject %s: %w", subjectID, err)
	}
	telemetry.TokensRevokedTotal.Add(float64(count))
	return count, nil
}

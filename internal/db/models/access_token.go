// Package models defines the database model types for Formgate.
// Each type corresponds to a database table and uses pointer fields for
// nullable columns. Models are pure data types: verification logic belongs
// in internal/auth, query logic in the repositories layer.
package models

import "time"

// AccessToken represents one issued intake link credential. One row per
// issuance; many rows may reference the same subject.
//
// ExpiresAt is fixed at issuance and never recomputed. Revoked only ever
// transitions from false to true. Validity is the conjunction of "row
// exists", "not revoked" and "now before ExpiresAt", always checked against
// the stored values, never against whatever the credential itself claims.
type AccessToken struct {
	ID         string
	Token      string // opaque signed credential string, unique lookup key
	SubjectID  string // the prospect this link authorizes
	IssuedAt   time.Time
	ExpiresAt  time.Time
	Revoked    bool
	LastUsedAt *time.Time // updated best-effort on each successful verification
}

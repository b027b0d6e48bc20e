// Package models - access_log.go defines the AccessLogEntry model recording
// every access attempt against the intake form. Entries are append-only and
// never mutated; they disappear only when the subject itself is purged by the
// external data-retention process.
package models

import "time"

// AccessLogEntry represents a single recorded form access.
type AccessLogEntry struct {
	ID        string
	SubjectID string
	Action    string // "view", "edit", "submit"
	IPAddress string
	UserAgent string
	CreatedAt time.Time
}

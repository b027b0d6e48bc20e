// Package audit handles the access trail for the intake form. Every visit to
// the form — view, edit, or submit — is recorded against the subject whose
// link was presented. Access entries are intentionally separate from
// application logs: application logs are ephemeral debug output for on-call
// engineers, while the access trail is an immutable record consumed during
// disputes ("did the prospect actually open the form?") and may be subject to
// retention policies measured in years.
//
// Recording must never abort the caller's primary operation. Every storage
// failure is absorbed here: logged, counted in Prometheus, and otherwise
// invisible to the request that triggered it.
package audit

import (
	"context"
	"log/slog"
	"time"

	"github.com/formgate/formgate/internal/db/models"
	"github.com/formgate/formgate/internal/safego"
	"github.com/formgate/formgate/internal/telemetry"
)

// Action is the taxonomy of recordable form interactions.
type Action string

const (
	ActionView   Action = "view"
	ActionEdit   Action = "edit"
	ActionSubmit Action = "submit"
)

// writeTimeout bounds the background insert and ship per entry.
const writeTimeout = 5 * time.Second

// EntryStore is the append-only persistence behind the recorder.
// *repositories.AccessLogRepository satisfies it.
type EntryStore interface {
	CreateEntry(ctx context.Context, e *models.AccessLogEntry) error
}

// Recorder appends access entries to the database and optionally ships them to
// external destinations.
type Recorder struct {
	store   EntryStore
	shipper Shipper // may be nil
	enabled bool
}

// NewRecorder creates a Recorder. shipper may be nil when no external
// destination is configured.
func NewRecorder(store EntryStore, shipper Shipper, enabled bool) *Recorder {
	return &Recorder{store: store, shipper: shipper, enabled: enabled}
}

// Record appends one immutable access entry asynchronously. It returns
// nothing: by contract no failure in here may propagate to the caller, whose
// primary operation (serving or accepting the form) has already succeeded.
func (r *Recorder) Record(subjectID string, action Action, ipAddress, userAgent string) {
	if !r.enabled {
		return
	}

	entry := &models.AccessLogEntry{
		SubjectID: subjectID,
		Action:    string(action),
		IPAddress: ipAddress,
		UserAgent: userAgent,
	}

	safego.Go(func() {
		ctx, cancel := context.WithTimeout(context.Background(), writeTimeout)
		defer cancel()

		if err := r.store.CreateEntry(ctx, entry); err != nil {
			slog.Error("failed to record access entry",
				"subject_id", subjectID, "action", action, "error", err)
			telemetry.AuditWriteFailuresTotal.Inc()
		} else {
			telemetry.AuditEntriesTotal.WithLabelValues(string(action)).Inc()
		}

		if r.shipper != nil {
			shipped := &LogEntry{
				Timestamp: time.Now(),
				SubjectID: subjectID,
				Action:    string(action),
				IPAddress: ipAddress,
				UserAgent: userAgent,
			}
			if err := r.shipper.Ship(ctx, shipped); err != nil {
				slog.Error("failed to ship access entry", "error", err)
			}
		}
	})
}

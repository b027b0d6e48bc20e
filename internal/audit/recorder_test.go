package audit

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/formgate/formgate/internal/db/models"
)

// signalStore reports each CreateEntry over a channel so tests can wait for
// the asynchronous write without sleeping.
type signalStore struct {
	err     error
	written chan *models.AccessLogEntry
}

func newSignalStore() *signalStore {
	return &signalStore{written: make(chan *models.AccessLogEntry, 8)}
}

func (s *signalStore) CreateEntry(ctx context.Context, e *models.AccessLogEntry) error {
	s.written <- e
	return s.err
}

func waitForEntry(t *testing.T, s *signalStore) *models.AccessLogEntry {
	t.Helper()
	select {
	case e := <-s.written:
		return e
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for audit write")
		return nil
	}
}

func TestRecord_WritesEntry(t *testing.T) {
	store := newSignalStore()
	rec := NewRecorder(store, nil, true)

	rec.Record("subject-1", ActionView, "198.51.100.1", "test-agent")

	e := waitForEntry(t, store)
	if e.SubjectID != "subject-1" {
		t.Errorf("SubjectID = %q, want %q", e.SubjectID, "subject-1")
	}
	if e.Action != string(ActionView) {
		t.Errorf("Action = %q, want %q", e.Action, ActionView)
	}
	if e.IPAddress != "198.51.100.1" {
		t.Errorf("IPAddress = %q, want %q", e.IPAddress, "198.51.100.1")
	}
}

func TestRecord_AbsorbsStoreFailure(t *testing.T) {
	store := newSignalStore()
	store.err = errors.New("insert failed")
	rec := NewRecorder(store, nil, true)

	// Must not panic and must not block the caller.
	rec.Record("subject-1", ActionSubmit, "", "")
	waitForEntry(t, store)
}

func TestRecord_DisabledRecorderWritesNothing(t *testing.T) {
	store := newSignalStore()
	rec := NewRecorder(store, nil, false)

	rec.Record("subject-1", ActionView, "", "")

	select {
	case <-store.written:
		t.Error("disabled recorder wrote an entry")
	case <-time.After(100 * time.Millisecond):
	}
}

// signalShipper reports each shipped entry over a channel.
type signalShipper struct {
	err     error
	shipped chan *LogEntry
}

func (s *signalShipper) Ship(ctx context.Context, entry *LogEntry) error {
	s.shipped <- entry
	return s.err
}

func (s *signalShipper) Close() error { return nil }

func TestRecord_ShipsToConfiguredDestination(t *testing.T) {
	store := newSignalStore()
	shipper := &signalShipper{shipped: make(chan *LogEntry, 8)}
	rec := NewRecorder(store, shipper, true)

	rec.Record("subject-1", ActionEdit, "198.51.100.1", "test-agent")

	waitForEntry(t, store)
	select {
	case e := <-shipper.shipped:
		if e.SubjectID != "subject-1" || e.Action != string(ActionEdit) {
			t.Errorf("shipped entry = %+v, want subject-1 edit", e)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for ship")
	}
}

func TestRecord_ShipFailureIsAbsorbed(t *testing.T) {
	store := newSignalStore()
	shipper := &signalShipper{shipped: make(chan *LogEntry, 8), err: errors.New("dead endpoint")}
	rec := NewRecorder(store, shipper, true)

	rec.Record("subject-1", ActionView, "", "")

	waitForEntry(t, store)
	select {
	case <-shipper.shipped:
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for ship attempt")
	}
}

// shipper.go routes access entries to destinations outside the primary
// database (a SIEM webhook, an append-only file) so the trail survives even if
// someone with database access tampers with the access_logs table. Shipping is
// best-effort like everything else in this package; a failed destination is
// logged and skipped.
package audit

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"sync"
	"time"

	"github.com/formgate/formgate/internal/config"
)

// LogEntry is the wire shape shipped to external destinations.
type LogEntry struct {
	Timestamp time.Time `json:"timestamp"`
	SubjectID string    `json:"subject_id"`
	Action    string    `json:"action"`
	IPAddress string    `json:"ip_address,omitempty"`
	UserAgent string    `json:"user_agent,omitempty"`
}

// Shipper delivers access entries to an external destination.
type Shipper interface {
	Ship(ctx context.Context, entry *LogEntry) error
	Close() error
}

// NewShipper builds a shipper fan-out from configuration. Returns nil (and no
// error) when no destination is enabled, so callers can pass the result
// straight to NewRecorder.
func NewShipper(configs []config.AuditShipperConfig) (Shipper, error) {
	shippers := make([]Shipper, 0, len(configs))

	for i, cfg := range configs {
		if !cfg.Enabled {
			continue
		}

		var (
			s   Shipper
			err error
		)
		switch cfg.Type {
		case "webhook":
			s, err = newWebhookShipper(cfg.Webhook)
		case "file":
			s, err = newFileShipper(cfg.File)
		default:
			err = fmt.Errorf("unknown shipper type: %s", cfg.Type)
		}
		if err != nil {
			return nil, fmt.Errorf("audit shipper %d: %w", i, err)
		}

		shippers = append(shippers, s)
	}

	if len(shippers) == 0 {
		return nil, nil
	}
	return &multiShipper{shippers: shippers}, nil
}

// multiShipper fans out to every configured destination, continuing past
// individual failures so one dead endpoint cannot silence the others.
type multiShipper struct {
	shippers []Shipper
}

func (m *multiShipper) Ship(ctx context.Context, entry *LogEntry) error {
	var lastErr error
	for _, s := range m.shippers {
		if err := s.Ship(ctx, entry); err != nil {
			lastErr = err
			slog.Error("audit shipper error", "error", err)
		}
	}
	return lastErr
}

func (m *multiShipper) Close() error {
	var lastErr error
	for _, s := range m.shippers {
		if err := s.Close(); err != nil {
			lastErr = err
		}
	}
	return lastErr
}

// webhookShipper POSTs each entry as JSON to a configured endpoint.
type webhookShipper struct {
	cfg    *config.AuditWebhookConfig
	client *http.Client
}

func newWebhookShipper(cfg *config.AuditWebhookConfig) (Shipper, error) {
	if cfg == nil || cfg.URL == "" {
		return nil, fmt.Errorf("webhook config with a url is required")
	}

	timeout := time.Duration(cfg.TimeoutSecs) * time.Second
	if timeout == 0 {
		timeout = 10 * time.Second
	}

	return &webhookShipper{
		cfg:    cfg,
		client: &http.Client{Timeout: timeout},
	}, nil
}

func (w *webhookShipper) Ship(ctx context.Context, entry *LogEntry) error {
	data, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("failed to marshal audit entry: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.cfg.URL, bytes.NewReader(data))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	for k, v := range w.cfg.Headers {
		req.Header.Set(k, v)
	}

	resp, err := w.client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to send webhook: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return fmt.Errorf("webhook returned status %d", resp.StatusCode)
	}

	return nil
}

func (w *webhookShipper) Close() error { return nil }

// fileShipper appends JSON lines to a local file with size-based rotation.
type fileShipper struct {
	cfg  *config.AuditFileConfig
	file *os.File
	mu   sync.Mutex
}

func newFileShipper(cfg *config.AuditFileConfig) (Shipper, error) {
	if cfg == nil || cfg.Path == "" {
		return nil, fmt.Errorf("file config with a path is required")
	}

	file, err := os.OpenFile(cfg.Path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0600)
	if err != nil {
		return nil, fmt.Errorf("failed to open audit log file: %w", err)
	}

	return &fileShipper{cfg: cfg, file: file}, nil
}

func (f *fileShipper) Ship(ctx context.Context, entry *LogEntry) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.cfg.MaxSizeMB > 0 {
		info, err := f.file.Stat()
		if err == nil && info.Size() > int64(f.cfg.MaxSizeMB)*1024*1024 {
			if err := f.rotate(); err != nil {
				slog.Error("failed to rotate audit log file", "error", err)
			}
		}
	}

	data, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("failed to marshal audit entry: %w", err)
	}

	if _, err := f.file.Write(append(data, '\n')); err != nil {
		return fmt.Errorf("failed to write audit entry: %w", err)
	}

	return nil
}

func (f *fileShipper) rotate() error {
	if err := f.file.Close(); err != nil {
		return err
	}

	for i := f.cfg.MaxBackups - 1; i >= 1; i-- {
		oldPath := fmt.Sprintf("%s.%d", f.cfg.Path, i)
		newPath := fmt.Sprintf("%s.%d", f.cfg.Path, i+1)
		_ = os.Rename(oldPath, newPath)
	}

	_ = os.Rename(f.cfg.Path, f.cfg.Path+".1")

	if f.cfg.MaxBackups > 0 {
		_ = os.Remove(fmt.Sprintf("%s.%d", f.cfg.Path, f.cfg.MaxBackups+1))
	}

	file, err := os.OpenFile(f.cfg.Path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0600)
	if err != nil {
		return err
	}

	f.file = file
	return nil
}

func (f *fileShipper) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.file.Close()
}

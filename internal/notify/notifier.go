// Package notify delivers outbound messages to callers and supervisors.
// Delivery is best-effort: the escalation workflow treats failures as
// warnings, never as fatal errors.
package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"
)

const sendTimeout = 10 * time.Second

// Notifier sends outbound notifications.
type Notifier interface {
	// NotifyCaller delivers text to the caller identified by callerID
	// (typically a phone number).
	NotifyCaller(ctx context.Context, callerID, text string) error
	// NotifySupervisor delivers text to the on-duty supervisor channel.
	NotifySupervisor(ctx context.Context, text string) error
}

// Webhook posts JSON payloads to configured webhook URLs, one per
// audience. An empty URL disables that audience and the send becomes a
// logged no-op, so a partially configured deployment still works.
type Webhook struct {
	callerURL     string
	supervisorURL string
	httpClient    *http.Client
	logger        *slog.Logger
}

// NewWebhook creates a Webhook notifier. Either URL may be empty.
func NewWebhook(callerURL, supervisorURL string) *Webhook {
	return &Webhook{
		callerURL:     strings.TrimRight(callerURL, "/"),
		supervisorURL: strings.TrimRight(supervisorURL, "/"),
		httpClient:    &http.Client{Timeout: sendTimeout},
		logger:        slog.Default(),
	}
}

// NewWebhookWithClient creates a Webhook notifier with a custom HTTP client
// (for testing).
func NewWebhookWithClient(callerURL, supervisorURL string, client *http.Client) *Webhook {
	w := NewWebhook(callerURL, supervisorURL)
	w.httpClient = client
	return w
}

func (w *Webhook) NotifyCaller(ctx context.Context, callerID, text string) error {
	if w.callerURL == "" {
		w.logger.Info("caller notification skipped (no webhook configured)", "caller_id", callerID)
		return nil
	}
	return w.post(ctx, w.callerURL, map[string]string{
		"to":      callerID,
		"message": text,
	})
}

func (w *Webhook) NotifySupervisor(ctx context.Context, text string) error {
	if w.supervisorURL == "" {
		w.logger.Info("supervisor notification skipped (no webhook configured)")
		return nil
	}
	return w.post(ctx, w.supervisorURL, map[string]string{
		"message": text,
	})
}

func (w *Webhook) post(ctx context.Context, url string, payload map[string]string) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshaling notification: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("creating notification request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := w.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("sending notification: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("notification webhook returned status %d: %s", resp.StatusCode, snippet)
	}
	return nil
}

// Log is a Notifier that only writes log lines. Used when no webhooks are
// configured and in local simulation.
type Log struct {
	logger *slog.Logger
}

// NewLog creates a logging Notifier.
func NewLog() *Log {
	return &Log{logger: slog.Default()}
}

func (l *Log) NotifyCaller(ctx context.Context, callerID, text string) error {
	l.logger.Info("caller notified", "caller_id", callerID, "message", text)
	return nil
}

func (l *Log) NotifySupervisor(ctx context.Context, text string) error {
	l.logger.Info("supervisor notified", "message", text)
	return nil
}

// Package deliver holds the outbound adapters: the chat webhook for
// live notifications and the payroll ingestion endpoint.  Both retry a
// bounded number of times with a fixed sleep; only payroll submission
// failures are fatal to their caller.
package deliver

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

const userAgent = "nfc-attendance/1.0"

const (
	chatAttempts = 3
	chatSleep    = time.Second
)

// ChatSink posts plain-text messages to a Discord-style webhook.
type ChatSink struct {
	url    string
	client *http.Client
}

func NewChatSink(url string, timeout time.Duration) *ChatSink {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &ChatSink{
		url:    url,
		client: &http.Client{Timeout: timeout},
	}
}

// Notify delivers one message, retrying transient failures.  Callers
// treat an error as log-and-drop: a dead webhook must not stall tap
// processing.
func (s *ChatSink) Notify(ctx context.Context, text string) error {
	body, err := json.Marshal(map[string]string{"content": text})
	if err != nil {
		return fmt.Errorf("marshal chat payload: %w", err)
	}

	var lastErr error
	for i := 0; i < chatAttempts; i++ {
		if lastErr = s.post(ctx, body); lastErr == nil {
			return nil
		}
		if i+1 < chatAttempts {
			if err := sleepCtx(ctx, chatSleep); err != nil {
				return err
			}
		}
	}
	return lastErr
}

func (s *ChatSink) post(ctx context.Context, body []byte) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.url, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", userAgent)

	resp, err := s.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 400))
	if resp.StatusCode >= 300 {
		return fmt.Errorf("chat webhook: HTTP %d %s", resp.StatusCode, bytes.TrimSpace(snippet))
	}
	return nil
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

package deliver

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/yktsnet/nfc-attendance-kit/internal/kintai/types"
)

// PayrollSink submits a month's records to the ingestion endpoint.
// The endpoint answers a JSON object; anything without `"ok": true` is
// a failure.
type PayrollSink struct {
	url      string
	token    string
	client   *http.Client
	attempts int
	sleep    time.Duration
}

func NewPayrollSink(url, token string, timeout time.Duration, attempts int, sleep time.Duration) *PayrollSink {
	if timeout <= 0 {
		timeout = 20 * time.Second
	}
	if attempts <= 0 {
		attempts = 1
	}
	return &PayrollSink{
		url:      url,
		token:    token,
		client:   &http.Client{Timeout: timeout},
		attempts: attempts,
		sleep:    sleep,
	}
}

// Submit posts the records, retrying on failure.  Exhaustion returns an
// error that the payroll run must propagate; a silently dropped
// submission is worse than a loud one.
func (s *PayrollSink) Submit(ctx context.Context, records []types.PayrollRecord) (map[string]any, error) {
	body, err := json.Marshal(map[string]any{"records": records})
	if err != nil {
		return nil, fmt.Errorf("marshal payroll payload: %w", err)
	}

	var lastErr error
	for i := 0; i < s.attempts; i++ {
		ack, err := s.post(ctx, body)
		if err == nil {
			ack["sent_records"] = len(records)
			return ack, nil
		}
		lastErr = err
		if i+1 < s.attempts {
			if err := sleepCtx(ctx, s.sleep); err != nil {
				return nil, err
			}
		}
	}
	return nil, fmt.Errorf("payroll submit failed after %d attempts: %w", s.attempts, lastErr)
}

func (s *PayrollSink) post(ctx context.Context, body []byte) (map[string]any, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.url, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", userAgent)
	if s.token != "" {
		req.Header.Set("X-Auth-Token", s.token)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if resp.StatusCode >= 300 {
		return nil, fmt.Errorf("payroll sink: HTTP %d %s", resp.StatusCode, bytes.TrimSpace(truncate(raw, 400)))
	}

	var ack map[string]any
	if err := json.Unmarshal(raw, &ack); err != nil {
		return nil, fmt.Errorf("payroll sink: non-JSON response %s", bytes.TrimSpace(truncate(raw, 400)))
	}
	if ok, _ := ack["ok"].(bool); !ok {
		return nil, fmt.Errorf("payroll sink: bad response %s", bytes.TrimSpace(truncate(raw, 400)))
	}
	return ack, nil
}

func truncate(b []byte, n int) []byte {
	if len(b) > n {
		return b[:n]
	}
	return b
}

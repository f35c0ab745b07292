package deliver

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/yktsnet/nfc-attendance-kit/internal/kintai/types"
)

var testRecords = []types.PayrollRecord{
	{ID: "r1", Date: "2026-08-10", EmployeeID: "tanaka", MinutesRaw: 540, MinutesRounded: 540, HourlyYen: 1500, Pay: 13500},
	{ID: "r2", Date: "2026-08-10", EmployeeID: "suzuki", MinutesRaw: 60, MinutesRounded: 60, HourlyYen: 1200, Pay: 1200, Flags: []string{"cross_day"}},
}

func TestPayrollSink_SubmitOK(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if tok := r.Header.Get("X-Auth-Token"); tok != "sekrit" {
			t.Errorf("expected auth token, got %q", tok)
		}
		var payload struct {
			Records []types.PayrollRecord `json:"records"`
		}
		if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
			t.Errorf("decode body: %v", err)
		}
		if len(payload.Records) != 2 {
			t.Errorf("expected 2 records, got %d", len(payload.Records))
		}
		json.NewEncoder(w).Encode(map[string]any{"ok": true, "saved": 2})
	}))
	defer srv.Close()

	s := NewPayrollSink(srv.URL, "sekrit", time.Second, 3, 0)
	ack, err := s.Submit(context.Background(), testRecords)
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if ack["sent_records"] != 2 {
		t.Errorf("expected sent_records=2, got %v", ack["sent_records"])
	}
	if ack["saved"] != float64(2) {
		t.Errorf("expected the endpoint's ack fields passed through, got %v", ack)
	}
}

func TestPayrollSink_NoTokenHeaderWhenEmpty(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if _, ok := r.Header["X-Auth-Token"]; ok {
			t.Error("X-Auth-Token must be absent when no token is configured")
		}
		json.NewEncoder(w).Encode(map[string]any{"ok": true})
	}))
	defer srv.Close()

	s := NewPayrollSink(srv.URL, "", time.Second, 1, 0)
	if _, err := s.Submit(context.Background(), nil); err != nil {
		t.Fatalf("Submit: %v", err)
	}
}

func TestPayrollSink_RejectsAckWithoutOK(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{"ok": false, "error": "bad token"})
	}))
	defer srv.Close()

	s := NewPayrollSink(srv.URL, "", time.Second, 1, 0)
	_, err := s.Submit(context.Background(), testRecords)
	if err == nil {
		t.Fatal("expected an error for ok=false")
	}
	if !strings.Contains(err.Error(), "bad token") {
		t.Errorf("expected the response body in the error, got %v", err)
	}
}

func TestPayrollSink_RejectsNonJSON(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("<html>login page</html>"))
	}))
	defer srv.Close()

	s := NewPayrollSink(srv.URL, "", time.Second, 1, 0)
	if _, err := s.Submit(context.Background(), testRecords); err == nil {
		t.Fatal("expected an error for a non-JSON response")
	}
}

func TestPayrollSink_RetriesThenSucceeds(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			http.Error(w, "down", http.StatusBadGateway)
			return
		}
		json.NewEncoder(w).Encode(map[string]any{"ok": true})
	}))
	defer srv.Close()

	s := NewPayrollSink(srv.URL, "", time.Second, 3, 0)
	if _, err := s.Submit(context.Background(), testRecords); err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if n := calls.Load(); n != 3 {
		t.Errorf("expected 3 attempts, got %d", n)
	}
}

func TestPayrollSink_ExhaustionMentionsAttempts(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "down", http.StatusBadGateway)
	}))
	defer srv.Close()

	s := NewPayrollSink(srv.URL, "", time.Second, 2, 0)
	_, err := s.Submit(context.Background(), testRecords)
	if err == nil {
		t.Fatal("expected an error")
	}
	if !strings.Contains(err.Error(), "2 attempts") {
		t.Errorf("expected the attempt count in the error, got %v", err)
	}
}

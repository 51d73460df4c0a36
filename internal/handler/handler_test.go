package handler

import (
	"bytes"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"faceenroll/internal/dto"
	"faceenroll/internal/logger"
	"faceenroll/internal/service/sampler"
)

type fakeSession struct {
	cancelled int
}

func (f *fakeSession) Progress() dto.Progress {
	return dto.Progress{SessionID: "abc", Label: "alice", State: "sampling", Count: 7, Quota: 25}
}

func (f *fakeSession) Stats() sampler.Stats { return sampler.Stats{Ticks: 12, Accepted: 7, Rejected: 5} }

func (f *fakeSession) Cancel() { f.cancelled++ }

func TestGetSessionHandler(t *testing.T) {
	h := GetSessionHandler(&fakeSession{}, logger.New(io.Discard))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/session", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", rec.Code)
	}
	var body struct {
		Label string        `json:"label"`
		Count int           `json:"count"`
		Quota int           `json:"quota"`
		Stats sampler.Stats `json:"stats"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("Invalid JSON: %v", err)
	}
	if body.Label != "alice" || body.Count != 7 || body.Quota != 25 || body.Stats.Ticks != 12 {
		t.Errorf("Unexpected body %+v", body)
	}

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/session", nil))
	if rec.Code != http.StatusMethodNotAllowed {
		t.Errorf("Expected 405 for POST, got %d", rec.Code)
	}
}

func TestCancelSessionHandler(t *testing.T) {
	s := &fakeSession{}
	h := CancelSessionHandler(s, logger.New(io.Discard))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/session/cancel", nil))
	if rec.Code != http.StatusMethodNotAllowed || s.cancelled != 0 {
		t.Errorf("GET must not cancel, got %d and %d cancels", rec.Code, s.cancelled)
	}

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/session/cancel", nil))
	if rec.Code != http.StatusAccepted || s.cancelled != 1 {
		t.Errorf("Expected 202 and one cancel, got %d and %d", rec.Code, s.cancelled)
	}
}

// brokenWriter accepts headers but fails every body write.
type brokenWriter struct {
	header http.Header
}

func (b *brokenWriter) Header() http.Header {
	if b.header == nil {
		b.header = make(http.Header)
	}
	return b.header
}

func (b *brokenWriter) Write([]byte) (int, error) { return 0, errors.New("connection reset") }

func (b *brokenWriter) WriteHeader(int) {}

func TestCancelSessionHandler_LogsEncodeFailure(t *testing.T) {
	var out bytes.Buffer
	s := &fakeSession{}
	h := CancelSessionHandler(s, logger.New(&out))

	h.ServeHTTP(&brokenWriter{}, httptest.NewRequest(http.MethodPost, "/api/session/cancel", nil))

	if s.cancelled != 1 {
		t.Errorf("Expected one cancel, got %d", s.cancelled)
	}
	if !strings.Contains(out.String(), "Failed to encode session") {
		t.Errorf("Expected encode failure to be logged, got %q", out.String())
	}
}

func TestLogsHandlers(t *testing.T) {
	dir := t.TempDir()
	log, err := logger.NewLogger(dir, "info", io.Discard)
	if err != nil {
		t.Fatalf("NewLogger failed: %v", err)
	}
	defer log.Close()
	log.Info("hello from the test")

	rec := httptest.NewRecorder()
	ShowLogsHandler(log, "info.log").ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/logs/info", nil))
	if rec.Code != http.StatusOK || rec.Body.Len() == 0 {
		t.Fatalf("Expected log contents, got %d (%d bytes)", rec.Code, rec.Body.Len())
	}

	rec = httptest.NewRecorder()
	ClearLogsHandler(log, "info.log").ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/logs/info/clear", nil))
	if rec.Code != http.StatusNoContent {
		t.Fatalf("Expected 204, got %d", rec.Code)
	}
	if info, err := os.Stat(filepath.Join(dir, "info.log")); err != nil || info.Size() != 0 {
		t.Errorf("Expected truncated info.log, got %v", err)
	}

	rec = httptest.NewRecorder()
	ShowLogsHandler(log, "missing.log").ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/logs/missing", nil))
	if rec.Code != http.StatusNotFound {
		t.Errorf("Expected 404 for missing file, got %d", rec.Code)
	}
}

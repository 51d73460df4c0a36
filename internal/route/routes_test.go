package route

import (
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"faceenroll/internal/dto"
	"faceenroll/internal/logger"
	"faceenroll/internal/service/sampler"

	"github.com/gorilla/websocket"
)

type stubSession struct{}

func (stubSession) Progress() dto.Progress { return dto.Progress{Label: "alice", Quota: 25} }
func (stubSession) Stats() sampler.Stats   { return sampler.Stats{} }
func (stubSession) Cancel()                {}

type stubHub struct{}

func (stubHub) Register(*websocket.Conn)   {}
func (stubHub) Unregister(*websocket.Conn) {}

func TestSetupRoutes(t *testing.T) {
	router := SetupRoutes(stubSession{}, stubHub{}, "tok", logger.New(io.Discard))
	srv := httptest.NewServer(router)
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/api/session")
	if err != nil {
		t.Fatalf("GET failed: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusUnauthorized {
		t.Errorf("Expected 401 without token, got %d", resp.StatusCode)
	}

	resp, err = http.Get(srv.URL + "/api/session?token=tok")
	if err != nil {
		t.Fatalf("GET failed: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("Expected 200 with token, got %d", resp.StatusCode)
	}

	resp, err = http.Get(srv.URL + "/logs/info?token=tok")
	if err != nil {
		t.Fatalf("GET failed: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("Expected 404 for console-only logger, got %d", resp.StatusCode)
	}
}

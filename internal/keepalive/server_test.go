package keepalive

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

type staticGuilds int

func (g staticGuilds) Guilds() int { return int(g) }

func TestRoot(t *testing.T) {
	srv := httptest.NewServer(NewHandler(staticGuilds(0)))
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/")
	if err != nil {
		t.Fatalf("GET / failed: %v", err)
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(resp.Body)
	if resp.StatusCode != http.StatusOK {
		t.Errorf("Expected 200, got %d", resp.StatusCode)
	}
	if string(body) != "Bot is running!" {
		t.Errorf("Unexpected body %q", body)
	}
}

func TestHealthz(t *testing.T) {
	srv := httptest.NewServer(NewHandler(staticGuilds(3)))
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/healthz")
	if err != nil {
		t.Fatalf("GET /healthz failed: %v", err)
	}
	defer resp.Body.Close()

	var body struct {
		Status string `json:"status"`
		Guilds int    `json:"guilds"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("Decode failed: %v", err)
	}
	if body.Status != "ok" || body.Guilds != 3 {
		t.Errorf("Unexpected health body %+v", body)
	}
}

func TestUnknownPath(t *testing.T) {
	srv := httptest.NewServer(NewHandler(nil))
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/missing")
	if err != nil {
		t.Fatalf("GET failed: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("Expected 404, got %d", resp.StatusCode)
	}
}

func TestListenAndServeStopsOnCancel(t *testing.T) {
	s := NewServer("127.0.0.1:0", staticGuilds(0), nil)
	ctx, cancel := context.WithCancel(context.Background())

	errCh := make(chan error, 1)
	go func() { errCh <- s.ListenAndServe(ctx) }()

	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case err := <-errCh:
		if err != nil {
			t.Fatalf("Expected clean shutdown, got %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Timed out waiting for shutdown")
	}
}

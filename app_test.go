package userdeck

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/userdeck/userdeck/internal/config"
	"github.com/userdeck/userdeck/pkg/user"
)

func userService(t *testing.T, hits *int) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodGet && r.URL.Path == "/users" {
			if hits != nil {
				*hits++
			}
			json.NewEncoder(w).Encode(map[string]any{
				"users": []user.Record{
					{ID: "u1", Email: "a@example.com", Name: "Ann", Active: true},
					{ID: "u2", Email: "b@example.com", Name: "Ben", Active: false},
				},
				"total": 2,
				"page":  1,
			})
			return
		}
		http.NotFound(w, r)
	}))
}

func testConfig(baseURL string) *config.Config {
	cfg := config.New()
	cfg.API.BaseURL = baseURL
	cfg.Server.ListenAddr = "127.0.0.1:0"
	return cfg
}

func TestNewWiresCollaborators(t *testing.T) {
	app, err := New(testConfig("http://localhost:1"))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if app.Store == nil || app.Coordinator == nil || app.Toasts == nil || app.Trail == nil {
		t.Fatal("missing collaborators")
	}
	if app.Pages == nil {
		t.Fatal("page cache should default to in-memory")
	}
	if app.Registry() == nil {
		t.Fatal("metric registry missing")
	}
	if app.Exporter() != nil {
		t.Error("exporter should be absent without an object store")
	}

	// The coordinator's metrics registered against the app registry.
	families, err := app.Registry().Gather()
	if err != nil {
		t.Fatal(err)
	}
	if len(families) == 0 {
		t.Error("no metrics registered")
	}
}

func TestNewRejectsNilConfig(t *testing.T) {
	if _, err := New(nil); err == nil {
		t.Fatal("expected an error")
	}
}

func TestLoadInitialPopulatesStoreAndCache(t *testing.T) {
	var hits int
	srv := userService(t, &hits)
	defer srv.Close()

	app, err := New(testConfig(srv.URL))
	if err != nil {
		t.Fatal(err)
	}

	ctx := context.Background()
	if err := app.LoadInitial(ctx); err != nil {
		t.Fatalf("LoadInitial: %v", err)
	}
	if app.Store.Len() != 2 {
		t.Errorf("store len = %d", app.Store.Len())
	}
	if rec, ok := app.Store.Get("u1"); !ok || rec.Name != "Ann" {
		t.Errorf("u1 = %+v, %v", rec, ok)
	}

	// Second load hits the page cache, not the service.
	if err := app.LoadInitial(ctx); err != nil {
		t.Fatal(err)
	}
	if hits != 1 {
		t.Errorf("service hit %d times, want 1", hits)
	}
}

func TestLoadInitialSurfacesServiceFailure(t *testing.T) {
	app, err := New(testConfig("http://127.0.0.1:1"))
	if err != nil {
		t.Fatal(err)
	}
	if err := app.LoadInitial(context.Background()); err == nil {
		t.Fatal("expected an error from an unreachable service")
	}
}

func TestRunStopsOnCancel(t *testing.T) {
	srv := userService(t, nil)
	defer srv.Close()

	app, err := New(testConfig(srv.URL))
	if err != nil {
		t.Fatal(err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- app.Run(ctx) }()

	time.Sleep(100 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Run returned %v", err)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("Run did not stop after cancel")
	}
}

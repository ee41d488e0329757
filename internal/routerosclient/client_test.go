package routerosclient

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestPrintDecodesRows(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/rest/system/resource" {
			t.Fatalf("unexpected path: %s", r.URL.Path)
		}
		user, pass, ok := r.BasicAuth()
		if !ok || user != "admin" || pass != "secret" {
			t.Fatalf("missing or wrong basic auth: %q %q %v", user, pass, ok)
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`[{"cpu-load":"12","free-memory":"1024"}]`))
	}))
	defer srv.Close()

	c := New(Config{BaseURL: srv.URL, Username: "admin", Password: "secret"})
	rows, err := c.Print(context.Background(), "/system/resource")
	if err != nil {
		t.Fatalf("Print: %v", err)
	}
	if len(rows) != 1 || rows[0]["cpu-load"] != "12" {
		t.Fatalf("unexpected rows: %+v", rows)
	}
}

func TestPrintReturnsErrorOnNon2xx(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer srv.Close()

	c := New(Config{BaseURL: srv.URL})
	if _, err := c.Print(context.Background(), "/system/resource"); err == nil {
		t.Fatal("expected error on 401 response")
	}
}

func TestExecuteRawPostsParamsAsJSON(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Fatalf("expected POST, got %s", r.Method)
		}
		if r.URL.Path != "/rest/interface/disable" {
			t.Fatalf("unexpected path: %s", r.URL.Path)
		}
		w.Write([]byte(`{"ok":true}`))
	}))
	defer srv.Close()

	c := New(Config{BaseURL: srv.URL})
	out, err := c.ExecuteRaw(context.Background(), "/interface/disable", map[string]string{"target": "ether1"})
	if err != nil {
		t.Fatalf("ExecuteRaw: %v", err)
	}
	m, ok := out.(map[string]any)
	if !ok || m["ok"] != true {
		t.Fatalf("unexpected decoded body: %+v", out)
	}
}

func TestIsConnectedFalseOnUnreachableHost(t *testing.T) {
	c := New(Config{BaseURL: "http://127.0.0.1:1"})
	if c.IsConnected(context.Background()) {
		t.Fatal("expected IsConnected false for an unreachable host")
	}
}

package webhookdispatch

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/aiops/fleet-intel/internal/collab"
)

func TestSendPostsJSONPayload(t *testing.T) {
	var received payload
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := json.NewDecoder(r.Body).Decode(&received); err != nil {
			t.Fatalf("decode: %v", err)
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	d := New(Config{Channels: map[string]string{"ops": srv.URL}, AllowPrivate: true})
	err := d.Send(context.Background(), []string{"ops"}, collab.Notification{
		Type: "decision_auto_execute", Title: "t", Body: "b", Priority: "high",
	})
	if err != nil {
		t.Fatalf("Send: %v", err)
	}
	if received.Title != "t" || received.Priority != "high" {
		t.Fatalf("unexpected payload: %+v", received)
	}
}

func TestSendReturnsErrorForUnknownChannel(t *testing.T) {
	d := New(Config{Channels: map[string]string{}, AllowPrivate: true})
	if err := d.Send(context.Background(), []string{"missing"}, collab.Notification{}); err == nil {
		t.Fatal("expected error for unknown channel")
	}
}

func TestSendRejectsPrivateTargetWhenNotAllowlisted(t *testing.T) {
	d := New(Config{Channels: map[string]string{"ops": "http://127.0.0.1:9/hook"}, AllowPrivate: false})
	if err := d.Send(context.Background(), []string{"ops"}, collab.Notification{}); err == nil {
		t.Fatal("expected SSRF guard to reject loopback target")
	}
}

func TestSendReturnsErrorOnNon2xxResponse(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	d := New(Config{Channels: map[string]string{"ops": srv.URL}, AllowPrivate: true})
	if err := d.Send(context.Background(), []string{"ops"}, collab.Notification{}); err == nil {
		t.Fatal("expected error on 500 response")
	}
}

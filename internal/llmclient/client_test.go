package llmclient

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/aiops/fleet-intel/internal/collab"
)

func newTestServer(t *testing.T, content string) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		resp := chatResponse{}
		resp.Choices = []struct {
			Message chatMessage `json:"message"`
		}{{Message: chatMessage{Role: "assistant", Content: content}}}
		_ = json.NewEncoder(w).Encode(resp)
	}))
}

func TestAnalyzeParsesJSONReply(t *testing.T) {
	srv := newTestServer(t, `{"summary":"link flapping on ether1","recommendations":["check cable"],"riskLevel":"low","confidence":0.8}`)
	defer srv.Close()

	c := New(Config{BaseURL: srv.URL})
	result, err := c.Analyze(context.Background(), collab.AnalyzeRequest{Type: "root_cause", Context: map[string]any{"x": 1}})
	if err != nil {
		t.Fatalf("Analyze() error = %v", err)
	}
	if result.Summary != "link flapping on ether1" {
		t.Fatalf("Summary = %q", result.Summary)
	}
	if result.RiskLevel != "low" || result.Confidence != 0.8 {
		t.Fatalf("RiskLevel/Confidence = %q/%v", result.RiskLevel, result.Confidence)
	}
}

func TestAnalyzeStripsMarkdownCodeFence(t *testing.T) {
	srv := newTestServer(t, "```json\n{\"summary\":\"ok\",\"recommendations\":[],\"riskLevel\":\"low\",\"confidence\":0.5}\n```")
	defer srv.Close()

	c := New(Config{BaseURL: srv.URL})
	result, err := c.Analyze(context.Background(), collab.AnalyzeRequest{Type: "noise_filter"})
	if err != nil {
		t.Fatalf("Analyze() error = %v", err)
	}
	if result.Summary != "ok" {
		t.Fatalf("Summary = %q", result.Summary)
	}
}

func TestAnalyzeReturnsErrorOnMalformedJSON(t *testing.T) {
	srv := newTestServer(t, "not json")
	defer srv.Close()

	c := New(Config{BaseURL: srv.URL})
	if _, err := c.Analyze(context.Background(), collab.AnalyzeRequest{Type: "decision"}); err == nil {
		t.Fatal("expected error for malformed JSON reply")
	}
}

func TestAnalyzeReturnsErrorOnNon2xx(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte(`{"error":"boom"}`))
	}))
	defer srv.Close()

	c := New(Config{BaseURL: srv.URL})
	if _, err := c.Analyze(context.Background(), collab.AnalyzeRequest{Type: "decision"}); err == nil {
		t.Fatal("expected error for 500 response")
	} else if !strings.Contains(err.Error(), "500") {
		t.Fatalf("error = %v, want mention of status 500", err)
	}
}

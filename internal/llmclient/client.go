// Package llmclient implements a collab.LLMAnalyzer against an
// OpenAI-compatible chat completions endpoint (also reachable through
// DeepSeek and other compatible gateways, same as the teacher's
// internal/ai/providers.OpenAIClient). The root-cause analyzer and
// noise filter both treat calls through this client as best-effort:
// a timeout or malformed response degrades to "no AI opinion" rather
// than failing the caller (§5, §7).
package llmclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/aiops/fleet-intel/internal/apperr"
	"github.com/aiops/fleet-intel/internal/collab"
)

const (
	defaultBaseURL = "https://api.openai.com/v1/chat/completions"
	defaultTimeout = 30 * time.Second
)

// Config configures a Client.
type Config struct {
	APIKey  string
	Model   string
	BaseURL string // defaults to OpenAI's chat completions endpoint
	Timeout time.Duration
}

func (c Config) withDefaults() Config {
	if c.BaseURL == "" {
		c.BaseURL = defaultBaseURL
	}
	if c.Timeout <= 0 {
		c.Timeout = defaultTimeout
	}
	if c.Model == "" {
		c.Model = "gpt-4o-mini"
	}
	return c
}

// Client is a collab.LLMAnalyzer backed by a hosted chat-completions
// model. It asks the model to answer strictly in JSON and parses that
// JSON into a collab.AnalyzeResult.
type Client struct {
	cfg Config
	hc  *http.Client
}

func New(cfg Config) *Client {
	cfg = cfg.withDefaults()
	return &Client{
		cfg: cfg,
		hc:  &http.Client{Timeout: cfg.Timeout},
	}
}

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	Temperature float64       `json:"temperature,omitempty"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatResponse struct {
	Choices []struct {
		Message chatMessage `json:"message"`
	} `json:"choices"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error"`
}

// jsonResult is the shape the system prompt instructs the model to
// reply with.
type jsonResult struct {
	Summary         string   `json:"summary"`
	Recommendations []string `json:"recommendations"`
	RiskLevel       string   `json:"riskLevel"`
	Confidence      float64  `json:"confidence"`
}

const systemPrompt = `You are a network operations assistant. Reply with a single JSON object only, matching exactly this shape:
{"summary": string, "recommendations": [string], "riskLevel": "low"|"medium"|"high", "confidence": number between 0 and 1}
Do not include any text outside the JSON object.`

// Analyze sends req's context as a user message and parses the
// model's JSON reply into an AnalyzeResult.
func (c *Client) Analyze(ctx context.Context, req collab.AnalyzeRequest) (collab.AnalyzeResult, error) {
	body, err := json.Marshal(req.Context)
	if err != nil {
		return collab.AnalyzeResult{}, apperr.Wrap(apperr.Dependency, "llmclient.Analyze", "marshaling request context", err)
	}

	payload := chatRequest{
		Model: c.cfg.Model,
		Messages: []chatMessage{
			{Role: "system", Content: systemPrompt},
			{Role: "user", Content: fmt.Sprintf("type: %s\ncontext: %s", req.Type, string(body))},
		},
	}
	reqBody, err := json.Marshal(payload)
	if err != nil {
		return collab.AnalyzeResult{}, apperr.Wrap(apperr.Dependency, "llmclient.Analyze", "marshaling chat request", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.BaseURL, bytes.NewReader(reqBody))
	if err != nil {
		return collab.AnalyzeResult{}, apperr.Wrap(apperr.Dependency, "llmclient.Analyze", "building request", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if c.cfg.APIKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)
	}

	resp, err := c.hc.Do(httpReq)
	if err != nil {
		return collab.AnalyzeResult{}, apperr.Wrap(apperr.Dependency, "llmclient.Analyze", "calling chat completions endpoint", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return collab.AnalyzeResult{}, apperr.Wrap(apperr.Dependency, "llmclient.Analyze", "reading response body", err)
	}
	if resp.StatusCode >= 300 {
		return collab.AnalyzeResult{}, apperr.New(apperr.Dependency, "llmclient.Analyze", fmt.Sprintf("chat completions returned status %d: %s", resp.StatusCode, string(respBody)))
	}

	var parsed chatResponse
	if err := json.Unmarshal(respBody, &parsed); err != nil {
		return collab.AnalyzeResult{}, apperr.Wrap(apperr.Dependency, "llmclient.Analyze", "decoding chat response", err)
	}
	if parsed.Error != nil {
		return collab.AnalyzeResult{}, apperr.New(apperr.Dependency, "llmclient.Analyze", "chat completions error: "+parsed.Error.Message)
	}
	if len(parsed.Choices) == 0 {
		return collab.AnalyzeResult{}, apperr.New(apperr.Dependency, "llmclient.Analyze", "chat completions returned no choices")
	}

	content := strings.TrimSpace(parsed.Choices[0].Message.Content)
	content = strings.TrimPrefix(content, "```json")
	content = strings.TrimPrefix(content, "```")
	content = strings.TrimSuffix(content, "```")

	var out jsonResult
	if err := json.Unmarshal([]byte(strings.TrimSpace(content)), &out); err != nil {
		return collab.AnalyzeResult{}, apperr.Wrap(apperr.Dependency, "llmclient.Analyze", "parsing model JSON reply", err)
	}

	return collab.AnalyzeResult{
		Summary:         out.Summary,
		Recommendations: out.Recommendations,
		RiskLevel:       out.RiskLevel,
		Confidence:      out.Confidence,
	}, nil
}

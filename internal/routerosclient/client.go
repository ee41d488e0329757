// Package routerosclient implements collab.DeviceClient against
// RouterOS v7's REST API (plain JSON over HTTPS, HTTP basic auth). It
// is an adapter living outside the core per §1's scope boundary: the
// pipeline and its collaborators only ever see the collab.DeviceClient
// interface, never this package's types.
package routerosclient

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
)

// Config configures a Client for one device.
type Config struct {
	BaseURL  string // e.g. "https://10.0.0.1"
	Username string
	Password string
	Timeout  time.Duration
}

func (c Config) withDefaults() Config {
	if c.Timeout <= 0 {
		c.Timeout = 10 * time.Second
	}
	c.BaseURL = strings.TrimSuffix(c.BaseURL, "/")
	return c
}

// Client is a collab.DeviceClient backed by RouterOS's /rest API.
type Client struct {
	cfg Config
	hc  *http.Client
}

// New constructs a Client. It performs no network I/O until a method
// is called.
func New(cfg Config) *Client {
	cfg = cfg.withDefaults()
	return &Client{
		cfg: cfg,
		hc:  &http.Client{Timeout: cfg.Timeout},
	}
}

// IsConnected probes /rest/system/resource; any successful response,
// including a non-2xx one, counts as "reachable" (§5's device-timeout
// semantics are enforced by ctx, not by this check).
func (c *Client) IsConnected(ctx context.Context) bool {
	req, err := c.newRequest(ctx, http.MethodGet, "/system/resource", nil)
	if err != nil {
		return false
	}
	resp, err := c.hc.Do(req)
	if err != nil {
		return false
	}
	_ = resp.Body.Close()
	return true
}

// Print issues a GET against path (RouterOS's "print" semantics: list
// all items under a menu) and decodes the JSON array into rows of
// string-keyed fields, RouterOS's own wire representation.
func (c *Client) Print(ctx context.Context, path string) ([]map[string]string, error) {
	req, err := c.newRequest(ctx, http.MethodGet, restPath(path), nil)
	if err != nil {
		return nil, err
	}
	resp, err := c.hc.Do(req)
	if err != nil {
		return nil, apperr.Wrap(apperr.Dependency, "routerosclient.Print", "request to "+path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return nil, apperr.New(apperr.Dependency, "routerosclient.Print", fmt.Sprintf("%s returned %d", path, resp.StatusCode))
	}

	var rows []map[string]string
	if err := json.NewDecoder(resp.Body).Decode(&rows); err != nil {
		return nil, apperr.Wrap(apperr.Dependency, "routerosclient.Print", "decoding response from "+path, err)
	}
	return rows, nil
}

// ExecuteRaw issues a POST to path with params as the JSON request
// body, RouterOS's convention for commands with side effects (e.g.
// /interface/disable, /system/script/run).
func (c *Client) ExecuteRaw(ctx context.Context, path string, params map[string]string) (any, error) {
	var body io.Reader
	if len(params) > 0 {
		buf, err := json.Marshal(params)
		if err != nil {
			return nil, apperr.Wrap(apperr.Validation, "routerosclient.ExecuteRaw", "encoding params", err)
		}
		body = bytes.NewReader(buf)
	}

	req, err := c.newRequest(ctx, http.MethodPost, restPath(path), body)
	if err != nil {
		return nil, err
	}
	resp, err := c.hc.Do(req)
	if err != nil {
		return nil, apperr.Wrap(apperr.Dependency, "routerosclient.ExecuteRaw", "request to "+path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return nil, apperr.New(apperr.Dependency, "routerosclient.ExecuteRaw", fmt.Sprintf("%s returned %d", path, resp.StatusCode))
	}

	var out any
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil && err != io.EOF {
		return nil, apperr.Wrap(apperr.Dependency, "routerosclient.ExecuteRaw", "decoding response from "+path, err)
	}
	return out, nil
}

func (c *Client) newRequest(ctx context.Context, method, path string, body io.Reader) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, method, c.cfg.BaseURL+path, body)
	if err != nil {
		return nil, apperr.Wrap(apperr.IO, "routerosclient.newRequest", "building request for "+path, err)
	}
	req.SetBasicAuth(c.cfg.Username, c.cfg.Password)
	req.Header.Set("Content-Type", "application/json")
	return req, nil
}

// restPath maps a RouterOS menu path (e.g. "/system/resource") to its
// REST endpoint (e.g. "/rest/system/resource").
func restPath(menuPath string) string {
	return "/rest" + menuPath
}

// Package webhookdispatch implements collab.NotificationDispatcher by
// POSTing a JSON payload to per-channel webhook URLs, with the
// SSRF-hardening and bounded-redirect behavior the teacher's
// internal/notifications package tests (WebhookMaxRedirects,
// allowlisted-CIDR private-IP checks) but whose source did not survive
// retrieval.
package webhookdispatch

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"time"

	"github.com/aiops/fleet-intel/internal/apperr"
	"github.com/aiops/fleet-intel/internal/collab"
)

// WebhookTimeout bounds one channel's HTTP round trip.
const WebhookTimeout = 10 * time.Second

// WebhookMaxRedirects is the most redirects a single send follows
// before giving up, matching the teacher's documented test behavior.
const WebhookMaxRedirects = 3

// payload is the JSON body posted to each webhook URL.
type payload struct {
	Type     string         `json:"type"`
	Title    string         `json:"title"`
	Body     string         `json:"body"`
	Priority string         `json:"priority"`
	Data     map[string]any `json:"data,omitempty"`
}

// Dispatcher sends collab.Notification values to named webhook
// channels over HTTP.
type Dispatcher struct {
	channels map[string]string // channel name -> webhook URL
	client   *http.Client

	// allowPrivate permits sending to RFC1918/loopback addresses.
	// False in production; tests set it true to target httptest servers.
	allowPrivate bool
}

// Config configures a Dispatcher.
type Config struct {
	Channels     map[string]string
	AllowPrivate bool
}

// New constructs a Dispatcher with a redirect-bounded HTTP client.
func New(cfg Config) *Dispatcher {
	d := &Dispatcher{
		channels:     cfg.Channels,
		allowPrivate: cfg.AllowPrivate,
	}
	d.client = &http.Client{
		Timeout: WebhookTimeout,
		CheckRedirect: func(req *http.Request, via []*http.Request) error {
			if len(via) > WebhookMaxRedirects {
				return fmt.Errorf("webhookdispatch: stopped after %d redirects", WebhookMaxRedirects)
			}
			return d.checkURL(req.URL)
		},
	}
	return d
}

// Send posts n to every named channel, collecting and joining any
// per-channel errors (§4.8's notify_and_wait/escalate actions call
// this and treat failures as best-effort, per §5/§7).
func (d *Dispatcher) Send(ctx context.Context, channels []string, n collab.Notification) error {
	body, err := json.Marshal(payload{
		Type:     n.Type,
		Title:    n.Title,
		Body:     n.Body,
		Priority: n.Priority,
		Data:     n.Data,
	})
	if err != nil {
		return apperr.Wrap(apperr.Validation, "webhookdispatch.Send", "encoding payload", err)
	}

	var errs []error
	for _, ch := range channels {
		if err := d.sendOne(ctx, ch, body); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", ch, err))
		}
	}
	if len(errs) > 0 {
		return apperr.Wrap(apperr.Dependency, "webhookdispatch.Send", "one or more channels failed", errors.Join(errs...))
	}
	return nil
}

func (d *Dispatcher) sendOne(ctx context.Context, channel string, body []byte) error {
	target, ok := d.channels[channel]
	if !ok {
		return apperr.New(apperr.NotFound, "webhookdispatch.sendOne", "unknown channel: "+channel)
	}

	u, err := url.Parse(target)
	if err != nil {
		return apperr.Wrap(apperr.Validation, "webhookdispatch.sendOne", "parsing channel URL", err)
	}
	if err := d.checkURL(u); err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, target, bytes.NewReader(body))
	if err != nil {
		return apperr.Wrap(apperr.IO, "webhookdispatch.sendOne", "building request", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := d.client.Do(req)
	if err != nil {
		return apperr.Wrap(apperr.Dependency, "webhookdispatch.sendOne", "request failed", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return apperr.New(apperr.Dependency, "webhookdispatch.sendOne", fmt.Sprintf("webhook returned %d", resp.StatusCode))
	}
	return nil
}

// checkURL rejects targets resolving to loopback/private/link-local
// addresses unless allowPrivate is set, guarding against SSRF via a
// misconfigured or malicious channel URL.
func (d *Dispatcher) checkURL(u *url.URL) error {
	if d.allowPrivate {
		return nil
	}
	host := u.Hostname()
	ips, err := net.LookupIP(host)
	if err != nil {
		return apperr.Wrap(apperr.Validation, "webhookdispatch.checkURL", "resolving host "+host, err)
	}
	for _, ip := range ips {
		if isPrivateOrLoopback(ip) {
			return apperr.New(apperr.Validation, "webhookdispatch.checkURL", "refusing to send to private/loopback address: "+ip.String())
		}
	}
	return nil
}

func isPrivateOrLoopback(ip net.IP) bool {
	return ip.IsLoopback() || ip.IsPrivate() || ip.IsLinkLocalUnicast()
}

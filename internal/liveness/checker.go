// Package liveness probes long URLs before they are accepted for shortening.
package liveness

import (
	"context"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/gamassss/shortlink/internal/domain"
	"github.com/gamassss/shortlink/internal/logger"
)

const DefaultTimeout = 5 * time.Second

const userAgent = "shortlink-liveness/1.0"

type Checker struct {
	client  *http.Client
	timeout time.Duration
}

func NewChecker(timeout time.Duration) *Checker {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Checker{
		client:  &http.Client{Timeout: timeout},
		timeout: timeout,
	}
}

// IsDead probes rawURL with HEAD. Many servers block HEAD, so any HEAD failure
// is retried with GET and the GET answer decides. Connection failures,
// timeouts and statuses >= 400 count as dead.
// A URL that is not absolute http(s) yields a *domain.ValidationError.
func (c *Checker) IsDead(ctx context.Context, rawURL string) (bool, error) {
	target, err := ParseTarget(rawURL)
	if err != nil {
		return false, err
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	log := logger.FromContext(ctx)

	status, err := c.probe(ctx, http.MethodHead, target)
	if err != nil || status >= http.StatusBadRequest {
		if ctx.Err() != nil {
			log.Info("Liveness probe timed out", "url", target, "error", err)
			return true, nil
		}
		log.Debug("HEAD failed, retrying with GET", "url", target, "status", status, "error", err)
		status, err = c.probe(ctx, http.MethodGet, target)
	}

	if err != nil {
		log.Info("Liveness probe failed", "url", target, "error", err)
		return true, nil
	}

	return status >= http.StatusBadRequest, nil
}

func (c *Checker) probe(ctx context.Context, method, target string) (int, error) {
	req, err := http.NewRequestWithContext(ctx, method, target, nil)
	if err != nil {
		return 0, err
	}
	req.Header.Set("User-Agent", userAgent)

	resp, err := c.client.Do(req)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()

	// Drain a little so the connection can be reused, without reading whole pages.
	_, _ = io.CopyN(io.Discard, resp.Body, 4096)

	return resp.StatusCode, nil
}

// ParseTarget accepts only absolute http and https URLs with a host.
func ParseTarget(rawURL string) (string, error) {
	rawURL = strings.TrimSpace(rawURL)
	if rawURL == "" {
		return "", domain.NewValidationError("URL is required")
	}

	u, err := url.Parse(rawURL)
	if err != nil {
		return "", domain.NewValidationError("URL is malformed")
	}

	scheme := strings.ToLower(u.Scheme)
	if scheme != "http" && scheme != "https" {
		return "", domain.NewValidationError("URL must use http or https")
	}
	if u.Hostname() == "" {
		return "", domain.NewValidationError("URL must include a host")
	}

	return u.String(), nil
}

// Nop treats every well-formed URL as alive. Used when probing is disabled.
type Nop struct{}

func (Nop) IsDead(_ context.Context, rawURL string) (bool, error) {
	_, err := ParseTarget(rawURL)
	return false, err
}

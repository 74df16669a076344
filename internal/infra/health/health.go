// Where: internal/infra/health/health.go
// What: Post-deploy HTTP health check.
// Why: A run only counts as deployed once the public endpoint answers.
package health

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"
)

// ErrUnhealthy is returned for a non-2xx response or a transport failure.
var ErrUnhealthy = errors.New("health check failed")

// Checker waits once and then issues a single GET. There are no retries.
type Checker struct {
	Client *http.Client
	Wait   time.Duration
	Sleep  func(ctx context.Context, d time.Duration) error
	Logger *zap.Logger
}

// NewChecker returns a Checker with a client bounded by timeout.
func NewChecker(wait, timeout time.Duration, logger *zap.Logger) *Checker {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Checker{
		Client: &http.Client{Timeout: timeout},
		Wait:   wait,
		Sleep:  sleepContext,
		Logger: logger,
	}
}

// Check waits c.Wait and then probes rawURL.
func (c *Checker) Check(ctx context.Context, rawURL string) error {
	if c.Wait > 0 {
		c.Logger.Info("waiting before health check", zap.Duration("wait", c.Wait))
		sleep := c.Sleep
		if sleep == nil {
			sleep = sleepContext
		}
		if err := sleep(ctx, c.Wait); err != nil {
			return err
		}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return fmt.Errorf("create health request: %w", err)
	}
	client := c.Client
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %s: %v", ErrUnhealthy, rawURL, err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))

	c.Logger.Debug("health response", zap.String("url", rawURL), zap.Int("status", resp.StatusCode))
	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		return fmt.Errorf("%w: %s returned %d", ErrUnhealthy, rawURL, resp.StatusCode)
	}
	return nil
}

// URL joins scheme, domain, and path into the health endpoint.
func URL(scheme, domain, path string) (string, error) {
	domain = strings.TrimSpace(domain)
	if domain == "" {
		return "", errors.New("health check domain is empty")
	}
	if scheme == "" {
		scheme = "https"
	}
	if path == "" {
		path = "/"
	} else if !strings.HasPrefix(path, "/") {
		path = "/" + path
	}
	u := url.URL{Scheme: scheme, Host: strings.TrimSuffix(domain, "/"), Path: path}
	return u.String(), nil
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

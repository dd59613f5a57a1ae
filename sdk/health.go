package sdk

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/sethvargo/go-retry"

	"github.com/Oudwins/taskforge/internals/timeouts"
)

const (
	DefaultPingTimeout = timeouts.Probe
	startInitialDelay  = 250 * time.Millisecond
	startAttempts      = 6
)

var errNotRunning = errors.New("daemon not running")

type InfoLogger interface {
	Info(msg string, args ...any)
}

func IsRunning(baseURL string) bool {
	return IsRunningWithTimeout(baseURL, DefaultPingTimeout)
}

func IsRunningWithTimeout(baseURL string, timeout time.Duration) bool {
	if baseURL == "" {
		return false
	}
	if timeout <= 0 {
		timeout = DefaultPingTimeout
	}
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	client := NewClient(
		WithBaseURL(baseURL),
		WithHTTPClient(&http.Client{Timeout: timeout}),
	)
	_, err := client.Version(ctx)
	return err == nil
}

// WaitForStart polls baseURL with exponential backoff until the daemon
// answers or the attempts run out.
func WaitForStart(ctx context.Context, baseURL string, logger InfoLogger) bool {
	attempt := 0
	backoff := retry.WithMaxRetries(startAttempts, retry.NewExponential(startInitialDelay))
	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		if logger != nil {
			logger.Info("Waiting for daemon to start", "attempt", attempt)
		}
		attempt++
		if IsRunning(baseURL) {
			return nil
		}
		return retry.RetryableError(errNotRunning)
	})
	return err == nil
}

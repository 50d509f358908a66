package llm

import (
	"context"
	"errors"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/openai/openai-go/v3"

	"storyreel/internal/retry"
)

// complete sends params, retrying timeouts, throttling, server errors and
// empty replies with exponential backoff. A Retry-After header overrides the
// next wait, capped at the maximum delay.
func (c *Client) complete(ctx context.Context, params openai.ChatCompletionNewParams, op string) (string, error) {
	b := &retryAfterBackOff{BackOff: c.newBackOff(), limit: c.maxDelay()}
	var content string
	err := retry.Do(ctx, retry.Capped(b, c.retryMaxAttempts), c.wait, func() error {
		var err error
		content, err = c.send(ctx, params, op)
		if err == nil {
			return nil
		}
		if !retryable(err) {
			return retry.Permanent(err)
		}
		var statusErr *httpStatusError
		if errors.As(err, &statusErr) {
			b.override = statusErr.RetryAfter
		}
		return err
	})
	if err != nil {
		return "", classify(op, err)
	}
	return content, nil
}

func (c *Client) newBackOff() backoff.BackOff {
	return retry.Exponential(max(c.retryBaseDelay, 0), c.maxDelay(), 2)
}

func (c *Client) maxDelay() time.Duration {
	if c.retryMaxDelay > 0 {
		return c.retryMaxDelay
	}
	return defaultRetryMaxDelay
}

func (c *Client) wait(ctx context.Context, delay time.Duration) error {
	if c.sleeper != nil {
		if delay > 0 {
			c.sleeper(delay)
		}
		return ctx.Err()
	}
	return retry.Sleep(ctx, delay)
}

func retryable(err error) bool {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	var empty *emptyContentError
	if errors.As(err, &empty) {
		return true
	}
	var statusErr *httpStatusError
	if errors.As(err, &statusErr) {
		code := statusErr.StatusCode
		return code == http.StatusRequestTimeout || code == http.StatusTooManyRequests || code >= http.StatusInternalServerError
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}

// retryAfterBackOff replaces the next exponential wait with a server-provided
// Retry-After value.
type retryAfterBackOff struct {
	backoff.BackOff
	override time.Duration
	limit    time.Duration
}

func (b *retryAfterBackOff) NextBackOff() time.Duration {
	next := b.BackOff.NextBackOff()
	if next == backoff.Stop {
		return next
	}
	if b.override > 0 {
		next = min(b.override, b.limit)
		b.override = 0
	}
	return next
}

func parseRetryAfter(value string) (time.Duration, bool) {
	value = strings.TrimSpace(value)
	if seconds, err := strconv.Atoi(value); err == nil && seconds >= 0 {
		return time.Duration(seconds) * time.Second, true
	}
	if when, err := http.ParseTime(value); err == nil && time.Until(when) > 0 {
		return time.Until(when), true
	}
	return 0, false
}

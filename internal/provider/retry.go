package provider

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/tandemcode/tandem/internal/logging"
)

const (
	// MaxRetries bounds connection attempts per call.
	MaxRetries = 3
	// RetryInitialInterval is the first backoff interval.
	RetryInitialInterval = time.Second
	// RetryMaxInterval caps the backoff interval.
	RetryMaxInterval = 30 * time.Second
	// RetryMaxElapsedTime bounds the total time spent retrying.
	RetryMaxElapsedTime = 2 * time.Minute
)

// retryInitialInterval is a variable so tests can shrink the wait.
var retryInitialInterval = RetryInitialInterval

// newRetryBackoff builds a jittered exponential backoff bound to ctx.
func newRetryBackoff(ctx context.Context) backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = retryInitialInterval
	b.MaxInterval = RetryMaxInterval
	b.MaxElapsedTime = RetryMaxElapsedTime
	b.RandomizationFactor = 0.5
	b.Multiplier = 2.0
	b.Reset()
	return backoff.WithContext(backoff.WithMaxRetries(b, MaxRetries), ctx)
}

// Retrying wraps a Client and retries call setup with exponential backoff.
// Only establishing the stream is retried; once chunks are flowing, a stall
// is handled by the consumer ending the stream early, never by a retry.
type Retrying struct {
	Inner Client
}

// Stream opens a stream, retrying transient connection failures.
func (r Retrying) Stream(ctx context.Context, req Request) (Stream, error) {
	log := logging.For("provider")

	var stream Stream
	op := func() error {
		var err error
		stream, err = r.Inner.Stream(ctx, req)
		if err != nil {
			log.Warn().Err(err).Str("model", req.Model).Msg("stream connect failed, backing off")
		}
		return err
	}
	if err := backoff.Retry(op, newRetryBackoff(ctx)); err != nil {
		return nil, err
	}
	return stream, nil
}

// Complete runs a non-streaming completion, retrying transient failures.
func (r Retrying) Complete(ctx context.Context, req Request) (string, error) {
	var out string
	op := func() error {
		var err error
		out, err = r.Inner.Complete(ctx, req)
		return err
	}
	if err := backoff.Retry(op, newRetryBackoff(ctx)); err != nil {
		return "", err
	}
	return out, nil
}

package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"time"

	"github.com/siherrmann/retriever/model"
	"golang.org/x/time/rate"
)

// LimitOptions configures a LimitedEmbedder.
type LimitOptions struct {
	// RequestsPerSecond is the sustained request rate.
	RequestsPerSecond float64
	// Burst is the maximum burst size.
	Burst int
	// Timeout bounds every single provider call, retries get a fresh timeout.
	Timeout time.Duration
	// MaxRetries is the number of retries after a failed call.
	MaxRetries int
}

// LimitedEmbedder throttles an Embedder with a token bucket, bounds each call
// with a timeout and retries failed calls with exponential backoff.
type LimitedEmbedder struct {
	Embedder
	limiter *rate.Limiter
	opts    LimitOptions
	log     *slog.Logger
}

// NewLimitedEmbedder wraps embedder. A nil logger discards retry logs.
func NewLimitedEmbedder(embedder Embedder, opts LimitOptions, logger *slog.Logger) *LimitedEmbedder {
	if opts.RequestsPerSecond <= 0 {
		opts.RequestsPerSecond = 10
	}
	if opts.Burst <= 0 {
		opts.Burst = 1
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 30 * time.Second
	}
	if opts.MaxRetries < 0 {
		opts.MaxRetries = 0
	}
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	return &LimitedEmbedder{
		Embedder: embedder,
		limiter:  rate.NewLimiter(rate.Limit(opts.RequestsPerSecond), opts.Burst),
		opts:     opts,
		log:      logger,
	}
}

// EmbedDocument embeds a chunk for storage.
func (e *LimitedEmbedder) EmbedDocument(ctx context.Context, text string) ([]float32, error) {
	return e.do(ctx, text, e.Embedder.EmbedDocument)
}

// EmbedQuery embeds a search query.
func (e *LimitedEmbedder) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	return e.do(ctx, text, e.Embedder.EmbedQuery)
}

func (e *LimitedEmbedder) do(ctx context.Context, text string, embed func(context.Context, string) ([]float32, error)) ([]float32, error) {
	var lastErr error

	for attempt := 0; attempt <= e.opts.MaxRetries; attempt++ {
		if attempt > 0 {
			base := time.Duration(attempt*attempt) * 200 * time.Millisecond
			backoff := base + time.Duration(rand.Int64N(int64(base/2+1))) // #nosec G404 -- jitter only
			e.log.Warn("Retrying embedding", slog.Int("attempt", attempt+1), slog.Duration("backoff", backoff), slog.String("error", lastErr.Error()))
			select {
			case <-ctx.Done():
				return nil, fmt.Errorf("%w: %w", model.ErrProvider, ctx.Err())
			case <-time.After(backoff):
			}
		}

		if err := e.limiter.Wait(ctx); err != nil {
			return nil, fmt.Errorf("%w: rate limit wait: %w", model.ErrProvider, err)
		}

		callCtx, cancel := context.WithTimeout(ctx, e.opts.Timeout)
		embedding, err := embed(callCtx, text)
		cancel()
		if err == nil {
			return embedding, nil
		}

		lastErr = err
		if !retryable(ctx, err) {
			break
		}
	}

	if !errors.Is(lastErr, model.ErrProvider) {
		lastErr = fmt.Errorf("%w: %w", model.ErrProvider, lastErr)
	}
	return nil, lastErr
}

// retryable reports whether a failed call may succeed when repeated.
func retryable(ctx context.Context, err error) bool {
	if ctx.Err() != nil {
		return false
	}
	if errors.Is(err, model.ErrInvalidInput) || errors.Is(err, context.Canceled) {
		return false
	}
	return true
}

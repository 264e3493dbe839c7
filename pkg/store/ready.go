package store

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog/log"
)

var (
	storeReadyRetries = promauto.NewCounter(prometheus.CounterOpts{
		Name: "fragcache_store_ready_retries_total",
		Help: "Total number of failed store readiness probes that were retried",
	})

	storeReadyBackoffSeconds = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "fragcache_store_ready_backoff_seconds",
		Help:    "Backoff duration between store readiness probes",
		Buckets: []float64{0.1, 0.5, 1, 2, 5, 10},
	})
)

var (
	// ErrNotReady is returned when the store never answered a readiness probe.
	ErrNotReady = errors.New("store not ready")
)

// Pinger is a store that can be probed for reachability.
type Pinger interface {
	Ping(ctx context.Context) error
}

// RetryConfig holds the configuration for readiness retries.
type RetryConfig struct {
	// MaxAttempts is the maximum number of probes (including the first).
	MaxAttempts int

	// InitialBackoff is the initial backoff duration.
	InitialBackoff time.Duration

	// MaxBackoff is the maximum backoff duration.
	MaxBackoff time.Duration

	// BackoffMultiplier is the multiplier for exponential backoff.
	BackoffMultiplier float64
}

// DefaultRetryConfig returns the default readiness retry configuration.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxAttempts:       5,
		InitialBackoff:    500 * time.Millisecond,
		MaxBackoff:        5 * time.Second,
		BackoffMultiplier: 2.0,
	}
}

// WaitReady probes p until it answers, with exponential backoff and jitter.
// It is meant for startup, when a shared store may come up after the server.
func WaitReady(ctx context.Context, p Pinger, config RetryConfig) error {
	if config.MaxAttempts <= 0 {
		config.MaxAttempts = 1
	}

	var lastErr error
	backoff := config.InitialBackoff

	for attempt := 1; attempt <= config.MaxAttempts; attempt++ {
		err := p.Ping(ctx)
		if err == nil {
			if attempt > 1 {
				log.Info().
					Int("attempt", attempt).
					Msg("Store ready after retry")
			}
			return nil
		}
		lastErr = err

		if attempt >= config.MaxAttempts {
			break
		}

		storeReadyRetries.Inc()

		// ±20% jitter
		jitter := time.Duration(float64(backoff) * (0.8 + rand.Float64()*0.4))
		storeReadyBackoffSeconds.Observe(jitter.Seconds())

		log.Debug().
			Err(err).
			Int("attempt", attempt).
			Dur("backoff", jitter).
			Msg("Store not ready, retrying after backoff")

		select {
		case <-ctx.Done():
			return fmt.Errorf("%w: %w", ErrNotReady, ctx.Err())
		case <-time.After(jitter):
		}

		backoff = time.Duration(float64(backoff) * config.BackoffMultiplier)
		if backoff > config.MaxBackoff {
			backoff = config.MaxBackoff
		}
	}

	log.Warn().
		Int("max_attempts", config.MaxAttempts).
		Msg("Store readiness attempts exhausted")

	return fmt.Errorf("%w after %d attempts: %w", ErrNotReady, config.MaxAttempts, lastErr)
}

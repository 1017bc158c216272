package notifier

import (
	"context"
	"fmt"
	"log"
	"sync/atomic"
	"time"

	"golang.org/x/time/rate"
)

// DispatcherConfig configures retry and throttling behavior.
type DispatcherConfig struct {
	// SendTimeout bounds each individual delivery attempt.
	SendTimeout time.Duration
	// MaxRetries is the number of retries after the first attempt for
	// transient failures. Permanent failures are never retried.
	MaxRetries int
	// RatePerSecond throttles outbound sends across all recipients.
	// Zero disables throttling.
	RatePerSecond float64
	// Backoff controls the delay between retries.
	Backoff Backoff
}

// DefaultDispatcherConfig returns default dispatcher settings.
func DefaultDispatcherConfig() DispatcherConfig {
	return DispatcherConfig{
		SendTimeout:   30 * time.Second,
		MaxRetries:    3,
		RatePerSecond: 5,
		Backoff:       DefaultBackoff(),
	}
}

// DispatcherStats tracks dispatch counters.
type DispatcherStats struct {
	Sent    atomic.Int64
	Failed  atomic.Int64
	Retries atomic.Int64
}

// Dispatcher delivers rendered messages through a Transport with a
// per-attempt timeout, bounded retry with exponential backoff for
// transient failures, and outbound rate limiting.
type Dispatcher struct {
	transport Transport
	config    DispatcherConfig
	limiter   *rate.Limiter
	stats     *DispatcherStats
}

// NewDispatcher creates a dispatcher around a transport.
func NewDispatcher(transport Transport, config DispatcherConfig) *Dispatcher {
	if config.SendTimeout <= 0 {
		config.SendTimeout = 30 * time.Second
	}
	if config.MaxRetries < 0 {
		config.MaxRetries = 0
	}
	if config.Backoff == (Backoff{}) {
		config.Backoff = DefaultBackoff()
	}

	var limiter *rate.Limiter
	if config.RatePerSecond > 0 {
		limiter = rate.NewLimiter(rate.Limit(config.RatePerSecond), 1)
	}

	return &Dispatcher{
		transport: transport,
		config:    config,
		limiter:   limiter,
		stats:     &DispatcherStats{},
	}
}

// Stats returns the dispatch counters.
func (d *Dispatcher) Stats() *DispatcherStats {
	return d.stats
}

// Send delivers one message, retrying transient failures up to the
// configured limit. The returned error is the last attempt's failure.
// A failed send never affects other recipients; isolation is the
// caller's per-message handling of this single return value.
func (d *Dispatcher) Send(ctx context.Context, msg *Message) error {
	var lastErr error

	for attempt := 0; attempt <= d.config.MaxRetries; attempt++ {
		if attempt > 0 {
			d.stats.Retries.Add(1)
			delay := d.config.Backoff.Delay(attempt - 1)
			log.Printf("retrying send to %s in %s (attempt %d/%d)", msg.To, delay.Round(time.Millisecond), attempt, d.config.MaxRetries)
			select {
			case <-ctx.Done():
				d.stats.Failed.Add(1)
				return fmt.Errorf("send to %s canceled: %w", msg.To, ctx.Err())
			case <-time.After(delay):
			}
		}

		if d.limiter != nil {
			if err := d.limiter.Wait(ctx); err != nil {
				d.stats.Failed.Add(1)
				return fmt.Errorf("send to %s canceled: %w", msg.To, err)
			}
		}

		attemptCtx, cancel := context.WithTimeout(ctx, d.config.SendTimeout)
		err := d.transport.Send(attemptCtx, msg)
		cancel()

		if err == nil {
			d.stats.Sent.Add(1)
			return nil
		}
		lastErr = err

		if IsPermanent(err) {
			break
		}
		if ctx.Err() != nil {
			break
		}
	}

	d.stats.Failed.Add(1)
	return fmt.Errorf("send to %s: %w", msg.To, lastErr)
}

// Close closes the underlying transport.
func (d *Dispatcher) Close() error {
	return d.transport.Close()
}

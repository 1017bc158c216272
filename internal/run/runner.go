package run

import (
	"context"
	"fmt"
	"log"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/good-yellow-bee/staleguard/internal/aggregate"
	"github.com/good-yellow-bee/staleguard/internal/escalation"
	"github.com/good-yellow-bee/staleguard/internal/metrics"
	"github.com/good-yellow-bee/staleguard/internal/models"
	"github.com/good-yellow-bee/staleguard/internal/notifier"
	"github.com/good-yellow-bee/staleguard/internal/storage"
)

// Options configures a runner.
type Options struct {
	// DryRun evaluates and aggregates but neither dispatches nor
	// mutates any state.
	DryRun bool
	// DispatchConcurrency bounds parallel per-recipient dispatches.
	DispatchConcurrency int
}

// Result is the full outcome of one run: the summary plus the decision
// detail for verbose reporting.
type Result struct {
	Summary   *Summary
	Decisions []*escalation.Decision
	Bundles   []*aggregate.Bundle
}

// Runner wires the escalation engine, aggregator, renderer, and
// dispatcher into a single batch pass.
type Runner struct {
	store      storage.Storage
	engine     *escalation.Engine
	templates  *notifier.Templates
	dispatcher *notifier.Dispatcher
	opts       Options
}

// NewRunner creates a runner. dispatcher may be nil only for dry runs.
func NewRunner(store storage.Storage, engine *escalation.Engine, templates *notifier.Templates, dispatcher *notifier.Dispatcher, opts Options) *Runner {
	if opts.DispatchConcurrency <= 0 {
		opts.DispatchConcurrency = 4
	}
	return &Runner{
		store:      store,
		engine:     engine,
		templates:  templates,
		dispatcher: dispatcher,
		opts:       opts,
	}
}

// Run executes one full batch at the current time.
func (r *Runner) Run(ctx context.Context) (*Result, error) {
	return r.RunAt(ctx, time.Now())
}

// RunAt executes one full batch at a specific time (useful for testing).
// Phases: evaluate primary escalations, evaluate digests, aggregate per
// recipient, then render and dispatch each bundle. Per-recipient failures
// are isolated; only source or store unavailability aborts the run.
func (r *Runner) RunAt(ctx context.Context, now time.Time) (*Result, error) {
	start := time.Now()

	// Snapshot cumulative engine counters so scheduled mode reports
	// per-run deltas.
	stats := r.engine.Stats()
	evaluatedBefore := stats.Evaluated.Load()
	dupeBefore := stats.SkippedDupe.Load()
	noOwnerBefore := stats.SkippedNoOwner.Load()
	resetsBefore := stats.StateResets.Load()

	decisions, err := r.engine.EvaluateAt(ctx, now)
	if err != nil {
		metrics.RunsTotal.WithLabelValues("error").Inc()
		return nil, fmt.Errorf("evaluate overdue assets: %w", err)
	}

	digests, err := r.engine.EvaluateDigests(ctx, now)
	if err != nil {
		metrics.RunsTotal.WithLabelValues("error").Inc()
		return nil, fmt.Errorf("evaluate digests: %w", err)
	}

	for _, d := range decisions {
		metrics.DecisionsTotal.WithLabelValues(string(d.Action)).Inc()
	}

	bundles := aggregate.Primary(decisions)
	bundles = append(bundles, aggregate.Digests(digests)...)

	summary := &Summary{
		DryRun:    r.opts.DryRun,
		StartedAt: now,
	}

	if r.opts.DryRun {
		for _, b := range bundles {
			summary.Notified++
			if b.Class == models.ClassDigest {
				summary.DigestsSent++
			}
		}
	} else {
		if err := r.dispatchAll(ctx, bundles, now, summary); err != nil {
			metrics.RunsTotal.WithLabelValues("error").Inc()
			return nil, err
		}
	}

	summary.Evaluated = int(stats.Evaluated.Load() - evaluatedBefore)
	summary.SkippedDupe = int(stats.SkippedDupe.Load() - dupeBefore)
	summary.SkippedNoOwner = int(stats.SkippedNoOwner.Load() - noOwnerBefore)
	summary.StateResets = int(stats.StateResets.Load() - resetsBefore)
	summary.Duration = time.Since(start)

	metrics.RunsTotal.WithLabelValues("ok").Inc()
	metrics.RunDuration.Observe(summary.Duration.Seconds())

	return &Result{
		Summary:   summary,
		Decisions: decisions,
		Bundles:   bundles,
	}, nil
}

// dispatchAll renders and sends every bundle with bounded parallelism.
// Recipients are independent; one failure never blocks another. Errors
// escape only when the audit trail or state store itself fails.
func (r *Runner) dispatchAll(ctx context.Context, bundles []*aggregate.Bundle, now time.Time, summary *Summary) error {
	retriesBefore := r.dispatcher.Stats().Retries.Load()

	var mu sync.Mutex
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.opts.DispatchConcurrency)

	for _, b := range bundles {
		g.Go(func() error {
			sent, err := r.dispatchBundle(gctx, b, now)
			if err != nil {
				return err
			}
			mu.Lock()
			if sent {
				summary.Notified++
				if b.Class == models.ClassDigest {
					summary.DigestsSent++
				}
			} else {
				summary.Failed++
			}
			mu.Unlock()
			return nil
		})
	}
	err := g.Wait()

	metrics.SendRetriesTotal.Add(float64(r.dispatcher.Stats().Retries.Load() - retriesBefore))
	return err
}

// dispatchBundle renders and sends one bundle, commits delivery-gated
// state on success, and appends exactly one audit record either way.
// The returned error is reserved for storage failures; delivery and
// rendering failures are absorbed as (false, nil).
func (r *Runner) dispatchBundle(ctx context.Context, b *aggregate.Bundle, now time.Time) (bool, error) {
	msg, renderErr := r.templates.Render(b)
	if renderErr != nil {
		log.Printf("render for %s failed: %v", b.Recipient, renderErr)
		metrics.NotificationsTotal.WithLabelValues(string(b.Class), string(models.StatusFailed)).Inc()
		if err := r.appendAudit(ctx, b, now, models.StatusFailed, "render: "+renderErr.Error()); err != nil {
			return false, err
		}
		return false, nil
	}

	sendErr := r.dispatcher.Send(ctx, msg)
	if sendErr != nil {
		log.Printf("dispatch to %s failed: %v", b.Recipient, sendErr)
		metrics.NotificationsTotal.WithLabelValues(string(b.Class), string(models.StatusFailed)).Inc()
		// State is not advanced, so the next run retries naturally.
		if err := r.appendAudit(ctx, b, now, models.StatusFailed, sendErr.Error()); err != nil {
			return false, err
		}
		return false, nil
	}

	if err := r.commit(ctx, b, now); err != nil {
		return false, err
	}

	metrics.NotificationsTotal.WithLabelValues(string(b.Class), string(models.StatusSent)).Inc()
	if err := r.appendAudit(ctx, b, now, models.StatusSent, ""); err != nil {
		return false, err
	}
	return true, nil
}

// commit persists the delivery-gated state for a confirmed send: the
// pending reminder rows for primary bundles, the digest watermark for
// digest bundles.
func (r *Runner) commit(ctx context.Context, b *aggregate.Bundle, now time.Time) error {
	if b.Class == models.ClassDigest {
		if err := r.store.Preferences().AdvanceWatermark(ctx, b.OwnerID, b.Watermark); err != nil {
			return fmt.Errorf("commit digest watermark for %s: %w", b.OwnerID, err)
		}
		return nil
	}

	for _, pending := range b.Pending {
		if pending == nil {
			continue
		}
		if err := r.store.Reminders().Upsert(ctx, pending); err != nil {
			return fmt.Errorf("commit reminder state for %s: %w", pending.AssetID, err)
		}
	}
	return nil
}

func (r *Runner) appendAudit(ctx context.Context, b *aggregate.Bundle, now time.Time, status models.DispatchStatus, errDetail string) error {
	rec := &models.AuditRecord{
		ID:          uuid.New().String(),
		AssetID:     b.SingleAssetID(),
		AssetLabel:  strings.Join(b.Labels(), ", "),
		Recipient:   b.Recipient,
		Class:       b.Class,
		Status:      status,
		ErrorDetail: errDetail,
		SentAt:      now,
		CreatedAt:   time.Now(),
	}
	if err := r.store.Audit().Append(ctx, rec); err != nil {
		return fmt.Errorf("append audit record for %s: %w", b.Recipient, err)
	}
	return nil
}

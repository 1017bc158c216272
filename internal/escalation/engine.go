package escalation

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/good-yellow-bee/staleguard/internal/models"
	"github.com/good-yellow-bee/staleguard/internal/storage"
)

// OverdueSource is the outdated-item source boundary: a paged, read-only
// view of assets currently exceeding the remediation age threshold.
type OverdueSource interface {
	ListOverdue(ctx context.Context, cutoff time.Time, limit, offset int) ([]*models.OverdueAsset, error)
	ListNewFindings(ctx context.Context, ownerID string, since time.Time) ([]*models.Finding, error)
}

// ReminderStore is the subset of reminder-state operations the engine
// needs during evaluation. Upsert is deliberately absent: state commits
// happen after dispatch, outside the engine.
type ReminderStore interface {
	Get(ctx context.Context, assetID string) (*models.ReminderState, error)
	Touch(ctx context.Context, assetID string, at time.Time) error
	ListAssetIDs(ctx context.Context) ([]string, error)
	Delete(ctx context.Context, assetID string) error
}

// AddressResolver maps an owner ID to a contact address.
type AddressResolver interface {
	ResolveAddress(ctx context.Context, ownerID string) (string, error)
}

// PreferenceStore lists owners opted in to the new-finding digest.
type PreferenceStore interface {
	ListDigestEnabled(ctx context.Context) ([]*models.OwnerPreference, error)
}

// Options configures the escalation engine.
type Options struct {
	// OverdueAfter is the remediation age threshold for an asset to
	// count as overdue.
	OverdueAfter time.Duration
	// EscalateAfter is the time at level 1 before escalating to level 2.
	EscalateAfter time.Duration
	// ChunkSize is the source page size.
	ChunkSize int
	// Concurrency bounds parallel item evaluation within a chunk.
	Concurrency int
	// Location is the operating time zone for calendar-day dedup.
	Location *time.Location
	// DryRun disables every state mutation (check timestamps and the
	// reset pass) so evaluation can be previewed safely.
	DryRun bool
}

// DefaultOptions returns default engine options.
func DefaultOptions() Options {
	return Options{
		OverdueAfter:  30 * 24 * time.Hour,
		EscalateAfter: 7 * 24 * time.Hour,
		ChunkSize:     1000,
		Concurrency:   8,
		Location:      time.UTC,
	}
}

// Stats tracks engine counters using atomics for lock-free access.
type Stats struct {
	Evaluated      atomic.Int64
	NotifyLevel1   atomic.Int64
	NotifyLevel2   atomic.Int64
	SkippedDupe    atomic.Int64
	SkippedNoOwner atomic.Int64
	StateResets    atomic.Int64
	DigestOwners   atomic.Int64
	DigestEmpty    atomic.Int64
}

// Engine evaluates the overdue-asset set against persisted reminder state.
type Engine struct {
	source   OverdueSource
	state    ReminderStore
	resolver AddressResolver
	prefs    PreferenceStore
	opts     Options
	stats    *Stats
}

// NewEngine creates an escalation engine.
func NewEngine(source OverdueSource, state ReminderStore, resolver AddressResolver, prefs PreferenceStore, opts Options) *Engine {
	if opts.ChunkSize <= 0 {
		opts.ChunkSize = 1000
	}
	if opts.Concurrency <= 0 {
		opts.Concurrency = 8
	}
	if opts.Location == nil {
		opts.Location = time.UTC
	}
	return &Engine{
		source:   source,
		state:    state,
		resolver: resolver,
		prefs:    prefs,
		opts:     opts,
		stats:    &Stats{},
	}
}

// Stats returns the engine counters.
func (e *Engine) Stats() *Stats {
	return e.stats
}

// Evaluate runs the full decision pass at the current time.
func (e *Engine) Evaluate(ctx context.Context) ([]*Decision, error) {
	return e.EvaluateAt(ctx, time.Now())
}

// EvaluateAt runs the full decision pass at a specific time (useful for
// testing). The overdue set is consumed in bounded chunks; decisions for
// the entire run accumulate so aggregation sees the complete set. Ends
// with the reset pass deleting state rows for assets no longer overdue.
func (e *Engine) EvaluateAt(ctx context.Context, now time.Time) ([]*Decision, error) {
	cutoff := now.Add(-e.opts.OverdueAfter)
	seen := make(map[string]bool)

	var mu sync.Mutex
	var decisions []*Decision

	for offset := 0; ; offset += e.opts.ChunkSize {
		chunk, err := e.source.ListOverdue(ctx, cutoff, e.opts.ChunkSize, offset)
		if err != nil {
			return nil, fmt.Errorf("list overdue assets: %w", err)
		}
		if len(chunk) == 0 {
			break
		}

		for _, asset := range chunk {
			seen[asset.AssetID] = true
		}

		// Items are independent given a consistent state snapshot;
		// SQLite serializes the underlying reads.
		g, gctx := errgroup.WithContext(ctx)
		g.SetLimit(e.opts.Concurrency)
		for _, asset := range chunk {
			g.Go(func() error {
				d, err := e.decide(gctx, asset, now)
				if err != nil {
					return err
				}
				mu.Lock()
				decisions = append(decisions, d)
				mu.Unlock()
				return nil
			})
		}
		if err := g.Wait(); err != nil {
			return nil, err
		}

		if len(chunk) < e.opts.ChunkSize {
			break
		}
	}

	if !e.opts.DryRun {
		if err := e.resetAbsent(ctx, seen); err != nil {
			return nil, err
		}
	}

	// Deterministic order for aggregation and verbose output.
	sort.Slice(decisions, func(i, j int) bool {
		return decisions[i].Asset.AssetID < decisions[j].Asset.AssetID
	})

	return decisions, nil
}

// decide evaluates a single overdue asset against its reminder state.
func (e *Engine) decide(ctx context.Context, asset *models.OverdueAsset, now time.Time) (*Decision, error) {
	e.stats.Evaluated.Add(1)

	state, err := e.state.Get(ctx, asset.AssetID)
	if err != nil {
		return nil, fmt.Errorf("reminder state for %s: %w", asset.AssetID, err)
	}

	d := &Decision{Asset: asset}

	switch {
	case state == nil:
		// First observation: level 1 regardless of asset age.
		d.Action = ActionNotifyLevel1
		d.Pending = &models.ReminderState{
			AssetID:       asset.AssetID,
			Level:         models.LevelFirst,
			OutdatedSince: now,
			LastSentAt:    now,
			LastCheckedAt: now,
		}

	case sameCalendarDay(state.LastSentAt, now, e.opts.Location):
		// At most one notification per asset per calendar day.
		d.Action = ActionSkipAlreadySent

	case state.Level == models.LevelFirst && now.Sub(state.OutdatedSince) >= e.opts.EscalateAfter:
		d.Action = ActionNotifyLevel2
		d.Pending = pendingUpdate(state, models.LevelEscalated, now)

	case state.Level == models.LevelFirst:
		// New calendar day, still inside the escalation window.
		d.Action = ActionNotifyLevel1
		d.Pending = pendingUpdate(state, models.LevelFirst, now)

	default:
		// Already escalated: steady-state repeat.
		d.Action = ActionNotifyLevel2
		d.Pending = pendingUpdate(state, models.LevelEscalated, now)
	}

	// Evaluation is recorded even when nothing is sent.
	if state != nil && !e.opts.DryRun {
		if err := e.state.Touch(ctx, asset.AssetID, now); err != nil {
			return nil, fmt.Errorf("touch reminder state for %s: %w", asset.AssetID, err)
		}
	}

	if !d.Action.Notifies() {
		e.count(d.Action)
		return d, nil
	}

	addr, err := e.resolver.ResolveAddress(ctx, asset.OwnerID)
	switch {
	case errors.Is(err, storage.ErrNoAddress):
		log.Printf("warning: no address for owner %s (asset %s), skipping", asset.OwnerID, asset.AssetID)
		d.Action = ActionSkipNoOwner
		d.Pending = nil
	case err != nil:
		return nil, fmt.Errorf("resolve owner %s: %w", asset.OwnerID, err)
	default:
		d.Address = addr
	}

	e.count(d.Action)
	return d, nil
}

// pendingUpdate builds the state row to commit once the message is sent.
func pendingUpdate(state *models.ReminderState, level int, now time.Time) *models.ReminderState {
	return &models.ReminderState{
		AssetID:       state.AssetID,
		Level:         level,
		OutdatedSince: state.OutdatedSince,
		LastSentAt:    now,
		LastCheckedAt: now,
	}
}

func (e *Engine) count(action Action) {
	switch action {
	case ActionNotifyLevel1:
		e.stats.NotifyLevel1.Add(1)
	case ActionNotifyLevel2:
		e.stats.NotifyLevel2.Add(1)
	case ActionSkipAlreadySent:
		e.stats.SkippedDupe.Add(1)
	case ActionSkipNoOwner:
		e.stats.SkippedNoOwner.Add(1)
	}
}

// resetAbsent deletes state rows for assets absent from the current
// overdue set. A reappearing asset starts fresh at level 1. Deletion is
// not gated on dispatch: absence is an observation, not a delivery outcome.
func (e *Engine) resetAbsent(ctx context.Context, seen map[string]bool) error {
	ids, err := e.state.ListAssetIDs(ctx)
	if err != nil {
		return fmt.Errorf("list reminder state: %w", err)
	}
	for _, id := range ids {
		if seen[id] {
			continue
		}
		if err := e.state.Delete(ctx, id); err != nil {
			return fmt.Errorf("reset reminder state for %s: %w", id, err)
		}
		e.stats.StateResets.Add(1)
	}
	return nil
}

// EvaluateDigests builds one pending digest per opted-in owner covering
// findings detected since the owner's watermark (epoch when unset).
// Owners without the opt-in are never considered; this path is
// independent of the primary escalation pass.
func (e *Engine) EvaluateDigests(ctx context.Context, now time.Time) ([]*DigestDecision, error) {
	prefs, err := e.prefs.ListDigestEnabled(ctx)
	if err != nil {
		return nil, fmt.Errorf("list digest-enabled owners: %w", err)
	}

	var digests []*DigestDecision
	for _, pref := range prefs {
		since := time.Time{}
		if pref.LastDigestAt != nil {
			since = *pref.LastDigestAt
		}

		findings, err := e.source.ListNewFindings(ctx, pref.OwnerID, since)
		if err != nil {
			return nil, fmt.Errorf("new findings for owner %s: %w", pref.OwnerID, err)
		}
		if len(findings) == 0 {
			e.stats.DigestEmpty.Add(1)
			continue
		}

		addr, err := e.resolver.ResolveAddress(ctx, pref.OwnerID)
		if errors.Is(err, storage.ErrNoAddress) {
			log.Printf("warning: no address for digest owner %s, skipping", pref.OwnerID)
			e.stats.SkippedNoOwner.Add(1)
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("resolve digest owner %s: %w", pref.OwnerID, err)
		}

		e.stats.DigestOwners.Add(1)
		digests = append(digests, &DigestDecision{
			OwnerID:   pref.OwnerID,
			Address:   addr,
			Findings:  findings,
			Watermark: now,
		})
	}

	return digests, nil
}

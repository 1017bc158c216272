package escalation

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/good-yellow-bee/staleguard/internal/models"
	"github.com/good-yellow-bee/staleguard/internal/storage"
)

// mockSource serves a fixed overdue set and per-owner findings.
type mockSource struct {
	assets   []*models.OverdueAsset
	findings map[string][]*models.Finding
}

func (m *mockSource) ListOverdue(ctx context.Context, cutoff time.Time, limit, offset int) ([]*models.OverdueAsset, error) {
	if offset >= len(m.assets) {
		return nil, nil
	}
	end := offset + limit
	if end > len(m.assets) {
		end = len(m.assets)
	}
	return m.assets[offset:end], nil
}

func (m *mockSource) ListNewFindings(ctx context.Context, ownerID string, since time.Time) ([]*models.Finding, error) {
	var out []*models.Finding
	for _, f := range m.findings[ownerID] {
		if f.DetectedAt.After(since) {
			out = append(out, f)
		}
	}
	return out, nil
}

// mockReminderStore keeps state rows in a map and records mutations.
type mockReminderStore struct {
	mu      sync.Mutex
	rows    map[string]*models.ReminderState
	touched map[string]time.Time
	deleted []string
}

func newMockReminderStore() *mockReminderStore {
	return &mockReminderStore{
		rows:    make(map[string]*models.ReminderState),
		touched: make(map[string]time.Time),
	}
}

func (m *mockReminderStore) Get(ctx context.Context, assetID string) (*models.ReminderState, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.rows[assetID]
	if !ok {
		return nil, nil
	}
	cp := *s
	return &cp, nil
}

func (m *mockReminderStore) Touch(ctx context.Context, assetID string, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.touched[assetID] = at
	if s, ok := m.rows[assetID]; ok {
		s.LastCheckedAt = at
	}
	return nil
}

func (m *mockReminderStore) ListAssetIDs(ctx context.Context) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	ids := make([]string, 0, len(m.rows))
	for id := range m.rows {
		ids = append(ids, id)
	}
	return ids, nil
}

func (m *mockReminderStore) Delete(ctx context.Context, assetID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.rows, assetID)
	m.deleted = append(m.deleted, assetID)
	return nil
}

// mockResolver maps owner IDs to addresses.
type mockResolver struct {
	addrs map[string]string
}

func (m *mockResolver) ResolveAddress(ctx context.Context, ownerID string) (string, error) {
	addr, ok := m.addrs[ownerID]
	if !ok || addr == "" {
		return "", storage.ErrNoAddress
	}
	return addr, nil
}

// mockPrefStore lists digest-enabled owners.
type mockPrefStore struct {
	prefs []*models.OwnerPreference
}

func (m *mockPrefStore) ListDigestEnabled(ctx context.Context) ([]*models.OwnerPreference, error) {
	return m.prefs, nil
}

func overdueAsset(id, owner string, days int) *models.OverdueAsset {
	return &models.OverdueAsset{
		AssetID:      id,
		OwnerID:      owner,
		Label:        id,
		Severity:     models.SeverityHigh,
		OverdueDays:  days,
		FindingCount: 1,
	}
}

func newTestEngine(source *mockSource, state *mockReminderStore, resolver *mockResolver, opts Options) *Engine {
	if opts.OverdueAfter == 0 {
		opts.OverdueAfter = 30 * 24 * time.Hour
	}
	if opts.EscalateAfter == 0 {
		opts.EscalateAfter = 7 * 24 * time.Hour
	}
	return NewEngine(source, state, resolver, &mockPrefStore{}, opts)
}

func TestEngine_FirstObservation(t *testing.T) {
	now := time.Date(2026, 8, 31, 12, 0, 0, 0, time.UTC)

	// Three assets of very different ages, none with prior state: all get
	// the initial reminder, never a pre-escalated one.
	source := &mockSource{assets: []*models.OverdueAsset{
		overdueAsset("srv-1", "alice", 32),
		overdueAsset("srv-2", "alice", 38),
		overdueAsset("srv-3", "alice", 40),
	}}
	state := newMockReminderStore()
	resolver := &mockResolver{addrs: map[string]string{"alice": "alice@example.com"}}

	engine := newTestEngine(source, state, resolver, Options{})
	decisions, err := engine.EvaluateAt(context.Background(), now)
	if err != nil {
		t.Fatalf("evaluate: %v", err)
	}

	if len(decisions) != 3 {
		t.Fatalf("decisions = %d, want 3", len(decisions))
	}
	for _, d := range decisions {
		if d.Action != ActionNotifyLevel1 {
			t.Errorf("asset %s: action = %s, want %s", d.Asset.AssetID, d.Action, ActionNotifyLevel1)
		}
		if d.Address != "alice@example.com" {
			t.Errorf("asset %s: address = %q", d.Asset.AssetID, d.Address)
		}
		if d.Pending == nil {
			t.Fatalf("asset %s: pending state missing", d.Asset.AssetID)
		}
		if d.Pending.Level != models.LevelFirst {
			t.Errorf("asset %s: pending level = %d, want %d", d.Asset.AssetID, d.Pending.Level, models.LevelFirst)
		}
		if !d.Pending.OutdatedSince.Equal(now) {
			t.Errorf("asset %s: outdated since = %v, want %v", d.Asset.AssetID, d.Pending.OutdatedSince, now)
		}
	}

	// Nothing is persisted during evaluation.
	if len(state.rows) != 0 {
		t.Errorf("state rows = %d, want 0 before commit", len(state.rows))
	}
}

func TestEngine_SameDayDedup(t *testing.T) {
	now := time.Date(2026, 8, 31, 18, 0, 0, 0, time.UTC)

	source := &mockSource{assets: []*models.OverdueAsset{overdueAsset("srv-1", "alice", 32)}}
	state := newMockReminderStore()
	state.rows["srv-1"] = &models.ReminderState{
		AssetID:       "srv-1",
		Level:         models.LevelFirst,
		OutdatedSince: now.Add(-48 * time.Hour),
		LastSentAt:    now.Add(-6 * time.Hour), // same calendar day
		LastCheckedAt: now.Add(-6 * time.Hour),
	}
	resolver := &mockResolver{addrs: map[string]string{"alice": "alice@example.com"}}

	engine := newTestEngine(source, state, resolver, Options{})
	decisions, err := engine.EvaluateAt(context.Background(), now)
	if err != nil {
		t.Fatalf("evaluate: %v", err)
	}

	if decisions[0].Action != ActionSkipAlreadySent {
		t.Errorf("action = %s, want %s", decisions[0].Action, ActionSkipAlreadySent)
	}
	if decisions[0].Pending != nil {
		t.Error("skip decision should carry no pending state")
	}

	// The evaluation is still recorded.
	if _, ok := state.touched["srv-1"]; !ok {
		t.Error("last_checked_at should be touched on a skip")
	}
	if got := engine.Stats().SkippedDupe.Load(); got != 1 {
		t.Errorf("skipped dupe = %d, want 1", got)
	}
}

func TestEngine_MidnightBoundary(t *testing.T) {
	// Sent at 23:50, evaluated again at 00:10 the next day: a new
	// calendar day, so a reminder is due despite only 20 minutes passing.
	lastSent := time.Date(2026, 8, 30, 23, 50, 0, 0, time.UTC)
	now := time.Date(2026, 8, 31, 0, 10, 0, 0, time.UTC)

	source := &mockSource{assets: []*models.OverdueAsset{overdueAsset("srv-1", "alice", 32)}}
	state := newMockReminderStore()
	state.rows["srv-1"] = &models.ReminderState{
		AssetID:       "srv-1",
		Level:         models.LevelFirst,
		OutdatedSince: now.Add(-72 * time.Hour),
		LastSentAt:    lastSent,
		LastCheckedAt: lastSent,
	}
	resolver := &mockResolver{addrs: map[string]string{"alice": "alice@example.com"}}

	engine := newTestEngine(source, state, resolver, Options{})
	decisions, err := engine.EvaluateAt(context.Background(), now)
	if err != nil {
		t.Fatalf("evaluate: %v", err)
	}

	if decisions[0].Action != ActionNotifyLevel1 {
		t.Errorf("action = %s, want %s", decisions[0].Action, ActionNotifyLevel1)
	}
}

func TestEngine_EscalationBoundary(t *testing.T) {
	now := time.Date(2026, 8, 31, 12, 0, 0, 0, time.UTC)

	tests := []struct {
		name          string
		outdatedSince time.Time
		want          Action
		wantLevel     int
	}{
		{
			name:          "six days at level 1 stays level 1",
			outdatedSince: now.Add(-6 * 24 * time.Hour),
			want:          ActionNotifyLevel1,
			wantLevel:     models.LevelFirst,
		},
		{
			name:          "exactly seven days escalates",
			outdatedSince: now.Add(-7 * 24 * time.Hour),
			want:          ActionNotifyLevel2,
			wantLevel:     models.LevelEscalated,
		},
		{
			name:          "nine days escalates",
			outdatedSince: now.Add(-9 * 24 * time.Hour),
			want:          ActionNotifyLevel2,
			wantLevel:     models.LevelEscalated,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			source := &mockSource{assets: []*models.OverdueAsset{overdueAsset("srv-1", "alice", 40)}}
			state := newMockReminderStore()
			state.rows["srv-1"] = &models.ReminderState{
				AssetID:       "srv-1",
				Level:         models.LevelFirst,
				OutdatedSince: tt.outdatedSince,
				LastSentAt:    now.Add(-2 * 24 * time.Hour),
				LastCheckedAt: now.Add(-2 * 24 * time.Hour),
			}
			resolver := &mockResolver{addrs: map[string]string{"alice": "alice@example.com"}}

			engine := newTestEngine(source, state, resolver, Options{})
			decisions, err := engine.EvaluateAt(context.Background(), now)
			if err != nil {
				t.Fatalf("evaluate: %v", err)
			}

			if decisions[0].Action != tt.want {
				t.Errorf("action = %s, want %s", decisions[0].Action, tt.want)
			}
			if decisions[0].Pending.Level != tt.wantLevel {
				t.Errorf("pending level = %d, want %d", decisions[0].Pending.Level, tt.wantLevel)
			}
			// Escalation preserves the original overdue anchor.
			if !decisions[0].Pending.OutdatedSince.Equal(tt.outdatedSince) {
				t.Errorf("outdated since moved to %v", decisions[0].Pending.OutdatedSince)
			}
		})
	}
}

func TestEngine_EscalatedSteadyState(t *testing.T) {
	now := time.Date(2026, 8, 31, 12, 0, 0, 0, time.UTC)

	source := &mockSource{assets: []*models.OverdueAsset{overdueAsset("srv-1", "alice", 50)}}
	state := newMockReminderStore()
	state.rows["srv-1"] = &models.ReminderState{
		AssetID:       "srv-1",
		Level:         models.LevelEscalated,
		OutdatedSince: now.Add(-20 * 24 * time.Hour),
		LastSentAt:    now.Add(-24 * time.Hour),
		LastCheckedAt: now.Add(-24 * time.Hour),
	}
	resolver := &mockResolver{addrs: map[string]string{"alice": "alice@example.com"}}

	engine := newTestEngine(source, state, resolver, Options{})
	decisions, err := engine.EvaluateAt(context.Background(), now)
	if err != nil {
		t.Fatalf("evaluate: %v", err)
	}

	if decisions[0].Action != ActionNotifyLevel2 {
		t.Errorf("action = %s, want %s", decisions[0].Action, ActionNotifyLevel2)
	}
	if decisions[0].Pending.Level != models.LevelEscalated {
		t.Errorf("pending level = %d, want %d", decisions[0].Pending.Level, models.LevelEscalated)
	}
}

func TestEngine_NoOwnerAddress(t *testing.T) {
	now := time.Date(2026, 8, 31, 12, 0, 0, 0, time.UTC)

	source := &mockSource{assets: []*models.OverdueAsset{
		overdueAsset("srv-1", "ghost", 32),
		overdueAsset("srv-2", "alice", 32),
	}}
	state := newMockReminderStore()
	resolver := &mockResolver{addrs: map[string]string{"alice": "alice@example.com"}}

	engine := newTestEngine(source, state, resolver, Options{})
	decisions, err := engine.EvaluateAt(context.Background(), now)
	if err != nil {
		t.Fatalf("evaluate: %v", err)
	}

	byAsset := make(map[string]*Decision)
	for _, d := range decisions {
		byAsset[d.Asset.AssetID] = d
	}

	// Unresolvable owner is skipped without failing the run.
	if byAsset["srv-1"].Action != ActionSkipNoOwner {
		t.Errorf("srv-1 action = %s, want %s", byAsset["srv-1"].Action, ActionSkipNoOwner)
	}
	if byAsset["srv-1"].Pending != nil {
		t.Error("skip decision should carry no pending state")
	}
	if byAsset["srv-2"].Action != ActionNotifyLevel1 {
		t.Errorf("srv-2 action = %s, want %s", byAsset["srv-2"].Action, ActionNotifyLevel1)
	}
	if got := engine.Stats().SkippedNoOwner.Load(); got != 1 {
		t.Errorf("skipped no owner = %d, want 1", got)
	}
}

func TestEngine_ResetAbsent(t *testing.T) {
	now := time.Date(2026, 8, 31, 12, 0, 0, 0, time.UTC)

	// srv-2 has state but is no longer overdue; its state is cleared so a
	// later reappearance starts over at level 1.
	source := &mockSource{assets: []*models.OverdueAsset{overdueAsset("srv-1", "alice", 32)}}
	state := newMockReminderStore()
	state.rows["srv-1"] = &models.ReminderState{
		AssetID: "srv-1", Level: models.LevelFirst,
		OutdatedSince: now.Add(-48 * time.Hour),
		LastSentAt:    now.Add(-24 * time.Hour),
	}
	state.rows["srv-2"] = &models.ReminderState{
		AssetID: "srv-2", Level: models.LevelEscalated,
		OutdatedSince: now.Add(-20 * 24 * time.Hour),
		LastSentAt:    now.Add(-24 * time.Hour),
	}
	resolver := &mockResolver{addrs: map[string]string{"alice": "alice@example.com"}}

	engine := newTestEngine(source, state, resolver, Options{})
	if _, err := engine.EvaluateAt(context.Background(), now); err != nil {
		t.Fatalf("evaluate: %v", err)
	}

	if len(state.deleted) != 1 || state.deleted[0] != "srv-2" {
		t.Errorf("deleted = %v, want [srv-2]", state.deleted)
	}
	if _, ok := state.rows["srv-1"]; !ok {
		t.Error("srv-1 state should survive the reset pass")
	}
	if got := engine.Stats().StateResets.Load(); got != 1 {
		t.Errorf("state resets = %d, want 1", got)
	}
}

func TestEngine_DryRunMutatesNothing(t *testing.T) {
	now := time.Date(2026, 8, 31, 12, 0, 0, 0, time.UTC)

	source := &mockSource{assets: []*models.OverdueAsset{overdueAsset("srv-1", "alice", 32)}}
	state := newMockReminderStore()
	state.rows["srv-1"] = &models.ReminderState{
		AssetID: "srv-1", Level: models.LevelFirst,
		OutdatedSince: now.Add(-48 * time.Hour),
		LastSentAt:    now.Add(-24 * time.Hour),
	}
	state.rows["srv-gone"] = &models.ReminderState{
		AssetID: "srv-gone", Level: models.LevelFirst,
		OutdatedSince: now.Add(-48 * time.Hour),
		LastSentAt:    now.Add(-24 * time.Hour),
	}
	resolver := &mockResolver{addrs: map[string]string{"alice": "alice@example.com"}}

	engine := newTestEngine(source, state, resolver, Options{DryRun: true})
	decisions, err := engine.EvaluateAt(context.Background(), now)
	if err != nil {
		t.Fatalf("evaluate: %v", err)
	}

	if decisions[0].Action != ActionNotifyLevel1 {
		t.Errorf("action = %s, want %s", decisions[0].Action, ActionNotifyLevel1)
	}
	if len(state.touched) != 0 {
		t.Errorf("touched %d rows during dry run", len(state.touched))
	}
	if len(state.deleted) != 0 {
		t.Errorf("deleted %d rows during dry run", len(state.deleted))
	}
}

func TestEngine_ChunkedPaging(t *testing.T) {
	now := time.Date(2026, 8, 31, 12, 0, 0, 0, time.UTC)

	var assets []*models.OverdueAsset
	for i := 0; i < 25; i++ {
		assets = append(assets, overdueAsset(fmt.Sprintf("srv-%03d", i), "alice", 32))
	}
	source := &mockSource{assets: assets}
	state := newMockReminderStore()
	resolver := &mockResolver{addrs: map[string]string{"alice": "alice@example.com"}}

	engine := newTestEngine(source, state, resolver, Options{ChunkSize: 10, Concurrency: 4})
	decisions, err := engine.EvaluateAt(context.Background(), now)
	if err != nil {
		t.Fatalf("evaluate: %v", err)
	}

	if len(decisions) != 25 {
		t.Fatalf("decisions = %d, want 25", len(decisions))
	}
	if got := engine.Stats().Evaluated.Load(); got != 25 {
		t.Errorf("evaluated = %d, want 25", got)
	}
	// Deterministic output order regardless of chunking.
	for i := 1; i < len(decisions); i++ {
		if decisions[i-1].Asset.AssetID > decisions[i].Asset.AssetID {
			t.Fatalf("decisions not sorted at %d: %s > %s", i, decisions[i-1].Asset.AssetID, decisions[i].Asset.AssetID)
		}
	}
}

func TestEngine_EvaluateDigests(t *testing.T) {
	now := time.Date(2026, 8, 31, 12, 0, 0, 0, time.UTC)
	watermark := now.Add(-7 * 24 * time.Hour)

	source := &mockSource{
		findings: map[string][]*models.Finding{
			"alice": {
				{ID: "f-old", OwnerID: "alice", Title: "old", DetectedAt: watermark.Add(-24 * time.Hour)},
				{ID: "f-new", OwnerID: "alice", Title: "new", DetectedAt: watermark.Add(24 * time.Hour)},
			},
			"bob": {},
		},
	}
	prefs := &mockPrefStore{prefs: []*models.OwnerPreference{
		{OwnerID: "alice", DigestEnabled: true, LastDigestAt: &watermark},
		{OwnerID: "bob", DigestEnabled: true},
	}}
	resolver := &mockResolver{addrs: map[string]string{
		"alice": "alice@example.com",
		"bob":   "bob@example.com",
	}}

	engine := NewEngine(source, newMockReminderStore(), resolver, prefs, DefaultOptions())
	digests, err := engine.EvaluateDigests(context.Background(), now)
	if err != nil {
		t.Fatalf("evaluate digests: %v", err)
	}

	// bob has nothing new: no digest, no watermark movement.
	if len(digests) != 1 {
		t.Fatalf("digests = %d, want 1", len(digests))
	}
	d := digests[0]
	if d.OwnerID != "alice" {
		t.Errorf("owner = %s, want alice", d.OwnerID)
	}
	if len(d.Findings) != 1 || d.Findings[0].ID != "f-new" {
		t.Errorf("findings = %v, want only f-new", d.Findings)
	}
	if !d.Watermark.Equal(now) {
		t.Errorf("watermark = %v, want %v", d.Watermark, now)
	}
	if got := engine.Stats().DigestEmpty.Load(); got != 1 {
		t.Errorf("empty digests = %d, want 1", got)
	}
}

func TestSameCalendarDay(t *testing.T) {
	ny, err := time.LoadLocation("America/New_York")
	if err != nil {
		t.Fatalf("load location: %v", err)
	}

	tests := []struct {
		name string
		a, b time.Time
		loc  *time.Location
		want bool
	}{
		{
			name: "same utc day",
			a:    time.Date(2026, 8, 31, 0, 1, 0, 0, time.UTC),
			b:    time.Date(2026, 8, 31, 23, 59, 0, 0, time.UTC),
			loc:  time.UTC,
			want: true,
		},
		{
			name: "adjacent utc days",
			a:    time.Date(2026, 8, 30, 23, 59, 0, 0, time.UTC),
			b:    time.Date(2026, 8, 31, 0, 1, 0, 0, time.UTC),
			loc:  time.UTC,
			want: false,
		},
		{
			name: "utc midnight crossing is same local day",
			a:    time.Date(2026, 8, 30, 23, 0, 0, 0, time.UTC),
			b:    time.Date(2026, 8, 31, 2, 0, 0, 0, time.UTC),
			loc:  ny,
			want: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := sameCalendarDay(tt.a, tt.b, tt.loc); got != tt.want {
				t.Errorf("sameCalendarDay = %v, want %v", got, tt.want)
			}
		})
	}
}

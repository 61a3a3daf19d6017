package graph

import (
	"context"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/outpost-fi/sovereign/internal/ledger"
)

// memSource is an in-memory LedgerSource for projector tests.
type memSource struct {
	mu       sync.Mutex
	accounts []ledger.Account
	entries  []ledger.JournalEntry
}

func (m *memSource) addEntry(entry ledger.JournalEntry) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries = append(m.entries, entry)
}

func (m *memSource) ListEntries(_ context.Context, afterPosition uint64, limit int) ([]ledger.JournalEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []ledger.JournalEntry
	for _, entry := range m.entries {
		if entry.Position > afterPosition {
			out = append(out, entry)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Position < out[j].Position })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *memSource) ListAccounts(_ context.Context) ([]ledger.Account, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]ledger.Account(nil), m.accounts...), nil
}

func (m *memSource) CountAccounts(_ context.Context) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return int64(len(m.accounts)), nil
}

func (m *memSource) CountEntries(_ context.Context) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return int64(len(m.entries)), nil
}

func (m *memSource) LineTotals(_ context.Context) (decimal.Decimal, decimal.Decimal, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	debits := decimal.Zero
	credits := decimal.Zero
	for _, entry := range m.entries {
		for _, line := range entry.Lines {
			debits = debits.Add(line.Debit)
			credits = credits.Add(line.Credit)
		}
	}
	return debits, credits, nil
}

func mirrorEntry(id string, position uint64, amount string) ledger.JournalEntry {
	value := decimal.RequireFromString(amount)
	return ledger.JournalEntry{
		ID:          id,
		Timestamp:   time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
		Description: "sale",
		Status:      ledger.StatusPending,
		Position:    position,
		Lines: []ledger.JournalLine{
			{AccountID: "acct-cash", Debit: value},
			{AccountID: "acct-revenue", Credit: value},
		},
	}
}

func newTestProjector() (*Projector, *MemoryStore, *memSource) {
	store := NewMemoryStore()
	source := &memSource{
		accounts: []ledger.Account{
			{ID: "acct-cash", Name: "Cash", Type: ledger.AccountTypeAsset},
			{ID: "acct-revenue", Name: "Revenue", Type: ledger.AccountTypeRevenue},
		},
	}
	return NewProjector(store, source), store, source
}

func TestProjectMirrorsEntry(t *testing.T) {
	projector, store, source := newTestProjector()
	ctx := context.Background()

	entry := mirrorEntry("entry-1", 1, "100.0000")
	entry.CreatedByAgent = "agent-7"
	source.addEntry(entry)

	result, err := projector.Project(ctx, entry)
	if err != nil {
		t.Fatalf("project: %v", err)
	}
	if !result.Applied || result.Stale {
		t.Fatalf("unexpected result: %+v", result)
	}

	// Entry node, two account nodes, one agent node.
	if got := store.NodeCount(); got != 4 {
		t.Fatalf("nodes = %d, want 4", got)
	}
	// Debit edge, credit edge, provenance edge.
	if got := store.EdgeCount(); got != 3 {
		t.Fatalf("edges = %d, want 3", got)
	}

	debits, err := store.SumEdgeAmounts(ctx, RelationDebited)
	if err != nil {
		t.Fatalf("sum debits: %v", err)
	}
	if !debits.Equal(decimal.RequireFromString("100")) {
		t.Fatalf("debits = %s, want 100", debits)
	}
}

func TestProjectIsIdempotent(t *testing.T) {
	projector, store, source := newTestProjector()
	ctx := context.Background()

	entry := mirrorEntry("entry-1", 1, "100.0000")
	source.addEntry(entry)

	for i := 0; i < 3; i++ {
		result, err := projector.Project(ctx, entry)
		if err != nil {
			t.Fatalf("project %d: %v", i, err)
		}
		if !result.Applied {
			t.Fatalf("project %d not applied: %+v", i, result)
		}
	}

	if got := store.NodeCount(); got != 3 {
		t.Fatalf("nodes = %d, want 3 after re-projection", got)
	}
	if got := store.EdgeCount(); got != 2 {
		t.Fatalf("edges = %d, want 2 after re-projection", got)
	}

	total, err := store.SumEdgeAmounts(ctx, RelationDebited)
	if err != nil {
		t.Fatalf("sum debits: %v", err)
	}
	if !total.Equal(decimal.RequireFromString("100")) {
		t.Fatalf("debits = %s, re-projection must not double-count", total)
	}
}

func TestProjectRejectsStaleEntry(t *testing.T) {
	projector, store, _ := newTestProjector()
	ctx := context.Background()

	newer := mirrorEntry("entry-2", 2, "50.0000")
	if _, err := projector.Project(ctx, newer); err != nil {
		t.Fatalf("project newer: %v", err)
	}

	older := mirrorEntry("entry-1", 1, "100.0000")
	result, err := projector.Project(ctx, older)
	if err != nil {
		t.Fatalf("project older: %v", err)
	}
	if !result.Stale || result.Applied {
		t.Fatalf("expected stale rejection, got %+v", result)
	}

	total, err := store.SumEdgeAmounts(ctx, RelationDebited)
	if err != nil {
		t.Fatalf("sum debits: %v", err)
	}
	if !total.Equal(decimal.RequireFromString("50")) {
		t.Fatalf("debits = %s, stale entry must not apply", total)
	}

	// The newer entry itself may still re-merge.
	result, err = projector.Project(ctx, newer)
	if err != nil {
		t.Fatalf("re-project newer: %v", err)
	}
	if !result.Applied {
		t.Fatalf("known entry must re-merge, got %+v", result)
	}
}

func TestProjectRecordsSLA(t *testing.T) {
	projector, _, source := newTestProjector()

	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	projector.WithClock(func() time.Time {
		current := now
		now = now.Add(10 * time.Millisecond)
		return current
	})

	entry := mirrorEntry("entry-1", 1, "100.0000")
	source.addEntry(entry)

	result, err := projector.Project(context.Background(), entry)
	if err != nil {
		t.Fatalf("project: %v", err)
	}
	if !result.MeetsSLA {
		t.Fatalf("10ms projection must meet the SLA: %+v", result)
	}
	if result.LatencyMS != 10 {
		t.Fatalf("latency = %dms, want 10", result.LatencyMS)
	}

	syncs := projector.RecentSyncs()
	if len(syncs) != 1 || syncs[0].EntityID != "entry-1" {
		t.Fatalf("unexpected sync records: %+v", syncs)
	}
}

func TestVerifyIntegritySynchronized(t *testing.T) {
	projector, _, source := newTestProjector()
	ctx := context.Background()

	entry := mirrorEntry("entry-1", 1, "100.0000")
	source.addEntry(entry)
	if _, err := projector.Project(ctx, entry); err != nil {
		t.Fatalf("project: %v", err)
	}

	// Mirror the accounts that carry no activity yet.
	if _, err := projector.Rebuild(ctx); err != nil {
		t.Fatalf("rebuild: %v", err)
	}

	report, err := projector.VerifyIntegrity(ctx)
	if err != nil {
		t.Fatalf("verify integrity: %v", err)
	}
	if !report.IsSynchronized {
		t.Fatalf("expected synchronized report: %+v", report)
	}
	if report.LedgerEntries != 1 || report.GraphEntries != 1 {
		t.Fatalf("entry counts = %d/%d", report.LedgerEntries, report.GraphEntries)
	}
}

func TestProjectAccountMirrorsIdleAccount(t *testing.T) {
	projector, store, _ := newTestProjector()
	ctx := context.Background()

	// Accounts mirror at creation time, before any entry references them,
	// so an idle account cannot sit as permanent integrity variance.
	for _, account := range []ledger.Account{
		{ID: "acct-cash", Name: "Cash", Type: ledger.AccountTypeAsset},
		{ID: "acct-revenue", Name: "Revenue", Type: ledger.AccountTypeRevenue},
	} {
		if err := projector.ProjectAccount(ctx, account); err != nil {
			t.Fatalf("project account %s: %v", account.ID, err)
		}
	}

	node, ok := store.node("acct-cash")
	if !ok {
		t.Fatal("account node missing")
	}
	if node.Type != NodeTypeAccount || node.Properties["name"] != "Cash" {
		t.Fatalf("unexpected node: %+v", node)
	}

	report, err := projector.VerifyIntegrity(ctx)
	if err != nil {
		t.Fatalf("verify integrity: %v", err)
	}
	if !report.IsSynchronized {
		t.Fatalf("expected synchronized report with zero entries: %+v", report)
	}
	if report.AccountVariance != 0 {
		t.Fatalf("account variance = %d, want 0", report.AccountVariance)
	}

	syncs := projector.RecentSyncs()
	if len(syncs) != 2 || syncs[0].EntityType != NodeTypeAccount {
		t.Fatalf("unexpected syncs: %+v", syncs)
	}
}

func TestVerifyIntegrityReportsVariance(t *testing.T) {
	projector, _, source := newTestProjector()
	ctx := context.Background()

	// Two committed entries, only one mirrored.
	first := mirrorEntry("entry-1", 1, "100.0000")
	second := mirrorEntry("entry-2", 2, "50.0000")
	source.addEntry(first)
	source.addEntry(second)
	if _, err := projector.Project(ctx, first); err != nil {
		t.Fatalf("project: %v", err)
	}

	report, err := projector.VerifyIntegrity(ctx)
	if err != nil {
		t.Fatalf("verify integrity: %v", err)
	}
	if report.IsSynchronized {
		t.Fatal("divergence must not report synchronized")
	}
	if report.EntryVariance != 1 {
		t.Fatalf("entry variance = %d, want 1", report.EntryVariance)
	}
	if !report.DebitVariance.Equal(decimal.RequireFromString("50")) {
		t.Fatalf("debit variance = %s, want 50", report.DebitVariance)
	}

	// Verification never repairs: a second check sees the same variance.
	again, err := projector.VerifyIntegrity(ctx)
	if err != nil {
		t.Fatalf("re-verify: %v", err)
	}
	if again.EntryVariance != 1 {
		t.Fatalf("variance repaired unexpectedly: %+v", again)
	}
}

func TestRebuildReprojectsEverything(t *testing.T) {
	projector, store, source := newTestProjector()
	ctx := context.Background()

	for i := 1; i <= 5; i++ {
		entry := mirrorEntry(string(rune('a'+i-1))+"-entry", uint64(i), "10.0000")
		source.addEntry(entry)
		if _, err := projector.Project(ctx, entry); err != nil {
			t.Fatalf("project %d: %v", i, err)
		}
	}

	// Poison the mirror, then rebuild from the ledger.
	if err := store.UpsertNode(ctx, Node{ID: "ghost", Type: NodeTypeEntry}); err != nil {
		t.Fatalf("poison: %v", err)
	}

	projected, err := projector.Rebuild(ctx)
	if err != nil {
		t.Fatalf("rebuild: %v", err)
	}
	if projected != 5 {
		t.Fatalf("projected = %d, want 5", projected)
	}

	entries, err := store.CountNodesByType(ctx, NodeTypeEntry)
	if err != nil {
		t.Fatalf("count entries: %v", err)
	}
	if entries != 5 {
		t.Fatalf("entry nodes = %d, ghost must be gone", entries)
	}

	report, err := projector.VerifyIntegrity(ctx)
	if err != nil {
		t.Fatalf("verify integrity: %v", err)
	}
	if !report.IsSynchronized {
		t.Fatalf("rebuild must resynchronize: %+v", report)
	}
}

func TestRebuildSeedsAccountProperties(t *testing.T) {
	projector, store, source := newTestProjector()
	ctx := context.Background()

	entry := mirrorEntry("entry-1", 1, "100.0000")
	source.addEntry(entry)

	if _, err := projector.Rebuild(ctx); err != nil {
		t.Fatalf("rebuild: %v", err)
	}

	node, ok := store.node("acct-cash")
	if !ok {
		t.Fatal("account node missing after rebuild")
	}
	if node.Properties["name"] != "Cash" || node.Properties["type"] != "ASSET" {
		t.Fatalf("seeded properties lost: %+v", node.Properties)
	}
}

func TestLinkCausality(t *testing.T) {
	projector, store, _ := newTestProjector()
	ctx := context.Background()

	if err := projector.LinkCausality(ctx, "entry-2", "entry-1", "reverses"); err != nil {
		t.Fatalf("link: %v", err)
	}
	if got := store.EdgeCount(); got != 1 {
		t.Fatalf("edges = %d, want 1", got)
	}

	// Same link twice stays one edge.
	if err := projector.LinkCausality(ctx, "entry-2", "entry-1", "REVERSES"); err != nil {
		t.Fatalf("re-link: %v", err)
	}
	if got := store.EdgeCount(); got != 1 {
		t.Fatalf("edges = %d after re-link, want 1", got)
	}

	if err := projector.LinkCausality(ctx, "", "entry-1", "REVERSES"); err == nil {
		t.Fatal("expected error for missing source")
	}
}

func TestRingSnapshotNewestFirst(t *testing.T) {
	r := newRing(3)
	for i := 0; i < 5; i++ {
		r.add(SyncRecord{EventID: string(rune('a' + i))})
	}
	records := r.snapshot()
	if len(records) != 3 {
		t.Fatalf("records = %d, want capacity 3", len(records))
	}
	if records[0].EventID != "e" || records[1].EventID != "d" || records[2].EventID != "c" {
		t.Fatalf("unexpected order: %+v", records)
	}
}

func TestWorkerProjectsAsync(t *testing.T) {
	projector, store, source := newTestProjector()
	worker := NewWorker(projector, WorkerConfig{QueueSize: 8})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = worker.Run(ctx)
	}()

	entry := mirrorEntry("entry-1", 1, "100.0000")
	source.addEntry(entry)
	worker.Enqueue(entry)

	deadline := time.After(2 * time.Second)
	for store.NodeCount() < 3 {
		select {
		case <-deadline:
			t.Fatal("worker did not project in time")
		case <-time.After(5 * time.Millisecond):
		}
	}

	cancel()
	<-done
}

func TestWorkerProjectsAccounts(t *testing.T) {
	projector, store, _ := newTestProjector()
	worker := NewWorker(projector, WorkerConfig{QueueSize: 8})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = worker.Run(ctx)
	}()

	worker.EnqueueAccount(ledger.Account{ID: "acct-cash", Name: "Cash", Type: ledger.AccountTypeAsset})

	deadline := time.After(2 * time.Second)
	for store.NodeCount() < 1 {
		select {
		case <-deadline:
			t.Fatal("worker did not project account in time")
		case <-time.After(5 * time.Millisecond):
		}
	}
	if node, ok := store.node("acct-cash"); !ok || node.Properties["name"] != "Cash" {
		t.Fatalf("unexpected node: %+v", node)
	}

	cancel()
	<-done
}

func TestWorkerRetriesTransientFailures(t *testing.T) {
	flaky := &flakyStore{Store: NewMemoryStore(), failures: 2}
	source := &memSource{}
	projector := NewProjector(flaky, source)
	worker := NewWorker(projector, WorkerConfig{
		QueueSize:    8,
		MaxAttempts:  5,
		RetryBackoff: time.Millisecond,
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = worker.Run(ctx)
	}()

	entry := mirrorEntry("entry-1", 1, "100.0000")
	worker.Enqueue(entry)

	deadline := time.After(2 * time.Second)
	for {
		count, err := flaky.CountNodesByType(context.Background(), NodeTypeEntry)
		if err == nil && count == 1 {
			break
		}
		select {
		case <-deadline:
			t.Fatal("worker did not recover from transient failures")
		case <-time.After(5 * time.Millisecond):
		}
	}

	cancel()
	<-done
}

// flakyStore fails the first N node upserts to exercise retry.
type flakyStore struct {
	Store
	mu       sync.Mutex
	failures int
}

func (f *flakyStore) UpsertNode(ctx context.Context, node Node) error {
	f.mu.Lock()
	if f.failures > 0 {
		f.failures--
		f.mu.Unlock()
		return context.DeadlineExceeded
	}
	f.mu.Unlock()
	return f.Store.UpsertNode(ctx, node)
}

package graph

import (
	"context"
	"fmt"
	"log"
	"strings"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/outpost-fi/sovereign/internal/ledger"
	"github.com/outpost-fi/sovereign/internal/platform/timeouts"
)

// LedgerSource is the read surface the projector consumes. The dependency
// points strictly ledger-ward: the ledger never learns about the graph.
type LedgerSource interface {
	ListEntries(ctx context.Context, afterPosition uint64, limit int) ([]ledger.JournalEntry, error)
	ListAccounts(ctx context.Context) ([]ledger.Account, error)
	CountAccounts(ctx context.Context) (int64, error)
	CountEntries(ctx context.Context) (int64, error)
	LineTotals(ctx context.Context) (decimal.Decimal, decimal.Decimal, error)
}

const rebuildPageSize = 200

// Projector mirrors committed ledger mutations into the relationship graph.
type Projector struct {
	store  Store
	source LedgerSource
	clock  func() time.Time
	tracer trace.Tracer
	syncs  *ring

	mu           sync.Mutex
	appliedEntry map[string]uint64
	lastPosition map[string]uint64
}

// NewProjector creates a projector writing to the given graph store.
func NewProjector(store Store, source LedgerSource) *Projector {
	return &Projector{
		store:        store,
		source:       source,
		clock:        time.Now,
		tracer:       otel.Tracer("sovereign/graph"),
		syncs:        newRing(defaultRingCapacity),
		appliedEntry: make(map[string]uint64),
		lastPosition: make(map[string]uint64),
	}
}

// WithClock overrides the time source for tests.
func (p *Projector) WithClock(clock func() time.Time) *Projector {
	if clock != nil {
		p.clock = clock
	}
	return p
}

// Project mirrors one committed entry: an entry node, one relationship per
// nonzero line, and a provenance edge to the proposing agent. Operations
// merge by id, so re-applying the same entry changes nothing. An entry older
// than the newest already applied for any of its accounts is rejected as
// stale rather than applied out of order.
func (p *Projector) Project(ctx context.Context, entry ledger.JournalEntry) (SyncResult, error) {
	ctx, span := p.tracer.Start(ctx, "graph.project")
	defer span.End()
	span.SetAttributes(attribute.String("entry.id", entry.ID))

	started := p.clock()
	result := SyncResult{EntryID: entry.ID}

	if p.isStale(entry) {
		result.Stale = true
		result.MeetsSLA = true
		return result, nil
	}

	if err := p.applyEntry(ctx, entry); err != nil {
		return result, err
	}

	p.markApplied(entry)

	latency := p.clock().Sub(started)
	result.Applied = true
	result.LatencyMS = latency.Milliseconds()
	result.MeetsSLA = latency < timeouts.GraphProjectSLA
	if !result.MeetsSLA {
		log.Printf("graph projection exceeded SLA: entry=%s latency=%s", entry.ID, latency)
	}

	p.syncs.add(SyncRecord{
		EventID:    entry.ID + "@" + started.UTC().Format(time.RFC3339Nano),
		EntityType: NodeTypeEntry,
		EntityID:   entry.ID,
		Operation:  "project",
		LatencyMS:  result.LatencyMS,
		Timestamp:  started.UTC(),
	})
	return result, nil
}

// ProjectAccount mirrors one account node. Accounts reach the graph the
// moment they are created, not only once an entry references them, so an
// idle account never shows up as integrity variance.
func (p *Projector) ProjectAccount(ctx context.Context, account ledger.Account) error {
	ctx, span := p.tracer.Start(ctx, "graph.project_account")
	defer span.End()
	span.SetAttributes(attribute.String("account.id", account.ID))

	started := p.clock()
	if err := p.store.UpsertNode(ctx, Node{
		ID:   account.ID,
		Type: NodeTypeAccount,
		Properties: map[string]string{
			"name": account.Name,
			"type": string(account.Type),
		},
	}); err != nil {
		return fmt.Errorf("upsert account node: %w", err)
	}

	p.syncs.add(SyncRecord{
		EventID:    account.ID + "@" + started.UTC().Format(time.RFC3339Nano),
		EntityType: NodeTypeAccount,
		EntityID:   account.ID,
		Operation:  "project",
		LatencyMS:  p.clock().Sub(started).Milliseconds(),
		Timestamp:  started.UTC(),
	})
	return nil
}

func (p *Projector) isStale(entry ledger.JournalEntry) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if _, applied := p.appliedEntry[entry.ID]; applied {
		// Re-applying a known entry is an idempotent merge, not a
		// reordering hazard.
		return false
	}
	for _, line := range entry.Lines {
		if entry.Position < p.lastPosition[line.AccountID] {
			return true
		}
	}
	return false
}

func (p *Projector) markApplied(entry ledger.JournalEntry) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.appliedEntry[entry.ID] = entry.Position
	for _, line := range entry.Lines {
		if entry.Position > p.lastPosition[line.AccountID] {
			p.lastPosition[line.AccountID] = entry.Position
		}
	}
}

func (p *Projector) applyEntry(ctx context.Context, entry ledger.JournalEntry) error {
	if err := p.store.UpsertNode(ctx, Node{
		ID:   entry.ID,
		Type: NodeTypeEntry,
		Properties: map[string]string{
			"description": entry.Description,
			"status":      string(entry.Status),
			"entry_hash":  entry.EntryHash,
			"position":    fmt.Sprintf("%d", entry.Position),
		},
	}); err != nil {
		return fmt.Errorf("upsert entry node: %w", err)
	}

	for i, line := range entry.Lines {
		if err := p.store.UpsertNode(ctx, Node{
			ID:   line.AccountID,
			Type: NodeTypeAccount,
		}); err != nil {
			return fmt.Errorf("upsert account node: %w", err)
		}

		relation := RelationDebited
		amount := line.Debit
		if line.Debit.IsZero() {
			if line.Credit.IsZero() {
				continue
			}
			relation = RelationCredited
			amount = line.Credit
		}
		if err := p.store.UpsertEdge(ctx, Edge{
			ID:     fmt.Sprintf("%s:%s:%s:%d", entry.ID, relation, line.AccountID, i),
			Type:   relation,
			FromID: entry.ID,
			ToID:   line.AccountID,
			Amount: amount,
		}); err != nil {
			return fmt.Errorf("upsert line edge: %w", err)
		}
	}

	if agent := strings.TrimSpace(entry.CreatedByAgent); agent != "" {
		if err := p.store.UpsertNode(ctx, Node{ID: agent, Type: NodeTypeAgent}); err != nil {
			return fmt.Errorf("upsert agent node: %w", err)
		}
		if err := p.store.UpsertEdge(ctx, Edge{
			ID:     entry.ID + ":" + RelationCreated + ":" + agent,
			Type:   RelationCreated,
			FromID: agent,
			ToID:   entry.ID,
		}); err != nil {
			return fmt.Errorf("upsert provenance edge: %w", err)
		}
	}
	return nil
}

// LinkCausality adds a human-authored "why" edge between two entries. Purely
// additive: existing edges are never removed.
func (p *Projector) LinkCausality(ctx context.Context, sourceEntryID, targetEntryID, relation string) error {
	sourceEntryID = strings.TrimSpace(sourceEntryID)
	targetEntryID = strings.TrimSpace(targetEntryID)
	relation = strings.ToUpper(strings.TrimSpace(relation))
	if sourceEntryID == "" || targetEntryID == "" || relation == "" {
		return fmt.Errorf("source, target, and relation are required")
	}
	return p.store.UpsertEdge(ctx, Edge{
		ID:     sourceEntryID + ":" + relation + ":" + targetEntryID,
		Type:   relation,
		FromID: sourceEntryID,
		ToID:   targetEntryID,
	})
}

// VerifyIntegrity independently counts accounts, entries, and aggregate
// debit/credit totals in both stores. It reports variance and never repairs:
// a divergence is a signal for out-of-band investigation.
func (p *Projector) VerifyIntegrity(ctx context.Context) (IntegrityReport, error) {
	ctx, span := p.tracer.Start(ctx, "graph.verify_integrity")
	defer span.End()

	report := IntegrityReport{CheckedAt: p.clock().UTC()}

	ledgerAccounts, err := p.source.CountAccounts(ctx)
	if err != nil {
		return report, fmt.Errorf("count ledger accounts: %w", err)
	}
	ledgerEntries, err := p.source.CountEntries(ctx)
	if err != nil {
		return report, fmt.Errorf("count ledger entries: %w", err)
	}
	ledgerDebits, ledgerCredits, err := p.source.LineTotals(ctx)
	if err != nil {
		return report, fmt.Errorf("ledger line totals: %w", err)
	}

	graphAccounts, err := p.store.CountNodesByType(ctx, NodeTypeAccount)
	if err != nil {
		return report, fmt.Errorf("count graph accounts: %w", err)
	}
	graphEntries, err := p.store.CountNodesByType(ctx, NodeTypeEntry)
	if err != nil {
		return report, fmt.Errorf("count graph entries: %w", err)
	}
	graphDebits, err := p.store.SumEdgeAmounts(ctx, RelationDebited)
	if err != nil {
		return report, fmt.Errorf("sum graph debits: %w", err)
	}
	graphCredits, err := p.store.SumEdgeAmounts(ctx, RelationCredited)
	if err != nil {
		return report, fmt.Errorf("sum graph credits: %w", err)
	}

	report.LedgerAccounts = ledgerAccounts
	report.GraphAccounts = graphAccounts
	report.LedgerEntries = ledgerEntries
	report.GraphEntries = graphEntries
	report.AccountVariance = ledgerAccounts - graphAccounts
	report.EntryVariance = ledgerEntries - graphEntries
	report.DebitVariance = ledger.Quantize(ledgerDebits.Sub(graphDebits))
	report.CreditVariance = ledger.Quantize(ledgerCredits.Sub(graphCredits))
	report.IsSynchronized = report.AccountVariance == 0 &&
		report.EntryVariance == 0 &&
		report.DebitVariance.IsZero() &&
		report.CreditVariance.IsZero()

	if !report.IsSynchronized {
		log.Printf("graph variance detected: accounts=%d entries=%d debit=%s credit=%s",
			report.AccountVariance, report.EntryVariance,
			report.DebitVariance.String(), report.CreditVariance.String())
	}
	return report, nil
}

// Rebuild drops the mirror and reprojects every entry from the ledger in
// chain order. The graph is a rebuildable cache, so this is always safe.
func (p *Projector) Rebuild(ctx context.Context) (int, error) {
	if err := p.store.DeleteAll(ctx); err != nil {
		return 0, fmt.Errorf("clear graph store: %w", err)
	}

	p.mu.Lock()
	p.appliedEntry = make(map[string]uint64)
	p.lastPosition = make(map[string]uint64)
	p.mu.Unlock()

	// Seed account nodes so accounts with no activity still mirror.
	accounts, err := p.source.ListAccounts(ctx)
	if err != nil {
		return 0, fmt.Errorf("list accounts: %w", err)
	}
	for _, account := range accounts {
		if err := p.store.UpsertNode(ctx, Node{
			ID:   account.ID,
			Type: NodeTypeAccount,
			Properties: map[string]string{
				"name": account.Name,
				"type": string(account.Type),
			},
		}); err != nil {
			return 0, fmt.Errorf("upsert account node: %w", err)
		}
	}

	var projected int
	var after uint64
	for {
		entries, err := p.source.ListEntries(ctx, after, rebuildPageSize)
		if err != nil {
			return projected, fmt.Errorf("list entries: %w", err)
		}
		if len(entries) == 0 {
			return projected, nil
		}
		for _, entry := range entries {
			if _, err := p.Project(ctx, entry); err != nil {
				return projected, fmt.Errorf("project entry %s: %w", entry.ID, err)
			}
			projected++
			after = entry.Position
		}
	}
}

// RecentSyncs returns the most recent sync records, newest first.
func (p *Projector) RecentSyncs() []SyncRecord {
	return p.syncs.snapshot()
}

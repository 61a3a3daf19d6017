// Package graph maintains a best-effort, eventually-consistent mirror of
// ledger facts as a relationship graph for causal queries the relational
// journal cannot answer efficiently. The ledger is the sole source of truth;
// the graph is a derived, rebuildable view.
package graph

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

// Node types mirrored from the ledger.
const (
	NodeTypeAccount = "account"
	NodeTypeEntry   = "entry"
	NodeTypeAgent   = "agent"
)

// Relation names for edges.
const (
	RelationDebited  = "DEBITED"
	RelationCredited = "CREDITED"
	RelationCreated  = "CREATED"
)

// Node is one vertex in the mirror. Upserts merge by ID.
type Node struct {
	ID         string
	Type       string
	Properties map[string]string
}

// Edge is one relationship in the mirror. Upserts merge by ID, which makes
// re-projection of the same entry a no-op.
type Edge struct {
	ID         string
	Type       string
	FromID     string
	ToID       string
	Amount     decimal.Decimal
	Properties map[string]string
}

// Store is the narrow surface the projector needs from a graph engine. The
// engine behind it is swappable; tests use the in-memory implementation.
type Store interface {
	UpsertNode(ctx context.Context, node Node) error
	UpsertEdge(ctx context.Context, edge Edge) error
	CountNodesByType(ctx context.Context, nodeType string) (int64, error)
	SumEdgeAmounts(ctx context.Context, relation string) (decimal.Decimal, error)
	DeleteAll(ctx context.Context) error
}

// SyncResult reports one projection attempt.
type SyncResult struct {
	EntryID   string `json:"entry_id"`
	LatencyMS int64  `json:"latency_ms"`
	MeetsSLA  bool   `json:"meets_sla"`
	Applied   bool   `json:"applied"`
	Stale     bool   `json:"stale"`
}

// SyncRecord is transient observability state describing one mirrored
// operation. It is not part of the audit trail.
type SyncRecord struct {
	EventID    string    `json:"event_id"`
	EntityType string    `json:"entity_type"`
	EntityID   string    `json:"entity_id"`
	Operation  string    `json:"operation"`
	LatencyMS  int64     `json:"latency_ms"`
	Timestamp  time.Time `json:"timestamp"`
}

// IntegrityReport compares the ledger and the graph mirror. A nonzero
// variance means the stores diverged; the report never triggers automatic
// repair because silently fixing the mirror could mask genuine tampering.
type IntegrityReport struct {
	LedgerAccounts  int64           `json:"ledger_accounts"`
	GraphAccounts   int64           `json:"graph_accounts"`
	LedgerEntries   int64           `json:"ledger_entries"`
	GraphEntries    int64           `json:"graph_entries"`
	AccountVariance int64           `json:"account_variance"`
	EntryVariance   int64           `json:"entry_variance"`
	DebitVariance   decimal.Decimal `json:"debit_variance"`
	CreditVariance  decimal.Decimal `json:"credit_variance"`
	IsSynchronized  bool            `json:"is_synchronized"`
	CheckedAt       time.Time       `json:"checked_at"`
}

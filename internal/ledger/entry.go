package ledger

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/outpost-fi/sovereign/internal/platform/errors"
)

// GenesisHash seeds the chain before any entry exists. The first posted
// entry records it as its previous hash.
const GenesisHash = "GENESIS"

// EntryStatus tracks a journal entry through its lifecycle.
type EntryStatus string

const (
	StatusPending    EntryStatus = "PENDING"
	StatusSigned     EntryStatus = "SIGNED"
	StatusExecuted   EntryStatus = "EXECUTED"
	StatusReconciled EntryStatus = "RECONCILED"
	StatusVoided     EntryStatus = "VOIDED"
)

// statusTransitions is the authoritative lifecycle table. VOIDED is terminal
// and reachable only before execution; cancellation after execution is always
// an additive reversing entry, never a deletion.
var statusTransitions = map[EntryStatus][]EntryStatus{
	StatusPending:    {StatusSigned, StatusExecuted, StatusVoided},
	StatusSigned:     {StatusExecuted, StatusVoided},
	StatusExecuted:   {StatusReconciled},
	StatusReconciled: {},
	StatusVoided:     {},
}

// CanTransition reports whether moving from one status to another is legal.
func CanTransition(from, to EntryStatus) bool {
	for _, allowed := range statusTransitions[from] {
		if allowed == to {
			return true
		}
	}
	return false
}

// JournalLine is one leg of a double-entry journal entry. Exactly one of
// Debit/Credit is normally nonzero; both zero is permitted only transiently
// during construction.
type JournalLine struct {
	AccountID string          `json:"account_id"`
	Debit     decimal.Decimal `json:"debit"`
	Credit    decimal.Decimal `json:"credit"`
	Memo      string          `json:"memo,omitempty"`
}

// JournalEntry is one balanced, hash-chained journal record.
type JournalEntry struct {
	ID             string        `json:"id"`
	Timestamp      time.Time     `json:"timestamp"`
	Description    string        `json:"description"`
	Lines          []JournalLine `json:"lines"`
	Status         EntryStatus   `json:"status"`
	Position       uint64        `json:"position"`
	PreviousHash   string        `json:"previous_hash"`
	EntryHash      string        `json:"entry_hash"`
	SignatureID    string        `json:"sovereign_signature_id,omitempty"`
	SignedByUserID string        `json:"signed_by_user_id,omitempty"`
	SignedAt       *time.Time    `json:"signed_at,omitempty"`
	CreatedByAgent string        `json:"created_by_agent,omitempty"`
	VoidReason     string        `json:"void_reason,omitempty"`
}

// EntryInput is a caller-proposed journal entry before validation.
type EntryInput struct {
	ID             string        `json:"id"`
	Description    string        `json:"description"`
	Lines          []JournalLine `json:"lines"`
	SignatureID    string        `json:"sovereign_signature_id,omitempty"`
	SignedByUserID string        `json:"signed_by_user_id,omitempty"`
	CreatedByAgent string        `json:"created_by_agent,omitempty"`
}

// normalizeEntry validates structure and the balance invariant, quantizing
// every amount to the fixed scale. The balance check is an exact equality at
// full quantized precision.
func normalizeEntry(input EntryInput) (EntryInput, error) {
	input.ID = strings.TrimSpace(input.ID)
	input.Description = strings.TrimSpace(input.Description)
	if input.ID == "" {
		return EntryInput{}, errors.New(errors.CodeLedgerInvalidEntry, "entry id is required")
	}
	if len(input.Lines) < 2 {
		return EntryInput{}, errors.New(errors.CodeLedgerInvalidEntry, "entry requires at least two lines")
	}

	totalDebit := decimal.Zero
	totalCredit := decimal.Zero
	lines := make([]JournalLine, 0, len(input.Lines))
	for _, line := range input.Lines {
		line.AccountID = strings.TrimSpace(line.AccountID)
		if line.AccountID == "" {
			return EntryInput{}, errors.New(errors.CodeLedgerInvalidEntry, "line account id is required")
		}
		if line.Debit.IsNegative() || line.Credit.IsNegative() {
			return EntryInput{}, errors.New(errors.CodeLedgerInvalidEntry, "line amounts must not be negative")
		}
		if !line.Debit.IsZero() && !line.Credit.IsZero() {
			return EntryInput{}, errors.New(errors.CodeLedgerInvalidEntry, "line must not carry both debit and credit")
		}
		line.Debit = Quantize(line.Debit)
		line.Credit = Quantize(line.Credit)
		totalDebit = totalDebit.Add(line.Debit)
		totalCredit = totalCredit.Add(line.Credit)
		lines = append(lines, line)
	}

	if !totalDebit.Equal(totalCredit) {
		return EntryInput{}, errors.WithMetadata(errors.CodeLedgerUnbalanced, "entry debits and credits are not equal", map[string]string{
			"total_debit":  FormatAmount(totalDebit),
			"total_credit": FormatAmount(totalCredit),
		})
	}

	input.Lines = lines
	return input, nil
}

// ComputeEntryHash derives the tamper-evidence hash for an entry. The input
// layout is fixed:
//
//	id|timestamp|description|previous_hash|signature_id|acct:debit:credit|...
//
// Timestamps serialize as RFC3339Nano UTC and amounts as fixed 4-digit
// strings so the hash is reproducible byte for byte.
func ComputeEntryHash(entry JournalEntry) string {
	parts := make([]string, 0, 5+len(entry.Lines))
	previous := entry.PreviousHash
	if previous == "" {
		previous = GenesisHash
	}
	parts = append(parts,
		entry.ID,
		entry.Timestamp.UTC().Format(time.RFC3339Nano),
		entry.Description,
		previous,
		entry.SignatureID,
	)
	for _, line := range entry.Lines {
		parts = append(parts, line.AccountID+":"+FormatAmount(line.Debit)+":"+FormatAmount(line.Credit))
	}

	sum := sha256.Sum256([]byte(strings.Join(parts, "|")))
	return hex.EncodeToString(sum[:])
}

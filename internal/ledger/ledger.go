// Package ledger implements the double-entry, hash-chained, append-only
// journal. Every entry balances exactly, extends a tamper-evident hash
// chain, and is never deleted: cancellation is a status flip plus an
// additive reversing entry.
package ledger

import (
	"context"
	stderrors "errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/outpost-fi/sovereign/internal/platform/errors"
	"github.com/outpost-fi/sovereign/internal/platform/id"
	"github.com/outpost-fi/sovereign/internal/storage"
)

// Store persists accounts and the append-only journal. Implementations must
// enforce uniqueness of entry ids and chain positions and return
// storage.ErrNotFound for missing records.
type Store interface {
	PutAccount(ctx context.Context, account Account) error
	GetAccount(ctx context.Context, id string) (Account, error)
	ListAccounts(ctx context.Context) ([]Account, error)
	SetAccountActive(ctx context.Context, id string, active bool) error

	AppendEntry(ctx context.Context, entry JournalEntry) error
	GetEntry(ctx context.Context, id string) (JournalEntry, error)
	ListEntries(ctx context.Context, afterPosition uint64, limit int) ([]JournalEntry, error)
	TailEntry(ctx context.Context) (JournalEntry, error)
	UpdateEntryStatus(ctx context.Context, id string, status EntryStatus, voidReason string) error

	CountAccounts(ctx context.Context) (int64, error)
	CountEntries(ctx context.Context) (int64, error)
	AccountActivity(ctx context.Context, accountID string) ([]JournalLine, error)
	LineTotals(ctx context.Context) (debit, credit decimal.Decimal, err error)
}

// SignatureConfirmer reports whether a sovereign signature reference was
// produced by a successful challenge verification. The verifier implements
// this; the ledger consults it when a candidate arrives pre-signed.
type SignatureConfirmer interface {
	ConfirmSignature(ctx context.Context, signatureID string) (signedBy string, ok bool)
}

// CommitHook observes committed entries. Hooks run outside the chain-tail
// lock and must not block.
type CommitHook func(entry JournalEntry)

// AccountHook observes created accounts. Same contract as CommitHook.
type AccountHook func(account Account)

const verifyPageSize = 200

// Ledger is the authoritative journal service. PostEntry calls serialize on
// a single chain-tail lock because the chain has one global order.
type Ledger struct {
	store     Store
	confirmer SignatureConfirmer
	clock     func() time.Time
	tracer    trace.Tracer

	mu       sync.Mutex
	tailHash string
	tailPos  uint64
	tailInit bool

	hookMu       sync.RWMutex
	hooks        []CommitHook
	accountHooks []AccountHook
}

// New creates a ledger over the provided store. The confirmer may be nil, in
// which case candidates always commit as PENDING.
func New(store Store, confirmer SignatureConfirmer) *Ledger {
	return &Ledger{
		store:     store,
		confirmer: confirmer,
		clock:     time.Now,
		tracer:    otel.Tracer("sovereign/ledger"),
	}
}

// WithClock overrides the time source for tests.
func (l *Ledger) WithClock(clock func() time.Time) *Ledger {
	if clock != nil {
		l.clock = clock
	}
	return l
}

// OnCommit registers a hook invoked after every committed entry.
func (l *Ledger) OnCommit(hook CommitHook) {
	if hook == nil {
		return
	}
	l.hookMu.Lock()
	defer l.hookMu.Unlock()
	l.hooks = append(l.hooks, hook)
}

// OnAccountCommit registers a hook invoked after every created account.
func (l *Ledger) OnAccountCommit(hook AccountHook) {
	if hook == nil {
		return
	}
	l.hookMu.Lock()
	defer l.hookMu.Unlock()
	l.accountHooks = append(l.accountHooks, hook)
}

// CreateAccount validates and persists a new ledger account.
func (l *Ledger) CreateAccount(ctx context.Context, input CreateAccountInput) (Account, error) {
	account, err := NewAccount(input, l.clock, id.NewID)
	if err != nil {
		return Account{}, err
	}

	if _, err := l.store.GetAccount(ctx, account.ID); err == nil {
		return Account{}, errors.WithMetadata(errors.CodeAccountDuplicateID, "account id already exists", map[string]string{
			"account_id": account.ID,
		})
	} else if !stderrors.Is(err, storage.ErrNotFound) {
		return Account{}, fmt.Errorf("check account id: %w", err)
	}

	if account.ParentID != "" {
		if err := l.checkParentChain(ctx, account.ID, account.ParentID); err != nil {
			return Account{}, err
		}
	}

	if err := l.store.PutAccount(ctx, account); err != nil {
		return Account{}, fmt.Errorf("put account: %w", err)
	}
	l.notifyAccountCommit(account)
	return account, nil
}

// checkParentChain confirms the parent exists and that linking to it cannot
// close a cycle.
func (l *Ledger) checkParentChain(ctx context.Context, accountID, parentID string) error {
	seen := map[string]bool{accountID: true}
	current := parentID
	for current != "" {
		if seen[current] {
			return errors.WithMetadata(errors.CodeAccountParentCycle, "account parent chain forms a cycle", map[string]string{
				"account_id": accountID,
				"parent_id":  parentID,
			})
		}
		seen[current] = true

		parent, err := l.store.GetAccount(ctx, current)
		if err != nil {
			if stderrors.Is(err, storage.ErrNotFound) {
				return errors.WithMetadata(errors.CodeAccountUnknownParent, "parent account does not exist", map[string]string{
					"parent_id": current,
				})
			}
			return fmt.Errorf("get parent account: %w", err)
		}
		current = parent.ParentID
	}
	return nil
}

// GetAccount returns one account by id.
func (l *Ledger) GetAccount(ctx context.Context, accountID string) (Account, error) {
	account, err := l.store.GetAccount(ctx, strings.TrimSpace(accountID))
	if err != nil {
		if stderrors.Is(err, storage.ErrNotFound) {
			return Account{}, errors.New(errors.CodeLedgerUnknownAccount, "account not found")
		}
		return Account{}, err
	}
	return account, nil
}

// ListAccounts returns the chart of accounts.
func (l *Ledger) ListAccounts(ctx context.Context) ([]Account, error) {
	return l.store.ListAccounts(ctx)
}

// DeactivateAccount flips is_active off. Accounts referenced by posted
// entries are otherwise immutable.
func (l *Ledger) DeactivateAccount(ctx context.Context, accountID string) error {
	if _, err := l.GetAccount(ctx, accountID); err != nil {
		return err
	}
	return l.store.SetAccountActive(ctx, strings.TrimSpace(accountID), false)
}

// PostEntry validates a candidate, extends the hash chain, and appends the
// entry as the new tail. Posting is idempotent by entry id: a duplicate id
// is rejected with LEDGER_DUPLICATE_ID and the caller may safely treat the
// original commit as authoritative.
func (l *Ledger) PostEntry(ctx context.Context, input EntryInput) (JournalEntry, error) {
	ctx, span := l.tracer.Start(ctx, "ledger.post_entry")
	defer span.End()

	normalized, err := normalizeEntry(input)
	if err != nil {
		return JournalEntry{}, err
	}
	span.SetAttributes(attribute.String("entry.id", normalized.ID))

	l.mu.Lock()
	defer l.mu.Unlock()

	if _, err := l.store.GetEntry(ctx, normalized.ID); err == nil {
		return JournalEntry{}, errors.WithMetadata(errors.CodeLedgerDuplicateID, "entry id already posted", map[string]string{
			"entry_id": normalized.ID,
		})
	} else if !stderrors.Is(err, storage.ErrNotFound) {
		return JournalEntry{}, fmt.Errorf("check entry id: %w", err)
	}

	for _, line := range normalized.Lines {
		account, err := l.store.GetAccount(ctx, line.AccountID)
		if err != nil {
			if stderrors.Is(err, storage.ErrNotFound) {
				return JournalEntry{}, errors.WithMetadata(errors.CodeLedgerUnknownAccount, "line references unknown account", map[string]string{
					"account_id": line.AccountID,
				})
			}
			return JournalEntry{}, fmt.Errorf("resolve account %s: %w", line.AccountID, err)
		}
		if !account.IsActive {
			return JournalEntry{}, errors.WithMetadata(errors.CodeLedgerUnknownAccount, "line references inactive account", map[string]string{
				"account_id": line.AccountID,
			})
		}
	}

	if err := l.loadTailLocked(ctx); err != nil {
		return JournalEntry{}, err
	}

	// Millisecond precision: the timestamp participates in the entry hash
	// and must survive a storage round trip byte for byte.
	now := l.clock().UTC().Truncate(time.Millisecond)
	entry := JournalEntry{
		ID:             normalized.ID,
		Timestamp:      now,
		Description:    normalized.Description,
		Lines:          normalized.Lines,
		Status:         StatusPending,
		Position:       l.tailPos + 1,
		PreviousHash:   l.tailHash,
		SignatureID:    strings.TrimSpace(normalized.SignatureID),
		SignedByUserID: strings.TrimSpace(normalized.SignedByUserID),
		CreatedByAgent: strings.TrimSpace(normalized.CreatedByAgent),
	}

	if entry.SignatureID != "" && l.confirmer != nil {
		if signedBy, ok := l.confirmer.ConfirmSignature(ctx, entry.SignatureID); ok {
			entry.Status = StatusSigned
			entry.SignedAt = &now
			if entry.SignedByUserID == "" {
				entry.SignedByUserID = signedBy
			}
		}
	}

	entry.EntryHash = ComputeEntryHash(entry)

	if err := l.store.AppendEntry(ctx, entry); err != nil {
		return JournalEntry{}, fmt.Errorf("append entry: %w", err)
	}

	l.tailHash = entry.EntryHash
	l.tailPos = entry.Position

	l.notifyCommit(entry)
	return entry, nil
}

func (l *Ledger) loadTailLocked(ctx context.Context) error {
	if l.tailInit {
		return nil
	}
	tail, err := l.store.TailEntry(ctx)
	if err != nil {
		if stderrors.Is(err, storage.ErrNotFound) {
			l.tailHash = GenesisHash
			l.tailPos = 0
			l.tailInit = true
			return nil
		}
		return fmt.Errorf("load chain tail: %w", err)
	}
	l.tailHash = tail.EntryHash
	l.tailPos = tail.Position
	l.tailInit = true
	return nil
}

func (l *Ledger) notifyCommit(entry JournalEntry) {
	l.hookMu.RLock()
	hooks := make([]CommitHook, len(l.hooks))
	copy(hooks, l.hooks)
	l.hookMu.RUnlock()
	for _, hook := range hooks {
		hook(entry)
	}
}

func (l *Ledger) notifyAccountCommit(account Account) {
	l.hookMu.RLock()
	hooks := make([]AccountHook, len(l.accountHooks))
	copy(hooks, l.accountHooks)
	l.hookMu.RUnlock()
	for _, hook := range hooks {
		hook(account)
	}
}

// GetEntry returns one journal entry by id.
func (l *Ledger) GetEntry(ctx context.Context, entryID string) (JournalEntry, error) {
	entry, err := l.store.GetEntry(ctx, strings.TrimSpace(entryID))
	if err != nil {
		if stderrors.Is(err, storage.ErrNotFound) {
			return JournalEntry{}, errors.New(errors.CodeNotFound, "entry not found")
		}
		return JournalEntry{}, err
	}
	return entry, nil
}

// ListEntries pages through the journal in chain order.
func (l *Ledger) ListEntries(ctx context.Context, afterPosition uint64, limit int) ([]JournalEntry, error) {
	if limit <= 0 {
		limit = verifyPageSize
	}
	return l.store.ListEntries(ctx, afterPosition, limit)
}

// VoidEntry flips an entry to VOIDED. The entry and its hash are retained
// forever; undoing the economic effect requires a separate reversing entry.
func (l *Ledger) VoidEntry(ctx context.Context, entryID, reason string) (JournalEntry, error) {
	return l.transition(ctx, entryID, StatusVoided, strings.TrimSpace(reason))
}

// MarkExecuted transitions an entry to EXECUTED.
func (l *Ledger) MarkExecuted(ctx context.Context, entryID string) (JournalEntry, error) {
	return l.transition(ctx, entryID, StatusExecuted, "")
}

// MarkReconciled transitions an entry to RECONCILED.
func (l *Ledger) MarkReconciled(ctx context.Context, entryID string) (JournalEntry, error) {
	return l.transition(ctx, entryID, StatusReconciled, "")
}

func (l *Ledger) transition(ctx context.Context, entryID string, to EntryStatus, voidReason string) (JournalEntry, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	entry, err := l.GetEntry(ctx, entryID)
	if err != nil {
		return JournalEntry{}, err
	}
	if !CanTransition(entry.Status, to) {
		return JournalEntry{}, errors.WithMetadata(errors.CodeLedgerInvalidTransition, "entry status transition is not permitted", map[string]string{
			"entry_id": entry.ID,
			"from":     string(entry.Status),
			"to":       string(to),
		})
	}
	if err := l.store.UpdateEntryStatus(ctx, entry.ID, to, voidReason); err != nil {
		return JournalEntry{}, fmt.Errorf("update entry status: %w", err)
	}
	entry.Status = to
	entry.VoidReason = voidReason
	return entry, nil
}

// Balance summarizes account activity. Net follows the account's normal
// balance side: debit-normal for assets and expenses, credit-normal
// otherwise.
type Balance struct {
	AccountID string          `json:"account_id"`
	Debits    decimal.Decimal `json:"debits"`
	Credits   decimal.Decimal `json:"credits"`
	Net       decimal.Decimal `json:"net"`
}

// AccountBalance sums posted activity for an account, excluding voided
// entries.
func (l *Ledger) AccountBalance(ctx context.Context, accountID string) (Balance, error) {
	account, err := l.GetAccount(ctx, accountID)
	if err != nil {
		return Balance{}, err
	}

	lines, err := l.store.AccountActivity(ctx, account.ID)
	if err != nil {
		return Balance{}, fmt.Errorf("account activity: %w", err)
	}

	debits := decimal.Zero
	credits := decimal.Zero
	for _, line := range lines {
		debits = debits.Add(line.Debit)
		credits = credits.Add(line.Credit)
	}

	net := debits.Sub(credits)
	if account.Type == AccountTypeLiability || account.Type == AccountTypeEquity || account.Type == AccountTypeRevenue {
		net = credits.Sub(debits)
	}

	return Balance{
		AccountID: account.ID,
		Debits:    Quantize(debits),
		Credits:   Quantize(credits),
		Net:       Quantize(net),
	}, nil
}

// VerifyChain replays every entry from genesis, recomputing each hash and
// confirming previous-hash linkage. The first mismatch identifies the
// tampering point.
func (l *Ledger) VerifyChain(ctx context.Context) error {
	ctx, span := l.tracer.Start(ctx, "ledger.verify_chain")
	defer span.End()

	previous := GenesisHash
	var after uint64
	for {
		entries, err := l.store.ListEntries(ctx, after, verifyPageSize)
		if err != nil {
			return fmt.Errorf("list entries: %w", err)
		}
		if len(entries) == 0 {
			return nil
		}
		for _, entry := range entries {
			if entry.PreviousHash != previous {
				return integrityViolation(entry.ID, "previous hash does not match chain predecessor")
			}
			if ComputeEntryHash(entry) != entry.EntryHash {
				return integrityViolation(entry.ID, "stored entry hash does not match recomputed hash")
			}
			previous = entry.EntryHash
			after = entry.Position
		}
	}
}

func integrityViolation(entryID, message string) error {
	return errors.WithMetadata(errors.CodeIntegrityViolation, message, map[string]string{
		"entry_id": entryID,
	})
}

// CountAccounts reports the number of accounts for reconciliation.
func (l *Ledger) CountAccounts(ctx context.Context) (int64, error) {
	return l.store.CountAccounts(ctx)
}

// CountEntries reports the number of journal entries for reconciliation.
func (l *Ledger) CountEntries(ctx context.Context) (int64, error) {
	return l.store.CountEntries(ctx)
}

// LineTotals reports aggregate debits and credits across the whole journal
// for reconciliation against the graph mirror.
func (l *Ledger) LineTotals(ctx context.Context) (decimal.Decimal, decimal.Decimal, error) {
	return l.store.LineTotals(ctx)
}

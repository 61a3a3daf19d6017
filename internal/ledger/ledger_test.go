package ledger

import (
	"context"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/outpost-fi/sovereign/internal/platform/errors"
	"github.com/outpost-fi/sovereign/internal/storage"
)

// memStore is an in-memory Store for exercising ledger semantics without a
// database file.
type memStore struct {
	mu       sync.Mutex
	accounts map[string]Account
	entries  map[string]JournalEntry
}

func newMemStore() *memStore {
	return &memStore{
		accounts: make(map[string]Account),
		entries:  make(map[string]JournalEntry),
	}
}

func (m *memStore) PutAccount(_ context.Context, account Account) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.accounts[account.ID] = account
	return nil
}

func (m *memStore) GetAccount(_ context.Context, id string) (Account, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	account, ok := m.accounts[id]
	if !ok {
		return Account{}, storage.ErrNotFound
	}
	return account, nil
}

func (m *memStore) ListAccounts(_ context.Context) ([]Account, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	accounts := make([]Account, 0, len(m.accounts))
	for _, account := range m.accounts {
		accounts = append(accounts, account)
	}
	sort.Slice(accounts, func(i, j int) bool { return accounts[i].ID < accounts[j].ID })
	return accounts, nil
}

func (m *memStore) SetAccountActive(_ context.Context, id string, active bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	account, ok := m.accounts[id]
	if !ok {
		return storage.ErrNotFound
	}
	account.IsActive = active
	m.accounts[id] = account
	return nil
}

func (m *memStore) AppendEntry(_ context.Context, entry JournalEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries[entry.ID] = entry
	return nil
}

func (m *memStore) GetEntry(_ context.Context, id string) (JournalEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	entry, ok := m.entries[id]
	if !ok {
		return JournalEntry{}, storage.ErrNotFound
	}
	return entry, nil
}

func (m *memStore) ListEntries(_ context.Context, afterPosition uint64, limit int) ([]JournalEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var entries []JournalEntry
	for _, entry := range m.entries {
		if entry.Position > afterPosition {
			entries = append(entries, entry)
		}
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].Position < entries[j].Position })
	if len(entries) > limit {
		entries = entries[:limit]
	}
	return entries, nil
}

func (m *memStore) TailEntry(_ context.Context) (JournalEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var tail JournalEntry
	found := false
	for _, entry := range m.entries {
		if !found || entry.Position > tail.Position {
			tail = entry
			found = true
		}
	}
	if !found {
		return JournalEntry{}, storage.ErrNotFound
	}
	return tail, nil
}

func (m *memStore) UpdateEntryStatus(_ context.Context, id string, status EntryStatus, voidReason string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	entry, ok := m.entries[id]
	if !ok {
		return storage.ErrNotFound
	}
	entry.Status = status
	entry.VoidReason = voidReason
	m.entries[id] = entry
	return nil
}

func (m *memStore) CountAccounts(_ context.Context) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return int64(len(m.accounts)), nil
}

func (m *memStore) CountEntries(_ context.Context) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return int64(len(m.entries)), nil
}

func (m *memStore) AccountActivity(_ context.Context, accountID string) ([]JournalLine, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var lines []JournalLine
	var entries []JournalEntry
	for _, entry := range m.entries {
		if entry.Status == StatusVoided {
			continue
		}
		entries = append(entries, entry)
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].Position < entries[j].Position })
	for _, entry := range entries {
		for _, line := range entry.Lines {
			if line.AccountID == accountID {
				lines = append(lines, line)
			}
		}
	}
	return lines, nil
}

func (m *memStore) LineTotals(_ context.Context) (decimal.Decimal, decimal.Decimal, error) {
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

// tamper rewrites a stored entry directly, bypassing the ledger.
func (m *memStore) tamper(id string, mutate func(*JournalEntry)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	entry := m.entries[id]
	mutate(&entry)
	m.entries[id] = entry
}

type staticConfirmer struct {
	signedBy string
	known    map[string]bool
}

func (c *staticConfirmer) ConfirmSignature(_ context.Context, signatureID string) (string, bool) {
	if c.known[signatureID] {
		delete(c.known, signatureID)
		return c.signedBy, true
	}
	return "", false
}

func newTestLedger(t *testing.T) (*Ledger, *memStore) {
	t.Helper()
	store := newMemStore()
	ledger := New(store, nil)

	ctx := context.Background()
	for id, accountType := range map[string]string{
		"acct-cash":    "ASSET",
		"acct-revenue": "REVENUE",
		"acct-expense": "EXPENSE",
	} {
		_, err := ledger.CreateAccount(ctx, CreateAccountInput{
			ID: id, Name: id, Type: accountType, Currency: "USD",
		})
		if err != nil {
			t.Fatalf("create account %s: %v", id, err)
		}
	}
	return ledger, store
}

func balancedInput(id string, amount string) EntryInput {
	value := decimal.RequireFromString(amount)
	return EntryInput{
		ID:          id,
		Description: "sale",
		Lines: []JournalLine{
			{AccountID: "acct-cash", Debit: value},
			{AccountID: "acct-revenue", Credit: value},
		},
	}
}

func TestPostEntryExtendsChain(t *testing.T) {
	ledger, _ := newTestLedger(t)
	ctx := context.Background()

	first, err := ledger.PostEntry(ctx, balancedInput("entry-1", "100.0000"))
	if err != nil {
		t.Fatalf("post first: %v", err)
	}
	if first.Position != 1 {
		t.Fatalf("position = %d, want 1", first.Position)
	}
	if first.PreviousHash != GenesisHash {
		t.Fatalf("previous hash = %q, want genesis", first.PreviousHash)
	}
	if first.Status != StatusPending {
		t.Fatalf("status = %q, want PENDING", first.Status)
	}
	if ComputeEntryHash(first) != first.EntryHash {
		t.Fatal("entry hash must match its own recomputation")
	}

	second, err := ledger.PostEntry(ctx, balancedInput("entry-2", "50.0000"))
	if err != nil {
		t.Fatalf("post second: %v", err)
	}
	if second.Position != 2 {
		t.Fatalf("position = %d, want 2", second.Position)
	}
	if second.PreviousHash != first.EntryHash {
		t.Fatal("second entry must chain off the first entry's hash")
	}

	if err := ledger.VerifyChain(ctx); err != nil {
		t.Fatalf("verify chain: %v", err)
	}
}

func TestPostEntryRejectsUnbalanced(t *testing.T) {
	ledger, _ := newTestLedger(t)

	input := EntryInput{
		ID: "entry-bad",
		Lines: []JournalLine{
			{AccountID: "acct-cash", Debit: decimal.RequireFromString("100.0000")},
			{AccountID: "acct-revenue", Credit: decimal.RequireFromString("99.9999")},
		},
	}
	_, err := ledger.PostEntry(context.Background(), input)
	if errors.CodeOf(err) != errors.CodeLedgerUnbalanced {
		t.Fatalf("code = %v, want CodeLedgerUnbalanced", errors.CodeOf(err))
	}
}

func TestPostEntryValidation(t *testing.T) {
	ledger, _ := newTestLedger(t)
	ctx := context.Background()
	amount := decimal.RequireFromString("10")

	cases := []struct {
		name  string
		input EntryInput
		code  errors.Code
	}{
		{
			"missing id",
			EntryInput{Lines: []JournalLine{
				{AccountID: "acct-cash", Debit: amount},
				{AccountID: "acct-revenue", Credit: amount},
			}},
			errors.CodeLedgerInvalidEntry,
		},
		{
			"single line",
			EntryInput{ID: "e", Lines: []JournalLine{
				{AccountID: "acct-cash", Debit: amount},
			}},
			errors.CodeLedgerInvalidEntry,
		},
		{
			"negative amount",
			EntryInput{ID: "e", Lines: []JournalLine{
				{AccountID: "acct-cash", Debit: amount.Neg()},
				{AccountID: "acct-revenue", Credit: amount.Neg()},
			}},
			errors.CodeLedgerInvalidEntry,
		},
		{
			"debit and credit on one line",
			EntryInput{ID: "e", Lines: []JournalLine{
				{AccountID: "acct-cash", Debit: amount, Credit: amount},
				{AccountID: "acct-revenue", Credit: decimal.Zero},
			}},
			errors.CodeLedgerInvalidEntry,
		},
		{
			"unknown account",
			EntryInput{ID: "e", Lines: []JournalLine{
				{AccountID: "acct-nope", Debit: amount},
				{AccountID: "acct-revenue", Credit: amount},
			}},
			errors.CodeLedgerUnknownAccount,
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := ledger.PostEntry(ctx, tc.input)
			if errors.CodeOf(err) != tc.code {
				t.Fatalf("code = %v, want %v", errors.CodeOf(err), tc.code)
			}
		})
	}
}

func TestPostEntryRejectsDuplicateID(t *testing.T) {
	ledger, _ := newTestLedger(t)
	ctx := context.Background()

	if _, err := ledger.PostEntry(ctx, balancedInput("entry-1", "100")); err != nil {
		t.Fatalf("post: %v", err)
	}
	_, err := ledger.PostEntry(ctx, balancedInput("entry-1", "100"))
	if errors.CodeOf(err) != errors.CodeLedgerDuplicateID {
		t.Fatalf("code = %v, want CodeLedgerDuplicateID", errors.CodeOf(err))
	}
}

func TestPostEntryRejectsInactiveAccount(t *testing.T) {
	ledger, _ := newTestLedger(t)
	ctx := context.Background()

	if err := ledger.DeactivateAccount(ctx, "acct-cash"); err != nil {
		t.Fatalf("deactivate: %v", err)
	}
	_, err := ledger.PostEntry(ctx, balancedInput("entry-1", "100"))
	if errors.CodeOf(err) != errors.CodeLedgerUnknownAccount {
		t.Fatalf("code = %v, want CodeLedgerUnknownAccount for inactive account", errors.CodeOf(err))
	}
}

func TestPostEntryQuantizesAmounts(t *testing.T) {
	ledger, _ := newTestLedger(t)
	ctx := context.Background()

	// Both sides quantize to 100.0000 at scale 4, so the entry balances.
	input := EntryInput{
		ID: "entry-1",
		Lines: []JournalLine{
			{AccountID: "acct-cash", Debit: decimal.RequireFromString("100.00002")},
			{AccountID: "acct-revenue", Credit: decimal.RequireFromString("99.99998")},
		},
	}
	entry, err := ledger.PostEntry(ctx, input)
	if err != nil {
		t.Fatalf("post: %v", err)
	}
	if FormatAmount(entry.Lines[0].Debit) != "100.0000" {
		t.Fatalf("debit = %s, want 100.0000", FormatAmount(entry.Lines[0].Debit))
	}
	if FormatAmount(entry.Lines[1].Credit) != "100.0000" {
		t.Fatalf("credit = %s, want 100.0000", FormatAmount(entry.Lines[1].Credit))
	}
}

func TestPostEntrySignedWhenConfirmed(t *testing.T) {
	store := newMemStore()
	confirmer := &staticConfirmer{
		signedBy: "user-1",
		known:    map[string]bool{"sig-1": true},
	}
	ledger := New(store, confirmer)
	ctx := context.Background()

	for id, accountType := range map[string]string{"acct-cash": "ASSET", "acct-revenue": "REVENUE"} {
		if _, err := ledger.CreateAccount(ctx, CreateAccountInput{ID: id, Name: id, Type: accountType, Currency: "USD"}); err != nil {
			t.Fatalf("create account: %v", err)
		}
	}

	input := balancedInput("entry-1", "100")
	input.SignatureID = "sig-1"
	entry, err := ledger.PostEntry(ctx, input)
	if err != nil {
		t.Fatalf("post: %v", err)
	}
	if entry.Status != StatusSigned {
		t.Fatalf("status = %q, want SIGNED", entry.Status)
	}
	if entry.SignedByUserID != "user-1" {
		t.Fatalf("signed by = %q, want user-1", entry.SignedByUserID)
	}
	if entry.SignedAt == nil {
		t.Fatal("signed entry must record signed_at")
	}

	// An unconfirmed reference commits as PENDING.
	input = balancedInput("entry-2", "100")
	input.SignatureID = "sig-1"
	entry, err = ledger.PostEntry(ctx, input)
	if err != nil {
		t.Fatalf("post second: %v", err)
	}
	if entry.Status != StatusPending {
		t.Fatalf("status = %q, want PENDING for reused signature", entry.Status)
	}
}

func TestVerifyChainDetectsTampering(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*JournalEntry)
	}{
		{"description", func(entry *JournalEntry) {
			entry.Description = "doctored"
		}},
		{"debit amount", func(entry *JournalEntry) {
			entry.Lines[0].Debit = decimal.RequireFromString("999.0000")
		}},
		{"credit amount", func(entry *JournalEntry) {
			entry.Lines[1].Credit = decimal.RequireFromString("0.0001")
		}},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			ledger, store := newTestLedger(t)
			ctx := context.Background()

			for _, id := range []string{"entry-1", "entry-2", "entry-3"} {
				if _, err := ledger.PostEntry(ctx, balancedInput(id, "100")); err != nil {
					t.Fatalf("post %s: %v", id, err)
				}
			}
			if err := ledger.VerifyChain(ctx); err != nil {
				t.Fatalf("verify clean chain: %v", err)
			}

			store.tamper("entry-2", tc.mutate)

			err := ledger.VerifyChain(ctx)
			if errors.CodeOf(err) != errors.CodeIntegrityViolation {
				t.Fatalf("code = %v, want CodeIntegrityViolation", errors.CodeOf(err))
			}
		})
	}
}

func TestVerifyChainDetectsBrokenLinkage(t *testing.T) {
	ledger, store := newTestLedger(t)
	ctx := context.Background()

	for _, id := range []string{"entry-1", "entry-2"} {
		if _, err := ledger.PostEntry(ctx, balancedInput(id, "100")); err != nil {
			t.Fatalf("post %s: %v", id, err)
		}
	}

	// Rewrite entry-1 consistently with its own hash; entry-2's previous
	// hash no longer matches.
	store.tamper("entry-1", func(entry *JournalEntry) {
		entry.Description = "doctored"
		entry.EntryHash = ComputeEntryHash(*entry)
	})

	err := ledger.VerifyChain(ctx)
	if errors.CodeOf(err) != errors.CodeIntegrityViolation {
		t.Fatalf("code = %v, want CodeIntegrityViolation", errors.CodeOf(err))
	}
}

func TestStatusTransitions(t *testing.T) {
	ledger, _ := newTestLedger(t)
	ctx := context.Background()

	if _, err := ledger.PostEntry(ctx, balancedInput("entry-1", "100")); err != nil {
		t.Fatalf("post: %v", err)
	}

	entry, err := ledger.MarkExecuted(ctx, "entry-1")
	if err != nil {
		t.Fatalf("mark executed: %v", err)
	}
	if entry.Status != StatusExecuted {
		t.Fatalf("status = %q, want EXECUTED", entry.Status)
	}

	// Executed entries can never be voided.
	_, err = ledger.VoidEntry(ctx, "entry-1", "too late")
	if errors.CodeOf(err) != errors.CodeLedgerInvalidTransition {
		t.Fatalf("code = %v, want CodeLedgerInvalidTransition", errors.CodeOf(err))
	}

	entry, err = ledger.MarkReconciled(ctx, "entry-1")
	if err != nil {
		t.Fatalf("mark reconciled: %v", err)
	}
	if entry.Status != StatusReconciled {
		t.Fatalf("status = %q, want RECONCILED", entry.Status)
	}

	// Reconciled is terminal.
	if _, err := ledger.MarkExecuted(ctx, "entry-1"); errors.CodeOf(err) != errors.CodeLedgerInvalidTransition {
		t.Fatalf("expected terminal status, got %v", err)
	}
}

func TestVoidEntryKeepsHashChain(t *testing.T) {
	ledger, _ := newTestLedger(t)
	ctx := context.Background()

	if _, err := ledger.PostEntry(ctx, balancedInput("entry-1", "100")); err != nil {
		t.Fatalf("post: %v", err)
	}
	if _, err := ledger.PostEntry(ctx, balancedInput("entry-2", "50")); err != nil {
		t.Fatalf("post: %v", err)
	}

	entry, err := ledger.VoidEntry(ctx, "entry-1", "duplicate charge")
	if err != nil {
		t.Fatalf("void: %v", err)
	}
	if entry.Status != StatusVoided || entry.VoidReason != "duplicate charge" {
		t.Fatalf("unexpected void fields: %+v", entry)
	}

	// Voiding flips status only; the chain still verifies because the hash
	// covers the immutable fields.
	if err := ledger.VerifyChain(ctx); err != nil {
		t.Fatalf("verify chain after void: %v", err)
	}
}

func TestAccountBalanceNormalSides(t *testing.T) {
	ledger, _ := newTestLedger(t)
	ctx := context.Background()

	if _, err := ledger.PostEntry(ctx, balancedInput("entry-1", "100")); err != nil {
		t.Fatalf("post: %v", err)
	}
	expense := EntryInput{
		ID: "entry-2",
		Lines: []JournalLine{
			{AccountID: "acct-expense", Debit: decimal.RequireFromString("30")},
			{AccountID: "acct-cash", Credit: decimal.RequireFromString("30")},
		},
	}
	if _, err := ledger.PostEntry(ctx, expense); err != nil {
		t.Fatalf("post expense: %v", err)
	}

	cash, err := ledger.AccountBalance(ctx, "acct-cash")
	if err != nil {
		t.Fatalf("cash balance: %v", err)
	}
	if FormatAmount(cash.Net) != "70.0000" {
		t.Fatalf("cash net = %s, want 70.0000", FormatAmount(cash.Net))
	}

	revenue, err := ledger.AccountBalance(ctx, "acct-revenue")
	if err != nil {
		t.Fatalf("revenue balance: %v", err)
	}
	if FormatAmount(revenue.Net) != "100.0000" {
		t.Fatalf("revenue net = %s, want credit-normal 100.0000", FormatAmount(revenue.Net))
	}
}

func TestAccountBalanceExcludesVoided(t *testing.T) {
	ledger, _ := newTestLedger(t)
	ctx := context.Background()

	if _, err := ledger.PostEntry(ctx, balancedInput("entry-1", "100")); err != nil {
		t.Fatalf("post: %v", err)
	}
	if _, err := ledger.PostEntry(ctx, balancedInput("entry-2", "40")); err != nil {
		t.Fatalf("post: %v", err)
	}
	if _, err := ledger.VoidEntry(ctx, "entry-2", "mistake"); err != nil {
		t.Fatalf("void: %v", err)
	}

	balance, err := ledger.AccountBalance(ctx, "acct-cash")
	if err != nil {
		t.Fatalf("balance: %v", err)
	}
	if FormatAmount(balance.Net) != "100.0000" {
		t.Fatalf("net = %s, want voided entry excluded", FormatAmount(balance.Net))
	}
}

func TestCreateAccountValidation(t *testing.T) {
	ledger, _ := newTestLedger(t)
	ctx := context.Background()

	cases := []struct {
		name  string
		input CreateAccountInput
		code  errors.Code
	}{
		{"duplicate id", CreateAccountInput{ID: "acct-cash", Name: "x", Type: "ASSET", Currency: "USD"}, errors.CodeAccountDuplicateID},
		{"bad type", CreateAccountInput{Name: "x", Type: "WEIRD", Currency: "USD"}, errors.CodeAccountInvalidType},
		{"bad currency", CreateAccountInput{Name: "x", Type: "ASSET", Currency: "DOLLARS"}, errors.CodeAccountInvalidCurrency},
		{"unknown parent", CreateAccountInput{Name: "x", Type: "ASSET", Currency: "USD", ParentID: "ghost"}, errors.CodeAccountUnknownParent},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := ledger.CreateAccount(ctx, tc.input)
			if errors.CodeOf(err) != tc.code {
				t.Fatalf("code = %v, want %v", errors.CodeOf(err), tc.code)
			}
		})
	}
}

func TestCreateAccountRejectsParentCycle(t *testing.T) {
	ledger, store := newTestLedger(t)
	ctx := context.Background()

	// Force a pre-existing cycle in storage, then try to hang a child off it.
	store.PutAccount(ctx, Account{ID: "a", Name: "a", Type: AccountTypeAsset, ParentID: "b", Currency: "USD", IsActive: true, CreatedAt: time.Now().UTC()})
	store.PutAccount(ctx, Account{ID: "b", Name: "b", Type: AccountTypeAsset, ParentID: "a", Currency: "USD", IsActive: true, CreatedAt: time.Now().UTC()})

	_, err := ledger.CreateAccount(ctx, CreateAccountInput{Name: "c", Type: "ASSET", Currency: "USD", ParentID: "a"})
	if errors.CodeOf(err) != errors.CodeAccountParentCycle {
		t.Fatalf("code = %v, want CodeAccountParentCycle", errors.CodeOf(err))
	}
}

func TestOnCommitHooks(t *testing.T) {
	ledger, _ := newTestLedger(t)
	ctx := context.Background()

	var committed []string
	ledger.OnCommit(func(entry JournalEntry) {
		committed = append(committed, entry.ID)
	})

	if _, err := ledger.PostEntry(ctx, balancedInput("entry-1", "100")); err != nil {
		t.Fatalf("post: %v", err)
	}
	if _, err := ledger.PostEntry(ctx, balancedInput("entry-2", "50")); err != nil {
		t.Fatalf("post: %v", err)
	}
	if len(committed) != 2 || committed[0] != "entry-1" || committed[1] != "entry-2" {
		t.Fatalf("committed = %v", committed)
	}
}

func TestOnAccountCommitHooks(t *testing.T) {
	ledger, _ := newTestLedger(t)
	ctx := context.Background()

	var created []string
	ledger.OnAccountCommit(func(account Account) {
		created = append(created, account.ID)
	})

	if _, err := ledger.CreateAccount(ctx, CreateAccountInput{
		ID: "acct-fees", Name: "Fees", Type: "EXPENSE", Currency: "USD",
	}); err != nil {
		t.Fatalf("create: %v", err)
	}
	if len(created) != 1 || created[0] != "acct-fees" {
		t.Fatalf("created = %v", created)
	}

	// A rejected account must not notify.
	if _, err := ledger.CreateAccount(ctx, CreateAccountInput{
		ID: "acct-fees", Name: "Fees", Type: "EXPENSE", Currency: "USD",
	}); err == nil {
		t.Fatal("expected duplicate id rejection")
	}
	if len(created) != 1 {
		t.Fatalf("created = %v after rejected create", created)
	}
}

func TestCanTransitionTable(t *testing.T) {
	cases := []struct {
		from, to EntryStatus
		want     bool
	}{
		{StatusPending, StatusSigned, true},
		{StatusPending, StatusExecuted, true},
		{StatusPending, StatusVoided, true},
		{StatusPending, StatusReconciled, false},
		{StatusSigned, StatusExecuted, true},
		{StatusSigned, StatusVoided, true},
		{StatusExecuted, StatusReconciled, true},
		{StatusExecuted, StatusVoided, false},
		{StatusReconciled, StatusExecuted, false},
		{StatusVoided, StatusPending, false},
	}
	for _, tc := range cases {
		if got := CanTransition(tc.from, tc.to); got != tc.want {
			t.Fatalf("CanTransition(%s, %s) = %v, want %v", tc.from, tc.to, got, tc.want)
		}
	}
}

func TestQuantizeAndFormat(t *testing.T) {
	cases := []struct {
		raw  string
		want string
	}{
		{"100", "100.0000"},
		{"100.00005", "100.0001"},
		{"100.00004", "100.0000"},
		{"0.12345", "0.1235"},
		{"-1.00005", "-1.0001"},
	}
	for _, tc := range cases {
		if got := FormatAmount(decimal.RequireFromString(tc.raw)); got != tc.want {
			t.Fatalf("FormatAmount(%s) = %s, want %s", tc.raw, got, tc.want)
		}
	}
}

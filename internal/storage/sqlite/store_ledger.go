package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/outpost-fi/sovereign/internal/ledger"
	"github.com/outpost-fi/sovereign/internal/storage"
)

// PutAccount persists one ledger account.
func (s *Store) PutAccount(ctx context.Context, account ledger.Account) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if s == nil || s.sqlDB == nil {
		return fmt.Errorf("storage is not configured")
	}
	if strings.TrimSpace(account.ID) == "" {
		return fmt.Errorf("account id is required")
	}

	active := 0
	if account.IsActive {
		active = 1
	}
	_, err := s.sqlDB.ExecContext(ctx, `
INSERT INTO accounts (id, name, account_type, parent_id, currency, is_active, created_at)
VALUES (?, ?, ?, ?, ?, ?, ?)
ON CONFLICT(id) DO UPDATE SET
	name = excluded.name,
	is_active = excluded.is_active
`,
		account.ID,
		account.Name,
		string(account.Type),
		account.ParentID,
		account.Currency,
		active,
		toMillis(account.CreatedAt),
	)
	if err != nil {
		return fmt.Errorf("put account: %w", err)
	}
	return nil
}

// GetAccount fetches one account by id.
func (s *Store) GetAccount(ctx context.Context, id string) (ledger.Account, error) {
	if err := ctx.Err(); err != nil {
		return ledger.Account{}, err
	}
	if s == nil || s.sqlDB == nil {
		return ledger.Account{}, fmt.Errorf("storage is not configured")
	}

	row := s.sqlDB.QueryRowContext(ctx, `
SELECT id, name, account_type, parent_id, currency, is_active, created_at
FROM accounts
WHERE id = ?
`, id)
	account, err := scanAccount(row.Scan)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return ledger.Account{}, storage.ErrNotFound
		}
		return ledger.Account{}, fmt.Errorf("get account: %w", err)
	}
	return account, nil
}

// ListAccounts returns the chart of accounts ordered by creation.
func (s *Store) ListAccounts(ctx context.Context) ([]ledger.Account, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if s == nil || s.sqlDB == nil {
		return nil, fmt.Errorf("storage is not configured")
	}

	rows, err := s.sqlDB.QueryContext(ctx, `
SELECT id, name, account_type, parent_id, currency, is_active, created_at
FROM accounts
ORDER BY created_at, id
`)
	if err != nil {
		return nil, fmt.Errorf("list accounts: %w", err)
	}
	defer rows.Close()

	var accounts []ledger.Account
	for rows.Next() {
		account, err := scanAccount(rows.Scan)
		if err != nil {
			return nil, fmt.Errorf("scan account: %w", err)
		}
		accounts = append(accounts, account)
	}
	return accounts, rows.Err()
}

// SetAccountActive flips the is_active flag.
func (s *Store) SetAccountActive(ctx context.Context, id string, active bool) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if s == nil || s.sqlDB == nil {
		return fmt.Errorf("storage is not configured")
	}

	value := 0
	if active {
		value = 1
	}
	result, err := s.sqlDB.ExecContext(ctx, `UPDATE accounts SET is_active = ? WHERE id = ?`, value, id)
	if err != nil {
		return fmt.Errorf("set account active: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("set account active: %w", err)
	}
	if affected == 0 {
		return storage.ErrNotFound
	}
	return nil
}

// AppendEntry writes one journal entry and its lines atomically. The
// PRIMARY KEY on id and UNIQUE on position back the append-only guarantee.
func (s *Store) AppendEntry(ctx context.Context, entry ledger.JournalEntry) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if s == nil || s.sqlDB == nil {
		return fmt.Errorf("storage is not configured")
	}
	if strings.TrimSpace(entry.ID) == "" {
		return fmt.Errorf("entry id is required")
	}

	tx, err := s.sqlDB.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin append: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	var signedAt sql.NullInt64
	if entry.SignedAt != nil {
		signedAt = sql.NullInt64{Int64: toMillis(*entry.SignedAt), Valid: true}
	}

	if _, err := tx.ExecContext(ctx, `
INSERT INTO journal_entries (
	id, position, ts, description, status,
	previous_hash, entry_hash, signature_id,
	signed_by_user_id, signed_at, created_by_agent, void_reason
) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
`,
		entry.ID,
		entry.Position,
		toMillis(entry.Timestamp),
		entry.Description,
		string(entry.Status),
		entry.PreviousHash,
		entry.EntryHash,
		entry.SignatureID,
		entry.SignedByUserID,
		signedAt,
		entry.CreatedByAgent,
		entry.VoidReason,
	); err != nil {
		return fmt.Errorf("insert entry: %w", err)
	}

	for i, line := range entry.Lines {
		if _, err := tx.ExecContext(ctx, `
INSERT INTO journal_lines (entry_id, line_index, account_id, debit, credit, memo)
VALUES (?, ?, ?, ?, ?, ?)
`,
			entry.ID,
			i,
			line.AccountID,
			ledger.FormatAmount(line.Debit),
			ledger.FormatAmount(line.Credit),
			line.Memo,
		); err != nil {
			return fmt.Errorf("insert line %d: %w", i, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit append: %w", err)
	}
	return nil
}

// GetEntry fetches one journal entry with its lines.
func (s *Store) GetEntry(ctx context.Context, id string) (ledger.JournalEntry, error) {
	if err := ctx.Err(); err != nil {
		return ledger.JournalEntry{}, err
	}
	if s == nil || s.sqlDB == nil {
		return ledger.JournalEntry{}, fmt.Errorf("storage is not configured")
	}

	row := s.sqlDB.QueryRowContext(ctx, entrySelect+` WHERE id = ?`, id)
	entry, err := scanEntry(row.Scan)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return ledger.JournalEntry{}, storage.ErrNotFound
		}
		return ledger.JournalEntry{}, fmt.Errorf("get entry: %w", err)
	}

	if err := s.attachLines(ctx, &entry); err != nil {
		return ledger.JournalEntry{}, err
	}
	return entry, nil
}

// ListEntries pages through the journal in chain order.
func (s *Store) ListEntries(ctx context.Context, afterPosition uint64, limit int) ([]ledger.JournalEntry, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if s == nil || s.sqlDB == nil {
		return nil, fmt.Errorf("storage is not configured")
	}
	if limit <= 0 {
		return nil, fmt.Errorf("limit must be greater than zero")
	}

	rows, err := s.sqlDB.QueryContext(ctx, entrySelect+`
 WHERE position > ?
 ORDER BY position
 LIMIT ?`, afterPosition, limit)
	if err != nil {
		return nil, fmt.Errorf("list entries: %w", err)
	}
	defer rows.Close()

	var entries []ledger.JournalEntry
	for rows.Next() {
		entry, err := scanEntry(rows.Scan)
		if err != nil {
			return nil, fmt.Errorf("scan entry: %w", err)
		}
		entries = append(entries, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for i := range entries {
		if err := s.attachLines(ctx, &entries[i]); err != nil {
			return nil, err
		}
	}
	return entries, nil
}

// TailEntry returns the entry at the highest chain position.
func (s *Store) TailEntry(ctx context.Context) (ledger.JournalEntry, error) {
	if err := ctx.Err(); err != nil {
		return ledger.JournalEntry{}, err
	}
	if s == nil || s.sqlDB == nil {
		return ledger.JournalEntry{}, fmt.Errorf("storage is not configured")
	}

	row := s.sqlDB.QueryRowContext(ctx, entrySelect+` ORDER BY position DESC LIMIT 1`)
	entry, err := scanEntry(row.Scan)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return ledger.JournalEntry{}, storage.ErrNotFound
		}
		return ledger.JournalEntry{}, fmt.Errorf("tail entry: %w", err)
	}

	if err := s.attachLines(ctx, &entry); err != nil {
		return ledger.JournalEntry{}, err
	}
	return entry, nil
}

// UpdateEntryStatus flips an entry's lifecycle status. All other columns are
// immutable after append.
func (s *Store) UpdateEntryStatus(ctx context.Context, id string, status ledger.EntryStatus, voidReason string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if s == nil || s.sqlDB == nil {
		return fmt.Errorf("storage is not configured")
	}

	result, err := s.sqlDB.ExecContext(ctx,
		`UPDATE journal_entries SET status = ?, void_reason = ? WHERE id = ?`,
		string(status), voidReason, id)
	if err != nil {
		return fmt.Errorf("update entry status: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("update entry status: %w", err)
	}
	if affected == 0 {
		return storage.ErrNotFound
	}
	return nil
}

// CountAccounts counts accounts for reconciliation.
func (s *Store) CountAccounts(ctx context.Context) (int64, error) {
	return s.countRows(ctx, "accounts")
}

// CountEntries counts journal entries for reconciliation.
func (s *Store) CountEntries(ctx context.Context) (int64, error) {
	return s.countRows(ctx, "journal_entries")
}

func (s *Store) countRows(ctx context.Context, table string) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	if s == nil || s.sqlDB == nil {
		return 0, fmt.Errorf("storage is not configured")
	}
	var count int64
	if err := s.sqlDB.QueryRowContext(ctx, `SELECT COUNT(*) FROM `+table).Scan(&count); err != nil {
		return 0, fmt.Errorf("count %s: %w", table, err)
	}
	return count, nil
}

// AccountActivity returns all lines touching an account, excluding voided
// entries.
func (s *Store) AccountActivity(ctx context.Context, accountID string) ([]ledger.JournalLine, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if s == nil || s.sqlDB == nil {
		return nil, fmt.Errorf("storage is not configured")
	}

	rows, err := s.sqlDB.QueryContext(ctx, `
SELECT l.account_id, l.debit, l.credit, l.memo
FROM journal_lines l
JOIN journal_entries e ON e.id = l.entry_id
WHERE l.account_id = ? AND e.status != ?
ORDER BY e.position, l.line_index
`, accountID, string(ledger.StatusVoided))
	if err != nil {
		return nil, fmt.Errorf("account activity: %w", err)
	}
	defer rows.Close()

	return scanLines(rows)
}

// LineTotals sums debits and credits across the whole journal. Amounts are
// stored as fixed-point strings, so summation happens in decimal space.
func (s *Store) LineTotals(ctx context.Context) (decimal.Decimal, decimal.Decimal, error) {
	if err := ctx.Err(); err != nil {
		return decimal.Zero, decimal.Zero, err
	}
	if s == nil || s.sqlDB == nil {
		return decimal.Zero, decimal.Zero, fmt.Errorf("storage is not configured")
	}

	rows, err := s.sqlDB.QueryContext(ctx, `SELECT account_id, debit, credit, memo FROM journal_lines`)
	if err != nil {
		return decimal.Zero, decimal.Zero, fmt.Errorf("line totals: %w", err)
	}
	defer rows.Close()

	lines, err := scanLines(rows)
	if err != nil {
		return decimal.Zero, decimal.Zero, err
	}

	debits := decimal.Zero
	credits := decimal.Zero
	for _, line := range lines {
		debits = debits.Add(line.Debit)
		credits = credits.Add(line.Credit)
	}
	return debits, credits, nil
}

const entrySelect = `
SELECT id, position, ts, description, status,
	previous_hash, entry_hash, signature_id,
	signed_by_user_id, signed_at, created_by_agent, void_reason
FROM journal_entries`

func scanEntry(scan func(...any) error) (ledger.JournalEntry, error) {
	var entry ledger.JournalEntry
	var ts int64
	var status string
	var signedAt sql.NullInt64
	if err := scan(
		&entry.ID,
		&entry.Position,
		&ts,
		&entry.Description,
		&status,
		&entry.PreviousHash,
		&entry.EntryHash,
		&entry.SignatureID,
		&entry.SignedByUserID,
		&signedAt,
		&entry.CreatedByAgent,
		&entry.VoidReason,
	); err != nil {
		return ledger.JournalEntry{}, err
	}
	entry.Timestamp = fromMillis(ts)
	entry.Status = ledger.EntryStatus(status)
	if signedAt.Valid {
		value := fromMillis(signedAt.Int64)
		entry.SignedAt = &value
	}
	return entry, nil
}

func scanAccount(scan func(...any) error) (ledger.Account, error) {
	var account ledger.Account
	var accountType string
	var active int
	var createdAt int64
	if err := scan(
		&account.ID,
		&account.Name,
		&accountType,
		&account.ParentID,
		&account.Currency,
		&active,
		&createdAt,
	); err != nil {
		return ledger.Account{}, err
	}
	account.Type = ledger.AccountType(accountType)
	account.IsActive = active != 0
	account.CreatedAt = fromMillis(createdAt)
	return account, nil
}

func scanLines(rows *sql.Rows) ([]ledger.JournalLine, error) {
	var lines []ledger.JournalLine
	for rows.Next() {
		var line ledger.JournalLine
		var debit, credit string
		if err := rows.Scan(&line.AccountID, &debit, &credit, &line.Memo); err != nil {
			return nil, fmt.Errorf("scan line: %w", err)
		}
		parsedDebit, err := decimal.NewFromString(debit)
		if err != nil {
			return nil, fmt.Errorf("parse debit %q: %w", debit, err)
		}
		parsedCredit, err := decimal.NewFromString(credit)
		if err != nil {
			return nil, fmt.Errorf("parse credit %q: %w", credit, err)
		}
		line.Debit = parsedDebit
		line.Credit = parsedCredit
		lines = append(lines, line)
	}
	return lines, rows.Err()
}

func (s *Store) attachLines(ctx context.Context, entry *ledger.JournalEntry) error {
	rows, err := s.sqlDB.QueryContext(ctx, `
SELECT account_id, debit, credit, memo
FROM journal_lines
WHERE entry_id = ?
ORDER BY line_index
`, entry.ID)
	if err != nil {
		return fmt.Errorf("load lines: %w", err)
	}
	defer rows.Close()

	lines, err := scanLines(rows)
	if err != nil {
		return err
	}
	entry.Lines = lines
	return nil
}

package ledger

import (
	"strings"
	"time"

	"github.com/outpost-fi/sovereign/internal/platform/errors"
)

// AccountType classifies a ledger account.
type AccountType string

const (
	AccountTypeAsset     AccountType = "ASSET"
	AccountTypeLiability AccountType = "LIABILITY"
	AccountTypeEquity    AccountType = "EQUITY"
	AccountTypeRevenue   AccountType = "REVENUE"
	AccountTypeExpense   AccountType = "EXPENSE"
)

// ParseAccountType validates a raw account type value.
func ParseAccountType(raw string) (AccountType, bool) {
	switch AccountType(strings.ToUpper(strings.TrimSpace(raw))) {
	case AccountTypeAsset:
		return AccountTypeAsset, true
	case AccountTypeLiability:
		return AccountTypeLiability, true
	case AccountTypeEquity:
		return AccountTypeEquity, true
	case AccountTypeRevenue:
		return AccountTypeRevenue, true
	case AccountTypeExpense:
		return AccountTypeExpense, true
	default:
		return "", false
	}
}

// Account is a node in the chart of accounts. Accounts form a tree via
// ParentID and are immutable once referenced by a posted entry, except for
// IsActive.
type Account struct {
	ID        string
	Name      string
	Type      AccountType
	ParentID  string
	Currency  string
	IsActive  bool
	CreatedAt time.Time
}

// CreateAccountInput carries the caller-supplied fields for a new account.
type CreateAccountInput struct {
	ID       string
	Name     string
	Type     string
	ParentID string
	Currency string
}

// NewAccount validates and normalizes input into an Account. The clock and
// idgen seams keep construction deterministic in tests.
func NewAccount(input CreateAccountInput, clock func() time.Time, idgen func() (string, error)) (Account, error) {
	name := strings.TrimSpace(input.Name)
	if name == "" {
		return Account{}, errors.New(errors.CodeLedgerInvalidEntry, "account name is required")
	}

	accountType, ok := ParseAccountType(input.Type)
	if !ok {
		return Account{}, errors.WithMetadata(errors.CodeAccountInvalidType, "invalid account type", map[string]string{
			"type": input.Type,
		})
	}

	currency := strings.ToUpper(strings.TrimSpace(input.Currency))
	if len(currency) != 3 {
		return Account{}, errors.WithMetadata(errors.CodeAccountInvalidCurrency, "currency must be a 3-letter code", map[string]string{
			"currency": input.Currency,
		})
	}

	accountID := strings.TrimSpace(input.ID)
	if accountID == "" {
		generated, err := idgen()
		if err != nil {
			return Account{}, err
		}
		accountID = generated
	}

	return Account{
		ID:        accountID,
		Name:      name,
		Type:      accountType,
		ParentID:  strings.TrimSpace(input.ParentID),
		Currency:  currency,
		IsActive:  true,
		CreatedAt: clock().UTC(),
	}, nil
}

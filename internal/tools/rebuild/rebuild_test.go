package rebuild

import (
	"bytes"
	"context"
	"flag"
	"path/filepath"
	"strings"
	"testing"

	"github.com/shopspring/decimal"

	"github.com/outpost-fi/sovereign/internal/ledger"
	"github.com/outpost-fi/sovereign/internal/storage/sqlite"
)

func TestParseConfig_Defaults(t *testing.T) {
	fs := flag.NewFlagSet("rebuild", flag.ContinueOnError)

	cfg, err := ParseConfig(fs, nil)
	if err != nil {
		t.Fatalf("parse config: %v", err)
	}
	if cfg.DBPath != "data/sovereign.db" {
		t.Fatalf("db path = %q, want %q", cfg.DBPath, "data/sovereign.db")
	}
}

func TestRun_ReprojectsJournal(t *testing.T) {
	ctx := context.Background()
	dbPath := filepath.Join(t.TempDir(), "sovereign.db")

	store, err := sqlite.Open(dbPath)
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	ledgerService := ledger.New(store, nil)
	if _, err := ledgerService.CreateAccount(ctx, ledger.CreateAccountInput{
		ID: "acct-cash", Name: "Cash", Type: "ASSET", Currency: "USD",
	}); err != nil {
		t.Fatalf("create cash account: %v", err)
	}
	if _, err := ledgerService.CreateAccount(ctx, ledger.CreateAccountInput{
		ID: "acct-revenue", Name: "Revenue", Type: "REVENUE", Currency: "USD",
	}); err != nil {
		t.Fatalf("create revenue account: %v", err)
	}
	if _, err := ledgerService.PostEntry(ctx, ledger.EntryInput{
		ID:          "entry-1",
		Description: "initial sale",
		Lines: []ledger.JournalLine{
			{AccountID: "acct-cash", Debit: decimal.RequireFromString("100")},
			{AccountID: "acct-revenue", Credit: decimal.RequireFromString("100")},
		},
	}); err != nil {
		t.Fatalf("post entry: %v", err)
	}
	if err := store.Close(); err != nil {
		t.Fatalf("close store: %v", err)
	}

	var out bytes.Buffer
	if err := Run(ctx, Config{DBPath: dbPath}, &out); err != nil {
		t.Fatalf("run: %v", err)
	}

	printed := out.String()
	if !strings.Contains(printed, "reprojected 1 journal entries") {
		t.Fatalf("output missing reprojection count:\n%s", printed)
	}
	if !strings.Contains(printed, "synchronized") {
		t.Fatalf("output missing synchronized marker:\n%s", printed)
	}
}

func TestRun_RequiresOutput(t *testing.T) {
	if err := Run(context.Background(), Config{DBPath: "unused.db"}, nil); err == nil {
		t.Fatal("expected error for nil output")
	}
}

package store_test

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/rudransh-shrivastava/exchangelink/internal/db"
	"github.com/rudransh-shrivastava/exchangelink/internal/protocol"
	"github.com/rudransh-shrivastava/exchangelink/internal/store"
)

func setupTestDB(t *testing.T) (*store.PreferenceStore, *store.LogStore) {
	t.Helper()
	gdb, err := db.Open(filepath.Join(t.TempDir(), "test.sqlite3"))
	if err != nil {
		t.Fatalf("failed to open test db: %v", err)
	}
	t.Cleanup(func() { _ = db.Close(gdb) })
	return store.NewPreferenceStore(gdb), store.NewLogStore(gdb)
}

func TestPreferenceStore_EnsureLocalID(t *testing.T) {
	ps, _ := setupTestDB(t)
	ctx := context.Background()

	calls := 0
	gen := func() (string, error) {
		calls++
		return "EXAB12", nil
	}

	id, err := ps.EnsureLocalID(ctx, gen)
	if err != nil {
		t.Fatalf("EnsureLocalID failed: %v", err)
	}
	if id != "EXAB12" {
		t.Errorf("expected EXAB12, got %q", id)
	}

	id, err = ps.EnsureLocalID(ctx, gen)
	if err != nil || id != "EXAB12" {
		t.Errorf("expected stored id, got %q, %v", id, err)
	}
	if calls != 1 {
		t.Errorf("expected generator to run once, ran %d times", calls)
	}
}

func TestPreferenceStore_EnsureLocalID_GenerateError(t *testing.T) {
	ps, _ := setupTestDB(t)
	ctx := context.Background()

	boom := errors.New("no entropy")
	if _, err := ps.EnsureLocalID(ctx, func() (string, error) { return "", boom }); !errors.Is(err, boom) {
		t.Errorf("expected generator error, got %v", err)
	}

	id, err := ps.LocalID(ctx)
	if err != nil || id != "" {
		t.Errorf("expected no stored id, got %q, %v", id, err)
	}
}

func TestPreferenceStore_Role(t *testing.T) {
	ps, _ := setupTestDB(t)
	ctx := context.Background()

	role, err := ps.Role(ctx)
	if err != nil || role != "" {
		t.Fatalf("expected empty role, got %q, %v", role, err)
	}

	if err := ps.SetRole(ctx, protocol.RoleUSA); err != nil {
		t.Fatalf("SetRole failed: %v", err)
	}
	if err := ps.SetRole(ctx, protocol.RoleBitcoin); err != nil {
		t.Fatalf("SetRole overwrite failed: %v", err)
	}

	role, _ = ps.Role(ctx)
	if role != protocol.RoleBitcoin {
		t.Errorf("expected BITCOIN, got %q", role)
	}

	if err := ps.ClearRole(ctx); err != nil {
		t.Fatalf("ClearRole failed: %v", err)
	}
	role, _ = ps.Role(ctx)
	if role != "" {
		t.Errorf("expected cleared role, got %q", role)
	}
}

func TestPreferenceStore_PartnerID(t *testing.T) {
	ps, _ := setupTestDB(t)
	ctx := context.Background()

	if err := ps.SetPartnerID(ctx, "EXCD34"); err != nil {
		t.Fatalf("SetPartnerID failed: %v", err)
	}
	if id, _ := ps.PartnerID(ctx); id != "EXCD34" {
		t.Errorf("expected EXCD34, got %q", id)
	}

	if err := ps.ClearPartnerID(ctx); err != nil {
		t.Fatalf("ClearPartnerID failed: %v", err)
	}
	if id, _ := ps.PartnerID(ctx); id != "" {
		t.Errorf("expected cleared partner, got %q", id)
	}

	// Clearing twice is fine.
	if err := ps.ClearPartnerID(ctx); err != nil {
		t.Errorf("second ClearPartnerID failed: %v", err)
	}
}

func TestLogStore_RecentLogs(t *testing.T) {
	_, ls := setupTestDB(t)
	ctx := context.Background()

	for _, msg := range []string{"first", "second", "third"} {
		if _, err := ls.AddLog(ctx, protocol.RoleBitcoin, msg, db.LogSuccess); err != nil {
			t.Fatalf("AddLog failed: %v", err)
		}
	}
	failed, err := ls.AddLog(ctx, protocol.RoleBitcoin, "partner not found or offline", db.LogError)
	if err != nil {
		t.Fatalf("AddLog failed: %v", err)
	}
	if failed.ID == "" {
		t.Error("expected generated id")
	}

	logs, err := ls.RecentLogs(ctx, 2)
	if err != nil {
		t.Fatalf("RecentLogs failed: %v", err)
	}
	if len(logs) != 2 {
		t.Fatalf("expected 2 logs, got %d", len(logs))
	}
	if logs[0].Message != "partner not found or offline" || logs[0].Type != db.LogError {
		t.Errorf("expected newest entry first, got %+v", logs[0])
	}
	if logs[1].Message != "third" || logs[1].From != string(protocol.RoleBitcoin) {
		t.Errorf("unexpected second entry %+v", logs[1])
	}
}

package gate

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"bamwatch/internal/model"
	"bamwatch/internal/storage"
)

var testTime = time.Date(2026, 3, 14, 12, 0, 0, 0, time.UTC)

func newTestGate(t *testing.T) (*Gate, *storage.SQLite) {
	t.Helper()
	s, err := storage.NewSQLite(":memory:")
	if err != nil {
		t.Fatalf("new sqlite: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })

	g := New(s, slog.New(slog.NewTextHandler(io.Discard, nil)))
	g.SetNowFunc(func() time.Time { return testTime })
	return g, s
}

func TestNewItemGateOnceEver(t *testing.T) {
	ctx := context.Background()
	g, _ := newTestGate(t)

	if !g.ShouldNotify(ctx, "P1", model.ClassNewItem) {
		t.Fatal("unseen pid should be notifiable as new item")
	}

	g.RecordNotified(ctx, "P1")

	if g.ShouldNotify(ctx, "P1", model.ClassNewItem) {
		t.Error("pid in ledger must never be new again")
	}

	// Even on a later day, any ledger appearance suppresses new_item.
	g.SetNowFunc(func() time.Time { return testTime.AddDate(0, 0, 5) })
	if g.ShouldNotify(ctx, "P1", model.ClassNewItem) {
		t.Error("new_item is a once-ever gate, not a daily gate")
	}
}

func TestNewItemSuppressedByProductStore(t *testing.T) {
	ctx := context.Background()
	g, s := newTestGate(t)

	products := map[string]*model.Product{
		"P2": {PID: "P2", FirstSeen: testTime, LastCheck: testTime},
	}
	if err := s.SaveProducts(ctx, products); err != nil {
		t.Fatalf("save products: %v", err)
	}

	if g.ShouldNotify(ctx, "P2", model.ClassNewItem) {
		t.Error("pid already in the product store is not new")
	}
}

func TestStockChangeDailyDedup(t *testing.T) {
	ctx := context.Background()
	g, _ := newTestGate(t)

	if !g.ShouldNotify(ctx, "P3", model.ClassStockChange) {
		t.Fatal("first stock change of the day should notify")
	}
	g.RecordNotified(ctx, "P3")

	if g.ShouldNotify(ctx, "P3", model.ClassStockChange) {
		t.Error("second stock change on the same day must be suppressed")
	}

	// Next calendar day the pid is eligible again.
	g.SetNowFunc(func() time.Time { return testTime.AddDate(0, 0, 1) })
	if !g.ShouldNotify(ctx, "P3", model.ClassStockChange) {
		t.Error("stock change should be notifiable again the next day")
	}
}

func TestPruneExpired(t *testing.T) {
	ctx := context.Background()
	g, s := newTestGate(t)

	old := testTime.AddDate(0, 0, -31)
	recent := testTime.AddDate(0, 0, -29)
	if err := s.LedgerRecord(ctx, "OLD", old.Format("2006-01-02"), old); err != nil {
		t.Fatalf("record old: %v", err)
	}
	if err := s.LedgerRecord(ctx, "RECENT", recent.Format("2006-01-02"), recent); err != nil {
		t.Fatalf("record recent: %v", err)
	}
	// An entry with a mangled day key must be conservatively retained.
	if err := s.LedgerRecord(ctx, "WEIRD", "not-a-date", testTime); err != nil {
		t.Fatalf("record weird: %v", err)
	}

	removed := g.PruneExpired(ctx, 30)
	if removed != 1 {
		t.Fatalf("removed = %d, want 1", removed)
	}

	entries, err := s.LedgerEntries(ctx)
	if err != nil {
		t.Fatalf("ledger entries: %v", err)
	}
	got := make(map[string]bool)
	for _, e := range entries {
		got[e.PID] = true
	}
	if got["OLD"] {
		t.Error("31-day-old entry should have been pruned")
	}
	if !got["RECENT"] {
		t.Error("29-day-old entry must be retained")
	}
	if !got["WEIRD"] {
		t.Error("unparsable entry must be retained")
	}
}

// failingStore errors on every ledger read to exercise the notify bias.
type failingStore struct {
	storage.Storage
}

func (failingStore) LedgerHasPID(context.Context, string) (bool, error) {
	return false, errors.New("disk on fire")
}

func (failingStore) LedgerHasDay(context.Context, string, string) (bool, error) {
	return false, errors.New("disk on fire")
}

func TestLedgerErrorsBiasTowardNotifying(t *testing.T) {
	ctx := context.Background()
	g := New(failingStore{}, slog.New(slog.NewTextHandler(io.Discard, nil)))
	g.SetNowFunc(func() time.Time { return testTime })

	if !g.ShouldNotify(ctx, "P4", model.ClassNewItem) {
		t.Error("ledger failure must not silently drop a new-item alert")
	}
	if !g.ShouldNotify(ctx, "P4", model.ClassStockChange) {
		t.Error("ledger failure must not silently drop a stock-change alert")
	}
}

func TestUnknownClassDenied(t *testing.T) {
	g, _ := newTestGate(t)
	if g.ShouldNotify(context.Background(), "P5", model.NotificationClass("bogus")) {
		t.Error("unknown class must not notify")
	}
}

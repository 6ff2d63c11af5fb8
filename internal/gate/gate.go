// Package gate decides whether a classified change event may produce an
// outbound notification, and records firings in the persisted ledger so
// repeats are suppressed.
package gate

import (
	"context"
	"log/slog"
	"time"

	"bamwatch/internal/model"
	"bamwatch/internal/storage"
)

const dayLayout = "2006-01-02"

// DefaultRetentionDays is how long ledger entries are kept before pruning.
const DefaultRetentionDays = 30

// Gate filters notifications per product and calendar day.
//
// Suppression rules:
//   - new_item: once ever. Suppressed when the PID appears anywhere in the
//     ledger or already exists in the persisted product store.
//   - stock_change: once per (pid, calendar day), however many store-level
//     events occurred.
//
// Ledger I/O failures log and bias toward notifying: a duplicate alert is
// preferred over a silently dropped one.
type Gate struct {
	store storage.Storage
	now   func() time.Time
	log   *slog.Logger
}

// New creates a Gate over the given storage.
func New(store storage.Storage, log *slog.Logger) *Gate {
	return &Gate{store: store, now: time.Now, log: log}
}

// SetNowFunc overrides the clock (useful for testing).
func (g *Gate) SetNowFunc(fn func() time.Time) {
	g.now = fn
}

// ShouldNotify reports whether an event of the given class may fire for the
// PID right now.
func (g *Gate) ShouldNotify(ctx context.Context, pid string, class model.NotificationClass) bool {
	switch class {
	case model.ClassNewItem:
		ever, err := g.store.LedgerHasPID(ctx, pid)
		if err != nil {
			g.log.Error("check ledger", "pid", pid, "error", err)
			return true
		}
		if ever {
			return false
		}
		known, err := g.store.HasProduct(ctx, pid)
		if err != nil {
			g.log.Error("check product store", "pid", pid, "error", err)
			return true
		}
		return !known
	case model.ClassStockChange:
		notified, err := g.store.LedgerHasDay(ctx, pid, g.today())
		if err != nil {
			g.log.Error("check ledger", "pid", pid, "error", err)
			return true
		}
		return !notified
	default:
		g.log.Warn("unknown notification class", "class", string(class))
		return false
	}
}

// RecordNotified writes the (pid, today) ledger entry. It is called after a
// dispatch attempt regardless of the attempt's outcome: a transient webhook
// failure suppresses that day's notification rather than risking a retry
// storm. Persistence failure logs and proceeds.
func (g *Gate) RecordNotified(ctx context.Context, pid string) {
	if err := g.store.LedgerRecord(ctx, pid, g.today(), g.now().UTC()); err != nil {
		g.log.Error("record notified", "pid", pid, "error", err)
	}
}

// PruneExpired removes ledger entries older than the retention window and
// returns how many were removed. Entries whose day key cannot be parsed are
// conservatively retained.
func (g *Gate) PruneExpired(ctx context.Context, retentionDays int) int {
	entries, err := g.store.LedgerEntries(ctx)
	if err != nil {
		g.log.Error("list ledger entries", "error", err)
		return 0
	}

	cutoff := g.now().UTC().AddDate(0, 0, -retentionDays).Truncate(24 * time.Hour)
	removed := 0
	for _, e := range entries {
		day, err := time.Parse(dayLayout, e.Day)
		if err != nil {
			g.log.Warn("unparsable ledger day, keeping entry", "pid", e.PID, "day", e.Day)
			continue
		}
		if !day.Before(cutoff) {
			continue
		}
		if err := g.store.LedgerDelete(ctx, e.PID, e.Day); err != nil {
			g.log.Error("prune ledger entry", "pid", e.PID, "day", e.Day, "error", err)
			continue
		}
		removed++
	}
	return removed
}

func (g *Gate) today() string {
	return g.now().UTC().Format(dayLayout)
}

// Package storage defines the persistence interface and its implementations.
package storage

import (
	"context"
	"time"

	"bamwatch/internal/model"
)

// Storage is the interface for all persistence operations.
//
// Product access is whole-snapshot: LoadProducts at the start of a check
// cycle, SaveProducts at the checkpoint. The notification ledger and the
// cookie jar are row-level because they are written mid-cycle.
type Storage interface {
	LoadProducts(ctx context.Context) (map[string]*model.Product, error)
	SaveProducts(ctx context.Context, products map[string]*model.Product) error
	HasProduct(ctx context.Context, pid string) (bool, error)

	LedgerHasPID(ctx context.Context, pid string) (bool, error)
	LedgerHasDay(ctx context.Context, pid, day string) (bool, error)
	LedgerRecord(ctx context.Context, pid, day string, at time.Time) error
	LedgerEntries(ctx context.Context) ([]model.LedgerEntry, error)
	LedgerDelete(ctx context.Context, pid, day string) error

	SaveCookies(ctx context.Context, domain string, cookies map[string]string, at time.Time) error
	LoadCookies(ctx context.Context, domain string, maxAge time.Duration) (map[string]string, error)

	Close() error
}

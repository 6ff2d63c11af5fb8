package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"bamwatch/internal/model"
)

// JSONFile implements Storage with plain JSON snapshot files in a data
// directory, mirroring a file-per-concern layout: products.json,
// notified.json and cookies.json.
//
// A corrupt or unreadable file degrades to empty state with a logged
// warning; the monitor can always rebuild from upstream.
type JSONFile struct {
	dir string
	log *slog.Logger

	ledger  map[string]model.LedgerEntry // key pid|day
	cookies map[string]cookieJar
}

type cookieJar struct {
	SavedAt time.Time         `json:"saved_at"`
	Cookies map[string]string `json:"cookies"`
}

// NewJSONFile creates a JSON file store rooted at dir.
func NewJSONFile(dir string, log *slog.Logger) (*JSONFile, error) {
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return nil, fmt.Errorf("create data dir: %w", err)
	}
	s := &JSONFile{dir: dir, log: log}
	s.ledger = loadJSON[map[string]model.LedgerEntry](s, "notified.json")
	s.cookies = loadJSON[map[string]cookieJar](s, "cookies.json")
	if s.ledger == nil {
		s.ledger = make(map[string]model.LedgerEntry)
	}
	if s.cookies == nil {
		s.cookies = make(map[string]cookieJar)
	}
	return s, nil
}

// Close flushes the ledger and cookie files.
func (s *JSONFile) Close() error {
	if err := s.writeJSON("notified.json", s.ledger); err != nil {
		return err
	}
	return s.writeJSON("cookies.json", s.cookies)
}

// LoadProducts reads the product snapshot file. Unparsable content yields
// an empty mapping, never an error.
func (s *JSONFile) LoadProducts(_ context.Context) (map[string]*model.Product, error) {
	products := loadJSON[map[string]*model.Product](s, "products.json")
	if products == nil {
		products = make(map[string]*model.Product)
	}
	return products, nil
}

// SaveProducts writes the product snapshot file atomically.
func (s *JSONFile) SaveProducts(_ context.Context, products map[string]*model.Product) error {
	return s.writeJSON("products.json", products)
}

// HasProduct checks the snapshot file for the given PID.
func (s *JSONFile) HasProduct(ctx context.Context, pid string) (bool, error) {
	products, err := s.LoadProducts(ctx)
	if err != nil {
		return false, err
	}
	_, ok := products[pid]
	return ok, nil
}

// LedgerHasPID checks whether any notification was ever recorded for the PID.
func (s *JSONFile) LedgerHasPID(_ context.Context, pid string) (bool, error) {
	for _, e := range s.ledger {
		if e.PID == pid {
			return true, nil
		}
	}
	return false, nil
}

// LedgerHasDay checks whether a notification was recorded for the PID on the given day.
func (s *JSONFile) LedgerHasDay(_ context.Context, pid, day string) (bool, error) {
	_, ok := s.ledger[ledgerKey(pid, day)]
	return ok, nil
}

// LedgerRecord inserts or overwrites the (pid, day) ledger entry and flushes.
func (s *JSONFile) LedgerRecord(_ context.Context, pid, day string, at time.Time) error {
	s.ledger[ledgerKey(pid, day)] = model.LedgerEntry{PID: pid, Day: day, NotifiedAt: at.UTC()}
	return s.writeJSON("notified.json", s.ledger)
}

// LedgerEntries returns all ledger entries.
func (s *JSONFile) LedgerEntries(_ context.Context) ([]model.LedgerEntry, error) {
	entries := make([]model.LedgerEntry, 0, len(s.ledger))
	for _, e := range s.ledger {
		entries = append(entries, e)
	}
	return entries, nil
}

// LedgerDelete removes one (pid, day) ledger entry and flushes.
func (s *JSONFile) LedgerDelete(_ context.Context, pid, day string) error {
	delete(s.ledger, ledgerKey(pid, day))
	return s.writeJSON("notified.json", s.ledger)
}

// SaveCookies replaces the stored cookie jar for a domain.
func (s *JSONFile) SaveCookies(_ context.Context, domain string, cookies map[string]string, at time.Time) error {
	s.cookies[domain] = cookieJar{SavedAt: at.UTC(), Cookies: cookies}
	return s.writeJSON("cookies.json", s.cookies)
}

// LoadCookies returns the stored cookie jar for a domain, or nil when the
// stored cookies are older than maxAge.
func (s *JSONFile) LoadCookies(_ context.Context, domain string, maxAge time.Duration) (map[string]string, error) {
	jar, ok := s.cookies[domain]
	if !ok || time.Since(jar.SavedAt) > maxAge {
		return nil, nil
	}
	return jar.Cookies, nil
}

func ledgerKey(pid, day string) string {
	return pid + "|" + day
}

func loadJSON[T any](s *JSONFile, name string) T {
	var zero T
	path := filepath.Join(s.dir, name)
	data, err := os.ReadFile(path)
	if err != nil {
		if !errors.Is(err, fs.ErrNotExist) {
			s.log.Warn("read state file, starting empty", "path", path, "error", err)
		}
		return zero
	}
	var v T
	if err := json.Unmarshal(data, &v); err != nil {
		s.log.Warn("parse state file, starting empty", "path", path, "error", err)
		return zero
	}
	return v
}

func (s *JSONFile) writeJSON(name string, v any) error {
	path := filepath.Join(s.dir, name)
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal %s: %w", name, err)
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o640); err != nil {
		return fmt.Errorf("write %s: %w", name, err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("replace %s: %w", name, err)
	}
	return nil
}

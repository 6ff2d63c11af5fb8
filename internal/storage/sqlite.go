package storage

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "modernc.org/sqlite" // SQLite driver registration.

	"bamwatch/internal/model"
	"bamwatch/migrations"
)

const timeLayout = "2006-01-02T15:04:05Z"

// SQLite implements Storage backed by a SQLite database.
type SQLite struct {
	db *sql.DB
}

// NewSQLite opens a SQLite database at dsn and runs pending migrations.
func NewSQLite(dsn string) (*SQLite, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("set WAL mode: %w", err)
	}
	if _, err := db.Exec("PRAGMA foreign_keys=OFF"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("disable foreign keys: %w", err)
	}

	if err := migrations.Run(db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	return &SQLite{db: db}, nil
}

// Close closes the underlying database connection.
func (s *SQLite) Close() error {
	return s.db.Close()
}

// LoadProducts reads the entire product collection into memory.
func (s *SQLite) LoadProducts(ctx context.Context) (map[string]*model.Product, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT pid, title, price, url, image, local_image, in_stock,
		        first_seen, last_check, last_in_stock, last_out_of_stock
		 FROM products`,
	)
	if err != nil {
		return nil, fmt.Errorf("query products: %w", err)
	}
	defer func() { _ = rows.Close() }()

	products := make(map[string]*model.Product)
	for rows.Next() {
		p, err := scanProduct(rows)
		if err != nil {
			return nil, err
		}
		products[p.PID] = p
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate products: %w", err)
	}

	storeRows, err := s.db.QueryContext(ctx,
		`SELECT pid, store_id, availability, quantity, name, address, city, state, zip, phone, distance
		 FROM product_stores ORDER BY pid, position`,
	)
	if err != nil {
		return nil, fmt.Errorf("query product stores: %w", err)
	}
	defer func() { _ = storeRows.Close() }()

	for storeRows.Next() {
		var pid string
		var st model.StoreStock
		var qty sql.NullInt64
		err := storeRows.Scan(&pid, &st.StoreID, &st.Availability, &qty,
			&st.Name, &st.Address, &st.City, &st.State, &st.Zip, &st.Phone, &st.Distance)
		if err != nil {
			return nil, fmt.Errorf("scan product store: %w", err)
		}
		if qty.Valid {
			v := int(qty.Int64)
			st.Quantity = &v
		}
		if p, ok := products[pid]; ok {
			p.Stores = append(p.Stores, st)
		}
	}
	return products, storeRows.Err()
}

// SaveProducts replaces the persisted product collection with the given snapshot.
func (s *SQLite) SaveProducts(ctx context.Context, products map[string]*model.Product) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `DELETE FROM product_stores`); err != nil {
		return fmt.Errorf("clear product_stores: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM products`); err != nil {
		return fmt.Errorf("clear products: %w", err)
	}

	for _, p := range products {
		var lastIn, lastOut *string
		if p.LastInStock != nil {
			v := p.LastInStock.UTC().Format(timeLayout)
			lastIn = &v
		}
		if p.LastOutOfStock != nil {
			v := p.LastOutOfStock.UTC().Format(timeLayout)
			lastOut = &v
		}
		_, err := tx.ExecContext(ctx,
			`INSERT INTO products (pid, title, price, url, image, local_image, in_stock,
			                       first_seen, last_check, last_in_stock, last_out_of_stock)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			p.PID, p.Title, p.Price, p.URL, p.Image, p.LocalImage, boolToInt(p.InStock),
			p.FirstSeen.UTC().Format(timeLayout), p.LastCheck.UTC().Format(timeLayout),
			lastIn, lastOut,
		)
		if err != nil {
			return fmt.Errorf("insert product %s: %w", p.PID, err)
		}
		for i, st := range p.Stores {
			var qty *int64
			if st.Quantity != nil {
				v := int64(*st.Quantity)
				qty = &v
			}
			_, err := tx.ExecContext(ctx,
				`INSERT INTO product_stores (pid, position, store_id, availability, quantity,
				                             name, address, city, state, zip, phone, distance)
				 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
				p.PID, i, st.StoreID, string(st.Availability), qty,
				st.Name, st.Address, st.City, st.State, st.Zip, st.Phone, st.Distance,
			)
			if err != nil {
				return fmt.Errorf("insert store %s/%s: %w", p.PID, st.StoreID, err)
			}
		}
	}
	return tx.Commit()
}

// HasProduct checks whether a product record exists for the given PID.
func (s *SQLite) HasProduct(ctx context.Context, pid string) (bool, error) {
	var count int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM products WHERE pid = ?`, pid,
	).Scan(&count)
	if err != nil {
		return false, fmt.Errorf("check product: %w", err)
	}
	return count > 0, nil
}

// LedgerHasPID checks whether any notification was ever recorded for the PID.
func (s *SQLite) LedgerHasPID(ctx context.Context, pid string) (bool, error) {
	var count int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM notified WHERE pid = ?`, pid,
	).Scan(&count)
	if err != nil {
		return false, fmt.Errorf("check ledger pid: %w", err)
	}
	return count > 0, nil
}

// LedgerHasDay checks whether a notification was recorded for the PID on the given day.
func (s *SQLite) LedgerHasDay(ctx context.Context, pid, day string) (bool, error) {
	var count int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM notified WHERE pid = ? AND day = ?`, pid, day,
	).Scan(&count)
	if err != nil {
		return false, fmt.Errorf("check ledger day: %w", err)
	}
	return count > 0, nil
}

// LedgerRecord inserts or overwrites the (pid, day) ledger entry.
func (s *SQLite) LedgerRecord(ctx context.Context, pid, day string, at time.Time) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO notified (pid, day, notified_at) VALUES (?, ?, ?)
		 ON CONFLICT (pid, day) DO UPDATE SET notified_at = excluded.notified_at`,
		pid, day, at.UTC().Format(timeLayout),
	)
	if err != nil {
		return fmt.Errorf("record notified: %w", err)
	}
	return nil
}

// LedgerEntries returns all ledger entries.
func (s *SQLite) LedgerEntries(ctx context.Context) ([]model.LedgerEntry, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT pid, day, notified_at FROM notified ORDER BY pid, day`,
	)
	if err != nil {
		return nil, fmt.Errorf("query ledger: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var entries []model.LedgerEntry
	for rows.Next() {
		var e model.LedgerEntry
		var at string
		if err := rows.Scan(&e.PID, &e.Day, &at); err != nil {
			return nil, fmt.Errorf("scan ledger entry: %w", err)
		}
		e.NotifiedAt, _ = time.Parse(timeLayout, at)
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// LedgerDelete removes one (pid, day) ledger entry.
func (s *SQLite) LedgerDelete(ctx context.Context, pid, day string) error {
	_, err := s.db.ExecContext(ctx,
		`DELETE FROM notified WHERE pid = ? AND day = ?`, pid, day,
	)
	if err != nil {
		return fmt.Errorf("delete ledger entry: %w", err)
	}
	return nil
}

// SaveCookies replaces the stored cookie jar for a domain.
func (s *SQLite) SaveCookies(ctx context.Context, domain string, cookies map[string]string, at time.Time) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `DELETE FROM cookies WHERE domain = ?`, domain); err != nil {
		return fmt.Errorf("clear cookies: %w", err)
	}
	saved := at.UTC().Format(timeLayout)
	for name, value := range cookies {
		_, err := tx.ExecContext(ctx,
			`INSERT INTO cookies (domain, name, value, saved_at) VALUES (?, ?, ?, ?)`,
			domain, name, value, saved,
		)
		if err != nil {
			return fmt.Errorf("insert cookie: %w", err)
		}
	}
	return tx.Commit()
}

// LoadCookies returns the stored cookie jar for a domain, or nil when the
// stored cookies are older than maxAge.
func (s *SQLite) LoadCookies(ctx context.Context, domain string, maxAge time.Duration) (map[string]string, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT name, value, saved_at FROM cookies WHERE domain = ?`, domain,
	)
	if err != nil {
		return nil, fmt.Errorf("query cookies: %w", err)
	}
	defer func() { _ = rows.Close() }()

	cookies := make(map[string]string)
	cutoff := time.Now().UTC().Add(-maxAge)
	for rows.Next() {
		var name, value, savedStr string
		if err := rows.Scan(&name, &value, &savedStr); err != nil {
			return nil, fmt.Errorf("scan cookie: %w", err)
		}
		saved, err := time.Parse(timeLayout, savedStr)
		if err != nil || saved.Before(cutoff) {
			return nil, nil
		}
		cookies[name] = value
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if len(cookies) == 0 {
		return nil, nil
	}
	return cookies, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

type scannable interface {
	Scan(dest ...any) error
}

func scanProduct(row scannable) (*model.Product, error) {
	var p model.Product
	var inStock int
	var firstSeen, lastCheck string
	var lastIn, lastOut sql.NullString
	err := row.Scan(&p.PID, &p.Title, &p.Price, &p.URL, &p.Image, &p.LocalImage,
		&inStock, &firstSeen, &lastCheck, &lastIn, &lastOut)
	if err != nil {
		return nil, fmt.Errorf("scan product: %w", err)
	}
	p.InStock = inStock == 1
	p.FirstSeen, _ = time.Parse(timeLayout, firstSeen)
	p.LastCheck, _ = time.Parse(timeLayout, lastCheck)
	if lastIn.Valid {
		t, _ := time.Parse(timeLayout, lastIn.String)
		p.LastInStock = &t
	}
	if lastOut.Valid {
		t, _ := time.Parse(timeLayout, lastOut.String)
		p.LastOutOfStock = &t
	}
	return &p, nil
}

package coredb

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "modernc.org/sqlite"
)

// Migration represents a cache schema migration
type Migration struct {
	Version int
	Name    string
	SQL     string
}

func getMigrations() []Migration {
	return []Migration{
		{
			Version: 1,
			Name:    "create_cache_tables",
			SQL: `
				CREATE TABLE IF NOT EXISTS cache_meta (
					key TEXT PRIMARY KEY,
					value TEXT NOT NULL
				);

				CREATE TABLE IF NOT EXISTS clients (
					id TEXT PRIMARY KEY,
					name TEXT NOT NULL,
					kana TEXT NOT NULL DEFAULT ''
				);

				CREATE TABLE IF NOT EXISTS client_details (
					id TEXT PRIMARY KEY,
					client_id TEXT NOT NULL
				);

				CREATE TABLE IF NOT EXISTS contacts (
					rowid_pk INTEGER PRIMARY KEY AUTOINCREMENT,
					name TEXT NOT NULL,
					detail_id TEXT NOT NULL,
					department TEXT NOT NULL DEFAULT '',
					role TEXT NOT NULL DEFAULT ''
				);

				CREATE TABLE IF NOT EXISTS quotes (
					no TEXT PRIMARY KEY,
					project_no TEXT NOT NULL,
					name TEXT NOT NULL DEFAULT '',
					device TEXT NOT NULL DEFAULT '',
					machine_no TEXT NOT NULL DEFAULT '',
					created_date TEXT NOT NULL DEFAULT '',
					order_date TEXT NOT NULL DEFAULT '',
					delivery_date TEXT NOT NULL DEFAULT '',
					won BOOLEAN NOT NULL DEFAULT 0,
					rejected BOOLEAN NOT NULL DEFAULT 0
				);

				CREATE TABLE IF NOT EXISTS quote_lines (
					rowid_pk INTEGER PRIMARY KEY AUTOINCREMENT,
					quote_no TEXT NOT NULL,
					item TEXT NOT NULL DEFAULT '',
					qty TEXT NOT NULL DEFAULT '',
					unit_price TEXT NOT NULL DEFAULT ''
				);

				CREATE TABLE IF NOT EXISTS projects (
					no TEXT PRIMARY KEY,
					name TEXT NOT NULL DEFAULT '',
					client_id TEXT NOT NULL DEFAULT '',
					delivery_id TEXT NOT NULL DEFAULT '',
					delivery_manual TEXT NOT NULL DEFAULT '',
					start_date TEXT NOT NULL DEFAULT '',
					ml_id TEXT NOT NULL DEFAULT ''
				);

				CREATE TABLE IF NOT EXISTS delivery_sites (
					id TEXT PRIMARY KEY,
					name TEXT NOT NULL DEFAULT '',
					kana TEXT NOT NULL DEFAULT ''
				);

				CREATE TABLE IF NOT EXISTS orders (
					rowid_pk INTEGER PRIMARY KEY AUTOINCREMENT,
					project_no TEXT NOT NULL,
					progress_id TEXT NOT NULL DEFAULT '',
					order_forecast TEXT NOT NULL DEFAULT '',
					delivery_forecast TEXT NOT NULL DEFAULT ''
				);

				CREATE TABLE IF NOT EXISTS progress_states (
					id TEXT PRIMARY KEY,
					name TEXT NOT NULL DEFAULT ''
				);

				CREATE INDEX IF NOT EXISTS idx_quotes_project_no ON quotes (project_no);
				CREATE INDEX IF NOT EXISTS idx_quote_lines_quote_no ON quote_lines (quote_no);
				CREATE INDEX IF NOT EXISTS idx_projects_client_id ON projects (client_id);
				CREATE INDEX IF NOT EXISTS idx_contacts_detail_id ON contacts (detail_id);
			`,
		},
	}
}

// Store is the SQLite cache of the exported dataset.
type Store struct {
	db *sql.DB
}

// OpenStore opens (or creates) the cache database and brings its
// schema up to date.
func OpenStore(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening cache database: %w", err)
	}
	if err := configure(db); err != nil {
		db.Close()
		return nil, err
	}
	return &Store{db: db}, nil
}

// Close releases the underlying database handle.
func (s *Store) Close() error { return s.db.Close() }

func configure(db *sql.DB) error {
	db.SetMaxOpenConns(4)
	db.SetMaxIdleConns(2)
	db.SetConnMaxLifetime(0)

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			return fmt.Errorf("failed to apply pragma '%s': %w", pragma, err)
		}
	}
	return runMigrations(db)
}

func runMigrations(db *sql.DB) error {
	if _, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version INTEGER PRIMARY KEY,
			name TEXT NOT NULL,
			applied_at DATETIME DEFAULT CURRENT_TIMESTAMP
		);
	`); err != nil {
		return fmt.Errorf("failed to create migrations table: %w", err)
	}

	var current int
	if err := db.QueryRow("SELECT COALESCE(MAX(version), 0) FROM schema_migrations").Scan(&current); err != nil {
		return fmt.Errorf("failed to get current version: %w", err)
	}

	for _, m := range getMigrations() {
		if m.Version <= current {
			continue
		}
		if err := runMigration(db, m); err != nil {
			return fmt.Errorf("failed to run migration %d (%s): %w", m.Version, m.Name, err)
		}
	}
	return nil
}

func runMigration(db *sql.DB, m Migration) error {
	tx, err := db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.Exec(m.SQL); err != nil {
		return err
	}
	if _, err := tx.Exec(
		"INSERT INTO schema_migrations (version, name) VALUES (?, ?)",
		m.Version, m.Name,
	); err != nil {
		return err
	}
	return tx.Commit()
}

// SourceModTime returns the mtime of the Access file the cache was
// built from, or the zero time when the cache is empty.
func (s *Store) SourceModTime(ctx context.Context) (time.Time, error) {
	var value string
	err := s.db.QueryRowContext(ctx,
		"SELECT value FROM cache_meta WHERE key = 'source_mtime'").Scan(&value)
	if err == sql.ErrNoRows {
		return time.Time{}, nil
	}
	if err != nil {
		return time.Time{}, fmt.Errorf("reading cache meta: %w", err)
	}
	t, err := time.Parse(time.RFC3339Nano, value)
	if err != nil {
		return time.Time{}, fmt.Errorf("parsing cached mtime: %w", err)
	}
	return t, nil
}

// Save replaces the cached dataset wholesale inside one transaction.
func (s *Store) Save(ctx context.Context, d *Dataset, sourceModTime time.Time) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("starting cache transaction: %w", err)
	}
	defer tx.Rollback()

	tables := []string{
		"clients", "client_details", "contacts", "quotes", "quote_lines",
		"projects", "delivery_sites", "orders", "progress_states",
	}
	for _, t := range tables {
		if _, err := tx.ExecContext(ctx, "DELETE FROM "+t); err != nil {
			return fmt.Errorf("clearing %s: %w", t, err)
		}
	}

	for _, c := range d.Clients {
		if _, err := tx.ExecContext(ctx,
			"INSERT INTO clients (id, name, kana) VALUES (?, ?, ?)",
			c.ID, c.Name, c.Kana); err != nil {
			return fmt.Errorf("caching client %s: %w", c.ID, err)
		}
	}
	for _, cd := range d.ClientDetails {
		if _, err := tx.ExecContext(ctx,
			"INSERT INTO client_details (id, client_id) VALUES (?, ?)",
			cd.ID, cd.ClientID); err != nil {
			return fmt.Errorf("caching client detail %s: %w", cd.ID, err)
		}
	}
	for _, c := range d.Contacts {
		if _, err := tx.ExecContext(ctx,
			"INSERT INTO contacts (name, detail_id, department, role) VALUES (?, ?, ?, ?)",
			c.Name, c.DetailID, c.Department, c.Role); err != nil {
			return fmt.Errorf("caching contact %s: %w", c.Name, err)
		}
	}
	for _, q := range d.Quotes {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO quotes (no, project_no, name, device, machine_no,
				created_date, order_date, delivery_date, won, rejected)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			q.No, q.ProjectNo, q.Name, q.Device, q.MachineNo,
			q.CreatedDate, q.OrderDate, q.DeliveryDate, q.Won, q.Rejected); err != nil {
			return fmt.Errorf("caching quote %s: %w", q.No, err)
		}
	}
	for _, l := range d.QuoteLines {
		if _, err := tx.ExecContext(ctx,
			"INSERT INTO quote_lines (quote_no, item, qty, unit_price) VALUES (?, ?, ?, ?)",
			l.QuoteNo, l.Item, l.Qty, l.UnitPrice); err != nil {
			return fmt.Errorf("caching quote line for %s: %w", l.QuoteNo, err)
		}
	}
	for _, p := range d.Projects {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO projects (no, name, client_id, delivery_id,
				delivery_manual, start_date, ml_id)
			VALUES (?, ?, ?, ?, ?, ?, ?)`,
			p.No, p.Name, p.ClientID, p.DeliveryID,
			p.DeliveryManual, p.StartDate, p.MLID); err != nil {
			return fmt.Errorf("caching project %s: %w", p.No, err)
		}
	}
	for _, site := range d.DeliverySites {
		if _, err := tx.ExecContext(ctx,
			"INSERT INTO delivery_sites (id, name, kana) VALUES (?, ?, ?)",
			site.ID, site.Name, site.Kana); err != nil {
			return fmt.Errorf("caching delivery site %s: %w", site.ID, err)
		}
	}
	for _, o := range d.Orders {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO orders (project_no, progress_id, order_forecast, delivery_forecast)
			VALUES (?, ?, ?, ?)`,
			o.ProjectNo, o.ProgressID, o.OrderForecast, o.DeliveryForecast); err != nil {
			return fmt.Errorf("caching order for %s: %w", o.ProjectNo, err)
		}
	}
	for _, ps := range d.ProgressStates {
		if _, err := tx.ExecContext(ctx,
			"INSERT INTO progress_states (id, name) VALUES (?, ?)",
			ps.ID, ps.Name); err != nil {
			return fmt.Errorf("caching progress state %s: %w", ps.ID, err)
		}
	}

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO cache_meta (key, value) VALUES ('source_mtime', ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value`,
		sourceModTime.Format(time.RFC3339Nano)); err != nil {
		return fmt.Errorf("recording cache mtime: %w", err)
	}
	return tx.Commit()
}

// Load reads the whole cached dataset back out.
func (s *Store) Load(ctx context.Context) (*Dataset, error) {
	d := &Dataset{}

	scan := func(query string, fn func(rows *sql.Rows) error) error {
		rows, err := s.db.QueryContext(ctx, query)
		if err != nil {
			return err
		}
		defer rows.Close()
		for rows.Next() {
			if err := fn(rows); err != nil {
				return err
			}
		}
		return rows.Err()
	}

	if err := scan("SELECT id, name, kana FROM clients", func(rows *sql.Rows) error {
		var c Client
		if err := rows.Scan(&c.ID, &c.Name, &c.Kana); err != nil {
			return err
		}
		d.Clients = append(d.Clients, c)
		return nil
	}); err != nil {
		return nil, fmt.Errorf("loading clients: %w", err)
	}

	if err := scan("SELECT id, client_id FROM client_details", func(rows *sql.Rows) error {
		var cd ClientDetail
		if err := rows.Scan(&cd.ID, &cd.ClientID); err != nil {
			return err
		}
		d.ClientDetails = append(d.ClientDetails, cd)
		return nil
	}); err != nil {
		return nil, fmt.Errorf("loading client details: %w", err)
	}

	if err := scan("SELECT name, detail_id, department, role FROM contacts", func(rows *sql.Rows) error {
		var c Contact
		if err := rows.Scan(&c.Name, &c.DetailID, &c.Department, &c.Role); err != nil {
			return err
		}
		d.Contacts = append(d.Contacts, c)
		return nil
	}); err != nil {
		return nil, fmt.Errorf("loading contacts: %w", err)
	}

	if err := scan(`SELECT no, project_no, name, device, machine_no,
		created_date, order_date, delivery_date, won, rejected FROM quotes`,
		func(rows *sql.Rows) error {
			var q Quote
			if err := rows.Scan(&q.No, &q.ProjectNo, &q.Name, &q.Device, &q.MachineNo,
				&q.CreatedDate, &q.OrderDate, &q.DeliveryDate, &q.Won, &q.Rejected); err != nil {
				return err
			}
			d.Quotes = append(d.Quotes, q)
			return nil
		}); err != nil {
		return nil, fmt.Errorf("loading quotes: %w", err)
	}

	if err := scan("SELECT quote_no, item, qty, unit_price FROM quote_lines", func(rows *sql.Rows) error {
		var l QuoteLine
		if err := rows.Scan(&l.QuoteNo, &l.Item, &l.Qty, &l.UnitPrice); err != nil {
			return err
		}
		d.QuoteLines = append(d.QuoteLines, l)
		return nil
	}); err != nil {
		return nil, fmt.Errorf("loading quote lines: %w", err)
	}

	if err := scan(`SELECT no, name, client_id, delivery_id, delivery_manual,
		start_date, ml_id FROM projects`, func(rows *sql.Rows) error {
		var p Project
		if err := rows.Scan(&p.No, &p.Name, &p.ClientID, &p.DeliveryID,
			&p.DeliveryManual, &p.StartDate, &p.MLID); err != nil {
			return err
		}
		d.Projects = append(d.Projects, p)
		return nil
	}); err != nil {
		return nil, fmt.Errorf("loading projects: %w", err)
	}

	if err := scan("SELECT id, name, kana FROM delivery_sites", func(rows *sql.Rows) error {
		var site DeliverySite
		if err := rows.Scan(&site.ID, &site.Name, &site.Kana); err != nil {
			return err
		}
		d.DeliverySites = append(d.DeliverySites, site)
		return nil
	}); err != nil {
		return nil, fmt.Errorf("loading delivery sites: %w", err)
	}

	if err := scan("SELECT project_no, progress_id, order_forecast, delivery_forecast FROM orders",
		func(rows *sql.Rows) error {
			var o Order
			if err := rows.Scan(&o.ProjectNo, &o.ProgressID, &o.OrderForecast, &o.DeliveryForecast); err != nil {
				return err
			}
			d.Orders = append(d.Orders, o)
			return nil
		}); err != nil {
		return nil, fmt.Errorf("loading orders: %w", err)
	}

	if err := scan("SELECT id, name FROM progress_states", func(rows *sql.Rows) error {
		var ps ProgressState
		if err := rows.Scan(&ps.ID, &ps.Name); err != nil {
			return err
		}
		d.ProgressStates = append(d.ProgressStates, ps)
		return nil
	}); err != nil {
		return nil, fmt.Errorf("loading progress states: %w", err)
	}

	return d, nil
}

package facts

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/tursodatabase/libsql-client-go/libsql"
	_ "modernc.org/sqlite"
)

// SQL drivers accepted by OpenSQLStore
const (
	DriverSQLite = "sqlite"
	DriverLibSQL = "libsql"
)

// SQLStore keeps patch data in SQLite (modernc) or a Turso/libSQL database
type SQLStore struct {
	db *sql.DB
}

// OpenSQLStore opens a store. For DriverSQLite dsn is a file path; for
// DriverLibSQL it is a libsql:// URL and authToken is appended when set.
func OpenSQLStore(ctx context.Context, driver, dsn, authToken string) (*SQLStore, error) {
	connStr := dsn
	switch driver {
	case DriverSQLite:
		if dir := filepath.Dir(dsn); dir != "." {
			if err := os.MkdirAll(dir, 0755); err != nil {
				return nil, fmt.Errorf("failed to create db directory: %w", err)
			}
		}
	case DriverLibSQL:
		if dsn == "" {
			return nil, fmt.Errorf("Turso URL not configured (set TURSO_DATABASE_URL)")
		}
		if authToken != "" {
			connStr = fmt.Sprintf("%s?authToken=%s", dsn, authToken)
		}
	default:
		return nil, fmt.Errorf("unsupported fact store driver %q", driver)
	}

	db, err := sql.Open(driver, connStr)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	s := &SQLStore{db: db}
	if err := s.init(ctx); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

// init creates the schema
func (s *SQLStore) init(ctx context.Context) error {
	schema := []string{
		`CREATE TABLE IF NOT EXISTS patches (
			patch TEXT PRIMARY KEY,
			imported_at TEXT NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS items (
			patch TEXT NOT NULL,
			id INTEGER NOT NULL,
			name TEXT NOT NULL,
			price INTEGER NOT NULL DEFAULT 0,
			tags TEXT NOT NULL DEFAULT '[]',
			stats TEXT,
			description TEXT NOT NULL DEFAULT '',
			PRIMARY KEY (patch, id)
		)`,
		`CREATE TABLE IF NOT EXISTS champions (
			patch TEXT NOT NULL,
			champ_key TEXT NOT NULL,
			name TEXT NOT NULL,
			tags TEXT NOT NULL DEFAULT '[]',
			notes TEXT NOT NULL DEFAULT '',
			PRIMARY KEY (patch, champ_key)
		)`,
		`CREATE TABLE IF NOT EXISTS runes (
			patch TEXT NOT NULL,
			id INTEGER NOT NULL,
			name TEXT NOT NULL,
			tree TEXT NOT NULL,
			PRIMARY KEY (patch, id)
		)`,
		`CREATE TABLE IF NOT EXISTS guides (
			patch TEXT NOT NULL,
			seq INTEGER NOT NULL,
			id TEXT NOT NULL,
			champion TEXT NOT NULL DEFAULT '',
			body TEXT NOT NULL,
			PRIMARY KEY (patch, seq)
		)`,
	}
	for _, stmt := range schema {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("failed to create table: %w", err)
		}
	}
	return nil
}

// Close closes the database connection
func (s *SQLStore) Close() error {
	return s.db.Close()
}

// Import replaces all rows of pf.Patch in a single transaction
func (s *SQLStore) Import(ctx context.Context, pf PatchFacts) error {
	if !validPatchID(pf.Patch) {
		return fmt.Errorf("invalid patch id %q", pf.Patch)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	for _, table := range []string{"items", "champions", "runes", "guides", "patches"} {
		if _, err := tx.ExecContext(ctx, "DELETE FROM "+table+" WHERE patch = ?", pf.Patch); err != nil {
			return fmt.Errorf("failed to clear %s: %w", table, err)
		}
	}

	for _, it := range pf.Items {
		tags, _ := json.Marshal(nonNil(it.Tags))
		var stats sql.NullString
		if it.Stats != nil {
			b, err := json.Marshal(it.Stats)
			if err != nil {
				return fmt.Errorf("failed to encode stats for item %d: %w", it.ID, err)
			}
			stats = sql.NullString{String: string(b), Valid: true}
		}
		if _, err := tx.ExecContext(ctx,
			"INSERT INTO items (patch, id, name, price, tags, stats, description) VALUES (?, ?, ?, ?, ?, ?, ?)",
			pf.Patch, it.ID, it.Name, it.Price, string(tags), stats, it.Description,
		); err != nil {
			return fmt.Errorf("failed to insert item %d: %w", it.ID, err)
		}
	}

	for _, c := range pf.Champions {
		tags, _ := json.Marshal(nonNil(c.Tags))
		if _, err := tx.ExecContext(ctx,
			"INSERT INTO champions (patch, champ_key, name, tags, notes) VALUES (?, ?, ?, ?, ?)",
			pf.Patch, c.Key, c.Name, string(tags), c.Notes,
		); err != nil {
			return fmt.Errorf("failed to insert champion %s: %w", c.Name, err)
		}
	}

	for _, r := range pf.Runes {
		if _, err := tx.ExecContext(ctx,
			"INSERT INTO runes (patch, id, name, tree) VALUES (?, ?, ?, ?)",
			pf.Patch, r.ID, r.Name, r.Tree,
		); err != nil {
			return fmt.Errorf("failed to insert rune %d: %w", r.ID, err)
		}
	}

	for i, g := range pf.GuideDocs {
		if _, err := tx.ExecContext(ctx,
			"INSERT INTO guides (patch, seq, id, champion, body) VALUES (?, ?, ?, ?, ?)",
			pf.Patch, i, g.ID, g.Champion, g.Text,
		); err != nil {
			return fmt.Errorf("failed to insert guide %s: %w", g.ID, err)
		}
	}

	if _, err := tx.ExecContext(ctx,
		"INSERT INTO patches (patch, imported_at) VALUES (?, ?)",
		pf.Patch, time.Now().UTC().Format(time.RFC3339),
	); err != nil {
		return fmt.Errorf("failed to register patch: %w", err)
	}

	return tx.Commit()
}

// Load reads a previously imported patch
func (s *SQLStore) Load(ctx context.Context, patch string) (PatchFacts, error) {
	var importedAt string
	err := s.db.QueryRowContext(ctx, "SELECT imported_at FROM patches WHERE patch = ?", patch).Scan(&importedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return PatchFacts{}, fmt.Errorf("%w: %s", ErrPatchNotFound, patch)
	}
	if err != nil {
		return PatchFacts{}, fmt.Errorf("failed to look up patch: %w", err)
	}

	pf := PatchFacts{Patch: patch}
	if pf.Items, err = s.loadItems(ctx, patch); err != nil {
		return PatchFacts{}, err
	}
	if pf.Champions, err = s.loadChampions(ctx, patch); err != nil {
		return PatchFacts{}, err
	}
	if pf.Runes, err = s.loadRunes(ctx, patch); err != nil {
		return PatchFacts{}, err
	}
	if pf.GuideDocs, err = s.loadGuides(ctx, patch); err != nil {
		return PatchFacts{}, err
	}
	return pf, nil
}

func (s *SQLStore) loadItems(ctx context.Context, patch string) ([]Item, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT id, name, price, tags, stats, description FROM items WHERE patch = ? ORDER BY id", patch)
	if err != nil {
		return nil, fmt.Errorf("failed to query items: %w", err)
	}
	defer rows.Close()

	var items []Item
	for rows.Next() {
		var it Item
		var tags string
		var stats sql.NullString
		if err := rows.Scan(&it.ID, &it.Name, &it.Price, &tags, &stats, &it.Description); err != nil {
			return nil, fmt.Errorf("failed to scan item: %w", err)
		}
		if err := json.Unmarshal([]byte(tags), &it.Tags); err != nil {
			return nil, fmt.Errorf("bad tags for item %d: %w", it.ID, err)
		}
		if stats.Valid {
			if err := json.Unmarshal([]byte(stats.String), &it.Stats); err != nil {
				return nil, fmt.Errorf("bad stats for item %d: %w", it.ID, err)
			}
		}
		items = append(items, it)
	}
	return items, rows.Err()
}

func (s *SQLStore) loadChampions(ctx context.Context, patch string) ([]Champion, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT champ_key, name, tags, notes FROM champions WHERE patch = ? ORDER BY name", patch)
	if err != nil {
		return nil, fmt.Errorf("failed to query champions: %w", err)
	}
	defer rows.Close()

	var champs []Champion
	for rows.Next() {
		var c Champion
		var tags string
		if err := rows.Scan(&c.Key, &c.Name, &tags, &c.Notes); err != nil {
			return nil, fmt.Errorf("failed to scan champion: %w", err)
		}
		if err := json.Unmarshal([]byte(tags), &c.Tags); err != nil {
			return nil, fmt.Errorf("bad tags for champion %s: %w", c.Name, err)
		}
		champs = append(champs, c)
	}
	return champs, rows.Err()
}

func (s *SQLStore) loadRunes(ctx context.Context, patch string) ([]Rune, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT id, name, tree FROM runes WHERE patch = ? ORDER BY id", patch)
	if err != nil {
		return nil, fmt.Errorf("failed to query runes: %w", err)
	}
	defer rows.Close()

	var runes []Rune
	for rows.Next() {
		var r Rune
		if err := rows.Scan(&r.ID, &r.Name, &r.Tree); err != nil {
			return nil, fmt.Errorf("failed to scan rune: %w", err)
		}
		runes = append(runes, r)
	}
	return runes, rows.Err()
}

func (s *SQLStore) loadGuides(ctx context.Context, patch string) ([]GuideDocument, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT id, champion, body FROM guides WHERE patch = ? ORDER BY seq", patch)
	if err != nil {
		return nil, fmt.Errorf("failed to query guides: %w", err)
	}
	defer rows.Close()

	var docs []GuideDocument
	for rows.Next() {
		var g GuideDocument
		if err := rows.Scan(&g.ID, &g.Champion, &g.Text); err != nil {
			return nil, fmt.Errorf("failed to scan guide: %w", err)
		}
		docs = append(docs, g)
	}
	return docs, rows.Err()
}

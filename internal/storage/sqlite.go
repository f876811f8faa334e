package storage

import (
	"context"
	"database/sql"
	"embed"
	"encoding/json"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/xaenox/labelbot/internal/models"
)

//go:embed migrations.sql
var migrations embed.FS

// DB is a SQLite file shared by every engine scope.
type DB struct {
	db *sql.DB
}

// OpenSQLite opens (or creates) the database at path and applies the schema.
func OpenSQLite(path string) (*DB, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("error opening database: %w", err)
	}
	// UpdatePattern's read-modify-write needs serialized writers.
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("error connecting to the database: %w", err)
	}

	d := &DB{db: db}
	if err := d.initializeSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("error initializing database schema: %w", err)
	}
	return d, nil
}

func (d *DB) initializeSchema() error {
	migrationSQL, err := migrations.ReadFile("migrations.sql")
	if err != nil {
		return fmt.Errorf("error reading migrations file: %w", err)
	}
	if _, err := d.db.Exec(string(migrationSQL)); err != nil {
		return fmt.Errorf("error executing migrations: %w", err)
	}
	return nil
}

// Scope returns the storage view for one engine instance.
func (d *DB) Scope(scope string) *SQLiteStorage {
	return &SQLiteStorage{db: d.db, scope: scope}
}

func (d *DB) Close() error {
	return d.db.Close()
}

// SQLiteStorage implements Storage for a single scope of a shared DB.
type SQLiteStorage struct {
	db    *sql.DB
	scope string
}

var _ Storage = (*SQLiteStorage)(nil)

func encodeLabels(labels []string) (string, error) {
	if labels == nil {
		labels = []string{}
	}
	b, err := json.Marshal(labels)
	if err != nil {
		return "", fmt.Errorf("error encoding labels: %w", err)
	}
	return string(b), nil
}

func decodeLabels(raw string) ([]string, error) {
	var labels []string
	if err := json.Unmarshal([]byte(raw), &labels); err != nil {
		return nil, fmt.Errorf("error decoding labels: %w", err)
	}
	return labels, nil
}

// --- Patterns ---

type rowScanner interface {
	Scan(dest ...any) error
}

func scanPattern(row rowScanner) (*models.Pattern, error) {
	var p models.Pattern
	var labels string
	if err := row.Scan(&p.Key, &labels, &p.Confidence, &p.UsageCount, &p.LastUsedAt); err != nil {
		return nil, err
	}
	var err error
	if p.Labels, err = decodeLabels(labels); err != nil {
		return nil, err
	}
	return &p, nil
}

const patternColumns = `key, labels, confidence, usage_count, last_used_at`

func (s *SQLiteStorage) GetPattern(ctx context.Context, key string) (*models.Pattern, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+patternColumns+` FROM patterns WHERE scope = ? AND key = ?`, s.scope, key)
	p, err := scanPattern(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("error querying pattern: %w", err)
	}
	return p, nil
}

func (s *SQLiteStorage) ListPatterns(ctx context.Context) ([]models.Pattern, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+patternColumns+` FROM patterns WHERE scope = ? ORDER BY key`, s.scope)
	if err != nil {
		return nil, fmt.Errorf("error querying patterns: %w", err)
	}
	defer rows.Close()

	var out []models.Pattern
	for rows.Next() {
		p, err := scanPattern(rows)
		if err != nil {
			return nil, fmt.Errorf("error scanning pattern: %w", err)
		}
		out = append(out, *p)
	}
	return out, rows.Err()
}

func (s *SQLiteStorage) UpdatePattern(ctx context.Context, key string, fn func(*models.Pattern) *models.Pattern) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("error starting transaction: %w", err)
	}
	defer tx.Rollback()

	existing, err := scanPattern(tx.QueryRowContext(ctx,
		`SELECT `+patternColumns+` FROM patterns WHERE scope = ? AND key = ?`, s.scope, key))
	if err == sql.ErrNoRows {
		existing = nil
	} else if err != nil {
		return fmt.Errorf("error querying pattern: %w", err)
	}

	next := fn(existing)
	switch {
	case next == nil:
		return nil
	case len(next.Labels) == 0:
		if _, err := tx.ExecContext(ctx, `DELETE FROM patterns WHERE scope = ? AND key = ?`, s.scope, key); err != nil {
			return fmt.Errorf("error deleting pattern: %w", err)
		}
	default:
		labels, err := encodeLabels(next.Labels)
		if err != nil {
			return err
		}
		_, err = tx.ExecContext(ctx,
			`INSERT INTO patterns (scope, key, labels, confidence, usage_count, last_used_at)
			 VALUES (?, ?, ?, ?, ?, ?)
			 ON CONFLICT(scope, key) DO UPDATE SET
			   labels = excluded.labels,
			   confidence = excluded.confidence,
			   usage_count = excluded.usage_count,
			   last_used_at = excluded.last_used_at`,
			s.scope, key, labels, next.Confidence, next.UsageCount, next.LastUsedAt.UTC(),
		)
		if err != nil {
			return fmt.Errorf("error saving pattern: %w", err)
		}
	}
	return tx.Commit()
}

// --- Categorizations ---

func (s *SQLiteStorage) SaveCategorization(ctx context.Context, c models.Categorization) error {
	labels, err := encodeLabels(c.Labels)
	if err != nil {
		return err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("error starting transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM ignored_items WHERE scope = ? AND item_id = ?`, s.scope, c.ItemID); err != nil {
		return fmt.Errorf("error clearing ignored item: %w", err)
	}
	_, err = tx.ExecContext(ctx,
		`INSERT INTO categorizations (scope, item_id, item_text, labels, categorized_at)
		 VALUES (?, ?, ?, ?, ?)
		 ON CONFLICT(scope, item_id) DO UPDATE SET
		   item_text = excluded.item_text,
		   labels = excluded.labels,
		   categorized_at = excluded.categorized_at`,
		s.scope, c.ItemID, c.ItemText, labels, c.CategorizedAt.UTC(),
	)
	if err != nil {
		return fmt.Errorf("error saving categorization: %w", err)
	}
	return tx.Commit()
}

func scanCategorization(row rowScanner) (*models.Categorization, error) {
	var c models.Categorization
	var labels string
	if err := row.Scan(&c.ItemID, &c.ItemText, &labels, &c.CategorizedAt); err != nil {
		return nil, err
	}
	var err error
	if c.Labels, err = decodeLabels(labels); err != nil {
		return nil, err
	}
	return &c, nil
}

func (s *SQLiteStorage) GetCategorization(ctx context.Context, itemID string) (*models.Categorization, error) {
	c, err := scanCategorization(s.db.QueryRowContext(ctx,
		`SELECT item_id, item_text, labels, categorized_at FROM categorizations WHERE scope = ? AND item_id = ?`,
		s.scope, itemID))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("error querying categorization: %w", err)
	}
	return c, nil
}

func (s *SQLiteStorage) ListCategorizations(ctx context.Context) ([]models.Categorization, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT item_id, item_text, labels, categorized_at FROM categorizations WHERE scope = ? ORDER BY item_id`,
		s.scope)
	if err != nil {
		return nil, fmt.Errorf("error querying categorizations: %w", err)
	}
	defer rows.Close()

	var out []models.Categorization
	for rows.Next() {
		c, err := scanCategorization(rows)
		if err != nil {
			return nil, fmt.Errorf("error scanning categorization: %w", err)
		}
		out = append(out, *c)
	}
	return out, rows.Err()
}

func (s *SQLiteStorage) DeleteCategorization(ctx context.Context, itemID string) (bool, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM categorizations WHERE scope = ? AND item_id = ?`, s.scope, itemID)
	if err != nil {
		return false, fmt.Errorf("error deleting categorization: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("error getting rows affected: %w", err)
	}
	return n > 0, nil
}

func (s *SQLiteStorage) SaveIgnored(ctx context.Context, item models.IgnoredItem) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("error starting transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM categorizations WHERE scope = ? AND item_id = ?`, s.scope, item.ItemID); err != nil {
		return fmt.Errorf("error clearing categorization: %w", err)
	}
	_, err = tx.ExecContext(ctx,
		`INSERT INTO ignored_items (scope, item_id, item_text, ignored_at)
		 VALUES (?, ?, ?, ?)
		 ON CONFLICT(scope, item_id) DO UPDATE SET
		   item_text = excluded.item_text,
		   ignored_at = excluded.ignored_at`,
		s.scope, item.ItemID, item.ItemText, item.IgnoredAt.UTC(),
	)
	if err != nil {
		return fmt.Errorf("error saving ignored item: %w", err)
	}
	return tx.Commit()
}

func (s *SQLiteStorage) GetIgnored(ctx context.Context, itemID string) (*models.IgnoredItem, error) {
	var i models.IgnoredItem
	err := s.db.QueryRowContext(ctx,
		`SELECT item_id, item_text, ignored_at FROM ignored_items WHERE scope = ? AND item_id = ?`,
		s.scope, itemID,
	).Scan(&i.ItemID, &i.ItemText, &i.IgnoredAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("error querying ignored item: %w", err)
	}
	return &i, nil
}

func (s *SQLiteStorage) DeleteIgnored(ctx context.Context, itemID string) (bool, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM ignored_items WHERE scope = ? AND item_id = ?`, s.scope, itemID)
	if err != nil {
		return false, fmt.Errorf("error deleting ignored item: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("error getting rows affected: %w", err)
	}
	return n > 0, nil
}

func (s *SQLiteStorage) AdoptRemote(ctx context.Context, r models.RemoteRecord) (bool, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return false, fmt.Errorf("error starting transaction: %w", err)
	}
	defer tx.Rollback()

	var count int
	err = tx.QueryRowContext(ctx,
		`SELECT (SELECT COUNT(*) FROM categorizations WHERE scope = ? AND item_id = ?)
		      + (SELECT COUNT(*) FROM ignored_items WHERE scope = ? AND item_id = ?)`,
		s.scope, r.ItemID, s.scope, r.ItemID,
	).Scan(&count)
	if err != nil {
		return false, fmt.Errorf("error checking local record: %w", err)
	}
	if count > 0 {
		return false, nil
	}

	if r.IsIgnored {
		_, err = tx.ExecContext(ctx,
			`INSERT INTO ignored_items (scope, item_id, item_text, ignored_at) VALUES (?, ?, ?, ?)`,
			s.scope, r.ItemID, r.ItemText, r.CategorizedAt.UTC())
	} else {
		var labels string
		if labels, err = encodeLabels(models.LabelSet(r.Labels)); err != nil {
			return false, err
		}
		_, err = tx.ExecContext(ctx,
			`INSERT INTO categorizations (scope, item_id, item_text, labels, categorized_at) VALUES (?, ?, ?, ?, ?)`,
			s.scope, r.ItemID, r.ItemText, labels, r.CategorizedAt.UTC())
	}
	if err != nil {
		return false, fmt.Errorf("error adopting remote record: %w", err)
	}
	return true, tx.Commit()
}

// --- Edit log ---

func (s *SQLiteStorage) AppendEdit(ctx context.Context, e models.EditRecord) error {
	oldLabels, err := encodeLabels(e.OldLabels)
	if err != nil {
		return err
	}
	newLabels, err := encodeLabels(e.NewLabels)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO edit_records (scope, item_id, item_text, normalized_key, old_labels, new_labels, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		s.scope, e.ItemID, e.ItemText, e.NormalizedKey, oldLabels, newLabels, e.Timestamp.UTC(),
	)
	if err != nil {
		return fmt.Errorf("error inserting edit record: %w", err)
	}
	return nil
}

func (s *SQLiteStorage) ListEdits(ctx context.Context, since time.Time) ([]models.EditRecord, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT item_id, item_text, normalized_key, old_labels, new_labels, created_at
		 FROM edit_records
		 WHERE scope = ? AND created_at > ?
		 ORDER BY created_at, id`,
		s.scope, since.UTC(),
	)
	if err != nil {
		return nil, fmt.Errorf("error querying edit records: %w", err)
	}
	defer rows.Close()

	var out []models.EditRecord
	for rows.Next() {
		var e models.EditRecord
		var oldLabels, newLabels string
		if err := rows.Scan(&e.ItemID, &e.ItemText, &e.NormalizedKey, &oldLabels, &newLabels, &e.Timestamp); err != nil {
			return nil, fmt.Errorf("error scanning edit record: %w", err)
		}
		if e.OldLabels, err = decodeLabels(oldLabels); err != nil {
			return nil, err
		}
		if e.NewLabels, err = decodeLabels(newLabels); err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

func (s *SQLiteStorage) PruneEdits(ctx context.Context, before time.Time) (int, error) {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM edit_records WHERE scope = ? AND created_at <= ?`, s.scope, before.UTC())
	if err != nil {
		return 0, fmt.Errorf("error pruning edit records: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("error getting rows affected: %w", err)
	}
	return int(n), nil
}

func (s *SQLiteStorage) DismissDriftKey(ctx context.Context, key string) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT OR IGNORE INTO dismissed_drift_keys (scope, key) VALUES (?, ?)`, s.scope, key)
	if err != nil {
		return fmt.Errorf("error dismissing drift key: %w", err)
	}
	return nil
}

func (s *SQLiteStorage) DismissedDriftKeys(ctx context.Context) (map[string]struct{}, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT key FROM dismissed_drift_keys WHERE scope = ?`, s.scope)
	if err != nil {
		return nil, fmt.Errorf("error querying dismissed keys: %w", err)
	}
	defer rows.Close()

	out := make(map[string]struct{})
	for rows.Next() {
		var key string
		if err := rows.Scan(&key); err != nil {
			return nil, fmt.Errorf("error scanning dismissed key: %w", err)
		}
		out[key] = struct{}{}
	}
	return out, rows.Err()
}

func (s *SQLiteStorage) ResetDismissedDriftKeys(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM dismissed_drift_keys WHERE scope = ?`, s.scope); err != nil {
		return fmt.Errorf("error resetting dismissed keys: %w", err)
	}
	return nil
}

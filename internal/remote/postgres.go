package remote

import (
	"context"
	"database/sql"
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"github.com/lib/pq"
	"github.com/xaenox/labelbot/internal/models"
)

type DatabaseConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	DBName   string
	SSLMode  string
}

// ParseDatabaseURL turns a postgres:// URL into a DatabaseConfig.
func ParseDatabaseURL(dbURL string) (DatabaseConfig, error) {
	u, err := url.Parse(dbURL)
	if err != nil {
		return DatabaseConfig{}, err
	}

	password, _ := u.User.Password()
	port := 5432
	if u.Port() != "" {
		if port, err = strconv.Atoi(u.Port()); err != nil {
			return DatabaseConfig{}, fmt.Errorf("invalid port %q: %w", u.Port(), err)
		}
	}
	sslMode := u.Query().Get("sslmode")
	if sslMode == "" {
		sslMode = "disable"
	}

	return DatabaseConfig{
		Host:     u.Hostname(),
		Port:     port,
		User:     u.User.Username(),
		Password: password,
		DBName:   strings.TrimPrefix(u.Path, "/"),
		SSLMode:  sslMode,
	}, nil
}

const schema = `
CREATE TABLE IF NOT EXISTS categorizations (
	user_id        TEXT NOT NULL,
	scope          TEXT NOT NULL,
	item_id        TEXT NOT NULL,
	item_text      TEXT NOT NULL DEFAULT '',
	labels         TEXT[] NOT NULL DEFAULT '{}',
	is_ignored     BOOLEAN NOT NULL DEFAULT FALSE,
	categorized_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	PRIMARY KEY (user_id, scope, item_id)
)`

// PostgresDB is a shared connection; Scope yields a Store per user and engine.
type PostgresDB struct {
	db *sql.DB
}

func OpenPostgres(config DatabaseConfig) (*PostgresDB, error) {
	connStr := fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		config.Host, config.Port, config.User, config.Password, config.DBName, config.SSLMode)

	db, err := sql.Open("postgres", connStr)
	if err != nil {
		return nil, fmt.Errorf("error opening database: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("error connecting to the database: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("error initializing database schema: %w", err)
	}
	return &PostgresDB{db: db}, nil
}

func (p *PostgresDB) Scope(userID, scope string) *PostgresStore {
	return &PostgresStore{db: p.db, userID: userID, scope: scope}
}

func (p *PostgresDB) Close() error {
	return p.db.Close()
}

// PostgresStore implements Store on a categorizations table.
type PostgresStore struct {
	db     *sql.DB
	userID string
	scope  string
}

var _ Store = (*PostgresStore)(nil)

func (s *PostgresStore) PutCategorization(ctx context.Context, r models.RemoteRecord) error {
	labels := r.Labels
	if labels == nil || r.IsIgnored {
		labels = []string{}
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO categorizations (user_id, scope, item_id, item_text, labels, is_ignored, categorized_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (user_id, scope, item_id) DO UPDATE SET
			item_text = EXCLUDED.item_text,
			labels = EXCLUDED.labels,
			is_ignored = EXCLUDED.is_ignored,
			categorized_at = EXCLUDED.categorized_at`,
		s.userID, s.scope, r.ItemID, r.ItemText, pq.Array(labels), r.IsIgnored, r.CategorizedAt,
	)
	if err != nil {
		return fmt.Errorf("error upserting categorization: %w", err)
	}
	return nil
}

func (s *PostgresStore) ListCategorizations(ctx context.Context) ([]models.RemoteRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT item_id, item_text, labels, is_ignored, categorized_at
		FROM categorizations
		WHERE user_id = $1 AND scope = $2
		ORDER BY categorized_at`,
		s.userID, s.scope,
	)
	if err != nil {
		return nil, fmt.Errorf("error querying categorizations: %w", err)
	}
	defer rows.Close()

	var out []models.RemoteRecord
	for rows.Next() {
		var r models.RemoteRecord
		if err := rows.Scan(&r.ItemID, &r.ItemText, pq.Array(&r.Labels), &r.IsIgnored, &r.CategorizedAt); err != nil {
			return nil, fmt.Errorf("error scanning categorization: %w", err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func (s *PostgresStore) DeleteCategorization(ctx context.Context, itemID string) error {
	_, err := s.db.ExecContext(ctx,
		`DELETE FROM categorizations WHERE user_id = $1 AND scope = $2 AND item_id = $3`,
		s.userID, s.scope, itemID)
	if err != nil {
		return fmt.Errorf("error deleting categorization: %w", err)
	}
	return nil
}

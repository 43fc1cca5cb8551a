package rules

import (
	"context"
	"fmt"
	"net/url"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	"go.uber.org/zap"
)

// Repository persists the rule set in PostgreSQL so custom rules survive
// restarts. The in-memory Store stays authoritative at runtime; the
// repository loads at startup and saves after mutations.
type Repository struct {
	db     *sqlx.DB
	logger *zap.Logger
}

// RepositoryConfig contains database configuration.
type RepositoryConfig struct {
	DatabaseURL     string        `yaml:"database_url" mapstructure:"database_url"`
	MaxOpenConns    int           `yaml:"max_open_conns" mapstructure:"max_open_conns"`
	MaxIdleConns    int           `yaml:"max_idle_conns" mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime" mapstructure:"conn_max_lifetime"`
}

const schema = `
CREATE TABLE IF NOT EXISTS detection_rules (
	id          TEXT PRIMARY KEY,
	name        TEXT NOT NULL,
	type        TEXT NOT NULL,
	enabled     BOOLEAN NOT NULL DEFAULT TRUE,
	level       TEXT NOT NULL,
	description TEXT NOT NULL DEFAULT '',
	pattern     TEXT NOT NULL DEFAULT '',
	position    INTEGER NOT NULL
)`

// NewRepository connects to the database and ensures the rules table exists.
func NewRepository(config *RepositoryConfig, logger *zap.Logger) (*Repository, error) {
	db, err := sqlx.Connect("postgres", config.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	db.SetMaxOpenConns(config.MaxOpenConns)
	db.SetMaxIdleConns(config.MaxIdleConns)
	db.SetConnMaxLifetime(config.ConnMaxLifetime)

	repo := &Repository{db: db, logger: logger}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := repo.initialize(ctx); err != nil {
		return nil, fmt.Errorf("failed to initialize rule repository: %w", err)
	}

	logger.Info("Rule repository initialized",
		zap.String("database_url", maskDatabaseURL(config.DatabaseURL)),
		zap.Int("max_open_conns", config.MaxOpenConns))

	return repo, nil
}

func (r *Repository) initialize(ctx context.Context) error {
	if err := r.db.PingContext(ctx); err != nil {
		return fmt.Errorf("database ping failed: %w", err)
	}
	if _, err := r.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("failed to create rules table: %w", err)
	}
	return nil
}

// LoadAll returns every persisted rule in stored position order.
func (r *Repository) LoadAll(ctx context.Context) ([]Rule, error) {
	var out []Rule
	query := `SELECT id, name, type, enabled, level, description, pattern
		FROM detection_rules ORDER BY position`
	if err := r.db.SelectContext(ctx, &out, query); err != nil {
		return nil, fmt.Errorf("failed to load rules: %w", err)
	}
	return out, nil
}

// SaveAll replaces the persisted rule set with the given one inside a
// single transaction, preserving ordering via the position column.
func (r *Repository) SaveAll(ctx context.Context, rs []Rule) error {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM detection_rules`); err != nil {
		return fmt.Errorf("failed to clear rules: %w", err)
	}

	query := `INSERT INTO detection_rules
		(id, name, type, enabled, level, description, pattern, position)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`
	for i, rule := range rs {
		if _, err := tx.ExecContext(ctx, query,
			rule.ID, rule.Name, rule.Type, rule.Enabled,
			rule.Level, rule.Description, rule.Pattern, i,
		); err != nil {
			return fmt.Errorf("failed to insert rule %s: %w", rule.ID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit rules: %w", err)
	}

	r.logger.Debug("Rules persisted", zap.Int("count", len(rs)))
	return nil
}

// Close releases the database connection pool.
func (r *Repository) Close() error {
	return r.db.Close()
}

// maskDatabaseURL hides credentials in connection strings before logging.
func maskDatabaseURL(raw string) string {
	u, err := url.Parse(raw)
	if err != nil || u.User == nil {
		return raw
	}
	if _, hasPass := u.User.Password(); hasPass {
		u.User = url.UserPassword(u.User.Username(), "xxxx")
	}
	return u.String()
}

// Package store provides typed persistent storage for the control
// plane entities using SQLite for durability across restarts.
package store

import (
	"context"
	"database/sql"
	stderrors "errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	_ "modernc.org/sqlite"

	"github.com/pitsense/pitsense/internal/config"
	"github.com/pitsense/pitsense/internal/errors"
)

// dbtx is satisfied by both *sql.DB and *sql.Tx so every query method
// works inside and outside a transaction.
type dbtx interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// Queries holds all entity query methods. Obtain one from a Store
// (ambient scope) or inside WithTx (transactional scope).
type Queries struct {
	db dbtx
}

// Store owns the database handle and the ambient query scope.
type Store struct {
	Queries
	db *sql.DB
}

// New opens (creating if needed) the SQLite database at cfg.URL and
// initializes the schema.
func New(cfg config.DB) (*Store, error) {
	dir := filepath.Dir(cfg.URL)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}

	// WAL mode for better concurrent access
	db, err := sql.Open("sqlite", cfg.URL+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// SQLite works best with a single writer
	db.SetMaxOpenConns(cfg.PoolSize)
	db.SetMaxIdleConns(cfg.MaxOverflow)
	db.SetConnMaxLifetime(0)

	s := &Store{Queries: Queries{db: db}, db: db}
	if err := s.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	log.Info().Str("path", cfg.URL).Msg("Store initialized")
	return s, nil
}

// WithTx runs fn inside a transaction. The transaction commits when fn
// returns nil and rolls back otherwise.
func (s *Store) WithTx(ctx context.Context, fn func(q *Queries) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return errors.E(errors.KindTransient, "store.WithTx", err)
	}
	if err := fn(&Queries{db: tx}); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			log.Error().Err(rbErr).Msg("Transaction rollback failed")
		}
		return err
	}
	if err := tx.Commit(); err != nil {
		return errors.E(errors.KindTransient, "store.WithTx", err)
	}
	return nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) initSchema() error {
	schema := `
		CREATE TABLE IF NOT EXISTS tenants (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			name TEXT NOT NULL,
			slug TEXT NOT NULL UNIQUE,
			subscription_plan TEXT NOT NULL DEFAULT 'trial',
			subscription_status TEXT NOT NULL DEFAULT 'trial',
			expires_at INTEGER,
			is_active INTEGER NOT NULL DEFAULT 1,
			created_at INTEGER NOT NULL,
			updated_at INTEGER NOT NULL
		);

		CREATE TABLE IF NOT EXISTS locations (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			tenant_id INTEGER NOT NULL REFERENCES tenants(id),
			number INTEGER NOT NULL,
			name TEXT,
			status TEXT NOT NULL DEFAULT 'active',
			camera_ip TEXT,
			camera_rtsp_url TEXT,
			camera_model TEXT,
			camera_online INTEGER NOT NULL DEFAULT 0,
			created_at INTEGER NOT NULL,
			UNIQUE(tenant_id, number)
		);

		CREATE TABLE IF NOT EXISTS devices (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			device_id TEXT NOT NULL UNIQUE,
			license_key TEXT UNIQUE,
			tenant_id INTEGER REFERENCES tenants(id),
			location_id INTEGER REFERENCES locations(id),
			primary_sensor_type TEXT NOT NULL DEFAULT 'DHT22',
			aq_sensor_type TEXT,
			firmware_version TEXT,
			mac TEXT,
			ip TEXT,
			status TEXT NOT NULL DEFAULT 'pending',
			is_online INTEGER NOT NULL DEFAULT 0,
			last_seen INTEGER,
			last_message INTEGER,
			report_interval_seconds INTEGER NOT NULL DEFAULT 60,
			created_at INTEGER NOT NULL,
			updated_at INTEGER NOT NULL
		);

		CREATE TABLE IF NOT EXISTS sensor_types (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			code TEXT NOT NULL UNIQUE,
			name TEXT NOT NULL,
			capabilities INTEGER NOT NULL DEFAULT 0,
			is_active INTEGER NOT NULL DEFAULT 1
		);

		CREATE TABLE IF NOT EXISTS readings (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			device_id TEXT NOT NULL,
			location_id INTEGER NOT NULL,
			tenant_id INTEGER NOT NULL,
			primary_sensor_type TEXT,
			aq_sensor_type TEXT,
			temperature REAL,
			humidity REAL,
			pressure REAL,
			gas_resistance REAL,
			iaq REAL,
			iaq_accuracy INTEGER,
			pm1 REAL,
			pm25 REAL,
			pm10 REAL,
			particles_03um INTEGER,
			particles_05um INTEGER,
			particles_10um INTEGER,
			particles_25um INTEGER,
			particles_50um INTEGER,
			particles_100um INTEGER,
			is_valid INTEGER NOT NULL DEFAULT 1,
			validation_notes TEXT,
			device_timestamp INTEGER,
			created_at INTEGER NOT NULL
		);
		CREATE INDEX IF NOT EXISTS idx_readings_location_time ON readings(location_id, created_at);
		CREATE INDEX IF NOT EXISTS idx_readings_tenant_time ON readings(tenant_id, created_at);
		CREATE INDEX IF NOT EXISTS idx_readings_device_time ON readings(device_id, created_at);

		CREATE TABLE IF NOT EXISTS subscriptions (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			tenant_id INTEGER NOT NULL REFERENCES tenants(id),
			device_id TEXT,
			license_key TEXT NOT NULL UNIQUE,
			plan TEXT NOT NULL DEFAULT 'trial',
			status TEXT NOT NULL DEFAULT 'active',
			monthly_fee REAL,
			currency TEXT NOT NULL DEFAULT 'EUR',
			starts_at INTEGER,
			expires_at INTEGER,
			trial_expires_at INTEGER,
			grace_period_days INTEGER NOT NULL DEFAULT 7,
			last_payment_at INTEGER,
			next_payment_at INTEGER,
			created_at INTEGER NOT NULL
		);
		CREATE INDEX IF NOT EXISTS idx_subscriptions_device ON subscriptions(device_id);

		CREATE TABLE IF NOT EXISTS tenant_thresholds (
			tenant_id INTEGER PRIMARY KEY REFERENCES tenants(id),
			temp_min REAL NOT NULL,
			temp_max REAL NOT NULL,
			humidity_max REAL NOT NULL,
			pm25_warn REAL NOT NULL,
			pm25_crit REAL NOT NULL,
			pm10_warn REAL NOT NULL,
			pm10_crit REAL NOT NULL,
			iaq_warn REAL NOT NULL,
			iaq_crit REAL NOT NULL,
			device_offline_s INTEGER NOT NULL,
			camera_offline_s INTEGER NOT NULL,
			notify_sms INTEGER NOT NULL DEFAULT 0,
			notify_email INTEGER NOT NULL DEFAULT 0,
			notify_webhook INTEGER NOT NULL DEFAULT 0,
			webhook_url TEXT
		);

		CREATE TABLE IF NOT EXISTS location_thresholds (
			location_id INTEGER PRIMARY KEY REFERENCES locations(id),
			temp_min REAL,
			temp_max REAL,
			humidity_max REAL,
			pm25_warn REAL,
			pm25_crit REAL,
			pm10_warn REAL,
			pm10_crit REAL,
			iaq_warn REAL,
			iaq_crit REAL,
			device_offline_s INTEGER,
			camera_offline_s INTEGER
		);

		CREATE TABLE IF NOT EXISTS alerts (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			tenant_id INTEGER NOT NULL,
			location_id INTEGER,
			device_id TEXT,
			type TEXT NOT NULL,
			severity TEXT NOT NULL,
			message TEXT NOT NULL,
			trigger_value REAL,
			threshold_value REAL,
			is_acknowledged INTEGER NOT NULL DEFAULT 0,
			acked_by INTEGER,
			acked_at INTEGER,
			resolved_at INTEGER,
			sms_sent INTEGER NOT NULL DEFAULT 0,
			email_sent INTEGER NOT NULL DEFAULT 0,
			created_at INTEGER NOT NULL
		);
		CREATE INDEX IF NOT EXISTS idx_alerts_cooldown ON alerts(device_id, location_id, type, created_at);
		CREATE INDEX IF NOT EXISTS idx_alerts_tenant_time ON alerts(tenant_id, created_at);

		CREATE TABLE IF NOT EXISTS commands (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			device_id TEXT NOT NULL,
			tenant_id INTEGER NOT NULL,
			command TEXT NOT NULL,
			reason TEXT,
			payload TEXT,
			status TEXT NOT NULL DEFAULT 'pending',
			sent_at INTEGER,
			acked_at INTEGER,
			issuer_user_id INTEGER,
			created_at INTEGER NOT NULL
		);
		CREATE INDEX IF NOT EXISTS idx_commands_device_time ON commands(device_id, created_at);

		CREATE TABLE IF NOT EXISTS firmware_releases (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			version TEXT NOT NULL UNIQUE,
			filename TEXT NOT NULL,
			path TEXT NOT NULL,
			size INTEGER NOT NULL,
			sha256 TEXT NOT NULL,
			notes TEXT,
			uploader_id INTEGER,
			created_at INTEGER NOT NULL
		);

		CREATE TABLE IF NOT EXISTS audit_logs (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			tenant_id INTEGER,
			user_id INTEGER,
			action TEXT NOT NULL,
			resource_type TEXT,
			resource_id TEXT,
			old_value TEXT,
			new_value TEXT,
			ip TEXT,
			user_agent TEXT,
			created_at INTEGER NOT NULL
		);
	`
	if _, err := s.db.Exec(schema); err != nil {
		return err
	}
	return nil
}

// wrap maps a database error onto the control plane error kinds.
// Single-row misses become NotFound, unique violations Conflict,
// foreign key violations Invariant, everything else Transient.
func wrap(op string, err error) error {
	switch {
	case err == nil:
		return nil
	case stderrors.Is(err, sql.ErrNoRows):
		return errors.E(errors.KindNotFound, op, err)
	case strings.Contains(err.Error(), "UNIQUE constraint failed"):
		return errors.E(errors.KindConflict, op, err)
	case strings.Contains(err.Error(), "FOREIGN KEY constraint failed"):
		return errors.E(errors.KindInvariant, op, err)
	default:
		return errors.E(errors.KindTransient, op, err)
	}
}

// qualify prefixes every column in a comma-separated list with a table
// alias, for joined queries.
func qualify(columns, alias string) string {
	parts := strings.Split(columns, ",")
	for i, p := range parts {
		parts[i] = alias + "." + strings.TrimSpace(p)
	}
	return strings.Join(parts, ", ")
}

// Timestamps are stored as unix seconds (UTC).

func unix(t time.Time) int64 { return t.UTC().Unix() }

func unixPtr(t *time.Time) any {
	if t == nil {
		return nil
	}
	return t.UTC().Unix()
}

func fromUnix(n int64) time.Time { return time.Unix(n, 0).UTC() }

func fromNullUnix(n sql.NullInt64) *time.Time {
	if !n.Valid {
		return nil
	}
	t := fromUnix(n.Int64)
	return &t
}

func strOrNil(s sql.NullString) *string {
	if !s.Valid {
		return nil
	}
	return &s.String
}

func strEmpty(s sql.NullString) string {
	return s.String
}

func floatOrNil(f sql.NullFloat64) *float64 {
	if !f.Valid {
		return nil
	}
	return &f.Float64
}

func intOrNil(n sql.NullInt64) *int64 {
	if !n.Valid {
		return nil
	}
	return &n.Int64
}

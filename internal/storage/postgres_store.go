package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "github.com/lib/pq" // PostgreSQL driver
	"github.com/mohamedkhairy/stock-watchlist/internal/config"
	"github.com/mohamedkhairy/stock-watchlist/internal/models"
	"github.com/mohamedkhairy/stock-watchlist/pkg/logger"
)

// monitorsSchema keeps the single-rule columns of the old layout. Rows whose
// rules column is NULL are lifted on load and rewritten in the current shape
// on their first write.
const monitorsSchema = `
CREATE TABLE IF NOT EXISTS monitors (
	id                       TEXT PRIMARY KEY,
	owner_id                 TEXT NOT NULL,
	code                     VARCHAR(16) NOT NULL,
	name                     VARCHAR(255) NOT NULL,
	is_active                BOOLEAN NOT NULL DEFAULT TRUE,
	rules                    JSONB,
	last_reset_date          VARCHAR(10),
	monitor_type             VARCHAR(32),
	target_price             DOUBLE PRECISION,
	condition                VARCHAR(16),
	premium_threshold        DOUBLE PRECISION,
	change_percent_threshold DOUBLE PRECISION,
	notification_sent        BOOLEAN,
	created_at               TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	updated_at               TIMESTAMPTZ NOT NULL DEFAULT NOW()
);
CREATE INDEX IF NOT EXISTS monitors_owner_id_idx ON monitors (owner_id);
`

const monitorColumns = `id, owner_id, code, name, is_active, rules, last_reset_date,
	monitor_type, target_price, condition, premium_threshold, change_percent_threshold,
	notification_sent, created_at, updated_at`

// PostgresMonitorStore is a PostgreSQL-backed implementation of MonitorStore
type PostgresMonitorStore struct {
	db          *sql.DB
	tradingDate func(time.Time) string
}

// NewPostgresMonitorStore opens the database and verifies the connection.
// tradingDate maps a legacy row's updated_at to the trading date its
// notification belongs to.
func NewPostgresMonitorStore(dbConfig config.DatabaseConfig, tradingDate func(time.Time) string) (*PostgresMonitorStore, error) {
	db, err := sql.Open("postgres", dbConfig.DSN())
	if err != nil {
		return nil, fmt.Errorf("failed to open database connection: %w", err)
	}

	db.SetMaxOpenConns(dbConfig.MaxConnections)
	db.SetMaxIdleConns(dbConfig.MaxIdleConns)
	db.SetConnMaxLifetime(dbConfig.ConnMaxLifetime)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	logger.Info("Postgres monitor store initialized",
		logger.String("host", dbConfig.Host),
		logger.Int("port", dbConfig.Port),
		logger.String("database", dbConfig.Database),
	)

	return &PostgresMonitorStore{db: db, tradingDate: tradingDate}, nil
}

// EnsureSchema creates the monitors table when missing
func (s *PostgresMonitorStore) EnsureSchema(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, monitorsSchema); err != nil {
		return fmt.Errorf("failed to create schema: %w", err)
	}
	return nil
}

// Ping verifies the database connection
func (s *PostgresMonitorStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close closes the database connection
func (s *PostgresMonitorStore) Close() error {
	return s.db.Close()
}

// LoadAll retrieves every monitor owned by ownerID. Rows that cannot be
// migrated into a valid monitor are logged and skipped. Legacy rows are
// rewritten in the current shape once they have been lifted.
func (s *PostgresMonitorStore) LoadAll(ctx context.Context, ownerID string) ([]*models.Monitor, error) {
	query := `SELECT ` + monitorColumns + ` FROM monitors WHERE owner_id = $1 ORDER BY created_at, id`

	rows, err := s.db.QueryContext(ctx, query, ownerID)
	if err != nil {
		return nil, fmt.Errorf("failed to query monitors: %w", err)
	}
	defer rows.Close()

	monitors := make([]*models.Monitor, 0)
	var lifted []*models.Monitor
	for rows.Next() {
		var row monitorRow
		if err := row.scan(rows); err != nil {
			return nil, fmt.Errorf("failed to scan monitor: %w", err)
		}
		m, err := row.migrate(s.tradingDate)
		if err != nil {
			logger.Warn("Dropping malformed monitor row",
				logger.String("monitor_id", row.ID),
				logger.String("owner_id", ownerID),
				logger.ErrorField(err),
			)
			continue
		}
		if row.isLegacy() {
			lifted = append(lifted, m)
		}
		monitors = append(monitors, m)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating rows: %w", err)
	}
	rows.Close()

	for _, m := range lifted {
		if err := s.persistLifted(ctx, m); err != nil {
			logger.Warn("Failed to rewrite legacy monitor row",
				logger.String("monitor_id", m.ID),
				logger.ErrorField(err),
			)
		}
	}
	return monitors, nil
}

// persistLifted stores a lifted legacy row in the current shape. Rows that
// were rewritten concurrently are left alone.
func (s *PostgresMonitorStore) persistLifted(ctx context.Context, m *models.Monitor) error {
	rulesJSON, err := json.Marshal(m.Rules)
	if err != nil {
		return fmt.Errorf("failed to marshal rules: %w", err)
	}

	query := `
		UPDATE monitors
		SET code = $2, rules = $3, last_reset_date = $4,
		    monitor_type = NULL, target_price = NULL, condition = NULL, premium_threshold = NULL,
		    change_percent_threshold = NULL, notification_sent = NULL
		WHERE id = $1 AND rules IS NULL
	`
	if _, err := s.db.ExecContext(ctx, query, m.ID, m.Code, rulesJSON, nullString(m.LastResetDate)); err != nil {
		return fmt.Errorf("failed to rewrite legacy monitor: %w", err)
	}
	return nil
}

// Get retrieves a monitor by ID
func (s *PostgresMonitorStore) Get(ctx context.Context, id string) (*models.Monitor, error) {
	query := `SELECT ` + monitorColumns + ` FROM monitors WHERE id = $1`

	var row monitorRow
	err := row.scan(s.db.QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", models.ErrMonitorNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query monitor: %w", err)
	}
	return row.migrate(s.tradingDate)
}

// Insert validates and inserts a new monitor
func (s *PostgresMonitorStore) Insert(ctx context.Context, monitor *models.Monitor) (*models.Monitor, error) {
	if monitor == nil {
		return nil, fmt.Errorf("monitor cannot be nil")
	}

	m := monitor.Clone()
	m.Code = models.NormalizeCode(m.Code)
	if err := m.Validate(); err != nil {
		return nil, fmt.Errorf("invalid monitor: %w", err)
	}
	if m.ID == "" {
		m.ID = uuid.New().String()
	}
	now := time.Now()
	if m.CreatedAt.IsZero() {
		m.CreatedAt = now
	}
	m.UpdatedAt = now

	rulesJSON, err := json.Marshal(m.Rules)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal rules: %w", err)
	}

	query := `
		INSERT INTO monitors (id, owner_id, code, name, is_active, rules, last_reset_date, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`
	_, err = s.db.ExecContext(ctx, query,
		m.ID,
		m.OwnerID,
		m.Code,
		m.Name,
		m.IsActive,
		rulesJSON,
		nullString(m.LastResetDate),
		m.CreatedAt,
		m.UpdatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to insert monitor: %w", err)
	}
	return m, nil
}

// Replace applies patch inside a transaction holding the row lock
func (s *PostgresMonitorStore) Replace(ctx context.Context, id string, patch models.MonitorPatch) (*models.Monitor, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	var row monitorRow
	err = row.scan(tx.QueryRowContext(ctx, `SELECT `+monitorColumns+` FROM monitors WHERE id = $1 FOR UPDATE`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", models.ErrMonitorNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query monitor: %w", err)
	}

	m, err := row.migrate(s.tradingDate)
	if err != nil {
		return nil, err
	}
	patch.Apply(m, time.Now())
	if err := m.Validate(); err != nil {
		return nil, fmt.Errorf("invalid monitor: %w", err)
	}

	rulesJSON, err := json.Marshal(m.Rules)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal rules: %w", err)
	}

	query := `
		UPDATE monitors
		SET code = $2, name = $3, is_active = $4, rules = $5, last_reset_date = $6, updated_at = $7,
		    monitor_type = NULL, target_price = NULL, condition = NULL, premium_threshold = NULL,
		    change_percent_threshold = NULL, notification_sent = NULL
		WHERE id = $1
	`
	if _, err := tx.ExecContext(ctx, query,
		id,
		m.Code,
		m.Name,
		m.IsActive,
		rulesJSON,
		nullString(m.LastResetDate),
		m.UpdatedAt,
	); err != nil {
		return nil, fmt.Errorf("failed to update monitor: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit monitor update: %w", err)
	}
	return m, nil
}

// Delete deletes a monitor by ID. Rules live in the row, so they go with it.
func (s *PostgresMonitorStore) Delete(ctx context.Context, id string) (bool, error) {
	result, err := s.db.ExecContext(ctx, `DELETE FROM monitors WHERE id = $1`, id)
	if err != nil {
		return false, fmt.Errorf("failed to delete monitor: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to read affected rows: %w", err)
	}
	return affected > 0, nil
}

// ListOwners returns the distinct owners in the table
func (s *PostgresMonitorStore) ListOwners(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT DISTINCT owner_id FROM monitors ORDER BY owner_id`)
	if err != nil {
		return nil, fmt.Errorf("failed to query owners: %w", err)
	}
	defer rows.Close()

	owners := make([]string, 0)
	for rows.Next() {
		var owner string
		if err := rows.Scan(&owner); err != nil {
			return nil, fmt.Errorf("failed to scan owner: %w", err)
		}
		owners = append(owners, owner)
	}
	return owners, rows.Err()
}

// monitorRow mirrors one row of the monitors table
type monitorRow struct {
	ID                     string
	OwnerID                string
	Code                   string
	Name                   string
	IsActive               bool
	Rules                  []byte
	LastResetDate          sql.NullString
	MonitorType            sql.NullString
	TargetPrice            sql.NullFloat64
	Condition              sql.NullString
	PremiumThreshold       sql.NullFloat64
	ChangePercentThreshold sql.NullFloat64
	NotificationSent       sql.NullBool
	CreatedAt              time.Time
	UpdatedAt              time.Time
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func (r *monitorRow) scan(s rowScanner) error {
	return s.Scan(
		&r.ID,
		&r.OwnerID,
		&r.Code,
		&r.Name,
		&r.IsActive,
		&r.Rules,
		&r.LastResetDate,
		&r.MonitorType,
		&r.TargetPrice,
		&r.Condition,
		&r.PremiumThreshold,
		&r.ChangePercentThreshold,
		&r.NotificationSent,
		&r.CreatedAt,
		&r.UpdatedAt,
	)
}

// record returns the row as a current or legacy monitor record
func (r *monitorRow) record() (models.MonitorRecord, error) {
	if !r.isLegacy() {
		var rules []models.Rule
		if err := json.Unmarshal(r.Rules, &rules); err != nil {
			return models.MonitorRecord{}, fmt.Errorf("%w: rules column: %v", models.ErrMalformedRecord, err)
		}
		return models.MonitorRecord{Current: &models.Monitor{
			ID:            r.ID,
			OwnerID:       r.OwnerID,
			Code:          r.Code,
			Name:          r.Name,
			IsActive:      r.IsActive,
			Rules:         rules,
			LastResetDate: r.LastResetDate.String,
			CreatedAt:     r.CreatedAt,
			UpdatedAt:     r.UpdatedAt,
		}}, nil
	}

	return models.MonitorRecord{Legacy: &models.LegacyMonitor{
		ID:                     r.ID,
		OwnerID:                r.OwnerID,
		Code:                   r.Code,
		Name:                   r.Name,
		MonitorType:            r.MonitorType.String,
		TargetPrice:            nullFloat(r.TargetPrice),
		Condition:              r.Condition.String,
		PremiumThreshold:       nullFloat(r.PremiumThreshold),
		ChangePercentThreshold: nullFloat(r.ChangePercentThreshold),
		IsActive:               models.Bool(r.IsActive),
		NotificationSent:       r.NotificationSent.Valid && r.NotificationSent.Bool,
		CreatedAt:              r.CreatedAt,
		UpdatedAt:              r.UpdatedAt,
	}}, nil
}

func (r *monitorRow) isLegacy() bool {
	return r.Rules == nil
}

// migrate lifts the row into a current monitor. A legacy row that had
// notified is stamped with the trading date of its last update, so reading
// it again on a later day still triggers the daily reset.
func (r *monitorRow) migrate(tradingDate func(time.Time) string) (*models.Monitor, error) {
	rec, err := r.record()
	if err != nil {
		return nil, err
	}
	var firedOn string
	if rec.IsLegacy() && !r.UpdatedAt.IsZero() {
		firedOn = tradingDate(r.UpdatedAt)
	}
	return rec.Migrate(firedOn)
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func nullFloat(f sql.NullFloat64) *float64 {
	if !f.Valid {
		return nil
	}
	return models.Float(f.Float64)
}

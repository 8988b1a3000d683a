package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"
	"go.uber.org/zap"

	"cementwatch/internal/model"
)

// AlertLog defines the persistence surface for fired alerts: one record per
// evaluation batch, read back newest first for the dashboard feed.
type AlertLog interface {
	// Append writes one record containing the whole batch under the
	// batch's own id and timestamp, so the persisted row matches the
	// published feed. Empty batches are not written.
	Append(ctx context.Context, batch model.AlertBatch) error

	// Recent returns up to limit batches, newest first.
	Recent(ctx context.Context, limit int) ([]model.AlertBatch, error)

	// CountRecent returns the number of batches written since the cutoff.
	CountRecent(ctx context.Context, since time.Time) (int, error)
}

// HealthStore persists scheduled health-check records.
type HealthStore interface {
	AppendHealth(ctx context.Context, record model.HealthRecord) error
}

// SQLiteStore implements AlertLog, HealthStore and the threshold override
// store on a single SQLite database.
type SQLiteStore struct {
	logger *zap.Logger
	db     *sql.DB
}

// NewSQLiteStore opens (or creates) the database at path and ensures the
// schema exists. The file is kept across restarts so threshold overrides
// and the alert history survive.
func NewSQLiteStore(logger *zap.Logger, path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	s := &SQLiteStore{
		logger: logger.Named("storage"),
		db:     db,
	}

	if err := s.initialize(); err != nil {
		db.Close()
		return nil, err
	}

	return s, nil
}

func (s *SQLiteStore) initialize() error {
	_, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS alert_batches (
			id TEXT PRIMARY KEY,
			alerts TEXT NOT NULL,
			created_at DATETIME NOT NULL
		);
		CREATE INDEX IF NOT EXISTS idx_alert_batches_created_at ON alert_batches(created_at);

		CREATE TABLE IF NOT EXISTS threshold_overrides (
			parameter TEXT PRIMARY KEY,
			min REAL NOT NULL,
			max REAL NOT NULL,
			enabled INTEGER NOT NULL,
			updated_at DATETIME NOT NULL
		);

		CREATE TABLE IF NOT EXISTS health_checks (
			id TEXT PRIMARY KEY,
			created_at DATETIME NOT NULL,
			status TEXT NOT NULL,
			alerts_count INTEGER NOT NULL,
			cpu_percent REAL,
			mem_percent REAL
		);
	`)
	if err != nil {
		return fmt.Errorf("failed to initialize database: %w", err)
	}
	return nil
}

// Append implements AlertLog.Append.
func (s *SQLiteStore) Append(ctx context.Context, batch model.AlertBatch) error {
	if len(batch.Alerts) == 0 {
		return nil
	}

	payload, err := json.Marshal(batch.Alerts)
	if err != nil {
		return fmt.Errorf("failed to marshal alert batch: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO alert_batches (id, alerts, created_at) VALUES (?, ?, ?)`,
		batch.ID,
		string(payload),
		batch.Timestamp.UTC(),
	)
	if err != nil {
		return fmt.Errorf("failed to append alert batch: %w", err)
	}

	s.logger.Info("Alert batch logged",
		zap.String("batch_id", batch.ID),
		zap.Int("alerts", len(batch.Alerts)))
	return nil
}

// Recent implements AlertLog.Recent.
func (s *SQLiteStore) Recent(ctx context.Context, limit int) ([]model.AlertBatch, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, alerts, created_at FROM alert_batches
		ORDER BY created_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list alert batches: %w", err)
	}
	defer rows.Close()

	var batches []model.AlertBatch
	for rows.Next() {
		var batch model.AlertBatch
		var alerts string
		if err := rows.Scan(&batch.ID, &alerts, &batch.Timestamp); err != nil {
			return nil, fmt.Errorf("failed to scan alert batch: %w", err)
		}
		if err := json.Unmarshal([]byte(alerts), &batch.Alerts); err != nil {
			return nil, fmt.Errorf("failed to unmarshal alert batch %s: %w", batch.ID, err)
		}
		batches = append(batches, batch)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error during row iteration: %w", err)
	}

	return batches, nil
}

// CountRecent implements AlertLog.CountRecent.
func (s *SQLiteStore) CountRecent(ctx context.Context, since time.Time) (int, error) {
	var count int
	err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM alert_batches WHERE created_at >= ?`, since.UTC()).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count alert batches: %w", err)
	}
	return count, nil
}

// SaveThreshold implements alert.OverrideStore.
func (s *SQLiteStore) SaveThreshold(ctx context.Context, t model.Threshold) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO threshold_overrides (parameter, min, max, enabled, updated_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(parameter) DO UPDATE SET
			min = excluded.min,
			max = excluded.max,
			enabled = excluded.enabled,
			updated_at = excluded.updated_at`,
		t.Parameter, t.Min, t.Max, t.Enabled, time.Now().UTC(),
	)
	if err != nil {
		return fmt.Errorf("failed to save threshold override: %w", err)
	}
	return nil
}

// LoadThresholds implements alert.OverrideStore.
func (s *SQLiteStore) LoadThresholds(ctx context.Context) ([]model.Threshold, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT parameter, min, max, enabled FROM threshold_overrides`)
	if err != nil {
		return nil, fmt.Errorf("failed to load threshold overrides: %w", err)
	}
	defer rows.Close()

	var thresholds []model.Threshold
	for rows.Next() {
		var t model.Threshold
		if err := rows.Scan(&t.Parameter, &t.Min, &t.Max, &t.Enabled); err != nil {
			return nil, fmt.Errorf("failed to scan threshold override: %w", err)
		}
		thresholds = append(thresholds, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error during row iteration: %w", err)
	}

	return thresholds, nil
}

// AppendHealth implements HealthStore.AppendHealth.
func (s *SQLiteStore) AppendHealth(ctx context.Context, record model.HealthRecord) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO health_checks (id, created_at, status, alerts_count, cpu_percent, mem_percent)
		VALUES (?, ?, ?, ?, ?, ?)`,
		uuid.New().String(),
		record.Timestamp.UTC(),
		record.Status,
		record.AlertsCount,
		record.CPUPercent,
		record.MemPercent,
	)
	if err != nil {
		return fmt.Errorf("failed to append health record: %w", err)
	}
	return nil
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

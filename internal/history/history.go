package history

import (
	"context"
	"database/sql"
	"os"
	"path/filepath"
	"time"

	deployagent "github.com/duodevices/DeployAgent"
	"github.com/duodevices/DeployAgent/internal/config"
	"github.com/google/uuid"
	"github.com/pkg/errors"
	_ "modernc.org/sqlite"
)

const (
	// EnvHistoryDBPath overrides the deployment history database location.
	EnvHistoryDBPath = "DEPLOY_HISTORY_DB"

	defaultDBDirName  = ".deployagent"
	defaultDBFileName = "history.sqlite"
)

// Store persists batch outcomes to a local SQLite database. It implements
// deployagent.ResultRecorder.
type Store struct {
	db *sql.DB
}

// BatchSummary is one row returned by RecentBatches.
type BatchSummary struct {
	ID              string
	FirmwareVersion string
	Success         bool
	Message         string
	DeviceCount     int
	StartedAt       time.Time
	FinishedAt      time.Time
}

// DeviceOutcome is one per-device row of a recorded batch.
type DeviceOutcome struct {
	BatchID    string
	DevicePath string
	Label      string
	Role       string
	Success    bool
	Error      string
}

// Open opens (and if needed creates) the history database. The location is
// taken from DEPLOY_HISTORY_DB or defaults to ~/.deployagent/history.sqlite.
func Open() (*Store, error) {
	path, err := resolveDatabasePath()
	if err != nil {
		return nil, err
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, errors.Wrap(err, "history: open sqlite database failed")
	}
	if err := configureSQLite(db); err != nil {
		db.Close()
		return nil, err
	}
	if err := prepareSchema(db); err != nil {
		db.Close()
		return nil, err
	}
	return &Store{db: db}, nil
}

// Close releases the underlying database handle.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// RecordBatch persists one frozen batch result and its per-device outcomes
// in a single transaction.
func (s *Store) RecordBatch(ctx context.Context, record deployagent.BatchRecord) error {
	if s == nil || s.db == nil {
		return errors.New("history: store is not open")
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return errors.Wrap(err, "history: begin transaction failed")
	}
	batchID := uuid.New().String()
	_, err = tx.ExecContext(ctx,
		`INSERT INTO deployment_batches
			(id, firmware_version, success, message, device_count, started_at, finished_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		batchID,
		record.FirmwareVersion,
		record.Result.Success,
		record.Result.Message,
		len(record.Result.DeviceUpdates),
		record.StartedAt.UTC().Format(time.RFC3339Nano),
		record.FinishedAt.UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		tx.Rollback()
		return errors.Wrap(err, "history: insert batch failed")
	}
	for _, update := range record.Result.DeviceUpdates {
		_, err = tx.ExecContext(ctx,
			`INSERT INTO deployment_devices
				(batch_id, device_path, label, role, success, error)
			 VALUES (?, ?, ?, ?, ?, ?)`,
			batchID,
			update.Device.Path,
			update.Device.Label,
			string(update.Device.Role),
			update.Success,
			update.Error,
		)
		if err != nil {
			tx.Rollback()
			return errors.Wrapf(err, "history: insert device outcome %s failed", update.Device.Path)
		}
	}
	if err := tx.Commit(); err != nil {
		return errors.Wrap(err, "history: commit batch failed")
	}
	return nil
}

// RecentBatches returns the latest batches, newest first.
func (s *Store) RecentBatches(ctx context.Context, limit int) ([]BatchSummary, error) {
	if s == nil || s.db == nil {
		return nil, errors.New("history: store is not open")
	}
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, firmware_version, success, message, device_count, started_at, finished_at
		 FROM deployment_batches
		 ORDER BY started_at DESC
		 LIMIT ?`, limit)
	if err != nil {
		return nil, errors.Wrap(err, "history: query batches failed")
	}
	defer rows.Close()

	var result []BatchSummary
	for rows.Next() {
		var summary BatchSummary
		var startedAt, finishedAt string
		if err := rows.Scan(
			&summary.ID,
			&summary.FirmwareVersion,
			&summary.Success,
			&summary.Message,
			&summary.DeviceCount,
			&startedAt,
			&finishedAt,
		); err != nil {
			return nil, errors.Wrap(err, "history: scan batch row failed")
		}
		summary.StartedAt, _ = time.Parse(time.RFC3339Nano, startedAt)
		summary.FinishedAt, _ = time.Parse(time.RFC3339Nano, finishedAt)
		result = append(result, summary)
	}
	return result, rows.Err()
}

// DeviceOutcomes returns the per-device rows of one batch.
func (s *Store) DeviceOutcomes(ctx context.Context, batchID string) ([]DeviceOutcome, error) {
	if s == nil || s.db == nil {
		return nil, errors.New("history: store is not open")
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT batch_id, device_path, label, role, success, error
		 FROM deployment_devices
		 WHERE batch_id = ?`, batchID)
	if err != nil {
		return nil, errors.Wrap(err, "history: query device outcomes failed")
	}
	defer rows.Close()

	var result []DeviceOutcome
	for rows.Next() {
		var outcome DeviceOutcome
		if err := rows.Scan(
			&outcome.BatchID,
			&outcome.DevicePath,
			&outcome.Label,
			&outcome.Role,
			&outcome.Success,
			&outcome.Error,
		); err != nil {
			return nil, errors.Wrap(err, "history: scan device outcome failed")
		}
		result = append(result, outcome)
	}
	return result, rows.Err()
}

func resolveDatabasePath() (string, error) {
	if custom := config.String(EnvHistoryDBPath, ""); custom != "" {
		if err := ensureDirExists(filepath.Dir(custom)); err != nil {
			return "", err
		}
		return custom, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", errors.Wrap(err, "history: locate user home failed")
	}
	dir := filepath.Join(home, defaultDBDirName)
	if err := ensureDirExists(dir); err != nil {
		return "", err
	}
	return filepath.Join(dir, defaultDBFileName), nil
}

func ensureDirExists(path string) error {
	if path == "" {
		return nil
	}
	if err := os.MkdirAll(path, 0o755); err != nil {
		return errors.Wrapf(err, "history: create dir %s failed", path)
	}
	return nil
}

func configureSQLite(db *sql.DB) error {
	pragmas := []string{
		"PRAGMA journal_mode=WAL;",
		"PRAGMA synchronous=NORMAL;",
		"PRAGMA temp_store=MEMORY;",
		"PRAGMA busy_timeout=5000;",
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			return errors.Wrapf(err, "history: execute %s failed", pragma)
		}
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	return nil
}

func prepareSchema(db *sql.DB) error {
	statements := []string{
		`CREATE TABLE IF NOT EXISTS deployment_batches (
			id TEXT PRIMARY KEY,
			firmware_version TEXT NOT NULL,
			success INTEGER NOT NULL,
			message TEXT NOT NULL,
			device_count INTEGER NOT NULL,
			started_at TEXT NOT NULL,
			finished_at TEXT NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS deployment_devices (
			batch_id TEXT NOT NULL REFERENCES deployment_batches(id),
			device_path TEXT NOT NULL,
			label TEXT,
			role TEXT,
			success INTEGER NOT NULL,
			error TEXT
		);`,
		`CREATE INDEX IF NOT EXISTS idx_deployment_devices_batch ON deployment_devices(batch_id);`,
	}
	for _, stmt := range statements {
		if _, err := db.Exec(stmt); err != nil {
			return errors.Wrap(err, "history: prepare schema failed")
		}
	}
	return nil
}

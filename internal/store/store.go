// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package store persists imported experiments, datasets, sessions and
// analysis results in SQLite.
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/ManuGH/monstim/internal/emg"
)

const schemaVersion = 1

// ErrNotFound is returned when a requested record does not exist.
var ErrNotFound = errors.New("not found")

// Store is the SQLite-backed persistence layer.
type Store struct {
	db *sql.DB
}

// DatasetRecord describes one imported dataset.
type DatasetRecord struct {
	DatasetID  string    `json:"dataset_id"`
	Experiment string    `json:"experiment"`
	Date       string    `json:"date"`
	AnimalID   string    `json:"animal_id"`
	Condition  string    `json:"condition"`
	ImportedAt time.Time `json:"imported_at"`
}

// SessionRecord is a stored session: acquisition info plus the raw sweeps.
type SessionRecord struct {
	SessionID  string             `json:"session_id"`
	DatasetID  string             `json:"dataset_id"`
	Info       emg.SessionInfo    `json:"info"`
	Recordings []emg.RawRecording `json:"recordings,omitempty"`
	SourcePath string             `json:"source_path"`
	ImportedAt time.Time          `json:"imported_at"`
}

// ResultRecord is a persisted analysis result.
type ResultRecord struct {
	SessionID  string          `json:"session_id"`
	Kind       string          `json:"kind"`
	ParamsHash string          `json:"params_hash"`
	Result     json.RawMessage `json:"result"`
	ComputedAt time.Time       `json:"computed_at"`
}

// New opens (or creates) the store at dbPath and migrates the schema.
func New(dbPath string) (*Store, error) {
	db, err := openSQLite(dbPath, DefaultSQLiteConfig())
	if err != nil {
		return nil, err
	}
	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("store: migration failed: %w", err)
	}
	return s, nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) migrate() error {
	var currentVersion int
	if err := s.db.QueryRow("PRAGMA user_version").Scan(&currentVersion); err != nil {
		return err
	}
	if currentVersion >= schemaVersion {
		return nil
	}

	tx, err := s.db.Begin()
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	schema := `
	CREATE TABLE IF NOT EXISTS experiments (
		name TEXT PRIMARY KEY,
		created_at_ms INTEGER NOT NULL
	);

	CREATE TABLE IF NOT EXISTS datasets (
		dataset_id TEXT PRIMARY KEY,
		experiment TEXT NOT NULL REFERENCES experiments(name) ON DELETE CASCADE,
		date TEXT NOT NULL,
		animal_id TEXT NOT NULL,
		condition TEXT NOT NULL,
		imported_at_ms INTEGER NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_datasets_experiment ON datasets(experiment);

	CREATE TABLE IF NOT EXISTS sessions (
		session_id TEXT PRIMARY KEY,
		dataset_id TEXT NOT NULL REFERENCES datasets(dataset_id) ON DELETE CASCADE,
		info_json TEXT NOT NULL,
		recordings_json BLOB NOT NULL,
		source_path TEXT NOT NULL,
		imported_at_ms INTEGER NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_sessions_dataset ON sessions(dataset_id);

	CREATE TABLE IF NOT EXISTS analysis_results (
		session_id TEXT NOT NULL REFERENCES sessions(session_id) ON DELETE CASCADE,
		kind TEXT NOT NULL,
		params_hash TEXT NOT NULL,
		result_json TEXT NOT NULL,
		computed_at_ms INTEGER NOT NULL,
		PRIMARY KEY (session_id, kind, params_hash)
	);
	`
	if _, err := tx.Exec(schema); err != nil {
		return err
	}
	if _, err := tx.Exec(fmt.Sprintf("PRAGMA user_version = %d", schemaVersion)); err != nil {
		return err
	}
	return tx.Commit()
}

// UpsertExperiment creates an experiment if it does not exist.
func (s *Store) UpsertExperiment(ctx context.Context, name string) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO experiments (name, created_at_ms) VALUES (?, ?)
		 ON CONFLICT(name) DO NOTHING`,
		name, time.Now().UnixMilli())
	if err != nil {
		return fmt.Errorf("store: upsert experiment %s: %w", name, err)
	}
	return nil
}

// ListExperiments returns all experiment names, ordered.
func (s *Store) ListExperiments(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT name FROM experiments ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("store: list experiments: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var names []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, err
		}
		names = append(names, name)
	}
	return names, rows.Err()
}

// UpsertDataset creates or replaces a dataset record.
func (s *Store) UpsertDataset(ctx context.Context, rec DatasetRecord) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO datasets (dataset_id, experiment, date, animal_id, condition, imported_at_ms)
		 VALUES (?, ?, ?, ?, ?, ?)
		 ON CONFLICT(dataset_id) DO UPDATE SET
			experiment = excluded.experiment,
			date = excluded.date,
			animal_id = excluded.animal_id,
			condition = excluded.condition,
			imported_at_ms = excluded.imported_at_ms`,
		rec.DatasetID, rec.Experiment, rec.Date, rec.AnimalID, rec.Condition, rec.ImportedAt.UnixMilli())
	if err != nil {
		return fmt.Errorf("store: upsert dataset %s: %w", rec.DatasetID, err)
	}
	return nil
}

// GetDataset returns one dataset record.
func (s *Store) GetDataset(ctx context.Context, datasetID string) (DatasetRecord, error) {
	var rec DatasetRecord
	var importedAt int64
	err := s.db.QueryRowContext(ctx,
		`SELECT dataset_id, experiment, date, animal_id, condition, imported_at_ms
		 FROM datasets WHERE dataset_id = ?`, datasetID).
		Scan(&rec.DatasetID, &rec.Experiment, &rec.Date, &rec.AnimalID, &rec.Condition, &importedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return DatasetRecord{}, fmt.Errorf("store: dataset %s: %w", datasetID, ErrNotFound)
	}
	if err != nil {
		return DatasetRecord{}, fmt.Errorf("store: get dataset %s: %w", datasetID, err)
	}
	rec.ImportedAt = time.UnixMilli(importedAt)
	return rec, nil
}

// ListDatasets returns the dataset records of one experiment (or all when
// experiment is empty), ordered by dataset ID.
func (s *Store) ListDatasets(ctx context.Context, experiment string) ([]DatasetRecord, error) {
	query := `SELECT dataset_id, experiment, date, animal_id, condition, imported_at_ms FROM datasets`
	args := []any{}
	if experiment != "" {
		query += ` WHERE experiment = ?`
		args = append(args, experiment)
	}
	query += ` ORDER BY dataset_id`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("store: list datasets: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []DatasetRecord
	for rows.Next() {
		var rec DatasetRecord
		var importedAt int64
		if err := rows.Scan(&rec.DatasetID, &rec.Experiment, &rec.Date, &rec.AnimalID, &rec.Condition, &importedAt); err != nil {
			return nil, err
		}
		rec.ImportedAt = time.UnixMilli(importedAt)
		out = append(out, rec)
	}
	return out, rows.Err()
}

// UpsertSession creates or replaces a session record, serializing the raw
// recordings to JSON.
func (s *Store) UpsertSession(ctx context.Context, rec SessionRecord) error {
	infoJSON, err := json.Marshal(rec.Info)
	if err != nil {
		return fmt.Errorf("store: marshal session info %s: %w", rec.SessionID, err)
	}
	recordingsJSON, err := json.Marshal(rec.Recordings)
	if err != nil {
		return fmt.Errorf("store: marshal recordings %s: %w", rec.SessionID, err)
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO sessions (session_id, dataset_id, info_json, recordings_json, source_path, imported_at_ms)
		 VALUES (?, ?, ?, ?, ?, ?)
		 ON CONFLICT(session_id) DO UPDATE SET
			dataset_id = excluded.dataset_id,
			info_json = excluded.info_json,
			recordings_json = excluded.recordings_json,
			source_path = excluded.source_path,
			imported_at_ms = excluded.imported_at_ms`,
		rec.SessionID, rec.DatasetID, string(infoJSON), recordingsJSON, rec.SourcePath, rec.ImportedAt.UnixMilli())
	if err != nil {
		return fmt.Errorf("store: upsert session %s: %w", rec.SessionID, err)
	}
	return nil
}

// GetSession returns one session including its raw recordings.
func (s *Store) GetSession(ctx context.Context, sessionID string) (SessionRecord, error) {
	var rec SessionRecord
	var infoJSON string
	var recordingsJSON []byte
	var importedAt int64
	err := s.db.QueryRowContext(ctx,
		`SELECT session_id, dataset_id, info_json, recordings_json, source_path, imported_at_ms
		 FROM sessions WHERE session_id = ?`, sessionID).
		Scan(&rec.SessionID, &rec.DatasetID, &infoJSON, &recordingsJSON, &rec.SourcePath, &importedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return SessionRecord{}, fmt.Errorf("store: session %s: %w", sessionID, ErrNotFound)
	}
	if err != nil {
		return SessionRecord{}, fmt.Errorf("store: get session %s: %w", sessionID, err)
	}

	if err := json.Unmarshal([]byte(infoJSON), &rec.Info); err != nil {
		return SessionRecord{}, fmt.Errorf("store: decode session info %s: %w", sessionID, err)
	}
	if err := json.Unmarshal(recordingsJSON, &rec.Recordings); err != nil {
		return SessionRecord{}, fmt.Errorf("store: decode recordings %s: %w", sessionID, err)
	}
	rec.ImportedAt = time.UnixMilli(importedAt)
	return rec, nil
}

// ListSessions returns the sessions of one dataset without their recordings
// (the blobs can be large; fetch a single session for the raw data).
func (s *Store) ListSessions(ctx context.Context, datasetID string) ([]SessionRecord, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT session_id, dataset_id, info_json, source_path, imported_at_ms
		 FROM sessions WHERE dataset_id = ? ORDER BY session_id`, datasetID)
	if err != nil {
		return nil, fmt.Errorf("store: list sessions: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []SessionRecord
	for rows.Next() {
		var rec SessionRecord
		var infoJSON string
		var importedAt int64
		if err := rows.Scan(&rec.SessionID, &rec.DatasetID, &infoJSON, &rec.SourcePath, &importedAt); err != nil {
			return nil, err
		}
		if err := json.Unmarshal([]byte(infoJSON), &rec.Info); err != nil {
			return nil, fmt.Errorf("store: decode session info %s: %w", rec.SessionID, err)
		}
		rec.ImportedAt = time.UnixMilli(importedAt)
		out = append(out, rec)
	}
	return out, rows.Err()
}

// DeleteSession removes a session and its analysis results.
func (s *Store) DeleteSession(ctx context.Context, sessionID string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM sessions WHERE session_id = ?`, sessionID)
	if err != nil {
		return fmt.Errorf("store: delete session %s: %w", sessionID, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("store: session %s: %w", sessionID, ErrNotFound)
	}
	return nil
}

// SaveResult persists an analysis result, replacing any previous result with
// the same parameters.
func (s *Store) SaveResult(ctx context.Context, rec ResultRecord) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO analysis_results (session_id, kind, params_hash, result_json, computed_at_ms)
		 VALUES (?, ?, ?, ?, ?)
		 ON CONFLICT(session_id, kind, params_hash) DO UPDATE SET
			result_json = excluded.result_json,
			computed_at_ms = excluded.computed_at_ms`,
		rec.SessionID, rec.Kind, rec.ParamsHash, string(rec.Result), rec.ComputedAt.UnixMilli())
	if err != nil {
		return fmt.Errorf("store: save result %s/%s: %w", rec.SessionID, rec.Kind, err)
	}
	return nil
}

// GetResult fetches a persisted analysis result.
func (s *Store) GetResult(ctx context.Context, sessionID, kind, paramsHash string) (ResultRecord, error) {
	var rec ResultRecord
	var resultJSON string
	var computedAt int64
	err := s.db.QueryRowContext(ctx,
		`SELECT session_id, kind, params_hash, result_json, computed_at_ms
		 FROM analysis_results WHERE session_id = ? AND kind = ? AND params_hash = ?`,
		sessionID, kind, paramsHash).
		Scan(&rec.SessionID, &rec.Kind, &rec.ParamsHash, &resultJSON, &computedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return ResultRecord{}, fmt.Errorf("store: result %s/%s: %w", sessionID, kind, ErrNotFound)
	}
	if err != nil {
		return ResultRecord{}, fmt.Errorf("store: get result %s/%s: %w", sessionID, kind, err)
	}
	rec.Result = json.RawMessage(resultJSON)
	rec.ComputedAt = time.UnixMilli(computedAt)
	return rec, nil
}

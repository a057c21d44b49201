//go:build sqlite

package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"

	"hybridfit/internal/model"

	_ "modernc.org/sqlite"
)

func DefaultStoreKind() string {
	return KindSQLite
}

func newSQLiteStore(path string) (Store, error) {
	return NewSQLiteStore(path), nil
}

type SQLiteStore struct {
	path string

	mu sync.RWMutex
	db *sql.DB
}

func NewSQLiteStore(path string) *SQLiteStore {
	return &SQLiteStore{path: path}
}

func (s *SQLiteStore) Init(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.path == "" {
		return errors.New("sqlite path is required")
	}
	if s.db != nil {
		return nil
	}

	db, err := sql.Open("sqlite", s.path)
	if err != nil {
		return err
	}

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return err
	}

	if err := createTables(ctx, db); err != nil {
		_ = db.Close()
		return err
	}

	s.db = db
	return nil
}

func (s *SQLiteStore) SaveFit(ctx context.Context, fit model.Fit) error {
	db, err := s.getDB()
	if err != nil {
		return err
	}

	payload, err := EncodeFit(fit)
	if err != nil {
		return err
	}

	_, err = db.ExecContext(ctx, `
		INSERT INTO fits (id, schema_version, codec_version, created_at, payload)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			schema_version = excluded.schema_version,
			codec_version = excluded.codec_version,
			created_at = excluded.created_at,
			payload = excluded.payload
	`, fit.ID, fit.SchemaVersion, fit.CodecVersion, fit.CreatedAtUTC, payload)
	return err
}

func (s *SQLiteStore) GetFit(ctx context.Context, id string) (model.Fit, bool, error) {
	db, err := s.getDB()
	if err != nil {
		return model.Fit{}, false, err
	}

	var payload []byte
	err = db.QueryRowContext(ctx, `SELECT payload FROM fits WHERE id = ?`, id).Scan(&payload)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return model.Fit{}, false, nil
		}
		return model.Fit{}, false, err
	}

	fit, err := DecodeFit(payload)
	if err != nil {
		return model.Fit{}, false, fmt.Errorf("decode fit %s: %w", id, err)
	}
	return fit, true, nil
}

func (s *SQLiteStore) SaveEvaluation(ctx context.Context, perf model.Performance) error {
	db, err := s.getDB()
	if err != nil {
		return err
	}

	payload, err := EncodePerformance(perf)
	if err != nil {
		return err
	}

	_, err = db.ExecContext(ctx, `
		INSERT INTO evaluations (id, schema_version, codec_version, created_at, repeats, mean, std, failed, payload)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			schema_version = excluded.schema_version,
			codec_version = excluded.codec_version,
			created_at = excluded.created_at,
			repeats = excluded.repeats,
			mean = excluded.mean,
			std = excluded.std,
			failed = excluded.failed,
			payload = excluded.payload
	`, perf.ID, perf.SchemaVersion, perf.CodecVersion, perf.CreatedAtUTC, perf.Repeats, perf.Mean, perf.Std, perf.Failed, payload)
	return err
}

func (s *SQLiteStore) GetEvaluation(ctx context.Context, id string) (model.Performance, bool, error) {
	db, err := s.getDB()
	if err != nil {
		return model.Performance{}, false, err
	}

	var payload []byte
	err = db.QueryRowContext(ctx, `SELECT payload FROM evaluations WHERE id = ?`, id).Scan(&payload)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return model.Performance{}, false, nil
		}
		return model.Performance{}, false, err
	}

	perf, err := DecodePerformance(payload)
	if err != nil {
		return model.Performance{}, false, fmt.Errorf("decode evaluation %s: %w", id, err)
	}
	return perf, true, nil
}

func (s *SQLiteStore) ListEvaluations(ctx context.Context, limit int) ([]model.EvaluationSummary, error) {
	db, err := s.getDB()
	if err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = -1
	}

	rows, err := db.QueryContext(ctx, `
		SELECT id, created_at, repeats, mean, std, failed
		FROM evaluations
		ORDER BY created_at DESC, id ASC
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.EvaluationSummary
	for rows.Next() {
		var summary model.EvaluationSummary
		if err := rows.Scan(&summary.ID, &summary.CreatedAtUTC, &summary.Repeats, &summary.Mean, &summary.Std, &summary.Failed); err != nil {
			return nil, err
		}
		out = append(out, summary)
	}
	return out, rows.Err()
}

func (s *SQLiteStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.db == nil {
		return nil
	}
	err := s.db.Close()
	s.db = nil
	return err
}

func (s *SQLiteStore) getDB() (*sql.DB, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.db == nil {
		return nil, errors.New("store is not initialized")
	}
	return s.db, nil
}

func createTables(ctx context.Context, db *sql.DB) error {
	_, err := db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS fits (
			id TEXT PRIMARY KEY,
			schema_version INTEGER NOT NULL,
			codec_version INTEGER NOT NULL,
			created_at TEXT NOT NULL,
			payload BLOB NOT NULL
		);
		CREATE TABLE IF NOT EXISTS evaluations (
			id TEXT PRIMARY KEY,
			schema_version INTEGER NOT NULL,
			codec_version INTEGER NOT NULL,
			created_at TEXT NOT NULL,
			repeats INTEGER NOT NULL,
			mean REAL NOT NULL,
			std REAL NOT NULL,
			failed INTEGER NOT NULL,
			payload BLOB NOT NULL
		);
	`)
	return err
}

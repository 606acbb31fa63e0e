package storage

import (
	"context"
	"database/sql"
	"sync"
	"sync/atomic"

	_ "github.com/mattn/go-sqlite3"
	"go.uber.org/zap"

	"github.com/saiset-co/sai-cache/types"
	"github.com/saiset-co/sai-cache/utils"
)

const DefaultSQLiteCapacity = 32 * 1024 * 1024

type SQLiteConfig struct {
	Path     string `yaml:"path" json:"path"`
	MaxBytes int64  `yaml:"max_bytes" json:"max_bytes"`
}

// SQLiteMedium is a file-backed medium: a single kv table with the
// capacity bound enforced inside the write transaction.
type SQLiteMedium struct {
	ctx    context.Context
	logger types.Logger
	config *SQLiteConfig
	db     *sql.DB
	mu     sync.Mutex
	state  atomic.Value
}

func NewSQLiteMedium(ctx context.Context, logger types.Logger, config *types.StorageConfig) (types.StorageMedium, error) {
	sqliteConfig := &SQLiteConfig{
		Path:     "sai-cache.db",
		MaxBytes: DefaultSQLiteCapacity,
	}

	if config.Config != nil {
		err := utils.UnmarshalConfig(config.Config, sqliteConfig)
		if err != nil {
			return nil, types.WrapError(err, "failed to unmarshal sqlite storage config")
		}
	}

	if sqliteConfig.MaxBytes == 0 {
		sqliteConfig.MaxBytes = DefaultSQLiteCapacity
	}

	db, err := sql.Open("sqlite3", sqliteConfig.Path)
	if err != nil {
		return nil, types.WrapError(err, "failed to open sqlite database")
	}

	// The medium is accessed from a single logical actor; one connection
	// avoids SQLITE_BUSY on concurrent lifecycle probes.
	db.SetMaxOpenConns(1)

	medium := &SQLiteMedium{
		ctx:    ctx,
		logger: logger,
		config: sqliteConfig,
		db:     db,
	}

	medium.state.Store(StateStopped)
	return medium, nil
}

func (s *SQLiteMedium) Start() error {
	if !s.transitionState(StateStopped, StateStarting) {
		return types.ErrServerAlreadyRunning
	}

	defer func() {
		if s.getState() == StateStarting {
			s.setState(StateRunning)
		}
	}()

	_, err := s.db.ExecContext(s.ctx,
		`CREATE TABLE IF NOT EXISTS kv (key TEXT PRIMARY KEY, value TEXT NOT NULL)`)
	if err != nil {
		s.setState(StateStopped)
		return types.WrapError(err, "failed to create kv table")
	}

	s.logger.Info("SQLite storage started",
		zap.String("path", s.config.Path),
		zap.Int64("max_bytes", s.config.MaxBytes))
	return nil
}

func (s *SQLiteMedium) Stop() error {
	if !s.transitionState(StateRunning, StateStopping) {
		return types.ErrServerNotRunning
	}

	defer func() {
		s.setState(StateStopped)
	}()

	if err := s.db.Close(); err != nil {
		return types.WrapError(err, "failed to close sqlite database")
	}

	s.logger.Info("SQLite storage stopped gracefully")
	return nil
}

func (s *SQLiteMedium) IsRunning() bool {
	return s.getState() == StateRunning
}

func (s *SQLiteMedium) Get(key string) (string, error) {
	if key == "" {
		return "", types.ErrStorageKeyEmpty
	}

	var value string
	err := s.db.QueryRowContext(s.ctx, `SELECT value FROM kv WHERE key = ?`, key).Scan(&value)
	if err != nil {
		if types.IsError(err, sql.ErrNoRows) {
			return "", types.ErrStorageKeyNotFound
		}
		return "", types.WrapError(err, "failed to query key")
	}
	return value, nil
}

func (s *SQLiteMedium) Set(key string, value string) error {
	if key == "" {
		return types.ErrStorageKeyEmpty
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(s.ctx, nil)
	if err != nil {
		return types.WrapError(err, "failed to begin transaction")
	}
	defer func() {
		_ = tx.Rollback()
	}()

	if s.config.MaxBytes > 0 {
		var used int64
		err = tx.QueryRowContext(s.ctx,
			`SELECT COALESCE(SUM(LENGTH(key) + LENGTH(value)), 0) FROM kv WHERE key != ?`,
			key).Scan(&used)
		if err != nil {
			return types.WrapError(err, "failed to measure used bytes")
		}

		size := int64(len(key) + len(value))
		if used+size > s.config.MaxBytes {
			return types.Errorf(types.ErrCapacityExceeded, "need %d bytes, %d of %d used",
				size, used, s.config.MaxBytes)
		}
	}

	_, err = tx.ExecContext(s.ctx,
		`INSERT INTO kv (key, value) VALUES (?, ?)
		 ON CONFLICT(key) DO UPDATE SET value = excluded.value`, key, value)
	if err != nil {
		return types.WrapError(err, "failed to upsert key")
	}

	if err = tx.Commit(); err != nil {
		return types.WrapError(err, "failed to commit")
	}
	return nil
}

func (s *SQLiteMedium) Remove(key string) error {
	if key == "" {
		return nil
	}

	_, err := s.db.ExecContext(s.ctx, `DELETE FROM kv WHERE key = ?`, key)
	if err != nil {
		return types.WrapError(err, "failed to delete key")
	}
	return nil
}

func (s *SQLiteMedium) Keys(prefix string) ([]string, error) {
	rows, err := s.db.QueryContext(s.ctx,
		`SELECT key FROM kv WHERE key LIKE ? || '%' ORDER BY key`, prefix)
	if err != nil {
		return nil, types.WrapError(err, "failed to query keys")
	}
	defer rows.Close()

	var keys []string
	for rows.Next() {
		var key string
		if err := rows.Scan(&key); err != nil {
			return nil, types.WrapError(err, "failed to scan key")
		}
		keys = append(keys, key)
	}

	if err := rows.Err(); err != nil {
		return nil, types.WrapError(err, "failed to iterate keys")
	}
	return keys, nil
}

func (s *SQLiteMedium) getState() State {
	return s.state.Load().(State)
}

func (s *SQLiteMedium) setState(newState State) bool {
	currentState := s.getState()
	return s.state.CompareAndSwap(currentState, newState)
}

func (s *SQLiteMedium) transitionState(from, to State) bool {
	return s.state.CompareAndSwap(from, to)
}

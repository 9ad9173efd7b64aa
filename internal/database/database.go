package database

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"tradeinsight/internal/logger"
)

// DB wraps the SQLite connection with pool monitoring
type DB struct {
	*sql.DB
	config *Config
	stats  *PoolStats
	mu     sync.RWMutex

	stopMonitor chan struct{}
	closeOnce   sync.Once
}

// Config represents database configuration
type Config struct {
	Path            string
	MaxOpen         int
	MaxIdle         int
	Timeout         time.Duration
	ConnMaxLifetime time.Duration
	ConnMaxIdleTime time.Duration
}

// PoolStats represents connection pool statistics
type PoolStats struct {
	MaxOpenConnections int
	OpenConnections    int
	InUse              int
	Idle               int
	WaitCount          int64
	WaitDuration       time.Duration
	LastUpdated        time.Time
}

// NewConnection opens the SQLite database and configures the pool.
// WAL mode and a busy timeout keep concurrent readers from blocking on
// the single writer.
func NewConnection(cfg *Config) (*DB, error) {
	if cfg.Path == "" {
		return nil, fmt.Errorf("database path is required")
	}

	if dir := filepath.Dir(cfg.Path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}

	dsn := fmt.Sprintf("file:%s?_journal_mode=WAL&_busy_timeout=5000&_foreign_keys=on", cfg.Path)
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if cfg.MaxOpen <= 0 {
		cfg.MaxOpen = 10
	}
	if cfg.MaxIdle <= 0 {
		cfg.MaxIdle = 5
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 5 * time.Second
	}
	if cfg.ConnMaxLifetime <= 0 {
		cfg.ConnMaxLifetime = 1 * time.Hour
	}
	if cfg.ConnMaxIdleTime <= 0 {
		cfg.ConnMaxIdleTime = 15 * time.Minute
	}

	db.SetMaxOpenConns(cfg.MaxOpen)
	db.SetMaxIdleConns(cfg.MaxIdle)
	db.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	db.SetConnMaxIdleTime(cfg.ConnMaxIdleTime)

	ctx, cancel := context.WithTimeout(context.Background(), cfg.Timeout)
	defer cancel()

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database at %s: %w", cfg.Path, err)
	}

	logger.Info("database connection established",
		"path", cfg.Path,
		"max_open", cfg.MaxOpen,
		"max_idle", cfg.MaxIdle,
	)

	database := &DB{
		DB:          db,
		config:      cfg,
		stats:       &PoolStats{},
		stopMonitor: make(chan struct{}),
	}

	go database.monitorPoolStats()

	return database, nil
}

// Close stops the pool monitor and closes the database connection.
// Safe to call more than once.
func (db *DB) Close() error {
	db.closeOnce.Do(func() { close(db.stopMonitor) })
	return db.DB.Close()
}

// HealthCheck performs a health check on the database
func (db *DB) HealthCheck(ctx context.Context) error {
	return db.PingContext(ctx)
}

// GetPoolStats returns a copy of the current pool statistics
func (db *DB) GetPoolStats() *PoolStats {
	db.mu.RLock()
	defer db.mu.RUnlock()

	stats := *db.stats
	return &stats
}

func (db *DB) monitorPoolStats() {
	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			stats := db.DB.Stats()

			db.mu.Lock()
			db.stats.MaxOpenConnections = stats.MaxOpenConnections
			db.stats.OpenConnections = stats.OpenConnections
			db.stats.InUse = stats.InUse
			db.stats.Idle = stats.Idle
			db.stats.WaitCount = stats.WaitCount
			db.stats.WaitDuration = stats.WaitDuration
			db.stats.LastUpdated = time.Now()
			db.mu.Unlock()

			if stats.WaitCount > 0 {
				logger.Warn("database connection pool under pressure",
					"wait_count", stats.WaitCount,
					"wait_duration", stats.WaitDuration.String(),
					"in_use", stats.InUse,
				)
			}
		case <-db.stopMonitor:
			return
		}
	}
}

package sqlite

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/dfryer1193/evstations/shared/config"
	"github.com/dfryer1193/evstations/shared/db"
	_ "modernc.org/sqlite"
)

const memoryPath = ":memory:"

type SQLiteConfig struct {
	Path string `env:"SQLITE_DB_PATH" envDefault:"./stations.db"`
}

// NewSQLiteConfig reads the database path from SQLITE_DB_PATH, defaulting to ./stations.db.
func NewSQLiteConfig() (*SQLiteConfig, error) {
	cfg := &SQLiteConfig{}
	if err := config.ParseEnv(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

var _ db.Database = (*SQLiteDB)(nil)

// SQLiteDB implements the db.Database interface for SQLite
type SQLiteDB struct {
	dbPath string
	db     *sql.DB
}

func NewSQLiteDB(cfg *SQLiteConfig) *SQLiteDB {
	return &SQLiteDB{
		dbPath: cfg.Path,
	}
}

// Connect opens the database, applies pragmas and runs pending migrations.
func (s *SQLiteDB) Connect() error {
	if s.db != nil {
		return fmt.Errorf("database already connected")
	}

	sqlDB, err := sql.Open("sqlite", s.dbPath)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}

	// each connection to :memory: would otherwise see its own empty database
	if s.dbPath == memoryPath {
		sqlDB.SetMaxOpenConns(1)
	}

	if err := sqlDB.Ping(); err != nil {
		sqlDB.Close()
		return fmt.Errorf("failed to ping database: %w", err)
	}

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA foreign_keys=ON",
		"PRAGMA busy_timeout=5000",
		"PRAGMA cache_size=-64000", // 64MB
	}

	for _, pragma := range pragmas {
		if _, err := sqlDB.Exec(pragma); err != nil {
			sqlDB.Close()
			return fmt.Errorf("failed to set pragma %q: %w", pragma, err)
		}
	}

	if err := runMigrations(sqlDB); err != nil {
		sqlDB.Close()
		return fmt.Errorf("failed to run migrations: %w", err)
	}

	s.db = sqlDB
	return nil
}

func (s *SQLiteDB) Close() error {
	if s.db == nil {
		return nil
	}

	err := s.db.Close()
	s.db = nil
	return err
}

// DB returns the underlying *sql.DB, or nil when not connected.
func (s *SQLiteDB) DB() *sql.DB {
	return s.db
}

func (s *SQLiteDB) Ping(ctx context.Context) error {
	if s.db == nil {
		return fmt.Errorf("database not connected")
	}
	return s.db.PingContext(ctx)
}

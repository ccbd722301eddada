package db

import (
	"context"
	"database/sql"
	"errors"
	"testing"

	_ "modernc.org/sqlite"
)

func setupTestDB(t *testing.T) *sql.DB {
	t.Helper()
	sqlDB, err := sql.Open("sqlite", ":memory:")
	if err != nil {
		t.Fatalf("Failed to open test database: %v", err)
	}
	// every connection to :memory: is a separate database
	sqlDB.SetMaxOpenConns(1)

	_, err = sqlDB.Exec(`CREATE TABLE counters (id INTEGER PRIMARY KEY, label TEXT)`)
	if err != nil {
		t.Fatalf("Failed to create test table: %v", err)
	}

	t.Cleanup(func() { sqlDB.Close() })
	return sqlDB
}

func countRows(t *testing.T, sqlDB *sql.DB) int {
	t.Helper()
	var count int
	if err := sqlDB.QueryRow("SELECT COUNT(*) FROM counters").Scan(&count); err != nil {
		t.Fatalf("Failed to count rows: %v", err)
	}
	return count
}

func insert(ctx context.Context, sqlDB *sql.DB, label string) error {
	_, err := GetExecutor(ctx, sqlDB).ExecContext(ctx, "INSERT INTO counters (label) VALUES (?)", label)
	return err
}

var errBoom = errors.New("boom")

func TestRunInTransaction(t *testing.T) {
	tests := []struct {
		name      string
		fn        func(ctx context.Context, sqlDB *sql.DB) error
		wantErr   error
		wantCount int
	}{
		{
			name: "commit",
			fn: func(ctx context.Context, sqlDB *sql.DB) error {
				return insert(ctx, sqlDB, "a")
			},
			wantCount: 1,
		},
		{
			name: "rollback on error",
			fn: func(ctx context.Context, sqlDB *sql.DB) error {
				if err := insert(ctx, sqlDB, "a"); err != nil {
					return err
				}
				return errBoom
			},
			wantErr:   errBoom,
			wantCount: 0,
		},
		{
			name: "nested call joins outer transaction",
			fn: func(ctx context.Context, sqlDB *sql.DB) error {
				if err := insert(ctx, sqlDB, "outer"); err != nil {
					return err
				}
				return RunInTransaction(ctx, sqlDB, func(inner context.Context) error {
					outerTx, _ := GetTx(ctx)
					innerTx, _ := GetTx(inner)
					if outerTx != innerTx {
						return errors.New("nested call started a new transaction")
					}
					return insert(inner, sqlDB, "inner")
				})
			},
			wantCount: 2,
		},
		{
			name: "nested failure rolls back everything",
			fn: func(ctx context.Context, sqlDB *sql.DB) error {
				if err := insert(ctx, sqlDB, "outer"); err != nil {
					return err
				}
				return RunInTransaction(ctx, sqlDB, func(inner context.Context) error {
					if err := insert(inner, sqlDB, "inner"); err != nil {
						return err
					}
					return errBoom
				})
			},
			wantErr:   errBoom,
			wantCount: 0,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sqlDB := setupTestDB(t)

			err := RunInTransaction(context.Background(), sqlDB, func(txCtx context.Context) error {
				if _, ok := GetTx(txCtx); !ok {
					t.Error("Expected transaction in context")
				}
				return tt.fn(txCtx, sqlDB)
			})

			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("RunInTransaction() error = %v, want %v", err, tt.wantErr)
			}
			if got := countRows(t, sqlDB); got != tt.wantCount {
				t.Errorf("row count = %d, want %d", got, tt.wantCount)
			}
		})
	}
}

func TestGetExecutor(t *testing.T) {
	sqlDB := setupTestDB(t)
	ctx := context.Background()

	if GetExecutor(ctx, sqlDB) != sqlDB {
		t.Error("Expected executor to be the database")
	}

	tx, err := sqlDB.BeginTx(ctx, nil)
	if err != nil {
		t.Fatalf("Failed to begin transaction: %v", err)
	}
	defer tx.Rollback()

	if GetExecutor(WithTx(ctx, tx), sqlDB) != tx {
		t.Error("Expected executor to be the transaction")
	}
}

package db

import (
	"context"
	"database/sql"
)

type Database interface {
	Connect() error
	Close() error
	DB() *sql.DB
	Ping(ctx context.Context) error
}

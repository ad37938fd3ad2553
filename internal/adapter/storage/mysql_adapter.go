package storage

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/go-sql-driver/mysql"

	"github.com/rl1809/rowstore/internal/config"
	"github.com/rl1809/rowstore/internal/core/domain"
)

const createRowChangesTable = `
CREATE TABLE IF NOT EXISTS row_changes (
	id          CHAR(36)     NOT NULL PRIMARY KEY,
	op          VARCHAR(16)  NOT NULL,
	row_id      BIGINT       NOT NULL,
	name        VARCHAR(255) NOT NULL,
	quantity    BIGINT       NOT NULL,
	occurred_at DATETIME(6)  NOT NULL,
	INDEX idx_row_changes_row_id (row_id)
)`

// OpenMySQL opens a pooled connection from cfg and verifies it with a ping.
func OpenMySQL(ctx context.Context, cfg config.MySQLConfig) (*sql.DB, error) {
	dsn, err := normalizeDSN(cfg.DSN)
	if err != nil {
		return nil, err
	}

	db, err := sql.Open("mysql", dsn)
	if err != nil {
		return nil, fmt.Errorf("open mysql: %w", err)
	}
	db.SetMaxOpenConns(cfg.MaxOpenConns)
	db.SetMaxIdleConns(cfg.MaxIdleConns)
	db.SetConnMaxLifetime(cfg.ConnMaxLifetime)

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping mysql: %w", err)
	}
	return db, nil
}

func normalizeDSN(dsn string) (string, error) {
	parsed, err := mysql.ParseDSN(dsn)
	if err != nil {
		return "", fmt.Errorf("parse mysql dsn: %w", err)
	}
	parsed.ParseTime = true
	return parsed.FormatDSN(), nil
}

type MySQLAdapter struct {
	db *sql.DB
}

func NewMySQLAdapter(db *sql.DB) *MySQLAdapter {
	return &MySQLAdapter{db: db}
}

func (m *MySQLAdapter) EnsureSchema(ctx context.Context) error {
	if _, err := m.db.ExecContext(ctx, createRowChangesTable); err != nil {
		return fmt.Errorf("create row_changes: %w", err)
	}
	return nil
}

func (m *MySQLAdapter) AppendChange(ctx context.Context, change domain.RowChange) error {
	_, err := m.db.ExecContext(ctx, `
		INSERT INTO row_changes (id, op, row_id, name, quantity, occurred_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		change.ID, string(change.Op), change.Row.ID, change.Row.Name, change.Row.Quantity, change.OccurredAt,
	)
	if err != nil {
		return fmt.Errorf("insert row change: %w", err)
	}
	return nil
}

// Package database keeps the catalog of boards (id and name) in MySQL or
// MariaDB. Box state is never written here.
package database

import (
	"context"
	"database/sql"
	"fmt"
	"log"

	_ "github.com/go-sql-driver/mysql"

	"boardsync/internal/config"
	"boardsync/internal/model"
)

// Init initializes database connection
func Init(cfg config.Config) (*sql.DB, error) {
	dsn := fmt.Sprintf("%s:%s@tcp(%s:%s)/%s?parseTime=true",
		cfg.DBUser,
		cfg.DBPassword,
		cfg.DBHost,
		cfg.DBPort,
		cfg.DBName,
	)

	db, err := sql.Open("mysql", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// 接続テスト
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	log.Println("✅ Database connection established")
	return db, nil
}

// Catalog stores board identities.
type Catalog struct {
	DB *sql.DB
}

// NewCatalog wraps db.
func NewCatalog(db *sql.DB) *Catalog {
	return &Catalog{DB: db}
}

// EnsureSchema creates the boards table if needed.
func (c *Catalog) EnsureSchema(ctx context.Context) error {
	_, err := c.DB.ExecContext(ctx, `
	CREATE TABLE IF NOT EXISTS boards (
		id VARCHAR(64) NOT NULL PRIMARY KEY,
		name VARCHAR(255) NOT NULL,
		created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
	) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4 COLLATE=utf8mb4_unicode_ci;
	`)
	if err != nil {
		return fmt.Errorf("failed to create boards table: %w", err)
	}
	return nil
}

// LoadBoards returns every catalogued board, oldest first.
func (c *Catalog) LoadBoards(ctx context.Context) ([]model.BoardSummary, error) {
	rows, err := c.DB.QueryContext(ctx, "SELECT id, name FROM boards ORDER BY created_at, id")
	if err != nil {
		return nil, fmt.Errorf("failed to query boards: %w", err)
	}
	defer rows.Close()

	var boards []model.BoardSummary
	for rows.Next() {
		var b model.BoardSummary
		if err := rows.Scan(&b.ID, &b.Name); err != nil {
			return nil, fmt.Errorf("failed to scan board: %w", err)
		}
		boards = append(boards, b)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate boards: %w", err)
	}
	return boards, nil
}

// SaveBoard inserts a board, or renames it if the id already exists.
func (c *Catalog) SaveBoard(ctx context.Context, b model.BoardSummary) error {
	_, err := c.DB.ExecContext(ctx,
		"INSERT INTO boards (id, name) VALUES (?, ?) ON DUPLICATE KEY UPDATE name = VALUES(name)",
		b.ID, b.Name)
	if err != nil {
		return fmt.Errorf("failed to save board %s: %w", b.ID, err)
	}
	return nil
}

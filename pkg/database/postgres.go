package database

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	_ "github.com/lib/pq"
	"hotspot-billing.com/platform/internal/config"
)

type DB struct {
	*sql.DB
}

func Connect(cfg config.DatabaseConfig) (*DB, error) {
	connStr := fmt.Sprintf(
		"host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
		cfg.Host, cfg.Port, cfg.User, cfg.Password, cfg.Name, cfg.SSLMode,
	)

	db, err := sql.Open("postgres", connStr)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	db.SetMaxOpenConns(cfg.MaxOpenConns)
	db.SetMaxIdleConns(cfg.MaxIdleConns)
	db.SetConnMaxLifetime(cfg.ConnMaxLifetime)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &DB{db}, nil
}

// RunMigrations executes every .sql file in migrationsPath in lexical order.
// Files must be idempotent; nothing records which ones already ran.
func (db *DB) RunMigrations(migrationsPath string) ([]string, error) {
	files, err := os.ReadDir(migrationsPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read migrations directory: %w", err)
	}

	var sqlFiles []string
	for _, file := range files {
		if !file.IsDir() && filepath.Ext(file.Name()) == ".sql" {
			sqlFiles = append(sqlFiles, file.Name())
		}
	}
	sort.Strings(sqlFiles)

	for _, file := range sqlFiles {
		content, err := os.ReadFile(filepath.Join(migrationsPath, file))
		if err != nil {
			return nil, fmt.Errorf("failed to read migration %s: %w", file, err)
		}

		if _, err := db.Exec(string(content)); err != nil {
			return nil, fmt.Errorf("failed to execute migration %s: %w", file, err)
		}
	}

	return sqlFiles, nil
}

// Capabilities records optional columns found in the connected schema.
// Deployments created before is_active existed on hotspots or packages
// still work; queries drop the filter when the column is missing.
type Capabilities struct {
	HotspotsIsActive bool
	PackagesIsActive bool
}

const columnExistsQuery = `
	SELECT EXISTS (
		SELECT 1 FROM information_schema.columns
		WHERE table_schema = current_schema() AND table_name = $1 AND column_name = $2
	)`

// ProbeCapabilities inspects information_schema once. The result is meant
// to be cached for the lifetime of the process.
func (db *DB) ProbeCapabilities(ctx context.Context) (Capabilities, error) {
	var caps Capabilities

	var err error
	if caps.HotspotsIsActive, err = db.HasColumn(ctx, "hotspots", "is_active"); err != nil {
		return caps, err
	}
	if caps.PackagesIsActive, err = db.HasColumn(ctx, "packages", "is_active"); err != nil {
		return caps, err
	}

	return caps, nil
}

func (db *DB) HasColumn(ctx context.Context, table, column string) (bool, error) {
	var exists bool
	if err := db.QueryRowContext(ctx, columnExistsQuery, table, column).Scan(&exists); err != nil {
		return false, fmt.Errorf("failed to probe column %s.%s: %w", table, column, err)
	}
	return exists, nil
}

package database

import (
	"context"
	"embed"
	"fmt"
	"io/fs"
	"sort"
	"strings"

	"github.com/jackc/pgx/v5/pgxpool"

	"stocktrigger/pkg/logger"
)

//go:embed migrations/postgres/*.sql
var postgresFS embed.FS

//go:embed migrations/clickhouse/*.sql
var clickhouseFS embed.FS

// Execer is the subset of a ClickHouse connection needed to apply DDL
type Execer interface {
	Exec(ctx context.Context, query string, args ...any) error
}

// RunMigrations applies the embedded Postgres schema files in lexical order.
// Every file is idempotent, so it is safe on each startup.
func RunMigrations(ctx context.Context, db *pgxpool.Pool) error {
	logger.Info("Running database migrations...")

	files, err := migrationFiles(postgresFS, "migrations/postgres")
	if err != nil {
		return err
	}

	for _, file := range files {
		sql, err := fs.ReadFile(postgresFS, file)
		if err != nil {
			return fmt.Errorf("failed to read migration %s: %w", file, err)
		}
		if strings.TrimSpace(string(sql)) == "" {
			continue
		}
		if _, err := db.Exec(ctx, string(sql)); err != nil {
			return fmt.Errorf("failed to run migration %s: %w", file, err)
		}
	}

	logger.Info("[OK] Database migrations completed (%d files)", len(files))
	return nil
}

// RunClickHouseMigrations applies the price history DDL. ClickHouse takes one
// statement per Exec, so each file holds exactly one.
func RunClickHouseMigrations(ctx context.Context, conn Execer) error {
	files, err := migrationFiles(clickhouseFS, "migrations/clickhouse")
	if err != nil {
		return err
	}

	for _, file := range files {
		sql, err := fs.ReadFile(clickhouseFS, file)
		if err != nil {
			return fmt.Errorf("failed to read migration %s: %w", file, err)
		}
		if err := conn.Exec(ctx, string(sql)); err != nil {
			return fmt.Errorf("failed to run clickhouse migration %s: %w", file, err)
		}
	}

	logger.Info("[OK] ClickHouse migrations completed (%d files)", len(files))
	return nil
}

func migrationFiles(fsys fs.FS, dir string) ([]string, error) {
	entries, err := fs.ReadDir(fsys, dir)
	if err != nil {
		return nil, fmt.Errorf("failed to read embedded migrations: %w", err)
	}

	var files []string
	for _, entry := range entries {
		if !entry.IsDir() && strings.HasSuffix(entry.Name(), ".sql") {
			files = append(files, dir+"/"+entry.Name())
		}
	}
	sort.Strings(files)
	return files, nil
}

package migrate

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path"
	"path/filepath"

	"github.com/pressly/goose/v3"

	"github.com/angelmondragon/barter-backend/pkg/config"
)

// DefaultDir holds one sub-directory of SQL migrations per dialect.
const DefaultDir = "pkg/migrate/migrations"

//go:embed migrations/*/*.sql
var embedded embed.FS

func GooseDialect(driver string) (goose.Dialect, error) {
	switch driver {
	case "", config.DriverPostgres:
		return goose.DialectPostgres, nil
	case config.DriverMySQL:
		return goose.DialectMySQL, nil
	case config.DriverSQLite:
		return goose.DialectSQLite3, nil
	}
	return "", fmt.Errorf("no migrations for driver %q", driver)
}

func driverOrDefault(driver string) string {
	if driver == "" {
		return config.DriverPostgres
	}
	return driver
}

// DirFor is base/<driver>, with postgres standing in for a blank driver.
func DirFor(base, driver string) string {
	return filepath.Join(base, driverOrDefault(driver))
}

// EmbeddedFS is the migration set compiled into the binary for driver.
func EmbeddedFS(driver string) (fs.FS, error) {
	return fs.Sub(embedded, path.Join("migrations", driverOrDefault(driver)))
}

// DiskFS reads migrations from dir, for cmd/migrate runs against a checkout.
func DiskFS(dir string) (fs.FS, error) {
	if dir == "" {
		return nil, errors.New("dir is required")
	}
	info, err := os.Stat(dir)
	if err != nil {
		return nil, err
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("%s is not a directory", dir)
	}
	return os.DirFS(dir), nil
}

// Runner applies one migration set to one database.
type Runner struct {
	provider *goose.Provider
}

func NewRunner(db *sql.DB, driver string, source fs.FS) (*Runner, error) {
	if db == nil {
		return nil, errors.New("db is required")
	}
	dialect, err := GooseDialect(driver)
	if err != nil {
		return nil, err
	}
	provider, err := goose.NewProvider(dialect, db, source)
	if err != nil {
		return nil, fmt.Errorf("goose provider: %w", err)
	}
	return &Runner{provider: provider}, nil
}

func (r *Runner) Up(ctx context.Context) ([]*goose.MigrationResult, error) {
	results, err := r.provider.Up(ctx)
	if err != nil {
		return results, fmt.Errorf("goose up: %w", err)
	}
	return results, nil
}

// Down rolls back the most recently applied migration.
func (r *Runner) Down(ctx context.Context) (*goose.MigrationResult, error) {
	result, err := r.provider.Down(ctx)
	if err != nil {
		return result, fmt.Errorf("goose down: %w", err)
	}
	return result, nil
}

func (r *Runner) Status(ctx context.Context) ([]*goose.MigrationStatus, error) {
	return r.provider.Status(ctx)
}

// To moves the schema up or down until target is the newest applied version.
func (r *Runner) To(ctx context.Context, target int64) ([]*goose.MigrationResult, error) {
	current, err := r.provider.GetDBVersion(ctx)
	if err != nil {
		return nil, fmt.Errorf("get db version: %w", err)
	}
	switch {
	case current == target:
		return nil, nil
	case current < target:
		return r.provider.UpTo(ctx, target)
	default:
		return r.provider.DownTo(ctx, target)
	}
}

// Up applies every embedded migration for driver.
func Up(ctx context.Context, db *sql.DB, driver string) ([]*goose.MigrationResult, error) {
	source, err := EmbeddedFS(driver)
	if err != nil {
		return nil, fmt.Errorf("embedded migrations: %w", err)
	}
	runner, err := NewRunner(db, driver, source)
	if err != nil {
		return nil, err
	}
	return runner.Up(ctx)
}

package migrate

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"io/fs"
	"os"
	"strconv"

	"github.com/pressly/goose/v3"
	"github.com/pressly/goose/v3/database"

	"github.com/angelmondragon/offers-backend/pkg/logger"
)

//go:embed migrations/*.sql
var embedded embed.FS

// Migrations returns the offers schema migrations compiled into the binary.
func Migrations() fs.FS {
	sub, err := fs.Sub(embedded, "migrations")
	if err != nil {
		panic(fmt.Sprintf("embedded migrations: %v", err))
	}
	return sub
}

// Source picks the migration set: dir when given, otherwise the embedded one.
func Source(dir string) fs.FS {
	if dir == "" {
		return Migrations()
	}
	return os.DirFS(dir)
}

// Runner applies goose migrations against postgres.
type Runner struct {
	provider *goose.Provider
	logg     *logger.Logger
}

func NewRunner(db *sql.DB, fsys fs.FS, logg *logger.Logger) (*Runner, error) {
	if db == nil {
		return nil, fmt.Errorf("db is required")
	}
	if fsys == nil {
		return nil, fmt.Errorf("migration source is required")
	}
	provider, err := goose.NewProvider(database.DialectPostgres, db, fsys)
	if err != nil {
		return nil, fmt.Errorf("goose provider: %w", err)
	}
	return &Runner{provider: provider, logg: logg}, nil
}

func (r *Runner) Up(ctx context.Context) error {
	results, err := r.provider.Up(ctx)
	r.logResults(ctx, results)
	if err != nil {
		return fmt.Errorf("goose up: %w", err)
	}
	return nil
}

func (r *Runner) Down(ctx context.Context) error {
	result, err := r.provider.Down(ctx)
	if result != nil {
		r.logResults(ctx, []*goose.MigrationResult{result})
	}
	if err != nil {
		return fmt.Errorf("goose down: %w", err)
	}
	return nil
}

// Status logs one line per known migration and returns the statuses.
func (r *Runner) Status(ctx context.Context) ([]*goose.MigrationStatus, error) {
	statuses, err := r.provider.Status(ctx)
	if err != nil {
		return nil, fmt.Errorf("goose status: %w", err)
	}
	for _, st := range statuses {
		r.info(ctx, map[string]any{
			"version":    st.Source.Version,
			"path":       st.Source.Path,
			"state":      string(st.State),
			"applied_at": st.AppliedAt,
		}, "migration status")
	}
	return statuses, nil
}

// MigrateTo moves the schema up or down to targetVersion (YYYYMMDDHHMMSS).
func (r *Runner) MigrateTo(ctx context.Context, targetVersion string) error {
	target, err := strconv.ParseInt(targetVersion, 10, 64)
	if err != nil {
		return fmt.Errorf("invalid version %q (expected YYYYMMDDHHMMSS): %w", targetVersion, err)
	}
	current, err := r.provider.GetDBVersion(ctx)
	if err != nil {
		return fmt.Errorf("get db version: %w", err)
	}

	var results []*goose.MigrationResult
	switch {
	case current == target:
		return nil
	case current < target:
		results, err = r.provider.UpTo(ctx, target)
	default:
		results, err = r.provider.DownTo(ctx, target)
	}
	r.logResults(ctx, results)
	if err != nil {
		return fmt.Errorf("goose migrate %d -> %d: %w", current, target, err)
	}
	return nil
}

func (r *Runner) logResults(ctx context.Context, results []*goose.MigrationResult) {
	for _, res := range results {
		if res == nil || res.Source == nil {
			continue
		}
		r.info(ctx, map[string]any{
			"version":     res.Source.Version,
			"path":        res.Source.Path,
			"direction":   res.Direction,
			"duration_ms": res.Duration.Milliseconds(),
		}, "migration applied")
	}
}

func (r *Runner) info(ctx context.Context, fields map[string]any, msg string) {
	if r.logg == nil {
		return
	}
	r.logg.Info(r.logg.WithFields(ctx, fields), msg)
}

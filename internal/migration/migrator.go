package migration

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"path"
	"strings"
	"time"

	"github.com/pressly/goose/v3"
	"go.uber.org/zap"

	"github.com/Additional-Code/orderdesk/db/migrations"
	"github.com/Additional-Code/orderdesk/internal/config"
	"github.com/Additional-Code/orderdesk/internal/database"
)

// Migrator applies the embedded order schema to the writer pool.
type Migrator struct {
	provider *goose.Provider
	logger   *zap.Logger
}

// New builds a migrator for the configured driver. The order schema uses
// postgres types, so other drivers are refused before anything runs.
func New(cfg config.Config, conns *database.Connections, logger *zap.Logger) (*Migrator, error) {
	dialect, err := gooseDialect(cfg.Database.Driver)
	if err != nil {
		return nil, err
	}
	if dialect != goose.DialectPostgres {
		return nil, fmt.Errorf("order migrations are written for postgres, got %s", cfg.Database.Driver)
	}

	sqlFS, err := fs.Sub(migrations.FS, migrations.Dir)
	if err != nil {
		return nil, err
	}
	provider, err := goose.NewProvider(dialect, conns.Writer.DB, sqlFS)
	if err != nil {
		return nil, fmt.Errorf("load order migrations: %w", err)
	}
	return &Migrator{provider: provider, logger: logger}, nil
}

// Up applies all pending migrations.
func (m *Migrator) Up(ctx context.Context) error {
	results, err := m.provider.Up(ctx)
	if err != nil {
		if isNoMigrationErr(err) {
			m.logger.Info("no migrations to apply")
			return nil
		}
		return err
	}
	m.logResults(results)

	version, err := m.provider.GetDBVersion(ctx)
	if err != nil {
		return fmt.Errorf("read schema version: %w", err)
	}
	m.logger.Info("order schema up to date", zap.Int64("version", version), zap.Int("applied", len(results)))
	return nil
}

// Down rolls back steps migrations (at least one), or every migration when all is set.
func (m *Migrator) Down(ctx context.Context, steps int, all bool) error {
	if all {
		results, err := m.provider.DownTo(ctx, 0)
		if err != nil && !isNoMigrationErr(err) {
			return err
		}
		m.logResults(results)
		m.logger.Info("order schema removed", zap.Int("rolled_back", len(results)))
		return nil
	}

	steps = max(steps, 1)
	for i := range steps {
		result, err := m.provider.Down(ctx)
		if err != nil {
			if isNoMigrationErr(err) {
				m.logger.Info("no migrations to rollback", zap.Int("rolled_back", i))
				return nil
			}
			return err
		}
		m.logResults([]*goose.MigrationResult{result})
	}
	return nil
}

// Status reports every known migration and whether it has been applied.
func (m *Migrator) Status(ctx context.Context) ([]Status, error) {
	states, err := m.provider.Status(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]Status, 0, len(states))
	for _, st := range states {
		s := Status{Version: st.Source.Version, File: path.Base(st.Source.Path), Applied: st.State == goose.StateApplied}
		if s.Applied {
			s.AppliedAt = st.AppliedAt
		}
		out = append(out, s)
	}
	return out, nil
}

// Status describes one migration file.
type Status struct {
	Version   int64
	File      string
	Applied   bool
	AppliedAt time.Time
}

func (m *Migrator) logResults(results []*goose.MigrationResult) {
	for _, r := range results {
		if r == nil || r.Source == nil {
			continue
		}
		m.logger.Info("migration",
			zap.String("direction", r.Direction),
			zap.Int64("version", r.Source.Version),
			zap.String("file", r.Source.Path),
			zap.Duration("took", r.Duration),
		)
	}
}

func gooseDialect(driver string) (goose.Dialect, error) {
	switch strings.ToLower(driver) {
	case "postgres", "postgresql", "pg":
		return goose.DialectPostgres, nil
	case "mysql":
		return goose.DialectMySQL, nil
	case "sqlite", "sqlite3":
		return goose.DialectSQLite3, nil
	default:
		return "", fmt.Errorf("unsupported goose dialect for driver %s", driver)
	}
}

func isNoMigrationErr(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, goose.ErrNoNextVersion) || errors.Is(err, goose.ErrNoMigrationFiles) {
		return true
	}
	return strings.Contains(err.Error(), "no migrations")
}

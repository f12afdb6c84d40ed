package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "github.com/go-sql-driver/mysql"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/mysqldialect"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/dialect/sqlitedialect"
	"github.com/uptrace/bun/driver/pgdriver"
	"github.com/uptrace/bun/driver/sqliteshim"
	"github.com/uptrace/bun/schema"
	"go.uber.org/fx"
	"go.uber.org/zap"

	"github.com/Additional-Code/orderdesk/internal/config"
)

// Connections are the order store pools. Reader is Writer itself when no
// separate replica DSN is configured.
type Connections struct {
	Writer *bun.DB
	Reader *bun.DB
}

// Module registers the database connections with Fx.
var Module = fx.Provide(New)

const (
	// slowQuery is the duration above which a statement is logged at warn level.
	slowQuery   = 250 * time.Millisecond
	pingTimeout = 5 * time.Second
)

// New opens the writer pool and, when configured, a reader pool. Both are
// checked when the application starts.
func New(lc fx.Lifecycle, cfg config.Config, logger *zap.Logger) (*Connections, error) {
	dbCfg := cfg.Database
	dbCfg.Driver = normalizeDriver(dbCfg.Driver)
	dial, err := selectDialect(dbCfg.Driver)
	if err != nil {
		return nil, err
	}

	writer, err := openPool("writer", dbCfg.WriterDSN, dbCfg, dial, logger)
	if err != nil {
		return nil, err
	}
	conns := &Connections{Writer: writer, Reader: writer}
	if dbCfg.ReaderDSN != "" && dbCfg.ReaderDSN != dbCfg.WriterDSN {
		if conns.Reader, err = openPool("reader", dbCfg.ReaderDSN, dbCfg, dial, logger); err != nil {
			_ = writer.Close()
			return nil, err
		}
	}

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			if err := conns.Ping(ctx); err != nil {
				return err
			}
			logger.Info("order store connected",
				zap.String("driver", dbCfg.Driver),
				zap.Bool("replica", conns.Reader != conns.Writer),
			)
			return nil
		},
		OnStop: func(context.Context) error {
			return conns.Close()
		},
	})
	return conns, nil
}

// Ping checks every distinct pool.
func (c *Connections) Ping(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, pingTimeout)
	defer cancel()

	if err := c.Writer.PingContext(ctx); err != nil {
		return fmt.Errorf("ping writer: %w", err)
	}
	if c.Reader != c.Writer {
		if err := c.Reader.PingContext(ctx); err != nil {
			return fmt.Errorf("ping reader: %w", err)
		}
	}
	return nil
}

// Close closes every distinct pool.
func (c *Connections) Close() error {
	err := c.Writer.Close()
	if c.Reader != c.Writer {
		err = errors.Join(err, c.Reader.Close())
	}
	return err
}

func openPool(role, dsn string, cfg config.Database, dial schema.Dialect, logger *zap.Logger) (*bun.DB, error) {
	sqldb, err := openSQLDB(cfg.Driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", role, err)
	}
	if cfg.MaxOpenConns > 0 {
		sqldb.SetMaxOpenConns(cfg.MaxOpenConns)
	}
	if cfg.MaxIdleConns > 0 {
		sqldb.SetMaxIdleConns(cfg.MaxIdleConns)
	}
	if cfg.MaxConnLifetime > 0 {
		sqldb.SetConnMaxLifetime(cfg.MaxConnLifetime)
	}

	db := bun.NewDB(sqldb, dial)
	db.AddQueryHook(newQueryLogger(logger, role))
	return db, nil
}

func normalizeDriver(driver string) string {
	switch driver {
	case "pg", "postgresql":
		return "postgres"
	case "sqlite3":
		return "sqlite"
	default:
		return driver
	}
}

func selectDialect(driver string) (schema.Dialect, error) {
	switch driver {
	case "postgres":
		return pgdialect.New(), nil
	case "mysql":
		return mysqldialect.New(), nil
	case "sqlite":
		return sqlitedialect.New(), nil
	default:
		return nil, fmt.Errorf("unsupported database driver: %s", driver)
	}
}

func openSQLDB(driver, dsn string) (*sql.DB, error) {
	if dsn == "" {
		return nil, errors.New("empty DSN")
	}
	switch driver {
	case "postgres":
		return sql.OpenDB(pgdriver.NewConnector(pgdriver.WithDSN(dsn))), nil
	case "mysql":
		return sql.Open("mysql", dsn)
	case "sqlite":
		return sql.Open(sqliteshim.ShimName, dsn)
	default:
		return nil, fmt.Errorf("unsupported driver: %s", driver)
	}
}

// queryLogger reports failed and slow statements; everything else is logged
// at debug level only.
type queryLogger struct {
	logger *zap.Logger
	slow   time.Duration
}

func newQueryLogger(logger *zap.Logger, pool string) *queryLogger {
	return &queryLogger{logger: logger.Named("db").With(zap.String("pool", pool)), slow: slowQuery}
}

func (h *queryLogger) BeforeQuery(ctx context.Context, _ *bun.QueryEvent) context.Context {
	return ctx
}

func (h *queryLogger) AfterQuery(_ context.Context, event *bun.QueryEvent) {
	elapsed := time.Since(event.StartTime)
	fields := []zap.Field{
		zap.String("operation", event.Operation()),
		zap.Duration("elapsed", elapsed),
	}

	switch {
	case event.Err != nil && !errors.Is(event.Err, sql.ErrNoRows):
		h.logger.Error("query failed", append(fields, zap.String("query", event.Query), zap.Error(event.Err))...)
	case elapsed >= h.slow:
		h.logger.Warn("slow query", append(fields, zap.String("query", event.Query))...)
	default:
		h.logger.Debug("query", fields...)
	}
}

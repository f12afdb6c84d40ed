package database

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/uptrace/bun"
	"go.uber.org/fx/fxtest"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/Additional-Code/orderdesk/internal/config"
)

func TestNormalizeDriver(t *testing.T) {
	assert.Equal(t, "postgres", normalizeDriver("pg"))
	assert.Equal(t, "postgres", normalizeDriver("postgresql"))
	assert.Equal(t, "sqlite", normalizeDriver("sqlite3"))
	assert.Equal(t, "mysql", normalizeDriver("mysql"))

	_, err := selectDialect("oracle")
	assert.Error(t, err)
}

func TestNew_RequiresDSN(t *testing.T) {
	cfg := config.Config{Database: config.Database{Driver: "pg"}}

	_, err := New(fxtest.NewLifecycle(t), cfg, zap.NewNop())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "empty DSN")
}

func TestNew_SQLiteConnects(t *testing.T) {
	cfg := config.Config{Database: config.Database{
		Driver:    "sqlite3",
		WriterDSN: "file:conns?mode=memory&cache=shared",
		ReaderDSN: "file:conns?mode=memory&cache=shared",
	}}
	lc := fxtest.NewLifecycle(t)

	conns, err := New(lc, cfg, zap.NewNop())
	require.NoError(t, err)
	assert.Same(t, conns.Writer, conns.Reader)

	lc.RequireStart()
	var one int
	require.NoError(t, conns.Reader.NewSelect().ColumnExpr("1").Scan(context.Background(), &one))
	assert.Equal(t, 1, one)
	require.NoError(t, conns.Ping(context.Background()))
	lc.RequireStop()

	assert.ErrorContains(t, conns.Ping(context.Background()), "ping writer")
}

func TestNew_SeparateReaderPool(t *testing.T) {
	cfg := config.Config{Database: config.Database{
		Driver:    "sqlite3",
		WriterDSN: "file:primary?mode=memory&cache=shared",
		ReaderDSN: "file:replica?mode=memory&cache=shared",
	}}
	lc := fxtest.NewLifecycle(t)

	conns, err := New(lc, cfg, zap.NewNop())
	require.NoError(t, err)
	assert.NotSame(t, conns.Writer, conns.Reader)

	lc.RequireStart()
	require.NoError(t, conns.Ping(context.Background()))
	lc.RequireStop()
}

func TestQueryLogger(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	hook := newQueryLogger(zap.New(core), "writer")
	hook.slow = 50 * time.Millisecond
	ctx := context.Background()

	cases := []struct {
		name  string
		event *bun.QueryEvent
		level zapcore.Level
		msg   string
	}{
		{
			name:  "fast",
			event: &bun.QueryEvent{Query: "SELECT 1", StartTime: time.Now()},
			level: zapcore.DebugLevel,
			msg:   "query",
		},
		{
			name:  "no rows is not a failure",
			event: &bun.QueryEvent{Query: "SELECT * FROM orders WHERE id = 'x'", StartTime: time.Now(), Err: sql.ErrNoRows},
			level: zapcore.DebugLevel,
			msg:   "query",
		},
		{
			name:  "failed",
			event: &bun.QueryEvent{Query: "UPDATE orders SET status = 'Paid'", StartTime: time.Now(), Err: errors.New("deadlock")},
			level: zapcore.ErrorLevel,
			msg:   "query failed",
		},
		{
			name:  "slow",
			event: &bun.QueryEvent{Query: "SELECT * FROM orders", StartTime: time.Now().Add(-time.Second)},
			level: zapcore.WarnLevel,
			msg:   "slow query",
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_ = logs.TakeAll()
			hook.AfterQuery(hook.BeforeQuery(ctx, tc.event), tc.event)

			entries := logs.TakeAll()
			require.Len(t, entries, 1)
			assert.Equal(t, tc.level, entries[0].Level)
			assert.Equal(t, tc.msg, entries[0].Message)
			assert.Equal(t, "writer", entries[0].ContextMap()["pool"])
		})
	}
}

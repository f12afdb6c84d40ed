package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew_Defaults(t *testing.T) {
	cfg, err := New()
	require.NoError(t, err)

	assert.Equal(t, 8080, cfg.HTTP.Port)
	assert.Equal(t, "http://127.0.0.1:8080/api", cfg.Backend.BaseURL)
	assert.Equal(t, 10, cfg.Desk.DefaultPageSize)
	assert.Equal(t, 100, cfg.Desk.MaxPageSize)
	require.NotNil(t, cfg.Desk.Location)
	assert.Equal(t, "Asia/Ho_Chi_Minh", cfg.Desk.Location.String())
	assert.Equal(t, cfg.Database.WriterDSN, cfg.Database.ReaderDSN)
	assert.Equal(t, "orderdesk:", cfg.Cache.KeyPrefix)
}

func TestNew_DeskOverrides(t *testing.T) {
	t.Setenv("ORDER_API_BASE_URL", " https://market.example/api/ ")
	t.Setenv("DESK_DEFAULT_PAGE_SIZE", "500")
	t.Setenv("DESK_MAX_PAGE_SIZE", "50")
	t.Setenv("DESK_TIMEZONE", "UTC")
	t.Setenv("DESK_SESSION_TTL", "5m")
	t.Setenv("DESK_GLOBAL_STATISTICS", "true")

	cfg, err := New()
	require.NoError(t, err)

	assert.Equal(t, "https://market.example/api", cfg.Backend.BaseURL)
	assert.Equal(t, 50, cfg.Desk.DefaultPageSize)
	assert.Equal(t, 50, cfg.Desk.MaxPageSize)
	assert.Equal(t, time.UTC, cfg.Desk.Location)
	assert.Equal(t, 5*time.Minute, cfg.Desk.SessionTTL)
	assert.True(t, cfg.Desk.GlobalStatistics)
}

func TestNew_InvalidTimezone(t *testing.T) {
	t.Setenv("DESK_TIMEZONE", "Mars/Olympus_Mons")

	_, err := New()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "DESK_TIMEZONE")
}

func TestNew_DisabledCacheFallsBackToNoop(t *testing.T) {
	t.Setenv("CACHE_ENABLED", "false")
	t.Setenv("MESSAGING_ENABLED", "false")

	cfg, err := New()
	require.NoError(t, err)

	assert.Equal(t, "noop", cfg.Cache.Driver)
	assert.Equal(t, "noop", cfg.Messaging.Driver)
}

func TestNew_ReportsEveryMalformedValue(t *testing.T) {
	t.Setenv("HTTP_PORT", "eighty")
	t.Setenv("CACHE_ENABLED", "sometimes")
	t.Setenv("DESK_SESSION_TTL", "half an hour")
	t.Setenv("DESK_TIMEZONE", "Mars/Olympus_Mons")

	_, err := New()
	require.Error(t, err)
	for _, key := range []string{"HTTP_PORT", "CACHE_ENABLED", "DESK_SESSION_TTL", "DESK_TIMEZONE"} {
		assert.Contains(t, err.Error(), key)
	}
}

func TestNew_ObservabilityAndMessaging(t *testing.T) {
	t.Setenv("OBS_SERVICE_VERSION", "1.4.2")
	t.Setenv("OBS_LOG_LEVEL", " DEBUG ")
	t.Setenv("OBS_PROMETHEUS_PATH", "metrics")
	t.Setenv("KAFKA_BROKERS", " a:9092, ,b:9092 ")
	t.Setenv("WORKER_CONCURRENCY", "0")

	cfg, err := New()
	require.NoError(t, err)

	assert.Equal(t, "1.4.2", cfg.Observability.ServiceVersion)
	assert.Equal(t, "debug", cfg.Observability.LogLevel)
	assert.Equal(t, "/metrics", cfg.Observability.PrometheusPath)
	assert.Equal(t, []string{"a:9092", "b:9092"}, cfg.Messaging.Kafka.Brokers)
	assert.Equal(t, 1, cfg.Messaging.Workers.Concurrency)
}

func TestNew_KafkaValidation(t *testing.T) {
	t.Setenv("KAFKA_TOPIC", "")
	t.Setenv("KAFKA_MIN_BYTES", "2048")
	t.Setenv("KAFKA_MAX_BYTES", "1024")

	_, err := New()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "KAFKA_TOPIC")
	assert.Contains(t, err.Error(), "KAFKA_MIN_BYTES")
}

func TestEnv_List(t *testing.T) {
	var e env
	t.Setenv("TEST_BROKERS", " a:9092, ,b:9092 ")
	assert.Equal(t, []string{"a:9092", "b:9092"}, e.list("TEST_BROKERS", nil))

	t.Setenv("TEST_BROKERS", " , ")
	assert.Equal(t, []string{"x"}, e.list("TEST_BROKERS", []string{"x"}))
	assert.NoError(t, e.err())
}

func TestEnv_BlankNumbersKeepDefaults(t *testing.T) {
	var e env
	t.Setenv("TEST_SIZE", " ")
	t.Setenv("TEST_TTL", "")

	assert.Equal(t, 7, e.integer("TEST_SIZE", 7))
	assert.Equal(t, time.Minute, e.duration("TEST_TTL", time.Minute))
	assert.NoError(t, e.err())

	t.Setenv("TEST_SIZE", "7.5")
	assert.Equal(t, 7, e.integer("TEST_SIZE", 7))
	assert.ErrorContains(t, e.err(), `TEST_SIZE: "7.5" is not a valid integer`)
}

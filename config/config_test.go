package config_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/payroll-engine/config"
)

func clearEnv(t *testing.T) {
	t.Helper()
	for _, key := range []string{
		"PORT", "DB_DRIVER", "DATABASE_URL", "LOG_LEVEL", "ENVIRONMENT", "REDIS_ADDR",
		"PUBSUB_PROJECT_ID", "PUBSUB_TOPIC", "PUBSUB_SUBSCRIPTION",
		"CRON_SPEC_CATCH_UP", "MAX_ITERATIONS", "RUN_TIMEOUT", "TRIGGER_WORKERS",
	} {
		t.Setenv(key, "")
	}
}

func TestLoad_Defaults(t *testing.T) {
	clearEnv(t)

	cfg, err := config.Load()
	require.NoError(t, err)

	assert.Equal(t, 8080, cfg.Port)
	assert.Equal(t, "sqlite3", cfg.DBDriver)
	assert.Equal(t, "payroll.db", cfg.DatabaseURL)
	assert.Equal(t, "info", cfg.LogLevel)
	assert.Equal(t, "development", cfg.Environment)
	assert.Equal(t, "15 0 * * *", cfg.CronSpecCatchUp)
	assert.Equal(t, 16, cfg.MaxIterations)
	assert.Equal(t, 4, cfg.TriggerWorkers)
	assert.Equal(t, 30*time.Second, cfg.RunTimeout)
	assert.False(t, cfg.UsePubSub())
}

func TestLoad_FromEnv(t *testing.T) {
	clearEnv(t)
	t.Setenv("PORT", "9090")
	t.Setenv("DB_DRIVER", "postgres")
	t.Setenv("DATABASE_URL", "postgres://payroll@localhost/payroll?sslmode=disable")
	t.Setenv("LOG_LEVEL", "DEBUG")
	t.Setenv("PUBSUB_PROJECT_ID", "acme")
	t.Setenv("PUBSUB_TOPIC", "payroll-triggers")
	t.Setenv("RUN_TIMEOUT", "1m")
	t.Setenv("CRON_SPEC_CATCH_UP", "*/30 * * * *")

	cfg, err := config.Load()
	require.NoError(t, err)

	assert.Equal(t, 9090, cfg.Port)
	assert.Equal(t, "postgres", cfg.DBDriver)
	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, time.Minute, cfg.RunTimeout)
	assert.Equal(t, "*/30 * * * *", cfg.CronSpecCatchUp)
	assert.True(t, cfg.UsePubSub())
}

func TestLoad_Invalid(t *testing.T) {
	cases := map[string][2]string{
		"bad port":        {"PORT", "abc"},
		"port range":      {"PORT", "70000"},
		"driver":          {"DB_DRIVER", "mysql"},
		"cron":            {"CRON_SPEC_CATCH_UP", "every day"},
		"iterations":      {"MAX_ITERATIONS", "0"},
		"timeout":         {"RUN_TIMEOUT", "soon"},
		"workers":         {"TRIGGER_WORKERS", "-1"},
		"orphan sub only": {"PUBSUB_SUBSCRIPTION", "gen"},
	}
	for name, kv := range cases {
		t.Run(name, func(t *testing.T) {
			clearEnv(t)
			t.Setenv(kv[0], kv[1])

			_, err := config.Load()
			assert.Error(t, err)
		})
	}
}

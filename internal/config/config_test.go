package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad(t *testing.T) {
	t.Run("加载默认配置成功", func(t *testing.T) {
		cfg, err := Load()
		require.NoError(t, err)

		assert.Equal(t, "0.0.0.0", cfg.Server.Host)
		assert.Equal(t, 8080, cfg.Server.Port)
		assert.Equal(t, "tempinbox.local", cfg.Mailbox.Domain)
		assert.Equal(t, 10*time.Minute, cfg.Mailbox.TTL)
		assert.Equal(t, 10*time.Minute, cfg.Mailbox.OTPTTL)
		assert.False(t, cfg.Mailbox.SeedDemo)
		assert.Equal(t, "0.0.0.0:2525", cfg.SMTP.Addr())
		assert.Equal(t, "tempinbox.local", cfg.SMTP.Domain, "SMTP 域名默认跟随收件域名")
		assert.Equal(t, 2*time.Second, cfg.SMTP.PollInterval)
		assert.Equal(t, int64(10*1024*1024), cfg.SMTP.MaxMessageBytes)
		assert.Equal(t, 60*time.Second, cfg.Sweeper.Interval)
		assert.Equal(t, 4, cfg.Sweeper.Workers)
		assert.Equal(t, "local", cfg.Events.Backend)
		assert.Equal(t, []string{"*"}, cfg.CORS.AllowedOrigins)
		assert.Equal(t, "info", cfg.Log.Level)
		assert.Equal(t, "memory", cfg.Database.Type)
		assert.Equal(t, "gorm", cfg.Database.Engine)
		assert.False(t, cfg.Redis.Enabled)
	})

	t.Run("加载自定义配置成功", func(t *testing.T) {
		t.Setenv("TEMPINBOX_SERVER_PORT", "9090")
		t.Setenv("TEMPINBOX_MAILBOX_DOMAIN", "Prabhat.Temp")
		t.Setenv("TEMPINBOX_MAILBOX_TTL", "30m")
		t.Setenv("TEMPINBOX_MAILBOX_SEED_DEMO", "true")
		t.Setenv("TEMPINBOX_SMTP_PORT", "25")
		t.Setenv("TEMPINBOX_SMTP_DOMAIN", "mx.prabhat.temp")
		t.Setenv("TEMPINBOX_SMTP_POLL_INTERVAL", "500ms")
		t.Setenv("TEMPINBOX_SWEEPER_INTERVAL", "5m")
		t.Setenv("TEMPINBOX_CORS_ALLOWED_ORIGINS", "https://a.example, https://b.example")
		t.Setenv("TEMPINBOX_DATABASE_TYPE", "sqlite")
		t.Setenv("TEMPINBOX_DATABASE_ENGINE", "sql")
		t.Setenv("TEMPINBOX_DATABASE_DSN", ":memory:")

		cfg, err := Load()
		require.NoError(t, err)

		assert.Equal(t, 9090, cfg.Server.Port)
		assert.Equal(t, "prabhat.temp", cfg.Mailbox.Domain)
		assert.Equal(t, 30*time.Minute, cfg.Mailbox.TTL)
		assert.True(t, cfg.Mailbox.SeedDemo)
		assert.Equal(t, 25, cfg.SMTP.Port)
		assert.Equal(t, "mx.prabhat.temp", cfg.SMTP.Domain)
		assert.Equal(t, 500*time.Millisecond, cfg.SMTP.PollInterval)
		assert.Equal(t, 5*time.Minute, cfg.Sweeper.Interval)
		assert.Equal(t, []string{"https://a.example", "https://b.example"}, cfg.CORS.AllowedOrigins)
		assert.Equal(t, "sqlite", cfg.Database.SQLDriver())
	})

	t.Run("无效时长返回错误", func(t *testing.T) {
		t.Setenv("TEMPINBOX_MAILBOX_TTL", "ten minutes")
		_, err := Load()
		assert.Error(t, err)
	})

	t.Run("无效域名返回错误", func(t *testing.T) {
		t.Setenv("TEMPINBOX_MAILBOX_DOMAIN", "bad domain")
		_, err := Load()
		assert.Error(t, err)
	})

	t.Run("sqlite 必须使用 sql 引擎", func(t *testing.T) {
		t.Setenv("TEMPINBOX_DATABASE_TYPE", "sqlite")
		t.Setenv("TEMPINBOX_DATABASE_DSN", ":memory:")
		_, err := Load()
		assert.Error(t, err)
	})

	t.Run("未知事件后端返回错误", func(t *testing.T) {
		t.Setenv("TEMPINBOX_EVENTS_BACKEND", "kafka")
		_, err := Load()
		assert.Error(t, err)
	})
}

func TestDatabaseConfig_SQLDriver(t *testing.T) {
	assert.Equal(t, "postgres", DatabaseConfig{Type: "postgres"}.SQLDriver())
	assert.Equal(t, "pgx", DatabaseConfig{Type: "postgres", Driver: "pgx"}.SQLDriver())
}

func TestParseList(t *testing.T) {
	assert.Equal(t, []string{"a", "b"}, parseList(" a, ,b ,"))
	assert.Empty(t, parseList(""))
}

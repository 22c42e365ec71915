package configs

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestLoadConfig(t *testing.T) {
	t.Setenv("ENVIRONMENT", "development")

	t.Run("should apply defaults in development", func(t *testing.T) {
		req := require.New(t)

		cfg, err := LoadConfig()
		req.NoError(err)
		req.Equal(":5555", cfg.ChatAddr)
		req.Equal(8080, cfg.HTTPPort)
		req.Equal(StoreDriverPostgres, cfg.StoreDriver)
		req.Equal(devDatabaseDSN, cfg.DatabaseDSN)
		req.Equal(10, cfg.HistoryCacheSize)
		req.Equal(50, cfg.HistoryReplayLimit)
		req.Equal(2*time.Minute, cfg.AuthIdleTimeout)
		req.Equal(10*time.Minute, cfg.OTPTTL)
		req.Equal(5, cfg.OTPMaxAttempts)
		req.Equal("plaintext", cfg.PasswordHashing)
		req.Equal(2.0, cfg.ConnectRate)
		req.Equal(10, cfg.ConnectBurst)
	})

	t.Run("should split allowed origins", func(t *testing.T) {
		t.Setenv("ALLOWED_ORIGINS", "https://a.example, https://b.example")

		cfg, err := LoadConfig()
		require.NoError(t, err)
		require.Equal(t, []string{"https://a.example", "https://b.example"}, cfg.AllowedOrigins)
	})

	t.Run("should require a DSN outside development", func(t *testing.T) {
		t.Setenv("ENVIRONMENT", "production")
		t.Setenv("STORE_DRIVER", "postgres")
		t.Setenv("DATABASE_URL", "")

		_, err := LoadConfig()
		require.ErrorContains(t, err, "DATABASE_URL")
	})

	t.Run("should require SMTP settings for the smtp notifier", func(t *testing.T) {
		t.Setenv("NOTIFIER", "smtp")
		t.Setenv("SMTP_HOST", "")

		_, err := LoadConfig()
		require.ErrorContains(t, err, "SMTP_HOST")
	})

	t.Run("should reject unknown drivers and policies", func(t *testing.T) {
		t.Setenv("STORE_DRIVER", "sqlite")
		_, err := LoadConfig()
		require.ErrorContains(t, err, "STORE_DRIVER")

		t.Setenv("STORE_DRIVER", "badger")
		t.Setenv("PASSWORD_HASHING", "md5")
		_, err = LoadConfig()
		require.ErrorContains(t, err, "PASSWORD_HASHING")
	})

	t.Run("should reject privileged ports", func(t *testing.T) {
		t.Setenv("HTTP_PORT", "80")
		_, err := LoadConfig()
		require.Error(t, err)
	})
}

package config

import (
	"os"
	"testing"
	"time"
)

func unsetEnv(t *testing.T, key string) {
	t.Helper()
	if val, ok := os.LookupEnv(key); ok {
		t.Cleanup(func() { os.Setenv(key, val) })
	}
	os.Unsetenv(key)
}

func TestLoad(t *testing.T) {
	t.Run("returns config with defaults when no env vars set", func(t *testing.T) {
		for _, key := range []string{
			"DB_HOST", "DB_PORT", "SERVER_PORT", "SERVER_BASE_URL",
			"JWT_ALGORITHM", "SESSION_TTL", "VERIFICATION_TOKEN_MAX_AGE",
			"RESET_TOKEN_MAX_AGE", "TOTP_ISSUER", "SMTP_PORT",
		} {
			unsetEnv(t, key)
		}

		cfg := Load()
		if cfg == nil {
			t.Fatal("expected non-nil config")
		}
		if cfg.DB.Host != "localhost" {
			t.Errorf("expected DB.Host 'localhost', got %s", cfg.DB.Host)
		}
		if cfg.DB.Port != "5432" {
			t.Errorf("expected DB.Port '5432', got %s", cfg.DB.Port)
		}
		if cfg.Server.Port != "8080" {
			t.Errorf("expected Server.Port '8080', got %s", cfg.Server.Port)
		}
		if cfg.Session.Algorithm != "HS256" {
			t.Errorf("expected Session.Algorithm 'HS256', got %s", cfg.Session.Algorithm)
		}
		if cfg.Session.TTL != 30*time.Minute {
			t.Errorf("expected Session.TTL 30m, got %v", cfg.Session.TTL)
		}
		if cfg.ActionToken.VerificationMaxAge != 24*time.Hour {
			t.Errorf("expected ActionToken.VerificationMaxAge 24h, got %v", cfg.ActionToken.VerificationMaxAge)
		}
		if cfg.ActionToken.ResetMaxAge != 15*time.Minute {
			t.Errorf("expected ActionToken.ResetMaxAge 15m, got %v", cfg.ActionToken.ResetMaxAge)
		}
		if cfg.TOTP.Issuer != "AuthGate" {
			t.Errorf("expected TOTP.Issuer 'AuthGate', got %s", cfg.TOTP.Issuer)
		}
		if cfg.SMTP.Port != "587" {
			t.Errorf("expected SMTP.Port '587', got %s", cfg.SMTP.Port)
		}
	})

	t.Run("reads environment variables", func(t *testing.T) {
		t.Setenv("DB_HOST", "custom-host")
		t.Setenv("DB_PORT", "5433")
		t.Setenv("DB_USER", "custom-user")
		t.Setenv("DB_PASSWORD", "custom-pass")
		t.Setenv("DB_NAME", "custom-db")
		t.Setenv("DB_SSLMODE", "require")
		t.Setenv("SERVER_PORT", "9090")
		t.Setenv("SERVER_BASE_URL", "https://auth.example.com")
		t.Setenv("JWT_SECRET", "my-secret")
		t.Setenv("JWT_ALGORITHM", "HS512")
		t.Setenv("SESSION_TTL", "1h")
		t.Setenv("ACTION_TOKEN_SECRET", "action-secret")
		t.Setenv("VERIFICATION_TOKEN_MAX_AGE", "48h")
		t.Setenv("RESET_TOKEN_MAX_AGE", "5m")
		t.Setenv("TOTP_ISSUER", "Example Corp")

		cfg := Load()

		if cfg.DB.Host != "custom-host" {
			t.Errorf("expected DB.Host 'custom-host', got %s", cfg.DB.Host)
		}
		if cfg.DB.SSLMode != "require" {
			t.Errorf("expected DB.SSLMode 'require', got %s", cfg.DB.SSLMode)
		}
		if cfg.Server.Port != "9090" {
			t.Errorf("expected Server.Port '9090', got %s", cfg.Server.Port)
		}
		if cfg.Server.BaseURL != "https://auth.example.com" {
			t.Errorf("expected Server.BaseURL 'https://auth.example.com', got %s", cfg.Server.BaseURL)
		}
		if cfg.Session.Secret != "my-secret" {
			t.Errorf("expected Session.Secret 'my-secret', got %s", cfg.Session.Secret)
		}
		if cfg.Session.Algorithm != "HS512" {
			t.Errorf("expected Session.Algorithm 'HS512', got %s", cfg.Session.Algorithm)
		}
		if cfg.Session.TTL != time.Hour {
			t.Errorf("expected Session.TTL 1h, got %v", cfg.Session.TTL)
		}
		if cfg.ActionToken.Secret != "action-secret" {
			t.Errorf("expected ActionToken.Secret 'action-secret', got %s", cfg.ActionToken.Secret)
		}
		if cfg.ActionToken.VerificationMaxAge != 48*time.Hour {
			t.Errorf("expected ActionToken.VerificationMaxAge 48h, got %v", cfg.ActionToken.VerificationMaxAge)
		}
		if cfg.ActionToken.ResetMaxAge != 5*time.Minute {
			t.Errorf("expected ActionToken.ResetMaxAge 5m, got %v", cfg.ActionToken.ResetMaxAge)
		}
		if cfg.TOTP.Issuer != "Example Corp" {
			t.Errorf("expected TOTP.Issuer 'Example Corp', got %s", cfg.TOTP.Issuer)
		}
	})
}

func TestGetEnv(t *testing.T) {
	t.Run("returns env value when set", func(t *testing.T) {
		t.Setenv("TEST_GET_ENV", "value123")
		if got := getEnv("TEST_GET_ENV", "fallback"); got != "value123" {
			t.Errorf("expected 'value123', got %s", got)
		}
	})

	t.Run("returns fallback when not set", func(t *testing.T) {
		unsetEnv(t, "TEST_GET_ENV_MISSING")
		if got := getEnv("TEST_GET_ENV_MISSING", "fallback"); got != "fallback" {
			t.Errorf("expected 'fallback', got %s", got)
		}
	})
}

func TestGetEnvAsInt(t *testing.T) {
	t.Run("returns parsed int", func(t *testing.T) {
		t.Setenv("TEST_INT", "42")
		if got := getEnvAsInt("TEST_INT", 0); got != 42 {
			t.Errorf("expected 42, got %d", got)
		}
	})

	t.Run("returns fallback for invalid int", func(t *testing.T) {
		t.Setenv("TEST_INT_BAD", "not-a-number")
		if got := getEnvAsInt("TEST_INT_BAD", 10); got != 10 {
			t.Errorf("expected 10, got %d", got)
		}
	})

	t.Run("returns fallback when not set", func(t *testing.T) {
		unsetEnv(t, "TEST_INT_MISSING")
		if got := getEnvAsInt("TEST_INT_MISSING", 99); got != 99 {
			t.Errorf("expected 99, got %d", got)
		}
	})
}

func TestGetEnvAsDuration(t *testing.T) {
	t.Run("returns parsed duration", func(t *testing.T) {
		t.Setenv("TEST_DUR", "5m")
		if got := getEnvAsDuration("TEST_DUR", time.Hour); got != 5*time.Minute {
			t.Errorf("expected 5m, got %v", got)
		}
	})

	t.Run("returns fallback for invalid duration", func(t *testing.T) {
		t.Setenv("TEST_DUR_BAD", "invalid")
		if got := getEnvAsDuration("TEST_DUR_BAD", time.Hour); got != time.Hour {
			t.Errorf("expected 1h (fallback), got %v", got)
		}
	})

	t.Run("returns fallback when not set", func(t *testing.T) {
		unsetEnv(t, "TEST_DUR_MISSING")
		if got := getEnvAsDuration("TEST_DUR_MISSING", 2*time.Hour); got != 2*time.Hour {
			t.Errorf("expected 2h (fallback), got %v", got)
		}
	})
}

package config

import (
	"testing"

	"github.com/spf13/viper"
)

// resetViper clears viper's global state so tests do not leak bindings into
// each other.
func resetViper(t *testing.T) {
	t.Helper()
	viper.Reset()
	t.Cleanup(viper.Reset)
}

func TestLoadConfigDefaults(t *testing.T) {
	resetViper(t)

	cfg, err := LoadConfig(t.TempDir())
	if err != nil {
		t.Fatalf("LoadConfig failed: %v", err)
	}

	if cfg.ServerPort != "8080" {
		t.Errorf("ServerPort = %q, want \"8080\"", cfg.ServerPort)
	}
	if cfg.TokenTTLMinutes != 60 {
		t.Errorf("TokenTTLMinutes = %d, want 60", cfg.TokenTTLMinutes)
	}
	if cfg.DefaultPageSize != 10 {
		t.Errorf("DefaultPageSize = %d, want 10", cfg.DefaultPageSize)
	}
	if cfg.MaxPageSize != 1000 {
		t.Errorf("MaxPageSize = %d, want 1000", cfg.MaxPageSize)
	}
	if cfg.SettleRetryAttempts != 3 {
		t.Errorf("SettleRetryAttempts = %d, want 3", cfg.SettleRetryAttempts)
	}
	if cfg.OrderEventExchange != "payment.events" {
		t.Errorf("OrderEventExchange = %q, want \"payment.events\"", cfg.OrderEventExchange)
	}
	if cfg.RedisRateLimitPrefix != "payment:rate_limit" {
		t.Errorf("RedisRateLimitPrefix = %q, want \"payment:rate_limit\"", cfg.RedisRateLimitPrefix)
	}
	if cfg.PayRateLimitPerMinute != 0 {
		t.Errorf("PayRateLimitPerMinute = %d, want 0", cfg.PayRateLimitPerMinute)
	}
	if cfg.CORSAllowedOrigins != "*" {
		t.Errorf("CORSAllowedOrigins = %q, want \"*\"", cfg.CORSAllowedOrigins)
	}
}

func TestLoadConfigFromEnvironment(t *testing.T) {
	resetViper(t)

	t.Setenv("SERVER_PORT", "9191")
	t.Setenv("DATABASE_URL", "postgres://localhost:5432/payments")
	t.Setenv("JWT_SECRET", "super-secret")
	t.Setenv("TOKEN_TTL_MINUTES", "120")
	t.Setenv("PAY_RATE_LIMIT_PER_MINUTE", "30")

	cfg, err := LoadConfig(t.TempDir())
	if err != nil {
		t.Fatalf("LoadConfig failed: %v", err)
	}

	if cfg.ServerPort != "9191" {
		t.Errorf("ServerPort = %q, want \"9191\"", cfg.ServerPort)
	}
	if cfg.DatabaseURL != "postgres://localhost:5432/payments" {
		t.Errorf("DatabaseURL = %q", cfg.DatabaseURL)
	}
	if cfg.JWTSecret != "super-secret" {
		t.Errorf("JWTSecret = %q", cfg.JWTSecret)
	}
	if cfg.TokenTTLMinutes != 120 {
		t.Errorf("TokenTTLMinutes = %d, want 120", cfg.TokenTTLMinutes)
	}
	if cfg.PayRateLimitPerMinute != 30 {
		t.Errorf("PayRateLimitPerMinute = %d, want 30", cfg.PayRateLimitPerMinute)
	}
}

func TestLoadConfigPortOverride(t *testing.T) {
	resetViper(t)

	t.Setenv("SERVER_PORT", "8080")
	t.Setenv("PORT", "3000")

	cfg, err := LoadConfig(t.TempDir())
	if err != nil {
		t.Fatalf("LoadConfig failed: %v", err)
	}
	if cfg.ServerPort != "3000" {
		t.Errorf("PORT must win over SERVER_PORT; got %q", cfg.ServerPort)
	}
}

func TestLoadConfigJWTSecretAlias(t *testing.T) {
	resetViper(t)

	t.Setenv("PAYMENT_SERVICE_JWT_SECRET", "aliased-secret")

	cfg, err := LoadConfig(t.TempDir())
	if err != nil {
		t.Fatalf("LoadConfig failed: %v", err)
	}
	if cfg.JWTSecret != "aliased-secret" {
		t.Errorf("JWTSecret = %q, want aliased value", cfg.JWTSecret)
	}
}

func TestLoadConfigClampsInvalidValues(t *testing.T) {
	resetViper(t)

	t.Setenv("DEFAULT_PAGE_SIZE", "500")
	t.Setenv("MAX_PAGE_SIZE", "100")
	t.Setenv("PAY_RATE_LIMIT_PER_MINUTE", "-5")
	t.Setenv("SETTLE_RETRY_ATTEMPTS", "0")

	cfg, err := LoadConfig(t.TempDir())
	if err != nil {
		t.Fatalf("LoadConfig failed: %v", err)
	}
	if cfg.DefaultPageSize != 100 {
		t.Errorf("DefaultPageSize = %d, want clamped to 100", cfg.DefaultPageSize)
	}
	if cfg.PayRateLimitPerMinute != 0 {
		t.Errorf("PayRateLimitPerMinute = %d, want 0 after negative input", cfg.PayRateLimitPerMinute)
	}
	if cfg.SettleRetryAttempts != 3 {
		t.Errorf("SettleRetryAttempts = %d, want fallback 3", cfg.SettleRetryAttempts)
	}
}

/**
 * @description
 * This package handles the configuration management for the payment service.
 * It uses the Viper library to read configuration from environment variables
 * (plus an optional .env file), providing a centralized and straightforward
 * way to manage application settings.
 *
 * @dependencies
 * - github.com/spf13/viper: A popular library for Go application configuration.
 */

package config

import (
	"log"
	"os"
	"strings"

	"github.com/spf13/viper"
)

// Config holds all the configuration variables for the payment service.
// These values are loaded from environment variables.
type Config struct {
	ServerPort            string `mapstructure:"SERVER_PORT"`
	DatabaseURL           string `mapstructure:"DATABASE_URL"`
	JWTSecret             string `mapstructure:"JWT_SECRET"`
	TokenTTLMinutes       int    `mapstructure:"TOKEN_TTL_MINUTES"`
	DefaultPageSize       int    `mapstructure:"DEFAULT_PAGE_SIZE"`
	MaxPageSize           int    `mapstructure:"MAX_PAGE_SIZE"`
	SettleRetryAttempts   int    `mapstructure:"SETTLE_RETRY_ATTEMPTS"`
	RabbitMQURL           string `mapstructure:"RABBITMQ_URL"`
	OrderEventExchange    string `mapstructure:"ORDER_EVENT_EXCHANGE"`
	RedisURL              string `mapstructure:"REDIS_URL"`
	RedisRateLimitPrefix  string `mapstructure:"REDIS_RATE_LIMIT_PREFIX"`
	PayRateLimitPerMinute int    `mapstructure:"PAY_RATE_LIMIT_PER_MINUTE"`
	CORSAllowedOrigins    string `mapstructure:"CORS_ALLOWED_ORIGINS"`
}

// LoadConfig reads configuration from environment variables from the given path.
// It uses Viper to automatically bind environment variables to the Config struct.
func LoadConfig(path string) (config Config, err error) {
	// Tell viper the path to look for the optional .env file.
	viper.AddConfigPath(path)
	viper.SetConfigName(".env")
	viper.SetConfigType("env")

	// Enable automatic binding of environment variables.
	viper.AutomaticEnv()
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	// Set default values
	viper.SetDefault("SERVER_PORT", "8080")
	viper.SetDefault("TOKEN_TTL_MINUTES", 60)
	viper.SetDefault("DEFAULT_PAGE_SIZE", 10)
	viper.SetDefault("MAX_PAGE_SIZE", 1000)
	viper.SetDefault("SETTLE_RETRY_ATTEMPTS", 3)
	viper.SetDefault("ORDER_EVENT_EXCHANGE", "payment.events")
	viper.SetDefault("REDIS_RATE_LIMIT_PREFIX", "payment:rate_limit")
	viper.SetDefault("PAY_RATE_LIMIT_PER_MINUTE", 0)
	viper.SetDefault("CORS_ALLOWED_ORIGINS", "*")

	// Bind environment variables explicitly to ensure they appear in Unmarshal
	_ = viper.BindEnv("SERVER_PORT")
	_ = viper.BindEnv("PORT")
	_ = viper.BindEnv("DATABASE_URL")
	_ = viper.BindEnv("JWT_SECRET", "JWT_SECRET", "PAYMENT_SERVICE_JWT_SECRET")
	_ = viper.BindEnv("TOKEN_TTL_MINUTES")
	_ = viper.BindEnv("DEFAULT_PAGE_SIZE")
	_ = viper.BindEnv("MAX_PAGE_SIZE")
	_ = viper.BindEnv("SETTLE_RETRY_ATTEMPTS")
	_ = viper.BindEnv("RABBITMQ_URL")
	_ = viper.BindEnv("ORDER_EVENT_EXCHANGE")
	_ = viper.BindEnv("REDIS_URL", "REDIS_URL", "PAYMENT_REDIS_URL")
	_ = viper.BindEnv("REDIS_RATE_LIMIT_PREFIX")
	_ = viper.BindEnv("PAY_RATE_LIMIT_PER_MINUTE")
	_ = viper.BindEnv("CORS_ALLOWED_ORIGINS")

	// Attempt to read the config file. It's okay if it doesn't exist.
	if err = viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			log.Printf("level=warn component=config msg=\"failed to read config file; using environment values\" err=%v", err)
		}
	}

	// Unmarshal the configuration into the Config struct.
	err = viper.Unmarshal(&config)
	if err != nil {
		return
	}

	if port := strings.TrimSpace(os.Getenv("PORT")); port != "" {
		config.ServerPort = port
	}
	if strings.TrimSpace(config.JWTSecret) == "" {
		config.JWTSecret = strings.TrimSpace(os.Getenv("PAYMENT_SERVICE_JWT_SECRET"))
	}
	config.RedisURL = strings.TrimSpace(config.RedisURL)
	config.RedisRateLimitPrefix = strings.TrimSpace(config.RedisRateLimitPrefix)
	if config.RedisRateLimitPrefix == "" {
		config.RedisRateLimitPrefix = "payment:rate_limit"
	}

	if config.TokenTTLMinutes <= 0 {
		config.TokenTTLMinutes = 60
	}
	if config.DefaultPageSize <= 0 {
		config.DefaultPageSize = 10
	}
	if config.MaxPageSize <= 0 {
		config.MaxPageSize = 1000
	}
	if config.DefaultPageSize > config.MaxPageSize {
		log.Printf("level=warn component=config msg=\"default page size exceeds cap; clamping\" default=%d max=%d", config.DefaultPageSize, config.MaxPageSize)
		config.DefaultPageSize = config.MaxPageSize
	}
	if config.SettleRetryAttempts <= 0 {
		config.SettleRetryAttempts = 3
	}
	if config.PayRateLimitPerMinute < 0 {
		log.Printf("level=warn component=config msg=\"negative pay rate limit configured; disabling\" limit=%d", config.PayRateLimitPerMinute)
		config.PayRateLimitPerMinute = 0
	}

	return
}

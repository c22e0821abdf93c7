/**
 * @description
 * This package handles the configuration management for the service. It uses the
 * Viper library to read configuration from environment variables, providing a
 * centralized and straightforward way to manage application settings.
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

// Config holds all the configuration variables for the payments-service.
// These values are loaded from environment variables.
type Config struct {
	ServerPort                 string `mapstructure:"SERVER_PORT"`
	DatabaseURL                string `mapstructure:"DATABASE_URL"`
	RedisURL                   string `mapstructure:"REDIS_URL"`
	RedisRateLimitPrefix       string `mapstructure:"REDIS_RATE_LIMIT_PREFIX"`
	RabbitMQURL                string `mapstructure:"RABBITMQ_URL"`
	GatewayAPIBaseURL          string `mapstructure:"GATEWAY_API_BASE_URL"`
	GatewayAPIKey              string `mapstructure:"GATEWAY_API_KEY"`
	GatewayWebhookSecret       string `mapstructure:"GATEWAY_WEBHOOK_SECRET"`
	AuthJWKSURL                string `mapstructure:"AUTH_JWKS_URL"`
	InternalAPIKey             string `mapstructure:"INTERNAL_API_KEY"`
	SettlementCurrency         string `mapstructure:"SETTLEMENT_CURRENCY"`
	AdminFeePercent            int64  `mapstructure:"ADMIN_FEE_PERCENT"`
	IntentRateLimitPerMinute   int    `mapstructure:"INTENT_RATE_LIMIT_PER_MINUTE"`
	PayoutRunSchedule          string `mapstructure:"PAYOUT_RUN_SCHEDULE"`
	PayoutRunEnabled           bool   `mapstructure:"PAYOUT_RUN_ENABLED"`
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
	viper.SetDefault("REDIS_RATE_LIMIT_PREFIX", "rentfolio:rate_limit")
	viper.SetDefault("SETTLEMENT_CURRENCY", "USD")
	viper.SetDefault("ADMIN_FEE_PERCENT", 10)
	viper.SetDefault("INTENT_RATE_LIMIT_PER_MINUTE", 30)
	// Hourly on the 5th of the month; RunScheduledPayouts is idempotent so
	// repeated fires within the day collapse to no-ops.
	viper.SetDefault("PAYOUT_RUN_SCHEDULE", "0 * 5 * *")
	viper.SetDefault("PAYOUT_RUN_ENABLED", true)

	// Bind environment variables explicitly to ensure they appear in Unmarshal
	_ = viper.BindEnv("SERVER_PORT")
	_ = viper.BindEnv("PORT")
	_ = viper.BindEnv("DATABASE_URL")
	_ = viper.BindEnv("REDIS_URL", "REDIS_URL", "PAYMENTS_REDIS_URL")
	_ = viper.BindEnv("REDIS_RATE_LIMIT_PREFIX")
	_ = viper.BindEnv("RABBITMQ_URL")
	_ = viper.BindEnv("GATEWAY_API_BASE_URL")
	_ = viper.BindEnv("GATEWAY_API_KEY")
	_ = viper.BindEnv("GATEWAY_WEBHOOK_SECRET")
	_ = viper.BindEnv("AUTH_JWKS_URL")
	_ = viper.BindEnv("INTERNAL_API_KEY", "INTERNAL_API_KEY", "PAYMENTS_SERVICE_INTERNAL_API_KEY")
	_ = viper.BindEnv("SETTLEMENT_CURRENCY")
	_ = viper.BindEnv("ADMIN_FEE_PERCENT")
	_ = viper.BindEnv("INTENT_RATE_LIMIT_PER_MINUTE")
	_ = viper.BindEnv("PAYOUT_RUN_SCHEDULE")
	_ = viper.BindEnv("PAYOUT_RUN_ENABLED")

	// Attempt to read the config file. It's okay if it doesn't exist.
	if err = viper.ReadInConfig(); err != nil {
		// If the config file is not found, we can ignore the error.
		// For other errors, we should return them.
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
	if strings.TrimSpace(config.InternalAPIKey) == "" {
		config.InternalAPIKey = strings.TrimSpace(os.Getenv("PAYMENTS_SERVICE_INTERNAL_API_KEY"))
	}
	config.RedisURL = strings.TrimSpace(config.RedisURL)
	config.RedisRateLimitPrefix = strings.TrimSpace(config.RedisRateLimitPrefix)
	if config.RedisRateLimitPrefix == "" {
		config.RedisRateLimitPrefix = "rentfolio:rate_limit"
	}

	config.SettlementCurrency = strings.ToUpper(strings.TrimSpace(config.SettlementCurrency))
	if config.SettlementCurrency == "" {
		config.SettlementCurrency = "USD"
	}

	if config.AdminFeePercent < 0 {
		log.Printf("level=warn component=config msg=\"negative admin fee percent configured; coercing to zero\" fee_percent=%d", config.AdminFeePercent)
		config.AdminFeePercent = 0
	}
	if config.AdminFeePercent > 100 {
		log.Printf("level=warn component=config msg=\"admin fee percent too high; capping at 100\" fee_percent=%d", config.AdminFeePercent)
		config.AdminFeePercent = 100
	}

	if config.IntentRateLimitPerMinute <= 0 {
		config.IntentRateLimitPerMinute = 30
	}
	if strings.TrimSpace(config.PayoutRunSchedule) == "" {
		config.PayoutRunSchedule = "0 * 5 * *"
	}

	return
}

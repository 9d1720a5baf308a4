/**
 * @description
 * This file handles the configuration management for the
 * bank-linking-service. It uses the Viper library to read settings from
 * environment variables or a .env file.
 *
 * @dependencies
 * - github.com/spf13/viper: For configuration management.
 */
package config

import (
	"log"
	"strings"

	"github.com/spf13/viper"
)

// Config stores all configuration for the application.
type Config struct {
	DatabaseURL            string `mapstructure:"DATABASE_URL"`
	RabbitMQURL            string `mapstructure:"RABBITMQ_URL"`
	RedisAddr              string `mapstructure:"REDIS_ADDR"`
	CustomerServiceURL     string `mapstructure:"CUSTOMER_SERVICE_URL"`
	ServerPort             string `mapstructure:"SERVER_PORT"`
	JWTSecret              string `mapstructure:"JWT_SECRET"`
	MaxAccountsPerCustomer int    `mapstructure:"MAX_ACCOUNTS_PER_CUSTOMER"`
	MigrationsPath         string `mapstructure:"MIGRATIONS_PATH"`
	RateLimitPerMinute     int    `mapstructure:"RATE_LIMIT_PER_MINUTE"`
}

// LoadConfig reads configuration from file or environment variables.
func LoadConfig() (*Config, error) {
	viper.AddConfigPath(".")
	viper.SetConfigName(".env")
	viper.SetConfigType("env")

	viper.AutomaticEnv()
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	// Set default values
	viper.SetDefault("SERVER_PORT", "8086")
	viper.SetDefault("CUSTOMER_SERVICE_URL", "http://localhost:8081")
	viper.SetDefault("MAX_ACCOUNTS_PER_CUSTOMER", 4)
	viper.SetDefault("MIGRATIONS_PATH", "migrations")
	viper.SetDefault("RATE_LIMIT_PER_MINUTE", 60)

	// Bind envs explicitly so containers pick them up reliably
	_ = viper.BindEnv("DATABASE_URL")
	_ = viper.BindEnv("RABBITMQ_URL")
	_ = viper.BindEnv("REDIS_ADDR")
	_ = viper.BindEnv("CUSTOMER_SERVICE_URL")
	_ = viper.BindEnv("SERVER_PORT")
	_ = viper.BindEnv("JWT_SECRET")
	_ = viper.BindEnv("MAX_ACCOUNTS_PER_CUSTOMER")
	_ = viper.BindEnv("MIGRATIONS_PATH")
	_ = viper.BindEnv("RATE_LIMIT_PER_MINUTE")

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			log.Printf("Warning: Error reading config file: %s", err)
		}
	}

	var config Config
	if err := viper.Unmarshal(&config); err != nil {
		return nil, err
	}

	return &config, nil
}

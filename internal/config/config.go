// Package config provides configuration management for the bitaxefw mining
// core. It handles loading configuration from environment variables with
// sensible defaults, the way a deployed board reads flash-provisioned boot
// parameters plus any operator override baked into its container image.
//
// Config carries the process's bootstrap settings: where the settings store
// (internal/settings) lives, the events endpoint, how to talk to the ASIC
// UART, pipeline queue tuning, Stratum timeouts, and how to log. Pool
// credentials, the ASIC model and Wi-Fi live in the settings store instead,
// with its own documented per-key defaults; AsicFrequency here is used only
// when the store holds no positive asic_frequency.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// Config holds the bootstrap configuration for the bitaxefw process.
type Config struct {
	// Service identification
	ServiceName string
	Version     string
	Environment string

	// Settings store (internal/settings): the local embedded-SQL database
	// file standing in for the device's flash NVS.
	SettingsPath string

	// Events bus (internal/events): the ZeroMQ PUB endpoint the pipeline
	// publishes share/block/failover/asic-not-responding telemetry to.
	EventsPubAddr string

	// ASIC serial link
	AsicSerialPort string
	AsicInitBaud   int
	AsicMaxBaud    int
	AsicExpected   int
	AsicFrequency  float64

	// Pipeline tuning
	NotifyQueueSize    int
	AsicJobQueueSize   int
	AsicJobFrequencyMS int
	SubrangeSize       uint32

	// Stratum session timeouts
	StratumReadTimeout  time.Duration
	StratumWriteTimeout time.Duration

	// Logging
	LogLevel  string
	LogFormat string
}

// Load loads configuration from environment variables with sensible defaults.
func Load() (*Config, error) {
	cfg := &Config{
		ServiceName: getEnv("SERVICE_NAME", "bitaxefw"),
		Version:     getEnv("VERSION", "dev"),
		Environment: getEnv("ENVIRONMENT", "development"),

		SettingsPath:  getEnv("SETTINGS_PATH", "/data/bitaxefw-settings.db"),
		EventsPubAddr: getEnv("EVENTS_PUB_ADDR", "tcp://*:28400"),

		AsicSerialPort: getEnv("ASIC_SERIAL_PORT", "/dev/ttyS1"),
		AsicInitBaud:   getEnvInt("ASIC_INIT_BAUD", 115_749),
		AsicMaxBaud:    getEnvInt("ASIC_MAX_BAUD", 1_000_000),
		AsicExpected:   getEnvInt("ASIC_EXPECTED_CHIPS", 1),
		AsicFrequency:  getEnvFloat("ASIC_FREQUENCY_MHZ", 485.0),

		NotifyQueueSize:    getEnvInt("NOTIFY_QUEUE_SIZE", 4),
		AsicJobQueueSize:   getEnvInt("ASIC_JOB_QUEUE_SIZE", 32),
		AsicJobFrequencyMS: getEnvInt("ASIC_JOB_FREQUENCY_MS", 500),
		SubrangeSize:       uint32(getEnvInt("NONCE_SUBRANGE_SIZE", 400_000_000)),

		StratumReadTimeout:  getEnvDuration("STRATUM_READ_TIMEOUT", 120*time.Second),
		StratumWriteTimeout: getEnvDuration("STRATUM_WRITE_TIMEOUT", 10*time.Second),

		LogLevel:  getEnv("LOG_LEVEL", "info"),
		LogFormat: getEnv("LOG_FORMAT", "json"),
	}

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return cfg, nil
}

// validate performs basic validation of configuration values.
func (c *Config) validate() error {
	if c.ServiceName == "" {
		return fmt.Errorf("SERVICE_NAME cannot be empty")
	}

	if c.AsicExpected <= 0 {
		return fmt.Errorf("ASIC_EXPECTED_CHIPS must be positive")
	}

	if c.AsicFrequency <= 0 {
		return fmt.Errorf("ASIC_FREQUENCY_MHZ must be positive")
	}

	if c.NotifyQueueSize <= 0 {
		return fmt.Errorf("NOTIFY_QUEUE_SIZE must be positive")
	}

	if c.AsicJobQueueSize <= 0 {
		return fmt.Errorf("ASIC_JOB_QUEUE_SIZE must be positive")
	}

	if c.SettingsPath == "" {
		return fmt.Errorf("SETTINGS_PATH cannot be empty")
	}

	return nil
}

// Helper functions for environment variable parsing

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.Atoi(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.ParseFloat(value, 64); err == nil {
			return parsed
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if parsed, err := time.ParseDuration(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

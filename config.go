package campaignflow

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
)

// Config holds process-level settings for the binaries
type Config struct {
	// DynamoDB
	TableName        string
	AWSRegion        string
	DynamoDBEndpoint string

	// HTTP server
	ListenAddr      string
	ShutdownTimeout time.Duration
	TenantHeader    string

	// Workflow engine signalling
	SignalTimeout time.Duration

	// Logging
	LogLevel  zerolog.Level
	LogPretty bool
}

// DefaultConfig provides sensible defaults
var DefaultConfig = Config{
	TableName:       "campaigns",
	AWSRegion:       "us-east-1",
	ListenAddr:      ":3000",
	ShutdownTimeout: 5 * time.Second,
	TenantHeader:    "X-Tenant-Id",
	SignalTimeout:   10 * time.Second,
	LogLevel:        zerolog.InfoLevel,
	LogPretty:       false,
}

// LoadConfig reads the configuration from the environment, after
// overlaying any .env files present in the working directory. A file
// that cannot be parsed is skipped and reported in the returned error;
// the Config is still usable.
func LoadConfig(files ...string) (Config, error) {
	if len(files) == 0 {
		files = []string{".env"}
	}
	var loadErrs []error
	for _, file := range files {
		if _, err := os.Stat(file); err != nil {
			continue
		}
		if err := godotenv.Load(file); err != nil {
			loadErrs = append(loadErrs, fmt.Errorf("load %s: %w", file, err))
		}
	}

	cfg := DefaultConfig
	cfg.TableName = getEnv("CAMPAIGNS_TABLE", cfg.TableName)
	cfg.AWSRegion = getEnv("AWS_REGION", cfg.AWSRegion)
	cfg.DynamoDBEndpoint = getEnv("DYNAMODB_ENDPOINT", cfg.DynamoDBEndpoint)
	cfg.ListenAddr = getEnv("LISTEN_ADDR", cfg.ListenAddr)
	cfg.ShutdownTimeout = getEnvDuration("SHUTDOWN_TIMEOUT", cfg.ShutdownTimeout)
	cfg.TenantHeader = getEnv("TENANT_HEADER", cfg.TenantHeader)
	cfg.SignalTimeout = getEnvDuration("SIGNAL_TIMEOUT", cfg.SignalTimeout)
	cfg.LogPretty = getEnvBool("LOG_PRETTY", cfg.LogPretty)

	if level, err := zerolog.ParseLevel(strings.ToLower(os.Getenv("LOG_LEVEL"))); err == nil && level != zerolog.NoLevel {
		cfg.LogLevel = level
	}

	return cfg, errors.Join(loadErrs...)
}

func getEnv(key, defaultValue string) string {
	if value := strings.TrimSpace(os.Getenv(key)); value != "" {
		return value
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.ParseBool(value); err == nil {
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

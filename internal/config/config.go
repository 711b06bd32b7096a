package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Environment keys. CLI flags override them.
const (
	EnvBaseURL   = "CONTRACTKIT_BASE_URL"
	EnvTimeoutMs = "CONTRACTKIT_TIMEOUT_MS"
	EnvParallel  = "CONTRACTKIT_PARALLEL"
	EnvOut       = "CONTRACTKIT_OUT"
	EnvRedisURL  = "CONTRACTKIT_REDIS_URL"
	EnvLogFormat = "CONTRACTKIT_LOG_FORMAT"
)

type Config struct {
	BaseURL   string
	Timeout   time.Duration
	Parallel  int
	OutDir    string
	RedisURL  string
	LogFormat string
}

// NewConfig loads dotenvPath into the process environment when the file
// exists (existing variables win) and reads the CONTRACTKIT_* keys.
func NewConfig(dotenvPath string) (*Config, error) {
	if dotenvPath != "" {
		if err := godotenv.Load(dotenvPath); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("load %s: %w", dotenvPath, err)
		}
	}

	timeoutMs, err := strconv.Atoi(getEnvWithDefault(EnvTimeoutMs, "10000"))
	if err != nil || timeoutMs <= 0 {
		return nil, fmt.Errorf("invalid %s: %q", EnvTimeoutMs, os.Getenv(EnvTimeoutMs))
	}
	parallel, err := strconv.Atoi(getEnvWithDefault(EnvParallel, "1"))
	if err != nil || parallel < 1 {
		return nil, fmt.Errorf("invalid %s: %q", EnvParallel, os.Getenv(EnvParallel))
	}
	logFormat := getEnvWithDefault(EnvLogFormat, "text")
	if err := checkLogFormat(EnvLogFormat, logFormat); err != nil {
		return nil, err
	}

	return &Config{
		BaseURL:   os.Getenv(EnvBaseURL),
		Timeout:   time.Duration(timeoutMs) * time.Millisecond,
		Parallel:  parallel,
		OutDir:    getEnvWithDefault(EnvOut, "reports"),
		RedisURL:  os.Getenv(EnvRedisURL),
		LogFormat: logFormat,
	}, nil
}

// SetLogFormat overrides the log format, e.g. from a command-line flag. An
// empty value keeps the current one.
func (c *Config) SetLogFormat(format string) error {
	if format == "" {
		return nil
	}
	if err := checkLogFormat("log format", format); err != nil {
		return err
	}
	c.LogFormat = format
	return nil
}

func checkLogFormat(source, format string) error {
	if format != "text" && format != "json" {
		return fmt.Errorf("invalid %s: %q (want text or json)", source, format)
	}
	return nil
}

func getEnvWithDefault(key, defaultValue string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}

	return defaultValue
}

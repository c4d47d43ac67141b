package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/joho/godotenv"
)

// EnvFile holds per-project environment, typically GCS credentials. It is
// never committed.
const EnvFile = ".env"

// Environment variables that override argent.yaml.
const (
	EnvLogLevel  = "ARGENT_LOG_LEVEL"
	EnvLogFormat = "ARGENT_LOG_FORMAT"
	EnvEncoding  = "ARGENT_ENCODING"
)

// LoadEnv loads <repoRoot>/.env into the process environment. Variables that
// are already set win. A missing file is not an error.
func LoadEnv(repoRoot string) error {
	err := godotenv.Load(filepath.Join(repoRoot, EnvFile))
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("loading %s: %w", EnvFile, err)
	}
	return nil
}

// ApplyEnv overrides fields of c from the ARGENT_* environment variables.
func (c *Config) ApplyEnv() {
	c.Log.Level = getEnv(EnvLogLevel, c.Log.Level)
	c.Log.Format = getEnv(EnvLogFormat, c.Log.Format)
	c.Statement.Encoding = getEnv(EnvEncoding, c.Statement.Encoding)
}

func getEnv(key, fallback string) string {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		return v
	}
	return fallback
}

package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// FileName is the project configuration file at the repo root.
const FileName = "argent.yaml"

// Config represents the top-level argent.yaml configuration.
type Config struct {
	Statement StatementConfig `yaml:"statement"`
	Ingest    IngestConfig    `yaml:"ingest"`
	Export    ExportConfig    `yaml:"export"`
	Log       LogConfig       `yaml:"log"`
	Git       GitConfig       `yaml:"git"`
}

// StatementConfig describes where statement files live and how they are encoded.
type StatementConfig struct {
	Encoding     string   `yaml:"encoding"`
	Format       string   `yaml:"format"`
	ImportDir    string   `yaml:"import_dir"`
	ProcessedDir string   `yaml:"processed_dir"`
	Extensions   []string `yaml:"extensions"`
}

// IngestConfig controls how sources are read.
type IngestConfig struct {
	Workers   int  `yaml:"workers"`
	KeepGoing bool `yaml:"keep_going"` // continue past unreadable sources
}

// ExportConfig controls where clustered exports are written.
type ExportConfig struct {
	Dir string `yaml:"dir"`
}

// LogConfig controls logging.
type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"` // console or json
	RunLog string `yaml:"run_log"`
}

// GitConfig controls git integration.
type GitConfig struct {
	AutoCommit  bool   `yaml:"auto_commit"`
	AuthorName  string `yaml:"author_name"`
	AuthorEmail string `yaml:"author_email"`
}

// Load reads an argent.yaml file from disk. Fields missing from the file keep
// their default values.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config: %w", err)
	}
	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	return cfg, nil
}

// LoadOrDefault loads <repoRoot>/argent.yaml, or returns defaults when the
// file does not exist.
func LoadOrDefault(repoRoot string) (*Config, error) {
	cfg, err := Load(filepath.Join(repoRoot, FileName))
	if errors.Is(err, fs.ErrNotExist) {
		return Default(), nil
	}
	return cfg, err
}

// Save writes a Config to a YAML file.
func Save(path string, cfg *Config) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("marshaling config: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("writing config: %w", err)
	}
	return nil
}

// Default returns a Config with sensible defaults for a new project.
func Default() *Config {
	return &Config{
		Statement: StatementConfig{
			Encoding:     "cp932",
			Format:       "card",
			ImportDir:    "import",
			ProcessedDir: filepath.Join("import", "processed"),
			Extensions:   []string{".csv", ".txt"},
		},
		Ingest: IngestConfig{
			Workers: 4,
		},
		Export: ExportConfig{
			Dir: "exports",
		},
		Log: LogConfig{
			Level:  "info",
			Format: "console",
			RunLog: filepath.Join("logs", "ingest-log.csv"),
		},
		Git: GitConfig{
			AutoCommit:  true,
			AuthorName:  "Argent",
			AuthorEmail: "argent@localhost",
		},
	}
}

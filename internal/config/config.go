package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/pelletier/go-toml/v2"
)

const (
	defaultHashCacheSize = 16
	defaultLogLevel      = "info"
)

// Config describes the application level configuration loaded from json or toml.
type Config struct {
	DataDir       string    `json:"data_dir" toml:"data_dir"`
	DBFile        string    `json:"db_file" toml:"db_file"`
	HashDBDir     string    `json:"hash_db_dir" toml:"hash_db_dir"`
	HashCacheSize int       `json:"hash_cache_size" toml:"hash_cache_size"`
	Log           LogConfig `json:"log" toml:"log"`
	S3            S3Config  `json:"s3" toml:"s3"`
}

// LogConfig is handed to the logger on startup.
type LogConfig struct {
	File        string `json:"file" toml:"file"`
	Level       string `json:"level" toml:"level"`
	MaxRotate   int    `json:"max_rotate" toml:"max_rotate"`
	MaxSize     int    `json:"max_size" toml:"max_size"`
	MaxKeepDays int    `json:"max_keep_days" toml:"max_keep_days"`
	Console     bool   `json:"console" toml:"console"`
}

// S3Config holds the options for devices mounted as s3://bucket/prefix.
type S3Config struct {
	Host            string `json:"host" toml:"host"`
	Region          string `json:"region" toml:"region"`
	AccessKeyID     string `json:"access_key_id" toml:"access_key_id"`
	SecretAccessKey string `json:"secret_access_key" toml:"secret_access_key"`
	SessionToken    string `json:"session_token" toml:"session_token"`
	ForcePathStyle  bool   `json:"force_path_style" toml:"force_path_style"`
}

// Enabled reports whether an object store endpoint is configured.
func (c S3Config) Enabled() bool {
	return strings.TrimSpace(c.Host) != ""
}

// LoadFirst tries to load configuration from the given paths, returning the
// first successfully decoded configuration. If none of the paths contain a
// readable config, an error is returned.
func LoadFirst(paths ...string) (*Config, error) {
	var lastErr error
	for _, path := range paths {
		if path == "" {
			continue
		}
		cfg, err := Load(path)
		if errors.Is(err, os.ErrNotExist) {
			lastErr = err
			continue
		}
		if err != nil {
			return nil, err
		}
		return cfg, nil
	}

	if lastErr == nil {
		lastErr = fmt.Errorf("config not found in paths: %v", paths)
	}
	return nil, lastErr
}

// Load reads configuration from a single file; the extension selects the format.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var cfg Config
	switch strings.ToLower(filepath.Ext(path)) {
	case ".toml":
		err = toml.Unmarshal(data, &cfg)
	default:
		err = json.Unmarshal(data, &cfg)
	}
	if err != nil {
		return nil, fmt.Errorf("decode config %s: %w", path, err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// Validate checks required fields and fills in defaults.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.DataDir) == "" {
		return errors.New("config.data_dir must be set")
	}
	if c.DBFile == "" {
		c.DBFile = filepath.Join(c.DataDir, "catalog.db")
	}
	if c.HashDBDir == "" {
		c.HashDBDir = filepath.Join(c.DataDir, "hashdb")
	}
	if c.HashCacheSize < 0 {
		return fmt.Errorf("config.hash_cache_size must not be negative, got %d", c.HashCacheSize)
	}
	if c.HashCacheSize == 0 {
		c.HashCacheSize = defaultHashCacheSize
	}
	if c.Log.Level == "" {
		c.Log.Level = defaultLogLevel
	}
	return nil
}

// LockFile is the path guarding against concurrent sync sessions.
func (c *Config) LockFile() string {
	return filepath.Join(c.DataDir, "sync.lock")
}

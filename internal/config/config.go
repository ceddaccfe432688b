package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"gopkg.in/yaml.v2"
)

const (
	DefaultMaxConcurrent = 3
	MinConcurrent        = 1
	MaxConcurrent        = 10
)

// Config holds the daemon configuration. Values come from config.yml in the
// data directory, with GRABFROM_* environment variables taking precedence.
type Config struct {
	ListenAddr       string   `yaml:"listen_addr"`
	DataDir          string   `yaml:"data_dir"`
	DownloadDir      string   `yaml:"download_dir"`
	MaxConcurrentDL  int      `yaml:"max_concurrent_downloads"`
	SnapshotInterval int      `yaml:"snapshot_interval_seconds"`
	NotifyIntervalMs int      `yaml:"notify_interval_ms"`
	HistoryMaxRows   int      `yaml:"history_max_rows"`
	HistoryMaxDays   int      `yaml:"history_max_age_days"`
	ResolveTimeout   int      `yaml:"resolve_timeout_seconds"`
	YtdlpPath        string   `yaml:"ytdlp_path"`
	FfmpegPath       string   `yaml:"ffmpeg_path"`
	AllowedOrigins   []string `yaml:"allowed_origins"`
	LogLevel         string   `yaml:"log_level"`
}

// Load reads config.yml from the data directory (if present), applies
// environment overrides, and normalizes the result.
func Load() (*Config, error) {
	cfg := defaults()

	path := filepath.Join(cfg.DataDir, "config.yml")
	if data, err := os.ReadFile(path); err == nil {
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse %s: %w", path, err)
		}
	} else if !os.IsNotExist(err) {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}

	applyEnv(cfg)
	cfg.normalize()
	return cfg, nil
}

func defaults() *Config {
	home, err := os.UserHomeDir()
	if err != nil {
		home = "."
	}
	dataDir := getEnvOrDefault("GRABFROM_DATA_DIR", filepath.Join(home, ".grabfrom"))

	return &Config{
		ListenAddr:       "127.0.0.1:8750",
		DataDir:          dataDir,
		DownloadDir:      filepath.Join(home, "Downloads", "GrabFrom"),
		MaxConcurrentDL:  DefaultMaxConcurrent,
		SnapshotInterval: 15,
		NotifyIntervalMs: 1000,
		HistoryMaxRows:   1000,
		HistoryMaxDays:   90,
		ResolveTimeout:   30,
		FfmpegPath:       "ffmpeg",
		AllowedOrigins:   []string{"*"},
		LogLevel:         "info",
	}
}

func applyEnv(cfg *Config) {
	cfg.DataDir = getEnvOrDefault("GRABFROM_DATA_DIR", cfg.DataDir)
	cfg.ListenAddr = getEnvOrDefault("GRABFROM_LISTEN_ADDR", cfg.ListenAddr)
	cfg.DownloadDir = getEnvOrDefault("GRABFROM_DOWNLOAD_DIR", cfg.DownloadDir)
	cfg.YtdlpPath = getEnvOrDefault("GRABFROM_YTDLP_PATH", cfg.YtdlpPath)
	cfg.FfmpegPath = getEnvOrDefault("GRABFROM_FFMPEG_PATH", cfg.FfmpegPath)
	cfg.LogLevel = getEnvOrDefault("GRABFROM_LOG_LEVEL", cfg.LogLevel)

	if v, err := strconv.Atoi(os.Getenv("GRABFROM_MAX_CONCURRENT")); err == nil {
		cfg.MaxConcurrentDL = v
	}
	if v, err := strconv.Atoi(os.Getenv("GRABFROM_SNAPSHOT_INTERVAL")); err == nil {
		cfg.SnapshotInterval = v
	}
	if v, err := strconv.Atoi(os.Getenv("GRABFROM_HISTORY_MAX_ROWS")); err == nil {
		cfg.HistoryMaxRows = v
	}
	if v, err := strconv.Atoi(os.Getenv("GRABFROM_HISTORY_MAX_DAYS")); err == nil {
		cfg.HistoryMaxDays = v
	}
}

// normalize clamps out-of-range values instead of failing startup.
func (c *Config) normalize() {
	if c.MaxConcurrentDL < MinConcurrent {
		c.MaxConcurrentDL = MinConcurrent
	}
	if c.MaxConcurrentDL > MaxConcurrent {
		c.MaxConcurrentDL = MaxConcurrent
	}
	if c.SnapshotInterval < 0 {
		c.SnapshotInterval = 0
	}
	if c.NotifyIntervalMs <= 0 {
		c.NotifyIntervalMs = 1000
	}
	if c.HistoryMaxRows <= 0 {
		c.HistoryMaxRows = 1000
	}
	if c.HistoryMaxDays <= 0 {
		c.HistoryMaxDays = 90
	}
	if c.ResolveTimeout <= 0 {
		c.ResolveTimeout = 30
	}
	if c.FfmpegPath == "" {
		c.FfmpegPath = "ffmpeg"
	}
	if len(c.AllowedOrigins) == 0 {
		c.AllowedOrigins = []string{"*"}
	}
}

// EnsureDirs creates the data and download directories if missing.
func (c *Config) EnsureDirs() error {
	for _, dir := range []string{c.DataDir, c.DownloadDir} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create %s: %w", dir, err)
		}
	}
	return nil
}

// HistoryDBPath is the SQLite file holding terminal task outcomes.
func (c *Config) HistoryDBPath() string {
	return filepath.Join(c.DataDir, "history.db")
}

// SnapshotPath is the JSON file holding the non-terminal task set.
func (c *Config) SnapshotPath() string {
	return filepath.Join(c.DataDir, "pending_tasks.json")
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

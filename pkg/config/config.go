// Package config provides hierarchical configuration management.
// Priority: defaults < system < user < project < env.
package config

import (
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"sync"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds all reportflow configuration.
type Config struct {
	Version int `yaml:"version"`

	Server    ServerConfig    `yaml:"server"`
	Input     InputConfig     `yaml:"input"`
	Output    OutputConfig    `yaml:"output"`
	Tracking  TrackingConfig  `yaml:"tracking"`
	Storage   StorageConfig   `yaml:"storage"`
	Telemetry TelemetryConfig `yaml:"telemetry"`
	Logging   LoggingConfig   `yaml:"logging"`
}

// ServerConfig for the HTTP front end.
type ServerConfig struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
}

// InputConfig decides which files are eligible.
type InputConfig struct {
	// Container is the object-store container notifications must refer to.
	Container string `yaml:"container"`

	// Prefix is the folder eligible files live under.
	Prefix string `yaml:"prefix"`

	// Suffix is the required extension, matched case-insensitively.
	Suffix string `yaml:"suffix"`
}

// OutputConfig decides where reports are placed.
type OutputConfig struct {
	Prefix string `yaml:"prefix"`
}

// TrackingConfig for the record store behind the idempotency gate.
type TrackingConfig struct {
	// Backend selects the store: redis | local | memory
	Backend string `yaml:"backend"`

	// Namespace prefixes every record key.
	Namespace string `yaml:"namespace"`

	// PendingTTL bounds how long an uncommitted pending record survives.
	PendingTTL time.Duration `yaml:"pending_ttl"`

	// Dir is the record directory for the local backend.
	Dir string `yaml:"dir"`

	Redis RedisConfig `yaml:"redis"`
}

// RedisConfig for the redis tracking backend.
type RedisConfig struct {
	Address  string `yaml:"address"`
	Password string `yaml:"password"`
	Database int    `yaml:"database"`
}

// StorageConfig for the object store.
type StorageConfig struct {
	// Backend selects the store: s3 | local
	Backend string `yaml:"backend"`

	// Dir is the object root for the local backend.
	Dir string `yaml:"dir"`

	S3 S3Config `yaml:"s3"`
}

// S3Config for the s3 storage backend.
type S3Config struct {
	Region          string `yaml:"region"`
	Endpoint        string `yaml:"endpoint"`
	UsePathStyle    bool   `yaml:"use_path_style"`
	AccessKeyID     string `yaml:"access_key_id"`
	SecretAccessKey string `yaml:"secret_access_key"`
}

// TelemetryConfig for optional OTLP tracing.
type TelemetryConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Endpoint string `yaml:"endpoint"`
}

// LoggingConfig for structured logging.
type LoggingConfig struct {
	// Level is one of debug, info, warn, error.
	Level string `yaml:"level"`

	// File receives a JSON copy of the log stream when set.
	File string `yaml:"file"`
}

// Default returns the default configuration.
func Default() *Config {
	homeDir, _ := os.UserHomeDir()
	baseDir := filepath.Join(homeDir, ".reportflow")

	return &Config{
		Version: 1,
		Server: ServerConfig{
			Host: "0.0.0.0",
			Port: 8080,
		},
		Input: InputConfig{
			Container: "gcs-csv-reporter",
			Prefix:    "raw-data",
			Suffix:    ".csv",
		},
		Output: OutputConfig{
			Prefix: "reports",
		},
		Tracking: TrackingConfig{
			Backend:    "redis",
			Namespace:  "processed_files",
			PendingTTL: 15 * time.Minute,
			Dir:        filepath.Join(baseDir, "tracking"),
			Redis: RedisConfig{
				Address: "localhost:6379",
			},
		},
		Storage: StorageConfig{
			Backend: "s3",
			Dir:     filepath.Join(baseDir, "objects"),
			S3: S3Config{
				Region: "us-east-1",
			},
		},
		Telemetry: TelemetryConfig{
			Enabled: false,
		},
		Logging: LoggingConfig{
			Level: "info",
		},
	}
}

// Manager handles configuration loading and merging.
type Manager struct {
	mu     sync.RWMutex
	config *Config
	paths  []string
}

// NewManager creates a new configuration manager.
func NewManager() *Manager {
	return &Manager{config: Default()}
}

// Load loads configuration from all sources in priority order.
func (m *Manager) Load() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.config = Default()

	for _, path := range m.getConfigPaths() {
		if err := m.loadFile(path); err != nil {
			if !os.IsNotExist(err) {
				return err
			}
		} else {
			m.paths = append(m.paths, path)
		}
	}

	m.loadEnv()
	return nil
}

// getConfigPaths returns config file paths in priority order.
func (m *Manager) getConfigPaths() []string {
	var paths []string

	if runtime.GOOS != "windows" {
		paths = append(paths, "/etc/reportflow/config.yaml")
	}
	if home, err := os.UserHomeDir(); err == nil {
		paths = append(paths, filepath.Join(home, ".reportflow", "config.yaml"))
	}
	if cwd, err := os.Getwd(); err == nil {
		paths = append(paths, filepath.Join(cwd, ".reportflow.yaml"))
	}

	return paths
}

// loadFile loads a single config file and merges it.
func (m *Manager) loadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}

	var partial Config
	if err := yaml.Unmarshal(data, &partial); err != nil {
		return err
	}

	m.merge(&partial)
	return nil
}

// merge merges non-zero values from src into config.
func (m *Manager) merge(src *Config) {
	if src.Server.Host != "" {
		m.config.Server.Host = src.Server.Host
	}
	if src.Server.Port != 0 {
		m.config.Server.Port = src.Server.Port
	}

	if src.Input.Container != "" {
		m.config.Input.Container = src.Input.Container
	}
	if src.Input.Prefix != "" {
		m.config.Input.Prefix = src.Input.Prefix
	}
	if src.Input.Suffix != "" {
		m.config.Input.Suffix = src.Input.Suffix
	}
	if src.Output.Prefix != "" {
		m.config.Output.Prefix = src.Output.Prefix
	}

	if src.Tracking.Backend != "" {
		m.config.Tracking.Backend = src.Tracking.Backend
	}
	if src.Tracking.Namespace != "" {
		m.config.Tracking.Namespace = src.Tracking.Namespace
	}
	if src.Tracking.PendingTTL != 0 {
		m.config.Tracking.PendingTTL = src.Tracking.PendingTTL
	}
	if src.Tracking.Dir != "" {
		m.config.Tracking.Dir = src.Tracking.Dir
	}
	if src.Tracking.Redis.Address != "" {
		m.config.Tracking.Redis.Address = src.Tracking.Redis.Address
	}
	if src.Tracking.Redis.Password != "" {
		m.config.Tracking.Redis.Password = src.Tracking.Redis.Password
	}
	if src.Tracking.Redis.Database != 0 {
		m.config.Tracking.Redis.Database = src.Tracking.Redis.Database
	}

	if src.Storage.Backend != "" {
		m.config.Storage.Backend = src.Storage.Backend
	}
	if src.Storage.Dir != "" {
		m.config.Storage.Dir = src.Storage.Dir
	}
	if src.Storage.S3.Region != "" {
		m.config.Storage.S3.Region = src.Storage.S3.Region
	}
	if src.Storage.S3.Endpoint != "" {
		m.config.Storage.S3.Endpoint = src.Storage.S3.Endpoint
	}
	if src.Storage.S3.UsePathStyle {
		m.config.Storage.S3.UsePathStyle = true
	}
	if src.Storage.S3.AccessKeyID != "" {
		m.config.Storage.S3.AccessKeyID = src.Storage.S3.AccessKeyID
	}
	if src.Storage.S3.SecretAccessKey != "" {
		m.config.Storage.S3.SecretAccessKey = src.Storage.S3.SecretAccessKey
	}

	if src.Telemetry.Enabled {
		m.config.Telemetry.Enabled = true
	}
	if src.Telemetry.Endpoint != "" {
		m.config.Telemetry.Endpoint = src.Telemetry.Endpoint
	}

	if src.Logging.Level != "" {
		m.config.Logging.Level = src.Logging.Level
	}
	if src.Logging.File != "" {
		m.config.Logging.File = src.Logging.File
	}
}

// loadEnv loads configuration from environment variables.
func (m *Manager) loadEnv() {
	if v := os.Getenv("REPORTFLOW_INPUT_CONTAINER"); v != "" {
		m.config.Input.Container = v
	}
	if v := os.Getenv("REPORTFLOW_INPUT_PREFIX"); v != "" {
		m.config.Input.Prefix = v
	}
	if v := os.Getenv("REPORTFLOW_OUTPUT_PREFIX"); v != "" {
		m.config.Output.Prefix = v
	}
	if v := os.Getenv("REPORTFLOW_TRACKING_NAMESPACE"); v != "" {
		m.config.Tracking.Namespace = v
	}
	if v := os.Getenv("REPORTFLOW_TRACKING_BACKEND"); v != "" {
		m.config.Tracking.Backend = v
	}
	if v := os.Getenv("REPORTFLOW_REDIS_ADDRESS"); v != "" {
		m.config.Tracking.Redis.Address = v
	}
	if v := os.Getenv("REPORTFLOW_STORAGE_BACKEND"); v != "" {
		m.config.Storage.Backend = v
	}
	if v := os.Getenv("REPORTFLOW_S3_ENDPOINT"); v != "" {
		m.config.Storage.S3.Endpoint = v
	}
	if v := os.Getenv("REPORTFLOW_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			m.config.Server.Port = port
		}
	}
	if v := os.Getenv("REPORTFLOW_LOG_LEVEL"); v != "" {
		m.config.Logging.Level = v
	}
	if v := os.Getenv("REPORTFLOW_OTLP_ENDPOINT"); v != "" {
		m.config.Telemetry.Enabled = true
		m.config.Telemetry.Endpoint = v
	}
}

// Get returns the current configuration.
func (m *Manager) Get() *Config {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.config
}

// GetPaths returns the config file paths that were loaded.
func (m *Manager) GetPaths() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.paths
}

// Global instance
var (
	globalManager *Manager
	globalOnce    sync.Once
)

// Global returns the global configuration manager. A config file that
// fails to load leaves the defaults in place; the failure is logged so
// a malformed file does not pass silently.
func Global() *Manager {
	globalOnce.Do(func() {
		globalManager = NewManager()
		if err := globalManager.Load(); err != nil {
			slog.Warn("could not load config, using defaults", "error", err)
		}
	})
	return globalManager
}

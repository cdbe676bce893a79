package config

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"
)

// Config is the main configuration for kosmikd.
type Config struct {
	ServerID     string         `toml:"server_id"`
	ListenAddr   string         `toml:"listen_addr"`
	DownloadHost string         `toml:"download_host"`
	LogDir       string         `toml:"log_dir"`
	Database     DatabaseConfig `toml:"database"`
	Store        StoreConfig    `toml:"store"`
	Tokens       TokenConfig    `toml:"tokens"`
}

// DatabaseConfig configures the version index.
// Tagged union: the Type field determines which other fields apply.
type DatabaseConfig struct {
	Type string `toml:"type"`           // "sqlite" (default) or "memory"
	Path string `toml:"path,omitempty"` // only used for type=sqlite
}

// StoreConfig configures the artifact store backend.
// Tagged union: the Type field determines which other fields apply.
type StoreConfig struct {
	Type string `toml:"type"`           // "filesystem" (default), "s3", or "memory"
	Root string `toml:"root,omitempty"` // only used for type=filesystem

	// S3-specific fields (only used when Type == "s3")
	S3Bucket    string `toml:"s3_bucket,omitempty"`
	S3Prefix    string `toml:"s3_prefix,omitempty"`
	S3Region    string `toml:"s3_region,omitempty"`
	S3AccessKey string `toml:"s3_access_key,omitempty"`
	S3SecretKey string `toml:"s3_secret_key,omitempty"`
}

// TokenConfig configures download token issuance.
type TokenConfig struct {
	TTLMinutes int64 `toml:"ttl_minutes"` // validity window; defaults to 10
}

// NewConfig creates a Config with the provided server id and defaults
// rooted under baseDir.
func NewConfig(serverID, baseDir string) *Config {
	return &Config{
		ServerID:     serverID,
		ListenAddr:   ":8080",
		DownloadHost: "http://localhost:8080/dl/",
		LogDir:       filepath.Join(baseDir, "log"),
		Database: DatabaseConfig{
			Type: "sqlite",
			Path: filepath.Join(baseDir, "index.db"),
		},
		Store: StoreConfig{
			Type: "filesystem",
			Root: filepath.Join(baseDir, "dl"),
		},
		Tokens: TokenConfig{TTLMinutes: 10},
	}
}

// Manager handles reading and writing configuration.
type Manager struct{}

// Read decodes a Config from the provided reader.
func (m *Manager) Read(r io.Reader) (*Config, error) {
	var cfg Config
	if _, err := toml.NewDecoder(r).Decode(&cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}
	return &cfg, nil
}

// Write encodes a Config to the provided writer.
func (m *Manager) Write(w io.Writer, cfg *Config) error {
	if err := toml.NewEncoder(w).Encode(cfg); err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}
	return nil
}

// ReadFromFile reads a Config from the specified file path.
func ReadFromFile(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open config file: %w", err)
	}
	defer f.Close()

	m := &Manager{}
	cfg, err := m.Read(f)
	if err != nil {
		return nil, fmt.Errorf("reading config from %s: %w", path, err)
	}
	return cfg, nil
}

// writeToFile writes a Config to the specified file path.
func writeToFile(path string, cfg *Config) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create config file: %w", err)
	}
	defer f.Close()

	m := &Manager{}
	if err := m.Write(f, cfg); err != nil {
		return fmt.Errorf("writing config to %s: %w", path, err)
	}
	return nil
}

// Init initializes a new config file at the specified path with the
// provided Config. Fails if a config file already exists there.
func Init(path string, cfg *Config) error {
	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("config file already exists at %s", path)
	}

	if err := writeToFile(path, cfg); err != nil {
		return fmt.Errorf("initializing config: %w", err)
	}
	return nil
}

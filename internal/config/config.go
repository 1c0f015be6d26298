package config

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/BurntSushi/toml"
)

// Config is the main configuration for lumen.
type Config struct {
	BaseDir    string           `toml:"base_dir"`
	LogDir     string           `toml:"log_dir"`
	Database   DatabaseConfig   `toml:"database"`
	Remote     RemoteConfig     `toml:"remote"`
	Encryption EncryptionConfig `toml:"encryption"`
	Sync       SyncConfig       `toml:"sync"`
}

// DatabaseConfig configures the local document store.
// This uses a tagged union pattern - the Type field determines which other fields are relevant.
type DatabaseConfig struct {
	Type    string `toml:"type"`               // "sqlite" or "memory"
	DataDir string `toml:"data_dir,omitempty"` // only used for type=sqlite
}

// RemoteConfig configures where the remote snapshot lives.
// This uses a tagged union pattern - the Type field determines which other fields are relevant.
type RemoteConfig struct {
	Type string `toml:"type"`           // "filesystem" or "memory"
	Root string `toml:"root,omitempty"` // only used for type=filesystem
}

// EncryptionConfig configures optional at-rest encryption of the remote
// snapshot file.
type EncryptionConfig struct {
	Type         string `toml:"type"` // "none" (default) or "age"
	IdentityPath string `toml:"identity_path,omitempty"`
}

// SyncConfig controls the sync engine.
type SyncConfig struct {
	Auto        bool     `toml:"auto"`         // activate sync at startup
	Interval    duration `toml:"interval"`     // time between scheduled cycles
	WatchRemote bool     `toml:"watch_remote"` // pull when another replica updates the snapshot
	CacheTTL    duration `toml:"cache_ttl"`    // TTL for settings/day aggregates
}

// IntervalOrDefault returns the scheduled sync interval, defaulting to 30s.
func (s SyncConfig) IntervalOrDefault() time.Duration {
	if s.Interval.d <= 0 {
		return 30 * time.Second
	}
	return s.Interval.d
}

// CacheTTLOrDefault returns the aggregate cache TTL, defaulting to 5s.
func (s SyncConfig) CacheTTLOrDefault() time.Duration {
	if s.CacheTTL.d <= 0 {
		return 5 * time.Second
	}
	return s.CacheTTL.d
}

// duration lets TOML carry values like "30s" or "2m".
type duration struct {
	d time.Duration
}

func (d *duration) UnmarshalText(text []byte) error {
	v, err := time.ParseDuration(string(text))
	if err != nil {
		return err
	}
	d.d = v
	return nil
}

func (d duration) MarshalText() ([]byte, error) {
	if d.d == 0 {
		return nil, nil
	}
	return []byte(d.d.String()), nil
}

// Duration constructs a TOML duration value.
func Duration(d time.Duration) duration { return duration{d: d} }

// NewConfig creates a Config with sensible defaults under baseDir. The
// remote root is left empty; sync stays disabled until it is configured.
func NewConfig(baseDir string) *Config {
	return &Config{
		BaseDir: baseDir,
		LogDir:  filepath.Join(baseDir, "log"),
		Database: DatabaseConfig{
			Type:    "sqlite",
			DataDir: filepath.Join(baseDir, "data"),
		},
		Remote: RemoteConfig{
			Type: "filesystem",
		},
		Encryption: EncryptionConfig{
			Type: "none",
		},
		Sync: SyncConfig{
			Auto:        true,
			Interval:    Duration(30 * time.Second),
			WatchRemote: true,
			CacheTTL:    Duration(5 * time.Second),
		},
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

// Init initializes a new config file at the specified path with the provided Config.
func Init(path string, cfg *Config) error {
	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("config file already exists at %s", path)
	}

	if err := writeToFile(path, cfg); err != nil {
		return fmt.Errorf("initializing config: %w", err)
	}
	return nil
}

// SetEncryption persists encryption settings already applied to cfg.
func SetEncryption(path string, cfg *Config) error {
	if err := writeToFile(path, cfg); err != nil {
		return fmt.Errorf("updating encryption config: %w", err)
	}
	return nil
}

// SetRemoteRoot re-points the remote snapshot directory and persists the
// change. The store can be pointed at a new root at runtime; the next sync
// cycle loads from it.
func SetRemoteRoot(path string, cfg *Config, root string) error {
	cfg.Remote.Type = "filesystem"
	cfg.Remote.Root = root
	if err := writeToFile(path, cfg); err != nil {
		return fmt.Errorf("updating remote root: %w", err)
	}
	return nil
}

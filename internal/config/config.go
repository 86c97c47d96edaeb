package config

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/BurntSushi/toml"
)

// Config represents the main configuration for vidup.
type Config struct {
	HostID     string           `toml:"host_id"`
	BaseDir    string           `toml:"base_dir"`
	LogDir     string           `toml:"log_dir"`
	LedgerPath string           `toml:"ledger_path"`
	Telegram   TelegramConfig   `toml:"telegram"`
	Upload     UploadConfig     `toml:"upload"`
	Vaults     []VaultConfig    `toml:"vaults"`
	Encryption EncryptionConfig `toml:"encryption"`
	Database   DatabaseConfig   `toml:"database"`
	Staging    StagingConfig    `toml:"staging"`
	Filesystem FilesystemConfig `toml:"filesystem"`
}

// TelegramConfig selects how uploads reach Telegram and where they go.
// Credentials may be left empty here and supplied through the environment.
type TelegramConfig struct {
	Mode   string `toml:"mode"` // "bot", "user" or "auto" (default)
	ChatID string `toml:"chat_id"`

	// Bot API transport
	BotToken     string `toml:"bot_token,omitempty"`
	BotAPIServer string `toml:"bot_api_server,omitempty"` // self-hosted Bot API server URL

	// MTProto user transport
	APIID       int32  `toml:"api_id,omitempty"`
	APIHash     string `toml:"api_hash,omitempty"`
	Phone       string `toml:"phone,omitempty"`
	SessionPath string `toml:"session_path,omitempty"`
	Premium     bool   `toml:"premium,omitempty"` // raises the user cap to 4GB
}

// UploadConfig tunes the upload loop.
type UploadConfig struct {
	Workers         int      `toml:"workers"`
	Delay           Duration `toml:"delay"`
	MaxRetries      uint64   `toml:"max_retries"`
	CaptionTemplate string   `toml:"caption_template,omitempty"`
	Extensions      []string `toml:"extensions,omitempty"` // overrides the built-in video list
	SplitDir        string   `toml:"split_dir,omitempty"`
}

// Duration is a time.Duration written as a string like "1m30s".
type Duration struct {
	time.Duration
}

func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.String()), nil
}

func (d *Duration) UnmarshalText(text []byte) error {
	v, err := time.ParseDuration(string(text))
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", text, err)
	}
	d.Duration = v
	return nil
}

// EncryptionConfig holds paths to the age key pair used for encryption.
type EncryptionConfig struct {
	Type           string `toml:"type"` // "age" (default) or "seal"
	PublicKeyPath  string `toml:"public_key_path"`
	PrivateKeyPath string `toml:"private_key_path"`
}

// FilesystemConfig holds filesystem-related settings.
type FilesystemConfig struct {
	Ignore []string `toml:"ignore"`
}

// VaultConfig represents configuration for a vault backend.
// This uses a tagged union pattern - the Type field determines which other fields are relevant.
type VaultConfig struct {
	Type string `toml:"type"` // "memory", "s3", or "filesystem"
	Name string `toml:"name"`

	// S3-specific fields (only used when Type == "s3")
	S3Bucket   string `toml:"s3_bucket,omitempty"`
	S3Prefix   string `toml:"s3_prefix,omitempty"`
	S3Region   string `toml:"s3_region,omitempty"`
	S3Endpoint string `toml:"s3_endpoint,omitempty"` // for S3-compatible stores

	// Static S3 credentials come from the environment only.
	S3AccessKeyID     string `toml:"-"`
	S3SecretAccessKey string `toml:"-"`

	// FileSystem-specific fields (only used when Type == "filesystem")
	FSVaultRoot string `toml:"fs_vault_root,omitempty"`
}

// DatabaseConfig represents configuration for the operation log database.
// This uses a tagged union pattern - the Type field determines which other fields are relevant.
type DatabaseConfig struct {
	Type    string `toml:"type"`               // "sqlite" or "memory"
	DataDir string `toml:"data_dir,omitempty"` // only used for type=sqlite
}

// StagingConfig represents configuration for the staging area.
// This uses a tagged union pattern - the Type field determines which other fields are relevant.
type StagingConfig struct {
	Type       string `toml:"type"`                  // "memory" or "filesystem"
	StagingDir string `toml:"staging_dir,omitempty"` // only used for type=filesystem
	MaxSize    int64  `toml:"max_size"`              // max total bytes queued; 0 means unlimited
}

// Defaults for a freshly initialized config.
const (
	DefaultWorkers    = 1
	DefaultMaxRetries = 3
	DefaultDelay      = 2 * time.Second
)

// NewConfig creates a new Config with the provided values and default paths.
func NewConfig(hostID, baseDir string) *Config {
	return &Config{
		HostID:     hostID,
		BaseDir:    baseDir,
		LogDir:     filepath.Join(baseDir, "log"),
		LedgerPath: filepath.Join(baseDir, "uploaded.json"),
		Telegram: TelegramConfig{
			Mode:        "auto",
			SessionPath: filepath.Join(baseDir, "session", "user.session"),
		},
		Upload: UploadConfig{
			Workers:    DefaultWorkers,
			Delay:      Duration{DefaultDelay},
			MaxRetries: DefaultMaxRetries,
		},
		Encryption: EncryptionConfig{
			PublicKeyPath:  filepath.Join(baseDir, "keys", "vidup.pub"),
			PrivateKeyPath: filepath.Join(baseDir, "keys", "vidup.key"),
		},
		Database: DatabaseConfig{
			Type:    "sqlite",
			DataDir: filepath.Join(baseDir, "db"),
		},
		Staging: StagingConfig{
			Type:       "filesystem",
			StagingDir: filepath.Join(baseDir, "staging"),
		},
	}
}

// Validate checks settings that would otherwise fail deep inside a command.
func (c *Config) Validate() error {
	if c.HostID == "" {
		return fmt.Errorf("host_id must be set")
	}
	switch c.Telegram.Mode {
	case "", "bot", "user", "auto":
	default:
		return fmt.Errorf("telegram.mode must be bot, user or auto, got %q", c.Telegram.Mode)
	}
	if c.Upload.Workers < 0 {
		return fmt.Errorf("upload.workers must not be negative")
	}
	if c.Upload.Delay.Duration < 0 {
		return fmt.Errorf("upload.delay must not be negative")
	}
	if c.Staging.MaxSize < 0 {
		return fmt.Errorf("staging.max_size must not be negative")
	}
	names := make(map[string]bool, len(c.Vaults))
	for _, v := range c.Vaults {
		if names[v.Name] {
			return fmt.Errorf("duplicate vault name %q", v.Name)
		}
		names[v.Name] = true
	}
	return nil
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

// writeToFile writes a Config to the specified file path. The file may hold
// credentials, so it is only readable by the owner.
func writeToFile(path string, cfg *Config) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0600)
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

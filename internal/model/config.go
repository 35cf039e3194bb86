package model

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/viper"
)

// ServiceConfig holds per-service overrides, mainly for pointing a client
// at a test server or a self-hosted gateway.
type ServiceConfig struct {
	// BaseURL overrides the service's default API root when non-empty.
	BaseURL string `mapstructure:"base_url" yaml:"base_url"`
}

// SyncConfig holds tuning knobs for the sync coordinator and the paginated
// list fetchers.
type SyncConfig struct {
	// PageSize is the number of conversations requested per list page
	// for services with paginated list endpoints.
	PageSize int `mapstructure:"page_size" yaml:"page_size"`

	// PageDelayMs is the courtesy delay between list pages.
	PageDelayMs int `mapstructure:"page_delay_ms" yaml:"page_delay_ms"`

	// ItemDelayMs is the courtesy delay between conversation detail
	// fetches. These delays keep the remote services from throttling
	// or banning the client IP.
	ItemDelayMs int `mapstructure:"item_delay_ms" yaml:"item_delay_ms"`
}

// AppConfig is the top-level application configuration.
type AppConfig struct {
	// DBPath is the SQLite database file location.
	DBPath string `mapstructure:"db_path" yaml:"db_path"`

	// ListenAddr is the local address the command HTTP surface binds to.
	ListenAddr string `mapstructure:"listen_addr" yaml:"listen_addr"`

	Claude  ServiceConfig `mapstructure:"claude" yaml:"claude"`
	ChatGPT ServiceConfig `mapstructure:"chatgpt" yaml:"chatgpt"`
	Sync    SyncConfig    `mapstructure:"sync" yaml:"sync"`
}

// DefaultConfigPath returns the default path for the configuration file,
// located at ~/.config/chatsearch/config.yaml.
func DefaultConfigPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(".", "config.yaml")
	}
	return filepath.Join(home, ".config", "chatsearch", "config.yaml")
}

// defaultAppConfig returns a sensible default configuration.
func defaultAppConfig() *AppConfig {
	home, _ := os.UserHomeDir()
	return &AppConfig{
		DBPath:     filepath.Join(home, ".config", "chatsearch", "chats.db"),
		ListenAddr: "127.0.0.1:7391",
		Sync: SyncConfig{
			PageSize:    100,
			PageDelayMs: 200,
			ItemDelayMs: 100,
		},
	}
}

// LoadConfig reads configuration from the given YAML file path using Viper.
// If the file does not exist, it returns a default configuration.
func LoadConfig(path string) (*AppConfig, error) {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")

	// Set defaults so missing keys resolve to sensible values.
	defaults := defaultAppConfig()
	v.SetDefault("db_path", defaults.DBPath)
	v.SetDefault("listen_addr", defaults.ListenAddr)
	v.SetDefault("sync.page_size", defaults.Sync.PageSize)
	v.SetDefault("sync.page_delay_ms", defaults.Sync.PageDelayMs)
	v.SetDefault("sync.item_delay_ms", defaults.Sync.ItemDelayMs)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(*os.PathError); ok {
			return defaults, nil
		}
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			return defaults, nil
		}
		return nil, fmt.Errorf("reading config %s: %w", path, err)
	}

	cfg := defaultAppConfig()
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("parsing config %s: %w", path, err)
	}

	return cfg, nil
}

// SaveConfig writes the given configuration to a YAML file at path,
// creating parent directories if needed.
func SaveConfig(path string, cfg *AppConfig) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("creating config directory %s: %w", dir, err)
	}

	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")

	v.Set("db_path", cfg.DBPath)
	v.Set("listen_addr", cfg.ListenAddr)
	v.Set("claude", cfg.Claude)
	v.Set("chatgpt", cfg.ChatGPT)
	v.Set("sync", cfg.Sync)

	if err := v.WriteConfigAs(path); err != nil {
		return fmt.Errorf("writing config to %s: %w", path, err)
	}

	return nil
}

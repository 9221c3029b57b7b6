package config

import (
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/Sn0wAlice/rpi-os-flash/pkg/catalog"
	"github.com/Sn0wAlice/rpi-os-flash/pkg/device"
	"github.com/spf13/viper"
)

// Config holds all application configuration
type Config struct {
	// Database paths
	SQLitePath string `mapstructure:"sqlite-path"`
	FSMDBPath  string `mapstructure:"fsm-db-path"`

	// Downloaded images and the cached catalog
	CacheDir string `mapstructure:"cache-dir"`

	// Catalog
	CatalogURL     string        `mapstructure:"catalog-url"`
	CatalogTimeout time.Duration `mapstructure:"catalog-timeout"`
	S3Region       string        `mapstructure:"s3-region"`

	// Device enumeration
	DeviceBackend string `mapstructure:"device-backend"`
	SysRoot       string `mapstructure:"sys-root"`

	ProgressInterval time.Duration `mapstructure:"progress-interval"`

	// FSM configuration
	FSMMaxRetries int `mapstructure:"fsm-max-retries"`

	LogLevel string `mapstructure:"log-level"`
}

// Load reads configuration from environment, config file, and defaults
func Load() (*Config, error) {
	setDefaults(viper.GetViper())

	// Environment variables (will be RPIFLASH_CACHE_DIR, etc.)
	viper.SetEnvPrefix("RPIFLASH")
	viper.AutomaticEnv()
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))

	// Config file (optional)
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(".")
	viper.AddConfigPath("$HOME/.rpi-os-flash")

	// Read config file (ignore if not found)
	_ = viper.ReadInConfig()

	return decode(viper.GetViper())
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("sqlite-path", ".artifacts/rpi-flash.db")
	v.SetDefault("fsm-db-path", ".artifacts/fsm")
	v.SetDefault("cache-dir", ".artifacts/cache")
	v.SetDefault("catalog-url", catalog.DefaultURL)
	v.SetDefault("catalog-timeout", 30*time.Second)
	v.SetDefault("s3-region", "us-east-1")
	v.SetDefault("device-backend", device.BackendLsblk)
	v.SetDefault("sys-root", "/")
	v.SetDefault("progress-interval", 200*time.Millisecond)
	v.SetDefault("fsm-max-retries", 5)
	v.SetDefault("log-level", "info")
}

func decode(v *viper.Viper) (*Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	return &cfg, nil
}

// Validate checks configuration for errors
func (c *Config) Validate() error {
	if c.SQLitePath == "" {
		return fmt.Errorf("sqlite-path cannot be empty")
	}
	if c.FSMDBPath == "" {
		return fmt.Errorf("fsm-db-path cannot be empty")
	}
	if c.CacheDir == "" {
		return fmt.Errorf("cache-dir cannot be empty")
	}
	if c.DeviceBackend != "" && !slices.Contains(device.Backends(), c.DeviceBackend) {
		return fmt.Errorf("device-backend %q is not one of %s", c.DeviceBackend, strings.Join(device.Backends(), ", "))
	}
	if c.CatalogTimeout <= 0 {
		return fmt.Errorf("catalog-timeout must be positive")
	}
	if c.ProgressInterval <= 0 {
		return fmt.Errorf("progress-interval must be positive")
	}
	if c.FSMMaxRetries < 0 {
		return fmt.Errorf("fsm-max-retries must be non-negative")
	}
	if _, err := c.Level(); err != nil {
		return err
	}
	return nil
}

// Package config loads lanscout settings from a YAML file and the environment.
//
// Values are layered: built-in defaults, then the YAML file (if any), then
// LANSCOUT_* environment variables, e.g. LANSCOUT_SETTINGS_SCAN_TIMEOUT_MS or
// LANSCOUT_VENDOR_REMOTE.
package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v3"

	"lanscout/internal/logging"
	"lanscout/internal/scan"
)

// EnvPrefix prefixes every environment override.
const EnvPrefix = "LANSCOUT"

// Config holds the application configuration.
type Config struct {
	Settings  Settings  `yaml:"settings" envconfig:"settings"`
	Vendor    Vendor    `yaml:"vendor" envconfig:"vendor"`
	Discovery Discovery `yaml:"discovery" envconfig:"discovery"`
	LogLevel  string    `yaml:"log_level" envconfig:"log_level"`
}

// Settings are the user-facing scan settings.
type Settings struct {
	NetworkPrefix string `yaml:"network_prefix" envconfig:"network_prefix"`
	ScanTimeoutMs int    `yaml:"scan_timeout_ms" envconfig:"scan_timeout_ms"`
}

// Vendor configures hardware-address vendor resolution.
type Vendor struct {
	LookupURL     string        `yaml:"lookup_url" envconfig:"lookup_url"`
	LookupTimeout time.Duration `yaml:"lookup_timeout" envconfig:"lookup_timeout"`
	Remote        bool          `yaml:"remote" envconfig:"remote"`
	Registry      bool          `yaml:"registry" envconfig:"registry"`
	CacheSize     int           `yaml:"cache_size" envconfig:"cache_size"`
}

// Discovery toggles the optional discovery features.
type Discovery struct {
	RequireWiFi bool          `yaml:"require_wifi" envconfig:"require_wifi"`
	Interface   string        `yaml:"interface" envconfig:"interface"`
	ARPLookup   bool          `yaml:"arp_lookup" envconfig:"arp_lookup"`
	MDNS        bool          `yaml:"mdns" envconfig:"mdns"`
	MDNSWindow  time.Duration `yaml:"mdns_window" envconfig:"mdns_window"`
	Ping        bool          `yaml:"ping" envconfig:"ping"`
	SMBNames    bool          `yaml:"smb_names" envconfig:"smb_names"`
	SMBTimeout  time.Duration `yaml:"smb_timeout" envconfig:"smb_timeout"`
	AirPlay     bool          `yaml:"airplay" envconfig:"airplay"`
}

// Default returns a configuration with sensible defaults.
func Default() Config {
	return Config{
		Settings: Settings{
			NetworkPrefix: scan.DefaultNetworkPrefix,
			ScanTimeoutMs: scan.DefaultScanTimeoutMs,
		},
		Vendor: Vendor{
			LookupURL:     scan.DefaultVendorLookupURL,
			LookupTimeout: scan.DefaultVendorLookupTimeout,
			Remote:        true,
			Registry:      true,
			CacheSize:     scan.DefaultVendorCacheSize,
		},
		Discovery: Discovery{
			RequireWiFi: true,
			MDNSWindow:  2 * time.Second,
			SMBTimeout:  3 * time.Second,
		},
	}
}

// Load reads path (if non-empty), applies environment overrides and
// validates the result. A missing file is not an error.
func Load(path string) (Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case errors.Is(err, os.ErrNotExist):
		case err != nil:
			return Config{}, fmt.Errorf("read config: %w", err)
		default:
			if err := yaml.Unmarshal(data, &cfg); err != nil {
				return Config{}, fmt.Errorf("parse config %s: %w", path, err)
			}
		}
	}

	if err := envconfig.Process(EnvPrefix, &cfg); err != nil {
		return Config{}, fmt.Errorf("environment overrides: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks that the configuration is usable.
func (c Config) Validate() error {
	if err := c.ScanSettings().Validate(); err != nil {
		return fmt.Errorf("settings: %w", err)
	}
	if c.Vendor.LookupTimeout < 0 {
		return errors.New("vendor.lookup_timeout cannot be negative")
	}
	if c.Vendor.CacheSize < 0 {
		return errors.New("vendor.cache_size cannot be negative")
	}
	if c.Discovery.MDNSWindow < 0 {
		return errors.New("discovery.mdns_window cannot be negative")
	}
	if c.Discovery.SMBTimeout < 0 {
		return errors.New("discovery.smb_timeout cannot be negative")
	}
	if c.LogLevel != "" {
		if _, err := logging.ParseLevel(c.LogLevel); err != nil {
			return err
		}
	}
	return nil
}

// ScanSettings converts the settings section for the scan package.
func (c Config) ScanSettings() scan.Settings {
	return scan.Settings{
		NetworkPrefix: c.Settings.NetworkPrefix,
		ScanTimeoutMs: c.Settings.ScanTimeoutMs,
	}
}

// VendorOptions converts the vendor section for the scan package.
func (c Config) VendorOptions() scan.VendorOptions {
	return scan.VendorOptions{
		LookupURL: c.Vendor.LookupURL,
		Timeout:   c.Vendor.LookupTimeout,
		Remote:    c.Vendor.Remote,
		Registry:  c.Vendor.Registry,
		CacheSize: c.Vendor.CacheSize,
	}
}

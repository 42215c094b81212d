// Package config provides configuration loading for the ha-macs service.
// Configuration is loaded in order: YAML file → .env file → ENV vars → CLI flags.
package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"strings"
	"sync"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

var loadEnvOnce sync.Once

// loadDotEnv loads .env file if it exists (does not override existing env vars).
// It is called once before loading configuration.
func loadDotEnv() {
	loadEnvOnce.Do(func() {
		dotEnvSearchPaths := []string{".env", "configs/.env"}
		for _, f := range dotEnvSearchPaths {
			if _, err := os.Stat(f); err == nil {
				// Load .env but don't override existing environment variables
				_ = godotenv.Load(f)
				return
			}
		}
	})
}

// mustBindEnv binds an environment variable to a config key, panicking on error.
// viper.BindEnv only fails if the key is empty, which is a programming error.
func mustBindEnv(v *viper.Viper, key string, envVars ...string) {
	if err := v.BindEnv(append([]string{key}, envVars...)...); err != nil {
		panic(fmt.Sprintf("failed to bind env var for key %s: %v", key, err))
	}
}

// Config holds all configuration for the ha-macs service.
type Config struct {
	HomeAssistant HomeAssistantConfig `mapstructure:"homeassistant"`
	MQTT          MQTTConfig          `mapstructure:"mqtt"`
	Store         StoreConfig         `mapstructure:"store"`
	Server        ServerConfig        `mapstructure:"server"`
	Frontend      FrontendConfig      `mapstructure:"frontend"`
	Logging       LoggingConfig       `mapstructure:"logging"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level string `mapstructure:"level"`
}

// HomeAssistantConfig holds Home Assistant connection settings.
type HomeAssistantConfig struct {
	URL   string `mapstructure:"url"`
	Token string `mapstructure:"token"`
}

// MQTTConfig holds broker settings used for entity discovery and commands.
type MQTTConfig struct {
	Host            string `mapstructure:"host"`
	Port            int    `mapstructure:"port"`
	TLS             bool   `mapstructure:"tls"`
	Username        string `mapstructure:"username"`
	Password        string `mapstructure:"password"`
	ClientID        string `mapstructure:"client_id"`
	QoS             int    `mapstructure:"qos"`
	DiscoveryPrefix string `mapstructure:"discovery_prefix"`
	BaseTopic       string `mapstructure:"base_topic"`
}

// StoreConfig holds the SQLite state store settings.
type StoreConfig struct {
	Path        string `mapstructure:"path"`
	WALMode     bool   `mapstructure:"wal_mode"`
	BusyTimeout int    `mapstructure:"busy_timeout"`
}

// ServerConfig holds HTTP server settings (MCP endpoint and static assets).
type ServerConfig struct {
	Port int `mapstructure:"port"`
}

// FrontendConfig controls the dashboard bundle and its Lovelace resource entry.
type FrontendConfig struct {
	// WWWDir is served under /macs/. Empty disables static serving.
	WWWDir string `mapstructure:"www_dir"`
	// PublicURL is the externally reachable base URL of this service, as seen
	// by browsers. Empty skips the Lovelace resource sync.
	PublicURL string `mapstructure:"public_url"`
	// Version overrides the build version used in the ?v= query parameter.
	Version string `mapstructure:"version"`
	// SyncResource toggles the Lovelace resource upsert at startup.
	SyncResource bool `mapstructure:"sync_resource"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("homeassistant.url", "http://homeassistant.local:8123")
	v.SetDefault("homeassistant.token", "")
	v.SetDefault("mqtt.host", "localhost")
	v.SetDefault("mqtt.port", 1883)
	v.SetDefault("mqtt.tls", false)
	v.SetDefault("mqtt.username", "")
	v.SetDefault("mqtt.password", "")
	v.SetDefault("mqtt.client_id", "ha-macs")
	v.SetDefault("mqtt.qos", 1)
	v.SetDefault("mqtt.discovery_prefix", "homeassistant")
	v.SetDefault("mqtt.base_topic", "macs")
	v.SetDefault("store.path", "data/macs.db")
	v.SetDefault("store.wal_mode", true)
	v.SetDefault("store.busy_timeout", 5)
	v.SetDefault("server.port", 8099)
	v.SetDefault("frontend.www_dir", "www")
	v.SetDefault("frontend.public_url", "")
	v.SetDefault("frontend.version", "")
	v.SetDefault("frontend.sync_resource", true)
	v.SetDefault("logging.level", "INFO")
}

func bindEnv(v *viper.Viper) {
	v.SetEnvPrefix("")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	mustBindEnv(v, "homeassistant.url", "HA_URL")
	mustBindEnv(v, "homeassistant.token", "HA_TOKEN")
	mustBindEnv(v, "mqtt.host", "MACS_MQTT_HOST")
	mustBindEnv(v, "mqtt.port", "MACS_MQTT_PORT")
	mustBindEnv(v, "mqtt.username", "MACS_MQTT_USERNAME")
	mustBindEnv(v, "mqtt.password", "MACS_MQTT_PASSWORD")
	mustBindEnv(v, "store.path", "MACS_STORE_PATH")
	mustBindEnv(v, "server.port", "MACS_PORT")
	mustBindEnv(v, "frontend.public_url", "MACS_PUBLIC_URL")
	mustBindEnv(v, "frontend.version", "MACS_VERSION")
	mustBindEnv(v, "logging.level", "MACS_LOG_LEVEL")
}

// Load loads configuration from YAML file, environment variables, and defaults.
// The configFile parameter is the path to the YAML config file (can be empty).
func Load(configFile string) (*Config, error) {
	return LoadWithViper(viper.New(), configFile)
}

// LoadWithViper loads configuration using a pre-configured viper instance.
// This allows CLI flags to be bound before loading.
// Priority: CLI flags > ENV vars > .env file > YAML file > defaults.
func LoadWithViper(v *viper.Viper, configFile string) (*Config, error) {
	cfg, err := load(v, configFile)
	if err != nil {
		return nil, err
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadForDisplay loads configuration without validation, for display purposes.
// This allows showing the effective configuration even if required fields are missing.
func LoadForDisplay(v *viper.Viper, configFile string) (*Config, error) {
	return load(v, configFile)
}

func load(v *viper.Viper, configFile string) (*Config, error) {
	loadDotEnv()
	setDefaults(v)

	if configFile != "" {
		v.SetConfigFile(configFile)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
	}

	bindEnv(v)

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}
	return cfg, nil
}

// BrokerURL returns the paho broker URL for the configured host.
func (c MQTTConfig) BrokerURL() string {
	scheme := "tcp"
	if c.TLS {
		scheme = "ssl"
	}
	return fmt.Sprintf("%s://%s:%d", scheme, c.Host, c.Port)
}

// MaskedConfig returns a copy of the config with sensitive data masked.
func (c *Config) MaskedConfig() Config {
	masked := *c
	if masked.HomeAssistant.Token != "" {
		masked.HomeAssistant.Token = maskToken(masked.HomeAssistant.Token)
	}
	if masked.MQTT.Password != "" {
		masked.MQTT.Password = "****"
	}
	return masked
}

// maskToken masks a token, showing only the first 4 and last 4 characters.
func maskToken(token string) string {
	if len(token) <= 8 {
		return "****"
	}
	return token[:4] + "****" + token[len(token)-4:]
}

// validate checks that all required configuration is present.
func (c *Config) validate() error {
	var errs []error
	if c.HomeAssistant.URL == "" {
		errs = append(errs, errors.New("homeassistant.url is required"))
	}
	if c.HomeAssistant.Token == "" {
		errs = append(errs, errors.New("homeassistant.token is required (set via HA_TOKEN env var, --ha-token flag, or config file)"))
	}
	if c.MQTT.Host == "" {
		errs = append(errs, errors.New("mqtt.host is required"))
	}
	if c.MQTT.Port <= 0 || c.MQTT.Port > 65535 {
		errs = append(errs, errors.New("mqtt.port must be between 1 and 65535"))
	}
	if c.MQTT.QoS < 0 || c.MQTT.QoS > 2 {
		errs = append(errs, errors.New("mqtt.qos must be 0, 1 or 2"))
	}
	if strings.Trim(c.MQTT.BaseTopic, "/") == "" {
		errs = append(errs, errors.New("mqtt.base_topic is required"))
	}
	if c.Store.Path == "" {
		errs = append(errs, errors.New("store.path is required"))
	}
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		errs = append(errs, errors.New("server.port must be between 1 and 65535"))
	}
	if c.Frontend.PublicURL != "" {
		if u, err := url.Parse(c.Frontend.PublicURL); err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			errs = append(errs, errors.New("frontend.public_url must be an absolute http(s) URL"))
		}
	}
	return errors.Join(errs...)
}

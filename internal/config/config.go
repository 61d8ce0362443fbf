// internal/config/config.go

// Package config loads meal-scale settings. Defaults are overridden by a TOML
// file, which is overridden by MEALSCALE_* environment variables.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	toml "github.com/pelletier/go-toml/v2"
	"github.com/spf13/viper"

	"meal-scale/internal/scale"
)

const (
	configName = "meal-scale"
	configType = "toml"
	envPrefix  = "MEALSCALE"
)

type Config struct {
	Log    LogConfig        `mapstructure:"log"`
	Scale  scale.Thresholds `mapstructure:"scale"`
	Device DeviceConfig     `mapstructure:"device"`
	Server ServerConfig     `mapstructure:"server"`
}

type LogConfig struct {
	Level string `mapstructure:"level"`
	JSON  bool   `mapstructure:"json"`
}

// DeviceConfig covers the scale side.
type DeviceConfig struct {
	Companion  string        `mapstructure:"companion"` // host:port of the companion link
	AckTimeout time.Duration `mapstructure:"ack_timeout"`
	Timezone   string        `mapstructure:"timezone"` // IANA name; "Local" for the system zone
	FoodGroups string        `mapstructure:"food_groups"`
	QueueSize  int           `mapstructure:"queue_size"`
}

// ServerConfig covers the companion side.
type ServerConfig struct {
	Host       string `mapstructure:"host"`
	Port       int    `mapstructure:"port"`
	DBPath     string `mapstructure:"db_path"`
	LinkListen string `mapstructure:"link_listen"`
}

func defaults() map[string]interface{} {
	th := scale.DefaultThresholds()
	return map[string]interface{}{
		"log.level":               "info",
		"log.json":                false,
		"scale.noise":             th.Noise,
		"scale.near_zero":         th.NearZero,
		"scale.release_tolerance": th.ReleaseTolerance,
		"device.companion":        "",
		"device.ack_timeout":      "30s",
		"device.timezone":         "Local",
		"device.food_groups":      "",
		"device.queue_size":       16,
		"server.host":             "0.0.0.0",
		"server.port":             8011,
		"server.db_path":          "/data/meal-scale.db",
		"server.link_listen":      "",
	}
}

// Load reads configuration into v. An explicit path must exist; otherwise a
// missing config file is not an error.
func Load(v *viper.Viper, path string) (Config, error) {
	if v == nil {
		v = viper.New()
	}
	for k, val := range defaults() {
		v.SetDefault(k, val)
	}

	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName(configName)
		v.SetConfigType(configType)
		if dir, err := DefaultDir(); err == nil {
			v.AddConfigPath(dir)
		}
		v.AddConfigPath(".")
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return Config{}, fmt.Errorf("read config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("decode config: %w", err)
	}
	return cfg, nil
}

// DefaultDir is where Load looks for meal-scale.toml.
func DefaultDir() (string, error) {
	dir, err := os.UserConfigDir()
	if err != nil {
		return "", fmt.Errorf("resolve config directory: %w", err)
	}
	return filepath.Join(dir, configName), nil
}

// Validate reports every invalid setting at once.
func (c Config) Validate() error {
	var errs []error
	if c.Scale.Noise < 0 {
		errs = append(errs, fmt.Errorf("scale.noise must be >= 0, got %v", c.Scale.Noise))
	}
	if c.Scale.NearZero < 0 {
		errs = append(errs, fmt.Errorf("scale.near_zero must be >= 0, got %v", c.Scale.NearZero))
	}
	if c.Scale.ReleaseTolerance <= 0 {
		errs = append(errs, fmt.Errorf("scale.release_tolerance must be > 0, got %v", c.Scale.ReleaseTolerance))
	}
	if c.Device.AckTimeout <= 0 {
		errs = append(errs, fmt.Errorf("device.ack_timeout must be positive, got %v", c.Device.AckTimeout))
	}
	if c.Device.QueueSize < 1 {
		errs = append(errs, fmt.Errorf("device.queue_size must be >= 1, got %d", c.Device.QueueSize))
	}
	if _, err := c.Location(); err != nil {
		errs = append(errs, err)
	}
	if c.Server.Port < 0 || c.Server.Port > 65535 {
		errs = append(errs, fmt.Errorf("server.port out of range: %d", c.Server.Port))
	}
	if c.Server.DBPath == "" {
		errs = append(errs, errors.New("server.db_path is empty"))
	}
	return errors.Join(errs...)
}

// Location resolves Device.Timezone, the zone FIN-COMIDA stamps are read in.
func (c Config) Location() (*time.Location, error) {
	switch c.Device.Timezone {
	case "", "Local":
		return time.Local, nil
	}
	loc, err := time.LoadLocation(c.Device.Timezone)
	if err != nil {
		return nil, fmt.Errorf("device.timezone %q: %w", c.Device.Timezone, err)
	}
	return loc, nil
}

// WriteDefault writes the default config to path. It refuses to
// overwrite an existing file unless force is set.
func WriteDefault(path string, force bool) error {
	if !force {
		if _, err := os.Stat(path); err == nil {
			return fmt.Errorf("%s already exists", path)
		}
	}

	tree := map[string]map[string]interface{}{}
	for k, val := range defaults() {
		section, key, _ := strings.Cut(k, ".")
		if tree[section] == nil {
			tree[section] = map[string]interface{}{}
		}
		tree[section][key] = val
	}

	data, err := toml.Marshal(tree)
	if err != nil {
		return fmt.Errorf("encode default config: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create config directory: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write config: %w", err)
	}
	return nil
}

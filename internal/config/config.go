// Package config loads daemon settings: built-in defaults, then an optional
// TOML file, then the environment.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"strconv"

	"github.com/pelletier/go-toml/v2"
)

// PathEnv names the environment variable holding the config file path.
const PathEnv = "ATTENDANCE_CONFIG"

type Config struct {
	Port                string `toml:"port"`
	DataDir             string `toml:"data_dir"`
	RedisAddr           string `toml:"redis_addr"`
	RedisPassword       string `toml:"redis_password"`
	RecoverCorruptState bool   `toml:"recover_corrupt_state"`
	LogLevel            string `toml:"log_level"`

	// Channel credentials come from the environment only.
	ChannelSecret      string `toml:"-"`
	ChannelAccessToken string `toml:"-"`
}

// Default returns the built-in settings.
func Default() Config {
	return Config{
		Port:     "3000",
		DataDir:  "./data",
		LogLevel: "info",
	}
}

// Load builds the configuration. An empty path skips the file layer; a
// missing file is an error.
func Load(path string) (Config, error) {
	c := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return c, fmt.Errorf("config: %w", err)
		}
		if err := c.decode(data); err != nil {
			return c, err
		}
	}
	if err := c.applyEnv(os.LookupEnv); err != nil {
		return c, err
	}
	return c, nil
}

// LoadFromBytes layers a TOML document over the defaults.
func LoadFromBytes(data []byte) (Config, error) {
	c := Default()
	err := c.decode(data)
	return c, err
}

func (c *Config) decode(data []byte) error {
	dec := toml.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	if err := dec.Decode(c); err != nil {
		return fmt.Errorf("config: %w", err)
	}
	return nil
}

func (c *Config) applyEnv(lookup func(string) (string, bool)) error {
	str := func(key string, dst *string) {
		if v, ok := lookup(key); ok && v != "" {
			*dst = v
		}
	}
	str("PORT", &c.Port)
	str("ATTENDANCE_DATA_DIR", &c.DataDir)
	str("ATTENDANCE_REDIS_ADDR", &c.RedisAddr)
	str("ATTENDANCE_REDIS_PASSWORD", &c.RedisPassword)
	str("LOG_LEVEL", &c.LogLevel)
	str("LINE_CHANNEL_SECRET", &c.ChannelSecret)
	str("LINE_CHANNEL_ACCESS_TOKEN", &c.ChannelAccessToken)

	if v, ok := lookup("ATTENDANCE_RECOVER_CORRUPT_STATE"); ok && v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("config: ATTENDANCE_RECOVER_CORRUPT_STATE: %w", err)
		}
		c.RecoverCorruptState = b
	}
	return nil
}

// UseRedis reports whether the Redis backend is selected.
func (c Config) UseRedis() bool {
	return c.RedisAddr != ""
}

// Validate reports every missing required setting at once.
func (c Config) Validate() error {
	var errs []error
	if c.ChannelSecret == "" {
		errs = append(errs, errors.New("LINE_CHANNEL_SECRET is required"))
	}
	if c.ChannelAccessToken == "" {
		errs = append(errs, errors.New("LINE_CHANNEL_ACCESS_TOKEN is required"))
	}
	if c.Port == "" {
		errs = append(errs, errors.New("port must not be empty"))
	}
	if !c.UseRedis() && c.DataDir == "" {
		errs = append(errs, errors.New("data_dir must not be empty"))
	}
	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("config: %w", err)
	}
	return nil
}

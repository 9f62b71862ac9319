/*
 * This file is part of Loqa (https://github.com/loqalabs/loqa).
 * Copyright (C) 2025 Loqa Labs
 *
 * This program is free software: you can redistribute it and/or modify
 * it under the terms of the GNU Affero General Public License as published by
 * the Free Software Foundation, either version 3 of the License, or
 * (at your option) any later version.
 *
 * This program is distributed in the hope that it will be useful,
 * but WITHOUT ANY WARRANTY; without even the implied warranty of
 * MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
 * GNU Affero General Public License for more details.
 *
 * You should have received a copy of the GNU Affero General Public License
 * along with this program. If not, see <https://www.gnu.org/licenses/>.
 */

package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// EnvPrefix is prepended to every environment override, e.g.
// LOQA_LOOPBACK_REPORT_INTERVAL=500ms or LOQA_LOOPBACK_NATS_URL.
const EnvPrefix = "LOQA_LOOPBACK"

type Config struct {
	Backend        string        `mapstructure:"backend"`
	ReportInterval time.Duration `mapstructure:"report_interval"`
	LoopbackDevice string        `mapstructure:"loopback_device"`
	MeterID        string        `mapstructure:"meter_id"`
	TUI            bool          `mapstructure:"tui"`
	Log            LogConfig     `mapstructure:"log"`
	NATS           NATSConfig    `mapstructure:"nats"`
}

type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

type NATSConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	URL     string `mapstructure:"url"`
	Subject string `mapstructure:"subject"`
}

func Default() *Config {
	return &Config{
		Backend:        "auto",
		ReportInterval: time.Second,
		Log: LogConfig{
			Level:  "warn",
			Format: "console",
		},
		NATS: NATSConfig{
			URL:     "nats://localhost:4222",
			Subject: "loopback.levels",
		},
	}
}

// SetDefaults registers every key on v so environment overrides resolve
// even when no config file is present.
func SetDefaults(v *viper.Viper) {
	d := Default()
	v.SetDefault("backend", d.Backend)
	v.SetDefault("report_interval", d.ReportInterval)
	v.SetDefault("loopback_device", d.LoopbackDevice)
	v.SetDefault("meter_id", d.MeterID)
	v.SetDefault("tui", d.TUI)
	v.SetDefault("log.level", d.Log.Level)
	v.SetDefault("log.format", d.Log.Format)
	v.SetDefault("nats.enabled", d.NATS.Enabled)
	v.SetDefault("nats.url", d.NATS.URL)
	v.SetDefault("nats.subject", d.NATS.Subject)
}

// Load reads cfgFile (or loopback.yaml from the working directory or the
// user config directory) into v and decodes the result. A missing default
// config file is not an error; a missing explicit one is.
func Load(v *viper.Viper, cfgFile string) (*Config, error) {
	SetDefaults(v)

	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
	} else {
		v.SetConfigName("loopback")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		if dir := configDir(); dir != "" {
			v.AddConfigPath(dir)
		}
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	}

	cfg := Default()
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

var validBackends = map[string]bool{
	"auto":      true,
	"wasapi":    true,
	"pulse":     true,
	"portaudio": true,
	"mock":      true,
}

var validLogLevels = map[string]bool{
	"none":  true,
	"error": true,
	"warn":  true,
	"info":  true,
	"debug": true,
}

// Validate reports every invalid setting at once.
func (c *Config) Validate() error {
	var errs []error

	if !validBackends[strings.ToLower(c.Backend)] {
		errs = append(errs, fmt.Errorf("backend %q is not one of auto, wasapi, pulse, portaudio, mock", c.Backend))
	}
	if c.ReportInterval <= 0 {
		errs = append(errs, fmt.Errorf("report_interval must be positive, got %s", c.ReportInterval))
	}
	if !validLogLevels[strings.ToLower(c.Log.Level)] {
		errs = append(errs, fmt.Errorf("log.level %q is not valid", c.Log.Level))
	}
	switch strings.ToLower(c.Log.Format) {
	case "console", "json":
	default:
		errs = append(errs, fmt.Errorf("log.format %q must be console or json", c.Log.Format))
	}
	if c.NATS.Enabled {
		if c.NATS.URL == "" {
			errs = append(errs, errors.New("nats.url is required when nats.enabled is set"))
		}
		if c.NATS.Subject == "" || strings.ContainsAny(c.NATS.Subject, " \t*>") {
			errs = append(errs, fmt.Errorf("nats.subject %q is not a valid publish subject", c.NATS.Subject))
		}
	}

	return errors.Join(errs...)
}

func configDir() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		return ""
	}
	return filepath.Join(dir, "loqa")
}

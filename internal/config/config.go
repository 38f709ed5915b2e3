// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 hookhost Contributors

// Package config loads host settings. Sources apply in order: built-in
// defaults, an optional YAML file, then command-line flags.
package config

import (
	"errors"
	"log/slog"
	"os"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/posflag"
	"github.com/knadh/koanf/v2"
	"github.com/samber/oops"
	"github.com/spf13/pflag"

	"github.com/hookhost/hookhost/internal/execctx"
	"github.com/hookhost/hookhost/internal/logging"
	"github.com/hookhost/hookhost/internal/plugin/capability"
)

// CodeInvalidConfig marks a configuration that failed to load or validate.
const CodeInvalidConfig = "INVALID_CONFIG"

// Log holds logger settings.
type Log struct {
	Format string `koanf:"format" validate:"oneof=json text"`
	Level  string `koanf:"level" validate:"oneof=debug info warn error"`
}

// Config holds every host setting.
type Config struct {
	Mode            string              `koanf:"mode" validate:"oneof=shared isolated"`
	ScriptsDir      string              `koanf:"scripts_dir"`
	Autoload        bool                `koanf:"autoload"`
	AutoloadPattern string              `koanf:"autoload_pattern" validate:"required"`
	OperatorClass   int                 `koanf:"operator_class" validate:"min=0"`
	AdminNamespace  string              `koanf:"admin_namespace" validate:"required,excludesall= !+"`
	TickInterval    time.Duration       `koanf:"tick_interval" validate:"gt=0"`
	HandlerBudget   time.Duration       `koanf:"handler_budget" validate:"min=0"`
	QueueSize       int                 `koanf:"queue_size" validate:"min=1"`
	Log             Log                 `koanf:"log"`
	MetricsAddr     string              `koanf:"metrics_addr"`
	Capabilities    map[string][]string `koanf:"capabilities" validate:"dive,dive,required"`
}

// Default returns the built-in settings.
func Default() Config {
	return Config{
		Mode:            string(execctx.ModeShared),
		ScriptsDir:      "scripts",
		Autoload:        true,
		AutoloadPattern: "*.lua",
		OperatorClass:   10,
		AdminNamespace:  "hookhost",
		TickInterval:    time.Second,
		HandlerBudget:   5 * time.Second,
		QueueSize:       execctx.DefaultQueueSize,
		Log:             Log{Format: "json", Level: "info"},
		Capabilities: map[string][]string{
			capability.DefaultKey: {capability.ConfigRead, capability.HubTimer},
		},
	}
}

// flagKeys maps flag names to config keys. Flags not listed are not
// configuration.
var flagKeys = map[string]string{
	"mode":           "mode",
	"scripts-dir":    "scripts_dir",
	"autoload":       "autoload",
	"metrics-addr":   "metrics_addr",
	"log-format":     "log.format",
	"log-level":      "log.level",
	"handler-budget": "handler_budget",
	"tick-interval":  "tick_interval",
}

// BindFlags adds the configuration flags to fs with the defaults as values.
func BindFlags(fs *pflag.FlagSet) {
	d := Default()
	fs.String("config", "", "path to a YAML config file")
	fs.String("mode", d.Mode, "execution mode: shared or isolated")
	fs.String("scripts-dir", d.ScriptsDir, "directory scripts are loaded from")
	fs.Bool("autoload", d.Autoload, "load matching scripts at startup")
	fs.String("metrics-addr", d.MetricsAddr, "metrics and health listen address (empty disables)")
	fs.String("log-format", d.Log.Format, "log format: json or text")
	fs.String("log-level", d.Log.Level, "log level: debug, info, warn or error")
	fs.Duration("handler-budget", d.HandlerBudget, "per-handler execution budget (0 disables)")
	fs.Duration("tick-interval", d.TickInterval, "interval between OnTimer ticks")
}

// Load builds the configuration from path (optional) and fs (optional).
func Load(path string, fs *pflag.FlagSet) (*Config, error) {
	k := koanf.New(".")

	if path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			builder := oops.In("config").Code(CodeInvalidConfig).With("path", path)
			if errors.Is(err, os.ErrNotExist) {
				builder = builder.Hint("config file not found")
			}
			return nil, builder.Wrap(err)
		}
	}

	if fs != nil {
		provider := posflag.ProviderWithFlag(fs, ".", k, func(f *pflag.Flag) (string, any) {
			key, ok := flagKeys[f.Name]
			if !ok {
				return "", nil
			}
			return key, posflag.FlagVal(fs, f)
		})
		if err := k.Load(provider, nil); err != nil {
			return nil, oops.In("config").Code(CodeInvalidConfig).Hint("failed to read flags").Wrap(err)
		}
	}

	cfg := Default()
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, oops.In("config").Code(CodeInvalidConfig).Wrap(err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// Validate checks field constraints and that the capability grants compile.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return oops.In("config").Code(CodeInvalidConfig).Wrap(err)
	}
	if _, err := capability.FromMap(c.Capabilities); err != nil {
		return oops.In("config").With("key", "capabilities").Wrap(err)
	}
	return nil
}

// ExecMode returns the parsed execution mode.
func (c *Config) ExecMode() execctx.Mode {
	m, err := execctx.ParseMode(c.Mode)
	if err != nil {
		return execctx.ModeShared
	}
	return m
}

// LogLevel returns the parsed log level.
func (c *Config) LogLevel() slog.Level {
	lvl, _ := logging.ParseLevel(c.Log.Level)
	return lvl
}

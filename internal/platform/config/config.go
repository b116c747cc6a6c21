// Package config loads layered runtime configuration for the autoscript
// runtime: a YAML file, AUTOSCRIPT_-prefixed environment variables, and CLI
// flags, merged by viper in that increasing precedence order.
package config

import (
	"fmt"
	"strings"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// WatcherKind selects which DOM-subscription watcher implementation a run
// uses.
type WatcherKind string

const (
	WatcherMock WatcherKind = "mock"
	WatcherHTML WatcherKind = "html"
	WatcherWS   WatcherKind = "ws"
)

// RuntimeConfig is the fully resolved configuration for one autoscriptctl
// invocation.
type RuntimeConfig struct {
	LogLevel  string `mapstructure:"log_level"`
	LogFormat string `mapstructure:"log_format"`

	ScriptPath string `mapstructure:"script_path"`

	Watcher          WatcherKind `mapstructure:"watcher"`
	WatcherURL       string      `mapstructure:"watcher_url"`
	WatcherPollMs    int64       `mapstructure:"watcher_poll_ms"`
	WatcherCacheSize int         `mapstructure:"watcher_cache_size"`

	MetricsEnabled bool   `mapstructure:"metrics_enabled"`
	MetricsAddr    string `mapstructure:"metrics_addr"`
	TracingEnabled bool   `mapstructure:"tracing_enabled"`
	TracingOTLPURL string `mapstructure:"tracing_otlp_url"`

	JobStoreDir string `mapstructure:"job_store_dir"`
}

func defaults(v *viper.Viper) {
	v.SetDefault("log_level", "info")
	v.SetDefault("log_format", "text")
	v.SetDefault("script_path", "script.yaml")
	v.SetDefault("watcher", string(WatcherMock))
	v.SetDefault("watcher_poll_ms", int64(500))
	v.SetDefault("watcher_cache_size", 32)
	v.SetDefault("metrics_enabled", false)
	v.SetDefault("metrics_addr", ":9090")
	v.SetDefault("tracing_enabled", false)
	v.SetDefault("job_store_dir", ".autoscript/snapshots")
}

// Load merges, in increasing precedence, a YAML config file (named
// "autoscript", searched in the working directory and $HOME),
// AUTOSCRIPT_-prefixed environment variables, and flags already registered
// on fs. fs may be nil when no flags should override the file/env layers.
func Load(fs *pflag.FlagSet) (RuntimeConfig, error) {
	v := viper.New()
	defaults(v)

	v.SetConfigName("autoscript")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("$HOME")

	v.SetEnvPrefix("AUTOSCRIPT")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()

	if fs != nil {
		if err := v.BindPFlags(fs); err != nil {
			return RuntimeConfig{}, fmt.Errorf("config: bind flags: %w", err)
		}
	}

	if err := v.ReadInConfig(); err != nil {
		if _, notFound := err.(viper.ConfigFileNotFoundError); !notFound {
			return RuntimeConfig{}, fmt.Errorf("config: read config file: %w", err)
		}
	}

	var cfg RuntimeConfig
	if err := v.Unmarshal(&cfg); err != nil {
		return RuntimeConfig{}, fmt.Errorf("config: unmarshal: %w", err)
	}
	return cfg, nil
}

// Package config loads metastore process configuration: layered defaults,
// an optional YAML config file, and METASTORE_* environment variables, each
// layer overriding the ones before it — the same viper layering steveyegge-
// beads uses for its own config.yaml. Command-line flags are not a layer
// here; the caller only passes in the config file path. It also watches the config file with
// fsnotify and hot-reloads the subset of fields safe to change live.
package config

import (
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
)

// Config is the metastore daemon's process configuration.
type Config struct {
	DataDir    string `mapstructure:"data_dir"`
	Bucket     string `mapstructure:"bucket"`
	Prefix     string `mapstructure:"prefix"`
	ListenAddr string `mapstructure:"listen_addr"`

	CheckpointInterval time.Duration `mapstructure:"checkpoint_interval"`
	UploadPollTimeout  time.Duration `mapstructure:"upload_poll_timeout"`
	RetentionAge       time.Duration `mapstructure:"retention_age"`
	WorkerPoolSize     int           `mapstructure:"worker_pool_size"`
}

func defaults() Config {
	return Config{
		DataDir:            "./metastore-data",
		ListenAddr:         "127.0.0.1:7878",
		CheckpointInterval: 60 * time.Second,
		UploadPollTimeout:  5 * time.Second,
		RetentionAge:       3 * time.Minute,
		WorkerPoolSize:     8,
	}
}

// Loader owns the viper instance backing a live Config, so a hot-reload can
// update it in place without callers re-reading from disk themselves.
type Loader struct {
	v *viper.Viper

	mu  sync.RWMutex
	cur Config

	logger *slog.Logger
}

// Load reads configFile (if non-empty and present) layered over defaults
// and METASTORE_*-prefixed environment variables, and starts watching
// configFile for changes.
func Load(configFile string) (*Loader, error) {
	v := viper.New()
	v.SetEnvPrefix("METASTORE")
	v.AutomaticEnv()

	d := defaults()
	v.SetDefault("data_dir", d.DataDir)
	v.SetDefault("listen_addr", d.ListenAddr)
	v.SetDefault("checkpoint_interval", d.CheckpointInterval)
	v.SetDefault("upload_poll_timeout", d.UploadPollTimeout)
	v.SetDefault("retention_age", d.RetentionAge)
	v.SetDefault("worker_pool_size", d.WorkerPoolSize)

	if configFile != "" {
		v.SetConfigFile(configFile)
		v.SetConfigType("yaml")
		if err := v.ReadInConfig(); err != nil {
			if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
				return nil, fmt.Errorf("config.Load: %w", err)
			}
		}
	}

	l := &Loader{v: v, logger: slog.Default()}
	if err := l.reload(); err != nil {
		return nil, err
	}

	if configFile != "" {
		v.OnConfigChange(func(_ fsnotify.Event) {
			var c Config
			if err := v.Unmarshal(&c); err != nil {
				l.logger.Error("config hot-reload failed, keeping previous values", "err", err)
				return
			}
			l.mu.Lock()
			l.cur.CheckpointInterval = c.CheckpointInterval
			l.cur.RetentionAge = c.RetentionAge
			l.mu.Unlock()
		})
		v.WatchConfig()
	}

	return l, nil
}

func (l *Loader) reload() error {
	var c Config
	if err := l.v.Unmarshal(&c); err != nil {
		return fmt.Errorf("config.reload: %w", err)
	}
	l.mu.Lock()
	l.cur = c
	l.mu.Unlock()
	return nil
}

// Current returns a snapshot of the live configuration. Only
// CheckpointInterval and RetentionAge change across a hot-reload; every
// other field is read once at process start.
func (l *Loader) Current() Config {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.cur
}

// Package config loads runtime configuration from file and environment.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"

	apperrors "github.com/wahabsharif/premierspaces-app/backend/internal/errors"
)

// EnvPrefix prefixes every environment override, e.g. FIELDSYNC_API_BASE_URL.
const EnvPrefix = "FIELDSYNC"

// Config represents the full runtime configuration.
type Config struct {
	DataDir      string
	Log          Log
	API          API
	Cache        Cache
	Sync         Sync
	Prefetch     Prefetch
	Upload       Upload
	Connectivity Connectivity
	Server       Server
}

// Log configures logging.
type Log struct {
	Level      string
	Format     string
	File       string
	MaxSizeMB  int
	MaxBackups int
	MaxAgeDays int
}

// API configures the remote API client.
type API struct {
	BaseURL          string
	Timeout          time.Duration
	ThrottleWindow   time.Duration
	BreakerFailures  uint32
	BreakerOpenFor   time.Duration
	BreakerHalfProbe uint32
}

// Cache configures the cache layer.
type Cache struct {
	DefaultTTL      time.Duration
	ChunkSize       int
	CleanupInterval time.Duration
	MemorySize      int
	MemoryTTL       time.Duration
}

// Sync configures the sync manager and scheduler.
type Sync struct {
	RetryInterval     time.Duration
	CompletionTimeout time.Duration
}

// Prefetch configures the prefetch orchestrator.
type Prefetch struct {
	Debounce     time.Duration
	CleanupChunk int
}

// Upload configures the upload pipeline.
type Upload struct {
	Concurrency int
}

// Connectivity configures the online monitor.
type Connectivity struct {
	ProbeURL     string
	PollInterval time.Duration
	ProbeTimeout time.Duration
}

// Server configures the local bridge and metrics listeners.
type Server struct {
	Addr        string
	MetricsAddr string
}

// SetDefaults registers every default on v.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("data_dir", defaultDataDir())

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("log.file", "")
	v.SetDefault("log.max_size_mb", 10)
	v.SetDefault("log.max_backups", 3)
	v.SetDefault("log.max_age_days", 14)

	v.SetDefault("api.base_url", "")
	v.SetDefault("api.timeout", 10*time.Second)
	v.SetDefault("api.throttle_window", 2*time.Second)
	v.SetDefault("api.breaker_failures", 5)
	v.SetDefault("api.breaker_open_for", 30*time.Second)
	v.SetDefault("api.breaker_half_probe", 1)

	v.SetDefault("cache.default_ttl", 24*time.Hour)
	v.SetDefault("cache.chunk_size", 50)
	v.SetDefault("cache.cleanup_interval", 30*time.Minute)
	v.SetDefault("cache.memory_size", 256)
	v.SetDefault("cache.memory_ttl", 5*time.Minute)

	v.SetDefault("sync.retry_interval", 5*time.Minute)
	v.SetDefault("sync.completion_timeout", 30*time.Second)

	v.SetDefault("prefetch.debounce", 300*time.Millisecond)
	v.SetDefault("prefetch.cleanup_chunk", 20)

	v.SetDefault("upload.concurrency", 3)

	v.SetDefault("connectivity.probe_url", "")
	v.SetDefault("connectivity.poll_interval", 15*time.Second)
	v.SetDefault("connectivity.probe_timeout", 3*time.Second)

	v.SetDefault("server.addr", "127.0.0.1:8090")
	v.SetDefault("server.metrics_addr", "")
}

func defaultDataDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".fieldsync"
	}
	return filepath.Join(home, ".fieldsync")
}

// fromViper builds a Config from v.
func fromViper(v *viper.Viper) *Config {
	return &Config{
		DataDir: v.GetString("data_dir"),
		Log: Log{
			Level:      v.GetString("log.level"),
			Format:     v.GetString("log.format"),
			File:       v.GetString("log.file"),
			MaxSizeMB:  v.GetInt("log.max_size_mb"),
			MaxBackups: v.GetInt("log.max_backups"),
			MaxAgeDays: v.GetInt("log.max_age_days"),
		},
		API: API{
			BaseURL:          strings.TrimRight(v.GetString("api.base_url"), "/"),
			Timeout:          v.GetDuration("api.timeout"),
			ThrottleWindow:   v.GetDuration("api.throttle_window"),
			BreakerFailures:  v.GetUint32("api.breaker_failures"),
			BreakerOpenFor:   v.GetDuration("api.breaker_open_for"),
			BreakerHalfProbe: v.GetUint32("api.breaker_half_probe"),
		},
		Cache: Cache{
			DefaultTTL:      v.GetDuration("cache.default_ttl"),
			ChunkSize:       v.GetInt("cache.chunk_size"),
			CleanupInterval: v.GetDuration("cache.cleanup_interval"),
			MemorySize:      v.GetInt("cache.memory_size"),
			MemoryTTL:       v.GetDuration("cache.memory_ttl"),
		},
		Sync: Sync{
			RetryInterval:     v.GetDuration("sync.retry_interval"),
			CompletionTimeout: v.GetDuration("sync.completion_timeout"),
		},
		Prefetch: Prefetch{
			Debounce:     v.GetDuration("prefetch.debounce"),
			CleanupChunk: v.GetInt("prefetch.cleanup_chunk"),
		},
		Upload: Upload{
			Concurrency: v.GetInt("upload.concurrency"),
		},
		Connectivity: Connectivity{
			ProbeURL:     v.GetString("connectivity.probe_url"),
			PollInterval: v.GetDuration("connectivity.poll_interval"),
			ProbeTimeout: v.GetDuration("connectivity.probe_timeout"),
		},
		Server: Server{
			Addr:        v.GetString("server.addr"),
			MetricsAddr: v.GetString("server.metrics_addr"),
		},
	}
}

// Default returns the configuration with no file and no environment.
func Default() *Config {
	v := viper.New()
	SetDefaults(v)
	return fromViper(v)
}

// Validate rejects configurations the core cannot run with.
func (c *Config) Validate() error {
	var problems []string
	if c.API.BaseURL == "" {
		problems = append(problems, "api.base_url is required")
	}
	if c.DataDir == "" {
		problems = append(problems, "data_dir is required")
	}
	if c.Cache.ChunkSize <= 0 {
		problems = append(problems, "cache.chunk_size must be positive")
	}
	if c.Prefetch.CleanupChunk <= 0 {
		problems = append(problems, "prefetch.cleanup_chunk must be positive")
	}
	if c.Upload.Concurrency <= 0 {
		problems = append(problems, "upload.concurrency must be positive")
	}
	if c.API.Timeout <= 0 {
		problems = append(problems, "api.timeout must be positive")
	}
	if c.Cache.CleanupInterval <= 0 {
		problems = append(problems, "cache.cleanup_interval must be positive")
	}
	if len(problems) > 0 {
		return apperrors.New(apperrors.ErrValidation, "invalid configuration: "+strings.Join(problems, "; "))
	}
	return nil
}

// Loader reads configuration and keeps it current when the file changes.
type Loader struct {
	v    *viper.Viper
	mu   sync.RWMutex
	cfg  *Config
	file string
}

// Load reads configuration from path. With an empty path it searches for
// fieldsync.{yaml,toml,json} in the working directory and ~/.fieldsync;
// a missing file is not an error. FIELDSYNC_* variables override the file.
func Load(path string) (*Loader, error) {
	v := viper.New()
	SetDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("fieldsync")
		v.AddConfigPath(".")
		v.AddConfigPath("$HOME/.fieldsync")
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	return &Loader{v: v, cfg: fromViper(v), file: v.ConfigFileUsed()}, nil
}

// Config returns the current configuration.
func (l *Loader) Config() *Config {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.cfg
}

// File returns the config file in use, or "" when running on defaults.
func (l *Loader) File() string {
	return l.file
}

// Watch reloads the configuration when the file changes and passes the new
// value to callback. It does nothing when no file is in use.
func (l *Loader) Watch(callback func(*Config)) {
	if l.file == "" {
		return
	}
	l.v.OnConfigChange(func(e fsnotify.Event) {
		if !e.Has(fsnotify.Write) && !e.Has(fsnotify.Create) {
			return
		}
		cfg := fromViper(l.v)
		l.mu.Lock()
		l.cfg = cfg
		l.mu.Unlock()
		callback(cfg)
	})
	l.v.WatchConfig()
}

// Package config loads prerender's project configuration.
//
// Configuration lives in prerender.toml or prerender.yaml next to the build
// manifest. Every field is optional; [Default] supplies the rest:
//
//	output_dir = "dist/server"
//	manifest   = "build/manifest.toml"
//	runtime    = ["runtime"]
//
//	[pool]
//	concurrency = 4
//	command     = ["node", "--enable-source-maps"]
//
//	[cache]
//	backend = "redis"
//	redis_addr = "localhost:6379"
//	ttl = "30m"
//
//	[issues]
//	database = ".prerender/issues.db"
//
//	[server]
//	addr = ":3000"
//
//	[log]
//	level = "debug"
package config

import (
	"bytes"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/charmbracelet/log"
	"gopkg.in/yaml.v3"

	"github.com/matzehuels/prerender/pkg/errors"
	"github.com/matzehuels/prerender/pkg/worker"
)

// Cache backends.
const (
	CacheFile  = "file"
	CacheRedis = "redis"
	CacheNone  = "none"
)

// FileNames are the config files Discover looks for, in order.
var FileNames = []string{"prerender.toml", "prerender.yaml", "prerender.yml"}

// Config is the decoded project configuration.
type Config struct {
	// OutputDir is where internal assets are emitted. Each entry renders
	// from its own subdirectory.
	OutputDir string `toml:"output_dir" yaml:"output_dir"`

	// Manifest is the build manifest path.
	Manifest string `toml:"manifest" yaml:"manifest"`

	// Runtime lists manifest entries loaded before every rendered entry.
	Runtime []string `toml:"runtime" yaml:"runtime"`

	Pool   PoolConfig   `toml:"pool" yaml:"pool"`
	Cache  CacheConfig  `toml:"cache" yaml:"cache"`
	Issues IssuesConfig `toml:"issues" yaml:"issues"`
	Server ServerConfig `toml:"server" yaml:"server"`
	Log    LogConfig    `toml:"log" yaml:"log"`

	// Dir is the directory relative paths resolve against.
	Dir string `toml:"-" yaml:"-"`
}

// PoolConfig configures the worker processes.
type PoolConfig struct {
	Concurrency int               `toml:"concurrency" yaml:"concurrency"`
	Command     []string          `toml:"command" yaml:"command"`
	Env         map[string]string `toml:"env" yaml:"env"`
}

// CacheConfig configures the render result cache.
type CacheConfig struct {
	Backend   string   `toml:"backend" yaml:"backend"`
	Dir       string   `toml:"dir" yaml:"dir"`
	RedisAddr string   `toml:"redis_addr" yaml:"redis_addr"`
	Prefix    string   `toml:"prefix" yaml:"prefix"`
	TTL       Duration `toml:"ttl" yaml:"ttl"`
}

// IssuesConfig configures the issue store. An empty Database keeps issues
// in the log only.
type IssuesConfig struct {
	Database string `toml:"database" yaml:"database"`
}

// ServerConfig configures `prerender serve`.
type ServerConfig struct {
	Addr string `toml:"addr" yaml:"addr"`
}

// LogConfig configures the CLI logger.
type LogConfig struct {
	Level string `toml:"level" yaml:"level"`
}

// Duration is a time.Duration written as "30s" or "10m" in config files.
type Duration time.Duration

// UnmarshalText implements encoding.TextUnmarshaler for TOML.
func (d *Duration) UnmarshalText(text []byte) error {
	v, err := time.ParseDuration(string(text))
	if err != nil {
		return err
	}
	*d = Duration(v)
	return nil
}

// UnmarshalYAML implements yaml.Unmarshaler.
func (d *Duration) UnmarshalYAML(node *yaml.Node) error {
	return d.UnmarshalText([]byte(node.Value))
}

// MarshalText implements encoding.TextMarshaler.
func (d Duration) MarshalText() ([]byte, error) {
	return []byte(time.Duration(d).String()), nil
}

// Default returns the configuration used when no file is present.
func Default() *Config {
	return &Config{
		OutputDir: filepath.Join(".prerender", "out"),
		Manifest:  "prerender.manifest.toml",
		Pool: PoolConfig{
			Concurrency: worker.DefaultConcurrency,
			Command:     []string{"node"},
		},
		Cache: CacheConfig{
			Backend: CacheFile,
			TTL:     Duration(10 * time.Minute),
		},
		Server: ServerConfig{Addr: "127.0.0.1:3000"},
		Log:    LogConfig{Level: "info"},
		Dir:    ".",
	}
}

// Load decodes the file at path over [Default] and validates the result.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeInvalidConfig, err, "read config")
	}
	cfg := Default()
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".toml":
		md, err := toml.Decode(string(data), cfg)
		if err != nil {
			return nil, errors.Wrap(errors.ErrCodeInvalidConfig, err, "decode %s", path)
		}
		if undecoded := md.Undecoded(); len(undecoded) > 0 {
			return nil, errors.New(errors.ErrCodeInvalidConfig, "unknown key %s in %s", undecoded[0], path)
		}
	case ".yaml", ".yml":
		dec := yaml.NewDecoder(bytes.NewReader(data))
		dec.KnownFields(true)
		if err := dec.Decode(cfg); err != nil && err != io.EOF {
			return nil, errors.Wrap(errors.ErrCodeInvalidConfig, err, "decode %s", path)
		}
	default:
		return nil, errors.New(errors.ErrCodeInvalidConfig, "unsupported config format %q", ext)
	}
	abs, err := filepath.Abs(filepath.Dir(path))
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeInvalidConfig, err, "resolve config directory")
	}
	cfg.Dir = abs
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Discover loads the first of [FileNames] found in dir, or returns
// [Default] rooted at dir when there is none.
func Discover(dir string) (*Config, error) {
	for _, name := range FileNames {
		p := filepath.Join(dir, name)
		if _, err := os.Stat(p); err == nil {
			return Load(p)
		}
	}
	cfg := Default()
	cfg.Dir = dir
	return cfg, nil
}

// Validate reports the first invalid setting.
func (c *Config) Validate() error {
	if c.OutputDir == "" {
		return errors.New(errors.ErrCodeInvalidConfig, "output_dir cannot be empty")
	}
	if c.Pool.Concurrency < 1 {
		return errors.New(errors.ErrCodeInvalidConfig, "pool.concurrency must be at least 1, got %d", c.Pool.Concurrency)
	}
	if len(c.Pool.Command) == 0 || c.Pool.Command[0] == "" {
		return errors.New(errors.ErrCodeInvalidConfig, "pool.command cannot be empty")
	}
	for _, name := range c.Runtime {
		if err := errors.ValidateEntryName(name); err != nil {
			return errors.Wrap(errors.ErrCodeInvalidConfig, err, "runtime entry")
		}
	}
	switch c.Cache.Backend {
	case CacheFile, CacheNone:
	case CacheRedis:
		if c.Cache.RedisAddr == "" {
			return errors.New(errors.ErrCodeInvalidConfig, "cache.redis_addr is required for the redis backend")
		}
	default:
		return errors.New(errors.ErrCodeInvalidConfig, "unknown cache backend %q (want file, redis or none)", c.Cache.Backend)
	}
	if c.Cache.TTL < 0 {
		return errors.New(errors.ErrCodeInvalidConfig, "cache.ttl cannot be negative")
	}
	if _, err := log.ParseLevel(c.Log.Level); err != nil {
		return errors.Wrap(errors.ErrCodeInvalidConfig, err, "log.level")
	}
	return nil
}

// Resolve returns p relative to the config directory unless it is absolute.
func (c *Config) Resolve(p string) string {
	if p == "" || filepath.IsAbs(p) {
		return p
	}
	return filepath.Join(c.Dir, p)
}

// LogLevel returns the configured level, defaulting to info.
func (c *Config) LogLevel() log.Level {
	level, err := log.ParseLevel(c.Log.Level)
	if err != nil {
		return log.InfoLevel
	}
	return level
}

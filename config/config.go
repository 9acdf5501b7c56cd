package config

import (
	"os"
	"slices"
	"strconv"
	"time"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

const (
	DriverSQLite = "sqlite"
	DriverMySQL  = "mysql"

	DefaultCacheSize    = 128
	DefaultMaxBodyBytes = 8 << 20
)

type Config struct {
	Server   Server   `yaml:"server"`
	Database Database `yaml:"database"`
	Log      Log      `yaml:"log"`
	Cache    Cache    `yaml:"cache"`
	PubSub   PubSub   `yaml:"pubsub"`
	Viewer   Viewer   `yaml:"viewer"`
}

type Server struct {
	Listen string `yaml:"listen"`
	// Gin mode: debug, release or test
	Mode string `yaml:"mode"`
	// Largest accepted POST /api/data body
	MaxBodyBytes int64 `yaml:"max_body_bytes"`
}

type Database struct {
	Driver string `yaml:"driver"`
	// File path for sqlite, DSN for mysql
	DSN         string        `yaml:"dsn"`
	BusyTimeout time.Duration `yaml:"busy_timeout"`
	SlowQuery   time.Duration `yaml:"slow_query"`
}

type Log struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"` // json or console
	// Optional file to append to instead of stderr
	File string `yaml:"file"`
}

// Cache configures the query result cache. Cached listings only see writes
// made through this process, so when several collectors share a database
// the cache should stay off. Left unset, the size is 0 for mysql and
// DefaultCacheSize for sqlite.
type Cache struct {
	Size *int          `yaml:"size"`
	TTL  time.Duration `yaml:"ttl"`
}

type PubSub struct {
	Project      string `yaml:"project"`
	Subscription string `yaml:"subscription"`
}

func (p PubSub) Enabled() bool {
	return p.Project != "" && p.Subscription != ""
}

type Viewer struct {
	RefreshInterval time.Duration `yaml:"refresh_interval"`
}

func Default() *Config {
	return &Config{
		Server: Server{Listen: ":5000", Mode: "release", MaxBodyBytes: DefaultMaxBodyBytes},
		Database: Database{
			Driver:      DriverSQLite,
			DSN:         "nester.db",
			BusyTimeout: 5 * time.Second,
			SlowQuery:   200 * time.Millisecond,
		},
		Log:    Log{Level: "info", Format: "console"},
		Cache:  Cache{TTL: 30 * time.Second},
		Viewer: Viewer{RefreshInterval: 5 * time.Second},
	}
}

// Load reads the YAML file at fpath (if any) over the defaults and then
// applies NESTER_* environment overrides.
func Load(fpath string) (*Config, error) {
	conf := Default()
	if fpath != "" {
		content, err := os.ReadFile(fpath)
		if err != nil {
			return nil, errors.Wrapf(err, "failed to read configuration %s", fpath)
		}
		if err := yaml.Unmarshal(content, conf); err != nil {
			return nil, errors.Wrapf(err, "failed to parse configuration %s", fpath)
		}
	}

	if err := conf.bindEnv(); err != nil {
		return nil, err
	}
	if err := conf.Validate(); err != nil {
		return nil, err
	}
	return conf, nil
}

func isSet(val string) bool {
	return !slices.Contains([]string{"", "-"}, val)
}

func bind(dst *string, env string) {
	if v := os.Getenv(env); isSet(v) {
		*dst = v
	}
}

func bindDuration(dst *time.Duration, env string) error {
	v := os.Getenv(env)
	if !isSet(v) {
		return nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return errors.Wrapf(err, "invalid duration in %s", env)
	}
	*dst = d
	return nil
}

func (c *Config) bindEnv() error {
	bind(&c.Server.Listen, "NESTER_LISTEN")
	bind(&c.Server.Mode, "NESTER_MODE")
	bind(&c.Database.Driver, "NESTER_DB_DRIVER")
	bind(&c.Database.DSN, "NESTER_DB_DSN")
	bind(&c.Log.Level, "NESTER_LOG_LEVEL")
	bind(&c.Log.Format, "NESTER_LOG_FORMAT")
	bind(&c.Log.File, "NESTER_LOG_FILE")
	bind(&c.PubSub.Project, "NESTER_PUBSUB_PROJECT")
	bind(&c.PubSub.Subscription, "NESTER_PUBSUB_SUBSCRIPTION")

	if v := os.Getenv("NESTER_CACHE_SIZE"); isSet(v) {
		n, err := strconv.Atoi(v)
		if err != nil {
			return errors.Wrap(err, "invalid NESTER_CACHE_SIZE")
		}
		c.Cache.Size = &n
	}

	if v := os.Getenv("NESTER_MAX_BODY_BYTES"); isSet(v) {
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return errors.Wrap(err, "invalid NESTER_MAX_BODY_BYTES")
		}
		c.Server.MaxBodyBytes = n
	}

	for env, dst := range map[string]*time.Duration{
		"NESTER_DB_BUSY_TIMEOUT":   &c.Database.BusyTimeout,
		"NESTER_CACHE_TTL":         &c.Cache.TTL,
		"NESTER_VIEWER_REFRESH":    &c.Viewer.RefreshInterval,
		"NESTER_DB_SLOW_THRESHOLD": &c.Database.SlowQuery,
	} {
		if err := bindDuration(dst, env); err != nil {
			return err
		}
	}
	return nil
}

func (c *Config) Validate() error {
	if !slices.Contains([]string{DriverSQLite, DriverMySQL}, c.Database.Driver) {
		return errors.Errorf("unsupported database driver %q", c.Database.Driver)
	}
	if c.Database.DSN == "" {
		return errors.New("database dsn is required")
	}
	if c.Server.Listen == "" {
		return errors.New("listen address is required")
	}
	if c.Cache.Size != nil && *c.Cache.Size < 0 {
		return errors.New("cache size cannot be negative")
	}
	if c.Server.MaxBodyBytes <= 0 {
		return errors.New("max body bytes must be positive")
	}
	if c.Viewer.RefreshInterval <= 0 {
		return errors.New("viewer refresh interval must be positive")
	}
	if c.Database.BusyTimeout <= 0 {
		return errors.New("database busy timeout must be positive")
	}
	return nil
}

// CacheSize is the configured cache size, or the driver's default when none
// was set.
func (c *Config) CacheSize() int {
	if c.Cache.Size != nil {
		return *c.Cache.Size
	}
	if c.Database.Driver == DriverMySQL {
		return 0
	}
	return DefaultCacheSize
}

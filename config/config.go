// Package config loads settings from an optional YAML file and the
// environment.
package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

type API struct {
	BaseURL string        `yaml:"base_url"`
	Timeout time.Duration `yaml:"timeout"`
}

type Storage struct {
	// Driver is one of memory, sqlite, postgres, redis.
	Driver string `yaml:"driver"`
	// DSN is a file path for sqlite, a connection string for postgres and
	// an address or redis:// URL for redis.
	DSN string `yaml:"dsn"`
	Key string `yaml:"key"`
}

type Cart struct {
	StrictUpdate bool `yaml:"strict_update"`
}

type HTTP struct {
	Addr string `yaml:"addr"`
}

type Catalog struct {
	// Source is fixture or postgres.
	Source  string `yaml:"source"`
	Fixture string `yaml:"fixture"`
	DSN     string `yaml:"dsn"`
	Addr    string `yaml:"addr"`
}

type Log struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

type Tracing struct {
	Enabled     bool   `yaml:"enabled"`
	Endpoint    string `yaml:"endpoint"`
	ServiceName string `yaml:"service_name"`
}

type Config struct {
	API     API     `yaml:"api"`
	Storage Storage `yaml:"storage"`
	Cart    Cart    `yaml:"cart"`
	HTTP    HTTP    `yaml:"http"`
	Catalog Catalog `yaml:"catalog"`
	Log     Log     `yaml:"log"`
	Tracing Tracing `yaml:"tracing"`
}

func Default() Config {
	return Config{
		API:     API{BaseURL: "http://localhost:3333", Timeout: 10 * time.Second},
		Storage: Storage{Driver: "sqlite", DSN: "rocketshoes.db", Key: "@RocketShoes:cart"},
		HTTP:    HTTP{Addr: ":8082"},
		Catalog: Catalog{Source: "fixture", Fixture: "catalog.yaml", Addr: ":3333"},
		Log:     Log{Level: "info", Format: "json"},
		Tracing: Tracing{Endpoint: "localhost:4317", ServiceName: "rocketshoes-cart"},
	}
}

// Load applies defaults, then the YAML file at path (if path is not
// empty), then environment overrides, and validates the result.
func Load(path string) (Config, error) {
	cfg := Default()
	if path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return Config{}, errors.Wrapf(err, "read config %s", path)
		}
		if err := yaml.Unmarshal(raw, &cfg); err != nil {
			return Config{}, errors.Wrapf(err, "parse config %s", path)
		}
	}
	if err := cfg.applyEnv(os.LookupEnv); err != nil {
		return Config{}, err
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c *Config) applyEnv(lookup func(string) (string, bool)) error {
	str := func(name string, dst *string) {
		if v, ok := lookup(name); ok && v != "" {
			*dst = v
		}
	}
	str("ROCKETSHOES_API_URL", &c.API.BaseURL)
	str("ROCKETSHOES_STORAGE_DRIVER", &c.Storage.Driver)
	str("ROCKETSHOES_STORAGE_DSN", &c.Storage.DSN)
	str("ROCKETSHOES_CATALOG_FIXTURE", &c.Catalog.Fixture)
	str("ROCKETSHOES_CATALOG_DSN", &c.Catalog.DSN)
	str("ROCKETSHOES_LOG_LEVEL", &c.Log.Level)
	str("OTEL_EXPORTER_OTLP_ENDPOINT", &c.Tracing.Endpoint)

	if v, ok := lookup("REDIS_ADDR"); ok && v != "" {
		c.Storage.Driver = "redis"
		c.Storage.DSN = v
		if !strings.Contains(v, ":") {
			c.Storage.DSN = v + ":6379"
		}
	}
	if v, ok := lookup("PORT"); ok && v != "" {
		c.HTTP.Addr = ":" + v
	}
	if v, ok := lookup("ROCKETSHOES_API_TIMEOUT"); ok && v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return errors.Wrap(err, "ROCKETSHOES_API_TIMEOUT")
		}
		c.API.Timeout = d
	}
	if v, ok := lookup("ROCKETSHOES_STRICT_UPDATE"); ok && v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return errors.Wrap(err, "ROCKETSHOES_STRICT_UPDATE")
		}
		c.Cart.StrictUpdate = b
	}
	if _, ok := lookup("OTEL_EXPORTER_OTLP_ENDPOINT"); ok {
		c.Tracing.Enabled = true
	}
	return nil
}

func (c Config) Validate() error {
	switch c.Storage.Driver {
	case "memory":
	case "sqlite", "postgres", "redis":
		if c.Storage.DSN == "" {
			return errors.Errorf("storage.dsn is required for driver %q", c.Storage.Driver)
		}
	default:
		return errors.Errorf("unknown storage.driver %q", c.Storage.Driver)
	}
	if c.Storage.Key == "" {
		return errors.New("storage.key is required")
	}
	if c.API.BaseURL == "" {
		return errors.New("api.base_url is required")
	}
	if c.API.Timeout < 0 {
		return errors.New("api.timeout must be >= 0")
	}
	switch c.Catalog.Source {
	case "fixture", "postgres":
	default:
		return errors.Errorf("unknown catalog.source %q", c.Catalog.Source)
	}
	switch c.Log.Format {
	case "json", "text":
	default:
		return errors.Errorf("unknown log.format %q", c.Log.Format)
	}
	return nil
}

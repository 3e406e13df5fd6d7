package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/creasty/defaults"
	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"github.com/sawpanic/tradeguard/internal/application"
	"github.com/sawpanic/tradeguard/internal/backtest/walkforward"
	"github.com/sawpanic/tradeguard/internal/errs"
	"github.com/sawpanic/tradeguard/internal/gates"
	httpapi "github.com/sawpanic/tradeguard/internal/interfaces/http"
	applog "github.com/sawpanic/tradeguard/internal/log"
	"github.com/sawpanic/tradeguard/internal/persistence/postgres"
	"github.com/sawpanic/tradeguard/internal/persistence/redis"
	"github.com/sawpanic/tradeguard/internal/providers"
	"github.com/sawpanic/tradeguard/internal/quality"
	"github.com/sawpanic/tradeguard/internal/score/sentiment"
	"github.com/sawpanic/tradeguard/internal/social"
)

var validate = validator.New()

// Config is the full tradeguard configuration file
type Config struct {
	Service   *application.Config     `yaml:"service"`
	Extractor *social.ExtractorConfig `yaml:"extractor"`
	Filter    *quality.FilterConfig   `yaml:"filter"`
	Scorer    *sentiment.Config       `yaml:"scorer"`
	Gate      *gates.Config           `yaml:"gate"`
	Backtest  *walkforward.Config     `yaml:"backtest"`
	Storage   StorageConfig           `yaml:"storage"`
	Providers ProvidersConfig         `yaml:"providers"`
	Server    httpapi.ServerConfig    `yaml:"server"`
	Log       applog.Config           `yaml:"log"`
}

// StorageConfig selects the snapshot and baseline backends; both disabled means in-memory
type StorageConfig struct {
	Postgres postgres.Config `yaml:"postgres"`
	Redis    redis.Config    `yaml:"redis"`
}

// SourceConfig is one file-backed collaborator and its guard settings
type SourceConfig struct {
	Path                     string `yaml:"path"` // Empty leaves the collaborator unset
	providers.ProviderConfig `yaml:",inline"`
}

// ProvidersConfig holds the three collaborators the service consumes
type ProvidersConfig struct {
	Social  SourceConfig `yaml:"social"`
	Account SourceConfig `yaml:"account"`
	Prices  SourceConfig `yaml:"prices"`
}

// Default returns every section at its package defaults
func Default() *Config {
	return &Config{
		Service:   application.DefaultConfig(),
		Extractor: social.DefaultExtractorConfig(),
		Filter:    quality.DefaultFilterConfig(),
		Scorer:    sentiment.DefaultConfig(),
		Gate:      gates.DefaultConfig(),
		Backtest:  walkforward.DefaultConfig(),
		Storage: StorageConfig{
			Postgres: postgres.DefaultConfig(),
			Redis:    redis.DefaultConfig(),
		},
		Providers: ProvidersConfig{
			Social:  SourceConfig{ProviderConfig: providers.DefaultProviderConfig("social")},
			Account: SourceConfig{ProviderConfig: providers.DefaultProviderConfig("account")},
			Prices:  SourceConfig{ProviderConfig: providers.DefaultProviderConfig("prices")},
		},
		Server: httpapi.DefaultServerConfig(),
		Log:    applog.Config{Level: "info", Format: applog.FormatAuto},
	}
}

// Load reads path over the defaults; an empty path returns the validated defaults
func Load(path string) (*Config, error) {
	if path == "" {
		cfg := Default()
		return cfg, cfg.Validate()
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config %s: %w", path, err)
	}
	defer f.Close()
	return Parse(f)
}

// Parse decodes YAML from r over the tagged defaults and validates. Values present in the
// file win, including explicit zeros.
func Parse(r io.Reader) (*Config, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	cfg := Default()
	if err := defaults.Set(cfg); err != nil {
		return nil, errs.Configf("config", "apply defaults: %v", err)
	}
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, errs.Configf("config", "parse yaml: %v", err)
	}
	cfg.restoreSections()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// restoreSections replaces sections an explicit `null` cleared
func (c *Config) restoreSections() {
	d := Default()
	if c.Service == nil {
		c.Service = d.Service
	}
	if c.Extractor == nil {
		c.Extractor = d.Extractor
	}
	if c.Filter == nil {
		c.Filter = d.Filter
	}
	if c.Scorer == nil {
		c.Scorer = d.Scorer
	}
	if c.Gate == nil {
		c.Gate = d.Gate
	}
	if c.Backtest == nil {
		c.Backtest = d.Backtest
	}
	if c.Storage.Postgres == (postgres.Config{}) {
		c.Storage.Postgres = d.Storage.Postgres
	}
	if c.Storage.Redis == (redis.Config{}) {
		c.Storage.Redis = d.Storage.Redis
	}
	restoreSource(&c.Providers.Social, d.Providers.Social)
	restoreSource(&c.Providers.Account, d.Providers.Account)
	restoreSource(&c.Providers.Prices, d.Providers.Prices)
	if c.Server == (httpapi.ServerConfig{}) {
		c.Server = d.Server
	}
	if c.Log == (applog.Config{}) {
		c.Log = d.Log
	}
}

func restoreSource(src *SourceConfig, def SourceConfig) {
	if *src == (SourceConfig{}) {
		*src = def
	}
}

// Validate runs struct tag rules, then each section's own checks
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		var ves validator.ValidationErrors
		if errors.As(err, &ves) && len(ves) > 0 {
			return fieldError(ves[0])
		}
		return errs.Configf("config", "%v", err)
	}

	checks := []interface{ Validate() error }{
		c.Service, c.Extractor, c.Filter, c.Scorer, c.Gate, c.Backtest,
		c.Server,
	}
	for _, check := range checks {
		if err := check.Validate(); err != nil {
			return err
		}
	}
	for _, src := range []SourceConfig{c.Providers.Social, c.Providers.Account, c.Providers.Prices} {
		if err := src.ProviderConfig.Validate(); err != nil {
			return err
		}
	}

	if c.Storage.Postgres.Enabled && c.Storage.Postgres.DSN == "" {
		return errs.Configf("storage.postgres.dsn", "required when postgres is enabled")
	}
	if c.Storage.Redis.Enabled && c.Storage.Redis.Addr == "" {
		return errs.Configf("storage.redis.addr", "required when redis is enabled")
	}
	return nil
}

// fieldError turns a validator failure into a ConfigurationError keyed by the yaml path
func fieldError(fe validator.FieldError) error {
	return errs.ConfigurationError{Field: yamlPath(fe.Namespace()), Reason: reason(fe)}
}

// yamlPath maps "Config.Storage.Postgres.MaxOpenConns" to "storage.postgres.max_open_conns"
func yamlPath(namespace string) string {
	parts := strings.Split(namespace, ".")
	if len(parts) > 1 {
		parts = parts[1:]
	}
	for i, p := range parts {
		parts[i] = snake(p)
	}
	return strings.Join(parts, ".")
}

func snake(s string) string {
	var b strings.Builder
	for i, r := range s {
		if r >= 'A' && r <= 'Z' {
			if i > 0 && !(s[i-1] >= 'A' && s[i-1] <= 'Z') {
				b.WriteByte('_')
			}
			r += 'a' - 'A'
		}
		b.WriteRune(r)
	}
	return b.String()
}

func reason(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "oneof":
		return fmt.Sprintf("must be one of: %s, got %v", strings.ReplaceAll(fe.Param(), " ", ", "), fe.Value())
	case "gt":
		return fmt.Sprintf("must be > %s, got %v", fe.Param(), fe.Value())
	case "gte", "min":
		return fmt.Sprintf("must be >= %s, got %v", fe.Param(), fe.Value())
	case "lte", "max":
		return fmt.Sprintf("must be <= %s, got %v", fe.Param(), fe.Value())
	default:
		return fmt.Sprintf("failed %s validation", fe.Tag())
	}
}

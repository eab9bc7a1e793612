// Package config provides configuration management for the ctidoc commands.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/telhawk-systems/ctidoc/pkg/chunking"
	"github.com/telhawk-systems/ctidoc/pkg/fields"
	"github.com/telhawk-systems/ctidoc/pkg/render"
)

// EnvPrefix prefixes environment overrides, e.g. CTIDOC_CHUNKING_BUDGET.
const EnvPrefix = "CTIDOC"

// ErrInvalidConfig is returned by Validate. Chunking problems additionally wrap
// chunking.ErrInvalidChunkConfig.
var ErrInvalidConfig = errors.New("invalid configuration")

// Config is the complete ctidoc configuration.
type Config struct {
	Chunking   ChunkingConfig   `mapstructure:"chunking"`
	Render     RenderConfig     `mapstructure:"render"`
	Aliases    AliasesConfig    `mapstructure:"aliases"`
	Batch      BatchConfig      `mapstructure:"batch"`
	Output     OutputConfig     `mapstructure:"output"`
	DLQ        DLQConfig        `mapstructure:"dlq"`
	NATS       NATSConfig       `mapstructure:"nats"`
	OpenSearch OpenSearchConfig `mapstructure:"opensearch"`
	Redis      RedisConfig      `mapstructure:"redis"`
	Metrics    MetricsConfig    `mapstructure:"metrics"`
	Logging    LoggingConfig    `mapstructure:"logging"`

	// File is the config file that was read, empty when none was found.
	File string `mapstructure:"-"`
}

// ChunkingConfig holds chunker parameters
type ChunkingConfig struct {
	Enabled      bool    `mapstructure:"enabled"`
	Budget       int     `mapstructure:"budget"`
	OverlapRatio float64 `mapstructure:"overlap_ratio"`
}

// ChunkConfig converts to the chunker's parameter struct.
func (c ChunkingConfig) ChunkConfig() chunking.Config {
	return chunking.Config{Budget: c.Budget, OverlapRatio: c.OverlapRatio}
}

// RenderConfig holds renderer limits
type RenderConfig struct {
	MaxDepth int `mapstructure:"max_depth"`
}

// Options converts to render.Options.
func (r RenderConfig) Options() render.Options {
	return render.Options{MaxDepth: r.MaxDepth}
}

// AliasesConfig holds alias table adjustments. File entries are applied
// first, then the inline maps.
type AliasesConfig struct {
	File     string              `mapstructure:"file"`
	Override map[string][]string `mapstructure:"override"`
	Extend   map[string][]string `mapstructure:"extend"`
}

// BatchConfig holds batch driver configuration
type BatchConfig struct {
	Workers       int           `mapstructure:"workers"`
	SplitArrays   bool          `mapstructure:"split_arrays"`
	SkipUnchanged bool          `mapstructure:"skip_unchanged"`
	Timeout       time.Duration `mapstructure:"timeout"`
}

// OutputConfig holds output tree configuration
type OutputConfig struct {
	Dir         string `mapstructure:"dir"`
	Frontmatter bool   `mapstructure:"frontmatter"`
}

// DLQConfig holds dead letter queue configuration
type DLQConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Path    string `mapstructure:"path"` // defaults to <output.dir>/.dlq
}

// NATSConfig holds NATS message broker configuration
type NATSConfig struct {
	URL           string        `mapstructure:"url"`
	Enabled       bool          `mapstructure:"enabled"`
	SubjectPrefix string        `mapstructure:"subject_prefix"`
	MaxReconnects int           `mapstructure:"max_reconnects"`
	ReconnectWait time.Duration `mapstructure:"reconnect_wait"`
}

// OpenSearchConfig holds OpenSearch connection settings
type OpenSearchConfig struct {
	URL             string `mapstructure:"url"`
	Enabled         bool   `mapstructure:"enabled"`
	Username        string `mapstructure:"username"`
	Password        string `mapstructure:"password"`
	TLSSkipVerify   bool   `mapstructure:"tls_skip_verify"`
	Index           string `mapstructure:"index"`
	ShardCount      int    `mapstructure:"shard_count"`
	ReplicaCount    int    `mapstructure:"replica_count"`
	RefreshInterval string `mapstructure:"refresh_interval"`
	BulkSize        int    `mapstructure:"bulk_size"`
}

// RedisConfig holds Redis configuration for run reports
type RedisConfig struct {
	URL        string `mapstructure:"url"`
	Enabled    bool   `mapstructure:"enabled"`
	KeyPrefix  string `mapstructure:"key_prefix"`
	MaxRetries int    `mapstructure:"max_retries"`
	PoolSize   int    `mapstructure:"pool_size"`
}

// MetricsConfig holds Prometheus exposure settings
type MetricsConfig struct {
	PushgatewayURL string `mapstructure:"pushgateway_url"`
	ListenAddr     string `mapstructure:"listen_addr"`
	Job            string `mapstructure:"job"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// Binding ties a config key to a command line flag. The flag wins only when
// it was set explicitly.
type Binding struct {
	Key  string
	Flag *pflag.Flag
}

// Bind is shorthand for a Binding.
func Bind(key string, flag *pflag.Flag) Binding {
	return Binding{Key: key, Flag: flag}
}

// Load reads configuration from defaults, the config file, CTIDOC_* environment
// variables and bound flags, in increasing order of precedence.
// An explicit path must exist; otherwise ./ctidoc.yaml and
// $HOME/.ctidoc/config.yaml are tried in turn and a missing file is not an error.
func Load(path string, bindings ...Binding) (*Config, error) {
	v := viper.New()

	// Set all defaults
	setDefaults(v)

	v.SetConfigType("yaml")
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	for _, b := range bindings {
		if b.Flag == nil {
			continue
		}
		if err := v.BindPFlag(b.Key, b.Flag); err != nil {
			return nil, fmt.Errorf("bind flag %s: %w", b.Flag.Name, err)
		}
	}

	file := path
	if file == "" {
		file = findConfigFile()
	}
	if file != "" {
		v.SetConfigFile(file)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config %s: %w", file, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	cfg.File = file

	if cfg.Batch.Workers <= 0 {
		cfg.Batch.Workers = runtime.NumCPU()
	}
	if cfg.DLQ.Path == "" {
		cfg.DLQ.Path = filepath.Join(cfg.Output.Dir, ".dlq")
	}

	return &cfg, nil
}

func findConfigFile() string {
	candidates := []string{"ctidoc.yaml"}
	if home, err := os.UserHomeDir(); err == nil {
		candidates = append(candidates, filepath.Join(home, ".ctidoc", "config.yaml"))
	}
	for _, c := range candidates {
		if info, err := os.Stat(c); err == nil && !info.IsDir() {
			return c
		}
	}
	return ""
}

// setDefaults sets all default configuration values
func setDefaults(v *viper.Viper) {
	// Chunking defaults
	v.SetDefault("chunking.enabled", true)
	v.SetDefault("chunking.budget", chunking.DefaultBudget)
	v.SetDefault("chunking.overlap_ratio", chunking.DefaultOverlapRatio)

	v.SetDefault("render.max_depth", render.DefaultMaxDepth)

	// Alias defaults
	v.SetDefault("aliases.file", "")
	v.SetDefault("aliases.override", map[string][]string{})
	v.SetDefault("aliases.extend", map[string][]string{})

	// Batch defaults
	v.SetDefault("batch.workers", runtime.NumCPU())
	v.SetDefault("batch.split_arrays", true)
	v.SetDefault("batch.skip_unchanged", false)
	v.SetDefault("batch.timeout", "0s")

	v.SetDefault("output.dir", "cti_markdown_output")
	v.SetDefault("output.frontmatter", true)

	v.SetDefault("dlq.enabled", true)
	v.SetDefault("dlq.path", "")

	// NATS defaults
	v.SetDefault("nats.url", "nats://localhost:4222")
	v.SetDefault("nats.enabled", false)
	v.SetDefault("nats.subject_prefix", "ctidoc")
	v.SetDefault("nats.max_reconnects", 5)
	v.SetDefault("nats.reconnect_wait", "2s")

	// OpenSearch defaults
	v.SetDefault("opensearch.url", "https://localhost:9200")
	v.SetDefault("opensearch.enabled", false)
	v.SetDefault("opensearch.username", "admin")
	v.SetDefault("opensearch.password", "admin")
	v.SetDefault("opensearch.tls_skip_verify", true)
	v.SetDefault("opensearch.index", "ctidoc-chunks")
	v.SetDefault("opensearch.shard_count", 1)
	v.SetDefault("opensearch.replica_count", 0)
	v.SetDefault("opensearch.refresh_interval", "5s")
	v.SetDefault("opensearch.bulk_size", 500)

	// Redis defaults
	v.SetDefault("redis.url", "redis://localhost:6379/0")
	v.SetDefault("redis.enabled", false)
	v.SetDefault("redis.key_prefix", "ctidoc")
	v.SetDefault("redis.max_retries", 3)
	v.SetDefault("redis.pool_size", 10)

	v.SetDefault("metrics.pushgateway_url", "")
	v.SetDefault("metrics.listen_addr", "")
	v.SetDefault("metrics.job", "ctidoc")

	// Logging defaults
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "text")
}

// Validate checks the configuration before any record is processed.
func (c *Config) Validate() error {
	if err := c.Chunking.ChunkConfig().Validate(); err != nil {
		return fmt.Errorf("%w: chunking: %w", ErrInvalidConfig, err)
	}

	checks := []struct {
		name string
		err  error
	}{
		{"render", validation.ValidateStruct(&c.Render,
			validation.Field(&c.Render.MaxDepth, validation.Required, validation.Min(1), validation.Max(render.MaxDepthLimit)),
		)},
		{"batch", validation.ValidateStruct(&c.Batch,
			validation.Field(&c.Batch.Workers, validation.Min(1)),
			validation.Field(&c.Batch.Timeout, validation.Min(time.Duration(0))),
		)},
		{"output", validation.ValidateStruct(&c.Output,
			validation.Field(&c.Output.Dir, validation.Required),
		)},
		{"dlq", validation.ValidateStruct(&c.DLQ,
			validation.Field(&c.DLQ.Path, validation.When(c.DLQ.Enabled, validation.Required)),
		)},
		{"nats", validation.ValidateStruct(&c.NATS,
			validation.Field(&c.NATS.URL, validation.When(c.NATS.Enabled, validation.Required)),
			validation.Field(&c.NATS.SubjectPrefix, validation.When(c.NATS.Enabled, validation.Required)),
		)},
		{"opensearch", validation.ValidateStruct(&c.OpenSearch,
			validation.Field(&c.OpenSearch.URL, validation.When(c.OpenSearch.Enabled, validation.Required)),
			validation.Field(&c.OpenSearch.Index, validation.When(c.OpenSearch.Enabled, validation.Required)),
			validation.Field(&c.OpenSearch.BulkSize, validation.Min(1)),
		)},
		{"redis", validation.ValidateStruct(&c.Redis,
			validation.Field(&c.Redis.URL, validation.When(c.Redis.Enabled, validation.Required)),
		)},
		{"logging", validation.ValidateStruct(&c.Logging,
			validation.Field(&c.Logging.Level, validation.In("debug", "info", "warn", "warning", "error")),
			validation.Field(&c.Logging.Format, validation.In("json", "text")),
		)},
	}
	for _, ch := range checks {
		if ch.err != nil {
			return fmt.Errorf("%w: %s: %v", ErrInvalidConfig, ch.name, ch.err)
		}
	}
	return nil
}

// AliasOverrides returns the alias adjustments from aliases.file followed by
// the inline aliases.override and aliases.extend maps.
func (c *Config) AliasOverrides() (fields.Overrides, error) {
	var o fields.Overrides
	if c.Aliases.File != "" {
		fromFile, err := fields.LoadOverrides(c.Aliases.File)
		if err != nil {
			return fields.Overrides{}, fmt.Errorf("%w: aliases: %w", ErrInvalidConfig, err)
		}
		o = fromFile
	}
	return o.Merge(fields.Overrides{Override: c.Aliases.Override, Extend: c.Aliases.Extend}), nil
}

// AliasTable returns the default alias table with the configured adjustments applied.
func (c *Config) AliasTable() (*fields.Table, error) {
	o, err := c.AliasOverrides()
	if err != nil {
		return nil, err
	}
	if o.Empty() {
		return fields.Default(), nil
	}
	t, err := fields.Default().Apply(o)
	if err != nil {
		return nil, fmt.Errorf("%w: aliases: %w", ErrInvalidConfig, err)
	}
	return t, nil
}

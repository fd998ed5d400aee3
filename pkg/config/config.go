// Package config loads service configuration from defaults, an optional
// config file, the environment and command-line flags, in increasing order
// of precedence.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

// EnvPrefix prefixes every environment variable, e.g. THERAMATCH_LISTEN or
// THERAMATCH_UPSTREAM_MODEL.
const EnvPrefix = "THERAMATCH"

// Config is the full service configuration.
type Config struct {
	Listen    string `mapstructure:"listen" validate:"required"`
	Debug     bool   `mapstructure:"debug"`
	LogFormat string `mapstructure:"log_format" validate:"oneof=console json"`
	// DBPath is the transcript database. Empty keeps transcripts in memory.
	// It is only used when Transcripts.Enabled is set.
	DBPath string `mapstructure:"db_path"`

	Transcripts TranscriptsConfig `mapstructure:"transcripts"`

	Upstream  UpstreamConfig  `mapstructure:"upstream"`
	Ranking   RankingConfig   `mapstructure:"ranking"`
	Directory DirectoryConfig `mapstructure:"directory"`
	Scrape    ScrapeConfig    `mapstructure:"scrape"`
	Taxonomy  TaxonomyConfig  `mapstructure:"taxonomy"`
	Prompt    PromptConfig    `mapstructure:"prompt"`
}

// TranscriptsConfig controls chat transcript recording. Recorded transcripts
// are served unauthenticated under /dag, so recording is off unless enabled.
type TranscriptsConfig struct {
	Enabled bool `mapstructure:"enabled"`
}

// UpstreamConfig selects the streaming chat model.
type UpstreamConfig struct {
	BaseURL string        `mapstructure:"base_url" validate:"required,url"`
	APIKey  string        `mapstructure:"api_key"`
	Model   string        `mapstructure:"model" validate:"required"`
	Timeout time.Duration `mapstructure:"timeout" validate:"gte=0"`
}

// RankingConfig selects the ranking model. Empty fields inherit from
// Upstream.
type RankingConfig struct {
	BaseURL string `mapstructure:"base_url" validate:"omitempty,url"`
	APIKey  string `mapstructure:"api_key"`
	Model   string `mapstructure:"model"`
}

// DirectoryConfig points at the therapist directory search endpoint.
type DirectoryConfig struct {
	URL       string        `mapstructure:"url" validate:"required,url"`
	Timeout   time.Duration `mapstructure:"timeout" validate:"gt=0"`
	UserAgent string        `mapstructure:"user_agent" validate:"required"`
}

// ScrapeConfig configures profile page scraping.
type ScrapeConfig struct {
	Section string `mapstructure:"section" validate:"required"`
}

// TaxonomyConfig locates the attribute filter table.
type TaxonomyConfig struct {
	// Path to a TOML table. Empty uses the built-in table.
	Path  string `mapstructure:"path"`
	Watch bool   `mapstructure:"watch"`
}

// PromptConfig locates a system prompt template override.
type PromptConfig struct {
	Path string `mapstructure:"path"`
}

var defaults = map[string]any{
	"listen":               ":8080",
	"debug":                false,
	"log_format":           "console",
	"db_path":              "",
	"transcripts.enabled":  false,
	"upstream.base_url":    "https://openrouter.ai/api/v1",
	"upstream.api_key":     "",
	"upstream.model":       "openai/gpt-4o",
	"upstream.timeout":     "0s",
	"ranking.base_url":     "",
	"ranking.api_key":      "",
	"ranking.model":        "",
	"directory.url":        "https://www.psychologytoday.com/ca/therapists/results",
	"directory.timeout":    "10s",
	"directory.user_agent": "TheraMatch/1.0",
	"scrape.section":       "qualifications",
	"taxonomy.path":        "",
	"taxonomy.watch":       false,
	"prompt.path":          "",
}

// envAliases are accepted in addition to the prefixed variable names.
var envAliases = map[string][]string{
	"upstream.api_key": {"OPENROUTER_API_KEY", "OPENAI_API_KEY"},
}

// FlagKeys maps command-line flag names onto config keys.
var FlagKeys = map[string]string{
	"listen":      "listen",
	"debug":       "debug",
	"log-format":  "log_format",
	"db":          "db_path",
	"transcripts": "transcripts.enabled",
	"upstream":    "upstream.base_url",
	"model":       "upstream.model",
	"taxonomy":    "taxonomy.path",
}

// Load builds the configuration. path may be empty; when set, the file's
// format is taken from its extension (toml, yaml, json). flags may be nil;
// flags named in FlagKeys override every other source when set.
func Load(path string, flags *pflag.FlagSet) (*Config, error) {
	v := viper.New()

	for key, value := range defaults {
		v.SetDefault(key, value)
	}

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	for key, aliases := range envAliases {
		names := append([]string{key, EnvPrefix + "_" + strings.ToUpper(strings.ReplaceAll(key, ".", "_"))}, aliases...)
		if err := v.BindEnv(names...); err != nil {
			return nil, fmt.Errorf("bind env for %s: %w", key, err)
		}
	}

	if flags != nil {
		for name, key := range FlagKeys {
			if f := flags.Lookup(name); f != nil {
				if err := v.BindPFlag(key, f); err != nil {
					return nil, fmt.Errorf("bind flag %s: %w", name, err)
				}
			}
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}

	cfg.inherit()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) inherit() {
	if c.Ranking.BaseURL == "" {
		c.Ranking.BaseURL = c.Upstream.BaseURL
	}
	if c.Ranking.APIKey == "" {
		c.Ranking.APIKey = c.Upstream.APIKey
	}
	if c.Ranking.Model == "" {
		c.Ranking.Model = c.Upstream.Model
	}
}

// Validate checks the configuration's validate tags.
func (c *Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			fields := make([]string, 0, len(verrs))
			for _, fe := range verrs {
				fields = append(fields, fmt.Sprintf("%s (%s)", fe.Namespace(), fe.Tag()))
			}
			return fmt.Errorf("invalid config: %s", strings.Join(fields, ", "))
		}
		return fmt.Errorf("invalid config: %w", err)
	}
	return nil
}

// LogFields describes the configuration for a startup log line, with
// secrets redacted.
func (c *Config) LogFields() []zap.Field {
	return []zap.Field{
		zap.String("listen", c.Listen),
		zap.Bool("debug", c.Debug),
		zap.Bool("transcripts", c.Transcripts.Enabled),
		zap.String("db_path", c.DBPath),
		zap.String("upstream", c.Upstream.BaseURL),
		zap.String("model", c.Upstream.Model),
		zap.Bool("api_key_set", c.Upstream.APIKey != ""),
		zap.String("ranking_model", c.Ranking.Model),
		zap.String("directory", c.Directory.URL),
		zap.Duration("directory_timeout", c.Directory.Timeout),
		zap.String("taxonomy", c.Taxonomy.Path),
	}
}

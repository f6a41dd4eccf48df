package config

import (
	"time"

	"github.com/jackzampolin/bookbaker/internal/book"
)

// Config holds bookbaker configuration.
// Stored at: ./config.yaml or ~/.bookbaker/config.yaml
type Config struct {
	Client  ClientCfg    `mapstructure:"client" yaml:"client"`
	DB      DBCfg        `mapstructure:"db" yaml:"db"`
	Logging LoggingCfg   `mapstructure:"logging" yaml:"logging"`
	Roles   []RoleCfg    `mapstructure:"roles" yaml:"roles"`
	Tasks   []*book.Task `mapstructure:"tasks" yaml:"tasks"`
}

// ClientCfg configures the shared HTTP client.
type ClientCfg struct {
	UserAgent string        `mapstructure:"user_agent" yaml:"user_agent"`
	Timeout   time.Duration `mapstructure:"timeout" yaml:"timeout"`
	Proxy     string        `mapstructure:"proxy" yaml:"proxy,omitempty"`
}

// DBCfg configures the document store.
type DBCfg struct {
	Path string `mapstructure:"path" yaml:"path"`
}

// LoggingCfg configures the logger. Level is one of debug, info, warn,
// error and may change on config reload without a restart.
type LoggingCfg struct {
	Level  string `mapstructure:"level" yaml:"level"`
	Format string `mapstructure:"format" yaml:"format"` // "text" or "json"
}

// RoleCfg configures one named role. Type selects the implementation;
// fields that do not apply to a type are ignored.
type RoleCfg struct {
	Name string `mapstructure:"name" yaml:"name"`
	Type string `mapstructure:"type" yaml:"type"` // "openai", "deepl", "epub", "mock"

	// Translator backends.
	APIKey      string  `mapstructure:"api_key" yaml:"api_key,omitempty"`     // supports ${ENV_VAR} syntax
	BaseURL     string  `mapstructure:"base_url" yaml:"base_url,omitempty"`
	Model       string  `mapstructure:"model" yaml:"model,omitempty"`
	Temperature float64 `mapstructure:"temperature" yaml:"temperature,omitempty"`

	// Engine policy.
	MaxRetries      int           `mapstructure:"max_retries" yaml:"max_retries,omitempty"`
	RetryDelay      time.Duration `mapstructure:"retry_delay" yaml:"retry_delay,omitempty"`
	BatchSize       int           `mapstructure:"batch_size" yaml:"batch_size,omitempty"`
	MaxSessionChars int           `mapstructure:"max_session_chars" yaml:"max_session_chars,omitempty"`
	RemindInterval  int           `mapstructure:"remind_interval" yaml:"remind_interval,omitempty"`
	RateLimit       int           `mapstructure:"rate_limit" yaml:"rate_limit,omitempty"` // requests per minute
	SkipTranslated  bool          `mapstructure:"skip_translated" yaml:"skip_translated"`
	OverwriteMeta   bool          `mapstructure:"overwrite_meta" yaml:"overwrite_meta,omitempty"`

	// Exporters.
	OutputDir string `mapstructure:"output_dir" yaml:"output_dir,omitempty"`
}

// DefaultConfig returns configuration with sensible defaults: one chat
// translator, one DeepL translator, an ePub exporter, and a sample task.
func DefaultConfig() *Config {
	return &Config{
		Client: ClientCfg{
			UserAgent: "bookbaker/1.0",
			Timeout:   30 * time.Second,
		},
		DB: DBCfg{
			Path: "books.db",
		},
		Logging: LoggingCfg{
			Level:  "info",
			Format: "text",
		},
		Roles: []RoleCfg{
			{
				Name:           "gpt",
				Type:           "openai",
				APIKey:         "${OPENAI_API_KEY}",
				Model:          "gpt-4o",
				RemindInterval: 10,
				SkipTranslated: true,
			},
			{
				Name:           "deepl",
				Type:           "deepl",
				APIKey:         "${DEEPL_API_KEY}",
				SkipTranslated: true,
			},
			{
				Name:      "epub",
				Type:      "epub",
				OutputDir: "exports",
			},
		},
		Tasks: []*book.Task{
			{
				URL:          "https://syosetu.org/novel/333942/",
				FriendlyName: "sample - TS Tenshi",
				SauceLang:    "JA",
				TargetLang:   "ZH",
				Translators:  []string{"deepl"},
				Exporters:    []string{"epub"},
				Glossaries: []book.Glossary{
					{Source: "ザラキエル", Target: "撒拉琪尔"},
				},
			},
		},
	}
}

// Role returns a role config by name.
func (c *Config) Role(name string) (RoleCfg, bool) {
	for _, r := range c.Roles {
		if r.Name == name {
			return r, true
		}
	}
	return RoleCfg{}, false
}

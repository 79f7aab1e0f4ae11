package config

import (
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config holds the full application configuration.
type Config struct {
	Input  InputConfig  `yaml:"input" mapstructure:"input"`
	Lookup LookupConfig `yaml:"lookup" mapstructure:"lookup"`
	Store  StoreConfig  `yaml:"store" mapstructure:"store"`
	Batch  BatchConfig  `yaml:"batch" mapstructure:"batch"`
	Log    LogConfig    `yaml:"log" mapstructure:"log"`
}

// InputConfig locates and describes the spreadsheet to load.
type InputConfig struct {
	Path       string `yaml:"path" mapstructure:"path"`
	Delimiter  string `yaml:"delimiter" mapstructure:"delimiter"`
	Encoding   string `yaml:"encoding" mapstructure:"encoding"`
	SheetIndex int    `yaml:"sheet_index" mapstructure:"sheet_index"`
}

// LookupConfig configures the CEP address lookup client.
type LookupConfig struct {
	BaseURL     string  `yaml:"base_url" mapstructure:"base_url"`
	TimeoutSecs int     `yaml:"timeout_secs" mapstructure:"timeout_secs"`
	UserAgent   string  `yaml:"user_agent" mapstructure:"user_agent"`
	RateLimit   float64 `yaml:"rate_limit" mapstructure:"rate_limit"` // requests/sec, 0 = unlimited
	MaxAttempts int     `yaml:"max_attempts" mapstructure:"max_attempts"`
}

// StoreConfig configures the database backend.
type StoreConfig struct {
	Driver       string `yaml:"driver" mapstructure:"driver"`
	DatabaseURL  string `yaml:"database_url" mapstructure:"database_url"`
	UpdatePolicy string `yaml:"update_policy" mapstructure:"update_policy"`
	MaxConns     int32  `yaml:"max_conns" mapstructure:"max_conns"`
}

// BatchConfig configures the enrichment fan-out.
type BatchConfig struct {
	// MaxConcurrentRows caps in-flight rows. 0 launches every row at once.
	MaxConcurrentRows int `yaml:"max_concurrent_rows" mapstructure:"max_concurrent_rows"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// Load reads configuration from file and environment.
func Load() (*Config, error) {
	v := viper.New()

	// Config file
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	// Environment
	v.SetEnvPrefix("CEP")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("input.path", "data.csv")
	v.SetDefault("input.delimiter", ",")
	v.SetDefault("input.encoding", "utf-8")
	v.SetDefault("input.sheet_index", 0)
	v.SetDefault("lookup.base_url", "https://viacep.com.br")
	v.SetDefault("lookup.timeout_secs", 10)
	v.SetDefault("lookup.user_agent", "cep-loader/1.0")
	v.SetDefault("lookup.rate_limit", 0)
	v.SetDefault("lookup.max_attempts", 1)
	v.SetDefault("store.driver", "sqlite")
	v.SetDefault("store.database_url", "records.db")
	v.SetDefault("store.update_policy", "overwrite")
	v.SetDefault("batch.max_concurrent_rows", 0)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")

	// Read config file (optional)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, eris.Wrap(err, "config: read file")
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, eris.Wrap(err, "config: unmarshal")
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// Validate rejects settings the loader cannot run with.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.Input.Path) == "" {
		return eris.New("config: input.path is required")
	}
	if len([]rune(c.Input.Delimiter)) > 1 {
		return eris.Errorf("config: input.delimiter must be a single character, got %q", c.Input.Delimiter)
	}
	if c.Batch.MaxConcurrentRows < 0 {
		return eris.Errorf("config: batch.max_concurrent_rows must be >= 0, got %d", c.Batch.MaxConcurrentRows)
	}
	if c.Lookup.RateLimit < 0 {
		return eris.Errorf("config: lookup.rate_limit must be >= 0, got %v", c.Lookup.RateLimit)
	}
	switch c.Store.Driver {
	case "sqlite", "postgres":
	default:
		return eris.Errorf("config: unsupported store driver %q", c.Store.Driver)
	}
	return nil
}

// NewLogger builds a zap logger from the log settings.
func NewLogger(cfg LogConfig) (*zap.Logger, error) {
	var zapCfg zap.Config
	if cfg.Format == "console" {
		zapCfg = zap.NewDevelopmentConfig()
	} else {
		zapCfg = zap.NewProductionConfig()
	}

	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return nil, eris.Wrap(err, "config: parse log level")
	}
	zapCfg.Level.SetLevel(level)

	logger, err := zapCfg.Build()
	if err != nil {
		return nil, eris.Wrap(err, "config: build logger")
	}
	return logger, nil
}

// InitLogger builds the logger and installs it as the zap global.
func InitLogger(cfg LogConfig) (*zap.Logger, error) {
	logger, err := NewLogger(cfg)
	if err != nil {
		return nil, err
	}
	zap.ReplaceGlobals(logger)
	return logger, nil
}

package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/mitchellh/go-homedir"
	"github.com/spf13/viper"
)

var (
	ErrConfigRead   = errors.New("failed to read config file")
	ErrConfigDecode = errors.New("failed to decode config")
	ErrConfigValue  = errors.New("invalid config value")
)

// Config holds process-wide settings. Per-source settings live in the
// source registry, not here.
type Config struct {
	DatabaseURL          string `mapstructure:"database_url"`
	ListenAddr           string `mapstructure:"listen_addr"`
	AdminSecret          string `mapstructure:"admin_secret"`
	RegistryPath         string `mapstructure:"registry_path"`
	LogLevel             string `mapstructure:"log_level"`
	LogPretty            bool   `mapstructure:"log_pretty"`
	FetchTimeoutSeconds  int    `mapstructure:"fetch_timeout_seconds"`
	DocumentBatchSize    int    `mapstructure:"document_batch_size"`
	SourceParallelism    int    `mapstructure:"source_parallelism"`
	BlockPrivateNetworks bool   `mapstructure:"block_private_networks"`
	UserAgent            string `mapstructure:"user_agent"`
	CORSOrigins          string `mapstructure:"cors_origins"`
}

// FetchTimeout is the default per-request timeout.
func (c Config) FetchTimeout() time.Duration {
	return time.Duration(c.FetchTimeoutSeconds) * time.Second
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("database_url", "")
	v.SetDefault("listen_addr", ":8081")
	v.SetDefault("admin_secret", "")
	v.SetDefault("registry_path", "")
	v.SetDefault("log_level", "info")
	v.SetDefault("log_pretty", false)
	v.SetDefault("fetch_timeout_seconds", 25)
	v.SetDefault("document_batch_size", 4)
	v.SetDefault("source_parallelism", 4)
	v.SetDefault("block_private_networks", true)
	v.SetDefault("user_agent", "")
	v.SetDefault("cors_origins", "")
}

// Load reads tenders.yml from the given file, or from the home and working
// directories when file is empty. A missing file is not an error; every key
// can also come from TENDERS_* environment variables.
func Load(file string) (Config, error) {
	v := viper.New()
	setDefaults(v)

	if file != "" {
		v.SetConfigFile(file)
	} else {
		if home, errHomeDir := homedir.Dir(); errHomeDir == nil {
			v.AddConfigPath(home)
		}
		v.AddConfigPath(".")
		v.SetConfigName("tenders")
		v.SetConfigType("yml")
	}

	v.SetEnvPrefix("tenders")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if errRead := v.ReadInConfig(); errRead != nil {
		var notFound viper.ConfigFileNotFoundError
		if file != "" || !errors.As(errRead, &notFound) {
			return Config{}, errors.Join(errRead, ErrConfigRead)
		}
	}

	var cfg Config
	if errUnmarshal := v.Unmarshal(&cfg); errUnmarshal != nil {
		return Config{}, errors.Join(errUnmarshal, ErrConfigDecode)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate rejects values the pipeline cannot run with.
func (c Config) Validate() error {
	switch {
	case c.FetchTimeoutSeconds < 1:
		return fmt.Errorf("%w: fetch_timeout_seconds must be positive", ErrConfigValue)
	case c.DocumentBatchSize < 1:
		return fmt.Errorf("%w: document_batch_size must be positive", ErrConfigValue)
	case c.SourceParallelism < 1:
		return fmt.Errorf("%w: source_parallelism must be positive", ErrConfigValue)
	}
	return nil
}

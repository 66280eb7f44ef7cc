// Package config loads Teester settings from flags, TEESTER_* environment
// variables, a .env file and an optional teester.yaml.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// EnvPrefix prefixes every environment variable Teester reads.
const EnvPrefix = "TEESTER"

// Keys shared by flags, environment and the config file.
const (
	KeyAddr           = "addr"
	KeyDB             = "db"
	KeyHistory        = "history"
	KeyMaxRuns        = "max-runs"
	KeyRequireAuth    = "require-auth"
	KeyAllowedOrigins = "allowed-origins"
	KeyStrictVars     = "strict-vars"
	KeyStrictJSON     = "strict-json"
	KeySymmetric      = "symmetric"
	KeyTimeout        = "timeout"
	KeyRPS            = "rps"
	KeyReportDir      = "report-dir"
	KeyAPIURL         = "api-url"
	KeyAPIKey         = "api-key"
)

// Config holds settings for both the server and the CLI commands.
type Config struct {
	Addr           string
	DBPath         string
	History        int
	MaxRuns        int
	RequireAuth    bool
	AllowedOrigins []string

	StrictVars bool
	// StrictJSON fails a test whose header or body template is not valid
	// JSON instead of sending an empty object.
	StrictJSON bool
	Symmetric  bool
	Timeout    time.Duration
	// RPS limits tests per second; 0 disables pacing.
	RPS       float64
	ReportDir string

	APIURL string
	APIKey string
}

// Default returns the built-in settings.
func Default() *Config {
	return &Config{
		Addr:           ":8080",
		DBPath:         "teester.db",
		History:        20,
		MaxRuns:        4,
		AllowedOrigins: []string{"*"},
		Timeout:        30 * time.Second,
	}
}

// Load resolves settings with precedence flags > environment > config file
// > defaults. path names a config file; empty searches for teester.yaml in
// the working directory and $HOME/.teester. A .env file in the working
// directory is loaded into the environment first without overriding
// variables that are already set.
func Load(path string, flags *pflag.FlagSet) (*Config, error) {
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("load .env: %w", err)
	}

	v := viper.New()
	def := Default()
	v.SetDefault(KeyAddr, def.Addr)
	v.SetDefault(KeyDB, def.DBPath)
	v.SetDefault(KeyHistory, def.History)
	v.SetDefault(KeyMaxRuns, def.MaxRuns)
	v.SetDefault(KeyAllowedOrigins, def.AllowedOrigins)
	v.SetDefault(KeyTimeout, def.Timeout)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("teester")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("$HOME/.teester")
	}
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	if flags != nil {
		if err := v.BindPFlags(flags); err != nil {
			return nil, fmt.Errorf("bind flags: %w", err)
		}
	}

	cfg := &Config{
		Addr:           v.GetString(KeyAddr),
		DBPath:         v.GetString(KeyDB),
		History:        v.GetInt(KeyHistory),
		MaxRuns:        v.GetInt(KeyMaxRuns),
		RequireAuth:    v.GetBool(KeyRequireAuth),
		AllowedOrigins: v.GetStringSlice(KeyAllowedOrigins),
		StrictVars:     v.GetBool(KeyStrictVars),
		StrictJSON:     v.GetBool(KeyStrictJSON),
		Symmetric:      v.GetBool(KeySymmetric),
		Timeout:        v.GetDuration(KeyTimeout),
		RPS:            v.GetFloat64(KeyRPS),
		ReportDir:      v.GetString(KeyReportDir),
		APIURL:         v.GetString(KeyAPIURL),
		APIKey:         v.GetString(KeyAPIKey),
	}
	return cfg, cfg.Validate()
}

// Validate rejects settings no command can work with.
func (c *Config) Validate() error {
	if c.History < 0 {
		return fmt.Errorf("%s must not be negative", KeyHistory)
	}
	if c.MaxRuns < 0 {
		return fmt.Errorf("%s must not be negative", KeyMaxRuns)
	}
	if c.Timeout <= 0 {
		return fmt.Errorf("%s must be positive", KeyTimeout)
	}
	if c.RPS < 0 {
		return fmt.Errorf("%s must not be negative", KeyRPS)
	}
	return nil
}
